package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/scriptbridge/internal/script/preprocess"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Script      ScriptConfig      `yaml:"script" toml:"script"`
	ObjectStore ObjectStoreConfig `yaml:"object_store" toml:"object_store"`
	Logging     LogConfig         `yaml:"logging" toml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `envconfig:"PORT" default:"8070" yaml:"port" toml:"port"`
	Host            string   `envconfig:"HOST" default:"0.0.0.0" yaml:"host" toml:"host"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	AllowedOrigins  []string `envconfig:"CORS_ORIGINS" default:"*" yaml:"allowed_origins" toml:"allowed_origins"`
}

// Address returns the listen address.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// ScriptConfig holds the script environment settings.
type ScriptConfig struct {
	Target          string   `envconfig:"SCRIPT_TARGET" default:"es2020" yaml:"target" toml:"target"`
	ModuleRoot      string   `envconfig:"SCRIPT_MODULE_ROOT" default:"./modules" yaml:"module_root" toml:"module_root"`
	ModulePattern   string   `envconfig:"SCRIPT_MODULE_PATTERN" default:"**/*.{ts,mts,cts,js,mjs,cjs,json}" yaml:"module_pattern" toml:"module_pattern"`
	EntryModule     string   `envconfig:"SCRIPT_ENTRY" default:"file:///main.ts" yaml:"entry_module" toml:"entry_module"`
	AllowedDomains  []string `envconfig:"SCRIPT_ALLOWED_DOMAINS" default:"https://github.com" yaml:"allowed_domains" toml:"allowed_domains"`
	MaxModuleBytes  int64    `envconfig:"SCRIPT_MAX_MODULE_BYTES" default:"4194304" yaml:"max_module_bytes" toml:"max_module_bytes"`
	FetchTimeout    Duration `envconfig:"SCRIPT_FETCH_TIMEOUT" default:"30s" yaml:"fetch_timeout" toml:"fetch_timeout"`
	FetchRetries    int      `envconfig:"SCRIPT_FETCH_RETRIES" default:"2" yaml:"fetch_retries" toml:"fetch_retries"`
	FetchRPS        float64  `envconfig:"SCRIPT_FETCH_RPS" default:"10" yaml:"fetch_rps" toml:"fetch_rps"`
	DispatchTimeout Duration `envconfig:"SCRIPT_DISPATCH_TIMEOUT" default:"5s" yaml:"dispatch_timeout" toml:"dispatch_timeout"`
	Precheck        bool     `envconfig:"SCRIPT_PRECHECK" default:"false" yaml:"precheck" toml:"precheck"`
	ProxyNamespace  []string `envconfig:"SCRIPT_PROXY_NAMESPACE" default:"com,mycompany" yaml:"proxy_namespace" toml:"proxy_namespace"`
	ProxyName       string   `envconfig:"SCRIPT_PROXY_NAME" default:"MyApp" yaml:"proxy_name" toml:"proxy_name"`
}

// ObjectStoreConfig enables the s3:// module loader when Endpoint is set.
type ObjectStoreConfig struct {
	Endpoint  string   `envconfig:"S3_ENDPOINT" yaml:"endpoint" toml:"endpoint"`
	AccessKey string   `envconfig:"S3_ACCESS_KEY" yaml:"access_key" toml:"access_key"`
	SecretKey string   `envconfig:"S3_SECRET_KEY" yaml:"secret_key" toml:"secret_key"`
	Region    string   `envconfig:"S3_REGION" yaml:"region" toml:"region"`
	Buckets   []string `envconfig:"S3_BUCKETS" yaml:"buckets" toml:"buckets"`
}

// Enabled reports whether an object store is configured.
func (o ObjectStoreConfig) Enabled() bool { return o.Endpoint != "" }

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string   `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool     `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
	OutputPaths []string `envconfig:"LOG_OUTPUT" default:"stdout" yaml:"output_paths" toml:"output_paths"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile reads a YAML or TOML file over the defaults. Environment
// variables are not consulted.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8070",
			Host:            "0.0.0.0",
			ShutdownTimeout: Duration(10 * time.Second),
			AllowedOrigins:  []string{"*"},
		},
		Script: ScriptConfig{
			Target:          "es2020",
			ModuleRoot:      "./modules",
			ModulePattern:   "**/*.{ts,mts,cts,js,mjs,cjs,json}",
			EntryModule:     "file:///main.ts",
			AllowedDomains:  []string{"https://github.com"},
			MaxModuleBytes:  4 << 20,
			FetchTimeout:    Duration(30 * time.Second),
			FetchRetries:    2,
			FetchRPS:        10,
			DispatchTimeout: Duration(5 * time.Second),
			ProxyNamespace:  []string{"com", "mycompany"},
			ProxyName:       "MyApp",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			OutputPaths: []string{"stdout"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	if _, err := preprocess.New(c.Script.Target); err != nil {
		return err
	}
	if c.Script.ModuleRoot == "" {
		return fmt.Errorf("module root is required")
	}
	if c.Script.EntryModule == "" {
		return fmt.Errorf("entry module is required")
	}
	if c.Script.ProxyName == "" {
		return fmt.Errorf("proxy name is required")
	}
	if c.Script.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch timeout must be positive")
	}
	if c.Script.MaxModuleBytes <= 0 {
		return fmt.Errorf("max module bytes must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit needs positive rps and burst")
	}
	if c.ObjectStore.Enabled() && len(c.ObjectStore.Buckets) == 0 {
		return fmt.Errorf("object store needs at least one bucket")
	}
	return nil
}

// Duration is a time.Duration read from strings such as "5s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
