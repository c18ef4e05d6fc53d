package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/scriptbridge/internal/api/http"
	"github.com/GriffinCanCode/scriptbridge/internal/api/middleware"
	"github.com/GriffinCanCode/scriptbridge/internal/api/ws"
	"github.com/GriffinCanCode/scriptbridge/internal/hostapi"
	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scriptbridge/internal/script/engine"
	"github.com/GriffinCanCode/scriptbridge/internal/script/modules"
	"github.com/GriffinCanCode/scriptbridge/internal/script/preprocess"
	"github.com/GriffinCanCode/scriptbridge/internal/script/resolver"
)

var (
	// ErrBind means the listen address could not be bound
	ErrBind = errors.New("bind failed")
	// ErrEntry means the entry module could not be loaded
	ErrEntry = errors.New("entry module failed")
	// ErrPrecheck means a module under the root failed preprocessing
	ErrPrecheck = errors.New("module precheck failed")
)

// Server wraps the HTTP server and the script environment
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	engine   *engine.Engine
	router   *gin.Engine
	listener net.Listener
	http     *http.Server
}

// New binds the listen address, then brings the script environment up to
// serving. The returned server has not started accepting requests.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing scriptbridge server",
		zap.String("addr", cfg.Server.Address()),
		zap.String("module_root", cfg.Script.ModuleRoot),
		zap.String("entry", cfg.Script.EntryModule),
		zap.String("target", cfg.Script.Target),
	)

	ln, err := net.Listen("tcp", cfg.Server.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBind, cfg.Server.Address(), err)
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		metrics:  monitoring.NewMetrics(),
		tracer:   tracing.New("scriptbridge", logger.Logger),
		listener: ln,
	}
	if err := s.start(ctx); err != nil {
		_ = ln.Close()
		s.release(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Server) start(ctx context.Context) error {
	cfg := s.config
	pipeline, err := preprocess.New(cfg.Script.Target)
	if err != nil {
		return err
	}

	if cfg.Script.Precheck {
		if err := Precheck(ctx, cfg.Script, pipeline, s.logger.Logger); err != nil {
			return err
		}
	}

	res, err := NewResolver(cfg)
	if err != nil {
		return err
	}
	s.logger.Info("Module resolver ready", zap.Strings("loaders", res.Loaders()))

	s.engine, err = engine.New(ctx, engine.Config{
		Resolver: res.Instrument(s.metrics),
		Pipeline: pipeline,
		Logger:   s.logger.Logger,
		Metrics:  s.metrics,
	})
	if err != nil {
		return err
	}

	err = s.engine.Install(ctx,
		hostapi.App(cfg.Script.ProxyNamespace, cfg.Script.ProxyName, s.logger.Logger),
		hostapi.HTML(),
		hostapi.Stats(),
	)
	if err != nil {
		return err
	}

	if err := s.engine.LoadEntry(ctx, cfg.Script.EntryModule); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEntry, cfg.Script.EntryModule, err)
	}
	if err := s.engine.Serve(); err != nil {
		return err
	}

	s.router = s.routes()
	s.http = &http.Server{
		Handler:           compress(s.router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Server initialized successfully")
	return nil
}

func (s *Server) routes() *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowedOrigins...)))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	timeout := cfg.Script.DispatchTimeout.Std()
	handlers := apihttp.NewHandlers(s.engine, apihttp.Target{
		Namespace: cfg.Script.ProxyNamespace,
		Name:      cfg.Script.ProxyName,
		Timeout:   timeout,
	}, s.tracer, s.metrics, s.logger.Logger)
	wsHandler := ws.NewHandler(s.engine, cfg.Script.ProxyNamespace, cfg.Script.ProxyName, timeout, s.metrics, s.logger.Logger)

	router.Any("/", handlers.Request)
	router.GET("/health", handlers.Health)
	router.GET("/events", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	return router
}

// compress gzips responses except websocket upgrades
func compress(next http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Engine returns the script environment
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Run serves until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.Addr()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		s.release(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Std())
	defer cancel()
	err := s.Close(shutdownCtx)
	<-errCh
	return err
}

// Close stops accepting requests, drains the job queue and flushes logs
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.release(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) release(ctx context.Context) error {
	var err error
	if s.engine != nil {
		if err = s.engine.Close(ctx); err != nil {
			s.logger.Error("Failed to drain script environment", zap.Error(err))
		}
	}
	s.tracer.Close()
	s.logger.Sync()
	return err
}

// NewResolver builds the loader chain: filesystem first, then the network
// loader, then the object store when configured
func NewResolver(cfg *config.Config) (*resolver.Resolver, error) {
	fsLoader, err := resolver.NewFSLoader(resolver.FSConfig{
		Root:     cfg.Script.ModuleRoot,
		Pattern:  cfg.Script.ModulePattern,
		MaxBytes: cfg.Script.MaxModuleBytes,
	})
	if err != nil {
		return nil, err
	}

	httpsLoader, err := resolver.NewHTTPSLoader(resolver.HTTPSConfig{
		AllowedDomains:    cfg.Script.AllowedDomains,
		Timeout:           cfg.Script.FetchTimeout.Std(),
		MaxBytes:          cfg.Script.MaxModuleBytes,
		Retries:           cfg.Script.FetchRetries,
		RequestsPerSecond: cfg.Script.FetchRPS,
	})
	if err != nil {
		return nil, err
	}

	loaders := []resolver.Loader{fsLoader, httpsLoader}
	if cfg.ObjectStore.Enabled() {
		osLoader, err := resolver.NewObjectStoreLoader(resolver.ObjectStoreConfig{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Region:    cfg.ObjectStore.Region,
			Buckets:   cfg.ObjectStore.Buckets,
			MaxBytes:  cfg.Script.MaxModuleBytes,
		})
		if err != nil {
			return nil, err
		}
		loaders = append(loaders, osLoader)
	}
	return resolver.New(loaders...), nil
}

// Precheck preprocesses every module under the module root
func Precheck(ctx context.Context, cfg config.ScriptConfig, pipeline *preprocess.Pipeline, logger *zap.Logger) error {
	pattern := cfg.ModulePattern
	if pattern == "" {
		pattern = resolver.DefaultModulePattern
	}

	report, err := modules.Precheck(ctx, cfg.ModuleRoot, pattern, pipeline)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrecheck, err)
	}
	for path, failure := range report.Failed {
		logger.Error("module failed precheck", zap.String("path", path), zap.Error(failure))
	}
	if err := report.Err(); err != nil {
		return fmt.Errorf("%w: %d of %d modules: %w", ErrPrecheck, len(report.Failed), len(report.Checked), err)
	}
	logger.Info("modules prechecked", zap.Int("count", len(report.Checked)))
	return nil
}
