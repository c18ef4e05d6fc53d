package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/logging"
)

type options struct {
	configPath string
	dev        bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "server",
		Short: "Scripting environment behind an HTTP front-end",
		Long: `server - Host a JavaScript/TypeScript environment and raise a "request"
event on com.mycompany.MyApp for every HTTP request.

Modules load from the module root, from allow-listed HTTPS origins and,
when configured, from an S3-compatible object store.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML or TOML config file (default: environment)")
	root.PersistentFlags().BoolVar(&opts.dev, "dev", false, "Development logging")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newServeCmd(opts), newCheckCmd(opts))
	return root
}

func (o *options) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: cfg.Logging.OutputPaths,
	})
}
