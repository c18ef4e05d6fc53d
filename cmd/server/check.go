package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/server"
	"github.com/GriffinCanCode/scriptbridge/internal/script/preprocess"
)

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Preprocess every module under the module root without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			pipeline, err := preprocess.New(cfg.Script.Target)
			if err != nil {
				return err
			}
			if err := server.Precheck(cmd.Context(), cfg.Script, pipeline, logger.Logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "modules under %s are valid (target %s)\n", cfg.Script.ModuleRoot, cfg.Script.Target)
			return nil
		},
	}
}
