package main

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type rootOptions struct {
	verbosity int
	logger    logr.Logger
	sync      func() error
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "donsim",
		Short:        "donsim - priority donation scheduler simulator",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setupLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.sync != nil {
				_ = o.sync()
			}
		},
	}
	cmd.PersistentFlags().IntVarP(&o.verbosity, "verbose", "v", 0, "Log verbosity; 1 logs every scheduling event")

	cmd.AddCommand(newRunCmd(o), newScenariosCmd(o))
	return cmd
}

// setupLogger builds a zap development logger writing to stderr. zapr maps
// logr verbosity N to zap level -N.
func (o *rootOptions) setupLogger() error {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-o.verbosity))
	cfg.DisableStacktrace = true

	z, err := cfg.Build()
	if err != nil {
		return err
	}
	o.logger = zapr.NewLogger(z)
	o.sync = z.Sync
	return nil
}
