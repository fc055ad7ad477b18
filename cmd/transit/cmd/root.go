package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/templui/transit/internal/app"
	"github.com/templui/transit/internal/config"
	"github.com/templui/transit/internal/logger"
	"github.com/templui/transit/internal/metrics"
)

type options struct {
	cfg         *config.Config
	metricsAddr string
}

func RootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "transit",
		Short:         "Ingest, transform and transport attachment files",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.cfg = config.Load()
			if opts.metricsAddr == "" {
				opts.metricsAddr = opts.cfg.MetricsAddr
			}
			logger.Init(os.Stderr, opts.cfg.IsDevelopment(), opts.cfg.SentryDSN)
			if opts.metricsAddr != "" {
				metrics.Serve(opts.metricsAddr)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Flush()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(ProcessCmd(opts))
	rootCmd.AddCommand(DeleteCmd(opts))
	rootCmd.AddCommand(ShowCmd(opts))
	rootCmd.AddCommand(FieldsCmd(opts))
	rootCmd.AddCommand(MigrateCmd(opts))

	return rootCmd
}

// withApp opens the application for the duration of fn.
func withApp(ctx context.Context, opts *options, fn func(*app.App) error) error {
	a, err := app.New(ctx, opts.cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return err
	}
	defer func() {
		closeErr := a.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	return fn(a)
}
