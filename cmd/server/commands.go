package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abdelrahman543873/coffeshop/internal/logging"
	"github.com/abdelrahman543873/coffeshop/internal/server/app"
	"github.com/abdelrahman543873/coffeshop/internal/server/config"
)

func newRootCmd(version, buildDate string) *cobra.Command {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Coffee shop drinks API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(version, buildDate))
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newVersionCmd(version, buildDate))
	return root
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: os.Stdout})
	slog.SetDefault(logger)
	return logger
}

func newServeCmd(version, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, version, buildDate, logger)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}
			return a.Run(ctx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var reset, seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the drinks schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			return app.Migrate(cmd.Context(), cfg.DatabaseDSN, reset, seed, newLogger(cfg))
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Drop every drink before migrating")
	cmd.Flags().BoolVar(&seed, "seed", false, "Add the sample drink")
	return cmd
}

func newVersionCmd(version, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "drinks server %s (%s)\n", version, buildDate)
		},
	}
}
