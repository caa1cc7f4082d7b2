package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/noni/smptweaks/internal/app"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the progression service and its admin API",
		Long: `Open the configured store, run the startup sequence and serve the admin
API until SIGINT or SIGTERM. On shutdown every online player is flushed
before the store is closed.

A store that cannot be reached does not stop the service: it keeps running
in degraded mode with default progression and /readyz reports 503.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, *cfg, log)
			if err != nil {
				log.Sync()
				return fmt.Errorf("init app: %w", err)
			}
			a.Start()

			runErr := make(chan error, 1)
			go func() { runErr <- a.Run() }()

			select {
			case <-ctx.Done():
				log.Info("Shutting down")
			case err = <-runErr:
				if err != nil {
					log.Error("Admin server stopped", "error", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if closeErr := a.Close(shutdownCtx); closeErr != nil {
				return closeErr
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for flushing players on shutdown")
	return cmd
}
