package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ent0n29/convotone/internal/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			built, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := built.Cleanup(); err != nil {
					logger.Warn().Err(err).Msg("cleanup failed")
				}
			}()

			httpServer := &http.Server{
				Addr:    cfg.BindAddr,
				Handler: built.API.Router(),
			}

			listenErr := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.BindAddr).Msg("server listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					listenErr <- err
				}
				close(listenErr)
			}()

			select {
			case err := <-listenErr:
				if err != nil {
					return fmt.Errorf("listen error: %w", err)
				}
				return nil
			case <-ctx.Done():
				logger.Info().Msg("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("graceful shutdown failed")
				_ = httpServer.Close()
			}
			logger.Info().Msg("shutdown complete")
			return nil
		},
	}
}
