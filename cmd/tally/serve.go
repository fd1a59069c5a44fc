package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"tally/internal/platform/config"
	"tally/internal/platform/httpserver"
	"tally/internal/report"
	"tally/pkg/platform/sentinel"
)

func newServeCmd() *cobra.Command {
	var rebuildOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the published snapshot over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromEnv()
			a, err := wire(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			_, err = a.service.Current(ctx)
			needsBuild := errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrStale)
			if err != nil && !needsBuild {
				return err
			}
			if rebuildOnStart || needsBuild {
				if _, err := a.rebuilder.Rebuild(ctx); err != nil {
					a.logger.ErrorContext(ctx, "initial rebuild failed", "error", err)
				}
			}

			handler := report.New(a.service, a.rebuilder, a.logger)
			srv := httpserver.New(cfg.Addr, report.NewRouter(handler, cfg.AdminKey, a.logger))

			errCh := make(chan error, 1)
			go func() {
				a.logger.InfoContext(ctx, "starting tally", "addr", cfg.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&rebuildOnStart, "rebuild", false, "rebuild from TALLY_INPUT_DIR before serving")
	return cmd
}
