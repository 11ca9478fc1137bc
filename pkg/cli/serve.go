package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssdt/authscan/pkg/duration"
	"github.com/ssdt/authscan/pkg/server"
	"github.com/ssdt/authscan/pkg/ui"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		listen    string
		retention time.Duration
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP scan service",
		Long: `serve accepts scan requests over HTTP and runs them in the background.

Callers exchange captured session cookies for a one-time handle at
POST /api/v1/auth-handles, then start a scan with that handle. Progress is
read from GET /api/v1/scans/{id}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr(), "")
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			ctx, cancel := SignalContext(cmd.ErrOrStderr(), duration.Drain)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, done := context.WithTimeout(context.Background(), duration.Drain+duration.Cleanup)
				defer done()
				if err := a.close(closeCtx); err != nil {
					logger.Error("shutdown", slog.String("error", err.Error()))
				}
			}()

			if !quiet {
				w := cmd.ErrOrStderr()
				ui.PrintBanner(w)
				ui.PrintOption(w, "Listen", cfg.Server.Listen)
				ui.PrintOption(w, "Engine", a.engine.BaseURL())
				ui.PrintOption(w, "Storage", cfg.Storage.Backend)
			}

			if res, err := a.checker.Check(ctx); err != nil {
				logger.Warn("engine not reachable yet; scans will fail pre-flight until it is",
					slog.String("engine", a.engine.BaseURL()),
					slog.String("error", err.Error()))
			} else {
				logger.Info("engine reachable", slog.String("version", res.Version))
			}

			srv, err := server.New(server.Options{
				Scans:     a.svc,
				Handles:   a.handles,
				Health:    a.checker,
				Metrics:   a.metrics,
				Logger:    logger,
				HandleTTL: cfg.Storage.HandleTTL,
			})
			if err != nil {
				return err
			}

			go a.maintain(ctx, retention)
			return srv.ListenAndServe(ctx, cfg.Server.Listen, cfg.Server.ReadTimeout, cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (overrides config)")
	cmd.Flags().DurationVar(&retention, "retention", 0, "Delete finished sessions older than this (0 keeps all)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Skip the banner")
	return cmd
}
