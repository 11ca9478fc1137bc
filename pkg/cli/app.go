package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ssdt/authscan/pkg/authhandle"
	"github.com/ssdt/authscan/pkg/blobstore"
	"github.com/ssdt/authscan/pkg/config"
	"github.com/ssdt/authscan/pkg/duration"
	"github.com/ssdt/authscan/pkg/engine"
	"github.com/ssdt/authscan/pkg/health"
	"github.com/ssdt/authscan/pkg/httpclient"
	"github.com/ssdt/authscan/pkg/metrics"
	"github.com/ssdt/authscan/pkg/orchestrator"
	"github.com/ssdt/authscan/pkg/session"
	"github.com/ssdt/authscan/pkg/tracing"
)

// app is the wired service graph shared by serve and scan.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	engine   *engine.Client
	checker  *health.Checker
	sessions session.Store
	handles  authhandle.Store
	blobs    *blobstore.FileStore
	svc      *orchestrator.Service
	tracing  tracing.ShutdownFunc
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	wired := false
	defer func() {
		if !wired {
			_ = a.close(context.Background())
		}
	}()

	var err error
	a.tracing, err = tracing.Setup(ctx, tracing.Options{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		Headers:     cfg.Tracing.Headers,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, err
	}

	a.metrics, err = metrics.New()
	if err != nil {
		return nil, err
	}

	hc := httpclient.DefaultConfig()
	if cfg.Engine.Timeout > 0 {
		hc.Timeout = cfg.Engine.Timeout
	}
	hc.Proxy = cfg.Engine.Proxy
	a.engine, err = engine.New(engine.Options{
		BaseURL:    cfg.Engine.URL,
		APIKey:     cfg.Engine.APIKey,
		HTTPClient: httpclient.New(hc),
		RPS:        cfg.Engine.RPS,
		Logger:     logger,
		Observer:   a.metrics.EngineCall,
	})
	if err != nil {
		return nil, err
	}
	a.checker = health.NewChecker(a.engine, duration.HealthCheck)

	switch cfg.Storage.Backend {
	case "memory":
		a.sessions = session.NewMemoryStore()
		a.handles = authhandle.NewMemoryStore(cfg.Storage.HandleTTL)
	default:
		sessions, err := session.NewSQLiteStore(cfg.Storage.Database)
		if err != nil {
			return nil, err
		}
		a.sessions = sessions
		handles, err := authhandle.NewSQLiteStore(cfg.Storage.Database, cfg.Storage.HandleTTL)
		if err != nil {
			return nil, err
		}
		a.handles = handles
	}

	a.blobs, err = blobstore.NewFileStore(cfg.Storage.BlobDir)
	if err != nil {
		return nil, err
	}

	a.svc, err = orchestrator.New(orchestrator.Options{
		Engine:   a.engine,
		Sessions: a.sessions,
		Handles:  a.handles,
		Blobs:    a.blobs,
		Scan:     cfg.Scan,
		Logger:   logger,
		Metrics:  a.metrics,
	})
	if err != nil {
		return nil, err
	}

	wired = true
	logger.Debug("service wired",
		slog.String("engine", a.engine.BaseURL()),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("blobs", cfg.Storage.BlobDir),
	)
	return a, nil
}

// close drains running scans and releases stores and exporters.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.svc != nil {
		if err := a.svc.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain scans: %w", err))
		}
	}
	if a.handles != nil {
		errs = append(errs, a.handles.Close())
	}
	if a.sessions != nil {
		errs = append(errs, a.sessions.Close())
	}
	if a.tracing != nil {
		errs = append(errs, a.tracing(ctx))
	}
	return errors.Join(errs...)
}

// maintain sweeps expired handles and, when retention is positive, old
// finished sessions, until ctx is done.
func (a *app) maintain(ctx context.Context, retention time.Duration) {
	t := time.NewTicker(duration.HandleSweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if s, ok := a.handles.(*authhandle.SQLiteStore); ok {
			if n, err := s.Sweep(ctx); err != nil {
				a.logger.Warn("sweep handles", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.Debug("expired handles removed", slog.Int64("count", n))
			}
		}
		if s, ok := a.sessions.(*session.SQLiteStore); ok && retention > 0 {
			if n, err := s.Cleanup(ctx, retention); err != nil {
				a.logger.Warn("session retention", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.Info("old sessions removed", slog.Int64("count", n))
			}
		}
	}
}
