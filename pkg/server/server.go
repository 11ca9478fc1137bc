// Package server exposes the orchestrator over HTTP.
//
// Routes:
//   - POST /api/v1/auth-handles      exchange captured cookies for a handle
//   - POST /api/v1/scans             start a scan (202, or 200 when already running)
//   - GET  /api/v1/scans             list the caller's scans
//   - GET  /api/v1/scans/{id}        scan status
//   - POST /api/v1/scans/{id}/stop   stop a scan
//   - GET  /healthz                  engine reachability
//   - GET  /metrics                  Prometheus exposition
//
// The caller's identity is read from the owner header; authenticating it is
// the job of whatever sits in front of this server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/ssdt/authscan/pkg/authhandle"
	"github.com/ssdt/authscan/pkg/defaults"
	"github.com/ssdt/authscan/pkg/duration"
	"github.com/ssdt/authscan/pkg/health"
	"github.com/ssdt/authscan/pkg/metrics"
	"github.com/ssdt/authscan/pkg/orchestrator"
	"github.com/ssdt/authscan/pkg/session"
)

// Scans is the orchestrator surface the server needs.
type Scans interface {
	Start(ctx context.Context, req orchestrator.StartRequest) (orchestrator.StartResult, error)
	Status(ctx context.Context, scanID, ownerID string) (*session.Session, error)
	List(ctx context.Context, ownerID string) ([]*session.Session, error)
	Stop(ctx context.Context, scanID, ownerID string) (orchestrator.StopResult, error)
}

var _ Scans = (*orchestrator.Service)(nil)

// Options wires a Server.
type Options struct {
	Scans   Scans
	Handles authhandle.Store
	Health  *health.Checker
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// OwnerHeader defaults to defaults.OwnerHeader.
	OwnerHeader string
	// MaxBody bounds request bodies; defaults to defaults.MaxRequestBody.
	MaxBody int64
	// HandleTTL is reported to clients creating handles.
	HandleTTL time.Duration
}

// Server serves the HTTP API.
type Server struct {
	scans       Scans
	handles     authhandle.Store
	health      *health.Checker
	metrics     *metrics.Metrics
	logger      *slog.Logger
	ownerHeader string
	maxBody     int64
	handleTTL   time.Duration
}

// New returns a Server. Scans is required.
func New(opts Options) (*Server, error) {
	if opts.Scans == nil {
		return nil, errors.New("server: scans is required")
	}
	s := &Server{
		scans:       opts.Scans,
		handles:     opts.Handles,
		health:      opts.Health,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		ownerHeader: opts.OwnerHeader,
		maxBody:     opts.MaxBody,
		handleTTL:   opts.HandleTTL,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.ownerHeader == "" {
		s.ownerHeader = defaults.OwnerHeader
	}
	if s.maxBody <= 0 {
		s.maxBody = defaults.MaxRequestBody
	}
	if s.handleTTL <= 0 {
		s.handleTTL = authhandle.DefaultTTL
	}
	return s, nil
}

// Handler returns the routed handler with panic recovery and security
// headers applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth-handles", s.handleCreateHandle)
	mux.HandleFunc("POST /api/v1/scans", s.handleStart)
	mux.HandleFunc("GET /api/v1/scans", s.handleList)
	mux.HandleFunc("GET /api/v1/scans/{id}", s.handleStatus)
	mux.HandleFunc("POST /api/v1/scans/{id}/stop", s.handleStop)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return s.recovery(securityHeaders(mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, shutdownTimeout time.Duration) error {
	if readTimeout <= 0 {
		readTimeout = duration.ServerRead
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = duration.ServerShutdown
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// recovery turns a handler panic into a 500 instead of a dropped
// connection.
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in http handler",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
