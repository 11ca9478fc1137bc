// Package orchestrator runs authenticated scans against the engine.
//
// A Service accepts start, status and stop requests. Each started scan gets
// one goroutine (the sequencer) that walks the workflow phases, reports
// progress to the session store and always cleans up the engine context
// and cookie rule on the way out. Stop may be called from any process that
// shares the session store; the sequencer notices at its next poll.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ssdt/authscan/pkg/authctx"
	"github.com/ssdt/authscan/pkg/authhandle"
	"github.com/ssdt/authscan/pkg/blobstore"
	"github.com/ssdt/authscan/pkg/config"
	"github.com/ssdt/authscan/pkg/duration"
	"github.com/ssdt/authscan/pkg/health"
	"github.com/ssdt/authscan/pkg/metrics"
	"github.com/ssdt/authscan/pkg/retry"
	"github.com/ssdt/authscan/pkg/session"
)

// Options wires a Service.
type Options struct {
	Engine   Engine
	Sessions session.Store
	Handles  authhandle.Store
	Blobs    blobstore.Store
	Scan     config.ScanConfig
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// Sleep waits between polls. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now defaults to time.Now.
	Now func() time.Time
}

// StartRequest asks for a new scan. Credentials come either from a
// one-time Handle or, for local callers, directly as Cookies.
type StartRequest struct {
	TargetURL string           `json:"targetUrl"`
	LoginURL  string           `json:"loginUrl,omitempty"`
	Handle    string           `json:"handle,omitempty"`
	Cookies   []authctx.Cookie `json:"-"`
	ScanID    string           `json:"scanId,omitempty"`
	OwnerID   string           `json:"-"`
}

// StartResult acknowledges a start request.
type StartResult struct {
	ScanID string         `json:"scanId"`
	Status session.Status `json:"status"`
	// Existing is true when a run for ScanID was already in progress and
	// nothing new was started.
	Existing bool `json:"existing"`
}

// StopResult acknowledges a stop request.
type StopResult struct {
	ScanID string         `json:"scanId"`
	Status session.Status `json:"status"`
	// AlreadyFinished is true when the scan was terminal before the request.
	AlreadyFinished bool `json:"alreadyFinished"`
}

// Service owns the sequencers of this process.
type Service struct {
	engine   Engine
	sessions session.Store
	handles  authhandle.Store
	blobs    blobstore.Store
	cfg      config.ScanConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	tracer   trace.Tracer

	configurator *authctx.Configurator
	checker      *health.Checker
	retry        retry.Config

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu     sync.Mutex
	active map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// New validates opts and returns a Service.
func New(opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, errors.New("orchestrator: engine is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("orchestrator: session store is required")
	}
	if opts.Blobs == nil {
		return nil, errors.New("orchestrator: blob store is required")
	}
	if opts.Scan == (config.ScanConfig{}) {
		opts.Scan = config.DefaultScan()
	}
	if err := opts.Scan.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	s := &Service{
		engine:   opts.Engine,
		sessions: opts.Sessions,
		handles:  opts.Handles,
		blobs:    opts.Blobs,
		cfg:      opts.Scan,
		logger:   orDefault(opts.Logger),
		metrics:  opts.Metrics,
		sleep:    opts.Sleep,
		now:      opts.Now,
		tracer:   otel.Tracer("authscan/orchestrator"),
		active:   make(map[string]context.CancelFunc),
	}
	if s.sleep == nil {
		s.sleep = sleepCtx
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.retry = retry.DefaultConfig()
	if s.cfg.RetryAttempts > 0 {
		s.retry.MaxAttempts = s.cfg.RetryAttempts
	}
	if s.cfg.RetryBaseDelay > 0 {
		s.retry.InitDelay = s.cfg.RetryBaseDelay
	}
	s.retry.OnRetry = func(int, error, time.Duration) { s.metrics.Retry() }

	s.configurator = authctx.New(s.engine, authctx.WithRetry(s.retry), authctx.WithLogger(s.logger))
	s.checker = health.NewChecker(s.engine, duration.HealthCheck)
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	return s, nil
}

// Start launches a scan and returns immediately. Starting a scan id that
// is already running is a no-op that reports the existing run.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if req.OwnerID == "" {
		return StartResult{}, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	target, err := parseTarget(req.TargetURL)
	if err != nil {
		return StartResult{}, err
	}
	if req.LoginURL != "" {
		if _, err := parseTarget(req.LoginURL); err != nil {
			return StartResult{}, fmt.Errorf("%w: login url", err)
		}
	}
	if req.ScanID == "" {
		req.ScanID = uuid.NewString()
	}
	if req.Handle == "" && authctx.CookieHeader(req.Cookies) == "" {
		return StartResult{}, fmt.Errorf("%w: session cookies are required", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StartResult{}, ErrClosed
	}

	prev, err := s.sessions.Get(ctx, req.ScanID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		prev = nil
	case err != nil:
		return StartResult{}, fmt.Errorf("orchestrator: load session: %w", err)
	case prev.OwnerID != req.OwnerID:
		return StartResult{}, ErrNotFound
	}
	if _, running := s.active[req.ScanID]; running {
		// A stopped run may still be winding down here; report what is stored.
		status := session.StatusRunning
		if prev != nil {
			status = prev.Status
		}
		return StartResult{ScanID: req.ScanID, Status: status, Existing: true}, nil
	}

	// Claim before redeeming so a losing duplicate start keeps its handle.
	now := s.now().UTC()
	stored, claimed, err := s.sessions.Claim(ctx, &session.Session{
		ScanID:    req.ScanID,
		OwnerID:   req.OwnerID,
		TargetURL: target.String(),
		LoginURL:  req.LoginURL,
		Status:    session.StatusRunning,
		Phase:     session.PhaseQueued,
		Message:   "Scan queued",
		StartedAt: now,
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("orchestrator: claim session: %w", err)
	}
	if !claimed {
		if stored.OwnerID != req.OwnerID {
			return StartResult{}, ErrNotFound
		}
		return StartResult{ScanID: stored.ScanID, Status: stored.Status, Existing: true}, nil
	}

	cookies, loginURL, err := s.credentials(ctx, req)
	if err == nil && loginURL != req.LoginURL {
		_, err = s.sessions.Update(ctx, req.ScanID, func(sess *session.Session) error {
			sess.LoginURL = loginURL
			return nil
		})
	}
	if err != nil {
		s.unclaim(ctx, req.ScanID, prev)
		return StartResult{}, err
	}

	logger := s.logger.With(slog.String("scan_id", req.ScanID))
	r := &run{
		scanID:   req.ScanID,
		ownerID:  req.OwnerID,
		target:   target.String(),
		baseURL:  target.Scheme + "://" + target.Host,
		loginURL: loginURL,
		cookies:  cookies,
		lastPct:  -1,
		logger:   logger,
		rep: &reporter{
			store:  s.sessions,
			scanID: req.ScanID,
			logger: logger,
			now:    s.now,
		},
	}

	runCtx, cancel := context.WithCancel(s.baseCtx)
	s.active[req.ScanID] = cancel
	s.wg.Add(1)
	s.metrics.ScanStarted()
	go s.execute(runCtx, r)

	logger.Info("scan started", slog.String("target", r.target))
	return StartResult{ScanID: req.ScanID, Status: session.StatusRunning}, nil
}

// unclaim puts back the record a failed start overwrote, or removes the
// one it created.
func (s *Service) unclaim(ctx context.Context, scanID string, prev *session.Session) {
	var err error
	if prev == nil {
		err = s.sessions.Delete(ctx, scanID)
	} else {
		_, err = s.sessions.Update(ctx, scanID, func(sess *session.Session) error {
			*sess = *prev
			return nil
		})
	}
	if err != nil {
		s.logger.Warn("release session claim", slog.String("scan_id", scanID), slog.String("error", err.Error()))
	}
}

// Status returns the session of scanID if it belongs to ownerID.
func (s *Service) Status(ctx context.Context, scanID, ownerID string) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, scanID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return sess, nil
}

// List returns the sessions of ownerID, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*session.Session, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	return s.sessions.List(ctx, ownerID)
}

// Active returns the number of sequencers running in this process.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Wait blocks until every sequencer started so far has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close rejects new scans, interrupts running ones and waits (bounded by
// ctx and duration.Drain) for their sequencers to record a final status.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancelBase()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(duration.Drain):
		return fmt.Errorf("orchestrator: %d scans still running after %s", s.Active(), duration.Drain)
	}
}

// credentials resolves the cookies for a start request.
func (s *Service) credentials(ctx context.Context, req StartRequest) ([]authctx.Cookie, string, error) {
	loginURL := req.LoginURL
	if req.Handle == "" {
		if authctx.CookieHeader(req.Cookies) == "" {
			return nil, "", fmt.Errorf("%w: session cookies are required", ErrInvalidRequest)
		}
		return req.Cookies, loginURL, nil
	}
	if s.handles == nil {
		return nil, "", fmt.Errorf("%w: handles are not supported", ErrInvalidRequest)
	}
	creds, err := s.handles.Consume(ctx, req.Handle)
	if errors.Is(err, authhandle.ErrHandleNotFound) {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err != nil {
		return nil, "", fmt.Errorf("orchestrator: redeem handle: %w", err)
	}
	if loginURL == "" {
		loginURL = creds.LoginURL
	}
	return creds.Cookies, loginURL, nil
}

func (s *Service) release(scanID string) {
	s.mu.Lock()
	if cancel, ok := s.active[scanID]; ok {
		cancel()
		delete(s.active, scanID)
	}
	s.mu.Unlock()
}

// cancelLocal cancels the sequencer of scanID if this process runs it.
func (s *Service) cancelLocal(scanID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.active[scanID]
	if ok {
		cancel()
	}
	return ok
}

func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q is not an http(s) url", ErrInvalidRequest, raw)
	}
	return u, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// orDefault returns l if non-nil, otherwise slog.Default().
func orDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
