package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ssdt/authscan/pkg/alerts"
	"github.com/ssdt/authscan/pkg/authctx"
	"github.com/ssdt/authscan/pkg/blobstore"
	"github.com/ssdt/authscan/pkg/defaults"
	"github.com/ssdt/authscan/pkg/engine"
	"github.com/ssdt/authscan/pkg/jsonutil"
	"github.com/ssdt/authscan/pkg/session"
)

// pollState is what one poll observed.
type pollState int

const (
	pollContinue pollState = iota
	pollDone
	pollStuck
)

// exitReason tells a phase why its poll loop ended.
type exitReason int

const (
	exitDone exitReason = iota
	exitCeiling
	exitStuck
	exitCancelled
	exitError
)

func (e exitReason) String() string {
	switch e {
	case exitDone:
		return "done"
	case exitCeiling:
		return "ceiling"
	case exitStuck:
		return "stuck"
	case exitCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// pollPolicy bounds a phase's poll loop. MaxPolls of zero means the phase
// finishes in enter and is never polled.
type pollPolicy struct {
	Interval time.Duration
	MaxPolls int
}

// phase is one workflow step. The driver calls enter, then poll every
// Interval until it reports done or stuck or MaxPolls is reached, then
// exit with the reason the loop ended.
type phase interface {
	id() session.Phase
	enter(ctx context.Context, r *run) error
	policy(r *run) pollPolicy
	poll(ctx context.Context, r *run) (pollState, error)
	exit(ctx context.Context, r *run, reason exitReason) error
}

// run is the state one sequencer carries through the phases.
type run struct {
	scanID   string
	ownerID  string
	target   string
	baseURL  string
	loginURL string
	cookies  []authctx.Cookie

	actx        *authctx.Context
	spiderID    string
	ascanID     string
	ajaxSkipped bool
	urlsFound   int

	// Poll bookkeeping for the current phase.
	pollN     int
	lastPct   int
	unchanged int

	raw    []engine.Alert
	report []byte
	aggs   []*alerts.Aggregate

	rep    *reporter
	logger *slog.Logger
}

// oneShot supplies the poll half of the contract for phases that finish
// in enter.
type oneShot struct{}

func (oneShot) policy(*run) pollPolicy { return pollPolicy{} }

func (oneShot) poll(context.Context, *run) (pollState, error) { return pollDone, nil }

func (oneShot) exit(context.Context, *run, exitReason) error { return nil }

// maxPolls is how many polls of interval fit into limit, at least one.
func maxPolls(limit, interval time.Duration) int {
	if interval <= 0 {
		return 1
	}
	n := int((limit + interval - 1) / interval)
	return max(n, 1)
}

// minutes rounds d up to whole minutes, at least one, for engine options
// expressed in minutes.
func minutes(d time.Duration) int {
	return max(int((d+time.Minute-1)/time.Minute), 1)
}

// scale maps pct (0-100) into [lo, hi].
func scale(pct, lo, hi int) int {
	pct = min(max(pct, 0), 100)
	return lo + pct*(hi-lo)/100
}

// ----------------------------------------------------------------------------
// configuring
// ----------------------------------------------------------------------------

type configuringPhase struct {
	oneShot
	s *Service
}

func (configuringPhase) id() session.Phase { return session.PhaseConfiguring }

func (p configuringPhase) enter(ctx context.Context, r *run) error {
	if err := r.rep.report(ctx, session.PhaseConfiguring, 5, "Configuring authentication context", nil); err != nil {
		return err
	}
	// Cleanup targets these names even if creation fails halfway.
	r.actx = &authctx.Context{
		Name:     authctx.ContextName(r.scanID),
		RuleName: authctx.RuleName(r.scanID),
	}
	actx, err := p.s.configurator.CreateContext(ctx, r.target, r.scanID)
	if actx != nil {
		r.actx = actx
	}
	if err != nil {
		return err
	}
	if err := p.s.configurator.InjectCookies(ctx, actx.RuleName, r.cookies); err != nil {
		return err
	}
	return r.rep.report(ctx, session.PhaseConfiguring, 5, "Authentication context ready", func(s *session.Session) {
		s.ContextID = actx.ID
	})
}

// ----------------------------------------------------------------------------
// authenticating
// ----------------------------------------------------------------------------

type authenticatingPhase struct {
	oneShot
	s *Service
}

func (authenticatingPhase) id() session.Phase { return session.PhaseAuthenticating }

// enter primes the engine's site tree with the target (and login page)
// through the cookie rule. Failures here only warn: the crawlers will
// reach the same pages.
func (p authenticatingPhase) enter(ctx context.Context, r *run) error {
	if err := r.rep.report(ctx, session.PhaseAuthenticating, 10, "Verifying authenticated access", nil); err != nil {
		return err
	}
	urls := []string{r.target}
	if r.loginURL != "" && r.loginURL != r.target {
		urls = append(urls, r.loginURL)
	}
	for _, u := range urls {
		if err := p.s.do(ctx, func() error { return p.s.engine.AccessURL(ctx, u) }); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.rep.warn(ctx, fmt.Sprintf("Could not prime %s through the engine", u))
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// processing
// ----------------------------------------------------------------------------

type processingPhase struct {
	oneShot
	s *Service
}

func (processingPhase) id() session.Phase { return session.PhaseProcessing }

func (p processingPhase) enter(ctx context.Context, r *run) error {
	if err := r.rep.report(ctx, session.PhaseProcessing, 92, "Processing results", nil); err != nil {
		return err
	}

	err := p.s.do(ctx, func() error {
		raw, err := p.s.engine.AllAlerts(ctx, r.baseURL, p.s.cfg.AlertPageSize)
		r.raw = raw
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: fetch alerts: %w", ErrEngineUnavailable, err)
	}

	err = p.s.do(ctx, func() error {
		report, err := p.s.engine.HTMLReport(ctx)
		r.report = report
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.report = nil
		r.rep.warn(ctx, "HTML report could not be generated")
	}

	r.aggs = alerts.GroupByName(alerts.FromEngine(r.raw))
	counts := alerts.CountRisks(r.aggs)
	total := alerts.TotalOccurrences(r.aggs)
	summaries := alerts.Summaries(r.aggs)

	r.logger.Info("alerts aggregated",
		slog.Int("raw", len(r.raw)),
		slog.Int("grouped", len(r.aggs)),
		slog.Int("high", counts.High),
	)
	return r.rep.report(ctx, session.PhaseProcessing, 92, fmt.Sprintf("Found %d distinct alerts", len(r.aggs)), func(s *session.Session) {
		s.AlertsFound = len(r.aggs)
		s.RiskCounts = counts
		s.TotalOccurrences = total
		s.Alerts = summaries
	})
}

// ----------------------------------------------------------------------------
// saving
// ----------------------------------------------------------------------------

type savingPhase struct {
	oneShot
	s *Service
}

func (savingPhase) id() session.Phase { return session.PhaseSaving }

// findingsDocument is the archived detailed-findings record.
type findingsDocument struct {
	ScanID           string            `json:"scanId"`
	TargetURL        string            `json:"targetUrl"`
	GeneratedAt      time.Time         `json:"generatedAt"`
	URLsFound        int               `json:"urlsFound"`
	RiskCounts       alerts.RiskCounts `json:"riskCounts"`
	TotalOccurrences int               `json:"totalOccurrences"`
	Alerts           []alerts.Detailed `json:"alerts"`
}

func (p savingPhase) enter(ctx context.Context, r *run) error {
	if err := r.rep.report(ctx, session.PhaseSaving, 95, "Saving results", nil); err != nil {
		return err
	}

	meta := map[string]string{"scanId": r.scanID, "ownerId": r.ownerID}
	var artifacts []artifact

	if len(r.report) > 0 {
		artifacts = append(artifacts, artifact{
			data:        r.report,
			filename:    fmt.Sprintf("%s-%s-report.html", defaults.ToolName, r.scanID),
			contentType: defaults.ContentTypeHTML,
		})
	}

	doc, err := jsonutil.MarshalIndent(findingsDocument{
		ScanID:           r.scanID,
		TargetURL:        r.target,
		GeneratedAt:      p.s.now().UTC(),
		URLsFound:        r.urlsFound,
		RiskCounts:       alerts.CountRisks(r.aggs),
		TotalOccurrences: alerts.TotalOccurrences(r.aggs),
		Alerts:           alerts.Details(r.aggs),
	}, "  ")
	if err != nil {
		return fmt.Errorf("%w: encode findings: %w", ErrSave, err)
	}
	artifacts = append(artifacts, artifact{
		data:        doc,
		filename:    fmt.Sprintf("%s-%s-findings.json", defaults.ToolName, r.scanID),
		contentType: defaults.ContentTypeJSON,
	})

	var files []blobstore.FileRef
	for _, b := range artifacts {
		ref, err := p.s.blobs.Put(ctx, b.data, b.filename, b.contentType, meta)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s: %w", ErrSave, b.filename, err)
		}
		files = append(files, ref)
	}

	return r.rep.report(ctx, session.PhaseSaving, 95, "Results saved", func(s *session.Session) {
		s.ReportFiles = files
	})
}

type artifact struct {
	data        []byte
	filename    string
	contentType string
}
