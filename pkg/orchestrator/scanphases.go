package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ssdt/authscan/pkg/engine"
	"github.com/ssdt/authscan/pkg/session"
)

// setOptions applies engine options; failures only warn since the engine
// falls back to its own defaults.
func (s *Service) setOptions(ctx context.Context, r *run, component string, set func(context.Context, string, int) error, opts []option) {
	var failed []string
	for _, o := range opts {
		if err := set(ctx, o.name, o.value); err != nil {
			r.logger.Warn("set engine option",
				slog.String("component", component),
				slog.String("option", o.name),
				slog.String("error", err.Error()),
			)
			failed = append(failed, o.name)
		}
	}
	if len(failed) > 0 && ctx.Err() == nil {
		r.rep.warn(ctx, fmt.Sprintf("Some %s options were not applied: %v", component, failed))
	}
}

type option struct {
	name  string
	value int
}

// ----------------------------------------------------------------------------
// spidering: 15-30
// ----------------------------------------------------------------------------

type spiderPhase struct{ s *Service }

func (spiderPhase) id() session.Phase { return session.PhaseSpidering }

func (p spiderPhase) enter(ctx context.Context, r *run) error {
	if err := r.rep.report(ctx, session.PhaseSpidering, 15, "Starting spider", nil); err != nil {
		return err
	}
	cfg := p.s.cfg
	p.s.setOptions(ctx, r, "spider", p.s.engine.SpiderSetOption, []option{
		{engine.SpiderMaxDepth, cfg.SpiderMaxDepth},
		{engine.SpiderMaxDuration, minutes(cfg.SpiderMaxDuration)},
		{engine.SpiderMaxChildren, cfg.SpiderMaxChildren},
		{engine.SpiderThreadCount, cfg.SpiderThreads},
	})
	err := p.s.do(ctx, func() error {
		id, err := p.s.engine.SpiderScan(ctx, r.target, r.actx.Name, cfg.SpiderMaxChildren)
		r.spiderID = id
		return err
	})
	if err != nil {
		return startFailed(ctx, "spider", err)
	}
	return nil
}

func (p spiderPhase) policy(*run) pollPolicy {
	return pollPolicy{
		Interval: p.s.cfg.SpiderPoll,
		MaxPolls: maxPolls(p.s.cfg.SpiderMaxDuration+p.s.cfg.CeilingSlack, p.s.cfg.SpiderPoll),
	}
}

func (p spiderPhase) poll(ctx context.Context, r *run) (pollState, error) {
	pct, err := p.s.engine.SpiderStatus(ctx, r.spiderID)
	if err != nil {
		return pollContinue, err
	}
	if err := r.rep.report(ctx, session.PhaseSpidering, scale(pct, 15, 30), fmt.Sprintf("Spidering: %d%%", pct), nil); err != nil {
		return pollContinue, err
	}
	if pct >= 100 {
		return pollDone, nil
	}
	return pollContinue, nil
}

func (p spiderPhase) exit(ctx context.Context, r *run, reason exitReason) error {
	if reason != exitDone && reason != exitCeiling {
		return nil
	}
	if reason == exitCeiling {
		if err := p.s.engine.SpiderStopAll(ctx); err != nil {
			r.logger.Warn("stop spider at ceiling", slog.String("error", err.Error()))
		}
		r.rep.warn(ctx, "Spider reached its time limit and was stopped")
	}
	urls, err := p.s.engine.SpiderResults(ctx, r.spiderID)
	if err != nil {
		r.logger.Warn("spider results", slog.String("error", err.Error()))
	} else {
		r.urlsFound = len(urls)
	}
	return r.rep.report(ctx, session.PhaseSpidering, 30, fmt.Sprintf("Spider found %d URLs", r.urlsFound), func(s *session.Session) {
		s.URLsFound = r.urlsFound
	})
}

// ----------------------------------------------------------------------------
// ajax_spider: 32-40
// ----------------------------------------------------------------------------

type ajaxPhase struct{ s *Service }

func (ajaxPhase) id() session.Phase { return session.PhaseAjaxSpider }

// enter starts the JS crawler. It needs a browser on the engine host; when
// it cannot start the phase is skipped with a warning.
func (p ajaxPhase) enter(ctx context.Context, r *run) error {
	if err := r.rep.report(ctx, session.PhaseAjaxSpider, 32, "Starting AJAX spider", nil); err != nil {
		return err
	}
	cfg := p.s.cfg
	p.s.setOptions(ctx, r, "ajax spider", p.s.engine.AjaxSpiderSetOption, []option{
		{engine.AjaxMaxDuration, minutes(cfg.AjaxMaxDuration)},
		{engine.AjaxMaxCrawlDepth, cfg.AjaxMaxDepth},
		{engine.AjaxNumberOfBrowsers, cfg.AjaxBrowsers},
	})
	err := p.s.do(ctx, func() error { return p.s.engine.AjaxSpiderScan(ctx, r.target, r.actx.Name) })
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("ajax spider start", slog.String("error", err.Error()))
		r.ajaxSkipped = true
		r.rep.warn(ctx, "AJAX spider could not be started; continuing without it")
	}
	return nil
}

func (p ajaxPhase) policy(r *run) pollPolicy {
	if r.ajaxSkipped {
		return pollPolicy{}
	}
	return pollPolicy{
		Interval: p.s.cfg.AjaxPoll,
		MaxPolls: maxPolls(p.s.cfg.AjaxMaxDuration+p.s.cfg.CeilingSlack, p.s.cfg.AjaxPoll),
	}
}

func (p ajaxPhase) poll(ctx context.Context, r *run) (pollState, error) {
	status, err := p.s.engine.AjaxSpiderStatus(ctx)
	if err != nil {
		return pollContinue, err
	}
	// The JS crawler reports no percentage; progress follows elapsed polls.
	limit := p.policy(r).MaxPolls
	pct := r.pollN * 100 / max(limit, 1)
	if err := r.rep.report(ctx, session.PhaseAjaxSpider, scale(pct, 32, 40), "AJAX spider "+status, nil); err != nil {
		return pollContinue, err
	}
	if status == engine.AjaxStatusStopped {
		return pollDone, nil
	}
	return pollContinue, nil
}

func (p ajaxPhase) exit(ctx context.Context, r *run, reason exitReason) error {
	if r.ajaxSkipped {
		return r.rep.report(ctx, session.PhaseAjaxSpider, 40, "AJAX spider skipped", nil)
	}
	if reason != exitDone && reason != exitCeiling {
		return nil
	}
	if reason == exitCeiling {
		if err := p.s.engine.AjaxSpiderStop(ctx); err != nil {
			r.logger.Warn("stop ajax spider at ceiling", slog.String("error", err.Error()))
		}
		r.rep.warn(ctx, "AJAX spider reached its time limit and was stopped")
	}
	n, err := p.s.engine.AjaxSpiderNumberOfResults(ctx)
	if err != nil {
		r.logger.Warn("ajax spider results", slog.String("error", err.Error()))
	} else {
		r.urlsFound += n
	}
	return r.rep.report(ctx, session.PhaseAjaxSpider, 40, fmt.Sprintf("Crawling found %d URLs", r.urlsFound), func(s *session.Session) {
		s.URLsFound = r.urlsFound
	})
}

// ----------------------------------------------------------------------------
// passive_scan: 42
// ----------------------------------------------------------------------------

type passivePhase struct{ s *Service }

func (passivePhase) id() session.Phase { return session.PhasePassiveScan }

func (passivePhase) enter(ctx context.Context, r *run) error {
	return r.rep.report(ctx, session.PhasePassiveScan, 42, "Waiting for passive scan", nil)
}

func (p passivePhase) policy(*run) pollPolicy {
	return pollPolicy{
		Interval: p.s.cfg.PassivePoll,
		MaxPolls: maxPolls(p.s.cfg.PassiveMaxDuration, p.s.cfg.PassivePoll),
	}
}

func (p passivePhase) poll(ctx context.Context, r *run) (pollState, error) {
	n, err := p.s.engine.PscanRecordsToScan(ctx)
	if err != nil {
		return pollContinue, err
	}
	if err := r.rep.report(ctx, session.PhasePassiveScan, 42, fmt.Sprintf("Passive scan: %d records remaining", n), nil); err != nil {
		return pollContinue, err
	}
	if n <= 0 {
		return pollDone, nil
	}
	return pollContinue, nil
}

func (passivePhase) exit(ctx context.Context, r *run, reason exitReason) error {
	if reason == exitCeiling {
		r.rep.warn(ctx, "Passive scan still had records pending when its time limit was reached")
	}
	return nil
}

// ----------------------------------------------------------------------------
// active_scan: 45-90
// ----------------------------------------------------------------------------

type activePhase struct{ s *Service }

func (activePhase) id() session.Phase { return session.PhaseActiveScan }

func (p activePhase) enter(ctx context.Context, r *run) error {
	if err := r.rep.report(ctx, session.PhaseActiveScan, 45, "Starting active scan", nil); err != nil {
		return err
	}
	cfg := p.s.cfg
	p.s.setOptions(ctx, r, "active scan", p.s.engine.AscanSetOption, []option{
		{engine.AscanMaxScanDuration, minutes(cfg.ActiveMaxDuration)},
		{engine.AscanMaxRuleDuration, minutes(cfg.ActiveRuleMaxDuration)},
		{engine.AscanThreadPerHost, cfg.ActiveThreadsPerHost},
		{engine.AscanDelayInMs, cfg.ActiveDelayMs},
	})
	r.lastPct, r.unchanged = -1, 0
	err := p.s.do(ctx, func() error {
		id, err := p.s.engine.AscanScan(ctx, r.target, r.actx.ID)
		r.ascanID = id
		return err
	})
	if err != nil {
		return startFailed(ctx, "active scan", err)
	}
	return nil
}

func (p activePhase) policy(*run) pollPolicy {
	return pollPolicy{
		Interval: p.s.cfg.ActivePoll,
		MaxPolls: maxPolls(p.s.cfg.ActiveMaxDuration+p.s.cfg.CeilingSlack, p.s.cfg.ActivePoll),
	}
}

// poll reads progress and the running alert count. A percentage that has
// not moved for StuckPolls consecutive polls marks the scan stuck; the
// engine can sit on one slow rule for a long time without reporting it.
func (p activePhase) poll(ctx context.Context, r *run) (pollState, error) {
	pct, err := p.s.engine.AscanStatus(ctx, r.ascanID)
	if err != nil {
		return pollContinue, err
	}
	count, cerr := p.s.engine.NumberOfAlerts(ctx, r.baseURL)
	if cerr != nil {
		r.logger.Debug("alert count", slog.String("error", cerr.Error()))
	}

	msg := fmt.Sprintf("Active scan: %d%%", pct)
	if err := r.rep.report(ctx, session.PhaseActiveScan, scale(pct, 45, 90), msg, func(s *session.Session) {
		if cerr == nil {
			s.AlertsFound = count
		}
	}); err != nil {
		return pollContinue, err
	}

	if pct >= 100 {
		return pollDone, nil
	}
	if pct == r.lastPct {
		r.unchanged++
	} else {
		r.lastPct, r.unchanged = pct, 0
	}
	if r.unchanged >= p.s.cfg.StuckPolls {
		return pollStuck, nil
	}
	return pollContinue, nil
}

func (p activePhase) exit(ctx context.Context, r *run, reason exitReason) error {
	switch reason {
	case exitStuck:
		p.s.metrics.StuckScan()
		p.stop(ctx, r)
		r.rep.warn(ctx, fmt.Sprintf("Active scan made no progress at %d%% for %d polls and was stopped early", r.lastPct, r.unchanged))
	case exitCeiling:
		p.stop(ctx, r)
		r.rep.warn(ctx, "Active scan reached its time limit and was stopped")
	case exitDone:
	default:
		return nil
	}
	return r.rep.report(ctx, session.PhaseActiveScan, 90, "Active scan finished", nil)
}

func (p activePhase) stop(ctx context.Context, r *run) {
	if err := p.s.engine.AscanStop(ctx, r.ascanID); err != nil {
		r.logger.Warn("stop active scan", slog.String("error", err.Error()))
	}
}

// startFailed wraps the failure of a transition call that exhausted its
// retries.
func startFailed(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: start %s: %w", ErrEngineUnavailable, what, err)
}
