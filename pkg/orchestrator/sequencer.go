package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ssdt/authscan/pkg/duration"
	"github.com/ssdt/authscan/pkg/retry"
	"github.com/ssdt/authscan/pkg/session"
)

// phases returns the workflow in order.
func (s *Service) phases() []phase {
	ps := []phase{
		configuringPhase{s: s},
		authenticatingPhase{s: s},
		spiderPhase{s: s},
	}
	if !s.cfg.SkipAjaxSpider {
		ps = append(ps, ajaxPhase{s: s})
	}
	return append(ps,
		passivePhase{s: s},
		activePhase{s: s},
		processingPhase{s: s},
		savingPhase{s: s},
	)
}

// execute is the body of a scan goroutine.
func (s *Service) execute(ctx context.Context, r *run) {
	defer s.wg.Done()
	defer s.release(r.scanID)

	ctx, span := s.tracer.Start(ctx, "scan")
	defer span.End()

	err := s.preflight(ctx, r)
	if err == nil {
		for _, p := range s.phases() {
			if err = s.runPhase(ctx, r, p); err != nil {
				break
			}
		}
	}

	// Final writes and cleanup must outlive a cancelled run.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), duration.Cleanup)
	defer cancel()

	warnings := s.cleanup(bg, r)

	var status session.Status
	switch {
	case err == nil:
		status = s.complete(bg, r)
	case errors.Is(err, errStopped) || errors.Is(err, context.Canceled) || ctx.Err() != nil:
		status = s.interrupted(bg, r)
	default:
		status = s.fail(bg, r, err)
	}
	r.rep.warn(bg, warnings...)

	s.metrics.ScanFinished(string(status))
	r.logger.Info("scan finished", slog.String("status", string(status)))
}

// preflight checks the engine answers before anything is configured.
func (s *Service) preflight(ctx context.Context, r *run) error {
	res, err := s.checker.Check(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	r.logger.Debug("engine reachable", slog.String("version", res.Version), slog.Duration("latency", res.Latency))
	return nil
}

// complete records success. A stop that raced the last phase wins.
func (s *Service) complete(ctx context.Context, r *run) session.Status {
	msg := fmt.Sprintf("Scan completed: %d distinct alerts", len(r.aggs))
	err := r.rep.finish(ctx, session.StatusCompleted, session.PhaseCompleted, msg, func(sess *session.Session) {
		sess.Progress = 100
	})
	if err != nil {
		return s.finalStatus(ctx, r, session.StatusCompleted, err)
	}
	return session.StatusCompleted
}

// fail records err as a failure with a public message. The full error is
// logged only.
func (s *Service) fail(ctx context.Context, r *run, err error) session.Status {
	r.logger.Error("scan failed", slog.String("error", err.Error()))
	msg := publicMessage(err)
	ferr := r.rep.finish(ctx, session.StatusFailed, session.PhaseFailed, msg, func(sess *session.Session) {
		sess.Error = &msg
	})
	if ferr != nil {
		return s.finalStatus(ctx, r, session.StatusFailed, ferr)
	}
	return session.StatusFailed
}

// interrupted handles a run that ended because it was cancelled. When the
// cancellation was local (service shutdown) rather than a recorded stop,
// the engine work is halted and the session marked stopped here.
func (s *Service) interrupted(ctx context.Context, r *run) session.Status {
	err := r.rep.finish(ctx, session.StatusStopped, session.PhaseStopped, "Scan interrupted: service shutting down", nil)
	if err != nil {
		return s.finalStatus(ctx, r, session.StatusStopped, err)
	}
	r.rep.warn(ctx, s.haltEngine(ctx)...)
	return session.StatusStopped
}

// finalStatus reads back the status someone else recorded.
func (s *Service) finalStatus(ctx context.Context, r *run, fallback session.Status, err error) session.Status {
	if !errors.Is(err, errStopped) {
		r.logger.Error("record final status", slog.String("error", err.Error()))
	}
	sess, gerr := s.sessions.Get(ctx, r.scanID)
	if gerr != nil {
		return fallback
	}
	return sess.Status
}

// cleanup removes the engine context and cookie rule. Failures are
// returned as warnings.
func (s *Service) cleanup(ctx context.Context, r *run) []string {
	if r.actx == nil {
		return nil
	}
	if err := s.configurator.Remove(ctx, r.actx); err != nil {
		r.logger.Warn("cleanup", slog.String("error", err.Error()))
		return []string{"Engine cleanup incomplete: context or cookie rule may remain"}
	}
	r.logger.Debug("engine context removed", slog.String("context", r.actx.Name))
	return nil
}

// do runs a transition call under the retry policy.
func (s *Service) do(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, s.retry, fn)
}
