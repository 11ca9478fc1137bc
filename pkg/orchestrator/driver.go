package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runPhase drives one phase through enter, the poll loop and exit. The
// cancellation token (the run context plus the persisted status) is
// checked before enter and before every poll.
func (s *Service) runPhase(ctx context.Context, r *run, p phase) (err error) {
	name := string(p.id())
	ctx, span := s.tracer.Start(ctx, "phase."+name, trace.WithAttributes(
		attribute.String("scan_id", r.scanID),
		attribute.String("phase", name),
	))
	start := time.Now()
	reason := exitDone
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.PhaseDone(name, reason.String(), time.Since(start))
		r.logger.Debug("phase finished",
			slog.String("phase", name),
			slog.String("reason", reason.String()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}()

	if err := s.checkCancel(ctx, r); err != nil {
		reason = exitCancelled
		return err
	}
	r.logger.Info("phase started", slog.String("phase", name))
	if err := p.enter(ctx, r); err != nil {
		reason = classify(err)
		return err
	}

	pol := p.policy(r)
	if pol.MaxPolls > 0 {
		r.pollN = 0
		reason, err = s.pollLoop(ctx, r, p, pol)
	}
	if reason == exitCancelled {
		return err
	}
	if exitErr := p.exit(ctx, r, reason); exitErr != nil && err == nil {
		err = exitErr
		reason = classify(err)
	}
	return err
}

// pollLoop polls until the phase is done or stuck, MaxPolls is reached,
// or the run is cancelled. Status polls are never retried: the next poll
// is the retry. MaxPollErrors consecutive failures end the phase.
func (s *Service) pollLoop(ctx context.Context, r *run, p phase, pol pollPolicy) (exitReason, error) {
	failures := 0
	for r.pollN < pol.MaxPolls {
		if err := s.sleep(ctx, pol.Interval); err != nil {
			return exitCancelled, err
		}
		if err := s.checkCancel(ctx, r); err != nil {
			return exitCancelled, err
		}
		r.pollN++

		state, err := p.poll(ctx, r)
		if err != nil {
			if errors.Is(err, errStopped) || ctx.Err() != nil {
				return exitCancelled, cancelCause(ctx, err)
			}
			failures++
			s.metrics.PollError(string(p.id()))
			r.logger.Warn("status poll failed",
				slog.String("phase", string(p.id())),
				slog.Int("consecutive", failures),
				slog.String("error", err.Error()),
			)
			if failures >= s.cfg.MaxPollErrors {
				return exitError, fmt.Errorf("%w: %s status failed %d times: %w", ErrEngineUnavailable, p.id(), failures, err)
			}
			continue
		}
		failures = 0

		switch state {
		case pollDone:
			return exitDone, nil
		case pollStuck:
			return exitStuck, nil
		}
	}
	return exitCeiling, nil
}

// checkCancel returns errStopped once the run context is cancelled or the
// stored session has reached a terminal status.
func (s *Service) checkCancel(ctx context.Context, r *run) error {
	if ctx.Err() != nil {
		return errStopped
	}
	stopped, err := r.rep.stopped(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return errStopped
		}
		// A store hiccup is not a stop request; the next write will tell.
		r.logger.Warn("cancellation check", slog.String("error", err.Error()))
		return nil
	}
	if stopped {
		return errStopped
	}
	return nil
}

func cancelCause(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errStopped
	}
	return err
}

func classify(err error) exitReason {
	if errors.Is(err, errStopped) || errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	return exitError
}
