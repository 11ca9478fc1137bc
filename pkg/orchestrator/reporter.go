package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ssdt/authscan/pkg/session"
)

// reporter is the only writer of a running scan's progress. Every write is
// a read-modify-write through the store, so a terminal status recorded by
// Stop (in any process) wins over an in-flight update.
type reporter struct {
	store  session.Store
	scanID string
	logger *slog.Logger
	now    func() time.Time
}

// report moves the session to phase with the given progress and message.
// mut, when non-nil, may set counters. Progress never decreases. It
// returns errStopped once the session is terminal.
func (r *reporter) report(ctx context.Context, phase session.Phase, progress int, message string, mut func(*session.Session)) error {
	_, err := r.store.Update(ctx, r.scanID, func(s *session.Session) error {
		if s.Status.Terminal() {
			return errStopped
		}
		if err := validateTransition(s.Phase, phase); err != nil {
			return err
		}
		s.Phase = phase
		if progress > s.Progress {
			s.Progress = min(progress, 100)
		}
		if message != "" {
			s.Message = message
		}
		if mut != nil {
			mut(s)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopped) {
		r.logger.Warn("progress write failed",
			slog.String("phase", string(phase)),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// finish writes a terminal status unless one is already recorded.
func (r *reporter) finish(ctx context.Context, status session.Status, phase session.Phase, message string, mut func(*session.Session)) error {
	_, err := r.store.Update(ctx, r.scanID, func(s *session.Session) error {
		if s.Status.Terminal() {
			return errStopped
		}
		if err := validateTransition(s.Phase, phase); err != nil {
			return err
		}
		now := r.now().UTC()
		s.Status = status
		s.Phase = phase
		s.Message = message
		s.CompletedAt = &now
		if mut != nil {
			mut(s)
		}
		return nil
	})
	return err
}

// warn appends warnings. Warnings are accepted after a terminal status so
// late cleanup failures are still recorded.
func (r *reporter) warn(ctx context.Context, warnings ...string) {
	if len(warnings) == 0 {
		return
	}
	for _, w := range warnings {
		r.logger.Warn("scan warning", slog.String("warning", w))
	}
	if _, err := r.store.Update(ctx, r.scanID, func(s *session.Session) error {
		s.Warnings = append(s.Warnings, warnings...)
		return nil
	}); err != nil {
		r.logger.Error("record warning", slog.String("error", err.Error()))
	}
}

// stopped reports whether the stored session is already terminal.
func (r *reporter) stopped(ctx context.Context) (bool, error) {
	s, err := r.store.Get(ctx, r.scanID)
	if err != nil {
		return false, fmt.Errorf("read session: %w", err)
	}
	return s.Status.Terminal(), nil
}
