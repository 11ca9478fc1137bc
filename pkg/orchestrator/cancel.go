package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ssdt/authscan/pkg/authctx"
	"github.com/ssdt/authscan/pkg/duration"
	"github.com/ssdt/authscan/pkg/session"
)

// errAlreadyTerminal aborts the stop write when the scan finished first.
var errAlreadyTerminal = errors.New("orchestrator: scan already finished")

// Stop cancels a scan. The stopped status is written first so that no
// progress lands afterwards, then the local sequencer (if any) is
// cancelled, the engine's crawlers and attacker are halted and the cookie
// rule is removed. Engine failures become warnings on the session.
// Stopping a finished scan is acknowledged without side effects.
func (s *Service) Stop(ctx context.Context, scanID, ownerID string) (StopResult, error) {
	cur, err := s.Status(ctx, scanID, ownerID)
	if err != nil {
		return StopResult{}, err
	}
	if cur.Status.Terminal() {
		return StopResult{ScanID: scanID, Status: cur.Status, AlreadyFinished: true}, nil
	}

	logger := s.logger.With(slog.String("scan_id", scanID))
	stored, err := s.sessions.Update(ctx, scanID, func(sess *session.Session) error {
		if sess.Status.Terminal() {
			return errAlreadyTerminal
		}
		now := s.now().UTC()
		sess.Status = session.StatusStopped
		sess.Phase = session.PhaseStopped
		sess.Message = "Scan stopped by user"
		sess.CompletedAt = &now
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		fin, gerr := s.sessions.Get(ctx, scanID)
		if gerr != nil {
			return StopResult{}, gerr
		}
		return StopResult{ScanID: scanID, Status: fin.Status, AlreadyFinished: true}, nil
	}
	if err != nil {
		return StopResult{}, err
	}

	local := s.cancelLocal(scanID)
	logger.Info("scan stop recorded", slog.Bool("local", local), slog.String("phase", string(cur.Phase)))

	// Engine calls run on their own deadline; the caller's request may be
	// short-lived.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), duration.Cleanup)
	defer cancel()

	warnings := s.haltEngine(hctx)
	if err := s.configurator.RemoveRule(hctx, authctx.RuleName(scanID)); err != nil {
		logger.Warn("remove cookie rule on stop", slog.String("error", err.Error()))
		warnings = append(warnings, "Cookie rule could not be removed")
	}
	if len(warnings) > 0 {
		rep := &reporter{store: s.sessions, scanID: scanID, logger: logger, now: s.now}
		rep.warn(hctx, warnings...)
	}

	return StopResult{ScanID: scanID, Status: stored.Status}, nil
}

// haltEngine asks the crawlers and the attacker to stop everything they are
// running. The engine offers no per-scan stop for the JS crawler, and
// spider ids are not persisted, so these are global.
func (s *Service) haltEngine(ctx context.Context) []string {
	var warnings []string
	steps := []struct {
		what string
		fn   func(context.Context) error
	}{
		{"spider", s.engine.SpiderStopAll},
		{"AJAX spider", s.engine.AjaxSpiderStop},
		{"active scan", s.engine.AscanStopAll},
	}
	for _, st := range steps {
		start := time.Now()
		if err := st.fn(ctx); err != nil {
			s.logger.Warn("halt engine",
				slog.String("component", st.what),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("error", err.Error()),
			)
			warnings = append(warnings, "Could not stop "+st.what)
		}
	}
	return warnings
}
