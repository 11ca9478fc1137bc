package orchestrator

import (
	"fmt"

	"github.com/ssdt/authscan/pkg/session"
)

var allowedTransitions = map[session.Phase]map[session.Phase]struct{}{
	session.PhaseQueued: {
		session.PhaseConfiguring: {},
		session.PhaseFailed:      {},
		session.PhaseStopped:     {},
	},
	session.PhaseConfiguring: {
		session.PhaseAuthenticating: {},
		session.PhaseFailed:         {},
		session.PhaseStopped:        {},
	},
	session.PhaseAuthenticating: {
		session.PhaseSpidering: {},
		session.PhaseFailed:    {},
		session.PhaseStopped:   {},
	},
	session.PhaseSpidering: {
		session.PhaseAjaxSpider:  {},
		session.PhasePassiveScan: {},
		session.PhaseFailed:      {},
		session.PhaseStopped:     {},
	},
	session.PhaseAjaxSpider: {
		session.PhasePassiveScan: {},
		session.PhaseFailed:      {},
		session.PhaseStopped:     {},
	},
	session.PhasePassiveScan: {
		session.PhaseActiveScan: {},
		session.PhaseFailed:     {},
		session.PhaseStopped:    {},
	},
	session.PhaseActiveScan: {
		session.PhaseProcessing: {},
		session.PhaseFailed:     {},
		session.PhaseStopped:    {},
	},
	session.PhaseProcessing: {
		session.PhaseSaving:  {},
		session.PhaseFailed:  {},
		session.PhaseStopped: {},
	},
	session.PhaseSaving: {
		session.PhaseCompleted: {},
		session.PhaseFailed:    {},
		session.PhaseStopped:   {},
	},
	session.PhaseCompleted: {},
	session.PhaseFailed:    {},
	session.PhaseStopped:   {},
}

// validateTransition reports whether a session may move from one phase to
// another. Staying in the same phase is always allowed.
func validateTransition(from, to session.Phase) error {
	next, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("invalid phase: %q", from)
	}
	if _, ok := allowedTransitions[to]; !ok {
		return fmt.Errorf("invalid phase: %q", to)
	}
	if from == to {
		return nil
	}
	if _, ok := next[to]; !ok {
		return fmt.Errorf("invalid phase transition: %s -> %s", from, to)
	}
	return nil
}
