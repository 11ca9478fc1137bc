package orchestrator

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ssdt/authscan/pkg/session"
)

func TestValidateTransition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to session.Phase
		ok       bool
	}{
		{session.PhaseQueued, session.PhaseConfiguring, true},
		{session.PhaseSpidering, session.PhaseAjaxSpider, true},
		{session.PhaseSpidering, session.PhasePassiveScan, true},
		{session.PhaseActiveScan, session.PhaseActiveScan, true},
		{session.PhaseSaving, session.PhaseCompleted, true},
		{session.PhaseActiveScan, session.PhaseStopped, true},
		{session.PhaseQueued, session.PhaseFailed, true},
		{session.PhaseActiveScan, session.PhaseSpidering, false},
		{session.PhaseConfiguring, session.PhaseActiveScan, false},
		{session.PhaseCompleted, session.PhaseFailed, false},
		{session.PhaseStopped, session.PhaseActiveScan, false},
		{session.Phase("bogus"), session.PhaseConfiguring, false},
		{session.PhaseQueued, session.Phase("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			err := validateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTransitions_EveryPhaseCanStopAndFail(t *testing.T) {
	t.Parallel()
	for from, next := range allowedTransitions {
		switch from {
		case session.PhaseCompleted, session.PhaseFailed, session.PhaseStopped:
			assert.Empty(t, next, "terminal phase %s has exits", from)
			continue
		}
		assert.Contains(t, next, session.PhaseStopped, from)
		assert.Contains(t, next, session.PhaseFailed, from)
	}
}

func TestPublicMessage(t *testing.T) {
	t.Parallel()
	leak := errors.New(`engine: ascan.scan: status 500: java.lang.NullPointerException (internal_error)`)
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: %w", ErrEngineUnavailable, leak), "Scanning engine is unavailable"},
		{fmt.Errorf("%w: add cookie rule: %w", ErrConfiguration, leak), "Failed to configure authenticated scan"},
		{fmt.Errorf("%w: findings.json: %w", ErrSave, leak), "Failed to save scan results"},
		{leak, "Scan failed due to an internal error"},
	}
	for _, tt := range tests {
		got := publicMessage(tt.err)
		assert.Equal(t, tt.want, got)
		assert.NotContains(t, got, "NullPointer")
	}
}

func TestMaxPolls(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 300, maxPolls(10*time.Minute, 2*time.Second))
	assert.Equal(t, 4, maxPolls(7*time.Second, 2*time.Second))
	assert.Equal(t, 1, maxPolls(0, time.Second))
	assert.Equal(t, 1, maxPolls(time.Minute, 0))
}

func TestScale(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 45, scale(0, 45, 90))
	assert.Equal(t, 67, scale(50, 45, 90))
	assert.Equal(t, 90, scale(100, 45, 90))
	assert.Equal(t, 90, scale(250, 45, 90))
	assert.Equal(t, 15, scale(-3, 15, 30))
}

func TestMinutes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, minutes(0))
	assert.Equal(t, 1, minutes(30*time.Second))
	assert.Equal(t, 2, minutes(61*time.Second))
	assert.Equal(t, 60, minutes(time.Hour))
}
