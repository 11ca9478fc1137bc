package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recording(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ScanStarted()
	m.ScanStarted()
	m.ScanFinished("completed")
	m.PollError("spidering")
	m.StuckScan()
	m.Retry()
	m.EngineCall("ascan.status", nil, 10*time.Millisecond)
	m.EngineCall("ascan.status", errors.New("boom"), 10*time.Millisecond)
	m.PhaseDone("spidering", "done", 3*time.Second)

	assert.Equal(t, 2.0, value(t, m, "authscan_scans_started_total"))
	assert.Equal(t, 1.0, value(t, m, "authscan_active_runs"))
	assert.Equal(t, 1.0, value(t, m, "authscan_scans_finished_total", "status", "completed"))
	assert.Equal(t, 1.0, value(t, m, "authscan_poll_errors_total", "phase", "spidering"))
	assert.Equal(t, 1.0, value(t, m, "authscan_stuck_scans_total"))
	assert.Equal(t, 1.0, value(t, m, "authscan_engine_calls_total", "endpoint", "ascan.status", "outcome", "error"))
	assert.Equal(t, 1.0, value(t, m, "authscan_engine_calls_total", "endpoint", "ascan.status", "outcome", "ok"))
}

// value returns the counter or gauge sample of name whose labels include
// the given key/value pairs.
func value(t *testing.T, m *Metrics, name string, labels ...string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, metric := range f.GetMetric() {
			got := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for i := 0; i+1 < len(labels); i += 2 {
				if got[labels[i]] != labels[i+1] {
					continue next
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.ScanStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "authscan_scans_started_total 1")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ScanStarted()
		m.ScanFinished("failed")
		m.PhaseDone("x", "done", time.Second)
		m.PollError("x")
		m.StuckScan()
		m.Retry()
		m.EngineCall("x", nil, 0)
	})
	assert.Nil(t, m.Registry())
}
