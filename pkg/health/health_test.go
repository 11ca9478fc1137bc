package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	failures int32
	calls    atomic.Int32
	block    bool
}

func (f *fakeProbe) BaseURL() string { return "http://engine:8080" }

func (f *fakeProbe) Version(ctx context.Context) (string, error) {
	n := f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if n <= f.failures {
		return "", errors.New("connection refused")
	}
	return "2.15.0", nil
}

func TestChecker_Healthy(t *testing.T) {
	c := NewChecker(&fakeProbe{}, 0)
	res, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.IsHealthy())
	assert.Equal(t, "2.15.0", res.Version)
	assert.Equal(t, "http://engine:8080", res.Endpoint)
}

func TestChecker_Unhealthy(t *testing.T) {
	c := NewChecker(&fakeProbe{failures: 1}, 0)
	res, err := c.Check(context.Background())
	require.ErrorIs(t, err, ErrUnhealthy)
	assert.False(t, res.IsHealthy())
	assert.Contains(t, res.Message, "connection refused")
}

func TestChecker_TimeoutBoundsProbe(t *testing.T) {
	c := NewChecker(&fakeProbe{block: true}, 20*time.Millisecond)
	start := time.Now()
	_, err := c.Check(context.Background())
	require.ErrorIs(t, err, ErrUnhealthy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestChecker_WaitReady(t *testing.T) {
	p := &fakeProbe{failures: 2}
	c := NewChecker(p, 0)
	res, err := c.WaitReady(context.Background(), time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, res.IsHealthy())
}

func TestChecker_WaitReadyTimesOut(t *testing.T) {
	c := NewChecker(&fakeProbe{failures: 1 << 20}, 0)
	_, err := c.WaitReady(context.Background(), 5*time.Millisecond, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}
