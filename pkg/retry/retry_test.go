package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleeper records delays without actually sleeping.
type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.delays = append(f.delays, d)
	return nil
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	err := doWithSleeper(context.Background(), DefaultConfig(), func() error {
		return nil
	}, s)
	require.NoError(t, err)
	assert.Empty(t, s.delays)
}

func TestDo_RetriesTransientWithDoublingDelay(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := &fakeSleeper{}

	err := doWithSleeper(context.Background(), DefaultConfig(), func() error {
		if calls.Add(1) < 3 {
			return syscall.ECONNRESET
		}
		return nil
	}, s)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.delays)
}

func TestDo_NonTransientFailsImmediately(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := &fakeSleeper{}
	sentinel := errors.New("engine: bad request")

	err := doWithSleeper(context.Background(), DefaultConfig(), func() error {
		calls.Add(1)
		return sentinel
	}, s)

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, s.delays)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	var retried []int

	cfg := DefaultConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}
	err := doWithSleeper(context.Background(), cfg, func() error {
		return fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
	}, s)

	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Len(t, s.delays, 2, "no sleep after the last attempt")
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopError(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	sentinel := errors.New("permanent")
	cfg := Config{MaxAttempts: 5, InitDelay: time.Second}

	err := doWithSleeper(context.Background(), cfg, func() error {
		return Stop(sentinel)
	}, s)

	assert.Same(t, sentinel, err)
	assert.Empty(t, s.delays)
}

func TestDo_RespectsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, DefaultConfig(), func() error {
		t.Fatal("fn should not be called when context is cancelled")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_ZeroAttemptsIsNoop(t *testing.T) {
	t.Parallel()
	err := Do(context.Background(), Config{}, func() error {
		t.Fatal("fn should not be called")
		return nil
	})
	assert.NoError(t, err)
}

func TestCalcDelay(t *testing.T) {
	t.Parallel()

	cfg := Config{InitDelay: time.Second, MaxDelay: 30 * time.Second}
	assert.Equal(t, time.Second, CalcDelay(cfg, 0))
	assert.Equal(t, 2*time.Second, CalcDelay(cfg, 1))
	assert.Equal(t, 4*time.Second, CalcDelay(cfg, 2))
	assert.Equal(t, 30*time.Second, CalcDelay(cfg, 10))

	for _, attempt := range []int{62, 63, 64, 1000, math.MaxInt32} {
		d := CalcDelay(cfg, attempt)
		assert.True(t, d > 0 && d <= cfg.MaxDelay, "attempt %d: %v", attempt, d)
	}

	cfg.Strategy = Constant
	assert.Equal(t, time.Second, CalcDelay(cfg, 7))

	assert.Equal(t, time.Duration(0), CalcDelay(Config{MaxDelay: time.Second}, 3))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{"refused", fmt.Errorf("post: %w", syscall.ECONNREFUSED), true},
		{"dns", &net.DNSError{Err: "no such host", Name: "engine"}, true},
		{"net timeout", timeoutErr{}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"hang up", io.ErrUnexpectedEOF, true},
		{"message timeout", errors.New("gateway Timeout from proxy"), true},
		{"socket hang up text", errors.New("socket hang up"), true},
		{"cancelled", context.Canceled, false},
		{"api error", errors.New("engine: context already exists"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
