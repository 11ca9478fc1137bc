// Package retry wraps transition-initiating engine calls with bounded
// exponential backoff.
//
// Only errors accepted by Config.Retryable are retried; everything else is
// returned on the first failure. High-frequency status polls are never
// wrapped: the next poll is the retry.
//
// Usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    _, err := client.SpiderScan(ctx, opts)
//	    return err
//	})
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ssdt/authscan/pkg/defaults"
	"github.com/ssdt/authscan/pkg/duration"
)

// Strategy defines the backoff algorithm.
type Strategy int

const (
	// Exponential doubles the delay each attempt: InitDelay * 2^attempt.
	Exponential Strategy = iota
	// Constant uses the same delay between every attempt.
	Constant
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // Total attempts (including the first). 0 means no-op.
	InitDelay   time.Duration // Base delay before the first retry.
	MaxDelay    time.Duration // Upper bound on any single delay.
	Strategy    Strategy

	// Retryable reports whether err is worth another attempt. nil retries
	// every error.
	Retryable func(error) bool

	// OnRetry is called before each sleep with the failed attempt number
	// (1-based), its error, and the delay about to be taken.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns 3 attempts, exponential backoff from 1s, retrying
// only transient network conditions.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: defaults.RetryAttempts,
		InitDelay:   duration.RetryBase,
		MaxDelay:    duration.RetryMax,
		Strategy:    Exponential,
		Retryable:   IsTransient,
	}
}

// StopError wraps an error to signal that retrying should stop immediately.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so that Do returns it without further retries.
func Stop(err error) error {
	return &StopError{Err: err}
}

// sleeper lets tests observe delays without waiting.
type sleeper interface {
	sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes fn up to cfg.MaxAttempts times, sleeping between retryable
// failures. It returns nil on the first success, the first non-retryable
// error, or the last error once attempts are exhausted. A cancelled context
// ends the loop with ctx.Err().
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return doWithSleeper(ctx, cfg, fn, realSleeper{})
}

func doWithSleeper(ctx context.Context, cfg Config, fn func() error, s sleeper) error {
	if cfg.MaxAttempts <= 0 {
		return nil
	}

	var lastErr error
	for attempt := range cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var stop *StopError
		if errors.As(lastErr, &stop) {
			return stop.Err
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxAttempts-1 {
			delay := CalcDelay(cfg, attempt)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt+1, lastErr, delay)
			}
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// CalcDelay computes the sleep duration after a failed attempt (0-indexed).
// The result is never negative and never exceeds MaxDelay.
func CalcDelay(cfg Config, attempt int) time.Duration {
	if cfg.InitDelay <= 0 {
		return 0
	}
	var delay time.Duration
	switch cfg.Strategy {
	case Constant:
		delay = cfg.InitDelay
	default:
		f := float64(cfg.InitDelay) * math.Pow(2, float64(attempt))
		if math.IsInf(f, 0) || f >= float64(math.MaxInt64) {
			delay = cfg.MaxDelay
		} else {
			delay = time.Duration(f)
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
