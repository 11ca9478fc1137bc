// Package health checks that the scanning engine is reachable and answering
// API calls, both as a pre-flight before a scan and for /healthz.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ssdt/authscan/pkg/duration"
)

// Common errors
var (
	ErrUnhealthy = errors.New("health: engine is unhealthy")
	ErrTimeout   = errors.New("health: timed out waiting for engine")
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Result represents a health check result
type Result struct {
	Endpoint  string        `json:"endpoint"`
	Status    Status        `json:"status"`
	Version   string        `json:"version,omitempty"`
	Latency   time.Duration `json:"latencyNs,format:nano"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checkedAt"`
	Attempts  int           `json:"attempts"`
}

// IsHealthy returns true if the result indicates healthy status
func (r *Result) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Probe is the engine call used to decide health.
type Probe interface {
	Version(ctx context.Context) (string, error)
	BaseURL() string
}

// Checker performs health checks
type Checker struct {
	probe   Probe
	timeout time.Duration
}

// NewChecker creates a checker that bounds each probe by timeout
// (duration.HealthCheck when zero).
func NewChecker(p Probe, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = duration.HealthCheck
	}
	return &Checker{probe: p, timeout: timeout}
}

// Check probes the engine once. The returned error wraps ErrUnhealthy when
// the engine did not answer.
func (c *Checker) Check(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	v, err := c.probe.Version(ctx)
	res := &Result{
		Endpoint:  c.probe.BaseURL(),
		Latency:   time.Since(start),
		CheckedAt: time.Now().UTC(),
		Attempts:  1,
	}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
		return res, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	res.Status = StatusHealthy
	res.Version = v
	return res, nil
}

// WaitReady polls Check every interval until the engine is healthy or
// maxWait elapses.
func (c *Checker) WaitReady(ctx context.Context, interval, maxWait time.Duration) (*Result, error) {
	if interval <= 0 {
		interval = duration.MinPoll
	}
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	attempts := 0
	for {
		attempts++
		res, err := c.Check(ctx)
		res.Attempts = attempts
		if err == nil {
			return res, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return res, fmt.Errorf("%w after %d attempts: %w", ErrTimeout, attempts, err)
			}
			return res, ctx.Err()
		case <-time.After(interval):
		}
	}
}
