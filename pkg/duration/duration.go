// Package duration provides canonical time constants for authscan.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.EngineCall)
//	Interval: duration.SpiderPoll,
//
// Poll intervals are never sub-second; config validation enforces the same
// floor for user-supplied values.
package duration

import "time"

// ============================================================================
// ENGINE API TIMEOUTS
// ============================================================================

const (
	// EngineCall is the per-request timeout for engine control calls (30s).
	EngineCall = 30 * time.Second

	// HealthCheck bounds the engine pre-flight check (5s).
	HealthCheck = 5 * time.Second
)

// ============================================================================
// PHASE POLLING
// ============================================================================

const (
	// MinPoll is the floor for every polling interval (1s).
	MinPoll = 1 * time.Second

	// SpiderPoll is the depth-first crawler status interval (2s).
	SpiderPoll = 2 * time.Second

	// AjaxPoll is the JS-crawler status interval (5s).
	AjaxPoll = 5 * time.Second

	// PassivePoll is the passive backlog interval (3s).
	PassivePoll = 3 * time.Second

	// PassiveMax bounds the wait for the passive backlog (2min).
	PassiveMax = 2 * time.Minute

	// ActivePoll is the attacker status interval (5s).
	ActivePoll = 5 * time.Second
)

// ============================================================================
// CRAWL / ATTACK DURATIONS
// ============================================================================

const (
	// SpiderMax is the crawler's own duration cap (10min).
	SpiderMax = 10 * time.Minute

	// AjaxMax is the JS-crawler's duration cap (5min).
	AjaxMax = 5 * time.Minute

	// ActiveMax is the attacker's total duration cap (60min).
	ActiveMax = 60 * time.Minute

	// ActiveRuleMax is the attacker's per-rule duration cap (10min).
	ActiveRuleMax = 10 * time.Minute

	// CeilingSlack is added to duration-derived poll ceilings so the engine
	// gets a chance to honour its own cap first (1min).
	CeilingSlack = 1 * time.Minute
)

// ============================================================================
// RETRY / LIFECYCLE
// ============================================================================

const (
	// RetryBase is the first retry delay; it doubles per attempt (1s).
	RetryBase = 1 * time.Second

	// RetryMax caps any single retry delay (10s).
	RetryMax = 10 * time.Second

	// HandleTTL is the lifetime of a session cookie handle (24h).
	HandleTTL = 24 * time.Hour

	// HandleSweep is how often expired handles are purged (10min).
	HandleSweep = 10 * time.Minute

	// Cleanup bounds best-effort engine cleanup after a run (30s).
	Cleanup = 30 * time.Second

	// Drain bounds how long Close waits for running scans (10s).
	Drain = 10 * time.Second

	// ServerShutdown bounds HTTP server graceful shutdown (10s).
	ServerShutdown = 10 * time.Second

	// ServerRead is the HTTP server read-header timeout (10s).
	ServerRead = 10 * time.Second
)
