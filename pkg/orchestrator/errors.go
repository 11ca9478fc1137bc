package orchestrator

import (
	"errors"

	"github.com/ssdt/authscan/pkg/authctx"
)

// Sentinel errors. Callers should use errors.Is.
var (
	// ErrConfiguration means the engine context or cookie rule could not be
	// set up.
	ErrConfiguration = authctx.ErrConfiguration

	// ErrEngineUnavailable means the engine did not answer: pre-flight
	// failed, a transition call exhausted its retries, or status polls
	// failed too many times in a row.
	ErrEngineUnavailable = errors.New("orchestrator: engine unavailable")

	// ErrSave means an artifact could not be archived.
	ErrSave = errors.New("orchestrator: save failed")

	// ErrNotFound is returned for unknown scans and for scans owned by
	// someone else.
	ErrNotFound = errors.New("orchestrator: scan not found")

	// ErrInvalidRequest is returned when a start request is malformed or
	// its handle cannot be redeemed.
	ErrInvalidRequest = errors.New("orchestrator: invalid request")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("orchestrator: service closed")

	// errStopped tells the sequencer the scan reached a terminal status
	// elsewhere (user stop, another process) and it must not write again.
	errStopped = errors.New("orchestrator: scan stopped")
)

// publicMessage maps an internal error to the text stored on the session.
// Engine payloads and wrapped details stay in the logs.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, ErrEngineUnavailable):
		return "Scanning engine is unavailable"
	case errors.Is(err, ErrConfiguration):
		return "Failed to configure authenticated scan"
	case errors.Is(err, ErrSave):
		return "Failed to save scan results"
	default:
		return "Scan failed due to an internal error"
	}
}
