package engine

import (
	"errors"
	"fmt"
)

// ErrAPI is wrapped by every error the engine itself reports (as opposed to
// transport failures reaching it).
var ErrAPI = errors.New("engine: api error")

// APIError carries the engine's error payload. It is meant for logs; callers
// must not surface Code or Message to end users.
type APIError struct {
	Endpoint string `json:"-"`
	Status   int    `json:"-"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine: %s: status %d: %s (%s)", e.Endpoint, e.Status, e.Message, e.Code)
}

func (e *APIError) Unwrap() error { return ErrAPI }
