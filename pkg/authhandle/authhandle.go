// Package authhandle exchanges captured session cookies for short-lived,
// single-use handles so that credentials never travel with the start
// request or appear in a session record.
package authhandle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ssdt/authscan/pkg/authctx"
	"github.com/ssdt/authscan/pkg/duration"
)

var (
	// ErrHandleNotFound is returned for unknown, expired or already
	// consumed handles.
	ErrHandleNotFound = errors.New("authhandle: handle not found or expired")

	// ErrNoCookies is returned by Create when no cookie has a name.
	ErrNoCookies = errors.New("authhandle: no cookies")
)

// Credentials is what a handle resolves to.
type Credentials struct {
	Cookies  []authctx.Cookie `json:"cookies"`
	LoginURL string           `json:"loginUrl,omitempty"`
}

// Store issues and redeems handles.
type Store interface {
	// Create stores creds and returns a new opaque handle.
	Create(ctx context.Context, creds Credentials) (string, error)
	// Consume returns the credentials for handle and deletes it.
	Consume(ctx context.Context, handle string) (Credentials, error)
	Close() error
}

// DefaultTTL is how long an unused handle stays redeemable.
const DefaultTTL = duration.HandleTTL

func newHandle() string { return uuid.NewString() }

func validate(creds Credentials) error {
	if authctx.CookieHeader(creds.Cookies) == "" {
		return ErrNoCookies
	}
	return nil
}

func expired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}
