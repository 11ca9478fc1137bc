// Package session persists scan sessions: the record pollers read to follow
// a scan and the only place workflow state is shared between the
// orchestrator goroutine and the outside world.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/ssdt/authscan/pkg/alerts"
	"github.com/ssdt/authscan/pkg/blobstore"
)

// ErrNotFound is returned when no session has the requested id.
var ErrNotFound = errors.New("session: not found")

// Status is the lifecycle state of a scan.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether no further progress can be written.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// Phase is the workflow step a running scan is in.
type Phase string

const (
	PhaseQueued         Phase = "queued"
	PhaseConfiguring    Phase = "configuring"
	PhaseAuthenticating Phase = "authenticating"
	PhaseSpidering      Phase = "spidering"
	PhaseAjaxSpider     Phase = "ajax_spider"
	PhasePassiveScan    Phase = "passive_scan"
	PhaseActiveScan     Phase = "active_scan"
	PhaseProcessing     Phase = "processing"
	PhaseSaving         Phase = "saving"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
	PhaseStopped        Phase = "stopped"
)

// Session is one authenticated scan run.
type Session struct {
	ScanID           string              `json:"scanId"`
	OwnerID          string              `json:"ownerId"`
	TargetURL        string              `json:"targetUrl"`
	LoginURL         string              `json:"loginUrl,omitempty"`
	Status           Status              `json:"status"`
	Phase            Phase               `json:"phase"`
	Progress         int                 `json:"progress"`
	Message          string              `json:"message,omitempty"`
	URLsFound        int                 `json:"urlsFound"`
	AlertsFound      int                 `json:"alertsFound"`
	RiskCounts       alerts.RiskCounts   `json:"riskCounts"`
	TotalOccurrences int                 `json:"totalOccurrences"`
	Alerts           []alerts.Summary    `json:"alerts,omitempty"`
	ReportFiles      []blobstore.FileRef `json:"reportFiles,omitempty"`
	Error            *string             `json:"error"`
	Warnings         []string            `json:"warnings,omitempty"`
	ContextID        string              `json:"contextId,omitempty"`
	StartedAt        time.Time           `json:"startedAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
	CompletedAt      *time.Time          `json:"completedAt"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Alerts = append([]alerts.Summary(nil), s.Alerts...)
	c.ReportFiles = append([]blobstore.FileRef(nil), s.ReportFiles...)
	c.Warnings = append([]string(nil), s.Warnings...)
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// UpdateFunc mutates a session in place. Returning an error aborts the
// update and leaves the stored record unchanged.
type UpdateFunc func(*Session) error

// Store persists sessions.
type Store interface {
	// Claim stores s unless a running session with the same id exists. It
	// returns the stored session and whether s was written.
	Claim(ctx context.Context, s *Session) (*Session, bool, error)
	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, scanID string) (*Session, error)
	// Update applies fn atomically and returns the updated session.
	Update(ctx context.Context, scanID string, fn UpdateFunc) (*Session, error)
	// Delete removes the session. Deleting a missing session is not an
	// error.
	Delete(ctx context.Context, scanID string) error
	// List returns the sessions of ownerID, most recently updated first. An
	// empty ownerID lists every session.
	List(ctx context.Context, ownerID string) ([]*Session, error)
	Close() error
}
