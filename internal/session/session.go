// Package session defines the session records and the capacity-gated
// registry that owns them.
package session

import (
	"errors"
	"time"
)

// State is a session's lifecycle state. Transitions only move forward:
// provisioning -> running -> expiring -> terminated.
type State string

const (
	StateProvisioning State = "provisioning"
	StateRunning      State = "running"
	StateExpiring     State = "expiring"
	StateTerminated   State = "terminated"
)

// Cause records why a session entered teardown. Observability only; every
// cause converges on the same teardown path.
type Cause string

const (
	CauseExpired Cause = "expired"
	CauseDeleted Cause = "deleted"
	CauseCrashed Cause = "crashed"
)

var (
	// ErrNotFound is returned for unknown or already-purged session IDs.
	ErrNotFound = errors.New("session not found")

	// ErrCapacityExceeded is returned when admission would overshoot the
	// concurrent session limit.
	ErrCapacityExceeded = errors.New("session capacity exceeded")

	// ErrDuplicateID is returned when inserting an ID already registered.
	ErrDuplicateID = errors.New("duplicate session id")

	// ErrBadTransition is returned for state changes that would move backward.
	ErrBadTransition = errors.New("invalid session state transition")
)

// Session is the unit of allocation: one user's time-boxed grant of an
// isolated worker and a port.
type Session struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	State        State     `json:"state"`
	Cause        Cause     `json:"cause,omitempty"`
	Port         int       `json:"port"`
	WorkerRef    string    `json:"worker_ref"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	TerminatedAt time.Time `json:"terminated_at,omitempty"`
}

// Remaining returns the time left before expiry, floored at zero.
func (s *Session) Remaining(now time.Time) time.Duration {
	if !now.Before(s.ExpiresAt) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// Expired reports whether the wall clock has reached the session deadline.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Active reports whether the session still occupies a capacity slot.
func (s *Session) Active() bool {
	return s.State != StateTerminated
}
