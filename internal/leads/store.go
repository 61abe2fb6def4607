// Package leads captures contact emails from demo sessions. Lead records
// are append-only and independent of session lifecycle: they survive
// teardown and exist purely for export.
package leads

import (
	"context"
	"time"
)

// Lead is one captured email.
type Lead struct {
	Email      string    `json:"email"`
	SessionID  string    `json:"session_id"`
	CapturedAt time.Time `json:"captured_at"`
}

// Store is an append-only lead sink.
type Store interface {
	// Append records a lead.
	Append(ctx context.Context, lead Lead) error

	// All returns every captured lead, oldest first.
	All(ctx context.Context) ([]Lead, error)
}
