// Package worker abstracts the container runtime backing each session:
// start an isolated worker on a port, check it is alive, force-stop it.
package worker

import (
	"context"
	"errors"
)

// ErrStartFailed wraps any failure to bring a worker up within the start
// timeout. Callers must not record the session as running when they see it.
var ErrStartFailed = errors.New("worker start failed")

// Driver is the contract against the external container runtime. The
// runtime is an unreliable collaborator: Stop tolerates workers that are
// already gone, and Alive may flip to false at any time.
type Driver interface {
	// Start launches a worker for the session, publishing the terminal on
	// the given host port. It blocks until the runtime confirms startup or
	// the driver's start timeout elapses, and returns an opaque worker ref.
	Start(ctx context.Context, sessionID string, port int) (string, error)

	// Alive reports whether the worker is still running.
	Alive(ctx context.Context, ref string) bool

	// Stop force-stops the worker. Idempotent; a worker that is already
	// gone (OOM-killed, manually removed) is success, not an error.
	Stop(ctx context.Context, ref string) error
}
