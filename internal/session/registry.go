package session

import (
	"sync"
	"time"
)

// Registry is the in-memory source of truth for session records. All
// mutation goes through its synchronized methods; callers only ever see
// snapshot copies.
type Registry struct {
	mu       sync.Mutex
	max      int
	reserved int
	sessions map[string]*Session
}

// NewRegistry creates a registry admitting at most max concurrent sessions.
func NewRegistry(max int) *Registry {
	return &Registry{
		max:      max,
		sessions: make(map[string]*Session),
	}
}

// Admission is a reserved capacity slot. It counts against the limit until
// Insert consumes it or Release returns it. Release after a successful
// Insert is a no-op, so callers can defer it unconditionally.
type Admission struct {
	r        *Registry
	consumed bool
}

// Release returns an unconsumed slot to the pool. Idempotent.
func (a *Admission) Release() {
	if a == nil {
		return
	}
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if !a.consumed {
		a.consumed = true
		a.r.reserved--
	}
}

// TryAdmit reserves a capacity slot. The check and the reservation are a
// single critical section so concurrent callers cannot both observe free
// capacity and overshoot the limit.
func (r *Registry) TryAdmit() (*Admission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeLocked()+r.reserved >= r.max {
		return nil, ErrCapacityExceeded
	}
	r.reserved++
	return &Admission{r: r}, nil
}

// Insert records a new session, consuming the admission that reserved its
// slot. The session is stored as a copy; the caller's value stays private.
func (r *Registry) Insert(s *Session, adm *Admission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrDuplicateID
	}
	if adm != nil && !adm.consumed {
		adm.consumed = true
		r.reserved--
	}
	rec := *s
	r.sessions[s.ID] = &rec
	return nil
}

// Get returns a snapshot of the session, or ErrNotFound.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *rec, nil
}

// MarkRunning moves a provisioning session to running.
func (r *Registry) MarkRunning(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if rec.State != StateProvisioning {
		return ErrBadTransition
	}
	rec.State = StateRunning
	return nil
}

// TransitionExpiring records the start of teardown and its cause. Calling
// it on a session already expiring or terminated is a no-op success, so
// racing delete requests and sweep passes are all safe.
func (r *Registry) TransitionExpiring(id string, cause Cause) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	switch rec.State {
	case StateExpiring, StateTerminated:
		return nil
	}
	rec.State = StateExpiring
	rec.Cause = cause
	return nil
}

// MarkTerminated finalizes a session. Terminated sessions are immutable.
func (r *Registry) MarkTerminated(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if rec.State == StateTerminated {
		return nil
	}
	rec.State = StateTerminated
	rec.TerminatedAt = time.Now()
	return nil
}

// Remove purges a session record. Must only run after the worker is
// stopped and the port released; see the orchestrator teardown ordering.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// PruneTerminated drops terminated records whose teardown finished before
// cutoff. Recent terminal records are kept so repeat deletes and status
// polls observe the final state instead of a not-found.
func (r *Registry) PruneTerminated(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, rec := range r.sessions {
		if rec.State == StateTerminated && rec.TerminatedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// ListActive returns snapshots of all non-terminated sessions.
func (r *Registry) ListActive() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, rec := range r.sessions {
		if rec.State != StateTerminated {
			out = append(out, *rec)
		}
	}
	return out
}

// ActiveCount returns the number of sessions occupying a slot.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

// Capacity returns the admission limit.
func (r *Registry) Capacity() int {
	return r.max
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, rec := range r.sessions {
		if rec.State != StateTerminated {
			n++
		}
	}
	return n
}
