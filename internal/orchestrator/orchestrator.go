// Package orchestrator composes the session registry, port allocator, and
// worker driver behind the create/get/delete facade, and runs the
// background sweep that reclaims expired and dead sessions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/autonops/infraiq-demo/internal/leads"
	"github.com/autonops/infraiq-demo/internal/notify"
	"github.com/autonops/infraiq-demo/internal/ports"
	"github.com/autonops/infraiq-demo/internal/session"
	"github.com/autonops/infraiq-demo/internal/telemetry"
	"github.com/autonops/infraiq-demo/internal/worker"
)

// Options configures the orchestrator.
type Options struct {
	Registry *session.Registry
	Ports    *ports.Allocator
	Driver   worker.Driver
	Leads    leads.Store
	Notifier notify.Notifier
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger

	// SessionDuration is the fixed lifetime of every session.
	SessionDuration time.Duration
	// StopTimeout bounds inline teardown attempts; on expiry the sweep
	// becomes the backstop.
	StopTimeout time.Duration
}

// Orchestrator is the request-facing session API.
type Orchestrator struct {
	registry *session.Registry
	ports    *ports.Allocator
	driver   worker.Driver
	leads    leads.Store
	notifier notify.Notifier
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	sessionDuration time.Duration
	stopTimeout     time.Duration

	// teardowns deduplicates concurrent teardown triggers (delete request
	// racing the sweep) so exactly one performs the resource release.
	teardowns singleflight.Group
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		registry:        opts.Registry,
		ports:           opts.Ports,
		driver:          opts.Driver,
		leads:           opts.Leads,
		notifier:        opts.Notifier,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		sessionDuration: opts.SessionDuration,
		stopTimeout:     opts.StopTimeout,
	}
	if o.metrics == nil {
		o.metrics = telemetry.NewMetrics()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.sessionDuration <= 0 {
		o.sessionDuration = 15 * time.Minute
	}
	if o.stopTimeout <= 0 {
		o.stopTimeout = 10 * time.Second
	}
	return o
}

// CreateSession admits a new session: validate email, reserve a slot,
// acquire a port, start the worker, register the record. Any failure rolls
// back everything acquired so far; no partial state is left visible.
func (o *Orchestrator) CreateSession(ctx context.Context, email string) (session.Session, error) {
	norm, err := leads.NormalizeEmail(email)
	if err != nil {
		o.metrics.SessionsCreated.WithLabelValues("invalid_email").Inc()
		return session.Session{}, err
	}

	adm, err := o.registry.TryAdmit()
	if err != nil {
		o.metrics.SessionsCreated.WithLabelValues("capacity").Inc()
		return session.Session{}, err
	}
	defer adm.Release()

	port, err := o.ports.Acquire()
	if err != nil {
		// The gate is sized to the pool, so exhaustion here is a bug.
		o.metrics.SessionsCreated.WithLabelValues("exhausted").Inc()
		o.logger.Error("port pool exhausted below the capacity limit", "error", err)
		return session.Session{}, err
	}

	id := session.NewID()

	// One lead per successful admission. Captured before the worker starts
	// so a start failure never loses the contact; a failed append is logged
	// and never blocks the session.
	if err := o.leads.Append(ctx, leads.Lead{Email: norm, SessionID: id, CapturedAt: time.Now()}); err != nil {
		o.logger.Error("lead capture failed", "session", id, "error", err)
	}

	startedAt := time.Now()
	ref, err := o.driver.Start(ctx, id, port)
	if err != nil {
		o.ports.Release(port)
		o.metrics.SessionsCreated.WithLabelValues("start_failed").Inc()
		return session.Session{}, fmt.Errorf("start worker: %w", err)
	}
	o.metrics.WorkerStartSeconds.Observe(time.Since(startedAt).Seconds())

	now := time.Now()
	sess := session.Session{
		ID:        id,
		Email:     norm,
		State:     session.StateProvisioning,
		Port:      port,
		WorkerRef: ref,
		CreatedAt: now,
		ExpiresAt: now.Add(o.sessionDuration),
	}
	if err := o.registry.Insert(&sess, adm); err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.stopTimeout)
		defer cancel()
		_ = o.driver.Stop(stopCtx, ref)
		o.ports.Release(port)
		return session.Session{}, fmt.Errorf("register session: %w", err)
	}
	_ = o.registry.MarkRunning(id)
	sess.State = session.StateRunning

	o.metrics.SessionsCreated.WithLabelValues("created").Inc()
	o.metrics.ActiveSessions.Inc()

	if o.notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			o.notifier.SessionCreated(nctx, norm, id)
		}()
	}

	o.logger.Info("session created", "session", id, "port", port, "expires_at", sess.ExpiresAt)
	return sess, nil
}

// GetSession returns a snapshot of a session, or session.ErrNotFound.
func (o *Orchestrator) GetSession(id string) (session.Session, error) {
	return o.registry.Get(id)
}

// DeleteSession requests early teardown. It returns once the transition
// to expiring is recorded; the inline teardown attempt is bounded and the
// sweep guarantees completion if it fails. Deleting a session that is
// already expiring or terminated succeeds again; only unknown IDs fail.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	if err := o.registry.TransitionExpiring(id, session.CauseDeleted); err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.stopTimeout)
	defer cancel()
	if err := o.Teardown(tctx, id, session.CauseDeleted); err != nil {
		o.logger.Warn("inline teardown failed, sweep will retry", "session", id, "error", err)
	}
	return nil
}

// Teardown reclaims a session's resources in the order worker, then port,
// then the registry transition to terminated. The terminated record stays
// in the registry until the sweep prunes it, so repeat deletes and status
// polls observe the terminal state. Concurrent triggers for the same
// session coalesce into one execution; later calls observe the session
// already terminated and succeed with no side effect.
func (o *Orchestrator) Teardown(ctx context.Context, id string, cause session.Cause) error {
	_, err, _ := o.teardowns.Do(id, func() (any, error) {
		return nil, o.teardownOnce(ctx, id, cause)
	})
	return err
}

func (o *Orchestrator) teardownOnce(ctx context.Context, id string, cause session.Cause) error {
	sess, err := o.registry.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	}
	if sess.State == session.StateTerminated {
		return nil
	}

	// A session already expiring keeps its original cause.
	if err := o.registry.TransitionExpiring(id, cause); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	}
	sess, err = o.registry.Get(id)
	if err != nil {
		return nil
	}

	if sess.WorkerRef != "" {
		if err := o.driver.Stop(ctx, sess.WorkerRef); err != nil {
			o.metrics.TeardownFailures.Inc()
			return fmt.Errorf("stop worker for %s: %w", id, err)
		}
	}
	o.ports.Release(sess.Port)
	_ = o.registry.MarkTerminated(id)

	o.metrics.SessionsTerminated.WithLabelValues(string(sess.Cause)).Inc()
	o.metrics.ActiveSessions.Dec()
	o.logger.Info("session terminated", "session", id, "cause", sess.Cause, "port", sess.Port)
	return nil
}

// ActiveCount reports sessions currently occupying a slot.
func (o *Orchestrator) ActiveCount() int {
	return o.registry.ActiveCount()
}

// Capacity reports the admission limit.
func (o *Orchestrator) Capacity() int {
	return o.registry.Capacity()
}
