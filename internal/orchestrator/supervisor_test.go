package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/autonops/infraiq-demo/internal/session"
)

func newSupervisorFixture(t *testing.T, max int) (*fixture, *Supervisor) {
	t.Helper()
	f := newFixture(t, max)
	sup := NewSupervisor(f.orch, SupervisorOptions{
		Interval:    time.Minute,
		StopTimeout: time.Second,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f, sup
}

// expire rewinds a session's deadline so the next sweep sees it as overdue.
func expire(t *testing.T, f *fixture, id string) {
	t.Helper()
	sess, err := f.registry.Get(id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	f.registry.Remove(id)
	sess.ExpiresAt = time.Now().Add(-time.Second)
	if err := f.registry.Insert(&sess, nil); err != nil {
		t.Fatalf("reinsert %s: %v", id, err)
	}
}

func TestSweepReapsExpiredSessions(t *testing.T) {
	f, sup := newSupervisorFixture(t, 2)
	ctx := context.Background()

	overdue, err := f.orch.CreateSession(ctx, "a@acme.io")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fresh, err := f.orch.CreateSession(ctx, "b@acme.io")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expire(t, f, overdue.ID)

	sup.Sweep()

	reaped, err := f.orch.GetSession(overdue.ID)
	if err != nil {
		t.Fatalf("get reaped session: %v", err)
	}
	if reaped.State != session.StateTerminated || reaped.Cause != session.CauseExpired {
		t.Errorf("expected terminated/expired, got %s/%s", reaped.State, reaped.Cause)
	}
	if _, err := f.orch.GetSession(fresh.ID); err != nil {
		t.Errorf("fresh session must survive the sweep: %v", err)
	}
	if f.driver.Running() != 1 {
		t.Errorf("expected 1 worker left, got %d", f.driver.Running())
	}
	if f.allocator.Free() != 1 {
		t.Errorf("expected 1 free port, got %d", f.allocator.Free())
	}
}

func TestSweepReapsCrashedWorkers(t *testing.T) {
	f, sup := newSupervisorFixture(t, 1)
	ctx := context.Background()

	sess, err := f.orch.CreateSession(ctx, "a@acme.io")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.driver.Kill(sess.WorkerRef)

	sup.Sweep()

	reaped, err := f.orch.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("get reaped session: %v", err)
	}
	if reaped.State != session.StateTerminated || reaped.Cause != session.CauseCrashed {
		t.Errorf("expected terminated/crashed, got %s/%s", reaped.State, reaped.Cause)
	}
	if f.allocator.Free() != 1 {
		t.Error("crashed session's port not reclaimed")
	}

	// No restart: the slot opens up, the worker stays gone.
	if f.driver.StartCalls() != 1 {
		t.Errorf("crash must not trigger a restart, got %d starts", f.driver.StartCalls())
	}
}

func TestSweepRetriesStuckExpiring(t *testing.T) {
	f, sup := newSupervisorFixture(t, 1)
	ctx := context.Background()

	sess, err := f.orch.CreateSession(ctx, "a@acme.io")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// First teardown fails and leaves the session expiring.
	f.driver.StopErr = errors.New("daemon unreachable")
	_ = f.orch.Teardown(ctx, sess.ID, session.CauseDeleted)

	got, err := f.orch.GetSession(sess.ID)
	if err != nil || got.State != session.StateExpiring {
		t.Fatalf("expected stuck expiring session, got %+v err %v", got, err)
	}

	f.driver.StopErr = nil
	sup.Sweep()

	final, err := f.orch.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("get after retry sweep: %v", err)
	}
	if final.State != session.StateTerminated {
		t.Errorf("sweep did not finish the stuck teardown: %q", final.State)
	}
	if f.allocator.Free() != 1 {
		t.Error("port not reclaimed by the retry sweep")
	}
}

func TestSweepLeavesHealthySessionsAlone(t *testing.T) {
	f, sup := newSupervisorFixture(t, 2)
	ctx := context.Background()

	a, _ := f.orch.CreateSession(ctx, "a@acme.io")
	b, _ := f.orch.CreateSession(ctx, "b@acme.io")

	sup.Sweep()

	for _, id := range []string{a.ID, b.ID} {
		got, err := f.orch.GetSession(id)
		if err != nil {
			t.Errorf("healthy session %s reaped: %v", id, err)
			continue
		}
		if got.State != session.StateRunning {
			t.Errorf("session %s state changed to %q", id, got.State)
		}
	}
}

func TestSweepPrunesStaleTerminated(t *testing.T) {
	f, sup := newSupervisorFixture(t, 1)
	ctx := context.Background()

	sess, err := f.orch.CreateSession(ctx, "a@acme.io")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.orch.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// A fresh terminated record stays queryable through the sweep.
	sup.Sweep()
	if _, err := f.orch.GetSession(sess.ID); err != nil {
		t.Fatalf("recent terminated record pruned too early: %v", err)
	}

	// Once past retention it goes away.
	rec, err := f.registry.Get(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	f.registry.Remove(sess.ID)
	rec.TerminatedAt = time.Now().Add(-2 * time.Hour)
	if err := f.registry.Insert(&rec, nil); err != nil {
		t.Fatalf("reinsert: %v", err)
	}

	sup.Sweep()
	if _, err := f.orch.GetSession(sess.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("stale terminated record not pruned: %v", err)
	}
}

func TestSupervisorStartStop(t *testing.T) {
	_, sup := newSupervisorFixture(t, 1)

	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	sup.Stop()

	// Stop without Start must not panic.
	fresh := NewSupervisor(newFixture(t, 1).orch, SupervisorOptions{})
	fresh.Stop()
}
