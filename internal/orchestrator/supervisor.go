package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/autonops/infraiq-demo/internal/session"
	"github.com/autonops/infraiq-demo/internal/telemetry"
	"github.com/autonops/infraiq-demo/internal/worker"
)

// Supervisor runs the periodic sweep that enforces session deadlines,
// reaps dead workers, and retries teardowns that failed inline.
type Supervisor struct {
	orch     *Orchestrator
	registry *session.Registry
	driver   worker.Driver
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	interval    time.Duration
	stopTimeout time.Duration

	cron *cron.Cron
}

// SupervisorOptions configures the sweep.
type SupervisorOptions struct {
	Interval    time.Duration
	StopTimeout time.Duration
	Logger      *slog.Logger
}

// NewSupervisor creates a supervisor over the orchestrator's registry and
// driver.
func NewSupervisor(orch *Orchestrator, opts SupervisorOptions) *Supervisor {
	s := &Supervisor{
		orch:        orch,
		registry:    orch.registry,
		driver:      orch.driver,
		metrics:     orch.metrics,
		logger:      opts.Logger,
		interval:    opts.Interval,
		stopTimeout: opts.StopTimeout,
	}
	if s.logger == nil {
		s.logger = orch.logger
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = orch.stopTimeout
	}
	return s
}

// Start schedules the sweep. The first pass runs after one interval.
func (s *Supervisor) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.Sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("supervisor started", "interval", s.interval)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Supervisor) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("supervisor stopped")
}

// terminatedRetention is how long terminated records stay queryable
// before the sweep prunes them.
const terminatedRetention = time.Hour

// Sweep walks the active set once, tearing down sessions that are past
// their deadline, whose worker died, or that are stuck expiring from an
// earlier failed teardown. Sessions are reaped concurrently; one failure
// never blocks the rest of the pass, it is logged and retried next time.
// Terminated records past the retention window are pruned at the end.
func (s *Supervisor) Sweep() {
	s.metrics.SweepRuns.Inc()
	now := time.Now()

	var g errgroup.Group
	for _, sess := range s.registry.ListActive() {
		g.Go(func() error {
			cause, reap := s.evaluate(sess, now)
			if !reap {
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
			defer cancel()
			if err := s.orch.Teardown(ctx, sess.ID, cause); err != nil {
				s.logger.Error("sweep teardown failed, will retry",
					"session", sess.ID, "cause", cause, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := s.registry.PruneTerminated(now.Add(-terminatedRetention)); n > 0 {
		s.logger.Info("pruned terminated sessions", "count", n)
	}
}

// evaluate decides whether a session needs teardown and why.
func (s *Supervisor) evaluate(sess session.Session, now time.Time) (session.Cause, bool) {
	if sess.State == session.StateExpiring {
		return sess.Cause, true
	}
	if sess.Expired(now) {
		return session.CauseExpired, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()
	if sess.WorkerRef != "" && !s.driver.Alive(ctx, sess.WorkerRef) {
		return session.CauseCrashed, true
	}
	return "", false
}
