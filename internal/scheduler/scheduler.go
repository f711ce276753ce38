// Package scheduler runs the notification checks once per tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/common/metrics"
	"clinic-worker/internal/common/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Checker is the set of checks evaluated on every tick.
type Checker interface {
	CheckDueReminders(ctx context.Context, now time.Time) error
	CheckMissedDoses(ctx context.Context, now time.Time) error
	CheckDailySummary(ctx context.Context, now time.Time) error
}

var ErrAlreadyRunning = errors.New("scheduler loop already running")

type Scheduler struct {
	mu      sync.Mutex
	running bool
	looping bool

	checks   Checker
	interval time.Duration
	location *time.Location
	now      func() time.Time
	logger   logger.Logger
	obs      *observability.Observability
}

type Option func(*Scheduler)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithObservability(obs *observability.Observability) Option {
	return func(s *Scheduler) { s.obs = obs }
}

func New(checks Checker, interval time.Duration, log logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		checks:   checks,
		interval: interval,
		location: time.Local,
		now:      time.Now,
		logger:   log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start moves the scheduler to Running. It reports false if it already was.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// Stop moves the scheduler to Stopped. The loop exits at its next tick boundary;
// a tick already in progress completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run is the loop entry point. It starts the scheduler if Start has not been
// called yet and ticks until Stop is observed or ctx is done. The first tick runs
// immediately. Only one loop may run at a time.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.looping {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.looping = true
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.looping = false
		s.mu.Unlock()
	}()

	s.logger.Info("Scheduler started", map[string]interface{}{"interval": s.interval.String()})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if !s.IsRunning() {
			s.logger.Info("Scheduler stopped", nil)
			return nil
		}
		_ = s.Tick(ctx)

		select {
		case <-ctx.Done():
			s.Stop()
			s.logger.Info("Scheduler stopped by shutdown", nil)
			return nil
		case <-ticker.C:
		}
	}
}

// Tick evaluates the checks once against the current time. Check failures are
// logged and returned joined; one failing check never skips the others.
func (s *Scheduler) Tick(ctx context.Context) error {
	start := time.Now()
	now := s.now().In(s.location)

	ctx, span := s.obs.StartSpan(ctx, "scheduler.tick", attribute.String("tick.time", now.Format(time.RFC3339)))
	defer span.End()

	metrics.SchedulerTicks.Inc()

	var errs []error
	errs = append(errs, s.runCheck(ctx, "due_reminders", now, s.checks.CheckDueReminders))
	errs = append(errs, s.runCheck(ctx, "missed_doses", now, s.checks.CheckMissedDoses))
	if now.Minute() == 0 {
		errs = append(errs, s.runCheck(ctx, "daily_summary", now, s.checks.CheckDailySummary))
	}

	err := errors.Join(errs...)
	status := "ok"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
	}
	s.obs.RecordRun(ctx, "tick", time.Since(start), status)
	return err
}

func (s *Scheduler) runCheck(ctx context.Context, name string, now time.Time, check func(context.Context, time.Time) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check %s panicked: %v", name, r)
		}
		if err != nil {
			metrics.SchedulerCheckErrors.WithLabelValues(name).Inc()
			s.logger.WithError(err).Error("Scheduler check failed", map[string]interface{}{
				"check": name,
				"tick":  now.Format(time.RFC3339),
			})
		}
	}()
	return check(ctx, now)
}
