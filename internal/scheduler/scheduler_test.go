package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/common/observability"
	"clinic-worker/internal/models"
	"clinic-worker/internal/notification"
	"clinic-worker/internal/notification/notificationtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockChecker struct {
	mu    sync.Mutex
	calls []string

	DueFunc     func(ctx context.Context, now time.Time) error
	MissedFunc  func(ctx context.Context, now time.Time) error
	SummaryFunc func(ctx context.Context, now time.Time) error
}

func (m *MockChecker) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

func (m *MockChecker) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockChecker) CheckDueReminders(ctx context.Context, now time.Time) error {
	m.record("due")
	if m.DueFunc != nil {
		return m.DueFunc(ctx, now)
	}
	return nil
}

func (m *MockChecker) CheckMissedDoses(ctx context.Context, now time.Time) error {
	m.record("missed")
	if m.MissedFunc != nil {
		return m.MissedFunc(ctx, now)
	}
	return nil
}

func (m *MockChecker) CheckDailySummary(ctx context.Context, now time.Time) error {
	m.record("summary")
	if m.SummaryFunc != nil {
		return m.SummaryFunc(ctx, now)
	}
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// ==========================
// Tick
// ==========================

func TestTick_OrderAndSummaryOnTheHour(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want []string
	}{
		{"mid hour", time.Date(2026, 3, 10, 8, 25, 0, 0, time.UTC), []string{"due", "missed"}},
		{"on the hour", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), []string{"due", "missed", "summary"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &MockChecker{}
			s := New(checker, time.Minute, logger.NewTestLogger(t), WithClock(fixedClock(tt.now)), WithLocation(time.UTC))

			require.NoError(t, s.Tick(context.Background()))
			assert.Equal(t, tt.want, checker.Calls())
		})
	}
}

func TestTick_CheckFailureDoesNotSkipOthers(t *testing.T) {
	checker := &MockChecker{
		DueFunc:    func(context.Context, time.Time) error { return errors.New("store unavailable") },
		MissedFunc: func(context.Context, time.Time) error { panic("nil schedule") },
	}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := New(checker, time.Minute, logger.NewTestLogger(t),
		WithClock(fixedClock(now)), WithLocation(time.UTC), WithObservability(observability.NewNoop()))

	err := s.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, []string{"due", "missed", "summary"}, checker.Calls())
}

func TestTick_UsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("clinic", 2*60*60)
	var seen time.Time
	checker := &MockChecker{DueFunc: func(_ context.Context, now time.Time) error {
		seen = now
		return nil
	}}
	s := New(checker, time.Minute, logger.NewNoOpLogger(),
		WithClock(fixedClock(time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC))), WithLocation(loc))

	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 8, seen.Hour())
}

// ==========================
// Run / Start / Stop
// ==========================

func TestRun_StopEndsLoop(t *testing.T) {
	checker := &MockChecker{}
	s := New(checker, 5*time.Millisecond, logger.NewNoOpLogger())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return len(checker.Calls()) >= 4 }, time.Second, time.Millisecond)
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyRunning)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, s.IsRunning())
}

func TestRun_ContextCancelEndsLoop(t *testing.T) {
	s := New(&MockChecker{}, time.Hour, logger.NewNoOpLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, s.IsRunning, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
	assert.False(t, s.IsRunning())
}

func TestRun_AfterStart(t *testing.T) {
	checker := &MockChecker{}
	s := New(checker, 5*time.Millisecond, logger.NewNoOpLogger())
	require.True(t, s.Start())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return len(checker.Calls()) >= 2 }, time.Second, time.Millisecond)
	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s := New(&MockChecker{}, time.Minute, logger.NewNoOpLogger())
	assert.True(t, s.Start())
	assert.False(t, s.Start())
	s.Stop()
	assert.False(t, s.IsRunning())
}

// ==========================
// End-to-end with the dispatcher
// ==========================

func TestScheduler_ReminderFiresOncePerDose(t *testing.T) {
	settings := notificationtest.NewSettings(nil)
	schedules := notificationtest.NewSchedules(notificationtest.Schedule("sch-1", "pat-1",
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), "08:00"))
	ledger := notificationtest.NewLedger()
	display := &notificationtest.Display{}
	d := notification.NewDispatcher(settings, schedules, ledger, notificationtest.Patients{"pat-1": "Ana"}, display, logger.NewTestLogger(t))

	clock := time.Date(2026, 3, 10, 7, 55, 0, 0, time.UTC)
	s := New(d, time.Minute, logger.NewTestLogger(t), WithClock(func() time.Time { return clock }), WithLocation(time.UTC))

	require.NoError(t, s.Tick(context.Background()))
	assert.Len(t, ledger.OfType(models.NotificationTypeMedicationReminder), 1)

	clock = clock.Add(time.Minute)
	require.NoError(t, s.Tick(context.Background()))
	assert.Len(t, ledger.OfType(models.NotificationTypeMedicationReminder), 1)
	assert.Len(t, display.Shown, 1)
}
