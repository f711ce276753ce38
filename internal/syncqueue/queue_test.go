package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockRemote struct {
	mu         sync.Mutex
	attempts   map[string]int
	SubmitFunc func(ctx context.Context, item models.PendingSyncItem) error
}

func newMockRemote(fn func(ctx context.Context, item models.PendingSyncItem) error) *MockRemote {
	return &MockRemote{attempts: map[string]int{}, SubmitFunc: fn}
}

func (m *MockRemote) Name() string { return "mock" }

func (m *MockRemote) Submit(ctx context.Context, item models.PendingSyncItem) error {
	m.mu.Lock()
	m.attempts[item.ID]++
	m.mu.Unlock()
	return m.SubmitFunc(ctx, item)
}

func (m *MockRemote) Attempts(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[id]
}

type staticAuth bool

func (a staticAuth) IsAuthenticated(context.Context) bool { return bool(a) }

var errOffline = errors.New("network unreachable")

func alwaysFail(context.Context, models.PendingSyncItem) error { return errOffline }
func alwaysOK(context.Context, models.PendingSyncItem) error   { return nil }

func newItem(t *testing.T, id string) models.PendingSyncItem {
	t.Helper()
	item, err := models.NewSurveySyncItem(&models.SurveyResponse{
		ID:          id,
		TemplateID:  "tpl-1",
		Answers:     []models.SurveyAnswer{{QuestionID: "q1", Answer: 3}},
		SubmittedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}, time.Now())
	require.NoError(t, err)
	return item
}

func newQueue(t *testing.T, remote Remote, opts Options) *Queue {
	t.Helper()
	opts.Enabled = true
	return New(remote, opts, logger.NewTestLogger(t))
}

// ==========================
// Submit
// ==========================

func TestSubmit_Disabled(t *testing.T) {
	remote := newMockRemote(alwaysOK)
	q := New(remote, Options{Enabled: false}, logger.NewNoOpLogger())

	q.Submit(context.Background(), newItem(t, "r-1"))

	assert.Equal(t, 0, q.PendingCount())
	assert.Equal(t, 0, remote.Attempts("r-1"))
}

func TestSubmit_NotConfiguredQueues(t *testing.T) {
	q := newQueue(t, nil, Options{})
	q.Submit(context.Background(), newItem(t, "r-1"))

	assert.False(t, q.IsConfigured())
	assert.Equal(t, 1, q.PendingCount())
}

func TestSubmit_SuccessDoesNotQueue(t *testing.T) {
	remote := newMockRemote(alwaysOK)
	q := newQueue(t, remote, Options{})

	q.Submit(context.Background(), newItem(t, "r-1"))

	assert.Equal(t, 1, remote.Attempts("r-1"))
	assert.Equal(t, 0, q.PendingCount())
}

func TestSubmit_FailureQueuesOnce(t *testing.T) {
	remote := newMockRemote(alwaysFail)
	q := newQueue(t, remote, Options{})

	q.Submit(context.Background(), newItem(t, "r-1"))
	q.Submit(context.Background(), newItem(t, "r-1"))
	q.Submit(context.Background(), newItem(t, "r-2"))

	pending := q.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "r-1", pending[0].ID)
	assert.Equal(t, 0, pending[0].RetryCount)
}

func TestSubmit_AttemptsWithoutSession(t *testing.T) {
	remote := newMockRemote(alwaysOK)
	q := newQueue(t, remote, Options{Auth: staticAuth(false)})

	q.Submit(context.Background(), newItem(t, "r-1"))

	assert.Equal(t, 1, remote.Attempts("r-1"))
	assert.Equal(t, 0, q.PendingCount())
}

func TestSubmitAsync_Wait(t *testing.T) {
	remote := newMockRemote(alwaysOK)
	q := newQueue(t, remote, Options{})

	for i := 0; i < 10; i++ {
		q.SubmitAsync(newItem(t, fmt.Sprintf("r-%d", i)))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))

	for i := 0; i < 10; i++ {
		assert.Equal(t, 1, remote.Attempts(fmt.Sprintf("r-%d", i)))
	}
}

// ==========================
// RetryPending
// ==========================

func TestRetryPending_SuccessRemoves(t *testing.T) {
	fail := true
	remote := newMockRemote(func(context.Context, models.PendingSyncItem) error {
		if fail {
			return errOffline
		}
		return nil
	})
	q := newQueue(t, remote, Options{})
	q.Submit(context.Background(), newItem(t, "r-1"))
	q.Submit(context.Background(), newItem(t, "r-2"))
	require.Equal(t, 2, q.PendingCount())

	fail = false
	n, err := q.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, q.PendingCount())
}

func TestRetryPending_BoundedAttempts(t *testing.T) {
	remote := newMockRemote(alwaysFail)
	q := newQueue(t, remote, Options{MaxRetries: 5})
	q.Submit(context.Background(), newItem(t, "r-1"))
	immediate := remote.Attempts("r-1")

	for pass := 1; pass <= 4; pass++ {
		_, err := q.RetryPending(context.Background())
		require.NoError(t, err)
		pending := q.Pending()
		require.Len(t, pending, 1, "pass %d", pass)
		assert.Equal(t, pass, pending[0].RetryCount)
	}

	_, err := q.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, q.PendingCount(), "item must be dropped after the fifth failed pass")

	_, err = q.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, immediate+5, remote.Attempts("r-1"), "no sixth retry attempt")
}

func TestRetryPending_KeepsItemsQueuedDuringPass(t *testing.T) {
	var q *Queue
	remote := newMockRemote(func(_ context.Context, item models.PendingSyncItem) error {
		if item.ID == "r-1" {
			q.enqueue(newItem(t, "r-late"))
		}
		return errOffline
	})
	q = newQueue(t, nil, Options{})
	q.Submit(context.Background(), newItem(t, "r-1"))
	q.remote = remote

	_, err := q.RetryPending(context.Background())
	require.NoError(t, err)

	pending := q.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "r-1", pending[0].ID)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "r-late", pending[1].ID)
	assert.Equal(t, 0, pending[1].RetryCount)
}

func TestRetryPending_Skips(t *testing.T) {
	t.Run("not authenticated", func(t *testing.T) {
		auth := staticAuth(false)
		remote := newMockRemote(alwaysFail)
		q := newQueue(t, remote, Options{Auth: auth})
		q.Submit(context.Background(), newItem(t, "r-1"))
		require.Equal(t, 1, remote.Attempts("r-1"))

		remote.SubmitFunc = alwaysOK
		n, err := q.RetryPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 1, remote.Attempts("r-1"))
		assert.Equal(t, 1, q.PendingCount())
	})

	t.Run("disabled", func(t *testing.T) {
		remote := newMockRemote(alwaysFail)
		q := newQueue(t, remote, Options{})
		q.Submit(context.Background(), newItem(t, "r-1"))
		q.SetEnabled(false)

		n, err := q.RetryPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 1, remote.Attempts("r-1"))
	})

	t.Run("not configured", func(t *testing.T) {
		q := newQueue(t, nil, Options{})
		q.Submit(context.Background(), newItem(t, "r-1"))

		n, err := q.RetryPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 1, q.PendingCount())
	})

	t.Run("overlapping pass", func(t *testing.T) {
		remote := newMockRemote(alwaysFail)
		q := newQueue(t, remote, Options{})
		q.Submit(context.Background(), newItem(t, "r-1"))

		q.passMu.Lock()
		n, err := q.RetryPending(context.Background())
		q.passMu.Unlock()

		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 1, remote.Attempts("r-1"))
	})
}

func TestRetryPending_CancelledPassLeavesRemainingUntouched(t *testing.T) {
	remote := newMockRemote(alwaysFail)
	q := newQueue(t, remote, Options{RatePerSecond: 0.001})
	q.Submit(context.Background(), newItem(t, "r-1"))
	q.Submit(context.Background(), newItem(t, "r-2"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.RetryPending(ctx)
	require.Error(t, err)

	pending := q.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, 0, pending[1].RetryCount)
}
