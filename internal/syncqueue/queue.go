// Package syncqueue mirrors locally captured records to a remote service with bounded retries.
package syncqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/common/logger"
	"clinic-worker/internal/common/metrics"
	"clinic-worker/internal/common/observability"
	"clinic-worker/internal/models"

	"golang.org/x/time/rate"
)

const DefaultMaxRetries = 5

// AuthGate reports whether the mirror session is authenticated.
type AuthGate interface {
	IsAuthenticated(ctx context.Context) bool
}

type Options struct {
	MaxRetries     int
	RequestTimeout time.Duration
	// RatePerSecond paces deliveries within a retry pass; zero means unlimited.
	RatePerSecond float64
	Enabled       bool
	Auth          AuthGate
	Observability *observability.Observability
}

// Queue holds records waiting to be mirrored. One mutex guards the pending
// slice and is never held across network I/O.
type Queue struct {
	mu    sync.Mutex
	items []models.PendingSyncItem

	enabled atomic.Bool
	remote  Remote
	auth    AuthGate

	maxRetries     int
	requestTimeout time.Duration
	limiter        *rate.Limiter

	passMu sync.Mutex
	wg     sync.WaitGroup

	logger logger.Logger
	obs    *observability.Observability
	now    func() time.Time
}

// New builds a queue. A nil remote means the mirror is not configured and
// every submission is queued.
func New(remote Remote, opts Options, log logger.Logger) *Queue {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	q := &Queue{
		remote:         remote,
		auth:           opts.Auth,
		maxRetries:     opts.MaxRetries,
		requestTimeout: opts.RequestTimeout,
		limiter:        rate.NewLimiter(limit, 1),
		logger:         log.WithFields(map[string]interface{}{"component": "sync-queue"}),
		obs:            opts.Observability,
		now:            time.Now,
	}
	q.enabled.Store(opts.Enabled)
	return q
}

func (q *Queue) SetEnabled(enabled bool) {
	q.enabled.Store(enabled)
	q.logger.Info("Sync toggled", map[string]interface{}{"enabled": enabled})
}

func (q *Queue) Enabled() bool {
	return q.enabled.Load()
}

func (q *Queue) IsConfigured() bool {
	return q.remote != nil
}

func (q *Queue) authenticated(ctx context.Context) bool {
	return q.auth == nil || q.auth.IsAuthenticated(ctx)
}

// Submit mirrors item now, or queues it when the mirror is unreachable. It
// never reports delivery failure to the caller. The immediate attempt does not
// wait for a session; only RetryPending is gated on authentication.
func (q *Queue) Submit(ctx context.Context, item models.PendingSyncItem) {
	if !q.Enabled() {
		metrics.SyncSubmissions.WithLabelValues("disabled").Inc()
		return
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = q.now()
	}
	if q.remote == nil {
		q.enqueue(item)
		metrics.SyncSubmissions.WithLabelValues("queued").Inc()
		return
	}

	if err := q.deliver(ctx, item); err != nil {
		q.logger.WithError(err).Warn("Immediate sync failed, queued for retry", map[string]interface{}{
			"itemId":   item.ID,
			"itemType": item.ItemType.String(),
		})
		q.enqueue(item)
		metrics.SyncSubmissions.WithLabelValues("queued").Inc()
		return
	}
	metrics.SyncSubmissions.WithLabelValues("sent").Inc()
}

// SubmitAsync runs Submit in its own goroutine, detached from the caller's context.
func (q *Queue) SubmitAsync(item models.PendingSyncItem) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				q.logger.Error("Background sync panicked", map[string]interface{}{
					"itemId": item.ID,
					"panic":  fmt.Sprint(r),
				})
			}
		}()
		q.Submit(context.Background(), item)
	}()
}

// Wait blocks until background submissions finish or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) deliver(ctx context.Context, item models.PendingSyncItem) error {
	ctx, cancel := context.WithTimeout(ctx, q.requestTimeout)
	defer cancel()
	return q.remote.Submit(ctx, item)
}

// enqueue adds item unless a record with the same id is already pending.
func (q *Queue) enqueue(item models.PendingSyncItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.items {
		if existing.ID == item.ID {
			return
		}
	}
	q.items = append(q.items, item)
	metrics.SyncQueueDepth.Set(float64(len(q.items)))
}

func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the queued items.
func (q *Queue) Pending() []models.PendingSyncItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingSyncItem(nil), q.items...)
}

// snapshot copies the pending items, first dropping any already at the retry ceiling.
func (q *Queue) snapshot() []models.PendingSyncItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	for _, it := range q.items {
		if it.RetryCount >= q.maxRetries {
			q.dropLocked(it)
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	metrics.SyncQueueDepth.Set(float64(len(q.items)))
	return append([]models.PendingSyncItem(nil), q.items...)
}

func (q *Queue) dropLocked(it models.PendingSyncItem) {
	metrics.SyncRetries.WithLabelValues("dropped").Inc()
	q.logger.Warn("Dropping sync item after exhausting retries", map[string]interface{}{
		"itemId":   it.ID,
		"itemType": it.ItemType.String(),
		"error":    apperrors.NewSyncRetryExhaustedError(it.ID, it.RetryCount).Error(),
	})
}

// RetryPending makes one delivery attempt for every pending item and returns
// how many were mirrored. Failed items count one retry; an item reaching the
// ceiling is dropped. Items queued while the pass runs are left for the next one.
// A pass that overlaps another returns immediately.
func (q *Queue) RetryPending(ctx context.Context) (int, error) {
	if !q.Enabled() || q.remote == nil {
		return 0, nil
	}
	if !q.authenticated(ctx) {
		q.logger.Debug("Skipping sync retry, not authenticated", nil)
		return 0, nil
	}
	if !q.passMu.TryLock() {
		return 0, nil
	}
	defer q.passMu.Unlock()

	start := time.Now()
	ctx, span := q.obs.StartSpan(ctx, "sync.retry_pending")
	defer span.End()

	items := q.snapshot()
	if len(items) == 0 {
		return 0, nil
	}

	sent := make(map[string]bool, len(items))
	failed := make(map[string]bool, len(items))
	var passErr error
	for _, it := range items {
		if err := q.limiter.Wait(ctx); err != nil {
			passErr = err
			break
		}
		if err := q.deliver(ctx, it); err != nil {
			failed[it.ID] = true
			metrics.SyncRetries.WithLabelValues("failed").Inc()
			q.logger.WithError(err).Debug("Sync retry failed", map[string]interface{}{
				"itemId":     it.ID,
				"retryCount": it.RetryCount + 1,
			})
			continue
		}
		sent[it.ID] = true
		metrics.SyncRetries.WithLabelValues("sent").Inc()
	}

	q.apply(sent, failed)

	status := "ok"
	if passErr != nil {
		status = "cancelled"
	}
	q.obs.RecordRun(ctx, "sync_retry", time.Since(start), status)
	q.logger.Info("Sync retry pass finished", map[string]interface{}{
		"attempted": len(sent) + len(failed),
		"sent":      len(sent),
		"pending":   q.PendingCount(),
	})
	return len(sent), passErr
}

// apply merges a pass's results back into the live queue.
func (q *Queue) apply(sent, failed map[string]bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	for _, it := range q.items {
		switch {
		case sent[it.ID]:
			continue
		case failed[it.ID]:
			it.RetryCount++
			if it.RetryCount >= q.maxRetries {
				q.dropLocked(it)
				continue
			}
		}
		kept = append(kept, it)
	}
	q.items = kept
	metrics.SyncQueueDepth.Set(float64(len(q.items)))
}
