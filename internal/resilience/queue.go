package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"

	"ridesync/internal/models"
	"ridesync/internal/observability"
	"ridesync/pkg/logger"
	"ridesync/pkg/storage"
)

// offlineQueue holds mutating requests captured while offline. Every
// mutation is persisted under its own storage key so a process restart
// does not lose pending work.
type offlineQueue struct {
	mu      sync.Mutex
	entries []models.QueuedRequest
	store   storage.Store
	log     *logger.Logger
}

func newOfflineQueue(store storage.Store, log *logger.Logger) *offlineQueue {
	return &offlineQueue{
		store: store,
		log:   log,
	}
}

// load restores queued requests from storage. Called once at startup.
func (q *offlineQueue) load(ctx context.Context) error {
	var entries []models.QueuedRequest
	err := q.store.Get(ctx, storage.KeyOfflineRequestQueue, &entries)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.entries = entries
	q.mu.Unlock()

	observability.OfflineQueueDepth.Set(float64(len(entries)))
	if len(entries) > 0 {
		q.log.LogQueueEvent("offline_requests", "restored", map[string]interface{}{
			"count": len(entries),
		})
	}
	return nil
}

func (q *offlineQueue) enqueue(ctx context.Context, req models.QueuedRequest) error {
	q.mu.Lock()
	q.entries = append(q.entries, req)
	depth := len(q.entries)
	q.mu.Unlock()

	observability.OfflineQueueDepth.Set(float64(depth))
	q.log.LogQueueEvent("offline_requests", "enqueued", map[string]interface{}{
		"request_id": req.ID,
		"method":     req.Method,
		"url":        req.URL,
		"priority":   string(req.Priority),
		"depth":      depth,
	})

	return q.persist(ctx)
}

// takeBatch removes and returns everything currently queued, sorted
// priority-descending then enqueue-time-ascending. Requests arriving
// during a drain land in the fresh queue, not the batch being drained.
func (q *offlineQueue) takeBatch(ctx context.Context) ([]models.QueuedRequest, error) {
	q.mu.Lock()
	batch := q.entries
	q.entries = nil
	q.mu.Unlock()

	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].Priority.Rank() != batch[j].Priority.Rank() {
			return batch[i].Priority.Rank() < batch[j].Priority.Rank()
		}
		return batch[i].EnqueuedAt.Before(batch[j].EnqueuedAt)
	})

	observability.OfflineQueueDepth.Set(float64(q.depth()))
	return batch, q.persist(ctx)
}

func (q *offlineQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *offlineQueue) persist(ctx context.Context) error {
	q.mu.Lock()
	entries := make([]models.QueuedRequest, len(q.entries))
	copy(entries, q.entries)
	q.mu.Unlock()

	if err := q.store.Set(ctx, storage.KeyOfflineRequestQueue, entries); err != nil {
		q.log.WithError(err).Error("Failed to persist offline request queue")
		return err
	}
	return nil
}

func (q *offlineQueue) snapshot() []models.QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]models.QueuedRequest, len(q.entries))
	copy(entries, q.entries)
	return entries
}
