package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"ridesync/internal/models"
	"ridesync/internal/observability"
	"ridesync/pkg/logger"
	"ridesync/pkg/storage"
)

// messageQueue buffers outbound messages while the connection is down.
// Bounded to the most recent limit entries (oldest dropped first) and
// persisted after every mutation.
type messageQueue struct {
	mu      sync.Mutex
	entries []models.QueuedMessage
	limit   int
	store   storage.Store
	log     *logger.Logger
}

func newMessageQueue(limit int, store storage.Store, log *logger.Logger) *messageQueue {
	return &messageQueue{
		limit: limit,
		store: store,
		log:   log,
	}
}

func (q *messageQueue) load(ctx context.Context) error {
	var entries []models.QueuedMessage
	err := q.store.Get(ctx, storage.KeyOutboundMessages, &entries)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.entries = entries
	q.mu.Unlock()

	observability.OutboundQueueDepth.Set(float64(len(entries)))
	return nil
}

// push appends a message, evicting the oldest entry on overflow.
func (q *messageQueue) push(ctx context.Context, msg models.QueuedMessage) {
	q.mu.Lock()
	q.entries = append(q.entries, msg)
	if len(q.entries) > q.limit {
		dropped := q.entries[0]
		q.entries = q.entries[1:]
		observability.MessagesDroppedTotal.WithLabelValues("overflow").Inc()
		q.log.LogQueueEvent("outbound_messages", "overflow_dropped", map[string]interface{}{
			"message_id": dropped.ID,
			"type":       dropped.Type,
		})
	}
	depth := len(q.entries)
	q.mu.Unlock()

	observability.OutboundQueueDepth.Set(float64(depth))
	q.persist(ctx)
}

// pushFront returns a message to the head of the queue after a failed
// send so flush order is preserved.
func (q *messageQueue) pushFront(ctx context.Context, msg models.QueuedMessage) {
	q.mu.Lock()
	q.entries = append([]models.QueuedMessage{msg}, q.entries...)
	if len(q.entries) > q.limit {
		q.entries = q.entries[:q.limit]
	}
	depth := len(q.entries)
	q.mu.Unlock()

	observability.OutboundQueueDepth.Set(float64(depth))
	q.persist(ctx)
}

// pop removes and returns the oldest message.
func (q *messageQueue) pop(ctx context.Context) (models.QueuedMessage, bool) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return models.QueuedMessage{}, false
	}
	msg := q.entries[0]
	q.entries = q.entries[1:]
	depth := len(q.entries)
	q.mu.Unlock()

	observability.OutboundQueueDepth.Set(float64(depth))
	q.persist(ctx)
	return msg, true
}

func (q *messageQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *messageQueue) persist(ctx context.Context) {
	q.mu.Lock()
	entries := make([]models.QueuedMessage, len(q.entries))
	copy(entries, q.entries)
	q.mu.Unlock()

	if err := q.store.Set(ctx, storage.KeyOutboundMessages, entries); err != nil {
		q.log.WithError(err).Error("Failed to persist outbound message queue")
	}
}

// dropStale removes messages older than maxAge. Called at flush time.
func (q *messageQueue) dropStale(ctx context.Context, now time.Time, maxAge time.Duration) int {
	q.mu.Lock()
	kept := q.entries[:0]
	stale := 0
	for _, msg := range q.entries {
		if msg.Stale(now, maxAge) {
			stale++
			continue
		}
		kept = append(kept, msg)
	}
	q.entries = kept
	depth := len(q.entries)
	q.mu.Unlock()

	if stale > 0 {
		observability.MessagesDroppedTotal.WithLabelValues("stale").Add(float64(stale))
		observability.OutboundQueueDepth.Set(float64(depth))
		q.persist(ctx)
	}
	return stale
}
