package realtime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridesync/internal/models"
	"ridesync/pkg/logger"
	"ridesync/pkg/storage"
)

func newTestQueue(limit int) (*messageQueue, storage.Store) {
	store := storage.NewMemoryStore()
	return newMessageQueue(limit, store, logger.NewNop()), store
}

func msg(id string, age time.Duration) models.QueuedMessage {
	return models.QueuedMessage{
		ID:         id,
		Type:       "chat_message",
		EnqueuedAt: time.Now().Add(-age),
	}
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q, _ := newTestQueue(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		q.push(ctx, msg(fmt.Sprintf("m-%d", i), 0))
	}

	require.Equal(t, 3, q.depth())
	first, ok := q.pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "m-2", first.ID, "oldest entries beyond the cap are dropped")
}

func TestQueuePushFrontPreservesOrder(t *testing.T) {
	q, _ := newTestQueue(10)
	ctx := context.Background()

	q.push(ctx, msg("m-1", 0))
	q.push(ctx, msg("m-2", 0))

	head, ok := q.pop(ctx)
	require.True(t, ok)
	head.RetryCount++
	q.pushFront(ctx, head)

	again, ok := q.pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "m-1", again.ID)
	assert.Equal(t, 1, again.RetryCount)
}

func TestQueueDropStale(t *testing.T) {
	q, _ := newTestQueue(10)
	ctx := context.Background()

	q.push(ctx, msg("fresh", time.Minute))
	q.push(ctx, msg("stale", 10*time.Minute))

	dropped := q.dropStale(ctx, time.Now(), 5*time.Minute)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, q.depth())

	remaining, ok := q.pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "fresh", remaining.ID)
}

func TestQueuePersistsAcrossLoad(t *testing.T) {
	q, store := newTestQueue(10)
	ctx := context.Background()

	q.push(ctx, msg("m-1", 0))
	q.push(ctx, msg("m-2", 0))

	reloaded := newMessageQueue(10, store, logger.NewNop())
	require.NoError(t, reloaded.load(ctx))
	assert.Equal(t, 2, reloaded.depth())
}
