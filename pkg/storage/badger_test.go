package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInMemoryBadger(t *testing.T) *BadgerStore {
	t.Helper()

	store, err := NewBadgerStore(&BadgerConfig{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store := newInMemoryBadger(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, store.Set(ctx, "k", payload{Name: "a", Count: 3}))

	var got payload
	require.NoError(t, store.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "a", Count: 3}, got)

	require.NoError(t, store.Set(ctx, "k", payload{Name: "b", Count: 4}))
	require.NoError(t, store.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "b", Count: 4}, got, "set overwrites")
}

func TestBadgerStoreMissingKey(t *testing.T) {
	store := newInMemoryBadger(t)

	var dest map[string]string
	err := store.Get(context.Background(), "missing", &dest)
	assert.ErrorIs(t, err, ErrNotFound, "absent key must agree with the other backends")
}

func TestBadgerStoreRemove(t *testing.T) {
	store := newInMemoryBadger(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v"))
	require.NoError(t, store.Remove(ctx, "k"))

	var dest string
	assert.ErrorIs(t, store.Get(ctx, "k", &dest), ErrNotFound)

	assert.NoError(t, store.Remove(ctx, "never-set"), "removing an absent key is not an error")
}

func TestBadgerStoreCancelledContext(t *testing.T) {
	store := newInMemoryBadger(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Set(ctx, "k", "v"))
	assert.Error(t, store.Get(ctx, "k", new(string)))
}
