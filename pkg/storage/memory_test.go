package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, store.Set(ctx, "k", payload{Name: "a", Count: 3}))

	var got payload
	require.NoError(t, store.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "a", Count: 3}, got)

	require.NoError(t, store.Remove(ctx, "k"))
	err := store.Get(ctx, "k", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore()

	var dest map[string]string
	err := store.Get(context.Background(), "missing", &dest)
	assert.ErrorIs(t, err, ErrNotFound)
}
