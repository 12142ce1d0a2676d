package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is the durable key-value boundary used by the resilience,
// realtime and location managers. Values are JSON-serializable and
// survive process restarts (except for the in-memory backend).
//
// Managers writing concurrently must use distinct keys; Get/Set on the
// same key is a non-transactional read-modify-write.
type Store interface {
	// Get unmarshals the value stored under key into dest.
	// Returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set marshals value to JSON and stores it under key.
	Set(ctx context.Context, key string, value interface{}) error

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	Close() error
}

// Keys used by the sync core. Each queue owns its key so concurrent
// writers never clobber each other.
const (
	KeyOfflineRequestQueue = "ridesync:offline_request_queue"
	KeyOutboundMessages    = "ridesync:outbound_message_queue"
	KeyLastKnownLocation   = "ridesync:last_known_location"
	KeyIdempotencyLedger   = "ridesync:idempotency_ledger"
)
