package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridesync/internal/config"
	"ridesync/pkg/logger"
	"ridesync/pkg/storage"
)

// LedgerEntry records one idempotency key issued for a mutating
// financial call.
type LedgerEntry struct {
	Key       string    `json:"key"`
	RideID    string    `json:"ride_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
	ResultID  string    `json:"result_id,omitempty"`
}

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Ledger tracks issued idempotency keys so the same financial mutation
// is never submitted twice. Entries persist across restarts and are
// pruned after the configured retention window.
type Ledger struct {
	cfg   *config.PolicyConfig
	store storage.Store
	log   *logger.Logger

	mu      sync.Mutex
	entries map[string]LedgerEntry
}

func NewLedger(cfg *config.PolicyConfig, store storage.Store, log *logger.Logger) (*Ledger, error) {
	if log == nil {
		log = logger.NewNop()
	}

	l := &Ledger{
		cfg:     cfg,
		store:   store,
		log:     log.WithField("component", "payments"),
		entries: make(map[string]LedgerEntry),
	}

	var entries map[string]LedgerEntry
	err := store.Get(context.Background(), storage.KeyIdempotencyLedger, &entries)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("payments: restore idempotency ledger: %w", err)
	}
	if entries != nil {
		l.entries = entries
	}

	return l, nil
}

// NewKey builds a key unique per (ride, amount, time, random).
func NewKey(rideID string, amount float64) string {
	cents := int64(amount * 100)
	return fmt.Sprintf("%s|%d|%d|%s", rideID, cents, time.Now().UnixNano(), uuid.NewString())
}

// Register records a key before its request is sent. Registering a key
// twice returns false without touching the existing entry.
func (l *Ledger) Register(ctx context.Context, key, rideID string, amount float64) bool {
	l.mu.Lock()
	if _, exists := l.entries[key]; exists {
		l.mu.Unlock()
		l.log.WithRideID(rideID).WithField("idempotency_key", key).
			Warn("Duplicate idempotency key registration rejected")
		return false
	}
	l.entries[key] = LedgerEntry{
		Key:       key,
		RideID:    rideID,
		Amount:    amount,
		CreatedAt: time.Now(),
		Status:    StatusPending,
	}
	l.mu.Unlock()

	l.persist(ctx)
	return true
}

// Resolve records the final status of a registered key.
func (l *Ledger) Resolve(ctx context.Context, key, status, resultID string) error {
	l.mu.Lock()
	entry, exists := l.entries[key]
	if !exists {
		l.mu.Unlock()
		return fmt.Errorf("payments: unknown idempotency key %q", key)
	}
	entry.Status = status
	entry.ResultID = resultID
	l.entries[key] = entry
	l.mu.Unlock()

	l.persist(ctx)
	return nil
}

// Lookup returns the ledger entry for a key, if registered.
func (l *Ledger) Lookup(key string) (LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	return entry, ok
}

// Prune drops entries older than the retention window.
func (l *Ledger) Prune(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-l.cfg.IdempotencyTTL)

	l.mu.Lock()
	pruned := 0
	for key, entry := range l.entries {
		if entry.CreatedAt.Before(cutoff) {
			delete(l.entries, key)
			pruned++
		}
	}
	l.mu.Unlock()

	if pruned > 0 {
		l.log.WithField("pruned", pruned).Info("Pruned expired idempotency keys")
		l.persist(ctx)
	}
	return pruned
}

func (l *Ledger) persist(ctx context.Context) {
	l.mu.Lock()
	entries := make(map[string]LedgerEntry, len(l.entries))
	for k, v := range l.entries {
		entries[k] = v
	}
	l.mu.Unlock()

	if err := l.store.Set(ctx, storage.KeyIdempotencyLedger, entries); err != nil {
		l.log.WithError(err).Error("Failed to persist idempotency ledger")
	}
}
