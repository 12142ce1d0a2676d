package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"ridesync/pkg/logger"
)

// BadgerStore is the default durable store backend, an embedded
// BadgerDB instance with synchronous writes.
type BadgerStore struct {
	db  *badger.DB
	log *logger.Logger
}

type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory disables disk persistence. Useful for tests.
	InMemory bool

	// SyncWrites forces every write to disk before returning.
	SyncWrites bool

	// GCInterval is how often value log garbage collection runs.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before GC rewrites
	// a value log file.
	GCDiscardRatio float64
}

func DefaultBadgerConfig(path string) *BadgerConfig {
	return &BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// badgerLogAdapter bridges BadgerDB's internal logging onto our logger.
type badgerLogAdapter struct {
	log *logger.Logger
}

func (a *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	a.log.Errorf(format, args...)
}

func (a *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	a.log.Warnf(format, args...)
}

func (a *badgerLogAdapter) Infof(format string, args ...interface{}) {
	a.log.Debugf(format, args...)
}

func (a *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	a.log.Debugf(format, args...)
}

func NewBadgerStore(config *BadgerConfig, log *logger.Logger) (*BadgerStore, error) {
	if log == nil {
		log = logger.NewNop()
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Path == "" {
			return nil, errors.New("storage: badger path is required")
		}
		if err := os.MkdirAll(config.Path, 0750); err != nil {
			return nil, fmt.Errorf("storage: create badger directory %s: %w", config.Path, err)
		}
		opts = badger.DefaultOptions(config.Path)
	}

	opts = opts.WithSyncWrites(config.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLogger(&badgerLogAdapter{log: log.WithField("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger database: %w", err)
	}

	store := &BadgerStore{
		db:  db,
		log: log,
	}

	if config.GCInterval > 0 && !config.InMemory {
		go store.runGC(config.GCInterval, config.GCDiscardRatio)
	}

	return store, nil
}

func (s *BadgerStore) Get(ctx context.Context, key string, dest interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("storage: get %s: %w", key, err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
}

func (s *BadgerStore) Set(ctx context.Context, key string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", key, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *BadgerStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		err := s.db.RunValueLogGC(ratio)
		if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			if errors.Is(err, badger.ErrRejected) {
				// DB closed; stop the GC loop.
				return
			}
			s.log.WithError(err).Warn("Badger value log GC failed")
		}
	}
}
