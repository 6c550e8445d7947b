// Package badger provides a Badger-backed timer.Store for deployments that keep
// timer records apart from the entity database.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
	"git.home.luguber.info/inful/laundrycycle/internal/timer"
)

var timerPrefix = []byte("timer/")

// Config configures the Badger database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM. For tests only.
	InMemory bool
	// SyncWrites fsyncs every commit. Timer records must be durable before a
	// countdown is armed, so this stays on outside tests.
	SyncWrites bool
	// GCDiscardRatio is passed to RunValueLogGC.
	GCDiscardRatio float64
	Logger         *slog.Logger
}

// DefaultConfig returns the configuration for a persistent store at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true, GCDiscardRatio: 0.5}
}

// InMemoryConfig returns a configuration for an ephemeral store.
func InMemoryConfig() Config {
	return Config{InMemory: true, GCDiscardRatio: 0.5}
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// TimerStore implements timer.Store on Badger.
type TimerStore struct {
	db     *badger.DB
	ratio  float64
	logger *slog.Logger
}

var _ timer.Store = (*TimerStore)(nil)

// Open opens the Badger database described by cfg.
func Open(cfg Config) (*TimerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		logger = slog.Default()
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &TimerStore{db: db, ratio: cfg.GCDiscardRatio, logger: logger}, nil
}

func timerKey(entityID string) []byte {
	return append(append([]byte{}, timerPrefix...), entityID...)
}

func (s *TimerStore) LoadAll(ctx context.Context) ([]timer.Record, error) {
	var out []timer.Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(timerPrefix); it.ValidForPrefix(timerPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec timer.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode timer %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load timers: %w", err)
	}
	return out, nil
}

func (s *TimerStore) Save(_ context.Context, rec timer.Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode timer %s: %w", rec.EntityID, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(timerKey(rec.EntityID), val)
	}); err != nil {
		return fmt.Errorf("save timer %s: %w", rec.EntityID, err)
	}
	return nil
}

func (s *TimerStore) Delete(_ context.Context, entityID string) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(timerKey(entityID))
	}); err != nil {
		return fmt.Errorf("delete timer %s: %w", entityID, err)
	}
	return nil
}

// RunGC reclaims value log space. It is scheduled by the daemon.
func (s *TimerStore) RunGC() error {
	if s.db.Opts().InMemory {
		return nil
	}
	err := s.db.RunValueLogGC(s.ratio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		s.logger.Warn("badger value log GC error", logfields.Error(err))
		return err
	}
	return nil
}

// Close closes the database.
func (s *TimerStore) Close() error {
	return s.db.Close()
}
