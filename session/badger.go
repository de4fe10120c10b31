package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/TFMV/graphview/render"
)

const overridePrefix = "override/"

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Empty with InMemory false is an error.
	Path     string
	InMemory bool
	TTL      time.Duration
	Logger   *zap.Logger
}

// badgerLogger adapts zap to badger's logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// BadgerStore persists overrides in BadgerDB with a per-entry TTL, so a
// session's choice survives process restarts but not indefinitely.
type BadgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *zap.Logger
}

// OpenBadgerStore opens (or creates) the store.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent session store")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create session store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: logger.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	logger.Info("session store opened", zap.String("path", cfg.Path), zap.Bool("in_memory", cfg.InMemory))
	return &BadgerStore{db: db, ttl: cfg.TTL, logger: logger}, nil
}

func overrideKey(sessionID string) []byte {
	return []byte(overridePrefix + sessionID)
}

func (s *BadgerStore) Get(ctx context.Context, sessionID string) (render.RenderMode, bool, error) {
	if err := ctx.Err(); err != nil {
		return render.ModeVector, false, err
	}
	var (
		mode  render.RenderMode
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(overrideKey(sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			found = true
			return mode.UnmarshalText(val)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrDBClosed) {
			return render.ModeVector, false, ErrClosed
		}
		return render.ModeVector, false, fmt.Errorf("get override %s: %w", sessionID, err)
	}
	return mode, found, nil
}

func (s *BadgerStore) Set(ctx context.Context, sessionID string, mode render.RenderMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, _ := mode.MarshalText()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(overrideKey(sessionID), val).WithTTL(s.ttl))
	})
	if err != nil {
		if errors.Is(err, badger.ErrDBClosed) {
			return ErrClosed
		}
		return fmt.Errorf("set override %s: %w", sessionID, err)
	}
	s.logger.Debug("override stored", zap.String("session", sessionID), zap.Stringer("mode", mode))
	return nil
}

func (s *BadgerStore) Clear(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(overrideKey(sessionID))
	})
	if err != nil {
		if errors.Is(err, badger.ErrDBClosed) {
			return ErrClosed
		}
		return fmt.Errorf("clear override %s: %w", sessionID, err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
