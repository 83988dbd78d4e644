// Package badger implements db.Store on an embedded BadgerDB.
//
// It is the default device-local store: one process owns the directory,
// and compare-and-swap runs inside a read-write transaction so concurrent
// goroutines that race on the same key lose with badger.ErrConflict.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// versionSize is the length of the big-endian version header on every record.
const versionSize = 8

var errVersionMismatch = errors.New("version mismatch")

// Config holds BadgerDB settings.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM (tests, ephemeral sessions).
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives BadgerDB's internal log lines. Nil disables them.
	Logger *zap.Logger
}

// Store implements db.Store on BadgerDB.
type Store struct {
	db *badger.DB
}

// NewStore opens (or creates) a BadgerDB.
func NewStore(cfg Config) (*Store, error) {
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

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: bdb}, nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return &db.Error{Op: db.OpPing, Err: errors.New("database closed")}
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady returns once Ping succeeds. An opened Badger is ready immediately.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return db.WaitForReady(ctx, s, timeout)
}

// GetVersioned returns the payload and version stored at key.
func (s *Store) GetVersioned(_ context.Context, key string) ([]byte, uint64, error) {
	var (
		data []byte
		ver  uint64
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		data, ver, err = read(txn, key)
		return err
	})
	switch {
	case err == nil:
		return data, ver, nil
	case errors.Is(err, db.ErrKeyNotFound), errors.Is(err, db.ErrCorruptRecord):
		return nil, 0, err
	default:
		return nil, 0, &db.Error{Op: db.OpView, Err: err}
	}
}

// CompareAndSwap writes value iff the stored version equals version.
func (s *Store) CompareAndSwap(_ context.Context, key string, version uint64, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, cur, err := read(txn, key)
		if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
			return err
		}
		if cur != version {
			return errVersionMismatch
		}
		return txn.Set([]byte(key), encode(version+1, value))
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errVersionMismatch), errors.Is(err, badger.ErrConflict):
		return db.ErrVersionConflict
	default:
		return &db.Error{Op: db.OpUpdate, Err: err}
	}
}

func read(txn *badger.Txn, key string) ([]byte, uint64, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, 0, db.ErrKeyNotFound
		}
		return nil, 0, err //nolint:wrapcheck // wrapped by the caller
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, 0, err //nolint:wrapcheck // wrapped by the caller
	}
	return decode(raw)
}

func encode(version uint64, payload []byte) []byte {
	buf := make([]byte, versionSize+len(payload))
	binary.BigEndian.PutUint64(buf, version)
	copy(buf[versionSize:], payload)
	return buf
}

func decode(raw []byte) ([]byte, uint64, error) {
	if len(raw) < versionSize {
		return nil, 0, fmt.Errorf("record of %d bytes: %w", len(raw), db.ErrCorruptRecord)
	}
	return raw[versionSize:], binary.BigEndian.Uint64(raw[:versionSize]), nil
}

// badgerLogger adapts zap to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.logger.Infof(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.logger.Debugf(format, args...) }
