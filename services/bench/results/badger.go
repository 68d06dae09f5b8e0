// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds how often a write is retried after losing an
// optimistic transaction race on the same key.
const maxConflictRetries = 16

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string `yaml:"path"`

	// InMemory keeps the store in RAM only. Used by tests.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites fsyncs every commit so a successful Write survives a crash.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often value log GC runs. 0 disables it.
	GCInterval time.Duration `yaml:"gc_interval"`

	// GCDiscardRatio is the minimum garbage ratio that triggers a rewrite.
	GCDiscardRatio float64 `yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`

	// ReadOnly opens the store without write access. Any number of
	// read-only opens can share a directory, but none can coexist with a
	// writer. A directory with no store yet is initialised empty first.
	ReadOnly bool `yaml:"-"`

	// Logger receives badger's internal log lines. Nil silences them.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultBadgerConfig returns durable settings for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns settings for a throwaway store.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// BadgerStore is a Store backed by BadgerDB.
//
// Description:
//
//	Records are JSON values under length-prefixed keys. Writes run in
//	optimistic transactions: a write without overwrite reads the key first,
//	so two racing writers conflict and the loser retries, finds the key and
//	reports bench.ErrAlreadyExists. A write with overwrite only sets the
//	key, so the last commit wins.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db       *badger.DB
	gc       *gcRunner
	path     string
	readOnly bool
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// OpenBadger opens or creates a store.
//
// Outputs:
//
//	*BadgerStore - The store. Caller must call Close.
//	error - Wraps bench.ErrStoreUnavailable if the database cannot be
//	        opened, e.g. because another process holds its lock.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: store path is required", bench.ErrStoreUnavailable)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("%w: create store directory %s: %w", bench.ErrStoreUnavailable, cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
		if cfg.ReadOnly {
			if err := initEmpty(cfg.Path); err != nil {
				return nil, err
			}
			opts = opts.WithReadOnly(true)
		}
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", bench.ErrStoreUnavailable, cfg.Path, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &BadgerStore{db: db, path: cfg.Path, readOnly: cfg.ReadOnly && !cfg.InMemory, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory && !s.readOnly {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.start()
	}
	return s, nil
}

// manifestFile marks a directory that already holds a badger database.
const manifestFile = "MANIFEST"

// initEmpty creates an empty database at path if none exists, since
// badger cannot open a missing database read-only.
func initEmpty(path string) error {
	_, err := os.Stat(filepath.Join(path, manifestFile))
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: stat %s: %w", bench.ErrStoreUnavailable, path, err)
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("%w: initialise %s: %w", bench.ErrStoreUnavailable, path, err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("%w: initialise %s: %w", bench.ErrStoreUnavailable, path, err)
	}
	return nil
}

// Path returns the database directory, or "" for in-memory stores.
func (s *BadgerStore) Path() string { return s.path }

// Exists implements Store.
func (s *BadgerStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key.encode())
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return false, unavailable("exists", key, err)
	}
	return found, nil
}

// Read implements Store.
func (s *BadgerStore) Read(ctx context.Context, key Key) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.encode())
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: %s", bench.ErrNotFound, key)
	}
	if err != nil {
		return Record{}, unavailable("read", key, err)
	}
	return rec, nil
}

// Write implements Store.
func (s *BadgerStore) Write(ctx context.Context, rec Record, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.readOnly {
		return fmt.Errorf("%w: %s is open read-only", bench.ErrStoreUnavailable, s.path)
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", bench.ErrInvalidRecord, rec.Key, err)
	}
	k := rec.Key.encode()

	for attempt := 0; ; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			if !overwrite {
				_, err := txn.Get(k)
				if err == nil {
					return bench.ErrAlreadyExists
				}
				if !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
			}
			return txn.SetEntry(badger.NewEntry(k, val))
		})
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			break
		}
		s.logger.Debug("result write conflict, retrying",
			slog.String("key", rec.Key.String()),
			slog.Int("attempt", attempt+1),
		)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, bench.ErrAlreadyExists):
		return fmt.Errorf("%w: %s", bench.ErrAlreadyExists, rec.Key)
	default:
		return unavailable("write", rec.Key, err)
	}
}

// Scan implements Store.
func (s *BadgerStore) Scan(ctx context.Context, f Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := f.scanPrefix()
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %q: %w", bytes.TrimPrefix(it.Item().Key(), []byte(keyPrefix)), err)
			}
			if f.Match(rec) {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan: %w", bench.ErrStoreUnavailable, err)
	}
	return out, nil
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() {
		if s.gc != nil {
			s.gc.stop()
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func unavailable(op string, key Key, err error) error {
	return fmt.Errorf("%w: %s %s: %w", bench.ErrStoreUnavailable, op, key, err)
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// gcRunner periodically rewrites value log files.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) start() { go r.run() }

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite only means there was nothing to collect.
			if err := r.db.RunValueLogGC(r.ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				r.logger.Warn("result store GC failed", slog.String("error", err.Error()))
			}
		}
	}
}
