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
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianBench/services/bench"
)

// MemoryStore is a Store held in process memory. Records are lost on exit.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key]Record
	closed  bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key]Record)}
}

// Exists implements Store.
func (m *MemoryStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, fmt.Errorf("%w: store is closed", bench.ErrStoreUnavailable)
	}
	_, ok := m.records[key]
	return ok, nil
}

// Read implements Store.
func (m *MemoryStore) Read(ctx context.Context, key Key) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Record{}, fmt.Errorf("%w: store is closed", bench.ErrStoreUnavailable)
	}
	rec, ok := m.records[key]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", bench.ErrNotFound, key)
	}
	return cloneRecord(rec), nil
}

// Write implements Store.
func (m *MemoryStore) Write(ctx context.Context, rec Record, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: store is closed", bench.ErrStoreUnavailable)
	}
	if _, ok := m.records[rec.Key]; ok && !overwrite {
		return fmt.Errorf("%w: %s", bench.ErrAlreadyExists, rec.Key)
	}
	m.records[rec.Key] = cloneRecord(rec)
	return nil
}

// Scan implements Store. Records are ordered by their encoded key, as in
// BadgerStore.
func (m *MemoryStore) Scan(ctx context.Context, f Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("%w: store is closed", bench.ErrStoreUnavailable)
	}
	var out []Record
	for _, rec := range m.records {
		if f.Match(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Key.encode(), out[j].Key.encode()) < 0
	})
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close marks the store closed; later calls fail with ErrStoreUnavailable.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneRecord(r Record) Record {
	if r.Folds != nil {
		r.Folds = append([]float64(nil), r.Folds...)
	}
	return r
}
