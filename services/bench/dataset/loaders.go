// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianBench/services/bench"
)

// MemoryLoader serves units from memory. Used by tests and embedders.
//
// Thread Safety: Safe for concurrent use.
type MemoryLoader struct {
	mu    sync.RWMutex
	units map[Unit]Raw
}

// NewMemoryLoader creates an empty loader.
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{units: make(map[Unit]Raw)}
}

// Put stores the raw data for a unit, replacing any previous data.
func (m *MemoryLoader) Put(unit Unit, raw Raw) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[unit] = raw
}

// Load implements Loader.
func (m *MemoryLoader) Load(ctx context.Context, unit Unit) (Raw, error) {
	if err := ctx.Err(); err != nil {
		return Raw{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.units[unit]
	if !ok {
		return Raw{}, fmt.Errorf("%w: %s", bench.ErrMissingUnit, unit)
	}
	return raw, nil
}

// sessionExt is the file extension of a session file.
const sessionExt = ".json"

// FileLoader reads sessions stored as JSON files laid out as
//
//	<root>/<subject>/<session>.json
//
// where each file holds {"trials": [[...], ...], "labels": ["Target", ...]}.
//
// Thread Safety: Safe for concurrent use.
type FileLoader struct {
	mu    sync.RWMutex
	roots map[string]string
}

// NewFileLoader creates a loader with no dataset roots registered.
func NewFileLoader() *FileLoader {
	return &FileLoader{roots: make(map[string]string)}
}

// AddRoot registers the directory holding a dataset's sessions.
func (l *FileLoader) AddRoot(datasetID, root string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roots[datasetID] = root
}

// Load implements Loader.
func (l *FileLoader) Load(ctx context.Context, unit Unit) (Raw, error) {
	if err := ctx.Err(); err != nil {
		return Raw{}, err
	}
	l.mu.RLock()
	root, ok := l.roots[unit.Dataset]
	l.mu.RUnlock()
	if !ok {
		return Raw{}, fmt.Errorf("%w: no root registered for dataset %s", bench.ErrMissingUnit, unit.Dataset)
	}

	path := filepath.Join(root, unit.Subject, unit.Session+sessionExt)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Raw{}, fmt.Errorf("%w: %s", bench.ErrMissingUnit, path)
		}
		return Raw{}, fmt.Errorf("read %s: %w", path, err)
	}
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return Raw{}, fmt.Errorf("%w: decode %s: %v", bench.ErrMissingUnit, path, err)
	}
	return raw, nil
}

// WriteSession stores raw data at the file loader's layout under root.
func WriteSession(root string, unit Unit, raw Raw) error {
	dir := filepath.Join(root, unit.Subject)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create subject directory %s: %w", dir, err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode %s: %w", unit, err)
	}
	return os.WriteFile(filepath.Join(dir, unit.Session+sessionExt), data, 0640)
}

// Discover builds a descriptor from a directory in the file loader's layout.
//
// Description:
//
//	Every subdirectory of root is a subject and every *.json file in it is
//	a session. Subjects and sessions are sorted by name so enumeration
//	order is stable across machines. If enc is nil the paradigm's default
//	encoding is used.
func Discover(id, paradigm string, enc LabelEncoding, root string) (*Dataset, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dataset root %s: %w", root, err)
	}
	if enc == nil {
		enc = EncodingFor(paradigm)
	}
	ds := &Dataset{ID: id, Paradigm: paradigm, Encoding: enc}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read subject %s: %w", e.Name(), err)
		}
		subj := Subject{ID: e.Name()}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), sessionExt) {
				continue
			}
			subj.Sessions = append(subj.Sessions, strings.TrimSuffix(f.Name(), sessionExt))
		}
		if len(subj.Sessions) == 0 {
			continue
		}
		sort.Strings(subj.Sessions)
		ds.Subjects = append(ds.Subjects, subj)
	}
	sort.Slice(ds.Subjects, func(i, j int) bool { return ds.Subjects[i].ID < ds.Subjects[j].ID })
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}
