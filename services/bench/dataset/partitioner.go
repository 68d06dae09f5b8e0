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
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/AleutianAI/AleutianBench/services/bench"
)

// Loader fetches the raw trials and labels of one unit.
//
// Implementations return an error wrapping bench.ErrMissingUnit when the
// unit has no data. Caching of raw data is the loader's concern.
type Loader interface {
	Load(ctx context.Context, unit Unit) (Raw, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, unit Unit) (Raw, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, unit Unit) (Raw, error) {
	return f(ctx, unit)
}

// Partitioner enumerates units and loads their encoded data.
//
// Thread Safety: Safe for concurrent use if the Loader is.
type Partitioner struct {
	loader Loader
	logger *slog.Logger
}

// NewPartitioner creates a partitioner over the given loader.
func NewPartitioner(loader Loader) *Partitioner {
	return &Partitioner{loader: loader, logger: slog.Default()}
}

// SetLogger replaces the partitioner's logger.
func (p *Partitioner) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Enumerate yields the dataset's units, subjects then sessions in declared
// order.
//
// Description:
//
//	The sequence is finite and performs no I/O. Each call starts a fresh
//	pass, so ranging over it again restarts the enumeration.
func (p *Partitioner) Enumerate(ds *Dataset) iter.Seq[Unit] {
	return func(yield func(Unit) bool) {
		for _, subj := range ds.Subjects {
			for _, sess := range subj.Sessions {
				if !yield(Unit{Dataset: ds.ID, Subject: subj.ID, Session: sess}) {
					return
				}
			}
		}
	}
}

// Units collects Enumerate into a slice.
func (p *Partitioner) Units(ds *Dataset) []Unit {
	var out []Unit
	for u := range p.Enumerate(ds) {
		out = append(out, u)
	}
	return out
}

// Load fetches and encodes one unit's trials.
//
// Outputs:
//
//	Data - Aligned rows and encoded labels.
//	error - Wraps bench.ErrMissingUnit if the unit is undeclared, the
//	        loader has no data, or the data is empty, misaligned, ragged
//	        or carries labels outside the encoding. Context errors are
//	        returned unwrapped.
func (p *Partitioner) Load(ctx context.Context, ds *Dataset, unit Unit) (Data, error) {
	if !ds.Declares(unit) {
		return Data{}, fmt.Errorf("%w: %s is not declared by dataset %s", bench.ErrMissingUnit, unit, ds.ID)
	}
	raw, err := p.loader.Load(ctx, unit)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Data{}, err
		}
		if errors.Is(err, bench.ErrMissingUnit) {
			return Data{}, err
		}
		return Data{}, fmt.Errorf("%w: load %s: %v", bench.ErrMissingUnit, unit, err)
	}
	data, err := encode(ds, raw)
	if err != nil {
		return Data{}, fmt.Errorf("%w: %s: %v", bench.ErrMissingUnit, unit, err)
	}
	p.logger.Debug("unit loaded",
		slog.String("unit", unit.String()),
		slog.Int("trials", data.Len()),
		slog.Int("features", data.Features()),
	)
	return data, nil
}

// LoadSubject loads every declared session of a subject and concatenates
// them, recording each trial's session in Data.Groups.
//
// Description:
//
//	Used by cross-session evaluation. A session that fails to load fails
//	the whole subject, since the training partition would silently shrink
//	otherwise.
func (p *Partitioner) LoadSubject(ctx context.Context, ds *Dataset, subject string) (Data, error) {
	subj, ok := ds.Subject(subject)
	if !ok {
		return Data{}, fmt.Errorf("%w: subject %s is not declared by dataset %s", bench.ErrMissingUnit, subject, ds.ID)
	}
	var out Data
	out.Groups = []string{}
	for _, sess := range subj.Sessions {
		d, err := p.Load(ctx, ds, Unit{Dataset: ds.ID, Subject: subject, Session: sess})
		if err != nil {
			return Data{}, err
		}
		if out.Len() > 0 && d.Features() != out.Features() {
			return Data{}, fmt.Errorf("%w: subject %s session %s has %d features, expected %d",
				bench.ErrMissingUnit, subject, sess, d.Features(), out.Features())
		}
		out.X = append(out.X, d.X...)
		out.Y = append(out.Y, d.Y...)
		for range d.Y {
			out.Groups = append(out.Groups, sess)
		}
	}
	return out, nil
}

func encode(ds *Dataset, raw Raw) (Data, error) {
	if len(raw.Trials) == 0 {
		return Data{}, errors.New("no trials")
	}
	if len(raw.Trials) != len(raw.Labels) {
		return Data{}, fmt.Errorf("%d trials but %d labels", len(raw.Trials), len(raw.Labels))
	}
	width := len(raw.Trials[0])
	if width == 0 {
		return Data{}, errors.New("trials have no features")
	}
	for i, row := range raw.Trials {
		if len(row) != width {
			return Data{}, fmt.Errorf("trial %d has %d features, expected %d", i, len(row), width)
		}
	}
	y, err := ds.Encoding.Encode(raw.Labels)
	if err != nil {
		return Data{}, err
	}
	return Data{X: raw.Trials, Y: y}, nil
}
