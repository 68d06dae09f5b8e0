// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scoring

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/dataset"
)

// Fold is one train/held-out split, as trial indices.
type Fold struct {
	Train []int
	Test  []int
}

// SplitPolicy partitions a unit's trials into folds.
type SplitPolicy interface {
	Split(d dataset.Data) ([]Fold, error)
	Name() string
}

// DefaultFolds is the k of within-session cross-validation.
const DefaultFolds = 5

// StratifiedKFold splits trials into K folds that preserve class ratios.
//
// Trials of each class are dealt round-robin across folds, continuing the
// count from one class to the next so fold sizes differ by at most one.
// With Shuffle the within-class order is permuted by a generator seeded
// from Seed, so the folds are reproducible.
type StratifiedKFold struct {
	K       int
	Shuffle bool
	Seed    uint64
}

// Name implements SplitPolicy.
func (s StratifiedKFold) Name() string {
	return fmt.Sprintf("stratified_%d_fold", s.K)
}

// Split implements SplitPolicy.
//
// Outputs:
//
//	[]Fold - K folds with sorted indices.
//	error - Wraps bench.ErrDegenerateFold if K < 2 or there are fewer
//	        trials than folds.
func (s StratifiedKFold) Split(d dataset.Data) ([]Fold, error) {
	if s.K < 2 {
		return nil, fmt.Errorf("%w: k-fold needs k >= 2, got %d", bench.ErrDegenerateFold, s.K)
	}
	n := d.Len()
	if n < s.K {
		return nil, fmt.Errorf("%w: %d trials cannot fill %d folds", bench.ErrDegenerateFold, n, s.K)
	}

	byClass := make(map[int][]int)
	for i, y := range d.Y {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	var rng *rand.Rand
	if s.Shuffle {
		rng = rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
	}

	assign := make([]int, n)
	next := 0
	for _, c := range classes {
		idx := byClass[c]
		if rng != nil {
			rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
		for _, i := range idx {
			assign[i] = next % s.K
			next++
		}
	}

	folds := make([]Fold, s.K)
	for i, f := range assign {
		for k := range folds {
			if k == f {
				folds[k].Test = append(folds[k].Test, i)
			} else {
				folds[k].Train = append(folds[k].Train, i)
			}
		}
	}
	return folds, nil
}

// LeaveGroupOut holds out one group (session) and trains on the rest.
type LeaveGroupOut struct {
	Group string
}

// Name implements SplitPolicy.
func (l LeaveGroupOut) Name() string {
	return "leave_" + l.Group + "_out"
}

// Split implements SplitPolicy.
//
// Outputs:
//
//	[]Fold - A single fold.
//	error - Wraps bench.ErrDegenerateFold if the data carries no groups,
//	        or either side of the split is empty (a subject with a single
//	        session cannot be evaluated across sessions).
func (l LeaveGroupOut) Split(d dataset.Data) ([]Fold, error) {
	if len(d.Groups) != d.Len() {
		return nil, fmt.Errorf("%w: cross-session split needs session groups", bench.ErrDegenerateFold)
	}
	var f Fold
	for i, g := range d.Groups {
		if g == l.Group {
			f.Test = append(f.Test, i)
		} else {
			f.Train = append(f.Train, i)
		}
	}
	if len(f.Test) == 0 {
		return nil, fmt.Errorf("%w: no trials in held-out session %q", bench.ErrDegenerateFold, l.Group)
	}
	if len(f.Train) == 0 {
		return nil, fmt.Errorf("%w: no sessions left to train on besides %q", bench.ErrDegenerateFold, l.Group)
	}
	return []Fold{f}, nil
}
