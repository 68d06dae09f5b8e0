// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package estimators

import (
	"errors"
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianBench/services/bench/scoring"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
)

// TypeStandardScaler is the registry name of StandardScaler.
const TypeStandardScaler = "standard_scaler"

// errNotFitted is returned when a step is used before Fit.
var errNotFitted = errors.New("step is not fitted")

// StandardScaler standardises each feature to zero mean and unit variance
// using statistics from the training rows. Constant features keep a scale
// of 1.
type StandardScaler struct {
	WithMean bool
	WithStd  bool

	mean  []float64
	scale []float64
}

// Fit computes per-feature mean and population standard deviation.
func (s *StandardScaler) Fit(x [][]float64, _ []int) error {
	if len(x) == 0 {
		return errors.New("standard_scaler: no rows")
	}
	p := len(x[0])
	mean := make([]float64, p)
	for _, row := range x {
		if len(row) != p {
			return fmt.Errorf("standard_scaler: ragged row of width %d, expected %d", len(row), p)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(x))
	for j := range mean {
		mean[j] /= n
	}
	scale := make([]float64, p)
	for _, row := range x {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	s.mean, s.scale = mean, scale
	return nil
}

// Transform returns standardised copies of the rows.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	if s.mean == nil {
		return nil, errNotFitted
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.mean) {
			return nil, fmt.Errorf("standard_scaler: row %d has %d features, fitted on %d", i, len(row), len(s.mean))
		}
		r := make([]float64, len(row))
		for j, v := range row {
			if s.WithMean {
				v -= s.mean[j]
			}
			if s.WithStd {
				v /= s.scale[j]
			}
			r[j] = v
		}
		out[i] = r
	}
	return out, nil
}

type scalerBuilder struct {
	withMean, withStd bool
}

func parseStandardScaler(p signature.Params) (Builder, error) {
	r := newParamReader(TypeStandardScaler, p)
	b := scalerBuilder{
		withMean: r.bool("with_mean", true),
		withStd:  r.bool("with_std", true),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b scalerBuilder) Params() signature.Params {
	return signature.Params{
		"with_mean": signature.Bool(b.withMean),
		"with_std":  signature.Bool(b.withStd),
	}
}

func (b scalerBuilder) Build() scoring.Step {
	return &StandardScaler{WithMean: b.withMean, WithStd: b.withStd}
}
