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

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/scoring"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
)

// TypeLDA is the registry name of LDA.
const TypeLDA = "lda"

// ShrinkageAuto selects the Ledoit-Wolf shrinkage intensity.
const ShrinkageAuto = -1

// LDA is two-class linear discriminant analysis with optional covariance
// shrinkage toward a scaled identity.
//
// Description:
//
//	The pooled within-class covariance S is replaced by
//	(1-a)S + a(tr(S)/p)I, with a = Shrinkage, or the Ledoit-Wolf estimate
//	when Shrinkage is ShrinkageAuto. The decision function is
//	w.x + b with w = S^-1 (mu1 - mu0).
type LDA struct {
	// Shrinkage is in [0, 1], or ShrinkageAuto.
	Shrinkage float64

	w []float64
	b float64
}

// Fit estimates class means and the shrunk pooled covariance.
func (m *LDA) Fit(x [][]float64, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("lda: %d rows and %d labels", len(x), len(y))
	}
	p := len(x[0])
	mu := [2][]float64{make([]float64, p), make([]float64, p)}
	var count [2]int
	for i, row := range x {
		c := classIndex(y[i])
		count[c]++
		for j, v := range row {
			mu[c][j] += v
		}
	}
	if count[0] == 0 || count[1] == 0 {
		return errors.New("lda: both classes are required")
	}
	for c := range mu {
		for j := range mu[c] {
			mu[c][j] /= float64(count[c])
		}
	}

	centred := make([][]float64, len(x))
	for i, row := range x {
		mean := mu[classIndex(y[i])]
		r := make([]float64, p)
		for j, v := range row {
			r[j] = v - mean[j]
		}
		centred[i] = r
	}
	cov := covariance(centred)

	alpha := m.Shrinkage
	if alpha == ShrinkageAuto {
		alpha = ledoitWolf(centred)
	}
	if alpha > 0 {
		var trace float64
		for j := 0; j < p; j++ {
			trace += cov[j][j]
		}
		target := trace / float64(p)
		for i := range cov {
			for j := range cov[i] {
				cov[i][j] *= 1 - alpha
			}
			cov[i][i] += alpha * target
		}
	}

	diff := make([]float64, p)
	for j := range diff {
		diff[j] = mu[1][j] - mu[0][j]
	}
	w, err := solve(cov, diff)
	if err != nil {
		return fmt.Errorf("lda: %w; try shrinkage", err)
	}
	var b float64
	for j := range w {
		b -= w[j] * (mu[0][j] + mu[1][j]) / 2
	}
	b += math.Log(float64(count[1]) / float64(count[0]))
	m.w, m.b = w, b
	return nil
}

// DecisionFunction returns w.x + b; positive values favour class 1.
func (m *LDA) DecisionFunction(x [][]float64) ([]float64, error) {
	if m.w == nil {
		return nil, errNotFitted
	}
	return linear(m.w, m.b, x)
}

func classIndex(y int) int {
	if y == 1 {
		return 1
	}
	return 0
}

// covariance returns X^T X / n for already centred rows.
func covariance(x [][]float64) [][]float64 {
	p := len(x[0])
	cov := make([][]float64, p)
	for i := range cov {
		cov[i] = make([]float64, p)
	}
	for _, row := range x {
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				cov[i][j] += row[i] * row[j]
			}
		}
	}
	n := float64(len(x))
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			cov[i][j] /= n
			cov[j][i] = cov[i][j]
		}
	}
	return cov
}

// ledoitWolf estimates the optimal shrinkage intensity for centred rows,
// clipped to [0, 1].
func ledoitWolf(x [][]float64) float64 {
	n := float64(len(x))
	p := len(x[0])
	cov := covariance(x)

	var mu float64
	for j := 0; j < p; j++ {
		mu += cov[j][j]
	}
	mu /= float64(p)

	// delta = ||S - mu I||_F^2 / p
	var delta float64
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			d := cov[i][j]
			if i == j {
				d -= mu
			}
			delta += d * d
		}
	}
	delta /= float64(p)

	// beta = sum_k ||x_k x_k^T - S||_F^2 / (n^2 p)
	var beta float64
	for _, row := range x {
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				d := row[i]*row[j] - cov[i][j]
				beta += d * d
			}
		}
	}
	beta /= n * n * float64(p)

	if delta == 0 {
		return 0
	}
	return math.Min(beta, delta) / delta
}

// solve returns x with a x = b by Gaussian elimination with partial
// pivoting. a and b are not modified.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	m := make([][]float64, n)
	for i := range a {
		m[i] = make([]float64, n+1)
		copy(m[i], a[i])
		m[i][n] = b[i]
	}

	var scale float64
	for i := range a {
		for _, v := range a[i] {
			scale = math.Max(scale, math.Abs(v))
		}
	}
	eps := 1e-12 * math.Max(scale, 1)

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) <= eps {
			return nil, errors.New("singular covariance matrix")
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := col + 1; r < n; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c <= n; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}

	out := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		s := m[i][n]
		for j := i + 1; j < n; j++ {
			s -= m[i][j] * out[j]
		}
		out[i] = s / m[i][i]
	}
	return out, nil
}

type ldaBuilder struct {
	shrinkage float64
	auto      bool
	none      bool
}

func parseLDA(p signature.Params) (Builder, error) {
	r := newParamReader(TypeLDA, p)
	b := ldaBuilder{none: true}
	if v, ok := r.raw("shrinkage"); ok {
		b.none = false
		if s, isStr := v.AsString(); isStr {
			if s != "auto" {
				return nil, fmt.Errorf("%w: lda shrinkage must be a number in [0,1], \"auto\" or null, got %q",
					bench.ErrInvalidPipeline, s)
			}
			b.auto = true
		} else if f, isNum := v.AsFloat(); isNum {
			if !(f >= 0 && f <= 1) {
				return nil, fmt.Errorf("%w: lda shrinkage %v is outside [0,1]", bench.ErrInvalidPipeline, f)
			}
			b.shrinkage = f
		} else {
			return nil, fmt.Errorf("%w: lda shrinkage must be a number, \"auto\" or null, got %s",
				bench.ErrInvalidPipeline, v.Kind())
		}
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b ldaBuilder) Params() signature.Params {
	switch {
	case b.none:
		return signature.Params{"shrinkage": signature.Null()}
	case b.auto:
		return signature.Params{"shrinkage": signature.String("auto")}
	default:
		return signature.Params{"shrinkage": signature.Float(b.shrinkage)}
	}
}

func (b ldaBuilder) Build() scoring.Step {
	switch {
	case b.auto:
		return &LDA{Shrinkage: ShrinkageAuto}
	default:
		return &LDA{Shrinkage: b.shrinkage}
	}
}
