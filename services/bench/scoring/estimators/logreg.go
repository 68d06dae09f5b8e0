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

// TypeLogisticRegression is the registry name of LogisticRegression.
const TypeLogisticRegression = "logistic_regression"

// LogisticRegression is an L2-regularised binary logistic regression fit
// by full-batch gradient descent. Class 1 is the positive class.
type LogisticRegression struct {
	// C is the inverse regularisation strength.
	C            float64
	MaxIter      int
	LearningRate float64
	// Tol stops descent once the largest gradient component falls below it.
	Tol          float64

	w []float64
	b float64
}

// Fit minimises mean log-loss + ||w||^2 / (2 C n).
func (m *LogisticRegression) Fit(x [][]float64, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("logistic_regression: %d rows and %d labels", len(x), len(y))
	}
	n, p := len(x), len(x[0])
	w := make([]float64, p)
	var b float64
	grad := make([]float64, p)
	lambda := 1 / (m.C * float64(n))

	for iter := 0; iter < m.MaxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		var gb float64
		for i, row := range x {
			z := b
			for j, v := range row {
				z += w[j] * v
			}
			target := 0.0
			if y[i] == 1 {
				target = 1
			}
			d := sigmoid(z) - target
			for j, v := range row {
				grad[j] += d * v
			}
			gb += d
		}
		maxGrad := math.Abs(gb / float64(n))
		for j := range grad {
			grad[j] = grad[j]/float64(n) + lambda*w[j]
			maxGrad = math.Max(maxGrad, math.Abs(grad[j]))
		}
		if maxGrad < m.Tol {
			break
		}
		for j := range w {
			w[j] -= m.LearningRate * grad[j]
		}
		b -= m.LearningRate * gb / float64(n)
	}
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("logistic_regression: diverged, lower learning_rate")
		}
	}
	m.w, m.b = w, b
	return nil
}

// DecisionFunction returns the log-odds of class 1.
func (m *LogisticRegression) DecisionFunction(x [][]float64) ([]float64, error) {
	if m.w == nil {
		return nil, errNotFitted
	}
	return linear(m.w, m.b, x)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func linear(w []float64, b float64, x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(w) {
			return nil, fmt.Errorf("row %d has %d features, fitted on %d", i, len(row), len(w))
		}
		z := b
		for j, v := range row {
			z += w[j] * v
		}
		out[i] = z
	}
	return out, nil
}

type logRegBuilder struct {
	c, lr, tol float64
	maxIter    int
}

func parseLogisticRegression(p signature.Params) (Builder, error) {
	r := newParamReader(TypeLogisticRegression, p)
	b := logRegBuilder{
		c:       r.float("c", 1.0),
		maxIter: r.int("max_iter", 500),
		lr:      r.float("learning_rate", 0.1),
		tol:     r.float("tol", 1e-6),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	switch {
	case !(b.c > 0):
		return nil, fmt.Errorf("%w: logistic_regression c must be > 0", bench.ErrInvalidPipeline)
	case b.maxIter < 1:
		return nil, fmt.Errorf("%w: logistic_regression max_iter must be >= 1", bench.ErrInvalidPipeline)
	case !(b.lr > 0):
		return nil, fmt.Errorf("%w: logistic_regression learning_rate must be > 0", bench.ErrInvalidPipeline)
	case b.tol < 0:
		return nil, fmt.Errorf("%w: logistic_regression tol must be >= 0", bench.ErrInvalidPipeline)
	}
	return b, nil
}

func (b logRegBuilder) Params() signature.Params {
	return signature.Params{
		"c":             signature.Float(b.c),
		"max_iter":      signature.Int(int64(b.maxIter)),
		"learning_rate": signature.Float(b.lr),
		"tol":           signature.Float(b.tol),
	}
}

func (b logRegBuilder) Build() scoring.Step {
	return &LogisticRegression{C: b.c, MaxIter: b.maxIter, LearningRate: b.lr, Tol: b.tol}
}
