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
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/dataset"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// centre subtracts the training column means.
type centre struct{ mean []float64 }

func (c *centre) Fit(x [][]float64, _ []int) error {
	c.mean = make([]float64, len(x[0]))
	for _, row := range x {
		for j, v := range row {
			c.mean[j] += v / float64(len(x))
		}
	}
	return nil
}

func (c *centre) Transform(x [][]float64) ([][]float64, error) {
	if c.mean == nil {
		return nil, errors.New("not fitted")
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = v - c.mean[j]
		}
	}
	return out, nil
}

// firstFeature scores each trial by its first feature, optionally negated.
type firstFeature struct {
	sign   float64
	fitted bool
}

func (f *firstFeature) Fit(_ [][]float64, _ []int) error {
	f.fitted = true
	return nil
}

func (f *firstFeature) DecisionFunction(x [][]float64) ([]float64, error) {
	if !f.fitted {
		return nil, errors.New("not fitted")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = f.sign * row[0]
	}
	return out, nil
}

// fitOnly has no Transform and no DecisionFunction.
type fitOnly struct{}

func (fitOnly) Fit(_ [][]float64, _ []int) error { return nil }

func testPipeline(name string, sign float64) Pipeline {
	return Pipeline{
		Name: name,
		Steps: []StepDef{
			{
				Config: signature.Step{Name: "centre", Kind: signature.KindTransform},
				New:    func() (Step, error) { return &centre{}, nil },
			},
			{
				Config: signature.Step{Name: "score", Kind: signature.KindEstimator,
					Params: signature.Params{"sign": signature.Float(sign)}},
				New: func() (Step, error) { return &firstFeature{sign: sign}, nil },
			},
		},
	}
}

// separable builds n trials whose first feature is high for class 1.
func separable(n int) dataset.Data {
	d := dataset.Data{}
	for i := 0; i < n; i++ {
		y := i % 2
		d.X = append(d.X, []float64{float64(y*10 + i%5), 1})
		d.Y = append(d.Y, y)
	}
	return d
}

func TestAdapter_Score(t *testing.T) {
	a := NewAdapter()
	score, err := a.Score(context.Background(), testPipeline("good", 1), separable(40), StratifiedKFold{K: 4})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score.Value, 1e-12)
	assert.Len(t, score.Folds, 4)
	assert.Equal(t, 40, score.NSamples)
	for i, f := range score.Folds {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, 30, f.TrainSize)
		assert.Equal(t, 10, f.TestSize)
	}

	inverted, err := a.Score(context.Background(), testPipeline("bad", -1), separable(40), StratifiedKFold{K: 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, inverted.Value, 1e-12)
	assert.Equal(t, AggregateMean, a.Aggregation())
}

func TestAdapter_FreshStepsPerFold(t *testing.T) {
	var built atomic.Int32
	p := testPipeline("counted", 1)
	inner := p.Steps[1].New
	p.Steps[1].New = func() (Step, error) {
		built.Add(1)
		return inner()
	}

	_, err := NewAdapter().Score(context.Background(), p, separable(20), StratifiedKFold{K: 5})
	require.NoError(t, err)
	assert.Equal(t, int32(5), built.Load())
}

func TestAdapter_CrossSession(t *testing.T) {
	data := separable(12)
	data.Groups = []string{"a", "a", "a", "a", "b", "b", "b", "b", "c", "c", "c", "c"}

	score, err := NewAdapter().Score(context.Background(), testPipeline("good", 1), data, LeaveGroupOut{Group: "c"})
	require.NoError(t, err)
	require.Len(t, score.Folds, 1)
	assert.Equal(t, 8, score.Folds[0].TrainSize)
	assert.Equal(t, 4, score.Folds[0].TestSize)
	assert.InDelta(t, 1.0, score.Value, 1e-12)
}

func TestAdapter_DegenerateFold(t *testing.T) {
	t.Run("single class held out", func(t *testing.T) {
		data := separable(12)
		data.Groups = make([]string, 12)
		for i := range data.Groups {
			data.Groups[i] = "train"
			if i == 1 || i == 3 {
				data.Groups[i] = "test"
			}
		}
		_, err := NewAdapter().Score(context.Background(), testPipeline("p", 1), data, LeaveGroupOut{Group: "test"})
		assert.ErrorIs(t, err, bench.ErrDegenerateFold)
	})

	t.Run("single class overall", func(t *testing.T) {
		data := separable(10)
		for i := range data.Y {
			data.Y[i] = 1
		}
		_, err := NewAdapter().Score(context.Background(), testPipeline("p", 1), data, StratifiedKFold{K: 2})
		assert.ErrorIs(t, err, bench.ErrDegenerateFold)
	})

	t.Run("NaN metric is never averaged", func(t *testing.T) {
		nan := func([]int, []float64) (float64, error) { return math.NaN(), nil }
		_, err := NewAdapter(WithMetric(nan)).Score(context.Background(), testPipeline("p", 1), separable(20), StratifiedKFold{K: 2})
		assert.ErrorIs(t, err, bench.ErrDegenerateFold)
	})

	t.Run("infinite metric is rejected", func(t *testing.T) {
		for _, v := range []float64{math.Inf(1), math.Inf(-1)} {
			inf := func([]int, []float64) (float64, error) { return v, nil }
			_, err := NewAdapter(WithMetric(inf)).Score(context.Background(), testPipeline("p", 1), separable(20), StratifiedKFold{K: 2})
			assert.ErrorIs(t, err, bench.ErrDegenerateFold)
		}
	})
}

func TestAdapter_InvalidPipeline(t *testing.T) {
	p := Pipeline{
		Name: "no-predictor",
		Steps: []StepDef{{
			Config: signature.Step{Name: "fit", Kind: signature.KindEstimator},
			New:    func() (Step, error) { return fitOnly{}, nil },
		}},
	}
	_, err := NewAdapter().Score(context.Background(), p, separable(10), StratifiedKFold{K: 2})
	assert.ErrorIs(t, err, bench.ErrInvalidPipeline)

	p.Steps = append([]StepDef{{
		Config: signature.Step{Name: "nt", Kind: signature.KindTransform},
		New:    func() (Step, error) { return fitOnly{}, nil },
	}}, testPipeline("x", 1).Steps[1])
	_, err = NewAdapter().Score(context.Background(), p, separable(10), StratifiedKFold{K: 2})
	assert.ErrorIs(t, err, bench.ErrInvalidPipeline)
}

func TestAdapter_StepErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	p := testPipeline("p", 1)
	p.Steps[0].New = func() (Step, error) { return nil, boom }
	_, err := NewAdapter().Score(context.Background(), p, separable(10), StratifiedKFold{K: 2})
	assert.ErrorIs(t, err, boom)
}

func TestAdapter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAdapter().Score(ctx, testPipeline("p", 1), separable(10), StratifiedKFold{K: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdapter_WeightedAggregation(t *testing.T) {
	folds := []float64{1, 0}
	calls := 0
	metric := func([]int, []float64) (float64, error) {
		v := folds[calls%2]
		calls++
		return v, nil
	}
	// 11 trials in 2 folds: the first fold holds 6, the second 5.
	data := separable(11)
	score, err := NewAdapter(WithMetric(metric), WithAggregation(AggregateWeighted)).
		Score(context.Background(), testPipeline("p", 1), data, StratifiedKFold{K: 2})
	require.NoError(t, err)
	assert.InDelta(t, 6.0/11.0, score.Value, 1e-12)

	calls = 0
	mean, err := NewAdapter(WithMetric(metric)).
		Score(context.Background(), testPipeline("p", 1), data, StratifiedKFold{K: 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mean.Value, 1e-12)
}

func TestPipeline_Signature(t *testing.T) {
	a, err := testPipeline("a", 1).Signature()
	require.NoError(t, err)
	b, err := testPipeline("renamed", 1).Signature()
	require.NoError(t, err)
	c, err := testPipeline("a", -1).Signature()
	require.NoError(t, err)

	assert.Equal(t, a, b, "the runtime name is not part of the signature")
	assert.NotEqual(t, a, c)
}
