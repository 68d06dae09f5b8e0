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
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/dataset"
	"github.com/AleutianAI/AleutianBench/services/bench/scoring"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gaussian draws n trials of p features; class 1 is shifted by sep on the
// first feature.
func gaussian(n, p int, sep float64, seed uint64) dataset.Data {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	d := dataset.Data{}
	for i := 0; i < n; i++ {
		y := i % 2
		row := make([]float64, p)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		row[0] += sep * float64(y)
		d.X = append(d.X, row)
		d.Y = append(d.Y, y)
	}
	return d
}

func TestRegistry_Default(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{TypeLDA, TypeLogisticRegression, TypeStandardScaler}, r.Types())

	e, ok := r.Lookup(TypeStandardScaler)
	require.True(t, ok)
	assert.Equal(t, signature.KindTransform, e.Kind)

	err := r.Register(TypeLDA, Entry{Kind: signature.KindEstimator, Parse: parseLDA})
	assert.Error(t, err, "duplicate registration")
	assert.Error(t, r.Register("x", Entry{Kind: "sink", Parse: parseLDA}))
	assert.Panics(t, func() { r.MustRegister("", Entry{}) })
}

func TestRegistry_StepDef(t *testing.T) {
	r := Default()

	t.Run("defaults are resolved into the signature", func(t *testing.T) {
		implicit, err := r.Pipeline("a", StepConfig{Type: TypeLogisticRegression, Name: "clf"})
		require.NoError(t, err)
		explicit, err := r.Pipeline("b", StepConfig{Type: TypeLogisticRegression, Name: "clf",
			Params: signature.Params{"c": signature.Int(1), "tol": signature.Float(1e-6)}})
		require.NoError(t, err)

		sa, err := implicit.Signature()
		require.NoError(t, err)
		sb, err := explicit.Signature()
		require.NoError(t, err)
		assert.Equal(t, sa, sb)

		changed, err := r.Pipeline("c", StepConfig{Type: TypeLogisticRegression, Name: "clf",
			Params: signature.Params{"c": signature.Float(0.5)}})
		require.NoError(t, err)
		sc, err := changed.Signature()
		require.NoError(t, err)
		assert.NotEqual(t, sa, sc)
	})

	t.Run("name defaults to type", func(t *testing.T) {
		def, err := r.StepDef(StepConfig{Type: TypeLDA})
		require.NoError(t, err)
		assert.Equal(t, TypeLDA, def.Config.Name)
		assert.Equal(t, TypeLDA, def.Config.Type)

		a, err := def.New()
		require.NoError(t, err)
		b, err := def.New()
		require.NoError(t, err)
		assert.NotSame(t, a, b, "every call builds a fresh step")
	})

	t.Run("same name different type differs", func(t *testing.T) {
		lda, err := r.Pipeline("x", StepConfig{Type: TypeLDA, Name: "clf"})
		require.NoError(t, err)
		lr, err := r.Pipeline("x", StepConfig{Type: TypeLogisticRegression, Name: "clf"})
		require.NoError(t, err)
		s1, _ := lda.Signature()
		s2, _ := lr.Signature()
		assert.NotEqual(t, s1, s2)
	})

	tests := []struct {
		name string
		cfg  StepConfig
	}{
		{"unknown type", StepConfig{Type: "svm"}},
		{"unknown param", StepConfig{Type: TypeLDA, Params: signature.Params{"solver": signature.String("lsqr")}}},
		{"wrong param type", StepConfig{Type: TypeLogisticRegression, Params: signature.Params{"max_iter": signature.Float(1.5)}}},
		{"non-positive c", StepConfig{Type: TypeLogisticRegression, Params: signature.Params{"c": signature.Int(0)}}},
		{"shrinkage out of range", StepConfig{Type: TypeLDA, Params: signature.Params{"shrinkage": signature.Float(1.5)}}},
		{"shrinkage bad string", StepConfig{Type: TypeLDA, Params: signature.Params{"shrinkage": signature.String("oas")}}},
		{"shrinkage bad kind", StepConfig{Type: TypeLDA, Params: signature.Params{"shrinkage": signature.Bool(true)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.StepDef(tt.cfg)
			assert.ErrorIs(t, err, bench.ErrInvalidPipeline)
		})
	}

	t.Run("structure is validated", func(t *testing.T) {
		_, err := r.Pipeline("backwards",
			StepConfig{Type: TypeLDA},
			StepConfig{Type: TypeStandardScaler},
		)
		assert.ErrorIs(t, err, bench.ErrInvalidPipeline)
	})
}

func TestStandardScaler(t *testing.T) {
	s := &StandardScaler{WithMean: true, WithStd: true}
	_, err := s.Transform([][]float64{{1}})
	assert.ErrorIs(t, err, errNotFitted)

	require.NoError(t, s.Fit([][]float64{{1, 5}, {3, 5}}, nil))
	out, err := s.Transform([][]float64{{1, 5}, {3, 5}, {2, 6}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{-1, 0}, {1, 0}, {0, 1}}, out)

	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestLogisticRegression_Separates(t *testing.T) {
	data := gaussian(200, 3, 3, 1)
	m := &LogisticRegression{C: 1, MaxIter: 500, LearningRate: 0.1, Tol: 1e-6}
	require.NoError(t, m.Fit(data.X, data.Y))

	scores, err := m.DecisionFunction(data.X)
	require.NoError(t, err)
	auc, err := scoring.ROCAUC(data.Y, scores)
	require.NoError(t, err)
	assert.Greater(t, auc, 0.9)
	assert.Greater(t, m.w[0], 0.0)
}

func TestLDA(t *testing.T) {
	data := gaussian(200, 4, 3, 2)

	for _, shrink := range []float64{0, 0.5, ShrinkageAuto} {
		m := &LDA{Shrinkage: shrink}
		require.NoError(t, m.Fit(data.X, data.Y))
		scores, err := m.DecisionFunction(data.X)
		require.NoError(t, err)
		auc, err := scoring.ROCAUC(data.Y, scores)
		require.NoError(t, err)
		assert.Greater(t, auc, 0.9, "shrinkage %v", shrink)
	}

	t.Run("collinear features need shrinkage", func(t *testing.T) {
		dup := dataset.Data{Y: data.Y}
		for _, row := range data.X {
			dup.X = append(dup.X, []float64{row[0], row[0]})
		}
		assert.Error(t, (&LDA{}).Fit(dup.X, dup.Y))
		assert.NoError(t, (&LDA{Shrinkage: ShrinkageAuto}).Fit(dup.X, dup.Y))
	})

	t.Run("single class", func(t *testing.T) {
		assert.Error(t, (&LDA{}).Fit([][]float64{{1}, {2}}, []int{1, 1}))
	})
}

func TestLedoitWolf_InRange(t *testing.T) {
	for seed := uint64(0); seed < 5; seed++ {
		data := gaussian(30, 10, 0, seed)
		a := ledoitWolf(data.X)
		assert.GreaterOrEqual(t, a, 0.0)
		assert.LessOrEqual(t, a, 1.0)
	}
}

func TestSolve(t *testing.T) {
	a := [][]float64{{2, 1}, {1, 3}}
	x, err := solve(a, []float64{3, 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, x[0], 1e-12)
	assert.InDelta(t, 1.4, x[1], 1e-12)
	assert.Equal(t, [][]float64{{2, 1}, {1, 3}}, a, "input is not modified")

	_, err = solve([][]float64{{1, 2}, {2, 4}}, []float64{1, 2})
	assert.Error(t, err)
}

func TestPipeline_EndToEnd(t *testing.T) {
	p, err := Default().Pipeline("scaled-lda",
		StepConfig{Type: TypeStandardScaler, Name: "scale"},
		StepConfig{Type: TypeLDA, Name: "clf", Params: signature.Params{"shrinkage": signature.String("auto")}},
	)
	require.NoError(t, err)

	score, err := scoring.NewAdapter().Score(context.Background(), p, gaussian(100, 5, 3, 9), scoring.StratifiedKFold{K: 5})
	require.NoError(t, err)
	assert.Greater(t, score.Value, 0.85)
	assert.False(t, math.IsNaN(score.Value))
}
