// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package signature

import (
	"math"
	"testing"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xdawnLDA() Pipeline {
	return Pipeline{Steps: []Step{
		{Name: "xdawn", Kind: KindTransform, Params: Params{
			"nfilter":   Int(4),
			"estimator": String("lwf"),
		}},
		{Name: "vectorizer", Kind: KindTransform},
		{Name: "lda", Kind: KindEstimator, Params: Params{
			"solver":    String("lsqr"),
			"shrinkage": String("auto"),
		}},
	}}
}

func TestOf_Deterministic(t *testing.T) {
	a, err := Of(xdawnLDA())
	require.NoError(t, err)
	b, err := Of(xdawnLDA())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a.String(), Size)
	assert.Len(t, a.Short(), 12)
}

func TestOf_ParamInsertionOrderIgnored(t *testing.T) {
	p1 := Params{}
	p1["a"] = Int(1)
	p1["b"] = Float(0.5)
	p1["c"] = List(String("x"), String("y"))

	p2 := Params{}
	p2["c"] = List(String("x"), String("y"))
	p2["b"] = Float(0.5)
	p2["a"] = Int(1)

	s1, err := Of(Pipeline{Steps: []Step{{Name: "clf", Kind: KindEstimator, Params: p1}}})
	require.NoError(t, err)
	s2, err := Of(Pipeline{Steps: []Step{{Name: "clf", Kind: KindEstimator, Params: p2}}})
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestOf_StructuralChangesDiffer(t *testing.T) {
	base, err := Of(xdawnLDA())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(p *Pipeline)
	}{
		{"changed int parameter", func(p *Pipeline) { p.Steps[0].Params["nfilter"] = Int(8) }},
		{"int becomes float", func(p *Pipeline) { p.Steps[0].Params["nfilter"] = Float(4) }},
		{"int becomes string", func(p *Pipeline) { p.Steps[0].Params["nfilter"] = String("4") }},
		{"added parameter", func(p *Pipeline) { p.Steps[1].Params = Params{"order": String("C")} }},
		{"removed parameter", func(p *Pipeline) { delete(p.Steps[2].Params, "shrinkage") }},
		{"renamed step", func(p *Pipeline) { p.Steps[1].Name = "flatten" }},
		{"added step", func(p *Pipeline) {
			p.Steps = append([]Step{{Name: "scaler", Kind: KindTransform}}, p.Steps...)
		}},
		{"reordered steps", func(p *Pipeline) { p.Steps[0], p.Steps[1] = p.Steps[1], p.Steps[0] }},
		{"nested map value", func(p *Pipeline) {
			p.Steps[2].Params["extra"] = Map(Params{"tol": Float(1e-4)})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := xdawnLDA()
			tt.mutate(&p)
			got, err := Of(p)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestOf_NegativeZeroFolds(t *testing.T) {
	a, err := Of(Pipeline{Steps: []Step{{Name: "clf", Kind: KindEstimator, Params: Params{"x": Float(0)}}}})
	require.NoError(t, err)
	b, err := Of(Pipeline{Steps: []Step{{Name: "clf", Kind: KindEstimator, Params: Params{"x": Float(math.Copysign(0, -1))}}}})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOf_Unserializable(t *testing.T) {
	p := Pipeline{Steps: []Step{{Name: "clf", Kind: KindEstimator, Params: Params{
		"nested": Map(Params{"c": List(Float(1), Float(math.NaN()))}),
	}}}}
	_, err := Of(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, bench.ErrUnserializableParameter)
	assert.Contains(t, err.Error(), `"nested"`)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
	}{
		{"no steps", nil},
		{"empty name", []Step{{Kind: KindEstimator}}},
		{"duplicate names", []Step{{Name: "a", Kind: KindTransform}, {Name: "a", Kind: KindEstimator}}},
		{"unknown kind", []Step{{Name: "a", Kind: "sampler"}}},
		{"final transform", []Step{{Name: "a", Kind: KindTransform}}},
		{"estimator in the middle", []Step{{Name: "a", Kind: KindEstimator}, {Name: "b", Kind: KindEstimator}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Of(Pipeline{Steps: tt.steps})
			assert.ErrorIs(t, err, bench.ErrInvalidPipeline)
		})
	}
}

func TestCanonical_Format(t *testing.T) {
	c, err := Canonical(Pipeline{Steps: []Step{
		{Name: "scale", Kind: KindTransform},
		{Name: "clf", Kind: KindEstimator, Params: Params{
			"c":       Float(1),
			"penalty": String("l2"),
			"fit":     Bool(true),
			"classes": List(Int(1)),
			"weights": Null(),
		}},
	}})
	require.NoError(t, err)

	want := canonicalVersion + "\n" +
		`step "scale" transform {}` + "\n" +
		`step "clf" estimator {"c"=f:1,"classes"=[i:1],"fit"=b:true,"penalty"=s:"l2","weights"=null}` + "\n"
	assert.Equal(t, want, string(c))
}

func TestCanonical_StepType(t *testing.T) {
	build := func(typ string) Pipeline {
		return Pipeline{Steps: []Step{{Name: "clf", Kind: KindEstimator, Type: typ}}}
	}
	c, err := Canonical(build("lda"))
	require.NoError(t, err)
	assert.Contains(t, string(c), `step "clf" estimator "lda" {}`)

	lda, err := Of(build("lda"))
	require.NoError(t, err)
	logreg, err := Of(build("logistic_regression"))
	require.NoError(t, err)
	untyped, err := Of(build(""))
	require.NoError(t, err)
	assert.NotEqual(t, lda, logreg)
	assert.NotEqual(t, lda, untyped)
}

func TestValueOf(t *testing.T) {
	t.Run("plain values", func(t *testing.T) {
		p, err := ParamsOf(map[string]any{
			"n":       4,
			"u":       uint16(7),
			"f":       float32(0.5),
			"s":       "lwf",
			"b":       false,
			"classes": []int{1},
			"nested":  map[string]any{"tol": 1e-3, "none": nil},
		})
		require.NoError(t, err)

		n, ok := p["n"].AsInt()
		assert.True(t, ok)
		assert.Equal(t, int64(4), n)

		u, ok := p["u"].AsInt()
		assert.True(t, ok)
		assert.Equal(t, int64(7), u)

		f, ok := p["f"].AsFloat()
		assert.True(t, ok)
		assert.InDelta(t, 0.5, f, 1e-9)

		classes, ok := p["classes"].AsList()
		require.True(t, ok)
		require.Len(t, classes, 1)

		nested, ok := p["nested"].AsMap()
		require.True(t, ok)
		assert.True(t, nested["none"].IsNull())
	})

	t.Run("round trip through Interface", func(t *testing.T) {
		in := map[string]any{"a": int64(1), "b": []any{"x", 2.5}, "c": map[string]any{"d": true}}
		p, err := ParamsOf(in)
		require.NoError(t, err)
		assert.Equal(t, in, p.Interface())
	})

	t.Run("unsupported types", func(t *testing.T) {
		x := 3
		bad := []any{
			&x,
			struct{ A int }{1},
			func() {},
			make(chan int),
			map[int]string{1: "a"},
			uint64(math.MaxUint64),
			[]any{1, &x},
		}
		for _, b := range bad {
			_, err := ValueOf(b)
			assert.ErrorIs(t, err, bench.ErrUnserializableParameter, "%T", b)
		}
	})

	t.Run("constructors copy inputs", func(t *testing.T) {
		items := []Value{Int(1), Int(2)}
		l := List(items...)
		items[0] = Int(99)
		got, _ := l.AsList()
		assert.True(t, got[0].Equal(Int(1)))

		src := Params{"a": Int(1)}
		m := Map(src)
		src["a"] = Int(2)
		mp, _ := m.AsMap()
		assert.True(t, mp["a"].Equal(Int(1)))
	})
}
