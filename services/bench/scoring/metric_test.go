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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name   string
		y      []int
		scores []float64
		want   float64
	}{
		{"perfect", []int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1.0},
		{"inverted", []int{0, 0, 1, 1}, []float64{0.9, 0.8, 0.2, 0.1}, 0.0},
		{"all tied", []int{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"reference", []int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
		{"partial tie", []int{0, 1, 1}, []float64{0.3, 0.3, 0.9}, 0.75},
		{"unsorted labels", []int{1, 0, 1, 0, 1}, []float64{3, 1, 2, 4, 5}, 4.0 / 6.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ROCAUC(tt.y, tt.scores)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestROCAUC_Degenerate(t *testing.T) {
	t.Run("single class is NaN", func(t *testing.T) {
		got, err := ROCAUC([]int{1, 1, 1}, []float64{0.1, 0.2, 0.3})
		require.NoError(t, err)
		assert.True(t, math.IsNaN(got))
	})

	t.Run("NaN score is NaN", func(t *testing.T) {
		got, err := ROCAUC([]int{0, 1}, []float64{0.1, math.NaN()})
		require.NoError(t, err)
		assert.True(t, math.IsNaN(got))
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := ROCAUC([]int{0, 1}, []float64{0.1})
		assert.Error(t, err)
	})
}

func TestAccuracy(t *testing.T) {
	got, err := Accuracy([]int{0, 1, 1, 0}, []float64{-1, 2, -0.5, -3})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, got, 1e-12)

	empty, err := Accuracy(nil, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(empty))
}

func TestMetricByName(t *testing.T) {
	for _, name := range []string{"", "roc_auc", "AUC", "accuracy"} {
		m, err := MetricByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, m)
	}
	_, err := MetricByName("f1")
	assert.Error(t, err)
}

func TestAggregation(t *testing.T) {
	folds := []FoldScore{
		{TestSize: 10, Value: 0.9},
		{TestSize: 30, Value: 0.5},
	}
	assert.InDelta(t, 0.7, AggregateMean.combine(folds), 1e-12)
	assert.InDelta(t, 0.6, AggregateWeighted.combine(folds), 1e-12)
	assert.True(t, math.IsNaN(AggregateMean.combine(nil)))

	agg, err := ParseAggregation("")
	require.NoError(t, err)
	assert.Equal(t, AggregateMean, agg)
	agg, err = ParseAggregation("Weighted")
	require.NoError(t, err)
	assert.Equal(t, AggregateWeighted, agg)
	_, err = ParseAggregation("median")
	assert.Error(t, err)
}
