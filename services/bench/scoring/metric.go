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
	"math"
	"sort"
	"strings"
)

// DefaultMetric is the name of the metric used when none is configured.
const DefaultMetric = "roc_auc"

// MetricFunc compares decision scores with true labels. A NaN result means
// the metric is undefined for these inputs.
type MetricFunc func(yTrue []int, scores []float64) (float64, error)

// ROCAUC is the area under the ROC curve for positive class 1.
//
// Description:
//
//	Uses the Mann-Whitney rank formulation; tied scores share their
//	average rank, which counts a tied positive/negative pair as one half.
//	Returns NaN when one class is absent or any score is NaN.
func ROCAUC(yTrue []int, scores []float64) (float64, error) {
	if len(yTrue) != len(scores) {
		return 0, fmt.Errorf("auc: %d labels but %d scores", len(yTrue), len(scores))
	}
	n := len(scores)
	order := make([]int, n)
	for i := range order {
		if math.IsNaN(scores[i]) {
			return math.NaN(), nil
		}
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}

	var pos, neg int
	var rankSum float64
	for i, y := range yTrue {
		if y == 1 {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN(), nil
	}
	p, q := float64(pos), float64(neg)
	return (rankSum - p*(p+1)/2) / (p * q), nil
}

// Accuracy is the fraction of trials whose thresholded score (> 0 means
// class 1) matches the label.
func Accuracy(yTrue []int, scores []float64) (float64, error) {
	if len(yTrue) != len(scores) {
		return 0, fmt.Errorf("accuracy: %d labels but %d scores", len(yTrue), len(scores))
	}
	if len(yTrue) == 0 {
		return math.NaN(), nil
	}
	var hit int
	for i, s := range scores {
		if math.IsNaN(s) {
			return math.NaN(), nil
		}
		pred := 0
		if s > 0 {
			pred = 1
		}
		if pred == yTrue[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(yTrue)), nil
}

// MetricByName returns a built-in metric ("roc_auc" or "accuracy").
func MetricByName(name string) (MetricFunc, error) {
	switch strings.ToLower(name) {
	case "", "roc_auc", "auc":
		return ROCAUC, nil
	case "accuracy":
		return Accuracy, nil
	default:
		return nil, fmt.Errorf("unknown metric %q", name)
	}
}

// Aggregation combines per-fold metrics into one score.
type Aggregation string

const (
	// AggregateMean is the unweighted mean over folds.
	AggregateMean Aggregation = "mean"

	// AggregateWeighted weights each fold by its held-out size.
	AggregateWeighted Aggregation = "weighted"
)

// ParseAggregation validates an aggregation name. Empty means mean.
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(s)) {
	case "", AggregateMean:
		return AggregateMean, nil
	case AggregateWeighted, "weighted_mean":
		return AggregateWeighted, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

func (a Aggregation) combine(folds []FoldScore) float64 {
	var sum, weight float64
	for _, f := range folds {
		w := 1.0
		if a == AggregateWeighted {
			w = float64(f.TestSize)
		}
		sum += w * f.Value
		weight += w
	}
	if weight == 0 {
		return math.NaN()
	}
	return sum / weight
}
