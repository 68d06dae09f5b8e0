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
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/dataset"
	"github.com/AleutianAI/AleutianBench/services/bench/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "bench.scoring"

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithMetric sets the metric function. Nil values are ignored.
func WithMetric(m MetricFunc) AdapterOption {
	return func(a *Adapter) {
		if m != nil {
			a.metric = m
		}
	}
}

// WithAggregation sets how fold metrics are combined. Unknown values are
// ignored.
func WithAggregation(agg Aggregation) AdapterOption {
	return func(a *Adapter) {
		if agg == AggregateMean || agg == AggregateWeighted {
			a.aggregation = agg
		}
	}
}

// WithLogger sets the adapter's logger. Nil values are ignored.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// -----------------------------------------------------------------------------
// Adapter
// -----------------------------------------------------------------------------

// FoldScore is the metric of one fold.
type FoldScore struct {
	Index     int
	TrainSize int
	TestSize  int
	Value     float64
}

// Score is the cross-validated metric of one unit.
type Score struct {
	Value    float64
	Folds    []FoldScore
	NSamples int
	Duration time.Duration
}

// Adapter scores a pipeline on one unit by cross-validation.
//
// Description:
//
//	For every fold of the split policy the adapter builds fresh steps,
//	fits each transform on the training rows and applies it to both
//	partitions, fits the final estimator, and compares its decision
//	scores on the held-out rows to the held-out labels. Fold metrics are
//	combined by the configured Aggregation (mean by default).
//
// Thread Safety: Safe for concurrent use; each call builds its own steps.
type Adapter struct {
	metric      MetricFunc
	aggregation Aggregation
	logger      *slog.Logger
}

// NewAdapter creates an adapter that uses ROC AUC and the fold mean unless
// options say otherwise.
func NewAdapter(opts ...AdapterOption) *Adapter {
	a := &Adapter{
		metric:      ROCAUC,
		aggregation: AggregateMean,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregation returns the configured fold aggregation.
func (a *Adapter) Aggregation() Aggregation { return a.aggregation }

// Score cross-validates p on data.
//
// Outputs:
//
//	Score - The aggregated metric with per-fold detail.
//	error - Wraps bench.ErrDegenerateFold if any fold has a single class
//	        on either side or yields a non-finite metric; bench.ErrInvalidPipeline
//	        if a step lacks a required capability; ctx.Err() if cancelled
//	        between folds; otherwise the failing step's error.
func (a *Adapter) Score(ctx context.Context, p Pipeline, data dataset.Data, policy SplitPolicy) (Score, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Adapter.Score",
		trace.WithAttributes(
			attribute.String("pipeline", p.Name),
			attribute.String("policy", policy.Name()),
			attribute.Int("trials", data.Len()),
		),
	)
	defer span.End()

	start := time.Now()
	folds, err := policy.Split(data)
	if err != nil {
		telemetry.RecordError(span, err)
		return Score{}, err
	}

	out := Score{Folds: make([]FoldScore, 0, len(folds)), NSamples: data.Len()}
	for i, f := range folds {
		if err := ctx.Err(); err != nil {
			return Score{}, err
		}
		v, err := a.scoreFold(p, data, f)
		if err != nil {
			err = fmt.Errorf("fold %d: %w", i, err)
			telemetry.RecordError(span, err)
			return Score{}, err
		}
		out.Folds = append(out.Folds, FoldScore{
			Index:     i,
			TrainSize: len(f.Train),
			TestSize:  len(f.Test),
			Value:     v,
		})
	}

	out.Value = a.aggregation.combine(out.Folds)
	out.Duration = time.Since(start)
	if math.IsNaN(out.Value) {
		err := fmt.Errorf("%w: aggregated metric is NaN", bench.ErrDegenerateFold)
		telemetry.RecordError(span, err)
		return Score{}, err
	}
	span.SetAttributes(attribute.Float64("score", out.Value))
	a.logger.Debug("pipeline scored",
		slog.String("pipeline", p.Name),
		slog.String("policy", policy.Name()),
		slog.Int("folds", len(out.Folds)),
		slog.Float64("score", out.Value),
	)
	return out, nil
}

func (a *Adapter) scoreFold(p Pipeline, data dataset.Data, f Fold) (float64, error) {
	train := data.Subset(f.Train)
	test := data.Subset(f.Test)
	if err := requireTwoClasses("training", train.Y); err != nil {
		return 0, err
	}
	if err := requireTwoClasses("held-out", test.Y); err != nil {
		return 0, err
	}

	transforms, final, err := p.build()
	if err != nil {
		return 0, err
	}

	xTrain, xTest := train.X, test.X
	for _, tr := range transforms {
		if err := tr.Fit(xTrain, train.Y); err != nil {
			return 0, fmt.Errorf("step %q fit: %w", tr.name, err)
		}
		if xTrain, err = tr.Transform(xTrain); err != nil {
			return 0, fmt.Errorf("step %q transform: %w", tr.name, err)
		}
		if xTest, err = tr.Transform(xTest); err != nil {
			return 0, fmt.Errorf("step %q transform: %w", tr.name, err)
		}
	}

	finalName := p.Steps[len(p.Steps)-1].Config.Name
	if err := final.Fit(xTrain, train.Y); err != nil {
		return 0, fmt.Errorf("step %q fit: %w", finalName, err)
	}
	scores, err := final.DecisionFunction(xTest)
	if err != nil {
		return 0, fmt.Errorf("step %q predict: %w", finalName, err)
	}
	if len(scores) != len(test.Y) {
		return 0, fmt.Errorf("step %q returned %d scores for %d trials", finalName, len(scores), len(test.Y))
	}

	v, err := a.metric(test.Y, scores)
	if err != nil {
		return 0, fmt.Errorf("metric: %w", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: metric is %v", bench.ErrDegenerateFold, v)
	}
	return v, nil
}

func requireTwoClasses(side string, y []int) error {
	if len(y) == 0 {
		return fmt.Errorf("%w: %s partition is empty", bench.ErrDegenerateFold, side)
	}
	for _, v := range y[1:] {
		if v != y[0] {
			return nil
		}
	}
	return fmt.Errorf("%w: %s partition has only class %d", bench.ErrDegenerateFold, side, y[0])
}
