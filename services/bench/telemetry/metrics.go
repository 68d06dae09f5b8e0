// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics are the engine's instruments. All names use the "bench_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// PairsTotal counts pairs reaching a terminal state, by state.
	PairsTotal metric.Int64Counter

	// ActivePairs tracks pairs currently between PENDING and RECORDED.
	ActivePairs metric.Int64UpDownCounter

	// ScoringDuration records adapter wall time per scored pair.
	ScoringDuration metric.Float64Histogram

	// StoreOpsTotal counts result-store calls by operation and outcome.
	StoreOpsTotal metric.Int64Counter

	// UnitLoadsTotal counts unit data loads by outcome (loaded, shared, failed).
	UnitLoadsTotal metric.Int64Counter

	// RunsTotal counts Evaluate calls by outcome.
	RunsTotal metric.Int64Counter
}

// NewMetrics registers the engine instruments on meter.
//
// Example:
//
//	metrics, err := telemetry.NewMetrics(otel.Meter("bench.engine"))
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.PairsTotal, err = meter.Int64Counter(
		"bench_pairs_total",
		metric.WithDescription("Evaluated (pipeline, unit) pairs by terminal state"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pairs_total: %w", err)
	}

	m.ActivePairs, err = meter.Int64UpDownCounter(
		"bench_active_pairs",
		metric.WithDescription("Pairs currently being evaluated"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create active_pairs: %w", err)
	}

	m.ScoringDuration, err = meter.Float64Histogram(
		"bench_scoring_duration_seconds",
		metric.WithDescription("Cross-validated scoring duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900),
	)
	if err != nil {
		return nil, fmt.Errorf("create scoring_duration: %w", err)
	}

	m.StoreOpsTotal, err = meter.Int64Counter(
		"bench_store_operations_total",
		metric.WithDescription("Result store operations by operation and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create store_operations_total: %w", err)
	}

	m.UnitLoadsTotal, err = meter.Int64Counter(
		"bench_unit_loads_total",
		metric.WithDescription("Unit data loads by outcome"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create unit_loads_total: %w", err)
	}

	m.RunsTotal, err = meter.Int64Counter(
		"bench_runs_total",
		metric.WithDescription("Evaluation runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs_total: %w", err)
	}

	return m, nil
}

// RecordPair counts one pair reaching state.
func (m *Metrics) RecordPair(ctx context.Context, state, pipeline string) {
	m.PairsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state),
		attribute.String("pipeline", pipeline),
	))
}

// RecordScoring records one adapter call's duration.
func (m *Metrics) RecordScoring(ctx context.Context, pipeline string, d time.Duration) {
	m.ScoringDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("pipeline", pipeline)))
}

// RecordStoreOp counts one store call.
func (m *Metrics) RecordStoreOp(ctx context.Context, op, outcome string) {
	m.StoreOpsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// RecordUnitLoad counts one unit load.
func (m *Metrics) RecordUnitLoad(ctx context.Context, outcome string) {
	m.UnitLoadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRun counts one Evaluate call.
func (m *Metrics) RecordRun(ctx context.Context, outcome string) {
	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
