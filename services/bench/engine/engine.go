// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine drives cached evaluations of pipelines over datasets.
//
// Every (pipeline, unit) pair moves through
//
//	PENDING -> CACHED -> RECORDED
//	PENDING -> COMPUTING -> SCORED | FAILED -> RECORDED
//
// A pair is CACHED when the store already holds its key and overwrite is
// off. Otherwise the scoring adapter runs; a score is written before the
// row is recorded, a failure is recorded without touching the store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/dataset"
	"github.com/AleutianAI/AleutianBench/services/bench/results"
	"github.com/AleutianAI/AleutianBench/services/bench/scoring"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
	"github.com/AleutianAI/AleutianBench/services/bench/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	tracerName = "bench.engine"
	meterName  = "bench.engine"
)

// pairState names the states of a (pipeline, unit) pair.
type pairState string

const (
	statePending   pairState = "pending"
	stateCached    pairState = "cached"
	stateComputing pairState = "computing"
	stateScored    pairState = "scored"
	stateFailed    pairState = "failed"
)

// Config controls one evaluation run.
type Config struct {
	// Overwrite recomputes every pair and replaces stored records.
	Overwrite bool

	// Suffix is part of every result key; runs with different suffixes
	// never share records.
	Suffix string

	// Kind selects within-session k-fold or cross-session leave-one-out.
	Kind bench.EvaluationKind

	// Parallelism bounds concurrently evaluated pairs. 0 uses GOMAXPROCS.
	Parallelism int

	// PairTimeout bounds one pair's load and scoring. 0 means no limit.
	PairTimeout time.Duration

	// Folds, Shuffle and Seed configure within-session stratified k-fold.
	Folds   int
	Shuffle bool
	Seed    uint64

	// Aggregation combines fold metrics. Empty means mean.
	Aggregation scoring.Aggregation

	// Metric names the metric passed with WithMetric. It labels written
	// records and is compared with cached ones. Empty means roc_auc.
	Metric string

	// CacheSize bounds the loaded units kept in memory. 0 uses
	// DefaultCacheSize.
	CacheSize int
}

// DefaultConfig returns a within-session, five-fold, non-overwriting run.
func DefaultConfig() Config {
	return Config{
		Kind:        bench.WithinSession,
		Folds:       scoring.DefaultFolds,
		Aggregation: scoring.AggregateMean,
		Metric:      scoring.DefaultMetric,
		CacheSize:   DefaultCacheSize,
	}
}

func (c *Config) normalise() error {
	if c.Kind == "" {
		c.Kind = bench.WithinSession
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("unknown evaluation kind %q", c.Kind)
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.GOMAXPROCS(0)
	}
	if c.Folds == 0 {
		c.Folds = scoring.DefaultFolds
	}
	if c.Folds < 2 {
		return fmt.Errorf("folds must be >= 2, got %d", c.Folds)
	}
	if c.PairTimeout < 0 {
		return fmt.Errorf("pair timeout must be >= 0, got %s", c.PairTimeout)
	}
	agg, err := scoring.ParseAggregation(string(c.Aggregation))
	if err != nil {
		return err
	}
	c.Aggregation = agg
	if c.Metric == "" {
		c.Metric = scoring.DefaultMetric
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetric sets the metric used by the scoring adapter. The default is
// ROC AUC.
func WithMetric(m scoring.MetricFunc) Option {
	return func(e *Engine) {
		if m != nil {
			e.metric = m
		}
	}
}

// WithMetrics sets the instrument set. The default registers on the
// global meter provider.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithProgress registers a callback invoked once per recorded row, from
// worker goroutines, in completion order.
func WithProgress(fn func(results.Row)) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine evaluates pipelines over datasets through a result store.
//
// Thread Safety: Safe for concurrent use; runs share only the store.
type Engine struct {
	store       results.Store
	partitioner *dataset.Partitioner
	adapter     *scoring.Adapter
	cfg         Config
	logger      *slog.Logger
	metric      scoring.MetricFunc
	metrics     *telemetry.Metrics
	progress    func(results.Row)
	now         func() time.Time
}

// New creates an engine.
//
// Inputs:
//
//	store - Where results are cached. Must not be nil.
//	loader - Supplies raw unit data. Must not be nil.
//	cfg - Run configuration; zero fields take defaults.
//
// Outputs:
//
//	*Engine - Ready to evaluate.
//	error - Non-nil if an argument or cfg is invalid.
func New(store results.Store, loader dataset.Loader, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if loader == nil {
		return nil, errors.New("loader must not be nil")
	}
	if err := cfg.normalise(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	e := &Engine{
		store:  store,
		cfg:    cfg,
		logger: slog.Default(),
		metric: scoring.ROCAUC,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		m, err := telemetry.NewMetrics(otel.GetMeterProvider().Meter(meterName))
		if err != nil {
			return nil, err
		}
		e.metrics = m
	}
	e.partitioner = dataset.NewPartitioner(loader)
	e.partitioner.SetLogger(e.logger)
	e.adapter = scoring.NewAdapter(
		scoring.WithMetric(e.metric),
		scoring.WithAggregation(cfg.Aggregation),
		scoring.WithLogger(e.logger),
	)
	return e, nil
}

// Config returns the normalised configuration.
func (e *Engine) Config() Config { return e.cfg }

// pipelineJob is a pipeline with its signature, or the reason it has none.
type pipelineJob struct {
	pipeline scoring.Pipeline
	sig      signature.Signature
	err      error
}

// unitJob is a unit with its dataset.
type unitJob struct {
	ds   *dataset.Dataset
	unit dataset.Unit
}

// Evaluate scores every pipeline on every unit of every dataset.
//
// Description:
//
//	Rows are ordered by pipeline declaration, then dataset order, then
//	unit enumeration order, whatever the completion order. A pair whose
//	unit fails to load, whose folds are degenerate, whose pipeline cannot
//	be signed, or whose scoring fails or times out yields a failed row
//	and leaves the store untouched. Other pairs are unaffected.
//
// Outputs:
//
//	*results.Table - One row per pair.
//	error - bench.ErrInvalidPipeline for missing or duplicate pipeline
//	        names; an error for invalid or duplicate datasets;
//	        bench.ErrStoreUnavailable if the store fails; ctx.Err() if the
//	        caller cancels. No table is returned with an error.
func (e *Engine) Evaluate(ctx context.Context, pipelines []scoring.Pipeline, datasets []*dataset.Dataset) (*results.Table, error) {
	runID := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Engine.Evaluate",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("pipelines", len(pipelines)),
			attribute.Int("datasets", len(datasets)),
			attribute.String("kind", string(e.cfg.Kind)),
			attribute.Bool("overwrite", e.cfg.Overwrite),
		),
	)
	defer span.End()
	logger := telemetry.LoggerWithTrace(ctx, e.logger).With(slog.String("run_id", runID))

	table, err := e.evaluate(ctx, runID, logger, pipelines, datasets)
	if err != nil {
		telemetry.RecordError(span, err)
		outcome := "failed"
		if isContextErr(err) {
			outcome = "cancelled"
		}
		e.metrics.RecordRun(ctx, outcome)
		logger.Error("evaluation aborted", slog.String("error", err.Error()))
		return nil, err
	}
	e.metrics.RecordRun(ctx, "ok")

	counts := table.Counts()
	span.SetAttributes(
		attribute.Int("rows", table.Len()),
		attribute.Int("scored", counts[results.StatusScored]),
		attribute.Int("cached", counts[results.StatusCached]),
		attribute.Int("failed", counts[results.StatusFailed]),
	)
	logger.Info("evaluation complete",
		slog.Int("rows", table.Len()),
		slog.Int("scored", counts[results.StatusScored]),
		slog.Int("cached", counts[results.StatusCached]),
		slog.Int("failed", counts[results.StatusFailed]),
	)
	return table, nil
}

// EvaluateMap evaluates pipelines keyed by name, in sorted name order.
// Each pipeline's Name is set to its key.
func (e *Engine) EvaluateMap(ctx context.Context, pipelines map[string]scoring.Pipeline, datasets []*dataset.Dataset) (*results.Table, error) {
	names := make([]string, 0, len(pipelines))
	for name := range pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	ordered := make([]scoring.Pipeline, len(names))
	for i, name := range names {
		p := pipelines[name]
		p.Name = name
		ordered[i] = p
	}
	return e.Evaluate(ctx, ordered, datasets)
}

func (e *Engine) evaluate(ctx context.Context, runID string, logger *slog.Logger, pipelines []scoring.Pipeline, datasets []*dataset.Dataset) (*results.Table, error) {
	jobs, err := e.prepare(pipelines, logger)
	if err != nil {
		return nil, err
	}
	units, err := e.enumerate(datasets)
	if err != nil {
		return nil, err
	}
	cache, err := newUnitCache(e.partitioner, e.cfg.CacheSize, e.metrics)
	if err != nil {
		return nil, err
	}

	rows := make([]results.Row, len(jobs)*len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)

	// Launch unit-major so consecutive pairs share loaded data; rows are
	// indexed pipeline-major.
launch:
	for ui, u := range units {
		for pi := range jobs {
			if gctx.Err() != nil {
				break launch
			}
			idx := pi*len(units) + ui
			job := &jobs[pi]
			g.Go(func() error {
				row, err := e.runPair(gctx, cache, job, u)
				if err != nil {
					return err
				}
				rows[idx] = row
				if e.progress != nil {
					e.progress(row)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results.NewTable(runID, rows), nil
}

// prepare checks pipeline names and computes signatures. A pipeline that
// cannot be signed is kept so its pairs are reported as failures.
func (e *Engine) prepare(pipelines []scoring.Pipeline, logger *slog.Logger) ([]pipelineJob, error) {
	jobs := make([]pipelineJob, len(pipelines))
	seen := make(map[string]struct{}, len(pipelines))
	for i, p := range pipelines {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: pipeline %d has no name", bench.ErrInvalidPipeline, i)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate pipeline name %q", bench.ErrInvalidPipeline, p.Name)
		}
		seen[p.Name] = struct{}{}

		sig, err := p.Signature()
		jobs[i] = pipelineJob{pipeline: p, sig: sig, err: err}
		if err != nil {
			logger.Warn("pipeline cannot be signed, its pairs will fail",
				slog.String("pipeline", p.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Debug("pipeline signed",
			slog.String("pipeline", p.Name),
			slog.String("signature", sig.Short()),
		)
	}
	return jobs, nil
}

func (e *Engine) enumerate(datasets []*dataset.Dataset) ([]unitJob, error) {
	var units []unitJob
	seen := make(map[string]struct{}, len(datasets))
	for i, ds := range datasets {
		if ds == nil {
			return nil, fmt.Errorf("dataset %d is nil", i)
		}
		if err := ds.Validate(); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", ds.ID, err)
		}
		if _, dup := seen[ds.ID]; dup {
			return nil, fmt.Errorf("duplicate dataset id %q", ds.ID)
		}
		seen[ds.ID] = struct{}{}
		for u := range e.partitioner.Enumerate(ds) {
			units = append(units, unitJob{ds: ds, unit: u})
		}
	}
	return units, nil
}

// runPair moves one pair through its states. A non-nil error aborts the
// run and is returned only for store failures and cancellation.
func (e *Engine) runPair(ctx context.Context, cache *unitCache, job *pipelineJob, u unitJob) (results.Row, error) {
	p := job.pipeline
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Engine.pair",
		trace.WithAttributes(
			attribute.String("pipeline", p.Name),
			attribute.String("unit", u.unit.String()),
		),
	)
	defer span.End()

	e.metrics.ActivePairs.Add(ctx, 1)
	defer e.metrics.ActivePairs.Add(ctx, -1)

	base := results.Row{
		Pipeline:  p.Name,
		Signature: job.sig,
		Dataset:   u.unit.Dataset,
		Subject:   u.unit.Subject,
		Session:   u.unit.Session,
		Kind:      e.cfg.Kind,
		Suffix:    e.cfg.Suffix,
	}
	state := statePending

	if job.err != nil {
		return e.fail(ctx, span, base, state, job.err), nil
	}
	key := results.NewKey(job.sig, u.unit, e.cfg.Kind, e.cfg.Suffix)

	if !e.cfg.Overwrite {
		rec, err := e.store.Read(ctx, key)
		switch {
		case err == nil:
			e.metrics.RecordStoreOp(ctx, "read", "hit")
			telemetry.AddSpanEvent(span, "cache_hit", attribute.String("key", key.String()))
			e.checkCached(rec)
			return e.record(ctx, span, results.RowFromRecord(p.Name, rec, results.StatusCached), stateCached), nil
		case errors.Is(err, bench.ErrNotFound):
			e.metrics.RecordStoreOp(ctx, "read", "miss")
		case errors.Is(err, bench.ErrStoreUnavailable) || isContextErr(err):
			e.metrics.RecordStoreOp(ctx, "read", "error")
			telemetry.RecordError(span, err)
			return results.Row{}, err
		default:
			e.metrics.RecordStoreOp(ctx, "read", "error")
			return e.fail(ctx, span, base, state, fmt.Errorf("read cached record: %w", err)), nil
		}
	}

	state = stateComputing
	pctx := ctx
	if e.cfg.PairTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, e.cfg.PairTimeout)
		defer cancel()
	}

	score, err := e.score(pctx, ctx, cache, p, u)
	if err != nil {
		if ctx.Err() != nil {
			return results.Row{}, ctx.Err()
		}
		if pctx.Err() != nil {
			err = fmt.Errorf("%w after %s: %w", bench.ErrPairTimeout, e.cfg.PairTimeout, err)
		}
		return e.fail(ctx, span, base, state, err), nil
	}
	if err := ctx.Err(); err != nil {
		return results.Row{}, err
	}

	rec := results.Record{
		Key:         key,
		Score:       score.Value,
		Folds:       foldValues(score.Folds),
		NSamples:    score.NSamples,
		Duration:    score.Duration,
		Timestamp:   e.now().UTC(),
		Pipeline:    p.Name,
		Metric:      e.cfg.Metric,
		Aggregation: string(e.cfg.Aggregation),
	}
	err = e.store.Write(ctx, rec, e.cfg.Overwrite)
	switch {
	case err == nil:
		e.metrics.RecordStoreOp(ctx, "write", "ok")
	case errors.Is(err, bench.ErrAlreadyExists):
		// A concurrent writer stored this key first; report its record.
		e.metrics.RecordStoreOp(ctx, "write", "exists")
		stored, rerr := e.store.Read(ctx, key)
		if rerr != nil {
			telemetry.RecordError(span, rerr)
			return results.Row{}, rerr
		}
		return e.record(ctx, span, results.RowFromRecord(p.Name, stored, results.StatusCached), stateCached), nil
	case errors.Is(err, bench.ErrStoreUnavailable) || isContextErr(err):
		e.metrics.RecordStoreOp(ctx, "write", "error")
		telemetry.RecordError(span, err)
		return results.Row{}, err
	default:
		// The store refused this record; other pairs can still be written.
		e.metrics.RecordStoreOp(ctx, "write", "rejected")
		return e.fail(ctx, span, base, state, fmt.Errorf("write result: %w", err)), nil
	}

	e.metrics.RecordScoring(ctx, p.Name, score.Duration)
	return e.record(ctx, span, results.RowFromRecord(p.Name, rec, results.StatusScored), stateScored), nil
}

// score loads the pair's data and runs the adapter under ctx. Loads run
// under runCtx so they outlive a single pair's timeout.
func (e *Engine) score(ctx, runCtx context.Context, cache *unitCache, p scoring.Pipeline, u unitJob) (scoring.Score, error) {
	data, err := cache.get(ctx, runCtx, u.ds, u.unit, e.cfg.Kind)
	if err != nil {
		return scoring.Score{}, err
	}
	score, err := e.adapter.Score(ctx, p, data, e.policy(u.unit))
	if err != nil {
		return scoring.Score{}, err
	}
	if err := ctx.Err(); err != nil {
		return scoring.Score{}, err
	}
	return score, nil
}

func (e *Engine) policy(u dataset.Unit) scoring.SplitPolicy {
	if e.cfg.Kind == bench.CrossSession {
		return scoring.LeaveGroupOut{Group: u.Session}
	}
	return scoring.StratifiedKFold{K: e.cfg.Folds, Shuffle: e.cfg.Shuffle, Seed: e.cfg.Seed}
}

// checkCached warns when a cached record was computed with settings that
// are not part of its key.
func (e *Engine) checkCached(rec results.Record) {
	var diffs []any
	if rec.Metric != "" && rec.Metric != e.cfg.Metric {
		diffs = append(diffs, slog.String("cached_metric", rec.Metric), slog.String("run_metric", e.cfg.Metric))
	}
	if rec.Aggregation != "" && rec.Aggregation != string(e.cfg.Aggregation) {
		diffs = append(diffs, slog.String("cached_aggregation", rec.Aggregation), slog.String("run_aggregation", string(e.cfg.Aggregation)))
	}
	if e.cfg.Kind == bench.WithinSession && len(rec.Folds) > 0 && len(rec.Folds) != e.cfg.Folds {
		diffs = append(diffs, slog.Int("cached_folds", len(rec.Folds)), slog.Int("run_folds", e.cfg.Folds))
	}
	if len(diffs) == 0 {
		return
	}
	e.logger.Warn("cached record computed with different settings; use a new suffix or overwrite to recompute",
		append([]any{slog.String("key", rec.Key.String())}, diffs...)...)
}

func (e *Engine) fail(ctx context.Context, span trace.Span, row results.Row, from pairState, err error) results.Row {
	row.Score = math.NaN()
	row.Status = results.StatusFailed
	row.Error = err.Error()
	row.Timestamp = e.now().UTC()
	telemetry.RecordError(span, err)
	e.logger.Warn("pair failed",
		slog.String("pipeline", row.Pipeline),
		slog.String("unit", row.Dataset+"/"+row.Subject+"/"+row.Session),
		slog.String("from", string(from)),
		slog.String("error", err.Error()),
	)
	return e.record(ctx, span, row, stateFailed)
}

func (e *Engine) record(ctx context.Context, span trace.Span, row results.Row, state pairState) results.Row {
	span.SetAttributes(attribute.String("state", string(state)))
	e.metrics.RecordPair(ctx, string(state), row.Pipeline)
	e.logger.Debug("pair recorded",
		slog.String("pipeline", row.Pipeline),
		slog.String("unit", row.Dataset+"/"+row.Subject+"/"+row.Session),
		slog.String("state", string(state)),
		slog.Float64("score", row.Score),
	)
	return row
}

func foldValues(folds []scoring.FoldScore) []float64 {
	out := make([]float64, len(folds))
	for i, f := range folds {
		out[i] = f.Value
	}
	return out
}
