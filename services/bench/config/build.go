// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/dataset"
	"github.com/AleutianAI/AleutianBench/services/bench/engine"
	"github.com/AleutianAI/AleutianBench/services/bench/results"
	"github.com/AleutianAI/AleutianBench/services/bench/scoring"
	"github.com/AleutianAI/AleutianBench/services/bench/scoring/estimators"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
)

// EngineConfig converts the evaluation section.
func (c Config) EngineConfig() (engine.Config, error) {
	kind, err := bench.ParseEvaluationKind(c.Evaluation.Kind)
	if err != nil {
		return engine.Config{}, err
	}
	agg, err := scoring.ParseAggregation(c.Evaluation.Aggregation)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Overwrite:   c.Evaluation.Overwrite,
		Suffix:      c.Evaluation.Suffix,
		Kind:        kind,
		Parallelism: c.Evaluation.Parallelism,
		PairTimeout: c.Evaluation.PairTimeout,
		Folds:       c.Evaluation.Folds,
		Shuffle:     c.Evaluation.Shuffle,
		Seed:        c.Evaluation.Seed,
		Aggregation: agg,
		Metric:      c.Evaluation.Metric,
		CacheSize:   c.Evaluation.CacheSize,
	}, nil
}

// Metric returns the configured metric function.
func (c Config) Metric() (scoring.MetricFunc, error) {
	return scoring.MetricByName(c.Evaluation.Metric)
}

// BuildPipelines turns the pipeline section into runtime pipelines using
// the step types of reg.
//
// Outputs:
//
//	[]scoring.Pipeline - In declaration order.
//	error - Wraps bench.ErrUnserializableParameter or
//	        bench.ErrInvalidPipeline, naming the pipeline and step.
func (c Config) BuildPipelines(reg *estimators.Registry) ([]scoring.Pipeline, error) {
	out := make([]scoring.Pipeline, 0, len(c.Pipelines))
	for _, pc := range c.Pipelines {
		steps := make([]estimators.StepConfig, 0, len(pc.Steps))
		for i, sc := range pc.Steps {
			params, err := signature.ParamsOf(sc.Params)
			if err != nil {
				return nil, fmt.Errorf("pipeline %q step %d: %w", pc.Name, i, err)
			}
			steps = append(steps, estimators.StepConfig{Type: sc.Type, Name: sc.Name, Params: params})
		}
		p, err := reg.Pipeline(pc.Name, steps...)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// BuildDatasets discovers every configured dataset directory and returns
// the descriptors with a file loader serving them.
func (c Config) BuildDatasets() ([]*dataset.Dataset, *dataset.FileLoader, error) {
	loader := dataset.NewFileLoader()
	out := make([]*dataset.Dataset, 0, len(c.Datasets))
	for _, dc := range c.Datasets {
		var enc dataset.LabelEncoding
		if len(dc.Labels) > 0 {
			enc = dataset.LabelEncoding(dc.Labels)
		} else if enc = dataset.EncodingFor(dc.Paradigm); enc == nil {
			return nil, nil, fmt.Errorf("dataset %q: paradigm %q has no default encoding, set labels", dc.ID, dc.Paradigm)
		}
		root := c.Resolve(dc.Path)
		ds, err := dataset.Discover(dc.ID, dc.Paradigm, enc, root)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset %q: %w", dc.ID, err)
		}
		loader.AddRoot(dc.ID, root)
		out = append(out, ds)
	}
	return out, loader, nil
}

// OpenStore opens the configured result store for reading and writing.
func (c Config) OpenStore(logger *slog.Logger) (results.Store, error) {
	return c.openStore(logger, false)
}

// OpenReadOnlyStore opens the configured result store without write
// access, so several readers can share a badger directory.
func (c Config) OpenReadOnlyStore(logger *slog.Logger) (results.Store, error) {
	return c.openStore(logger, true)
}

func (c Config) openStore(logger *slog.Logger, readOnly bool) (results.Store, error) {
	switch c.Store.Backend {
	case BackendMemory:
		return results.NewMemoryStore(), nil
	case BackendBadger:
		s, err := results.OpenBadger(results.BadgerConfig{
			Path:           c.Resolve(c.Store.Path),
			SyncWrites:     c.Store.SyncWrites,
			GCInterval:     c.Store.GCInterval,
			GCDiscardRatio: c.Store.GCDiscardRatio,
			ReadOnly:       readOnly,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
}
