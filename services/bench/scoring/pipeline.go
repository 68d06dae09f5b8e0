// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring turns a pipeline and one unit's data into a single
// cross-validated metric.
//
// Pipeline steps are opaque: the adapter only calls the capabilities a step
// advertises (Fit, Transform, DecisionFunction) and never inspects its
// concrete type.
package scoring

import (
	"fmt"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
)

// Step is anything that can be fit on labeled rows.
//
// Implementations must not modify the rows they receive; the same rows are
// shared between folds and pipelines.
type Step interface {
	Fit(x [][]float64, y []int) error
}

// Transformer is a fitted step that maps rows to new rows.
type Transformer interface {
	Step
	Transform(x [][]float64) ([][]float64, error)
}

// Predictor is a fitted final step that scores rows. Larger scores mean
// the row is more likely to belong to the positive class (1).
type Predictor interface {
	Step
	DecisionFunction(x [][]float64) ([]float64, error)
}

// StepDef pairs a step's configuration with a factory for fresh instances.
//
// The configuration alone determines the pipeline signature; New is called
// once per fold so no fitted state leaks across folds.
type StepDef struct {
	Config signature.Step
	New    func() (Step, error)
}

// Pipeline is a named, ordered list of step definitions.
type Pipeline struct {
	Name  string
	Steps []StepDef
}

// Definition returns the configuration used for signing.
func (p Pipeline) Definition() signature.Pipeline {
	steps := make([]signature.Step, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = s.Config
	}
	return signature.Pipeline{Steps: steps}
}

// Signature returns the pipeline's cache identity.
func (p Pipeline) Signature() (signature.Signature, error) {
	return signature.Of(p.Definition())
}

// build instantiates fresh steps and checks each one has the capability its
// position requires.
func (p Pipeline) build() ([]namedTransformer, Predictor, error) {
	if len(p.Steps) == 0 {
		return nil, nil, fmt.Errorf("%w: pipeline %q has no steps", bench.ErrInvalidPipeline, p.Name)
	}
	transforms := make([]namedTransformer, 0, len(p.Steps)-1)
	for i, def := range p.Steps {
		if def.New == nil {
			return nil, nil, fmt.Errorf("%w: step %q has no factory", bench.ErrInvalidPipeline, def.Config.Name)
		}
		st, err := def.New()
		if err != nil {
			return nil, nil, fmt.Errorf("build step %q: %w", def.Config.Name, err)
		}
		if i == len(p.Steps)-1 {
			pred, ok := st.(Predictor)
			if !ok {
				return nil, nil, fmt.Errorf("%w: final step %q cannot produce decision scores", bench.ErrInvalidPipeline, def.Config.Name)
			}
			return transforms, pred, nil
		}
		tr, ok := st.(Transformer)
		if !ok {
			return nil, nil, fmt.Errorf("%w: step %q cannot transform", bench.ErrInvalidPipeline, def.Config.Name)
		}
		transforms = append(transforms, namedTransformer{name: def.Config.Name, Transformer: tr})
	}
	return transforms, nil, nil
}

type namedTransformer struct {
	name string
	Transformer
}
