// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package signature derives stable identifiers for pipeline configurations.
//
// A signature is the hex SHA-256 of a canonical serialization of the
// pipeline's steps: declared step order is preserved, parameter keys are
// sorted, and every value carries its type tag. Two pipelines share a
// signature exactly when their canonical bytes are identical, so the result
// cache never serves a score computed by a differently configured pipeline.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/AleutianAI/AleutianBench/services/bench"
)

// canonicalVersion prefixes every canonical serialization. Changing the
// encoding requires bumping it so old cache entries stop matching.
const canonicalVersion = "bench.pipeline/v1"

// Size is the length of a Signature in characters.
const Size = sha256.Size * 2

// StepKind distinguishes intermediate transforms from the final estimator.
type StepKind string

const (
	// KindTransform is a step that is fit and then transforms its input.
	KindTransform StepKind = "transform"

	// KindEstimator is the final step that produces decision scores.
	KindEstimator StepKind = "estimator"
)

// Step is the configuration of one named pipeline step.
type Step struct {
	Name string
	Kind StepKind

	// Type names the step implementation, e.g. "lda". Two steps that share
	// a name and parameters but differ in Type are different steps.
	Type   string
	Params Params
}

// Pipeline is an ordered list of step configurations.
type Pipeline struct {
	Steps []Step
}

// Signature is a fixed-length content hash of a canonical pipeline.
type Signature string

// Short returns the first 12 characters, for logs.
func (s Signature) Short() string {
	if len(s) <= 12 {
		return string(s)
	}
	return string(s[:12])
}

// String returns the full signature.
func (s Signature) String() string { return string(s) }

// Validate checks the pipeline's structure.
//
// Description:
//
//	A pipeline needs at least one step, non-empty unique step names, a
//	known kind on every step, and exactly one estimator in last position.
//
// Outputs:
//
//	error - Wraps bench.ErrInvalidPipeline when the structure is invalid.
func (p Pipeline) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: no steps", bench.ErrInvalidPipeline)
	}
	seen := make(map[string]struct{}, len(p.Steps))
	for i, st := range p.Steps {
		if st.Name == "" {
			return fmt.Errorf("%w: step %d has no name", bench.ErrInvalidPipeline, i)
		}
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("%w: duplicate step name %q", bench.ErrInvalidPipeline, st.Name)
		}
		seen[st.Name] = struct{}{}

		last := i == len(p.Steps)-1
		switch {
		case st.Kind != KindTransform && st.Kind != KindEstimator:
			return fmt.Errorf("%w: step %q has unknown kind %q", bench.ErrInvalidPipeline, st.Name, st.Kind)
		case last && st.Kind != KindEstimator:
			return fmt.Errorf("%w: final step %q must be an estimator", bench.ErrInvalidPipeline, st.Name)
		case !last && st.Kind != KindTransform:
			return fmt.Errorf("%w: step %q must be a transform", bench.ErrInvalidPipeline, st.Name)
		}
	}
	return nil
}

// Canonical returns the canonical serialization of p.
//
// Outputs:
//
//	[]byte - One header line, then one line per step:
//	         step "<name>" <kind> ["<type>"] {<sorted params>}
//	error - bench.ErrInvalidPipeline or bench.ErrUnserializableParameter.
func Canonical(p Pipeline) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 128)
	buf = append(buf, canonicalVersion...)
	buf = append(buf, '\n')
	for _, st := range p.Steps {
		buf = append(buf, "step "...)
		buf = strconv.AppendQuote(buf, st.Name)
		buf = append(buf, ' ')
		buf = append(buf, st.Kind...)
		buf = append(buf, ' ')
		if st.Type != "" {
			buf = strconv.AppendQuote(buf, st.Type)
			buf = append(buf, ' ')
		}
		var err error
		buf, err = appendParams(buf, st.Params)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", st.Name, err)
		}
		buf = append(buf, '\n')
	}
	return buf, nil
}

// Of returns the signature of p.
//
// Description:
//
//	Pure function of the pipeline's structure. Parameter insertion order
//	never matters; step order, names, kinds, parameter names, value types
//	and values all do.
//
// Outputs:
//
//	Signature - Lowercase hex, Size characters.
//	error - bench.ErrInvalidPipeline or bench.ErrUnserializableParameter.
func Of(p Pipeline) (Signature, error) {
	c, err := Canonical(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(c)
	return Signature(hex.EncodeToString(sum[:])), nil
}

func appendParams(buf []byte, p Params) ([]byte, error) {
	buf = append(buf, '{')
	for i, k := range p.Keys() {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, '=')
		var err error
		buf, err = appendValue(buf, p[k])
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
	}
	return append(buf, '}'), nil
}

func appendValue(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		buf = append(buf, "b:"...)
		return strconv.AppendBool(buf, v.b), nil
	case KindInt:
		buf = append(buf, "i:"...)
		return strconv.AppendInt(buf, v.i, 10), nil
	case KindFloat:
		if math.IsNaN(v.f) {
			return nil, fmt.Errorf("%w: NaN has no canonical form", bench.ErrUnserializableParameter)
		}
		f := v.f
		if f == 0 {
			f = 0 // folds -0 into 0
		}
		buf = append(buf, "f:"...)
		return strconv.AppendFloat(buf, f, 'g', -1, 64), nil
	case KindString:
		buf = append(buf, "s:"...)
		return strconv.AppendQuote(buf, v.s), nil
	case KindList:
		buf = append(buf, '[')
		for i, e := range v.list {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendValue(buf, e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
		}
		return append(buf, ']'), nil
	case KindMap:
		return appendParams(buf, v.m)
	default:
		return nil, fmt.Errorf("%w: unknown value kind %d", bench.ErrUnserializableParameter, v.kind)
	}
}
