// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package estimators provides reference pipeline steps and the registry that
// turns step configurations into runtime scoring.StepDefs.
//
// The steps are deliberately small: the engine treats every step as opaque
// and these exist so the CLI and tests have real pipelines to evaluate.
package estimators

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/scoring"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
)

// Builder is a parsed step configuration.
type Builder interface {
	// Params returns the fully resolved parameters, defaults included, so
	// that an omitted default and an explicit default share a signature.
	Params() signature.Params

	// Build returns a fresh, unfitted step.
	Build() scoring.Step
}

// Entry describes one registered step type.
type Entry struct {
	Kind  signature.StepKind
	Parse func(params signature.Params) (Builder, error)
}

// StepConfig names a registered step type and its parameters.
type StepConfig struct {
	Type   string
	Name   string
	Params signature.Params
}

// Registry maps step type names to entries.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Default returns a registry holding the reference steps:
// standard_scaler, logistic_regression and lda.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(TypeStandardScaler, Entry{Kind: signature.KindTransform, Parse: parseStandardScaler})
	r.MustRegister(TypeLogisticRegression, Entry{Kind: signature.KindEstimator, Parse: parseLogisticRegression})
	r.MustRegister(TypeLDA, Entry{Kind: signature.KindEstimator, Parse: parseLDA})
	return r
}

// Register adds a step type. Registering a name twice is an error.
func (r *Registry) Register(typ string, e Entry) error {
	if typ == "" || e.Parse == nil {
		return fmt.Errorf("register %q: type name and parser are required", typ)
	}
	if e.Kind != signature.KindTransform && e.Kind != signature.KindEstimator {
		return fmt.Errorf("register %q: unknown kind %q", typ, e.Kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[typ]; ok {
		return fmt.Errorf("register %q: already registered", typ)
	}
	r.entries[typ] = e
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(typ string, e Entry) {
	if err := r.Register(typ, e); err != nil {
		panic(err)
	}
}

// Lookup returns the entry for typ.
func (r *Registry) Lookup(typ string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[typ]
	return e, ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StepDef parses cfg and returns a runtime step definition.
//
// Outputs:
//
//	scoring.StepDef - Config carries the resolved parameters; New builds a
//	                  fresh step on every call.
//	error - Wraps bench.ErrInvalidPipeline for unknown types, unknown
//	        parameters or parameter values of the wrong type.
func (r *Registry) StepDef(cfg StepConfig) (scoring.StepDef, error) {
	e, ok := r.Lookup(cfg.Type)
	if !ok {
		return scoring.StepDef{}, fmt.Errorf("%w: unknown step type %q", bench.ErrInvalidPipeline, cfg.Type)
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Type
	}
	b, err := e.Parse(cfg.Params)
	if err != nil {
		return scoring.StepDef{}, fmt.Errorf("step %q: %w", name, err)
	}
	return scoring.StepDef{
		Config: signature.Step{
			Name:   name,
			Kind:   e.Kind,
			Type:   cfg.Type,
			Params: b.Params(),
		},
		New: func() (scoring.Step, error) { return b.Build(), nil },
	}, nil
}

// Pipeline builds a named runtime pipeline from step configurations and
// checks its structure.
func (r *Registry) Pipeline(name string, steps ...StepConfig) (scoring.Pipeline, error) {
	p := scoring.Pipeline{Name: name, Steps: make([]scoring.StepDef, 0, len(steps))}
	for _, cfg := range steps {
		def, err := r.StepDef(cfg)
		if err != nil {
			return scoring.Pipeline{}, fmt.Errorf("pipeline %q: %w", name, err)
		}
		p.Steps = append(p.Steps, def)
	}
	if err := p.Definition().Validate(); err != nil {
		return scoring.Pipeline{}, fmt.Errorf("pipeline %q: %w", name, err)
	}
	return p, nil
}

// paramReader reads typed parameters and remembers which keys it consumed.
type paramReader struct {
	typ  string
	p    signature.Params
	used map[string]struct{}
	err  error
}

func newParamReader(typ string, p signature.Params) *paramReader {
	return &paramReader{typ: typ, p: p, used: make(map[string]struct{}, len(p))}
}

func (r *paramReader) lookup(key string) (signature.Value, bool) {
	r.used[key] = struct{}{}
	v, ok := r.p[key]
	if !ok || v.IsNull() {
		return v, false
	}
	return v, true
}

func (r *paramReader) fail(key, want string, v signature.Value) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s parameter %q must be %s, got %s",
			bench.ErrInvalidPipeline, r.typ, key, want, v.Kind())
	}
}

func (r *paramReader) float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, ok := v.AsFloat()
	if !ok {
		r.fail(key, "a number", v)
		return def
	}
	return f
}

func (r *paramReader) int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	i, ok := v.AsInt()
	if !ok {
		r.fail(key, "an integer", v)
		return def
	}
	return int(i)
}

func (r *paramReader) bool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, ok := v.AsBool()
	if !ok {
		r.fail(key, "a boolean", v)
		return def
	}
	return b
}

// raw returns the value as given, for parameters with mixed types.
func (r *paramReader) raw(key string) (signature.Value, bool) {
	return r.lookup(key)
}

func (r *paramReader) done() error {
	if r.err != nil {
		return r.err
	}
	for _, k := range r.p.Keys() {
		if _, ok := r.used[k]; !ok {
			return fmt.Errorf("%w: %s has no parameter %q", bench.ErrInvalidPipeline, r.typ, k)
		}
	}
	return nil
}
