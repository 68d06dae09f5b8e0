// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package results holds the persistent result cache and the in-memory
// result table of an evaluation run.
//
// A Record is keyed by the pipeline signature, the evaluable unit, the
// evaluation kind and a caller-chosen suffix. Every field takes part in
// equality, so a changed pipeline or a different suffix never hits an
// existing record.
package results

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/dataset"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
)

// keyPrefix namespaces result entries in the key-value store.
const keyPrefix = "result/"

// Key identifies one cached result.
type Key struct {
	Signature signature.Signature  `json:"signature"`
	Dataset   string               `json:"dataset"`
	Subject   string               `json:"subject"`
	Session   string               `json:"session"`
	Kind      bench.EvaluationKind `json:"kind"`
	Suffix    string               `json:"suffix"`
}

// NewKey builds the key of a pipeline on a unit.
func NewKey(sig signature.Signature, unit dataset.Unit, kind bench.EvaluationKind, suffix string) Key {
	return Key{
		Signature: sig,
		Dataset:   unit.Dataset,
		Subject:   unit.Subject,
		Session:   unit.Session,
		Kind:      kind,
		Suffix:    suffix,
	}
}

// Unit returns the evaluable unit the key refers to.
func (k Key) Unit() dataset.Unit {
	return dataset.Unit{Dataset: k.Dataset, Subject: k.Subject, Session: k.Session}
}

// String returns a human-readable form for logs.
func (k Key) String() string {
	s := fmt.Sprintf("%s@%s/%s/%s[%s]", k.Signature.Short(), k.Dataset, k.Subject, k.Session, k.Kind)
	if k.Suffix != "" {
		s += "+" + k.Suffix
	}
	return s
}

// Validate checks that every identifying field is set.
func (k Key) Validate() error {
	switch {
	case len(k.Signature) != signature.Size:
		return fmt.Errorf("key signature must be %d characters, got %d", signature.Size, len(k.Signature))
	case k.Dataset == "" || k.Subject == "" || k.Session == "":
		return errors.New("key dataset, subject and session are required")
	case !k.Kind.Valid():
		return fmt.Errorf("key has unknown evaluation kind %q", k.Kind)
	}
	return nil
}

// encode returns the store key: the prefix followed by every field,
// each preceded by its uvarint length, so no field content can make two
// keys collide.
func (k Key) encode() []byte {
	fields := [...]string{string(k.Signature), k.Dataset, k.Subject, k.Session, string(k.Kind), k.Suffix}
	buf := make([]byte, 0, 128)
	buf = append(buf, keyPrefix...)
	for _, f := range fields {
		buf = appendField(buf, f)
	}
	return buf
}

// scanPrefix returns the longest key prefix fixed by f, so scans can seek
// instead of walking every record.
func (f Filter) scanPrefix() []byte {
	buf := []byte(keyPrefix)
	if f.Signature == "" {
		return buf
	}
	buf = appendField(buf, string(f.Signature))
	if f.Dataset == "" {
		return buf
	}
	buf = appendField(buf, f.Dataset)
	if f.Subject == "" {
		return buf
	}
	return appendField(buf, f.Subject)
}

func appendField(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// Record is a cached result.
type Record struct {
	Key

	// Score is the aggregated cross-validated metric.
	Score float64 `json:"score"`

	// Folds holds the per-fold metrics in fold order.
	Folds []float64 `json:"folds,omitempty"`

	NSamples  int           `json:"n_samples"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`

	// Pipeline is the caller's name for the pipeline when it was scored.
	// It is informational; lookups use the signature.
	Pipeline string `json:"pipeline"`

	// Metric and Aggregation describe how Score was computed. They are
	// not part of the key; the engine warns when a cached record disagrees
	// with the current run.
	Metric      string `json:"metric,omitempty"`
	Aggregation string `json:"aggregation,omitempty"`
}

// Validate checks the key and that every score is finite, so records
// round-trip through JSON in every store.
func (r Record) Validate() error {
	if err := r.Key.Validate(); err != nil {
		return fmt.Errorf("%w: %w", bench.ErrInvalidRecord, err)
	}
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return fmt.Errorf("%w: %s has non-finite score %v", bench.ErrInvalidRecord, r.Key, r.Score)
	}
	for i, v := range r.Folds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s has non-finite fold %d score %v", bench.ErrInvalidRecord, r.Key, i, v)
		}
	}
	return nil
}

// Filter selects records. Empty fields match anything.
type Filter struct {
	Signature signature.Signature
	Dataset   string
	Subject   string
	Session   string
	Kind      bench.EvaluationKind
	Suffix    string
	Pipeline  string
}

// Match reports whether rec satisfies the filter.
func (f Filter) Match(rec Record) bool {
	return (f.Signature == "" || f.Signature == rec.Signature) &&
		(f.Dataset == "" || f.Dataset == rec.Dataset) &&
		(f.Subject == "" || f.Subject == rec.Subject) &&
		(f.Session == "" || f.Session == rec.Session) &&
		(f.Kind == "" || f.Kind == rec.Kind) &&
		(f.Suffix == "" || f.Suffix == rec.Suffix) &&
		(f.Pipeline == "" || f.Pipeline == rec.Pipeline)
}
