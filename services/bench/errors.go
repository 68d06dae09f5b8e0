// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bench

import "errors"

// Sentinel errors for the evaluation engine.
//
// Per-pair failures (MissingUnit, DegenerateFold, UnserializableParameter,
// PairTimeout, InvalidRecord) are recorded as failure rows. StoreUnavailable aborts a run.
var (
	// ErrUnserializableParameter indicates a pipeline parameter has no
	// canonical form, so no signature can be derived for that pipeline.
	ErrUnserializableParameter = errors.New("unserializable parameter")

	// ErrInvalidPipeline indicates a structurally invalid pipeline
	// (no steps, empty or duplicate names, missing final estimator).
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrMissingUnit indicates a declared subject/session has no recoverable data.
	ErrMissingUnit = errors.New("missing unit")

	// ErrDegenerateFold indicates a fold where the metric is undefined
	// (single label class, or a non-finite metric).
	ErrDegenerateFold = errors.New("degenerate fold")

	// ErrAlreadyExists indicates a non-overwriting write to a key that holds a record.
	ErrAlreadyExists = errors.New("result already exists")

	// ErrNotFound indicates no record is stored under the key.
	ErrNotFound = errors.New("result not found")

	// ErrStoreUnavailable indicates an I/O failure in the result store.
	ErrStoreUnavailable = errors.New("result store unavailable")

	// ErrInvalidRecord indicates a record the store refuses to hold, such
	// as one with a non-finite score.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrPairTimeout indicates a pair exceeded its per-pair timeout.
	ErrPairTimeout = errors.New("pair timed out")
)
