// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench/results"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`

	// TraceID identifies the request's trace when tracing is enabled.
	TraceID string `json:"trace_id,omitempty"`
}

// HealthResponse is returned by GET /v1/bench/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
}

// ResultsResponse is returned by GET /v1/bench/results.
type ResultsResponse struct {
	// Count is the number of records matching the filter before Limit.
	Count   int              `json:"count"`
	Records []results.Record `json:"records"`
}

// SummaryEntry is one pipeline/dataset aggregate. Mean is null when the
// group has no successful score, since JSON cannot carry NaN.
type SummaryEntry struct {
	Pipeline string   `json:"pipeline"`
	Dataset  string   `json:"dataset"`
	Count    int      `json:"count"`
	Failed   int      `json:"failed"`
	Mean     *float64 `json:"mean"`
	Std      float64  `json:"std"`
}

// SummaryResponse is returned by GET /v1/bench/results/summary.
type SummaryResponse struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Rows        []SummaryEntry `json:"rows"`
}
