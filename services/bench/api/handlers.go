// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves cached evaluation results over HTTP for dashboards and
// plotting tools. It is read-only: scoring happens through the engine, never
// through a request.
package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/results"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
	"github.com/AleutianAI/AleutianBench/services/bench/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxLimit caps the limit query parameter of the results endpoint.
const maxLimit = 10000

// Handlers contains the HTTP handlers for the results API.
type Handlers struct {
	store  results.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures Handlers.
type Option func(*Handlers)

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClock overrides the timestamp source for summary responses.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandlers creates handlers reading from store.
func NewHandlers(store results.Store, opts ...Option) *Handlers {
	h := &Handlers{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleHealth handles GET /v1/bench/health.
//
// Description:
//
//	Reports service health. The store is probed with a lookup that cannot
//	match any record; a store that cannot answer makes the service
//	unhealthy.
//
// Response:
//
//	200 OK: HealthResponse
//	503 Service Unavailable: HealthResponse with Status "unhealthy"
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "healthy", Version: ServiceVersion, Store: "ok"}
	if _, err := h.store.Exists(c.Request.Context(), results.Key{}); err != nil {
		h.logger.Warn("store health probe failed", "error", err)
		resp.Status = "unhealthy"
		resp.Store = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleListResults handles GET /v1/bench/results.
//
// Query Parameters:
//
//	signature: full pipeline signature (optional)
//	dataset, subject, session, suffix, pipeline: exact matches (optional)
//	kind: evaluation kind, e.g. "within_session" (optional)
//	limit: maximum records returned (optional, default all, max 10000)
//
// Response:
//
//	200 OK: ResultsResponse
//	400 Bad Request: invalid filter
//	503 Service Unavailable: store unavailable
func (h *Handlers) HandleListResults(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleListResults")

	filter, err := filterFromQuery(c)
	if err != nil {
		logger.Warn("Invalid results filter", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_FILTER"})
		return
	}
	limit, err := limitFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_LIMIT"})
		return
	}

	recs, err := h.store.Scan(c.Request.Context(), filter)
	if err != nil {
		h.storeError(c, logger, err)
		return
	}

	resp := ResultsResponse{Count: len(recs), Records: recs}
	if limit > 0 && len(recs) > limit {
		resp.Records = recs[:limit]
	}
	if resp.Records == nil {
		resp.Records = []results.Record{}
	}
	logger.Debug("Listed results", "count", resp.Count)
	c.JSON(http.StatusOK, resp)
}

// HandleSummary handles GET /v1/bench/results/summary.
//
// Description:
//
//	Groups the records matching the same filters as /results by pipeline
//	name and dataset, and reports the mean and sample standard deviation
//	of their scores.
//
// Response:
//
//	200 OK: SummaryResponse
//	400 Bad Request: invalid filter
//	503 Service Unavailable: store unavailable
func (h *Handlers) HandleSummary(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleSummary")

	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_FILTER"})
		return
	}
	recs, err := h.store.Scan(c.Request.Context(), filter)
	if err != nil {
		h.storeError(c, logger, err)
		return
	}

	summary := results.TableFromRecords(requestID, recs).Summary()
	resp := SummaryResponse{GeneratedAt: h.now().UTC(), Rows: make([]SummaryEntry, 0, len(summary))}
	for _, s := range summary {
		entry := SummaryEntry{
			Pipeline: s.Pipeline,
			Dataset:  s.Dataset,
			Count:    s.Count,
			Failed:   s.Failed,
			Std:      s.Std,
		}
		if !math.IsNaN(s.Mean) {
			mean := s.Mean
			entry.Mean = &mean
		}
		resp.Rows = append(resp.Rows, entry)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) storeError(c *gin.Context, logger *slog.Logger, err error) {
	traceID := telemetry.TraceID(c.Request.Context())
	if traceID != "" {
		logger = logger.With("trace_id", traceID)
	}
	if errors.Is(err, bench.ErrStoreUnavailable) {
		logger.Error("Result store unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "result store unavailable", Code: "STORE_UNAVAILABLE", TraceID: traceID})
		return
	}
	logger.Error("Result scan failed", "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "result scan failed", Code: "SCAN_FAILED", TraceID: traceID})
}

func filterFromQuery(c *gin.Context) (results.Filter, error) {
	f := results.Filter{
		Signature: signature.Signature(c.Query("signature")),
		Dataset:   c.Query("dataset"),
		Subject:   c.Query("subject"),
		Session:   c.Query("session"),
		Suffix:    c.Query("suffix"),
		Pipeline:  c.Query("pipeline"),
	}
	if f.Signature != "" && len(f.Signature) != signature.Size {
		return f, errors.New("signature must be the full " + strconv.Itoa(signature.Size) + "-character value")
	}
	if raw := c.Query("kind"); raw != "" {
		kind, err := bench.ParseEvaluationKind(raw)
		if err != nil {
			return f, err
		}
		f.Kind = kind
	}
	return f, nil
}

func limitFromQuery(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		return 0, errors.New("limit must be an integer between 1 and " + strconv.Itoa(maxLimit))
	}
	return n, nil
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
