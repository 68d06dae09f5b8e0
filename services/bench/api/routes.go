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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

// RegisterRoutes registers the /bench endpoints on rg (typically /v1):
//
//	GET /v1/bench/health          - Service and store health
//	GET /v1/bench/results         - Cached records matching a filter
//	GET /v1/bench/results/summary - Per pipeline and dataset aggregates
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	bench := rg.Group("/bench")
	{
		bench.GET("/health", h.HandleHealth)
		bench.GET("/results", h.HandleListResults)
		bench.GET("/results/summary", h.HandleSummary)
	}
}

// NewRouter builds the full HTTP surface: recovery and otelgin middleware,
// GET /metrics, and the /v1 routes.
//
// metrics serves /metrics. When nil, the default Prometheus registry is
// served. limiter, when non-nil, applies to the /v1 routes only so scrapes
// are never throttled.
func NewRouter(service string, h *Handlers, metrics http.Handler, limiter *rate.Limiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(service))

	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))

	v1 := router.Group("/v1")
	v1.Use(RateLimit(limiter))
	RegisterRoutes(v1, h)
	return router
}
