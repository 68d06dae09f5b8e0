// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench/api"
	"github.com/AleutianAI/AleutianBench/services/bench/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(global *globalOptions) *cobra.Command {
	var (
		addr  string
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cached results over HTTP",
		Long: `Serves the results API:

  GET /v1/bench/health
  GET /v1/bench/results
  GET /v1/bench/results/summary
  GET /metrics

When the configured metric exporter is "none", serve switches it to
"prometheus" so /metrics has a registry to serve.

The store is opened read-only. Several serve and results commands can
share a badger store, but "bench run" needs exclusive access and fails
with "result store unavailable" while any of them holds it open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			global.defaultMetricExporter = telemetry.ExporterPrometheus
			return runServe(cmd, global, addr, debug)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Run gin in debug mode")
	return cmd
}

func runServe(cmd *cobra.Command, global *globalOptions, addr string, debug bool) (err error) {
	ctx := cmd.Context()
	a, err := global.setup(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()
	logger := a.logger.Slog()
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	store, err := a.cfg.OpenReadOnlyStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(
		a.cfg.Telemetry.ServiceName,
		api.NewHandlers(store, api.WithLogger(logger)),
		telemetry.MetricsHandler(),
		api.NewLimiter(a.cfg.Server.RateLimit, a.cfg.Server.Burst),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("Starting bench results server", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down bench results server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
