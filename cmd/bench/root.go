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
	"io"
	"time"

	"github.com/AleutianAI/AleutianBench/pkg/logging"
	"github.com/AleutianAI/AleutianBench/services/bench/config"
	"github.com/AleutianAI/AleutianBench/services/bench/telemetry"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath     string
	logLevel       string
	logJSON        bool
	logDir         string
	traceExporter  string
	metricExporter string

	// defaultMetricExporter replaces a disabled metric exporter when
	// neither the config nor the flag chose one.
	defaultMetricExporter string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "bench",
		Short: "Cached evaluation of classification pipelines over EEG datasets",
		Long: `bench scores each configured pipeline on every session of every
configured dataset with cross-validated ROC AUC. Scores are cached by
pipeline signature, so a re-run only computes pairs it has not seen.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "bench.yaml", "Path to the bench configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	flags.BoolVar(&opts.logJSON, "log-json", false, "Write JSON logs to stderr even on a terminal")
	flags.StringVar(&opts.logDir, "log-dir", "", "Also write JSON logs to a dated file in this directory")
	flags.StringVar(&opts.traceExporter, "trace-exporter", "", "Trace exporter: otlp, stdout or none (overrides config)")
	flags.StringVar(&opts.metricExporter, "metric-exporter", "", "Metric exporter: prometheus, stdout or none (overrides config)")

	root.AddCommand(
		newRunCmd(opts),
		newResultsCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// app holds what every subcommand needs after flag parsing.
type app struct {
	cfg      config.Config
	logger   *logging.Logger
	shutdown func(context.Context) error
}

// setup loads the configuration, applies the global flag overrides and
// starts logging and telemetry. The caller must Close the app.
func (o *globalOptions) setup(ctx context.Context, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logDir != "" {
		cfg.Logging.Dir = o.logDir
	}
	if o.traceExporter != "" {
		cfg.Telemetry.TraceExporter = o.traceExporter
	}
	if o.metricExporter != "" {
		cfg.Telemetry.MetricExporter = o.metricExporter
	}
	if o.defaultMetricExporter != "" && (cfg.Telemetry.MetricExporter == "" || cfg.Telemetry.MetricExporter == telemetry.ExporterNone) {
		cfg.Telemetry.MetricExporter = o.defaultMetricExporter
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    o.logJSON || cfg.Logging.JSON,
		Stderr:  stderr,
	})
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	logger.Debug("configuration loaded",
		"config", o.configPath,
		"datasets", len(cfg.Datasets),
		"pipelines", len(cfg.Pipelines),
		"store", cfg.Store.Backend,
	)
	return &app{cfg: cfg, logger: logger, shutdown: shutdown}, nil
}

// Close flushes telemetry and closes the log file.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(a.shutdown(ctx), a.logger.Close())
}
