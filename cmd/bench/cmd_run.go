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
	"fmt"
	"os"
	"sync"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/engine"
	"github.com/AleutianAI/AleutianBench/services/bench/results"
	"github.com/AleutianAI/AleutianBench/services/bench/scoring/estimators"
	"github.com/spf13/cobra"
)

type runOptions struct {
	overwrite   bool
	suffix      string
	kind        string
	parallelism int
	csvPath     string
	showRows    bool
	markdown    bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the configured pipelines over the configured datasets",
		Long: `Evaluates every configured pipeline on every evaluable unit of every
configured dataset. Cached scores are reused unless --overwrite is set.
Failed pairs are reported in the table and never stop the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, global, opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.overwrite, "overwrite", false, "Recompute every pair and replace cached scores")
	f.StringVar(&opts.suffix, "suffix", "", "Result key suffix; runs with different suffixes never share scores")
	f.StringVar(&opts.kind, "kind", "", "Evaluation kind: within_session or cross_session")
	f.IntVar(&opts.parallelism, "parallelism", 0, "Concurrent pairs (0 uses GOMAXPROCS)")
	f.StringVar(&opts.csvPath, "csv", "", "Also write every row to this CSV file")
	f.BoolVar(&opts.showRows, "rows", false, "Print every row, not only the summary")
	f.BoolVar(&opts.markdown, "markdown", false, "Render tables as Markdown")
	return cmd
}

func runEvaluate(cmd *cobra.Command, global *globalOptions, opts *runOptions) (err error) {
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

	ecfg, err := a.cfg.EngineConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("overwrite") {
		ecfg.Overwrite = opts.overwrite
	}
	if flags.Changed("suffix") {
		ecfg.Suffix = opts.suffix
	}
	if flags.Changed("kind") {
		kind, err := bench.ParseEvaluationKind(opts.kind)
		if err != nil {
			return err
		}
		ecfg.Kind = kind
	}
	if flags.Changed("parallelism") {
		ecfg.Parallelism = opts.parallelism
	}
	metric, err := a.cfg.Metric()
	if err != nil {
		return err
	}

	pipelines, err := a.cfg.BuildPipelines(estimators.Default())
	if err != nil {
		return err
	}
	datasets, loader, err := a.cfg.BuildDatasets()
	if err != nil {
		return err
	}
	store, err := a.cfg.OpenStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		mu   sync.Mutex
		done int
	)
	progress := func(row results.Row) {
		mu.Lock()
		defer mu.Unlock()
		done++
		logger.Info("pair recorded",
			"n", done,
			"pipeline", row.Pipeline,
			"unit", row.Dataset+"/"+row.Subject+"/"+row.Session,
			"status", string(row.Status),
			"score", row.Score,
		)
	}

	eng, err := engine.New(store, loader, ecfg,
		engine.WithLogger(logger),
		engine.WithMetric(metric),
		engine.WithProgress(progress),
	)
	if err != nil {
		return err
	}
	table, err := eng.Evaluate(ctx, pipelines, datasets)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.showRows {
		writeRows(out, table.Rows(), opts.markdown)
	}
	writeSummary(out, table.Summary(), opts.markdown)
	counts := table.Counts()
	fmt.Fprintf(out, "run %s: %d scored, %d cached, %d failed\n", table.RunID,
		counts[results.StatusScored], counts[results.StatusCached], counts[results.StatusFailed])

	if opts.csvPath != "" {
		if err := writeCSVFile(opts.csvPath, table); err != nil {
			return err
		}
		logger.Info("wrote csv", "path", opts.csvPath, "rows", table.Len())
	}
	return nil
}

func writeCSVFile(path string, table *results.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := table.WriteCSV(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
