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

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/results"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type filterOptions struct {
	signature string
	dataset   string
	subject   string
	session   string
	kind      string
	suffix    string
	pipeline  string
}

func (o *filterOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.signature, "signature", "", "Full pipeline signature")
	f.StringVar(&o.dataset, "dataset", "", "Dataset id")
	f.StringVar(&o.subject, "subject", "", "Subject id")
	f.StringVar(&o.session, "session", "", "Session id")
	f.StringVar(&o.kind, "kind", "", "Evaluation kind")
	f.StringVar(&o.suffix, "suffix", "", "Result key suffix")
	f.StringVar(&o.pipeline, "pipeline", "", "Pipeline name recorded with the score")
}

func (o *filterOptions) filter() (results.Filter, error) {
	f := results.Filter{
		Signature: signature.Signature(o.signature),
		Dataset:   o.dataset,
		Subject:   o.subject,
		Session:   o.session,
		Suffix:    o.suffix,
		Pipeline:  o.pipeline,
	}
	if o.signature != "" && len(o.signature) != signature.Size {
		return f, fmt.Errorf("--signature must be the full %d-character signature", signature.Size)
	}
	if o.kind != "" {
		kind, err := bench.ParseEvaluationKind(o.kind)
		if err != nil {
			return f, err
		}
		f.Kind = kind
	}
	return f, nil
}

func newResultsCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect cached scores",
	}
	cmd.AddCommand(
		newResultsListCmd(global),
		newResultsExportCmd(global),
		newResultsSummaryCmd(global),
	)
	return cmd
}

func newResultsListCmd(global *globalOptions) *cobra.Command {
	filter := &filterOptions{}
	var markdown bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print cached records matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := scanStore(cmd, global, filter)
			if err != nil {
				return err
			}
			writeRecords(cmd.OutOrStdout(), recs, markdown)
			return nil
		},
	}
	filter.bind(cmd)
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render as Markdown")
	return cmd
}

func newResultsExportCmd(global *globalOptions) *cobra.Command {
	filter := &filterOptions{}
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write cached records matching the filters to CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := scanStore(cmd, global, filter)
			if err != nil {
				return err
			}
			table := results.TableFromRecords(uuid.NewString(), recs)
			if out == "" || out == "-" {
				return table.WriteCSV(cmd.OutOrStdout())
			}
			if err := writeCSVFile(out, table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", table.Len(), out)
			return nil
		},
	}
	filter.bind(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "CSV file to write (default stdout)")
	return cmd
}

func newResultsSummaryCmd(global *globalOptions) *cobra.Command {
	filter := &filterOptions{}
	var markdown bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print mean and standard deviation per pipeline and dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := scanStore(cmd, global, filter)
			if err != nil {
				return err
			}
			summary := results.TableFromRecords(uuid.NewString(), recs).Summary()
			writeSummary(cmd.OutOrStdout(), summary, markdown)
			return nil
		},
	}
	filter.bind(cmd)
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render as Markdown")
	return cmd
}

// scanStore opens the configured store, scans it and closes it again.
func scanStore(cmd *cobra.Command, global *globalOptions, fo *filterOptions) (recs []results.Record, err error) {
	f, err := fo.filter()
	if err != nil {
		return nil, err
	}
	a, err := global.setup(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()

	store, err := a.cfg.OpenReadOnlyStore(a.logger.Slog())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	recs, err = store.Scan(cmd.Context(), f)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("scanned results", "records", len(recs))
	return recs, nil
}
