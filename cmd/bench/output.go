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
	"io"
	"math"
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench/results"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// maxErrorWidth wraps long failure messages in row tables.
const maxErrorWidth = 48

func newTableWriter(markdown bool) table.Writer {
	w := table.NewWriter()
	if !markdown {
		w.SetStyle(table.StyleLight)
	}
	return w
}

func render(out io.Writer, w table.Writer, markdown bool) {
	if markdown {
		fmt.Fprintln(out, w.RenderMarkdown())
		return
	}
	fmt.Fprintln(out, w.Render())
}

func formatScore(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func writeRows(out io.Writer, rows []results.Row, markdown bool) {
	w := newTableWriter(markdown)
	w.AppendHeader(table.Row{"Pipeline", "Signature", "Dataset", "Subject", "Session", "Kind", "Score", "N", "Status", "Error"})
	for _, r := range rows {
		w.AppendRow(table.Row{
			r.Pipeline, r.Signature.Short(), r.Dataset, r.Subject, r.Session, string(r.Kind),
			formatScore(r.Score), r.NSamples, string(r.Status), r.Error,
		})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 10, WidthMax: maxErrorWidth},
	})
	render(out, w, markdown)
}

func writeSummary(out io.Writer, summary []results.SummaryRow, markdown bool) {
	w := newTableWriter(markdown)
	w.AppendHeader(table.Row{"Pipeline", "Dataset", "Units", "Failed", "Mean", "Std"})
	var units, failed int
	for _, s := range summary {
		units += s.Count
		failed += s.Failed
		w.AppendRow(table.Row{s.Pipeline, s.Dataset, s.Count, s.Failed, formatScore(s.Mean), formatScore(s.Std)})
	}
	w.AppendFooter(table.Row{"", "Total", units, failed, "", ""})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	render(out, w, markdown)
}

func writeRecords(out io.Writer, recs []results.Record, markdown bool) {
	w := newTableWriter(markdown)
	w.AppendHeader(table.Row{"Pipeline", "Signature", "Dataset", "Subject", "Session", "Kind", "Suffix", "Score", "N", "Duration", "Timestamp"})
	for _, r := range recs {
		w.AppendRow(table.Row{
			r.Pipeline, r.Signature.Short(), r.Dataset, r.Subject, r.Session, string(r.Kind), r.Suffix,
			formatScore(r.Score), r.NSamples, r.Duration.Round(time.Millisecond).String(), r.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	render(out, w, markdown)
	fmt.Fprintf(out, "%d records\n", len(recs))
}
