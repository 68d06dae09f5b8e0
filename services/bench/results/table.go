// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/signature"
)

// Status is how a row's score was obtained.
type Status string

const (
	// StatusScored means the score was computed during this run.
	StatusScored Status = "scored"

	// StatusCached means the score was read from the store.
	StatusCached Status = "cached"

	// StatusFailed means the pair failed; Score is NaN and Error is set.
	StatusFailed Status = "failed"
)

// Row is one (pipeline, unit) outcome.
type Row struct {
	Pipeline  string
	Signature signature.Signature
	Dataset   string
	Subject   string
	Session   string
	Kind      bench.EvaluationKind
	Suffix    string
	Score     float64
	NSamples  int
	Duration  time.Duration
	Timestamp time.Time
	Status    Status
	Error     string
}

// RowFromRecord builds a row from a stored record. The row's pipeline name
// is the caller's current name, which may differ from the stored one.
func RowFromRecord(pipeline string, rec Record, status Status) Row {
	name := pipeline
	if name == "" {
		name = rec.Pipeline
	}
	return Row{
		Pipeline:  name,
		Signature: rec.Signature,
		Dataset:   rec.Dataset,
		Subject:   rec.Subject,
		Session:   rec.Session,
		Kind:      rec.Kind,
		Suffix:    rec.Suffix,
		Score:     rec.Score,
		NSamples:  rec.NSamples,
		Duration:  rec.Duration,
		Timestamp: rec.Timestamp,
		Status:    status,
	}
}

// OK reports whether the row carries a score.
func (r Row) OK() bool { return r.Status == StatusScored || r.Status == StatusCached }

// Table is the ordered result of one evaluation run. It is not safe for
// concurrent mutation; the engine builds it once and hands it over.
type Table struct {
	// RunID identifies the run that produced the table.
	RunID string

	rows []Row
}

// NewTable wraps rows. The slice is owned by the table afterwards.
func NewTable(runID string, rows []Row) *Table {
	return &Table{RunID: runID, rows: rows}
}

// TableFromRecords builds a table of cached rows from stored records.
func TableFromRecords(runID string, recs []Record) *Table {
	rows := make([]Row, len(recs))
	for i, rec := range recs {
		rows[i] = RowFromRecord("", rec, StatusCached)
	}
	return NewTable(runID, rows)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of the rows in order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Filter returns a table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	var rows []Row
	for _, r := range t.rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return NewTable(t.RunID, rows)
}

// Counts returns how many rows have each status.
func (t *Table) Counts() map[Status]int {
	out := make(map[Status]int, 3)
	for _, r := range t.rows {
		out[r.Status]++
	}
	return out
}

// SummaryRow aggregates the scores of one pipeline on one dataset.
type SummaryRow struct {
	Pipeline string  `json:"pipeline"`
	Dataset  string  `json:"dataset"`
	Count    int     `json:"count"`
	Failed   int     `json:"failed"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
}

// Summary groups rows by pipeline and dataset. Mean and sample standard
// deviation cover scored and cached rows only; with fewer than two scores
// Std is 0, and with none Mean is NaN.
func (t *Table) Summary() []SummaryRow {
	type group struct {
		scores []float64
		failed int
	}
	type gkey struct{ pipeline, dataset string }
	groups := make(map[gkey]*group)
	var order []gkey
	for _, r := range t.rows {
		k := gkey{r.Pipeline, r.Dataset}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
			order = append(order, k)
		}
		if r.OK() {
			g.scores = append(g.scores, r.Score)
		} else {
			g.failed++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].pipeline != order[j].pipeline {
			return order[i].pipeline < order[j].pipeline
		}
		return order[i].dataset < order[j].dataset
	})

	out := make([]SummaryRow, 0, len(order))
	for _, k := range order {
		g := groups[k]
		mean, std := meanStd(g.scores)
		out = append(out, SummaryRow{
			Pipeline: k.pipeline,
			Dataset:  k.dataset,
			Count:    len(g.scores),
			Failed:   g.failed,
			Mean:     mean,
			Std:      std,
		})
	}
	return out
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return math.NaN(), 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// csvHeader is the column order of WriteCSV.
var csvHeader = []string{
	"run_id", "pipeline", "signature", "dataset", "subject", "session", "kind", "suffix",
	"score", "n_samples", "duration_s", "timestamp", "status", "error",
}

// WriteCSV writes the table with a header row. Failed rows have an empty
// score.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range t.rows {
		score := ""
		if r.OK() {
			score = strconv.FormatFloat(r.Score, 'g', -1, 64)
		}
		ts := ""
		if !r.Timestamp.IsZero() {
			ts = r.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		rec := []string{
			t.RunID, r.Pipeline, string(r.Signature), r.Dataset, r.Subject, r.Session,
			string(r.Kind), r.Suffix, score, strconv.Itoa(r.NSamples),
			strconv.FormatFloat(r.Duration.Seconds(), 'f', 6, 64), ts, string(r.Status), r.Error,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
