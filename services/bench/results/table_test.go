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
	"bytes"
	"encoding/csv"
	"math"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *Table {
	row := func(pipeline, subject string, score float64, status Status) Row {
		r := Row{
			Pipeline:  pipeline,
			Signature: sig('a'),
			Dataset:   "p300-a",
			Subject:   subject,
			Session:   "0",
			Kind:      bench.WithinSession,
			Score:     score,
			NSamples:  100,
			Duration:  2 * time.Second,
			Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Status:    status,
		}
		if status == StatusFailed {
			r.Score = math.NaN()
			r.Error = "degenerate fold"
		}
		return r
	}
	return NewTable("run-1", []Row{
		row("lr", "1", 0.7, StatusScored),
		row("lr", "2", 0.9, StatusCached),
		row("lr", "3", 0, StatusFailed),
		row("lda", "1", 0.8, StatusScored),
	})
}

func TestTable_Summary(t *testing.T) {
	sum := sampleTable().Summary()
	require.Len(t, sum, 2)

	assert.Equal(t, "lda", sum[0].Pipeline)
	assert.Equal(t, 1, sum[0].Count)
	assert.InDelta(t, 0.8, sum[0].Mean, 1e-12)
	assert.Equal(t, 0.0, sum[0].Std)

	assert.Equal(t, "lr", sum[1].Pipeline)
	assert.Equal(t, 2, sum[1].Count)
	assert.Equal(t, 1, sum[1].Failed)
	assert.InDelta(t, 0.8, sum[1].Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(0.02), sum[1].Std, 1e-12)
}

func TestTable_FilterAndCounts(t *testing.T) {
	tbl := sampleTable()
	assert.Equal(t, 4, tbl.Len())
	assert.Equal(t, map[Status]int{StatusScored: 2, StatusCached: 1, StatusFailed: 1}, tbl.Counts())

	lr := tbl.Filter(func(r Row) bool { return r.Pipeline == "lr" })
	assert.Equal(t, 3, lr.Len())
	assert.Equal(t, "run-1", lr.RunID)

	rows := tbl.Rows()
	rows[0].Pipeline = "mutated"
	assert.Equal(t, "lr", tbl.Rows()[0].Pipeline, "Rows returns a copy")
}

func TestTable_WriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleTable().WriteCSV(&buf))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 5)
	assert.Equal(t, csvHeader, recs[0])
	assert.Equal(t, "0.7", recs[1][8])
	assert.Equal(t, "2.000000", recs[1][10])
	assert.Equal(t, "2025-06-01T00:00:00Z", recs[1][11])
	assert.Equal(t, "", recs[3][8], "failed rows have no score")
	assert.Equal(t, "failed", recs[3][12])
	assert.Equal(t, "degenerate fold", recs[3][13])
}

func TestTableFromRecords(t *testing.T) {
	tbl := TableFromRecords("scan", []Record{testRecord("1", 0.6), testRecord("2", 0.8)})
	require.Equal(t, 2, tbl.Len())
	for _, r := range tbl.Rows() {
		assert.Equal(t, StatusCached, r.Status)
		assert.Equal(t, "lda", r.Pipeline)
	}
	assert.InDelta(t, 0.7, tbl.Summary()[0].Mean, 1e-12)
}

func TestKey(t *testing.T) {
	k := testKey("1")
	require.NoError(t, k.Validate())
	assert.Equal(t, "aaaaaaaaaaaa@p300-a/1/0[within_session]", k.String())
	k.Suffix = "v2"
	assert.Equal(t, "aaaaaaaaaaaa@p300-a/1/0[within_session]+v2", k.String())
	assert.Equal(t, "p300-a/1/0", k.Unit().String())

	k.Kind = "sideways"
	assert.Error(t, k.Validate())
}
