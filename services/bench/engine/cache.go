// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/dataset"
	"github.com/AleutianAI/AleutianBench/services/bench/telemetry"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of loaded units kept per run.
const DefaultCacheSize = 64

// unitEntry is a cached load outcome. Failed loads are cached too so a
// missing unit is reported once per run, not once per pipeline.
type unitEntry struct {
	data dataset.Data
	err  error
}

// unitCache loads unit data at most once per run and shares it between
// pipelines. Cached data is read-only.
//
// Thread Safety: Safe for concurrent use.
type unitCache struct {
	partitioner *dataset.Partitioner
	entries     *lru.Cache[string, unitEntry]
	group       singleflight.Group
	metrics     *telemetry.Metrics
}

func newUnitCache(p *dataset.Partitioner, size int, metrics *telemetry.Metrics) (*unitCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, unitEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create unit cache: %w", err)
	}
	return &unitCache{partitioner: p, entries: entries, metrics: metrics}, nil
}

// get returns the data scored for unit under kind.
//
// Description:
//
//	Within-session evaluation uses the unit's own session. Cross-session
//	evaluation uses every session of the unit's subject, grouped by
//	session, so all units of a subject share one load.
//
//	The load runs under loadCtx, the run's context, so one pair timing out
//	does not fail the other pairs waiting on the same load. Each caller
//	stops waiting when its own ctx ends.
func (c *unitCache) get(ctx, loadCtx context.Context, ds *dataset.Dataset, unit dataset.Unit, kind bench.EvaluationKind) (dataset.Data, error) {
	key := unit.String()
	if kind == bench.CrossSession {
		key = unit.Dataset + "/" + unit.Subject + "/*"
	}
	if e, ok := c.entries.Get(key); ok {
		c.metrics.RecordUnitLoad(ctx, "shared")
		return e.data, e.err
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if e, ok := c.entries.Get(key); ok {
			return e, nil
		}
		var e unitEntry
		if kind == bench.CrossSession {
			e.data, e.err = c.partitioner.LoadSubject(loadCtx, ds, unit.Subject)
		} else {
			e.data, e.err = c.partitioner.Load(loadCtx, ds, unit)
		}
		if isContextErr(e.err) {
			c.metrics.RecordUnitLoad(loadCtx, "cancelled")
			return nil, e.err
		}
		if e.err != nil {
			c.metrics.RecordUnitLoad(loadCtx, "failed")
		} else {
			c.metrics.RecordUnitLoad(loadCtx, "loaded")
		}
		c.entries.Add(key, e)
		return e, nil
	})

	select {
	case <-ctx.Done():
		return dataset.Data{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return dataset.Data{}, res.Err
		}
		e := res.Val.(unitEntry)
		return e.data, e.err
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
