// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package bench holds the types shared by the Aleutian Bench evaluation engine.

# Overview

Aleutian Bench scores classification pipelines against labeled datasets that
are partitioned by subject and recording session. Every (pipeline, dataset,
subject, session) cell produces one metric, and every metric is cached under
the pipeline's signature so that re-running an unchanged pipeline is a no-op.

# Architecture

	┌──────────────────────────────────────────────────────────────────────┐
	│                              engine                                  │
	│   for each pipeline × unit:  PENDING → CACHED | COMPUTING → RECORDED │
	└──────┬──────────────┬────────────────┬──────────────────┬───────────┘
	       │              │                │                  │
	       ▼              ▼                ▼                  ▼
	┌────────────┐ ┌────────────┐  ┌──────────────┐   ┌──────────────┐
	│ signature  │ │  dataset   │  │   scoring    │   │   results    │
	│ (identity) │ │ (units +   │  │ (CV folds +  │   │ (Badger KV   │
	│            │ │  loading)  │  │  metric)     │   │  cache)      │
	└────────────┘ └────────────┘  └──────────────┘   └──────────────┘

The subpackages import this package for the sentinel errors and the
evaluation kind; this package imports none of them.
*/
package bench
