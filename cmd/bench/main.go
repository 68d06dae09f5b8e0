// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command bench evaluates classification pipelines over EEG datasets and
// caches every (pipeline, session) score, so repeated runs only compute what
// changed.
//
// Usage:
//
//	bench run --config bench.yaml
//	bench run --config bench.yaml --overwrite --suffix retrain
//	bench results list --config bench.yaml --dataset p300-a
//	bench results export --config bench.yaml --out scores.csv
//	bench results summary --config bench.yaml
//	bench serve --config bench.yaml --addr :8080
//
// Example requests against a running server:
//
//	curl http://localhost:8080/v1/bench/health
//	curl 'http://localhost:8080/v1/bench/results?dataset=p300-a&limit=50' | jq
//	curl http://localhost:8080/v1/bench/results/summary | jq
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
