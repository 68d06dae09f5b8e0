// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bench

import (
	"fmt"
	"strings"
)

// EvaluationKind selects how a unit is split into folds.
//
// The kind is part of every cache key, so within-session and cross-session
// scores for the same pipeline never shadow each other.
type EvaluationKind string

const (
	// WithinSession cross-validates inside a single recording session.
	WithinSession EvaluationKind = "within_session"

	// CrossSession trains on a subject's other sessions and tests on the
	// unit's session.
	CrossSession EvaluationKind = "cross_session"
)

// Valid reports whether k is a known evaluation kind.
func (k EvaluationKind) Valid() bool {
	return k == WithinSession || k == CrossSession
}

// String returns the kind's canonical name.
func (k EvaluationKind) String() string {
	return string(k)
}

// ParseEvaluationKind accepts canonical names plus dashed and short spellings
// ("within-session", "within", "cross").
func ParseEvaluationKind(s string) (EvaluationKind, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "within_session", "within", "withinsession":
		return WithinSession, nil
	case "cross_session", "cross", "crosssession":
		return CrossSession, nil
	default:
		return "", fmt.Errorf("unknown evaluation kind %q", s)
	}
}
