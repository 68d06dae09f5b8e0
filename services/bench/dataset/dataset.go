// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dataset describes labeled datasets and partitions them into
// evaluable units.
//
// A Dataset declares subjects and their sessions; raw trials and labels are
// fetched through a Loader collaborator. The Partitioner enumerates
// (dataset, subject, session) units and turns raw loader output into
// aligned, numerically encoded Data.
package dataset

import (
	"fmt"
	"sort"
)

// ParadigmP300 is the two-class target/non-target paradigm.
const ParadigmP300 = "p300"

// LabelEncoding maps categorical label names to fixed numeric classes.
//
// The encoding is fixed per paradigm so scores from different datasets of
// the same paradigm are comparable.
type LabelEncoding map[string]int

// P300Encoding returns the target/non-target encoding {Target: 1, NonTarget: 0}.
func P300Encoding() LabelEncoding {
	return LabelEncoding{"Target": 1, "NonTarget": 0}
}

// EncodingFor returns the default encoding of a paradigm, or nil if the
// paradigm has none.
func EncodingFor(paradigm string) LabelEncoding {
	switch paradigm {
	case ParadigmP300, "P300":
		return P300Encoding()
	default:
		return nil
	}
}

// Encode maps label names to classes.
func (e LabelEncoding) Encode(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		c, ok := e[l]
		if !ok {
			return nil, fmt.Errorf("label %q at trial %d is not in the encoding", l, i)
		}
		out[i] = c
	}
	return out, nil
}

// Classes returns the encoded classes in ascending order.
func (e LabelEncoding) Classes() []int {
	seen := make(map[int]struct{}, len(e))
	out := make([]int, 0, len(e))
	for _, c := range e {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// Subject is one participant and the sessions recorded for them.
type Subject struct {
	ID       string   `json:"id" yaml:"id"`
	Sessions []string `json:"sessions" yaml:"sessions"`
}

// Dataset is a descriptor: identity, label encoding and the declared
// subject/session layout. It holds no trial data.
type Dataset struct {
	ID       string        `json:"id" yaml:"id"`
	Paradigm string        `json:"paradigm" yaml:"paradigm"`
	Encoding LabelEncoding `json:"encoding" yaml:"encoding"`
	Subjects []Subject     `json:"subjects" yaml:"subjects"`
}

// Validate checks that the descriptor is usable.
func (d *Dataset) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("dataset id is required")
	}
	if len(d.Encoding) < 2 {
		return fmt.Errorf("dataset %s: label encoding needs at least two labels", d.ID)
	}
	if len(d.Encoding.Classes()) < 2 {
		return fmt.Errorf("dataset %s: label encoding maps every label to one class", d.ID)
	}
	seen := make(map[string]struct{}, len(d.Subjects))
	for _, s := range d.Subjects {
		if s.ID == "" {
			return fmt.Errorf("dataset %s: subject with empty id", d.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("dataset %s: duplicate subject %q", d.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
		sessions := make(map[string]struct{}, len(s.Sessions))
		for _, sess := range s.Sessions {
			if sess == "" {
				return fmt.Errorf("dataset %s: subject %s has a session with empty id", d.ID, s.ID)
			}
			if _, dup := sessions[sess]; dup {
				return fmt.Errorf("dataset %s: subject %s has duplicate session %q", d.ID, s.ID, sess)
			}
			sessions[sess] = struct{}{}
		}
	}
	return nil
}

// Subject returns the declared subject with the given id.
func (d *Dataset) Subject(id string) (Subject, bool) {
	for _, s := range d.Subjects {
		if s.ID == id {
			return s, true
		}
	}
	return Subject{}, false
}

// Declares reports whether the unit belongs to this dataset's layout.
func (d *Dataset) Declares(u Unit) bool {
	if u.Dataset != d.ID {
		return false
	}
	s, ok := d.Subject(u.Subject)
	if !ok {
		return false
	}
	for _, sess := range s.Sessions {
		if sess == u.Session {
			return true
		}
	}
	return false
}

// Unit is one (dataset, subject, session) cell: the scheduling and caching
// granularity of an evaluation.
type Unit struct {
	Dataset string `json:"dataset"`
	Subject string `json:"subject"`
	Session string `json:"session"`
}

// String returns "dataset/subject/session".
func (u Unit) String() string {
	return u.Dataset + "/" + u.Subject + "/" + u.Session
}

// Raw is what a Loader returns: feature rows and their label names.
type Raw struct {
	Trials [][]float64 `json:"trials"`
	Labels []string    `json:"labels"`
}

// Data is loaded, aligned and encoded trial data.
//
// Groups is set when several sessions are concatenated (cross-session
// evaluation) and holds the session id of each trial.
//
// Data returned by the Partitioner may be shared between pipelines and
// must be treated as read-only.
type Data struct {
	X      [][]float64
	Y      []int
	Groups []string
}

// Len returns the number of trials.
func (d Data) Len() int { return len(d.Y) }

// Features returns the width of each trial row.
func (d Data) Features() int {
	if len(d.X) == 0 {
		return 0
	}
	return len(d.X[0])
}

// Subset returns the trials at idx. Rows are shared, not copied.
func (d Data) Subset(idx []int) Data {
	out := Data{
		X: make([][]float64, len(idx)),
		Y: make([]int, len(idx)),
	}
	if d.Groups != nil {
		out.Groups = make([]string, len(idx))
	}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
		if d.Groups != nil {
			out.Groups[i] = d.Groups[j]
		}
	}
	return out
}

// ClassCounts counts trials per class.
func (d Data) ClassCounts() map[int]int {
	counts := make(map[int]int)
	for _, y := range d.Y {
		counts[y]++
	}
	return counts
}
