// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package candidates

import (
	"reflect"
	"testing"
)

func TestMergeDeduplicatesByID(t *testing.T) {
	a := []Record{{ID: "Q1", Label: "Paris"}}
	b := []Record{
		{ID: "Q1", Label: "Paris", Description: "capital of France"},
		{ID: "Q2", Label: "France"},
	}

	out := Merge(a, b)

	if len(out) != 2 {
		t.Fatalf("Merge returned %d records, want 2: %+v", len(out), out)
	}
	if out[0].ID != "Q1" || out[1].ID != "Q2" {
		t.Errorf("unexpected order: %+v", out)
	}
	if out[0].Description != "capital of France" {
		t.Errorf("last-seen description should win, got %q", out[0].Description)
	}
}

func TestMergeIDUniqueness(t *testing.T) {
	// Heavy overlap between both lists plus internal duplicates.
	a := []Record{
		{ID: "Q5", Label: "human"},
		{ID: "Q5", Label: "human being"},
		{ID: "Q7", Label: "seven"},
	}
	b := []Record{
		{ID: "Q7", Label: "the number seven"},
		{ID: "Q5", Label: "homo sapiens"},
		{ID: "Q9", Label: "nine"},
	}

	out := Merge(a, b)

	seen := make(map[string]int)
	for _, r := range out {
		seen[r.ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("id %s appears %d times, want exactly 1", id, n)
		}
	}
	if len(out) != 3 {
		t.Errorf("got %d records, want 3", len(out))
	}
}

func TestMergeOrderIsFirstOccurrence(t *testing.T) {
	a := []Record{{ID: "Q2"}, {ID: "Q1"}}
	b := []Record{{ID: "Q3"}, {ID: "Q1"}}

	out := Merge(a, b)

	var ids []string
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	want := []string{"Q2", "Q1", "Q3"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestMergeDropsRecordsWithoutID(t *testing.T) {
	a := []Record{{Label: "orphan"}, {ID: "Q1", Label: "kept"}}
	b := []Record{{Label: "another orphan"}}

	out := Merge(a, b)

	if len(out) != 1 || out[0].ID != "Q1" {
		t.Errorf("records without an id must be dropped, got %+v", out)
	}
}

func TestMergePreservesPopulatedFields(t *testing.T) {
	// The later record wins, but must not blank out fields the earlier
	// record had.
	a := []Record{{ID: "Q1", Label: "Paris", Description: "capital", Neighbors: []string{"  - (This) -> [country] -> France"}}}
	b := []Record{{ID: "Q1", Label: "Paris, France", Score: 0.9}}

	out := Merge(a, b)

	if len(out) != 1 {
		t.Fatalf("got %d records, want 1", len(out))
	}
	r := out[0]
	if r.Label != "Paris, France" {
		t.Errorf("Label = %q, want last-seen value", r.Label)
	}
	if r.Description != "capital" {
		t.Errorf("Description = %q, want earlier populated value retained", r.Description)
	}
	if len(r.Neighbors) == 0 {
		t.Errorf("Neighbors lost in merge: %+v", r)
	}
	if r.Score != 0.9 {
		t.Errorf("Score = %v, want 0.9", r.Score)
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	if out := Merge(nil, nil); len(out) != 0 {
		t.Errorf("Merge(nil, nil) = %+v, want empty", out)
	}
	one := []Record{{ID: "Q1"}}
	if out := Merge(one, nil); len(out) != 1 {
		t.Errorf("Merge(one, nil) = %+v, want the single record", out)
	}
	if out := Merge(nil, one); len(out) != 1 {
		t.Errorf("Merge(nil, one) = %+v, want the single record", out)
	}
}
