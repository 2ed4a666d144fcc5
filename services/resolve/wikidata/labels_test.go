// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// labelServer answers wbgetentities with "Label for <id>" for every requested
// ID, recording per-request chunk sizes.
func labelServer(t *testing.T, chunkSizes *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "wbgetentities" || q.Get("props") != "labels" {
			t.Errorf("unexpected query params: %v", q)
		}
		ids := strings.Split(q.Get("ids"), "|")
		*chunkSizes = append(*chunkSizes, len(ids))

		lang := q.Get("languages")
		entities := make(map[string]any, len(ids))
		for _, id := range ids {
			entities[id] = map[string]any{
				"labels": map[string]any{
					lang: map[string]any{"value": "Label for " + id},
				},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"entities": entities})
	}))
}

func TestLabelsChunksAtFifty(t *testing.T) {
	var chunkSizes []int
	ts := labelServer(t, &chunkSizes)
	defer ts.Close()

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("Q%d", i+1)
	}

	c := NewClient(fastTestConfig(ts.URL), nil, nil)
	labels, err := c.Labels(context.Background(), ids, "en")
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if len(labels) != 120 {
		t.Fatalf("got %d labels, want 120", len(labels))
	}
	if labels["Q7"] != "Label for Q7" {
		t.Errorf("Q7 = %q", labels["Q7"])
	}

	want := []int{50, 50, 20}
	if len(chunkSizes) != len(want) {
		t.Fatalf("chunk sizes = %v, want %v", chunkSizes, want)
	}
	for i, n := range want {
		if chunkSizes[i] != n {
			t.Errorf("chunk %d size = %d, want %d", i, chunkSizes[i], n)
		}
	}
}

func TestLabelsEmptyInput(t *testing.T) {
	c := NewClient(fastTestConfig("http://invalid.example"), nil, nil)
	labels, err := c.Labels(context.Background(), nil, "en")
	if err != nil {
		t.Fatalf("Labels(nil): %v", err)
	}
	if len(labels) != 0 {
		t.Errorf("got %d labels, want 0", len(labels))
	}
}

func TestLabelsOmitsMissingLanguage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"entities": {
			"Q1": {"labels": {"en": {"value": "universe"}}},
			"Q2": {"labels": {"de": {"value": "Erde"}}},
			"Q3": {"labels": {}}
		}}`)
	}))
	defer ts.Close()

	c := NewClient(fastTestConfig(ts.URL), nil, nil)
	labels, err := c.Labels(context.Background(), []string{"Q1", "Q2", "Q3"}, "en")
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if len(labels) != 1 || labels["Q1"] != "universe" {
		t.Errorf("labels = %v, want only Q1", labels)
	}
}

func TestLabelsFailedChunkDegrades(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ids := strings.Split(r.URL.Query().Get("ids"), "|")
		entities := make(map[string]any, len(ids))
		for _, id := range ids {
			entities[id] = map[string]any{
				"labels": map[string]any{"en": map[string]any{"value": "Label for " + id}},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"entities": entities})
	}))
	defer ts.Close()

	ids := make([]string, 60)
	for i := range ids {
		ids[i] = fmt.Sprintf("Q%d", i+1)
	}

	c := NewClient(fastTestConfig(ts.URL), nil, nil)
	labels, err := c.Labels(context.Background(), ids, "en")
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	// First chunk of 50 failed and was skipped; the trailing 10 resolved.
	if len(labels) != 10 {
		t.Errorf("got %d labels, want 10", len(labels))
	}
	if labels["Q60"] != "Label for Q60" {
		t.Errorf("Q60 = %q", labels["Q60"])
	}
}
