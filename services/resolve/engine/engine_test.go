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
	"sync"
	"sync/atomic"
	"testing"

	"github.com/AleutianAI/kgqa/services/resolve/candidates"
)

type fakeLexical struct {
	mu      sync.Mutex
	calls   atomic.Int64
	results map[string][]candidates.Record
	fail    map[string]error
}

func (f *fakeLexical) SearchEntities(_ context.Context, keyword string, _ candidates.EntityType, _ string) ([]candidates.Record, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[keyword]; ok {
		return nil, err
	}
	return f.results[keyword], nil
}

type fakeSemantic struct {
	calls   atomic.Int64
	results map[string][]candidates.Record
	err     error
}

func (f *fakeSemantic) Search(_ context.Context, text string, _ candidates.EntityType, _ string) ([]candidates.Record, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[text], nil
}

type fakeEnricher struct {
	mu       sync.Mutex
	enriched candidates.Map
	err      error
}

func (f *fakeEnricher) Enrich(_ context.Context, resolved candidates.Map, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enriched = resolved
	if f.err != nil {
		return f.err
	}
	for _, records := range resolved {
		for i := range records {
			if records[i].IsItem() {
				records[i].Neighbors = []string{"  - (This) -> [instance of] -> human"}
			}
		}
	}
	return nil
}

// passEmbedder embeds everything to the same unit vector, so every candidate
// clears any sane threshold and rerank preserves input order.
type passEmbedder struct{}

func (passEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (passEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestEngine(t *testing.T, lexical LexicalSearcher, semantic SemanticSearcher, enricher Enricher, cfg Config) *Engine {
	t.Helper()
	e, err := New(lexical, semantic, NewReranker(passEmbedder{}, nil), enricher, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(nil, nil, NewReranker(passEmbedder{}, nil), nil, Config{}, nil); err == nil {
		t.Error("nil lexical searcher must be rejected")
	}
	if _, err := New(&fakeLexical{}, nil, nil, nil, Config{}, nil); err == nil {
		t.Error("nil reranker must be rejected")
	}
	// Semantic searcher and enricher are optional.
	if _, err := New(&fakeLexical{}, nil, NewReranker(passEmbedder{}, nil), nil, Config{}, nil); err != nil {
		t.Errorf("optional collaborators: %v", err)
	}
}

func TestResolveEmptyKeywordsMakesNoCalls(t *testing.T) {
	lexical := &fakeLexical{}
	semantic := &fakeSemantic{}
	e := newTestEngine(t, lexical, semantic, nil, Config{})

	resolved, err := e.Resolve(context.Background(), nil, "en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved) != 0 {
		t.Errorf("got %d entries, want 0", len(resolved))
	}
	if lexical.calls.Load() != 0 || semantic.calls.Load() != 0 {
		t.Errorf("adapters called (%d lexical, %d semantic), want none",
			lexical.calls.Load(), semantic.calls.Load())
	}
}

func TestResolveMergesLexicalAndSemantic(t *testing.T) {
	lexical := &fakeLexical{results: map[string][]candidates.Record{
		"Einstein": {
			{ID: "Q937", Label: "Albert Einstein", Description: "physicist"},
			{ID: "Q1035409", Label: "Albert Einstein", Description: "grandson"},
		},
	}}
	semantic := &fakeSemantic{results: map[string][]candidates.Record{
		"Einstein": {
			{ID: "Q937", Label: "Albert Einstein", Score: 0.93},
			{ID: "Q88665", Label: "Eduard Einstein", Score: 0.81},
		},
	}}
	e := newTestEngine(t, lexical, semantic, nil, Config{})

	resolved, err := e.Resolve(context.Background(), []candidates.Keyword{
		{Value: "Einstein", Type: candidates.TypeItem},
	}, "en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	records := resolved["Einstein"]
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3 (Q937 deduplicated): %+v", len(records), records)
	}
	ids := map[string]int{}
	for _, r := range records {
		ids[r.ID]++
	}
	if ids["Q937"] != 1 || ids["Q1035409"] != 1 || ids["Q88665"] != 1 {
		t.Errorf("id multiset = %v", ids)
	}
	// Last-seen wins: the semantic record's score replaces the lexical one.
	if records[0].ID != "Q937" || records[0].Score != 0.93 {
		t.Errorf("merged Q937 = %+v, want semantic score 0.93", records[0])
	}
	// Field preservation: the lexical description survives the overwrite.
	if records[0].Description != "physicist" {
		t.Errorf("merged Q937 description = %q, want lexical description kept", records[0].Description)
	}
}

func TestResolveTruncatesToMaxCandidates(t *testing.T) {
	many := make([]candidates.Record, 9)
	for i := range many {
		many[i] = candidates.Record{ID: string(rune('A' + i))}
	}
	lexical := &fakeLexical{results: map[string][]candidates.Record{"x": many}}
	e := newTestEngine(t, lexical, nil, nil, Config{MaxCandidates: 3})

	resolved, err := e.Resolve(context.Background(), []candidates.Keyword{{Value: "x", Type: candidates.TypeItem}}, "en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := len(resolved["x"]); got != 3 {
		t.Errorf("got %d records, want 3", got)
	}
}

func TestResolveIsolatesKeywordFailures(t *testing.T) {
	lexical := &fakeLexical{
		results: map[string][]candidates.Record{
			"Paris": {{ID: "Q90", Label: "Paris"}},
		},
		fail: map[string]error{"Atlantis": errors.New("retries exhausted")},
	}
	semantic := &fakeSemantic{err: errors.New("weaviate unreachable")}
	e := newTestEngine(t, lexical, semantic, nil, Config{})

	resolved, err := e.Resolve(context.Background(), []candidates.Keyword{
		{Value: "Paris", Type: candidates.TypeItem},
		{Value: "Atlantis", Type: candidates.TypeItem},
	}, "en")
	if err != nil {
		t.Fatalf("Resolve must not fail on remote errors: %v", err)
	}

	if got := resolved["Paris"]; len(got) != 1 || got[0].ID != "Q90" {
		t.Errorf("Paris = %+v, want Q90 despite the other keyword failing", got)
	}
	if got, ok := resolved["Atlantis"]; !ok || len(got) != 0 {
		t.Errorf("Atlantis = %+v (present=%v), want present with empty list", got, ok)
	}
}

func TestResolveSkipsEmptyAndDuplicateKeywords(t *testing.T) {
	lexical := &fakeLexical{results: map[string][]candidates.Record{
		"Paris": {{ID: "Q90", Label: "Paris"}},
	}}
	e := newTestEngine(t, lexical, nil, nil, Config{})

	resolved, err := e.Resolve(context.Background(), []candidates.Keyword{
		{Value: "", Type: candidates.TypeItem},
		{Value: "Paris", Type: candidates.TypeItem},
		{Value: "Paris", Type: candidates.TypeItem},
	}, "en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved) != 1 {
		t.Errorf("got %d entries, want 1", len(resolved))
	}
	if got := lexical.calls.Load(); got != 1 {
		t.Errorf("lexical searched %d times, want 1 (duplicate collapsed)", got)
	}
}

func TestResolveRunsEnrichmentPass(t *testing.T) {
	lexical := &fakeLexical{results: map[string][]candidates.Record{
		"Einstein": {
			{ID: "Q937", Label: "Albert Einstein"},
			{ID: "P61", Label: "discoverer or inventor"},
		},
	}}
	enricher := &fakeEnricher{}
	e := newTestEngine(t, lexical, nil, enricher, Config{})

	resolved, err := e.Resolve(context.Background(), []candidates.Keyword{
		{Value: "Einstein", Type: candidates.TypeItem},
	}, "en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	records := resolved["Einstein"]
	if len(records[0].Neighbors) == 0 {
		t.Error("item candidate Q937 not enriched")
	}
	if len(records[1].Neighbors) != 0 {
		t.Error("property candidate P61 must not be enriched")
	}
}

func TestResolveSurvivesEnricherFailure(t *testing.T) {
	lexical := &fakeLexical{results: map[string][]candidates.Record{
		"Paris": {{ID: "Q90", Label: "Paris"}},
	}}
	enricher := &fakeEnricher{err: errors.New("sparql endpoint down")}
	e := newTestEngine(t, lexical, nil, enricher, Config{})

	resolved, err := e.Resolve(context.Background(), []candidates.Keyword{
		{Value: "Paris", Type: candidates.TypeItem},
	}, "en")
	if err != nil {
		t.Fatalf("Resolve must not fail when enrichment fails: %v", err)
	}
	if len(resolved["Paris"]) != 1 {
		t.Errorf("Paris = %+v, want candidates kept without enrichment", resolved["Paris"])
	}
}

func TestResolveHonorsCancellation(t *testing.T) {
	lexical := &fakeLexical{results: map[string][]candidates.Record{}}
	e := newTestEngine(t, lexical, nil, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Resolve(ctx, []candidates.Keyword{{Value: "x", Type: candidates.TypeItem}}, "en"); err == nil {
		t.Fatal("expected cancellation error")
	}
}
