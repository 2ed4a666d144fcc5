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
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/kgqa/services/resolve/candidates"
)

// fastTestConfig returns a Config with sub-millisecond policy values so retry
// and rate-gate behavior can be exercised without real-time waits.
func fastTestConfig(apiURL string) Config {
	return Config{
		APIURL:            apiURL,
		SPARQLURL:         apiURL,
		MinInterval:       time.Microsecond,
		MaxAttempts:       3,
		SearchBackoffBase: time.Millisecond,
		SPARQLBackoffBase: time.Millisecond,
		SearchTimeout:     2 * time.Second,
		SPARQLTimeout:     2 * time.Second,
		SearchLimit:       5,
	}
}

func TestSearchEntitiesNormalizesResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "wbsearchentities" {
			t.Errorf("action = %q", q.Get("action"))
		}
		if q.Get("type") != "item" || q.Get("language") != "en" || q.Get("limit") != "5" {
			t.Errorf("unexpected query params: %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"search": [
			{"id": "Q937", "label": "Albert Einstein", "description": "German-born theoretical physicist"},
			{"id": "Q1035409", "label": "Albert Einstein", "description": "grandson"},
			{"id": "", "label": "broken record"}
		]}`)
	}))
	defer ts.Close()

	c := NewClient(fastTestConfig(ts.URL), nil, nil)
	records, err := c.SearchEntities(context.Background(), "Einstein", candidates.TypeItem, "en")
	if err != nil {
		t.Fatalf("SearchEntities: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (record without id dropped): %+v", len(records), records)
	}
	if records[0].ID != "Q937" || records[0].Description == "" {
		t.Errorf("first record = %+v", records[0])
	}
}

func TestSearchEntitiesRetriesOn429(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"search": [{"id": "Q937", "label": "Albert Einstein"}]}`)
	}))
	defer ts.Close()

	c := NewClient(fastTestConfig(ts.URL), nil, nil)
	records, err := c.SearchEntities(context.Background(), "Einstein", candidates.TypeItem, "en")
	if err != nil {
		t.Fatalf("SearchEntities after 429: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestSearchEntitiesExhaustsRetries(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(fastTestConfig(ts.URL), nil, nil)
	_, err := c.SearchEntities(context.Background(), "Einstein", candidates.TypeItem, "en")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want MaxAttempts (3)", got)
	}
}

func TestSearchEntitiesMalformedResponseIsPermanent(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"search": not json`)
	}))
	defer ts.Close()

	c := NewClient(fastTestConfig(ts.URL), nil, nil)
	_, err := c.SearchEntities(context.Background(), "Einstein", candidates.TypeItem, "en")
	if err == nil {
		t.Fatal("expected decode error, got nil")
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("malformed responses must not be retried, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1 (no retry on permanent failure)", got)
	}
}

func TestSearchEntitiesInputValidation(t *testing.T) {
	c := NewClient(fastTestConfig("http://invalid.example"), nil, nil)

	if _, err := c.SearchEntities(context.Background(), "", candidates.TypeItem, "en"); err == nil {
		t.Error("empty keyword must be rejected")
	}
	if _, err := c.SearchEntities(context.Background(), "Einstein", "concept", "en"); err == nil {
		t.Error("unknown entity type must be rejected")
	}
}

func TestSearchRateGateEnforcesMinimumInterval(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"search": []}`)
	}))
	defer ts.Close()

	const (
		interval = 30 * time.Millisecond
		requests = 6
	)
	cfg := fastTestConfig(ts.URL)
	cfg.MinInterval = interval
	c := NewClient(cfg, nil, nil)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			keyword := fmt.Sprintf("keyword-%d", n)
			if _, err := c.SearchEntities(context.Background(), keyword, candidates.TypeItem, "en"); err != nil {
				t.Errorf("SearchEntities(%s): %v", keyword, err)
			}
		}(i)
	}
	wg.Wait()

	// N gated requests take at least (N-1) intervals regardless of concurrency.
	if elapsed, min := time.Since(start), (requests-1)*int(interval); elapsed < time.Duration(min) {
		t.Errorf("completed %d requests in %v, floor is %v", requests, elapsed, time.Duration(min))
	}
}

func TestSearchCancellationWhileQueued(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"search": []}`)
	}))
	defer ts.Close()

	cfg := fastTestConfig(ts.URL)
	cfg.MinInterval = time.Hour // park every caller at the gate
	c := NewClient(cfg, nil, nil)

	// Consume the gate's single burst token.
	if _, err := c.SearchEntities(context.Background(), "first", candidates.TypeItem, "en"); err != nil {
		t.Fatalf("first search: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.SearchEntities(ctx, "second", candidates.TypeItem, "en"); err == nil {
		t.Fatal("expected cancellation error while queued at the gate")
	}
}
