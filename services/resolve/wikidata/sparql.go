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
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// maxBindings caps how many result rows a query returns to callers. The
// resolver only ever needs a handful of rows per query; the cap protects
// against pathological queries flooding memory.
const maxBindings = 10

// BindingValue is one variable binding in a SPARQL result row.
type BindingValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Binding is one result row: variable name → bound value.
type Binding map[string]BindingValue

// QueryResult is the outcome of a SPARQL query: SELECT queries populate
// Bindings, ASK queries populate Boolean. Exactly one side is set.
type QueryResult struct {
	Bindings []Binding `json:"bindings,omitempty"`
	Boolean  *bool     `json:"boolean,omitempty"`
}

// sparqlResponse is the application/sparql-results+json envelope.
type sparqlResponse struct {
	Results *struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean"`
}

// QuerySPARQL executes a query against the Wikidata SPARQL endpoint.
//
// Description:
//
//	Rate-gated like every other call in this package. HTTP 429 and 504
//	both indicate query-engine pressure and are retried with exponential
//	backoff from SPARQLBackoffBase (429 additionally honors Retry-After).
//	Bindings are capped at maxBindings rows.
//
//	Exhausted retries return ErrRetriesExhausted; the enricher treats it
//	as "no neighbors" for the affected candidate.
//
// Inputs:
//
//	ctx   - Context for cancellation. A per-attempt timeout is applied.
//	query - The SPARQL query text. Must be non-empty.
//
// Outputs:
//
//	*QueryResult - Bindings (possibly empty) or a Boolean.
//	error        - ErrRetriesExhausted, a cancellation error, or a plain
//	               error for a malformed query/response.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) QuerySPARQL(ctx context.Context, query string) (*QueryResult, error) {
	if query == "" {
		return nil, fmt.Errorf("sparql: empty query")
	}

	params := url.Values{
		"query":  {query},
		"format": {"json"},
	}
	reqURL := c.cfg.SPARQLURL + "?" + params.Encode()

	delay := c.cfg.SPARQLBackoffBase
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			wikidataRetriesTotal.WithLabelValues("sparql").Inc()
		}
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		result, hint, err := c.queryOnce(ctx, reqURL)
		if err == nil {
			return result, nil
		}
		if hint < 0 {
			return nil, err
		}

		c.logger.Warn("sparql attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < c.cfg.MaxAttempts {
			wait := delay
			if hint > 0 {
				wait = hint
			}
			if serr := sleep(ctx, wait); serr != nil {
				return nil, serr
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("sparql query: %w", ErrRetriesExhausted)
}

func (c *Client) queryOnce(ctx context.Context, reqURL string) (*QueryResult, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.SPARQLTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("build sparql request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/sparql-results+json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		wikidataRequestsTotal.WithLabelValues("sparql", "error").Inc()
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		return nil, 0, fmt.Errorf("sparql HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	wikidataRequestDuration.WithLabelValues("sparql").Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wikidataRequestsTotal.WithLabelValues("sparql", "http_429").Inc()
		hint := retryAfter(resp, c.cfg.SPARQLBackoffBase)
		return nil, hint, fmt.Errorf("sparql rate limited (HTTP 429, retry after %s)", hint)
	case resp.StatusCode == http.StatusGatewayTimeout:
		// The query engine timed out under load; worth another try.
		wikidataRequestsTotal.WithLabelValues("sparql", "http_5xx").Inc()
		return nil, 0, fmt.Errorf("sparql timed out upstream (HTTP 504)")
	case transientStatus(resp.StatusCode):
		wikidataRequestsTotal.WithLabelValues("sparql", "http_5xx").Inc()
		return nil, 0, fmt.Errorf("sparql returned HTTP %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		wikidataRequestsTotal.WithLabelValues("sparql", "error").Inc()
		return nil, -1, fmt.Errorf("sparql returned HTTP %d", resp.StatusCode)
	}

	var body sparqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		wikidataRequestsTotal.WithLabelValues("sparql", "error").Inc()
		return nil, -1, fmt.Errorf("decode sparql response: %w", err)
	}
	wikidataRequestsTotal.WithLabelValues("sparql", "ok").Inc()

	if body.Boolean != nil {
		return &QueryResult{Boolean: body.Boolean}, 0, nil
	}
	if body.Results == nil {
		return &QueryResult{}, 0, nil
	}
	bindings := body.Results.Bindings
	if len(bindings) > maxBindings {
		bindings = bindings[:maxBindings]
	}
	return &QueryResult{Bindings: bindings}, 0, nil
}
