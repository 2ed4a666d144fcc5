// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package wikidata is the client for the two remote Wikidata surfaces the
// resolver depends on: the MediaWiki action API (entity search, label lookup)
// and the SPARQL query endpoint. Both are shared public infrastructure with
// strict request-rate expectations, so every call in this package flows
// through one process-wide minimum-interval gate.
package wikidata

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default endpoints and policy values. All overridable via Config.
const (
	defaultAPIURL    = "https://www.wikidata.org/w/api.php"
	defaultSPARQLURL = "https://query.wikidata.org/sparql"

	// defaultUserAgent identifies this service per the Wikimedia User-Agent
	// policy. Anonymous clients get throttled aggressively.
	defaultUserAgent = "AleutianKGQA/1.0 (https://github.com/AleutianAI/kgqa)"

	// defaultMinInterval is the floor between any two requests from this
	// process. One request per second keeps us well inside the public
	// endpoint's tolerance even with many concurrent keywords in flight.
	defaultMinInterval = time.Second

	defaultMaxAttempts       = 3
	defaultSearchBackoffBase = 2 * time.Second
	defaultSPARQLBackoffBase = 5 * time.Second
	defaultSearchTimeout     = 15 * time.Second
	defaultSPARQLTimeout     = 30 * time.Second
	defaultSearchLimit       = 5
)

// ErrRetriesExhausted is returned when every attempt against a Wikidata
// endpoint failed with a transient error. Callers treat it as "no results"
// for the affected keyword; it never aborts a whole resolution request.
var ErrRetriesExhausted = errors.New("wikidata: retries exhausted")

// Config holds endpoint addresses and retry policy for the client.
type Config struct {
	APIURL    string
	SPARQLURL string
	UserAgent string

	// MinInterval is the process-wide floor between requests.
	MinInterval time.Duration

	// MaxAttempts caps tries per call (first attempt included).
	MaxAttempts int

	// SearchBackoffBase and SPARQLBackoffBase seed the exponential backoff
	// for the action API and the query endpoint respectively. The SPARQL
	// endpoint gets a longer base because its 429s come from query-engine
	// load, which takes longer to drain.
	SearchBackoffBase time.Duration
	SPARQLBackoffBase time.Duration

	SearchTimeout time.Duration
	SPARQLTimeout time.Duration

	// SearchLimit is the per-keyword result cap for entity search.
	SearchLimit int
}

// Client talks to the Wikidata action API and SPARQL endpoint.
//
// Description:
//
//	One Client is constructed at process start and shared by reference:
//	the rate gate inside it is the process-wide request-interval state,
//	and splitting it across instances would defeat the limit.
//
//	An optional SearchCache makes entity search read-through cached;
//	nil disables caching.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	gate   *rate.Limiter
	cache  *SearchCache
	logger *slog.Logger
}

// NewClient creates a Wikidata client with the given configuration.
//
// Inputs:
//
//	cfg    - Endpoint and policy configuration. Zero fields use defaults.
//	cache  - Optional read-through cache for entity search. Nil disables.
//	logger - Logger instance. Nil uses slog.Default().
//
// Outputs:
//
//	*Client - The shared client. Never nil.
func NewClient(cfg Config, cache *SearchCache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.SPARQLURL == "" {
		cfg.SPARQLURL = defaultSPARQLURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.SearchBackoffBase <= 0 {
		cfg.SearchBackoffBase = defaultSearchBackoffBase
	}
	if cfg.SPARQLBackoffBase <= 0 {
		cfg.SPARQLBackoffBase = defaultSPARQLBackoffBase
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = defaultSearchTimeout
	}
	if cfg.SPARQLTimeout <= 0 {
		cfg.SPARQLTimeout = defaultSPARQLTimeout
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}

	return &Client{
		cfg: cfg,
		// Timeouts are applied per attempt via context, not here: the
		// transport-level timeout would include rate-gate wait time.
		http:   &http.Client{},
		gate:   rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		cache:  cache,
		logger: logger,
	}
}

// wait blocks until the shared gate permits the next request. Returns the
// context error when the caller is cancelled while queued.
func (c *Client) wait(ctx context.Context) error {
	return c.gate.Wait(ctx)
}

// retryAfter extracts the Retry-After hint from a 429 response, falling back
// to the provided backoff delay when the header is absent or unparseable.
func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusGatewayTimeout ||
		(code >= 500 && code <= 599)
}

func itoa(code int) string { return strconv.Itoa(code) }
