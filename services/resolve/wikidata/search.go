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

	"github.com/AleutianAI/kgqa/services/resolve/candidates"
)

// searchResponse is the wbsearchentities response envelope. Only the fields
// the resolver consumes are decoded.
type searchResponse struct {
	Search []searchEntity `json:"search"`
	Error  *apiError      `json:"error,omitempty"`
}

type searchEntity struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

// SearchEntities looks up candidate entities for a keyword via the
// wbsearchentities action.
//
// Description:
//
//	Issues one rate-gated HTTP request per attempt, with the configured
//	result cap. HTTP 429 honors the Retry-After hint (falling back to
//	exponential backoff from SearchBackoffBase); other transient failures
//	back off exponentially. When all attempts fail the call returns
//	ErrRetriesExhausted; the engine logs it and degrades that keyword to
//	an empty candidate list rather than failing the request.
//
//	Results are normalized into canonical candidate records at this
//	boundary. No ordering beyond the remote service's own is promised.
//
// Inputs:
//
//	ctx        - Context for cancellation. A per-attempt timeout is applied.
//	keyword    - The surface form to search. Must be non-empty.
//	entityType - candidates.TypeItem or candidates.TypeProperty.
//	lang       - Language code for labels and matching ("en", "de", …).
//
// Outputs:
//
//	[]candidates.Record - Normalized candidates, possibly empty.
//	error               - ErrRetriesExhausted after exhausted transient
//	                      failures; a plain error for contract violations
//	                      (empty keyword, bad entity type) or a malformed
//	                      response body.
//
// Thread Safety: Safe for concurrent use; concurrent callers queue at the
// shared rate gate.
func (c *Client) SearchEntities(ctx context.Context, keyword string, entityType candidates.EntityType, lang string) ([]candidates.Record, error) {
	if keyword == "" {
		return nil, fmt.Errorf("search entities: empty keyword")
	}
	if !entityType.Valid() {
		return nil, fmt.Errorf("search entities: unknown entity type %q", entityType)
	}

	if cached, ok := c.cache.Get(ctx, keyword, entityType, lang); ok {
		wikidataCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	wikidataCacheTotal.WithLabelValues("miss").Inc()

	params := url.Values{
		"action":   {"wbsearchentities"},
		"search":   {keyword},
		"type":     {string(entityType)},
		"language": {lang},
		"uselang":  {lang},
		"format":   {"json"},
		"limit":    {itoa(c.cfg.SearchLimit)},
	}
	reqURL := c.cfg.APIURL + "?" + params.Encode()

	delay := c.cfg.SearchBackoffBase
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			wikidataRetriesTotal.WithLabelValues("search").Inc()
		}
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		records, hint, err := c.searchOnce(ctx, reqURL)
		if err == nil {
			c.cache.Put(ctx, keyword, entityType, lang, records)
			return records, nil
		}
		if hint < 0 {
			return nil, err
		}

		c.logger.Warn("wikidata search attempt failed",
			slog.String("keyword", keyword),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < c.cfg.MaxAttempts {
			wait := delay
			if hint > 0 {
				// Remote's Retry-After hint overrides our own backoff.
				wait = hint
			}
			if serr := sleep(ctx, wait); serr != nil {
				return nil, serr
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("search %q: %w", keyword, ErrRetriesExhausted)
}

// searchOnce performs a single attempt. The duration result encodes the retry
// decision: negative means the failure is permanent, zero means retry after
// the caller's own backoff, positive is a server-provided Retry-After hint.
func (c *Client) searchOnce(ctx context.Context, reqURL string) ([]candidates.Record, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		wikidataRequestsTotal.WithLabelValues("search", "error").Inc()
		// Network errors and attempt timeouts are transient; the caller's
		// own cancellation is not.
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		return nil, 0, fmt.Errorf("search HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	wikidataRequestDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())

	if resp.StatusCode == http.StatusTooManyRequests {
		wikidataRequestsTotal.WithLabelValues("search", "http_429").Inc()
		hint := retryAfter(resp, c.cfg.SearchBackoffBase)
		return nil, hint, fmt.Errorf("search rate limited (HTTP 429, retry after %s)", hint)
	}
	if transientStatus(resp.StatusCode) {
		wikidataRequestsTotal.WithLabelValues("search", "http_5xx").Inc()
		return nil, 0, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		wikidataRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, -1, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		wikidataRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, -1, fmt.Errorf("decode search response: %w", err)
	}
	if body.Error != nil {
		wikidataRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, -1, fmt.Errorf("search API error %s: %s", body.Error.Code, body.Error.Info)
	}
	wikidataRequestsTotal.WithLabelValues("search", "ok").Inc()

	records := make([]candidates.Record, 0, len(body.Search))
	for _, e := range body.Search {
		if r, ok := candidates.FromSearchEntity(e.ID, e.Label, e.Description); ok {
			records = append(records, r)
		}
	}
	return records, 0, nil
}
