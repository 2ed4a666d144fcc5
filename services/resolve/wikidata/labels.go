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
	"strings"
	"time"
)

// labelChunkSize is the wbgetentities hard limit on IDs per request.
const labelChunkSize = 50

// getEntitiesResponse is the wbgetentities response envelope, trimmed to the
// label data the resolver consumes.
type getEntitiesResponse struct {
	Entities map[string]struct {
		Labels map[string]struct {
			Value string `json:"value"`
		} `json:"labels"`
	} `json:"entities"`
	Error *apiError `json:"error,omitempty"`
}

// Labels resolves human-readable labels for a set of entity IDs.
//
// Description:
//
//	Batches IDs into chunks of 50 (the API's limit) and issues one
//	rate-gated request per chunk. A failed chunk is logged and skipped;
//	the remaining chunks still resolve. IDs without a label in the
//	requested language are omitted from the result.
//
//	Used by the downstream answer-validation layer to turn raw Q/P
//	identifiers from query results back into text.
//
// Inputs:
//
//	ctx  - Context for cancellation.
//	ids  - Entity IDs ("Q42", "P31", …). Empty slice returns an empty map.
//	lang - Language code for the labels.
//
// Outputs:
//
//	map[string]string - ID → label for every ID that resolved.
//	error             - Only cancellation errors propagate; per-chunk
//	                    failures degrade to missing entries.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) Labels(ctx context.Context, ids []string, lang string) (map[string]string, error) {
	results := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	for start := 0; start < len(ids); start += labelChunkSize {
		end := start + labelChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		if err := c.labelChunk(ctx, chunk, lang, results); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("label lookup chunk failed",
				slog.Int("chunk_size", len(chunk)),
				slog.String("error", err.Error()),
			)
		}
	}
	return results, nil
}

func (c *Client) labelChunk(ctx context.Context, ids []string, lang string, out map[string]string) error {
	params := url.Values{
		"action":    {"wbgetentities"},
		"ids":       {strings.Join(ids, "|")},
		"props":     {"labels"},
		"languages": {lang},
		"format":    {"json"},
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.cfg.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build labels request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		wikidataRequestsTotal.WithLabelValues("labels", "error").Inc()
		return fmt.Errorf("labels HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	wikidataRequestDuration.WithLabelValues("labels").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		wikidataRequestsTotal.WithLabelValues("labels", "error").Inc()
		return fmt.Errorf("labels returned HTTP %d", resp.StatusCode)
	}

	var body getEntitiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		wikidataRequestsTotal.WithLabelValues("labels", "error").Inc()
		return fmt.Errorf("decode labels response: %w", err)
	}
	if body.Error != nil {
		wikidataRequestsTotal.WithLabelValues("labels", "error").Inc()
		return fmt.Errorf("labels API error %s: %s", body.Error.Code, body.Error.Info)
	}
	wikidataRequestsTotal.WithLabelValues("labels", "ok").Inc()

	for id, entity := range body.Entities {
		if label, ok := entity.Labels[lang]; ok && label.Value != "" {
			out[id] = label.Value
		}
	}
	return nil
}
