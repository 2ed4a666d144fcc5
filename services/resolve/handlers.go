// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve exposes the candidate resolution pipeline over HTTP.
package resolve

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/kgqa/services/resolve/candidates"
	"github.com/AleutianAI/kgqa/services/resolve/wikidata"
)

// Resolver is the resolution pipeline. Implemented by engine.Engine.
type Resolver interface {
	Resolve(ctx context.Context, keywords []candidates.Keyword, lang string) (candidates.Map, error)
}

// GraphClient covers the direct knowledge-graph operations the API exposes
// alongside resolution. Implemented by wikidata.Client.
type GraphClient interface {
	Labels(ctx context.Context, ids []string, lang string) (map[string]string, error)
	QuerySPARQL(ctx context.Context, query string) (*wikidata.QueryResult, error)
}

// =============================================================================
// Request / Response Types
// =============================================================================

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ResolveCandidatesRequest is the body for POST /v1/resolve/candidates.
type ResolveCandidatesRequest struct {
	// Keywords are the extracted mentions to resolve. May be empty.
	Keywords []candidates.Keyword `json:"keywords"`

	// Lang is the language code for search and labels. Defaults to "en".
	Lang string `json:"lang"`
}

// ResolveCandidatesResponse maps each keyword value to its ranked candidates.
type ResolveCandidatesResponse struct {
	Lang       string         `json:"lang"`
	Candidates candidates.Map `json:"candidates"`
	RequestID  string         `json:"request_id"`
}

// LabelsResponse is the body for GET /v1/resolve/labels.
type LabelsResponse struct {
	Labels map[string]string `json:"labels"`
}

// SPARQLRequest is the body for POST /v1/resolve/sparql.
type SPARQLRequest struct {
	Query string `json:"query"`
}

// =============================================================================
// Handlers
// =============================================================================

// Handlers serves the resolution API.
//
// Thread Safety: Safe for concurrent use; all state is read-only after
// construction.
type Handlers struct {
	resolver Resolver
	graph    GraphClient
	logger   *slog.Logger
}

// NewHandlers creates the handler set. A nil logger uses slog.Default().
func NewHandlers(resolver Resolver, graph GraphClient, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{resolver: resolver, graph: graph, logger: logger}
}

// HandleResolveCandidates handles POST /v1/resolve/candidates.
//
// Description:
//
//	Resolves every keyword in the request to ranked knowledge-graph
//	candidates. Remote failures degrade individual keywords to empty
//	lists; the endpoint fails only on malformed input or cancellation.
//
// Request Body:
//
//	ResolveCandidatesRequest
//
// Response:
//
//	200 OK: ResolveCandidatesResponse
//	400 Bad Request: Malformed body or unknown keyword type
//	500 Internal Server Error: Resolution aborted
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleResolveCandidates(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID))

	var req ResolveCandidatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_BODY",
		})
		return
	}
	for _, kw := range req.Keywords {
		if kw.Value != "" && !kw.Type.Valid() {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "unknown keyword type " + string(kw.Type) + " for " + kw.Value,
				Code:  "INVALID_KEYWORD_TYPE",
			})
			return
		}
	}
	if req.Lang == "" {
		req.Lang = "en"
	}

	resolved, err := h.resolver.Resolve(c.Request.Context(), req.Keywords, req.Lang)
	if err != nil {
		logger.Error("resolution aborted", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "resolution failed: " + err.Error(),
			Code:  "RESOLVE_FAILED",
		})
		return
	}

	logger.Info("candidates resolved",
		slog.Int("keywords", len(req.Keywords)),
		slog.Int("resolved", len(resolved)),
		slog.String("lang", req.Lang),
	)
	c.JSON(http.StatusOK, ResolveCandidatesResponse{
		Lang:       req.Lang,
		Candidates: resolved,
		RequestID:  requestID,
	})
}

// HandleLabels handles GET /v1/resolve/labels.
//
// Description:
//
//	Resolves entity identifiers back to human-readable labels. Used by
//	the answer formatting stage after query execution.
//
// Query Parameters:
//
//	ids: Pipe- or comma-separated entity IDs (required)
//	lang: Language code, default "en"
//
// Response:
//
//	200 OK: LabelsResponse (IDs without a label are omitted)
//	400 Bad Request: Missing ids parameter
//	502 Bad Gateway: Lookup aborted
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleLabels(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID))

	ids := splitIDs(c.Query("ids"))
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "ids parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	lang := c.Query("lang")
	if lang == "" {
		lang = "en"
	}

	labels, err := h.graph.Labels(c.Request.Context(), ids, lang)
	if err != nil {
		logger.Error("label lookup aborted", slog.Any("error", err))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "label lookup failed: " + err.Error(),
			Code:  "LABELS_FAILED",
		})
		return
	}

	logger.Info("labels resolved",
		slog.Int("requested", len(ids)),
		slog.Int("found", len(labels)),
	)
	c.JSON(http.StatusOK, LabelsResponse{Labels: labels})
}

// HandleSPARQL handles POST /v1/resolve/sparql.
//
// Description:
//
//	Executes a read query against the knowledge graph through the shared
//	rate-gated client, so ad-hoc queries compete fairly with resolution
//	traffic. SELECT results are capped server-side.
//
// Request Body:
//
//	SPARQLRequest
//
// Response:
//
//	200 OK: wikidata.QueryResult
//	400 Bad Request: Missing query
//	502 Bad Gateway: Query failed upstream
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleSPARQL(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID))

	var req SPARQLRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "query is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	result, err := h.graph.QuerySPARQL(c.Request.Context(), req.Query)
	if err != nil {
		logger.Warn("sparql query failed", slog.Any("error", err))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "query failed: " + err.Error(),
			Code:  "SPARQL_FAILED",
		})
		return
	}

	logger.Info("sparql query served", slog.Int("bindings", len(result.Bindings)))
	c.JSON(http.StatusOK, result)
}

// HandleHealth handles GET /v1/resolve/health.
//
// Response:
//
//	200 OK: {"status": "ok"}
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getOrCreateRequestID returns the client's X-Request-ID or mints one, and
// echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// splitIDs parses the ids query parameter, accepting pipe or comma
// separators and dropping empty fragments.
func splitIDs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '|' || r == ','
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
