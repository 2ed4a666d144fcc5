// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates candidate resolution: it fans keyword lookups
// out across the lexical and semantic search adapters, re-ranks and merges
// their results, and enriches the surviving candidates with graph context.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/kgqa/services/resolve/candidates"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// LexicalSearcher finds candidates by keyword text. Implemented by
// wikidata.Client.
type LexicalSearcher interface {
	SearchEntities(ctx context.Context, keyword string, entityType candidates.EntityType, lang string) ([]candidates.Record, error)
}

// SemanticSearcher finds candidates by vector similarity. Implemented by
// semantic.Store.
type SemanticSearcher interface {
	Search(ctx context.Context, text string, entityType candidates.EntityType, lang string) ([]candidates.Record, error)
}

// Enricher attaches one-hop graph context to resolved candidates. Implemented
// by enrich.Enricher.
type Enricher interface {
	Enrich(ctx context.Context, resolved candidates.Map, lang string) error
}

// =============================================================================
// Engine
// =============================================================================

// Config tunes the resolution pipeline. Zero values take defaults.
type Config struct {
	// RerankThreshold is the minimum cosine similarity a lexical candidate
	// needs to survive re-ranking. Default 0.70.
	RerankThreshold float64

	// MaxCandidates caps the merged candidate list per keyword. Default 5.
	MaxCandidates int

	// KeywordConcurrency bounds how many keywords resolve in parallel.
	// Default 4.
	KeywordConcurrency int
}

// Engine resolves extracted keywords to knowledge-graph candidates.
//
// Description:
//
//	Each keyword is resolved independently: the lexical and semantic
//	searches run concurrently, the lexical results are re-ranked against
//	the keyword's surface text, and the two lists are merged and truncated.
//	Remote failures degrade the affected keyword to whatever the other
//	adapter returned; they never fail the request.
//
//	The semantic searcher and the enricher are optional collaborators. A
//	nil semantic searcher skips vector search; a nil enricher skips graph
//	context. The engine still resolves on lexical search alone.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	lexical  LexicalSearcher
	semantic SemanticSearcher
	reranker *Reranker
	enricher Enricher
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates an Engine.
//
// Inputs:
//
//	lexical  - Required keyword search adapter.
//	semantic - Optional vector search adapter. Nil disables semantic search.
//	reranker - Required re-ranker.
//	enricher - Optional graph context enricher. Nil disables enrichment.
//	cfg      - Pipeline tuning. Zero values take defaults.
//	logger   - Logger instance. Nil uses slog.Default().
//
// Outputs:
//
//	*Engine - Ready to serve.
//	error   - Non-nil when a required collaborator is missing.
func New(lexical LexicalSearcher, semantic SemanticSearcher, reranker *Reranker, enricher Enricher, cfg Config, logger *slog.Logger) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("engine: lexical searcher is required")
	}
	if reranker == nil {
		return nil, fmt.Errorf("engine: reranker is required")
	}
	if cfg.RerankThreshold <= 0 {
		cfg.RerankThreshold = 0.70
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 5
	}
	if cfg.KeywordConcurrency <= 0 {
		cfg.KeywordConcurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		lexical:  lexical,
		semantic: semantic,
		reranker: reranker,
		enricher: enricher,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("aleutian.resolve.engine"),
	}, nil
}

// Resolve maps every keyword to its ranked candidate list.
//
// Description:
//
//	Keywords resolve concurrently under a bounded semaphore; the shared
//	Wikidata rate gate serializes the actual remote calls, so the bound
//	mostly controls memory and embedding pressure. Duplicate keyword
//	values are resolved once. After every keyword settles, a single
//	enrichment pass attaches graph context to item candidates.
//
// Inputs:
//
//	ctx      - Context for cancellation. Cancellation aborts resolution.
//	keywords - Extracted keywords. Empty slice returns an empty map with no
//	           remote calls. Entries with an empty Value are skipped.
//	lang     - Language code for search and labels.
//
// Outputs:
//
//	candidates.Map - Keyword value → ranked candidates. Keywords whose
//	                 searches all failed map to an empty list.
//	error          - Only context cancellation.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Resolve(ctx context.Context, keywords []candidates.Keyword, lang string) (candidates.Map, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Resolve",
		trace.WithAttributes(
			attribute.Int("keywords", len(keywords)),
			attribute.String("lang", lang),
		))
	defer span.End()
	resolveRequestsTotal.Inc()

	resolved := make(candidates.Map, len(keywords))
	if len(keywords) == 0 {
		return resolved, nil
	}

	var mu sync.Mutex
	seen := make(map[string]bool, len(keywords))
	sem := make(chan struct{}, e.cfg.KeywordConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for _, kw := range keywords {
		if kw.Value == "" || seen[kw.Value] {
			continue
		}
		seen[kw.Value] = true

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			records := e.resolveKeyword(gctx, kw, lang)
			mu.Lock()
			resolved[kw.Value] = records
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if e.enricher != nil {
		if err := e.enricher.Enrich(ctx, resolved, lang); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("graph context enrichment failed",
				slog.String("error", err.Error()),
			)
		}
	}

	span.SetAttributes(attribute.Int("resolved", len(resolved)))
	return resolved, nil
}

// resolveKeyword runs both searches for one keyword and reconciles the
// results. Remote failures degrade to an empty list from that adapter.
func (e *Engine) resolveKeyword(ctx context.Context, kw candidates.Keyword, lang string) []candidates.Record {
	ctx, span := e.tracer.Start(ctx, "engine.resolveKeyword",
		trace.WithAttributes(
			attribute.String("keyword", kw.Value),
			attribute.String("type", string(kw.Type)),
		))
	defer span.End()
	start := time.Now()

	var lexical, semantic []candidates.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := e.lexical.SearchEntities(gctx, kw.Value, kw.Type, lang)
		if err != nil {
			e.logger.Warn("lexical search failed",
				slog.String("keyword", kw.Value),
				slog.String("error", err.Error()),
			)
			return nil
		}
		lexical = records
		return nil
	})
	if e.semantic != nil {
		g.Go(func() error {
			records, err := e.semantic.Search(gctx, kw.SearchText(), kw.Type, lang)
			if err != nil {
				e.logger.Warn("semantic search failed",
					slog.String("keyword", kw.Value),
					slog.String("error", err.Error()),
				)
				return nil
			}
			semantic = records
			return nil
		})
	}
	// Tasks swallow their own failures; Wait can only surface a bug.
	_ = g.Wait()

	reranked := e.reranker.Rerank(ctx, kw.SearchText(), lexical, e.cfg.RerankThreshold)
	merged := candidates.Merge(reranked, semantic)
	final := candidates.Truncate(merged, e.cfg.MaxCandidates)

	resolveKeywordDuration.Observe(time.Since(start).Seconds())
	resolveCandidatesPerKeyword.Observe(float64(len(final)))
	if len(final) == 0 {
		resolveKeywordsTotal.WithLabelValues("empty").Inc()
	} else {
		resolveKeywordsTotal.WithLabelValues("ok").Inc()
	}
	e.logger.Debug("keyword resolved",
		slog.String("keyword", kw.Value),
		slog.Int("lexical", len(lexical)),
		slog.Int("semantic", len(semantic)),
		slog.Int("final", len(final)),
	)
	return final
}
