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
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/AleutianAI/kgqa/services/resolve/candidates"
)

// cosineEpsilon guards the denominator against zero-magnitude vectors.
const cosineEpsilon = 1e-10

// Embedder produces dense vectors for text. Implemented by embedding.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker orders candidate records by semantic similarity to a target query.
//
// Description:
//
//	Lexical search returns candidates in the remote service's own relevance
//	order, which knows nothing about the question being asked: searching
//	"Einstein" for "Who discovered general relativity?" ranks the physicist
//	and his grandson identically. The re-ranker embeds the target query and
//	each candidate's label+description and re-orders by cosine similarity.
//
//	Re-ranking is an improvement, not a gate: any embedding failure returns
//	the input unchanged so resolution still completes on the lexical order.
//
// Thread Safety: Safe for concurrent use.
type Reranker struct {
	embedder Embedder
	logger   *slog.Logger
}

// NewReranker creates a Reranker. A nil logger uses slog.Default().
func NewReranker(embedder Embedder, logger *slog.Logger) *Reranker {
	if embedder == nil {
		panic("NewReranker: embedder must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{embedder: embedder, logger: logger}
}

// Rerank scores records against targetQuery and returns those clearing the
// similarity threshold, best first.
//
// Description:
//
//	Embeds targetQuery once and the candidates' comparison texts in one
//	batch call. Candidates scoring at or above threshold are returned in
//	descending score order. When the input is non-empty but nothing clears
//	the threshold, the single best-scoring candidate is returned instead of
//	an empty list: downstream query generation can recover from a weak
//	candidate but not from a missing one.
//
// Inputs:
//
//	ctx         - Context for cancellation.
//	targetQuery - Text to score candidates against. Empty returns records
//	              unchanged.
//	records     - Candidates to re-rank. Empty returns records unchanged.
//	threshold   - Minimum cosine similarity, typically 0.70.
//
// Outputs:
//
//	[]candidates.Record - Surviving candidates with Score set, best first.
//	                      Never empty when records was non-empty.
func (r *Reranker) Rerank(ctx context.Context, targetQuery string, records []candidates.Record, threshold float64) []candidates.Record {
	if targetQuery == "" || len(records) == 0 {
		return records
	}

	queryVec, err := r.embedder.Embed(ctx, targetQuery)
	if err != nil {
		r.logger.Warn("rerank skipped: query embedding failed",
			slog.String("error", err.Error()),
		)
		rerankDegradedTotal.WithLabelValues("embed_query").Inc()
		return records
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.CompareText()
	}
	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vecs) != len(records) {
		err = fmt.Errorf("got %d vectors for %d candidates", len(vecs), len(records))
	}
	if err != nil {
		r.logger.Warn("rerank skipped: candidate embedding failed",
			slog.Int("candidates", len(records)),
			slog.String("error", err.Error()),
		)
		rerankDegradedTotal.WithLabelValues("embed_candidates").Inc()
		return records
	}

	scored := make([]candidates.Record, len(records))
	for i, rec := range records {
		rec.Score = cosineSimilarity(queryVec, vecs[i])
		scored[i] = rec
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	kept := scored[:0:0]
	for _, rec := range scored {
		if rec.Score >= threshold {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		rerankFallbackTotal.Inc()
		r.logger.Debug("no candidate cleared rerank threshold, keeping best",
			slog.String("best_id", scored[0].ID),
			slog.Float64("best_score", scored[0].Score),
			slog.Float64("threshold", threshold),
		)
		return scored[:1]
	}
	return kept
}

// cosineSimilarity returns the cosine of the angle between a and b. Mismatched
// lengths and zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + cosineEpsilon)
}
