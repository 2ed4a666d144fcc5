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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolveRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kgqa_resolve_requests_total",
		Help: "Resolution requests processed by the engine.",
	})

	resolveKeywordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgqa_resolve_keywords_total",
		Help: "Keywords resolved, by outcome.",
	}, []string{"outcome"})

	resolveKeywordDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kgqa_resolve_keyword_duration_seconds",
		Help:    "Wall time to resolve one keyword (search + rerank + merge).",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	resolveCandidatesPerKeyword = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kgqa_resolve_candidates_per_keyword",
		Help:    "Final candidate count per keyword after merge and truncation.",
		Buckets: prometheus.LinearBuckets(0, 1, 8),
	})

	rerankFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kgqa_resolve_rerank_fallback_total",
		Help: "Rerank passes where no candidate cleared the threshold and the single best was kept.",
	})

	rerankDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgqa_resolve_rerank_degraded_total",
		Help: "Rerank passes skipped because embedding failed, by stage.",
	}, []string{"stage"})
)
