// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semantic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	semanticSearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgqa_semantic_searches_total",
		Help: "Vector searches issued, by outcome.",
	}, []string{"outcome"})

	semanticSearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kgqa_semantic_search_duration_seconds",
		Help:    "Weaviate nearVector query latency.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})
)
