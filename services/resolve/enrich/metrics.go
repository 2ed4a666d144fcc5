// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enrichCandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgqa_enrich_candidates_total",
		Help: "Entities enriched with graph context, by outcome.",
	}, []string{"outcome"})

	enrichDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kgqa_enrich_entity_duration_seconds",
		Help:    "Wall time to fetch both fact directions for one entity.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
