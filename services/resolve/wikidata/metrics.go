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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Wikidata Calls
// =============================================================================

var (
	// wikidataRequestsTotal counts outbound requests by endpoint and outcome.
	// Labels: endpoint (search, sparql, labels), status (ok, http_429, http_5xx, error)
	wikidataRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kgqa",
		Subsystem: "wikidata",
		Name:      "requests_total",
		Help:      "Outbound Wikidata requests by endpoint and outcome",
	}, []string{"endpoint", "status"})

	// wikidataRetriesTotal counts retry attempts by endpoint.
	wikidataRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kgqa",
		Subsystem: "wikidata",
		Name:      "retries_total",
		Help:      "Retry attempts against Wikidata endpoints",
	}, []string{"endpoint"})

	// wikidataRequestDuration measures request latency per endpoint,
	// excluding time spent queued at the rate gate.
	wikidataRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kgqa",
		Subsystem: "wikidata",
		Name:      "request_duration_seconds",
		Help:      "Latency of Wikidata requests, excluding rate-gate wait",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
	}, []string{"endpoint"})

	// wikidataCacheTotal counts search cache lookups by outcome.
	// Labels: outcome (hit, miss)
	wikidataCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kgqa",
		Subsystem: "wikidata",
		Name:      "search_cache_total",
		Help:      "Entity search cache lookups by outcome",
	}, []string{"outcome"})
)
