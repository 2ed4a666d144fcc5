// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enrich attaches one-hop graph context to resolved item candidates.
// Two candidates can share a label and description and still be different
// things; their neighborhoods disambiguate them. The physicist Einstein links
// to "theory of relativity", his grandson does not.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/kgqa/services/resolve/candidates"
	"github.com/AleutianAI/kgqa/services/resolve/wikidata"
)

// outgoingQueryTemplate lists facts where the entity is the subject. The
// wikibase:directClaim join keeps only truthy direct-property statements.
const outgoingQueryTemplate = `SELECT ?propLabel ?valueLabel WHERE {
  wd:%s ?p ?value .
  ?prop wikibase:directClaim ?p .
  SERVICE wikibase:label { bd:serviceParam wikibase:language "%s". }
} LIMIT %d`

// incomingQueryTemplate lists facts where the entity is the object.
const incomingQueryTemplate = `SELECT ?subjectLabel ?propLabel WHERE {
  ?subject ?p wd:%s .
  ?prop wikibase:directClaim ?p .
  SERVICE wikibase:label { bd:serviceParam wikibase:language "%s". }
} LIMIT %d`

// SPARQLClient executes read queries against the knowledge graph. Implemented
// by wikidata.Client.
type SPARQLClient interface {
	QuerySPARQL(ctx context.Context, query string) (*wikidata.QueryResult, error)
}

// Config tunes enrichment. Zero values take defaults.
type Config struct {
	// NeighborLimit caps facts per direction per candidate. Default 5.
	NeighborLimit int

	// Concurrency bounds how many candidates enrich in parallel. The
	// shared rate gate serializes the actual queries. Default 8.
	Concurrency int
}

// Enricher fetches one-hop neighborhoods for item candidates.
//
// Description:
//
//	Only records with the item prefix "Q" are enriched; properties have no
//	useful neighborhood of their own. Candidates fan out concurrently
//	under a bounded semaphore, each issuing its outgoing and incoming
//	queries in parallel. A candidate appearing under several keywords is
//	queried once and the result shared.
//
//	Failure never propagates beyond the affected candidate: it keeps an
//	empty Neighbors field and resolution proceeds.
//
// Thread Safety: Safe for concurrent use.
type Enricher struct {
	sparql SPARQLClient
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an Enricher.
func New(sparql SPARQLClient, cfg Config, logger *slog.Logger) (*Enricher, error) {
	if sparql == nil {
		return nil, fmt.Errorf("enrich: sparql client is required")
	}
	if cfg.NeighborLimit <= 0 {
		cfg.NeighborLimit = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		sparql: sparql,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("aleutian.resolve.enrich"),
	}, nil
}

// Enrich populates Neighbors for every item candidate in resolved, in place.
//
// Inputs:
//
//	ctx      - Context for cancellation. Cancellation aborts the pass.
//	resolved - The keyword → candidates map to enrich. May be empty.
//	lang     - Language code for neighbor labels.
//
// Outputs:
//
//	error - Only context cancellation. Per-candidate query failures are
//	        logged and leave that record's Neighbors empty.
//
// Thread Safety: Safe for concurrent use on disjoint maps. The map must not
// be read or written by others during the call.
func (e *Enricher) Enrich(ctx context.Context, resolved candidates.Map, lang string) error {
	// Group record slots by entity so shared candidates query once.
	slots := make(map[string][]*candidates.Record)
	for _, records := range resolved {
		for i := range records {
			if records[i].IsItem() {
				slots[records[i].ID] = append(slots[records[i].ID], &records[i])
			}
		}
	}
	if len(slots) == 0 {
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "enrich.Enrich",
		trace.WithAttributes(attribute.Int("entities", len(slots))))
	defer span.End()

	sem := make(chan struct{}, e.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for id, targets := range slots {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			neighbors, err := e.neighborhood(gctx, id, lang)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				enrichCandidatesTotal.WithLabelValues("error").Inc()
				e.logger.Warn("neighborhood lookup failed",
					slog.String("entity", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			enrichCandidatesTotal.WithLabelValues("ok").Inc()
			for _, target := range targets {
				target.Neighbors = neighbors
			}
			return nil
		})
	}
	return g.Wait()
}

// neighborhood fetches and formats both fact directions for one entity, one
// fact line per element, outgoing before incoming.
func (e *Enricher) neighborhood(ctx context.Context, id, lang string) ([]string, error) {
	start := time.Now()
	defer func() { enrichDuration.Observe(time.Since(start).Seconds()) }()

	var outgoing, incoming *wikidata.QueryResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		outgoing, err = e.sparql.QuerySPARQL(gctx, fmt.Sprintf(outgoingQueryTemplate, id, lang, e.cfg.NeighborLimit))
		return err
	})
	g.Go(func() error {
		var err error
		incoming, err = e.sparql.QuerySPARQL(gctx, fmt.Sprintf(incomingQueryTemplate, id, lang, e.cfg.NeighborLimit))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var lines []string
	for _, b := range outgoing.Bindings {
		prop, value := b["propLabel"].Value, b["valueLabel"].Value
		if prop == "" || value == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("  - (This) -> [%s] -> %s", prop, value))
	}
	for _, b := range incoming.Bindings {
		subject, prop := b["subjectLabel"].Value, b["propLabel"].Value
		if prop == "" || subject == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("  - %s -> [%s] -> (This)", subject, prop))
	}
	return lines, nil
}
