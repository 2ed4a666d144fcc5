// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package semantic adapts a Weaviate vector store into the resolver's
// candidate search contract. The store holds pre-embedded entity labels in
// one class per language; search embeds the keyword text and retrieves the
// nearest labels by cosine similarity.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/kgqa/services/resolve/candidates"
)

// Embedder produces the query vector. Implemented by embedding.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config controls the Weaviate connection and search behavior. Zero values
// take defaults.
type Config struct {
	// Host is the Weaviate host:port. Default "localhost:8080".
	Host string

	// Scheme is "http" or "https". Default "http".
	Scheme string

	// ClassPrefix names the label classes; the language code is appended
	// title-cased ("WikidataLabels" + "en" → "WikidataLabelsEn").
	// Default "WikidataLabels".
	ClassPrefix string

	// ScoreThreshold is the minimum cosine similarity for a match.
	// Default 0.5.
	ScoreThreshold float64

	// TopK caps how many matches one search returns. Default 5.
	TopK int
}

// Store is the semantic search adapter.
//
// Description:
//
//	Semantic search catches what lexical search misses: "the Eiffel tower
//	city" never matches the string "Paris", but its embedding lands near
//	the Paris label vector. The store is additive context only; every
//	failure mode degrades to an empty result so resolution proceeds on
//	lexical candidates alone.
//
//	A class that does not exist for the requested language is a normal
//	condition (the corpus may only be indexed in English) and returns an
//	empty result without error. Existence is checked once per class and
//	cached for the process lifetime.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	client   *weaviate.Client
	embedder Embedder
	cfg      Config
	logger   *slog.Logger

	// classExists caches positive schema lookups. Negative results are not
	// cached so a class created mid-process is picked up.
	classExists sync.Map
}

// NewStore connects the adapter to a Weaviate instance.
//
// Inputs:
//
//	cfg      - Connection and search settings. Zero values take defaults.
//	embedder - Required query embedder.
//	logger   - Logger instance. Nil uses slog.Default().
//
// Outputs:
//
//	*Store - Ready to search. No connection is attempted until first use.
//	error  - Non-nil when embedder is missing or the client cannot be built.
func NewStore(cfg Config, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("semantic: embedder is required")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost:8080"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.ClassPrefix == "" {
		cfg.ClassPrefix = "WikidataLabels"
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 0.5
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: build weaviate client: %w", err)
	}
	return &Store{
		client:   client,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Search retrieves candidates whose stored label embeddings are close to the
// embedding of text.
//
// Description:
//
//	Embeds text, runs a nearVector query against the language's class with
//	the configured similarity threshold and result cap, and normalizes the
//	hits into candidate records. Matches whose identifier prefix does not
//	fit entityType are dropped (a property store entry cannot answer an
//	item search). Results arrive best-first from the store.
//
// Inputs:
//
//	ctx        - Context for cancellation.
//	text       - The surface text to search near. Must be non-empty.
//	entityType - candidates.TypeItem or candidates.TypeProperty.
//	lang       - Language code selecting the class and filtering payloads.
//
// Outputs:
//
//	[]candidates.Record - Normalized matches with cosine scores, possibly
//	                      empty. Missing class yields empty without error.
//	error               - Embedding or query failure. Callers treat it as
//	                      "no semantic context", never as fatal.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Search(ctx context.Context, text string, entityType candidates.EntityType, lang string) ([]candidates.Record, error) {
	if text == "" {
		return nil, fmt.Errorf("semantic search: empty text")
	}
	if !entityType.Valid() {
		return nil, fmt.Errorf("semantic search: unknown entity type %q", entityType)
	}

	class := s.className(lang)
	ok, err := s.ensureClass(ctx, class)
	if err != nil {
		semanticSearchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !ok {
		s.logger.Debug("semantic class missing, skipping vector search",
			slog.String("class", class),
		)
		semanticSearchesTotal.WithLabelValues("no_class").Inc()
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		semanticSearchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("semantic search: embed query: %w", err)
	}

	start := time.Now()
	resp, err := s.client.GraphQL().Get().
		WithClassName(class).
		WithFields(
			graphql.Field{Name: "text"},
			graphql.Field{Name: "lang"},
			graphql.Field{Name: "qid"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
		).
		WithNearVector(s.client.GraphQL().NearVectorArgBuilder().
			WithVector(vector).
			WithCertainty(cosineToCertainty(s.cfg.ScoreThreshold))).
		WithWhere(filters.Where().
			WithPath([]string{"lang"}).
			WithOperator(filters.Equal).
			WithValueString(lang)).
		WithLimit(s.cfg.TopK).
		Do(ctx)
	semanticSearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		semanticSearchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("semantic search: query %s: %w", class, err)
	}
	if len(resp.Errors) > 0 {
		semanticSearchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("semantic search: graphql error: %s", resp.Errors[0].Message)
	}
	semanticSearchesTotal.WithLabelValues("ok").Inc()

	return s.parseHits(resp.Data, class, entityType), nil
}

// ensureClass reports whether the class exists, caching positive answers.
func (s *Store) ensureClass(ctx context.Context, class string) (bool, error) {
	if _, hit := s.classExists.Load(class); hit {
		return true, nil
	}
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
	if err != nil {
		return false, fmt.Errorf("semantic search: check class %s: %w", class, err)
	}
	if exists {
		s.classExists.Store(class, true)
	}
	return exists, nil
}

// parseHits walks the GraphQL Get response for class and normalizes each hit.
func (s *Store) parseHits(data map[string]models.JSONObject, class string, entityType candidates.EntityType) []candidates.Record {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	rows, ok := get[class].([]interface{})
	if !ok {
		return nil
	}

	records := make([]candidates.Record, 0, len(rows))
	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		record, ok := candidates.FromVectorPayload(props, certaintyToCosine(hitCertainty(props)))
		if !ok {
			continue
		}
		if wantItem := entityType == candidates.TypeItem; record.IsItem() != wantItem {
			continue
		}
		records = append(records, record)
	}
	return records
}

// hitCertainty digs the certainty out of a hit's _additional block.
func hitCertainty(props map[string]interface{}) float64 {
	additional, ok := props["_additional"].(map[string]interface{})
	if !ok {
		return 0
	}
	switch v := additional["certainty"].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

// className maps a language code onto its per-language class.
func (s *Store) className(lang string) string {
	if lang == "" {
		return s.cfg.ClassPrefix
	}
	return s.cfg.ClassPrefix + strings.ToUpper(lang[:1]) + strings.ToLower(lang[1:])
}

// Weaviate expresses similarity as certainty in [0,1]; the resolver speaks
// cosine in [-1,1]. certainty = (cosine + 1) / 2.

func cosineToCertainty(cosine float64) float32 {
	return float32((cosine + 1) / 2)
}

func certaintyToCosine(certainty float64) float64 {
	return certainty*2 - 1
}
