// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command resolve starts the candidate resolution API server.
//
// The server translates extracted keywords into ranked Wikidata candidates
// by combining rate-gated lexical search, Weaviate vector search, embedding
// re-ranking, and one-hop graph context enrichment.
//
// Usage:
//
//	go run ./cmd/resolve
//	go run ./cmd/resolve -port 9090 -config /etc/kgqa/config.yaml
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/resolve/health
//
//	# Resolve keywords
//	curl -X POST http://localhost:8080/v1/resolve/candidates \
//	  -H "Content-Type: application/json" \
//	  -d '{"keywords": [{"value": "Einstein", "type": "item"}], "lang": "en"}'
//
//	# Look up labels
//	curl "http://localhost:8080/v1/resolve/labels?ids=Q937|P31&lang=en"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AleutianAI/kgqa/services/resolve"
	"github.com/AleutianAI/kgqa/services/resolve/config"
	"github.com/AleutianAI/kgqa/services/resolve/embedding"
	"github.com/AleutianAI/kgqa/services/resolve/engine"
	"github.com/AleutianAI/kgqa/services/resolve/enrich"
	"github.com/AleutianAI/kgqa/services/resolve/semantic"
	badgerstore "github.com/AleutianAI/kgqa/services/resolve/storage/badger"
	"github.com/AleutianAI/kgqa/services/resolve/wikidata"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (empty uses embedded defaults)")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so upstream pipeline stages can correlate
	// their spans with resolution spans.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// Search cache BadgerDB. Graceful degradation: if unavailable, every
	// lookup goes to the network.
	var cache *wikidata.SearchCache
	var cacheDB *badgerstore.DB
	if cfg.Cache.Enabled {
		storeCfg := badgerstore.DefaultConfig()
		storeCfg.Path = cfg.Cache.Path
		db, err := badgerstore.OpenDB(storeCfg)
		if err != nil {
			slog.Warn("Search cache BadgerDB unavailable, caching disabled",
				slog.String("path", cfg.Cache.Path),
				slog.String("error", err.Error()),
			)
		} else {
			cacheDB = db
			cache = wikidata.NewSearchCache(db, cfg.Cache.TTL(), logger)
			slog.Info("Search cache BadgerDB opened", slog.String("path", cfg.Cache.Path))
		}
	}

	wikidataClient := wikidata.NewClient(wikidata.Config{
		APIURL:        cfg.Wikidata.APIURL,
		SPARQLURL:     cfg.Wikidata.SPARQLURL,
		UserAgent:     cfg.Wikidata.UserAgent,
		MinInterval:   cfg.Wikidata.MinInterval(),
		MaxAttempts:   cfg.Wikidata.MaxAttempts,
		SearchTimeout: cfg.Wikidata.SearchTimeout(),
		SPARQLTimeout: cfg.Wikidata.SPARQLTimeout(),
		SearchLimit:   cfg.Wikidata.SearchLimit,
	}, cache, logger)

	embedder, err := embedding.New(embedding.Config{
		ServerURL:  cfg.Embedding.ServerURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to build embedding client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Semantic search is optional; the engine resolves on lexical search
	// alone when it is disabled.
	var semanticStore engine.SemanticSearcher
	if cfg.Semantic.Enabled {
		store, err := semantic.NewStore(semantic.Config{
			Host:           cfg.Semantic.Host,
			Scheme:         cfg.Semantic.Scheme,
			ClassPrefix:    cfg.Semantic.ClassPrefix,
			ScoreThreshold: cfg.Semantic.ScoreThreshold,
			TopK:           cfg.Semantic.TopK,
		}, embedder, logger)
		if err != nil {
			slog.Error("Failed to build semantic store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		semanticStore = store
	}

	enricher, err := enrich.New(wikidataClient, enrich.Config{
		NeighborLimit: cfg.Enrich.NeighborLimit,
		Concurrency:   cfg.Enrich.Concurrency,
	}, logger)
	if err != nil {
		slog.Error("Failed to build enricher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	eng, err := engine.New(
		wikidataClient,
		semanticStore,
		engine.NewReranker(embedder, logger),
		enricher,
		engine.Config{
			RerankThreshold:    cfg.Engine.RerankThreshold,
			MaxCandidates:      cfg.Engine.MaxCandidates,
			KeywordConcurrency: cfg.Engine.KeywordConcurrency,
		},
		logger,
	)
	if err != nil {
		slog.Error("Failed to build resolution engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handlers := resolve.NewHandlers(eng, wikidataClient, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-resolve"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	resolve.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down resolution server")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Forced shutdown", slog.String("error", err.Error()))
		}
		if cacheDB != nil {
			if err := cacheDB.Close(); err != nil {
				slog.Warn("Failed to close search cache BadgerDB", slog.String("error", err.Error()))
			}
		}
	}()

	slog.Info("Starting resolution server",
		slog.String("address", srv.Addr),
		slog.Bool("semantic", cfg.Semantic.Enabled),
		slog.Bool("cache", cache != nil),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
