// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the resolution service configuration.
// Defaults ship embedded in the binary; an operator file overrides them
// field by field.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed defaults.yaml
var defaultsYAML []byte

// MaxYAMLFileSize bounds how large a config file may be.
const MaxYAMLFileSize = 1 << 20

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the complete service configuration.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Wikidata  WikidataConfig  `yaml:"wikidata"`
	Semantic  SemanticConfig  `yaml:"semantic"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Engine    EngineConfig    `yaml:"engine"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	// Port is the listen port for the API and /metrics.
	Port int `yaml:"port" validate:"required,min=1,max=65535"`

	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" validate:"required,min=1"`
}

// WikidataConfig controls the lexical search and SPARQL client.
type WikidataConfig struct {
	APIURL    string `yaml:"api_url" validate:"required,url"`
	SPARQLURL string `yaml:"sparql_url" validate:"required,url"`

	// UserAgent identifies this service to the remote API, which requires
	// a descriptive agent string for rate-limit accounting.
	UserAgent string `yaml:"user_agent" validate:"required"`

	// MinIntervalMs is the process-wide floor between remote calls.
	MinIntervalMs int `yaml:"min_interval_ms" validate:"required,min=1"`

	MaxAttempts          int `yaml:"max_attempts" validate:"required,min=1"`
	SearchTimeoutSeconds int `yaml:"search_timeout_seconds" validate:"required,min=1"`
	SPARQLTimeoutSeconds int `yaml:"sparql_timeout_seconds" validate:"required,min=1"`
	SearchLimit          int `yaml:"search_limit" validate:"required,min=1,max=50"`
}

// SemanticConfig controls the vector search adapter.
type SemanticConfig struct {
	// Enabled toggles semantic search. Disabled resolves on lexical
	// search alone.
	Enabled bool `yaml:"enabled"`

	Host        string `yaml:"host" validate:"required_if=Enabled true"`
	Scheme      string `yaml:"scheme" validate:"omitempty,oneof=http https"`
	ClassPrefix string `yaml:"class_prefix"`

	// ScoreThreshold is the minimum cosine similarity for a vector match.
	ScoreThreshold float64 `yaml:"score_threshold" validate:"gte=0,lte=1"`

	TopK int `yaml:"top_k" validate:"required,min=1"`
}

// EmbeddingConfig controls the embedding model client.
type EmbeddingConfig struct {
	ServerURL string `yaml:"server_url" validate:"required,url"`
	Model     string `yaml:"model" validate:"required"`

	// Dimensions is the expected vector width; a mismatch means the
	// server is running a different model than the vector store was
	// indexed with.
	Dimensions int `yaml:"dimensions" validate:"required,min=1"`

	BatchSize int `yaml:"batch_size" validate:"required,min=1"`
}

// EngineConfig tunes the resolution pipeline.
type EngineConfig struct {
	RerankThreshold    float64 `yaml:"rerank_threshold" validate:"gt=0,lte=1"`
	MaxCandidates      int     `yaml:"max_candidates" validate:"required,min=1"`
	KeywordConcurrency int     `yaml:"keyword_concurrency" validate:"required,min=1"`
}

// EnrichConfig tunes graph context enrichment.
type EnrichConfig struct {
	NeighborLimit int `yaml:"neighbor_limit" validate:"required,min=1"`
	Concurrency   int `yaml:"concurrency" validate:"required,min=1"`
}

// CacheConfig controls the embedded response cache.
type CacheConfig struct {
	// Enabled toggles the BadgerDB search cache.
	Enabled bool `yaml:"enabled"`

	// Path is the on-disk cache directory. Required when enabled.
	Path string `yaml:"path" validate:"required_if=Enabled true"`

	// TTLHours bounds entry staleness.
	TTLHours int `yaml:"ttl_hours" validate:"required,min=1"`
}

// MinInterval returns the rate gate interval as a duration.
func (w WikidataConfig) MinInterval() time.Duration {
	return time.Duration(w.MinIntervalMs) * time.Millisecond
}

// SearchTimeout returns the per-attempt search timeout as a duration.
func (w WikidataConfig) SearchTimeout() time.Duration {
	return time.Duration(w.SearchTimeoutSeconds) * time.Second
}

// SPARQLTimeout returns the per-attempt query timeout as a duration.
func (w WikidataConfig) SPARQLTimeout() time.Duration {
	return time.Duration(w.SPARQLTimeoutSeconds) * time.Second
}

// TTL returns the cache entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// ShutdownTimeout returns the graceful shutdown bound as a duration.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// =============================================================================
// Loading
// =============================================================================

// Load returns the configuration from the embedded defaults overlaid with an
// optional operator file.
//
// Description:
//
//	Parses the embedded defaults first, then unmarshals the operator file
//	over them so only the fields the operator sets change. The merged
//	result is validated as a whole.
//
// Inputs:
//
//	path - Operator config file. Empty string uses pure defaults.
//
// Outputs:
//
//	*Config - The validated configuration. Never nil on success.
//	error   - Non-nil for unreadable files, malformed YAML, or a merged
//	          config that fails validation.
func Load(path string) (*Config, error) {
	cfg, err := parse(defaultsYAML)
	if err != nil {
		return nil, fmt.Errorf("config: embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if len(data) > MaxYAMLFileSize {
			return nil, fmt.Errorf("config: %s exceeds maximum size (%d > %d)", path, len(data), MaxYAMLFileSize)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	slog.Info("configuration loaded",
		slog.String("file", path),
		slog.Int("port", cfg.Server.Port),
		slog.Bool("semantic", cfg.Semantic.Enabled),
		slog.Bool("cache", cfg.Cache.Enabled),
	)
	return cfg, nil
}

// parse unmarshals one YAML document into a fresh Config.
func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &cfg, nil
}
