// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding wraps the text-to-vector function shared by the semantic
// search adapter and the re-ranker. Comparability is the whole contract:
// candidate vectors in the index and query vectors computed here must come
// from the same frozen model configuration, or cosine scores are meaningless.
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	// defaultModel matches the model used to build the Wikidata label index.
	defaultModel = "multilingual-e5-small"

	// defaultBatchSize bounds how many texts go to the embedding server in
	// one request. 32 keeps request bodies small without chatty round trips.
	defaultBatchSize = 32

	// defaultMaxTextRunes is the deterministic truncation point for overlong
	// input. Roughly 512 tokens for Latin-script text.
	defaultMaxTextRunes = 2048
)

// Config holds the frozen embedding model configuration for the process.
type Config struct {
	// ServerURL is the Ollama server base URL.
	ServerURL string

	// Model is the embedding model name. Changing it invalidates every
	// previously indexed vector, so it is set once at process start.
	Model string

	// Dimensions is the expected vector width (384 for e5-small). Zero
	// disables the check.
	Dimensions int

	// BatchSize bounds texts per embedding request.
	BatchSize int

	// MaxTextRunes is where overlong input is cut before embedding.
	MaxTextRunes int
}

// Client is the process-wide embedding function.
//
// Description:
//
//	A thin wrapper over langchaingo's Ollama-backed embedder that adds
//	deterministic truncation and dimension checking. The client holds no
//	state beyond the HTTP transport; identical input always produces
//	identical output for a fixed server-side model.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	embedder     embeddings.Embedder
	model        string
	dims         int
	maxTextRunes int
	logger       *slog.Logger
}

// New creates an embedding client against the configured Ollama server.
//
// Inputs:
//
//	cfg    - Embedding configuration. Zero fields fall back to defaults.
//	logger - Logger instance. Nil uses slog.Default().
//
// Outputs:
//
//	*Client - Ready-to-use client.
//	error   - Non-nil when the underlying transport cannot be constructed.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxTextRunes <= 0 {
		cfg.MaxTextRunes = defaultMaxTextRunes
	}

	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &Client{
		embedder:     embedder,
		model:        cfg.Model,
		dims:         cfg.Dimensions,
		maxTextRunes: cfg.MaxTextRunes,
		logger:       logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Embed maps one text to its embedding vector.
//
// Outputs:
//
//	[]float32 - The embedding vector. Never nil on success.
//	error     - Non-nil on transport failure or dimension mismatch.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embedder.EmbedQuery(ctx, c.truncate(text))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := c.checkDims(len(vec)); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch maps a batch of texts to embedding vectors, one per input, in
// input order. Batching happens inside the underlying embedder; semantics
// per item are identical to Embed.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = c.truncate(t)
	}

	vecs, err := c.embedder.EmbedDocuments(ctx, truncated)
	if err != nil {
		return nil, fmt.Errorf("embed batch of %d: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := c.checkDims(len(v)); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// truncate cuts text at the configured rune count. Rune-based so multi-byte
// input never splits mid-character.
func (c *Client) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= c.maxTextRunes {
		return text
	}
	c.logger.Debug("embedding: truncating overlong text",
		slog.Int("runes", len(runes)),
		slog.Int("max", c.maxTextRunes),
	)
	return string(runes[:c.maxTextRunes])
}

func (c *Client) checkDims(got int) error {
	if c.dims > 0 && got != c.dims {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d (wrong model on server?)", got, c.dims)
	}
	return nil
}
