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

// =============================================================================
// SearchCache: Entity Search Persistence
// =============================================================================
//
// Entity search results are slow to obtain (rate-gated at one request per
// second) but stable: the candidates for "Einstein" do not change between
// benchmark runs. This cache persists them in BadgerDB so repeated questions
// and retry loops skip the network entirely.
//
// Design choices:
//
//	1. BadgerDB, embedded: search responses are service infrastructure, not
//	   user data. No network hop, no availability dependency.
//
//	2. SHA-256 of keyword|type|lang as the key: the full request identity.
//	   Changing any search parameter produces a different key.
//
//	3. BadgerDB native TTL (default 7 days): staleness is bounded without
//	   application-level expiry bookkeeping. Expired keys read as misses.
//
// Storage layout:
//
//	wikidata/search/v1/{sha256}  →  gob-encoded []candidates.Record

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/kgqa/services/resolve/candidates"
	badgerstore "github.com/AleutianAI/kgqa/services/resolve/storage/badger"
)

// searchCacheDefaultTTL bounds how stale a cached search response can get.
const searchCacheDefaultTTL = 7 * 24 * time.Hour

// searchCacheKeyPrefix versions the storage layout so a future format change
// cannot collide with old entries.
const searchCacheKeyPrefix = "wikidata/search/v1/"

// SearchCache is a nil-safe read-through cache for entity search responses.
//
// Description:
//
//	A nil *SearchCache is valid and disables caching: both methods are
//	no-ops on a nil receiver. This keeps the client code free of nil
//	checks and lets tests and cache-less deployments skip construction.
//
//	Storage failures are deliberately quiet: a cache that cannot read or
//	write degrades to pass-through, logged at debug level.
//
// Thread Safety: Safe for concurrent use.
type SearchCache struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewSearchCache creates a cache backed by the given DB.
//
// Inputs:
//
//	db     - Opened BadgerDB wrapper. The caller owns its lifecycle.
//	ttl    - Entry lifetime. Zero or negative uses the 7-day default.
//	logger - Logger instance. Nil uses slog.Default().
func NewSearchCache(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *SearchCache {
	if db == nil {
		panic("NewSearchCache: db must not be nil")
	}
	if ttl <= 0 {
		ttl = searchCacheDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchCache{db: db, ttl: ttl, logger: logger}
}

// Get returns the cached records for a search request, if present.
//
// Outputs:
//
//	[]candidates.Record - The cached records. Nil when ok is false.
//	bool                - False on miss, expired entry, storage failure,
//	                      or nil receiver.
func (s *SearchCache) Get(ctx context.Context, keyword string, entityType candidates.EntityType, lang string) ([]candidates.Record, bool) {
	if s == nil {
		return nil, false
	}
	key := searchCacheKey(keyword, entityType, lang)

	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		s.logger.Debug("search cache read failed", slog.String("error", err.Error()))
		return nil, false
	}

	var records []candidates.Record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&records); err != nil {
		s.logger.Debug("search cache decode failed", slog.String("error", err.Error()))
		return nil, false
	}
	return records, true
}

// Put stores the records for a search request with the configured TTL.
// An empty result list is cached too: "no candidates" is a valid answer
// and re-asking the remote every time would waste the rate budget.
func (s *SearchCache) Put(ctx context.Context, keyword string, entityType candidates.EntityType, lang string, records []candidates.Record) {
	if s == nil {
		return
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		s.logger.Debug("search cache encode failed", slog.String("error", err.Error()))
		return
	}
	key := searchCacheKey(keyword, entityType, lang)

	err := s.db.WithWriteTxn(ctx, func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, buf.Bytes()).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		s.logger.Debug("search cache write failed", slog.String("error", err.Error()))
	}
}

func searchCacheKey(keyword string, entityType candidates.EntityType, lang string) []byte {
	sum := sha256.Sum256([]byte(keyword + "|" + string(entityType) + "|" + lang))
	return []byte(searchCacheKeyPrefix + hex.EncodeToString(sum[:]))
}
