// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps an embedded BadgerDB instance used as the service's
// local cache store. The DB is a service-global singleton opened at startup;
// callers receive transaction-scoped access and never touch the raw handle.
package badger

import (
	"context"
	"fmt"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// Config controls how the cache DB is opened.
type Config struct {
	// Path is the on-disk directory for the DB. Required unless InMemory.
	Path string

	// InMemory opens a non-persistent instance. Used by tests.
	InMemory bool
}

// DefaultConfig returns the baseline configuration. The caller sets Path.
func DefaultConfig() Config {
	return Config{}
}

// DB is a thin lifecycle wrapper around a BadgerDB handle.
//
// Description:
//
//	Exposes read and write transactions with context checks at entry, so a
//	cancelled request never starts a new transaction. BadgerDB itself has
//	no context support; in-flight transactions run to completion, which is
//	acceptable because cache transactions are microsecond-scale.
//
// Thread Safety: Safe for concurrent use. BadgerDB transactions are
// per-goroutine.
type DB struct {
	db *dgbadger.DB
}

// OpenDB opens (creating if necessary) the cache DB at cfg.Path.
//
// Outputs:
//
//	*DB   - Opened wrapper. Callers own the lifecycle and must Close it.
//	error - Non-nil when the directory cannot be opened or is locked by
//	        another process.
func OpenDB(cfg Config) (*DB, error) {
	var opts dgbadger.Options
	if cfg.InMemory {
		opts = dgbadger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger: config has no path")
		}
		opts = dgbadger.DefaultOptions(cfg.Path)
	}
	// Badger's default logger writes to stderr outside slog; silence it.
	opts = opts.WithLogger(nil)

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}
	return &DB{db: db}, nil
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// WithWriteTxn runs fn inside a read-write transaction.
func (d *DB) WithWriteTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// Close releases the DB. Safe to call once after all transactions finish.
func (d *DB) Close() error {
	return d.db.Close()
}
