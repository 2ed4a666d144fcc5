// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"

	dgbadger "github.com/dgraph-io/badger/v4"
)

func TestOpenDBRequiresPath(t *testing.T) {
	if _, err := OpenDB(Config{}); err == nil {
		t.Fatal("OpenDB without a path must fail")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	db, err := OpenDB(Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	key, value := []byte("k"), []byte("v")

	err = db.WithWriteTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		t.Fatalf("write txn: %v", err)
	}

	var got []byte
	err = db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		t.Fatalf("read txn: %v", err)
	}
	if string(got) != string(value) {
		t.Errorf("got %q, want %q", got, value)
	}
}

func TestCancelledContextBlocksTransactions(t *testing.T) {
	db, err := OpenDB(Config{InMemory: true})
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		t.Error("transaction body ran despite cancelled context")
		return nil
	})
	if err == nil {
		t.Fatal("expected context error")
	}
}
