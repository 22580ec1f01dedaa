// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/replikativ/yggdrasil-go/pkg/ygerrors"
)

// BadgerStore is the default persistent Store implementation: a Badger
// LSM-tree database rooted at a user-chosen directory (spec §4.4
// create_registry({store_path})).
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (creating if necessary) a Badger database at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, ygerrors.NewStorageFaultError("failed to open badger store at "+dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Assoc implements Store.
func (b *BadgerStore) Assoc(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return ygerrors.NewStorageFaultError("badger assoc failed for "+key, err)
	}
	return nil
}

// Get implements Store.
func (b *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ygerrors.NewStorageFaultError("badger get failed for "+key, err)
	}
	return out, true, nil
}

// Dissoc implements Store.
func (b *BadgerStore) Dissoc(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return ygerrors.NewStorageFaultError("badger dissoc failed for "+key, err)
	}
	return nil
}

// Close implements Store.
func (b *BadgerStore) Close() error {
	if err := b.db.Close(); err != nil {
		return ygerrors.NewStorageFaultError("failed to close badger store", err)
	}
	return nil
}
