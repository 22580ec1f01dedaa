// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvstore is the storage contract C3's durable B-tree is built on
// (spec §4.3, §6): any content-addressed blob store that can assoc, get,
// and dissoc opaque byte values by string key. This package defines the
// interface and three concrete implementations drawn from the example
// corpus: an embedded LSM store (Badger), a networked store (Redis), and
// an embedded relational store (SQLite) used as a plain key/value table.
package kvstore

import "context"

// Store is the minimal persistence contract C3 needs: durable association
// of an opaque address to an opaque value.
type Store interface {
	// Assoc durably associates key with value, replacing any prior value.
	Assoc(ctx context.Context, key string, value []byte) error
	// Get returns the value for key, or ok=false if key is unset.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Dissoc removes key. Removing an unset key is not an error.
	Dissoc(ctx context.Context, key string) error
	// Close releases any resources the store holds open.
	Close() error
}

// Well-known keys the registry persists its durable state under (spec §6).
const (
	// IndexRootKey holds the address of the current B-tree root.
	IndexRootKey = "yggdrasil/index-root"
	// FreedKey holds the serialized map from freed address to
	// free-marking timestamp (ms).
	FreedKey = "yggdrasil/freed"
)
