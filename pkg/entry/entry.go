// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package entry defines RegistryEntry (spec §3), the sole element stored
// in the durable sorted-set index (C3) and served by the snapshot
// registry (C4). It lives in its own package, separate from both, so the
// generic B-tree (pkg/index) can serialize entries at the storage
// boundary without importing the registry that interprets them.
package entry

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/replikativ/yggdrasil-go/pkg/capability"
	"github.com/replikativ/yggdrasil-go/pkg/hlc"
	"github.com/replikativ/yggdrasil-go/pkg/ygerrors"
)

// Entry is a RegistryEntry: the core's record of a single backend state
// observation at an HLC.
type Entry struct {
	SnapshotID  capability.SnapshotId
	SystemID    string
	BranchName  capability.BranchName
	HLC         hlc.HLC
	ContentHash string
	ParentIDs   []capability.SnapshotId
	Metadata    map[string]any
}

// wireEntry is the explicit field mapping used at the serialization
// boundary (spec §9 "serialize via explicit field mapping, never via
// ambient-type registration"). Keeping it separate from Entry means the
// on-disk shape is pinned independently of any future Go-side field
// renames.
type wireEntry struct {
	SnapshotID  string         `cbor:"snapshot_id"`
	SystemID    string         `cbor:"system_id"`
	BranchName  string         `cbor:"branch_name"`
	Physical    uint64         `cbor:"hlc_physical"`
	Logical     uint32         `cbor:"hlc_logical"`
	ContentHash string         `cbor:"content_hash"`
	ParentIDs   []string       `cbor:"parent_ids"`
	Metadata    map[string]any `cbor:"metadata"`
}

func toWire(e Entry) wireEntry {
	parents := make([]string, len(e.ParentIDs))
	for i, p := range e.ParentIDs {
		parents[i] = string(p)
	}
	return wireEntry{
		SnapshotID:  string(e.SnapshotID),
		SystemID:    e.SystemID,
		BranchName:  string(e.BranchName),
		Physical:    e.HLC.Physical,
		Logical:     e.HLC.Logical,
		ContentHash: e.ContentHash,
		ParentIDs:   parents,
		Metadata:    e.Metadata,
	}
}

func fromWire(w wireEntry) Entry {
	parents := make([]capability.SnapshotId, len(w.ParentIDs))
	for i, p := range w.ParentIDs {
		parents[i] = capability.SnapshotId(p)
	}
	return Entry{
		SnapshotID:  capability.SnapshotId(w.SnapshotID),
		SystemID:    w.SystemID,
		BranchName:  capability.BranchName(w.BranchName),
		HLC:         hlc.HLC{Physical: w.Physical, Logical: w.Logical},
		ContentHash: w.ContentHash,
		ParentIDs:   parents,
		Metadata:    w.Metadata,
	}
}

// MarshalCBOR serializes an Entry to its canonical wire form.
func MarshalCBOR(e Entry) ([]byte, error) {
	b, err := cbor.Marshal(toWire(e))
	if err != nil {
		return nil, ygerrors.NewStorageFaultError("failed to marshal registry entry", err)
	}
	return b, nil
}

// UnmarshalCBOR deserializes an Entry from its canonical wire form.
func UnmarshalCBOR(data []byte) (Entry, error) {
	var w wireEntry
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Entry{}, ygerrors.NewInvariantViolationError("failed to unmarshal registry entry", err)
	}
	return fromWire(w), nil
}

// Key is the composite, lexicographically-ordered index key: (hlc,
// system_id, branch_name, snapshot_id).
type Key struct {
	Physical   uint64
	Logical    uint32
	SystemID   string
	BranchName string
	SnapshotID string
}

// KeyOf derives an Entry's index Key.
func KeyOf(e Entry) Key {
	return Key{
		Physical:   e.HLC.Physical,
		Logical:    e.HLC.Logical,
		SystemID:   e.SystemID,
		BranchName: string(e.BranchName),
		SnapshotID: string(e.SnapshotID),
	}
}

// MaxKey returns the supremum key for a given HLC: every key with that HLC
// physical/logical pair sorts at or before it, regardless of system,
// branch, or snapshot id.
func MaxKey(h hlc.HLC) Key {
	return Key{
		Physical:   h.Physical,
		Logical:    h.Logical,
		SystemID:   "￿￿￿￿",
		BranchName: "￿￿￿￿",
		SnapshotID: "￿￿￿￿",
	}
}

// MinKey is the infimum of all keys.
func MinKey() Key {
	return Key{}
}

// Compare orders two Keys lexicographically on
// (Physical, Logical, SystemID, BranchName, SnapshotID).
func Compare(a, b Key) int {
	switch {
	case a.Physical != b.Physical:
		return cmpUint64(a.Physical, b.Physical)
	case a.Logical != b.Logical:
		return cmpUint32(a.Logical, b.Logical)
	case a.SystemID != b.SystemID:
		return cmpString(a.SystemID, b.SystemID)
	case a.BranchName != b.BranchName:
		return cmpString(a.BranchName, b.BranchName)
	default:
		return cmpString(a.SnapshotID, b.SnapshotID)
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
