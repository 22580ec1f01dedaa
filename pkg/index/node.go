// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package index implements C3, the durable sorted-set index: an ordered
// B-tree of entry.Entry values whose nodes are content-addressed and
// persisted to an external kvstore.Store, with lazy node loading and
// deferred flush (spec §4.3).
//
// This implementation follows the "hitchhiker tree" shape the spec's
// node layout implies: a Branch node's Keys[i] is the maximum key
// reachable through Children[i], so Keys and Children are always the
// same length at every level, leaf or branch.
package index

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/replikativ/yggdrasil-go/pkg/entry"
	"github.com/replikativ/yggdrasil-go/pkg/ygerrors"
)

// Node is one node of the durable B-tree, held in memory. Level 0 is a
// leaf (Entries populated, Children nil); Level > 0 is a branch
// (Children populated, Entries nil).
type Node struct {
	Level    int
	Keys     []entry.Key
	Entries  []entry.Entry
	Children []NodeRef
}

func (n *Node) isLeaf() bool { return n.Level == 0 }

// maxKey returns the node's own maximum key, valid for both leaves and
// branches since both keep Keys sorted ascending.
func (n *Node) maxKey() entry.Key {
	return n.Keys[len(n.Keys)-1]
}

// NodeRef is a reference to a Node: either a persisted Address (possibly
// with its Node materialized and cached), or a purely in-memory, not-yet-
// persisted Node (Address == "", the "dirty" case).
type NodeRef struct {
	Address string
	Node    *Node
}

func (r NodeRef) dirty() bool { return r.Address == "" }

// wireNode is the on-disk shape (spec §6): children are addresses only,
// never resident Node values. Leaf entries are stored pre-encoded via
// entry.MarshalCBOR, so the node format never needs its own copy of
// Entry's field mapping.
type wireNode struct {
	Level     int       `cbor:"level"`
	Keys      []wireKey `cbor:"keys"`
	Entries   [][]byte  `cbor:"entries,omitempty"`
	Addresses []string  `cbor:"addresses,omitempty"`
}

type wireKey struct {
	Physical   uint64 `cbor:"physical"`
	Logical    uint32 `cbor:"logical"`
	SystemID   string `cbor:"system_id"`
	BranchName string `cbor:"branch_name"`
	SnapshotID string `cbor:"snapshot_id"`
}

func toWireKey(k entry.Key) wireKey {
	return wireKey{
		Physical:   k.Physical,
		Logical:    k.Logical,
		SystemID:   k.SystemID,
		BranchName: k.BranchName,
		SnapshotID: k.SnapshotID,
	}
}

func fromWireKey(w wireKey) entry.Key {
	return entry.Key{
		Physical:   w.Physical,
		Logical:    w.Logical,
		SystemID:   w.SystemID,
		BranchName: w.BranchName,
		SnapshotID: w.SnapshotID,
	}
}

// marshalNode serializes a Node whose children (if any) already carry
// resolved addresses. Callers must persist children before calling this.
func marshalNode(n *Node) ([]byte, error) {
	w := wireNode{Level: n.Level}
	for _, k := range n.Keys {
		w.Keys = append(w.Keys, toWireKey(k))
	}
	if n.isLeaf() {
		for _, e := range n.Entries {
			eb, err := entry.MarshalCBOR(e)
			if err != nil {
				return nil, err
			}
			w.Entries = append(w.Entries, eb)
		}
	} else {
		for _, c := range n.Children {
			if c.Address == "" {
				return nil, ygerrors.NewInvariantViolationError("cannot serialize a branch with an unpersisted child", nil)
			}
			w.Addresses = append(w.Addresses, c.Address)
		}
	}
	b, err := cbor.Marshal(w)
	if err != nil {
		return nil, ygerrors.NewStorageFaultError("failed to marshal b-tree node", err)
	}
	return b, nil
}

func unmarshalNode(data []byte) (*Node, error) {
	var w wireNode
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, ygerrors.NewInvariantViolationError("failed to unmarshal b-tree node", err)
	}
	n := &Node{Level: w.Level}
	for _, k := range w.Keys {
		n.Keys = append(n.Keys, fromWireKey(k))
	}
	if n.isLeaf() {
		for _, eb := range w.Entries {
			e, err := entry.UnmarshalCBOR(eb)
			if err != nil {
				return nil, err
			}
			n.Entries = append(n.Entries, e)
		}
	} else {
		for _, addr := range w.Addresses {
			n.Children = append(n.Children, NodeRef{Address: addr})
		}
	}
	return n, nil
}
