// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"sort"
	"sync"

	"github.com/replikativ/yggdrasil-go/pkg/entry"
	"github.com/replikativ/yggdrasil-go/pkg/kvstore"
)

// DefaultBranchingFactor is the maximum number of keys a node holds
// before it splits (spec §4.3 recommends 64 as a starting point).
const DefaultBranchingFactor = 64

// Tree is C3's durable sorted-set index: an ordered set of entry.Entry
// values keyed by entry.Key, copy-on-write, content-addressed, and
// backed by a kvstore.Store. Mutations (Insert, Delete) only touch the
// in-memory tree; Flush is what makes them durable.
//
// Tree serializes all mutating and flushing operations behind a single
// mutex. The spec allows lock-free reads against an immutable snapshot;
// this implementation instead favors a single conservative lock, since
// Flush mutates already-built Node values in place to fill in addresses
// and a true snapshot read would otherwise need to race that.
type Tree struct {
	storage         *storage
	branchingFactor int

	mu      sync.Mutex
	root    NodeRef
	dirty   bool
	nowFunc func() uint64
}

// Open restores a Tree from store, loading only the root address (and
// the freed-address ledger) eagerly; all other nodes load lazily on
// first access. An empty store yields an empty tree.
func Open(ctx context.Context, kv kvstore.Store, opts ...Option) (*Tree, error) {
	t := &Tree{
		storage:         newStorage(kv),
		branchingFactor: DefaultBranchingFactor,
		nowFunc:         defaultNowMs,
	}
	for _, o := range opts {
		o(t)
	}

	if err := t.storage.loadFreedMap(ctx); err != nil {
		return nil, err
	}
	rootAddr, ok, err := t.storage.loadRoot(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		t.root = NodeRef{Address: rootAddr}
	} else {
		t.root = NodeRef{Node: &Node{Level: 0}}
	}
	return t, nil
}

// Option configures a Tree at Open time.
type Option func(*Tree)

// WithBranchingFactor overrides DefaultBranchingFactor.
func WithBranchingFactor(n int) Option {
	return func(t *Tree) { t.branchingFactor = n }
}

// WithNowFunc overrides the wall-clock source Insert/Delete stamp onto
// freed nodes. Tests use this to make free-marking timestamps
// deterministic.
func WithNowFunc(f func() uint64) Option {
	return func(t *Tree) { t.nowFunc = f }
}

func defaultNowMs() uint64 {
	return uint64(nowMillis())
}

// splitInfo describes the right-hand sibling produced when a node
// insertion overflows the branching factor.
type splitInfo struct {
	ref    NodeRef
	maxKey entry.Key
}

// Insert upserts e into the tree, keyed by entry.KeyOf(e). An existing
// entry under the same key is replaced.
func (t *Tree) Insert(ctx context.Context, e entry.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := entry.KeyOf(e)
	newRoot, split, err := t.insertInto(ctx, t.root, key, e)
	if err != nil {
		return err
	}
	if split != nil {
		newRootNode := &Node{
			Level:    newRootLevel(newRoot),
			Keys:     []entry.Key{newRoot.Node.maxKey(), split.maxKey},
			Children: []NodeRef{newRoot, split.ref},
		}
		t.root = NodeRef{Node: newRootNode}
	} else {
		t.root = newRoot
	}
	t.dirty = true
	return nil
}

func newRootLevel(childOrSelf NodeRef) int {
	return childOrSelf.Node.Level + 1
}

func (t *Tree) insertInto(ctx context.Context, ref NodeRef, key entry.Key, e entry.Entry) (NodeRef, *splitInfo, error) {
	node, err := t.resolve(ctx, ref)
	if err != nil {
		return NodeRef{}, nil, err
	}
	if ref.Address != "" {
		t.storage.markFreed(ref.Address, t.nowFunc())
	}

	if node.isLeaf() {
		idx, found := searchKeys(node.Keys, key)
		newKeys := append([]entry.Key(nil), node.Keys...)
		newEntries := append([]entry.Entry(nil), node.Entries...)
		if found {
			newEntries[idx] = e
		} else {
			newKeys = insertKeyAt(newKeys, idx, key)
			newEntries = insertEntryAt(newEntries, idx, e)
		}
		if len(newKeys) <= t.branchingFactor {
			return NodeRef{Node: &Node{Level: 0, Keys: newKeys, Entries: newEntries}}, nil, nil
		}
		mid := len(newKeys) / 2
		left := &Node{Level: 0, Keys: newKeys[:mid], Entries: newEntries[:mid]}
		right := &Node{Level: 0, Keys: newKeys[mid:], Entries: newEntries[mid:]}
		return NodeRef{Node: left}, &splitInfo{ref: NodeRef{Node: right}, maxKey: right.maxKey()}, nil
	}

	idx := childIndexFor(node.Keys, key)
	childRef := node.Children[idx]
	newChildRef, childSplit, err := t.insertInto(ctx, childRef, key, e)
	if err != nil {
		return NodeRef{}, nil, err
	}

	newChildren := append([]NodeRef(nil), node.Children...)
	newKeys := append([]entry.Key(nil), node.Keys...)
	newChildren[idx] = newChildRef
	newKeys[idx] = newChildRef.Node.maxKey()
	if childSplit != nil {
		newChildren = insertChildAt(newChildren, idx+1, childSplit.ref)
		newKeys = insertKeyAt(newKeys, idx+1, childSplit.maxKey)
	}

	if len(newKeys) <= t.branchingFactor {
		return NodeRef{Node: &Node{Level: node.Level, Keys: newKeys, Children: newChildren}}, nil, nil
	}
	mid := len(newKeys) / 2
	left := &Node{Level: node.Level, Keys: newKeys[:mid], Children: newChildren[:mid]}
	right := &Node{Level: node.Level, Keys: newKeys[mid:], Children: newChildren[mid:]}
	return NodeRef{Node: left}, &splitInfo{ref: NodeRef{Node: right}, maxKey: right.maxKey()}, nil
}

// Delete removes the entry under key, if present. It does not rebalance
// or merge underfull nodes on underflow: the tree may carry sparse nodes
// after heavy deletion, trading balance guarantees for a much simpler,
// still-correct delete path.
func (t *Tree) Delete(ctx context.Context, key entry.Key) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	newRoot, removed, err := t.deleteFrom(ctx, t.root, key)
	if err != nil || !removed {
		return false, err
	}
	// Collapse a branch root down to its single remaining child.
	for !newRoot.Node.isLeaf() && len(newRoot.Node.Children) == 1 {
		newRoot = newRoot.Node.Children[0]
		node, rerr := t.resolve(ctx, newRoot)
		if rerr != nil {
			return false, rerr
		}
		newRoot.Node = node
	}
	t.root = newRoot
	t.dirty = true
	return true, nil
}

func (t *Tree) deleteFrom(ctx context.Context, ref NodeRef, key entry.Key) (NodeRef, bool, error) {
	node, err := t.resolve(ctx, ref)
	if err != nil {
		return NodeRef{}, false, err
	}

	if node.isLeaf() {
		idx, found := searchKeys(node.Keys, key)
		if !found {
			return ref, false, nil
		}
		if ref.Address != "" {
			t.storage.markFreed(ref.Address, t.nowFunc())
		}
		newKeys := removeKeyAt(node.Keys, idx)
		newEntries := removeEntryAt(node.Entries, idx)
		return NodeRef{Node: &Node{Level: 0, Keys: newKeys, Entries: newEntries}}, true, nil
	}

	idx := childIndexFor(node.Keys, key)
	newChildRef, removed, err := t.deleteFrom(ctx, node.Children[idx], key)
	if err != nil || !removed {
		return ref, removed, err
	}
	if ref.Address != "" {
		t.storage.markFreed(ref.Address, t.nowFunc())
	}

	newChildren := append([]NodeRef(nil), node.Children...)
	newKeys := append([]entry.Key(nil), node.Keys...)
	if len(newChildRef.Node.Keys) == 0 {
		newChildren = append(newChildren[:idx], newChildren[idx+1:]...)
		newKeys = append(newKeys[:idx], newKeys[idx+1:]...)
	} else {
		newChildren[idx] = newChildRef
		newKeys[idx] = newChildRef.Node.maxKey()
	}
	return NodeRef{Node: &Node{Level: node.Level, Keys: newKeys, Children: newChildren}}, true, nil
}

// resolve materializes ref's Node, loading from storage if necessary.
func (t *Tree) resolve(ctx context.Context, ref NodeRef) (*Node, error) {
	if ref.Node != nil {
		return ref.Node, nil
	}
	return t.storage.restore(ctx, ref.Address)
}

// Flush persists every dirty node reachable from the current root,
// bottom-up, then records the new root address and the freed-address
// ledger. It is a no-op if no mutation has occurred since the last
// Flush (or since Open).
func (t *Tree) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}

	addr, err := t.persist(ctx, t.root)
	if err != nil {
		return err
	}
	t.root = NodeRef{Address: addr, Node: t.root.Node}
	if err := t.storage.persistRoot(ctx, addr); err != nil {
		return err
	}
	if err := t.storage.persistFreedMap(ctx); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// persist recursively stores ref's node (and, for a branch, its
// children first) and returns the resulting address. Persisted child
// NodeRefs are written back in place, so the live in-memory tree keeps
// working after Flush without forcing a reload.
func (t *Tree) persist(ctx context.Context, ref NodeRef) (string, error) {
	if ref.Address != "" {
		return ref.Address, nil
	}
	node := ref.Node
	if !node.isLeaf() {
		for i, child := range node.Children {
			addr, err := t.persist(ctx, child)
			if err != nil {
				return "", err
			}
			node.Children[i] = NodeRef{Address: addr, Node: child.Node}
		}
	}
	return t.storage.store(ctx, node)
}

// AllEntries returns every entry in ascending key order.
func (t *Tree) AllEntries(ctx context.Context) ([]entry.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	root := t.root

	var out []entry.Entry
	var walk func(ref NodeRef) error
	walk = func(ref NodeRef) error {
		node, err := t.resolve(ctx, ref)
		if err != nil {
			return err
		}
		if node.isLeaf() {
			out = append(out, node.Entries...)
			return nil
		}
		for _, c := range node.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// Len reports how many entries the current root holds; it is provided
// for diagnostics and tests, computed via a full AllEntries walk.
func (t *Tree) Len(ctx context.Context) (int, error) {
	all, err := t.AllEntries(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Close releases the backing kvstore.Store. Callers should Flush first
// if they want pending mutations to survive the close.
func (t *Tree) Close() error {
	return t.storage.kv.Close()
}

// IsFreed reports whether addr has been superseded by a later write.
func (t *Tree) IsFreed(addr string) bool { return t.storage.isFreed(addr) }

// FreedInfo reports the free-marking timestamp for addr, if any.
func (t *Tree) FreedInfo(addr string) (uint64, bool) { return t.storage.freedInfo(addr) }

// SweepFreed physically reclaims every address marked freed before
// cutoffMs. Called by the GC coordinator (C8), not by ordinary mutation.
func (t *Tree) SweepFreed(ctx context.Context, cutoffMs uint64) (int, error) {
	return t.storage.sweepFreed(ctx, cutoffMs)
}

func searchKeys(keys []entry.Key, key entry.Key) (idx int, found bool) {
	idx = sort.Search(len(keys), func(i int) bool { return entry.Compare(keys[i], key) >= 0 })
	if idx < len(keys) && entry.Compare(keys[idx], key) == 0 {
		return idx, true
	}
	return idx, false
}

// childIndexFor returns the index of the child subtree that either
// already contains key or whose max-key separator must be widened to
// cover it (the last child, if key exceeds every separator).
func childIndexFor(keys []entry.Key, key entry.Key) int {
	idx := sort.Search(len(keys), func(i int) bool { return entry.Compare(keys[i], key) >= 0 })
	if idx >= len(keys) {
		return len(keys) - 1
	}
	return idx
}

func insertKeyAt(keys []entry.Key, idx int, k entry.Key) []entry.Key {
	keys = append(keys, entry.Key{})
	copy(keys[idx+1:], keys[idx:])
	keys[idx] = k
	return keys
}

func insertEntryAt(entries []entry.Entry, idx int, e entry.Entry) []entry.Entry {
	entries = append(entries, entry.Entry{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = e
	return entries
}

func insertChildAt(children []NodeRef, idx int, c NodeRef) []NodeRef {
	children = append(children, NodeRef{})
	copy(children[idx+1:], children[idx:])
	children[idx] = c
	return children
}

func removeKeyAt(keys []entry.Key, idx int) []entry.Key {
	out := append([]entry.Key(nil), keys[:idx]...)
	return append(out, keys[idx+1:]...)
}

func removeEntryAt(entries []entry.Entry, idx int) []entry.Entry {
	out := append([]entry.Entry(nil), entries[:idx]...)
	return append(out, entries[idx+1:]...)
}
