// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package testbackend is an in-memory capability.Handle test double used
// across this module's own tests (workspace, GC, composition helpers).
// It implements every optional capability trait so those tests can
// exercise the full coordination surface without a real backend
// adapter, which is explicitly out of core scope (spec §1 non-goals).
//
// Backend is intentionally not value-semantic the way spec §5 describes
// a real adapter should be: Branch/Checkout/DeleteBranch mutate and
// return the same *Backend rather than an independent copy. A real
// adapter (git worktrees, container filesystems) has to honor that
// contract because its backing state genuinely forks; this test double
// has no such backing state to fork, so the extra indirection would add
// complexity without adding coverage.
package testbackend

import (
	"context"
	"fmt"
	"sync"

	"github.com/replikativ/yggdrasil-go/pkg/capability"
	"github.com/replikativ/yggdrasil-go/pkg/ygerrors"
)

// Backend is the test double.
type Backend struct {
	id      string
	sysType capability.SystemType
	caps    capability.Capabilities

	mu         sync.Mutex
	current    capability.BranchName
	heads      map[capability.BranchName]capability.SnapshotId
	nodes      map[capability.SnapshotId]capability.CommitNode
	commitInfo map[capability.SnapshotId]map[string]any
	watchers   map[capability.WatchID]capability.WatchCallback
	deleted    map[capability.SnapshotId]bool
	nextSnap   int
	nextWatch  int
}

// New constructs an empty Backend on branch "main" with no commits yet.
func New(id string, sysType capability.SystemType, caps capability.Capabilities) *Backend {
	return &Backend{
		id:         id,
		sysType:    sysType,
		caps:       caps,
		current:    "main",
		heads:      make(map[capability.BranchName]capability.SnapshotId),
		nodes:      make(map[capability.SnapshotId]capability.CommitNode),
		commitInfo: make(map[capability.SnapshotId]map[string]any),
		watchers:   make(map[capability.WatchID]capability.WatchCallback),
		deleted:    make(map[capability.SnapshotId]bool),
	}
}

// SystemID implements capability.Handle.
func (b *Backend) SystemID() string { return b.id }

// SystemType implements capability.Handle.
func (b *Backend) SystemType() capability.SystemType { return b.sysType }

// Capabilities implements capability.Handle.
func (b *Backend) Capabilities() capability.Capabilities { return b.caps }

// Commit creates a new snapshot on branch, with the given parents,
// updates the branch head, switches current to branch, and (if
// Watchable is advertised) synchronously notifies every registered
// watcher. It returns the new snapshot id. Tests use this to drive
// backend state directly, standing in for a real backend's native
// commit path.
func (b *Backend) Commit(branch capability.BranchName, parents ...capability.SnapshotId) capability.SnapshotId {
	b.mu.Lock()
	b.nextSnap++
	id := capability.SnapshotId(fmt.Sprintf("%s-snap-%d", b.id, b.nextSnap))
	b.nodes[id] = capability.CommitNode{ParentIDs: append([]capability.SnapshotId(nil), parents...)}
	b.commitInfo[id] = map[string]any{}
	b.heads[branch] = id
	b.current = branch
	watchers := make([]capability.WatchCallback, 0, len(b.watchers))
	for _, cb := range b.watchers {
		watchers = append(watchers, cb)
	}
	b.mu.Unlock()

	for _, cb := range watchers {
		cb(capability.Event{Type: capability.EventCommit, SnapshotID: id, Branch: branch})
	}
	return id
}

// SetCommitTimestampMs records a "timestamp_ms" commit-info field for
// id, exercising the numeric-timestamp path of SyncRegistry.
func (b *Backend) SetCommitTimestampMs(id capability.SnapshotId, ms uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.commitInfo[id] == nil {
		b.commitInfo[id] = map[string]any{}
	}
	b.commitInfo[id]["timestamp_ms"] = ms
}

// --- capability.Snapshotable ---

// SnapshotID implements capability.Snapshotable.
func (b *Backend) SnapshotID() (capability.SnapshotId, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.heads[b.current]
	return id, ok
}

// ParentIDs implements capability.Snapshotable.
func (b *Backend) ParentIDs() []capability.SnapshotId {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.heads[b.current]
	if !ok {
		return nil
	}
	return b.nodes[id].ParentIDs
}

// AsOf implements capability.Snapshotable.
func (b *Backend) AsOf(_ context.Context, id capability.SnapshotId) (capability.ReadView, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.nodes[id]; !ok {
		return nil, false, nil
	}
	return id, true, nil
}

// SnapshotMeta implements capability.Snapshotable.
func (b *Backend) SnapshotMeta(_ context.Context, id capability.SnapshotId) (*capability.SnapshotMeta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	node, ok := b.nodes[id]
	if !ok {
		return nil, ygerrors.NewNotFoundError("unknown snapshot: "+string(id), nil)
	}
	return &capability.SnapshotMeta{SnapshotID: id, ParentIDs: node.ParentIDs}, nil
}

// --- capability.Branchable ---

// Branches implements capability.Branchable.
func (b *Backend) Branches(_ context.Context) ([]capability.BranchName, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]capability.BranchName, 0, len(b.heads))
	for name := range b.heads {
		out = append(out, name)
	}
	return out, nil
}

// CurrentBranch implements capability.Branchable.
func (b *Backend) CurrentBranch() capability.BranchName {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Branch implements capability.Branchable: forks a new named branch
// from "from" (or the current head if nil).
func (b *Backend) Branch(_ context.Context, name capability.BranchName, from *capability.SnapshotId) (capability.Branchable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if from != nil {
		b.heads[name] = *from
	} else {
		b.heads[name] = b.heads[b.current]
	}
	return b, nil
}

// DeleteBranch implements capability.Branchable.
func (b *Backend) DeleteBranch(_ context.Context, name capability.BranchName) (capability.Branchable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.heads, name)
	return b, nil
}

// Checkout implements capability.Branchable.
func (b *Backend) Checkout(_ context.Context, name capability.BranchName) (capability.Branchable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.heads[name]; !ok {
		return nil, ygerrors.NewNotFoundError("unknown branch: "+string(name), nil)
	}
	b.current = name
	return b, nil
}

// --- capability.Graphable ---

// History implements capability.Graphable: current-branch ancestry,
// newest first, self included.
func (b *Backend) History(_ context.Context, opts capability.HistoryOptions) ([]capability.SnapshotId, error) {
	b.mu.Lock()
	head, ok := b.heads[b.current]
	b.mu.Unlock()
	if !ok {
		return nil, nil
	}
	out := b.walkAncestorsInclusive(head)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Ancestors implements capability.Graphable.
func (b *Backend) Ancestors(_ context.Context, snap capability.SnapshotId) ([]capability.SnapshotId, error) {
	all := b.walkAncestorsInclusive(snap)
	if len(all) == 0 {
		return nil, nil
	}
	return all[1:], nil
}

func (b *Backend) walkAncestorsInclusive(start capability.SnapshotId) []capability.SnapshotId {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []capability.SnapshotId
	seen := make(map[capability.SnapshotId]bool)
	queue := []capability.SnapshotId{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == "" || seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		queue = append(queue, b.nodes[cur].ParentIDs...)
	}
	return out
}

// IsAncestor implements capability.Graphable.
func (b *Backend) IsAncestor(_ context.Context, a, target capability.SnapshotId) (bool, error) {
	for _, anc := range b.walkAncestorsInclusive(target) {
		if anc == a {
			return a != target, nil
		}
	}
	return false, nil
}

// CommonAncestor implements capability.Graphable with a conservative
// strategy (SPEC_FULL.md, supplemented feature 4): the
// first ancestor of a (walked nearest-first) that also appears in b's
// ancestor set. If none is found, ok is false rather than guessing.
func (b *Backend) CommonAncestor(_ context.Context, a, other capability.SnapshotId) (capability.SnapshotId, bool, error) {
	bAncestors := make(map[capability.SnapshotId]bool)
	for _, anc := range b.walkAncestorsInclusive(other) {
		bAncestors[anc] = true
	}
	for _, anc := range b.walkAncestorsInclusive(a) {
		if bAncestors[anc] {
			return anc, true, nil
		}
	}
	return "", false, nil
}

// CommitGraph implements capability.Graphable.
func (b *Backend) CommitGraph(_ context.Context) (*capability.CommitGraph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := &capability.CommitGraph{
		Nodes:    make(map[capability.SnapshotId]capability.CommitNode, len(b.nodes)),
		Branches: make(map[capability.BranchName]capability.SnapshotId, len(b.heads)),
		Roots:    make(map[capability.SnapshotId]struct{}),
	}
	for id, n := range b.nodes {
		g.Nodes[id] = n
		if len(n.ParentIDs) == 0 {
			g.Roots[id] = struct{}{}
		}
	}
	for name, id := range b.heads {
		g.Branches[name] = id
	}
	return g, nil
}

// CommitInfo implements capability.Graphable.
func (b *Backend) CommitInfo(_ context.Context, snap capability.SnapshotId) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.commitInfo[snap]
	if !ok {
		return nil, ygerrors.NewNotFoundError("unknown snapshot: "+string(snap), nil)
	}
	return info, nil
}

// --- capability.Watchable ---

// Watch implements capability.Watchable.
func (b *Backend) Watch(_ context.Context, cb capability.WatchCallback, _ capability.WatchOptions) (capability.WatchID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextWatch++
	id := capability.WatchID(fmt.Sprintf("%s-watch-%d", b.id, b.nextWatch))
	b.watchers[id] = cb
	return id, nil
}

// Unwatch implements capability.Watchable.
func (b *Backend) Unwatch(_ context.Context, id capability.WatchID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.watchers, id)
	return nil
}

// --- capability.GarbageCollectable ---

// GCRoots implements capability.GarbageCollectable: every branch head.
func (b *Backend) GCRoots(_ context.Context) ([]capability.SnapshotId, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]capability.SnapshotId, 0, len(b.heads))
	for _, id := range b.heads {
		out = append(out, id)
	}
	return out, nil
}

// GCSweep implements capability.GarbageCollectable: deletes every id not
// currently a branch head, unconditionally (this test double trusts the
// caller's candidate set, unlike a real adapter which would also cross-
// check its own retention policy).
func (b *Backend) GCSweep(_ context.Context, ids []capability.SnapshotId) (capability.GarbageCollectable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	heads := make(map[capability.SnapshotId]bool, len(b.heads))
	for _, id := range b.heads {
		heads[id] = true
	}
	for _, id := range ids {
		if heads[id] {
			continue
		}
		delete(b.nodes, id)
		delete(b.commitInfo, id)
		b.deleted[id] = true
	}
	return b, nil
}

// Deleted reports whether GCSweep has reclaimed id, for test assertions.
func (b *Backend) Deleted(id capability.SnapshotId) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleted[id]
}

// --- capability.Overlayable ---

// Overlay implements capability.Overlayable.
func (b *Backend) Overlay(_ context.Context, mode capability.OverlayMode) (capability.Overlay, error) {
	head, _ := b.SnapshotID()
	return &overlay{backend: b, mode: mode, base: head}, nil
}

type overlay struct {
	backend *Backend
	mode    capability.OverlayMode
	base    capability.SnapshotId
	writes  []string
}

func (o *overlay) Mode() capability.OverlayMode { return o.mode }

func (o *overlay) Advance(_ context.Context) (bool, error) {
	if o.mode != capability.OverlayGated {
		return false, nil
	}
	head, _ := o.backend.SnapshotID()
	o.base = head
	return true, nil
}

func (o *overlay) PeekParent(_ context.Context) (capability.SnapshotId, error) {
	head, _ := o.backend.SnapshotID()
	return head, nil
}

func (o *overlay) BaseRef() capability.SnapshotId { return o.base }

func (o *overlay) OverlayWrites(_ context.Context) ([]string, error) {
	return append([]string(nil), o.writes...), nil
}

func (o *overlay) MergeDown(ctx context.Context) (capability.SnapshotId, error) {
	return o.backend.Commit(o.backend.CurrentBranch(), o.base), nil
}

func (o *overlay) Discard(_ context.Context) error { return nil }
