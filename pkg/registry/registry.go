// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements C4, the snapshot registry: the durable,
// queryable projection of every RegistryEntry a Workspace has recorded,
// built on top of C3's durable sorted-set index (pkg/index).
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/replikativ/yggdrasil-go/pkg/capability"
	"github.com/replikativ/yggdrasil-go/pkg/entry"
	"github.com/replikativ/yggdrasil-go/pkg/hlc"
	"github.com/replikativ/yggdrasil-go/pkg/index"
	"github.com/replikativ/yggdrasil-go/pkg/kvstore"
	"github.com/replikativ/yggdrasil-go/pkg/ygerrors"
)

// Registry is C4: register/deregister entries, flush them durably, and
// answer temporal and system-history queries over them.
//
// Registry tracks its own dirty flag independent of the index's: a
// register/deregister that never reaches Flush leaves both the index
// and the registry's view of "has unflushed work" consistent, and a
// Flush that finds nothing dirty is a guaranteed no-op round trip.
type Registry struct {
	tree *index.Tree

	mu    sync.RWMutex
	dirty bool
}

// Options configures Create.
type Options struct {
	// StorePath, if non-empty, opens a persistent Badger store at this
	// directory. Empty means pure in-memory (spec §4.4 "without a path").
	StorePath string
	// Store, if non-nil, is used directly instead of StorePath. Exists so
	// callers (and tests) can supply any kvstore.Store implementation.
	Store kvstore.Store
	// BranchingFactor overrides index.DefaultBranchingFactor.
	BranchingFactor int
}

// Create opens or initializes a Registry per opts.
func Create(ctx context.Context, opts Options) (*Registry, error) {
	store := opts.Store
	if store == nil {
		if opts.StorePath == "" {
			store = kvstore.NewMemory()
		} else {
			b, err := kvstore.OpenBadger(opts.StorePath)
			if err != nil {
				return nil, err
			}
			store = b
		}
	}

	var indexOpts []index.Option
	if opts.BranchingFactor > 0 {
		indexOpts = append(indexOpts, index.WithBranchingFactor(opts.BranchingFactor))
	}
	tree, err := index.Open(ctx, store, indexOpts...)
	if err != nil {
		return nil, err
	}
	return &Registry{tree: tree}, nil
}

// Register upserts one entry, keyed by (hlc, system_id, branch_name,
// snapshot_id). Registering under an existing key replaces it.
func (r *Registry) Register(ctx context.Context, e entry.Entry) error {
	if err := r.tree.Insert(ctx, e); err != nil {
		return err
	}
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
	return nil
}

// RegisterBatch registers every entry in es. Earlier failures do not
// prevent later entries in the batch from being attempted; the first
// error encountered is returned after the whole batch has been tried.
func (r *Registry) RegisterBatch(ctx context.Context, es []entry.Entry) error {
	var firstErr error
	for _, e := range es {
		if err := r.Register(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Deregister removes the entry under key, if present, reporting whether
// anything was removed.
func (r *Registry) Deregister(ctx context.Context, key entry.Key) (bool, error) {
	removed, err := r.tree.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	if removed {
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
	}
	return removed, nil
}

// Flush durably persists every pending register/deregister. It is a
// no-op if nothing is dirty since the last Flush.
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.Lock()
	dirty := r.dirty
	r.mu.Unlock()
	if !dirty {
		return nil
	}
	if err := r.tree.Flush(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.dirty = false
	r.mu.Unlock()
	return nil
}

// Close flushes any pending work and releases the backing store.
func (r *Registry) Close(ctx context.Context) error {
	if err := r.Flush(ctx); err != nil {
		return err
	}
	return r.tree.Close()
}

// AllEntries returns every registered entry in ascending key order.
func (r *Registry) AllEntries(ctx context.Context) ([]entry.Entry, error) {
	return r.tree.AllEntries(ctx)
}

// EntryCount returns the number of registered entries.
func (r *Registry) EntryCount(ctx context.Context) (int, error) {
	return r.tree.Len(ctx)
}

// SweepFreed physically reclaims index nodes superseded before cutoffMs
// (spec §4.8 step 6, "freed-node grace period"). It is a thin
// passthrough to the underlying index's own freed-node ledger; GC (C8)
// calls this only after deregistering the entries that made those
// nodes unreachable and flushing the result.
func (r *Registry) SweepFreed(ctx context.Context, cutoffMs uint64) (int, error) {
	return r.tree.SweepFreed(ctx, cutoffMs)
}

// AsOf returns, for each (system_id, branch_name) pair observed at or
// before h, the single latest entry not after h (spec §4.4 "as_of").
func (r *Registry) AsOf(ctx context.Context, h hlc.HLC) ([]entry.Entry, error) {
	all, err := r.tree.AllEntries(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := entry.MaxKey(h)
	latest := make(map[string]entry.Entry)
	for _, e := range all {
		k := entry.KeyOf(e)
		if entry.Compare(k, cutoff) > 0 {
			continue
		}
		lineKey := e.SystemID + "\x00" + string(e.BranchName)
		cur, ok := latest[lineKey]
		if !ok || entry.Compare(entry.KeyOf(cur), k) < 0 {
			latest[lineKey] = e
		}
	}
	out := make([]entry.Entry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sortEntriesByKey(out)
	return out, nil
}

// EntriesInRange returns every entry whose HLC falls in [lo, hi]
// (inclusive on both ends), in ascending key order.
func (r *Registry) EntriesInRange(ctx context.Context, lo, hi hlc.HLC) ([]entry.Entry, error) {
	if hlc.Less(hi, lo) {
		return nil, ygerrors.NewInvariantViolationError("entries_in_range: hi precedes lo", nil)
	}
	all, err := r.tree.AllEntries(ctx)
	if err != nil {
		return nil, err
	}
	loKey := entry.Key{Physical: lo.Physical, Logical: lo.Logical}
	hiKey := entry.MaxKey(hi)
	var out []entry.Entry
	for _, e := range all {
		k := entry.KeyOf(e)
		if entry.Compare(k, loKey) >= 0 && entry.Compare(k, hiKey) <= 0 {
			out = append(out, e)
		}
	}
	sortEntriesByKey(out)
	return out, nil
}

// SystemHistoryOptions bounds a SystemHistory query.
type SystemHistoryOptions struct {
	Limit int
	Since *hlc.HLC
}

// SystemHistory returns entries for one (system_id, branch_name) line,
// newest first, optionally bounded by Since and Limit.
func (r *Registry) SystemHistory(ctx context.Context, systemID string, branch capability.BranchName, opts SystemHistoryOptions) ([]entry.Entry, error) {
	all, err := r.tree.AllEntries(ctx)
	if err != nil {
		return nil, err
	}
	var matching []entry.Entry
	for _, e := range all {
		if e.SystemID != systemID || e.BranchName != branch {
			continue
		}
		if opts.Since != nil && hlc.Less(e.HLC, *opts.Since) {
			continue
		}
		matching = append(matching, e)
	}
	sortEntriesByKey(matching)
	reverse(matching)
	if opts.Limit > 0 && len(matching) > opts.Limit {
		matching = matching[:opts.Limit]
	}
	return matching, nil
}

// SnapshotRefs returns every entry recorded under snapshotID, across all
// systems and branches (a snapshot id may appear more than once if it
// was re-registered, e.g. after a branch rename).
func (r *Registry) SnapshotRefs(ctx context.Context, snapshotID capability.SnapshotId) ([]entry.Entry, error) {
	all, err := r.tree.AllEntries(ctx)
	if err != nil {
		return nil, err
	}
	var out []entry.Entry
	for _, e := range all {
		if e.SnapshotID == snapshotID {
			out = append(out, e)
		}
	}
	return out, nil
}

func sortEntriesByKey(es []entry.Entry) {
	sort.Slice(es, func(i, j int) bool {
		return entry.Compare(entry.KeyOf(es[i]), entry.KeyOf(es[j])) < 0
	})
}

func reverse(es []entry.Entry) {
	for i, j := 0, len(es)-1; i < j; i, j = i+1, j-1 {
		es[i], es[j] = es[j], es[i]
	}
}
