// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace implements C5, the Workspace: the coordination
// layer's top-level object, owning the shared HLC, the registered
// backends, the snapshot registry, held refs, a connection cache, and
// installed commit hooks, and driving coordinated multi-system commits.
package workspace

import (
	"context"
	"strings"
	"sync"

	"github.com/replikativ/yggdrasil-go/pkg/capability"
	"github.com/replikativ/yggdrasil-go/pkg/entry"
	"github.com/replikativ/yggdrasil-go/pkg/gc"
	"github.com/replikativ/yggdrasil-go/pkg/hlc"
	"github.com/replikativ/yggdrasil-go/pkg/hooks"
	"github.com/replikativ/yggdrasil-go/pkg/registry"
	"github.com/replikativ/yggdrasil-go/pkg/ygerrors"
	"github.com/replikativ/yggdrasil-go/pkg/ygl"
)

// Workspace is C5's state (spec §3, §4.5). Each map is guarded by its
// own mutex (spec §5 "shared-resource policy"); the HLC is guarded
// internally by hlc.Clock.
type Workspace struct {
	clock    *hlc.Clock
	registry *registry.Registry

	systemsMu sync.RWMutex
	systems   map[string]capability.Handle

	refsMu sync.RWMutex
	refs   map[string]capability.Handle

	connCacheMu sync.RWMutex
	connCache   map[string]any

	hooksMu sync.Mutex
	hooks   map[string]hooks.HookID
}

// Options configures Create, passed through to registry.Create.
type Options struct {
	StorePath       string
	BranchingFactor int
}

// Create opens the registry (persistent if StorePath is set) and
// initializes the shared HLC to hlc.Now.
func Create(ctx context.Context, opts Options) (*Workspace, error) {
	reg, err := registry.Create(ctx, registry.Options{
		StorePath:       opts.StorePath,
		BranchingFactor: opts.BranchingFactor,
	})
	if err != nil {
		return nil, err
	}
	w := &Workspace{
		clock:     &hlc.Clock{},
		registry:  reg,
		systems:   make(map[string]capability.Handle),
		refs:      make(map[string]capability.Handle),
		connCache: make(map[string]any),
		hooks:     make(map[string]hooks.HookID),
	}
	// A zero-value Clock's first Tick always yields (WallClockMillis(), 0),
	// i.e. exactly hlc.Now() — this seeds the shared clock per spec §4.5.
	w.clock.Tick()
	return w, nil
}

// Registry exposes the underlying snapshot registry for direct queries
// (as_of, entries_in_range, system_history, snapshot_refs, all_entries).
func (w *Workspace) Registry() *registry.Registry { return w.registry }

func currentBranchOf(backend capability.Handle) capability.BranchName {
	if b, ok := backend.(capability.Branchable); ok {
		return b.CurrentBranch()
	}
	return ""
}

// AddSystem registers backend. If it is Snapshotable and currently has a
// snapshot, an entry for that current state is registered, stamped with
// a fresh workspace HLC.
func (w *Workspace) AddSystem(ctx context.Context, backend capability.Handle) error {
	w.systemsMu.Lock()
	w.systems[backend.SystemID()] = backend
	w.systemsMu.Unlock()

	snap, ok := backend.(capability.Snapshotable)
	if !ok {
		return nil
	}
	snapID, ok := snap.SnapshotID()
	if !ok {
		return nil
	}
	e := entry.Entry{
		SnapshotID: snapID,
		SystemID:   backend.SystemID(),
		BranchName: currentBranchOf(backend),
		HLC:        w.clock.Tick(),
		ParentIDs:  snap.ParentIDs(),
	}
	return w.registry.Register(ctx, e)
}

// Manage calls AddSystem, then installs a commit hook that ticks the
// workspace HLC and registers every observed commit. The hook id (if
// any) is recorded so Unmanage and Close can remove it.
func (w *Workspace) Manage(ctx context.Context, backend capability.Handle) (hooks.HookID, bool, error) {
	if err := w.AddSystem(ctx, backend); err != nil {
		return "", false, err
	}

	onCommit := func(ev capability.Event) {
		h := w.clock.Tick()
		e := entry.Entry{
			SnapshotID: ev.SnapshotID,
			SystemID:   backend.SystemID(),
			BranchName: ev.Branch,
			HLC:        h,
			Metadata:   map[string]any{"source": "hook"},
		}
		if err := w.registry.Register(context.Background(), e); err != nil {
			ygl.Warnw("failed to register hook-observed commit", "system_id", backend.SystemID(), "error", err)
		}
	}

	id, ok, err := hooks.Install(ctx, backend, onCommit)
	if err != nil {
		return "", false, err
	}
	if ok {
		w.hooksMu.Lock()
		w.hooks[backend.SystemID()] = id
		w.hooksMu.Unlock()
	}
	return id, ok, nil
}

// Unmanage removes any installed hook (best effort), drops the system,
// and evicts every conn_cache entry keyed under it.
func (w *Workspace) Unmanage(ctx context.Context, systemID string) error {
	w.hooksMu.Lock()
	id, hasHook := w.hooks[systemID]
	delete(w.hooks, systemID)
	w.hooksMu.Unlock()

	if hasHook {
		w.systemsMu.RLock()
		backend, ok := w.systems[systemID]
		w.systemsMu.RUnlock()
		if ok {
			if err := hooks.Remove(ctx, backend, id); err != nil {
				ygl.Warnw("best-effort hook removal failed", "system_id", systemID, "error", err)
			}
		}
	}

	w.systemsMu.Lock()
	delete(w.systems, systemID)
	w.systemsMu.Unlock()

	w.connCacheMu.Lock()
	prefix := systemID + "/"
	for k := range w.connCache {
		if strings.HasPrefix(k, prefix) {
			delete(w.connCache, k)
		}
	}
	w.connCacheMu.Unlock()
	return nil
}

// Tick advances and returns the shared workspace HLC.
func (w *Workspace) Tick() hlc.HLC { return w.clock.Tick() }

// CurrentHLC returns the last-issued HLC without advancing it.
func (w *Workspace) CurrentHLC() hlc.HLC { return w.clock.Current() }

// ReceiveHLC merges a remote HLC into the shared clock.
func (w *Workspace) ReceiveHLC(remote hlc.HLC) hlc.HLC { return w.clock.Receive(remote) }

// BeginTransaction pins an HLC for a coordinated transaction.
func (w *Workspace) BeginTransaction() hlc.HLC { return w.Tick() }

// CommitFunc performs a backend-native commit and returns its new
// snapshot id.
type CommitFunc func(backend capability.Handle) (capability.SnapshotId, error)

// CommitWithHLC looks up systemID, invokes commitFn, and registers the
// resulting RegistryEntry stamped with pinned.
func (w *Workspace) CommitWithHLC(ctx context.Context, systemID string, pinned hlc.HLC, commitFn CommitFunc) (entry.Entry, error) {
	w.systemsMu.RLock()
	backend, ok := w.systems[systemID]
	w.systemsMu.RUnlock()
	if !ok {
		return entry.Entry{}, ygerrors.NewNotFoundError("unknown system: "+systemID, nil)
	}

	var parentIDs []capability.SnapshotId
	if snap, ok := backend.(capability.Snapshotable); ok {
		parentIDs = snap.ParentIDs()
	}
	branch := currentBranchOf(backend)

	snapID, err := commitFn(backend)
	if err != nil {
		return entry.Entry{}, ygerrors.NewBackendFaultError("commit failed for system "+systemID, err)
	}
	e := entry.Entry{
		SnapshotID: snapID,
		SystemID:   systemID,
		BranchName: branch,
		HLC:        pinned,
		ParentIDs:  parentIDs,
	}
	if err := w.registry.Register(ctx, e); err != nil {
		return entry.Entry{}, err
	}
	return e, nil
}

// CoordinatedCommitResult is coordinated_commit's return value (spec
// §4.5): per-system successes, per-system failures, and the single HLC
// pinned across the whole transaction.
type CoordinatedCommitResult struct {
	Results map[string]entry.Entry
	Errors  map[string]error
	HLC     hlc.HLC
}

// CoordinatedCommit pins one HLC, then attempts commitFns[system_id] for
// every system. A failure is captured per system in Errors; it never
// rolls back prior successes, and it never stops later attempts.
func (w *Workspace) CoordinatedCommit(ctx context.Context, commitFns map[string]CommitFunc) CoordinatedCommitResult {
	pinned := w.BeginTransaction()
	result := CoordinatedCommitResult{
		Results: make(map[string]entry.Entry, len(commitFns)),
		Errors:  make(map[string]error),
		HLC:     pinned,
	}
	for systemID, fn := range commitFns {
		e, err := w.CommitWithHLC(ctx, systemID, pinned, fn)
		if err != nil {
			result.Errors[systemID] = err
			continue
		}
		result.Results[systemID] = e
	}
	return result
}

// HoldRef pins backend under refKey: stored in refs and conn_cache, and
// registered as a held RegistryEntry. GC (C8) treats the held handle
// itself (via HeldRefs) as a root; it does not read the entry's metadata.
func (w *Workspace) HoldRef(ctx context.Context, refKey string, backend capability.Handle) error {
	w.refsMu.Lock()
	w.refs[refKey] = backend
	w.refsMu.Unlock()
	w.connCacheMu.Lock()
	w.connCache[refKey] = backend
	w.connCacheMu.Unlock()

	var snapID capability.SnapshotId
	if snap, ok := backend.(capability.Snapshotable); ok {
		snapID, _ = snap.SnapshotID()
	}
	e := entry.Entry{
		SnapshotID: snapID,
		SystemID:   backend.SystemID(),
		BranchName: currentBranchOf(backend),
		HLC:        w.Tick(),
		Metadata:   map[string]any{"held": true, "ref_key": refKey},
	}
	return w.registry.Register(ctx, e)
}

// ReleaseRef drops refKey. GC eligibility resumes after the standard
// grace period; ReleaseRef itself does not force an immediate sweep.
func (w *Workspace) ReleaseRef(refKey string) {
	w.refsMu.Lock()
	delete(w.refs, refKey)
	w.refsMu.Unlock()
	w.connCacheMu.Lock()
	delete(w.connCache, refKey)
	w.connCacheMu.Unlock()
}

// HeldRefs returns every currently-held backend, for GC (C8) to fold
// into its reachable set.
func (w *Workspace) HeldRefs() []capability.Handle {
	w.refsMu.RLock()
	defer w.refsMu.RUnlock()
	out := make([]capability.Handle, 0, len(w.refs))
	for _, b := range w.refs {
		out = append(out, b)
	}
	return out
}

// Systems returns every currently-registered backend, for GC (C8) and
// composition helpers (C9) to iterate.
func (w *Workspace) Systems() []capability.Handle {
	w.systemsMu.RLock()
	defer w.systemsMu.RUnlock()
	out := make([]capability.Handle, 0, len(w.systems))
	for _, b := range w.systems {
		out = append(out, b)
	}
	return out
}

// WorldKey identifies one (system_id, branch_name) line in an
// as_of_world result.
type WorldKey struct {
	SystemID   string
	BranchName capability.BranchName
}

// AsOfWorld delegates to the registry: the latest entry at or before h
// for every (system_id, branch_name) line.
func (w *Workspace) AsOfWorld(ctx context.Context, h hlc.HLC) (map[WorldKey]entry.Entry, error) {
	entries, err := w.registry.AsOf(ctx, h)
	if err != nil {
		return nil, err
	}
	out := make(map[WorldKey]entry.Entry, len(entries))
	for _, e := range entries {
		out[WorldKey{SystemID: e.SystemID, BranchName: e.BranchName}] = e
	}
	return out, nil
}

// AsOfTime is AsOfWorld(hlc.Ceiling(ms)).
func (w *Workspace) AsOfTime(ctx context.Context, ms uint64) (map[WorldKey]entry.Entry, error) {
	return w.AsOfWorld(ctx, hlc.Ceiling(ms))
}

// SyncRegistry walks every branch of a branchable+graphable backend's
// history and registers any (system_id, branch_name, snapshot_id) not
// already present. A synced entry's HLC uses the backend's reported
// commit timestamp when available, else a fresh workspace tick (spec
// §4.5; resolved as an open question in SPEC_FULL.md).
func (w *Workspace) SyncRegistry(ctx context.Context, systemID string) error {
	w.systemsMu.RLock()
	backend, ok := w.systems[systemID]
	w.systemsMu.RUnlock()
	if !ok {
		return ygerrors.NewNotFoundError("unknown system: "+systemID, nil)
	}
	branchable, ok := backend.(capability.Branchable)
	if !ok {
		return ygerrors.NewCapabilityMissingError(systemID+" is not branchable", nil)
	}
	graphable, ok := backend.(capability.Graphable)
	if !ok {
		return ygerrors.NewCapabilityMissingError(systemID+" is not graphable", nil)
	}

	existing, err := w.existingKeysFor(ctx, systemID)
	if err != nil {
		return err
	}

	branches, err := branchable.Branches(ctx)
	if err != nil {
		return ygerrors.NewBackendFaultError("failed to list branches for "+systemID, err)
	}

	for _, branch := range branches {
		checkedOut, err := branchable.Checkout(ctx, branch)
		if err != nil {
			return ygerrors.NewBackendFaultError("failed to checkout branch "+string(branch)+" on "+systemID, err)
		}
		branchGraph, ok := checkedOut.(capability.Graphable)
		if !ok {
			branchGraph = graphable
		}

		history, err := branchGraph.History(ctx, capability.HistoryOptions{})
		if err != nil {
			return ygerrors.NewBackendFaultError("failed to read history for branch "+string(branch)+" on "+systemID, err)
		}
		for _, snapID := range history {
			key := syncKey{branch: branch, snapshotID: snapID}
			if existing[key] {
				continue
			}
			h, err := w.syncedHLC(ctx, branchGraph, snapID)
			if err != nil {
				return err
			}
			e := entry.Entry{
				SnapshotID: snapID,
				SystemID:   systemID,
				BranchName: branch,
				HLC:        h,
				Metadata:   map[string]any{"synced": true},
			}
			if err := w.registry.Register(ctx, e); err != nil {
				return err
			}
			existing[key] = true
		}
	}
	return nil
}

type syncKey struct {
	branch     capability.BranchName
	snapshotID capability.SnapshotId
}

func (w *Workspace) existingKeysFor(ctx context.Context, systemID string) (map[syncKey]bool, error) {
	all, err := w.registry.AllEntries(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[syncKey]bool)
	for _, e := range all {
		if e.SystemID != systemID {
			continue
		}
		out[syncKey{branch: e.BranchName, snapshotID: e.SnapshotID}] = true
	}
	return out, nil
}

func (w *Workspace) syncedHLC(ctx context.Context, graph capability.Graphable, snapID capability.SnapshotId) (hlc.HLC, error) {
	info, err := graph.CommitInfo(ctx, snapID)
	if err != nil {
		return hlc.HLC{}, ygerrors.NewBackendFaultError("failed to read commit info for "+string(snapID), err)
	}
	if ms, ok := timestampMsFrom(info); ok {
		return hlc.HLC{Physical: ms, Logical: 0}, nil
	}
	return w.Tick(), nil
}

// timestampMsFrom extracts a numeric "timestamp_ms" field from backend
// commit metadata, accepting any of Go's common numeric unmarshal types.
func timestampMsFrom(info map[string]any) (uint64, bool) {
	v, ok := info["timestamp_ms"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

// GCSweep runs C8's gc_sweep over this workspace's registry, current
// systems, and held refs (spec §4.8's cross-system-safety augmentation).
func (w *Workspace) GCSweep(ctx context.Context, opts gc.Options) (gc.Result, error) {
	return gc.Sweep(ctx, w.registry, w.Systems(), w.HeldRefs(), opts)
}

// GCReport runs C8's gc_report (steps 1-2, no deletion) over this
// workspace's registry, current systems, and held refs.
func (w *Workspace) GCReport(ctx context.Context, opts gc.Options) (gc.ReportResult, error) {
	return gc.Report(ctx, w.registry, w.Systems(), w.HeldRefs(), opts)
}

// Close removes every installed hook (best effort), then flushes and
// closes the registry.
func (w *Workspace) Close(ctx context.Context) error {
	w.hooksMu.Lock()
	hooksCopy := make(map[string]hooks.HookID, len(w.hooks))
	for k, v := range w.hooks {
		hooksCopy[k] = v
	}
	w.hooks = make(map[string]hooks.HookID)
	w.hooksMu.Unlock()

	w.systemsMu.RLock()
	for systemID, id := range hooksCopy {
		backend, ok := w.systems[systemID]
		if !ok {
			continue
		}
		if err := hooks.Remove(ctx, backend, id); err != nil {
			ygl.Warnw("best-effort hook removal failed during close", "system_id", systemID, "error", err)
		}
	}
	w.systemsMu.RUnlock()

	return w.registry.Close(ctx)
}
