// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package gc implements C8, the GC coordinator: reachability over every
// registered backend (augmented by the workspace's held refs), a
// retention-window candidate selection, and a conservative,
// per-system-delegated sweep that never deletes anything a backend
// itself refuses to, followed by the index's own freed-node reclaim.
package gc

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/replikativ/yggdrasil-go/pkg/capability"
	"github.com/replikativ/yggdrasil-go/pkg/entry"
	"github.com/replikativ/yggdrasil-go/pkg/hlc"
	"github.com/replikativ/yggdrasil-go/pkg/registry"
	"github.com/replikativ/yggdrasil-go/pkg/ygl"
)

// DefaultGracePeriod and DefaultFreedGracePeriod are the spec's §4.8
// defaults: a week before an unreachable snapshot becomes a sweep
// candidate, an hour before a freed index node is physically reclaimed.
const (
	DefaultGracePeriod      = 7 * 24 * time.Hour
	DefaultFreedGracePeriod = 1 * time.Hour
)

// Options configures Sweep and Report. Zero-value GracePeriod/
// FreedGracePeriod fall back to the defaults above; a zero Now falls
// back to the current wall clock.
type Options struct {
	GracePeriod      time.Duration
	FreedGracePeriod time.Duration
	DryRun           bool
	Now              time.Time
}

func (o Options) nowMs() uint64 {
	if o.Now.IsZero() {
		return hlc.WallClockMillis()
	}
	return uint64(o.Now.UnixMilli())
}

func (o Options) graceMs() uint64 {
	if o.GracePeriod == 0 {
		return uint64(DefaultGracePeriod.Milliseconds())
	}
	return uint64(o.GracePeriod.Milliseconds())
}

func (o Options) freedGraceMs() uint64 {
	if o.FreedGracePeriod == 0 {
		return uint64(DefaultFreedGracePeriod.Milliseconds())
	}
	return uint64(o.FreedGracePeriod.Milliseconds())
}

// Result is gc_sweep's return value (spec §4.8 step 7).
type Result struct {
	Swept           []entry.Entry
	Errors          map[string]error
	FreedNodesSwept int
	Reachable       map[capability.SnapshotId]struct{}
	Candidates      []entry.Entry
}

// ReportResult is gc_report's return value: steps 1-2 only, no deletion.
type ReportResult struct {
	Reachable    map[capability.SnapshotId]struct{}
	Candidates   []entry.Entry
	BySystem     map[string][]entry.Entry
	TotalEntries int
	GCEligible   int
}

// Sweep runs the full seven-step gc_sweep algorithm over reg, using
// systems and heldRefs to compute reachability, and systems again (by
// system_id) to find the backend to delegate each sweep group to.
func Sweep(ctx context.Context, reg *registry.Registry, systems, heldRefs []capability.Handle, opts Options) (Result, error) {
	reachable, err := computeReachable(ctx, append(append([]capability.Handle{}, systems...), heldRefs...))
	if err != nil {
		return Result{}, err
	}

	all, err := reg.AllEntries(ctx)
	if err != nil {
		return Result{}, err
	}
	cutoff := opts.nowMs() - opts.graceMs()
	candidates := selectCandidates(all, reachable, cutoff)

	if opts.DryRun {
		return Result{
			Swept:      nil,
			Errors:     map[string]error{},
			Reachable:  reachable,
			Candidates: candidates,
		}, nil
	}

	byBackend := indexBySystemID(systems)
	swept := make([]entry.Entry, 0, len(candidates))
	sweepErrors := make(map[string]error)

	for systemID, group := range groupBySystem(candidates) {
		backend, ok := byBackend[systemID]
		if !ok {
			continue
		}
		gcable, ok := backend.(capability.GarbageCollectable)
		if !ok {
			continue
		}
		ids := make([]capability.SnapshotId, len(group))
		for i, e := range group {
			ids[i] = e.SnapshotID
		}
		if _, err := gcable.GCSweep(ctx, ids); err != nil {
			ygl.Warnw("gc sweep failed for system, entries retained", "system_id", systemID, "error", err)
			sweepErrors[systemID] = err
			continue
		}
		for _, e := range group {
			if _, err := reg.Deregister(ctx, entry.KeyOf(e)); err != nil {
				sweepErrors[systemID] = err
				continue
			}
			swept = append(swept, e)
		}
	}

	if err := reg.Flush(ctx); err != nil {
		return Result{}, err
	}

	freedCutoff := opts.nowMs() - opts.freedGraceMs()
	freedCount, err := reg.SweepFreed(ctx, freedCutoff)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Swept:           swept,
		Errors:          sweepErrors,
		FreedNodesSwept: freedCount,
		Reachable:       reachable,
		Candidates:      candidates,
	}, nil
}

// Report performs steps 1-2 of gc_sweep with no deletion.
func Report(ctx context.Context, reg *registry.Registry, systems, heldRefs []capability.Handle, opts Options) (ReportResult, error) {
	reachable, err := computeReachable(ctx, append(append([]capability.Handle{}, systems...), heldRefs...))
	if err != nil {
		return ReportResult{}, err
	}
	all, err := reg.AllEntries(ctx)
	if err != nil {
		return ReportResult{}, err
	}
	cutoff := opts.nowMs() - opts.graceMs()
	candidates := selectCandidates(all, reachable, cutoff)

	return ReportResult{
		Reachable:    reachable,
		Candidates:   candidates,
		BySystem:     groupBySystem(candidates),
		TotalEntries: len(all),
		GCEligible:   len(candidates),
	}, nil
}

// computeReachable implements step 1: gc_roots (or the current snapshot
// id, for a plain Snapshotable) for every handle, plus every branch's
// head and full ancestry for every branchable+graphable handle. Handles
// are processed concurrently (spec §4.8 names this a per-backend
// collection with no ordering dependency between backends).
func computeReachable(ctx context.Context, handles []capability.Handle) (map[capability.SnapshotId]struct{}, error) {
	type contribution struct {
		ids []capability.SnapshotId
	}
	contributions := make([]contribution, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			ids, err := reachableFrom(gctx, h)
			if err != nil {
				return err
			}
			contributions[i] = contribution{ids: ids}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reachable := make(map[capability.SnapshotId]struct{})
	for _, c := range contributions {
		for _, id := range c.ids {
			if id != "" {
				reachable[id] = struct{}{}
			}
		}
	}
	return reachable, nil
}

func reachableFrom(ctx context.Context, h capability.Handle) ([]capability.SnapshotId, error) {
	var ids []capability.SnapshotId

	switch {
	case h.Capabilities().GarbageCollectable:
		gcable := h.(capability.GarbageCollectable)
		roots, err := gcable.GCRoots(ctx)
		if err != nil {
			return nil, err
		}
		ids = append(ids, roots...)
	case h.Capabilities().Snapshotable:
		snap := h.(capability.Snapshotable)
		if id, ok := snap.SnapshotID(); ok {
			ids = append(ids, id)
		}
	}

	branchable, isBranchable := h.(capability.Branchable)
	graphable, isGraphable := h.(capability.Graphable)
	if !isBranchable || !isGraphable {
		return ids, nil
	}

	branches, err := branchable.Branches(ctx)
	if err != nil {
		return nil, err
	}
	for _, branch := range branches {
		checkedOut, err := branchable.Checkout(ctx, branch)
		if err != nil {
			return nil, err
		}
		branchGraph, ok := checkedOut.(capability.Graphable)
		if !ok {
			branchGraph = graphable
		}
		branchSnap, ok := checkedOut.(capability.Snapshotable)
		if !ok {
			branchSnap, _ = h.(capability.Snapshotable)
		}
		if branchSnap == nil {
			continue
		}
		headID, ok := branchSnap.SnapshotID()
		if !ok {
			continue
		}
		ids = append(ids, headID)
		ancestors, err := branchGraph.Ancestors(ctx, headID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, ancestors...)
	}
	return ids, nil
}

// selectCandidates implements step 2: entries whose snapshot id is not
// in reachable and whose HLC precedes the grace-period cutoff.
func selectCandidates(all []entry.Entry, reachable map[capability.SnapshotId]struct{}, cutoffMs uint64) []entry.Entry {
	var out []entry.Entry
	for _, e := range all {
		if _, ok := reachable[e.SnapshotID]; ok {
			continue
		}
		if e.HLC.Physical >= cutoffMs {
			continue
		}
		out = append(out, e)
	}
	return out
}

func groupBySystem(entries []entry.Entry) map[string][]entry.Entry {
	out := make(map[string][]entry.Entry)
	for _, e := range entries {
		out[e.SystemID] = append(out[e.SystemID], e)
	}
	return out
}

func indexBySystemID(handles []capability.Handle) map[string]capability.Handle {
	out := make(map[string]capability.Handle, len(handles))
	for _, h := range handles {
		out[h.SystemID()] = h
	}
	return out
}
