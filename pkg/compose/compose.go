// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package compose implements C9, the composition helpers: stateless
// functions over Overlayable backends for preparing, committing, and
// discarding a multi-system overlay session. Dependency ordering across
// systems is the caller's responsibility (spec §4.9); these helpers
// only sequence the overlay lifecycle itself.
package compose

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/replikativ/yggdrasil-go/pkg/capability"
)

// PrepareAll calls Overlay(ctx, mode) on every backend concurrently and
// returns the resulting overlays keyed by system id. If any backend
// fails to produce an overlay, every overlay already produced is
// discarded (best effort) before the error is returned, so a partial
// failure never leaks live overlays.
func PrepareAll(ctx context.Context, backends []capability.Overlayable, mode capability.OverlayMode) (map[string]capability.Overlay, error) {
	overlays := make([]capability.Overlay, len(backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		i, b := i, b
		g.Go(func() error {
			ov, err := b.Overlay(gctx, mode)
			if err != nil {
				return err
			}
			overlays[i] = ov
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		DiscardAll(ctx, overlays)
		return nil, err
	}

	out := make(map[string]capability.Overlay, len(backends))
	for i, b := range backends {
		out[b.SystemID()] = overlays[i]
	}
	return out, nil
}

// CommitSeqResult is commit_seq's return value.
type CommitSeqResult struct {
	Committed []capability.SnapshotId
	Failed    int
	Discarded int
	Err       error
}

// CommitSeq merges down each overlay in order. On the first failure, it
// discards every overlay not yet committed (best effort) and stops;
// ordering is entirely the caller's responsibility (spec §4.9) — this
// helper never reorders or parallelizes the sequence.
func CommitSeq(ctx context.Context, overlaysInOrder []capability.Overlay) CommitSeqResult {
	result := CommitSeqResult{Committed: make([]capability.SnapshotId, 0, len(overlaysInOrder))}
	for i, ov := range overlaysInOrder {
		id, err := ov.MergeDown(ctx)
		if err != nil {
			result.Failed = 1
			result.Err = err
			result.Discarded = discardAllQuiet(ctx, overlaysInOrder[i:])
			return result
		}
		result.Committed = append(result.Committed, id)
	}
	return result
}

// DiscardAll best-effort discards every overlay, skipping nils (a
// backend that failed to produce one in PrepareAll).
func DiscardAll(ctx context.Context, overlays []capability.Overlay) {
	discardAllQuiet(ctx, overlays)
}

func discardAllQuiet(ctx context.Context, overlays []capability.Overlay) int {
	n := 0
	for _, ov := range overlays {
		if ov == nil {
			continue
		}
		if err := ov.Discard(ctx); err == nil {
			n++
		}
	}
	return n
}

// SnapshotRefs returns each backend's current snapshot id, for backends
// that are also Snapshotable, keyed by system id. A backend without a
// current snapshot (or not Snapshotable) is simply omitted.
func SnapshotRefs(ctx context.Context, backends []capability.Handle) map[string]capability.SnapshotId {
	out := make(map[string]capability.SnapshotId, len(backends))
	for _, b := range backends {
		snap, ok := b.(capability.Snapshotable)
		if !ok {
			continue
		}
		if id, ok := snap.SnapshotID(); ok {
			out[b.SystemID()] = id
		}
	}
	return out
}
