// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replikativ/yggdrasil-go/pkg/capability"
	"github.com/replikativ/yggdrasil-go/pkg/entry"
	"github.com/replikativ/yggdrasil-go/pkg/hlc"
)

func mustCreate(t *testing.T) *Registry {
	t.Helper()
	r, err := Create(context.Background(), Options{})
	require.NoError(t, err)
	return r
}

func entryAt(systemID string, branch capability.BranchName, physical uint64, snap string) entry.Entry {
	return entry.Entry{
		SnapshotID:  capability.SnapshotId(snap),
		SystemID:    systemID,
		BranchName:  branch,
		HLC:         hlc.HLC{Physical: physical},
		ContentHash: "hash-" + snap,
	}
}

func TestRegisterAndFlushRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustCreate(t)

	require.NoError(t, r.Register(ctx, entryAt("sys-a", "main", 10, "s1")))
	require.NoError(t, r.Register(ctx, entryAt("sys-a", "main", 20, "s2")))
	require.NoError(t, r.Flush(ctx))

	n, err := r.EntryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeregisterRemovesEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustCreate(t)

	e := entryAt("sys-a", "main", 10, "s1")
	require.NoError(t, r.Register(ctx, e))

	removed, err := r.Deregister(ctx, entry.KeyOf(e))
	require.NoError(t, err)
	assert.True(t, removed)

	n, err := r.EntryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAsOfReturnsLatestPerSystemBranchLine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustCreate(t)

	require.NoError(t, r.Register(ctx, entryAt("sys-a", "main", 10, "s1")))
	require.NoError(t, r.Register(ctx, entryAt("sys-a", "main", 20, "s2")))
	require.NoError(t, r.Register(ctx, entryAt("sys-a", "main", 30, "s3")))
	require.NoError(t, r.Register(ctx, entryAt("sys-b", "main", 15, "t1")))

	got, err := r.AsOf(ctx, hlc.HLC{Physical: 25})
	require.NoError(t, err)
	require.Len(t, got, 2)

	bySystem := map[string]entry.Entry{}
	for _, e := range got {
		bySystem[e.SystemID] = e
	}
	assert.Equal(t, capability.SnapshotId("s2"), bySystem["sys-a"].SnapshotID)
	assert.Equal(t, capability.SnapshotId("t1"), bySystem["sys-b"].SnapshotID)
}

func TestEntriesInRangeIsInclusiveBothEnds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustCreate(t)

	for i, snap := range []string{"s1", "s2", "s3", "s4"} {
		require.NoError(t, r.Register(ctx, entryAt("sys-a", "main", uint64(i*10), snap)))
	}

	got, err := r.EntriesInRange(ctx, hlc.HLC{Physical: 10}, hlc.HLC{Physical: 20})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, capability.SnapshotId("s2"), got[0].SnapshotID)
	assert.Equal(t, capability.SnapshotId("s3"), got[1].SnapshotID)
}

func TestEntriesInRangeRejectsInvertedBounds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustCreate(t)

	_, err := r.EntriesInRange(ctx, hlc.HLC{Physical: 20}, hlc.HLC{Physical: 10})
	require.Error(t, err)
}

func TestSystemHistoryNewestFirstWithLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustCreate(t)

	for i, snap := range []string{"s1", "s2", "s3"} {
		require.NoError(t, r.Register(ctx, entryAt("sys-a", "main", uint64(i*10), snap)))
	}
	require.NoError(t, r.Register(ctx, entryAt("sys-b", "main", 5, "other")))

	hist, err := r.SystemHistory(ctx, "sys-a", "main", SystemHistoryOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, capability.SnapshotId("s3"), hist[0].SnapshotID)
	assert.Equal(t, capability.SnapshotId("s2"), hist[1].SnapshotID)
}

func TestSnapshotRefsFindsAllOccurrences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustCreate(t)

	require.NoError(t, r.Register(ctx, entryAt("sys-a", "main", 10, "shared")))
	require.NoError(t, r.Register(ctx, entryAt("sys-a", "feature", 20, "shared")))
	require.NoError(t, r.Register(ctx, entryAt("sys-a", "main", 30, "other")))

	refs, err := r.SnapshotRefs(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

// TestPersistentStoreSurvivesRestart is a reduced-scale stand-in for
// spec §8 scenario S6 (thousands of entries across several systems and
// branches, surviving a process restart): it opens a Badger-backed
// registry, registers entries across three systems and four branches,
// flushes, closes, and reopens at the same StorePath, confirming every
// entry and a specific system/branch's history survive the round trip.
func TestPersistentStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	systems := []string{"sys-a", "sys-b", "sys-c"}
	branches := []capability.BranchName{"main", "dev", "release", "hotfix"}

	r, err := Create(ctx, Options{StorePath: dir})
	require.NoError(t, err)

	const perLine = 20
	total := 0
	for _, sys := range systems {
		for _, br := range branches {
			for i := 0; i < perLine; i++ {
				snap := sys + "-" + string(br) + "-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
				require.NoError(t, r.Register(ctx, entryAt(sys, br, uint64(1000+i), snap)))
				total++
			}
		}
	}
	require.NoError(t, r.Flush(ctx))
	require.NoError(t, r.Close(ctx))

	reopened, err := Create(ctx, Options{StorePath: dir})
	require.NoError(t, err)
	defer reopened.Close(ctx)

	n, err := reopened.EntryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, n)

	hist, err := reopened.SystemHistory(ctx, "sys-b", "release", SystemHistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, hist, perLine)
}

func TestFlushIsNoOpWhenNothingDirty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustCreate(t)
	require.NoError(t, r.Flush(ctx))
	require.NoError(t, r.Flush(ctx))
}
