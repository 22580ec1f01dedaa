// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package gc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replikativ/yggdrasil-go/internal/testbackend"
	"github.com/replikativ/yggdrasil-go/pkg/capability"
	"github.com/replikativ/yggdrasil-go/pkg/entry"
	"github.com/replikativ/yggdrasil-go/pkg/hlc"
	"github.com/replikativ/yggdrasil-go/pkg/registry"
)

func mustRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.Create(context.Background(), registry.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func fullCaps() capability.Capabilities {
	return capability.Capabilities{
		Snapshotable:       true,
		Branchable:         true,
		Graphable:          true,
		GarbageCollectable: true,
	}
}

const dayMs = uint64(24 * time.Hour / time.Millisecond)

func TestSweepReclaimsUnreachableEntryPastGracePeriod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustRegistry(t)

	b := testbackend.New("sys-a", capability.SystemGit, fullCaps())
	s0 := b.Commit("main")
	s1 := b.Commit("main", s0)

	oldHLC := hlc.HLC{Physical: 1_000_000_000_000, Logical: 0}
	require.NoError(t, r.Register(ctx, entry.Entry{SnapshotID: s0, SystemID: "sys-a", BranchName: "main", HLC: oldHLC}))
	require.NoError(t, r.Register(ctx, entry.Entry{SnapshotID: s1, SystemID: "sys-a", BranchName: "main", HLC: oldHLC}))
	require.NoError(t, r.Flush(ctx))

	// s1 is the current head (reachable); s0 is its ancestor, also
	// reachable via Ancestors(). Register an orphan snapshot id the
	// backend's graph doesn't know, reachable through nothing but its
	// stale registry entry.
	orphan := capability.SnapshotId("sys-a-orphan")
	require.NoError(t, r.Register(ctx, entry.Entry{SnapshotID: orphan, SystemID: "sys-a", BranchName: "main", HLC: oldHLC}))
	require.NoError(t, r.Flush(ctx))

	now := time.UnixMilli(int64(oldHLC.Physical) + int64(8*dayMs))
	result, err := Sweep(ctx, r, []capability.Handle{b}, nil, Options{Now: now})
	require.NoError(t, err)

	require.Empty(t, result.Errors)
	var sweptOrphan bool
	for _, e := range result.Swept {
		if e.SnapshotID == orphan {
			sweptOrphan = true
		}
	}
	assert.True(t, sweptOrphan, "unreachable snapshot past grace period must be swept")
	assert.True(t, b.Deleted(orphan))

	remaining, err := r.AllEntries(ctx)
	require.NoError(t, err)
	for _, e := range remaining {
		assert.NotEqual(t, orphan, e.SnapshotID)
	}
}

func TestSweepIsConservativeOnBackendFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustRegistry(t)

	b := testbackend.New("sys-a", capability.SystemGit, capability.Capabilities{Snapshotable: true, GarbageCollectable: true})
	s0 := b.Commit("main")
	s1 := b.Commit("main", s0)
	s2 := b.Commit("main", s1)

	oldHLC := hlc.HLC{Physical: 1_000_000_000_000, Logical: 0}
	for _, s := range []capability.SnapshotId{s0, s1, s2} {
		require.NoError(t, r.Register(ctx, entry.Entry{SnapshotID: s, SystemID: "sys-a", BranchName: "main", HLC: oldHLC}))
	}
	require.NoError(t, r.Flush(ctx))

	// Deliberately not Branchable/Graphable: step 1's reachability
	// contribution for this backend is gc_roots() alone (the current
	// head, s2), matching spec §8 scenario S4 — s0 and s1 become
	// candidates even though they're s2's own ancestors, because this
	// backend never advertised a way to walk ancestry.
	failing := &minimalGCBackend{inner: b, sweepErr: assertFailure{}}
	now := time.UnixMilli(int64(oldHLC.Physical) + int64(8*dayMs))
	result, err := Sweep(ctx, r, []capability.Handle{failing}, nil, Options{Now: now})
	require.NoError(t, err)

	require.Contains(t, result.Errors, "sys-a")
	remaining, err := r.AllEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 3, "registry must still hold every entry when the backend's sweep fails")
}

// minimalGCBackend exposes only Snapshotable+GarbageCollectable over an
// underlying testbackend.Backend, without forwarding Branchable or
// Graphable — standing in for a backend that never advertises ancestry
// walks, so step 1's reachability contribution is gc_roots() alone.
type minimalGCBackend struct {
	inner    *testbackend.Backend
	sweepErr error
}

func (m *minimalGCBackend) SystemID() string                     { return m.inner.SystemID() }
func (m *minimalGCBackend) SystemType() capability.SystemType     { return m.inner.SystemType() }
func (m *minimalGCBackend) Capabilities() capability.Capabilities {
	return capability.Capabilities{Snapshotable: true, GarbageCollectable: true}
}
func (m *minimalGCBackend) SnapshotID() (capability.SnapshotId, bool) { return m.inner.SnapshotID() }
func (m *minimalGCBackend) ParentIDs() []capability.SnapshotId        { return m.inner.ParentIDs() }
func (m *minimalGCBackend) AsOf(ctx context.Context, id capability.SnapshotId) (capability.ReadView, bool, error) {
	return m.inner.AsOf(ctx, id)
}
func (m *minimalGCBackend) SnapshotMeta(ctx context.Context, id capability.SnapshotId) (*capability.SnapshotMeta, error) {
	return m.inner.SnapshotMeta(ctx, id)
}
func (m *minimalGCBackend) GCRoots(ctx context.Context) ([]capability.SnapshotId, error) {
	return m.inner.GCRoots(ctx)
}
func (m *minimalGCBackend) GCSweep(ctx context.Context, ids []capability.SnapshotId) (capability.GarbageCollectable, error) {
	if m.sweepErr != nil {
		return nil, m.sweepErr
	}
	return m.inner.GCSweep(ctx, ids)
}

type assertFailure struct{}

func (assertFailure) Error() string { return "synthetic backend gc failure" }

func TestSweepHonorsHeldRefsAsRoots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustRegistry(t)

	inner := testbackend.New("sys-x", capability.SystemGit, capability.Capabilities{Snapshotable: true, GarbageCollectable: true})
	sx := inner.Commit("main")
	// Diverge so sys-x's own gc_roots() (current head) no longer includes
	// sx, matching spec §8 scenario S5. Not Branchable/Graphable, so the
	// only path back to sx is the held ref's own contribution.
	inner.Commit("main", sx)
	b := &minimalGCBackend{inner: inner}

	oldHLC := hlc.HLC{Physical: 1_000_000_000_000, Logical: 0}
	require.NoError(t, r.Register(ctx, entry.Entry{SnapshotID: sx, SystemID: "sys-x", BranchName: "main", HLC: oldHLC, Metadata: map[string]any{"held": true}}))
	require.NoError(t, r.Flush(ctx))

	// Held ref contributes a handle pinned at sx: the handle a workspace
	// captured at hold_ref time, frozen at the snapshot then current.
	pinned := &pinnedSnapshotBackend{id: "sys-x", snapshot: sx}

	now := time.UnixMilli(int64(oldHLC.Physical) + int64(8*dayMs))
	result, err := Sweep(ctx, r, []capability.Handle{b}, []capability.Handle{pinned}, Options{Now: now})
	require.NoError(t, err)

	require.Empty(t, result.Errors)
	_, stillReachable := result.Reachable[sx]
	assert.True(t, stillReachable, "a held ref's pinned snapshot must contribute to reachable")
	assert.False(t, inner.Deleted(sx), "sx must not be swept while a held ref pins it")
}

// pinnedSnapshotBackend is a minimal Snapshotable-only handle standing
// in for "the handle a workspace captured at hold_ref time," reporting
// a single fixed snapshot id regardless of what its backend does later.
type pinnedSnapshotBackend struct {
	id       string
	snapshot capability.SnapshotId
}

func (p *pinnedSnapshotBackend) SystemID() string                 { return p.id }
func (p *pinnedSnapshotBackend) SystemType() capability.SystemType { return capability.SystemGit }
func (p *pinnedSnapshotBackend) Capabilities() capability.Capabilities {
	return capability.Capabilities{Snapshotable: true}
}
func (p *pinnedSnapshotBackend) SnapshotID() (capability.SnapshotId, bool) { return p.snapshot, true }
func (p *pinnedSnapshotBackend) ParentIDs() []capability.SnapshotId        { return nil }
func (p *pinnedSnapshotBackend) AsOf(context.Context, capability.SnapshotId) (capability.ReadView, bool, error) {
	return nil, false, nil
}
func (p *pinnedSnapshotBackend) SnapshotMeta(context.Context, capability.SnapshotId) (*capability.SnapshotMeta, error) {
	return nil, nil
}

func TestDryRunComputesCandidatesWithoutDeleting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustRegistry(t)

	b := testbackend.New("sys-a", capability.SystemGit, fullCaps())
	orphan := capability.SnapshotId("orphan-1")
	oldHLC := hlc.HLC{Physical: 1_000_000_000_000, Logical: 0}
	require.NoError(t, r.Register(ctx, entry.Entry{SnapshotID: orphan, SystemID: "sys-a", BranchName: "main", HLC: oldHLC}))
	require.NoError(t, r.Flush(ctx))

	now := time.UnixMilli(int64(oldHLC.Physical) + int64(8*dayMs))
	result, err := Sweep(ctx, r, []capability.Handle{b}, nil, Options{Now: now, DryRun: true})
	require.NoError(t, err)

	assert.Empty(t, result.Swept)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, orphan, result.Candidates[0].SnapshotID)

	remaining, err := r.AllEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "dry run must not delete anything")
}

func TestReportMirrorsSweepStepsOneAndTwo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustRegistry(t)

	b := testbackend.New("sys-a", capability.SystemGit, fullCaps())
	orphan := capability.SnapshotId("orphan-2")
	oldHLC := hlc.HLC{Physical: 1_000_000_000_000, Logical: 0}
	require.NoError(t, r.Register(ctx, entry.Entry{SnapshotID: orphan, SystemID: "sys-a", BranchName: "main", HLC: oldHLC}))
	require.NoError(t, r.Flush(ctx))

	now := time.UnixMilli(int64(oldHLC.Physical) + int64(8*dayMs))
	report, err := Report(ctx, r, []capability.Handle{b}, nil, Options{Now: now})
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalEntries)
	assert.Equal(t, 1, report.GCEligible)
	require.Contains(t, report.BySystem, "sys-a")
}

func TestEmptyRegistrySweepIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := mustRegistry(t)

	result, err := Sweep(ctx, r, nil, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Swept)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 0, result.FreedNodesSwept)
}
