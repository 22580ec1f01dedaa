// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replikativ/yggdrasil-go/pkg/entry"
	"github.com/replikativ/yggdrasil-go/pkg/hlc"
	"github.com/replikativ/yggdrasil-go/pkg/kvstore"
)

func TestInsertLookupOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kv := kvstore.NewMemory()
	defer kv.Close()
	tr, err := Open(ctx, kv, WithBranchingFactor(4))
	require.NoError(t, err)

	for i := uint64(0); i < 20; i++ {
		e := entry.Entry{
			SystemID:   fmt.Sprintf("sys-%02d", i),
			BranchName: "main",
			HLC:        hlc.HLC{Physical: i},
		}
		require.NoError(t, tr.Insert(ctx, e))
	}

	all, err := tr.AllEntries(ctx)
	require.NoError(t, err)
	require.Len(t, all, 20)
	for i := 1; i < len(all); i++ {
		assert.True(t, entry.Compare(entry.KeyOf(all[i-1]), entry.KeyOf(all[i])) < 0, "entries must be strictly ascending")
	}
}

func TestUpsertReplacesExistingEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kv := kvstore.NewMemory()
	defer kv.Close()
	tr, err := Open(ctx, kv)
	require.NoError(t, err)

	e := entry.Entry{SystemID: "sys", BranchName: "main", HLC: hlc.HLC{Physical: 1}, ContentHash: "v1"}
	require.NoError(t, tr.Insert(ctx, e))
	e.ContentHash = "v2"
	require.NoError(t, tr.Insert(ctx, e))

	all, err := tr.AllEntries(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "v2", all[0].ContentHash)
}

func TestDeleteRemovesEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kv := kvstore.NewMemory()
	defer kv.Close()
	tr, err := Open(ctx, kv, WithBranchingFactor(4))
	require.NoError(t, err)

	var keys []entry.Key
	for i := uint64(0); i < 10; i++ {
		e := entry.Entry{SystemID: fmt.Sprintf("sys-%d", i), BranchName: "main", HLC: hlc.HLC{Physical: i}}
		require.NoError(t, tr.Insert(ctx, e))
		keys = append(keys, entry.KeyOf(e))
	}

	removed, err := tr.Delete(ctx, keys[3])
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = tr.Delete(ctx, keys[3])
	require.NoError(t, err)
	assert.False(t, removed, "deleting an absent key is not an error and reports false")

	all, err := tr.AllEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 9)
}

func TestFlushAndReopenRoundTrips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kv := kvstore.NewMemory()
	defer kv.Close()

	tr, err := Open(ctx, kv, WithBranchingFactor(4))
	require.NoError(t, err)
	for i := uint64(0); i < 50; i++ {
		e := entry.Entry{SystemID: fmt.Sprintf("sys-%03d", i), BranchName: "main", HLC: hlc.HLC{Physical: i}}
		require.NoError(t, tr.Insert(ctx, e))
	}
	require.NoError(t, tr.Flush(ctx))

	reopened, err := Open(ctx, kv, WithBranchingFactor(4))
	require.NoError(t, err)
	all, err := reopened.AllEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 50)
	for i := 1; i < len(all); i++ {
		assert.True(t, entry.Compare(entry.KeyOf(all[i-1]), entry.KeyOf(all[i])) < 0)
	}
}

func TestFlushIsNoOpWhenClean(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kv := kvstore.NewMemory()
	defer kv.Close()
	tr, err := Open(ctx, kv)
	require.NoError(t, err)

	require.NoError(t, tr.Flush(ctx))
	_, ok, err := kv.Get(ctx, kvstore.IndexRootKey)
	require.NoError(t, err)
	assert.False(t, ok, "flushing an untouched tree must not write a root pointer")
}

func TestInsertMarksSupersededAddressFreed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kv := kvstore.NewMemory()
	defer kv.Close()

	var now uint64 = 1000
	tr, err := Open(ctx, kv, WithNowFunc(func() uint64 { return now }))
	require.NoError(t, err)

	e := entry.Entry{SystemID: "sys", BranchName: "main", HLC: hlc.HLC{Physical: 1}}
	require.NoError(t, tr.Insert(ctx, e))
	require.NoError(t, tr.Flush(ctx))

	rootAddr, ok, err := tr.storage.loadRoot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, tr.IsFreed(rootAddr))

	now = 2000
	e.ContentHash = "changed"
	require.NoError(t, tr.Insert(ctx, e))

	assert.True(t, tr.IsFreed(rootAddr))
	ms, ok := tr.FreedInfo(rootAddr)
	require.True(t, ok)
	assert.Equal(t, uint64(2000), ms)
}

func TestSweepFreedReclaimsOnlyBeforeCutoff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kv := kvstore.NewMemory()
	defer kv.Close()

	var now uint64 = 100
	tr, err := Open(ctx, kv, WithNowFunc(func() uint64 { return now }))
	require.NoError(t, err)

	e := entry.Entry{SystemID: "sys", BranchName: "main", HLC: hlc.HLC{Physical: 1}}
	require.NoError(t, tr.Insert(ctx, e))
	require.NoError(t, tr.Flush(ctx))
	rootAddr, _, err := tr.storage.loadRoot(ctx)
	require.NoError(t, err)

	now = 500
	e.ContentHash = "v2"
	require.NoError(t, tr.Insert(ctx, e))
	require.NoError(t, tr.Flush(ctx))

	n, err := tr.SweepFreed(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "cutoff before the free-marking time reclaims nothing")

	n, err = tr.SweepFreed(ctx, 600)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, err := kv.Get(ctx, rootAddr)
	require.NoError(t, err)
	assert.False(t, ok, "swept address must be gone from the backing store")
}
