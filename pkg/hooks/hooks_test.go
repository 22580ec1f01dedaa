// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replikativ/yggdrasil-go/pkg/capability"
)

type fakeWatchableBackend struct {
	id       string
	watchErr error
	watchID  capability.WatchID
	cb       capability.WatchCallback
	unwatch  []capability.WatchID
}

func (f *fakeWatchableBackend) SystemID() string                    { return f.id }
func (f *fakeWatchableBackend) SystemType() capability.SystemType    { return capability.SystemType("fake") }
func (f *fakeWatchableBackend) Capabilities() capability.Capabilities {
	return capability.Capabilities{Watchable: true}
}

func (f *fakeWatchableBackend) Watch(_ context.Context, cb capability.WatchCallback, _ capability.WatchOptions) (capability.WatchID, error) {
	if f.watchErr != nil {
		return "", f.watchErr
	}
	f.cb = cb
	return f.watchID, nil
}

func (f *fakeWatchableBackend) Unwatch(_ context.Context, id capability.WatchID) error {
	f.unwatch = append(f.unwatch, id)
	return nil
}

type nonWatchableBackend struct{ id string }

func (n *nonWatchableBackend) SystemID() string                     { return n.id }
func (n *nonWatchableBackend) SystemType() capability.SystemType     { return capability.SystemType("fake") }
func (n *nonWatchableBackend) Capabilities() capability.Capabilities { return capability.Capabilities{} }

func TestInstallFallsBackToWatch(t *testing.T) {
	t.Parallel()
	backend := &fakeWatchableBackend{id: "sys-a", watchID: "w1"}

	var received []capability.Event
	id, ok, err := Install(context.Background(), backend, func(ev capability.Event) {
		received = append(received, ev)
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, HookID("w1"), id)

	require.NotNil(t, backend.cb)
	backend.cb(capability.Event{Type: capability.EventBranchCreated})
	backend.cb(capability.Event{Type: capability.EventCommit})
	require.Len(t, received, 1, "non-commit events must be filtered out")
	assert.Equal(t, capability.EventCommit, received[0].Type)
}

func TestInstallReturnsNotOKForNonWatchableBackend(t *testing.T) {
	t.Parallel()
	backend := &nonWatchableBackend{id: "sys-b"}

	id, ok, err := Install(context.Background(), backend, func(capability.Event) {})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestRemoveCallsUnwatch(t *testing.T) {
	t.Parallel()
	backend := &fakeWatchableBackend{id: "sys-a", watchID: "w1"}
	require.NoError(t, Remove(context.Background(), backend, HookID("w1")))
	assert.Equal(t, []capability.WatchID{"w1"}, backend.unwatch)
}
