// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package hooks implements C6, the commit-hook extension point: a
// type-dispatched installer that prefers a backend's native notification
// API and falls back to Watchable polling when no native path exists.
//
// No SystemType in the current corpus has a native hook path wired in
// (git/zfs/btrfs/overlayfs/podman/ipfs/iceberg/lakefs/dolt/datahike
// adapters are explicitly out of core scope, spec §1 non-goals); every
// backend in this module goes through the default Watchable fallback.
// The dispatch table exists so a future native adapter has somewhere to
// register without touching call sites.
package hooks

import (
	"context"

	"github.com/cenkalti/backoff/v5"

	"github.com/replikativ/yggdrasil-go/pkg/capability"
	"github.com/replikativ/yggdrasil-go/pkg/ygerrors"
	"github.com/replikativ/yggdrasil-go/pkg/ygl"
)

// HookID identifies one installed hook, opaque to the caller.
type HookID string

// Installer installs and removes a native commit notification for one
// SystemType. Implementations must not block indefinitely.
type Installer interface {
	Install(ctx context.Context, backend capability.Handle, onCommit func(capability.Event)) (HookID, bool, error)
	Remove(ctx context.Context, backend capability.Handle, id HookID) error
}

// dispatch maps a SystemType to a native Installer. Empty until a native
// adapter registers one; every backend currently falls through to the
// Watchable default.
var dispatch = map[capability.SystemType]Installer{}

// Register installs a native Installer for sysType, for use by backend
// adapters built outside this module. Not used by anything in this
// module today, since no adapter ships here (spec §1 non-goals).
func Register(sysType capability.SystemType, installer Installer) {
	dispatch[sysType] = installer
}

// Install dispatches on backend.SystemType(). If a native Installer is
// registered for that type, it is used; otherwise the default fallback
// applies: if backend is Watchable, install a filtered watch that only
// forwards capability.EventCommit events, retrying the initial Watch
// call with backoff since a just-added backend's watch channel may not
// be ready yet. If the backend supports neither, Install returns
// ok=false and a nil error — not every backend need be hookable.
func Install(ctx context.Context, backend capability.Handle, onCommit func(capability.Event)) (HookID, bool, error) {
	if installer, ok := dispatch[backend.SystemType()]; ok {
		return installer.Install(ctx, backend, onCommit)
	}

	watchable, ok := backend.(capability.Watchable)
	if !ok {
		return "", false, nil
	}

	filtered := func(ev capability.Event) {
		if ev.Type != capability.EventCommit {
			return
		}
		onCommit(ev)
	}

	op := func() (capability.WatchID, error) {
		return watchable.Watch(ctx, filtered, capability.WatchOptions{})
	}
	id, err := backoff.Retry(ctx, op, backoff.WithMaxTries(3))
	if err != nil {
		return "", false, ygerrors.NewBackendFaultError("failed to install watch-based commit hook for "+backend.SystemID(), err)
	}
	ygl.Debugw("installed polling-fallback commit hook", "system_id", backend.SystemID(), "watch_id", id)
	return HookID(id), true, nil
}

// Remove reverses Install. Removing an unknown or already-removed hook
// is best-effort and not an error.
func Remove(ctx context.Context, backend capability.Handle, id HookID) error {
	if installer, ok := dispatch[backend.SystemType()]; ok {
		return installer.Remove(ctx, backend, id)
	}
	watchable, ok := backend.(capability.Watchable)
	if !ok {
		return nil
	}
	if err := watchable.Unwatch(ctx, capability.WatchID(id)); err != nil {
		return ygerrors.NewBackendFaultError("failed to remove commit hook for "+backend.SystemID(), err)
	}
	return nil
}
