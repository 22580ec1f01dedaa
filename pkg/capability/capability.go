// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability defines the layered capability protocol (spec §4.2)
// that every backend is projected onto: a small, closed set of optional
// trait interfaces plus the value-semantics discipline that binds them.
//
// A backend is modeled as a Handle: an immutable value that advertises a
// Capabilities flag set and may additionally implement any subset of the
// Snapshotable, Branchable, Graphable, Mergeable, Overlayable, Watchable,
// and GarbageCollectable interfaces. Every capability method that
// logically changes backend state returns a new Handle; the caller threads
// it explicitly, and the previous Handle remains valid for reads of the
// pre-change state to the extent the backend itself supports that.
package capability

import (
	"context"
	"time"
)

// SnapshotId is a backend-native snapshot identifier. Identity is by
// string equality; the core never parses it.
type SnapshotId string

// BranchName names a mutable pointer inside a backend.
type BranchName string

// SystemType tags the closed set of backend kinds known to the hook
// dispatcher (spec §9 "tagged variants over duck typing"). Adapters are
// out of core scope; this type exists so the core can dispatch on backend
// *kind* without needing to know how any particular kind works.
type SystemType string

// The named backend kinds. Hook-installation dispatch (C6) keys on
// SystemType, but no native installer is registered for any of these in
// this module, so every type, named here or not, gets the dispatcher's
// default case (the Watchable fallback).
const (
	SystemGit        SystemType = "git"
	SystemZFS        SystemType = "zfs"
	SystemBtrfs      SystemType = "btrfs"
	SystemOverlayFS  SystemType = "overlayfs"
	SystemPodman     SystemType = "podman"
	SystemIPFS       SystemType = "ipfs"
	SystemIceberg    SystemType = "iceberg"
	SystemLakeFS     SystemType = "lakefs"
	SystemDolt       SystemType = "dolt"
	SystemDatahike   SystemType = "datahike"
	SystemComposite  SystemType = "composite"
)

// Capabilities is the flag record a backend advertises. Consumers must
// treat absent capabilities as errors (ygerrors.ErrCapabilityMissing) and
// must never synthesize behavior for a capability that isn't advertised.
type Capabilities struct {
	Snapshotable        bool
	Branchable          bool
	Graphable           bool
	Mergeable           bool
	Overlayable         bool
	Watchable           bool
	GarbageCollectable  bool
	Addressable         bool
	Committable         bool
}

// Handle is the required surface every backend exposes regardless of which
// optional capability interfaces it additionally implements.
type Handle interface {
	SystemID() string
	SystemType() SystemType
	Capabilities() Capabilities
}

// SnapshotMeta is the informational metadata the core is willing to
// ask a backend for about one of its snapshots.
type SnapshotMeta struct {
	SnapshotID SnapshotId
	ParentIDs  []SnapshotId
	Timestamp  *time.Time
	Message    string
	Author     string
}

// Snapshotable backends can report their current snapshot, its parents,
// and produce opaque read views of past snapshots.
type Snapshotable interface {
	Handle
	SnapshotID() (SnapshotId, bool)
	ParentIDs() []SnapshotId
	AsOf(ctx context.Context, id SnapshotId) (ReadView, bool, error)
	SnapshotMeta(ctx context.Context, id SnapshotId) (*SnapshotMeta, error)
}

// ReadView is an opaque, backend-defined view onto a past snapshot. The
// core never inspects it.
type ReadView interface{}

// Branchable backends expose named, independently-checked-out branches.
// Branch without a "from" id forks the current head; Checkout does not
// mutate shared backend state (beyond whatever the backend itself
// requires) and returns a handle whose subsequent reads/writes bind to the
// named branch.
type Branchable interface {
	Handle
	Branches(ctx context.Context) ([]BranchName, error)
	CurrentBranch() BranchName
	Branch(ctx context.Context, name BranchName, from *SnapshotId) (Branchable, error)
	DeleteBranch(ctx context.Context, name BranchName) (Branchable, error)
	Checkout(ctx context.Context, name BranchName) (Branchable, error)
}

// HistoryOptions bounds a Graphable.History query.
type HistoryOptions struct {
	Limit int
	Since *time.Time
}

// CommitGraph is the full shape of a backend's DAG as the backend reports
// it: nodes keyed by id, named branch heads, and root (parentless) ids.
type CommitGraph struct {
	Nodes    map[SnapshotId]CommitNode
	Branches map[BranchName]SnapshotId
	Roots    map[SnapshotId]struct{}
}

// CommitNode is one node of a CommitGraph.
type CommitNode struct {
	ParentIDs []SnapshotId
	Meta      map[string]any
}

// Graphable backends can answer ancestry and history queries. Per spec §9
// open question 3, the core's own GC reachability relies on these walks,
// not on registry-recorded parent ids.
type Graphable interface {
	Handle
	History(ctx context.Context, opts HistoryOptions) ([]SnapshotId, error)
	Ancestors(ctx context.Context, snap SnapshotId) ([]SnapshotId, error)
	IsAncestor(ctx context.Context, a, b SnapshotId) (bool, error)
	CommonAncestor(ctx context.Context, a, b SnapshotId) (SnapshotId, bool, error)
	CommitGraph(ctx context.Context) (*CommitGraph, error)
	CommitInfo(ctx context.Context, snap SnapshotId) (map[string]any, error)
}

// ConflictDescriptor describes one conflicting region between two
// snapshots, in a shape the core never interprets.
type ConflictDescriptor struct {
	Path    string
	Details map[string]any
}

// Delta is an opaque backend-defined diff between two snapshots.
type Delta interface{}

// MergeOptions is passed through to a backend's native merge, uninspected.
type MergeOptions map[string]any

// Mergeable backends can merge two snapshots. Merge is entirely
// backend-specific; the core neither inspects nor validates the result
// beyond recording its reported id and parents (spec §9 open question 2:
// Conflicts/Diff may be placeholders on some adapters).
type Mergeable interface {
	Handle
	Merge(ctx context.Context, source SnapshotId, opts MergeOptions) (Mergeable, error)
	Conflicts(ctx context.Context, a, b SnapshotId) ([]ConflictDescriptor, error)
	Diff(ctx context.Context, a, b SnapshotId) (Delta, error)
}

// OverlayMode selects how an Overlay tracks its parent's evolution.
type OverlayMode string

const (
	// OverlayFrozen fixes BaseRef at creation; parent updates are invisible.
	OverlayFrozen OverlayMode = "frozen"
	// OverlayFollowing always reads the parent's latest state; local
	// writes shadow it.
	OverlayFollowing OverlayMode = "following"
	// OverlayGated updates BaseRef only on an explicit Advance call.
	OverlayGated OverlayMode = "gated"
)

// Overlay is a live fork of a backend snapshot.
type Overlay interface {
	Mode() OverlayMode
	// Advance refreshes a gated overlay's base using a sequence-lock
	// pattern (read version, read parent state, validate version) so the
	// observation is atomic. No-op (and returns false) for non-gated modes.
	Advance(ctx context.Context) (bool, error)
	PeekParent(ctx context.Context) (SnapshotId, error)
	BaseRef() SnapshotId
	OverlayWrites(ctx context.Context) ([]string, error)
	MergeDown(ctx context.Context) (SnapshotId, error)
	Discard(ctx context.Context) error
}

// Overlayable backends can produce live Overlay forks.
type Overlayable interface {
	Handle
	Overlay(ctx context.Context, mode OverlayMode) (Overlay, error)
}

// EventType enumerates the kinds of commit-events a Watchable backend may
// emit (spec §6 commit-event envelope).
type EventType string

const (
	EventCommit         EventType = "commit"
	EventBranchCreated  EventType = "branch_created"
	EventBranchDeleted  EventType = "branch_deleted"
	EventCheckout       EventType = "checkout"
)

// Event is one observed backend occurrence. Delivery is at-least-once;
// consumers must tolerate duplicates.
type Event struct {
	Type       EventType
	SnapshotID SnapshotId
	Branch     BranchName
	Timestamp  time.Time
}

// WatchCallback receives Events. Implementations must not panic;
// Watchable implementations and the polling runtime both guard calls so a
// misbehaving callback cannot break delivery to others.
type WatchCallback func(Event)

// WatchID identifies one registered watch, for Unwatch.
type WatchID string

// WatchOptions configures a Watch subscription.
type WatchOptions struct {
	PollIntervalMS int
}

//go:generate mockgen -destination=mocks/mock_watchable.go -package=mocks -source=capability.go Watchable

// Watchable backends support push or poll-based change notification.
type Watchable interface {
	Handle
	Watch(ctx context.Context, cb WatchCallback, opts WatchOptions) (WatchID, error)
	Unwatch(ctx context.Context, id WatchID) error
}

// GarbageCollectable backends participate in coordinated GC: they report
// what they consider live, and they alone decide what of a proposed
// candidate set is actually safe to delete.
type GarbageCollectable interface {
	Handle
	GCRoots(ctx context.Context) ([]SnapshotId, error)
	// GCSweep asks the backend to delete whichever of the given ids it
	// considers safe under its own retention policy; ids it considers
	// unsafe are silently retained. A non-nil error means the whole sweep
	// attempt failed and the caller must treat every id in the set as
	// still present.
	GCSweep(ctx context.Context, ids []SnapshotId) (GarbageCollectable, error)
}
