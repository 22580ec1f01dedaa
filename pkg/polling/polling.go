// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package polling implements C7, the process-wide scheduled executor a
// Watchable backend can use to turn a periodic poll into watch-callback
// delivery. It is a reusable runtime, not a backend itself: any adapter
// that wants poll-based Watch support constructs a WatcherState and
// drives it through StartPolling/StopPolling/AddCallback/RemoveCallback.
package polling

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/replikativ/yggdrasil-go/pkg/capability"
	"github.com/replikativ/yggdrasil-go/pkg/ygl"
)

// maxConcurrentPolls bounds the shared daemon pool (spec §4.7
// "recommended 2"): at most this many poll cycles run at once across
// every WatcherState in the process.
const maxConcurrentPolls = 2

var pollSlots = make(chan struct{}, maxConcurrentPolls)

// PollResult is what a PollFunc reports back each cycle.
type PollResult struct {
	State  any
	Events []capability.Event
}

// PollFunc observes backend-specific state (opaque to the runtime) and
// reports the new state plus any events to deliver since lastState.
type PollFunc func(ctx context.Context, lastState any) (PollResult, error)

// WatcherState is one backend's polling registration: its callbacks, the
// last observed opaque state, and the running/cancel handle for its
// scheduled task.
type WatcherState struct {
	mu        sync.Mutex
	callbacks map[capability.WatchID]capability.WatchCallback
	lastState any
	cancel    context.CancelFunc
	running   bool
}

// NewWatcherState constructs an empty, not-yet-started WatcherState.
func NewWatcherState() *WatcherState {
	return &WatcherState{callbacks: make(map[capability.WatchID]capability.WatchCallback)}
}

// StartPolling schedules pollFn to run every interval until StopPolling
// is called. A no-op if already running.
func (w *WatcherState) StartPolling(ctx context.Context, pollFn PollFunc, interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	go w.loop(cycleCtx, pollFn, interval)
}

func (w *WatcherState) loop(ctx context.Context, pollFn PollFunc, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cycle(ctx, pollFn)
		}
	}
}

// cycle runs one poll, bounded by the shared daemon-pool slot semaphore.
// A poll or callback failure is logged and never propagates: one bad
// cycle must not stop future ones.
func (w *WatcherState) cycle(ctx context.Context, pollFn PollFunc) {
	select {
	case pollSlots <- struct{}{}:
		defer func() { <-pollSlots }()
	case <-ctx.Done():
		return
	}

	w.mu.Lock()
	lastState := w.lastState
	w.mu.Unlock()

	result, err := pollFn(ctx, lastState)
	if err != nil {
		ygl.Warnw("poll cycle failed, will retry next interval", "error", err)
		return
	}

	w.mu.Lock()
	w.lastState = result.State
	cbs := make([]capability.WatchCallback, 0, len(w.callbacks))
	for _, cb := range w.callbacks {
		cbs = append(cbs, cb)
	}
	w.mu.Unlock()

	for _, ev := range result.Events {
		for _, cb := range cbs {
			invokeCallback(cb, ev)
		}
	}
}

// invokeCallback guards a single callback invocation so a panicking
// callback cannot break delivery to the others or kill the poll loop.
func invokeCallback(cb capability.WatchCallback, ev capability.Event) {
	defer func() {
		if r := recover(); r != nil {
			ygl.Errorw("watch callback panicked, continuing", "recovered", r)
		}
	}()
	cb(ev)
}

// StopPolling cancels the scheduled task, if any.
func (w *WatcherState) StopPolling() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.cancel()
	w.running = false
}

// AddCallback registers cb under id, replacing any existing callback
// under the same id.
func (w *WatcherState) AddCallback(id capability.WatchID, cb capability.WatchCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks[id] = cb
}

// RemoveCallback unregisters id. If no callbacks remain, polling stops.
func (w *WatcherState) RemoveCallback(id capability.WatchID) {
	w.mu.Lock()
	delete(w.callbacks, id)
	empty := len(w.callbacks) == 0
	w.mu.Unlock()
	if empty {
		w.StopPolling()
	}
}

// RetryableDial wraps a backend connection attempt with bounded
// exponential backoff, for Watchable implementations whose first poll
// races backend startup (e.g. a freshly added system that hasn't
// produced a first snapshot yet).
func RetryableDial(ctx context.Context, dial func() error) error {
	op := func() (struct{}, error) {
		return struct{}{}, dial()
	}
	_, err := backoff.Retry(ctx, op, backoff.WithMaxTries(5))
	return err
}
