// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/replikativ/yggdrasil-go/pkg/kvstore"
	"github.com/replikativ/yggdrasil-go/pkg/ygerrors"
)

// freedItem orders freed addresses by free-marking timestamp so a GC
// sweep (C8) can scan the prefix that precedes a cutoff without visiting
// addresses that are not yet eligible.
type freedItem struct {
	Ms   uint64
	Addr string
}

func freedLess(a, b freedItem) bool {
	if a.Ms != b.Ms {
		return a.Ms < b.Ms
	}
	return a.Addr < b.Addr
}

// storage is the node store behind a Tree: content-addressed persistence
// (store/restore), an in-memory node cache, and the freed-address ledger
// (mark_freed/is_freed/freed_info) the GC coordinator later sweeps.
type storage struct {
	kv kvstore.Store

	mu        sync.Mutex
	cache     map[string]*Node
	freedByMs *btree.BTreeG[freedItem]
	freedAt   map[string]uint64
}

func newStorage(kv kvstore.Store) *storage {
	return &storage{
		kv:        kv,
		cache:     make(map[string]*Node),
		freedByMs: btree.NewG(32, freedLess),
		freedAt:   make(map[string]uint64),
	}
}

// store serializes and persists node, returning a fresh opaque address.
// node's children, if any, must already carry resolved addresses.
func (s *storage) store(ctx context.Context, node *Node) (string, error) {
	data, err := marshalNode(node)
	if err != nil {
		return "", err
	}
	addr := uuid.NewString()
	if err := s.kv.Assoc(ctx, addr, data); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.cache[addr] = node
	s.mu.Unlock()
	return addr, nil
}

// restore loads the node at addr, preferring the in-memory cache.
func (s *storage) restore(ctx context.Context, addr string) (*Node, error) {
	s.mu.Lock()
	if n, ok := s.cache[addr]; ok {
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()

	data, ok, err := s.kv.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ygerrors.NewInvariantViolationError("b-tree node address not found: "+addr, nil)
	}
	node, err := unmarshalNode(data)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[addr] = node
	s.mu.Unlock()
	return node, nil
}

// markFreed records addr as superseded at nowMs. It is a durable-after-
// flush, in-memory-immediately ledger entry; GC (C8) only reclaims the
// underlying value once freed_grace_period_ms has elapsed since nowMs.
func (s *storage) markFreed(addr string, nowMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.freedAt[addr]; ok {
		s.freedByMs.Delete(freedItem{Ms: prev, Addr: addr})
	}
	s.freedAt[addr] = nowMs
	s.freedByMs.ReplaceOrInsert(freedItem{Ms: nowMs, Addr: addr})
}

// isFreed reports whether addr has been marked freed.
func (s *storage) isFreed(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.freedAt[addr]
	return ok
}

// freedInfo returns the free-marking timestamp for addr, if any.
func (s *storage) freedInfo(addr string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.freedAt[addr]
	return ms, ok
}

// sweepFreed physically deletes every address whose free-marking
// timestamp strictly precedes cutoffMs, removing it from the kv store,
// the node cache, and the freed ledger. It returns the count reclaimed.
func (s *storage) sweepFreed(ctx context.Context, cutoffMs uint64) (int, error) {
	s.mu.Lock()
	var toReclaim []freedItem
	s.freedByMs.AscendLessThan(freedItem{Ms: cutoffMs}, func(it freedItem) bool {
		toReclaim = append(toReclaim, it)
		return true
	})
	s.mu.Unlock()

	n := 0
	for _, it := range toReclaim {
		if err := s.kv.Dissoc(ctx, it.Addr); err != nil {
			return n, err
		}
		s.mu.Lock()
		delete(s.cache, it.Addr)
		delete(s.freedAt, it.Addr)
		s.freedByMs.Delete(it)
		s.mu.Unlock()
		n++
	}
	return n, nil
}

// loadRoot returns the persisted root address, if any.
func (s *storage) loadRoot(ctx context.Context) (string, bool, error) {
	data, ok, err := s.kv.Get(ctx, kvstore.IndexRootKey)
	if err != nil || !ok {
		return "", ok, err
	}
	var addr string
	if err := cbor.Unmarshal(data, &addr); err != nil {
		return "", false, ygerrors.NewInvariantViolationError("failed to unmarshal index root pointer", err)
	}
	return addr, true, nil
}

// persistRoot records addr as the current B-tree root.
func (s *storage) persistRoot(ctx context.Context, addr string) error {
	data, err := cbor.Marshal(addr)
	if err != nil {
		return ygerrors.NewStorageFaultError("failed to marshal index root pointer", err)
	}
	return s.kv.Assoc(ctx, kvstore.IndexRootKey, data)
}

// loadFreedMap restores the freed-address ledger from a prior flush.
func (s *storage) loadFreedMap(ctx context.Context) error {
	data, ok, err := s.kv.Get(ctx, kvstore.FreedKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	freed := make(map[string]uint64)
	if err := cbor.Unmarshal(data, &freed); err != nil {
		return ygerrors.NewInvariantViolationError("failed to unmarshal freed-address map", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, ms := range freed {
		s.freedAt[addr] = ms
		s.freedByMs.ReplaceOrInsert(freedItem{Ms: ms, Addr: addr})
	}
	return nil
}

// persistFreedMap writes the current freed-address ledger in full.
func (s *storage) persistFreedMap(ctx context.Context) error {
	s.mu.Lock()
	freed := make(map[string]uint64, len(s.freedAt))
	for addr, ms := range s.freedAt {
		freed[addr] = ms
	}
	s.mu.Unlock()

	data, err := cbor.Marshal(freed)
	if err != nil {
		return ygerrors.NewStorageFaultError("failed to marshal freed-address map", err)
	}
	return s.kv.Assoc(ctx, kvstore.FreedKey, data)
}
