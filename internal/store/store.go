// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store implements the parameter state store: an address-keyed map
// of ParamState with pluggable conflict resolution (spec.md §4.2). The map
// is split into numShards flat shards chosen by an FNV hash of the address,
// each with its own RWMutex; the fine-grained locking comes from the
// teacher's memorystore.Level tree, but there is no tree here: each shard
// maps an address string to one ParamState.
package store

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/lumencanvas/clasp/internal/address"
	"github.com/lumencanvas/clasp/internal/codec"
)

// Lock describes a held write-lock on an entry under the Lock strategy.
type Lock struct {
	Holder     string
	AcquiredAt time.Time
	TTL        time.Duration
}

func (l *Lock) expired(now time.Time) bool {
	return l.TTL > 0 && now.After(l.AcquiredAt.Add(l.TTL))
}

// ParamState is the stored entry for one address (spec.md §3).
type ParamState struct {
	Address    string
	Value      codec.Value
	Revision   uint64
	Writer     string
	Timestamp  uint64 // microseconds since the shared epoch
	Origin     string
	SignalType codec.SignalType
	Lock       *Lock
}

// RejectReason enumerates why a write was Rejected.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectStaleTimestamp
	RejectLocked
	RejectRevisionConflict
	RejectStrategyReject
)

func (r RejectReason) String() string {
	switch r {
	case RejectStaleTimestamp:
		return "StaleTimestamp"
	case RejectLocked:
		return "Locked"
	case RejectRevisionConflict:
		return "RevisionConflict"
	case RejectStrategyReject:
		return "StrategyReject"
	default:
		return "None"
	}
}

// OutcomeKind tags the Outcome sum type.
type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomeRejected
	OutcomeDeleted
)

// Outcome is the result of apply_set: Accepted, Rejected, or Deleted
// (spec.md §4.2). It is always one of these three — a state-store internal
// error never silently swallows a write (spec.md §7).
type Outcome struct {
	Kind     OutcomeKind
	Revision uint64 // valid when Kind == OutcomeAccepted or OutcomeDeleted
	Previous *ParamState
	Reason   RejectReason // valid when Kind == OutcomeRejected
}

// MergeFunc is the application-supplied merge used by the Merge strategy.
// It is only ever invoked with Map-kind values; Null on either side deletes
// the entry before MergeFunc is consulted.
type MergeFunc func(oldValue, newValue codec.Value) (codec.Value, error)

// WriteRequest bundles apply_set's parameters (spec.md §4.2).
type WriteRequest struct {
	Address      address.Address
	Value        codec.Value
	SignalType   codec.SignalType
	Writer       string
	Timestamp    uint64
	RevisionHint *uint64
	Strategy     Strategy
	Origin       string
	AcquireLock  bool
	LockTTL      time.Duration
	Merge        MergeFunc
	Now          time.Time
}

const numShards = 64

type shard struct {
	mu      sync.RWMutex
	entries map[string]*ParamState
}

// Store is the address → ParamState map, sharded by address hash for
// read-mostly concurrency (spec.md §5: "writes take a short critical
// section covering at most: revision read, strategy check, value write,
// revision bump, origin write").
type Store struct {
	shards  [numShards]*shard
	Default Strategy
}

// New builds an empty Store. The default conflict strategy is
// Last-Writer-Wins unless overridden.
func New() *Store {
	s := &Store{Default: LWW{}}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*ParamState)}
	}
	return s
}

func (s *Store) shardFor(addr string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(addr))
	return s.shards[h.Sum32()%numShards]
}

// Get returns the current entry for addr, if any.
func (s *Store) Get(addr address.Address) (ParamState, bool) {
	key := addr.String()
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[key]
	if !ok {
		return ParamState{}, false
	}
	return *e, true
}

// Query enumerates every stored ParamState whose address matches pattern,
// used for snapshot-on-subscribe (spec.md §4.3).
func (s *Store) Query(pattern address.Pattern) []ParamState {
	var out []ParamState
	for _, sh := range s.shards {
		sh.mu.RLock()
		for key, e := range sh.entries {
			addr, err := address.Parse(key)
			if err != nil {
				continue
			}
			if address.Match(pattern, addr) {
				out = append(out, *e)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len reports the total number of live entries across all shards, for
// observability (spec.md §9); it is O(numShards) plus one RLock per shard,
// never a full Query(pattern) walk.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Clear unconditionally removes addr's entry (for administrative cleanup);
// it does not bump a tombstone revision. Set-to-Null writes do not go
// through Clear: ApplySet deletes the entry itself, matching spec.md §3:
// "a write that sets a Param to Null deletes the entry."
func (s *Store) Clear(addr address.Address) {
	key := addr.String()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.entries, key)
}

// ApplySet is apply_set (spec.md §4.2): it performs, under one shard's
// critical section, the revision-hint compare-and-set check, the
// conflict-strategy decision, and (on acceptance) the value write and
// revision bump — never blocking on network I/O while holding the lock,
// per §9's "never hold a global lock across send or network I/O".
func (s *Store) ApplySet(req WriteRequest) Outcome {
	key := req.Address.String()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	current := sh.entries[key]

	if req.RevisionHint != nil {
		curRev := uint64(0)
		if current != nil {
			curRev = current.Revision
		}
		if *req.RevisionHint != curRev {
			var prev *ParamState
			if current != nil {
				cp := *current
				prev = &cp
			}
			return Outcome{Kind: OutcomeRejected, Reason: RejectRevisionConflict, Previous: prev}
		}
	}

	if current != nil && current.Lock != nil && !current.Lock.expired(now) && current.Lock.Holder != req.Writer {
		cp := *current
		return Outcome{Kind: OutcomeRejected, Reason: RejectLocked, Previous: &cp}
	}

	if req.Value.IsNull() {
		var prev *ParamState
		if current != nil {
			cp := *current
			prev = &cp
		}
		newRev := uint64(1)
		if current != nil {
			newRev = current.Revision + 1
		}
		delete(sh.entries, key)
		return Outcome{Kind: OutcomeDeleted, Revision: newRev, Previous: prev}
	}

	strategy := req.Strategy
	if strategy == nil {
		strategy = s.Default
	}

	decision := strategy.Decide(current, req)
	if !decision.Accept {
		var prev *ParamState
		if current != nil {
			cp := *current
			prev = &cp
		}
		reason := decision.Reason
		if reason == RejectNone {
			reason = RejectStrategyReject
		}
		return Outcome{Kind: OutcomeRejected, Reason: reason, Previous: prev}
	}

	newRev := uint64(1)
	var prev *ParamState
	if current != nil {
		newRev = current.Revision + 1
		cp := *current
		prev = &cp
	}

	newEntry := &ParamState{
		Address:    key,
		Value:      decision.Value,
		Revision:   newRev,
		Writer:     req.Writer,
		Timestamp:  req.Timestamp,
		Origin:     req.Origin,
		SignalType: req.SignalType,
	}
	if req.AcquireLock {
		if current != nil && current.Lock != nil && !current.Lock.expired(now) {
			newEntry.Lock = current.Lock // already checked holder == writer above
		} else {
			newEntry.Lock = &Lock{Holder: req.Writer, AcquiredAt: now, TTL: req.LockTTL}
		}
	} else if current != nil && current.Lock != nil && !current.Lock.expired(now) {
		newEntry.Lock = current.Lock
	}

	sh.entries[key] = newEntry
	return Outcome{Kind: OutcomeAccepted, Revision: newRev, Previous: prev}
}

// ReleaseLock drops the lock on addr if held by holder (or unconditionally
// if force is true), used on session disconnect (spec.md §4.4).
func (s *Store) ReleaseLock(addr address.Address, holder string, force bool) {
	key := addr.String()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	if !ok || e.Lock == nil {
		return
	}
	if force || e.Lock.Holder == holder {
		e.Lock = nil
	}
}

// ReleaseAllLocksHeldBy releases every lock in the store held by holder,
// called when a session disconnects.
func (s *Store) ReleaseAllLocksHeldBy(holder string) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, e := range sh.entries {
			if e.Lock != nil && e.Lock.Holder == holder {
				e.Lock = nil
			}
		}
		sh.mu.Unlock()
	}
}
