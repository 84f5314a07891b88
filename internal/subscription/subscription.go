// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package subscription implements the subscription manager (spec.md §4.3):
// a pattern-indexed set of live subscriptions answering two queries —
// "what subscriptions receive this write" and "what existing Params match
// this pattern" (for snapshot-on-subscribe) — plus per-subscription rate
// and epsilon delivery filters.
package subscription

import (
	"sync"

	"github.com/lumencanvas/clasp/internal/address"
	"github.com/lumencanvas/clasp/internal/codec"
	"golang.org/x/time/rate"
)

// Subscription is one live subscription (spec.md §3). Deliver is called by
// the Manager once a message has passed the rate/epsilon filters; it is
// the router's hook to actually enqueue into the owning session's send
// queue. Deliver must not block on network I/O (spec.md §9).
type Subscription struct {
	ID               string
	Pattern          address.Pattern
	SignalTypeFilter map[codec.SignalType]bool // nil/empty means "all types"
	MaxRate          float64                   // updates/second, 0 = unlimited
	Epsilon          float64                   // numeric dead-band, 0 = disabled
	SnapshotOnSub    bool
	Owner            string // session id
	Deliver          func(codec.Message)

	limiter *rate.Limiter

	mu       sync.Mutex
	lastSent map[string]codec.Value // per-address last delivered value, for epsilon
	armed    bool
	pending  []codec.Message // buffered live deliveries that raced snapshot enumeration
}

func (s *Subscription) acceptsType(t codec.SignalType) bool {
	if len(s.SignalTypeFilter) == 0 {
		return true
	}
	return s.SignalTypeFilter[t]
}

// passesFilters applies the per-subscription token-bucket rate limit and
// the numeric epsilon dead-band. Neither filter applies to Events
// (spec.md §4.3).
func (s *Subscription) passesFilters(addr string, value codec.Value, signalType codec.SignalType) bool {
	if signalType == codec.SignalEvent {
		return true
	}

	s.mu.Lock()
	if s.Epsilon > 0 {
		if last, ok := s.lastSent[addr]; ok {
			if delta, numeric := codec.NumericDelta(value, last); numeric && delta < s.Epsilon {
				s.mu.Unlock()
				return false
			}
		}
	}
	s.mu.Unlock()

	if s.limiter != nil && !s.limiter.Allow() {
		return false
	}

	s.mu.Lock()
	if s.lastSent == nil {
		s.lastSent = make(map[string]codec.Value)
	}
	s.lastSent[addr] = value
	s.mu.Unlock()
	return true
}

// Manager owns the authoritative subscription set, per §9 ("the router as
// authoritative owner; sessions and subscriptions carry weak identifiers").
type Manager struct {
	mu      sync.RWMutex
	root    *patternNode
	byOwner map[string]map[string]*Subscription // owner session id -> sub id -> sub
	detach  map[*Subscription]func()
}

// NewManager builds an empty subscription manager.
func NewManager() *Manager {
	return &Manager{
		root:    newPatternNode(),
		byOwner: make(map[string]map[string]*Subscription),
		detach:  make(map[*Subscription]func()),
	}
}

// Subscribe registers sub. If sub.MaxRate > 0 a token-bucket limiter is
// attached with that rate and a burst of max(1, rate).
func (m *Manager) Subscribe(sub *Subscription) {
	if sub.MaxRate > 0 {
		burst := int(sub.MaxRate)
		if burst < 1 {
			burst = 1
		}
		sub.limiter = rate.NewLimiter(rate.Limit(sub.MaxRate), burst)
	}
	if !sub.SnapshotOnSub {
		// No enumeration gap to protect: go straight to live delivery.
		sub.armed = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	detach := m.root.index(sub)
	m.detach[sub] = detach
	owned, ok := m.byOwner[sub.Owner]
	if !ok {
		owned = make(map[string]*Subscription)
		m.byOwner[sub.Owner] = owned
	}
	owned[sub.ID] = sub
}

// Unsubscribe removes a subscription; idempotent per spec.md §4.3.
func (m *Manager) Unsubscribe(owner, subID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned, ok := m.byOwner[owner]
	if !ok {
		return
	}
	sub, ok := owned[subID]
	if !ok {
		return
	}
	if detach, ok := m.detach[sub]; ok {
		detach()
		delete(m.detach, sub)
	}
	delete(owned, subID)
}

// UnsubscribeAll removes every subscription owned by owner (session
// teardown, spec.md §4.4).
func (m *Manager) UnsubscribeAll(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.byOwner[owner] {
		if detach, ok := m.detach[sub]; ok {
			detach()
			delete(m.detach, sub)
		}
	}
	delete(m.byOwner, owner)
}

// Get returns a live subscription by owner+id.
func (m *Manager) Get(owner, subID string) (*Subscription, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owned, ok := m.byOwner[owner]
	if !ok {
		return nil, false
	}
	sub, ok := owned[subID]
	return sub, ok
}

// All returns a snapshot slice of every live subscription across all
// owners, for admin introspection and metrics sampling.
func (m *Manager) All() []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Subscription
	for _, owned := range m.byOwner {
		for _, sub := range owned {
			out = append(out, sub)
		}
	}
	return out
}

// Arm marks a subscription as eligible for live delivery and flushes, in
// arrival order, any deliveries that Dispatch buffered while the
// subscription was indexed but not yet armed. Callers index the
// subscription first, then enumerate the state store for the snapshot,
// then call Arm: writes that race the enumeration are neither lost (they
// are buffered, not dropped) nor duplicated (they are delivered exactly
// once, after the snapshot), satisfying spec.md §4.3's "atomically armed"
// requirement.
func (m *Manager) Arm(sub *Subscription) {
	sub.mu.Lock()
	sub.armed = true
	pending := sub.pending
	sub.pending = nil
	deliver := sub.Deliver
	sub.mu.Unlock()

	if deliver != nil {
		for _, msg := range pending {
			deliver(msg)
		}
	}
}

// Dispatch is called once per accepted write (or Publish/Stream) with the
// concrete address it landed on. It finds every matching, armed
// subscription and calls Deliver on each that passes its filters,
// excluding the subscription owned by excludeOwner (loop-prevention for a
// writer that also subscribes to its own address, when requested by the
// caller).
func (m *Manager) Dispatch(addr address.Address, value codec.Value, signalType codec.SignalType, excludeOwner string) {
	m.mu.RLock()
	matches := m.root.match(addr, nil)
	m.mu.RUnlock()

	addrStr := addr.String()
	for _, sub := range matches {
		if excludeOwner != "" && sub.Owner == excludeOwner {
			continue
		}
		if !sub.acceptsType(signalType) {
			continue
		}
		if !sub.passesFilters(addrStr, value, signalType) {
			continue
		}
		msg := deliveryMessage(addrStr, value, signalType)

		sub.mu.Lock()
		if !sub.armed {
			sub.pending = append(sub.pending, msg)
			sub.mu.Unlock()
			continue
		}
		sub.mu.Unlock()

		if sub.Deliver != nil {
			sub.Deliver(msg)
		}
	}
}

func deliveryMessage(addr string, value codec.Value, signalType codec.SignalType) codec.Message {
	switch signalType {
	case codec.SignalEvent:
		return codec.Publish{Address: addr, Value: value, SignalType: signalType}
	default:
		return codec.Set{Address: addr, Value: value, SignalType: signalType}
	}
}

// MatchesPattern reports whether addr matches pattern. The snapshot lookup
// itself happens in the caller against internal/store; this helper exists
// so callers never need their own copy of the matching algorithm.
func MatchesPattern(pattern address.Pattern, addr address.Address) bool {
	return address.Match(pattern, addr)
}
