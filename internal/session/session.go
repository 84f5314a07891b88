// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package session implements per-connection session lifecycle (spec.md
// §4.4): identity, negotiated features, scope set, inbound rate limiting,
// and the bounded outbound send queue. Subscriptions are held by
// internal/subscription and gesture buffers by the router's per-session
// gesture engines, both keyed by session id. The router is the authoritative owner of the
// session map; a Session itself only carries its own opaque id plus the
// state a single connection needs (§9: "sessions and subscriptions carry
// weak identifiers into router-held maps").
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/lumencanvas/clasp/internal/codec"
)

// Scope is one action:pattern grant derived from a validated token
// (spec.md §4.9).
type Scope struct {
	Action  string // "read", "write", "admin", or a custom action name
	Pattern string // pattern string, parsed lazily by the authorizer
}

// DefaultRateLimit/DefaultBurst match spec.md §4.4's default inbound frame
// budget; configurable per session at construction.
const (
	DefaultRateLimit = 30.0
	DefaultBurst     = 60
)

// QueueDepthDefault is the default bounded outbound queue size (spec.md §5).
const QueueDepthDefault = 4096

// State enumerates a session's handshake progress.
type State int

const (
	StatePendingHello State = iota
	StateActive
	StateClosed
)

// Session represents one connected party from handshake to teardown.
type Session struct {
	ID          string
	DisplayName string
	Features    []string
	Scopes      []Scope

	CreatedAt time.Time
	lastSeen  atomicTime

	limiter *rate.Limiter

	sendQueue chan codec.Message
	closeOnce sync.Once
	cancel    context.CancelFunc
	ctx       context.Context

	mu    sync.Mutex
	state State

	// authFailures tracks repeated authorization failures within a
	// rolling window for the "threshold; default 5 within 30s -> close"
	// policy of spec.md §7.
	authFailures []time.Time
}

// New creates a Session bound to parent's cancellation. The caller supplies
// the outbound queue depth and rate-limit parameters (0 selects the
// package defaults).
func New(parent context.Context, rateLimit float64, burst int, queueDepth int) *Session {
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if queueDepth <= 0 {
		queueDepth = QueueDepthDefault
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		limiter:   rate.NewLimiter(rate.Limit(rateLimit), burst),
		sendQueue: make(chan codec.Message, queueDepth),
		ctx:       ctx,
		cancel:    cancel,
		state:     StatePendingHello,
	}
	s.Touch()
	return s
}

// Context is cancelled when the session is closed; every suspension point
// in the router must select on it (spec.md §5).
func (s *Session) Context() context.Context { return s.ctx }

// Touch stamps the last-seen time (called on every inbound frame).
func (s *Session) Touch() { s.lastSeen.Store(time.Now()) }

// LastSeen returns the last-touched time.
func (s *Session) LastSeen() time.Time { return s.lastSeen.Load() }

// State returns the session's handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session's handshake state.
func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// AllowFrame consults the inbound token bucket (spec.md §4.4).
func (s *Session) AllowFrame() bool { return s.limiter.Allow() }

// RecordAuthFailure appends now to the rolling failure window and reports
// whether the session has exceeded the close threshold.
func (s *Session) RecordAuthFailure(now time.Time, window time.Duration, threshold int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-window)
	kept := s.authFailures[:0]
	for _, t := range s.authFailures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.authFailures = kept
	return len(s.authFailures) >= threshold
}

// Close marks the session closed and cancels its context exactly once;
// safe to call multiple times (e.g. from both a transport error and an
// explicit disconnect handler). The send queue channel is left open.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.SetState(StateClosed)
		s.cancel()
	})
}

// SendQueue exposes the bounded outbound channel for the router's fan-out
// and the session's write pump to share.
func (s *Session) SendQueue() chan<- codec.Message { return s.sendQueue }

// Outbound exposes the receive side for the session's write-pump goroutine.
func (s *Session) Outbound() <-chan codec.Message { return s.sendQueue }

// Enqueue places msg on the session's outbound queue according to its QoS
// (spec.md §4.4/§6):
//   - Fire (Q0): dropped if the queue is full, no retry.
//   - Confirm (Q1): blocks the caller (backpressure) until there is room or
//     the session closes.
//   - Commit (Q2): like Confirm; the caller is additionally responsible for
//     not acking the write upstream until delivery is durable, handled by
//     the router/journal layer above Enqueue.
//
// Fan-out must never block on a slow peer's Q0/Q1 traffic interfering with
// another peer (spec.md §4.5): each session's queue is independent, so a
// full queue here only ever backpressures its own session's callers.
func (s *Session) Enqueue(msg codec.Message, qos codec.QoS) bool {
	switch qos {
	case codec.QoSFire:
		select {
		case s.sendQueue <- msg:
			return true
		default:
			return false // dropped
		}
	default: // QoSConfirm, QoSCommit
		select {
		case s.sendQueue <- msg:
			return true
		case <-s.ctx.Done():
			return false
		}
	}
}
