// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"sync"
	"time"
)

// IdleTimeout is the default duration after which a session with no
// inbound frames is considered dead (spec.md §4.4).
const IdleTimeout = 60 * time.Second

// Manager is the router's authoritative session map. It does not know
// about transports; callers create a Session per accepted connection and
// register it here, then drive its lifecycle through Hello/Close.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds an empty session map.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Register adds a freshly constructed session in StatePendingHello.
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session from the map; it does not close it (callers
// close first, then remove, or rely on the caller already having called
// Close before teardown).
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// All returns a snapshot slice of every live session, for housekeeping
// sweeps and admin introspection.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// HandshakeError is returned by HandleHello/RequireActive on any protocol
// violation described in spec.md §4.4.
type HandshakeError string

func (e HandshakeError) Error() string { return string(e) }

const (
	ErrDuplicateHello    HandshakeError = "duplicate HELLO on an already-active session"
	ErrNotYetHandshaked  HandshakeError = "frame received before HELLO/WELCOME handshake completed"
	ErrSessionClosed     HandshakeError = "session is closed"
)

// HandleHello validates and applies a HELLO, transitioning the session
// into StateActive. A second HELLO on an already-active session is a
// protocol violation (spec.md §4.4) and the session is left untouched for
// the caller to close.
func (m *Manager) HandleHello(s *Session, displayName string, features []string) error {
	switch s.State() {
	case StateClosed:
		return ErrSessionClosed
	case StateActive:
		return ErrDuplicateHello
	}
	s.DisplayName = displayName
	s.Features = features
	s.SetState(StateActive)
	return nil
}

// RequireActive rejects any non-HELLO frame arriving before the handshake
// completes (spec.md §4.4: "ProtocolViolation if any other frame is sent
// before WELCOME").
func RequireActive(s *Session) error {
	switch s.State() {
	case StateClosed:
		return ErrSessionClosed
	case StatePendingHello:
		return ErrNotYetHandshaked
	}
	return nil
}

// Teardown releases every resource a session held: its locks in the state
// store and its subscriptions in the subscription manager, then closes the
// session and removes it from the map. Hooks are injected so this package
// need not import store/subscription directly, keeping the dependency
// graph router -> {session, store, subscription} instead of a cycle.
func (m *Manager) Teardown(ctx context.Context, s *Session, releaseLocks func(owner string), unsubscribeAll func(owner string)) {
	if releaseLocks != nil {
		releaseLocks(s.ID)
	}
	if unsubscribeAll != nil {
		unsubscribeAll(s.ID)
	}
	s.Close()
	m.Remove(s.ID)
}

// SweepIdle closes and removes every session whose last-seen time is older
// than idleTimeout, returning the sessions it closed (for the router to
// also run Teardown's store/subscription cleanup against).
func (m *Manager) SweepIdle(now time.Time, idleTimeout time.Duration) []*Session {
	if idleTimeout <= 0 {
		idleTimeout = IdleTimeout
	}
	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > idleTimeout {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range stale {
		s.Close()
	}
	return stale
}
