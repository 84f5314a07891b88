// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"testing"
	"time"

	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestHelloThenWelcomeActivatesSession(t *testing.T) {
	m := NewManager()
	s := New(context.Background(), 0, 0, 0)
	m.Register(s)

	require.Equal(t, StatePendingHello, s.State())
	err := m.HandleHello(s, "console-1", []string{"osc", "midi"})
	require.NoError(t, err)
	require.Equal(t, StateActive, s.State())
}

func TestDuplicateHelloRejected(t *testing.T) {
	m := NewManager()
	s := New(context.Background(), 0, 0, 0)
	m.Register(s)
	require.NoError(t, m.HandleHello(s, "a", nil))

	err := m.HandleHello(s, "a", nil)
	require.ErrorIs(t, err, ErrDuplicateHello)
}

func TestFrameBeforeWelcomeIsProtocolViolation(t *testing.T) {
	s := New(context.Background(), 0, 0, 0)
	err := RequireActive(s)
	require.ErrorIs(t, err, ErrNotYetHandshaked)
}

func TestEnqueueFireDropsWhenFull(t *testing.T) {
	s := New(context.Background(), 0, 0, 1)
	require.True(t, s.Enqueue(codec.Publish{Address: "/a"}, codec.QoSFire))
	require.False(t, s.Enqueue(codec.Publish{Address: "/b"}, codec.QoSFire), "second Fire frame dropped once queue is full")
}

func TestEnqueueConfirmUnblocksOnClose(t *testing.T) {
	s := New(context.Background(), 0, 0, 1)
	require.True(t, s.Enqueue(codec.Publish{Address: "/a"}, codec.QoSConfirm))

	done := make(chan bool, 1)
	go func() { done <- s.Enqueue(codec.Publish{Address: "/b"}, codec.QoSConfirm) }()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case ok := <-done:
		require.False(t, ok, "blocked Confirm enqueue returns false once the session closes")
	case <-time.After(time.Second):
		t.Fatal("Enqueue did not unblock after Close")
	}
}

func TestTeardownReleasesResources(t *testing.T) {
	m := NewManager()
	s := New(context.Background(), 0, 0, 0)
	m.Register(s)

	var releasedOwner, unsubOwner string
	m.Teardown(context.Background(), s,
		func(owner string) { releasedOwner = owner },
		func(owner string) { unsubOwner = owner },
	)

	require.Equal(t, s.ID, releasedOwner)
	require.Equal(t, s.ID, unsubOwner)
	require.Equal(t, StateClosed, s.State())
	_, ok := m.Get(s.ID)
	require.False(t, ok)
}

func TestRecordAuthFailureThreshold(t *testing.T) {
	s := New(context.Background(), 0, 0, 0)
	now := time.Now()
	var exceeded bool
	for i := 0; i < 5; i++ {
		exceeded = s.RecordAuthFailure(now.Add(time.Duration(i)*time.Millisecond), 30*time.Second, 5)
	}
	require.True(t, exceeded)
}

func TestSweepIdle(t *testing.T) {
	m := NewManager()
	s := New(context.Background(), 0, 0, 0)
	m.Register(s)
	s.lastSeen.Store(time.Now().Add(-time.Hour))

	stale := m.SweepIdle(time.Now(), IdleTimeout)
	require.Len(t, stale, 1)
	require.Equal(t, s.ID, stale[0].ID)
}
