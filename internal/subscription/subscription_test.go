// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package subscription

import (
	"sync"
	"testing"

	"github.com/lumencanvas/clasp/internal/address"
	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/stretchr/testify/require"
)

func pattern(t *testing.T, s string) address.Pattern {
	t.Helper()
	p, err := address.ParsePattern(s)
	require.NoError(t, err)
	return p
}

func addr(t *testing.T, s string) address.Address {
	t.Helper()
	a, err := address.Parse(s)
	require.NoError(t, err)
	return a
}

func TestDispatchDeliversToMatchingSubscription(t *testing.T) {
	m := NewManager()
	var received []codec.Message
	var mu sync.Mutex

	sub := &Subscription{
		ID: "s1", Pattern: pattern(t, "/lights/*/brightness"), Owner: "B",
		Deliver: func(msg codec.Message) {
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()
		},
	}
	m.Subscribe(sub)

	m.Dispatch(addr(t, "/lights/kitchen/brightness"), codec.Float(0.75), codec.SignalParam, "")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
}

func TestFIFOPerWriterPerSubscriber(t *testing.T) {
	m := NewManager()
	var received []codec.Value
	sub := &Subscription{
		ID: "s1", Pattern: pattern(t, "/a"), Owner: "B",
		Deliver: func(msg codec.Message) {
			received = append(received, msg.(codec.Set).Value)
		},
	}
	m.Subscribe(sub)

	m.Dispatch(addr(t, "/a"), codec.Int(1), codec.SignalParam, "")
	m.Dispatch(addr(t, "/a"), codec.Int(2), codec.SignalParam, "")

	require.Len(t, received, 2)
	v1, _ := received[0].AsInt()
	v2, _ := received[1].AsInt()
	require.Equal(t, int64(1), v1)
	require.Equal(t, int64(2), v2)
}

func TestUnsubscribeIsIdempotentAndStopsDelivery(t *testing.T) {
	m := NewManager()
	count := 0
	sub := &Subscription{ID: "s1", Pattern: pattern(t, "/a"), Owner: "B", Deliver: func(codec.Message) { count++ }}
	m.Subscribe(sub)

	m.Unsubscribe("B", "s1")
	m.Unsubscribe("B", "s1") // idempotent

	m.Dispatch(addr(t, "/a"), codec.Int(1), codec.SignalParam, "")
	require.Equal(t, 0, count)
}

func TestSnapshotArmingBuffersRacingWrites(t *testing.T) {
	m := NewManager()
	var received []codec.Message
	sub := &Subscription{
		ID: "s1", Pattern: pattern(t, "/room/**"), Owner: "B", SnapshotOnSub: true,
		Deliver: func(msg codec.Message) { received = append(received, msg) },
	}
	m.Subscribe(sub) // indexed but not armed

	// A live write races the (not-yet-sent) snapshot.
	m.Dispatch(addr(t, "/room/temp"), codec.Float(22.0), codec.SignalParam, "")
	require.Empty(t, received, "no delivery before Arm")

	m.Arm(sub)
	require.Len(t, received, 1, "buffered write flushed exactly once on Arm")
}

func TestEpsilonDropsSmallDeltas(t *testing.T) {
	m := NewManager()
	count := 0
	sub := &Subscription{ID: "s1", Pattern: pattern(t, "/v"), Owner: "B", Epsilon: 0.5, Deliver: func(codec.Message) { count++ }}
	m.Subscribe(sub)

	m.Dispatch(addr(t, "/v"), codec.Float(1.0), codec.SignalParam, "")
	m.Dispatch(addr(t, "/v"), codec.Float(1.1), codec.SignalParam, "") // delta 0.1 < epsilon
	m.Dispatch(addr(t, "/v"), codec.Float(2.0), codec.SignalParam, "") // delta 1.0 >= epsilon

	require.Equal(t, 2, count)
}

func TestEpsilonDoesNotApplyToEvents(t *testing.T) {
	m := NewManager()
	count := 0
	sub := &Subscription{ID: "s1", Pattern: pattern(t, "/v"), Owner: "B", Epsilon: 100, Deliver: func(codec.Message) { count++ }}
	m.Subscribe(sub)

	m.Dispatch(addr(t, "/v"), codec.Bool(true), codec.SignalEvent, "")
	m.Dispatch(addr(t, "/v"), codec.Bool(true), codec.SignalEvent, "")
	require.Equal(t, 2, count)
}

func TestSignalTypeFilter(t *testing.T) {
	m := NewManager()
	count := 0
	sub := &Subscription{
		ID: "s1", Pattern: pattern(t, "/v"), Owner: "B",
		SignalTypeFilter: map[codec.SignalType]bool{codec.SignalEvent: true},
		Deliver:          func(codec.Message) { count++ },
	}
	m.Subscribe(sub)

	m.Dispatch(addr(t, "/v"), codec.Int(1), codec.SignalParam, "")
	m.Dispatch(addr(t, "/v"), codec.Bool(true), codec.SignalEvent, "")
	require.Equal(t, 1, count)
}

func TestExcludeOwner(t *testing.T) {
	m := NewManager()
	count := 0
	sub := &Subscription{ID: "s1", Pattern: pattern(t, "/v"), Owner: "A", Deliver: func(codec.Message) { count++ }}
	m.Subscribe(sub)

	m.Dispatch(addr(t, "/v"), codec.Int(1), codec.SignalParam, "A")
	require.Equal(t, 0, count)
}

func TestTailWildcardMatchesDeepAddress(t *testing.T) {
	m := NewManager()
	count := 0
	sub := &Subscription{ID: "s1", Pattern: pattern(t, "/a/**"), Owner: "B", Deliver: func(codec.Message) { count++ }}
	m.Subscribe(sub)

	m.Dispatch(addr(t, "/a/b/c/d"), codec.Int(1), codec.SignalParam, "")
	m.Dispatch(addr(t, "/a"), codec.Int(1), codec.SignalParam, "")
	m.Dispatch(addr(t, "/x"), codec.Int(1), codec.SignalParam, "")
	require.Equal(t, 2, count)
}
