// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package clocksync

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestOffsetAndRTTFormulas(t *testing.T) {
	// Server clock running 1000us ahead of the client, ~200us RTT.
	s := Sample{T1: 10_000, T2: 11_100, T3: 11_200, T4: 10_300}
	require.InDelta(t, 1000, s.Offset(), 1)
	require.InDelta(t, 200, s.RTT(), 1)
}

func TestEstimatorConvergesWithEMA(t *testing.T) {
	e := New()
	base := uint64(0)
	for i := 0; i < 10; i++ {
		t1 := base
		t2 := t1 + 1000
		t3 := t2 + 50
		t4 := t3 - 1000 + 50
		ok := e.Observe(Sample{T1: t1, T2: t2, T3: t3, T4: t4})
		require.True(t, ok)
		base += 100_000
	}
	require.InDelta(t, 1000, e.Offset(), 50)
	require.Greater(t, e.Samples(), 0)
}

func TestOutlierRTTRejected(t *testing.T) {
	e := New()
	for i := 0; i < MinSamples; i++ {
		require.True(t, e.Observe(Sample{T1: 0, T2: 1000, T3: 1100, T4: 2000}))
	}
	// RTT here is ~260x the established median; must be rejected.
	ok := e.Observe(Sample{T1: 0, T2: 1000, T3: 1100, T4: 500_000})
	require.False(t, ok)
}

func TestNeedsSyncWhenStale(t *testing.T) {
	fake := clockwork.NewFakeClock()
	e := NewWithClock(fake)
	e.Observe(Sample{T1: 0, T2: 1000, T3: 1100, T4: 2000})

	fake.Advance(time.Hour)
	require.True(t, e.NeedsSync())
}

func TestToServerAndLocalTimeRoundTrip(t *testing.T) {
	e := New()
	e.Observe(Sample{T1: 0, T2: 1000, T3: 1100, T4: 2000})
	local := uint64(500_000)
	server := e.ToServerTime(local)
	back := e.ToLocalTime(server)
	require.InDelta(t, local, back, 1)
}

func TestJitterBufferOrdersByPresentationTime(t *testing.T) {
	b := NewJitterBuffer(50*time.Millisecond, 0)
	b.Push(300, codec.Publish{Address: "/c"})
	b.Push(100, codec.Publish{Address: "/a"})
	b.Push(200, codec.Publish{Address: "/b"})

	ready := b.DrainReady(1_000_000)
	require.Len(t, ready, 3)
	require.Equal(t, "/a", ready[0].(codec.Publish).Address)
	require.Equal(t, "/b", ready[1].(codec.Publish).Address)
	require.Equal(t, "/c", ready[2].(codec.Publish).Address)
}

func TestJitterBufferPopRespectsWindow(t *testing.T) {
	b := NewJitterBuffer(10*time.Millisecond, 0)
	b.Push(1_000_000, codec.Publish{Address: "/future"})

	_, ok := b.Pop(0)
	require.False(t, ok, "far-future sample is not yet ready")

	_, ok = b.Pop(1_000_000)
	require.True(t, ok)
}

func TestJitterBufferEvictsLatestWhenFull(t *testing.T) {
	b := NewJitterBuffer(time.Second, 2)
	b.Push(100, codec.Publish{Address: "/a"})
	b.Push(200, codec.Publish{Address: "/b"})
	b.Push(300, codec.Publish{Address: "/c"}) // evicts /c itself (the latest)

	require.Equal(t, 2, b.Len())
	ready := b.DrainReady(1000)
	require.Len(t, ready, 2)
	require.Equal(t, "/a", ready[0].(codec.Publish).Address)
	require.Equal(t, "/b", ready[1].(codec.Publish).Address)
}
