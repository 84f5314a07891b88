// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gesture

import (
	"sync"
	"testing"
	"time"

	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestBeginThenEndBoundsSequence(t *testing.T) {
	var mu sync.Mutex
	var seen []codec.GesturePhase
	e := New(func(msg codec.GestureUpdate) {
		mu.Lock()
		seen = append(seen, msg.Phase)
		mu.Unlock()
	})

	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g1", Phase: codec.PhaseBegin}))
	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g1", Phase: codec.PhaseEnd}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []codec.GesturePhase{codec.PhaseBegin, codec.PhaseEnd}, seen)
}

func TestCoalescesRapidUpdates(t *testing.T) {
	var mu sync.Mutex
	var updates int
	e := New(func(msg codec.GestureUpdate) {
		if msg.Phase == codec.PhaseUpdate {
			mu.Lock()
			updates++
			mu.Unlock()
		}
	})

	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g1", Phase: codec.PhaseBegin}))
	start := time.Now()
	n := 0
	for time.Since(start) < 250*time.Millisecond {
		n++
		require.NoError(t, e.Handle(codec.GestureUpdate{
			GestureID: "g1", Phase: codec.PhaseUpdate, Value: codec.Int(int64(n)),
		}))
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g1", Phase: codec.PhaseEnd}))
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, updates, 5)
	require.Less(t, updates, 40, "coalescing must cut far below the input rate")
}

func TestNoUpdateAfterEnd(t *testing.T) {
	var mu sync.Mutex
	var afterEnd bool
	ended := false
	e := New(func(msg codec.GestureUpdate) {
		mu.Lock()
		if msg.Phase == codec.PhaseEnd {
			ended = true
		}
		if ended && msg.Phase == codec.PhaseUpdate {
			afterEnd = true
		}
		mu.Unlock()
	})

	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g1", Phase: codec.PhaseBegin}))
	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g1", Phase: codec.PhaseEnd}))
	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g1", Phase: codec.PhaseUpdate}))

	mu.Lock()
	defer mu.Unlock()
	require.False(t, afterEnd)
}

func TestMultiTouchIndependentBuffers(t *testing.T) {
	var mu sync.Mutex
	seenByGesture := map[string]int{}
	e := New(func(msg codec.GestureUpdate) {
		mu.Lock()
		seenByGesture[msg.GestureID]++
		mu.Unlock()
	})

	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g1", Phase: codec.PhaseBegin}))
	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g2", Phase: codec.PhaseBegin}))
	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g1", Phase: codec.PhaseEnd}))
	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g2", Phase: codec.PhaseEnd}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, seenByGesture["g1"])
	require.Equal(t, 2, seenByGesture["g2"])
}

func TestStaleGestureSynthesizesCancel(t *testing.T) {
	var mu sync.Mutex
	var gotCancel bool
	e := New(func(msg codec.GestureUpdate) {
		mu.Lock()
		if msg.Phase == codec.PhaseCancel {
			gotCancel = true
		}
		mu.Unlock()
	})

	require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: "g1", Phase: codec.PhaseBegin}))
	e.buffers["g1"].stale.Stop()
	e.expire("g1", e.buffers["g1"])

	mu.Lock()
	defer mu.Unlock()
	require.True(t, gotCancel)
}

func TestTooManyBuffersRejected(t *testing.T) {
	e := New(func(codec.GestureUpdate) {})
	for i := 0; i < MaxBuffersPerSession; i++ {
		id := string(rune('a' + i%26))
		require.NoError(t, e.Handle(codec.GestureUpdate{GestureID: id + string(rune(i)), Phase: codec.PhaseBegin}))
	}
	err := e.Handle(codec.GestureUpdate{GestureID: "overflow", Phase: codec.PhaseBegin})
	require.Error(t, err)
}
