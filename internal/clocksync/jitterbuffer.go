// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package clocksync

import (
	"container/heap"
	"sync"
	"time"

	"github.com/lumencanvas/clasp/internal/codec"
)

// jitterItem is one buffered sample awaiting its presentation time.
type jitterItem struct {
	presentAt uint64 // microseconds, shared epoch
	msg       codec.Message
	index     int
}

type jitterHeap []*jitterItem

func (h jitterHeap) Len() int            { return len(h) }
func (h jitterHeap) Less(i, j int) bool  { return h[i].presentAt < h[j].presentAt }
func (h jitterHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *jitterHeap) Push(x interface{}) {
	it := x.(*jitterItem)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *jitterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// JitterBuffer is a bounded, presentation-timestamp-ordered buffer
// (spec.md §4.7): push inserts, pop returns the smallest ready element
// (presentAt <= now+window), drain_ready returns all ready elements.
type JitterBuffer struct {
	mu     sync.Mutex
	h      jitterHeap
	window time.Duration
	max    int
}

// NewJitterBuffer builds a buffer with the given readiness window and
// capacity (0 = unbounded).
func NewJitterBuffer(window time.Duration, capacity int) *JitterBuffer {
	return &JitterBuffer{window: window, max: capacity}
}

// Push inserts msg keyed by its presentation timestamp (microseconds). If
// the buffer is at capacity, the item with the latest presentAt is
// dropped to make room (favoring the soonest-due samples, matching the
// buffer's purpose of smoothing near-term jitter rather than queuing
// indefinitely).
func (b *JitterBuffer) Push(presentAt uint64, msg codec.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	heap.Push(&b.h, &jitterItem{presentAt: presentAt, msg: msg})
	if b.max > 0 && len(b.h) > b.max {
		b.evictLatest()
	}
}

func (b *JitterBuffer) evictLatest() {
	worst := 0
	for i := 1; i < len(b.h); i++ {
		if b.h[i].presentAt > b.h[worst].presentAt {
			worst = i
		}
	}
	heap.Remove(&b.h, worst)
}

// Pop returns the smallest ready element (presentAt <= now+window) or
// false if none is ready yet.
func (b *JitterBuffer) Pop(now uint64) (codec.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.h) == 0 {
		return nil, false
	}
	deadline := now + uint64(b.window.Microseconds())
	if b.h[0].presentAt > deadline {
		return nil, false
	}
	it := heap.Pop(&b.h).(*jitterItem)
	return it.msg, true
}

// DrainReady pops every currently ready element in presentation order.
func (b *JitterBuffer) DrainReady(now uint64) []codec.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	deadline := now + uint64(b.window.Microseconds())
	var out []codec.Message
	for len(b.h) > 0 && b.h[0].presentAt <= deadline {
		it := heap.Pop(&b.h).(*jitterItem)
		out = append(out, it.msg)
	}
	return out
}

// Len reports the current buffer depth.
func (b *JitterBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.h)
}
