// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gesture implements the coalescing engine for phase-bearing,
// high-rate input (spec.md §4.6): per-gesture buffers that keep only the
// most recent Update within a coalescing window, bound a clean
// Begin…(Update)*…End/Cancel emission sequence, and synthesize a Cancel
// when a gesture goes stale.
package gesture

import (
	"sync"
	"time"

	"github.com/lumencanvas/clasp/internal/codec"
)

// CoalesceWindow targets ~60 Hz output (spec.md §4.6: "one output per
// ~16 ms").
const CoalesceWindow = 16 * time.Millisecond

// StaleTimeout is the default duration after which a Begin with no
// further Update is torn down with a synthesized Cancel.
const StaleTimeout = 2 * time.Second

// MaxBuffersPerSession bounds concurrent in-flight gestures on one session
// (spec.md §5: "maximum gesture buffers (default 32)").
const MaxBuffersPerSession = 32

type phaseState int

const (
	phaseNone phaseState = iota
	phaseOpen
	phaseClosed
)

// buffer is one gesture's coalescing state.
type buffer struct {
	mu      sync.Mutex
	state   phaseState
	latest  codec.GestureUpdate
	pending bool // a coalesced update is buffered, not yet flushed
	timer   *time.Timer // coalescing-window flush timer
	stale   *time.Timer // stale-timeout watchdog, reset on every Update
}

// Engine owns every open gesture buffer for one session. It is constructed
// per session (spec.md §4.4: "gesture buffers keyed by gesture identifier";
// the router keeps one Engine per session id) and calls emit for every message the caller should
// forward to the router's normal fan-out path.
type Engine struct {
	emit func(codec.GestureUpdate)
	now  func() time.Time

	mu      sync.Mutex
	buffers map[string]*buffer
}

// New builds an Engine that calls emit for every message that should be
// dispatched (fanned out) immediately. now defaults to time.Now; tests may
// override it indirectly by controlling when Handle/flush are invoked.
func New(emit func(codec.GestureUpdate)) *Engine {
	return &Engine{emit: emit, now: time.Now, buffers: make(map[string]*buffer)}
}

// ErrTooManyBuffers is returned by Handle when a session's gesture-buffer
// cap would be exceeded by opening a new gesture.
type ErrTooManyBuffers struct{}

func (ErrTooManyBuffers) Error() string { return "gesture buffer limit exceeded" }

// Handle processes one inbound GestureUpdate, applying coalescing and
// lifecycle invariants (spec.md §4.6):
//   - Begin and End/Cancel are never coalesced; they pass straight to emit.
//   - Update is buffered; only the most recent value within the coalescing
//     window is flushed, preserving order (no reordering, only dropping of
//     superseded intermediate Updates).
//   - No Update is accepted after a gesture has seen End/Cancel.
func (e *Engine) Handle(msg codec.GestureUpdate) error {
	e.mu.Lock()
	b, ok := e.buffers[msg.GestureID]
	if !ok {
		if msg.Phase != codec.PhaseBegin {
			e.mu.Unlock()
			// An Update/End/Cancel with no prior Begin on a torn-down or
			// unknown gesture is simply dropped: the sequence invariant
			// "no Update after termination" already holds vacuously.
			return nil
		}
		if len(e.buffers) >= MaxBuffersPerSession {
			e.mu.Unlock()
			return ErrTooManyBuffers{}
		}
		b = &buffer{}
		e.buffers[msg.GestureID] = b
	}
	e.mu.Unlock()

	b.mu.Lock()
	switch msg.Phase {
	case codec.PhaseBegin:
		b.state = phaseOpen
		b.mu.Unlock()
		e.emit(msg)
		e.armStale(msg.GestureID, b)
		return nil

	case codec.PhaseUpdate:
		if b.state != phaseOpen {
			b.mu.Unlock()
			return nil
		}
		b.latest = msg
		already := b.pending
		b.pending = true
		if !already {
			b.timer = time.AfterFunc(CoalesceWindow, func() { e.flush(msg.GestureID, b) })
		}
		b.mu.Unlock()
		e.resetStale(msg.GestureID, b)
		return nil

	case codec.PhaseEnd, codec.PhaseCancel:
		wasOpen := b.state == phaseOpen
		b.state = phaseClosed
		pendingLatest, hadPending := b.latest, b.pending
		b.pending = false
		if b.timer != nil {
			b.timer.Stop()
		}
		if b.stale != nil {
			b.stale.Stop()
		}
		b.mu.Unlock()

		if wasOpen && hadPending {
			// Flush the last coalesced value before the terminator so the
			// subscriber sees the final Update preceding End/Cancel
			// (spec.md §8 end-to-end scenario 6).
			e.emit(pendingLatest)
		}
		e.emit(msg)
		e.mu.Lock()
		delete(e.buffers, msg.GestureID)
		e.mu.Unlock()
		return nil
	}
	return nil
}

func (e *Engine) flush(id string, b *buffer) {
	b.mu.Lock()
	if !b.pending || b.state != phaseOpen {
		b.mu.Unlock()
		return
	}
	msg := b.latest
	b.pending = false
	b.mu.Unlock()
	e.emit(msg)
}

func (e *Engine) armStale(id string, b *buffer) {
	b.mu.Lock()
	b.stale = time.AfterFunc(StaleTimeout, func() { e.expire(id, b) })
	b.mu.Unlock()
}

func (e *Engine) resetStale(id string, b *buffer) {
	b.mu.Lock()
	if b.stale != nil {
		b.stale.Stop()
	}
	b.stale = time.AfterFunc(StaleTimeout, func() { e.expire(id, b) })
	b.mu.Unlock()
}

// expire synthesizes a Cancel for a gesture that has not seen an Update
// within stale_timeout of its last activity (spec.md §4.6).
func (e *Engine) expire(id string, b *buffer) {
	b.mu.Lock()
	if b.state != phaseOpen {
		b.mu.Unlock()
		return
	}
	b.state = phaseClosed
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Unlock()

	e.emit(codec.GestureUpdate{GestureID: id, Phase: codec.PhaseCancel, Timestamp: uint64(e.now().UnixMicro())})
	e.mu.Lock()
	delete(e.buffers, id)
	e.mu.Unlock()
}

// Teardown cancels every open buffer's timers without emitting a Cancel;
// called on session disconnect where the router has already decided the
// whole session is gone (spec.md §4.4 lifetime rules don't require a
// Cancel fan-out to subscribers of a torn-down session's own gestures).
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, b := range e.buffers {
		b.mu.Lock()
		if b.timer != nil {
			b.timer.Stop()
		}
		if b.stale != nil {
			b.stale.Stop()
		}
		b.mu.Unlock()
		delete(e.buffers, id)
	}
}

// Count reports the number of open gesture buffers (for resource-cap checks).
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffers)
}
