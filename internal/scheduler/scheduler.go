// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler implements the scheduled-bundle priority queue
// (spec.md §4.8): a container/heap min-heap keyed by execution timestamp,
// woken by a single time.Timer for the hot path. A paired gocron.Scheduler
// runs only coarse periodic housekeeping (a debug log of the pending
// count) — grounded on the teacher's
// taskManager.Start, which builds one gocron.Scheduler and registers
// recurring jobs against it.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/lumencanvas/clasp/pkg/log"
)

// DefaultMaxHorizon and MinHorizon bound how far in the future a
// scheduled bundle may be placed (spec.md §5: "scheduled bundle max
// horizon: implementation-defined (>= 1h, <= 24h)").
const (
	MinHorizon     = time.Hour
	DefaultMaxHorizon = 24 * time.Hour
	MaxPending     = 100_000
)

// ErrScheduleTooFar reports a bundle scheduled beyond the configured horizon.
type ErrScheduleTooFar struct{ Horizon time.Duration }

func (e ErrScheduleTooFar) Error() string { return "ScheduleTooFar" }

// ErrTooManyPending reports the global scheduled-bundle cap was hit.
type ErrTooManyPending struct{}

func (ErrTooManyPending) Error() string { return "too many pending scheduled bundles" }

// Entry is one scheduled unit of work: the caller supplies an opaque
// payload (typically a Bundle plus its originating session id) and the
// scheduler calls Fire exactly once at (or as soon as possible after) At.
type Entry struct {
	At      time.Time
	Origin  string // preserved submitting session, per spec.md §4.4
	Payload interface{}

	index int
}

type entryHeap []*Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *entryHeap) Push(x interface{}) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is the time-indexed priority queue. Fire is called, possibly
// concurrently with other Fire calls racing a fresh Submit, for every due
// entry; callers must make Fire safe for that.
type Scheduler struct {
	mu         sync.Mutex
	h          entryHeap
	timer      *time.Timer
	maxHorizon time.Duration
	now        func() time.Time

	Fire func(Entry)

	housekeeping gocron.Scheduler
}

// New builds a Scheduler. Fire is invoked once per due entry, from the
// scheduler's own goroutine; it must not block for long (spec.md §5
// suspension-point discipline).
func New(fire func(Entry)) *Scheduler {
	return &Scheduler{
		maxHorizon: DefaultMaxHorizon,
		now:        time.Now,
		Fire:       fire,
	}
}

// Start launches the housekeeping gocron.Scheduler, whose one job logs the
// pending count every minute at debug level, and shuts it down when ctx is
// cancelled. The hot-path timer does not depend on Start: Submit arms it
// directly, so a Scheduler that was never started still fires its entries.
func (s *Scheduler) Start(ctx context.Context) error {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.housekeeping = gs
	_, err = gs.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() {
			log.Debugf("scheduler: %d pending scheduled bundles", s.Len())
		}),
	)
	if err != nil {
		return err
	}
	gs.Start()

	go func() {
		<-ctx.Done()
		_ = gs.Shutdown()
	}()
	return nil
}

// Submit enqueues a bundle for execution at at. A past timestamp executes
// immediately (Submit logs a warning for it); a timestamp
// beyond maxHorizon is rejected with ErrScheduleTooFar.
func (s *Scheduler) Submit(at time.Time, origin string, payload interface{}) (*Entry, error) {
	now := s.now()
	if at.Sub(now) > s.horizon() {
		return nil, ErrScheduleTooFar{Horizon: s.horizon()}
	}

	s.mu.Lock()
	if len(s.h) >= MaxPending {
		s.mu.Unlock()
		return nil, ErrTooManyPending{}
	}
	e := &Entry{At: at, Origin: origin, Payload: payload}
	heap.Push(&s.h, e)
	s.rearm()
	s.mu.Unlock()

	if !at.After(now) {
		log.Warnf("scheduler: bundle from %s scheduled in the past, executing immediately", origin)
	}
	return e, nil
}

func (s *Scheduler) horizon() time.Duration {
	if s.maxHorizon <= 0 {
		return DefaultMaxHorizon
	}
	return s.maxHorizon
}

// SetMaxHorizon overrides the default scheduling horizon, clamped to
// [MinHorizon, DefaultMaxHorizon]; a non-positive d restores the default.
func (s *Scheduler) SetMaxHorizon(d time.Duration) {
	switch {
	case d <= 0:
		d = DefaultMaxHorizon
	case d < MinHorizon:
		d = MinHorizon
	case d > DefaultMaxHorizon:
		d = DefaultMaxHorizon
	}
	s.maxHorizon = d
}

// rearm resets the wakeup timer to fire at the earliest pending entry.
// Must be called with s.mu held.
func (s *Scheduler) rearm() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if len(s.h) == 0 {
		return
	}
	delay := s.h[0].At.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, s.wake)
}

// wake pops every due entry and dispatches it via Fire, then rearms for
// the next one.
func (s *Scheduler) wake() {
	for {
		s.mu.Lock()
		if len(s.h) == 0 || s.h[0].At.After(s.now()) {
			s.rearm()
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.h).(*Entry)
		s.mu.Unlock()

		if s.Fire != nil {
			s.Fire(*e)
		}
	}
}

// Len reports the number of pending scheduled entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.h)
}

// Cancel stops the hot-path timer; pending entries are dropped (spec.md
// §4.8: "on restart without a journal, pending bundles are lost" — Cancel
// models the same loss on shutdown). The housekeeping gocron.Scheduler is
// not stopped here; it runs until the ctx passed to Start is cancelled.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.h = nil
	s.mu.Unlock()
}
