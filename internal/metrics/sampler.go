// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"context"
	"time"

	"github.com/lumencanvas/clasp/internal/session"
	"github.com/lumencanvas/clasp/internal/store"
	"github.com/lumencanvas/clasp/internal/subscription"
)

// Sampler periodically refreshes Registry's gauges from the router's
// collaborators, grounded on the teacher's memorystore.Checkpointing
// ticker-loop shape (tick, do work, repeat until ctx is done).
type Sampler struct {
	Registry *Registry
	Store    *store.Store
	Sessions *session.Manager
	Subs     *subscription.Manager
	Interval time.Duration
}

// Run ticks every s.Interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	if s.Sessions != nil {
		s.Registry.ActiveSessions.Set(float64(s.Sessions.Count()))
		depth := 0
		for _, sess := range s.Sessions.All() {
			depth += len(sess.Outbound())
		}
		s.Registry.OutboundQueueDepth.Set(float64(depth))
	}
	if s.Subs != nil {
		s.Registry.ActiveSubscriptions.Set(float64(len(s.Subs.All())))
	}
	if s.Store != nil {
		s.Registry.StoredParams.Set(float64(s.Store.Len()))
	}
}
