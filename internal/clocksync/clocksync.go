// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package clocksync implements the four-timestamp clock-offset estimator
// and jitter buffer described in spec.md §4.7.
package clocksync

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// EMAAlpha and MinSamples are the smoothing constants spec.md §4.7 fixes:
// "EMA over the last N samples (α = 0.3, N ≥ 5)".
const (
	EMAAlpha   = 0.3
	MinSamples = 5
)

// OutlierRTTFactor rejects any sample whose RTT exceeds the running
// median RTT by more than this factor.
const OutlierRTTFactor = 3.0

// DefaultQualityThreshold and DefaultResyncInterval feed NeedsSync.
const (
	DefaultQualityThreshold = 0.5
	DefaultResyncInterval   = 30 * time.Second
)

// Sample is one completed four-timestamp exchange, in microseconds since
// the shared epoch.
type Sample struct {
	T1, T2, T3, T4 uint64
}

// Offset and RTT per spec.md §4.7:
//
//	offset = ((t2 - t1) + (t3 - t4)) / 2
//	rtt    = (t4 - t1) - (t3 - t2)
func (s Sample) Offset() float64 {
	return (float64(int64(s.T2)-int64(s.T1)) + float64(int64(s.T3)-int64(s.T4))) / 2
}

func (s Sample) RTT() float64 {
	return float64(int64(s.T4)-int64(s.T1)) - float64(int64(s.T3)-int64(s.T2))
}

// Estimator maintains a per-session offset/RTT/quality estimate.
type Estimator struct {
	mu sync.Mutex

	rtts       []float64 // recent accepted RTTs, for outlier median
	offsetEMA  float64
	haveEMA    bool
	rtt        float64
	jitter     float64
	samples    int
	lastSample time.Time

	qualityThreshold float64
	resyncInterval   time.Duration

	clock clockwork.Clock
}

// New builds an Estimator with the package default thresholds, using the
// real wall clock.
func New() *Estimator {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock builds an Estimator against an injected clockwork.Clock,
// letting tests of NeedsSync's staleness check advance time deterministically
// instead of sleeping.
func NewWithClock(clock clockwork.Clock) *Estimator {
	return &Estimator{
		qualityThreshold: DefaultQualityThreshold,
		resyncInterval:   DefaultResyncInterval,
		clock:            clock,
	}
}

// Observe folds one Sync exchange into the estimate, rejecting outliers
// whose RTT exceeds median·3 once enough history exists. Returns false if
// the sample was rejected as an outlier.
func (e *Estimator) Observe(s Sample) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rtt := s.RTT()
	if len(e.rtts) >= MinSamples {
		med := median(e.rtts)
		if med > 0 && rtt > med*OutlierRTTFactor {
			return false
		}
	}

	offset := s.Offset()
	if !e.haveEMA {
		e.offsetEMA = offset
		e.haveEMA = true
	} else {
		prevJitter := math.Abs(offset - e.offsetEMA)
		e.jitter = e.jitter*(1-EMAAlpha) + prevJitter*EMAAlpha
		e.offsetEMA = e.offsetEMA*(1-EMAAlpha) + offset*EMAAlpha
	}
	e.rtt = rtt
	e.rtts = append(e.rtts, rtt)
	if len(e.rtts) > 32 {
		e.rtts = e.rtts[len(e.rtts)-32:]
	}
	e.samples++
	e.lastSample = e.clock.Now()
	return true
}

func median(vs []float64) float64 {
	sorted := append([]float64(nil), vs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Offset returns the current EMA-smoothed clock offset estimate (server
// time minus local time), in microseconds.
func (e *Estimator) Offset() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offsetEMA
}

// RTT returns the most recently accepted round-trip time, in microseconds.
func (e *Estimator) RTT() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rtt
}

// Jitter returns the EMA-smoothed absolute offset deviation.
func (e *Estimator) Jitter() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jitter
}

// scoreComponent maps a raw metric to [0,1] where 0 is worst and 1 is
// best, via a simple inverse-decay curve anchored at scale.
func scoreComponent(value, scale float64) float64 {
	if value <= 0 {
		return 1
	}
	return scale / (scale + value)
}

// Quality computes the composite score of spec.md §4.7:
//
//	quality = 0.4*f(rtt) + 0.4*f(jitter) + 0.2*f(samples)
func (e *Estimator) Quality() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	fRTT := scoreComponent(e.rtt, 20_000)       // 20ms RTT ~ half credit
	fJitter := scoreComponent(e.jitter, 5_000)  // 5ms jitter ~ half credit
	fSamples := math.Min(1, float64(e.samples)/float64(MinSamples*2))
	return 0.4*fRTT + 0.4*fJitter + 0.2*fSamples
}

// NeedsSync reports whether quality has dropped below threshold or the
// last sample is older than the resync interval.
func (e *Estimator) NeedsSync() bool {
	e.mu.Lock()
	last := e.lastSample
	stale := last.IsZero() || e.clock.Now().Sub(last) > e.resyncInterval
	e.mu.Unlock()
	return stale || e.Quality() < e.qualityThreshold
}

// ToServerTime converts a local-clock microsecond timestamp to the
// estimated server time.
func (e *Estimator) ToServerTime(localMicros uint64) uint64 {
	return uint64(int64(localMicros) + int64(e.Offset()))
}

// ToLocalTime converts a server-clock microsecond timestamp to the
// estimated local time.
func (e *Estimator) ToLocalTime(serverMicros uint64) uint64 {
	return uint64(int64(serverMicros) - int64(e.Offset()))
}

// Samples reports how many accepted samples have contributed to the estimate.
func (e *Estimator) Samples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.samples
}
