// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"testing"
	"time"

	"github.com/lumencanvas/clasp/internal/address"
	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/stretchr/testify/require"
)

func addr(t *testing.T, s string) address.Address {
	t.Helper()
	a, err := address.Parse(s)
	require.NoError(t, err)
	return a
}

func TestApplySetAcceptedIncreasesRevision(t *testing.T) {
	s := New()
	a := addr(t, "/room/temp")

	out1 := s.ApplySet(WriteRequest{Address: a, Value: codec.Float(21.0), Timestamp: 1, Writer: "A"})
	require.Equal(t, OutcomeAccepted, out1.Kind)
	require.Equal(t, uint64(1), out1.Revision)

	out2 := s.ApplySet(WriteRequest{Address: a, Value: codec.Float(21.5), Timestamp: 2, Writer: "A"})
	require.Equal(t, OutcomeAccepted, out2.Kind)
	require.Greater(t, out2.Revision, out1.Revision)
}

func TestLWWIdenticalTimestampEarlierWins(t *testing.T) {
	s := New()
	a := addr(t, "/fader/1")

	out1 := s.ApplySet(WriteRequest{Address: a, Value: codec.Float(0.1), Timestamp: 100, Writer: "A"})
	require.Equal(t, OutcomeAccepted, out1.Kind)

	out2 := s.ApplySet(WriteRequest{Address: a, Value: codec.Float(0.9), Timestamp: 100, Writer: "B"})
	require.Equal(t, OutcomeRejected, out2.Kind)
	require.Equal(t, RejectStaleTimestamp, out2.Reason)

	got, ok := s.Get(a)
	require.True(t, ok)
	v, _ := got.Value.AsFloat()
	require.Equal(t, 0.1, v)
}

func TestLockExclusion(t *testing.T) {
	s := New()
	a := addr(t, "/fader/1")
	now := time.Now()

	outA := s.ApplySet(WriteRequest{
		Address: a, Value: codec.Float(0.3), Timestamp: 1, Writer: "A",
		Strategy: LockStrategy{}, AcquireLock: true, LockTTL: 30 * time.Second, Now: now,
	})
	require.Equal(t, OutcomeAccepted, outA.Kind)

	outB := s.ApplySet(WriteRequest{
		Address: a, Value: codec.Float(0.9), Timestamp: 2, Writer: "B",
		Strategy: LockStrategy{}, Now: now,
	})
	require.Equal(t, OutcomeRejected, outB.Kind)
	require.Equal(t, RejectLocked, outB.Reason)

	got, ok := s.Get(a)
	require.True(t, ok)
	v, _ := got.Value.AsFloat()
	require.Equal(t, 0.3, v)
}

func TestLockReleasedAfterTTL(t *testing.T) {
	s := New()
	a := addr(t, "/fader/2")
	start := time.Now()

	s.ApplySet(WriteRequest{
		Address: a, Value: codec.Float(0.3), Timestamp: 1, Writer: "A",
		Strategy: LockStrategy{}, AcquireLock: true, LockTTL: time.Second, Now: start,
	})

	later := start.Add(2 * time.Second)
	out := s.ApplySet(WriteRequest{
		Address: a, Value: codec.Float(0.8), Timestamp: 2, Writer: "B",
		Strategy: LockStrategy{}, Now: later,
	})
	require.Equal(t, OutcomeAccepted, out.Kind)
}

func TestRevisionHintActsAsCompareAndSwap(t *testing.T) {
	s := New()
	a := addr(t, "/x")

	out1 := s.ApplySet(WriteRequest{Address: a, Value: codec.Int(1), Timestamp: 1, Writer: "A"})
	require.Equal(t, uint64(1), out1.Revision)

	wrongHint := uint64(99)
	out2 := s.ApplySet(WriteRequest{Address: a, Value: codec.Int(2), Timestamp: 2, Writer: "A", RevisionHint: &wrongHint})
	require.Equal(t, OutcomeRejected, out2.Kind)
	require.Equal(t, RejectRevisionConflict, out2.Reason)

	rightHint := out1.Revision
	out3 := s.ApplySet(WriteRequest{Address: a, Value: codec.Int(2), Timestamp: 2, Writer: "A", RevisionHint: &rightHint})
	require.Equal(t, OutcomeAccepted, out3.Kind)
}

func TestNullDeletesEntry(t *testing.T) {
	s := New()
	a := addr(t, "/y")
	s.ApplySet(WriteRequest{Address: a, Value: codec.Int(1), Timestamp: 1, Writer: "A"})

	out := s.ApplySet(WriteRequest{Address: a, Value: codec.Null(), Timestamp: 2, Writer: "A"})
	require.Equal(t, OutcomeDeleted, out.Kind)

	_, ok := s.Get(a)
	require.False(t, ok)
}

func TestMaxStrategy(t *testing.T) {
	s := New()
	a := addr(t, "/z")
	s.ApplySet(WriteRequest{Address: a, Value: codec.Int(5), Timestamp: 1, Writer: "A", Strategy: Max{}})

	rejected := s.ApplySet(WriteRequest{Address: a, Value: codec.Int(3), Timestamp: 2, Writer: "A", Strategy: Max{}})
	require.Equal(t, OutcomeRejected, rejected.Kind)

	accepted := s.ApplySet(WriteRequest{Address: a, Value: codec.Int(8), Timestamp: 3, Writer: "A", Strategy: Max{}})
	require.Equal(t, OutcomeAccepted, accepted.Kind)
}

func TestQueryMatchesPattern(t *testing.T) {
	s := New()
	s.ApplySet(WriteRequest{Address: addr(t, "/room/temp"), Value: codec.Float(21.5), Timestamp: 1, Writer: "A"})
	s.ApplySet(WriteRequest{Address: addr(t, "/room/humidity"), Value: codec.Float(40), Timestamp: 1, Writer: "A"})
	s.ApplySet(WriteRequest{Address: addr(t, "/other/x"), Value: codec.Int(1), Timestamp: 1, Writer: "A"})

	pat, err := address.ParsePattern("/room/**")
	require.NoError(t, err)
	results := s.Query(pat)
	require.Len(t, results, 2)
}

func TestReleaseAllLocksHeldBy(t *testing.T) {
	s := New()
	a := addr(t, "/l")
	s.ApplySet(WriteRequest{Address: a, Value: codec.Int(1), Timestamp: 1, Writer: "A", Strategy: LockStrategy{}, AcquireLock: true, LockTTL: time.Minute})
	s.ReleaseAllLocksHeldBy("A")

	out := s.ApplySet(WriteRequest{Address: a, Value: codec.Int(2), Timestamp: 2, Writer: "B", Strategy: LockStrategy{}})
	require.Equal(t, OutcomeAccepted, out.Kind)
}
