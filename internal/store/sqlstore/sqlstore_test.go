// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq1, err := s.Append(ctx, "/room/temp", codec.Set{Address: "/room/temp", Value: codec.Float(21.0)})
	require.NoError(t, err)
	seq2, err := s.Append(ctx, "/room/temp", codec.Set{Address: "/room/temp", Value: codec.Float(22.0)})
	require.NoError(t, err)
	require.Greater(t, seq2, seq1)

	latest, err := s.LatestSeq(ctx)
	require.NoError(t, err)
	require.Equal(t, seq2, latest)
}

func TestSinceReturnsEntriesInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, "/a", codec.Publish{Address: "/a", Value: codec.Int(int64(i))})
		require.NoError(t, err)
	}

	entries, err := s.Since(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "/a", entries[0].Address)
	require.Less(t, entries[0].Seq, entries[1].Seq)
}

func TestSinceRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, "/a", codec.Publish{Address: "/a", Value: codec.Int(int64(i))})
		require.NoError(t, err)
	}

	entries, err := s.Since(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestCompactRemovesOldEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var lastSeq uint64
	for i := 0; i < 3; i++ {
		seq, err := s.Append(ctx, "/a", codec.Publish{Address: "/a", Value: codec.Int(int64(i))})
		require.NoError(t, err)
		lastSeq = seq
	}

	require.NoError(t, s.Compact(ctx, lastSeq-1))

	entries, err := s.Since(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, lastSeq, entries[0].Seq)
}
