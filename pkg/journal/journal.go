// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package journal declares the interface contract for the optional
// append-only event journal (spec.md §6): "append(entry) returns monotonic
// sequence number; since(seq, limit) returns ordered entries; latest_seq();
// snapshot(state)/load_snapshot(); compact(before_seq)." The journal itself
// is explicitly out of core scope; this package only fixes the shape the
// router programs against for Replay and Q2 durability.
package journal

import (
	"context"
	"time"

	"github.com/lumencanvas/clasp/internal/codec"
)

// Entry is one journaled message, stamped with its assigned sequence number.
type Entry struct {
	Seq       uint64
	Address   string
	Message   codec.Message
	Timestamp time.Time
}

// Journal is the consumed-optional collaborator. A nil Journal on the
// Router disables Replay and rejects Q2 writes with BackendUnavailable
// (spec.md §7).
type Journal interface {
	// Append assigns and returns the next monotonic sequence number.
	Append(ctx context.Context, addr string, msg codec.Message) (seq uint64, err error)
	// Since returns, in order, every entry with Seq > since, up to limit
	// entries (limit <= 0 means unbounded).
	Since(ctx context.Context, since uint64, limit int) ([]Entry, error)
	// LatestSeq reports the highest sequence number ever assigned.
	LatestSeq(ctx context.Context) (uint64, error)
	// Compact discards entries with Seq <= beforeSeq, if supported.
	Compact(ctx context.Context, beforeSeq uint64) error
}
