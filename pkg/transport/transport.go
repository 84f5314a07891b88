// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport declares the interface contract for the bidirectional
// framed-byte pipes clasp's core consumes (spec.md §6). Concrete
// implementations — WebSocket, QUIC, UDP, TCP, WebRTC, Serial, BLE — are
// explicitly out of core scope (spec.md §1); this package only fixes the
// shape an adapter implements. The router does not import it, and
// cmd/claspd wires no adapter.
package transport

import "context"

// Transport is a connected peer's framed-byte pipe. Recv/Send operate on
// whole frames (the codec has already been applied by the caller's read
// pump, or will be applied before Send); Transport itself is
// byte-oriented and protocol-agnostic.
type Transport interface {
	// Recv blocks until a complete frame's bytes are available, ctx is
	// cancelled, or an error occurs.
	Recv(ctx context.Context) ([]byte, error)
	// Send writes one complete frame's bytes.
	Send(ctx context.Context, frame []byte) error
	// Close tears down the underlying connection.
	Close() error
}

// Listener accepts new Transport connections; a bridge or transport
// adapter implements this to hand connections to the router.
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Close() error
}
