// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package federation adapts a nats.go connection into a peer-to-peer
// Link for mirroring Set/Publish traffic between clasp nodes (spec.md
// §6, federation link collaborator; out of core scope but documented as
// a pluggable adapter). Grounded on the teacher's pkg/nats: connection
// options (reconnect/error handlers), a mutex-protected subscription
// list, and Publish/Subscribe/Close — adapted from a process-wide
// singleton client into a per-peer Link carrying its own lifecycle
// state machine.
package federation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lumencanvas/clasp/pkg/log"
)

// State is a Link's position in its connection lifecycle.
type State int

const (
	Connecting State = iota
	Handshaking
	Syncing
	Active
	Disconnected
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Syncing:
		return "syncing"
	case Active:
		return "active"
	case Disconnected:
		return "disconnected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MirrorHandler receives a mirrored frame's address and payload bytes
// from a peer; the caller re-dispatches it through the local router.
type MirrorHandler func(address string, payload []byte)

// Config describes how to reach one federation peer.
type Config struct {
	PeerID  string
	Address string // nats://host:port
	Subject string // subject prefix this link mirrors, e.g. "clasp.federation.<peer>"
}

// Link is one connection to a peer clasp node. Its State transitions
// Connecting -> Handshaking -> Syncing -> Active on a clean join, or to
// Disconnected/Failed on the way out; a disconnected Link returns to
// Handshaking when nats.go's own reconnect logic re-establishes the
// connection.
type Link struct {
	cfg Config

	mu            sync.Mutex
	conn          *nats.Conn
	subscriptions []*nats.Subscription
	state         State
}

// Dial opens a Link to the peer described by cfg. The Link starts in
// Connecting and moves to Handshaking once the NATS connection is
// established; callers drive Handshaking -> Syncing -> Active themselves
// once their own join handshake (address-space capability exchange)
// completes.
func Dial(cfg Config) (*Link, error) {
	l := &Link{cfg: cfg, state: Connecting}

	opts := []nats.Option{
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.setState(Disconnected)
			if err != nil {
				log.Warnf("federation: peer %s disconnected: %v", cfg.PeerID, err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.setState(Handshaking)
			log.Infof("federation: peer %s reconnected at %s", cfg.PeerID, nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Errorf("federation: peer %s error: %v", cfg.PeerID, err)
		}),
	}

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		l.setState(Failed)
		return nil, fmt.Errorf("federation: dialing peer %s: %w", cfg.PeerID, err)
	}

	l.conn = nc
	l.setState(Handshaking)
	return l, nil
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// State reports the Link's current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// MarkActive transitions the Link to Active once the caller's join
// handshake and initial state sync have completed.
func (l *Link) MarkActive() { l.setState(Active) }

// MarkSyncing transitions the Link to Syncing, e.g. while replaying a
// snapshot of the mirrored address subtree to the new peer.
func (l *Link) MarkSyncing() { l.setState(Syncing) }

// Mirror publishes addr/payload to the peer's federation subject.
func (l *Link) Mirror(addr string, payload []byte) error {
	subject := l.cfg.Subject + "." + addr
	if err := l.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("federation: mirroring to peer %s: %w", l.cfg.PeerID, err)
	}
	return nil
}

// OnMirror subscribes handler to every frame the peer mirrors back.
func (l *Link) OnMirror(handler MirrorHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub, err := l.conn.Subscribe(l.cfg.Subject+".>", func(msg *nats.Msg) {
		handler(strings.TrimPrefix(msg.Subject, l.cfg.Subject+"."), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("federation: subscribing to peer %s: %w", l.cfg.PeerID, err)
	}
	l.subscriptions = append(l.subscriptions, sub)
	return nil
}

// Ping round-trips a request to the peer to confirm liveness within
// timeout, used by a federation health-check loop.
func (l *Link) Ping(ctx context.Context, timeout time.Duration) error {
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := l.conn.RequestWithContext(c, l.cfg.Subject+".ping", nil)
	return err
}

// Close tears down every subscription and the underlying connection.
func (l *Link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, sub := range l.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("federation: unsubscribe failed for peer %s: %v", l.cfg.PeerID, err)
		}
	}
	l.subscriptions = nil

	if l.conn != nil {
		l.conn.Close()
	}
	l.state = Disconnected
}
