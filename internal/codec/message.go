// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import "fmt"

// SignalType enumerates the five semantic classes an address can carry.
// The router does not enforce that an address sticks to one SignalType
// over its lifetime, but it carries the type on every message (spec.md §3).
type SignalType uint8

const (
	SignalParam SignalType = iota
	SignalEvent
	SignalStream
	SignalGesture
	SignalTimeline
)

func (t SignalType) String() string {
	switch t {
	case SignalParam:
		return "param"
	case SignalEvent:
		return "event"
	case SignalStream:
		return "stream"
	case SignalGesture:
		return "gesture"
	case SignalTimeline:
		return "timeline"
	default:
		return fmt.Sprintf("signal(%d)", uint8(t))
	}
}

// QoS is the delivery-quality level carried in the frame flags byte.
type QoS uint8

const (
	QoSFire    QoS = iota // Q0: best-effort, droppable under pressure
	QoSConfirm            // Q1: single ACK required within timeout
	QoSCommit             // Q2: ACK + durable write, requires a journal
)

// GesturePhase bounds a gesture's emission sequence (§4.6).
type GesturePhase uint8

const (
	PhaseBegin GesturePhase = iota
	PhaseUpdate
	PhaseEnd
	PhaseCancel
)

// MessageType is the frozen wire type-code. Values are frozen for wire
// compatibility: never renumber an existing constant.
type MessageType uint8

const (
	TypeHello MessageType = iota + 1
	TypeWelcome
	TypeSet
	TypePublish
	TypeStreamSample
	TypeGestureUpdate
	TypeSubscribe
	TypeUnsubscribe
	TypeSnapshot
	TypeGet
	TypeResult
	TypeBundle
	TypeReplay
	TypeError
	TypeSync
	TypeUnsubscribeAck
)

// Message is the sum type over every frame payload clasp understands. Each
// variant implements Type(); concrete field access is via a type switch on
// the concrete struct, not an interface method set, so the compiler flags
// missing cases in dispatch switches.
type Message interface {
	Type() MessageType
}

// Hello is the client's handshake opener.
type Hello struct {
	DisplayName string
	Token       string
	Features    []string
	Reconnect   bool
}

func (Hello) Type() MessageType { return TypeHello }

// Welcome replies to a successful Hello.
type Welcome struct {
	SessionID string
	Features  []string // the features the Hello advertised, echoed back unchanged; the router does not intersect them with a supported-feature set
}

func (Welcome) Type() MessageType { return TypeWelcome }

// Set writes a Param value into the state store.
type Set struct {
	Address      string
	Value        Value
	SignalType   SignalType
	Timestamp    uint64 // microseconds since the shared epoch
	RevisionHint *uint64
	Lock         bool
	Strategy     string // "" selects the store default (LWW)
	Origin       string
	QoS          QoS
	Sequence     uint32 // (session, sequence) dedup key for Q1 retries
}

func (Set) Type() MessageType { return TypeSet }

// Publish carries an Event or Stream signal: no state update.
type Publish struct {
	Address    string
	Value      Value
	SignalType SignalType
	Timestamp  uint64
	Origin     string
	QoS        QoS
}

func (Publish) Type() MessageType { return TypePublish }

// StreamSample is fire-and-forget high-rate data, droppable under backpressure.
type StreamSample struct {
	Address   string
	Value     Value
	Timestamp uint64
}

func (StreamSample) Type() MessageType { return TypeStreamSample }

// GestureUpdate carries one phase of a coalesced gesture.
type GestureUpdate struct {
	GestureID string
	Address   string
	Phase     GesturePhase
	Value     Value
	Timestamp uint64
}

func (GestureUpdate) Type() MessageType { return TypeGestureUpdate }

// Subscribe creates a live subscription.
type Subscribe struct {
	SubscriptionID   string
	Pattern          string
	SignalTypeFilter []SignalType // empty means "all types"
	MaxRate          float64      // updates/second, 0 = unlimited
	Epsilon          float64      // numeric dead-band, 0 = disabled
	SnapshotOnSub    bool
}

func (Subscribe) Type() MessageType { return TypeSubscribe }

// Unsubscribe removes a subscription; idempotent.
type Unsubscribe struct {
	SubscriptionID string
}

func (Unsubscribe) Type() MessageType { return TypeUnsubscribe }

// Snapshot bulk-delivers matching Params at subscribe time.
type Snapshot struct {
	SubscriptionID string
	Entries        []SnapshotEntry
}

func (Snapshot) Type() MessageType { return TypeSnapshot }

// SnapshotEntry is one Param state enumerated into a Snapshot.
type SnapshotEntry struct {
	Address    string
	Value      Value
	Revision   uint64
	SignalType SignalType
}

// Get requests the current value of an address.
type Get struct {
	Address string
}

func (Get) Type() MessageType { return TypeGet }

// Result replies to Get (or echoes a handler outcome) with a ParamState or Null.
type Result struct {
	Address  string
	Value    Value
	Revision uint64
	Found    bool
}

func (Result) Type() MessageType { return TypeResult }

// Bundle groups messages for atomic (or scheduled) application.
type Bundle struct {
	Messages         []Message
	ScheduledAtMicro uint64 // 0 means "execute immediately"
}

func (Bundle) Type() MessageType { return TypeBundle }

// Replay requests journal playback (requires the journal collaborator).
type Replay struct {
	Pattern string
	SinceID uint64
	Limit   int
}

func (Replay) Type() MessageType { return TypeReplay }

// Error reports a per-message or session-terminal failure (§7).
type Error struct {
	Code          int
	Reason        string
	CorrelationID string
}

func (Error) Type() MessageType { return TypeError }

// Sync carries the four-timestamp clock exchange (§4.7).
type Sync struct {
	T1 uint64
	T2 uint64
	T3 uint64
	T4 uint64
}

func (Sync) Type() MessageType { return TypeSync }

// UnsubscribeAck confirms an Unsubscribe was processed; emitted by the
// router but not required by the wire contract, kept idempotent like its
// request.
type UnsubscribeAck struct {
	SubscriptionID string
}

func (UnsubscribeAck) Type() MessageType { return TypeUnsubscribeAck }
