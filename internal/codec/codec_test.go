// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	encoded, err := Encode(msg)
	require.NoError(t, err)
	decoded, n, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	return decoded
}

func TestRoundTripEveryMessageType(t *testing.T) {
	rev := uint64(7)
	cases := []Message{
		Hello{DisplayName: "lamp-1", Token: "cpsk_abc", Features: []string{"bundle", "sync"}, Reconnect: true},
		Welcome{SessionID: "sess-1", Features: []string{"bundle"}},
		Set{
			Address: "/lights/kitchen/brightness", Value: Float(0.75), SignalType: SignalParam,
			Timestamp: 1234, RevisionHint: &rev, Lock: false, Strategy: "lww", Origin: "rule:1", QoS: QoSConfirm, Sequence: 9,
		},
		Set{Address: "/fader/1", Value: Null(), SignalType: SignalParam, Timestamp: 99},
		Publish{Address: "/events/clap", Value: Bool(true), SignalType: SignalEvent, Timestamp: 5, QoS: QoSFire},
		StreamSample{Address: "/audio/level", Value: Float(-3.2), Timestamp: 42},
		GestureUpdate{GestureID: "g1", Address: "/touch/0", Phase: PhaseUpdate, Value: Array(Float(0.1), Float(0.2)), Timestamp: 16},
		Subscribe{
			SubscriptionID: "sub1", Pattern: "/lights/*/brightness",
			SignalTypeFilter: []SignalType{SignalParam}, MaxRate: 30, Epsilon: 0.001, SnapshotOnSub: true,
		},
		Unsubscribe{SubscriptionID: "sub1"},
		Snapshot{SubscriptionID: "sub1", Entries: []SnapshotEntry{
			{Address: "/room/temp", Value: Float(21.5), Revision: 3, SignalType: SignalParam},
		}},
		Get{Address: "/room/temp"},
		Result{Address: "/room/temp", Value: Float(21.5), Revision: 3, Found: true},
		Bundle{Messages: []Message{
			Set{Address: "/light/1", Value: Float(1.0), SignalType: SignalParam},
			Set{Address: "/light/2", Value: Float(0.0), SignalType: SignalParam},
		}, ScheduledAtMicro: 100000},
		Replay{Pattern: "/room/**", SinceID: 10, Limit: 50},
		Error{Code: 300, Reason: "permission denied", CorrelationID: "corr-1"},
		Sync{T1: 1, T2: 2, T3: 3, T4: 4},
		UnsubscribeAck{SubscriptionID: "sub1"},
		Set{Address: "/state/config", Value: Map(
			MapEntry{Key: "a", Value: Int(1)},
			MapEntry{Key: "b", Value: String("two")},
		), SignalType: SignalParam},
	}

	for _, msg := range cases {
		got := roundTrip(t, msg)
		require.Equal(t, msg, got, "round trip of %T", msg)
	}
}

func TestDecodeTruncatedNeverPanics(t *testing.T) {
	full, err := Encode(Set{Address: "/a/b/c", Value: Float(1), SignalType: SignalParam})
	require.NoError(t, err)

	for n := 0; n < len(full); n++ {
		_, _, err := Decode(full[:n])
		require.Error(t, err, "prefix of length %d should fail, not panic", n)
	}
}

func TestDecodeBadMagicByte(t *testing.T) {
	_, _, err := Decode([]byte{0x00, 0x01, 0x00, 0x00})
	require.Error(t, err)
}

func TestDecodeUnknownTypeCode(t *testing.T) {
	w := &writer{}
	w.byte(MagicByte)
	w.byte(0xFE) // not a registered type-code
	w.byte(0)
	w.varUint(0)
	_, _, err := Decode(w.Bytes())
	require.Error(t, err)
}

func TestEncodeRejectsOversizeFrame(t *testing.T) {
	huge := make([]byte, MaxFrameSize+1)
	_, err := Encode(Set{Address: "/a", Value: Bytes(huge), SignalType: SignalParam})
	require.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestSetFitsTargetSize(t *testing.T) {
	encoded, err := Encode(Set{Address: "/a/b", Value: Float(0.75), SignalType: SignalParam})
	require.NoError(t, err)
	require.LessOrEqual(t, len(encoded), 32, "a short SET carrying a float must fit in <=32 bytes")
}

func FuzzDecodeNeverPanics(f *testing.F) {
	seed, _ := Encode(Set{Address: "/a/b", Value: Float(1.5), SignalType: SignalParam})
	f.Add(seed)
	f.Add([]byte{MagicByte})
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Decode panicked on input %x: %v", data, r)
			}
		}()
		_, _, _ = Decode(data)
	})
}
