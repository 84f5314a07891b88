// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package checkpoint

import (
	"bytes"
	"testing"

	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/lumencanvas/clasp/internal/store"
	"github.com/stretchr/testify/require"
)

func TestWriteReadSnapshotRoundTrip(t *testing.T) {
	states := []store.ParamState{
		{
			Address:    "/room/temp",
			Value:      codec.Float(21.5),
			Revision:   3,
			Writer:     "sensor-1",
			Timestamp:  1700000000,
			Origin:     "mqtt-bridge",
			SignalType: codec.SignalParam,
		},
		{
			Address:    "/console/scene",
			Value:      codec.String("blackout"),
			Revision:   1,
			Writer:     "console-1",
			Timestamp:  1700000001,
			SignalType: codec.SignalEvent,
		},
		{
			Address: "/mix/group1",
			Value: codec.Map(
				codec.MapEntry{Key: "gain", Value: codec.Float(0.8)},
				codec.MapEntry{Key: "muted", Value: codec.Bool(false)},
			),
			Revision: 2,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, states))

	out, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	require.Len(t, out, len(states))

	require.Equal(t, "/room/temp", out[0].Address)
	f, ok := out[0].Value.AsFloat()
	require.True(t, ok)
	require.Equal(t, 21.5, f)
	require.Equal(t, uint64(3), out[0].Revision)
	require.Equal(t, "sensor-1", out[0].Writer)

	s, ok := out[1].Value.AsString()
	require.True(t, ok)
	require.Equal(t, "blackout", s)
	require.Equal(t, codec.SignalEvent, out[1].SignalType)

	m, ok := out[2].Value.AsMap()
	require.True(t, ok)
	require.Len(t, m, 2)
}

func TestWriteSnapshotEmptyStore(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, nil))

	out, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	require.Empty(t, out)
}
