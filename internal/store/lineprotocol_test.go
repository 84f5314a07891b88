// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"testing"

	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestParseLineProtocolBatchFloatField(t *testing.T) {
	data := []byte("fader1 value=0.75 1700000000000000000\n")
	reqs, err := ParseLineProtocolBatch(data, "/console", codec.SignalParam, "bridge-1")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, "/console/fader1", reqs[0].Address.String())
	f, ok := reqs[0].Value.AsFloat()
	require.True(t, ok)
	require.Equal(t, 0.75, f)
	require.Equal(t, "bridge-1", reqs[0].Writer)
}

func TestParseLineProtocolBatchAddrTagOverridesMeasurement(t *testing.T) {
	data := []byte("sensor,addr=/room/1/temp,origin=probe-9 value=21.4 1700000000000000000\n")
	reqs, err := ParseLineProtocolBatch(data, "/unused", codec.SignalParam, "bridge-1")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, "/room/1/temp", reqs[0].Address.String())
	require.Equal(t, "probe-9", reqs[0].Origin)
}

func TestParseLineProtocolBatchMultipleLines(t *testing.T) {
	data := []byte(
		"fader1 value=0.1 1700000000000000000\n" +
			"fader2 value=0.2 1700000000000000000\n",
	)
	reqs, err := ParseLineProtocolBatch(data, "/console", codec.SignalParam, "bridge-1")
	require.NoError(t, err)
	require.Len(t, reqs, 2)
}

func TestParseLineProtocolBatchMissingValueFieldRejected(t *testing.T) {
	data := []byte("fader1 brightness=0.1 1700000000000000000\n")
	_, err := ParseLineProtocolBatch(data, "/console", codec.SignalParam, "bridge-1")
	require.Error(t, err)
}

func TestParseLineProtocolBatchBoolAndStringFields(t *testing.T) {
	data := []byte(
		"mute value=true 1700000000000000000\n" +
			"label value=\"on\" 1700000000000000000\n",
	)
	reqs, err := ParseLineProtocolBatch(data, "/console", codec.SignalParam, "bridge-1")
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	b, ok := reqs[0].Value.AsBool()
	require.True(t, ok)
	require.True(t, b)
	s, ok := reqs[1].Value.AsString()
	require.True(t, ok)
	require.Equal(t, "on", s)
}
