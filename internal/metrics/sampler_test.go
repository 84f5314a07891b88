// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"

	"github.com/lumencanvas/clasp/internal/address"
	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/lumencanvas/clasp/internal/session"
	"github.com/lumencanvas/clasp/internal/store"
	"github.com/lumencanvas/clasp/internal/subscription"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestSamplerSampleReflectsStoreAndSessions(t *testing.T) {
	reg := New()

	st := store.New()
	a, err := address.Parse("/room/temp")
	require.NoError(t, err)
	st.ApplySet(store.WriteRequest{Address: a, Value: codec.Float(20), Writer: "w"})

	sessions := session.NewManager()
	subs := subscription.NewManager()

	s := &Sampler{Registry: reg, Store: st, Sessions: sessions, Subs: subs}
	s.sample()

	require.Equal(t, float64(1), gaugeValue(t, reg.StoredParams))
	require.Equal(t, float64(0), gaugeValue(t, reg.ActiveSessions))
	require.Equal(t, float64(0), gaugeValue(t, reg.ActiveSubscriptions))
}
