// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package adminhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumencanvas/clasp/internal/authchain"
	"github.com/lumencanvas/clasp/internal/router"
	"github.com/lumencanvas/clasp/internal/scheduler"
	"github.com/lumencanvas/clasp/internal/session"
	"github.com/lumencanvas/clasp/internal/store"
	"github.com/lumencanvas/clasp/internal/subscription"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *router.Router {
	return router.New(
		router.DefaultConfig(),
		store.New(),
		subscription.NewManager(),
		session.NewManager(),
		scheduler.New(nil),
		authchain.NewChain(),
		nil,
		nil,
	)
}

func TestHealthzReportsOK(t *testing.T) {
	rtr := newTestRouter()
	srv := New(rtr, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestListSessionsEmpty(t *testing.T) {
	rtr := newTestRouter()
	srv := New(rtr, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rw := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var sessions []sessionInfo
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &sessions))
	require.Empty(t, sessions)
}

func TestDisconnectUnknownSessionReturnsNotFound(t *testing.T) {
	rtr := newTestRouter()
	srv := New(rtr, nil)

	req := httptest.NewRequest(http.MethodPost, "/sessions/does-not-exist/disconnect", nil)
	rw := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rw, req)

	require.Equal(t, http.StatusNotFound, rw.Code)
}

func TestMetricsRouteAbsentWithoutRegistry(t *testing.T) {
	rtr := newTestRouter()
	srv := New(rtr, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rw := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rw, req)

	require.Equal(t, http.StatusNotFound, rw.Code)
}
