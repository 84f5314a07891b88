// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package adminhttp is the introspection/operations HTTP surface: list
// sessions and subscriptions, force-disconnect a session, and expose
// /healthz and /metrics. Grounded on the teacher's cmd/cc-backend/server.go
// (gorilla/mux router, gorilla/handlers CORS/Compress/Recovery/logging
// middleware stack) — the teacher's router serves a GraphQL API and a web
// UI; this one serves a narrow JSON admin surface over the same
// gorilla/mux + gorilla/handlers combination.
package adminhttp

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/lumencanvas/clasp/internal/metrics"
	"github.com/lumencanvas/clasp/internal/router"
	"github.com/lumencanvas/clasp/pkg/log"
)

// Server wraps a router.Router with a read/operate HTTP surface. One
// Server is built per process and bound to config.ProgramConfig.AdminAddr.
type Server struct {
	Router  *router.Router
	Metrics *metrics.Registry // nil disables /metrics

	handler http.Handler
}

// New builds the mux.Router and middleware stack; call Handler to get the
// resulting http.Handler to pass to an http.Server.
func New(rtr *router.Router, reg *metrics.Registry) *Server {
	s := &Server{Router: rtr, Metrics: reg}

	mx := mux.NewRouter()
	mx.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	mx.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	mx.HandleFunc("/sessions/{id}/disconnect", s.handleDisconnectSession).Methods(http.MethodPost)
	mx.HandleFunc("/subscriptions", s.handleListSubscriptions).Methods(http.MethodGet)
	if reg != nil {
		mx.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)
	}

	mx.Use(handlers.CompressHandler)
	mx.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	mx.Use(handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		handlers.AllowedOrigins([]string{"*"}),
	))

	s.handler = handlers.CustomLoggingHandler(io.Discard, mx, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("adminhttp: %s %s -> %d", params.Request.Method, params.URL.Path, params.StatusCode)
	})
	return s
}

// Handler returns the fully wrapped http.Handler for this Server.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) handleHealthz(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(map[string]string{"status": "ok"})
}

type sessionInfo struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	LastSeen    time.Time `json:"lastSeen"`
}

func (s *Server) handleListSessions(rw http.ResponseWriter, r *http.Request) {
	sessions := s.Router.Sessions.All()
	out := make([]sessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionInfo{
			ID:          sess.ID,
			DisplayName: sess.DisplayName,
			LastSeen:    sess.LastSeen(),
		})
	}
	writeJSON(rw, out)
}

func (s *Server) handleDisconnectSession(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.Router.Sessions.Get(id)
	if !ok {
		rw.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(rw).Encode(map[string]string{"error": "no such session"})
		return
	}
	s.Router.HandleDisconnect(r.Context(), sess)
	rw.WriteHeader(http.StatusNoContent)
}

type subscriptionInfo struct {
	ID      string `json:"id"`
	Owner   string `json:"owner"`
	Pattern string `json:"pattern"`
}

func (s *Server) handleListSubscriptions(rw http.ResponseWriter, r *http.Request) {
	subs := s.Router.Subs.All()
	out := make([]subscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionInfo{
			ID:      sub.ID,
			Owner:   sub.Owner,
			Pattern: sub.Pattern.String(),
		})
	}
	writeJSON(rw, out)
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Warnf("adminhttp: encoding response: %v", err)
	}
}
