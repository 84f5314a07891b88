// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package authchain

import (
	"testing"
	"time"

	"github.com/lumencanvas/clasp/internal/address"
	"github.com/lumencanvas/clasp/internal/session"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	prefix string
	result Result
	err    error
}

func (s stubValidator) Prefix() string { return s.prefix }
func (s stubValidator) Validate(token string, now time.Time) (Result, error) {
	return s.result, s.err
}

func TestChainDispatchesByPrefix(t *testing.T) {
	c := NewChain(
		stubValidator{prefix: "cpsk_", result: Result{Subject: "psk-subject"}},
		stubValidator{prefix: "cap_", result: Result{Subject: "cap-subject"}},
	)
	res, err := c.Validate("cap_abc", time.Now())
	require.NoError(t, err)
	require.Equal(t, "cap-subject", res.Subject)
}

func TestChainUnknownTokenType(t *testing.T) {
	c := NewChain(stubValidator{prefix: "cpsk_", result: Result{}})
	_, err := c.Validate("ent_xyz", time.Now())
	require.ErrorIs(t, err, ErrUnknownTokenType)
}

func addr(t *testing.T, s string) address.Address {
	t.Helper()
	a, err := address.Parse(s)
	require.NoError(t, err)
	return a
}

func TestSatisfiesActionHierarchy(t *testing.T) {
	scope := session.Scope{Action: ActionWrite, Pattern: "/lights/**"}
	require.True(t, Satisfies(scope, ActionWrite, addr(t, "/lights/kitchen/brightness")))
	require.True(t, Satisfies(scope, ActionRead, addr(t, "/lights/kitchen/brightness")))
	require.False(t, Satisfies(scope, ActionAdmin, addr(t, "/lights/kitchen/brightness")))
}

func TestSatisfiesPatternMustCover(t *testing.T) {
	scope := session.Scope{Action: ActionWrite, Pattern: "/lights/**"}
	require.False(t, Satisfies(scope, ActionWrite, addr(t, "/audio/master")))
}

func TestCheckAttenuationRejectsWidening(t *testing.T) {
	parent := session.Scope{Action: ActionWrite, Pattern: "/lights/*"}
	child := session.Scope{Action: ActionWrite, Pattern: "/lights/**"}
	err := CheckAttenuation(parent, child)
	require.ErrorIs(t, err, ErrAttenuationViolation)
}

func TestCheckAttenuationAcceptsNarrowing(t *testing.T) {
	parent := session.Scope{Action: ActionAdmin, Pattern: "/**"}
	child := session.Scope{Action: ActionWrite, Pattern: "/lights/**"}
	require.NoError(t, CheckAttenuation(parent, child))
}
