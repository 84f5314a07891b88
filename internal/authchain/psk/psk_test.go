// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package psk

import (
	"testing"
	"time"

	"github.com/lumencanvas/clasp/internal/authchain"
	"github.com/lumencanvas/clasp/internal/session"
	"github.com/stretchr/testify/require"
)

func TestValidateKnownToken(t *testing.T) {
	v := Validator{Store: MapStore{
		"cpsk_abc": {Subject: "console-1", Scopes: []session.Scope{{Action: "write", Pattern: "/lights/**"}}},
	}}
	res, err := v.Validate("cpsk_abc", time.Now())
	require.NoError(t, err)
	require.Equal(t, "console-1", res.Subject)
}

func TestValidateUnknownTokenFallsThrough(t *testing.T) {
	v := Validator{Store: MapStore{}}
	_, err := v.Validate("cpsk_missing", time.Now())
	require.ErrorIs(t, err, authchain.ErrNotMyToken)
}

func TestValidateExpiredToken(t *testing.T) {
	v := Validator{Store: MapStore{
		"cpsk_old": {Subject: "x", Expiry: time.Now().Add(-time.Hour)},
	}}
	_, err := v.Validate("cpsk_old", time.Now())
	require.Error(t, err)
}
