// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package entity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDirectory map[string]Record

func (d fakeDirectory) Lookup(ctx context.Context, entityID string) (Record, error) {
	rec, ok := d[entityID]
	if !ok {
		return Record{}, errNotFound{}
	}
	return rec, nil
}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

func sign(t *testing.T, priv ed25519.PrivateKey, entityID string, issuedAt time.Time) string {
	t.Helper()
	msg := entityID + "|" + issuedAt.UTC().Format(time.RFC3339)
	sig := ed25519.Sign(priv, []byte(msg))
	return base64.StdEncoding.EncodeToString(sig)
}

func TestValidEntityToken(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	issuedAt := time.Now()
	dir := fakeDirectory{"device-1": {EntityID: "device-1", PublicKey: pub, IssuedAt: issuedAt}}
	v := Validator{Directory: dir}

	sig := sign(t, priv, "device-1", issuedAt)
	res, err := v.Validate(Prefix+"device-1."+sig, time.Now())
	require.NoError(t, err)
	require.Equal(t, "device-1", res.Subject)
}

func TestRevokedEntityRejected(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	issuedAt := time.Now()
	dir := fakeDirectory{"device-1": {EntityID: "device-1", PublicKey: pub, IssuedAt: issuedAt, Revoked: true}}
	v := Validator{Directory: dir}

	sig := sign(t, priv, "device-1", issuedAt)
	_, err := v.Validate(Prefix+"device-1."+sig, time.Now())
	require.ErrorIs(t, err, ErrRevoked)
}

func TestTooOldEntityRejected(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	issuedAt := time.Now().Add(-48 * time.Hour)
	dir := fakeDirectory{"device-1": {EntityID: "device-1", PublicKey: pub, IssuedAt: issuedAt}}
	v := Validator{Directory: dir, MaxAge: 24 * time.Hour}

	sig := sign(t, priv, "device-1", issuedAt)
	_, err := v.Validate(Prefix+"device-1."+sig, time.Now())
	require.ErrorIs(t, err, ErrTooOld)
}

func TestBadSignatureRejected(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	_, otherPriv, _ := ed25519.GenerateKey(nil)
	issuedAt := time.Now()
	dir := fakeDirectory{"device-1": {EntityID: "device-1", PublicKey: pub, IssuedAt: issuedAt}}
	v := Validator{Directory: dir}

	sig := sign(t, otherPriv, "device-1", issuedAt)
	_, err := v.Validate(Prefix+"device-1."+sig, time.Now())
	require.ErrorIs(t, err, ErrBadSignature)
}
