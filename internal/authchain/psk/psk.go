// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package psk implements the pre-shared-key validator (spec.md §4.9.1):
// an opaque bearer token, prefix "cpsk_", whose scopes are looked up from
// a server-side store rather than carried in the token itself.
package psk

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lumencanvas/clasp/internal/authchain"
	"github.com/lumencanvas/clasp/internal/session"
)

// Prefix is the wire prefix that routes a HELLO token to this validator.
const Prefix = "cpsk_"

// Record is one stored pre-shared key grant.
type Record struct {
	Subject string
	Scopes  []session.Scope
	Expiry  time.Time // zero means "does not expire"
}

// Store looks up a pre-shared key's Record; callers provide their own
// backing storage (in-memory map, sqlstore-backed table, etc).
type Store interface {
	Lookup(token string) (Record, bool)
}

// Validator implements authchain.Validator for cpsk_ tokens.
type Validator struct {
	Store Store
}

var _ authchain.Validator = (*Validator)(nil)

func (Validator) Prefix() string { return Prefix }

func (v Validator) Validate(token string, now time.Time) (authchain.Result, error) {
	rec, ok := v.Store.Lookup(token)
	if !ok {
		return authchain.Result{}, authchain.ErrNotMyToken
	}
	if !rec.Expiry.IsZero() && now.After(rec.Expiry) {
		return authchain.Result{}, tokenExpiredError{}
	}
	return authchain.Result{Scopes: rec.Scopes, Subject: rec.Subject, Expiry: rec.Expiry}, nil
}

type tokenExpiredError struct{}

func (tokenExpiredError) Error() string { return "TokenExpired" }

// MapStore is a minimal in-memory Store, useful for tests and small
// single-node deployments that don't need a durable backend.
type MapStore map[string]Record

func (m MapStore) Lookup(token string) (Record, bool) {
	rec, ok := m[token]
	return rec, ok
}

// HashedRecord is a pre-shared key grant whose secret is stored only as a
// bcrypt hash, for config files that should not carry raw tokens at rest
// (grounded on the teacher's auth.AddUserToDB, which bcrypt-hashes a
// password before it ever reaches the database).
type HashedRecord struct {
	TokenHash string // bcrypt.GenerateFromPassword output
	Subject   string
	Scopes    []session.Scope
	Expiry    time.Time
}

// HashedStore is a Store backed by bcrypt-hashed tokens. Unlike MapStore,
// a token cannot be looked up by key since the hash is one-way; Lookup is
// O(n) in the number of records.
type HashedStore []HashedRecord

func (h HashedStore) Lookup(token string) (Record, bool) {
	for _, rec := range h {
		if bcrypt.CompareHashAndPassword([]byte(rec.TokenHash), []byte(token)) == nil {
			return Record{Subject: rec.Subject, Scopes: rec.Scopes, Expiry: rec.Expiry}, true
		}
	}
	return Record{}, false
}

// HashToken bcrypt-hashes a raw PSK token for storage in a HashedRecord,
// used by operator tooling that provisions new tokens.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
