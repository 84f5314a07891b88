// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package authchain implements the token validation chain (spec.md §4.9):
// a prefix-dispatched list of validators, each advertising the token
// prefix it owns. Modeled on the teacher's auth-v2.Authentication, which
// holds an ordered []Authenticator slice and walks it trying each in turn
// (internal/auth-v2/auth.go) — generalized here from HTTP login to opaque
// bearer-token validation, and from a single terminal success to an
// explicit NotMyToken signal so the chain can fall through cleanly.
package authchain

import (
	"errors"
	"strings"
	"time"

	"github.com/lumencanvas/clasp/internal/session"
)

// ErrNotMyToken is returned by a Validator that does not recognize the
// token's prefix; the chain continues to the next validator.
var ErrNotMyToken = errors.New("not my token")

// ErrUnknownTokenType is returned by the chain when every validator
// declines a token.
var ErrUnknownTokenType = errors.New("UnknownTokenType")

// Result is a successful validation (spec.md §4.9:
// "ValidationResult::Valid { scopes, subject, expiry }").
type Result struct {
	Scopes  []session.Scope
	Subject string
	Expiry  time.Time
}

// Validator is one token kind's checker. Prefix is matched against the
// token's leading characters before Validate is ever called; Validate
// itself may still return ErrNotMyToken for a defensive double-check.
type Validator interface {
	Prefix() string
	Validate(token string, now time.Time) (Result, error)
}

// Chain holds an ordered list of Validators and dispatches by prefix
// (spec.md §4.9: "the first matching validator is called... if all return
// NotMyToken, the chain returns UnknownTokenType").
type Chain struct {
	validators []Validator
}

// NewChain builds a Chain from an ordered validator list.
func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// Validate dispatches token to the first validator whose Prefix matches.
func (c *Chain) Validate(token string, now time.Time) (Result, error) {
	for _, v := range c.validators {
		if !strings.HasPrefix(token, v.Prefix()) {
			continue
		}
		res, err := v.Validate(token, now)
		if errors.Is(err, ErrNotMyToken) {
			continue
		}
		return res, err
	}
	return Result{}, ErrUnknownTokenType
}
