// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package capability implements the capability-token validator (spec.md
// §4.9.2): a self-describing delegation chain, prefix "cap_", where each
// link is a JWT signed by its parent's keypair and the root must chain to
// a configured trust anchor. Grounded on the teacher's JWTAuthenticator
// (internal/auth-v2/jwt.go), which parses a bearer token with
// golang-jwt and reads roles out of MapClaims — generalized from a single
// Ed25519-signed token to a chain of them, each narrowing the one before.
package capability

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumencanvas/clasp/internal/authchain"
	"github.com/lumencanvas/clasp/internal/session"
)

// Prefix is the wire prefix that routes a HELLO token to this validator.
const Prefix = "cap_"

// DefaultMaxChainDepth bounds delegation depth (spec.md §8: "a token
// whose chain depth exceeds the configured maximum MUST be rejected with
// ChainTooDeep").
const DefaultMaxChainDepth = 8

// ErrChainTooDeep, ErrBadSignature, ErrAttenuationViolation are the
// capability-specific rejections of spec.md §7's Authorization class.
var (
	ErrChainTooDeep           = errors.New("ChainTooDeep")
	ErrBadSignature           = errors.New("BadSignature")
	ErrAttenuationViolation   = errors.New("AttenuationViolation")
	ErrUnknownTrustAnchor     = errors.New("UnknownTrustAnchor")
	ErrCapabilityTokenExpired = errors.New("TokenExpired")
)

// linkClaims is the JWT claim set carried by one delegation link.
type linkClaims struct {
	jwt.RegisteredClaims
	Scopes    []claimScope `json:"scopes"`
	PublicKey string       `json:"pub"` // base64 Ed25519 public key identifying this link; signs the NEXT link
}

type claimScope struct {
	Action  string `json:"action"`
	Pattern string `json:"pattern"`
}

func (c linkClaims) toScopes() []session.Scope {
	out := make([]session.Scope, 0, len(c.Scopes))
	for _, s := range c.Scopes {
		out = append(out, session.Scope{Action: s.Action, Pattern: s.Pattern})
	}
	return out
}

// TrustAnchors is the set of configured root public keys (base64-encoded
// Ed25519), out of band per spec.md GLOSSARY's "Trust anchor".
type TrustAnchors map[string]bool

// Validator implements authchain.Validator for cap_ tokens: a
// dot-separated chain of compact JWTs, outermost (root) link first.
type Validator struct {
	TrustAnchors TrustAnchors
	MaxDepth     int
}

var _ authchain.Validator = (*Validator)(nil)

func (Validator) Prefix() string { return Prefix }

func (v Validator) maxDepth() int {
	if v.MaxDepth <= 0 {
		return DefaultMaxChainDepth
	}
	return v.MaxDepth
}

// Validate decodes and verifies a full delegation chain per spec.md
// §4.9.2's ordered checks: decode; not expired; depth <= max; every
// signature verifies; root issuer in the trust-anchor set; each
// parent->child pair narrows scopes and expiry.
func (v Validator) Validate(token string, now time.Time) (authchain.Result, error) {
	raw := strings.TrimPrefix(token, Prefix)
	links := strings.Split(raw, ".cap.")
	if len(links) == 0 || raw == "" {
		return authchain.Result{}, authchain.ErrNotMyToken
	}
	if len(links) > v.maxDepth() {
		return authchain.Result{}, ErrChainTooDeep
	}

	var (
		parentClaims *linkClaims
		chainPubKey  []byte
	)

	for i, raw := range links {
		claims := &linkClaims{}
		var verifyKey interface{}
		if i == 0 {
			// Root link: the signing key is declared by its own claims but
			// must itself be in the trust-anchor set, checked after parse.
			unverified, _, err := jwt.NewParser().ParseUnverified(raw, &linkClaims{})
			if err != nil {
				return authchain.Result{}, ErrBadSignature
			}
			rootClaims := unverified.Claims.(*linkClaims)
			pub, err := decodeEdPub(rootClaims.PublicKey)
			if err != nil {
				return authchain.Result{}, ErrBadSignature
			}
			verifyKey = pub
		} else {
			pub, err := decodeEdPub(string(chainPubKey))
			if err != nil {
				return authchain.Result{}, ErrBadSignature
			}
			verifyKey = pub
		}

		parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != "EdDSA" {
				return nil, ErrBadSignature
			}
			return verifyKey, nil
		})
		if err != nil || !parsed.Valid {
			return authchain.Result{}, ErrBadSignature
		}

		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
			return authchain.Result{}, ErrCapabilityTokenExpired
		}

		if i == 0 {
			anchorKey := claims.PublicKey
			if !v.TrustAnchors[anchorKey] {
				return authchain.Result{}, ErrUnknownTrustAnchor
			}
		} else {
			if err := checkNarrowing(parentClaims, claims); err != nil {
				return authchain.Result{}, err
			}
			if parentClaims.ExpiresAt != nil && (claims.ExpiresAt == nil || claims.ExpiresAt.After(parentClaims.ExpiresAt.Time)) {
				claims.ExpiresAt = parentClaims.ExpiresAt
			}
		}

		parentClaims = claims
		chainPubKey = []byte(claims.PublicKey)
	}

	leaf := parentClaims
	expiry := time.Time{}
	if leaf.ExpiresAt != nil {
		expiry = leaf.ExpiresAt.Time
	}
	return authchain.Result{Scopes: leaf.toScopes(), Subject: leaf.Subject, Expiry: expiry}, nil
}

// checkNarrowing enforces spec.md §4.9's scope attenuation rule between
// consecutive links: every child scope must be covered by some parent
// scope under the pattern-subset test, and expiry must not exceed the
// parent's (clamped rather than rejected, per §4.9's "child.expiry <=
// parent.expiry (otherwise clamp)" — Validate clamps the child's expiry
// to the parent's once this check passes; this check only rejects scope
// widening).
func checkNarrowing(parent, child *linkClaims) error {
	parentScopes := parent.toScopes()
	for _, cs := range child.toScopes() {
		covered := false
		for _, ps := range parentScopes {
			if attenuationOK(ps, cs) {
				covered = true
				break
			}
		}
		if !covered {
			return ErrAttenuationViolation
		}
	}
	return nil
}

// attenuationOK delegates to authchain.CheckAttenuation, which already
// implements the action-hierarchy-plus-pattern-subset rule shared with
// entity and pre-shared-key scopes.
func attenuationOK(parent, child session.Scope) bool {
	return authchain.CheckAttenuation(parent, child) == nil
}

func decodeEdPub(b64 string) (ed25519.PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(b), nil
}
