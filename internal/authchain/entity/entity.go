// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package entity implements the entity-token validator (spec.md §4.9.3):
// a token bound to a persistent device/user/service record keyed by its
// public key. Two backing directories are supported, mirroring the
// teacher's LdapAutnenticator and the rest of the pack's OIDC-capable
// stack: a direct LDAP bind/lookup path (go-ldap/ldap/v3) for on-prem
// entity directories, and an OIDC discovery path (coreos/go-oidc/v3 +
// golang.org/x/oauth2) for entities backed by an external identity
// provider. Either directory ultimately resolves to a Record that this
// package's Ed25519 signature check and revocation/age policy apply to.
package entity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	ldap "github.com/go-ldap/ldap/v3"
	"golang.org/x/oauth2"

	"github.com/lumencanvas/clasp/internal/authchain"
	"github.com/lumencanvas/clasp/internal/session"
)

// Prefix is the wire prefix that routes a HELLO token to this validator.
const Prefix = "ent_"

// DefaultMaxAge bounds how old an entity token's issued-at may be before
// it must be refreshed (spec.md §4.9.3: "age within policy").
const DefaultMaxAge = 24 * time.Hour

var (
	ErrRevoked      = errors.New("entity revoked")
	ErrTooOld       = errors.New("entity token too old")
	ErrBadSignature = errors.New("BadSignature")
)

// Record is one persistent entity (device/user/service).
type Record struct {
	EntityID  string
	PublicKey ed25519.PublicKey
	Scopes    []session.Scope
	Revoked   bool
	IssuedAt  time.Time
}

// Directory resolves an entity id to its Record. LDAPDirectory and
// OIDCDirectory below are the two concrete implementations the pack
// supports; a deployment wires in whichever it has.
type Directory interface {
	Lookup(ctx context.Context, entityID string) (Record, error)
}

// Validator implements authchain.Validator for ent_ tokens. The wire
// token format is "ent_<entityID>.<base64-sig-over-entityID+issuedAt>".
type Validator struct {
	Directory Directory
	MaxAge    time.Duration
}

var _ authchain.Validator = (*Validator)(nil)

func (Validator) Prefix() string { return Prefix }

func (v Validator) maxAge() time.Duration {
	if v.MaxAge <= 0 {
		return DefaultMaxAge
	}
	return v.MaxAge
}

func (v Validator) Validate(token string, now time.Time) (authchain.Result, error) {
	raw := strings.TrimPrefix(token, Prefix)
	parts := strings.SplitN(raw, ".", 2)
	if len(parts) != 2 {
		return authchain.Result{}, authchain.ErrNotMyToken
	}
	entityID, sigB64 := parts[0], parts[1]

	rec, err := v.Directory.Lookup(context.Background(), entityID)
	if err != nil {
		return authchain.Result{}, authchain.ErrNotMyToken
	}
	if rec.Revoked {
		return authchain.Result{}, ErrRevoked
	}
	if now.Sub(rec.IssuedAt) > v.maxAge() {
		return authchain.Result{}, ErrTooOld
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return authchain.Result{}, ErrBadSignature
	}
	msg := entityID + "|" + rec.IssuedAt.UTC().Format(time.RFC3339)
	if !ed25519.Verify(rec.PublicKey, []byte(msg), sig) {
		return authchain.Result{}, ErrBadSignature
	}

	return authchain.Result{Scopes: rec.Scopes, Subject: rec.EntityID}, nil
}

// LDAPDirectory resolves entity records from an LDAP directory, grounded
// on the teacher's LdapAutnenticator dial/bind/search flow, generalized
// from a username/password login to an entity-record attribute lookup.
type LDAPDirectory struct {
	Addr       string
	BindDN     string
	BindPass   string
	BaseDN     string
	ToRecord   func(entry *ldap.Entry) (Record, error)
}

func (d *LDAPDirectory) Lookup(ctx context.Context, entityID string) (Record, error) {
	conn, err := ldap.DialURL(d.Addr)
	if err != nil {
		return Record{}, err
	}
	defer conn.Close()

	if err := conn.Bind(d.BindDN, d.BindPass); err != nil {
		return Record{}, err
	}

	req := ldap.NewSearchRequest(
		d.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		"(&(objectClass=claspEntity)(entityId="+ldap.EscapeFilter(entityID)+"))",
		[]string{"entityId", "publicKey", "scopes", "issuedAt", "revoked"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return Record{}, err
	}
	if len(res.Entries) != 1 {
		return Record{}, errors.New("entity not found")
	}
	return d.ToRecord(res.Entries[0])
}

// OIDCDirectory resolves entity records from claims in an OIDC provider's
// userinfo/introspection response, for deployments that federate entity
// identity to an external IdP instead of an LDAP tree.
type OIDCDirectory struct {
	Provider *oidc.Provider
	Config   oauth2.Config
	ToRecord func(claims map[string]interface{}) (Record, error)
}

func (d *OIDCDirectory) Lookup(ctx context.Context, entityID string) (Record, error) {
	userInfo, err := d.Provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: entityID}))
	if err != nil {
		return Record{}, err
	}
	var claims map[string]interface{}
	if err := userInfo.Claims(&claims); err != nil {
		return Record{}, err
	}
	return d.ToRecord(claims)
}
