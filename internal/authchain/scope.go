// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package authchain

import (
	"github.com/lumencanvas/clasp/internal/address"
	"github.com/lumencanvas/clasp/internal/session"
)

// Built-in actions with the hierarchy of spec.md §4.9: "admin permits any
// child action; write permits write and read; read permits only read;
// custom actions require exact-string match".
const (
	ActionAdmin = "admin"
	ActionWrite = "write"
	ActionRead  = "read"
)

// actionSatisfies reports whether granted is at least as strong as
// requested under the built-in hierarchy, falling back to exact match for
// any custom action name.
func actionSatisfies(granted, requested string) bool {
	if granted == requested {
		return true
	}
	switch granted {
	case ActionAdmin:
		return true
	case ActionWrite:
		return requested == ActionRead
	default:
		return false
	}
}

// Satisfies answers spec.md §4.9's request-satisfaction rule: "a request
// for action:addr is satisfied by a scope s_action:s_pattern iff
// s_action >= action AND covers(s_pattern, addr)".
func Satisfies(scope session.Scope, action string, addr address.Address) bool {
	if !actionSatisfies(scope.Action, action) {
		return false
	}
	pat, err := address.ParsePattern(scope.Pattern)
	if err != nil {
		return false
	}
	return address.CoversAddress(pat, addr)
}

// Authorized reports whether any scope in scopes satisfies action:addr.
func Authorized(scopes []session.Scope, action string, addr address.Address) bool {
	for _, s := range scopes {
		if Satisfies(s, action, addr) {
			return true
		}
	}
	return false
}

// ErrAttenuationViolation is returned when a delegated scope is wider
// than (or not a pattern-subset of) its parent's scope (spec.md §4.9:
// "patterns wider than parent's... are rejected with AttenuationViolation").
var ErrAttenuationViolation = errAttenuationViolation{}

type errAttenuationViolation struct{}

func (errAttenuationViolation) Error() string { return "AttenuationViolation" }

// CheckAttenuation validates that a child scope is a legal narrowing of a
// parent scope: the child's action must not exceed the parent's, and the
// child's pattern must be covered by (a subset of) the parent's pattern.
func CheckAttenuation(parent, child session.Scope) error {
	if !actionSatisfies(parent.Action, child.Action) {
		return ErrAttenuationViolation
	}
	parentPat, err := address.ParsePattern(parent.Pattern)
	if err != nil {
		return err
	}
	childPat, err := address.ParsePattern(child.Pattern)
	if err != nil {
		return err
	}
	if !address.Covers(parentPat, childPat) {
		return ErrAttenuationViolation
	}
	return nil
}
