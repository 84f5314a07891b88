// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package address

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustPattern(t *testing.T, s string) Pattern {
	t.Helper()
	p, err := ParsePattern(s)
	require.NoError(t, err, s)
	return p
}

func mustAddress(t *testing.T, s string) Address {
	t.Helper()
	a, err := Parse(s)
	require.NoError(t, err, s)
	return a
}

func TestMatchExact(t *testing.T) {
	require.True(t, matches(t, "/a/b/c", "/a/b/c"))
}

func TestMatchSingleWildcard(t *testing.T) {
	require.True(t, matches(t, "/a/*/c", "/a/x/c"))
	require.False(t, matches(t, "/a/*/c", "/a/x/y/c"))
}

func TestMatchTailWildcard(t *testing.T) {
	require.True(t, matches(t, "/a/**", "/a/b/c/d"))
	require.True(t, matches(t, "/a/**", "/a"))
}

func matches(t *testing.T, pattern, addr string) bool {
	t.Helper()
	return Match(mustPattern(t, pattern), mustAddress(t, addr))
}

func TestParsePatternRejectsNonTerminalDoubleStar(t *testing.T) {
	_, err := ParsePattern("/a/**/c")
	require.Error(t, err)
}

func TestParseRejectsWildcardInAddress(t *testing.T) {
	_, err := Parse("/a/*/c")
	require.Error(t, err)
	_, err = Parse("/a/**")
	require.Error(t, err)
}

func TestParseRejectsEmptySegments(t *testing.T) {
	_, err := Parse("/a//b")
	require.Error(t, err)
	_, err = Parse("a/b")
	require.Error(t, err)
}

func TestCovers(t *testing.T) {
	require.True(t, covers(t, "/a/**", "/a/x"))
	require.False(t, covers(t, "/a/*", "/a/**"))
	require.False(t, covers(t, "/a/**", "/**"))
}

func TestCoversReflexive(t *testing.T) {
	for _, p := range []string{"/a/b/c", "/a/*/c", "/a/**", "/**"} {
		pat := mustPattern(t, p)
		require.True(t, Covers(pat, pat), p)
	}
}

func covers(t *testing.T, super, sub string) bool {
	t.Helper()
	return Covers(mustPattern(t, super), mustPattern(t, sub))
}

func TestCoversAddressVariants(t *testing.T) {
	require.True(t, Covers(mustPattern(t, "/lights/**"), mustAddress(t, "/lights/kitchen/brightness").AsPattern()))
	require.False(t, Covers(mustPattern(t, "/lights/kitchen/*"), mustAddress(t, "/lights/bedroom/brightness").AsPattern()))
	require.True(t, CoversAddress(mustPattern(t, "/lights/*"), mustAddress(t, "/lights/kitchen")))
}

func TestAsPatternIsExactMatchOnly(t *testing.T) {
	p := mustAddress(t, "/a/b").AsPattern()
	require.True(t, Match(p, mustAddress(t, "/a/b")))
	require.False(t, Match(p, mustAddress(t, "/a/b/c")))
}
