// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package subscription

import "github.com/lumencanvas/clasp/internal/address"

// patternNode is one node of the pattern-indexed trie that the Manager
// matches writes against. It is adapted from the teacher's
// memorystore.Level.children map[string]*Level radix idea (§9: "the
// subscription index is a patricia/radix-like structure keyed by address
// segments; writes [subscribe/unsubscribe] are rare relative to reads"),
// but keyed on pattern segments — including the two wildcard edges — so a
// write address is matched against a small number of candidate
// subscriptions instead of scanning every live one.
type patternNode struct {
	literal map[string]*patternNode
	star    *patternNode
	// subs terminates an exact-length pattern at this node (may itself
	// have consumed "*" edges on the way down).
	subs []*Subscription
	// tail holds subscriptions whose pattern ends in "**" at this depth:
	// they match this node's prefix plus any (including zero) further
	// address segments.
	tail []*Subscription
}

func newPatternNode() *patternNode {
	return &patternNode{literal: make(map[string]*patternNode)}
}

func (n *patternNode) childFor(seg string) *patternNode {
	if seg == "*" {
		if n.star == nil {
			n.star = newPatternNode()
		}
		return n.star
	}
	c, ok := n.literal[seg]
	if !ok {
		c = newPatternNode()
		n.literal[seg] = c
	}
	return c
}

// index inserts sub under its pattern's segments and returns the detach
// function the Manager calls on Unsubscribe.
func (root *patternNode) index(sub *Subscription) func() {
	segs := sub.Pattern.Segments()
	n := root
	for i, seg := range segs {
		if seg == "**" {
			n.tail = append(n.tail, sub)
			return func() { removeSub(&n.tail, sub) }
		}
		n = n.childFor(seg)
		if i == len(segs)-1 {
			n.subs = append(n.subs, sub)
			target := n
			return func() { removeSub(&target.subs, sub) }
		}
	}
	// Zero-segment pattern ("/"): matches only the zero-segment address.
	n.subs = append(n.subs, sub)
	target := n
	return func() { removeSub(&target.subs, sub) }
}

func removeSub(list *[]*Subscription, sub *Subscription) {
	out := (*list)[:0]
	for _, s := range *list {
		if s != sub {
			out = append(out, s)
		}
	}
	*list = out
}

// match appends every subscription reachable from root whose pattern
// matches addr's segments into out, without revisiting the same
// subscription twice (a pattern cannot be indexed at two trie positions).
func (root *patternNode) match(addr address.Address, out []*Subscription) []*Subscription {
	return matchFrom(root, addr.Segments(), out)
}

func matchFrom(n *patternNode, remaining []string, out []*Subscription) []*Subscription {
	if n == nil {
		return out
	}
	out = append(out, n.tail...)
	if len(remaining) == 0 {
		out = append(out, n.subs...)
		return out
	}
	head, rest := remaining[0], remaining[1:]
	if child, ok := n.literal[head]; ok {
		out = matchFrom(child, rest, out)
	}
	if n.star != nil {
		out = matchFrom(n.star, rest, out)
	}
	return out
}
