// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router implements the central dispatcher (spec.md §4.5): it
// holds references to every collaborator (state store, subscription
// manager, session manager, scheduler, per-session gesture engines, token
// validation chain, and the optional journal/rules-engine collaborators)
// and turns one inbound Message plus its originating Session into
// authorization checks, handler dispatch, and fan-out.
//
// Grounded on the teacher's internal/api.RestApi — a single struct holding
// every collaborator (JobRepository, Resolver, Authentication, ...) with
// one method per endpoint — generalized from HTTP handlers keyed by route
// to frame handlers keyed by MessageType.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumencanvas/clasp/internal/address"
	"github.com/lumencanvas/clasp/internal/authchain"
	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/lumencanvas/clasp/internal/gesture"
	"github.com/lumencanvas/clasp/internal/scheduler"
	"github.com/lumencanvas/clasp/internal/session"
	"github.com/lumencanvas/clasp/internal/store"
	"github.com/lumencanvas/clasp/internal/subscription"
	"github.com/lumencanvas/clasp/pkg/journal"
	"github.com/lumencanvas/clasp/pkg/log"
	"github.com/lumencanvas/clasp/pkg/rules"
)

// Config is the immutable configuration record passed at construction
// (spec.md §9: "pass an immutable configuration record at router
// construction; never read process-global state in message handlers").
type Config struct {
	AuthFailureWindow    time.Duration
	AuthFailureThreshold int
	MaxSubscriptions     int
	MaxQ1DedupWindow     time.Duration
}

// DefaultConfig mirrors spec.md §7/§5 defaults.
func DefaultConfig() Config {
	return Config{
		AuthFailureWindow:    30 * time.Second,
		AuthFailureThreshold: 5,
		MaxSubscriptions:     1024,
		MaxQ1DedupWindow:     5 * time.Second,
	}
}

// Router is the central demultiplexer. One Router instance is shared
// across all sessions in a process.
type Router struct {
	cfg Config

	Store     *store.Store
	Subs      *subscription.Manager
	Sessions  *session.Manager
	Scheduler *scheduler.Scheduler
	AuthChain *authchain.Chain
	Journal   journal.Journal // optional, nil disables Replay and rejects Q2
	Rules     rules.Engine    // optional, nil disables post-write rule evaluation

	gesturesMu sync.Mutex
	gestures   map[string]*gesture.Engine // session id -> engine

	dedupMu sync.Mutex
	dedup   map[string]map[uint32]time.Time // session id -> sequence -> seen-at, Q1 retry suppression
}

// New wires every collaborator into a Router and binds sched.Fire to the
// router's own scheduled-bundle dispatch.
func New(cfg Config, st *store.Store, subs *subscription.Manager, sessions *session.Manager, sched *scheduler.Scheduler, chain *authchain.Chain, jrnl journal.Journal, rulesEngine rules.Engine) *Router {
	r := &Router{
		cfg:       cfg,
		Store:     st,
		Subs:      subs,
		Sessions:  sessions,
		Scheduler: sched,
		AuthChain: chain,
		Journal:   jrnl,
		Rules:     rulesEngine,
		gestures:  make(map[string]*gesture.Engine),
		dedup:     make(map[string]map[uint32]time.Time),
	}
	if r.Scheduler != nil {
		r.Scheduler.Fire = r.fireScheduled
	}
	return r
}

// gestureEngine returns (creating if absent) the gesture engine for a
// session, wired to fan out every emitted GestureUpdate to every matching
// subscription as SignalGesture (unlike a Publish, the originating
// session's own subscriptions are not excluded) and to echo it to the
// originating session.
func (r *Router) gestureEngine(sess *session.Session) *gesture.Engine {
	r.gesturesMu.Lock()
	defer r.gesturesMu.Unlock()
	if g, ok := r.gestures[sess.ID]; ok {
		return g
	}
	g := gesture.New(func(upd codec.GestureUpdate) {
		r.fanOutGesture(sess, upd)
	})
	r.gestures[sess.ID] = g
	return g
}

func (r *Router) dropGestureEngine(sessionID string) {
	r.gesturesMu.Lock()
	if g, ok := r.gestures[sessionID]; ok {
		g.Teardown()
		delete(r.gestures, sessionID)
	}
	r.gesturesMu.Unlock()
}

func (r *Router) fanOutGesture(sess *session.Session, upd codec.GestureUpdate) {
	addr, err := address.Parse(upd.Address)
	if err != nil {
		return
	}
	r.Subs.Dispatch(addr, upd.Value, codec.SignalGesture, "")
	r.deliverDirect(sess, upd, codec.QoSFire)
}

// deliverDirect enqueues msg directly onto sess's own send queue, bypassing
// the subscription index: gesture echoes, subscription snapshots and
// deliveries, and Replay entries. Acks such as WELCOME, UnsubscribeAck and
// Result are not sent here; Dispatch returns them as its reply.
func (r *Router) deliverDirect(sess *session.Session, msg codec.Message, qos codec.QoS) {
	sess.Enqueue(msg, qos)
}

// HandleDisconnect releases every resource a session held: its gesture
// engine, its locks in the state store, and its subscriptions, then closes
// and forgets the session (spec.md §4.4).
func (r *Router) HandleDisconnect(ctx context.Context, sess *session.Session) {
	r.dropGestureEngine(sess.ID)
	r.Sessions.Teardown(ctx, sess, r.Store.ReleaseAllLocksHeldBy, r.Subs.UnsubscribeAll)
	r.dedupMu.Lock()
	delete(r.dedup, sess.ID)
	r.dedupMu.Unlock()
}

// Dispatch processes one inbound frame for sess to completion: protocol
// gate, authorization, handler, and (on failure) error-frame synthesis
// (spec.md §4.5). It returns a direct reply to enqueue on sess (nil if the
// handler already delivered everything it owed the caller, e.g. fan-out
// with no synchronous reply) and whether the session must now be closed.
func (r *Router) Dispatch(ctx context.Context, sess *session.Session, msg codec.Message) (reply codec.Message, closeSession bool) {
	sess.Touch()

	if hello, ok := msg.(codec.Hello); ok {
		return r.handleHello(sess, hello), false
	}

	if err := session.RequireActive(sess); err != nil {
		return errFrame(CodeMessageBeforeHello, err.Error(), ""), true
	}

	switch m := msg.(type) {
	case codec.Set:
		return r.handleSet(sess, m)
	case codec.Publish:
		return r.handlePublish(sess, m)
	case codec.StreamSample:
		return r.handleStream(sess, m)
	case codec.GestureUpdate:
		return r.handleGesture(sess, m)
	case codec.Subscribe:
		return r.handleSubscribe(sess, m)
	case codec.Unsubscribe:
		return r.handleUnsubscribe(sess, m)
	case codec.Get:
		return r.handleGet(sess, m)
	case codec.Bundle:
		return r.handleBundle(sess, m)
	case codec.Sync:
		return r.handleSync(sess, m)
	case codec.Replay:
		return r.handleReplay(sess, m)
	default:
		return errFrame(CodeUnknownType, "unrecognized message type", ""), false
	}
}

func (r *Router) handleHello(sess *session.Session, hello codec.Hello) codec.Message {
	result, err := r.AuthChain.Validate(hello.Token, time.Now())
	if err != nil {
		r.recordAuthFailure(sess)
		return errFrame(CodeUnknownTokenType, err.Error(), "")
	}
	sess.Scopes = result.Scopes

	if err := r.Sessions.HandleHello(sess, hello.DisplayName, hello.Features); err != nil {
		switch err {
		case session.ErrDuplicateHello:
			return errFrame(CodeDuplicateHello, err.Error(), "")
		default:
			return errFrame(CodeProtocolViolation, err.Error(), "")
		}
	}
	return codec.Welcome{SessionID: sess.ID, Features: hello.Features}
}

// recordAuthFailure applies spec.md §7's "repeated authorization failures
// (threshold; default 5 within 30s) -> close" policy.
func (r *Router) recordAuthFailure(sess *session.Session) bool {
	return sess.RecordAuthFailure(time.Now(), r.cfg.AuthFailureWindow, r.cfg.AuthFailureThreshold)
}

func (r *Router) authorize(sess *session.Session, action, addrStr string) (address.Address, *codec.Error) {
	addr, err := address.Parse(addrStr)
	if err != nil {
		e := errFrame(CodeBadAddress, err.Error(), "")
		return address.Address{}, &e
	}
	if !authchain.Authorized(sess.Scopes, action, addr) {
		e := errFrame(CodePermissionDenied, "no scope covers "+action+":"+addrStr, "")
		return address.Address{}, &e
	}
	return addr, nil
}

func (r *Router) handleSet(sess *session.Session, m codec.Set) (codec.Message, bool) {
	addr, aerr := r.authorize(sess, authchain.ActionWrite, m.Address)
	if aerr != nil {
		if r.recordAuthFailure(sess) {
			return *aerr, true
		}
		return *aerr, false
	}

	if m.QoS == codec.QoSConfirm || m.QoS == codec.QoSCommit {
		if r.seenSequence(sess.ID, m.Sequence) {
			return nil, false // duplicate retry, already applied
		}
	}
	if m.QoS == codec.QoSCommit && r.Journal == nil {
		return errFrame(CodeBackendUnavailable, "Q2 write requires a journal", ""), false
	}

	outcome := r.Store.ApplySet(store.WriteRequest{
		Address:      addr,
		Value:        m.Value,
		SignalType:   m.SignalType,
		Writer:       sess.ID,
		Timestamp:    m.Timestamp,
		RevisionHint: m.RevisionHint,
		Strategy:     store.StrategyByName(m.Strategy),
		Origin:       m.Origin,
		AcquireLock:  m.Lock,
	})

	switch outcome.Kind {
	case store.OutcomeRejected:
		return errFrame(rejectCode(outcome.Reason), outcome.Reason.String(), ""), false
	case store.OutcomeDeleted:
		r.Subs.Dispatch(addr, codec.Null(), m.SignalType, sess.ID)
	case store.OutcomeAccepted:
		if r.Journal != nil {
			_, _ = r.Journal.Append(sess.Context(), addr.String(), m)
		}
		r.Subs.Dispatch(addr, m.Value, m.SignalType, sess.ID)
		r.evaluateRules(sess, addr.String(), m.Value, m.SignalType, m.Origin)
	}
	return nil, false
}

func rejectCode(reason store.RejectReason) int {
	switch reason {
	case store.RejectLocked:
		return CodeLocked
	case store.RejectRevisionConflict:
		return CodeRevisionConflict
	default:
		return CodeBundleRejected
	}
}

// seenSequence applies the Q1 (session, sequence) dedup window (spec.md §7).
func (r *Router) seenSequence(sessionID string, seq uint32) bool {
	window := r.cfg.MaxQ1DedupWindow
	if window <= 0 {
		window = 5 * time.Second
	}
	now := time.Now()
	r.dedupMu.Lock()
	defer r.dedupMu.Unlock()
	seen, ok := r.dedup[sessionID]
	if !ok {
		seen = make(map[uint32]time.Time)
		r.dedup[sessionID] = seen
	}
	if last, ok := seen[seq]; ok && now.Sub(last) < window {
		return true
	}
	seen[seq] = now
	return false
}

func (r *Router) evaluateRules(sess *session.Session, addr string, value codec.Value, signalType codec.SignalType, origin string) {
	if r.Rules == nil || origin == "rule" {
		return
	}
	actions, err := r.Rules.Evaluate(sess.Context(), rulesEvent(addr, value, signalType, origin))
	if err != nil {
		log.Warnf("router: rule evaluation error: %v", err)
	}
	for _, a := range actions {
		derivedAddr, perr := address.Parse(a.Address)
		if perr != nil {
			continue
		}
		outcome := r.Store.ApplySet(store.WriteRequest{
			Address:    derivedAddr,
			Value:      a.Value,
			SignalType: a.SignalType,
			Writer:     sess.ID,
			Timestamp:  uint64(time.Now().UnixMicro()),
			Strategy:   store.LWW{},
			Origin:     "rule",
		})
		if outcome.Kind == store.OutcomeAccepted {
			r.Subs.Dispatch(derivedAddr, a.Value, a.SignalType, "")
		}
	}
}

func (r *Router) handlePublish(sess *session.Session, m codec.Publish) (codec.Message, bool) {
	addr, aerr := r.authorize(sess, authchain.ActionWrite, m.Address)
	if aerr != nil {
		if r.recordAuthFailure(sess) {
			return *aerr, true
		}
		return *aerr, false
	}
	if r.Journal != nil && m.QoS == codec.QoSCommit {
		_, _ = r.Journal.Append(sess.Context(), addr.String(), m)
	}
	r.Subs.Dispatch(addr, m.Value, m.SignalType, sess.ID)
	r.evaluateRules(sess, addr.String(), m.Value, m.SignalType, m.Origin)
	return nil, false
}

func (r *Router) handleStream(sess *session.Session, m codec.StreamSample) (codec.Message, bool) {
	addr, aerr := r.authorize(sess, authchain.ActionWrite, m.Address)
	if aerr != nil {
		if r.recordAuthFailure(sess) {
			return *aerr, true
		}
		return *aerr, false
	}
	r.Subs.Dispatch(addr, m.Value, codec.SignalStream, sess.ID)
	return nil, false
}

func (r *Router) handleGesture(sess *session.Session, m codec.GestureUpdate) (codec.Message, bool) {
	addr, aerr := r.authorize(sess, authchain.ActionWrite, m.Address)
	if aerr != nil {
		if r.recordAuthFailure(sess) {
			return *aerr, true
		}
		return *aerr, false
	}
	_ = addr
	if err := r.gestureEngine(sess).Handle(m); err != nil {
		return errFrame(CodeQueueFull, err.Error(), ""), false
	}
	return nil, false
}

func (r *Router) handleSubscribe(sess *session.Session, m codec.Subscribe) (codec.Message, bool) {
	pat, err := address.ParsePattern(m.Pattern)
	if err != nil {
		return errFrame(CodeBadPattern, err.Error(), ""), false
	}
	if !scopeCoversPattern(sess.Scopes, pat) {
		e := errFrame(CodeScopeViolation, "no read scope covers "+m.Pattern, "")
		if r.recordAuthFailure(sess) {
			return e, true
		}
		return e, false
	}

	filter := make(map[codec.SignalType]bool, len(m.SignalTypeFilter))
	for _, t := range m.SignalTypeFilter {
		filter[t] = true
	}
	subID := m.SubscriptionID
	if subID == "" {
		subID = uuid.NewString()
	}
	sub := &subscription.Subscription{
		ID:               subID,
		Pattern:          pat,
		SignalTypeFilter: filter,
		MaxRate:          m.MaxRate,
		Epsilon:          m.Epsilon,
		SnapshotOnSub:    m.SnapshotOnSub,
		Owner:            sess.ID,
		Deliver: func(msg codec.Message) {
			r.deliverDirect(sess, msg, codec.QoSFire)
		},
	}
	r.Subs.Subscribe(sub)

	if m.SnapshotOnSub {
		states := r.Store.Query(pat)
		entries := make([]codec.SnapshotEntry, 0, len(states))
		for _, st := range states {
			if len(filter) > 0 && !filter[st.SignalType] {
				continue
			}
			entries = append(entries, codec.SnapshotEntry{
				Address:    st.Address,
				Value:      st.Value,
				Revision:   st.Revision,
				SignalType: st.SignalType,
			})
		}
		r.deliverDirect(sess, codec.Snapshot{SubscriptionID: subID, Entries: entries}, codec.QoSConfirm)
		r.Subs.Arm(sub)
	}
	return nil, false
}

// scopeCoversPattern requires some read (or stronger) scope to cover every
// concrete address the subscription's own pattern could ever match
// (spec.md §4.5: "subscription pattern must be covered by some read
// scope"), using the same pattern-subset algebra as capability attenuation.
func scopeCoversPattern(scopes []session.Scope, pat address.Pattern) bool {
	for _, s := range scopes {
		if s.Action != authchain.ActionRead && s.Action != authchain.ActionWrite && s.Action != authchain.ActionAdmin {
			continue
		}
		scopePat, err := address.ParsePattern(s.Pattern)
		if err != nil {
			continue
		}
		if address.Covers(scopePat, pat) {
			return true
		}
	}
	return false
}

func (r *Router) handleUnsubscribe(sess *session.Session, m codec.Unsubscribe) (codec.Message, bool) {
	r.Subs.Unsubscribe(sess.ID, m.SubscriptionID)
	return codec.UnsubscribeAck{SubscriptionID: m.SubscriptionID}, false
}

func (r *Router) handleGet(sess *session.Session, m codec.Get) (codec.Message, bool) {
	addr, aerr := r.authorize(sess, authchain.ActionRead, m.Address)
	if aerr != nil {
		if r.recordAuthFailure(sess) {
			return *aerr, true
		}
		return *aerr, false
	}
	st, ok := r.Store.Get(addr)
	if !ok {
		return codec.Result{Address: m.Address, Found: false}, false
	}
	return codec.Result{Address: m.Address, Value: st.Value, Revision: st.Revision, Found: true}, false
}

// handleBundle validates every entry's authorization and address
// well-formedness before applying any of them, so a bundle that would fail
// outright is rejected with no partial effect (spec.md §4.5). Per-entry
// conflict-strategy rejections inside an otherwise-valid bundle are not
// rolled back; they are surfaced to the caller as a BundleRejected error
// after every entry has been attempted, each entry's fan-out having already
// happened for the entries that succeeded.
func (r *Router) handleBundle(sess *session.Session, m codec.Bundle) (codec.Message, bool) {
	for _, inner := range m.Messages {
		var addrStr, action string
		switch im := inner.(type) {
		case codec.Set:
			addrStr, action = im.Address, authchain.ActionWrite
		case codec.Publish:
			addrStr, action = im.Address, authchain.ActionWrite
		case codec.StreamSample:
			addrStr, action = im.Address, authchain.ActionWrite
		default:
			return errFrame(CodeBundleRejected, "unsupported message type inside bundle", ""), false
		}
		if _, aerr := r.authorize(sess, action, addrStr); aerr != nil {
			return errFrame(CodeBundleRejected, aerr.Reason, ""), false
		}
	}

	if m.ScheduledAtMicro != 0 {
		at := time.UnixMicro(int64(m.ScheduledAtMicro))
		if _, err := r.Scheduler.Submit(at, sess.ID, m); err != nil {
			switch e := err.(type) {
			case scheduler.ErrScheduleTooFar:
				return errFrame(CodeScheduleTooFar, e.Error(), ""), false
			default:
				return errFrame(CodeInternal, err.Error(), ""), false
			}
		}
		return nil, false
	}

	var rejected bool
	for _, inner := range m.Messages {
		switch im := inner.(type) {
		case codec.Set:
			if reply, _ := r.handleSet(sess, im); reply != nil {
				rejected = true
			}
		case codec.Publish:
			r.handlePublish(sess, im)
		case codec.StreamSample:
			r.handleStream(sess, im)
		}
	}
	if rejected {
		return errFrame(CodeBundleRejected, "one or more bundle entries were rejected", ""), false
	}
	return nil, false
}

// fireScheduled is the Scheduler's Fire callback: it re-dispatches a due
// bundle's entries as if received live, preserving the submitting session
// as origin (spec.md §4.8). A session that has since disconnected still
// fires its bundle; the entries are applied against the store/subscription
// managers directly rather than through a (now possibly absent) Session.
func (r *Router) fireScheduled(e scheduler.Entry) {
	bundle, ok := e.Payload.(codec.Bundle)
	if !ok {
		return
	}
	sess, ok := r.Sessions.Get(e.Origin)
	if !ok {
		// Session gone: apply directly, origin preserved as the id string.
		for _, inner := range bundle.Messages {
			r.applyScheduledEntry(e.Origin, inner)
		}
		return
	}
	for _, inner := range bundle.Messages {
		switch im := inner.(type) {
		case codec.Set:
			r.handleSet(sess, im)
		case codec.Publish:
			r.handlePublish(sess, im)
		case codec.StreamSample:
			r.handleStream(sess, im)
		}
	}
}

func (r *Router) applyScheduledEntry(origin string, inner codec.Message) {
	switch im := inner.(type) {
	case codec.Set:
		addr, err := address.Parse(im.Address)
		if err != nil {
			return
		}
		outcome := r.Store.ApplySet(store.WriteRequest{
			Address:      addr,
			Value:        im.Value,
			SignalType:   im.SignalType,
			Writer:       origin,
			Timestamp:    im.Timestamp,
			RevisionHint: im.RevisionHint,
			Strategy:     store.StrategyByName(im.Strategy),
			Origin:       im.Origin,
			AcquireLock:  im.Lock,
		})
		if outcome.Kind == store.OutcomeAccepted {
			r.Subs.Dispatch(addr, im.Value, im.SignalType, origin)
		} else if outcome.Kind == store.OutcomeDeleted {
			r.Subs.Dispatch(addr, codec.Null(), im.SignalType, origin)
		}
	case codec.Publish:
		addr, err := address.Parse(im.Address)
		if err != nil {
			return
		}
		r.Subs.Dispatch(addr, im.Value, im.SignalType, origin)
	case codec.StreamSample:
		addr, err := address.Parse(im.Address)
		if err != nil {
			return
		}
		r.Subs.Dispatch(addr, im.Value, codec.SignalStream, origin)
	}
}

// handleSync stamps the server-side receive/reply timestamps on a client's
// Sync request (spec.md §4.7): the client fills T1 on send and T4 on its
// own receipt of this reply; the router only ever supplies T2 and T3.
func (r *Router) handleSync(sess *session.Session, m codec.Sync) (codec.Message, bool) {
	now := uint64(time.Now().UnixMicro())
	return codec.Sync{T1: m.T1, T2: now, T3: now, T4: 0}, false
}

func (r *Router) handleReplay(sess *session.Session, m codec.Replay) (codec.Message, bool) {
	if r.Journal == nil {
		return errFrame(CodeFeatureUnsupported, "no journal collaborator configured", ""), false
	}
	pat, err := address.ParsePattern(m.Pattern)
	if err != nil {
		return errFrame(CodeBadPattern, err.Error(), ""), false
	}
	if !scopeCoversPattern(sess.Scopes, pat) {
		e := errFrame(CodeScopeViolation, "no read scope covers "+m.Pattern, "")
		return e, false
	}
	entries, err := r.Journal.Since(sess.Context(), m.SinceID, m.Limit)
	if err != nil {
		return errFrame(CodeBackendUnavailable, err.Error(), ""), false
	}
	for _, e := range entries {
		addr, perr := address.Parse(e.Address)
		if perr != nil || !address.Match(pat, addr) {
			continue
		}
		r.deliverDirect(sess, e.Message, codec.QoSFire)
	}
	return nil, false
}

func rulesEvent(addr string, value codec.Value, signalType codec.SignalType, origin string) rules.Event {
	return rules.Event{Address: addr, Value: value, SignalType: signalType, Origin: origin}
}
