// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

// encodeBody serializes the type-specific payload for msg and reports the
// QoS/timestamp-presence the frame header flags byte should carry.
func encodeBody(msg Message) (body []byte, qos QoS, timestampPresent bool, err error) {
	w := &writer{}
	switch m := msg.(type) {
	case Hello:
		w.str(m.DisplayName)
		w.str(m.Token)
		w.strings(m.Features)
		w.byte(boolByte(m.Reconnect))

	case Welcome:
		w.str(m.SessionID)
		w.strings(m.Features)

	case Set:
		w.str(m.Address)
		w.value(m.Value)
		w.signalType(m.SignalType)
		w.varUint(m.Timestamp)
		w.optUint64(m.RevisionHint)
		w.byte(boolByte(m.Lock))
		w.str(m.Strategy)
		w.str(m.Origin)
		w.byte(byte(m.QoS))
		w.varUint(uint64(m.Sequence))
		qos, timestampPresent = m.QoS, m.Timestamp != 0

	case Publish:
		w.str(m.Address)
		w.value(m.Value)
		w.signalType(m.SignalType)
		w.varUint(m.Timestamp)
		w.str(m.Origin)
		w.byte(byte(m.QoS))
		qos, timestampPresent = m.QoS, m.Timestamp != 0

	case StreamSample:
		w.str(m.Address)
		w.value(m.Value)
		w.varUint(m.Timestamp)
		qos, timestampPresent = QoSFire, m.Timestamp != 0

	case GestureUpdate:
		w.str(m.GestureID)
		w.str(m.Address)
		w.byte(byte(m.Phase))
		w.value(m.Value)
		w.varUint(m.Timestamp)
		timestampPresent = m.Timestamp != 0

	case Subscribe:
		w.str(m.SubscriptionID)
		w.str(m.Pattern)
		w.varUint(uint64(len(m.SignalTypeFilter)))
		for _, st := range m.SignalTypeFilter {
			w.signalType(st)
		}
		w.float64(m.MaxRate)
		w.float64(m.Epsilon)
		w.byte(boolByte(m.SnapshotOnSub))

	case Unsubscribe:
		w.str(m.SubscriptionID)

	case Snapshot:
		w.str(m.SubscriptionID)
		w.varUint(uint64(len(m.Entries)))
		for _, e := range m.Entries {
			w.str(e.Address)
			w.value(e.Value)
			w.varUint(e.Revision)
			w.signalType(e.SignalType)
		}

	case Get:
		w.str(m.Address)

	case Result:
		w.str(m.Address)
		w.value(m.Value)
		w.varUint(m.Revision)
		w.byte(boolByte(m.Found))

	case Bundle:
		w.varUint(m.ScheduledAtMicro)
		w.varUint(uint64(len(m.Messages)))
		for _, sub := range m.Messages {
			subBody, _, _, err := encodeBody(sub)
			if err != nil {
				return nil, 0, false, err
			}
			w.byte(byte(sub.Type()))
			w.rawBytes(subBody)
		}
		timestampPresent = m.ScheduledAtMicro != 0

	case Replay:
		w.str(m.Pattern)
		w.varUint(m.SinceID)
		w.varInt(int64(m.Limit))

	case Error:
		w.varInt(int64(m.Code))
		w.str(m.Reason)
		w.str(m.CorrelationID)

	case Sync:
		w.varUint(m.T1)
		w.varUint(m.T2)
		w.varUint(m.T3)
		w.varUint(m.T4)
		timestampPresent = true

	case UnsubscribeAck:
		w.str(m.SubscriptionID)

	default:
		return nil, 0, false, decodeErrf("unknown message type %T", msg)
	}
	return w.Bytes(), qos, timestampPresent, nil
}

func decodeBody(t MessageType, body []byte) (Message, error) {
	r := newReader(body)
	switch t {
	case TypeHello:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		token, err := r.str()
		if err != nil {
			return nil, err
		}
		features, err := r.strings()
		if err != nil {
			return nil, err
		}
		reconnect, err := r.byte()
		if err != nil {
			return nil, err
		}
		return Hello{DisplayName: name, Token: token, Features: features, Reconnect: reconnect != 0}, nil

	case TypeWelcome:
		id, err := r.str()
		if err != nil {
			return nil, err
		}
		features, err := r.strings()
		if err != nil {
			return nil, err
		}
		return Welcome{SessionID: id, Features: features}, nil

	case TypeSet:
		addr, err := r.str()
		if err != nil {
			return nil, err
		}
		val, err := r.value()
		if err != nil {
			return nil, err
		}
		st, err := r.signalType()
		if err != nil {
			return nil, err
		}
		ts, err := r.varUint()
		if err != nil {
			return nil, err
		}
		revHint, err := r.optUint64()
		if err != nil {
			return nil, err
		}
		lock, err := r.byte()
		if err != nil {
			return nil, err
		}
		strategy, err := r.str()
		if err != nil {
			return nil, err
		}
		origin, err := r.str()
		if err != nil {
			return nil, err
		}
		qosByte, err := r.byte()
		if err != nil {
			return nil, err
		}
		seq, err := r.varUint()
		if err != nil {
			return nil, err
		}
		return Set{
			Address: addr, Value: val, SignalType: st, Timestamp: ts,
			RevisionHint: revHint, Lock: lock != 0, Strategy: strategy,
			Origin: origin, QoS: QoS(qosByte), Sequence: uint32(seq),
		}, nil

	case TypePublish:
		addr, err := r.str()
		if err != nil {
			return nil, err
		}
		val, err := r.value()
		if err != nil {
			return nil, err
		}
		st, err := r.signalType()
		if err != nil {
			return nil, err
		}
		ts, err := r.varUint()
		if err != nil {
			return nil, err
		}
		origin, err := r.str()
		if err != nil {
			return nil, err
		}
		qosByte, err := r.byte()
		if err != nil {
			return nil, err
		}
		return Publish{Address: addr, Value: val, SignalType: st, Timestamp: ts, Origin: origin, QoS: QoS(qosByte)}, nil

	case TypeStreamSample:
		addr, err := r.str()
		if err != nil {
			return nil, err
		}
		val, err := r.value()
		if err != nil {
			return nil, err
		}
		ts, err := r.varUint()
		if err != nil {
			return nil, err
		}
		return StreamSample{Address: addr, Value: val, Timestamp: ts}, nil

	case TypeGestureUpdate:
		gid, err := r.str()
		if err != nil {
			return nil, err
		}
		addr, err := r.str()
		if err != nil {
			return nil, err
		}
		phaseByte, err := r.byte()
		if err != nil {
			return nil, err
		}
		if phaseByte > byte(PhaseCancel) {
			return nil, decodeErrf("unknown gesture phase %d", phaseByte)
		}
		val, err := r.value()
		if err != nil {
			return nil, err
		}
		ts, err := r.varUint()
		if err != nil {
			return nil, err
		}
		return GestureUpdate{GestureID: gid, Address: addr, Phase: GesturePhase(phaseByte), Value: val, Timestamp: ts}, nil

	case TypeSubscribe:
		id, err := r.str()
		if err != nil {
			return nil, err
		}
		pattern, err := r.str()
		if err != nil {
			return nil, err
		}
		n, err := r.varUint()
		if err != nil {
			return nil, err
		}
		if n > uint64(MaxFrameSize) {
			return nil, decodeErrf("bad length: %d signal-type filters", n)
		}
		filters := make([]SignalType, 0, n)
		for i := uint64(0); i < n; i++ {
			st, err := r.signalType()
			if err != nil {
				return nil, err
			}
			filters = append(filters, st)
		}
		maxRate, err := r.float64()
		if err != nil {
			return nil, err
		}
		eps, err := r.float64()
		if err != nil {
			return nil, err
		}
		snap, err := r.byte()
		if err != nil {
			return nil, err
		}
		return Subscribe{
			SubscriptionID: id, Pattern: pattern, SignalTypeFilter: filters,
			MaxRate: maxRate, Epsilon: eps, SnapshotOnSub: snap != 0,
		}, nil

	case TypeUnsubscribe:
		id, err := r.str()
		if err != nil {
			return nil, err
		}
		return Unsubscribe{SubscriptionID: id}, nil

	case TypeSnapshot:
		id, err := r.str()
		if err != nil {
			return nil, err
		}
		n, err := r.varUint()
		if err != nil {
			return nil, err
		}
		if n > uint64(MaxFrameSize) {
			return nil, decodeErrf("bad length: %d snapshot entries", n)
		}
		entries := make([]SnapshotEntry, 0, n)
		for i := uint64(0); i < n; i++ {
			addr, err := r.str()
			if err != nil {
				return nil, err
			}
			val, err := r.value()
			if err != nil {
				return nil, err
			}
			rev, err := r.varUint()
			if err != nil {
				return nil, err
			}
			st, err := r.signalType()
			if err != nil {
				return nil, err
			}
			entries = append(entries, SnapshotEntry{Address: addr, Value: val, Revision: rev, SignalType: st})
		}
		return Snapshot{SubscriptionID: id, Entries: entries}, nil

	case TypeGet:
		addr, err := r.str()
		if err != nil {
			return nil, err
		}
		return Get{Address: addr}, nil

	case TypeResult:
		addr, err := r.str()
		if err != nil {
			return nil, err
		}
		val, err := r.value()
		if err != nil {
			return nil, err
		}
		rev, err := r.varUint()
		if err != nil {
			return nil, err
		}
		found, err := r.byte()
		if err != nil {
			return nil, err
		}
		return Result{Address: addr, Value: val, Revision: rev, Found: found != 0}, nil

	case TypeBundle:
		scheduled, err := r.varUint()
		if err != nil {
			return nil, err
		}
		n, err := r.varUint()
		if err != nil {
			return nil, err
		}
		if n > uint64(MaxFrameSize) {
			return nil, decodeErrf("bad length: %d bundle entries", n)
		}
		msgs := make([]Message, 0, n)
		for i := uint64(0); i < n; i++ {
			subType, err := r.byte()
			if err != nil {
				return nil, err
			}
			subBody, err := r.rawBytes()
			if err != nil {
				return nil, err
			}
			sub, err := decodeBody(MessageType(subType), subBody)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, sub)
		}
		return Bundle{Messages: msgs, ScheduledAtMicro: scheduled}, nil

	case TypeReplay:
		pattern, err := r.str()
		if err != nil {
			return nil, err
		}
		since, err := r.varUint()
		if err != nil {
			return nil, err
		}
		limit, err := r.varInt()
		if err != nil {
			return nil, err
		}
		return Replay{Pattern: pattern, SinceID: since, Limit: int(limit)}, nil

	case TypeError:
		code, err := r.varInt()
		if err != nil {
			return nil, err
		}
		reason, err := r.str()
		if err != nil {
			return nil, err
		}
		corr, err := r.str()
		if err != nil {
			return nil, err
		}
		return Error{Code: int(code), Reason: reason, CorrelationID: corr}, nil

	case TypeSync:
		t1, err := r.varUint()
		if err != nil {
			return nil, err
		}
		t2, err := r.varUint()
		if err != nil {
			return nil, err
		}
		t3, err := r.varUint()
		if err != nil {
			return nil, err
		}
		t4, err := r.varUint()
		if err != nil {
			return nil, err
		}
		return Sync{T1: t1, T2: t2, T3: t3, T4: t4}, nil

	case TypeUnsubscribeAck:
		id, err := r.str()
		if err != nil {
			return nil, err
		}
		return UnsubscribeAck{SubscriptionID: id}, nil

	default:
		return nil, decodeErrf("unknown type-code %d", t)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
