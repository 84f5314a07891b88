// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import "fmt"

// MagicByte fixes framing resync: every frame begins with this byte so a
// reader that loses sync on a stream transport can scan forward for it.
const MagicByte byte = 0xC1

// Flags bit layout within the frame flags byte (spec.md §4.1/§6). Bits not
// listed here are reserved: they MUST be ignored on receive and MUST NOT be
// set on send.
const (
	flagQoSMask       = 0x03 // bits 0-1
	flagTimestamp     = 0x04
	flagCompressed    = 0x08
	flagEncrypted     = 0x10
)

// Flags is the decoded frame header flags byte, exposed for transports that
// need to act on it before full payload decode (e.g. reject an encrypted
// frame it cannot handle).
type Flags struct {
	QoS            QoS
	TimestampFlag  bool
	Compressed     bool
	Encrypted      bool
}

func flagsByte(qos QoS, timestampPresent bool) byte {
	b := byte(qos) & flagQoSMask
	if timestampPresent {
		b |= flagTimestamp
	}
	return b
}

func parseFlags(b byte) Flags {
	return Flags{
		QoS:           QoS(b & flagQoSMask),
		TimestampFlag: b&flagTimestamp != 0,
		Compressed:    b&flagCompressed != 0,
		Encrypted:     b&flagEncrypted != 0,
	}
}

// Encode is total over every valid Message: it produces bytes that Decode
// restores to a semantically equal message (spec.md §4.1). The only
// failure mode is ErrMessageTooLarge, since clasp does not implement
// frame-level compression or encryption (reserved flag bits only).
func Encode(msg Message) ([]byte, error) {
	body, qos, tsPresent, err := encodeBody(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	if len(body) > MaxFrameSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, cap is %d", ErrMessageTooLarge, len(body), MaxFrameSize)
	}

	fw := &writer{}
	fw.byte(MagicByte)
	fw.byte(byte(msg.Type()))
	fw.byte(flagsByte(qos, tsPresent))
	fw.varUint(uint64(len(body)))
	fw.buf = append(fw.buf, body...)
	return fw.buf, nil
}

// Decode parses one frame from the front of data, returning the message and
// the number of bytes consumed. It never panics: truncation, an unknown
// type-code, a bad length, or malformed substructure all come back as a
// *DecodeError.
func Decode(data []byte) (Message, int, error) {
	r := newReader(data)

	magic, err := r.byte()
	if err != nil {
		return nil, 0, err
	}
	if magic != MagicByte {
		return nil, 0, decodeErrf("bad magic byte: got 0x%02X, want 0x%02X", magic, MagicByte)
	}

	typeByte, err := r.byte()
	if err != nil {
		return nil, 0, err
	}

	flagByte, err := r.byte()
	if err != nil {
		return nil, 0, err
	}
	_ = parseFlags(flagByte) // reserved bits ignored per contract

	length, err := r.varUint()
	if err != nil {
		return nil, 0, err
	}
	if length > uint64(MaxFrameSize) {
		return nil, 0, decodeErrf("bad length: payload of %d bytes exceeds frame cap %d", length, MaxFrameSize)
	}
	if r.remaining() < int(length) {
		return nil, 0, decodeErrf("truncated: expected %d byte payload, have %d", length, r.remaining())
	}

	body := r.buf[r.pos : r.pos+int(length)]
	r.pos += int(length)

	msg, err := decodeBody(MessageType(typeByte), body)
	if err != nil {
		return nil, 0, err
	}
	return msg, r.pos, nil
}
