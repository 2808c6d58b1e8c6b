// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wire implements the OP_MSG wire protocol framing of spec.md
// §4.J: 16-byte header encode/decode, body-section read/write,
// optional CRC32C checksum tail, and OP_COMPRESSED wrapping. It is
// grounded on the teacher's core/connection.go (deadline handling,
// compressor swap-in, the {ConnectionID, Wrapped, message} Error
// shape) generalized from OP_QUERY/OP_REPLY to OP_MSG, and on
// original_source/src/amongoc/wire/proto.hpp for the header-then-
// buffers framing shape.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/amongo/amongo/bson/bsoncore"
	"github.com/amongo/amongo/status"
)

// Opcode identifies a wire-protocol message kind. Encode produces
// OpMsg; CompressMessage wraps an encoded OpMsg as OpCompressed and
// DecompressMessage unwraps it again. Decode accepts OpMsg only.
type Opcode int32

const (
	OpCompressed Opcode = 2012
	OpMsg        Opcode = 2013
)

func (o Opcode) String() string {
	switch o {
	case OpCompressed:
		return "OP_COMPRESSED"
	case OpMsg:
		return "OP_MSG"
	default:
		return fmt.Sprintf("OP_UNKNOWN(%d)", int32(o))
	}
}

const headerLen = 16

// Header is the 16-byte frame prefix common to every wire-protocol
// message.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        Opcode
}

// AppendHeader appends h's wire encoding to dst.
func (h Header) AppendHeader(dst []byte) []byte {
	var buf [headerLen]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.MessageLength))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.RequestID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.ResponseTo))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.OpCode))
	return append(dst, buf[:]...)
}

// ReadHeader decodes the 16-byte header at the front of src, per
// spec.md §4.J's "validate messageLength ≥ 16".
func ReadHeader(src []byte) (Header, error) {
	if len(src) < headerLen {
		return Header{}, fmt.Errorf("wire: short read: need %d header bytes, have %d", headerLen, len(src))
	}
	h := Header{
		MessageLength: int32(binary.LittleEndian.Uint32(src[0:4])),
		RequestID:     int32(binary.LittleEndian.Uint32(src[4:8])),
		ResponseTo:    int32(binary.LittleEndian.Uint32(src[8:12])),
		OpCode:        Opcode(int32(binary.LittleEndian.Uint32(src[12:16]))),
	}
	if h.MessageLength < headerLen {
		return Header{}, fmt.Errorf("wire: invalid messageLength %d (< %d)", h.MessageLength, headerLen)
	}
	return h, nil
}

// checksumPresent is OP_MSG flagBits bit 0.
const checksumPresent uint32 = 1 << 0

// Message is a decoded/to-be-encoded OP_MSG: a flagBits word plus one
// or more kind-0 body sections (spec.md §4.J). Kind 1 "document
// sequence" sections are not produced; encountering one on decode is a
// protocol error, per spec.md.
type Message struct {
	RequestID   int32
	ResponseTo  int32
	FlagBits    uint32
	Sections    []bsoncore.Document
	Checksum    uint32
	HasChecksum bool
}

// idGenerator assigns monotonic request IDs starting at 1. The package
// keeps a single instance, globalIDs, shared by every client in the
// process, so IDs are not numbered per client.
type idGenerator struct{ next int32 }

// globalIDs is the process-wide generator behind NextRequestID.
var globalIDs idGenerator

func (g *idGenerator) next_() int32 {
	return atomic.AddInt32(&g.next, 1)
}

// NextRequestID returns the next monotonic request ID, starting at 1.
func NextRequestID() int32 { return globalIDs.next_() }

// Encode renders msg as a complete OP_MSG wire message: header,
// flagBits, each section (kind byte 0 + its BSON document), and an
// optional checksum tail.
func Encode(msg Message) []byte {
	flags := msg.FlagBits
	if msg.HasChecksum {
		flags |= checksumPresent
	}

	body := make([]byte, 0, 256)
	body = binary.LittleEndian.AppendUint32(body, flags)
	for _, sec := range msg.Sections {
		body = append(body, 0x00) // kind 0
		body = append(body, sec...)
	}
	if msg.HasChecksum {
		body = binary.LittleEndian.AppendUint32(body, msg.Checksum)
	}

	hdr := Header{
		MessageLength: int32(headerLen + len(body)),
		RequestID:     msg.RequestID,
		ResponseTo:    msg.ResponseTo,
		OpCode:        OpMsg,
	}
	out := hdr.AppendHeader(make([]byte, 0, int(hdr.MessageLength)))
	return append(out, body...)
}

// Decode parses a complete wire message (header + body, as returned by
// ReadFullMessage) into a Message. full must have exactly
// header.MessageLength bytes; OpCompressed frames must already have
// been unwrapped by DecompressMessage before reaching Decode.
func Decode(full []byte) (Message, error) {
	hdr, err := ReadHeader(full)
	if err != nil {
		return Message{}, err
	}
	if hdr.OpCode != OpMsg {
		return Message{}, fmt.Errorf("wire: unsupported opcode %s", hdr.OpCode)
	}
	if int(hdr.MessageLength) != len(full) {
		return Message{}, fmt.Errorf("wire: declared length %d does not match buffer length %d", hdr.MessageLength, len(full))
	}
	body := full[headerLen:]
	if len(body) < 4 {
		return Message{}, fmt.Errorf("wire: short body: missing flagBits")
	}
	flags := binary.LittleEndian.Uint32(body[0:4])
	rest := body[4:]
	hasChecksum := flags&checksumPresent != 0
	checksumTailLen := 0
	if hasChecksum {
		checksumTailLen = 4
	}
	if len(rest) < checksumTailLen {
		return Message{}, fmt.Errorf("wire: body shorter than declared checksum tail")
	}
	sectionBytes := rest[:len(rest)-checksumTailLen]

	msg := Message{
		RequestID:   hdr.RequestID,
		ResponseTo:  hdr.ResponseTo,
		FlagBits:    flags,
		HasChecksum: hasChecksum,
	}
	for len(sectionBytes) > 0 {
		kind := sectionBytes[0]
		sectionBytes = sectionBytes[1:]
		switch kind {
		case 0:
			doc, err := bsoncore.FromBytes(sectionBytes)
			if err != nil {
				return Message{}, fmt.Errorf("wire: invalid section body: %w", err)
			}
			if len(doc) > len(sectionBytes) {
				return Message{}, fmt.Errorf("wire: section size exceeds remaining body length")
			}
			msg.Sections = append(msg.Sections, doc)
			sectionBytes = sectionBytes[len(doc):]
		case 1:
			return Message{}, fmt.Errorf("wire: document sequence sections (kind 1) are not supported")
		default:
			return Message{}, fmt.Errorf("wire: unknown section kind %d", kind)
		}
	}
	if hasChecksum {
		msg.Checksum = binary.LittleEndian.Uint32(rest[len(rest)-4:])
	}
	return msg, nil
}

// ServerError is the typed error synthesized from an ok:false server
// reply. Code and Errmsg carry the server's own fields verbatim, per
// spec.md §7's rule that the "Server" status category carries "the
// MongoDB server's numeric code with message from errmsg" --
// StatusFromError looks for this type (via errors.As) rather than
// discarding the code into a formatted string.
type ServerError struct {
	Code   int32
	Errmsg string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("wire: server error (code %d): %s", e.Code, e.Errmsg)
}

// CheckServerError extracts a *ServerError from a decoded reply
// message, per spec.md §4.J's message-validation rule: "if exactly one
// body section is present and contains an ok:false document with
// errmsg/code, an error is synthesized using those fields". It returns
// nil if msg does not represent an error.
func CheckServerError(msg Message) error {
	if len(msg.Sections) != 1 {
		return nil
	}
	doc := msg.Sections[0]
	okVal, ok := doc.Lookup("ok")
	if !ok {
		return nil
	}
	isOK := false
	switch okVal.Type {
	case bsoncore.TypeBoolean:
		isOK = okVal.Boolean()
	case bsoncore.TypeInt32:
		isOK = okVal.Int32() != 0
	case bsoncore.TypeInt64:
		isOK = okVal.Int64() != 0
	case bsoncore.TypeDouble:
		isOK = okVal.Double() != 0
	}
	if isOK {
		return nil
	}
	var code int32
	if c, ok := doc.Lookup("code"); ok {
		code = c.Int32()
	}
	msgStr := ""
	if m, ok := doc.Lookup("errmsg"); ok {
		msgStr = m.StringValue()
	}
	return &ServerError{Code: code, Errmsg: msgStr}
}

// StatusFromError classifies err into a status.Status, special-casing
// a *ServerError into status.Server so the server's own numeric code
// and errmsg survive classification instead of falling through to
// status.Unknown the way a plain status.FromError(err) would. Every
// other error classifies exactly as status.FromError does.
func StatusFromError(err error) status.Status {
	var serr *ServerError
	if errors.As(err, &serr) {
		return status.FromServer(int(serr.Code), serr.Errmsg)
	}
	return status.FromError(err)
}
