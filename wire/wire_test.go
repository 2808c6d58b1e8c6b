// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amongo/amongo/bson/bsoncore"
	"github.com/amongo/amongo/status"
)

func pingDoc(t *testing.T) bsoncore.Document {
	t.Helper()
	return bsoncore.Document(bsoncore.BuildDocument(bsoncore.AppendInt32Element(nil, "ping", 1)))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{MessageLength: 42, RequestID: 7, ResponseTo: 3, OpCode: OpMsg}
	buf := h.AppendHeader(nil)
	assert.Len(t, buf, headerLen)

	got, err := ReadHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestReadHeaderRejectsShortBuffer(t *testing.T) {
	_, err := ReadHeader([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := pingDoc(t)
	msg := Message{
		RequestID:  NextRequestID(),
		ResponseTo: 0,
		Sections:   []bsoncore.Document{doc},
	}
	raw := Encode(msg)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, msg.RequestID, got.RequestID)
	require.Len(t, got.Sections, 1)
	assert.True(t, doc.Equal(got.Sections[0]))
	assert.False(t, got.HasChecksum)
}

func TestEncodeDecodeWithChecksum(t *testing.T) {
	doc := pingDoc(t)
	msg := Message{
		RequestID:   NextRequestID(),
		Sections:    []bsoncore.Document{doc},
		HasChecksum: true,
		Checksum:    0xdeadbeef,
	}
	raw := Encode(msg)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, got.HasChecksum)
	assert.Equal(t, uint32(0xdeadbeef), got.Checksum)
}

func TestDecodeRejectsWrongOpcode(t *testing.T) {
	hdr := Header{MessageLength: headerLen, OpCode: 9999}
	raw := hdr.AppendHeader(nil)
	_, err := Decode(raw)
	assert.Error(t, err)
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	doc := pingDoc(t)
	msg := Message{Sections: []bsoncore.Document{doc}}
	raw := Encode(msg)
	raw = append(raw, 0xff) // trailing garbage byte not reflected in messageLength

	_, err := Decode(raw)
	assert.Error(t, err)
}

func TestServerErrorNilOnOK(t *testing.T) {
	doc := bsoncore.Document(bsoncore.BuildDocument(bsoncore.AppendBooleanElement(nil, "ok", true)))
	msg := Message{Sections: []bsoncore.Document{doc}}
	assert.NoError(t, CheckServerError(msg))
}

func TestServerErrorExtractsCodeAndMessage(t *testing.T) {
	elems := bsoncore.AppendBooleanElement(nil, "ok", false)
	elems = bsoncore.AppendStringElement(elems, "errmsg", "not authorized")
	elems = bsoncore.AppendInt32Element(elems, "code", 13)
	doc := bsoncore.Document(bsoncore.BuildDocument(elems))

	msg := Message{Sections: []bsoncore.Document{doc}}
	err := CheckServerError(msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
	assert.Contains(t, err.Error(), "13")

	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, int32(13), serr.Code)
	assert.Equal(t, "not authorized", serr.Errmsg)
}

func TestStatusFromErrorClassifiesServerError(t *testing.T) {
	elems := bsoncore.AppendBooleanElement(nil, "ok", false)
	elems = bsoncore.AppendStringElement(elems, "errmsg", "not authorized")
	elems = bsoncore.AppendInt32Element(elems, "code", 13)
	doc := bsoncore.Document(bsoncore.BuildDocument(elems))
	serr := CheckServerError(Message{Sections: []bsoncore.Document{doc}})
	require.Error(t, serr)

	s := StatusFromError(serr)
	assert.Equal(t, status.Server, s.Category())
	assert.Equal(t, 13, s.Code())
	assert.Equal(t, "not authorized", s.Message())
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	doc := pingDoc(t)
	msg := Message{RequestID: NextRequestID(), Sections: []bsoncore.Document{doc}}
	raw := Encode(msg)

	compressors := Compressors()
	for _, id := range []CompressorID{CompressorSnappy, CompressorZlib, CompressorZstd} {
		c, ok := compressors[id]
		if !ok {
			continue
		}
		t.Run(c.Name(), func(t *testing.T) {
			compressed, err := CompressMessage(raw, c)
			require.NoError(t, err)

			hdr, err := ReadHeader(compressed)
			require.NoError(t, err)
			assert.Equal(t, OpCompressed, hdr.OpCode)

			decompressed, err := DecompressMessage(compressed, compressors)
			require.NoError(t, err)
			assert.Equal(t, raw, decompressed)

			got, err := Decode(decompressed)
			require.NoError(t, err)
			assert.True(t, doc.Equal(got.Sections[0]))
		})
	}
}

func TestDecompressMessagePassesThroughNonCompressed(t *testing.T) {
	doc := pingDoc(t)
	raw := Encode(Message{Sections: []bsoncore.Document{doc}})
	out, err := DecompressMessage(raw, Compressors())
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestNextRequestIDMonotonic(t *testing.T) {
	a := NextRequestID()
	b := NextRequestID()
	assert.Greater(t, b, a)
}
