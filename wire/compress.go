// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// CompressorID identifies a negotiated OP_COMPRESSED payload codec, per
// the wire values exchanged in a hello/isMaster handshake's
// compression array.
type CompressorID byte

const (
	CompressorNoop   CompressorID = 0
	CompressorSnappy CompressorID = 1
	CompressorZlib   CompressorID = 2
	CompressorZstd   CompressorID = 3
)

// Compressor adapts one codec to the {CompressBytes, UncompressBytes}
// shape the teacher's core/connection.go swaps in by negotiated
// compressor ID; grounded on that file's compressor.Compressor map
// usage and generalized to the snappy/klauspost-compress libraries
// wired in as the domain compression stack.
type Compressor interface {
	ID() CompressorID
	Name() string
	CompressBytes(src []byte) ([]byte, error)
	UncompressBytes(src []byte, uncompressedSize int32) ([]byte, error)
}

type snappyCompressor struct{}

func (snappyCompressor) ID() CompressorID { return CompressorSnappy }
func (snappyCompressor) Name() string     { return "snappy" }

func (snappyCompressor) CompressBytes(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCompressor) UncompressBytes(src []byte, uncompressedSize int32) ([]byte, error) {
	dst := make([]byte, uncompressedSize)
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return nil, fmt.Errorf("wire: snappy decompress: %w", err)
	}
	return out, nil
}

type zlibCompressor struct{}

func (zlibCompressor) ID() CompressorID { return CompressorZlib }
func (zlibCompressor) Name() string     { return "zlib" }

func (zlibCompressor) CompressBytes(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("wire: zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("wire: zlib compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibCompressor) UncompressBytes(src []byte, uncompressedSize int32) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("wire: zlib decompress: %w", err)
	}
	defer r.Close()
	dst := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(r, dst); err != nil {
		return nil, fmt.Errorf("wire: zlib decompress: %w", err)
	}
	return dst, nil
}

type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCompressor constructs a reusable zstd Compressor. The
// encoder/decoder pair is safe for sequential reuse across messages on
// a single connection, matching spec.md §4.J's "at most one
// compress/decompress in flight per connection".
func NewZstdCompressor() (Compressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("wire: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("wire: zstd decoder: %w", err)
	}
	return &zstdCompressor{enc: enc, dec: dec}, nil
}

func (z *zstdCompressor) ID() CompressorID { return CompressorZstd }
func (z *zstdCompressor) Name() string     { return "zstd" }

func (z *zstdCompressor) CompressBytes(src []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, nil), nil
}

func (z *zstdCompressor) UncompressBytes(src []byte, uncompressedSize int32) ([]byte, error) {
	return z.dec.DecodeAll(src, make([]byte, 0, uncompressedSize))
}

// Compressors maps each supported CompressorID to a ready-to-use
// Compressor, for DecompressMessage lookups. It does no negotiation:
// package pool keeps its one configured Compressor only when the
// server's hello reply lists that compressor's name.
func Compressors() map[CompressorID]Compressor {
	zstdC, err := NewZstdCompressor()
	m := map[CompressorID]Compressor{
		CompressorSnappy: snappyCompressor{},
		CompressorZlib:   zlibCompressor{},
	}
	if err == nil {
		m[CompressorZstd] = zstdC
	}
	return m
}

// CompressMessage wraps a fully-encoded OP_MSG wire message (as
// returned by Encode) in an OP_COMPRESSED envelope using c.
func CompressMessage(raw []byte, c Compressor) ([]byte, error) {
	hdr, err := ReadHeader(raw)
	if err != nil {
		return nil, err
	}
	original := raw[headerLen:]
	compressed, err := c.CompressBytes(original)
	if err != nil {
		return nil, err
	}

	body := make([]byte, 0, len(compressed)+9)
	body = appendInt32(body, int32(hdr.OpCode))
	body = appendInt32(body, int32(len(original)))
	body = append(body, byte(c.ID()))
	body = append(body, compressed...)

	outHdr := Header{
		MessageLength: int32(headerLen + len(body)),
		RequestID:     hdr.RequestID,
		ResponseTo:    hdr.ResponseTo,
		OpCode:        OpCompressed,
	}
	out := outHdr.AppendHeader(make([]byte, 0, outHdr.MessageLength))
	return append(out, body...), nil
}

// DecompressMessage unwraps an OP_COMPRESSED frame back into the
// original (header-included) wire message bytes, ready for Decode.
// compressors looks up the codec by the ID embedded in the frame.
func DecompressMessage(raw []byte, compressors map[CompressorID]Compressor) ([]byte, error) {
	hdr, err := ReadHeader(raw)
	if err != nil {
		return nil, err
	}
	if hdr.OpCode != OpCompressed {
		return raw, nil
	}
	body := raw[headerLen:]
	if len(body) < 9 {
		return nil, fmt.Errorf("wire: OP_COMPRESSED body too short")
	}
	originalOpcode := Opcode(readInt32(body[0:4]))
	uncompressedSize := readInt32(body[4:8])
	id := CompressorID(body[8])
	payload := body[9:]

	c, ok := compressors[id]
	if !ok {
		return nil, fmt.Errorf("wire: unsupported compressor id %d", id)
	}
	original, err := c.UncompressBytes(payload, uncompressedSize)
	if err != nil {
		return nil, err
	}
	if int32(len(original)) != uncompressedSize {
		return nil, fmt.Errorf("wire: decompressed %d bytes, expected %d", len(original), uncompressedSize)
	}

	outHdr := Header{
		MessageLength: int32(headerLen + len(original)),
		RequestID:     hdr.RequestID,
		ResponseTo:    hdr.ResponseTo,
		OpCode:        originalOpcode,
	}
	out := outHdr.AppendHeader(make([]byte, 0, outHdr.MessageLength))
	return append(out, original...), nil
}

func appendInt32(dst []byte, v int32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func readInt32(b []byte) int32 {
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}
