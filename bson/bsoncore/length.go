// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"encoding/binary"

	"github.com/amongo/amongo/integer"
)

// ReadLength reads the int32 document-length header at the start of src.
// It reports ok=false if src is too short to contain a header at all;
// the caller is responsible for validating the returned length against
// len(src) (mirrors bson_view::from_bytes bounds checks, spec.md §4.D).
func ReadLength(src []byte) (int32, []byte, bool) {
	if len(src) < 4 {
		return 0, src, false
	}
	return int32(binary.LittleEndian.Uint32(src)), src[4:], true
}

// appendLength appends the little-endian encoding of length to dst.
func appendLength(dst []byte, length int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(length))
	return append(dst, b[:]...)
}

// cstringLen returns the length of the NUL-terminated string beginning at
// src (not including the terminator), and whether a terminator was found
// within src.
func cstringLen(src []byte) (int, bool) {
	for i, b := range src {
		if b == 0 {
			return i, true
		}
	}
	return len(src), false
}

// valueSize computes the number of bytes occupied by the *value* portion
// of an element of type t, given that val begins the value bytes. It
// mirrors _bson_valsize in the amongoc original: most types have a fixed
// size, length-prefixed types read a leading int32, regex is computed by
// scanning two cstrings, and CodeWithScope embeds a further nested
// length. All additions go through package integer's checked arithmetic;
// any overflow is reported as ErrInvalidLength.
func valueSize(t Type, val []byte) (int32, error) {
	switch t {
	case TypeDouble, TypeDateTime, TypeTimestamp, TypeInt64:
		return fixedSize(val, 8)
	case TypeObjectID:
		return fixedSize(val, 12)
	case TypeDBPointer:
		// cstring collection name, then 12-byte ObjectID tail.
		n, ok := cstringLen(val)
		if !ok {
			return 0, newError(ErrShortRead, 0, "dbpointer collection name missing terminator")
		}
		c := integer.AddLengths(int64(n), 1, 12)
		if c.Overflowed {
			return 0, newError(ErrInvalidLength, 0, "dbpointer length overflow")
		}
		size, ok := integer.Narrow(c.Value)
		if !ok || size > len(val) {
			return 0, newError(ErrShortRead, 0, "dbpointer value truncated")
		}
		return int32(size), nil
	case TypeBoolean:
		return fixedSize(val, 1)
	case TypeNull, TypeUndefined, TypeMinKey, TypeMaxKey:
		return fixedSize(val, 0)
	case TypeDecimal128:
		return fixedSize(val, 16)
	case TypeInt32:
		return fixedSize(val, 4)
	case TypeString, TypeJavaScript, TypeSymbol, TypeBinary:
		length, rest, ok := ReadLength(val)
		if !ok {
			return 0, newError(ErrShortRead, 0, "length-prefixed value truncated")
		}
		extra := int64(0)
		if t == TypeBinary {
			extra = 1 // subtype byte, not counted in the length prefix
		}
		c := integer.AddLengths(4, int64(length), extra)
		if c.Overflowed || length < 0 {
			return 0, newError(ErrInvalidLength, 0, "string/binary length overflow")
		}
		size, ok := integer.Narrow(c.Value)
		if !ok || size > len(val) {
			return 0, newError(ErrShortRead, 0, "string/binary value truncated")
		}
		_ = rest
		return int32(size), nil
	case TypeEmbeddedDocument, TypeArray:
		length, _, ok := ReadLength(val)
		if !ok {
			return 0, newError(ErrShortRead, 0, "nested document truncated")
		}
		if length < 5 {
			return 0, newError(ErrInvalidLength, 0, "nested document length too small")
		}
		size, ok := integer.Narrow(int64(length))
		if !ok || size > len(val) {
			return 0, newError(ErrShortRead, 0, "nested document truncated")
		}
		if val[size-1] != 0x00 {
			return 0, newError(ErrInvalidDocument, 0, "nested document missing terminator")
		}
		return int32(size), nil
	case TypeRegex:
		return regexValueSize(val)
	case TypeCodeWithScope:
		length, _, ok := ReadLength(val)
		if !ok {
			return 0, newError(ErrShortRead, 0, "code-with-scope truncated")
		}
		c := integer.AddLengths(int64(length))
		if c.Overflowed || length < 0 {
			return 0, newError(ErrInvalidLength, 0, "code-with-scope length overflow")
		}
		size, ok := integer.Narrow(c.Value)
		if !ok || size > len(val) {
			return 0, newError(ErrShortRead, 0, "code-with-scope value truncated")
		}
		return int32(size), nil
	default:
		return 0, newError(ErrInvalidType, 0, "unrecognized type tag")
	}
}

func fixedSize(val []byte, n int) (int32, error) {
	if len(val) < n {
		return 0, newError(ErrShortRead, 0, "fixed-size value truncated")
	}
	return int32(n), nil
}

// regexValueSize computes the length of a regex value: two consecutive
// cstrings (pattern, then options), per spec.md §4.D and
// _bson_value_re_len in the original.
func regexValueSize(val []byte) (int32, error) {
	patLen, ok := cstringLen(val)
	if !ok {
		return 0, newError(ErrShortRead, 0, "regex pattern missing terminator")
	}
	rest := val[patLen+1:]
	optLen, ok := cstringLen(rest)
	if !ok {
		return 0, newError(ErrShortRead, 0, "regex options missing terminator")
	}
	c := integer.AddLengths(int64(patLen), 1, int64(optLen), 1)
	if c.Overflowed {
		return 0, newError(ErrInvalidLength, 0, "regex length overflow")
	}
	size, ok := integer.Narrow(c.Value)
	if !ok || size > len(val) {
		return 0, newError(ErrShortRead, 0, "regex value truncated")
	}
	return int32(size), nil
}
