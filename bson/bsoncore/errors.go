// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import "fmt"

// ErrorCode classifies a parse/iteration failure, matching the
// bson_view_errc/bson_iter_errc enums in the amongoc original
// (spec.md §4.D).
type ErrorCode int

const (
	// ErrShortRead means there were not enough bytes to read the next
	// requested structure.
	ErrShortRead ErrorCode = iota + 1
	// ErrInvalidHeader means a document's declared length header was out
	// of range (<5 or >len(buf)).
	ErrInvalidHeader
	// ErrInvalidTerminator means a document's final byte was not 0x00.
	ErrInvalidTerminator
	// ErrInvalidType means an element's type tag is not recognized.
	ErrInvalidType
	// ErrInvalidLength means a length-prefixed value's declared length
	// does not fit the remaining buffer, including checked-arithmetic
	// overflow (spec.md §4.D).
	ErrInvalidLength
	// ErrInvalidDocument means a nested document/array is missing its
	// null terminator.
	ErrInvalidDocument
)

func (c ErrorCode) String() string {
	switch c {
	case ErrShortRead:
		return "short read"
	case ErrInvalidHeader:
		return "invalid header"
	case ErrInvalidTerminator:
		return "invalid terminator"
	case ErrInvalidType:
		return "invalid type"
	case ErrInvalidLength:
		return "invalid length"
	case ErrInvalidDocument:
		return "invalid document"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by parsing and iteration in this
// package. It is sticky-friendly: two Errors with the same Code, Offset
// and reason compare equal via errors.Is through ==, matching spec.md §8
// invariant 3 (iterator errors are sticky).
type Error struct {
	Code   ErrorCode
	Offset int
	reason string
}

func newError(code ErrorCode, offset int, reason string) Error {
	return Error{Code: code, Offset: offset, reason: reason}
}

func (e Error) Error() string {
	if e.reason != "" {
		return fmt.Sprintf("bsoncore: %s at offset %d: %s", e.Code, e.Offset, e.reason)
	}
	return fmt.Sprintf("bsoncore: %s at offset %d", e.Code, e.Offset)
}
