// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"bytes"
	"fmt"
)

// Document is a raw bytes representation of a BSON document (spec.md
// §3). As a bare []byte it is a non-owning view when aliased from a
// larger buffer, and an owned value when it holds the only reference to
// its backing array -- the same duality the teacher's bsoncore.Document
// has, and the same one spec.md §3 describes for View vs. the mutable
// document.
type Document []byte

// NewDocumentFromReader is not provided here: the wire layer (package
// wire) reads documents directly off a framed OP_MSG section, which
// already gives it a length-delimited byte slice; see wire.Decode.

// FromBytes validates buf as a complete BSON document and returns it as
// a Document, or one of {ErrShortRead, ErrInvalidHeader,
// ErrInvalidTerminator} per spec.md §4.D.
func FromBytes(buf []byte) (Document, error) {
	if len(buf) < 5 {
		return nil, newError(ErrShortRead, 0, "fewer than 5 bytes")
	}
	length, _, ok := ReadLength(buf)
	if !ok || length < 5 || int(length) > len(buf) {
		return nil, newError(ErrInvalidHeader, 0, fmt.Sprintf("declared length %d", length))
	}
	if buf[length-1] != 0x00 {
		return nil, newError(ErrInvalidTerminator, int(length)-1, "")
	}
	return Document(buf[:length]), nil
}

// Len returns the document's declared length (its first 4 bytes,
// little-endian), without re-validating it.
func (d Document) Len() int32 {
	length, _, _ := ReadLength(d)
	return length
}

// Validate walks every element in d, checking that iteration completes
// without overrunning the buffer and that every element itself validates
// (spec.md §8 invariant 1).
func (d Document) Validate() error {
	if _, err := FromBytes(d); err != nil {
		return err
	}
	it := d.Iterator()
	for it.Next() {
	}
	return it.Err()
}

// Iterator returns a fresh Iterator over d's elements.
func (d Document) Iterator() *Iterator {
	length, rest, ok := ReadLength(d)
	if !ok {
		return &Iterator{err: newError(ErrShortRead, 0, "")}
	}
	end := int(length) - 1 // offset of the terminating NUL
	if end < 4 || end > len(d) {
		return &Iterator{err: newError(ErrInvalidHeader, 0, "")}
	}
	return &Iterator{remaining: rest[:end-4], offset: 4}
}

// Elements decodes every element of d into a slice, surfacing the first
// error encountered (if any) along with the elements successfully read
// before it.
func (d Document) Elements() ([]Element, error) {
	it := d.Iterator()
	var elems []Element
	for it.Next() {
		elems = append(elems, it.Element())
	}
	return elems, it.Err()
}

// Lookup performs a linear scan for key, O(n) in element count with no
// index, matching spec.md §4.D. It returns the zero Value and false if
// key is not found before the end of d or before the first element that
// fails to parse; a match that precedes a corrupt element is still
// returned with true.
func (d Document) Lookup(key string) (Value, bool) {
	it := d.Iterator()
	for it.Next() {
		if it.Element().Key() == key {
			return it.Element().Value(), true
		}
	}
	return Value{}, false
}

// Index returns the element at the given zero-based position, panicking
// if the document is invalid or the index is out of bounds.
func (d Document) Index(index uint) Element {
	e, err := d.IndexErr(index)
	if err != nil {
		panic(err)
	}
	return e
}

// IndexErr is the non-panicking counterpart of Index.
func (d Document) IndexErr(index uint) (Element, error) {
	it := d.Iterator()
	var i uint
	for it.Next() {
		if i == index {
			return it.Element(), nil
		}
		i++
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("bsoncore: index %d out of range", index)
}

// Equal reports whether d and other are bytewise identical, matching
// spec.md §3's View equality rule.
func (d Document) Equal(other Document) bool {
	return bytes.Equal(d, other)
}

// String renders d as a minimal extended-JSON-ish representation. Not a
// spec-compliant Extended JSON encoder (see spec.md Non-goals: "BSON JSON
// round-tripping" is out of scope) -- this exists purely for debugging
// and test failure output.
func (d Document) String() string {
	it := d.Iterator()
	var b bytes.Buffer
	b.WriteByte('{')
	first := true
	for it.Next() {
		if !first {
			b.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&b, "%s", it.Element().String())
	}
	b.WriteByte('}')
	return b.String()
}

// DebugString is an alias for String kept for parity with the teacher's
// Array.DebugString/String pairing.
func (d Document) DebugString() string { return d.String() }
