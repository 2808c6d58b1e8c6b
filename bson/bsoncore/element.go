// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import "fmt"

// Element is a raw bytes representation of a single BSON element:
// type_tag | key_cstring | value_bytes (spec.md §3). Grounded on
// x/bsonx/bsoncore/array.go's use of an Element type in the teacher.
type Element []byte

// ReadElement parses a single element from the front of src. It returns
// the element's bytes, the remaining bytes of src following the element,
// and false if src does not begin with a complete, validly-sized
// element. This is the single entry point element-size computation
// (spec.md §4.D) funnels through.
func ReadElement(src []byte) (Element, []byte, bool) {
	if len(src) < 2 {
		return nil, src, false
	}
	t := Type(src[0])
	keyLen, ok := cstringLen(src[1:])
	if !ok {
		return nil, src, false
	}
	keyEnd := 1 + keyLen + 1 // tag + key bytes + NUL
	if keyEnd > len(src) {
		return nil, src, false
	}
	val := src[keyEnd:]
	if len(val) == 0 && valueSizeNeedsBytes(t) {
		return nil, src, false
	}
	valSize, err := valueSize(t, val)
	if err != nil {
		return nil, src, false
	}
	total := keyEnd + int(valSize)
	if total > len(src) {
		return nil, src, false
	}
	return Element(src[:total]), src[total:], true
}

// valueSizeNeedsBytes reports whether computing t's value size requires
// at least one byte to be present (all current types do, except the
// always-zero-length types which still call valueSize for uniformity).
func valueSizeNeedsBytes(t Type) bool {
	switch t {
	case TypeNull, TypeUndefined, TypeMinKey, TypeMaxKey:
		return false
	default:
		return true
	}
}

// Key returns the element's key string.
func (e Element) Key() string {
	k, ok := e.KeyOK()
	if !ok {
		panic("bsoncore: malformed element")
	}
	return k
}

// KeyOK is the non-panicking counterpart of Key.
func (e Element) KeyOK() (string, bool) {
	if len(e) < 2 {
		return "", false
	}
	n, ok := cstringLen(e[1:])
	if !ok {
		return "", false
	}
	return string(e[1 : 1+n]), true
}

// Value returns the element's Value.
func (e Element) Value() Value {
	v, ok := e.ValueOK()
	if !ok {
		panic("bsoncore: malformed element")
	}
	return v
}

// ValueOK is the non-panicking counterpart of Value.
func (e Element) ValueOK() (Value, bool) {
	if len(e) < 2 {
		return Value{}, false
	}
	n, ok := cstringLen(e[1:])
	if !ok {
		return Value{}, false
	}
	keyEnd := 1 + n + 1
	if keyEnd > len(e) {
		return Value{}, false
	}
	return Value{Type: Type(e[0]), Data: e[keyEnd:]}, true
}

// Validate reports whether e is a well-formed element: its type tag is
// recognized and its value bytes are exactly sized (no trailing bytes).
func (e Element) Validate() error {
	if len(e) < 2 {
		return newError(ErrShortRead, 0, "element too short")
	}
	t := Type(e[0])
	if !t.IsValid() {
		return newError(ErrInvalidType, 0, fmt.Sprintf("tag 0x%x", byte(t)))
	}
	n, ok := cstringLen(e[1:])
	if !ok {
		return newError(ErrShortRead, 0, "key missing terminator")
	}
	keyEnd := 1 + n + 1
	if keyEnd > len(e) {
		return newError(ErrShortRead, 0, "key truncated")
	}
	val := e[keyEnd:]
	size, err := valueSize(t, val)
	if err != nil {
		return err
	}
	if int(size) != len(val) {
		return newError(ErrInvalidLength, 0, "trailing bytes after value")
	}
	if t == TypeEmbeddedDocument || t == TypeArray {
		return Document(val).Validate()
	}
	return nil
}

// DebugString renders e for debugging.
func (e Element) DebugString() string {
	k, ok := e.KeyOK()
	if !ok {
		return "<malformed>"
	}
	v, ok := e.ValueOK()
	if !ok {
		return fmt.Sprintf("%q: <malformed>", k)
	}
	return fmt.Sprintf("%q: %s(%d bytes)", k, v.Type, len(v.Data))
}

// String renders e as a single "key":value fragment.
func (e Element) String() string {
	k, ok := e.KeyOK()
	if !ok {
		return ""
	}
	return fmt.Sprintf("%q: <%s>", k, e.Value().Type)
}
