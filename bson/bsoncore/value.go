// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value is a non-owning reference to a single BSON value: a type tag plus
// the raw bytes of its payload (spec.md §3/§4.F "reference" form). Data
// is assumed to have already been validated to be exactly the value's
// bytes (no trailing bytes from sibling elements).
type Value struct {
	Type Type
	Data []byte
}

// Double returns the value as a float64. It panics if Type is not
// TypeDouble -- callers that are unsure of the type should check Type
// first, matching bsoncore's convention in the teacher of
// panic-on-mistyped-access plus an OK-suffixed counterpart (DoubleOK).
func (v Value) Double() float64 {
	d, ok := v.DoubleOK()
	if !ok {
		panic(fmt.Sprintf("bsoncore: value has type %s, not double", v.Type))
	}
	return d
}

// DoubleOK is the non-panicking counterpart of Double.
func (v Value) DoubleOK() (float64, bool) {
	if v.Type != TypeDouble || len(v.Data) < 8 {
		return 0, false
	}
	bits := binary.LittleEndian.Uint64(v.Data)
	return math.Float64frombits(bits), true
}

// StringValue returns the value as a UTF8 string.
func (v Value) StringValue() string {
	s, ok := v.StringValueOK()
	if !ok {
		panic(fmt.Sprintf("bsoncore: value has type %s, not string", v.Type))
	}
	return s
}

// StringValueOK is the non-panicking counterpart of StringValue.
func (v Value) StringValueOK() (string, bool) {
	if v.Type != TypeString && v.Type != TypeJavaScript && v.Type != TypeSymbol {
		return "", false
	}
	length, rest, ok := ReadLength(v.Data)
	if !ok || length < 1 || int(length) > len(rest)+1 {
		return "", false
	}
	return string(rest[:length-1]), true
}

// Document returns the value as an embedded Document (a copy-free view
// over v.Data).
func (v Value) Document() Document {
	d, ok := v.DocumentOK()
	if !ok {
		panic(fmt.Sprintf("bsoncore: value has type %s, not document", v.Type))
	}
	return d
}

// DocumentOK is the non-panicking counterpart of Document.
func (v Value) DocumentOK() (Document, bool) {
	if v.Type != TypeEmbeddedDocument {
		return nil, false
	}
	return Document(v.Data), true
}

// Array returns the value as an Array.
func (v Value) Array() Array {
	a, ok := v.ArrayOK()
	if !ok {
		panic(fmt.Sprintf("bsoncore: value has type %s, not array", v.Type))
	}
	return a
}

// ArrayOK is the non-panicking counterpart of Array.
func (v Value) ArrayOK() (Array, bool) {
	if v.Type != TypeArray {
		return nil, false
	}
	return Array(v.Data), true
}

// Binary returns the value's subtype and payload.
func (v Value) Binary() (subtype byte, data []byte) {
	st, d, ok := v.BinaryOK()
	if !ok {
		panic(fmt.Sprintf("bsoncore: value has type %s, not binary", v.Type))
	}
	return st, d
}

// BinaryOK is the non-panicking counterpart of Binary.
func (v Value) BinaryOK() (byte, []byte, bool) {
	if v.Type != TypeBinary {
		return 0, nil, false
	}
	length, rest, ok := ReadLength(v.Data)
	if !ok || len(rest) < 1 || int(length) > len(rest)-1 {
		return 0, nil, false
	}
	return rest[0], rest[1 : 1+length], true
}

// Boolean returns the value as a bool.
func (v Value) Boolean() bool {
	b, ok := v.BooleanOK()
	if !ok {
		panic(fmt.Sprintf("bsoncore: value has type %s, not bool", v.Type))
	}
	return b
}

// BooleanOK is the non-panicking counterpart of Boolean.
func (v Value) BooleanOK() (bool, bool) {
	if v.Type != TypeBoolean || len(v.Data) < 1 {
		return false, false
	}
	return v.Data[0] != 0, true
}

// Int32 returns the value as an int32.
func (v Value) Int32() int32 {
	i, ok := v.Int32OK()
	if !ok {
		panic(fmt.Sprintf("bsoncore: value has type %s, not int32", v.Type))
	}
	return i
}

// Int32OK is the non-panicking counterpart of Int32.
func (v Value) Int32OK() (int32, bool) {
	if v.Type != TypeInt32 || len(v.Data) < 4 {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(v.Data)), true
}

// Int64 returns the value as an int64.
func (v Value) Int64() int64 {
	i, ok := v.Int64OK()
	if !ok {
		panic(fmt.Sprintf("bsoncore: value has type %s, not int64", v.Type))
	}
	return i
}

// Int64OK is the non-panicking counterpart of Int64.
func (v Value) Int64OK() (int64, bool) {
	if v.Type != TypeInt64 && v.Type != TypeDateTime && v.Type != TypeTimestamp {
		return 0, false
	}
	if len(v.Data) < 8 {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(v.Data)), true
}

// Regex returns the pattern and options of a regex value.
func (v Value) Regex() (pattern, options string) {
	p, o, ok := v.RegexOK()
	if !ok {
		panic(fmt.Sprintf("bsoncore: value has type %s, not regex", v.Type))
	}
	return p, o
}

// RegexOK is the non-panicking counterpart of Regex.
func (v Value) RegexOK() (string, string, bool) {
	if v.Type != TypeRegex {
		return "", "", false
	}
	patLen, ok := cstringLen(v.Data)
	if !ok {
		return "", "", false
	}
	rest := v.Data[patLen+1:]
	optLen, ok := cstringLen(rest)
	if !ok {
		return "", "", false
	}
	return string(v.Data[:patLen]), string(rest[:optLen]), true
}

// IsNumber reports whether the value holds a numeric type.
func (v Value) IsNumber() bool {
	switch v.Type {
	case TypeDouble, TypeInt32, TypeInt64, TypeDecimal128:
		return true
	default:
		return false
	}
}

// Equal reports whether v and other hold bytewise-identical type and
// data, matching spec.md §3's View equality rule extended to Value.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	if len(v.Data) != len(other.Data) {
		return false
	}
	for i := range v.Data {
		if v.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// AppendValueElement appends a complete element (type tag, key cstring,
// value bytes) for the given key and value to dst.
func AppendValueElement(dst []byte, key string, v Value) []byte {
	dst = append(dst, byte(v.Type))
	dst = append(dst, key...)
	dst = append(dst, 0x00)
	dst = append(dst, v.Data...)
	return dst
}

// AppendDoubleElement appends a double-valued element.
func AppendDoubleElement(dst []byte, key string, f float64) []byte {
	dst = append(dst, byte(TypeDouble))
	dst = append(dst, key...)
	dst = append(dst, 0x00)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	return append(dst, b[:]...)
}

// AppendStringElement appends a UTF8 string-valued element.
func AppendStringElement(dst []byte, key, value string) []byte {
	dst = append(dst, byte(TypeString))
	dst = append(dst, key...)
	dst = append(dst, 0x00)
	dst = appendLength(dst, int32(len(value)+1))
	dst = append(dst, value...)
	return append(dst, 0x00)
}

// AppendDocumentElement appends a document-valued element.
func AppendDocumentElement(dst []byte, key string, doc []byte) []byte {
	dst = append(dst, byte(TypeEmbeddedDocument))
	dst = append(dst, key...)
	dst = append(dst, 0x00)
	return append(dst, doc...)
}

// AppendArrayElement appends an array-valued element.
func AppendArrayElement(dst []byte, key string, arr []byte) []byte {
	dst = append(dst, byte(TypeArray))
	dst = append(dst, key...)
	dst = append(dst, 0x00)
	return append(dst, arr...)
}

// AppendBooleanElement appends a boolean-valued element.
func AppendBooleanElement(dst []byte, key string, b bool) []byte {
	dst = append(dst, byte(TypeBoolean))
	dst = append(dst, key...)
	dst = append(dst, 0x00)
	if b {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// AppendBinaryElement appends a binary-valued element with the given
// subtype.
func AppendBinaryElement(dst []byte, key string, subtype byte, data []byte) []byte {
	dst = append(dst, byte(TypeBinary))
	dst = append(dst, key...)
	dst = append(dst, 0x00)
	dst = appendLength(dst, int32(len(data)))
	dst = append(dst, subtype)
	return append(dst, data...)
}

// AppendNullElement appends a null-valued element.
func AppendNullElement(dst []byte, key string) []byte {
	dst = append(dst, byte(TypeNull))
	dst = append(dst, key...)
	return append(dst, 0x00)
}

// AppendInt32Element appends an int32-valued element.
func AppendInt32Element(dst []byte, key string, i int32) []byte {
	dst = append(dst, byte(TypeInt32))
	dst = append(dst, key...)
	dst = append(dst, 0x00)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(i))
	return append(dst, b[:]...)
}

// AppendInt64Element appends an int64-valued element.
func AppendInt64Element(dst []byte, key string, i int64) []byte {
	dst = append(dst, byte(TypeInt64))
	dst = append(dst, key...)
	dst = append(dst, 0x00)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(i))
	return append(dst, b[:]...)
}

// BuildDocument wraps elems (already-encoded element bytes, concatenated)
// with a length header and terminator to produce a complete document.
func BuildDocument(elems []byte) []byte {
	length := int32(len(elems) + 5)
	out := make([]byte, 0, length)
	out = appendLength(out, length)
	out = append(out, elems...)
	out = append(out, 0x00)
	return out
}

// EmptyDocument is the canonical empty BSON document: {5,0,0,0,0}.
var EmptyDocument = []byte{5, 0, 0, 0, 0}
