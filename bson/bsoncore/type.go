// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bsoncore implements the zero-copy BSON document model: a
// read-only View/Iterator pair over length-prefixed document bytes
// (spec.md §4.D), and an owned, growable Document with an in-place
// mutator (spec.md §4.E/F). It is grounded on
// x/bsonx/bsoncore/array.go in the teacher and on
// include/bson/view.h, include/bson/detail/iter.h, and
// src/amongoc/bson/build.c in the amongoc original.
package bsoncore

// Type is a BSON element type tag.
type Type byte

// BSON type tags, per the MongoDB BSON specification (spec.md §3).
const (
	TypeDouble           Type = 0x01
	TypeString           Type = 0x02
	TypeEmbeddedDocument Type = 0x03
	TypeArray            Type = 0x04
	TypeBinary           Type = 0x05
	TypeUndefined        Type = 0x06
	TypeObjectID         Type = 0x07
	TypeBoolean          Type = 0x08
	TypeDateTime         Type = 0x09
	TypeNull             Type = 0x0A
	TypeRegex            Type = 0x0B
	TypeDBPointer        Type = 0x0C
	TypeJavaScript       Type = 0x0D
	TypeSymbol           Type = 0x0E
	TypeCodeWithScope    Type = 0x0F
	TypeInt32            Type = 0x10
	TypeTimestamp        Type = 0x11
	TypeInt64            Type = 0x12
	TypeDecimal128       Type = 0x13
	TypeMaxKey           Type = 0x7F
	TypeMinKey           Type = 0xFF
)

// String returns a human-readable name for t, used by Element.DebugString,
// Array.String and the panic messages of Value's typed accessors.
func (t Type) String() string {
	switch t {
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeEmbeddedDocument:
		return "document"
	case TypeArray:
		return "array"
	case TypeBinary:
		return "binary"
	case TypeUndefined:
		return "undefined"
	case TypeObjectID:
		return "objectID"
	case TypeBoolean:
		return "bool"
	case TypeDateTime:
		return "dateTime"
	case TypeNull:
		return "null"
	case TypeRegex:
		return "regex"
	case TypeDBPointer:
		return "dbPointer"
	case TypeJavaScript:
		return "javascript"
	case TypeSymbol:
		return "symbol"
	case TypeCodeWithScope:
		return "javascriptWithScope"
	case TypeInt32:
		return "int32"
	case TypeTimestamp:
		return "timestamp"
	case TypeInt64:
		return "int64"
	case TypeDecimal128:
		return "decimal128"
	case TypeMaxKey:
		return "maxKey"
	case TypeMinKey:
		return "minKey"
	default:
		return "invalid"
	}
}

// IsValid reports whether t is one of the recognized type tags.
func (t Type) IsValid() bool {
	switch t {
	case TypeDouble, TypeString, TypeEmbeddedDocument, TypeArray, TypeBinary, TypeUndefined,
		TypeObjectID, TypeBoolean, TypeDateTime, TypeNull, TypeRegex, TypeDBPointer,
		TypeJavaScript, TypeSymbol, TypeCodeWithScope, TypeInt32, TypeTimestamp,
		TypeInt64, TypeDecimal128, TypeMaxKey, TypeMinKey:
		return true
	default:
		return false
	}
}
