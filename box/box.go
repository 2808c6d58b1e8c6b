// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package box implements the type-erased value cell used as the universal
// userdata/result carrier between asynchronous steps (see package async).
// It is grounded on amongoc_box in the original amongoc sources
// (include/amongoc/box.hpp): a single handle, passed by value through
// thousands of continuations, that owns an arbitrary value plus an
// optional destructor.
//
// Go already garbage-collects ordinary values, so Box does not need to
// manage memory the way the C++ original does. What it still needs to
// model is the original's *shape*: a linear-ownership handle with an
// explicit, optional destructor (for non-memory resources such as sockets
// or registered callbacks) and a small-buffer fast path for the common
// case of a scalar completion result, so that composing a chain of
// continuations over e.g. a bool or an int64 never touches the heap.
package box

import (
	"math"
	"reflect"
)

type kind uint8

const (
	kindNil kind = iota
	kindBool
	kindInt32
	kindInt64
	kindUint64
	kindFloat64
	kindDynamic
)

// Box is an erased value cell. The zero Box is nil (holds no value).
//
// Box is move-only in spirit: Go cannot forbid copies of a struct, but
// callers must treat a Box as linear-ownership the way the rest of the
// package does -- once passed to Take or Destroy, the original must not
// be used again. Tests in this package enforce the observable half of
// that contract (Take leaves the box nil; Destroy is idempotent-safe).
type Box struct {
	k         kind
	scalar    uint64 // raw bits for the scalar kinds
	dynamic   any    // populated only for kindDynamic
	dtor      func(any)
	destroyed bool
}

// Nil returns the nil Box.
func Nil() Box { return Box{} }

// IsNil reports whether b holds no value.
func (b Box) IsNil() bool { return b.k == kindNil }

// HasDestructor reports whether destroying b will invoke a destructor
// function, mirroring the original's has_destructor flag.
func (b Box) HasDestructor() bool { return b.dtor != nil }

// New constructs a Box holding value, invoking dtor (if non-nil) exactly
// once when the box is destroyed. This stands in for amongoc_box_init: Go
// has no placement-new, so the caller supplies a fully constructed value
// rather than writing into box-owned storage.
func New[T any](value T, dtor func(T)) Box {
	b := fromValue(value)
	if dtor != nil {
		b.dtor = func(v any) { dtor(v.(T)) }
	}
	return b
}

func fromValue[T any](value T) Box {
	switch v := any(value).(type) {
	case bool:
		s := uint64(0)
		if v {
			s = 1
		}
		return Box{k: kindBool, scalar: s}
	case int32:
		return Box{k: kindInt32, scalar: uint64(uint32(v))}
	case int64:
		return Box{k: kindInt64, scalar: uint64(v)}
	case uint64:
		return Box{k: kindUint64, scalar: v}
	case float64:
		return Box{k: kindFloat64, scalar: math.Float64bits(v)}
	default:
		return Box{k: kindDynamic, dynamic: value}
	}
}

// Cast accesses the value held by b as T without consuming b. It panics
// if T does not match the type originally stored, matching the original's
// documented precondition that amongoc_box_cast is undefined behavior for
// the wrong type -- Go cannot offer undefined behavior, so this panics
// instead of corrupting memory.
func Cast[T any](b Box) T {
	v, ok := tryCast[T](b)
	if !ok {
		panic("box: Cast: type mismatch")
	}
	return v
}

func tryCast[T any](b Box) (T, bool) {
	var zero T
	switch b.k {
	case kindNil:
		return zero, false
	case kindDynamic:
		v, ok := b.dynamic.(T)
		return v, ok
	default:
		// Scalar kinds: reconstruct the typed value from the raw bits
		// and check it against the requested T via a type assertion
		// through the empty interface.
		var any_ any
		switch b.k {
		case kindBool:
			any_ = b.scalar != 0
		case kindInt32:
			any_ = int32(uint32(b.scalar))
		case kindInt64:
			any_ = int64(b.scalar)
		case kindUint64:
			any_ = b.scalar
		case kindFloat64:
			any_ = math.Float64frombits(b.scalar)
		}
		v, ok := any_.(T)
		return v, ok
	}
}

// Take moves the value out of b, leaving b nil (invariant #6 of
// spec.md §8). It panics on a type mismatch, for the same reason as Cast.
func Take[T any](b *Box) T {
	v := Cast[T](*b)
	*b = Box{}
	return v
}

// Destroy invokes b's destructor, if any, exactly once, then clears b to
// nil. Destroying an already-destroyed (or moved-from/nil) box is a
// documented no-op, matching spec.md §3's Box invariants.
func (b *Box) Destroy() {
	if b.destroyed || b.k == kindNil {
		*b = Box{}
		return
	}
	b.destroyed = true
	if b.dtor != nil {
		var payload any
		if b.k == kindDynamic {
			payload = b.dynamic
		} else {
			payload, _ = tryCast[any](*b)
		}
		dtor := b.dtor
		*b = Box{}
		dtor(payload)
		return
	}
	*b = Box{}
}

// InlineTier reports which small-buffer tier b would occupy, matching the
// original's box.compress.hpp tiers (0/8/16/24 bytes). It is purely
// informational: no other package in this module calls it, and package
// async's combinators capture values without consulting it. Go does not let us control
// layout as precisely as the C++ union does, so this is a best-effort
// classification based on the dynamic payload's reflect.Type.Size.
func (b Box) InlineTier() int {
	switch b.k {
	case kindNil:
		return 0
	case kindBool, kindInt32:
		return 8
	case kindInt64, kindUint64, kindFloat64:
		return 8
	case kindDynamic:
		if b.dynamic == nil {
			return 0
		}
		sz := reflect.TypeOf(b.dynamic).Size()
		switch {
		case sz <= 8:
			return 8
		case sz <= 16:
			return 16
		case sz <= 24:
			return 24
		default:
			return 32 // heap-compressed tier, matches original's "dynamic" fallback
		}
	default:
		return 32
	}
}
