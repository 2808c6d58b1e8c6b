// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package integer implements flagged (not saturating) 64-bit arithmetic for the
// length math that package bsoncore performs on untrusted input (element
// sizes, nested document lengths, array indices). It is grounded on
// include/mlib/integer.h in the amongoc original, which documents its
// overflow checks as explicit boolean derivations rather than relying on
// wraparound -- the shape (a value plus an "overflowed" flag, never a
// silently-wrapped result) is carried here via Checked.
package integer

import "math"

// Checked holds the result of a checked arithmetic operation: the value
// is meaningful only when Overflowed is false.
type Checked struct {
	Value      int64
	Overflowed bool
}

// ok constructs a non-overflowed Checked.
func ok(v int64) Checked { return Checked{Value: v} }

// overflow constructs an overflowed Checked; Value is the zero value by
// convention, matching spec.md's "any overflow converts to InvalidLength"
// rule -- callers must check Overflowed before trusting Value.
func overflow() Checked { return Checked{Overflowed: true} }

// Add returns a+b, flagging overflow instead of wrapping.
func Add(a, b int64) Checked {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return overflow()
	}
	return ok(sum)
}

// Sub returns a-b, flagging overflow instead of wrapping.
func Sub(a, b int64) Checked {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return overflow()
	}
	return ok(diff)
}

// Mul returns a*b, flagging overflow instead of wrapping. Mirrors
// _mlib_i64_mul_would_overflow in the original by special-casing the
// division-undefined inputs (b == -1 with a == MinInt64) before falling
// back to a division-based bound check.
func Mul(a, b int64) Checked {
	if a == 0 || b == 0 {
		return ok(0)
	}
	if b == -1 {
		if a == math.MinInt64 {
			return overflow()
		}
		return ok(-a)
	}
	if a == -1 {
		if b == math.MinInt64 {
			return overflow()
		}
		return ok(-b)
	}
	p := a * b
	if p/b != a {
		return overflow()
	}
	return ok(p)
}

// Narrow checked-narrows a validated int64 length into an int, the width
// used throughout package bsoncore for slice indices. It reports false
// when v does not fit, matching the original's narrowing-cast helpers.
func Narrow(v int64) (int, bool) {
	n := int(v)
	if int64(n) != v {
		return 0, false
	}
	return n, true
}

// AddLengths folds Add across a list of lengths, short-circuiting on the
// first overflow. This is the operation package bsoncore actually needs:
// summing a header size plus a sequence of element/body sizes while
// validating against untrusted document bytes.
func AddLengths(lengths ...int64) Checked {
	var total int64
	for _, l := range lengths {
		c := Add(total, l)
		if c.Overflowed {
			return c
		}
		total = c.Value
	}
	return ok(total)
}
