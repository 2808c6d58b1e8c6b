// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

// Iterator walks the elements of a Document one at a time. It is the Go
// expression of spec.md §3's Iterator: a cursor that is either
// positioned on an Element, has reached the end, or has failed with a
// sticky error.
//
// The original amongoc bson_iterator folds "error" into a sentinel
// position with an embedded negative length (spec.md Design Notes §9).
// Go has no room for that trick in a plain struct field the way a tagged
// pointer does, so Iterator keeps an explicit err field instead -- the
// observable behavior (stickiness: once err is set, Next never advances
// again and the last successfully-read Element is not re-returned) is
// exactly the one spec.md §8 invariant 3 requires.
type Iterator struct {
	remaining []byte
	offset    int
	cur       Element
	err       error
	done      bool
}

// Next advances the iterator to the next element, reporting whether one
// was found. Once Next returns false, callers must check Err to
// distinguish a clean end-of-document from a parse failure. After an
// error or the clean end, Next keeps returning false without touching
// the underlying buffer again.
func (it *Iterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	if len(it.remaining) == 0 {
		it.done = true
		return false
	}
	elem, rest, ok := ReadElement(it.remaining)
	if !ok {
		it.err = newError(ErrShortRead, it.offset, "")
		return false
	}
	if err := elem.Validate(); err != nil {
		it.err = err
		return false
	}
	it.cur = elem
	it.offset += len(elem)
	it.remaining = rest
	return true
}

// Element returns the element the iterator is currently positioned on.
// It is only valid to call after a call to Next returned true.
func (it *Iterator) Element() Element { return it.cur }

// Err returns the sticky error that ended iteration, or nil if iteration
// ended cleanly (or has not ended yet).
func (it *Iterator) Err() error { return it.err }

// Done reports whether the iterator has reached a clean end-of-document
// (as opposed to having errored, or still having elements left).
func (it *Iterator) Done() bool { return it.done && it.err == nil }
