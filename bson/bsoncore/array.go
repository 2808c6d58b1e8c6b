// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import "fmt"

// Array is a raw bytes representation of a BSON array: structurally a
// Document whose keys happen to be the decimal indices "0", "1", ....
// Grounded directly on x/bsonx/bsoncore/array.go in the teacher.
type Array []byte

// Index searches for and retrieves the element at the given index. This
// method will panic if the array is invalid or if the index is out of
// bounds.
func (a Array) Index(index uint) Element {
	return Document(a).Index(index)
}

// IndexErr searches for and retrieves the element at the given index.
func (a Array) IndexErr(index uint) (Element, error) {
	return Document(a).IndexErr(index)
}

// Values returns every element's Value in order, or an error if a does
// not validate.
func (a Array) Values() ([]Value, error) {
	elems, err := Document(a).Elements()
	if err != nil {
		return nil, err
	}
	values := make([]Value, 0, len(elems))
	for _, e := range elems {
		values = append(values, e.Value())
	}
	return values, nil
}

// Validate validates the array and ensures the elements contained within
// are valid. It does not check that keys are in fact "0", "1", ... --
// a non-canonically-keyed array is a valid BSON array, just not one that
// the standard array-building helpers in this package would produce.
func (a Array) Validate() error {
	return Document(a).Validate()
}

// Len returns the array's declared length.
func (a Array) Len() int32 { return Document(a).Len() }

// String renders a as a bracketed, comma-separated list of its elements'
// type names (not their values), for debugging; it returns "" if a
// fails to parse.
func (a Array) String() string {
	elems, err := Document(a).Elements()
	if err != nil {
		return ""
	}
	s := "["
	for i, e := range elems {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s", e.Value().Type)
	}
	return s + "]"
}

// BuildArray wraps already-encoded element bytes with a document header
// and terminator, the same way BuildDocument does.
func BuildArray(elems []byte) Array {
	return Array(BuildDocument(elems))
}
