// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amongo/amongo/bson/bsoncore"
)

func buildDoc(elems ...[]byte) bsoncore.Document {
	var all []byte
	for _, e := range elems {
		all = append(all, e...)
	}
	return bsoncore.Document(bsoncore.BuildDocument(all))
}

func TestFieldAcceptsMatchingKeyAndType(t *testing.T) {
	doc := buildDoc(bsoncore.AppendStringElement(nil, "name", "alice"))
	var name string
	rule := Doc(Require("name", Store(&name)))
	res := rule(doc)
	assert.Equal(t, Accept, res.State)
	assert.Equal(t, "alice", name)
}

func TestRequireMissingFieldErrors(t *testing.T) {
	doc := buildDoc(bsoncore.AppendStringElement(nil, "other", "x"))
	var name string
	rule := Doc(Require("name", Store(&name)))
	res := rule(doc)
	assert.Equal(t, Error, res.State)
	assert.Contains(t, res.Message, "name")
}

func TestFieldOptionalMissingIsSilentlyAccepted(t *testing.T) {
	doc := buildDoc(bsoncore.AppendStringElement(nil, "other", "x"))
	var name string
	rule := Doc(Field("name", Store(&name)))
	res := rule(doc)
	assert.Equal(t, Accept, res.State)
	assert.Equal(t, "", name)
}

func TestTypeMismatchRejects(t *testing.T) {
	doc := buildDoc(bsoncore.AppendInt32Element(nil, "name", 42))
	var name string
	rule := Doc(Require("name", Store(&name)))
	res := rule(doc)
	assert.Equal(t, Error, res.State)
}

func TestRejectOthersRejectsUnknownElement(t *testing.T) {
	doc := buildDoc(
		bsoncore.AppendStringElement(nil, "name", "alice"),
		bsoncore.AppendInt32Element(nil, "extra", 1),
	)
	var name string
	rule := Doc(Require("name", Store(&name)), RejectOthers)
	res := rule(doc)
	assert.Equal(t, Reject, res.State)
	assert.Contains(t, res.Message, "extra")
}

func TestRejectOthersAllowsAllKnownKeys(t *testing.T) {
	doc := buildDoc(
		bsoncore.AppendStringElement(nil, "name", "alice"),
		bsoncore.AppendInt32Element(nil, "age", 9),
	)
	var name string
	var age int32
	rule := Doc(Require("name", Store(&name)), Require("age", Store(&age)), RejectOthers)
	res := rule(doc)
	assert.Equal(t, Accept, res.State)
	assert.EqualValues(t, 9, age)
}

func TestNestedDocFieldPrefixesEachFieldName(t *testing.T) {
	inner := buildDoc(bsoncore.AppendInt32Element(nil, "bar", 1))
	outer := buildDoc(bsoncore.AppendDocumentElement(nil, "foo", inner))

	var bar string // wrong type on purpose: bar is int32, not string
	innerRule := Doc(Require("bar", Store(&bar)))
	outerRule := Doc(Require("foo", Type(innerRule)))

	res := outerRule(outer)
	require.Equal(t, Error, res.State)
	assert.Contains(t, res.Message, `in field "foo"`)
	assert.Contains(t, res.Message, `in field "bar"`)
}

func TestEachRejectsOnFirstBadElement(t *testing.T) {
	doc := buildDoc(
		bsoncore.AppendInt32Element(nil, "0", 1),
		bsoncore.AppendStringElement(nil, "1", "oops"),
	)
	rule := Each(Int64ish(func(int64) Result { return Accepted() }))
	res := rule(doc)
	assert.Equal(t, Reject, res.State)
	assert.Contains(t, res.Message, `"1"`)
}

func TestEachAcceptsAllNumeric(t *testing.T) {
	doc := buildDoc(
		bsoncore.AppendInt32Element(nil, "0", 1),
		bsoncore.AppendInt64Element(nil, "1", 2),
		bsoncore.AppendDoubleElement(nil, "2", 3.0),
	)
	var sum int64
	rule := Each(Int64ish(func(v int64) Result {
		sum += v
		return Accepted()
	}))
	res := rule(doc)
	assert.Equal(t, Accept, res.State)
	assert.EqualValues(t, 6, sum)
}

func TestAnyShortCircuitsOnFirstNonReject(t *testing.T) {
	calls := 0
	rule := Any(
		Type(func(int32) Result { calls++; return Rejected("not int32") }),
		Type(func(string) Result { calls++; return Accepted() }),
		Type(func(bool) Result { calls++; return Accepted() }),
	)
	elem := elementFromDoc(t, buildDoc(bsoncore.AppendStringElement(nil, "x", "y")), "x")
	res := rule(elem)
	assert.Equal(t, Accept, res.State)
	assert.Equal(t, 1, calls)
}

func TestAnyRejectsWhenAllReject(t *testing.T) {
	rule := Any(
		Type(func(int32) Result { return Rejected("no") }),
		Type(func(bool) Result { return Rejected("no") }),
	)
	elem := elementFromDoc(t, buildDoc(bsoncore.AppendStringElement(nil, "x", "y")), "x")
	res := rule(elem)
	assert.Equal(t, Reject, res.State)
}

func TestAllStopsOnFirstNonAccept(t *testing.T) {
	calls := 0
	rule := All(
		Action(func(bsoncore.Element) error { calls++; return nil }),
		Type(func(int32) Result { calls++; return Accepted() }),
		Action(func(bsoncore.Element) error { calls++; return nil }),
	)
	elem := elementFromDoc(t, buildDoc(bsoncore.AppendStringElement(nil, "x", "y")), "x")
	res := rule(elem)
	assert.Equal(t, Reject, res.State)
	assert.Equal(t, 1, calls)
}

func TestActionErrorBecomesErrorState(t *testing.T) {
	rule := Action(func(bsoncore.Element) error { return assertErr{} })
	elem := elementFromDoc(t, buildDoc(bsoncore.AppendStringElement(nil, "x", "y")), "x")
	res := rule(elem)
	assert.Equal(t, Error, res.State)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestMustPromotesRejectToError(t *testing.T) {
	doc := buildDoc(bsoncore.AppendStringElement(nil, "other", "x"))
	rule := Doc(Must(Field("name", Store(new(string)))))
	res := rule(doc)
	assert.Equal(t, Error, res.State)
}

func TestMustParseReturnsNilOnAccept(t *testing.T) {
	doc := buildDoc(bsoncore.AppendStringElement(nil, "name", "alice"))
	var name string
	err := MustParse(doc, Doc(Require("name", Store(&name))))
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestMustParseReturnsErrorOnReject(t *testing.T) {
	doc := buildDoc(bsoncore.AppendStringElement(nil, "other", "x"))
	var name string
	err := MustParse(doc, Doc(Require("name", Store(&name))))
	require.Error(t, err)
}

func TestOptionalAcceptsMissingField(t *testing.T) {
	doc := buildDoc(bsoncore.AppendStringElement(nil, "other", "x"))
	var name string
	rule := Doc(Optional(Field("name", Store(&name))))
	res := rule(doc)
	assert.Equal(t, Accept, res.State)
	assert.Empty(t, name)
}

func TestOptionalStillErrorsOnMalformedField(t *testing.T) {
	doc := buildDoc(bsoncore.AppendStringElement(nil, "name", "not-a-number"))
	var count int32
	rule := Doc(Optional(Must(Field("name", Store(&count)))))
	res := rule(doc)
	assert.Equal(t, Error, res.State)
}

func elementFromDoc(t *testing.T, doc bsoncore.Document, key string) bsoncore.Element {
	t.Helper()
	it := doc.Iterator()
	for it.Next() {
		if it.Element().Key() == key {
			return it.Element()
		}
	}
	t.Fatalf("key %q not found", key)
	return nil
}
