// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package parse provides declarative parser combinators for decomposing
// BSON documents into typed fields with path-qualified diagnostics,
// matching spec.md §4.G. It is grounded on the original's
// include/bson/parse.hpp, with the output-iterator-based formatting
// replaced by plain Go strings.
package parse

import (
	"fmt"
	"strings"

	"github.com/amongo/amongo/bson/bsoncore"
)

// State is the outcome of trying to match a rule against its input.
type State int

const (
	// Reject is a soft failure: the rule simply did not match.
	Reject State = iota
	// Error is a hard failure: parsing should stop and report this.
	Error
	// Accept is success.
	Accept
)

func (s State) String() string {
	switch s {
	case Reject:
		return "reject"
	case Error:
		return "error"
	case Accept:
		return "accept"
	default:
		return "unknown"
	}
}

// Result is the outcome of applying a rule: a state plus a diagnostic
// message describing why (empty on Accept).
type Result struct {
	State   State
	Message string
}

// Accepted constructs an unconditional-acceptance result.
func Accepted() Result { return Result{State: Accept} }

// Rejected constructs a rejection carrying a diagnostic message.
func Rejected(msg string) Result { return Result{State: Reject, Message: msg} }

// Rejectedf is Rejected with fmt.Sprintf formatting.
func Rejectedf(format string, args ...any) Result {
	return Rejected(fmt.Sprintf(format, args...))
}

// Errored constructs an error result carrying a diagnostic message.
func Errored(msg string) Result { return Result{State: Error, Message: msg} }

// Rule parses a single BSON element's value.
type Rule func(bsoncore.Element) Result

// FieldRule parses one named field out of a document; it is the unit
// combined by Doc. key is empty for the RejectOthers sentinel, which Doc
// recognizes via the rejectOthers flag rather than by calling apply.
type FieldRule struct {
	key          string
	apply        func(bsoncore.Document) Result
	rejectOthers bool
}

// MustRule turns a plain Rule's Reject outcome into Error, per spec.md
// §4.G "must(R): turns reject into error".
func MustRule(rule Rule) Rule {
	return func(elem bsoncore.Element) Result {
		r := rule(elem)
		if r.State == Reject {
			return Errored(r.Message)
		}
		return r
	}
}

// Must turns a FieldRule's Reject outcome into Error, per spec.md §4.G
// "must(R): turns reject into error".
func Must(rule FieldRule) FieldRule {
	return FieldRule{
		key: rule.key,
		apply: func(doc bsoncore.Document) Result {
			r := rule.apply(doc)
			if r.State == Reject {
				return Errored(r.Message)
			}
			return r
		},
	}
}

// Field builds a FieldRule that looks up key in a document and applies
// rule to its value element; the field is optional -- if key is absent,
// Field rejects (not errors) so that Doc can treat it as "not present".
func Field(key string, rule Rule) FieldRule {
	return FieldRule{
		key: key,
		apply: func(doc bsoncore.Document) Result {
			it := doc.Iterator()
			for it.Next() {
				if it.Element().Key() != key {
					continue
				}
				sub := rule(it.Element())
				return prefixField(key, sub)
			}
			if err := it.Err(); err != nil {
				return Errored(err.Error())
			}
			return Rejectedf("element %q not found", key)
		},
	}
}

func prefixField(key string, sub Result) Result {
	if sub.State == Accept {
		return sub
	}
	return Result{State: sub.State, Message: fmt.Sprintf("in field %q: %s", key, sub.Message)}
}

// Require builds a FieldRule equivalent to Must(Field(key, rule)): the
// field must be present and must parse, or the whole document errors.
func Require(key string, rule Rule) FieldRule {
	return Must(Field(key, rule))
}

// Optional wraps a FieldRule so that a missing field (Reject) is
// treated as Accept instead, matching spec.md §4.G's "a field absent
// from the document is not itself a parse failure" rule for
// non-required fields; a malformed-but-present field still Errors.
func Optional(rule FieldRule) FieldRule {
	return FieldRule{
		key: rule.key,
		apply: func(doc bsoncore.Document) Result {
			r := rule.apply(doc)
			if r.State == Reject {
				return Accepted()
			}
			return r
		},
	}
}

// RejectOthers is a sentinel FieldRule recognized by Doc: any element not
// claimed by one of the doc's other field rules causes the whole
// document to reject, per spec.md §4.G.
var RejectOthers = FieldRule{rejectOthers: true}

// Doc builds a document-level rule from field rules, per spec.md §4.G:
// each rule is checked against its named field; a rule that rejects
// (such as a plain Field whose key is absent) is not a failure; if any
// claimed field errors, Doc errors; a RejectOthers rule present among
// rules causes any
// element whose key is not named by one of the doc's other field rules
// to reject the whole document.
func Doc(rules ...FieldRule) func(bsoncore.Document) Result {
	hasRejectOthers := false
	var claimRules []FieldRule
	for _, r := range rules {
		if r.rejectOthers {
			hasRejectOthers = true
			continue
		}
		claimRules = append(claimRules, r)
	}

	return func(doc bsoncore.Document) Result {
		if hasRejectOthers {
			known := make(map[string]bool, len(claimRules))
			for _, r := range claimRules {
				known[r.key] = true
			}
			it := doc.Iterator()
			for it.Next() {
				key := it.Element().Key()
				if !known[key] {
					return Rejectedf("unexpected element %q", key)
				}
			}
			if err := it.Err(); err != nil {
				return Errored(err.Error())
			}
		}

		var failures []string
		sawError := false
		for _, r := range claimRules {
			res := r.apply(doc)
			switch res.State {
			case Accept:
				// nothing to report
			case Error:
				sawError = true
				failures = append(failures, res.Message)
			case Reject:
				// a non-required field that did not match is not a failure
			}
		}
		if len(failures) == 0 {
			return Accepted()
		}
		state := Reject
		if sawError {
			state = Error
		}
		return Result{State: state, Message: "errors: [" + strings.Join(failures, ", ") + "]"}
	}
}

// Type converts an element's value to T and, on success, applies rule
// to the converted value; conversion failure rejects.
func Type[T any](rule func(T) Result) Rule {
	return func(elem bsoncore.Element) Result {
		v, ok := convertValue[T](elem.Value())
		if !ok {
			return Rejectedf("element has incorrect type")
		}
		return rule(v)
	}
}

func convertValue[T any](v bsoncore.Value) (T, bool) {
	var zero T
	switch any(zero).(type) {
	case int32:
		i, ok := v.Int32OK()
		return any(i).(T), ok
	case int64:
		i, ok := v.Int64OK()
		return any(i).(T), ok
	case float64:
		f, ok := v.DoubleOK()
		return any(f).(T), ok
	case string:
		s, ok := v.StringValueOK()
		return any(s).(T), ok
	case bool:
		b, ok := v.BooleanOK()
		return any(b).(T), ok
	case bsoncore.Document:
		d, ok := v.DocumentOK()
		return any(d).(T), ok
	case bsoncore.Array:
		a, ok := v.ArrayOK()
		return any(a).(T), ok
	case bsoncore.Value:
		return any(v).(T), true
	default:
		return zero, false
	}
}

// Int64ish converts any numeric element (int32, int64, or double) to an
// int64 before applying rule, matching the original's parse::integral.
func Int64ish(rule func(int64) Result) Rule {
	return func(elem bsoncore.Element) Result {
		v := elem.Value()
		if !v.IsNumber() {
			return Rejected("element does not have a numeric type")
		}
		var i int64
		switch v.Type {
		case bsoncore.TypeInt32:
			i = int64(v.Int32())
		case bsoncore.TypeInt64:
			i = v.Int64()
		case bsoncore.TypeDouble:
			i = int64(v.Double())
		default:
			return Rejectedf("element has numeric type %s, not int32, int64 or double", v.Type)
		}
		return rule(i)
	}
}

// Each applies rule to every element of a document/array, rejecting the
// whole thing with the offending key on the first rejection.
func Each(rule Rule) func(bsoncore.Document) Result {
	return func(doc bsoncore.Document) Result {
		it := doc.Iterator()
		for it.Next() {
			res := rule(it.Element())
			if res.State != Accept {
				return Result{State: res.State, Message: fmt.Sprintf("field %q was rejected: %s", it.Element().Key(), res.Message)}
			}
		}
		if err := it.Err(); err != nil {
			return Errored(err.Error())
		}
		return Accepted()
	}
}

// Any short-circuits on the first rule that does not reject (accepts or
// errors), matching spec.md §4.G "any(Rs…): short-circuit disjunction".
func Any(rules ...Rule) Rule {
	return func(elem bsoncore.Element) Result {
		var messages []string
		for _, r := range rules {
			res := r(elem)
			if res.State != Reject {
				return res
			}
			messages = append(messages, res.Message)
		}
		return Rejected("errors: [" + strings.Join(messages, ", ") + "]")
	}
}

// All requires every rule to accept, short-circuiting on the first
// non-accept, matching spec.md §4.G "all(Rs…): short-circuit
// conjunction".
func All(rules ...Rule) Rule {
	return func(elem bsoncore.Element) Result {
		for _, r := range rules {
			res := r(elem)
			if res.State != Accept {
				return res
			}
		}
		return Accepted()
	}
}

// Store is a leaf rule that assigns the converted value to dest and
// accepts.
func Store[T any](dest *T) Rule {
	return Type(func(v T) Result {
		*dest = v
		return Accepted()
	})
}

// Action is a leaf rule that invokes fn for its side effect and accepts,
// unless fn itself returns a non-nil error, in which case Action errors.
func Action(fn func(bsoncore.Element) error) Rule {
	return func(elem bsoncore.Element) Result {
		if err := fn(elem); err != nil {
			return Errored(err.Error())
		}
		return Accepted()
	}
}

// Describe renders the result of a top-level parse as a human-readable
// diagnostic string, or "" if res accepted.
func Describe(res Result) string {
	if res.State == Accept {
		return ""
	}
	return res.Message
}

// MustParse applies rule to doc and returns an error describing the
// failure if rule does not accept, matching the original's
// must_parse(value, rule).
func MustParse(doc bsoncore.Document, rule func(bsoncore.Document) Result) error {
	res := rule(doc)
	if res.State == Accept {
		return nil
	}
	return fmt.Errorf("bson/parse: %s", res.Message)
}
