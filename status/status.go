// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package status defines the uniform (category, code) error pair used
// throughout amongo's async core in place of ad-hoc error values. Every
// async completion carries a Status; a Status satisfies the error
// interface so it composes with ordinary Go error handling at package
// boundaries.
package status

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Category names a family of status codes and supplies the predicates
// used to classify a code within that family. A nil predicate is treated
// as "never matches" except that Category itself still reports an error
// for any non-zero code (see Status.IsError).
type Category struct {
	name string

	// message renders a human-readable description for a code within
	// this category.
	message func(code int) string

	// isCancellation reports whether code denotes a cooperative
	// cancellation within this category.
	isCancellation func(code int) bool

	// isTimeout reports whether code denotes a deadline/timeout
	// condition within this category.
	isTimeout func(code int) bool
}

// Name returns the category's display name.
func (c *Category) Name() string {
	if c == nil {
		return "<nil>"
	}
	return c.name
}

// NewCategory constructs a Category. message is required; the predicates
// may be nil, in which case the corresponding Is* query always reports
// false for codes in this category.
func NewCategory(name string, message func(int) string, isCancellation, isTimeout func(int) bool) *Category {
	return &Category{name: name, message: message, isCancellation: isCancellation, isTimeout: isTimeout}
}

var (
	// Generic mirrors POSIX errno-equivalent codes. Code 0 is "okay".
	Generic = NewCategory("generic", genericMessage, genericIsCancellation, genericIsTimeout)
	// System mirrors platform-specific (errno/Win32) codes. On the
	// platforms Go targets, these classify identically to Generic.
	System = NewCategory("system", genericMessage, genericIsCancellation, genericIsTimeout)
	// Netdb classifies DNS resolution failures.
	Netdb = NewCategory("amongo.netdb", func(code int) string { return fmt.Sprintf("netdb:%d", code) }, nil, nil)
	// TLS wraps an opaque code from the TLS backend.
	TLS = NewCategory("amongo.tls", func(code int) string { return fmt.Sprintf("tls:%d", code) }, nil, nil)
	// Server carries a MongoDB server's numeric `code` field; Message is
	// overridden per-Status with the server's `errmsg`, see FromServer.
	Server = NewCategory("amongo.server", func(code int) string { return fmt.Sprintf("server:%d", code) }, nil, nil)
	// CRUD is reserved for the thin CRUD command builders layered above
	// this core; the core never constructs a CRUD-category Status itself.
	CRUD = NewCategory("amongo.crud", func(code int) string { return fmt.Sprintf("crud:%d", code) }, nil, nil)
	// Unknown is the fallback category for foreign error codes that
	// cannot be classified into any of the above.
	Unknown = NewCategory("amongo.unknown", func(code int) string { return fmt.Sprintf("amongo.unknown:%d", code) }, nil, nil)
)

// Well-known Generic codes, chosen to match their POSIX errno values so
// that genericIsCancellation/genericIsTimeout can be expressed as simple
// comparisons, matching the original library's reliance on ECANCELED and
// ETIMEDOUT/ETIME.
const (
	ECANCELED = 125
	ETIMEDOUT = 110
	ETIME     = 62
)

func genericMessage(code int) string {
	switch code {
	case 0:
		return "success"
	case ECANCELED:
		return "operation canceled"
	case ETIMEDOUT:
		return "connection timed out"
	case ETIME:
		return "timer expired"
	default:
		return fmt.Sprintf("errno %d", code)
	}
}

func genericIsCancellation(code int) bool { return code == ECANCELED }
func genericIsTimeout(code int) bool      { return code == ETIMEDOUT || code == ETIME }

// Status is a (category, code) pair. The zero value has no category and
// code 0; like Okay, it is not an error.
type Status struct {
	category *Category
	code     int
	// message overrides the category's default rendering, used for
	// Server statuses where the server supplies its own errmsg.
	message string
}

// Okay is the success Status: generic category, code 0.
var Okay = Status{category: Generic}

// New constructs a Status from a category and code.
func New(cat *Category, code int) Status {
	if cat == nil {
		cat = Unknown
	}
	return Status{category: cat, code: code}
}

// FromServer builds a Server-category Status using the server's own code
// and errmsg fields, matching spec.md's rule that server errors carry
// their message verbatim rather than through the category's formatter.
func FromServer(code int, errmsg string) Status {
	return Status{category: Server, code: code, message: errmsg}
}

// Category returns the status's category.
func (s Status) Category() *Category { return s.category }

// Code returns the status's numeric code.
func (s Status) Code() int { return s.code }

// IsError reports whether s denotes an error condition, which is
// whenever its code is non-zero. The category is not consulted:
// Category has no error-classification predicate, so no category can
// mark a non-zero code as success or a zero code as an error.
func (s Status) IsError() bool {
	return s.code != 0
}

// IsCancellation reports whether s denotes a cooperative cancellation.
func (s Status) IsCancellation() bool {
	if s.category == nil || s.category.isCancellation == nil {
		return false
	}
	return s.category.isCancellation(s.code)
}

// IsTimeout reports whether s denotes a timeout/deadline condition.
func (s Status) IsTimeout() bool {
	if s.category == nil || s.category.isTimeout == nil {
		return false
	}
	return s.category.isTimeout(s.code)
}

// Message renders a human-readable description of the status.
func (s Status) Message() string {
	if s.message != "" {
		return s.message
	}
	if s.category == nil || s.category.message == nil {
		return fmt.Sprintf("code %d", s.code)
	}
	return s.category.message(s.code)
}

// Error implements the error interface so a Status can be returned
// anywhere a Go error is expected. Okay.Error() still returns a string;
// callers that need the "is this actually an error" distinction should
// use IsError, not a nil check.
func (s Status) Error() string {
	if s.category == nil {
		return s.Message()
	}
	return fmt.Sprintf("%s: %s", s.category.Name(), s.Message())
}

// Cancelled is a convenience Status for a generic cancellation.
func Cancelled() Status { return New(Generic, ECANCELED) }

// TimedOut is a convenience Status for a generic timeout.
func TimedOut() Status { return New(Generic, ETIMEDOUT) }

// FromError classifies an ordinary Go error into a Status, mirroring
// amongoc's status::from(std::error_code) in the original C++ source:
// context errors map to cancellation/timeout within Generic, net.Error
// timeouts map to Generic/ETIMEDOUT, DNS errors map to Netdb, and
// anything else falls back to Unknown with a synthetic code.
func FromError(err error) Status {
	if err == nil {
		return Okay
	}
	switch {
	case errors.Is(err, context.Canceled):
		return New(Generic, ECANCELED)
	case errors.Is(err, context.DeadlineExceeded):
		return New(Generic, ETIMEDOUT)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return New(Netdb, int(ETIMEDOUT))
		}
		return Status{category: Netdb, code: 1, message: dnsErr.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return New(Generic, ETIMEDOUT)
	}

	return Status{category: Unknown, code: 1, message: err.Error()}
}
