// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package async implements the emitter/handler/operation composition
// kernel of spec.md §4.H, grounded on the original's
// include/amongoc/{emitter,handler,operation}.hpp. An Emitter is a lazy
// producer of a (Status, Box) pair; a Handler consumes exactly one such
// pair; connecting the two yields an Operation that must be started
// exactly once.
package async

import (
	"time"

	"github.com/amongo/amongo/box"
	"github.com/amongo/amongo/status"
)

// Handler consumes a single asynchronous completion.
type Handler interface {
	Complete(s status.Status, v box.Box)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(status.Status, box.Box)

// Complete implements Handler.
func (f HandlerFunc) Complete(s status.Status, v box.Box) { f(s, v) }

// StopRegistrar is implemented by handlers that support cooperative
// cancellation: registering cb returns a cookie whose destruction (via
// box.Destroy) unregisters the callback, matching spec.md §4.H's
// "Cancellation model".
type StopRegistrar interface {
	RegisterStop(cb func()) box.Box
}

// RegisterStop registers cb with h's stop token if h supports it,
// returning a no-op cookie otherwise.
func RegisterStop(h Handler, cb func()) box.Box {
	if r, ok := h.(StopRegistrar); ok {
		return r.RegisterStop(cb)
	}
	return box.Nil()
}

// Operation is a connected, one-shot-startable asynchronous computation.
type Operation interface {
	// Start begins the operation. Calling Start more than once, or never
	// calling it, is a caller error.
	Start()
}

// OperationFunc adapts a plain function to Operation.
type OperationFunc func()

// Start implements Operation.
func (f OperationFunc) Start() { f() }

// Emitter is a lazy asynchronous producer of (Status, Box), per
// spec.md §4.H.
type Emitter interface {
	Connect(Handler) Operation
}

// connector turns a Go function into an Emitter, mirroring the
// original's unique_emitter::from_connector.
type connector struct {
	fn func(Handler) Operation
}

func (c connector) Connect(h Handler) Operation { return c.fn(h) }

// FromConnector builds an Emitter from a connect function.
func FromConnector(fn func(Handler) Operation) Emitter {
	return connector{fn}
}

// Scheduler schedules callbacks to run, either immediately on the next
// loop tick or after a delay. package loop's Loop type satisfies this
// interface structurally; async does not import loop to avoid a cycle
// (loop's I/O operations return Emitters).
type Scheduler interface {
	Schedule(func())
	ScheduleLater(d time.Duration, fn func()) (cancel func())
}

// Just returns an Emitter that completes with (s, v) on the scheduler's
// next tick, per spec.md §4.H.
func Just(sched Scheduler, s status.Status, v box.Box) Emitter {
	return FromConnector(func(h Handler) Operation {
		return OperationFunc(func() {
			sched.Schedule(func() { h.Complete(s, v) })
		})
	})
}

// ThenFlags modifies Then/Let's handling of upstream errors.
type ThenFlags int

const (
	// ForwardErrors causes Then/Let to skip invoking their function and
	// forward an error status downstream unchanged.
	ForwardErrors ThenFlags = 1 << iota
)

// Then completes downstream with (s, fn(&s, v)) once em completes with
// (s, v). With ForwardErrors set, an error status bypasses fn and is
// forwarded unchanged, per spec.md §4.H.
func Then(em Emitter, flags ThenFlags, fn func(*status.Status, box.Box) box.Box) Emitter {
	return FromConnector(func(h Handler) Operation {
		inner := em.Connect(HandlerFunc(func(s status.Status, v box.Box) {
			if flags&ForwardErrors != 0 && s.IsError() {
				h.Complete(s, v)
				return
			}
			v2 := fn(&s, v)
			h.Complete(s, v2)
		}))
		return OperationFunc(inner.Start)
	})
}

// Let completes downstream by splicing in the Emitter that fn produces
// from em's result, per spec.md §4.H. With ForwardErrors set, an error
// status completes downstream directly without invoking fn.
func Let(em Emitter, flags ThenFlags, fn func(status.Status, box.Box) Emitter) Emitter {
	return FromConnector(func(h Handler) Operation {
		var nextOp Operation
		inner := em.Connect(HandlerFunc(func(s status.Status, v box.Box) {
			if flags&ForwardErrors != 0 && s.IsError() {
				h.Complete(s, v)
				return
			}
			next := fn(s, v)
			nextOp = next.Connect(h)
			nextOp.Start()
		}))
		return OperationFunc(inner.Start)
	})
}

// timeoutHandler wraps a downstream Handler so that only the first of
// the racing completions (the real emitter or the timer) is delivered.
// It also implements StopRegistrar so that em's own stop registration
// (made via async.RegisterStop(wrapped, cb) inside em's Connect) is
// retained rather than silently no-op'd; Timeout invokes it to ask em
// to wind down whenever the timer wins the race.
type timeoutHandler struct {
	downstream Handler
	done       *bool
	cancelFn   **func()
	stopCB     *func()
}

func (h timeoutHandler) Complete(s status.Status, v box.Box) {
	if *h.done {
		return
	}
	*h.done = true
	if cancel := *h.cancelFn; cancel != nil {
		(*cancel)()
	}
	h.downstream.Complete(s, v)
}

// RegisterStop implements StopRegistrar, storing em's stop callback so
// Timeout can invoke it if the timer fires first. The returned cookie
// clears the stored callback on Destroy, matching StopRegistrar's
// unregister contract.
func (h timeoutHandler) RegisterStop(cb func()) box.Box {
	*h.stopCB = cb
	return box.New(h.stopCB, func(p *func()) { *p = nil })
}

// Timeout races em against a loop-scheduled timer of duration d;
// whichever completes first wins and the other is cancelled, per
// spec.md §4.H. The timer's completion carries a timeout-category
// status. If em registered a stop callback (via StopRegistrar), a
// timer win invokes it before completing downstream, asking em to
// reach a quiescent state rather than leaving it to run unobserved.
func Timeout(sched Scheduler, em Emitter, d time.Duration) Emitter {
	return FromConnector(func(h Handler) Operation {
		done := false
		var cancelTimer func()
		cancelPtr := &cancelTimer
		var stopCB func()
		wrapped := timeoutHandler{downstream: h, done: &done, cancelFn: &cancelPtr, stopCB: &stopCB}

		emOp := em.Connect(wrapped)

		return OperationFunc(func() {
			cancelTimer = sched.ScheduleLater(d, func() {
				if !*wrapped.done && stopCB != nil {
					stopCB()
				}
				wrapped.Complete(status.TimedOut(), box.Nil())
			})
			emOp.Start()
		})
	})
}

// Tie connects em to a handler that stores its completion into *s and
// *v, returning the resulting Operation for the caller to Start.
func Tie(em Emitter, s *status.Status, v *box.Box) Operation {
	return em.Connect(HandlerFunc(func(rs status.Status, rv box.Box) {
		*s = rs
		*v = rv
	}))
}

// Detach connects em to a handler that discards its completion,
// destroying the resulting value's box.
func Detach(em Emitter) Operation {
	return em.Connect(HandlerFunc(func(s status.Status, v box.Box) {
		v.Destroy()
	}))
}

// Run starts op. It does not wait for completion: an operation that
// completes later (through a loop or a timer) is still pending when Run
// returns.
func Run(op Operation) {
	op.Start()
}
