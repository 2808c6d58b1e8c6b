// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package loop is the event-loop facade of spec.md §4.I: a cooperative
// scheduler plus timers, DNS resolution, TCP connect, and partial
// socket I/O, all surfaced as async.Emitter-returning operations that
// complete on the loop's own goroutine.
package loop

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/amongo/amongo/async"
	"github.com/amongo/amongo/box"
	"github.com/amongo/amongo/status"
)

// Endpoint is a resolved network destination.
type Endpoint struct {
	Network string // "tcp" unless overridden
	Host    string
	Port    string
}

func (e Endpoint) addr() string {
	if e.Port == "" {
		return e.Host
	}
	return net.JoinHostPort(e.Host, e.Port)
}

// Socket is the minimal byte-stream surface the core needs from a
// connected transport; *net.TCPConn and wire/tlsstream's TLS adapter
// both satisfy it.
type Socket interface {
	io.Reader
	io.Writer
	io.Closer
}

// Loop is the interface the core (async, wire, pool) consumes; package
// async never imports this package (to avoid a cycle) but Loop
// satisfies async.Scheduler structurally via Schedule/ScheduleLater.
type Loop interface {
	// Schedule runs fn on the loop's goroutine on its next tick.
	Schedule(fn func())
	// ScheduleLater runs fn on the loop's goroutine no earlier than
	// now()+d; the returned cancel function prevents fn from running if
	// called before the deadline.
	ScheduleLater(d time.Duration, fn func()) (cancel func())
	// Resolve asynchronously resolves host/service to a set of
	// Endpoints; completes with a box.Box holding []Endpoint.
	Resolve(host, service string) async.Emitter
	// Connect asynchronously dials ep; completes with a box.Box holding
	// a Socket.
	Connect(ep Endpoint) async.Emitter
	// ReadSome performs one partial read into buf; completes with a
	// box.Box holding the int byte count read.
	ReadSome(sock Socket, buf []byte) async.Emitter
	// WriteSome performs one partial write of buf; completes with a
	// box.Box holding the int byte count written.
	WriteSome(sock Socket, buf []byte) async.Emitter
	// Run drains scheduled work (and waits on in-flight background I/O)
	// until none remains.
	Run()
}

// New constructs the standard Loop implementation: a single dispatch
// queue drained by the goroutine that calls Run, with background
// goroutines performing blocking resolve/connect/read/write and
// handing their result back to the queue. concurrentIO bounds how many
// resolve/connect operations may be in flight at once (0 means use a
// reasonable default), matching SPEC_FULL.md's x/sync/semaphore wiring.
func New(concurrentIO int64) Loop {
	if concurrentIO <= 0 {
		concurrentIO = 64
	}
	return &stdLoop{
		queue:   make(chan func(), 256),
		sem:     semaphore.NewWeighted(concurrentIO),
		pending: make(map[*int]struct{}),
	}
}

type stdLoop struct {
	queue chan func()
	sem   *semaphore.Weighted

	mu      sync.Mutex
	pending map[*int]struct{} // live background goroutines not yet drained
}

func (l *stdLoop) trackStart() *int {
	tok := new(int)
	l.mu.Lock()
	l.pending[tok] = struct{}{}
	l.mu.Unlock()
	return tok
}

func (l *stdLoop) trackDone(tok *int) {
	l.mu.Lock()
	delete(l.pending, tok)
	l.mu.Unlock()
}

func (l *stdLoop) hasPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) > 0
}

func (l *stdLoop) Schedule(fn func()) {
	l.queue <- fn
}

func (l *stdLoop) ScheduleLater(d time.Duration, fn func()) func() {
	tok := l.trackStart()
	var fired bool
	var mu sync.Mutex
	timer := time.AfterFunc(d, func() {
		mu.Lock()
		fired = true
		mu.Unlock()
		l.Schedule(fn)
		l.trackDone(tok)
	})
	return func() {
		mu.Lock()
		already := fired
		mu.Unlock()
		if !already && timer.Stop() {
			l.trackDone(tok)
		}
	}
}

func (l *stdLoop) Resolve(host, service string) async.Emitter {
	return async.FromConnector(func(h async.Handler) async.Operation {
		return async.OperationFunc(func() {
			tok := l.trackStart()
			go func() {
				defer l.trackDone(tok)
				ctx := context.Background()
				if err := l.sem.Acquire(ctx, 1); err != nil {
					l.Schedule(func() { h.Complete(status.FromError(err), box.Nil()) })
					return
				}
				defer l.sem.Release(1)

				port := service
				addrs, err := net.DefaultResolver.LookupHost(ctx, host)
				l.Schedule(func() {
					if err != nil {
						h.Complete(status.FromError(err), box.Nil())
						return
					}
					eps := make([]Endpoint, 0, len(addrs))
					for _, a := range addrs {
						eps = append(eps, Endpoint{Network: "tcp", Host: a, Port: port})
					}
					h.Complete(status.Okay, box.New(eps, nil))
				})
			}()
		})
	})
}

func (l *stdLoop) Connect(ep Endpoint) async.Emitter {
	return async.FromConnector(func(h async.Handler) async.Operation {
		return async.OperationFunc(func() {
			tok := l.trackStart()
			go func() {
				defer l.trackDone(tok)
				ctx := context.Background()
				if err := l.sem.Acquire(ctx, 1); err != nil {
					l.Schedule(func() { h.Complete(status.FromError(err), box.Nil()) })
					return
				}
				defer l.sem.Release(1)

				network := ep.Network
				if network == "" {
					network = "tcp"
				}
				conn, err := (&net.Dialer{}).DialContext(ctx, network, ep.addr())
				l.Schedule(func() {
					if err != nil {
						h.Complete(status.FromError(err), box.Nil())
						return
					}
					h.Complete(status.Okay, box.New[Socket](conn, nil))
				})
			}()
		})
	})
}

func (l *stdLoop) ReadSome(sock Socket, buf []byte) async.Emitter {
	return async.FromConnector(func(h async.Handler) async.Operation {
		return async.OperationFunc(func() {
			tok := l.trackStart()
			go func() {
				defer l.trackDone(tok)
				n, err := sock.Read(buf)
				l.Schedule(func() {
					if err != nil && n == 0 {
						h.Complete(status.FromError(err), box.New(n, nil))
						return
					}
					h.Complete(status.Okay, box.New(n, nil))
				})
			}()
		})
	})
}

func (l *stdLoop) WriteSome(sock Socket, buf []byte) async.Emitter {
	return async.FromConnector(func(h async.Handler) async.Operation {
		return async.OperationFunc(func() {
			tok := l.trackStart()
			go func() {
				defer l.trackDone(tok)
				n, err := sock.Write(buf)
				l.Schedule(func() {
					if err != nil && n == 0 {
						h.Complete(status.FromError(err), box.New(n, nil))
						return
					}
					h.Complete(status.Okay, box.New(n, nil))
				})
			}()
		})
	})
}

// Run drains the dispatch queue until it is empty and no background
// goroutine has outstanding work queued to re-enter it, matching
// spec.md §4.I's "run(): drain until no work remains".
func (l *stdLoop) Run() {
	idle := time.NewTicker(time.Millisecond)
	defer idle.Stop()
	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-idle.C:
			if len(l.queue) == 0 && !l.hasPending() {
				return
			}
		}
	}
}
