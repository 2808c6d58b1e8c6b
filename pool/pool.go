// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package pool implements the connection pool of spec.md §4.M: an idle
// list protected by a mutex (a slice of *Member, not an intrusive linked
// list), lazy checkout (only dial+handshake when the idle list is
// empty), a generation counter for
// bulk invalidation, and error-driven perish-on-request-failure. It is
// grounded on the teacher's core/connection.go Connection/Dialer/
// Handshaker interfaces and idle/lifetime-deadline conventions,
// generalized from a single-connection abstraction to a pooled one.
package pool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amongo/amongo/async"
	"github.com/amongo/amongo/box"
	"github.com/amongo/amongo/bson/bsoncore"
	"github.com/amongo/amongo/handshake"
	"github.com/amongo/amongo/internal/log"
	"github.com/amongo/amongo/loop"
	"github.com/amongo/amongo/status"
	"github.com/amongo/amongo/wire"
	"github.com/amongo/amongo/wire/tlsstream"
)

// Generation is a pool-wide invalidation epoch; members stamped with a
// stale generation are never returned to the idle list, per spec.md
// §4.M and its "Invalidate" operation in the glossary.
type Generation uint64

// Params configures how the pool dials and authenticates new members,
// per spec.md §6's "URI options consumed by the pool" list: host set,
// port, optional application name, optional TLS toggle.
type Params struct {
	Hosts      []string
	Port       string
	AppName    string
	TLS        *tlsstream.Config
	Credential *handshake.Credential
	Compressor wire.Compressor // nil disables OP_COMPRESSED for this pool

	// MaxIdleTime bounds how long a Member may sit in the idle list
	// before the background sweep perishes and drops it. Zero disables
	// the sweep entirely.
	MaxIdleTime time.Duration

	// Logger receives command and connection lifecycle events, if set.
	// A nil Logger disables logging entirely rather than falling back
	// to a default sink, matching the teacher's opt-in logging.
	Logger *log.Logger
}

// Member is one pooled connection: a wire-capable byte stream plus its
// cached handshake response, per spec.md §4.M's Member record. A
// Member drops back into the pool when Return is called unless it has
// been perished first.
type Member struct {
	id         uint64
	generation Generation
	sock       loop.Socket
	hello      handshake.Result
	compressor wire.Compressor // nil unless negotiated with the server in hello
	pool       *Pool

	mu        sync.Mutex
	perished  bool
	idleSince time.Time // zero while checked out
}

// ID returns the member's pool-assigned identity, stable across
// checkout/return cycles for the same underlying connection.
func (m *Member) ID() uint64 { return m.id }

// Hello returns the cached handshake response gathered when this
// member was first connected.
func (m *Member) Hello() handshake.Result { return m.hello }

// Send writes cmd as an OP_MSG and synchronously awaits its reply by
// draining the pool's loop, matching spec.md's "Request wrapper on a
// Member" -- issuing a command and observing its outcome is the
// granularity at which perish decisions are made. Calling Send
// concurrently with another in-flight Send on the same Member is a
// caller error (at most one request is ever in flight per Member in
// this core).
func (m *Member) Send(cmd bsoncore.Document) (bsoncore.Document, error) {
	logger := m.pool.params.Logger
	start := time.Now()
	commandName := firstElementKey(cmd)
	if logger != nil {
		logger.Print(log.LevelDebug, &log.CommandMessage{
			DatabaseName: m.connID(), CommandName: commandName, ServerAddr: m.connID(),
		})
	}

	reply, err := sendSync(m.pool.loop, m.sock, m.connID(), m.compressor, cmd)
	if err != nil {
		m.Perish()
		if logger != nil {
			logger.Print(log.LevelDebug, &log.CommandMessage{
				CommandName: commandName, ServerAddr: m.connID(), Failure: err.Error(),
				DurationMS: time.Since(start).Milliseconds(),
			})
		}
		return nil, err
	}
	if serr := wire.CheckServerError(wire.Message{Sections: []bsoncore.Document{reply}}); serr != nil {
		m.Perish()
		if logger != nil {
			logger.Print(log.LevelDebug, &log.CommandMessage{
				CommandName: commandName, ServerAddr: m.connID(), Failure: serr.Error(),
				DurationMS: time.Since(start).Milliseconds(),
			})
		}
		return nil, serr
	}
	if logger != nil {
		logger.Print(log.LevelDebug, &log.CommandMessage{
			CommandName: commandName, ServerAddr: m.connID(),
			DurationMS: time.Since(start).Milliseconds(),
		})
	}
	return reply, nil
}

// firstElementKey returns the key of cmd's first element -- by BSON
// command convention, the command's name -- or "" if cmd is empty or
// malformed.
func firstElementKey(cmd bsoncore.Document) string {
	elems, err := cmd.Elements()
	if err != nil || len(elems) == 0 {
		return ""
	}
	return elems[0].Key()
}

func (m *Member) connID() string { return fmt.Sprintf("member[%d]", m.id) }

// Perish marks m as no longer returnable to the pool, per spec.md
// §4.M: "if the underlying request raises an exception, perish the
// Member before rethrowing so it is not re-inserted."
func (m *Member) Perish() {
	m.mu.Lock()
	m.perished = true
	m.mu.Unlock()
}

// Perished reports whether m has been marked perished.
func (m *Member) Perished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perished
}

// Return drops m back into its pool's idle list unless it has been
// perished or its generation has been invalidated.
func (m *Member) Return() {
	m.pool.release(m)
}

// Pool is a per-client-wide connection pool over one or more hosts.
type Pool struct {
	loop   loop.Loop
	params Params

	mu         sync.Mutex
	idle       []*Member
	nextID     uint64
	generation Generation
	hostCursor uint64 // round-robin index into params.Hosts

	sweepCancel context.CancelFunc
	sweepGroup  *errgroup.Group
}

// New constructs a Pool that dials through l using params. When
// params.MaxIdleTime is non-zero, New also starts a background
// goroutine, supervised by an errgroup.Group, that periodically
// perishes and drops idle members that have sat unused past
// MaxIdleTime; Close stops it.
func New(l loop.Loop, params Params) *Pool {
	p := &Pool{loop: l, params: params}
	if params.Logger != nil {
		params.Logger.Print(log.LevelInfo, &log.PoolMessage{Reason: "Connection pool created"})
	}
	if params.MaxIdleTime > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		group, gctx := errgroup.WithContext(ctx)
		p.sweepCancel = cancel
		p.sweepGroup = group
		group.Go(func() error {
			p.runSweep(gctx)
			return nil
		})
	}
	return p
}

// Close stops the background idle sweep, if one is running, and waits
// for it to exit.
func (p *Pool) Close() {
	if p.params.Logger != nil {
		p.params.Logger.Print(log.LevelInfo, &log.PoolMessage{Reason: "Connection pool closed"})
	}
	if p.sweepCancel == nil {
		return
	}
	p.sweepCancel()
	_ = p.sweepGroup.Wait()
}

func (p *Pool) runSweep(ctx context.Context) {
	interval := p.params.MaxIdleTime / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepIdle(time.Now())
		}
	}
}

// sweepIdle drops idle members that have been sitting past
// params.MaxIdleTime as of now, closing their sockets. Grounded on
// spec.md §4.M's Member lifecycle, extended per SPEC_FULL.md's
// errgroup-supervised sweep.
func (p *Pool) sweepIdle(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.idle[:0]
	for _, m := range p.idle {
		if now.Sub(m.idleSince) >= p.params.MaxIdleTime {
			m.Perish()
			_ = m.sock.Close()
			if p.params.Logger != nil {
				p.params.Logger.Print(log.LevelInfo, &log.ConnectionMessage{
					ConnectionID: m.connID(), Reason: "Connection closed: idle",
				})
			}
			continue
		}
		kept = append(kept, m)
	}
	p.idle = kept
}

// Invalidate bumps the pool's generation, causing every member
// currently checked out to be dropped (not reinserted) on its next
// Return, and clears the idle list. Grounded on spec.md's glossary
// entry for "Invalidate": "mark a generation as invalid; members
// tagged with a stale generation are dropped rather than reused."
func (p *Pool) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.idle = nil
}

// Checkout returns an Emitter that completes with a box.Box holding a
// *Member: immediately, from the idle list, if one is available (step
// 1 of spec.md §4.M's checkout algorithm), or else by resolving a
// host, connecting, optionally wrapping in TLS, and performing a hello
// (+ SCRAM, if configured) handshake (step 2).
func (p *Pool) Checkout() async.Emitter {
	return async.FromConnector(func(h async.Handler) async.Operation {
		return async.OperationFunc(func() {
			if m := p.popIdle(); m != nil {
				h.Complete(status.Okay, box.New(m, nil))
				return
			}
			p.connectNewMember(h)
		})
	})
}

func (p *Pool) popIdle() *Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	m := p.idle[n-1]
	p.idle = p.idle[:n-1]
	m.mu.Lock()
	m.idleSince = time.Time{}
	m.mu.Unlock()
	return m
}

func (p *Pool) release(m *Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.Perished() || m.generation != p.generation {
		return
	}
	m.mu.Lock()
	m.idleSince = time.Now()
	m.mu.Unlock()
	p.idle = append(p.idle, m)
}

func (p *Pool) nextHost() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	host := p.params.Hosts[p.hostCursor%uint64(len(p.params.Hosts))]
	p.hostCursor++
	return host
}

func (p *Pool) connectNewMember(h async.Handler) {
	host := p.nextHost()
	connectEm := p.loop.Connect(loop.Endpoint{Host: host, Port: p.params.Port})
	op := connectEm.Connect(async.HandlerFunc(func(s status.Status, v box.Box) {
		if s.IsError() {
			h.Complete(s, box.Nil())
			return
		}
		p.finishConnect(h, host, v)
	}))
	op.Start()
}

// finishConnect completes the checkout started by connectNewMember:
// connBox holds the freshly dialed Socket (and, underneath, a
// net.Conn, since loop.Connect only ever produces one) for host, the
// same round-robin-selected host connectNewMember dialed. It
// optionally wraps the connection in TLS (deriving the SNI/verification
// name from host, not always Hosts[0]), performs the hello (+ SCRAM)
// handshake, and completes h with the resulting Member.
func (p *Pool) finishConnect(h async.Handler, host string, connBox box.Box) {
	connID := fmt.Sprintf("%s:%s", host, p.params.Port)

	sock := box.Cast[loop.Socket](connBox)
	if p.params.TLS != nil {
		nc := box.Cast[net.Conn](connBox)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		tlsConn, err := tlsstream.Handshake(ctx, nc, connID, p.params.TLS)
		cancel()
		if err != nil {
			h.Complete(wire.StatusFromError(err), box.Nil())
			return
		}
		sock = tlsConn
	}

	hello := handshake.BuildHello(p.params.AppName, compressorNames(p.params.Compressor), "")
	reply, err := sendSync(p.loop, sock, connID, nil, hello)
	if err != nil {
		h.Complete(wire.StatusFromError(err), box.Nil())
		return
	}
	helloRes, err := handshake.ParseHello(reply)
	if err != nil {
		h.Complete(wire.StatusFromError(err), box.Nil())
		return
	}

	// The hello reply's own Compression list is what the server actually
	// agreed to support; only use it once both sides agree, per spec.md
	// §4.J's OP_MSG compression negotiation.
	compressor := negotiatedCompressor(p.params.Compressor, helloRes.Compression)

	if p.params.Credential != nil {
		sender := handshake.Sender(func(cmd bsoncore.Document) (bsoncore.Document, error) {
			return sendSync(p.loop, sock, connID, compressor, cmd)
		})
		if err := handshake.ScramConversation(sender, *p.params.Credential); err != nil {
			h.Complete(wire.StatusFromError(err), box.Nil())
			return
		}
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	gen := p.generation
	p.mu.Unlock()

	m := &Member{id: id, generation: gen, sock: sock, hello: helloRes, compressor: compressor, pool: p}
	if p.params.Logger != nil {
		p.params.Logger.Print(log.LevelInfo, &log.ConnectionMessage{
			ServerAddr: connID, ConnectionID: m.connID(), Reason: "Connection created",
		})
	}
	h.Complete(status.Okay, box.New(m, nil))
}

func compressorNames(c wire.Compressor) []string {
	if c == nil {
		return nil
	}
	return []string{c.Name()}
}

// negotiatedCompressor returns want if the server's hello reply
// advertised want's name in its Compression list, or nil if want is
// nil or the server didn't advertise it -- a Member only compresses
// outgoing messages once both sides have agreed on a codec, per
// spec.md §4.J's OP_MSG compression negotiation.
func negotiatedCompressor(want wire.Compressor, advertised []string) wire.Compressor {
	if want == nil {
		return nil
	}
	for _, name := range advertised {
		if name == want.Name() {
			return want
		}
	}
	return nil
}

// sendSync writes cmd as an OP_MSG (compressed with compressor, if
// non-nil) and blocks (by draining l) until its reply arrives,
// bridging handshake's synchronous Sender shape onto the async
// read/write primitives of package wire. This is safe to call
// reentrantly from within an already-running l.Run() because
// stdLoop.Run has no single-flight guard: the nested Run drains the
// shared dispatch queue until no queued or in-flight loop work remains
// (this request's own completion included), then returns control to
// whichever Run invoked it.
func sendSync(l loop.Loop, sock loop.Socket, connID string, compressor wire.Compressor, cmd bsoncore.Document) (bsoncore.Document, error) {
	msg := wire.Message{RequestID: wire.NextRequestID(), Sections: []bsoncore.Document{cmd}}
	raw := wire.Encode(msg)
	if compressor != nil {
		compressed, err := wire.CompressMessage(raw, compressor)
		if err != nil {
			return nil, err
		}
		raw = compressed
	}

	var wStatus status.Status
	var wBox box.Box
	async.Tie(wire.WriteFullMessage(l, sock, connID, raw), &wStatus, &wBox).Start()
	l.Run()
	if wStatus.IsError() {
		return nil, wStatus
	}

	var rStatus status.Status
	var rBox box.Box
	async.Tie(wire.ReadFullMessage(l, sock, connID), &rStatus, &rBox).Start()
	l.Run()
	if rStatus.IsError() {
		return nil, rStatus
	}

	rawReply, err := wire.DecompressMessage(box.Cast[[]byte](rBox), wire.Compressors())
	if err != nil {
		return nil, err
	}
	decoded, err := wire.Decode(rawReply)
	if err != nil {
		return nil, err
	}
	if len(decoded.Sections) == 0 {
		return nil, fmt.Errorf("pool: reply had no body section")
	}
	return decoded.Sections[0], nil
}
