// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import (
	"fmt"

	"github.com/amongo/amongo/async"
	"github.com/amongo/amongo/box"
	"github.com/amongo/amongo/loop"
	"github.com/amongo/amongo/status"
)

// ReadFullMessage asynchronously reads one complete wire-protocol
// message (header plus body, per the declared messageLength) off sock
// using l's partial-read primitive, looping until the buffer is full.
// It is the async counterpart of the teacher's
// connection.ReadWireMessage's length-prefixed read-loop, generalized
// from a single blocking io.ReadFull call to loop-scheduled partial
// reads. connID is only used to label a resulting Error.
func ReadFullMessage(l loop.Loop, sock loop.Socket, connID string) async.Emitter {
	return async.FromConnector(func(h async.Handler) async.Operation {
		return async.OperationFunc(func() {
			hdrBuf := make([]byte, headerLen)
			readLoop(l, sock, connID, hdrBuf, 0, h, func(h async.Handler) {
				hdr, err := ReadHeader(hdrBuf)
				if err != nil {
					h.Complete(status.FromError(WrapError(connID, "invalid message header", err)), box.Nil())
					return
				}
				full := make([]byte, hdr.MessageLength)
				copy(full, hdrBuf)
				if len(full) == headerLen {
					h.Complete(status.Okay, box.New(full, nil))
					return
				}
				readLoop(l, sock, connID, full, headerLen, h, func(h async.Handler) {
					h.Complete(status.Okay, box.New(full, nil))
				})
			})
		})
	})
}

// readLoop fills buf[from:] via repeated ReadSome calls, invoking done
// once the buffer is full or completing h with an error on failure.
func readLoop(l loop.Loop, sock loop.Socket, connID string, buf []byte, from int, h async.Handler, done func(async.Handler)) {
	if from >= len(buf) {
		done(h)
		return
	}
	em := l.ReadSome(sock, buf[from:])
	op := em.Connect(async.HandlerFunc(func(s status.Status, v box.Box) {
		if s.IsError() {
			h.Complete(status.FromError(WrapError(connID, "read failed", fmt.Errorf("%s", s.Message()))), box.Nil())
			return
		}
		n := box.Cast[int](v)
		if n == 0 {
			h.Complete(status.FromError(WrapError(connID, "read failed", fmt.Errorf("connection closed"))), box.Nil())
			return
		}
		readLoop(l, sock, connID, buf, from+n, h, done)
	}))
	op.Start()
}

// WriteFullMessage asynchronously writes raw (a complete, already
// framed wire message) to sock, looping partial writes to completion
// the way connection.WriteWireMessage's single conn.Write call is
// generalized here to loop-scheduled partial writes.
func WriteFullMessage(l loop.Loop, sock loop.Socket, connID string, raw []byte) async.Emitter {
	return async.FromConnector(func(h async.Handler) async.Operation {
		return async.OperationFunc(func() {
			writeLoop(l, sock, connID, raw, 0, h)
		})
	})
}

func writeLoop(l loop.Loop, sock loop.Socket, connID string, buf []byte, from int, h async.Handler) {
	if from >= len(buf) {
		h.Complete(status.Okay, box.New(len(buf), nil))
		return
	}
	em := l.WriteSome(sock, buf[from:])
	op := em.Connect(async.HandlerFunc(func(s status.Status, v box.Box) {
		if s.IsError() {
			h.Complete(status.FromError(WrapError(connID, "write failed", fmt.Errorf("%s", s.Message()))), box.Nil())
			return
		}
		n := box.Cast[int](v)
		if n == 0 {
			h.Complete(status.FromError(WrapError(connID, "write failed", fmt.Errorf("connection closed"))), box.Nil())
			return
		}
		writeLoop(l, sock, connID, buf, from+n, h)
	}))
	op.Start()
}
