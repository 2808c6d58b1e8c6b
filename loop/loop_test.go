// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package loop

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amongo/amongo/async"
	"github.com/amongo/amongo/box"
	"github.com/amongo/amongo/status"
)

func TestScheduleRunsOnRunGoroutine(t *testing.T) {
	l := New(0)
	ran := false
	l.Schedule(func() { ran = true })
	l.Run()
	assert.True(t, ran)
}

func TestScheduleLaterRunsAfterDelay(t *testing.T) {
	l := New(0)
	var fired time.Time
	l.ScheduleLater(10*time.Millisecond, func() { fired = time.Now() })
	before := time.Now()
	l.Run()
	assert.True(t, fired.Sub(before) >= 9*time.Millisecond)
}

func TestScheduleLaterCancelPreventsRun(t *testing.T) {
	l := New(0)
	ran := false
	cancel := l.ScheduleLater(20*time.Millisecond, func() { ran = true })
	cancel()
	l.Schedule(func() {}) // give Run something to drain promptly
	l.Run()
	assert.False(t, ran)
}

func TestConnectAndReadWriteRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		_, _ = conn.Read(buf)
		_, _ = conn.Write(buf)
	}()

	l := New(0)
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	connectEm := l.Connect(Endpoint{Host: host, Port: port})

	var connStatus status.Status
	var connBox box.Box
	connOp := async.Tie(connectEm, &connStatus, &connBox)
	connOp.Start()
	l.Run()

	require.False(t, connStatus.IsError())
	sock := box.Cast[Socket](connBox)
	defer sock.Close()

	writeEm := l.WriteSome(sock, []byte("hello"))
	var wStatus status.Status
	var wBox box.Box
	async.Tie(writeEm, &wStatus, &wBox).Start()
	l.Run()
	require.False(t, wStatus.IsError())
	assert.Equal(t, 5, box.Cast[int](wBox))

	readBuf := make([]byte, 5)
	readEm := l.ReadSome(sock, readBuf)
	var rStatus status.Status
	var rBox box.Box
	async.Tie(readEm, &rStatus, &rBox).Start()
	l.Run()
	require.False(t, rStatus.IsError())
	assert.Equal(t, 5, box.Cast[int](rBox))
	assert.Equal(t, "hello", string(readBuf))

	<-serverDone
}

func TestResolveLocalhost(t *testing.T) {
	l := New(0)
	em := l.Resolve("localhost", "0")
	var s status.Status
	var v box.Box
	async.Tie(em, &s, &v).Start()
	l.Run()
	require.False(t, s.IsError())
	eps := box.Cast[[]Endpoint](v)
	assert.NotEmpty(t, eps)
}
