// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amongo/amongo/box"
	"github.com/amongo/amongo/status"
)

// immediateScheduler runs every scheduled callback synchronously,
// inline, suitable for deterministic unit tests.
type immediateScheduler struct{}

func (immediateScheduler) Schedule(fn func()) { fn() }

func (immediateScheduler) ScheduleLater(d time.Duration, fn func()) func() {
	fired := false
	timer := time.AfterFunc(d, func() {
		if !fired {
			fn()
		}
	})
	return func() {
		fired = true
		timer.Stop()
	}
}

func TestJustCompletesWithProvidedPair(t *testing.T) {
	em := Just(immediateScheduler{}, status.Okay, box.New(42, nil))
	var s status.Status
	var v box.Box
	op := Tie(em, &s, &v)
	op.Start()

	assert.True(t, s.IsError() == false)
	assert.Equal(t, 42, box.Cast[int](v))
}

func TestThenTransformsValue(t *testing.T) {
	em := Just(immediateScheduler{}, status.Okay, box.New(1, nil))
	doubled := Then(em, 0, func(s *status.Status, v box.Box) box.Box {
		return box.New(box.Cast[int](v)*2, nil)
	})

	var s status.Status
	var v box.Box
	Tie(doubled, &s, &v).Start()
	assert.Equal(t, 2, box.Cast[int](v))
}

func TestThenForwardsErrorsWithoutInvokingFn(t *testing.T) {
	em := Just(immediateScheduler{}, status.Cancelled(), box.Nil())
	called := false
	composed := Then(em, ForwardErrors, func(s *status.Status, v box.Box) box.Box {
		called = true
		return v
	})

	var s status.Status
	var v box.Box
	Tie(composed, &s, &v).Start()
	assert.False(t, called)
	assert.True(t, s.IsCancellation())
}

func TestLetSplicesDownstreamEmitter(t *testing.T) {
	em := Just(immediateScheduler{}, status.Okay, box.New(10, nil))
	composed := Let(em, 0, func(s status.Status, v box.Box) Emitter {
		return Just(immediateScheduler{}, status.Okay, box.New(box.Cast[int](v)+5, nil))
	})

	var s status.Status
	var v box.Box
	Tie(composed, &s, &v).Start()
	assert.Equal(t, 15, box.Cast[int](v))
}

func TestTimeoutWinnerIsFasterEmitter(t *testing.T) {
	em := Just(immediateScheduler{}, status.Okay, box.New("fast", nil))
	composed := Timeout(immediateScheduler{}, em, time.Hour)

	var s status.Status
	var v box.Box
	Tie(composed, &s, &v).Start()
	require.False(t, s.IsTimeout())
	assert.Equal(t, "fast", box.Cast[string](v))
}

func TestTimeoutFiresWhenEmitterNeverCompletesSynchronously(t *testing.T) {
	neverCompletes := FromConnector(func(h Handler) Operation {
		return OperationFunc(func() {})
	})
	composed := Timeout(immediateScheduler{}, neverCompletes, 5*time.Millisecond)

	var s status.Status
	done := make(chan struct{})
	op := composed.Connect(HandlerFunc(func(rs status.Status, _ box.Box) {
		s = rs
		close(done)
	}))
	op.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
	assert.True(t, s.IsTimeout())
}

func TestTimeoutInvokesStopCallbackWhenTimerWins(t *testing.T) {
	stopped := false
	neverCompletes := FromConnector(func(h Handler) Operation {
		RegisterStop(h, func() { stopped = true })
		return OperationFunc(func() {})
	})
	composed := Timeout(immediateScheduler{}, neverCompletes, 5*time.Millisecond)

	var s status.Status
	done := make(chan struct{})
	op := composed.Connect(HandlerFunc(func(rs status.Status, _ box.Box) {
		s = rs
		close(done)
	}))
	op.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
	assert.True(t, s.IsTimeout())
	assert.True(t, stopped)
}

func TestTimeoutDoesNotInvokeStopCallbackWhenEmitterWins(t *testing.T) {
	stopped := false
	em := FromConnector(func(h Handler) Operation {
		RegisterStop(h, func() { stopped = true })
		return OperationFunc(func() {
			h.Complete(status.Okay, box.New("fast", nil))
		})
	})
	composed := Timeout(immediateScheduler{}, em, time.Hour)

	var s status.Status
	var v box.Box
	Tie(composed, &s, &v).Start()
	require.False(t, s.IsTimeout())
	assert.Equal(t, "fast", box.Cast[string](v))
	assert.False(t, stopped)
}

func TestDetachDropsResult(t *testing.T) {
	destroyed := false
	em := Just(immediateScheduler{}, status.Okay, box.New(1, func(int) { destroyed = true }))
	Detach(em).Start()
	assert.True(t, destroyed)
}

func TestRegisterStopInvokesWhenSupported(t *testing.T) {
	var registered func()
	h := stopAwareHandler{
		HandlerFunc: func(status.Status, box.Box) {},
		onRegister: func(cb func()) box.Box {
			registered = cb
			return box.Nil()
		},
	}
	cookie := RegisterStop(h, func() {})
	_ = cookie
	require.NotNil(t, registered)
}

type stopAwareHandler struct {
	HandlerFunc func(status.Status, box.Box)
	onRegister  func(func()) box.Box
}

func (h stopAwareHandler) Complete(s status.Status, v box.Box) { h.HandlerFunc(s, v) }
func (h stopAwareHandler) RegisterStop(cb func()) box.Box      { return h.onRegister(cb) }
