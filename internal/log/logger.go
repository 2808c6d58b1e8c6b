// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package log is the driver's ambient logging layer, grounded on
// internal/logger/logger.go in the teacher: a background goroutine
// drains a buffered channel of jobs so that a call to Print never
// blocks the event loop, component levels are independently
// configurable via environment variables, and long BSON-derived
// strings are truncated before being handed to the sink.
package log

import (
	"os"
	"strconv"
)

const (
	jobBufferSize           = 100
	maxDocumentLengthEnvVar = "AMONGO_LOG_MAX_DOCUMENT_LENGTH"
	// DefaultMaxDocumentLength is the default truncation width, in bytes,
	// for stringified BSON fields in a log message.
	DefaultMaxDocumentLength = 1000
)

// Sink is a subset of go-logr/logr's LogSink interface.
type Sink interface {
	Info(level int, msg string, keysAndValues ...any)
}

type job struct {
	level Level
	msg   Message
}

// Logger drains logged Messages onto a Sink, never on the caller's
// goroutine.
type Logger struct {
	ComponentLevels   map[Component]Level
	Sink              Sink
	MaxDocumentLength uint

	jobs chan job
}

// New constructs a Logger. A nil sink falls back to stderr; component
// levels not given are sourced from the environment.
func New(sink Sink, maxDocumentLength uint, componentLevels map[Component]Level) *Logger {
	l := &Logger{
		ComponentLevels:   selectComponentLevels(componentLevels, getEnvComponentLevels),
		MaxDocumentLength: selectMaxDocumentLength(maxDocumentLength, getEnvMaxDocumentLength),
		Sink:              sink,
		jobs:              make(chan job, jobBufferSize),
	}
	if l.Sink == nil {
		l.Sink = NewWriterSink(os.Stderr)
	}
	go l.run()
	return l
}

// Is reports whether level is enabled for component.
func (l *Logger) Is(level Level, component Component) bool {
	return l.ComponentLevels[component] >= level
}

// Print enqueues msg for asynchronous delivery to the sink, dropping it
// if the queue is saturated rather than blocking the caller.
func (l *Logger) Print(level Level, msg Message) {
	select {
	case l.jobs <- job{level, msg}:
	default:
	}
}

// Close closes the job queue; the drain goroutine exits once it has
// delivered what was queued. Print must not be called after Close: a
// send on the closed queue panics.
func (l *Logger) Close() { close(l.jobs) }

func (l *Logger) run() {
	for j := range l.jobs {
		if !l.Is(j.level, j.msg.Component()) {
			continue
		}
		if l.Sink == nil {
			continue
		}
		kvs := j.msg.Serialize(l.MaxDocumentLength)
		l.Sink.Info(int(j.level)-DiffToInfo, j.msg.Message(), kvs...)
	}
}

func getEnvMaxDocumentLength() uint {
	v := os.Getenv(maxDocumentLengthEnvVar)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0
	}
	return uint(n)
}

func selectMaxDocumentLength(explicit uint, fromEnv func() uint) uint {
	if explicit != 0 {
		return explicit
	}
	if v := fromEnv(); v != 0 {
		return v
	}
	return DefaultMaxDocumentLength
}

func getEnvComponentLevels() map[Component]Level {
	levels := make(map[Component]Level)
	global := ParseLevel(os.Getenv(string(envVarAll)))
	for _, ev := range allComponentEnvVars {
		level := global
		if global == LevelOff {
			level = ParseLevel(os.Getenv(string(ev)))
		}
		levels[ev.component()] = level
	}
	return levels
}

func selectComponentLevels(explicit map[Component]Level, fromEnv func() map[Component]Level) map[Component]Level {
	selected := make(map[Component]Level)
	for c, l := range fromEnv() {
		selected[c] = l
	}
	for c, l := range explicit {
		selected[c] = l
	}
	return selected
}
