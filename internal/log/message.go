// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package log

// Message is something that can be logged: it names the component it
// belongs to, a human-readable summary, and a flat key/value list of
// structured fields.
type Message interface {
	Component() Component
	Message() string
	Serialize(maxDocLen uint) []any
}

// CommandMessage logs a wire-protocol command's lifecycle, grounded on
// the teacher's command-started/succeeded/failed log events.
type CommandMessage struct {
	RequestID    int32
	DatabaseName string
	CommandName  string
	ServerAddr   string
	DurationMS   int64
	Failure      string
	Command      string // stringified BSON, truncated by Serialize
}

func (m *CommandMessage) Component() Component { return ComponentCommand }

func (m *CommandMessage) Message() string {
	if m.Failure != "" {
		return "Command failed"
	}
	if m.DurationMS > 0 {
		return "Command succeeded"
	}
	return "Command started"
}

func (m *CommandMessage) Serialize(maxDocLen uint) []any {
	kvs := []any{
		"requestID", m.RequestID,
		"databaseName", m.DatabaseName,
		"commandName", m.CommandName,
		"serverHost", m.ServerAddr,
		"command", truncate(m.Command, maxDocLen),
	}
	if m.DurationMS > 0 {
		kvs = append(kvs, "durationMS", m.DurationMS)
	}
	if m.Failure != "" {
		kvs = append(kvs, "failure", m.Failure)
	}
	return kvs
}

// ConnectionMessage logs a single connection's checkout/checkin/close,
// grounded on the teacher's connection pool log events.
type ConnectionMessage struct {
	ServerAddr   string
	ConnectionID string
	Reason       string
}

func (m *ConnectionMessage) Component() Component { return ComponentConnection }
func (m *ConnectionMessage) Message() string       { return m.Reason }
func (m *ConnectionMessage) Serialize(uint) []any {
	return []any{"serverHost", m.ServerAddr, "connectionId", m.ConnectionID}
}

// PoolMessage logs pool-wide events (created, ready, cleared, closed).
type PoolMessage struct {
	ServerAddr string
	Reason     string
}

func (m *PoolMessage) Component() Component { return ComponentTopology }
func (m *PoolMessage) Message() string       { return m.Reason }
func (m *PoolMessage) Serialize(uint) []any  { return []any{"serverHost", m.ServerAddr} }

// TruncationSuffix marks a string cut short by Serialize.
const TruncationSuffix = "..."

func truncate(str string, width uint) string {
	if width == 0 || len(str) <= int(width) {
		return str
	}
	return str[:width] + TruncationSuffix
}
