// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package amongo composes the lower modules (async, wire, pool) into
// the facade of spec.md §4.N: a Client owning a connection pool, a
// Database naming one of the server's logical databases, and a
// Collection naming one of a Database's collections. This facade's
// job is strictly "compose wire requests as coroutine chains over the
// pool and wire modules" -- it does not offer CRUD builders, cursors,
// or BSON struct (un)marshaling; callers construct and parse command
// documents with package bson/bsoncore directly, the same flat-document
// style the rest of this module uses throughout.
package amongo

import (
	"github.com/amongo/amongo/async"
	"github.com/amongo/amongo/box"
	"github.com/amongo/amongo/bson/bsoncore"
	"github.com/amongo/amongo/loop"
	"github.com/amongo/amongo/pool"
	"github.com/amongo/amongo/status"
	"github.com/amongo/amongo/wire"
)

// Client is the top-level handle: one event loop plus one connection
// pool, per spec.md §4.N's "Client" record. The zero value is not
// usable; construct with NewClient.
type Client struct {
	loop loop.Loop
	pool *pool.Pool
}

// NewClient constructs a Client that dials through l using params.
// l is also the loop that drains every Emitter this Client's
// Databases/Collections produce.
func NewClient(l loop.Loop, params pool.Params) *Client {
	return &Client{loop: l, pool: pool.New(l, params)}
}

// Loop returns the event loop this Client drives its requests through,
// for callers that need to Schedule their own work alongside it or
// call Run themselves.
func (c *Client) Loop() loop.Loop { return c.loop }

// Close stops the pool's background idle sweep (if any) and releases
// it. It does not close members currently checked out.
func (c *Client) Close() { c.pool.Close() }

// Database returns a handle on the named logical database. Database
// names are not validated here; an invalid name surfaces as a server
// error on the first command run against it.
func (c *Client) Database(name string) *Database {
	return &Database{client: c, name: name}
}

// Database is a named handle into one of the server's logical
// databases, per spec.md §4.N.
type Database struct {
	client *Client
	name   string
}

// Name returns the database's name.
func (db *Database) Name() string { return db.name }

// Client returns the Client this Database was obtained from.
func (db *Database) Client() *Client { return db.client }

// Collection returns a handle on the named collection within db.
func (db *Database) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// RunCommand returns an Emitter that checks out a pool.Member, sends
// cmd (with a "$db" element naming db.Name() appended) as an OP_MSG,
// returns the Member to the pool once the reply arrives, and completes
// with the reply document. Callers must not supply their own "$db"
// element in cmd; see withDB.
// Grounded on the teacher's Database.RunCommand, simplified to the
// single generic command-execution primitive this core needs (no
// session, read preference, or write-concern threading -- those are
// CRUD-builder concerns, out of scope here).
func (db *Database) RunCommand(cmd bsoncore.Document) async.Emitter {
	scoped := withDB(cmd, db.name)
	return async.Let(db.client.pool.Checkout(), 0, func(s status.Status, v box.Box) async.Emitter {
		if s.IsError() {
			return async.Just(db.client.loop, s, box.Nil())
		}
		member := box.Cast[*pool.Member](v)
		return runOnMember(db.client.loop, member, scoped)
	})
}

// RunCommandSync runs RunCommand to completion by draining db's loop
// and returns the reply document (or the first error encountered), a
// synchronous convenience layered over the loop-driven core for
// callers that have no coroutine chain of their own to splice into.
func (db *Database) RunCommandSync(cmd bsoncore.Document) (bsoncore.Document, error) {
	var s status.Status
	var v box.Box
	async.Tie(db.RunCommand(cmd), &s, &v).Start()
	db.client.loop.Run()
	if s.IsError() {
		return nil, s
	}
	return box.Cast[bsoncore.Document](v), nil
}

func runOnMember(sched async.Scheduler, member *pool.Member, cmd bsoncore.Document) async.Emitter {
	return async.FromConnector(func(h async.Handler) async.Operation {
		return async.OperationFunc(func() {
			reply, err := member.Send(cmd)
			member.Return()
			if err != nil {
				h.Complete(wire.StatusFromError(err), box.Nil())
				return
			}
			h.Complete(status.Okay, box.New(reply, nil))
		})
	})
}

// withDB returns a copy of cmd with key "$db" appended, the field
// every OP_MSG command body must carry per spec.md §6's wire-protocol
// rules. cmd's own elements are copied verbatim and "$db" is appended
// after them; callers must not include their own "$db" element, since
// bsoncore.Document.Lookup resolves the first match and would then
// return the caller's value rather than db.Name(), not this one.
func withDB(cmd bsoncore.Document, db string) bsoncore.Document {
	elems := append([]byte{}, cmd[4:len(cmd)-1]...)
	elems = bsoncore.AppendStringElement(elems, "$db", db)
	return bsoncore.Document(bsoncore.BuildDocument(elems))
}

// Collection is a named handle into one of a Database's collections,
// per spec.md §4.N. It carries no CRUD methods (out of scope); it
// exists so callers can address one in the commands they build with
// Database.RunCommand.
type Collection struct {
	db   *Database
	name string
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Database returns the Database this Collection was obtained from.
func (c *Collection) Database() *Database { return c.db }

// FullName returns the collection's namespace: "<database>.<collection>".
func (c *Collection) FullName() string { return c.db.Name() + "." + c.name }
