// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package amongo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amongo/amongo/bson/bsoncore"
	"github.com/amongo/amongo/loop"
	"github.com/amongo/amongo/pool"
	"github.com/amongo/amongo/wire"
)

// fakeServer accepts one connection, answers the first request (the
// hello handshake) and then echoes "ok: true" for every subsequent
// request, returning the $db-scoped command it received back to the
// caller via received for inspection.
func fakeServer(t *testing.T, received chan<- bsoncore.Document) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		first := true
		for {
			req, err := readWireMessage(conn)
			if err != nil {
				return
			}
			if first {
				first = false
				elems := bsoncore.AppendBooleanElement(nil, "ok", true)
				elems = bsoncore.AppendInt32Element(elems, "maxWireVersion", 17)
				elems = bsoncore.AppendInt32Element(elems, "minWireVersion", 0)
				replyDoc := bsoncore.Document(bsoncore.BuildDocument(elems))
				reply := wire.Message{RequestID: wire.NextRequestID(), Sections: []bsoncore.Document{replyDoc}}
				if _, err := conn.Write(wire.Encode(reply)); err != nil {
					return
				}
				continue
			}
			received <- req
			elems := bsoncore.AppendBooleanElement(nil, "ok", true)
			replyDoc := bsoncore.Document(bsoncore.BuildDocument(elems))
			reply := wire.Message{RequestID: wire.NextRequestID(), Sections: []bsoncore.Document{replyDoc}}
			if _, err := conn.Write(wire.Encode(reply)); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func readWireMessage(conn net.Conn) (bsoncore.Document, error) {
	header := make([]byte, 16)
	if err := readFullConn(conn, header); err != nil {
		return nil, err
	}
	hdr, err := wire.ReadHeader(header)
	if err != nil {
		return nil, err
	}
	body := make([]byte, hdr.MessageLength-16)
	if err := readFullConn(conn, body); err != nil {
		return nil, err
	}
	msg, err := wire.Decode(append(header, body...))
	if err != nil {
		return nil, err
	}
	if len(msg.Sections) == 0 {
		return nil, err
	}
	return msg.Sections[0], nil
}

func readFullConn(conn net.Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return err
		}
	}
	return nil
}

func TestRunCommandSyncRoundTrip(t *testing.T) {
	received := make(chan bsoncore.Document, 1)
	addr := fakeServer(t, received)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	l := loop.New(0)
	client := NewClient(l, pool.Params{Hosts: []string{host}, Port: port, AppName: "amongo-test"})
	defer client.Close()

	db := client.Database("testdb")
	pingCmd := bsoncore.Document(bsoncore.BuildDocument(bsoncore.AppendInt32Element(nil, "ping", 1)))

	reply, err := db.RunCommandSync(pingCmd)
	require.NoError(t, err)

	ok, found := reply.Lookup("ok")
	require.True(t, found)
	assert.True(t, ok.Boolean())

	sentCmd := <-received
	dbVal, found := sentCmd.Lookup("$db")
	require.True(t, found)
	assert.Equal(t, "testdb", dbVal.StringValue())
}

func TestCollectionNamespace(t *testing.T) {
	l := loop.New(0)
	client := NewClient(l, pool.Params{Hosts: []string{"unreachable.invalid"}, Port: "27017"})
	defer client.Close()

	coll := client.Database("testdb").Collection("widgets")
	assert.Equal(t, "widgets", coll.Name())
	assert.Equal(t, "testdb.widgets", coll.FullName())
	assert.Same(t, client.Database("testdb").client, coll.Database().Client())
}
