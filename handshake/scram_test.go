// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amongo/amongo/bson/bsoncore"
)

func TestSaslStartElemsShape(t *testing.T) {
	doc := bsoncore.Document(bsoncore.BuildDocument(saslStartElems("admin", "n,,n=user,r=abc")))
	require.NoError(t, doc.Validate())

	mech, ok := doc.Lookup("mechanism")
	require.True(t, ok)
	assert.Equal(t, "SCRAM-SHA-256", mech.StringValue())

	db, ok := doc.Lookup("$db")
	require.True(t, ok)
	assert.Equal(t, "admin", db.StringValue())

	payload, ok := doc.Lookup("payload")
	require.True(t, ok)
	_, data, ok := payload.BinaryOK()
	require.True(t, ok)
	assert.Equal(t, "n,,n=user,r=abc", string(data))
}

func TestParseSaslReplyExtractsFields(t *testing.T) {
	elems := bsoncore.AppendBooleanElement(nil, "ok", true)
	elems = bsoncore.AppendInt32Element(elems, "conversationId", 1)
	elems = bsoncore.AppendBinaryElement(elems, "payload", 0x00, []byte("r=abc,s=def,i=4096"))
	elems = bsoncore.AppendBooleanElement(elems, "done", false)
	doc := bsoncore.Document(bsoncore.BuildDocument(elems))

	cid, payload, done, err := parseSaslReply(doc)
	require.NoError(t, err)
	assert.Equal(t, int32(1), cid)
	assert.Equal(t, "r=abc,s=def,i=4096", string(payload))
	assert.False(t, done)
}

func TestParseSaslReplySurfacesServerError(t *testing.T) {
	elems := bsoncore.AppendBooleanElement(nil, "ok", false)
	elems = bsoncore.AppendStringElement(elems, "errmsg", "Authentication failed")
	elems = bsoncore.AppendInt32Element(elems, "code", 18)
	doc := bsoncore.Document(bsoncore.BuildDocument(elems))

	_, _, _, err := parseSaslReply(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Authentication failed")
}

func TestScramConversationSurfacesSendError(t *testing.T) {
	elems := bsoncore.AppendBooleanElement(nil, "ok", false)
	elems = bsoncore.AppendStringElement(elems, "errmsg", "bad auth")
	elems = bsoncore.AppendInt32Element(elems, "code", 18)
	errDoc := bsoncore.Document(bsoncore.BuildDocument(elems))

	send := func(cmd bsoncore.Document) (bsoncore.Document, error) {
		return errDoc, nil
	}

	err := ScramConversation(send, Credential{Username: "user", Password: "pencil"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad auth")
}
