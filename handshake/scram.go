// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package handshake

import (
	"fmt"

	"github.com/xdg-go/scram"
	"github.com/xdg-go/stringprep"

	"github.com/amongo/amongo/bson/bsoncore"
	"github.com/amongo/amongo/wire"
)

// Sender issues one command document against the already-established
// connection and returns the server's reply document; handshake's
// caller supplies this over the wire/loop send-receive machinery so
// this package stays free of any transport dependency.
type Sender func(cmd bsoncore.Document) (bsoncore.Document, error)

// ScramConversation drives a full SCRAM-SHA-256 authentication exchange
// for cred against source, issuing saslStart then zero or more
// saslContinue commands through send, per spec.md §4.L. It mirrors the
// client side of RFC 5802 as implemented by xdg-go/scram, with
// usernames/passwords normalized via stringprep's SASLprep profile
// first -- the same normalization step the teacher's auth layer applies
// before constructing a SCRAM client, since xdg-go/scram's own
// constructor does not SASLprep its inputs for callers that bypass its
// higher-level helpers.
func ScramConversation(send Sender, cred Credential) error {
	username, err := stringprep.SASLprep.Prepare(cred.Username)
	if err != nil {
		username = cred.Username // RFC 5802: fall back to raw username on prep failure
	}
	password, err := stringprep.SASLprep.Prepare(cred.Password)
	if err != nil {
		password = cred.Password
	}

	client, err := scram.SHA256.NewClient(username, password, "")
	if err != nil {
		return fmt.Errorf("handshake: scram client: %w", err)
	}
	conv := client.NewConversation()

	first, err := conv.Step("")
	if err != nil {
		return fmt.Errorf("handshake: scram first step: %w", err)
	}

	startCmd := bsoncore.Document(bsoncore.BuildDocument(saslStartElems(cred.source(), first)))
	reply, err := send(startCmd)
	if err != nil {
		return err
	}

	conversationID, payload, done, err := parseSaslReply(reply)
	if err != nil {
		return err
	}

	for !done && !conv.Done() {
		next, err := conv.Step(string(payload))
		if err != nil {
			return fmt.Errorf("handshake: scram step: %w", err)
		}
		contCmd := bsoncore.Document(bsoncore.BuildDocument(saslContinueElems(cred.source(), conversationID, next)))
		reply, err = send(contCmd)
		if err != nil {
			return err
		}
		conversationID, payload, done, err = parseSaslReply(reply)
		if err != nil {
			return err
		}
	}

	if !conv.Done() {
		// Server considers the conversation finished but the client
		// still expects a final empty-payload round (RFC 5802 ยง3's
		// "server signature" verification step).
		if _, err := conv.Step(string(payload)); err != nil {
			return fmt.Errorf("handshake: scram final step: %w", err)
		}
	}
	return nil
}

func saslStartElems(source, payload string) []byte {
	elems := bsoncore.AppendInt32Element(nil, "saslStart", 1)
	elems = bsoncore.AppendStringElement(elems, "mechanism", "SCRAM-SHA-256")
	elems = bsoncore.AppendBinaryElement(elems, "payload", 0x00, []byte(payload))
	elems = bsoncore.AppendStringElement(elems, "$db", source)
	return elems
}

func saslContinueElems(source string, conversationID int32, payload string) []byte {
	elems := bsoncore.AppendInt32Element(nil, "saslContinue", 1)
	elems = bsoncore.AppendInt32Element(elems, "conversationId", conversationID)
	elems = bsoncore.AppendBinaryElement(elems, "payload", 0x00, []byte(payload))
	elems = bsoncore.AppendStringElement(elems, "$db", source)
	return elems
}

func parseSaslReply(doc bsoncore.Document) (conversationID int32, payload []byte, done bool, err error) {
	if serr := wire.CheckServerError(wire.Message{Sections: []bsoncore.Document{doc}}); serr != nil {
		return 0, nil, false, serr
	}
	cidVal, ok := doc.Lookup("conversationId")
	if ok {
		conversationID = cidVal.Int32()
	}
	if payloadVal, ok := doc.Lookup("payload"); ok {
		_, data, ok := payloadVal.BinaryOK()
		if ok {
			payload = data
		}
	}
	if doneVal, ok := doc.Lookup("done"); ok {
		done = doneVal.Boolean()
	}
	return conversationID, payload, done, nil
}
