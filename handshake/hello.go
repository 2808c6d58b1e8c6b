// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package handshake builds and parses the initial `hello` handshake
// command and, when a Credential is supplied, drives a SCRAM-SHA-256
// authentication conversation over the connection, per spec.md §4.L.
package handshake

import (
	"github.com/amongo/amongo/bson/bsoncore"
	"github.com/amongo/amongo/bson/parse"
	"github.com/amongo/amongo/wire"
)

// Result holds the fields of a `hello` reply the core needs: server
// limits (parsed but, per spec.md's Open Question, not enforced by the
// core itself), the negotiated compressor list, and the SCRAM
// mechanisms the server is willing to use for this user.
type Result struct {
	MaxBsonObjectSize            int32
	MaxMessageSizeBytes          int32
	MaxWriteBatchSize            int32
	LogicalSessionTimeoutMinutes int32
	ReadOnly                     bool
	Compression                  []string
	SaslSupportedMechs           []string
	MinWireVersion               int32
	MaxWireVersion               int32
}

// BuildHello constructs the `hello` command document. appName is
// reported to the server for logging; compressors lists client-side
// compressor names in preference order; saslSupportedMechsUser, if
// non-empty, requests the server report the mechanisms available for
// that username (used to pick a SCRAM mechanism before authenticating).
func BuildHello(appName string, compressors []string, saslSupportedMechsUser string) bsoncore.Document {
	elems := bsoncore.AppendInt32Element(nil, "hello", 1)

	if appName != "" {
		clientElems := bsoncore.AppendDocumentElement(nil, "application",
			bsoncore.BuildDocument(bsoncore.AppendStringElement(nil, "name", appName)))
		elems = append(elems, clientElems...)
	}

	if len(compressors) > 0 {
		var arrElems []byte
		for i, c := range compressors {
			arrElems = bsoncore.AppendStringElement(arrElems, itoa(i), c)
		}
		elems = bsoncore.AppendArrayElement(elems, "compression", bsoncore.BuildDocument(arrElems))
	}

	if saslSupportedMechsUser != "" {
		elems = bsoncore.AppendStringElement(elems, "saslSupportedMechs", saslSupportedMechsUser)
	}

	return bsoncore.Document(bsoncore.BuildDocument(elems))
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := [20]byte{}
	pos := len(digits)
	for i > 0 {
		pos--
		digits[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(digits[pos:])
}

// ParseHello decomposes a `hello` reply via package bson/parse's
// combinators, per spec.md §4.G/§4.L.
func ParseHello(doc bsoncore.Document) (Result, error) {
	var res Result
	var compressionArr bsoncore.Array
	var saslArr bsoncore.Array
	haveCompression := false
	haveSasl := false

	rule := parse.Doc(
		parse.Optional(parse.Field("ok", parse.Int64ish(func(int64) parse.Result { return parse.Accepted() }))),
		parse.Optional(parse.Field("maxBsonObjectSize", parse.Store(&res.MaxBsonObjectSize))),
		parse.Optional(parse.Field("maxMessageSizeBytes", parse.Store(&res.MaxMessageSizeBytes))),
		parse.Optional(parse.Field("maxWriteBatchSize", parse.Store(&res.MaxWriteBatchSize))),
		parse.Optional(parse.Field("logicalSessionTimeoutMinutes", parse.Store(&res.LogicalSessionTimeoutMinutes))),
		parse.Optional(parse.Field("readOnly", parse.Store(&res.ReadOnly))),
		parse.Optional(parse.Field("minWireVersion", parse.Store(&res.MinWireVersion))),
		parse.Optional(parse.Field("maxWireVersion", parse.Store(&res.MaxWireVersion))),
		parse.Optional(parse.Field("compression", parse.Type(func(a bsoncore.Array) parse.Result {
			compressionArr = a
			haveCompression = true
			return parse.Accepted()
		}))),
		parse.Optional(parse.Field("saslSupportedMechs", parse.Type(func(a bsoncore.Array) parse.Result {
			saslArr = a
			haveSasl = true
			return parse.Accepted()
		}))),
	)

	if err := parse.MustParse(doc, rule); err != nil {
		return Result{}, err
	}

	if haveCompression {
		strs, err := stringArray(compressionArr)
		if err != nil {
			return Result{}, err
		}
		res.Compression = strs
	}
	if haveSasl {
		strs, err := stringArray(saslArr)
		if err != nil {
			return Result{}, err
		}
		res.SaslSupportedMechs = strs
	}

	if err := wire.CheckServerError(wire.Message{Sections: []bsoncore.Document{doc}}); err != nil {
		return Result{}, err
	}

	return res, nil
}

func stringArray(a bsoncore.Array) ([]string, error) {
	elems, err := bsoncore.Document(a).Elements()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		s, ok := e.Value().StringValueOK()
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
