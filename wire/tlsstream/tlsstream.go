// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package tlsstream adapts a raw byte stream into a TLS-secured one,
// grounded on the teacher's core/connection.go configureTLS: the TLS
// handshake runs through crypto/tls.Conn.HandshakeContext on a
// background goroutine that is also raced against context
// cancellation. Module K of spec.md's wire layer.
package tlsstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/youmark/pkcs8"

	"github.com/amongo/amongo/wire"
)

// Config configures a TLS handshake: the stdlib tls.Config to use, plus
// an InsecureSkipVerify switch that stops Handshake from deriving
// ServerName from the address. That field shadows the embedded
// tls.Config's own InsecureSkipVerify, which is the one that controls
// certificate verification. Config has no certificate-file fields; a
// client certificate goes in the embedded tls.Config's Certificates
// (LoadClientCertificate builds one).
type Config struct {
	*tls.Config
	InsecureSkipVerify bool
}

// LoadClientCertificate parses a PEM certificate and a (possibly
// PKCS8-encrypted) PEM private key into a tls.Certificate, using
// youmark/pkcs8 to handle a password-protected key -- the client-cert
// case the teacher's TLSConfig plumbs through as
// SSLClientCertificateKeyPassword.
func LoadClientCertificate(certPEM, keyPEM, password []byte) (tls.Certificate, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return tls.Certificate{}, errors.New("tlsstream: no PEM certificate block found")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsstream: parse certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return tls.Certificate{}, errors.New("tlsstream: no PEM private key block found")
	}

	var key any
	if len(password) > 0 {
		key, err = pkcs8.ParsePrivateKey(keyBlock.Bytes, password)
	} else {
		key, err = x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	}
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsstream: parse private key: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certBlock.Bytes},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// serverNameFromAddr derives a TLS ServerName from a "host:port" or bare
// host address, matching configureTLS's hostname-from-address logic.
func serverNameFromAddr(addr string) string {
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// Handshake upgrades nc to TLS using cfg, deriving ServerName from addr
// when cfg.InsecureSkipVerify is false and cfg.ServerName is unset. The
// handshake runs tls.Conn.HandshakeContext(ctx) on a background
// goroutine and races it against ctx.Done(), the same shape
// configureTLS uses. The returned *tls.Conn satisfies
// loop.Socket (and net.Conn) directly.
func Handshake(ctx context.Context, nc net.Conn, addr string, cfg *Config) (*tls.Conn, error) {
	tlsConfig := cfg.Config.Clone()
	if !cfg.InsecureSkipVerify && tlsConfig.ServerName == "" {
		tlsConfig.ServerName = serverNameFromAddr(addr)
	}

	client := tls.Client(nc, tlsConfig)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.HandshakeContext(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return nil, wire.WrapError(addr, "TLS handshake failed", err)
		}
	case <-ctx.Done():
		return nil, wire.WrapError(addr, "TLS handshake cancelled", ctx.Err())
	}
	return client, nil
}
