// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries authorization traffic between circuit
// nodes.
//
// The engine in package auth is transport-agnostic; this package
// supplies the pieces it expects from its environment: connection ids,
// framed envelope delivery in per-connection order, an outbound send
// capability, teardown on failure, and the rule that no application
// traffic flows before a connection is authorized.
//
// [Session] wraps one net.Conn and drives the full handshake:
// register with the state machine, negotiate a scheme, install the
// scheme's handlers, dispatch inbound envelopes until the connection
// is authorized or terminally failed, and enforce the handshake
// deadline. [TCPListener] and [TCPDialer] provide the development
// transport; anything that yields a net.Conn (including net.Pipe in
// tests) works identically.
package transport
