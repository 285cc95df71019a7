// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the peer connection authorization engine.
//
// Every transport connection between circuit nodes must complete an
// authorization handshake before application traffic flows. The engine
// is a per-connection state machine: the transport layer registers a
// connection, the two peers negotiate an authentication scheme
// ([Negotiator]), the negotiated scheme's handlers are installed
// ([Handlers]), and each inbound message drives exactly one [Action]
// through the shared [StateMachine]. The machine validates the action
// against the connection's current state, rejects anything out of
// order or replayed, and — on terminal success — records the verified
// remote [Identity] that downstream circuit membership logic trusts.
//
// Three schemes are supported:
//
//   - Trust: the remote presents an unverified claimed node id and the
//     local side accepts it unconditionally. For closed test networks.
//   - TrustV0: the legacy connect-request/connect-response/confirm
//     sequence kept for protocol version 0 peers.
//   - ChallengeV1: a nonce/signature exchange proving possession of an
//     Ed25519 private key, run independently in each direction.
//
// The engine never performs I/O while holding state locks, exposes no
// timers, and never retries: every error it surfaces is terminal for
// the affected connection. Teardown is the transport's responsibility.
package auth
