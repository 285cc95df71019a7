// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import "crypto/ed25519"

// Action is one input to the state machine, carrying whatever data the
// transition needs (a claimed node id, a nonce, a verified identity).
// The set is closed: the machine dispatches on the concrete type with
// an exhaustive switch, so an action invalid for the current state is
// rejected rather than silently ignored.
//
// Actions named Send* record that the local side emitted a message;
// actions named Receive* record that a message arrived and was decoded
// (and, where applicable, verified) by a handler. Verification always
// happens before an action is applied — the machine only ever sees
// already-verified data.
type Action interface {
	// scheme ties the action to the scheme whose transition table
	// accepts it. Actions from a different scheme than the one pinned
	// on a connection are rejected outright.
	scheme() Scheme

	// name is the action's log/error label.
	name() string
}

// TrustReceiveAssert applies the single Trust transition: the remote
// presented a claimed node id and the local side accepts it.
type TrustReceiveAssert struct {
	NodeID string
}

func (TrustReceiveAssert) scheme() Scheme { return SchemeTrust }
func (TrustReceiveAssert) name() string   { return "trust/receive-assert" }

// TrustV0SendConnectRequest: initiator declared its node id.
type TrustV0SendConnectRequest struct {
	NodeID string
}

func (TrustV0SendConnectRequest) scheme() Scheme { return SchemeTrustV0 }
func (TrustV0SendConnectRequest) name() string   { return "trust-v0/send-connect-request" }

// TrustV0ReceiveConnectRequest: acceptor received the initiator's
// declared node id. The id is parked until the confirmation arrives.
type TrustV0ReceiveConnectRequest struct {
	NodeID string
}

func (TrustV0ReceiveConnectRequest) scheme() Scheme { return SchemeTrustV0 }
func (TrustV0ReceiveConnectRequest) name() string   { return "trust-v0/receive-connect-request" }

// TrustV0SendConnectResponse: acceptor declared its own node id in
// reply.
type TrustV0SendConnectResponse struct {
	NodeID string
}

func (TrustV0SendConnectResponse) scheme() Scheme { return SchemeTrustV0 }
func (TrustV0SendConnectResponse) name() string   { return "trust-v0/send-connect-response" }

// TrustV0ReceiveConnectResponse: initiator received the acceptor's
// declared node id.
type TrustV0ReceiveConnectResponse struct {
	NodeID string
}

func (TrustV0ReceiveConnectResponse) scheme() Scheme { return SchemeTrustV0 }
func (TrustV0ReceiveConnectResponse) name() string   { return "trust-v0/receive-connect-response" }

// TrustV0SendTrustConfirm: initiator confirmed; the parked acceptor id
// becomes the connection identity.
type TrustV0SendTrustConfirm struct{}

func (TrustV0SendTrustConfirm) scheme() Scheme { return SchemeTrustV0 }
func (TrustV0SendTrustConfirm) name() string   { return "trust-v0/send-trust-confirm" }

// TrustV0ReceiveTrustConfirm: acceptor saw the confirmation; the
// parked initiator id becomes the connection identity.
type TrustV0ReceiveTrustConfirm struct{}

func (TrustV0ReceiveTrustConfirm) scheme() Scheme { return SchemeTrustV0 }
func (TrustV0ReceiveTrustConfirm) name() string   { return "trust-v0/receive-trust-confirm" }

// ChallengeSendNonceRequest opens the local node's proving ladder.
type ChallengeSendNonceRequest struct{}

func (ChallengeSendNonceRequest) scheme() Scheme { return SchemeChallengeV1 }
func (ChallengeSendNonceRequest) name() string   { return "challenge-v1/send-nonce-request" }

// ChallengeReceiveNonceResponse: the peer issued a nonce for the local
// node to sign. The nonce is recorded on the proving ladder.
type ChallengeReceiveNonceResponse struct {
	Nonce []byte
}

func (ChallengeReceiveNonceResponse) scheme() Scheme { return SchemeChallengeV1 }
func (ChallengeReceiveNonceResponse) name() string   { return "challenge-v1/receive-nonce-response" }

// ChallengeSendSubmitRequest: the local node signed the challenge
// transcript and submitted it.
type ChallengeSendSubmitRequest struct{}

func (ChallengeSendSubmitRequest) scheme() Scheme { return SchemeChallengeV1 }
func (ChallengeSendSubmitRequest) name() string   { return "challenge-v1/send-submit-request" }

// ChallengeReceiveSubmitResponse closes the local node's proving
// ladder. The confirmation never sets the connection identity — the
// identity only ever comes from locally verifying the peer.
type ChallengeReceiveSubmitResponse struct {
	PublicKey ed25519.PublicKey
}

func (ChallengeReceiveSubmitResponse) scheme() Scheme { return SchemeChallengeV1 }
func (ChallengeReceiveSubmitResponse) name() string   { return "challenge-v1/receive-submit-response" }

// ChallengeReceiveNonceRequest opens the peer's proving ladder: the
// peer asked to be challenged.
type ChallengeReceiveNonceRequest struct{}

func (ChallengeReceiveNonceRequest) scheme() Scheme { return SchemeChallengeV1 }
func (ChallengeReceiveNonceRequest) name() string   { return "challenge-v1/receive-nonce-request" }

// ChallengeSendNonceResponse: the local node issued a fresh nonce.
// The machine records it as the most recently issued nonce for the
// peer's proving ladder; a later submission must answer exactly this
// nonce.
type ChallengeSendNonceResponse struct {
	Nonce []byte
}

func (ChallengeSendNonceResponse) scheme() Scheme { return SchemeChallengeV1 }
func (ChallengeSendNonceResponse) name() string   { return "challenge-v1/send-nonce-response" }

// ChallengeReceiveSubmitRequest: the peer's submission verified. The
// carried identity becomes the connection identity and the connection
// reaches PhaseAuthorized.
type ChallengeReceiveSubmitRequest struct {
	Identity Identity
}

func (ChallengeReceiveSubmitRequest) scheme() Scheme { return SchemeChallengeV1 }
func (ChallengeReceiveSubmitRequest) name() string   { return "challenge-v1/receive-submit-request" }

// ChallengeSendSubmitResponse closes the peer's proving ladder with
// the local confirmation.
type ChallengeSendSubmitResponse struct{}

func (ChallengeSendSubmitResponse) scheme() Scheme { return SchemeChallengeV1 }
func (ChallengeSendSubmitResponse) name() string   { return "challenge-v1/send-submit-response" }
