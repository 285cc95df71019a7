// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// ProtocolVersion is the current authorization protocol version. Peers
// running version 0 only speak the legacy TrustV0 scheme.
const ProtocolVersion = 1

// ProposeSchemePayload lists the schemes the initiator is willing to
// run, in preference order.
type ProposeSchemePayload struct {
	Version int      `cbor:"version"`
	Schemes []string `cbor:"schemes"`
}

// AcceptSchemePayload names the scheme the acceptor selected from the
// proposal.
type AcceptSchemePayload struct {
	Version int    `cbor:"version"`
	Scheme  string `cbor:"scheme"`
}

// RejectPayload carries a generic, oracle-safe rejection reason.
type RejectPayload struct {
	Reason string `cbor:"reason"`
}

// TrustAssertPayload carries an unverified claimed node id.
type TrustAssertPayload struct {
	NodeID string `cbor:"node_id"`
}

// ConnectRequestPayload declares the initiator's node id (TrustV0).
type ConnectRequestPayload struct {
	NodeID string `cbor:"node_id"`
}

// ConnectResponsePayload declares the acceptor's node id (TrustV0).
type ConnectResponsePayload struct {
	NodeID string `cbor:"node_id"`
}

// TrustConfirmPayload finalizes a TrustV0 exchange. It carries no
// data; the confirmation is the message itself.
type TrustConfirmPayload struct{}

// NonceRequestPayload asks the verifier to issue a challenge nonce.
type NonceRequestPayload struct{}

// NonceResponsePayload carries the challenge nonce for one exchange
// instance. A new nonce invalidates any previously issued one.
type NonceResponsePayload struct {
	Nonce []byte `cbor:"nonce"`
}

// SubmitRequestPayload carries the prover's Ed25519 public key, the
// nonce it is answering, and its signature over the challenge
// transcript.
type SubmitRequestPayload struct {
	PublicKey []byte `cbor:"public_key"`
	Nonce     []byte `cbor:"nonce"`
	Signature []byte `cbor:"signature"`
}

// SubmitResponsePayload confirms a verified submission, echoing the
// public key the verifier now attributes to the prover.
type SubmitResponsePayload struct {
	PublicKey []byte `cbor:"public_key"`
}
