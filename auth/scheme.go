// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/ed25519"
	"fmt"
)

// Scheme identifies one of the supported authentication protocols.
// The set is closed: adding a scheme means extending the transition
// tables in this package, not registering plugins at runtime.
type Scheme int

const (
	// SchemeNone is the zero value: no scheme negotiated yet.
	SchemeNone Scheme = iota

	// SchemeTrust accepts an unverified claimed node id. Intended for
	// closed, fully trusted test networks.
	SchemeTrust

	// SchemeTrustV0 is the legacy connect/response/confirm sequence,
	// kept for wire protocol version 0 peers.
	SchemeTrustV0

	// SchemeChallengeV1 proves possession of an Ed25519 private key
	// through a nonce/signature exchange in each direction.
	SchemeChallengeV1
)

// Scheme identifiers as they appear in wire envelopes.
const (
	schemeNameTrust       = "trust"
	schemeNameTrustV0     = "trust-v0"
	schemeNameChallengeV1 = "challenge-v1"
)

// String returns the wire identifier for the scheme.
func (s Scheme) String() string {
	switch s {
	case SchemeTrust:
		return schemeNameTrust
	case SchemeTrustV0:
		return schemeNameTrustV0
	case SchemeChallengeV1:
		return schemeNameChallengeV1
	case SchemeNone:
		return "none"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

// ParseScheme maps a wire identifier to a Scheme.
func ParseScheme(name string) (Scheme, error) {
	switch name {
	case schemeNameTrust:
		return SchemeTrust, nil
	case schemeNameTrustV0:
		return SchemeTrustV0, nil
	case schemeNameChallengeV1:
		return SchemeChallengeV1, nil
	default:
		return SchemeNone, fmt.Errorf("unknown authorization scheme %q", name)
	}
}

// Signer signs challenge transcripts with the local node's private
// key. Supplied by the key-management layer; the engine never touches
// key material directly.
type Signer interface {
	// Sign returns the Ed25519 signature of message.
	Sign(message []byte) []byte
}

// Verifier checks a peer's signature over a challenge transcript.
// Implementations may additionally enforce network membership (reject
// keys that are not in the local peer directory).
type Verifier interface {
	// Verify returns nil if signature is a valid signature of message
	// by publicKey and the key is acceptable to this node.
	Verify(publicKey ed25519.PublicKey, message, signature []byte) error
}

// LocalNode describes the local side of the handshake: the node id it
// declares under the trust schemes and the public key it submits under
// ChallengeV1.
type LocalNode struct {
	NodeID    string
	PublicKey ed25519.PublicKey
}

// SchemeConfig carries everything a scheme needs to build its handler
// set. Trust and TrustV0 need only the local node id; ChallengeV1
// additionally needs the signer/verifier capability.
type SchemeConfig struct {
	Local    LocalNode
	Signer   Signer
	Verifier Verifier
}

// Handlers returns the dispatch handler set for the negotiated scheme.
// Called once per connection, after negotiation reaches agreement.
// Returns a ConfigurationError if the local setup cannot run the
// scheme; that error is fatal for every connection under the scheme,
// not just this one.
func Handlers(scheme Scheme, config SchemeConfig) (*HandlerSet, error) {
	switch scheme {
	case SchemeTrust:
		return newTrustHandlers(config)
	case SchemeTrustV0:
		return newTrustV0Handlers(config)
	case SchemeChallengeV1:
		return newChallengeHandlers(config)
	default:
		return nil, &ConfigurationError{Scheme: scheme, Reason: "scheme has no handler set"}
	}
}
