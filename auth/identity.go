// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// ConnectionID names a transport connection. It is owned by the
// transport layer and stable for the connection's lifetime; the engine
// uses it only as a lookup key.
type ConnectionID string

// Role is the side a node occupies on a connection: the peer that
// opened the transport connection or the peer that accepted it. The
// authorization protocols are not symmetric, so the role determines
// which half of a scheme a node runs.
type Role int

const (
	// RoleInitiator opened the transport connection and sends the
	// first scheme-negotiation message.
	RoleInitiator Role = iota

	// RoleAcceptor received the transport connection.
	RoleAcceptor
)

// String returns the role name used in logs and errors.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleAcceptor:
		return "acceptor"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Opposite returns the other side's role.
func (r Role) Opposite() Role {
	if r == RoleInitiator {
		return RoleAcceptor
	}
	return RoleInitiator
}

// IdentityKind distinguishes the two trust levels an authorized
// connection can carry.
type IdentityKind int

const (
	// IdentityTrust is a network-assigned node id accepted without
	// cryptographic proof (Trust and TrustV0 schemes).
	IdentityTrust IdentityKind = iota

	// IdentityChallenge is an Ed25519 public key whose possession was
	// proven by a ChallengeV1 exchange.
	IdentityChallenge
)

// Identity is the verified remote principal a connection is authorized
// as. It is immutable once produced; enrichment (endpoints, display
// names) happens outside this engine. Circuit membership logic treats
// the two kinds as distinct trust levels.
type Identity struct {
	kind      IdentityKind
	nodeID    string
	publicKey ed25519.PublicKey
}

// TrustIdentity returns an identity for a network-assigned node id.
func TrustIdentity(nodeID string) Identity {
	return Identity{kind: IdentityTrust, nodeID: nodeID}
}

// ChallengeIdentity returns an identity for a cryptographically
// verified public key. The key is copied so later mutation of the
// caller's slice cannot alter the identity.
func ChallengeIdentity(publicKey ed25519.PublicKey) Identity {
	copied := make(ed25519.PublicKey, len(publicKey))
	copy(copied, publicKey)
	return Identity{kind: IdentityChallenge, publicKey: copied}
}

// Kind reports which trust level this identity carries.
func (i Identity) Kind() IdentityKind { return i.kind }

// NodeID returns the network-assigned node id. Empty for
// IdentityChallenge identities.
func (i Identity) NodeID() string { return i.nodeID }

// PublicKey returns a copy of the verified public key. Nil for
// IdentityTrust identities.
func (i Identity) PublicKey() ed25519.PublicKey {
	if i.publicKey == nil {
		return nil
	}
	copied := make(ed25519.PublicKey, len(i.publicKey))
	copy(copied, i.publicKey)
	return copied
}

// String returns a log-friendly rendering of the identity.
func (i Identity) String() string {
	switch i.kind {
	case IdentityTrust:
		return "trust:" + i.nodeID
	case IdentityChallenge:
		return "challenge:" + hex.EncodeToString(i.publicKey)
	default:
		return fmt.Sprintf("identity(%d)", int(i.kind))
	}
}

// Equal reports whether two identities name the same principal.
func (i Identity) Equal(other Identity) bool {
	if i.kind != other.kind {
		return false
	}
	if i.kind == IdentityTrust {
		return i.nodeID == other.nodeID
	}
	return i.publicKey.Equal(other.publicKey)
}
