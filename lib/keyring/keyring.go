// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Keypair holds a node's Ed25519 identity keypair. The public key is
// safe to publish in peer directories; the private key must only ever
// be stored sealed (see [SaveSealed]).
type Keypair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Generate creates a fresh Ed25519 node keypair.
func Generate() (*Keypair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating node keypair: %w", err)
	}
	return &Keypair{PublicKey: publicKey, PrivateKey: privateKey}, nil
}

// Signer returns the auth.Signer implementation backed by this
// keypair's private key.
func (k *Keypair) Signer() *NodeSigner {
	return &NodeSigner{privateKey: k.PrivateKey}
}

// NodeSigner signs challenge transcripts with the local node's private
// key. It satisfies the engine's Signer capability.
type NodeSigner struct {
	privateKey ed25519.PrivateKey
}

// Sign returns the Ed25519 signature of message.
func (s *NodeSigner) Sign(message []byte) []byte {
	return ed25519.Sign(s.privateKey, message)
}

// Ed25519Verifier verifies signatures against whatever public key the
// peer presents, with no membership check. Suitable when circuit
// membership is decided later from the resolved identity.
type Ed25519Verifier struct{}

// Verify returns nil if signature is a valid Ed25519 signature of
// message by publicKey.
func (Ed25519Verifier) Verify(publicKey ed25519.PublicKey, message, signature []byte) error {
	if !ed25519.Verify(publicKey, message, signature) {
		return fmt.Errorf("ed25519 signature verification failed")
	}
	return nil
}

// PinnedVerifier verifies signatures and additionally requires the
// presented key to be one of the known peer keys. This is the
// permissioned-network verifier: a valid signature from a key outside
// the directory is still rejected.
type PinnedVerifier struct {
	allowed map[string]bool
}

// NewPinnedVerifier builds a verifier that accepts only the given
// peer public keys.
func NewPinnedVerifier(keys []ed25519.PublicKey) *PinnedVerifier {
	allowed := make(map[string]bool, len(keys))
	for _, key := range keys {
		allowed[string(key)] = true
	}
	return &PinnedVerifier{allowed: allowed}
}

// Verify returns nil if publicKey is a known peer key and signature is
// a valid Ed25519 signature of message by it.
func (v *PinnedVerifier) Verify(publicKey ed25519.PublicKey, message, signature []byte) error {
	if !v.allowed[string(publicKey)] {
		return fmt.Errorf("public key %s is not a known peer", hex.EncodeToString(publicKey))
	}
	if !ed25519.Verify(publicKey, message, signature) {
		return fmt.Errorf("ed25519 signature verification failed")
	}
	return nil
}

// ParsePublicKey decodes a hex-encoded Ed25519 public key, validating
// that it is valid hex of exactly the right length.
func ParsePublicKey(hexString string) (ed25519.PublicKey, error) {
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return nil, fmt.Errorf("hex-decoding public key: %w", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is %d bytes, want %d", len(decoded), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(decoded), nil
}

// FormatPublicKey returns the hex encoding of a public key, the
// canonical format used in config files and logs.
func FormatPublicKey(publicKey ed25519.PublicKey) string {
	return hex.EncodeToString(publicKey)
}
