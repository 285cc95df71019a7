// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// SaveSealed writes the keypair's Ed25519 seed to path, encrypted with
// a passphrase via age's scrypt recipient. Only the 32-byte seed is
// stored; the full private key is re-derived on load. The file is
// created with owner-only permissions.
func SaveSealed(path string, keypair *Keypair, passphrase string) error {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("preparing key encryption: %w", err)
	}

	var sealed bytes.Buffer
	writer, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return fmt.Errorf("creating key encryptor: %w", err)
	}
	if _, err := writer.Write(keypair.PrivateKey.Seed()); err != nil {
		return fmt.Errorf("sealing node key: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing sealed node key: %w", err)
	}

	if err := os.WriteFile(path, sealed.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing sealed key file: %w", err)
	}
	return nil
}

// LoadSealed reads and unseals a node keypair written by [SaveSealed].
// A wrong passphrase surfaces as a decryption error.
func LoadSealed(path string, passphrase string) (*Keypair, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sealed key file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("preparing key decryption: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return nil, fmt.Errorf("unsealing node key: %w", err)
	}
	seed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading unsealed node key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("unsealed node key is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}

	privateKey := ed25519.NewKeyFromSeed(seed)
	return &Keypair{
		PublicKey:  privateKey.Public().(ed25519.PublicKey),
		PrivateKey: privateKey,
	}, nil
}
