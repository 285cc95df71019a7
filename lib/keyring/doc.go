// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyring manages a node's Ed25519 identity key and provides
// the signer/verifier capability the authorization engine delegates
// to.
//
// The private key lives on disk only in sealed form: the raw seed
// encrypted with a passphrase via age's scrypt recipient. Verifiers
// come in two flavors: [Ed25519Verifier] checks only the signature,
// [PinnedVerifier] additionally enforces membership in the local peer
// directory, which is what a permissioned network wants.
package keyring
