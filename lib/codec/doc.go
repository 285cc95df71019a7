// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Circuit's standard CBOR encoding.
//
// All wire payloads use CBOR with Core Deterministic Encoding so that
// the same logical value always produces identical bytes on every
// node. Consumers import this package instead of fxamacker/cbor
// directly, keeping the encoder configuration in one place.
package codec
