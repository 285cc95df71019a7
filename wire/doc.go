// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the authorization protocol's envelope format.
//
// Every message is a length-framed CBOR envelope: a [MessageType]
// discriminant, the scheme identifier the message belongs to, and a
// scheme-specific payload. [WriteMessage] and [ReadMessage] handle the
// stream framing; the typed payload structs document each message's
// shape. The envelope deliberately stays small and closed — schemes
// extend their own payloads, never the envelope.
package wire
