// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/circuit-foundation/circuit/lib/codec"
)

// MessageType is the envelope discriminant. The dispatch layer routes
// an inbound envelope to the handler registered for its type; each
// type maps to exactly one handler per negotiated scheme.
type MessageType byte

// Negotiation message types (no scheme is active yet, the envelope's
// Scheme field is empty).
const (
	// MessageTypeProposeScheme opens negotiation. Initiator → acceptor.
	// Payload: [ProposeSchemePayload].
	MessageTypeProposeScheme MessageType = 0x01

	// MessageTypeAcceptScheme concludes negotiation. Acceptor →
	// initiator. Payload: [AcceptSchemePayload].
	MessageTypeAcceptScheme MessageType = 0x02

	// MessageTypeReject is a terminal rejection, sent for negotiation
	// failure or any authorization failure. The payload reason is
	// deliberately generic — it never distinguishes a bad signature
	// from a stale nonce. Payload: [RejectPayload].
	MessageTypeReject MessageType = 0x03
)

// Trust scheme message types.
const (
	// MessageTypeTrustAssert carries an unverified claimed node id.
	// Sent by both sides; the receiver accepts it unconditionally.
	// Payload: [TrustAssertPayload].
	MessageTypeTrustAssert MessageType = 0x10
)

// TrustV0 (legacy) scheme message types.
const (
	// MessageTypeConnectRequest declares the initiator's node id.
	// Initiator → acceptor. Payload: [ConnectRequestPayload].
	MessageTypeConnectRequest MessageType = 0x20

	// MessageTypeConnectResponse declares the acceptor's node id in
	// reply. Acceptor → initiator. Payload: [ConnectResponsePayload].
	MessageTypeConnectResponse MessageType = 0x21

	// MessageTypeTrustConfirm finalizes the exchange. Initiator →
	// acceptor. Payload: [TrustConfirmPayload].
	MessageTypeTrustConfirm MessageType = 0x22
)

// ChallengeV1 scheme message types. One nonce/submit exchange proves
// the identity of the side that sent the NonceRequest; a connection
// carries two such exchanges, one per direction.
const (
	// MessageTypeNonceRequest asks the receiver to issue a challenge
	// nonce. Prover → verifier. Payload: [NonceRequestPayload].
	MessageTypeNonceRequest MessageType = 0x30

	// MessageTypeNonceResponse carries the freshly issued nonce.
	// Verifier → prover. Payload: [NonceResponsePayload].
	MessageTypeNonceResponse MessageType = 0x31

	// MessageTypeSubmitRequest carries the prover's public key and its
	// signature over the challenge transcript. Prover → verifier.
	// Payload: [SubmitRequestPayload].
	MessageTypeSubmitRequest MessageType = 0x32

	// MessageTypeSubmitResponse confirms a verified submission.
	// Verifier → prover. Payload: [SubmitResponsePayload].
	MessageTypeSubmitResponse MessageType = 0x33
)

// String returns the message type name used in logs and errors.
func (t MessageType) String() string {
	switch t {
	case MessageTypeProposeScheme:
		return "propose-scheme"
	case MessageTypeAcceptScheme:
		return "accept-scheme"
	case MessageTypeReject:
		return "reject"
	case MessageTypeTrustAssert:
		return "trust-assert"
	case MessageTypeConnectRequest:
		return "connect-request"
	case MessageTypeConnectResponse:
		return "connect-response"
	case MessageTypeTrustConfirm:
		return "trust-confirm"
	case MessageTypeNonceRequest:
		return "nonce-request"
	case MessageTypeNonceResponse:
		return "nonce-response"
	case MessageTypeSubmitRequest:
		return "submit-request"
	case MessageTypeSubmitResponse:
		return "submit-response"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Message is a single authorization protocol envelope: the type
// discriminant, the scheme identifier (empty during negotiation), and
// the scheme-specific payload as raw CBOR.
type Message struct {
	Type    MessageType     `cbor:"type"`
	Scheme  string          `cbor:"scheme,omitempty"`
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// NewMessage builds an envelope by CBOR-encoding the given payload.
func NewMessage(messageType MessageType, scheme string, payload any) (Message, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s payload: %w", messageType, err)
	}
	return Message{Type: messageType, Scheme: scheme, Payload: encoded}, nil
}

// DecodePayload decodes the envelope payload into v.
func (m Message) DecodePayload(v any) error {
	if err := codec.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", m.Type, err)
	}
	return nil
}

// headerLength is the fixed frame header: 4 bytes big-endian envelope
// length.
const headerLength = 4

// maxEnvelopeLength bounds a single frame. Authorization envelopes are
// a few hundred bytes at most; anything larger is a protocol violation
// or an attempt to exhaust memory before authorization completes.
const maxEnvelopeLength = 64 * 1024

// WriteMessage writes a framed envelope to w: a 4-byte big-endian
// length followed by the CBOR-encoded envelope.
func WriteMessage(w io.Writer, message Message) error {
	body, err := codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", message.Type, err)
	}
	if len(body) > maxEnvelopeLength {
		return fmt.Errorf("%s envelope is %d bytes, limit %d", message.Type, len(body), maxEnvelopeLength)
	}
	var header [headerLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// ReadMessage reads one framed envelope from r. Returns an error if
// the stream is malformed or the frame exceeds maxEnvelopeLength.
func ReadMessage(r io.Reader) (Message, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, fmt.Errorf("reading frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxEnvelopeLength {
		return Message{}, fmt.Errorf("frame length %d exceeds limit %d", length, maxEnvelopeLength)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("reading frame body: %w", err)
	}
	var message Message
	if err := codec.Unmarshal(body, &message); err != nil {
		return Message{}, fmt.Errorf("decoding envelope: %w", err)
	}
	return message, nil
}
