// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/circuit-foundation/circuit/wire"
)

// NonceSize is the size of the random challenge nonce in bytes.
const NonceSize = 32

// challengeDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// challenge transcripts. Domain separation ensures a signature over a
// transcript can never be confused with a signature over anything
// else a node signs. The bytes are the ASCII domain name, zero-padded;
// changing them breaks compatibility with every existing peer.
var challengeDomainKey = [32]byte{
	'c', 'i', 'r', 'c', 'u', 'i', 't', '.', 'a', 'u', 't', 'h', '.',
	'c', 'h', 'a', 'l', 'l', 'e', 'n', 'g', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ChallengeTranscript computes the message a prover signs: the keyed
// BLAKE3 digest of the challenge nonce and the prover's public key.
// Binding the key into the transcript means a captured signature
// cannot be resubmitted under a different key, and the nonce binds it
// to one exchange instance.
func ChallengeTranscript(nonce []byte, publicKey ed25519.PublicKey) []byte {
	hasher, err := blake3.NewKeyed(challengeDomainKey[:])
	if err != nil {
		// NewKeyed only fails for a wrong key length, which the fixed
		// array rules out.
		panic("auth: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(nonce)
	hasher.Write(publicKey)
	return hasher.Sum(nil)
}

// NewNonce returns a fresh random challenge nonce.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating challenge nonce: %w", err)
	}
	return nonce, nil
}

// newChallengeHandlers builds the ChallengeV1 handler set. The scheme
// runs one nonce/submit exchange per direction: each side opens its
// own proving ladder with a nonce request and answers the peer's
// ladder as verifier. The two ladders advance independently; the
// connection is authorized the moment the local verifier ladder
// validates the peer's submission.
func newChallengeHandlers(config SchemeConfig) (*HandlerSet, error) {
	if config.Signer == nil {
		return nil, &ConfigurationError{Scheme: SchemeChallengeV1, Reason: "no signer configured"}
	}
	if config.Verifier == nil {
		return nil, &ConfigurationError{Scheme: SchemeChallengeV1, Reason: "no verifier configured"}
	}
	if len(config.Local.PublicKey) != ed25519.PublicKeySize {
		return nil, &ConfigurationError{Scheme: SchemeChallengeV1, Reason: "local public key missing or wrong size"}
	}

	return &HandlerSet{
		scheme: SchemeChallengeV1,
		start: func(peer Peer, machine *StateMachine) error {
			// Open the local proving ladder. Both roles do this; the
			// two directions of verification are independent.
			if _, err := machine.NextState(peer.ConnectionID, peer.Role,
				ChallengeSendNonceRequest{}); err != nil {
				return err
			}
			request, err := wire.NewMessage(wire.MessageTypeNonceRequest, schemeNameChallengeV1,
				wire.NonceRequestPayload{})
			if err != nil {
				return err
			}
			return peer.Send(request)
		},
		handlers: map[wire.MessageType]HandlerFunc{
			wire.MessageTypeNonceRequest:   handleNonceRequest,
			wire.MessageTypeNonceResponse:  makeHandleNonceResponse(config),
			wire.MessageTypeSubmitRequest:  makeHandleSubmitRequest(config),
			wire.MessageTypeSubmitResponse: handleSubmitResponse,
		},
	}, nil
}

// handleNonceRequest runs on the verifier side: the peer asked to be
// challenged, so issue a fresh nonce for its proving ladder.
func handleNonceRequest(ctx MessageContext, machine *StateMachine) error {
	prover := ctx.Role.Opposite()
	if _, err := machine.NextState(ctx.ConnectionID, prover, ChallengeReceiveNonceRequest{}); err != nil {
		return err
	}
	nonce, err := NewNonce()
	if err != nil {
		return err
	}
	if _, err := machine.NextState(ctx.ConnectionID, prover,
		ChallengeSendNonceResponse{Nonce: nonce}); err != nil {
		return err
	}
	response, err := wire.NewMessage(wire.MessageTypeNonceResponse, schemeNameChallengeV1,
		wire.NonceResponsePayload{Nonce: nonce})
	if err != nil {
		return err
	}
	return ctx.Send(response)
}

// makeHandleNonceResponse runs on the prover side: the peer issued our
// challenge, so sign the transcript and submit.
func makeHandleNonceResponse(config SchemeConfig) HandlerFunc {
	return func(ctx MessageContext, machine *StateMachine) error {
		var payload wire.NonceResponsePayload
		if err := ctx.Message.DecodePayload(&payload); err != nil {
			return err
		}
		if len(payload.Nonce) != NonceSize {
			return fmt.Errorf("connection %s: challenge nonce is %d bytes, want %d",
				ctx.ConnectionID, len(payload.Nonce), NonceSize)
		}
		if _, err := machine.NextState(ctx.ConnectionID, ctx.Role,
			ChallengeReceiveNonceResponse{Nonce: payload.Nonce}); err != nil {
			return err
		}
		signature := config.Signer.Sign(ChallengeTranscript(payload.Nonce, config.Local.PublicKey))
		if _, err := machine.NextState(ctx.ConnectionID, ctx.Role, ChallengeSendSubmitRequest{}); err != nil {
			return err
		}
		submit, err := wire.NewMessage(wire.MessageTypeSubmitRequest, schemeNameChallengeV1,
			wire.SubmitRequestPayload{
				PublicKey: config.Local.PublicKey,
				Nonce:     payload.Nonce,
				Signature: signature,
			})
		if err != nil {
			return err
		}
		return ctx.Send(submit)
	}
}

// makeHandleSubmitRequest runs on the verifier side: check the
// submission against the most recently issued nonce and the presented
// key, then — and only then — drive the state machine. A failed check
// surfaces as the generic [ErrVerificationFailed] so the peer learns
// nothing about which part was wrong.
func makeHandleSubmitRequest(config SchemeConfig) HandlerFunc {
	return func(ctx MessageContext, machine *StateMachine) error {
		var payload wire.SubmitRequestPayload
		if err := ctx.Message.DecodePayload(&payload); err != nil {
			return err
		}
		if len(payload.PublicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("connection %s: %w", ctx.ConnectionID, ErrVerificationFailed)
		}

		prover := ctx.Role.Opposite()
		issued, ok := machine.IssuedNonce(ctx.ConnectionID, prover)
		if !ok {
			return fmt.Errorf("connection %s: %w", ctx.ConnectionID, ErrVerificationFailed)
		}
		if subtle.ConstantTimeCompare(issued, payload.Nonce) != 1 {
			return fmt.Errorf("connection %s: %w", ctx.ConnectionID, ErrVerificationFailed)
		}

		publicKey := ed25519.PublicKey(payload.PublicKey)
		transcript := ChallengeTranscript(issued, publicKey)
		if err := config.Verifier.Verify(publicKey, transcript, payload.Signature); err != nil {
			return fmt.Errorf("connection %s: %w", ctx.ConnectionID, ErrVerificationFailed)
		}

		if _, err := machine.NextState(ctx.ConnectionID, prover,
			ChallengeReceiveSubmitRequest{Identity: ChallengeIdentity(publicKey)}); err != nil {
			return err
		}
		if _, err := machine.NextState(ctx.ConnectionID, prover, ChallengeSendSubmitResponse{}); err != nil {
			return err
		}
		response, err := wire.NewMessage(wire.MessageTypeSubmitResponse, schemeNameChallengeV1,
			wire.SubmitResponsePayload{PublicKey: payload.PublicKey})
		if err != nil {
			return err
		}
		return ctx.Send(response)
	}
}

// handleSubmitResponse closes the local proving ladder with the peer's
// confirmation.
func handleSubmitResponse(ctx MessageContext, machine *StateMachine) error {
	var payload wire.SubmitResponsePayload
	if err := ctx.Message.DecodePayload(&payload); err != nil {
		return err
	}
	_, err := machine.NextState(ctx.ConnectionID, ctx.Role,
		ChallengeReceiveSubmitResponse{PublicKey: ed25519.PublicKey(payload.PublicKey)})
	return err
}
