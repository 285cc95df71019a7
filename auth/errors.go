// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrVerificationFailed reports a ChallengeV1 signature or nonce
// mismatch. The error is deliberately generic: the remote peer must
// not learn which check failed, only that the submission was rejected.
// Terminal for the connection.
var ErrVerificationFailed = errors.New("challenge verification failed")

// ErrUnknownConnection reports an operation on a connection id that
// was never registered or has already been cleared.
var ErrUnknownConnection = errors.New("unknown connection")

// InvalidTransitionError reports an action that does not match the
// expected next action for a connection's current state: a protocol
// violation, a possible replay, or a bug in the peer's implementation.
// The connection's state is left untouched; the caller must tear the
// connection down.
type InvalidTransitionError struct {
	ConnectionID ConnectionID
	Current      State
	Attempted    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("connection %s: state %s does not accept %s",
		e.ConnectionID, e.Current, e.Attempted)
}

// NegotiationError reports that the acceptor supports none of the
// schemes the initiator proposed. Terminal for the connection.
type NegotiationError struct {
	Proposed []string
}

func (e *NegotiationError) Error() string {
	if len(e.Proposed) == 0 {
		return "no mutually supported authorization scheme"
	}
	return fmt.Sprintf("no mutually supported authorization scheme (peer proposed %s)",
		strings.Join(e.Proposed, ", "))
}

// ConfigurationError reports that a scheme's local setup is invalid,
// for example ChallengeV1 without a signing key. It is detected when
// handlers are constructed, before any connection runs the scheme, so
// a misconfigured node fails closed instead of rejecting peers one by
// one.
type ConfigurationError struct {
	Scheme Scheme
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("scheme %s misconfigured: %s", e.Scheme, e.Reason)
}
