// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import "fmt"

// Phase is the connection-level authorization outcome: the only thing
// the outer system needs in order to decide whether traffic may flow.
type Phase int

const (
	// PhaseUnauthorized is the initial phase and remains until a
	// scheme's full action sequence completes. No application traffic
	// is permitted.
	PhaseUnauthorized Phase = iota

	// PhaseAuthorized is terminal success: a verified identity is
	// recorded and immutable for the connection's remaining lifetime.
	PhaseAuthorized

	// PhaseFailed is terminal failure. The connection must be torn
	// down by the transport layer; the engine never retries.
	PhaseFailed
)

// String returns the phase name used in logs and errors.
func (p Phase) String() string {
	switch p {
	case PhaseUnauthorized:
		return "unauthorized"
	case PhaseAuthorized:
		return "authorized"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Step is a ladder's progress marker within a scheme. Each scheme uses
// the subset of steps that matches its sequence; steps never repeat
// within a ladder, which is what makes replays detectable.
type Step int

const (
	// StepStart is every ladder's initial step.
	StepStart Step = iota

	// StepConnectPending: TrustV0, connect request sent (initiator) or
	// received (acceptor).
	StepConnectPending

	// StepTrustPending: TrustV0, connect response exchanged; awaiting
	// the trust confirmation.
	StepTrustPending

	// StepNonceRequested: ChallengeV1, nonce request sent by the
	// prover or received by the verifier.
	StepNonceRequested

	// StepNonceExchanged: ChallengeV1, the nonce for this exchange
	// instance has been issued and delivered.
	StepNonceExchanged

	// StepSubmitPending: ChallengeV1, the signed submission is in
	// flight (prover) or verified (verifier); awaiting the closing
	// response.
	StepSubmitPending

	// StepComplete is the terminal step of a finished ladder.
	StepComplete
)

// String returns the step name used in logs and errors.
func (s Step) String() string {
	switch s {
	case StepStart:
		return "start"
	case StepConnectPending:
		return "connect-pending"
	case StepTrustPending:
		return "trust-pending"
	case StepNonceRequested:
		return "nonce-requested"
	case StepNonceExchanged:
		return "nonce-exchanged"
	case StepSubmitPending:
		return "submit-pending"
	case StepComplete:
		return "complete"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// State is the observable authorization state returned by
// [StateMachine.NextState]: the connection-level phase, the pinned
// scheme, and the acted-on ladder's step.
type State struct {
	Phase  Phase
	Scheme Scheme
	Step   Step
}

// String renders the state for logs and transition errors.
func (s State) String() string {
	return fmt.Sprintf("%s/%s/%s", s.Phase, s.Scheme, s.Step)
}
