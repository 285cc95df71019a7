// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"

	"github.com/circuit-foundation/circuit/wire"
)

// NegotiationState tracks the pre-handler scheme selection stage.
type NegotiationState int

const (
	// NegotiationStart: nothing exchanged yet.
	NegotiationStart NegotiationState = iota

	// NegotiationProposed: the initiator's proposal is in flight.
	NegotiationProposed

	// NegotiationAgreed: both sides settled on one scheme; the
	// scheme's handlers may now be installed.
	NegotiationAgreed

	// NegotiationFailed is terminal: no common scheme or a malformed
	// exchange.
	NegotiationFailed
)

// String returns the negotiation state name.
func (s NegotiationState) String() string {
	switch s {
	case NegotiationStart:
		return "start"
	case NegotiationProposed:
		return "scheme-proposed"
	case NegotiationAgreed:
		return "scheme-agreed"
	case NegotiationFailed:
		return "failed"
	default:
		return fmt.Sprintf("negotiation(%d)", int(s))
	}
}

// Negotiator runs the version/scheme selection exchange for one
// connection. It is owned by the connection's session goroutine and is
// not safe for concurrent use — unlike the state machine, negotiation
// has no cross-handler sharing to serve.
//
// The initiator calls [Negotiator.Propose] and feeds the reply to
// [Negotiator.HandleAccept]; the acceptor feeds the proposal to
// [Negotiator.HandleProposal]. Disagreement is terminal.
type Negotiator struct {
	role      Role
	supported []Scheme
	state     NegotiationState
	agreed    Scheme
	proposed  []Scheme
}

// NewNegotiator creates a negotiator for one connection. supported is
// this node's scheme preference order; it must not be empty.
func NewNegotiator(role Role, supported []Scheme) (*Negotiator, error) {
	if len(supported) == 0 {
		return nil, &ConfigurationError{Scheme: SchemeNone, Reason: "no authorization schemes enabled"}
	}
	return &Negotiator{
		role:      role,
		supported: append([]Scheme(nil), supported...),
		state:     NegotiationStart,
	}, nil
}

// State returns the current negotiation state.
func (n *Negotiator) State() NegotiationState { return n.state }

// Agreed returns the selected scheme once negotiation succeeded.
func (n *Negotiator) Agreed() (Scheme, bool) {
	if n.state != NegotiationAgreed {
		return SchemeNone, false
	}
	return n.agreed, true
}

// Propose builds the initiator's opening proposal listing this node's
// supported schemes in preference order.
func (n *Negotiator) Propose() (wire.Message, error) {
	if n.role != RoleInitiator || n.state != NegotiationStart {
		return wire.Message{}, fmt.Errorf("negotiation in state %s cannot propose", n.state)
	}
	names := make([]string, len(n.supported))
	for i, scheme := range n.supported {
		names[i] = scheme.String()
	}
	message, err := wire.NewMessage(wire.MessageTypeProposeScheme, "", wire.ProposeSchemePayload{
		Version: wire.ProtocolVersion,
		Schemes: names,
	})
	if err != nil {
		return wire.Message{}, err
	}
	n.proposed = append([]Scheme(nil), n.supported...)
	n.state = NegotiationProposed
	return message, nil
}

// HandleProposal processes the initiator's proposal on the acceptor
// side. It selects the first scheme in the local preference order that
// the peer also proposed and returns the acceptance message. Version 0
// peers only speak TrustV0, so for them every other scheme is ignored.
// If nothing matches, negotiation fails terminally with a
// [NegotiationError].
func (n *Negotiator) HandleProposal(message wire.Message) (wire.Message, error) {
	if n.role != RoleAcceptor || n.state != NegotiationStart {
		current := n.state
		n.state = NegotiationFailed
		return wire.Message{}, fmt.Errorf("negotiation in state %s cannot handle a proposal", current)
	}
	if message.Type != wire.MessageTypeProposeScheme {
		n.state = NegotiationFailed
		return wire.Message{}, fmt.Errorf("expected %s, got %s", wire.MessageTypeProposeScheme, message.Type)
	}
	var payload wire.ProposeSchemePayload
	if err := message.DecodePayload(&payload); err != nil {
		n.state = NegotiationFailed
		return wire.Message{}, err
	}
	if payload.Version > wire.ProtocolVersion {
		n.state = NegotiationFailed
		return wire.Message{}, fmt.Errorf("peer protocol version %d is newer than supported version %d",
			payload.Version, wire.ProtocolVersion)
	}

	remote := make(map[Scheme]bool, len(payload.Schemes))
	for _, name := range payload.Schemes {
		scheme, err := ParseScheme(name)
		if err != nil {
			// Unknown names are skipped, not fatal: a newer peer may
			// propose schemes this node predates.
			continue
		}
		remote[scheme] = true
	}

	for _, scheme := range n.supported {
		if !remote[scheme] {
			continue
		}
		if payload.Version == 0 && scheme != SchemeTrustV0 {
			continue
		}
		accept, err := wire.NewMessage(wire.MessageTypeAcceptScheme, "", wire.AcceptSchemePayload{
			Version: wire.ProtocolVersion,
			Scheme:  scheme.String(),
		})
		if err != nil {
			n.state = NegotiationFailed
			return wire.Message{}, err
		}
		n.agreed = scheme
		n.state = NegotiationAgreed
		return accept, nil
	}

	n.state = NegotiationFailed
	return wire.Message{}, &NegotiationError{Proposed: payload.Schemes}
}

// HandleAccept processes the acceptor's selection on the initiator
// side. The selected scheme must be one this node actually proposed;
// anything else is a protocol violation and terminal.
func (n *Negotiator) HandleAccept(message wire.Message) error {
	if n.role != RoleInitiator || n.state != NegotiationProposed {
		current := n.state
		n.state = NegotiationFailed
		return fmt.Errorf("negotiation in state %s cannot handle an acceptance", current)
	}
	if message.Type != wire.MessageTypeAcceptScheme {
		n.state = NegotiationFailed
		return fmt.Errorf("expected %s, got %s", wire.MessageTypeAcceptScheme, message.Type)
	}
	var payload wire.AcceptSchemePayload
	if err := message.DecodePayload(&payload); err != nil {
		n.state = NegotiationFailed
		return err
	}
	scheme, err := ParseScheme(payload.Scheme)
	if err != nil {
		n.state = NegotiationFailed
		return err
	}
	for _, proposed := range n.proposed {
		if proposed == scheme {
			n.agreed = scheme
			n.state = NegotiationAgreed
			return nil
		}
	}
	n.state = NegotiationFailed
	return fmt.Errorf("peer accepted scheme %s that was never proposed", scheme)
}
