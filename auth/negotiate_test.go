// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"testing"

	"github.com/circuit-foundation/circuit/wire"
)

func TestNegotiator_Agreement(t *testing.T) {
	initiator, err := NewNegotiator(RoleInitiator, []Scheme{SchemeChallengeV1, SchemeTrust})
	if err != nil {
		t.Fatalf("NewNegotiator: %v", err)
	}
	acceptor, err := NewNegotiator(RoleAcceptor, []Scheme{SchemeTrust, SchemeChallengeV1})
	if err != nil {
		t.Fatalf("NewNegotiator: %v", err)
	}

	proposal, err := initiator.Propose()
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if initiator.State() != NegotiationProposed {
		t.Fatalf("initiator state = %s, want scheme-proposed", initiator.State())
	}

	accept, err := acceptor.HandleProposal(proposal)
	if err != nil {
		t.Fatalf("HandleProposal: %v", err)
	}
	if err := initiator.HandleAccept(accept); err != nil {
		t.Fatalf("HandleAccept: %v", err)
	}

	// The acceptor's preference order decides: trust comes first for it.
	wantScheme := SchemeTrust
	for _, n := range []*Negotiator{initiator, acceptor} {
		agreed, ok := n.Agreed()
		if !ok || agreed != wantScheme {
			t.Fatalf("agreed = %s (ok %v), want %s", agreed, ok, wantScheme)
		}
	}
}

func TestNegotiator_NoCommonScheme(t *testing.T) {
	initiator, _ := NewNegotiator(RoleInitiator, []Scheme{SchemeTrust})
	acceptor, _ := NewNegotiator(RoleAcceptor, []Scheme{SchemeChallengeV1})

	proposal, err := initiator.Propose()
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	_, err = acceptor.HandleProposal(proposal)
	var negotiationErr *NegotiationError
	if !errors.As(err, &negotiationErr) {
		t.Fatalf("HandleProposal = %v, want NegotiationError", err)
	}
	if acceptor.State() != NegotiationFailed {
		t.Fatalf("acceptor state = %s, want failed", acceptor.State())
	}
	if _, ok := acceptor.Agreed(); ok {
		t.Fatal("failed negotiation still reports an agreed scheme")
	}
}

func TestNegotiator_Version0RestrictsToTrustV0(t *testing.T) {
	acceptor, _ := NewNegotiator(RoleAcceptor, []Scheme{SchemeChallengeV1, SchemeTrustV0})

	// A version 0 peer proposes everything, but only trust-v0 counts.
	proposal, err := wire.NewMessage(wire.MessageTypeProposeScheme, "", wire.ProposeSchemePayload{
		Version: 0,
		Schemes: []string{"challenge-v1", "trust-v0"},
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	accept, err := acceptor.HandleProposal(proposal)
	if err != nil {
		t.Fatalf("HandleProposal: %v", err)
	}
	agreed, _ := acceptor.Agreed()
	if agreed != SchemeTrustV0 {
		t.Fatalf("agreed = %s, want trust-v0 for a version 0 peer", agreed)
	}

	var payload wire.AcceptSchemePayload
	if err := accept.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.Scheme != "trust-v0" {
		t.Fatalf("accepted scheme on the wire = %q, want trust-v0", payload.Scheme)
	}
}

func TestNegotiator_UnknownSchemesSkipped(t *testing.T) {
	acceptor, _ := NewNegotiator(RoleAcceptor, []Scheme{SchemeTrust})

	proposal, err := wire.NewMessage(wire.MessageTypeProposeScheme, "", wire.ProposeSchemePayload{
		Version: wire.ProtocolVersion,
		Schemes: []string{"quantum-v9", "trust"},
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if _, err := acceptor.HandleProposal(proposal); err != nil {
		t.Fatalf("HandleProposal: %v", err)
	}
	agreed, _ := acceptor.Agreed()
	if agreed != SchemeTrust {
		t.Fatalf("agreed = %s, want trust", agreed)
	}
}

func TestNegotiator_NewerVersionRejected(t *testing.T) {
	acceptor, _ := NewNegotiator(RoleAcceptor, []Scheme{SchemeTrust})

	proposal, err := wire.NewMessage(wire.MessageTypeProposeScheme, "", wire.ProposeSchemePayload{
		Version: wire.ProtocolVersion + 1,
		Schemes: []string{"trust"},
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if _, err := acceptor.HandleProposal(proposal); err == nil {
		t.Fatal("proposal from a newer protocol version accepted, want error")
	}
	if acceptor.State() != NegotiationFailed {
		t.Fatalf("acceptor state = %s, want failed", acceptor.State())
	}
}

func TestNegotiator_AcceptedSchemeMustBeProposed(t *testing.T) {
	initiator, _ := NewNegotiator(RoleInitiator, []Scheme{SchemeTrust})
	if _, err := initiator.Propose(); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	accept, err := wire.NewMessage(wire.MessageTypeAcceptScheme, "", wire.AcceptSchemePayload{
		Version: wire.ProtocolVersion,
		Scheme:  "challenge-v1",
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := initiator.HandleAccept(accept); err == nil {
		t.Fatal("acceptance of a never-proposed scheme succeeded, want error")
	}
	if initiator.State() != NegotiationFailed {
		t.Fatalf("initiator state = %s, want failed", initiator.State())
	}
}

func TestNegotiator_RoleAndStateGuards(t *testing.T) {
	acceptor, _ := NewNegotiator(RoleAcceptor, []Scheme{SchemeTrust})
	if _, err := acceptor.Propose(); err == nil {
		t.Fatal("acceptor Propose succeeded, want error")
	}

	initiator, _ := NewNegotiator(RoleInitiator, []Scheme{SchemeTrust})
	accept, err := wire.NewMessage(wire.MessageTypeAcceptScheme, "", wire.AcceptSchemePayload{
		Version: wire.ProtocolVersion,
		Scheme:  "trust",
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	// Acceptance before anything was proposed.
	if err := initiator.HandleAccept(accept); err == nil {
		t.Fatal("HandleAccept before Propose succeeded, want error")
	}
}

func TestNewNegotiator_EmptySchemes(t *testing.T) {
	_, err := NewNegotiator(RoleInitiator, nil)
	var configErr *ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("NewNegotiator(nil) = %v, want ConfigurationError", err)
	}
}
