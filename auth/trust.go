// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"

	"github.com/circuit-foundation/circuit/wire"
)

// newTrustHandlers builds the Trust scheme's handler set. Trust is a
// single round: each side asserts its claimed node id and the receiver
// accepts it unconditionally. No verification of any kind — this
// scheme is only for closed networks where every transport-reachable
// peer is already trusted.
func newTrustHandlers(config SchemeConfig) (*HandlerSet, error) {
	if config.Local.NodeID == "" {
		return nil, &ConfigurationError{Scheme: SchemeTrust, Reason: "local node id is not set"}
	}

	localNodeID := config.Local.NodeID

	return &HandlerSet{
		scheme: SchemeTrust,
		start: func(peer Peer, machine *StateMachine) error {
			// Both sides open by asserting their own id; the machine
			// only advances on the receive side.
			assert, err := wire.NewMessage(wire.MessageTypeTrustAssert, schemeNameTrust,
				wire.TrustAssertPayload{NodeID: localNodeID})
			if err != nil {
				return err
			}
			return peer.Send(assert)
		},
		handlers: map[wire.MessageType]HandlerFunc{
			wire.MessageTypeTrustAssert: handleTrustAssert,
		},
	}, nil
}

// handleTrustAssert applies the Trust scheme's only transition.
func handleTrustAssert(ctx MessageContext, machine *StateMachine) error {
	var payload wire.TrustAssertPayload
	if err := ctx.Message.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.NodeID == "" {
		return fmt.Errorf("connection %s: trust assert with empty node id", ctx.ConnectionID)
	}
	_, err := machine.NextState(ctx.ConnectionID, ctx.Role, TrustReceiveAssert{NodeID: payload.NodeID})
	return err
}
