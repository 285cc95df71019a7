// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"

	"github.com/circuit-foundation/circuit/wire"
)

// newTrustV0Handlers builds the legacy TrustV0 handler set. The
// sequence is asymmetric: the initiator declares its id, the acceptor
// answers with its own, and the initiator's confirmation is what lets
// the acceptor finally trust the declared id. Three states per side
// (connect-pending, trust-pending, authorized). Kept only for protocol
// version 0 peers.
func newTrustV0Handlers(config SchemeConfig) (*HandlerSet, error) {
	if config.Local.NodeID == "" {
		return nil, &ConfigurationError{Scheme: SchemeTrustV0, Reason: "local node id is not set"}
	}

	localNodeID := config.Local.NodeID

	return &HandlerSet{
		scheme: SchemeTrustV0,
		start: func(peer Peer, machine *StateMachine) error {
			// Only the initiator has an opening move.
			if peer.Role != RoleInitiator {
				return nil
			}
			if _, err := machine.NextState(peer.ConnectionID, peer.Role,
				TrustV0SendConnectRequest{NodeID: localNodeID}); err != nil {
				return err
			}
			request, err := wire.NewMessage(wire.MessageTypeConnectRequest, schemeNameTrustV0,
				wire.ConnectRequestPayload{NodeID: localNodeID})
			if err != nil {
				return err
			}
			return peer.Send(request)
		},
		handlers: map[wire.MessageType]HandlerFunc{
			wire.MessageTypeConnectRequest:  makeHandleConnectRequest(localNodeID),
			wire.MessageTypeConnectResponse: handleConnectResponse,
			wire.MessageTypeTrustConfirm:    handleTrustConfirm,
		},
	}, nil
}

// makeHandleConnectRequest handles the initiator's declared id on the
// acceptor and answers with the local id.
func makeHandleConnectRequest(localNodeID string) HandlerFunc {
	return func(ctx MessageContext, machine *StateMachine) error {
		var payload wire.ConnectRequestPayload
		if err := ctx.Message.DecodePayload(&payload); err != nil {
			return err
		}
		if payload.NodeID == "" {
			return fmt.Errorf("connection %s: connect request with empty node id", ctx.ConnectionID)
		}
		if _, err := machine.NextState(ctx.ConnectionID, ctx.Role,
			TrustV0ReceiveConnectRequest{NodeID: payload.NodeID}); err != nil {
			return err
		}
		if _, err := machine.NextState(ctx.ConnectionID, ctx.Role,
			TrustV0SendConnectResponse{NodeID: localNodeID}); err != nil {
			return err
		}
		response, err := wire.NewMessage(wire.MessageTypeConnectResponse, schemeNameTrustV0,
			wire.ConnectResponsePayload{NodeID: localNodeID})
		if err != nil {
			return err
		}
		return ctx.Send(response)
	}
}

// handleConnectResponse handles the acceptor's declared id on the
// initiator and closes the exchange with a trust confirmation. The
// confirm transition is the one that authorizes the connection on the
// initiator side.
func handleConnectResponse(ctx MessageContext, machine *StateMachine) error {
	var payload wire.ConnectResponsePayload
	if err := ctx.Message.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.NodeID == "" {
		return fmt.Errorf("connection %s: connect response with empty node id", ctx.ConnectionID)
	}
	if _, err := machine.NextState(ctx.ConnectionID, ctx.Role,
		TrustV0ReceiveConnectResponse{NodeID: payload.NodeID}); err != nil {
		return err
	}
	if _, err := machine.NextState(ctx.ConnectionID, ctx.Role, TrustV0SendTrustConfirm{}); err != nil {
		return err
	}
	confirm, err := wire.NewMessage(wire.MessageTypeTrustConfirm, schemeNameTrustV0,
		wire.TrustConfirmPayload{})
	if err != nil {
		return err
	}
	return ctx.Send(confirm)
}

// handleTrustConfirm authorizes the connection on the acceptor side
// with the id declared back in the connect request.
func handleTrustConfirm(ctx MessageContext, machine *StateMachine) error {
	_, err := machine.NextState(ctx.ConnectionID, ctx.Role, TrustV0ReceiveTrustConfirm{})
	return err
}
