// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"

	"github.com/circuit-foundation/circuit/wire"
)

// SendFunc delivers an outbound envelope on the connection. Supplied
// by the transport layer; it may block, so handlers call it only after
// the state machine has released its lock.
type SendFunc func(wire.Message) error

// Peer is the sender context a handler needs: which connection the
// message arrived on, the local role on that connection, and the
// outbound send capability.
type Peer struct {
	ConnectionID ConnectionID
	Role         Role
	Send         SendFunc
}

// MessageContext is one inbound envelope plus its sender context.
type MessageContext struct {
	Peer
	Message wire.Message
}

// HandlerFunc processes one inbound envelope: decode the statically
// bound message type, verify anything that needs verifying, apply
// exactly one action through the state machine, and emit any reply the
// new state requires. Errors are terminal for the connection; the
// caller marks the connection failed and tears it down.
type HandlerFunc func(ctx MessageContext, machine *StateMachine) error

// HandlerSet is the complete dispatch table for one scheme on one
// connection: a static mapping from message type to handler, resolved
// once at scheme-agreement time, plus the scheme's opening move. Built
// by [Handlers].
type HandlerSet struct {
	scheme   Scheme
	handlers map[wire.MessageType]HandlerFunc
	start    func(peer Peer, machine *StateMachine) error
}

// Scheme returns the scheme this handler set implements.
func (h *HandlerSet) Scheme() Scheme { return h.scheme }

// Start performs the scheme's opening move for the given peer (for
// example, the initiator's connect request, or each side's nonce
// request under ChallengeV1). Schemes where a role has no opening move
// make this a no-op for that role.
func (h *HandlerSet) Start(peer Peer, machine *StateMachine) error {
	if h.start == nil {
		return nil
	}
	return h.start(peer, machine)
}

// Dispatch routes one inbound envelope to the handler bound to its
// message type. An envelope for a different scheme or an unknown
// message type is a protocol violation.
func (h *HandlerSet) Dispatch(ctx MessageContext, machine *StateMachine) error {
	if ctx.Message.Scheme != h.scheme.String() {
		return fmt.Errorf("connection %s: %s envelope names scheme %q, negotiated %s",
			ctx.ConnectionID, ctx.Message.Type, ctx.Message.Scheme, h.scheme)
	}
	handler, exists := h.handlers[ctx.Message.Type]
	if !exists {
		return fmt.Errorf("connection %s: no %s handler for message type %s",
			ctx.ConnectionID, h.scheme, ctx.Message.Type)
	}
	return handler(ctx, machine)
}

// Handles reports whether the set has a handler for the message type.
// The transport uses this to distinguish authorization traffic from
// premature application traffic.
func (h *HandlerSet) Handles(messageType wire.MessageType) bool {
	_, exists := h.handlers[messageType]
	return exists
}
