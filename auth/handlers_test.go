// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"testing"

	"github.com/circuit-foundation/circuit/lib/testutil"
	"github.com/circuit-foundation/circuit/wire"
)

// endpoint is one side of an in-memory handshake: its own state
// machine, its handler set, and an outbox collecting everything the
// handlers send.
type endpoint struct {
	machine  *StateMachine
	handlers *HandlerSet
	peer     Peer
	outbox   []wire.Message
}

func newEndpoint(t *testing.T, role Role, scheme Scheme, config SchemeConfig) *endpoint {
	t.Helper()
	machine := NewStateMachine()
	id := ConnectionID(testutil.UniqueID("conn"))
	machine.Register(id, role)
	if err := machine.SetScheme(id, scheme); err != nil {
		t.Fatalf("SetScheme: %v", err)
	}
	handlers, err := Handlers(scheme, config)
	if err != nil {
		t.Fatalf("Handlers(%s): %v", scheme, err)
	}
	e := &endpoint{machine: machine, handlers: handlers}
	e.peer = Peer{
		ConnectionID: id,
		Role:         role,
		Send: func(message wire.Message) error {
			e.outbox = append(e.outbox, message)
			return nil
		},
	}
	return e
}

func (e *endpoint) start(t *testing.T) {
	t.Helper()
	if err := e.handlers.Start(e.peer, e.machine); err != nil {
		t.Fatalf("Start(%s): %v", e.peer.Role, err)
	}
}

func (e *endpoint) deliver(message wire.Message) error {
	return e.handlers.Dispatch(MessageContext{Peer: e.peer, Message: message}, e.machine)
}

// pump exchanges queued messages between the two endpoints until both
// outboxes drain. Any handler error fails the test.
func pump(t *testing.T, a, b *endpoint) {
	t.Helper()
	for len(a.outbox) > 0 || len(b.outbox) > 0 {
		if len(a.outbox) > 0 {
			message := a.outbox[0]
			a.outbox = a.outbox[1:]
			if err := b.deliver(message); err != nil {
				t.Fatalf("delivering %s to %s: %v", message.Type, b.peer.Role, err)
			}
		}
		if len(b.outbox) > 0 {
			message := b.outbox[0]
			b.outbox = b.outbox[1:]
			if err := a.deliver(message); err != nil {
				t.Fatalf("delivering %s to %s: %v", message.Type, a.peer.Role, err)
			}
		}
	}
}

func requireIdentity(t *testing.T, e *endpoint, want Identity) {
	t.Helper()
	identity, ok := e.machine.Identity(e.peer.ConnectionID)
	if !ok {
		t.Fatalf("%s: connection not authorized", e.peer.Role)
	}
	if !identity.Equal(want) {
		t.Fatalf("%s: identity = %s, want %s", e.peer.Role, identity, want)
	}
}
