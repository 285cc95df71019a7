// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/circuit-foundation/circuit/lib/testutil"
)

func registerConnection(t *testing.T, machine *StateMachine, role Role, scheme Scheme) ConnectionID {
	t.Helper()
	id := ConnectionID(testutil.UniqueID("conn"))
	machine.Register(id, role)
	if err := machine.SetScheme(id, scheme); err != nil {
		t.Fatalf("SetScheme: %v", err)
	}
	return id
}

func apply(t *testing.T, machine *StateMachine, id ConnectionID, role Role, action Action) State {
	t.Helper()
	state, err := machine.NextState(id, role, action)
	if err != nil {
		t.Fatalf("NextState(%s): %v", action.name(), err)
	}
	return state
}

func requireRejected(t *testing.T, machine *StateMachine, id ConnectionID, role Role, action Action) {
	t.Helper()
	before, err := machine.CurrentState(id, role)
	if err != nil {
		t.Fatalf("CurrentState before rejection: %v", err)
	}
	_, err = machine.NextState(id, role, action)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("NextState(%s) = %v, want InvalidTransitionError", action.name(), err)
	}
	after, err := machine.CurrentState(id, role)
	if err != nil {
		t.Fatalf("CurrentState after rejection: %v", err)
	}
	if after != before {
		t.Fatalf("rejected action mutated state: before %s, after %s", before, after)
	}
}

func TestStateMachine_TrustAuthorizes(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleInitiator, SchemeTrust)

	if _, ok := machine.Identity(id); ok {
		t.Fatal("identity present before any transition")
	}

	state := apply(t, machine, id, RoleInitiator, TrustReceiveAssert{NodeID: "node-b"})
	if state.Phase != PhaseAuthorized || state.Step != StepComplete {
		t.Fatalf("state after assert = %s, want authorized/complete", state)
	}

	identity, ok := machine.Identity(id)
	if !ok {
		t.Fatal("no identity after authorization")
	}
	if !identity.Equal(TrustIdentity("node-b")) {
		t.Fatalf("identity = %s, want trust:node-b", identity)
	}
}

func TestStateMachine_ReplayAfterAuthorizedRejected(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleAcceptor, SchemeTrust)

	apply(t, machine, id, RoleAcceptor, TrustReceiveAssert{NodeID: "node-b"})
	requireRejected(t, machine, id, RoleAcceptor, TrustReceiveAssert{NodeID: "node-c"})

	// The replay must not have replaced the identity either.
	identity, ok := machine.Identity(id)
	if !ok || identity.NodeID() != "node-b" {
		t.Fatalf("identity after replay = %v (present %v), want node-b", identity, ok)
	}
}

func TestStateMachine_ActionBeforeSchemeRejected(t *testing.T) {
	machine := NewStateMachine()
	id := ConnectionID(testutil.UniqueID("conn"))
	machine.Register(id, RoleInitiator)

	_, err := machine.NextState(id, RoleInitiator, TrustReceiveAssert{NodeID: "node-b"})
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("NextState before SetScheme = %v, want InvalidTransitionError", err)
	}
}

func TestStateMachine_SchemePinning(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleInitiator, SchemeTrustV0)

	// Repinning the same scheme is allowed; switching is not.
	if err := machine.SetScheme(id, SchemeTrustV0); err != nil {
		t.Fatalf("repinning same scheme: %v", err)
	}
	if err := machine.SetScheme(id, SchemeChallengeV1); err == nil {
		t.Fatal("switching pinned scheme succeeded, want error")
	}

	// Progress under the pinned scheme, then try an action from another
	// scheme: it must be rejected even though its step would match.
	apply(t, machine, id, RoleInitiator, TrustV0SendConnectRequest{NodeID: "node-a"})
	requireRejected(t, machine, id, RoleInitiator, ChallengeSendNonceRequest{})
}

func TestStateMachine_TrustV0InitiatorSequence(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleInitiator, SchemeTrustV0)

	apply(t, machine, id, RoleInitiator, TrustV0SendConnectRequest{NodeID: "node-a"})
	apply(t, machine, id, RoleInitiator, TrustV0ReceiveConnectResponse{NodeID: "node-b"})

	if _, ok := machine.Identity(id); ok {
		t.Fatal("identity present before trust confirm")
	}

	state := apply(t, machine, id, RoleInitiator, TrustV0SendTrustConfirm{})
	if state.Phase != PhaseAuthorized {
		t.Fatalf("phase after confirm = %s, want authorized", state.Phase)
	}
	identity, _ := machine.Identity(id)
	if identity.NodeID() != "node-b" {
		t.Fatalf("identity = %s, want the acceptor's declared id node-b", identity)
	}
}

func TestStateMachine_TrustV0AcceptorSequence(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleAcceptor, SchemeTrustV0)

	apply(t, machine, id, RoleAcceptor, TrustV0ReceiveConnectRequest{NodeID: "node-a"})
	apply(t, machine, id, RoleAcceptor, TrustV0SendConnectResponse{NodeID: "node-b"})
	state := apply(t, machine, id, RoleAcceptor, TrustV0ReceiveTrustConfirm{})

	if state.Phase != PhaseAuthorized {
		t.Fatalf("phase after confirm = %s, want authorized", state.Phase)
	}
	identity, _ := machine.Identity(id)
	if identity.NodeID() != "node-a" {
		t.Fatalf("identity = %s, want the initiator's declared id node-a", identity)
	}
}

func TestStateMachine_TrustV0OutOfOrderRejected(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleInitiator, SchemeTrustV0)

	// Confirm before the response has arrived.
	apply(t, machine, id, RoleInitiator, TrustV0SendConnectRequest{NodeID: "node-a"})
	requireRejected(t, machine, id, RoleInitiator, TrustV0SendTrustConfirm{})

	// An acceptor-side action on an initiator connection.
	requireRejected(t, machine, id, RoleInitiator, TrustV0SendConnectResponse{NodeID: "node-a"})
}

func TestStateMachine_ChallengeLaddersIndependent(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleInitiator, SchemeChallengeV1)
	local := RoleInitiator
	remote := RoleAcceptor

	nonceForPeer := make([]byte, NonceSize)
	nonceForPeer[0] = 0xAA
	nonceFromPeer := make([]byte, NonceSize)
	nonceFromPeer[0] = 0xBB

	// Interleave the two directions: the local proving ladder and the
	// ladder verifying the peer advance without touching each other.
	apply(t, machine, id, local, ChallengeSendNonceRequest{})
	apply(t, machine, id, remote, ChallengeReceiveNonceRequest{})
	apply(t, machine, id, remote, ChallengeSendNonceResponse{Nonce: nonceForPeer})
	apply(t, machine, id, local, ChallengeReceiveNonceResponse{Nonce: nonceFromPeer})

	localState, _ := machine.CurrentState(id, local)
	remoteState, _ := machine.CurrentState(id, remote)
	if localState.Step != StepNonceExchanged || remoteState.Step != StepNonceExchanged {
		t.Fatalf("ladder steps = %s / %s, want nonce-exchanged on both", localState.Step, remoteState.Step)
	}

	// Finish the peer's ladder first: that is the transition that
	// authorizes the connection.
	peerIdentity := ChallengeIdentity(make([]byte, 32))
	apply(t, machine, id, remote, ChallengeReceiveSubmitRequest{Identity: peerIdentity})
	if _, ok := machine.Identity(id); !ok {
		t.Fatal("connection not authorized after verified submit request")
	}
	apply(t, machine, id, remote, ChallengeSendSubmitResponse{})

	// The local ladder is still mid-flight and still advances.
	apply(t, machine, id, local, ChallengeSendSubmitRequest{})
	apply(t, machine, id, local, ChallengeReceiveSubmitResponse{})

	localState, _ = machine.CurrentState(id, local)
	if localState.Step != StepComplete {
		t.Fatalf("local ladder = %s, want complete", localState.Step)
	}
}

func TestStateMachine_IdentityImmutableOnceSet(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleAcceptor, SchemeChallengeV1)
	remote := RoleInitiator

	keyA := make([]byte, 32)
	keyA[0] = 1

	nonce := make([]byte, NonceSize)
	apply(t, machine, id, remote, ChallengeReceiveNonceRequest{})
	apply(t, machine, id, remote, ChallengeSendNonceResponse{Nonce: nonce})
	apply(t, machine, id, remote, ChallengeReceiveSubmitRequest{Identity: ChallengeIdentity(keyA)})

	before, _ := machine.Identity(id)
	apply(t, machine, id, remote, ChallengeSendSubmitResponse{})
	after, _ := machine.Identity(id)
	if !before.Equal(after) {
		t.Fatalf("identity changed after authorization: %s -> %s", before, after)
	}
}

func TestStateMachine_IssuedNonceIsCopied(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleAcceptor, SchemeChallengeV1)
	remote := RoleInitiator

	nonce := make([]byte, NonceSize)
	nonce[0] = 0x42
	apply(t, machine, id, remote, ChallengeReceiveNonceRequest{})
	apply(t, machine, id, remote, ChallengeSendNonceResponse{Nonce: nonce})

	issued, ok := machine.IssuedNonce(id, remote)
	if !ok {
		t.Fatal("no issued nonce recorded")
	}
	issued[0] = 0xFF

	again, _ := machine.IssuedNonce(id, remote)
	if again[0] != 0x42 {
		t.Fatal("mutating the returned nonce altered the stored nonce")
	}
}

func TestStateMachine_RejectedActionCreatesNoLadder(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleInitiator, SchemeTrust)

	// An action keyed to the wrong role is rejected; the rejection must
	// not leave a ladder entry behind for that role.
	_, err := machine.NextState(id, RoleAcceptor, TrustReceiveAssert{NodeID: "node-b"})
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("NextState = %v, want InvalidTransitionError", err)
	}

	s := machine.shardFor(id)
	s.mu.Lock()
	ladders := len(s.connections[id].ladders)
	s.mu.Unlock()
	if ladders != 0 {
		t.Fatalf("rejected action created %d ladder entries, want 0", ladders)
	}
}

func TestStateMachine_FailedConnectionRejectsEverything(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleInitiator, SchemeTrust)

	apply(t, machine, id, RoleInitiator, TrustReceiveAssert{NodeID: "node-b"})
	machine.Fail(id)

	if !machine.Failed(id) {
		t.Fatal("Failed = false after Fail")
	}
	if _, ok := machine.Identity(id); ok {
		t.Fatal("failed connection still exposes an identity")
	}
	requireRejected(t, machine, id, RoleInitiator, TrustReceiveAssert{NodeID: "node-c"})

	state, err := machine.CurrentState(id, RoleInitiator)
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if state.Phase != PhaseFailed {
		t.Fatalf("phase = %s, want failed", state.Phase)
	}
}

func TestStateMachine_UnknownConnection(t *testing.T) {
	machine := NewStateMachine()
	id := ConnectionID("never-registered")

	if _, err := machine.NextState(id, RoleInitiator, TrustReceiveAssert{NodeID: "x"}); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("NextState on unknown connection = %v, want ErrUnknownConnection", err)
	}
	if _, err := machine.CurrentState(id, RoleInitiator); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("CurrentState on unknown connection = %v, want ErrUnknownConnection", err)
	}
	if err := machine.SetScheme(id, SchemeTrust); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("SetScheme on unknown connection = %v, want ErrUnknownConnection", err)
	}
}

func TestStateMachine_ClearRemovesState(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleInitiator, SchemeTrust)
	apply(t, machine, id, RoleInitiator, TrustReceiveAssert{NodeID: "node-b"})

	machine.Clear(id)
	if _, ok := machine.Identity(id); ok {
		t.Fatal("identity survives Clear")
	}
	if _, err := machine.CurrentState(id, RoleInitiator); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("CurrentState after Clear = %v, want ErrUnknownConnection", err)
	}
}

func TestStateMachine_RegisterIdempotent(t *testing.T) {
	machine := NewStateMachine()
	id := registerConnection(t, machine, RoleInitiator, SchemeTrustV0)
	apply(t, machine, id, RoleInitiator, TrustV0SendConnectRequest{NodeID: "node-a"})

	// Re-registering must not reset progress.
	machine.Register(id, RoleInitiator)
	state, _ := machine.CurrentState(id, RoleInitiator)
	if state.Step != StepConnectPending {
		t.Fatalf("step after duplicate Register = %s, want connect-pending", state.Step)
	}
}

func TestStateMachine_ConcurrentConnections(t *testing.T) {
	machine := NewStateMachine()
	const connections = 64

	var wg sync.WaitGroup
	errs := make(chan error, connections)
	for i := 0; i < connections; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ConnectionID(testutil.UniqueID("conn"))
			machine.Register(id, RoleInitiator)
			if err := machine.SetScheme(id, SchemeTrust); err != nil {
				errs <- err
				return
			}
			nodeID := fmt.Sprintf("node-%d", i)
			if _, err := machine.NextState(id, RoleInitiator, TrustReceiveAssert{NodeID: nodeID}); err != nil {
				errs <- err
				return
			}
			identity, ok := machine.Identity(id)
			if !ok || identity.NodeID() != nodeID {
				errs <- fmt.Errorf("connection %s: identity %v (present %v), want %s", id, identity, ok, nodeID)
				return
			}
			machine.Clear(id)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
