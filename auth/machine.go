// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// shardCount is the number of independent lock domains in the state
// table. Connection ids hash across shards so unrelated connections
// never contend on one lock; 16 is far beyond the connection counts a
// single node sees.
const shardCount = 16

// StateMachine is the single source of truth for connection
// authorization progress. One instance is created at node startup and
// shared by every handler set; all methods are safe for concurrent use
// from any goroutine. State transitions are pure table lookups applied
// under a short-lived shard lock — the machine never performs I/O and
// never blocks.
//
// Per connection the machine keeps up to two ladders, one per logical
// direction (keyed by [Role]). Trust and TrustV0 use only the local
// role's ladder. ChallengeV1 uses both: the ladder keyed by a role
// tracks the exchange proving that role's identity, so the two
// directions of verification advance independently.
type StateMachine struct {
	shards [shardCount]shard
}

type shard struct {
	mu          sync.Mutex
	connections map[ConnectionID]*connectionState
}

// connectionState is one connection's ledger entry. Guarded by the
// owning shard's mutex.
type connectionState struct {
	localRole Role
	scheme    Scheme
	identity  *Identity
	failed    bool
	ladders   map[Role]*ladderState
}

// ladderState tracks one direction's progress through a scheme's
// action sequence, plus the data the sequence accumulates: the active
// nonce for a ChallengeV1 exchange, or the claimed-but-unconfirmed
// node id in TrustV0.
type ladderState struct {
	step          Step
	nonce         []byte
	claimedNodeID string
}

// NewStateMachine returns an empty state machine.
func NewStateMachine() *StateMachine {
	machine := &StateMachine{}
	for i := range machine.shards {
		machine.shards[i].connections = make(map[ConnectionID]*connectionState)
	}
	return machine
}

func (m *StateMachine) shardFor(id ConnectionID) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(id))
	return &m.shards[hasher.Sum32()%shardCount]
}

// Register creates the Unauthorized ledger entry for a connection the
// transport just established. localRole is the side this node occupies
// on the connection. Registering an already-known connection is a
// no-op.
func (m *StateMachine) Register(id ConnectionID, localRole Role) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.connections[id]; exists {
		return
	}
	s.connections[id] = &connectionState{
		localRole: localRole,
		ladders:   make(map[Role]*ladderState),
	}
}

// SetScheme pins the negotiated scheme on a connection. Actions from
// any other scheme are rejected afterwards, so partial completion
// under one scheme can never contribute trust under another. Pinning a
// different scheme on an already-pinned connection is an error.
func (m *StateMachine) SetScheme(id ConnectionID, scheme Scheme) error {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	connection, exists := s.connections[id]
	if !exists {
		return fmt.Errorf("connection %s: %w", id, ErrUnknownConnection)
	}
	if connection.scheme != SchemeNone && connection.scheme != scheme {
		return fmt.Errorf("connection %s: scheme already pinned to %s, cannot switch to %s",
			id, connection.scheme, scheme)
	}
	connection.scheme = scheme
	return nil
}

// NextState validates action against the current state of the ladder
// keyed by role and, if accepted, applies the transition and returns
// the new state. On rejection it returns an [InvalidTransitionError]
// and the stored state is left exactly as it was — reading after a
// failed write observes the state from before the write.
//
// role names the logical direction the action belongs to: the local
// role for Trust, TrustV0, and the local node's ChallengeV1 proving
// ladder, or the remote role for the ladder verifying the peer.
func (m *StateMachine) NextState(id ConnectionID, role Role, action Action) (State, error) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	connection, exists := s.connections[id]
	if !exists {
		return State{}, fmt.Errorf("connection %s: %w", id, ErrUnknownConnection)
	}

	// Read the ladder without materializing it: a rejected action must
	// leave the connection byte-for-byte as it was, including the
	// ladder map.
	ladder := connection.ladders[role]
	step := StepStart
	if ladder != nil {
		step = ladder.step
	}
	current := State{Phase: connection.phase(), Scheme: connection.scheme, Step: step}

	reject := func() (State, error) {
		return current, &InvalidTransitionError{
			ConnectionID: id,
			Current:      current,
			Attempted:    action.name(),
		}
	}

	// advance commits the transition, creating the ladder on first use.
	// Called only after the action has been validated.
	advance := func(next Step) {
		if ladder == nil {
			ladder = &ladderState{}
			connection.ladders[role] = ladder
		}
		ladder.step = next
	}

	if connection.failed {
		return reject()
	}
	if connection.scheme == SchemeNone || action.scheme() != connection.scheme {
		return reject()
	}

	local := connection.localRole
	remote := local.Opposite()

	switch a := action.(type) {
	case TrustReceiveAssert:
		if role != local || step != StepStart {
			return reject()
		}
		advance(StepComplete)
		connection.setIdentity(TrustIdentity(a.NodeID))

	case TrustV0SendConnectRequest:
		if role != local || local != RoleInitiator || step != StepStart {
			return reject()
		}
		advance(StepConnectPending)

	case TrustV0ReceiveConnectRequest:
		if role != local || local != RoleAcceptor || step != StepStart {
			return reject()
		}
		advance(StepConnectPending)
		ladder.claimedNodeID = a.NodeID

	case TrustV0SendConnectResponse:
		if role != local || local != RoleAcceptor || step != StepConnectPending {
			return reject()
		}
		advance(StepTrustPending)

	case TrustV0ReceiveConnectResponse:
		if role != local || local != RoleInitiator || step != StepConnectPending {
			return reject()
		}
		advance(StepTrustPending)
		ladder.claimedNodeID = a.NodeID

	case TrustV0SendTrustConfirm:
		if role != local || local != RoleInitiator || step != StepTrustPending {
			return reject()
		}
		advance(StepComplete)
		connection.setIdentity(TrustIdentity(ladder.claimedNodeID))

	case TrustV0ReceiveTrustConfirm:
		if role != local || local != RoleAcceptor || step != StepTrustPending {
			return reject()
		}
		advance(StepComplete)
		connection.setIdentity(TrustIdentity(ladder.claimedNodeID))

	case ChallengeSendNonceRequest:
		if role != local || step != StepStart {
			return reject()
		}
		advance(StepNonceRequested)

	case ChallengeReceiveNonceResponse:
		if role != local || step != StepNonceRequested {
			return reject()
		}
		advance(StepNonceExchanged)
		ladder.nonce = cloneBytes(a.Nonce)

	case ChallengeSendSubmitRequest:
		if role != local || step != StepNonceExchanged {
			return reject()
		}
		advance(StepSubmitPending)

	case ChallengeReceiveSubmitResponse:
		if role != local || step != StepSubmitPending {
			return reject()
		}
		advance(StepComplete)

	case ChallengeReceiveNonceRequest:
		if role != remote || step != StepStart {
			return reject()
		}
		advance(StepNonceRequested)

	case ChallengeSendNonceResponse:
		if role != remote || step != StepNonceRequested {
			return reject()
		}
		advance(StepNonceExchanged)
		ladder.nonce = cloneBytes(a.Nonce)

	case ChallengeReceiveSubmitRequest:
		if role != remote || step != StepNonceExchanged {
			return reject()
		}
		advance(StepSubmitPending)
		connection.setIdentity(a.Identity)

	case ChallengeSendSubmitResponse:
		if role != remote || step != StepSubmitPending {
			return reject()
		}
		advance(StepComplete)

	default:
		return reject()
	}

	return State{Phase: connection.phase(), Scheme: connection.scheme, Step: ladder.step}, nil
}

// Identity returns the verified remote identity, present only once the
// connection reached PhaseAuthorized and has not failed. Absence means
// "not authorized" — use [StateMachine.Failed] to distinguish pending
// from terminally failed.
func (m *StateMachine) Identity(id ConnectionID) (Identity, bool) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	connection, exists := s.connections[id]
	if !exists || connection.failed || connection.identity == nil {
		return Identity{}, false
	}
	return *connection.identity, true
}

// Failed reports whether the connection reached terminal failure.
func (m *StateMachine) Failed(id ConnectionID) bool {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	connection, exists := s.connections[id]
	return exists && connection.failed
}

// Fail marks the connection terminally failed. Called by the dispatch
// layer after a rejected action or a verification failure; the engine
// itself never mutates state when it rejects. Unknown connections are
// ignored.
func (m *StateMachine) Fail(id ConnectionID) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if connection, exists := s.connections[id]; exists {
		connection.failed = true
	}
}

// IssuedNonce returns the most recently issued nonce on the ladder
// proving role's identity. The submit-verification handler compares
// the submitted nonce against this value before the signature check.
func (m *StateMachine) IssuedNonce(id ConnectionID, role Role) ([]byte, bool) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	connection, exists := s.connections[id]
	if !exists {
		return nil, false
	}
	ladder, exists := connection.ladders[role]
	if !exists || ladder.nonce == nil {
		return nil, false
	}
	return cloneBytes(ladder.nonce), true
}

// CurrentState returns the state of the ladder keyed by role without
// applying anything.
func (m *StateMachine) CurrentState(id ConnectionID, role Role) (State, error) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	connection, exists := s.connections[id]
	if !exists {
		return State{}, fmt.Errorf("connection %s: %w", id, ErrUnknownConnection)
	}
	step := StepStart
	if ladder, ok := connection.ladders[role]; ok {
		step = ladder.step
	}
	return State{Phase: connection.phase(), Scheme: connection.scheme, Step: step}, nil
}

// Clear removes all state for a closed connection. Entries must be
// cleared on disconnect to bound the table's memory.
func (m *StateMachine) Clear(id ConnectionID) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, id)
}

// setIdentity records the resolved identity. First writer wins; once
// set, the identity is immutable for the connection's lifetime.
func (c *connectionState) setIdentity(identity Identity) {
	if c.identity == nil {
		c.identity = &identity
	}
}

// phase derives the connection-level phase. Caller holds the shard
// lock.
func (c *connectionState) phase() Phase {
	switch {
	case c.failed:
		return PhaseFailed
	case c.identity != nil:
		return PhaseAuthorized
	default:
		return PhaseUnauthorized
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	copied := make([]byte, len(b))
	copy(copied, b)
	return copied
}
