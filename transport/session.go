// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/circuit-foundation/circuit/auth"
	"github.com/circuit-foundation/circuit/wire"
)

// DefaultHandshakeTimeout bounds the entire authorization handshake:
// negotiation, every challenge round-trip, and verification. A
// connection that has not authorized within this window is torn down.
const DefaultHandshakeTimeout = 10 * time.Second

// rejectReason is the only failure detail ever sent to a peer.
// Deliberately uniform across negotiation failures, bad signatures,
// and stale nonces — the remote side learns nothing it could use to
// probe the verifier.
const rejectReason = "authorization rejected"

// SessionConfig carries the shared pieces every session needs.
type SessionConfig struct {
	// Machine is the process-wide authorization state machine.
	Machine *auth.StateMachine

	// Schemes is this node's scheme preference order for negotiation.
	Schemes []auth.Scheme

	// SchemeConfig supplies the local identity and the signer/verifier
	// capability to whichever scheme gets negotiated.
	SchemeConfig auth.SchemeConfig

	// HandshakeTimeout overrides DefaultHandshakeTimeout when positive.
	HandshakeTimeout time.Duration

	// Logger receives handshake progress and teardown reasons. Nil
	// discards.
	Logger *slog.Logger
}

// Session drives the authorization handshake on one connection.
// Create one per accepted or dialed net.Conn, call [Session.Authorize]
// and, once it returns an identity, hand the connection to the
// application layer. The session never delivers application traffic
// itself — an unexpected envelope during the handshake is a protocol
// violation.
//
// Outbound frames go through a background writer goroutine. Both sides
// of a ChallengeV1 handshake open by sending a nonce request; on a
// synchronous connection (such as net.Pipe) two simultaneous blocking
// writes would deadlock, so writes and reads must be concurrent.
type Session struct {
	conn         net.Conn
	connectionID auth.ConnectionID
	role         auth.Role
	config       SessionConfig
	logger       *slog.Logger

	outbound   chan wire.Message
	writerDone chan struct{}

	errMu    sync.Mutex
	writeErr error
}

// NewSession registers a new connection with the state machine and
// returns the session that will authorize it. role is the side this
// node occupies on the connection.
func NewSession(conn net.Conn, role auth.Role, config SessionConfig) (*Session, error) {
	if config.Machine == nil {
		return nil, fmt.Errorf("session requires a state machine")
	}
	id, err := newConnectionID()
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	config.Machine.Register(id, role)
	return &Session{
		conn:         conn,
		connectionID: id,
		role:         role,
		config:       config,
		logger: logger.With(
			slog.String("connection", string(id)),
			slog.String("role", role.String()),
		),
		outbound:   make(chan wire.Message, 16),
		writerDone: make(chan struct{}),
	}, nil
}

// ConnectionID returns the transport-assigned connection id.
func (s *Session) ConnectionID() auth.ConnectionID { return s.connectionID }

// Authorize runs the handshake to completion and returns the verified
// remote identity. On any error the connection is terminally failed in
// the state machine and must be closed by the caller; the engine never
// retries a handshake step.
func (s *Session) Authorize() (auth.Identity, error) {
	timeout := s.config.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	if err := s.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return auth.Identity{}, fmt.Errorf("setting handshake deadline: %w", err)
	}

	go s.writeLoop()
	identity, err := s.authorize()

	// Flush and stop the writer before deciding the outcome: a
	// handshake is only complete once the closing replies are on the
	// wire.
	close(s.outbound)
	<-s.writerDone
	if err == nil {
		err = s.peekWriteErr()
	}

	if err != nil {
		s.config.Machine.Fail(s.connectionID)
		s.sendReject()
		s.logger.Warn("authorization failed", slog.String("error", err.Error()))
		return auth.Identity{}, err
	}

	// Handshake deadline no longer applies; application traffic sets
	// its own. The handshake is already complete at this point, and the
	// peer may have finished its side and closed the connection, so a
	// failure to clear the deadline is not an authorization failure.
	if err := s.conn.SetDeadline(time.Time{}); err != nil {
		s.logger.Debug("clearing handshake deadline", slog.String("error", err.Error()))
	}
	s.logger.Info("connection authorized", slog.String("identity", identity.String()))
	return identity, nil
}

func (s *Session) authorize() (auth.Identity, error) {
	scheme, err := s.negotiate()
	if err != nil {
		return auth.Identity{}, err
	}
	s.logger.Debug("scheme agreed", slog.String("scheme", scheme.String()))

	if err := s.config.Machine.SetScheme(s.connectionID, scheme); err != nil {
		return auth.Identity{}, err
	}
	handlers, err := auth.Handlers(scheme, s.config.SchemeConfig)
	if err != nil {
		return auth.Identity{}, err
	}

	peer := auth.Peer{
		ConnectionID: s.connectionID,
		Role:         s.role,
		Send:         s.send,
	}
	if err := handlers.Start(peer, s.config.Machine); err != nil {
		return auth.Identity{}, err
	}

	for {
		if identity, done := s.handshakeComplete(scheme); done {
			return identity, nil
		}
		message, err := wire.ReadMessage(s.conn)
		if err != nil {
			return auth.Identity{}, fmt.Errorf("reading handshake envelope: %w", err)
		}
		if message.Type == wire.MessageTypeReject {
			return auth.Identity{}, fmt.Errorf("peer rejected authorization")
		}
		if !handlers.Handles(message.Type) {
			return auth.Identity{}, fmt.Errorf("unexpected %s envelope before authorization", message.Type)
		}
		if err := handlers.Dispatch(auth.MessageContext{Peer: peer, Message: message}, s.config.Machine); err != nil {
			return auth.Identity{}, err
		}
	}
}

// negotiate runs the scheme-selection exchange appropriate to the
// session's role.
func (s *Session) negotiate() (auth.Scheme, error) {
	negotiator, err := auth.NewNegotiator(s.role, s.config.Schemes)
	if err != nil {
		return auth.SchemeNone, err
	}

	switch s.role {
	case auth.RoleInitiator:
		proposal, err := negotiator.Propose()
		if err != nil {
			return auth.SchemeNone, err
		}
		if err := s.send(proposal); err != nil {
			return auth.SchemeNone, err
		}
		reply, err := wire.ReadMessage(s.conn)
		if err != nil {
			return auth.SchemeNone, fmt.Errorf("reading negotiation reply: %w", err)
		}
		if reply.Type == wire.MessageTypeReject {
			return auth.SchemeNone, &auth.NegotiationError{}
		}
		if err := negotiator.HandleAccept(reply); err != nil {
			return auth.SchemeNone, err
		}

	case auth.RoleAcceptor:
		proposal, err := wire.ReadMessage(s.conn)
		if err != nil {
			return auth.SchemeNone, fmt.Errorf("reading negotiation proposal: %w", err)
		}
		accept, err := negotiator.HandleProposal(proposal)
		if err != nil {
			return auth.SchemeNone, err
		}
		if err := s.send(accept); err != nil {
			return auth.SchemeNone, err
		}
	}

	scheme, agreed := negotiator.Agreed()
	if !agreed {
		return auth.SchemeNone, &auth.NegotiationError{}
	}
	return scheme, nil
}

// handshakeComplete decides whether the session can stop dispatching.
// The connection must be authorized; under ChallengeV1 the local
// proving ladder must additionally have closed, so the peer is not
// left waiting for a submission that will never come.
func (s *Session) handshakeComplete(scheme auth.Scheme) (auth.Identity, bool) {
	identity, ok := s.config.Machine.Identity(s.connectionID)
	if !ok {
		return auth.Identity{}, false
	}
	if scheme == auth.SchemeChallengeV1 {
		state, err := s.config.Machine.CurrentState(s.connectionID, s.role)
		if err != nil || state.Step != auth.StepComplete {
			return auth.Identity{}, false
		}
	}
	return identity, true
}

// writeLoop is the session's only writer during the handshake. It
// drains the outbound queue even after a write error so that send
// never blocks forever.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for message := range s.outbound {
		if s.peekWriteErr() != nil {
			continue
		}
		if err := wire.WriteMessage(s.conn, message); err != nil {
			s.setWriteErr(fmt.Errorf("writing %s envelope: %w", message.Type, err))
		}
	}
}

// send queues one framed envelope for the writer goroutine. The queue
// is larger than any scheme's total outbound message count, so this
// does not block in a correctly behaving handshake.
func (s *Session) send(message wire.Message) error {
	if err := s.peekWriteErr(); err != nil {
		return err
	}
	select {
	case s.outbound <- message:
		return nil
	case <-s.writerDone:
		return fmt.Errorf("connection writer stopped")
	}
}

func (s *Session) setWriteErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.writeErr == nil {
		s.writeErr = err
	}
}

func (s *Session) peekWriteErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.writeErr
}

// sendReject sends the generic rejection, best effort, after the
// writer goroutine has stopped. The short write deadline keeps
// teardown from blocking on a dead peer.
func (s *Session) sendReject() {
	reject, err := wire.NewMessage(wire.MessageTypeReject, "", wire.RejectPayload{Reason: rejectReason})
	if err != nil {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = wire.WriteMessage(s.conn, reject)
}

// Close removes the connection's authorization state and closes the
// underlying connection. Always call on disconnect so the state table
// stays bounded.
func (s *Session) Close() error {
	s.config.Machine.Clear(s.connectionID)
	return s.conn.Close()
}

// newConnectionID generates a random transport connection id.
func newConnectionID() (auth.ConnectionID, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generating connection id: %w", err)
	}
	return auth.ConnectionID("conn-" + hex.EncodeToString(raw[:])), nil
}

// IsProtocolViolation reports whether err is the kind of failure that
// indicates a misbehaving or malicious peer (as opposed to a network
// error): an invalid state transition or a verification failure.
func IsProtocolViolation(err error) bool {
	var invalid *auth.InvalidTransitionError
	return errors.As(err, &invalid) || errors.Is(err, auth.ErrVerificationFailed)
}
