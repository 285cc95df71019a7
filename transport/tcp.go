// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// ConnHandler is invoked once per accepted connection, on its own
// goroutine. The handler owns the connection and must close it.
type ConnHandler func(conn net.Conn)

// Listener accepts inbound peer connections.
type Listener interface {
	Serve(ctx context.Context, handler ConnHandler) error
	Address() string
	Close() error
}

// Dialer opens outbound connections to peers.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// TCPListener accepts inbound TCP connections from peer nodes. This is
// the development and same-LAN transport — it requires direct TCP
// reachability between nodes.
type TCPListener struct {
	listener net.Listener

	mu     sync.Mutex
	closed bool
}

// NewTCPListener creates a TCP transport listener on the specified
// address (e.g., ":7870" or "192.168.1.10:7870"). Use ":0" for a
// random available port.
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: listener}, nil
}

// Serve accepts TCP connections and dispatches each to handler on its
// own goroutine. Blocks until ctx is cancelled or Close is called.
func (l *TCPListener) Serve(ctx context.Context, handler ConnHandler) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if l.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go handler(conn)
	}
}

// Address returns the TCP address in "host:port" format.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close shuts down the TCP listener. In-flight handlers keep their
// connections.
func (l *TCPListener) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return l.listener.Close()
}

func (l *TCPListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// TCPDialer opens TCP connections to peer nodes.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a TCP connection to be
	// established. Zero means no standalone timeout — only the context
	// deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to the given address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}
