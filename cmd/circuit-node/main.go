// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

// Circuit-node runs one node of a circuit network. It loads the node
// configuration, unseals the node key if challenge-v1 is enabled,
// accepts peer connections on the listen address, dials the configured
// peers, and authorizes every connection through the engine before
// anything else flows.
//
// The binary is a handshake harness: once a connection is authorized
// it logs the verified peer identity and holds the connection open.
// Application traffic is out of scope here.
package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/circuit-foundation/circuit/auth"
	"github.com/circuit-foundation/circuit/lib/config"
	"github.com/circuit-foundation/circuit/lib/keyring"
	"github.com/circuit-foundation/circuit/transport"
)

// passphraseEnv names the environment variable holding the sealed key
// passphrase. An environment variable rather than a flag so the
// passphrase never appears in process listings.
const passphraseEnv = "CIRCUIT_KEY_PASSPHRASE"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		generateKey bool
		logLevel    string
	)

	pflag.StringVar(&configPath, "config", "", "path to circuit.yaml (default: $CIRCUIT_CONFIG)")
	pflag.BoolVar(&generateKey, "generate-key", false, "generate a sealed node key at key_file and exit")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pflag.Parse()

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	schemes := make([]auth.Scheme, 0, len(cfg.Schemes))
	for _, name := range cfg.Schemes {
		scheme, err := auth.ParseScheme(name)
		if err != nil {
			return err
		}
		schemes = append(schemes, scheme)
	}
	challengeEnabled := false
	for _, scheme := range schemes {
		if scheme == auth.SchemeChallengeV1 {
			challengeEnabled = true
		}
	}

	if generateKey {
		return generateNodeKey(cfg, logger)
	}

	schemeConfig := auth.SchemeConfig{
		Local: auth.LocalNode{NodeID: cfg.NodeID},
	}
	if challengeEnabled {
		passphrase := os.Getenv(passphraseEnv)
		if passphrase == "" {
			return fmt.Errorf("%s is not set; the sealed node key cannot be opened", passphraseEnv)
		}
		keypair, err := keyring.LoadSealed(cfg.KeyFile, passphrase)
		if err != nil {
			return fmt.Errorf("loading node key: %w", err)
		}
		schemeConfig.Local.PublicKey = keypair.PublicKey
		schemeConfig.Signer = keypair.Signer()
		schemeConfig.Verifier, err = buildVerifier(cfg)
		if err != nil {
			return err
		}
		logger.Info("node key loaded",
			slog.String("public_key", keyring.FormatPublicKey(keypair.PublicKey)))
	}

	machine := auth.NewStateMachine()
	sessionConfig := transport.SessionConfig{
		Machine:          machine,
		Schemes:          schemes,
		SchemeConfig:     schemeConfig,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Logger:           logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ListenAddress != "" {
		listener, err := transport.NewTCPListener(cfg.ListenAddress)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", cfg.ListenAddress, err)
		}
		logger.Info("listening for peers", slog.String("address", listener.Address()))
		go func() {
			err := listener.Serve(ctx, func(conn net.Conn) {
				serveConn(conn, auth.RoleAcceptor, sessionConfig, logger)
			})
			if err != nil {
				logger.Error("listener stopped", slog.String("error", err.Error()))
				stop()
			}
		}()
	}

	dialer := &transport.TCPDialer{Timeout: 10 * time.Second}
	for _, peer := range cfg.Peers {
		if peer.Address == "" {
			continue
		}
		go dialPeer(ctx, dialer, peer, sessionConfig, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// generateNodeKey creates a fresh Ed25519 keypair, seals it to
// key_file, and prints the public key for distribution to peers.
func generateNodeKey(cfg *config.Config, logger *slog.Logger) error {
	if cfg.KeyFile == "" {
		return fmt.Errorf("key_file must be set in the configuration to generate a key")
	}
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		return fmt.Errorf("%s is not set; refusing to write an unprotected key", passphraseEnv)
	}
	keypair, err := keyring.Generate()
	if err != nil {
		return err
	}
	if err := keyring.SaveSealed(cfg.KeyFile, keypair, passphrase); err != nil {
		return err
	}
	logger.Info("node key generated",
		slog.String("key_file", cfg.KeyFile),
		slog.String("public_key", keyring.FormatPublicKey(keypair.PublicKey)))
	fmt.Println(keyring.FormatPublicKey(keypair.PublicKey))
	return nil
}

// buildVerifier returns the ChallengeV1 verifier: pinned to the peer
// directory's public keys when any are configured, signature-only
// otherwise.
func buildVerifier(cfg *config.Config) (auth.Verifier, error) {
	var pinned []ed25519.PublicKey
	for _, peer := range cfg.Peers {
		if peer.PublicKey == "" {
			continue
		}
		key, err := keyring.ParsePublicKey(peer.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", peer.NodeID, err)
		}
		pinned = append(pinned, key)
	}
	if len(pinned) > 0 {
		return keyring.NewPinnedVerifier(pinned), nil
	}
	return keyring.Ed25519Verifier{}, nil
}

// serveConn authorizes one connection and then holds it open until the
// peer disconnects. Connections that fail authorization are closed
// immediately.
func serveConn(conn net.Conn, role auth.Role, sessionConfig transport.SessionConfig, logger *slog.Logger) {
	session, err := transport.NewSession(conn, role, sessionConfig)
	if err != nil {
		logger.Error("creating session", slog.String("error", err.Error()))
		conn.Close()
		return
	}
	defer session.Close()

	identity, err := session.Authorize()
	if err != nil {
		if transport.IsProtocolViolation(err) {
			logger.Warn("peer violated the authorization protocol",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.String("error", err.Error()))
		}
		return
	}
	logger.Info("peer connected",
		slog.String("remote", conn.RemoteAddr().String()),
		slog.String("identity", identity.String()))

	// No application layer yet: hold the connection until the peer
	// goes away.
	_, _ = io.Copy(io.Discard, conn)
	logger.Info("peer disconnected", slog.String("identity", identity.String()))
}

// dialPeer connects out to one configured peer and authorizes the
// connection. No automatic redial: a failed peer stays down until the
// node restarts.
func dialPeer(ctx context.Context, dialer transport.Dialer, peer config.PeerConfig, sessionConfig transport.SessionConfig, logger *slog.Logger) {
	conn, err := dialer.DialContext(ctx, peer.Address)
	if err != nil {
		logger.Warn("dialing peer failed",
			slog.String("peer", peer.NodeID),
			slog.String("address", peer.Address),
			slog.String("error", err.Error()))
		return
	}
	serveConn(conn, auth.RoleInitiator, sessionConfig, logger)
}
