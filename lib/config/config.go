// Copyright 2026 The Circuit Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for circuit nodes.
//
// Configuration is loaded from a single file specified by the
// CIRCUIT_CONFIG environment variable or a --config flag. There are no
// fallbacks or automatic discovery, and environment variables never
// override file values — configuration stays deterministic and
// auditable.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the node configuration.
type Config struct {
	// NodeID is this node's network-assigned identity, declared under
	// the trust schemes (e.g. "node-a").
	NodeID string `yaml:"node_id"`

	// ListenAddress is the TCP address to accept peer connections on
	// (e.g. ":7870"). Empty disables listening.
	ListenAddress string `yaml:"listen_address"`

	// KeyFile is the path to the sealed Ed25519 node key. Required
	// when challenge-v1 is enabled.
	KeyFile string `yaml:"key_file"`

	// Schemes is the authorization scheme preference order. Valid
	// entries: trust, trust-v0, challenge-v1.
	Schemes []string `yaml:"schemes"`

	// HandshakeTimeout bounds the whole authorization handshake per
	// connection. Zero means the default (10s).
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// Peers is the local peer directory: the nodes this node will
	// dial, and — under challenge-v1 with key pinning — the only
	// public keys it will accept.
	Peers []PeerConfig `yaml:"peers"`
}

// PeerConfig describes one known peer.
type PeerConfig struct {
	// NodeID is the peer's declared identity.
	NodeID string `yaml:"node_id"`

	// Address is the peer's transport address (host:port). Empty for
	// peers that only dial in.
	Address string `yaml:"address,omitempty"`

	// PublicKey is the peer's hex-encoded Ed25519 public key. Required
	// when challenge-v1 key pinning is in use.
	PublicKey string `yaml:"public_key,omitempty"`
}

// Load loads configuration from the CIRCUIT_CONFIG environment
// variable. Fails if the variable is not set — there is no implicit
// default path.
func Load() (*Config, error) {
	path := os.Getenv("CIRCUIT_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("CIRCUIT_CONFIG environment variable not set; " +
			"set it to the path of your circuit.yaml config file, or use the --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors. All problems are
// reported together rather than one at a time.
func (c *Config) Validate() error {
	var errs []error

	if c.NodeID == "" {
		errs = append(errs, fmt.Errorf("node_id is required"))
	}
	if len(c.Schemes) == 0 {
		errs = append(errs, fmt.Errorf("at least one authorization scheme is required"))
	}
	for _, scheme := range c.Schemes {
		switch scheme {
		case "trust", "trust-v0", "challenge-v1":
		default:
			errs = append(errs, fmt.Errorf("unknown scheme %q (valid: trust, trust-v0, challenge-v1)", scheme))
		}
		if scheme == "challenge-v1" && c.KeyFile == "" {
			errs = append(errs, fmt.Errorf("key_file is required when challenge-v1 is enabled"))
		}
	}
	if c.HandshakeTimeout < 0 {
		errs = append(errs, fmt.Errorf("handshake_timeout must not be negative"))
	}
	seen := make(map[string]bool, len(c.Peers))
	for i, peer := range c.Peers {
		if peer.NodeID == "" {
			errs = append(errs, fmt.Errorf("peers[%d]: node_id is required", i))
			continue
		}
		if seen[peer.NodeID] {
			errs = append(errs, fmt.Errorf("peers[%d]: duplicate node_id %q", i, peer.NodeID))
		}
		seen[peer.NodeID] = true
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
