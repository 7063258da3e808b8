// Package config defines the JSON-serializable shapes shared between client
// and server, mirroring the Rust original's comm::models ClientConfigs and
// ServerConfigs, plus the loaders both binaries use.
package config

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/vrnobody/thomasgo/internal/onion"
)

// ServerInfo names one hop a client may route through: a human-readable
// label, its dial address, and its base64 X25519 public key.
type ServerInfo struct {
	Name   string `json:"name"`
	Addr   string `json:"addr"`
	Pubkey string `json:"pubkey"`
}

// ClientConfig is the client's full routing policy: where to listen, how
// many relays to route through, an optional outer proxy, and the pools of
// candidate inlets/outlets/relays to choose from per circuit.
type ClientConfig struct {
	Listen   string       `json:"listen"`
	Length   int          `json:"length"`
	Proxy    string       `json:"proxy,omitempty"`
	Inlets   []ServerInfo `json:"inlets"`
	Outlets  []ServerInfo `json:"outlets"`
	Relays   []ServerInfo `json:"relays"`
	LogLevel string       `json:"loglevel,omitempty"`
}

// ServerConfig is a relay server's identity: where to listen and its X25519
// keypair (public key published to clients, secret kept local).
type ServerConfig struct {
	Listen   string `json:"listen"`
	Pubkey   string `json:"pubkey"`
	Secret   string `json:"secret"`
	LogLevel string `json:"loglevel,omitempty"`
}

// DefaultClientConfig mirrors the Rust original's ClientConfigs::default().
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Listen:   "127.0.0.1:1080",
		Length:   1,
		LogLevel: "info",
	}
}

// DefaultServerConfig mirrors the Rust original's ServerConfigs::default().
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:   "0.0.0.0:8443",
		LogLevel: "info",
	}
}

// LoadClientConfig reads and parses a ClientConfig from path.
func LoadClientConfig(path string) (ClientConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return ClientConfig{}, err
	}
	defer f.Close()
	return parseClientConfig(f)
}

// ReadClientConfigStdin reads and parses a ClientConfig from stdin.
func ReadClientConfigStdin() (ClientConfig, error) {
	return parseClientConfig(os.Stdin)
}

func parseClientConfig(r io.Reader) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// LoadServerConfig reads and parses a ServerConfig from path.
func LoadServerConfig(path string) (ServerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return ServerConfig{}, err
	}
	defer f.Close()
	return parseServerConfig(f)
}

// ReadServerConfigStdin reads and parses a ServerConfig from stdin.
func ReadServerConfigStdin() (ServerConfig, error) {
	return parseServerConfig(os.Stdin)
}

func parseServerConfig(r io.Reader) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// ErrKeypairMismatch is returned by Validate when Secret does not derive
// Pubkey. The server binary treats this as a fatal startup error (exit
// code 2), matching the Rust original's server.rs keypair check.
var ErrKeypairMismatch = errors.New("config: secret does not derive pubkey")

// Validate checks that the server's configured secret and public key form a
// matching X25519 pair.
func (c ServerConfig) Validate() error {
	secret, err := onion.DecodeSecret(c.Secret)
	if err != nil {
		return err
	}
	pub, err := onion.DecodePubkey(c.Pubkey)
	if err != nil {
		return err
	}
	ok, err := onion.IsKeypair(secret, pub)
	if err != nil {
		return err
	}
	if !ok {
		return ErrKeypairMismatch
	}
	return nil
}
