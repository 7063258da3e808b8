// Package dialer builds a circuit and walks it hop by hop, sending each
// encrypted header in turn and confirming the expected hash echoes back,
// until the full onion is unwrapped at the far end. Grounded on the Rust
// original's comp::dialer::{dial,dial_core}.
package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vrnobody/thomasgo/internal/chain"
	"github.com/vrnobody/thomasgo/internal/config"
	"github.com/vrnobody/thomasgo/internal/onion"
	"github.com/vrnobody/thomasgo/internal/outerproxy"
)

// ErrConnectionClosed is the one opaque error this package ever returns to
// callers — matching the original's design choice to fold every dial,
// handshake, and confirmation failure into a single "connection closed"
// outcome so a misbehaving or unreachable hop anywhere in the circuit can't
// be distinguished from deliberate policy by a curious client.
var ErrConnectionClosed = errors.New("dialer: connection closed")

// Dial builds a fresh circuit ending in cmd/target, connects to the first
// hop (directly, or through cfg.Proxy if set), and sends every encrypted
// header in order, confirming the expected hash comes back after each one.
// On success the returned *websocket.Conn is already past every hop's
// handshake and is ready to pump raw bytes toward the terminal relay.
func Dial(ctx context.Context, cfg config.ClientConfig, cmd onion.Command, target string) (*websocket.Conn, error) {
	padding, err := onion.RandPadding()
	if err != nil {
		return nil, ErrConnectionClosed
	}
	tail := onion.HeaderFrame{Cmd: cmd, Param: target, Padding: padding}

	circuit, err := chain.Build(cfg, tail)
	if err != nil {
		return nil, ErrConnectionClosed
	}

	conn, err := dialFirstHop(ctx, cfg, circuit.Next)
	if err != nil {
		return nil, ErrConnectionClosed
	}

	for i, header := range circuit.Headers {
		data, err := json.Marshal(header)
		if err != nil {
			conn.Close()
			return nil, ErrConnectionClosed
		}
		conn.SetWriteDeadline(time.Now().Add(onion.ConnTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			return nil, ErrConnectionClosed
		}
		conn.SetReadDeadline(time.Now().Add(onion.ConnTimeout))
		mt, payload, err := conn.ReadMessage()
		if err != nil || mt != websocket.BinaryMessage || !bytes.Equal(payload, circuit.Hashes[i]) {
			conn.Close()
			return nil, ErrConnectionClosed
		}
	}
	return conn, nil
}

func dialFirstHop(ctx context.Context, cfg config.ClientConfig, wsURL string) (*websocket.Conn, error) {
	if cfg.Proxy == "" {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		return conn, err
	}

	proxyDialer, err := outerproxy.FromURL(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	targetAddr, err := outerproxy.AddrFromWSURL(wsURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return proxyDialer.Dial(ctx, targetAddr)
		},
		HandshakeTimeout: onion.ConnTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if resp != nil {
		resp.Body.Close()
	}
	return conn, err
}
