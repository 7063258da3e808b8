// Package relay implements a single onion-routing hop: accept a WebSocket
// upgrade, read exactly one encrypted header, decrypt it against the
// server's keypair, echo the confirmation hash, and dispatch on the
// decrypted command (forward to the next hop, open a TCP connection, listen
// for a BIND peer, or bridge a UDP association). Grounded on the Rust
// original's comp::ws.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vrnobody/thomasgo/internal/config"
	"github.com/vrnobody/thomasgo/internal/onion"
	"github.com/vrnobody/thomasgo/internal/pump"
	"github.com/vrnobody/thomasgo/internal/xlog"
)

const logTag = "relay"

var errBadAddr = errors.New("relay: address is not a TCP address")

// Serve runs the relay server: validates cfg's keypair, then accepts
// WebSocket upgrades on cfg.Listen for the lifetime of ctx.
func Serve(ctx context.Context, cfg config.ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			xlog.Warnf(logTag, "upgrade failed: %v", err)
			return
		}
		go handleHop(cfg, conn)
	})

	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: onion.ConnTimeout}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	xlog.Infof(logTag, "listening on %s", cfg.Listen)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleHop reads the one expected encrypted header off a freshly upgraded
// connection, decrypts it, confirms the hash, and dispatches.
func handleHop(cfg config.ServerConfig, conn *websocket.Conn) {
	id := xlog.NewConnID()
	xlog.Debugf(logTag, "%s hop started", id)

	conn.SetReadDeadline(time.Now().Add(onion.ConnTimeout))
	mt, data, err := conn.ReadMessage()
	if err != nil || mt != websocket.TextMessage {
		conn.Close()
		return
	}

	var enc onion.EncHeader
	if err := json.Unmarshal(data, &enc); err != nil {
		conn.Close()
		return
	}

	secret, err := onion.DecodeSecret(cfg.Secret)
	if err != nil {
		conn.Close()
		return
	}
	var peerPub [32]byte
	if len(enc.Pubkey) != 32 {
		conn.Close()
		return
	}
	copy(peerPub[:], enc.Pubkey)

	keyB64, err := onion.DeriveKeyB64(secret, peerPub)
	if err != nil {
		conn.Close()
		return
	}
	frame, hash, err := onion.Decrypt(enc, keyB64)
	if err != nil {
		// Failure to decrypt: close with no reply, giving an attacker no
		// signal to distinguish "wrong key" from "malformed ciphertext".
		conn.Close()
		return
	}

	conn.SetWriteDeadline(time.Now().Add(onion.ConnTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, hash); err != nil {
		conn.Close()
		return
	}

	xlog.Debugf(logTag, "%s dispatching %s %s", id, frame.Cmd, frame.Param)
	dispatch(conn, frame)
}

func dispatch(conn *websocket.Conn, frame onion.HeaderFrame) {
	switch frame.Cmd {
	case onion.CmdRelay:
		relayToNextHop(conn, frame.Param)
	case onion.CmdConnect:
		connectTCP(conn, frame.Param)
	case onion.CmdBind:
		bindTCP(conn, frame.Param)
	case onion.CmdUdpAssoc:
		udpAssociate(conn)
	default:
		conn.Close()
	}
}

func relayToNextHop(conn *websocket.Conn, nextAddr string) {
	dialer := websocket.Dialer{HandshakeTimeout: onion.ConnTimeout}
	next, _, err := dialer.Dial(nextAddr, nil)
	if err != nil {
		xlog.Warnf(logTag, "relay dial %s failed: %v", nextAddr, err)
		conn.Close()
		return
	}
	pump.WSWS(conn, next)
}

func connectTCP(conn *websocket.Conn, target string) {
	tcpConn, err := net.DialTimeout("tcp", target, onion.ConnTimeout)
	if err != nil {
		xlog.Warnf(logTag, "connect %s failed: %v", target, err)
		conn.Close()
		return
	}
	pump.TCPWS(tcpConn, conn)
}

// bindFailureFrame is the fixed 10-byte status sent when a BIND listen call
// itself fails, preserved byte-for-byte from the Rust original's
// handle_bind_cmd.
var bindFailureFrame = []byte{0x05, 0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

func bindTCP(conn *websocket.Conn, bindAddr string) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		xlog.Warnf(logTag, "bind %s failed: %v", bindAddr, err)
		conn.SetWriteDeadline(time.Now().Add(onion.ConnTimeout))
		conn.WriteMessage(websocket.BinaryMessage, bindFailureFrame)
		conn.Close()
		return
	}
	defer ln.Close()

	if err := sendBoundStatus(conn, ln.Addr()); err != nil {
		conn.Close()
		return
	}

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		c, err := ln.Accept()
		accepted <- acceptResult{c, err}
	}()

	select {
	case res := <-accepted:
		if res.err != nil {
			conn.Close()
			return
		}
		if err := sendBoundStatus(conn, res.conn.RemoteAddr()); err != nil {
			res.conn.Close()
			conn.Close()
			return
		}
		pump.TCPWS(res.conn, conn)
	case <-time.After(onion.ConnTimeout):
		conn.Close()
	}
}

func sendBoundStatus(conn *websocket.Conn, addr net.Addr) error {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return errBadAddr
	}
	ip4 := tcpAddr.IP.To4()
	var frame []byte
	if ip4 != nil {
		frame = append([]byte{0x05, 0x00, 0x00, 0x01}, ip4...)
	} else {
		frame = append([]byte{0x05, 0x00, 0x00, 0x04}, tcpAddr.IP.To16()...)
	}
	frame = append(frame, byte(tcpAddr.Port>>8), byte(tcpAddr.Port))
	conn.SetWriteDeadline(time.Now().Add(onion.ConnTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

func udpAssociate(conn *websocket.Conn) {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		conn.Close()
		return
	}
	pump.WSUDPRemote(conn, udpConn)
}
