// Package listener runs the client's local accept loop: it sniffs whether a
// freshly accepted TCP connection is speaking SOCKS5 or HTTP proxy protocol,
// then dials an onion circuit and pumps bytes through it. Grounded on the
// Rust original's comp::listener.
package listener

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vrnobody/thomasgo/internal/config"
	"github.com/vrnobody/thomasgo/internal/dialer"
	"github.com/vrnobody/thomasgo/internal/httpproxy"
	"github.com/vrnobody/thomasgo/internal/onion"
	"github.com/vrnobody/thomasgo/internal/pump"
	"github.com/vrnobody/thomasgo/internal/socks5"
	"github.com/vrnobody/thomasgo/internal/xlog"
)

const logTag = "listener"

// Serve runs the client's accept loop on cfg.Listen for the lifetime of ctx.
func Serve(ctx context.Context, cfg config.ClientConfig) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	xlog.Infof(logTag, "listening on %s", cfg.Listen)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				xlog.Warnf(logTag, "accept failed: %v", err)
				continue
			}
		}
		go handleClient(ctx, cfg, conn)
	}
}

func handleClient(ctx context.Context, cfg config.ClientConfig, conn net.Conn) {
	id := xlog.NewConnID()
	xlog.Debugf(logTag, "%s accepted from %s", id, conn.RemoteAddr())

	first := make([]byte, 2)
	conn.SetReadDeadline(time.Now().Add(onion.ConnTimeout))
	if _, err := io.ReadFull(conn, first); err != nil {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	switch {
	case first[0] == 0x05:
		xlog.Debugf(logTag, "%s socks5", id)
		handleSocks5Client(ctx, cfg, &prefixConn{Conn: conn, prefix: first})
	case httpproxy.LooksLikeHTTP(first):
		xlog.Debugf(logTag, "%s http", id)
		handleHTTPClient(ctx, cfg, conn, first)
	default:
		xlog.Warnf(logTag, "%s unrecognized protocol, closing", id)
		conn.Close()
	}
}

// prefixConn replays bytes already consumed off the wire (by the protocol
// sniff in handleClient) before falling through to the real connection, so
// socks5.Handshake can read the version/method header from byte zero as if
// nothing had been peeked.
type prefixConn struct {
	net.Conn
	prefix []byte
}

func (c *prefixConn) Read(b []byte) (int, error) {
	if len(c.prefix) > 0 {
		n := copy(b, c.prefix)
		c.prefix = c.prefix[n:]
		return n, nil
	}
	return c.Conn.Read(b)
}

func handleSocks5Client(ctx context.Context, cfg config.ClientConfig, conn net.Conn) {
	req, err := socks5.Handshake(conn)
	if err != nil {
		conn.Close()
		return
	}

	switch req.Cmd {
	case onion.CmdConnect:
		handleSocks5Connect(ctx, cfg, conn, req.Addr)
	case onion.CmdBind:
		handleSocks5Bind(ctx, cfg, conn, req.Addr)
	case onion.CmdUdpAssoc:
		handleSocks5UDPAssoc(ctx, cfg, conn, req.Addr)
	default:
		socks5.Reply(conn, 0x07)
		conn.Close()
	}
}

func handleSocks5Connect(ctx context.Context, cfg config.ClientConfig, conn net.Conn, target string) {
	ws, err := dialer.Dial(ctx, cfg, onion.CmdConnect, target)
	if err != nil {
		socks5.Reply(conn, 0x05)
		conn.Close()
		return
	}
	if err := socks5.Reply(conn, 0x00); err != nil {
		ws.Close()
		conn.Close()
		return
	}
	pump.TCPWS(conn, ws)
}

// handleSocks5Bind dials a BIND circuit and pumps immediately: the relay
// chain itself writes the SOCKS5-shaped status frames (bound address, then
// peer address) as WebSocket binary messages, which the pump forwards
// verbatim into the local TCP socket — the calling application sees a
// correct BIND reply without this handler constructing one itself.
func handleSocks5Bind(ctx context.Context, cfg config.ClientConfig, conn net.Conn, target string) {
	ws, err := dialer.Dial(ctx, cfg, onion.CmdBind, target)
	if err != nil {
		socks5.Reply(conn, 0x01)
		conn.Close()
		return
	}
	pump.TCPWS(conn, ws)
}

func handleSocks5UDPAssoc(ctx context.Context, cfg config.ClientConfig, conn net.Conn, target string) {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		socks5.Reply(conn, 0x01)
		conn.Close()
		return
	}
	ws, err := dialer.Dial(ctx, cfg, onion.CmdUdpAssoc, target)
	if err != nil {
		socks5.Reply(conn, 0x05)
		udpConn.Close()
		conn.Close()
		return
	}
	if err := socks5.ReplySuccess(conn, udpConn.LocalAddr().(*net.UDPAddr)); err != nil {
		ws.Close()
		udpConn.Close()
		conn.Close()
		return
	}

	var closeSig atomic.Bool
	go pump.WatchControlClose(conn, &closeSig)
	pump.WSUDPLocal(udpConn, ws, &closeSig)
	conn.Close()
}

func handleHTTPClient(ctx context.Context, cfg config.ClientConfig, conn net.Conn, firstBytes []byte) {
	header := readHTTPHeader(conn, firstBytes)
	if header == nil {
		conn.Close()
		return
	}
	target, err := httpproxy.ParseHeader(header)
	if err != nil {
		conn.Close()
		return
	}

	ws, err := dialer.Dial(ctx, cfg, onion.CmdConnect, target)
	if err != nil {
		conn.Close()
		return
	}

	if httpproxy.IsConnect(firstBytes) {
		conn.SetWriteDeadline(time.Now().Add(onion.ConnTimeout))
		if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
			ws.Close()
			conn.Close()
			return
		}
	} else {
		// Plain GET proxying: forward the already-buffered header as
		// the first bytes of the tunneled stream instead of acknowledging
		// a CONNECT that was never requested.
		ws.SetWriteDeadline(time.Now().Add(onion.ConnTimeout))
		if err := ws.WriteMessage(websocket.BinaryMessage, header); err != nil {
			ws.Close()
			conn.Close()
			return
		}
	}
	pump.TCPWS(conn, ws)
}

// readHTTPHeader reads off conn until the blank-line terminator is seen,
// prefixed with the 2 bytes handleClient already sniffed.
func readHTTPHeader(conn net.Conn, firstBytes []byte) []byte {
	buf := append([]byte{}, firstBytes...)
	chunk := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(onion.ConnTimeout))
	for len(buf) < 64*1024 {
		if containsTerminator(buf) {
			return buf
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if containsTerminator(buf) {
				return buf
			}
			return nil
		}
	}
	return nil
}

func containsTerminator(buf []byte) bool {
	return len(buf) >= 4 && indexCRLFCRLF(buf) >= 0
}

func indexCRLFCRLF(buf []byte) int {
	for i := 0; i+3 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' && buf[i+2] == '\r' && buf[i+3] == '\n' {
			return i
		}
	}
	return -1
}
