// Package pump bridges two ends of a tunnel leg — TCP/WebSocket,
// WebSocket/WebSocket, or WebSocket/UDP — copying bytes in both directions
// concurrently, with a deadline refreshed on every blocking op. A pump ends
// as soon as either direction ends; it then closes both sides and waits for
// the other direction to unwind before returning, so no goroutine is ever
// left running past the pump call. Grounded on the Rust original's
// comm::infrs pump family.
package pump

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vrnobody/thomasgo/internal/onion"
	"github.com/vrnobody/thomasgo/internal/socks5"
)

const (
	connTimeout = onion.ConnTimeout
	udpTimeout  = onion.UDPTimeout
	bufLen      = onion.BufLen
)

// TCPWS pumps bytes between a plain TCP connection and a WebSocket
// connection until either side fails or times out.
func TCPWS(tcpConn net.Conn, wsConn *websocket.Conn) {
	done := make(chan struct{}, 2)
	go func() { copyWSToTCP(wsConn, tcpConn); done <- struct{}{} }()
	go func() { copyTCPToWS(tcpConn, wsConn); done <- struct{}{} }()
	<-done
	tcpConn.Close()
	wsConn.Close()
	<-done
}

func copyTCPToWS(tcpConn net.Conn, wsConn *websocket.Conn) {
	buf := make([]byte, bufLen)
	for {
		tcpConn.SetReadDeadline(time.Now().Add(connTimeout))
		n, err := tcpConn.Read(buf)
		if n > 0 {
			wsConn.SetWriteDeadline(time.Now().Add(connTimeout))
			if werr := wsConn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func copyWSToTCP(wsConn *websocket.Conn, tcpConn net.Conn) {
	for {
		wsConn.SetReadDeadline(time.Now().Add(connTimeout))
		mt, data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage && mt != websocket.TextMessage {
			continue
		}
		if len(data) == 0 {
			return
		}
		tcpConn.SetWriteDeadline(time.Now().Add(connTimeout))
		if _, err := tcpConn.Write(data); err != nil {
			return
		}
	}
}

// WSWS pumps bytes between two WebSocket connections — the RELAY command's
// hop-to-hop bridge.
func WSWS(a, b *websocket.Conn) {
	done := make(chan struct{}, 2)
	go func() { copyWSToWS(b, a); done <- struct{}{} }()
	go func() { copyWSToWS(a, b); done <- struct{}{} }()
	<-done
	a.Close()
	b.Close()
	<-done
}

func copyWSToWS(src, dst *websocket.Conn) {
	for {
		src.SetReadDeadline(time.Now().Add(connTimeout))
		mt, data, err := src.ReadMessage()
		if err != nil {
			return
		}
		if len(data) == 0 {
			return
		}
		dst.SetWriteDeadline(time.Now().Add(connTimeout))
		if err := dst.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

// WSUDPRemote pumps a terminal relay's UDP-ASSOCIATE leg: client-sent
// SOCKS5-framed datagrams arrive over the WebSocket and get unwrapped and
// sent to their real destination; replies from that destination get
// re-wrapped and sent back over the WebSocket.
func WSUDPRemote(wsConn *websocket.Conn, udpConn *net.UDPConn) {
	done := make(chan struct{}, 2)
	go func() { copyUDPToWSRemote(udpConn, wsConn); done <- struct{}{} }()
	go func() { copyWSToUDPRemote(wsConn, udpConn); done <- struct{}{} }()
	<-done
	wsConn.Close()
	udpConn.Close()
	<-done
}

func copyWSToUDPRemote(wsConn *websocket.Conn, udpConn *net.UDPConn) {
	for {
		wsConn.SetReadDeadline(time.Now().Add(connTimeout))
		mt, data, err := wsConn.ReadMessage()
		if err != nil || mt != websocket.BinaryMessage || len(data) == 0 {
			return
		}
		target, payload, err := socks5.ParseClientPacket(data)
		if err != nil {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", target)
		if err != nil {
			continue
		}
		udpConn.SetWriteDeadline(time.Now().Add(udpTimeout))
		udpConn.WriteToUDP(payload, addr)
	}
}

func copyUDPToWSRemote(udpConn *net.UDPConn, wsConn *websocket.Conn) {
	buf := make([]byte, bufLen)
	for {
		udpConn.SetReadDeadline(time.Now().Add(udpTimeout))
		n, from, err := udpConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		framed := socks5.FrameReply(from, buf[:n])
		wsConn.SetWriteDeadline(time.Now().Add(connTimeout))
		if err := wsConn.WriteMessage(websocket.BinaryMessage, framed); err != nil {
			return
		}
	}
}

// WSUDPLocal pumps the client-side UDP-ASSOCIATE leg: the local UDP socket
// bound for the SOCKS5 client, and the WebSocket circuit toward the outlet.
// The first datagram received establishes the local address that replies are
// written to; later datagrams are forwarded whatever their source. closeSig lets the owning TCP control
// connection's closure tear down both directions even mid-timeout.
func WSUDPLocal(udpConn *net.UDPConn, wsConn *websocket.Conn, closeSig *atomic.Bool) {
	buf := make([]byte, bufLen)
	udpConn.SetReadDeadline(time.Now().Add(udpTimeout))
	n, clientAddr, err := udpConn.ReadFromUDP(buf)
	if err != nil {
		wsConn.Close()
		udpConn.Close()
		return
	}
	wsConn.SetWriteDeadline(time.Now().Add(connTimeout))
	if err := wsConn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
		wsConn.Close()
		udpConn.Close()
		return
	}

	done := make(chan struct{}, 2)
	go func() { copyUDPToWSLocal(udpConn, wsConn, closeSig); done <- struct{}{} }()
	go func() { copyWSToUDPLocal(wsConn, udpConn, clientAddr, closeSig); done <- struct{}{} }()
	<-done
	wsConn.Close()
	udpConn.Close()
	<-done
}

func copyUDPToWSLocal(udpConn *net.UDPConn, wsConn *websocket.Conn, closeSig *atomic.Bool) {
	buf := make([]byte, bufLen)
	for {
		if closeSig.Load() {
			return
		}
		udpConn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, _, err := udpConn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		wsConn.SetWriteDeadline(time.Now().Add(connTimeout))
		if err := wsConn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
			return
		}
	}
}

func copyWSToUDPLocal(wsConn *websocket.Conn, udpConn *net.UDPConn, clientAddr *net.UDPAddr, closeSig *atomic.Bool) {
	for {
		if closeSig.Load() {
			return
		}
		// A gorilla/websocket read error, timeouts included, is permanent, so
		// this read cannot poll; closeSig still ends it promptly because the
		// UDP direction returns and WSUDPLocal then closes wsConn.
		wsConn.SetReadDeadline(time.Now().Add(udpTimeout))
		mt, data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage || len(data) == 0 {
			return
		}
		udpConn.SetWriteDeadline(time.Now().Add(udpTimeout))
		if _, err := udpConn.WriteToUDP(data, clientAddr); err != nil {
			return
		}
	}
}

// WatchControlClose reads from the SOCKS5 UDP-ASSOCIATE control connection
// until it errors or returns EOF (the end user closed it), then flips
// closeSig so the associated UDP pump unwinds promptly instead of waiting
// out its next idle timeout.
func WatchControlClose(ctrl net.Conn, closeSig *atomic.Bool) {
	buf := make([]byte, 1)
	for {
		_, err := ctrl.Read(buf)
		if err != nil {
			closeSig.Store(true)
			return
		}
	}
}
