// Package outerproxy dials the first hop of a circuit through an optional
// outer HTTP-CONNECT or SOCKS5 proxy, the way a user's corporate egress
// proxy might sit in front of an inlet. Grounded on the Rust original's
// comp::proxy (InnerProxy, tunnel, connect_async).
package outerproxy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/vrnobody/thomasgo/internal/addrutil"
)

var (
	ErrUnsupportedScheme = errors.New("outerproxy: unsupported proxy scheme")
	ErrProxyAuthRequired = errors.New("outerproxy: proxy required authentication (407)")
	ErrTunnelFailed      = errors.New("outerproxy: CONNECT tunnel setup failed")
)

// Dialer dials targetAddr ("host:port") through whatever outer proxy it
// wraps.
type Dialer interface {
	Dial(ctx context.Context, targetAddr string) (net.Conn, error)
}

// FromURL parses a proxy URL (http://, https://, socks5://, optionally with
// basic-auth userinfo) into a Dialer.
func FromURL(raw string) (Dialer, error) {
	if raw == "" {
		return nil, errors.New("outerproxy: empty proxy url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return &httpProxyDialer{proxyAddr: u.Host, auth: basicAuthHeader(u)}, nil
	case "socks5", "socks5h", "socks":
		var auth *proxy.Auth
		if u.User != nil {
			user := u.User.Username()
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: user, Password: pass}
		}
		d, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, err
		}
		return &socks5ProxyDialer{inner: d}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func basicAuthHeader(u *url.URL) string {
	if u.User == nil {
		return ""
	}
	user := u.User.Username()
	pass, _ := u.User.Password()
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

type httpProxyDialer struct {
	proxyAddr string
	auth      string
}

func (d *httpProxyDialer) Dial(ctx context.Context, targetAddr string) (net.Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.proxyAddr)
	if err != nil {
		return nil, err
	}
	if err := tunnel(conn, targetAddr, d.auth); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// tunnel issues an HTTP CONNECT request over conn and reads the response,
// matching the Rust original's tunnel(): 200 means success, 407 means the
// proxy demanded auth we didn't (successfully) provide, anything else fails.
func tunnel(conn net.Conn, targetAddr, auth string) error {
	req := "CONNECT " + targetAddr + " HTTP/1.1\r\nHost: " + targetAddr + "\r\n"
	if auth != "" {
		req += "Proxy-Authorization: " + auth + "\r\n"
	}
	req += "\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		return err
	}

	// Read one byte at a time off the raw conn (not a buffered reader) so we
	// never consume bytes belonging to the tunneled stream that follows —
	// the remote proxy is free to start forwarding the instant it has sent
	// its own header block.
	var header strings.Builder
	one := make([]byte, 1)
	for !strings.HasSuffix(header.String(), "\r\n\r\n") {
		if header.Len() >= 1024 {
			return ErrTunnelFailed
		}
		if _, err := conn.Read(one); err != nil {
			return err
		}
		header.WriteByte(one[0])
	}
	statusLine, _, _ := strings.Cut(header.String(), "\r\n")
	switch {
	case strings.Contains(statusLine, "200"):
		return nil
	case strings.Contains(statusLine, "407"):
		return ErrProxyAuthRequired
	default:
		return fmt.Errorf("%w: %s", ErrTunnelFailed, strings.TrimSpace(statusLine))
	}
}

type socks5ProxyDialer struct {
	inner proxy.Dialer
}

func (d *socks5ProxyDialer) Dial(ctx context.Context, targetAddr string) (net.Conn, error) {
	if ctxDialer, ok := d.inner.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, "tcp", targetAddr)
	}
	return d.inner.Dial("tcp", targetAddr)
}

// AddrFromWSURL extracts the "host:port" a WebSocket URL dials to, applying
// the scheme's default port — a thin re-export so dialer code doesn't need
// to import addrutil directly for this one call.
func AddrFromWSURL(wsURL string) (string, error) {
	return addrutil.GetAddr(wsURL)
}
