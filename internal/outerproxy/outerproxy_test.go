package outerproxy

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHTTPProxy accepts one connection, reads the CONNECT request line, and
// replies with either a success or failure status; on success it echoes back
// up to five bytes sent through the tunnel so the test can confirm the tunnel
// is transparent from then on.
func fakeHTTPProxy(t *testing.T, status string, wantAuth string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		reqLine, _ := r.ReadString('\n')
		_ = reqLine
		var authHeader string
		for {
			line, err := r.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
			if strings.HasPrefix(line, "Proxy-Authorization:") {
				authHeader = strings.TrimSpace(strings.TrimPrefix(line, "Proxy-Authorization:"))
			}
		}
		if wantAuth != "" && authHeader != wantAuth {
			conn.Write([]byte("HTTP/1.1 407 Proxy Authentication Required\r\n\r\n"))
			return
		}
		conn.Write([]byte("HTTP/1.1 " + status + "\r\n\r\n"))
		if strings.Contains(status, "200") {
			buf := make([]byte, 5)
			n, _ := conn.Read(buf)
			conn.Write(buf[:n])
		}
	}()
	return ln.Addr().String()
}

func TestHTTPProxyTunnelSuccess(t *testing.T) {
	addr := fakeHTTPProxy(t, "200 Connection Established", "")
	d, err := FromURL("http://" + addr)
	require.NoError(t, err)

	conn, err := d.Dial(context.Background(), "example.com:443")
	require.NoError(t, err)
	defer conn.Close()

	conn.Write([]byte("hello"))
	buf := make([]byte, 5)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestHTTPProxyTunnelSucceedsWithRequiredAuth(t *testing.T) {
	addr := fakeHTTPProxy(t, "200 Connection Established", "Basic dXNlcjpwYXNz")
	d, err := FromURL("http://user:pass@" + addr)
	require.NoError(t, err)

	conn, err := d.Dial(context.Background(), "example.com:443")
	require.NoError(t, err)
	defer conn.Close()
}

func TestHTTPProxyTunnelFailsWith407WithoutCredentials(t *testing.T) {
	addr := fakeHTTPProxy(t, "200 Connection Established", "Basic dXNlcjpwYXNz")
	d, err := FromURL("http://" + addr) // no credentials supplied
	require.NoError(t, err)

	_, err = d.Dial(context.Background(), "example.com:443")
	assert.ErrorIs(t, err, ErrProxyAuthRequired)
}

func TestFromURLRejectsUnsupportedScheme(t *testing.T) {
	_, err := FromURL("ftp://example.com")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}
