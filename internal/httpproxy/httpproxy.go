// Package httpproxy sniffs HTTP CONNECT/GET request lines off a client
// connection and extracts the proxy target, the way the Rust original's
// comp::http::parse_header does.
package httpproxy

import (
	"errors"
	"strings"

	"github.com/vrnobody/thomasgo/internal/addrutil"
)

var ErrIncomplete = errors.New("httpproxy: header not yet complete")

// ParseHeader expects buf to contain (at least) a full HTTP request line
// terminated by the blank-line "\r\n\r\n". It returns the "host:port" target
// for the second whitespace-delimited token (the request-URI). When that
// token cannot be parsed as a URL with an explicit host, it is returned
// verbatim — a deliberate best-effort fallback for bare "CONNECT host:port"
// targets, preserved from the original.
func ParseHeader(buf []byte) (string, error) {
	header := string(buf)
	if !strings.Contains(header, "\r\n\r\n") {
		return "", ErrIncomplete
	}
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return "", errors.New("httpproxy: malformed request line")
	}
	target := fields[1]
	if addr, err := addrutil.GetAddr(target); err == nil {
		return addr, nil
	}
	return target, nil
}

// IsConnect reports whether the request line's method is CONNECT, based on
// the first two sniffed bytes ('C','O'), matching how the client listener
// tells CONNECT tunnels apart from plain GET/POST proxying without needing
// to buffer the full header first.
func IsConnect(first2 []byte) bool {
	return len(first2) >= 2 && first2[0] == 'C' && first2[1] == 'O'
}

// LooksLikeHTTP reports whether the first two sniffed bytes start a CONNECT
// ("CO") or a GET ("GE") request line, the same sniff the client-side
// listener uses to decide whether a new connection is SOCKS5 or HTTP. Other
// methods, such as POST, are not recognized.
func LooksLikeHTTP(first2 []byte) bool {
	if len(first2) < 2 {
		return false
	}
	return (first2[0] == 'C' && first2[1] == 'O') || (first2[0] == 'G' && first2[1] == 'E')
}
