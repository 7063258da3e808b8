// Package addrutil extracts a "host:port" string from a URL, applying the
// scheme's conventional default port when one is not given explicitly. It is
// the Go counterpart of the Rust original's comm::utils::get_addr.
package addrutil

import (
	"errors"
	"net"
	"net/url"
)

var ErrNoHost = errors.New("addrutil: url has no host")

// GetAddr parses raw as a URL and returns "host:port". If raw carries an
// explicit port it is kept verbatim; otherwise the port defaults to 443 for
// https/wss schemes and 80 for everything else.
func GetAddr(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", ErrNoHost
	}
	if port := u.Port(); port != "" {
		return net.JoinHostPort(host, port), nil
	}
	switch u.Scheme {
	case "https", "wss":
		return net.JoinHostPort(host, "443"), nil
	default:
		return net.JoinHostPort(host, "80"), nil
	}
}
