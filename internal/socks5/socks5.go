// Package socks5 implements the no-auth subset of RFC 1928 needed by the
// client-side listener: greeting/method negotiation, the CONNECT/BIND/
// UDP-ASSOCIATE request parse, and fixed replies. Grounded on the Rust
// original's comp::socks5::{do_socks5_handshake,reply}.
package socks5

import (
	"errors"
	"io"
	"net"
	"strconv"

	"github.com/vrnobody/thomasgo/internal/onion"
)

const (
	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	repSucceeded     = 0x00
	repGeneralFail   = 0x01
	repCmdNotSup     = 0x07
	repAddrNotSup    = 0x08
	cmdConnectByte   = 0x01
	cmdBindByte      = 0x02
	cmdUDPAssocByte  = 0x03
	socks5Ver        = 0x05
	noAuthMethod     = 0x00
)

var (
	ErrUnsupportedVersion = errors.New("socks5: unsupported protocol version")
	ErrNoAcceptableAuth   = errors.New("socks5: client offered no acceptable auth method")
	ErrUnsupportedCommand = errors.New("socks5: unsupported command")
	ErrUnsupportedAddr    = errors.New("socks5: unsupported address type")
)

// Request is a parsed SOCKS5 client request: the requested command and the
// "host:port" target it carries.
type Request struct {
	Cmd  onion.Command
	Addr string
}

// Handshake reads the version/method greeting, replies selecting no-auth
// (rejecting the client if it cannot offer it), then reads and parses the
// CONNECT/BIND/UDP-ASSOCIATE request line. An unsupported command or address
// type gets the matching failure reply before the error is returned; a wrong
// version byte is rejected without any reply.
func Handshake(conn net.Conn) (Request, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return Request{}, err
	}
	if hdr[0] != socks5Ver {
		return Request{}, ErrUnsupportedVersion
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return Request{}, err
	}
	if !containsByte(methods, noAuthMethod) {
		_, _ = conn.Write([]byte{socks5Ver, 0xFF})
		return Request{}, ErrNoAcceptableAuth
	}
	if _, err := conn.Write([]byte{socks5Ver, noAuthMethod}); err != nil {
		return Request{}, err
	}

	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil {
		return Request{}, err
	}
	cmd, err := cmdFromByte(req[1])
	if err != nil {
		_ = Reply(conn, repCmdNotSup)
		return Request{}, err
	}
	addr, err := readAddr(conn, req[3])
	if err != nil {
		_ = Reply(conn, repAddrNotSup)
		return Request{}, err
	}
	return Request{Cmd: cmd, Addr: addr}, nil
}

func cmdFromByte(b byte) (onion.Command, error) {
	switch b {
	case cmdConnectByte:
		return onion.CmdConnect, nil
	case cmdBindByte:
		return onion.CmdBind, nil
	case cmdUDPAssocByte:
		return onion.CmdUdpAssoc, nil
	default:
		return 0, ErrUnsupportedCommand
	}
}

func readAddr(conn net.Conn, atyp byte) (string, error) {
	switch atyp {
	case atypIPv4:
		b := make([]byte, 4+2)
		if _, err := io.ReadFull(conn, b); err != nil {
			return "", err
		}
		ip := net.IP(b[:4]).String()
		port := strconv.Itoa(int(b[4])<<8 | int(b[5]))
		return net.JoinHostPort(ip, port), nil
	case atypDomain:
		l := make([]byte, 1)
		if _, err := io.ReadFull(conn, l); err != nil {
			return "", err
		}
		b := make([]byte, int(l[0])+2)
		if _, err := io.ReadFull(conn, b); err != nil {
			return "", err
		}
		host := string(b[:l[0]])
		port := strconv.Itoa(int(b[l[0]])<<8 | int(b[l[0]+1]))
		return net.JoinHostPort(host, port), nil
	case atypIPv6:
		b := make([]byte, 16+2)
		if _, err := io.ReadFull(conn, b); err != nil {
			return "", err
		}
		ip := net.IP(b[:16]).String()
		port := strconv.Itoa(int(b[16])<<8 | int(b[17]))
		return net.JoinHostPort(ip, port), nil
	default:
		return "", ErrUnsupportedAddr
	}
}

func containsByte(hay []byte, b byte) bool {
	for _, v := range hay {
		if v == b {
			return true
		}
	}
	return false
}

// Reply writes a fixed 10-byte SOCKS5 reply carrying rep as the status and
// an all-zero IPv4 bound address, matching the Rust original's reply().
func Reply(conn net.Conn, rep byte) error {
	_, err := conn.Write([]byte{socks5Ver, rep, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0})
	return err
}

// ReplySuccess writes a success reply carrying the real bound address (an
// all-zero IPv4 address when bound is not IPv4), used to report
// UDP-ASSOCIATE's local bound port.
func ReplySuccess(conn net.Conn, bound *net.UDPAddr) error {
	ip4 := bound.IP.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	port := bound.Port
	buf := []byte{socks5Ver, repSucceeded, 0x00, atypIPv4, ip4[0], ip4[1], ip4[2], ip4[3], byte(port >> 8), byte(port)}
	_, err := conn.Write(buf)
	return err
}
