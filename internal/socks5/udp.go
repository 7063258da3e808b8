package socks5

import (
	"encoding/binary"
	"errors"
	"net"
	"strconv"
)

var (
	ErrShortUDPPacket = errors.New("socks5: udp packet too short")
	ErrUDPFragmented  = errors.New("socks5: fragmented udp packets are not supported")
)

// ParseClientPacket decodes a SOCKS5 UDP request datagram: the fixed
// "00 00 00 <ATYP> <ADDR> <PORT>" prefix followed by the payload. Grounded
// on the Rust original's send_socks5_udp_pkg_to_remote_host.
func ParseClientPacket(pkt []byte) (target string, payload []byte, err error) {
	if len(pkt) < 4 {
		return "", nil, ErrShortUDPPacket
	}
	if pkt[2] != 0 {
		return "", nil, ErrUDPFragmented
	}
	atyp := pkt[3]
	rest := pkt[4:]
	switch atyp {
	case atypIPv4:
		if len(rest) < 4+2 {
			return "", nil, ErrShortUDPPacket
		}
		ip := net.IP(rest[:4]).String()
		port := binary.BigEndian.Uint16(rest[4:6])
		return net.JoinHostPort(ip, strconv.Itoa(int(port))), rest[6:], nil
	case atypDomain:
		if len(rest) < 1 {
			return "", nil, ErrShortUDPPacket
		}
		l := int(rest[0])
		if len(rest) < 1+l+2 {
			return "", nil, ErrShortUDPPacket
		}
		host := string(rest[1 : 1+l])
		port := binary.BigEndian.Uint16(rest[1+l : 1+l+2])
		return net.JoinHostPort(host, strconv.Itoa(int(port))), rest[1+l+2:], nil
	case atypIPv6:
		if len(rest) < 16+2 {
			return "", nil, ErrShortUDPPacket
		}
		ip := net.IP(rest[:16]).String()
		port := binary.BigEndian.Uint16(rest[16:18])
		return net.JoinHostPort(ip, strconv.Itoa(int(port))), rest[18:], nil
	default:
		return "", nil, ErrUnsupportedAddr
	}
}

// FrameReply builds the reply datagram sent back to the local client: the
// same "00 00 00 <ATYP> <ADDR> <PORT>" prefix, now describing the remote
// peer the payload actually came from, followed by the payload.
func FrameReply(from *net.UDPAddr, payload []byte) []byte {
	prefix := AddrToBytes(from)
	out := make([]byte, 0, len(prefix)+len(payload))
	out = append(out, prefix...)
	out = append(out, payload...)
	return out
}

// AddrToBytes renders a UDP address as "<ATYP> <ADDR> <PORT>" prefixed by
// the three reserved zero bytes, matching the original's addr_to_vec.
func AddrToBytes(addr *net.UDPAddr) []byte {
	var out []byte
	if ip4 := addr.IP.To4(); ip4 != nil {
		out = append([]byte{0, 0, 0, atypIPv4}, ip4...)
	} else {
		out = append([]byte{0, 0, 0, atypIPv6}, addr.IP.To16()...)
	}
	port := make([]byte, 2)
	binary.BigEndian.PutUint16(port, uint16(addr.Port))
	return append(out, port...)
}
