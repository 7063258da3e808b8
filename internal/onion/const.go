// Package onion implements the layered header codec: ephemeral X25519 key
// agreement, AES-256-GCM encryption of a single hop's instructions, and the
// SHA-256 hash used by each hop to confirm a successful decrypt back to the
// caller.
package onion

import "time"

const (
	// ConnTimeout bounds any single blocking network op on a tunnel leg.
	ConnTimeout = 3 * time.Minute
	// UDPTimeout bounds idle time on a UDP association before it is torn down.
	UDPTimeout = 30 * time.Minute
	// BufLen is the read-buffer size used throughout the pump code.
	BufLen = 4096

	paddingMin = 128
	paddingMax = 1024
)
