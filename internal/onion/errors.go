package onion

// ErrorKind classifies failures the way SPEC_FULL.md §7 groups them, so
// callers can decide policy (retry, abort circuit, log and continue) without
// string-matching error text.
type ErrorKind int

const (
	KindProtocol ErrorKind = iota
	KindHandshake
	KindIO
	KindTimeout
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindHandshake:
		return "handshake"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind, matching the typed-error
// idiom used elsewhere in the teacher codebase (see errNoIPv4 in
// netselect.go).
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func wrap(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}
