package onion

import (
	"crypto/aes"
	"crypto/cipher"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	mrand "math/rand/v2"
	"unicode/utf8"
)

var errBadKeyLength = errors.New("key must be 32 bytes")

// Command identifies what a relay should do with a decrypted HeaderFrame.
type Command uint8

const (
	CmdRelay Command = iota
	CmdConnect
	CmdBind
	CmdUdpAssoc
)

func (c Command) String() string {
	switch c {
	case CmdRelay:
		return "relay"
	case CmdConnect:
		return "connect"
	case CmdBind:
		return "bind"
	case CmdUdpAssoc:
		return "udp-assoc"
	default:
		return "unknown"
	}
}

// HeaderFrame is one hop's plaintext instructions: what to do (Cmd), the
// address or next-hop parameter (Param), and random Padding added purely to
// decorrelate ciphertext lengths across hops.
type HeaderFrame struct {
	Cmd     Command `json:"cmd"`
	Param   string  `json:"param"`
	Padding []byte  `json:"padding"`
}

// EncHeader is the wire form of an encrypted HeaderFrame: the ephemeral
// public key the recipient needs to complete the DH, the AES-GCM nonce, and
// the ciphertext (JSON-marshaled HeaderFrame, GCM-sealed).
type EncHeader struct {
	Nonce      []byte `json:"nonce"`
	Pubkey     []byte `json:"pubkey"`
	Ciphertext []byte `json:"ciphertext"`
}

// RandPadding returns a random byte slice whose length is uniform over the
// half-open range [128, 1024), matching the original's gen_range(128, 1024).
func RandPadding() ([]byte, error) {
	n := paddingMin + mrand.IntN(paddingMax-paddingMin)
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil {
		return nil, wrap(KindIO, err)
	}
	return b, nil
}

// aesKey derives the actual AES-256 key from the base64 DH-output string by
// hashing it with SHA-256 — a deliberate extra hop beyond the raw shared
// secret, preserved from the Rust original's aes_encrypt/aes_decrypt.
func aesKey(keyB64 string) [32]byte {
	return sha256.Sum256([]byte(keyB64))
}

func newGCM(keyB64 string) (cipher.AEAD, error) {
	key := aesKey(keyB64)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals frame under the hop key derived from keyB64, tagging the
// EncHeader with ephPub so the recipient can redo the DH. It also returns the
// SHA-256 hash of keyB64||plaintext, which the recipient echoes back as proof
// of successful decryption.
func Encrypt(frame HeaderFrame, keyB64 string, ephPub [32]byte) (EncHeader, []byte, error) {
	plaintext, err := json.Marshal(frame)
	if err != nil {
		return EncHeader{}, nil, wrap(KindProtocol, err)
	}
	gcm, err := newGCM(keyB64)
	if err != nil {
		return EncHeader{}, nil, wrap(KindHandshake, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := crand.Read(nonce); err != nil {
		return EncHeader{}, nil, wrap(KindIO, err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	hash := hashKeyAndPlaintext(keyB64, plaintext)
	return EncHeader{Nonce: nonce, Pubkey: ephPub[:], Ciphertext: ciphertext}, hash, nil
}

// Decrypt opens an EncHeader with the hop key derived from keyB64, returning
// the plaintext HeaderFrame and the confirmation hash the caller must echo
// back over the wire. It fails closed on any malformed ciphertext: bad GCM
// tag, non-UTF8 plaintext, or invalid JSON.
func Decrypt(enc EncHeader, keyB64 string) (HeaderFrame, []byte, error) {
	gcm, err := newGCM(keyB64)
	if err != nil {
		return HeaderFrame{}, nil, wrap(KindHandshake, err)
	}
	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return HeaderFrame{}, nil, wrap(KindHandshake, err)
	}
	if !utf8.Valid(plaintext) {
		return HeaderFrame{}, nil, wrap(KindProtocol, errNotUTF8)
	}
	var frame HeaderFrame
	if err := json.Unmarshal(plaintext, &frame); err != nil {
		return HeaderFrame{}, nil, wrap(KindProtocol, err)
	}
	hash := hashKeyAndPlaintext(keyB64, plaintext)
	return frame, hash, nil
}

var errNotUTF8 = errors.New("decrypted header is not valid UTF-8")

func hashKeyAndPlaintext(keyB64 string, plaintext []byte) []byte {
	h := sha256.New()
	h.Write([]byte(keyB64))
	h.Write(plaintext)
	return h.Sum(nil)
}
