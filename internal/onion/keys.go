package onion

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/curve25519"
)

// Keypair is an X25519 keypair, matching the Rust original's
// generate_x25519_keypair: a raw 32-byte scalar paired with its basepoint
// multiple. curve25519.X25519 clamps the scalar itself, so no manual
// clamping is required before use.
type Keypair struct {
	Secret [32]byte
	Public [32]byte
}

// GenerateKeypair mints a fresh ephemeral X25519 keypair.
func GenerateKeypair() (Keypair, error) {
	var kp Keypair
	if _, err := rand.Read(kp.Secret[:]); err != nil {
		return Keypair{}, wrap(KindIO, err)
	}
	pub, err := curve25519.X25519(kp.Secret[:], curve25519.Basepoint)
	if err != nil {
		return Keypair{}, wrap(KindHandshake, err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// IsKeypair reports whether pub is the basepoint multiple of secret, mirroring
// the Rust original's is_keypair check used by the server to validate its
// configured secret/pubkey pair at startup.
func IsKeypair(secret, pub [32]byte) (bool, error) {
	derived, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return false, wrap(KindHandshake, err)
	}
	return string(derived) == string(pub[:]), nil
}

// DeriveKeyB64 performs the DH between a local secret and a peer's public key
// and base64-encodes the raw shared secret. The base64 string, not the raw
// bytes, is what gets hashed into the actual AES key — see Encrypt/Decrypt.
func DeriveKeyB64(secret, peerPub [32]byte) (string, error) {
	shared, err := curve25519.X25519(secret[:], peerPub[:])
	if err != nil {
		return "", wrap(KindHandshake, err)
	}
	return base64.StdEncoding.EncodeToString(shared), nil
}

// DecodePubkey base64-decodes a 32-byte X25519 public key as stored in
// ServerInfo.Pubkey / ServerConfig.Pubkey.
func DecodePubkey(b64 string) ([32]byte, error) {
	var pub [32]byte
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return pub, wrap(KindConfig, err)
	}
	if len(raw) != 32 {
		return pub, wrap(KindConfig, errBadKeyLength)
	}
	copy(pub[:], raw)
	return pub, nil
}

// DecodeSecret base64-decodes a 32-byte X25519 secret scalar as stored in
// ServerConfig.Secret.
func DecodeSecret(b64 string) ([32]byte, error) {
	var sec [32]byte
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return sec, wrap(KindConfig, err)
	}
	if len(raw) != 32 {
		return sec, wrap(KindConfig, errBadKeyLength)
	}
	copy(sec[:], raw)
	return sec, nil
}

// EncodeKey base64-encodes a 32-byte key for storage in config files.
func EncodeKey(b [32]byte) string {
	return base64.StdEncoding.EncodeToString(b[:])
}
