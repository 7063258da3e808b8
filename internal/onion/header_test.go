package onion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHeaderRoundTrip mirrors the original header_tests: a client and a
// server each generate an X25519 keypair, derive the same shared key from
// each other's public half, and agree on both the plaintext frame and the
// confirmation hash after an encrypt/decrypt round trip.
func TestHeaderRoundTrip(t *testing.T) {
	client, err := GenerateKeypair()
	require.NoError(t, err)
	server, err := GenerateKeypair()
	require.NoError(t, err)

	clientKey, err := DeriveKeyB64(client.Secret, server.Public)
	require.NoError(t, err)
	serverKey, err := DeriveKeyB64(server.Secret, client.Public)
	require.NoError(t, err)
	assert.Equal(t, clientKey, serverKey, "DH must agree regardless of direction")

	padding, err := RandPadding()
	require.NoError(t, err)
	frame := HeaderFrame{Cmd: CmdConnect, Param: "example.com:443", Padding: padding}

	enc, sendHash, err := Encrypt(frame, clientKey, client.Public)
	require.NoError(t, err)

	got, recvHash, err := Decrypt(enc, serverKey)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
	assert.Equal(t, sendHash, recvHash)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	peer, err := GenerateKeypair()
	require.NoError(t, err)
	key, err := DeriveKeyB64(kp.Secret, peer.Public)
	require.NoError(t, err)

	frame := HeaderFrame{Cmd: CmdRelay, Param: "10.0.0.1:9000"}
	a, _, err := Encrypt(frame, key, kp.Public)
	require.NoError(t, err)
	b, _, err := Encrypt(frame, key, kp.Public)
	require.NoError(t, err)

	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestDecryptFailsOnWrongKey(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	peer, err := GenerateKeypair()
	require.NoError(t, err)
	other, err := GenerateKeypair()
	require.NoError(t, err)

	key, err := DeriveKeyB64(kp.Secret, peer.Public)
	require.NoError(t, err)
	wrongKey, err := DeriveKeyB64(other.Secret, peer.Public)
	require.NoError(t, err)

	enc, _, err := Encrypt(HeaderFrame{Cmd: CmdConnect, Param: "x"}, key, kp.Public)
	require.NoError(t, err)

	_, _, err = Decrypt(enc, wrongKey)
	require.Error(t, err)
}

func TestRandPaddingRangeIsHalfOpen(t *testing.T) {
	for i := 0; i < 200; i++ {
		b, err := RandPadding()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(b), paddingMin)
		assert.Less(t, len(b), paddingMax)
	}
}

func TestIsKeypair(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	ok, err := IsKeypair(kp.Secret, kp.Public)
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := GenerateKeypair()
	require.NoError(t, err)
	ok, err = IsKeypair(kp.Secret, other.Public)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncodeDecodeKeyRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	b64 := EncodeKey(kp.Public)
	got, err := DecodePubkey(b64)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, got)

	_, err = DecodePubkey("not-base64!!")
	assert.Error(t, err)
}
