package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrnobody/thomasgo/internal/config"
	"github.com/vrnobody/thomasgo/internal/onion"
)

func node(t *testing.T, name, addr string) (config.ServerInfo, onion.Keypair) {
	t.Helper()
	kp, err := onion.GenerateKeypair()
	require.NoError(t, err)
	return config.ServerInfo{Name: name, Addr: addr, Pubkey: onion.EncodeKey(kp.Public)}, kp
}

func TestBuildChainShapeAndNames(t *testing.T) {
	outlet, outletKP := node(t, "outlet", "outlet.example:443")
	relay, relayKP := node(t, "relay", "relay.example:443")
	inlet, inletKP := node(t, "inlet", "inlet.example:443")

	cfg := config.ClientConfig{
		Length:  1,
		Outlets: []config.ServerInfo{outlet},
		Relays:  []config.ServerInfo{relay},
		Inlets:  []config.ServerInfo{inlet},
	}

	tail := onion.HeaderFrame{Cmd: onion.CmdConnect, Param: "example.org:443"}
	circuit, err := Build(cfg, tail)
	require.NoError(t, err)

	require.Len(t, circuit.Headers, 3)
	require.Len(t, circuit.Hashes, 3)
	require.Equal(t, []string{"inlet", "relay", "outlet"}, circuit.Names)
	assert.Equal(t, inlet.Addr, circuit.Next)

	// Walk the circuit the way a real dialer would: decrypt headers[0] with
	// the inlet's key, follow its Relay param to the relay, decrypt
	// headers[1] with the relay's key, follow to the outlet, and decrypt
	// headers[2] with the outlet's key to recover the original tail.
	inletKey, err := onion.DeriveKeyB64(inletKP.Secret, decodePub(t, circuit.Headers[0].Pubkey))
	require.NoError(t, err)
	frame0, hash0, err := onion.Decrypt(circuit.Headers[0], inletKey)
	require.NoError(t, err)
	assert.Equal(t, onion.CmdRelay, frame0.Cmd)
	assert.Equal(t, relay.Addr, frame0.Param)
	assert.Equal(t, circuit.Hashes[0], hash0)

	relayKey, err := onion.DeriveKeyB64(relayKP.Secret, decodePub(t, circuit.Headers[1].Pubkey))
	require.NoError(t, err)
	frame1, hash1, err := onion.Decrypt(circuit.Headers[1], relayKey)
	require.NoError(t, err)
	assert.Equal(t, onion.CmdRelay, frame1.Cmd)
	assert.Equal(t, outlet.Addr, frame1.Param)
	assert.Equal(t, circuit.Hashes[1], hash1)

	outletKey, err := onion.DeriveKeyB64(outletKP.Secret, decodePub(t, circuit.Headers[2].Pubkey))
	require.NoError(t, err)
	frame2, hash2, err := onion.Decrypt(circuit.Headers[2], outletKey)
	require.NoError(t, err)
	assert.Equal(t, tail.Cmd, frame2.Cmd)
	assert.Equal(t, tail.Param, frame2.Param)
	assert.Equal(t, circuit.Hashes[2], hash2)
}

func TestBuildFailsWithoutCandidates(t *testing.T) {
	_, err := Build(config.ClientConfig{}, onion.HeaderFrame{})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func decodePub(t *testing.T, raw []byte) [32]byte {
	t.Helper()
	var pub [32]byte
	require.Len(t, raw, 32)
	copy(pub[:], raw)
	return pub
}
