package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrnobody/thomasgo/internal/onion"
)

func TestParseClientConfig(t *testing.T) {
	raw := `{
		"listen": "127.0.0.1:1080",
		"length": 2,
		"inlets": [{"name":"in1","addr":"1.2.3.4:443","pubkey":"AAAA"}],
		"outlets": [{"name":"out1","addr":"5.6.7.8:443","pubkey":"BBBB"}],
		"relays": [{"name":"r1","addr":"9.9.9.9:443","pubkey":"CCCC"}]
	}`
	cfg, err := parseClientConfig(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Length)
	assert.Len(t, cfg.Inlets, 1)
	assert.Len(t, cfg.Outlets, 1)
	assert.Len(t, cfg.Relays, 1)
}

func TestServerConfigValidate(t *testing.T) {
	kp, err := onion.GenerateKeypair()
	require.NoError(t, err)

	good := ServerConfig{
		Listen: "0.0.0.0:8443",
		Pubkey: onion.EncodeKey(kp.Public),
		Secret: onion.EncodeKey(kp.Secret),
	}
	assert.NoError(t, good.Validate())

	other, err := onion.GenerateKeypair()
	require.NoError(t, err)
	bad := good
	bad.Pubkey = onion.EncodeKey(other.Public)
	assert.ErrorIs(t, bad.Validate(), ErrKeypairMismatch)
}
