package main

import (
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/vrnobody/thomasgo/internal/onion"
)

func newTestContext(t *testing.T, args []string) *cli.Context {
	t.Helper()
	app := &cli.App{
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}},
			&cli.BoolFlag{Name: "stdin", Aliases: []string{"s"}},
			&cli.BoolFlag{Name: "key"},
		},
	}
	set := flag.NewFlagSet("server", flag.ContinueOnError)
	set.String("config", "", "")
	set.Bool("stdin", false, "")
	set.Bool("key", false, "")
	require.NoError(t, set.Parse(args))
	return cli.NewContext(app, set, nil)
}

func TestLoadConfigFromFile(t *testing.T) {
	kp, err := onion.GenerateKeypair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "server.json")
	raw, err := json.Marshal(map[string]string{
		"listen": "0.0.0.0:8443",
		"pubkey": onion.EncodeKey(kp.Public),
		"secret": onion.EncodeKey(kp.Secret),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	ctx := newTestContext(t, []string{"--config", path})
	cfg, err := loadConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8443", cfg.Listen)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigRequiresConfigOrStdin(t *testing.T) {
	ctx := newTestContext(t, nil)
	_, err := loadConfig(ctx)
	require.Error(t, err)
}

// TestPrintKeypairEmitsValidatingPair checks --key's output is a JSON object
// whose secret genuinely derives its pubkey, matching what ServerConfig's
// Validate would accept.
func TestPrintKeypairEmitsValidatingPair(t *testing.T) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	err = printKeypair()
	w.Close()
	os.Stdout = origStdout
	require.NoError(t, err)

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	var decoded struct {
		Pubkey string `json:"pubkey"`
		Secret string `json:"secret"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))

	secret, err := onion.DecodeSecret(decoded.Secret)
	require.NoError(t, err)
	pub, err := onion.DecodePubkey(decoded.Pubkey)
	require.NoError(t, err)
	ok, err := onion.IsKeypair(secret, pub)
	require.NoError(t, err)
	require.True(t, ok)
}
