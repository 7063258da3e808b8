package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func newTestContext(t *testing.T, args []string) *cli.Context {
	t.Helper()
	app := &cli.App{
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}},
			&cli.BoolFlag{Name: "stdin", Aliases: []string{"s"}},
		},
	}
	set := flag.NewFlagSet("client", flag.ContinueOnError)
	set.String("config", "", "")
	set.Bool("stdin", false, "")
	require.NoError(t, set.Parse(args))
	return cli.NewContext(app, set, nil)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	raw := `{"listen":"127.0.0.1:1080","length":1,"inlets":[{"name":"n","addr":"a","pubkey":"p"}],"outlets":[{"name":"n","addr":"a","pubkey":"p"}]}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	ctx := newTestContext(t, []string{"--config", path})
	cfg, err := loadConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:1080", cfg.Listen)
	require.Equal(t, 1, cfg.Length)
}

func TestLoadConfigFromStdin(t *testing.T) {
	raw := `{"listen":"127.0.0.1:1081"}`
	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	origStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = origStdin }()

	ctx := newTestContext(t, []string{"--stdin"})
	cfg, err := loadConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:1081", cfg.Listen)
}

func TestLoadConfigRequiresConfigOrStdin(t *testing.T) {
	ctx := newTestContext(t, nil)
	_, err := loadConfig(ctx)
	require.Error(t, err)
}
