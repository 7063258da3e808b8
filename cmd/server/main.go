// Command server runs a single onion-routing relay hop: it accepts
// WebSocket upgrades, decrypts one header per connection against its
// keypair, and forwards/connects/binds/associates accordingly. Grounded on
// the Rust original's server.rs (including its keypair-mismatch exit code)
// and the teacher's own main.go flag-then-serve shape.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/vrnobody/thomasgo/internal/config"
	"github.com/vrnobody/thomasgo/internal/onion"
	"github.com/vrnobody/thomasgo/internal/relay"
	"github.com/vrnobody/thomasgo/internal/xlog"
)

func main() {
	app := &cli.App{
		Name:  "server",
		Usage: "onion-routing relay hop",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to server config JSON"},
			&cli.BoolFlag{Name: "stdin", Aliases: []string{"s"}, Usage: "read server config JSON from stdin"},
			&cli.BoolFlag{Name: "key", Usage: "generate a fresh X25519 keypair and print it as JSON, then exit"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Bool("key") {
		return printKeypair()
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	xlog.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		xlog.Infof("server", "shutting down")
		cancel()
	}()

	return relay.Serve(ctx, cfg)
}

func printKeypair() error {
	kp, err := onion.GenerateKeypair()
	if err != nil {
		return err
	}
	fmt.Printf("{\"pubkey\":%q,\"secret\":%q}\n", onion.EncodeKey(kp.Public), onion.EncodeKey(kp.Secret))
	return nil
}

func loadConfig(c *cli.Context) (config.ServerConfig, error) {
	switch {
	case c.Bool("stdin"):
		return config.ReadServerConfigStdin()
	case c.String("config") != "":
		return config.LoadServerConfig(c.String("config"))
	default:
		return config.ServerConfig{}, cli.Exit("one of --config or --stdin is required", 1)
	}
}
