// Command client runs the SOCKS5/HTTP proxy front end: it accepts local
// browser/tool connections and tunnels them through a randomly composed
// onion circuit of relay servers. Grounded on the Rust original's client.rs
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
	"github.com/vrnobody/thomasgo/internal/listener"
	"github.com/vrnobody/thomasgo/internal/xlog"
)

func main() {
	app := &cli.App{
		Name:  "client",
		Usage: "onion-routed SOCKS5/HTTP proxy client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to client config JSON"},
			&cli.BoolFlag{Name: "stdin", Aliases: []string{"s"}, Usage: "read client config JSON from stdin"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	xlog.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		xlog.Infof("client", "shutting down")
		cancel()
	}()

	return listener.Serve(ctx, cfg)
}

func loadConfig(c *cli.Context) (config.ClientConfig, error) {
	switch {
	case c.Bool("stdin"):
		return config.ReadClientConfigStdin()
	case c.String("config") != "":
		return config.LoadClientConfig(c.String("config"))
	default:
		return config.ClientConfig{}, cli.Exit("one of --config or --stdin is required", 1)
	}
}
