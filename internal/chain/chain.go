// Package chain builds a randomly composed onion circuit: one outlet, N
// relays, one inlet, each layer's header nested inside the one the hop
// before it will forward. Grounded on the Rust original's
// comp::dialer::{append,make_chain}.
package chain

import (
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/vrnobody/thomasgo/internal/config"
	"github.com/vrnobody/thomasgo/internal/onion"
	"github.com/vrnobody/thomasgo/internal/xlog"
)

// ErrNoCandidates is returned when the client config has no inlets or
// outlets to pick from — a circuit cannot be built.
var ErrNoCandidates = errors.New("chain: no outlet or inlet candidates configured")

// Circuit is a fully built onion circuit, ready to be dialed: Next is the
// address of the first hop (the inlet) to connect to; Headers are the
// encrypted layers in the order they must be sent (outermost/inlet-facing
// first); Hashes are the confirmation hashes expected back after each send,
// in the same order; Names records the hop name at each position, outermost
// (inlet) first, innermost (outlet) last.
type Circuit struct {
	Next    string
	Headers []onion.EncHeader
	Hashes  [][]byte
	Names   []string
}

// Build picks a random outlet, cfg.Length random relays, and a random inlet,
// then layers tail (the terminal command — Connect/Bind/UdpAssoc) inside
// nested Relay headers for every hop walked backward from the outlet to the
// inlet. One fresh ephemeral keypair is generated per circuit, so every
// header carries the same ephemeral public key.
func Build(cfg config.ClientConfig, tail onion.HeaderFrame) (Circuit, error) {
	if len(cfg.Outlets) == 0 || len(cfg.Inlets) == 0 {
		return Circuit{}, ErrNoCandidates
	}
	if cfg.Length > 0 && len(cfg.Relays) == 0 {
		return Circuit{}, ErrNoCandidates
	}

	nodes := make([]config.ServerInfo, 0, cfg.Length+2)
	nodes = append(nodes, pick(cfg.Outlets))
	for i := 0; i < cfg.Length; i++ {
		nodes = append(nodes, pick(cfg.Relays))
	}
	nodes = append(nodes, pick(cfg.Inlets))

	ephemeral, err := onion.GenerateKeypair()
	if err != nil {
		return Circuit{}, err
	}

	var headers []onion.EncHeader
	var hashes [][]byte
	var names []string
	frame := tail

	for _, node := range nodes {
		peerPub, err := onion.DecodePubkey(node.Pubkey)
		if err != nil {
			return Circuit{}, err
		}
		keyB64, err := onion.DeriveKeyB64(ephemeral.Secret, peerPub)
		if err != nil {
			return Circuit{}, err
		}
		enc, hash, err := onion.Encrypt(frame, keyB64, ephemeral.Public)
		if err != nil {
			return Circuit{}, err
		}

		headers = prepend(headers, enc)
		hashes = prependBytes(hashes, hash)
		names = prependString(names, node.Name)

		padding, err := onion.RandPadding()
		if err != nil {
			return Circuit{}, err
		}
		frame = onion.HeaderFrame{Cmd: onion.CmdRelay, Param: node.Addr, Padding: padding}
	}

	xlog.Infof("chain", "chain: [%s]", strings.Join(names, ", "))

	inlet := nodes[len(nodes)-1]
	return Circuit{Next: inlet.Addr, Headers: headers, Hashes: hashes, Names: names}, nil
}

func pick(pool []config.ServerInfo) config.ServerInfo {
	return pool[rand.IntN(len(pool))]
}

func prepend(s []onion.EncHeader, v onion.EncHeader) []onion.EncHeader {
	return append([]onion.EncHeader{v}, s...)
}

func prependBytes(s [][]byte, v []byte) [][]byte {
	return append([][]byte{v}, s...)
}

func prependString(s []string, v string) []string {
	return append([]string{v}, s...)
}
