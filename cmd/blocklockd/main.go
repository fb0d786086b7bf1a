package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p"

	"github.com/blocknetprivacy/blocklockd/internal/blocklock"
	"github.com/blocknetprivacy/blocklockd/internal/chainhost"
	"github.com/blocknetprivacy/blocklockd/internal/instantlock"
	"github.com/blocknetprivacy/blocklockd/internal/p2pnotify"
	"github.com/blocknetprivacy/blocklockd/internal/signing"
	"github.com/blocknetprivacy/blocklockd/internal/spork"
)

const Version = "0.1.0"

func main() {
	dataDir := flag.String("data", "./data", "Data directory")
	listen := flag.String("listen", "/ip4/0.0.0.0/tcp/29080", "P2P listen address")
	activationHeight := flag.Int("activation-height", 1, "Block height at which lock enforcement begins")
	masternode := flag.Bool("masternode", false, "Run as a signing masternode")
	flag.Parse()

	log.Printf("blocklockd %s starting", Version)

	host, err := chainhost.Open(filepath.Join(*dataDir, "chainhost.db"), chainhost.Config{
		ActivationHeight: int32(*activationHeight),
		IsMasternode:     *masternode,
	})
	if err != nil {
		log.Fatalf("chainhost: %v", err)
	}
	defer host.Close()

	p2pHost, err := libp2p.New(libp2p.ListenAddrStrings(*listen))
	if err != nil {
		log.Fatalf("libp2p: %v", err)
	}
	defer p2pHost.Close()

	notifier := p2pnotify.New(p2pHost)
	quorum := signing.NewQuorum()
	oracle := instantlock.NewOracle()
	gate := spork.NewGate()

	h := blocklock.NewHandler(host, quorum, oracle, gate, logNotifier{}, notifier, sysClock{})
	h.Start()
	defer h.Stop()

	log.Printf("blocklockd listening on %s, peer id %s", *listen, p2pHost.ID())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	log.Printf("blocklockd shutting down")
}

// logNotifier delivers enforcement notifications to the process log, the
// minimum viable stand-in for a real node's internal pub-sub and UI signals.
type logNotifier struct{}

func (logNotifier) NotifyBlockLockInternal(ref blocklock.BlockRef, sig blocklock.BlockLockSig) {
	log.Printf("blocklock: enforced height=%d hash=%x", ref.Height, ref.Hash)
}

func (logNotifier) NotifyBlockLockUI(blockHashHex string, height int32) {
	log.Printf("blocklock: chainlocked block %s at height %d", blockHashHex, height)
}

// sysClock supplies wall-clock time to the handler.
type sysClock struct{}

func (sysClock) NowMillis() int64       { return time.Now().UnixMilli() }
func (sysClock) AdjustedSeconds() int64 { return time.Now().Unix() }
