// Package p2pnotify implements blocklock.PeerNotifier over a libp2p host,
// grounded on the node's own PenalizePeer/BanPeer idiom (a mutex-guarded
// penalty-score map, disconnect once a peer's score reaches BanScore) without
// pulling in the rest of that node's peer-exchange machinery.
package p2pnotify

import (
	"bufio"
	"context"
	"log"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// ProtocolID is the libp2p protocol used to announce new block-lock
// signature inventory to connected peers.
const ProtocolID protocol.ID = "/blocklockd/inv/1.0.0"

// BanScore is the cumulative penalty at which a peer is disconnected.
const BanScore = 100

// Notifier wires a libp2p host into the block lock handler's PeerNotifier
// contract.
type Notifier struct {
	host host.Host

	mu      sync.Mutex
	scores  map[peer.ID]int
	pending map[[32]byte]map[peer.ID]struct{}
}

// New registers the inventory-announce stream handler on h and returns a
// ready-to-use Notifier.
func New(h host.Host) *Notifier {
	n := &Notifier{
		host:    h,
		scores:  make(map[peer.ID]int),
		pending: make(map[[32]byte]map[peer.ID]struct{}),
	}
	h.SetStreamHandler(ProtocolID, n.handleStream)
	return n
}

func (n *Notifier) handleStream(s network.Stream) {
	defer s.Close()
	var buf [32]byte
	r := bufio.NewReader(s)
	if _, err := r.Read(buf[:]); err != nil {
		return
	}
	log.Printf("p2pnotify: inv %x from %s", buf, s.Conn().RemotePeer())
}

// RelayInv announces hash to every currently connected peer.
func (n *Notifier) RelayInv(hash [32]byte) {
	for _, pid := range n.host.Network().Peers() {
		go n.sendInv(pid, hash)
	}
}

func (n *Notifier) sendInv(pid peer.ID, hash [32]byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := n.host.NewStream(ctx, pid, ProtocolID)
	if err != nil {
		return
	}
	defer s.Close()
	_, _ = s.Write(hash[:])
}

// PenalizePeer lowers pid's reputation by delta and disconnects it once its
// cumulative penalty reaches BanScore.
func (n *Notifier) PenalizePeer(pid peer.ID, delta int, reason string) {
	n.mu.Lock()
	n.scores[pid] += delta
	score := n.scores[pid]
	n.mu.Unlock()

	log.Printf("p2pnotify: penalize %s by %d (%s), score=%d", pid, delta, reason, score)
	if score >= BanScore {
		_ = n.host.Network().ClosePeer(pid)
	}
}

// EraseObjectRequest drops the bookkeeping entry recording that pid had an
// outstanding request for hash, if any.
func (n *Notifier) EraseObjectRequest(pid peer.ID, hash [32]byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if set, ok := n.pending[hash]; ok {
		delete(set, pid)
		if len(set) == 0 {
			delete(n.pending, hash)
		}
	}
}
