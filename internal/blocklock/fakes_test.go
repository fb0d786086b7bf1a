package blocklock

import "sync"

// fakeChainHost is a tiny, fully in-memory ChainHost for tests: a linear or
// branching set of blocks wired by explicit AddBlock calls, with no
// persistence.
type fakeChainHost struct {
	mu sync.Mutex

	blocks map[[32]byte]fakeBlock
	tip    BlockRef

	masternode bool
	synced     bool
	activation int32
}

type fakeBlock struct {
	ref      BlockRef
	prev     [32]byte
	txids    [][32]byte
	ts       int64
}

func newFakeChainHost() *fakeChainHost {
	return &fakeChainHost{blocks: make(map[[32]byte]fakeBlock), synced: true}
}

func (f *fakeChainHost) AddBlock(height int32, hash, prev [32]byte, txids [][32]byte, ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[hash] = fakeBlock{ref: BlockRef{Height: height, Hash: hash}, prev: prev, txids: txids, ts: ts}
	f.tip = BlockRef{Height: height, Hash: hash}
}

func (f *fakeChainHost) LookupBlockIndex(hash [32]byte) (BlockRef, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[hash]
	return b.ref, ok
}

func (f *fakeChainHost) ActiveTip() BlockRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tip
}

func (f *fakeChainHost) Ancestor(ref BlockRef, height int32) (BlockRef, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.blocks[ref.Hash]
	if !ok || height > cur.ref.Height || height < 0 {
		return BlockRef{}, false
	}
	for cur.ref.Height > height {
		next, ok := f.blocks[cur.prev]
		if !ok {
			return BlockRef{}, false
		}
		cur = next
	}
	return cur.ref, true
}

func (f *fakeChainHost) EnforceBlock(ref BlockRef) error { return nil }

func (f *fakeChainHost) ActivateBestChain() error { return nil }

func (f *fakeChainHost) GetTransaction(txid [32]byte) ([32]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, b := range f.blocks {
		for _, t := range b.txids {
			if t == txid {
				return hash, true
			}
		}
	}
	return [32]byte{}, false
}

func (f *fakeChainHost) ReadBlockFromDisk(ref BlockRef) ([][32]byte, int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[ref.Hash]
	if !ok {
		return nil, 0, false
	}
	return b.txids, b.ts, true
}

func (f *fakeChainHost) TipHasReachedActivationHeight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tip.Height >= f.activation
}

func (f *fakeChainHost) IsMasternode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.masternode
}

func (f *fakeChainHost) IsBlockchainSynced() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.synced
}

// fakeSigner is a SigningService stand-in that always verifies signatures
// produced by itself and records every async signing request.
type fakeSigner struct {
	mu        sync.Mutex
	asked     []RequestAsk
	listeners []RecoveredSigListener
	validSig  BlsSignature
}

type RequestAsk struct {
	RequestID [32]byte
	MsgHash   [32]byte
}

func newFakeSigner() *fakeSigner {
	var sig BlsSignature
	sig[0] = 0x42
	return &fakeSigner{validSig: sig}
}

func (s *fakeSigner) VerifyRecoveredSig(quorumType uint8, height int32, requestID, msgHash [32]byte, sig BlsSignature) bool {
	return sig == s.validSig
}

func (s *fakeSigner) AsyncSignIfMember(quorumType uint8, requestID, msgHash [32]byte) {
	s.mu.Lock()
	s.asked = append(s.asked, RequestAsk{RequestID: requestID, MsgHash: msgHash})
	listeners := append([]RecoveredSigListener(nil), s.listeners...)
	s.mu.Unlock()

	rs := RecoveredSig{RequestID: requestID, MsgHash: msgHash, Sig: s.validSig}
	for _, l := range listeners {
		l.HandleNewRecoveredSig(rs)
	}
}

func (s *fakeSigner) RegisterListener(l RecoveredSigListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *fakeSigner) UnregisterListener(l RecoveredSigListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

type fakeOracle struct {
	mu      sync.Mutex
	enabled bool
	locked  map[[32]byte]bool
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{enabled: true, locked: make(map[[32]byte]bool)}
}

func (o *fakeOracle) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

func (o *fakeOracle) IsLocked(txid [32]byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.locked[txid]
}

func (o *fakeOracle) MarkLocked(txid [32]byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locked[txid] = true
}

type fakeGate struct {
	mu     sync.Mutex
	active map[string]bool
}

func newFakeGate() *fakeGate {
	return &fakeGate{active: make(map[string]bool)}
}

func (g *fakeGate) Active(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.active[name]
	if !ok {
		return true
	}
	return v
}

func (g *fakeGate) Set(name string, v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[name] = v
}

type fakeNotifier struct {
	mu          sync.Mutex
	internalLog []BlockRef
	uiLog       []string
}

func (n *fakeNotifier) NotifyBlockLockInternal(ref BlockRef, sig BlockLockSig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.internalLog = append(n.internalLog, ref)
}

func (n *fakeNotifier) NotifyBlockLockUI(blockHashHex string, height int32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.uiLog = append(n.uiLog, blockHashHex)
}

type fakePeers struct {
	mu         sync.Mutex
	relayed    [][32]byte
	penalties  map[PeerID]int
	erased     int
}

func newFakePeers() *fakePeers {
	return &fakePeers{penalties: make(map[PeerID]int)}
}

func (p *fakePeers) RelayInv(hash [32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.relayed = append(p.relayed, hash)
}

func (p *fakePeers) PenalizePeer(id PeerID, delta int, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.penalties[id] += delta
}

func (p *fakePeers) EraseObjectRequest(id PeerID, hash [32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.erased++
}

type fakeClock struct {
	mu      sync.Mutex
	millis  int64
	seconds int64
}

func newFakeClock() *fakeClock { return &fakeClock{} }

func (c *fakeClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.millis
}

func (c *fakeClock) AdjustedSeconds() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seconds
}

func (c *fakeClock) Advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seconds += seconds
	c.millis += seconds * 1000
}
