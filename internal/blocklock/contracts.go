package blocklock

import "github.com/libp2p/go-libp2p/core/peer"

// PeerID identifies a network peer. We reuse libp2p's peer identity type so
// the handler speaks the same currency as the rest of a real node's P2P
// stack without depending on the P2P layer itself.
type PeerID = peer.ID

// SelfPeerID is the sentinel used when a lock originates locally (from our
// own signing, not from the network), matching the "-1" NodeId convention.
const SelfPeerID PeerID = ""

// BlockRef is a lightweight pointer into the chain index: a (height, hash)
// pair identifying a known header or block.
type BlockRef struct {
	Height int32
	Hash   [32]byte
}

// IsZero reports whether this is the unset BlockRef.
func (r BlockRef) IsZero() bool {
	return r == BlockRef{}
}

// ChainHost is the narrow capability set the handler needs from the host
// node's chain index and block storage. It exists so the handler never
// depends on the concrete chain module, only on this contract.
type ChainHost interface {
	// LookupBlockIndex resolves a block hash to its chain-index entry, if
	// known (header or full block).
	LookupBlockIndex(hash [32]byte) (BlockRef, bool)

	// ActiveTip returns the current best chain tip.
	ActiveTip() BlockRef

	// Ancestor returns the ancestor of ref at the given height, tracing
	// back through the chain index. Ok is false if height is out of range
	// or the ancestor chain is incomplete.
	Ancestor(ref BlockRef, height int32) (BlockRef, bool)

	// EnforceBlock walks from ref toward genesis over the main chain and
	// marks every child not on ref's lineage as conflicting.
	EnforceBlock(ref BlockRef) error

	// ActivateBestChain re-runs best-chain selection, honoring conflicting
	// markers placed by EnforceBlock.
	ActivateBestChain() error

	// GetTransaction reports the block (if any) that contains txid.
	GetTransaction(txid [32]byte) (containingBlock [32]byte, found bool)

	// ReadBlockFromDisk returns the non-coinbase transaction ids of the
	// block at ref, and the block's timestamp, loading it from storage if
	// it is not already cached.
	ReadBlockFromDisk(ref BlockRef) (txids [][32]byte, timestamp int64, found bool)

	// TipHasReachedActivationHeight reports whether the active tip has
	// reached the block-lock activation height.
	TipHasReachedActivationHeight() bool

	// IsMasternode reports whether this node operates as a masternode
	// (eligible to sign).
	IsMasternode() bool

	// IsBlockchainSynced reports whether initial sync has completed.
	IsBlockchainSynced() bool
}

// RecoveredSig is the opaque threshold signature the signing service
// delivers once enough quorum members have contributed shares.
type RecoveredSig struct {
	RequestID [32]byte
	MsgHash   [32]byte
	Sig       BlsSignature
}

// RecoveredSigListener receives asynchronously recovered signatures.
type RecoveredSigListener interface {
	HandleNewRecoveredSig(rs RecoveredSig)
}

// SigningService is the threshold-signing collaborator: it verifies
// recovered signatures and, if we are a member of the relevant quorum,
// asynchronously produces one. The handler treats a recovered signature as
// opaque; DKG, quorum selection, and share aggregation are all delegated
// here.
type SigningService interface {
	VerifyRecoveredSig(quorumType uint8, height int32, requestID, msgHash [32]byte, sig BlsSignature) bool
	AsyncSignIfMember(quorumType uint8, requestID, msgHash [32]byte)
	RegisterListener(l RecoveredSigListener)
	UnregisterListener(l RecoveredSigListener)
}

// InstantSendOracle answers whether a transaction has already reached
// instant-lock finality, and whether instant-send is enabled at all.
type InstantSendOracle interface {
	IsLocked(txid [32]byte) bool
	Enabled() bool
}

// FeatureGate answers whether a named consensus feature ("spork") is
// currently active.
type FeatureGate interface {
	Active(name string) bool
}

// PeerNotifier is the narrow slice of the P2P layer the handler drives:
// relaying accepted locks, penalizing peers that sent bad ones, and
// cancelling in-flight inventory requests once satisfied.
type PeerNotifier interface {
	RelayInv(hash [32]byte)
	PenalizePeer(id PeerID, delta int, reason string)
	EraseObjectRequest(id PeerID, hash [32]byte)
}

// Notifier delivers enforcement events to the rest of the node: an internal
// signal carrying the full index/lock pair, and a UI-facing signal carrying
// just the human-readable summary.
type Notifier interface {
	NotifyBlockLockInternal(ref BlockRef, sig BlockLockSig)
	NotifyBlockLockUI(blockHashHex string, height int32)
}

// Clock supplies the time sources the handler needs, split out for
// deterministic tests. NowMillis is wall-clock milliseconds (used for
// seen-cache bookkeeping); AdjustedSeconds is the network-adjusted time
// used for tx-age comparisons (mirrors the host's GetAdjustedTime()).
type Clock interface {
	NowMillis() int64
	AdjustedSeconds() int64
}
