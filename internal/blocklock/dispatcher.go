package blocklock

import "fmt"

// ProcessNewBlockLockSig handles an inbound block-lock signature: dedupe by
// wire-hash, drop anything no better than the lock already held (before
// paying for verification), reject malformed or unverifiable signatures
// (with a misbehavior penalty), accept the first lock seen for a higher
// height than any held so far, link it to a known block if possible, and
// relay it on.
//
// Enforcement is never run inline here: linking only wakes the scheduler,
// whose single worker is the only place Enforcer ever runs, so concurrent
// inbound signatures can never drive the chain host concurrently with each
// other or with the scheduler's own tick.
func (h *Handler) ProcessNewBlockLockSig(from PeerID, sig BlockLockSig) error {
	h.CheckActiveState()

	wireHash := WireHash(sig)
	if !h.store.markSeenIfNew(wireHash, h.clock.NowMillis()) {
		return nil
	}

	if sig.Height < 0 || sig.BlockHash == ([32]byte{}) || sig.Sig.IsNull() {
		h.peers.PenalizePeer(from, 10, "malformed blocklock")
		return fmt.Errorf("blocklock: malformed lock at height %d", sig.Height)
	}

	if h.store.IsStale(sig.Height) {
		return nil
	}

	requestID := RequestID(sig.Height)
	if !h.signer.VerifyRecoveredSig(QuorumType, sig.Height, requestID, sig.BlockHash, sig.Sig) {
		h.peers.PenalizePeer(from, 10, "invalid blocklock signature")
		return fmt.Errorf("blocklock: signature verification failed at height %d", sig.Height)
	}

	if h.store.updateBestIfNewer(sig) {
		if ref, ok := h.host.LookupBlockIndex(sig.BlockHash); ok {
			if _, linked := h.store.tryLinkBest(ref); linked {
				h.scheduler.ScheduleTrySign()
			}
		}
	}

	h.peers.RelayInv(wireHash)
	h.peers.EraseObjectRequest(from, wireHash)
	return nil
}
