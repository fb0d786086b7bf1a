package blocklock

// SigningCoordinator implements the self-driven half of the handler: given
// the current chain tip, decide whether it is safe to ask the signing
// service for a lock over it, and do so at most once per height. It walks
// back a fixed safety window and refuses to sign until every transaction
// in that window is either instant-locked or old enough to trust outright.
type SigningCoordinator struct {
	store   *Store
	host    ChainHost
	oracle  InstantSendOracle
	signer  SigningService
	clock   Clock
}

// NewSigningCoordinator builds a coordinator over the given collaborators.
func NewSigningCoordinator(store *Store, host ChainHost, oracle InstantSendOracle, signer SigningService, clock Clock) *SigningCoordinator {
	return &SigningCoordinator{store: store, host: host, oracle: oracle, signer: signer, clock: clock}
}

// TrySignChainTip evaluates the current tip and, if it passes every safety
// check, asks the signing service to sign it. It is safe to call repeatedly;
// most calls are no-ops.
func (c *SigningCoordinator) TrySignChainTip() {
	if !c.store.IsEnabled() {
		return
	}
	if !c.host.IsMasternode() || !c.host.IsBlockchainSynced() {
		return
	}

	tip := c.host.ActiveTip()
	if tip.IsZero() || tip.Height <= 0 {
		return
	}

	if locked := c.store.snapshotLocked(); locked != nil && locked.Ref.Height >= tip.Height {
		return
	}
	if pendingHeight := c.store.snapshotPending(); pendingHeight >= tip.Height {
		return
	}
	if c.store.HasConflictingLock(c.host, tip.Height, tip.Hash) {
		return
	}

	if !c.safetyWalkPasses(tip) {
		return
	}

	requestID := RequestID(tip.Height)
	c.store.setPending(tip.Height, requestID, tip.Hash)
	c.signer.AsyncSignIfMember(QuorumType, requestID, tip.Hash)
}

// safetyWalkPasses walks back from tip itself through SigningSafetyWalkBlocks
// blocks total (tip plus SigningSafetyWalkBlocks-1 ancestors) and aborts the
// moment any one of them has a non-coinbase transaction that is neither
// instant-locked nor first seen at least WaitForIslockTimeoutSeconds ago
// (with instant-send disabled every transaction passes). The walk stops
// early, passing, once
// it reaches a block already covered by the held lock (everything at or
// below a locked height is already final) or walks off the start of the
// chain. An unreadable block fails the walk conservatively.
func (c *SigningCoordinator) safetyWalkPasses(tip BlockRef) bool {
	locked := c.store.snapshotLocked()
	for i := int32(0); i < SigningSafetyWalkBlocks; i++ {
		height := tip.Height - i
		if height < 0 {
			return true
		}
		if locked != nil && height <= locked.Ref.Height {
			return true
		}

		ref := tip
		if height != tip.Height {
			var ok bool
			ref, ok = c.host.Ancestor(tip, height)
			if !ok {
				return false
			}
		}

		txids, ok := c.store.blockTxsForSafetyCheck(c.host, ref)
		if !ok {
			return false
		}
		if !c.allTxsSafe(txids) {
			return false
		}
	}
	return true
}

func (c *SigningCoordinator) allTxsSafe(txids [][32]byte) bool {
	if !c.oracle.Enabled() {
		return true
	}
	now := c.clock.AdjustedSeconds()
	for _, txid := range txids {
		if c.oracle.IsLocked(txid) {
			continue
		}
		c.store.mu.Lock()
		firstSeen, known := c.store.txIndex.firstSeen(txid)
		c.store.mu.Unlock()
		if !known || now-firstSeen < WaitForIslockTimeoutSeconds {
			return false
		}
	}
	return true
}
