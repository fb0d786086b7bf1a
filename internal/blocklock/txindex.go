package blocklock

// blockTxIndex tracks, per known block, the set of non-coinbase transaction
// ids it contains, plus the earliest moment each such txid was witnessed
// (from mempool acceptance or block connection). The safety walk in
// SigningCoordinator uses this to decide whether every transaction in a
// candidate chain is either instant-locked or old enough to sign over
// safely. Callers hold the store's mutex; this type has none of its own.
type blockTxIndex struct {
	// blockTxs maps a known block's hash to its non-coinbase txids. The
	// entry is created (possibly empty) on block-connect so that "known
	// block, no lockable txs" is distinguishable from "unknown block".
	blockTxs map[[32]byte]map[[32]byte]struct{}

	// txFirstSeen records, for each txid we've ever tracked, the earliest
	// unix-second timestamp we saw it (mempool acceptance or block time).
	txFirstSeen map[[32]byte]int64
}

func newBlockTxIndex() *blockTxIndex {
	return &blockTxIndex{
		blockTxs:    make(map[[32]byte]map[[32]byte]struct{}),
		txFirstSeen: make(map[[32]byte]int64),
	}
}

// onBlockConnected records every non-coinbase txid in the block, seeding
// tx_first_seen with now for any txid not already tracked. The block entry
// is created even when the tx set is empty.
func (idx *blockTxIndex) onBlockConnected(blockHash [32]byte, nonCoinbaseTxids [][32]byte, now int64) {
	set, ok := idx.blockTxs[blockHash]
	if !ok {
		set = make(map[[32]byte]struct{})
		idx.blockTxs[blockHash] = set
	}
	for _, txid := range nonCoinbaseTxids {
		set[txid] = struct{}{}
		if _, seen := idx.txFirstSeen[txid]; !seen {
			idx.txFirstSeen[txid] = now
		}
	}
}

// onBlockDisconnected drops the block's tx set. tx_first_seen entries are
// left in place; they age out through cleanup like any other tracked tx.
func (idx *blockTxIndex) onBlockDisconnected(blockHash [32]byte) {
	delete(idx.blockTxs, blockHash)
}

// onTxAddedToMempool records a non-coinbase tx's first-seen time, preserving
// whichever timestamp was recorded first.
func (idx *blockTxIndex) onTxAddedToMempool(txid [32]byte, acceptTime int64) {
	if _, seen := idx.txFirstSeen[txid]; !seen {
		idx.txFirstSeen[txid] = acceptTime
	}
}

// txids returns the tracked set for blockHash, and whether it is known at
// all (as opposed to empty).
func (idx *blockTxIndex) txids(blockHash [32]byte) ([][32]byte, bool) {
	set, ok := idx.blockTxs[blockHash]
	if !ok {
		return nil, false
	}
	out := make([][32]byte, 0, len(set))
	for txid := range set {
		out = append(out, txid)
	}
	return out, true
}

// backfill installs a tx set loaded from disk for a block we hadn't tracked
// yet (freshly started node, or a block whose connect notification predates
// this handler's lifetime), seeding first-seen with the block's own
// timestamp for every included tx.
func (idx *blockTxIndex) backfill(blockHash [32]byte, txids [][32]byte, blockTime int64) {
	set := make(map[[32]byte]struct{}, len(txids))
	for _, txid := range txids {
		set[txid] = struct{}{}
		if _, seen := idx.txFirstSeen[txid]; !seen {
			idx.txFirstSeen[txid] = blockTime
		}
	}
	idx.blockTxs[blockHash] = set
}

// firstSeen returns the recorded first-seen time for txid, or 0 if unknown.
func (idx *blockTxIndex) firstSeen(txid [32]byte) (int64, bool) {
	t, ok := idx.txFirstSeen[txid]
	return t, ok
}

// evictBlock drops a block's tx set unconditionally (used during cleanup
// once a block is known locked-and-final or conflicting).
func (idx *blockTxIndex) evictBlock(blockHash [32]byte, alsoForgetTxs bool) {
	set, ok := idx.blockTxs[blockHash]
	if !ok {
		return
	}
	delete(idx.blockTxs, blockHash)
	if alsoForgetTxs {
		for txid := range set {
			delete(idx.txFirstSeen, txid)
		}
	}
}

// forgetTx drops a single tx's first-seen bookkeeping.
func (idx *blockTxIndex) forgetTx(txid [32]byte) {
	delete(idx.txFirstSeen, txid)
}

// trackedBlocks returns the hashes of every block with a tracked tx set,
// for the cleanup pass to iterate over.
func (idx *blockTxIndex) trackedBlocks() [][32]byte {
	out := make([][32]byte, 0, len(idx.blockTxs))
	for hash := range idx.blockTxs {
		out = append(out, hash)
	}
	return out
}

// trackedTxs returns every txid with first-seen bookkeeping, for the
// cleanup pass to iterate over.
func (idx *blockTxIndex) trackedTxs() [][32]byte {
	out := make([][32]byte, 0, len(idx.txFirstSeen))
	for txid := range idx.txFirstSeen {
		out = append(out, txid)
	}
	return out
}
