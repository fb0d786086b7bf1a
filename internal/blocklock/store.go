package blocklock

import (
	"sync"
	"sync/atomic"
)

// lockedBlock ties best_known and best_index together so invariant 3
// (best_index.height/hash == best_known.height/hash) is unrepresentable any
// other way: the two either both exist, or neither does.
type lockedBlock struct {
	Sig BlockLockSig
	Ref BlockRef
}

// pendingSign records the signing attempt currently outstanding with the
// signing service.
type pendingSign struct {
	height    int32
	requestID [32]byte
	msgHash   [32]byte
}

// Store holds all block-lock state guarded by a single mutex. It exposes
// the read-only query surface directly; mutation happens through
// package-private helpers called by Handler, which alone knows how to
// sequence them against the chain lock.
type Store struct {
	mu sync.Mutex

	bestHash [32]byte     // wire-hash of the preferred lock, zero if none
	best     BlockLockSig // the lock itself; may reference an unknown block

	locked *lockedBlock // best_known + best_index, nil until the block is known

	lastNotified BlockRef // last index notified; zero if none yet

	pending pendingSign // last_signed_{height,request_id,msg_hash}

	seen    *seenCache
	txIndex *blockTxIndex

	lastCleanupMs int64

	isEnabled        atomic.Bool
	isEnforced       atomic.Bool
	trySignScheduled atomic.Bool
}

// NewStore creates an empty store with no active lock.
func NewStore() *Store {
	return &Store{
		best:    NullBlockLockSig(),
		seen:    newSeenCache(),
		txIndex: newBlockTxIndex(),
	}
}

// IsEnabled reports the last computed feature-gate state.
func (s *Store) IsEnabled() bool { return s.isEnabled.Load() }

// IsEnforced reports whether the handler is currently enforcing locks
// against the chain (feature active and activation height reached).
func (s *Store) IsEnforced() bool { return s.isEnforced.Load() }

// AlreadyHave reports whether wireHash has already been observed, without
// mutating the seen set.
func (s *Store) AlreadyHave(wireHash [32]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen.has(wireHash)
}

// GetByHash returns the current best lock if wireHash matches it. Only the
// current best is ever returned; older locks are not kept around for
// propagation.
func (s *Store) GetByHash(wireHash [32]byte) (BlockLockSig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wireHash != s.bestHash {
		return BlockLockSig{}, false
	}
	return s.best, true
}

// GetBest returns the current best lock (may be null).
func (s *Store) GetBest() BlockLockSig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.best
}

// IsStale reports whether height is no better than the current best lock
// (a lock is held and height does not exceed it). Used to drop superseded
// locks before the expense of signature verification.
func (s *Store) IsStale(height int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.best.IsNull() && height <= s.best.Height
}

// HasLock reports whether height/hash is locked: enforcement is active and
// tracing best_index back to height yields hash.
func (s *Store) HasLock(host ChainHost, height int32, hash [32]byte) bool {
	return s.internalHasLock(host, height, hash)
}

// internalHasLock snapshots the locked block under the mutex and walks the
// chain host with the mutex released.
func (s *Store) internalHasLock(host ChainHost, height int32, hash [32]byte) bool {
	if !s.isEnforced.Load() {
		return false
	}
	locked := s.snapshotLocked()
	if locked == nil {
		return false
	}
	ref := locked.Ref
	if height > ref.Height {
		return false
	}
	if height == ref.Height {
		return hash == ref.Hash
	}
	ancestor, ok := host.Ancestor(ref, height)
	return ok && ancestor.Hash == hash
}

// HasConflictingLock reports whether height/hash conflicts with the locked
// chain: enforcement is active, a locked block exists at or above height,
// and the ancestor at height differs from hash. An ancestor at height <=
// best_index.height must always exist; its absence is a chain-index bug
// and is treated as fatal here via panic.
func (s *Store) HasConflictingLock(host ChainHost, height int32, hash [32]byte) bool {
	return s.internalHasConflictingLock(host, height, hash)
}

// internalHasConflictingLock snapshots the locked block under the mutex and
// walks the chain host with the mutex released.
func (s *Store) internalHasConflictingLock(host ChainHost, height int32, hash [32]byte) bool {
	if !s.isEnforced.Load() {
		return false
	}
	locked := s.snapshotLocked()
	if locked == nil {
		return false
	}
	ref := locked.Ref
	if height > ref.Height {
		return false
	}
	if height == ref.Height {
		return hash != ref.Hash
	}
	ancestor, ok := host.Ancestor(ref, height)
	if !ok {
		panic("blocklock: ancestor lookup failed for height <= locked index height; chain-index bug")
	}
	return ancestor.Hash != hash
}

// IsTxSafeForMining reports whether txid is safe to include in a block
// under the current lock policy: true if the feature is off, enforcement
// is off, instant-send is off, the tx is instant-locked, or it has been
// known long enough (WAIT_FOR_ISLOCK_TIMEOUT) to trust without an
// instant-lock.
func (s *Store) IsTxSafeForMining(txid [32]byte, oracle InstantSendOracle, clock Clock) bool {
	if !s.isEnabled.Load() || !s.isEnforced.Load() {
		return true
	}
	if !oracle.Enabled() {
		return true
	}
	if oracle.IsLocked(txid) {
		return true
	}

	s.mu.Lock()
	firstSeen, known := s.txIndex.firstSeen(txid)
	s.mu.Unlock()

	if !known {
		return false
	}
	age := clock.AdjustedSeconds() - firstSeen
	return age >= WaitForIslockTimeoutSeconds
}

// snapshotPending returns the height currently outstanding with the signing
// service, or -1 if none.
func (s *Store) snapshotPending() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.requestID == ([32]byte{}) {
		return -1
	}
	return s.pending.height
}

// setPending records a freshly dispatched signing attempt.
func (s *Store) setPending(height int32, requestID, msgHash [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = pendingSign{height: height, requestID: requestID, msgHash: msgHash}
}

// clearPendingIfMatches drops the pending record if it matches requestID,
// returning the height it was for and whether it matched.
func (s *Store) clearPendingIfMatches(requestID [32]byte) (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.requestID != requestID {
		return 0, false
	}
	height := s.pending.height
	s.pending = pendingSign{}
	return height, true
}

// blockTxsForSafetyCheck returns the non-coinbase txids of ref, using the
// tracked index if present and falling back to a disk read (backfilling the
// index) otherwise. Ok is false if the block cannot be read at all.
func (s *Store) blockTxsForSafetyCheck(host ChainHost, ref BlockRef) ([][32]byte, bool) {
	s.mu.Lock()
	if txids, ok := s.txIndex.txids(ref.Hash); ok {
		s.mu.Unlock()
		return txids, true
	}
	s.mu.Unlock()

	txids, ts, found := host.ReadBlockFromDisk(ref)
	if !found {
		return nil, false
	}
	s.mu.Lock()
	s.txIndex.backfill(ref.Hash, txids, ts)
	s.mu.Unlock()
	return txids, true
}

// markSeenIfNew records wireHash in the seen cache, returning false if it was
// already present.
func (s *Store) markSeenIfNew(wireHash [32]byte, nowMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen.observe(wireHash, nowMs)
}

// updateBestIfNewer replaces the current best lock with sig if sig is for a
// strictly higher height (or no lock is held yet). Reports whether it did.
func (s *Store) updateBestIfNewer(sig BlockLockSig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.best.IsNull() && sig.Height <= s.best.Height {
		return false
	}
	s.best = sig
	s.bestHash = WireHash(sig)
	return true
}

// tryLinkBest links the current best lock to ref if ref resolves it (same
// hash and height) and no lock is linked yet. Reports the linked lock and
// whether linking happened.
func (s *Store) tryLinkBest(ref BlockRef) (BlockLockSig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked != nil {
		return BlockLockSig{}, false
	}
	if s.best.IsNull() || s.best.BlockHash != ref.Hash || s.best.Height != ref.Height {
		return BlockLockSig{}, false
	}
	s.locked = &lockedBlock{Sig: s.best, Ref: ref}
	return s.best, true
}

// clearLocked drops the best_known/best_index pair, used when enforcement is
// switched off so stale state cannot leak into HasLock/HasConflictingLock.
func (s *Store) clearLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = nil
}

// onBlockConnected forwards to the tx index under lock.
func (s *Store) onBlockConnected(blockHash [32]byte, nonCoinbaseTxids [][32]byte, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txIndex.onBlockConnected(blockHash, nonCoinbaseTxids, now)
}

// onBlockDisconnected forwards to the tx index under lock.
func (s *Store) onBlockDisconnected(blockHash [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txIndex.onBlockDisconnected(blockHash)
}

// onTxAddedToMempool forwards to the tx index under lock.
func (s *Store) onTxAddedToMempool(txid [32]byte, acceptTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txIndex.onTxAddedToMempool(txid, acceptTime)
}

// cleanup expires stale seen-cache entries and evicts tracked per-block
// transaction sets and first-seen records that are no longer needed for the
// safety walk, at most once per CleanupIntervalMs. host calls happen with
// the mutex released, as everywhere else in this package.
func (s *Store) cleanup(nowMs int64, host ChainHost) {
	s.mu.Lock()
	if nowMs-s.lastCleanupMs < CleanupIntervalMs {
		s.mu.Unlock()
		return
	}
	s.lastCleanupMs = nowMs
	s.seen.expire(nowMs, SeenCacheMaxAgeMs)
	trackedBlocks := s.txIndex.trackedBlocks()
	trackedTxs := s.txIndex.trackedTxs()
	s.mu.Unlock()

	for _, blockHash := range trackedBlocks {
		ref, ok := host.LookupBlockIndex(blockHash)
		if !ok {
			continue
		}
		switch {
		case s.HasLock(host, ref.Height, ref.Hash):
			s.mu.Lock()
			s.txIndex.evictBlock(blockHash, true)
			s.mu.Unlock()
		case s.HasConflictingLock(host, ref.Height, ref.Hash):
			s.mu.Lock()
			s.txIndex.evictBlock(blockHash, false)
			s.mu.Unlock()
		}
	}

	tip := host.ActiveTip()
	for _, txid := range trackedTxs {
		if s.txConfirmedOrGone(host, tip, txid) {
			s.mu.Lock()
			s.txIndex.forgetTx(txid)
			s.mu.Unlock()
		}
	}
}

// txConfirmedOrGone reports whether txid's first-seen bookkeeping can be
// dropped: either no transaction record exists for it any more, or its
// confirming block sits on the active chain with at least
// SigningSafetyAncestorBlocks + 1 (6) further confirmations.
func (s *Store) txConfirmedOrGone(host ChainHost, tip BlockRef, txid [32]byte) bool {
	blockHash, found := host.GetTransaction(txid)
	if !found {
		return true
	}
	ref, ok := host.LookupBlockIndex(blockHash)
	if !ok {
		return false
	}
	ancestor, ok := host.Ancestor(tip, ref.Height)
	if !ok || ancestor.Hash != blockHash {
		return false
	}
	furtherConfirmations := tip.Height - ref.Height
	return furtherConfirmations >= SigningSafetyAncestorBlocks+1
}

// notifyIfNewer records ref as notified and reports true, unless ref is no
// newer than whatever was last notified, in which case it reports false and
// leaves the record untouched.
func (s *Store) notifyIfNewer(ref BlockRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref.Height <= s.lastNotified.Height {
		return false
	}
	s.lastNotified = ref
	return true
}

// snapshotLocked returns the current best_known/best_index pair, or nil if
// unset.
func (s *Store) snapshotLocked() *lockedBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked == nil {
		return nil
	}
	cp := *s.locked
	return &cp
}
