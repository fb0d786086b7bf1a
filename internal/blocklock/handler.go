package blocklock

// SporkChainLocksEnabled names the feature gate that turns block-lock
// signing and enforcement on at all.
const SporkChainLocksEnabled = "chainlocks"

// Handler is the block lock handler: it wires the store, the signing
// coordinator, the enforcer, and the background scheduler together, and is
// the single entry point the rest of a node talks to. Each concern lives in
// its own collaborator type in this package for testability.
type Handler struct {
	store *Store

	host   ChainHost
	signer SigningService
	oracle InstantSendOracle
	gate   FeatureGate
	notify Notifier
	peers  PeerNotifier
	clock  Clock

	coordinator *SigningCoordinator
	enforcer    *Enforcer
	scheduler   *Scheduler
}

// NewHandler builds a handler over its collaborators. Start must be called
// before it does anything; it registers itself as a RecoveredSigListener on
// the signing service only once Start runs.
func NewHandler(host ChainHost, signer SigningService, oracle InstantSendOracle, gate FeatureGate, notify Notifier, peers PeerNotifier, clock Clock) *Handler {
	store := NewStore()
	h := &Handler{
		store:  store,
		host:   host,
		signer: signer,
		oracle: oracle,
		gate:   gate,
		notify: notify,
		peers:  peers,
		clock:  clock,
	}
	h.coordinator = NewSigningCoordinator(store, host, oracle, signer, clock)
	h.enforcer = NewEnforcer(store, host, notify)
	h.scheduler = NewScheduler(store, h.tick)
	return h
}

// Start registers the handler for recovered signatures and launches the
// background scheduler.
func (h *Handler) Start() {
	h.signer.RegisterListener(h)
	h.CheckActiveState()
	h.scheduler.Start()
}

// Stop unregisters the handler and shuts down the scheduler.
func (h *Handler) Stop() {
	h.scheduler.Stop()
	h.signer.UnregisterListener(h)
}

// Store exposes the read-only query surface to the rest of the node:
// mempool and mining code call these directly without going through the
// handler.
func (h *Handler) Store() *Store { return h.store }

// tick is the scheduler's single periodic/debounced action: refresh
// enabled/enforced state, retry enforcement (the only place it ever runs,
// so a failed ActivateBestChain gets picked up again on the next tick), and
// consider signing the tip.
func (h *Handler) tick() {
	h.store.cleanup(h.clock.NowMillis(), h.host)
	h.CheckActiveState()
	_ = h.enforcer.EnforceBestLock()
	h.coordinator.TrySignChainTip()
}

// CheckActiveState recomputes whether the feature is enabled and whether
// enforcement should be active, and drops the linked best_known/best_index
// pair the instant enforcement turns off, so HasLock and HasConflictingLock
// report nothing stale after a spork flip. The best lock itself (GetBest)
// and the last-notified record are kept, and nothing is reset when
// enforcement turns back on.
func (h *Handler) CheckActiveState() {
	enabled := h.gate.Active(SporkChainLocksEnabled)
	enforced := enabled && h.host.TipHasReachedActivationHeight()

	wasEnforced := h.store.IsEnforced()
	h.store.isEnabled.Store(enabled)
	h.store.isEnforced.Store(enforced)

	if wasEnforced && !enforced {
		h.store.clearLocked()
	}
}

// AcceptedBlockHeader links the held best lock to ref the first time its
// header becomes known, and wakes the scheduler to enforce it if it does.
// Enforcement itself always runs from the scheduler's single worker, never
// inline here, so it never races the scheduler's own tick.
func (h *Handler) AcceptedBlockHeader(ref BlockRef) {
	if _, linked := h.store.tryLinkBest(ref); linked {
		h.scheduler.ScheduleTrySign()
	}
}

// UpdatedBlockTip reacts to every new tip: the active-state gate may have
// changed (activation height crossed), and the new tip is a fresh signing
// candidate.
func (h *Handler) UpdatedBlockTip() {
	h.CheckActiveState()
	h.scheduler.ScheduleTrySign()
}

// BlockConnected records the block's transactions for the safety walk,
// links the held lock if this is the block it was waiting on, and wakes the
// scheduler to enforce it and consider signing the new tip.
func (h *Handler) BlockConnected(ref BlockRef, nonCoinbaseTxids [][32]byte, timestamp int64) {
	h.store.onBlockConnected(ref.Hash, nonCoinbaseTxids, timestamp)
	h.store.tryLinkBest(ref)
	h.scheduler.ScheduleTrySign()
}

// BlockDisconnected drops the disconnected block's tracked transaction set.
func (h *Handler) BlockDisconnected(ref BlockRef) {
	h.store.onBlockDisconnected(ref.Hash)
}

// TransactionAddedToMempool records when txid was first witnessed, for the
// safety walk's age check.
func (h *Handler) TransactionAddedToMempool(txid [32]byte, acceptTime int64) {
	h.store.onTxAddedToMempool(txid, acceptTime)
}

// HandleNewRecoveredSig implements RecoveredSigListener: a recovered
// signature we were waiting on becomes our own BlockLockSig, processed
// exactly like one received from a peer, with SelfPeerID as its origin.
func (h *Handler) HandleNewRecoveredSig(rs RecoveredSig) {
	height, ok := h.store.clearPendingIfMatches(rs.RequestID)
	if !ok {
		return
	}
	sig := BlockLockSig{Height: height, BlockHash: rs.MsgHash, Sig: rs.Sig}
	_ = h.ProcessNewBlockLockSig(SelfPeerID, sig)
}
