package blocklock

// Enforcer drives the chain itself toward the locked block: it must never
// be called while the store's mutex is held, since ChainHost methods
// acquire the chain lock, which must always be acquired strictly before
// the store's mutex, never the reverse.
type Enforcer struct {
	store    *Store
	host     ChainHost
	notifier Notifier
}

// NewEnforcer builds an enforcer over the given collaborators.
func NewEnforcer(store *Store, host ChainHost, notifier Notifier) *Enforcer {
	return &Enforcer{store: store, host: host, notifier: notifier}
}

// EnforceBestLock marks every block conflicting with the current locked
// chain, reactivates the best chain if needed, and notifies listeners the
// first time a given height's lock is enforced.
func (e *Enforcer) EnforceBestLock() error {
	if !e.store.IsEnforced() {
		return nil
	}
	locked := e.store.snapshotLocked()
	if locked == nil {
		return nil
	}

	if err := e.host.EnforceBlock(locked.Ref); err != nil {
		return err
	}

	tip := e.host.ActiveTip()
	ancestor, ok := e.host.Ancestor(tip, locked.Ref.Height)
	activateNeeded := tip.IsZero() || !ok || ancestor.Hash != locked.Ref.Hash
	if activateNeeded {
		if err := e.host.ActivateBestChain(); err != nil {
			return err
		}
		tip = e.host.ActiveTip()
		ancestor, ok = e.host.Ancestor(tip, locked.Ref.Height)
		if tip.IsZero() || !ok || ancestor.Hash != locked.Ref.Hash {
			// The locked block still isn't part of the active chain (e.g.
			// it is still missing); nothing to notify yet.
			return nil
		}
	}

	if e.store.notifyIfNewer(locked.Ref) {
		e.notifier.NotifyBlockLockInternal(locked.Ref, locked.Sig)
		e.notifier.NotifyBlockLockUI(hexHash(locked.Ref.Hash), locked.Ref.Height)
	}
	return nil
}
