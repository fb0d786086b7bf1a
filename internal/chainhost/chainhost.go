// Package chainhost adapts an in-memory block index and transaction index,
// both rebuilt from bbolt-persisted block records, into the
// blocklock.ChainHost contract. It is grounded on the node's own chain and
// storage idiom: a mutex-guarded index in memory, mirrored to bbolt for
// durability, block records keyed by hash, JSON payloads.
package chainhost

import (
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/blocknetprivacy/blocklockd/internal/blocklock"
)

var (
	bucketBlocks = []byte("chainhost_blocks") // hash -> blockRecord JSON
	bucketMeta   = []byte("chainhost_meta")   // "tip" -> tipRecord JSON
)

type blockRecord struct {
	Height        int32
	Hash          [32]byte
	PrevHash      [32]byte
	Timestamp     int64
	NonCoinbaseTx [][32]byte
	Conflicting   bool
}

type tipRecord struct {
	Height int32
	Hash   [32]byte
}

// blockNode is the in-memory chain-index entry, linked to its parent so
// Ancestor can walk back without touching bbolt on the hot path.
type blockNode struct {
	rec    blockRecord
	parent *blockNode
}

// Host is the concrete ChainHost backing a block lock handler: an in-memory
// DAG of known blocks over the active chain, persisted to bbolt, plus a
// transaction index sufficient to answer GetTransaction and
// ReadBlockFromDisk.
type Host struct {
	mu sync.RWMutex

	db *bolt.DB

	byHash map[[32]byte]*blockNode
	tip    *blockNode

	txToBlock map[[32]byte][32]byte

	activationHeight int32
	isMasternode     bool
	synced           bool
}

// Config controls how a Host is built.
type Config struct {
	// ActivationHeight is the height at which block-lock enforcement is
	// permitted to begin, mirroring a hard-fork activation constant.
	ActivationHeight int32
	IsMasternode     bool
}

// Open opens (or creates) the bbolt database at dbPath and rebuilds the
// in-memory index from it.
func Open(dbPath string, cfg Config) (*Host, error) {
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("chainhost: open db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketBlocks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("chainhost: create buckets: %w", err)
	}

	h := &Host{
		db:               db,
		byHash:           make(map[[32]byte]*blockNode),
		txToBlock:        make(map[[32]byte][32]byte),
		activationHeight: cfg.ActivationHeight,
		isMasternode:     cfg.IsMasternode,
	}
	if err := h.loadFromDisk(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// Close closes the underlying database.
func (h *Host) Close() error { return h.db.Close() }

func (h *Host) loadFromDisk() error {
	return h.db.View(func(tx *bolt.Tx) error {
		blocks := tx.Bucket(bucketBlocks)
		pending := make(map[[32]byte]blockRecord)
		if err := blocks.ForEach(func(k, v []byte) error {
			var rec blockRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			pending[rec.Hash] = rec
			return nil
		}); err != nil {
			return err
		}
		// Link parents after every record is loaded, since iteration order
		// is not guaranteed to be height-ascending.
		for hash, rec := range pending {
			node := &blockNode{rec: rec}
			h.byHash[hash] = node
		}
		for hash, rec := range pending {
			for _, txid := range rec.NonCoinbaseTx {
				h.txToBlock[txid] = hash
			}
			if rec.Height == 0 {
				continue
			}
			if parent, ok := h.byHash[rec.PrevHash]; ok {
				h.byHash[hash].parent = parent
			}
		}

		meta := tx.Bucket(bucketMeta)
		if raw := meta.Get([]byte("tip")); raw != nil {
			var tr tipRecord
			if err := json.Unmarshal(raw, &tr); err != nil {
				return err
			}
			h.tip = h.byHash[tr.Hash]
		}
		return nil
	})
}

// AddBlock registers a block (header-only or full) in the index and
// persists it. prevHash must already be known unless height == 0 (genesis).
func (h *Host) AddBlock(height int32, hash, prevHash [32]byte, timestamp int64, nonCoinbaseTx [][32]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var parent *blockNode
	if height > 0 {
		var ok bool
		parent, ok = h.byHash[prevHash]
		if !ok {
			return fmt.Errorf("chainhost: unknown parent %x for block %x at height %d", prevHash, hash, height)
		}
	}

	rec := blockRecord{Height: height, Hash: hash, PrevHash: prevHash, Timestamp: timestamp, NonCoinbaseTx: nonCoinbaseTx}
	node := &blockNode{rec: rec, parent: parent}

	if err := h.persistBlock(rec); err != nil {
		return err
	}

	h.byHash[hash] = node
	for _, txid := range nonCoinbaseTx {
		h.txToBlock[txid] = hash
	}
	return nil
}

// SetTip updates the active tip to hash, which must already be indexed, and
// persists the change.
func (h *Host) SetTip(hash [32]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	node, ok := h.byHash[hash]
	if !ok {
		return fmt.Errorf("chainhost: unknown tip %x", hash)
	}
	if err := h.persistTip(tipRecord{Height: node.rec.Height, Hash: hash}); err != nil {
		return err
	}
	h.tip = node
	return nil
}

// SetSynced flips whether the host reports itself as fully synced.
func (h *Host) SetSynced(synced bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.synced = synced
}

func (h *Host) persistBlock(rec blockRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return h.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).Put(rec.Hash[:], data)
	})
}

func (h *Host) persistTip(tr tipRecord) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return err
	}
	return h.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte("tip"), data)
	})
}

// --- blocklock.ChainHost ---

func (h *Host) LookupBlockIndex(hash [32]byte) (blocklock.BlockRef, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	node, ok := h.byHash[hash]
	if !ok {
		return blocklock.BlockRef{}, false
	}
	return blocklock.BlockRef{Height: node.rec.Height, Hash: hash}, true
}

func (h *Host) ActiveTip() blocklock.BlockRef {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.tip == nil {
		return blocklock.BlockRef{}
	}
	return blocklock.BlockRef{Height: h.tip.rec.Height, Hash: h.tip.rec.Hash}
}

func (h *Host) Ancestor(ref blocklock.BlockRef, height int32) (blocklock.BlockRef, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	node, ok := h.byHash[ref.Hash]
	if !ok || height < 0 || height > node.rec.Height {
		return blocklock.BlockRef{}, false
	}
	for node != nil && node.rec.Height > height {
		node = node.parent
	}
	if node == nil || node.rec.Height != height {
		return blocklock.BlockRef{}, false
	}
	return blocklock.BlockRef{Height: node.rec.Height, Hash: node.rec.Hash}, true
}

// EnforceBlock marks every indexed block that is not an ancestor of ref, and
// whose height is <= ref.Height, as conflicting, preventing it from ever
// becoming (or staying) the active tip.
func (h *Host) EnforceBlock(ref blocklock.BlockRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	lineage := make(map[[32]byte]bool)
	for node := h.byHash[ref.Hash]; node != nil; node = node.parent {
		lineage[node.rec.Hash] = true
	}

	for hash, node := range h.byHash {
		if node.rec.Height > ref.Height || node.rec.Height == 0 {
			continue
		}
		node.rec.Conflicting = !lineage[hash]
		if err := h.persistBlock(node.rec); err != nil {
			return err
		}
	}
	return nil
}

// ActivateBestChain re-selects the tip as the highest non-conflicting
// indexed block, the simplest fork-choice rule consistent with EnforceBlock
// having already marked losers.
func (h *Host) ActivateBestChain() error {
	h.mu.Lock()
	var best *blockNode
	for _, node := range h.byHash {
		if node.rec.Conflicting {
			continue
		}
		if best == nil || node.rec.Height > best.rec.Height {
			best = node
		}
	}
	if best == nil {
		h.mu.Unlock()
		return nil
	}
	tr := tipRecord{Height: best.rec.Height, Hash: best.rec.Hash}
	h.tip = best
	h.mu.Unlock()

	return h.persistTip(tr)
}

func (h *Host) GetTransaction(txid [32]byte) (containingBlock [32]byte, found bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hash, ok := h.txToBlock[txid]
	return hash, ok
}

func (h *Host) ReadBlockFromDisk(ref blocklock.BlockRef) (txids [][32]byte, timestamp int64, found bool) {
	h.mu.RLock()
	node, ok := h.byHash[ref.Hash]
	h.mu.RUnlock()
	if !ok {
		return nil, 0, false
	}
	return node.rec.NonCoinbaseTx, node.rec.Timestamp, true
}

func (h *Host) TipHasReachedActivationHeight() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tip != nil && h.tip.rec.Height >= h.activationHeight
}

func (h *Host) IsMasternode() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isMasternode
}

func (h *Host) IsBlockchainSynced() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.synced
}
