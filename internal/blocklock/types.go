// Package blocklock implements the block lock handler: the consensus-finality
// subsystem that produces and enforces threshold-BLS signatures over block
// tips so that a majority-signed lock makes a block, and everything beneath
// it, irreversible.
package blocklock

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// hexHash renders a block hash the way user-facing notifications expect:
// big-endian hex, matching the chain's own display convention.
func hexHash(h [32]byte) string {
	rev := make([]byte, 32)
	for i := range h {
		rev[31-i] = h[i]
	}
	return hex.EncodeToString(rev)
}

// BlsSignatureSize is the canonical serialized width of a threshold BLS
// signature (a G2 point, matching the scheme's public keys living in G1).
const BlsSignatureSize = 96

// Tuning constants for block-lock signing and enforcement timing.
const (
	// WaitForIslockTimeoutSeconds is how long a transaction may sit
	// without an instant-lock before it is treated as safe to mine under
	// an enforced chain lock anyway.
	WaitForIslockTimeoutSeconds = 600

	// SchedulerTickSeconds is the period of the handler's self-driven
	// background tick (re-attempt signing, run cleanup).
	SchedulerTickSeconds = 5

	// SigningSafetyWalkBlocks is how many blocks back from the tip the
	// coordinator inspects before attempting to sign it.
	SigningSafetyWalkBlocks = 6

	// SigningSafetyAncestorBlocks is how many ancestors of the tip the
	// safety walk covers besides the tip itself (SigningSafetyWalkBlocks - 1);
	// every block in the walk must have all its txs safe.
	SigningSafetyAncestorBlocks = 5

	// SeenCacheMaxAgeMs bounds how long a seen-cache entry survives after
	// it was first recorded; later sightings do not refresh it.
	SeenCacheMaxAgeMs = 24 * 60 * 60 * 1000

	// CleanupIntervalMs is the minimum spacing between cleanup passes.
	CleanupIntervalMs = 60 * 1000

	// QuorumType identifies which LLMQ type block-lock requests are
	// signed against. A real deployment selects this from the active
	// masternode list; the quorum-of-one harness uses a single fixed
	// value.
	QuorumType = 1
)

// BlsSignature is an opaque, fixed-width threshold signature. The handler
// never inspects its contents; verification and recovery are delegated to
// a SigningService.
type BlsSignature [BlsSignatureSize]byte

// IsNull reports whether the signature is all zero bytes.
func (s BlsSignature) IsNull() bool {
	return s == BlsSignature{}
}

// requestIDPrefix is hashed together with the signed height to derive the
// deterministic signing request ID, so every quorum member signs the same
// question for a given height.
const requestIDPrefix = "blsig"

// RequestID returns the deterministic signing-request identifier for a
// block-lock attempt at the given height.
func RequestID(height int32) [32]byte {
	buf := make([]byte, len(requestIDPrefix)+4)
	copy(buf, requestIDPrefix)
	binary.LittleEndian.PutUint32(buf[len(requestIDPrefix):], uint32(height))
	return sha256.Sum256(buf)
}

// BlockLockSig is the immutable signed finality record: a masternode quorum
// asserting that the block at Height with hash BlockHash is final.
type BlockLockSig struct {
	Height    int32
	BlockHash [32]byte
	Sig       BlsSignature
}

// NullBlockLockSig is the zero-value sentinel: Height == -1, hash and sig
// all-zero.
func NullBlockLockSig() BlockLockSig {
	return BlockLockSig{Height: -1}
}

// IsNull reports whether this is the null/unset lock.
func (b BlockLockSig) IsNull() bool {
	return b.Height == -1 && b.BlockHash == [32]byte{}
}

// Serialize renders the lock in the canonical wire order used both for
// network relay and for computing the wire-hash: (height, block_hash, sig),
// little-endian integers.
func (b BlockLockSig) Serialize() []byte {
	buf := make([]byte, 4+32+BlsSignatureSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(b.Height))
	copy(buf[4:36], b.BlockHash[:])
	copy(buf[36:], b.Sig[:])
	return buf
}

// DeserializeBlockLockSig parses the canonical wire encoding produced by
// Serialize. It returns an error if the buffer is short.
func DeserializeBlockLockSig(data []byte) (BlockLockSig, error) {
	if len(data) != 4+32+BlsSignatureSize {
		return BlockLockSig{}, fmt.Errorf("blocklock: invalid BlockLockSig length %d", len(data))
	}
	var b BlockLockSig
	b.Height = int32(binary.LittleEndian.Uint32(data[0:4]))
	copy(b.BlockHash[:], data[4:36])
	copy(b.Sig[:], data[36:])
	return b, nil
}

// WireHash is the double-SHA256 of the canonical serialization, used as the
// inventory identity (MSG_BLSIG) for deduplication and relay.
func WireHash(b BlockLockSig) [32]byte {
	first := sha256.Sum256(b.Serialize())
	return sha256.Sum256(first[:])
}

func (b BlockLockSig) String() string {
	return fmt.Sprintf("BlockLockSig(height=%d, blockHash=%x)", b.Height, b.BlockHash)
}
