// Package signing implements the SigningService contract with threshold BLS
// signing, grounded on the BN256 pairing suite and BLS scheme from
// go.dedis.ch/kyber/v3 (the same library and API the wallet's own BLS
// signing helper uses). Full LLMQ quorum formation, DKG, and share
// aggregation are out of scope; Quorum instead runs a "quorum of one": a
// single key pair that always recovers its own signature immediately,
// which is enough to exercise every other component honestly.
package signing

import (
	"fmt"
	"sync"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"

	"github.com/blocknetprivacy/blocklockd/internal/blocklock"
)

// g1SigBytes is the marshaled size of a BN256 G1 point under this suite.
// blocklock.BlsSignature is sized for the real 96-byte G2 signatures a
// production LLMQ quorum would produce; the quorum-of-one harness's G1
// signatures are smaller and are zero-padded into the same fixed slot.
const g1SigBytes = 64

// Quorum is a single-member stand-in for a real LLMQ threshold-signing
// quorum: it holds one BLS key pair and treats every signing request as
// already having reached threshold.
type Quorum struct {
	suite *bn256.Suite
	priv  kyber.Scalar
	pub   kyber.Point

	mu        sync.Mutex
	listeners []blocklock.RecoveredSigListener
}

// NewQuorum generates a fresh key pair and returns a ready-to-use Quorum.
func NewQuorum() *Quorum {
	suite := bn256.NewSuite()
	priv, pub := bls.NewKeyPair(suite, random.New())
	return &Quorum{suite: suite, priv: priv, pub: pub}
}

// RegisterListener adds l to the set notified of recovered signatures.
func (q *Quorum) RegisterListener(l blocklock.RecoveredSigListener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

// UnregisterListener removes l from the notified set.
func (q *Quorum) UnregisterListener(l blocklock.RecoveredSigListener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, existing := range q.listeners {
		if existing == l {
			q.listeners = append(q.listeners[:i], q.listeners[i+1:]...)
			return
		}
	}
}

// AsyncSignIfMember signs msgHash in the background and delivers the result
// to every registered listener. quorumType is accepted for interface
// compatibility with a multi-quorum deployment but unused: this harness has
// exactly one quorum.
func (q *Quorum) AsyncSignIfMember(quorumType uint8, requestID, msgHash [32]byte) {
	go q.signAndDeliver(requestID, msgHash)
}

func (q *Quorum) signAndDeliver(requestID, msgHash [32]byte) {
	raw, err := bls.Sign(q.suite, q.priv, msgHash[:])
	if err != nil {
		return
	}
	sig, err := packSignature(raw)
	if err != nil {
		return
	}

	rs := blocklock.RecoveredSig{RequestID: requestID, MsgHash: msgHash, Sig: sig}

	q.mu.Lock()
	listeners := append([]blocklock.RecoveredSigListener(nil), q.listeners...)
	q.mu.Unlock()

	for _, l := range listeners {
		l.HandleNewRecoveredSig(rs)
	}
}

// VerifyRecoveredSig reports whether sig is a valid BLS signature over
// msgHash under this quorum's public key. height and requestID are accepted
// for interface compatibility; a real quorum selection would use them to
// pick which of several quorums' public keys to verify against.
func (q *Quorum) VerifyRecoveredSig(quorumType uint8, height int32, requestID, msgHash [32]byte, sig blocklock.BlsSignature) bool {
	return bls.Verify(q.suite, q.pub, msgHash[:], unpackSignature(sig)) == nil
}

func packSignature(raw []byte) (blocklock.BlsSignature, error) {
	if len(raw) > blocklock.BlsSignatureSize {
		return blocklock.BlsSignature{}, fmt.Errorf("signing: signature too large: %d > %d", len(raw), blocklock.BlsSignatureSize)
	}
	var out blocklock.BlsSignature
	copy(out[:], raw)
	return out, nil
}

func unpackSignature(sig blocklock.BlsSignature) []byte {
	return append([]byte(nil), sig[:g1SigBytes]...)
}
