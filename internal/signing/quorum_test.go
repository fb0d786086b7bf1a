package signing

import (
	"sync"
	"testing"
	"time"

	"github.com/blocknetprivacy/blocklockd/internal/blocklock"
)

type capturingListener struct {
	mu  sync.Mutex
	got []blocklock.RecoveredSig
}

func (l *capturingListener) HandleNewRecoveredSig(rs blocklock.RecoveredSig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, rs)
}

func (l *capturingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.got)
}

func TestQuorum_SignAndVerifyRoundTrip(t *testing.T) {
	q := NewQuorum()
	listener := &capturingListener{}
	q.RegisterListener(listener)

	requestID := blocklock.RequestID(100)
	msgHash := [32]byte{9, 9, 9}

	q.AsyncSignIfMember(blocklock.QuorumType, requestID, msgHash)

	deadline := time.Now().Add(time.Second)
	for listener.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if listener.count() != 1 {
		t.Fatalf("expected exactly one recovered signature, got %d", listener.count())
	}

	rs := listener.got[0]
	if rs.RequestID != requestID || rs.MsgHash != msgHash {
		t.Fatalf("recovered signature carries the wrong identifiers: %+v", rs)
	}
	if !q.VerifyRecoveredSig(blocklock.QuorumType, 100, requestID, msgHash, rs.Sig) {
		t.Fatal("the quorum's own signature must verify against its own public key")
	}
}

func TestQuorum_RejectsWrongMessage(t *testing.T) {
	q := NewQuorum()
	listener := &capturingListener{}
	q.RegisterListener(listener)

	requestID := blocklock.RequestID(1)
	msgHash := [32]byte{1}
	q.AsyncSignIfMember(blocklock.QuorumType, requestID, msgHash)

	deadline := time.Now().Add(time.Second)
	for listener.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if listener.count() != 1 {
		t.Fatalf("expected exactly one recovered signature, got %d", listener.count())
	}

	wrongHash := [32]byte{2}
	if q.VerifyRecoveredSig(blocklock.QuorumType, 1, requestID, wrongHash, listener.got[0].Sig) {
		t.Fatal("a signature must not verify against a different message")
	}
}

func TestQuorum_UnregisterStopsDelivery(t *testing.T) {
	q := NewQuorum()
	listener := &capturingListener{}
	q.RegisterListener(listener)
	q.UnregisterListener(listener)

	q.AsyncSignIfMember(blocklock.QuorumType, blocklock.RequestID(5), [32]byte{5})

	time.Sleep(50 * time.Millisecond)
	if listener.count() != 0 {
		t.Fatal("an unregistered listener must not receive recovered signatures")
	}
}
