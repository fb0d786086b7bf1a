package wire

import (
	"bytes"
	"testing"

	"github.com/blocknetprivacy/blocklockd/internal/blocklock"
)

func TestWriteReadBlockLockSigRoundTrip(t *testing.T) {
	var hash [32]byte
	hash[0] = 0xab
	var sig blocklock.BlsSignature
	sig[1] = 0xcd

	want := blocklock.BlockLockSig{Height: 42, BlockHash: hash, Sig: sig}

	var buf bytes.Buffer
	if err := WriteBlockLockSig(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadBlockLockSig(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestReadBlockLockSigRejectsWrongType(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x99)
	buf.Write([]byte{0, 0, 0, 0})

	if _, err := ReadBlockLockSig(&buf); err == nil {
		t.Fatal("expected an error for an unexpected message type")
	}
}

func TestReadBlockLockSigRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(MsgTypeBlockLockSig)
	buf.Write([]byte{0x01, 0x00, 0x00, 0x00}) // 16 MiB claimed length

	if _, err := ReadBlockLockSig(&buf); err == nil {
		t.Fatal("expected an error for a length exceeding MaxMessageSize")
	}
}

func TestInvHashMatchesWireHash(t *testing.T) {
	sig := blocklock.BlockLockSig{Height: 1, BlockHash: [32]byte{1}, Sig: blocklock.BlsSignature{}}
	if InvHash(sig) != blocklock.WireHash(sig) {
		t.Fatal("InvHash must be identical to blocklock.WireHash")
	}
}
