// Package wire implements the length-prefixed message framing used to relay
// block-lock signatures between peers, grounded on the node's own stream
// framing helpers (type byte + big-endian length prefix + payload).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/blocknetprivacy/blocklockd/internal/blocklock"
)

// MaxMessageSize bounds a single framed message. A BlockLockSig payload is
// fixed-width and tiny; this cap exists to reject garbage on the wire before
// ever allocating for it.
const MaxMessageSize = 4 * 1024

// MsgTypeBlockLockSig is the wire message type for a relayed block-lock
// signature (MSG_BLSIG in inventory terms).
const MsgTypeBlockLockSig byte = 0x1c

// WriteBlockLockSig frames sig as a single message: type byte, 4-byte
// big-endian length prefix, canonical payload.
func WriteBlockLockSig(w io.Writer, sig blocklock.BlockLockSig) error {
	payload := sig.Serialize()
	if _, err := w.Write([]byte{MsgTypeBlockLockSig}); err != nil {
		return err
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(payload)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadBlockLockSig reads a single framed message and decodes it as a
// BlockLockSig. It returns an error if the type byte doesn't match, the
// length exceeds MaxMessageSize, or the payload doesn't parse.
func ReadBlockLockSig(r io.Reader) (blocklock.BlockLockSig, error) {
	typeBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, typeBuf); err != nil {
		return blocklock.BlockLockSig{}, err
	}
	if typeBuf[0] != MsgTypeBlockLockSig {
		return blocklock.BlockLockSig{}, fmt.Errorf("wire: unexpected message type %#x", typeBuf[0])
	}

	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return blocklock.BlockLockSig{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length > MaxMessageSize {
		return blocklock.BlockLockSig{}, fmt.Errorf("wire: message too large: %d > %d", length, MaxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return blocklock.BlockLockSig{}, err
	}
	return blocklock.DeserializeBlockLockSig(payload)
}

// InvHash computes the inventory identity advertised for sig: the wire-hash
// used for MSG_BLSIG deduplication and getdata requests.
func InvHash(sig blocklock.BlockLockSig) [32]byte {
	return blocklock.WireHash(sig)
}
