package gossip

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// protocolTag domain-separates message ids from any other BLAKE3 use.
var protocolTag = []byte("GOSSIP")

// MessageID derives the identity of a message originated by sender with the
// given per-origin sequence number: the first 8 bytes, read little-endian, of
// BLAKE3(tag || le64(sender) || le64(seq) || payload).
func MessageID(sender, seq uint64, payload []byte) uint64 {
	var buf [8]byte
	h := blake3.New(32, nil)
	h.Write(protocolTag)
	binary.LittleEndian.PutUint64(buf[:], sender)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])
	h.Write(payload)
	return binary.LittleEndian.Uint64(h.Sum(nil)[:8])
}
