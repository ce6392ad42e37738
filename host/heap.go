package host

import (
	"encoding/binary"
	"encoding/hex"
)

// Ctid identifies a heap tuple the host relation stores, the same way
// Postgres's ctid system column does: a block number plus an in-block
// offset. Indexed documents carry the ctid of the heap row they were
// built from as a stored field; fetching resolves it back to a live row.
type Ctid struct {
	Block  BlockNumber
	Offset uint16
}

// ctidRawSize is the binary width of a Ctid before hex encoding.
const ctidRawSize = 6

// EncodeCtid serializes c for storage as an indexed document's stored
// ctid field. The result is hex-encoded ASCII rather than raw binary so
// it survives engines (including the reference one) that round-trip
// stored fields through a string-typed serialization layer.
func EncodeCtid(c Ctid) []byte {
	raw := make([]byte, ctidRawSize)
	binary.BigEndian.PutUint32(raw[0:4], uint32(c.Block))
	binary.BigEndian.PutUint16(raw[4:6], c.Offset)
	out := make([]byte, hex.EncodedLen(ctidRawSize))
	hex.Encode(out, raw)
	return out
}

// DecodeCtid is EncodeCtid's inverse; ok is false if b isn't a validly
// hex-encoded Ctid.
func DecodeCtid(b []byte) (c Ctid, ok bool) {
	raw := make([]byte, ctidRawSize)
	n, err := hex.Decode(raw, b)
	if err != nil || n != ctidRawSize {
		return Ctid{}, false
	}
	return Ctid{
		Block:  BlockNumber(binary.BigEndian.Uint32(raw[0:4])),
		Offset: binary.BigEndian.Uint16(raw[4:6]),
	}, true
}

// HeapVisibility resolves a possibly-stale ctid recorded in the index to
// the row's current location and visibility under a snapshot. An
// UPDATE moves a row to a new ctid while leaving the old index entry in
// place until vacuum catches up; Resolve follows that chain.
type HeapVisibility interface {
	// Resolve follows stale's update chain to the row's current ctid and
	// reports whether that row is visible under snap. visible is false
	// for a row that has since been deleted or is not yet visible to
	// snap (e.g. inserted by a transaction not yet committed to it).
	Resolve(stale Ctid, snap Snapshot) (current Ctid, visible bool)
}
