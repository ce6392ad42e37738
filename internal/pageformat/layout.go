// Package pageformat houses the low-level binary layout of an index
// relation's pages: parsing stays here, allocation-free where
// possible, independent from the public page/pagelist API so those
// packages can orchestrate the bytes in a more ergonomic form.
package pageformat

import "github.com/segmentix/pgsearchidx/internal/buf"

const (
	// PageSize is the host's fixed page size. 8 KiB matches the common
	// default for the database hosts this module is designed to embed in.
	PageSize = 8192

	// SpecialAreaSize is the number of trailing bytes on every page
	// reserved for the special area: next_blockno + xmax.
	SpecialAreaSize = 16

	// SpecialNextBlocknoOffset/SpecialXmaxOffset are offsets within the
	// special area (not the page), little-endian encoded.
	SpecialNextBlocknoOffset = 0
	SpecialXmaxOffset        = 8

	// HeaderSize is the size of the standard page header preceding the
	// item area: free-space pointers plus a checksum.
	HeaderSize = 24

	// HeaderLowerOffset/HeaderUpperOffset point at the free-space
	// pointers: bytes [0, Lower) hold item pointers growing forward,
	// bytes [Upper, PageSize-SpecialAreaSize) hold item payloads growing
	// backward from the special area.
	HeaderLowerOffset   = 0
	HeaderUpperOffset   = 4
	HeaderChecksumOffset = 8

	// ItemAreaStart/ItemAreaEnd bound the region available for item
	// pointers and payloads, excluding header and special area.
	ItemAreaStart = HeaderSize
	ItemAreaEnd   = PageSize - SpecialAreaSize

	// InvalidBlockNumber is the sentinel for "no next page" / "no block".
	InvalidBlockNumber uint32 = 0xFFFFFFFF

	// InvalidXid is the sentinel transaction id meaning "not set" (for
	// both xmin-never-used and xmax-not-deleted, disambiguated by field).
	InvalidXid uint64 = 0

	// FrozenXid is the sentinel transaction id meaning "visible to every
	// snapshot, past or future" written by freeze.
	FrozenXid uint64 = 1

	// ItemPointerSize is the size of one slot-table entry in an item
	// list's page: (offset uint16, length uint16).
	ItemPointerSize = 4

	// MaxItemSize is the largest single item (record) the item list will
	// ever place on one page; larger values are a caller error.
	MaxItemSize = ItemAreaEnd - ItemAreaStart - ItemPointerSize
)

// WellKnownBlock enumerates the fixed block numbers laid out at the start
// of the index relation. The remainder of the relation is free
// space the host's free-space map hands out via NewBuffer.
type WellKnownBlock uint32

const (
	BlockMergeLock     WellKnownBlock = 0
	BlockCleanupLock   WellKnownBlock = 1
	BlockSchemaA       WellKnownBlock = 2
	BlockSchemaB       WellKnownBlock = 3
	BlockSettingsA     WellKnownBlock = 4
	BlockSettingsB     WellKnownBlock = 5
	BlockSegmentMetas  WellKnownBlock = 6
	BlockWriterLock    WellKnownBlock = 7
	BlockEngineMeta    WellKnownBlock = 8
	FirstFreeBlock     WellKnownBlock = 9
)

// PutU32LE/PutU64LE write little-endian integers. There's no buf writer
// counterpart to delegate to (buf only ever needed to decode), so these
// stay hand-rolled.
func PutU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func PutU64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// GetU32LE/GetU64LE read little-endian integers back, delegating to
// buf's bounds-safe decoders (they return 0 on a too-short slice rather
// than panicking) instead of re-deriving the same bit-shifting here.
func GetU32LE(b []byte) uint32 { return buf.U32LE(b) }

func GetU64LE(b []byte) uint64 { return buf.U64LE(b) }
