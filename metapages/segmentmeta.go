// Package metapages implements the well-known pages at the start of an
// index relation: the merge lock, schema and settings pages, the
// segment-metas list, and the active-vacuum list.
package metapages

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/pagelist"
)

// ComponentNames enumerates the segment component files a segment meta
// entry may reference, matching the Tantivy-style segment layout this
// module's storage is built to hold: postings, positions, fast fields,
// field norms, terms, the row-store, and a temporary store used during
// segment build.
var ComponentNames = [...]string{
	"postings", "positions", "fast_fields", "field_norms", "terms", "store", "temp_store",
}

const numComponents = len(ComponentNames)

// componentRefSize is Present(1) + HeaderBlock(4) + TotalBytes(8).
const componentRefSize = 13

// deleteRefSize is Present(1) + HeaderBlock(4) + TotalBytes(8) + NumDeletedDocs(4).
const deleteRefSize = 17

// segmentMetaSize is SegmentID(16) + MaxDoc(4) + Xmin(8) + Xmax(8) +
// numComponents component refs + one delete ref.
const segmentMetaSize = 16 + 4 + 8 + 8 + numComponents*componentRefSize + deleteRefSize

// FileRef points at a component's byte-stream list.
type FileRef struct {
	Present     bool
	HeaderBlock host.BlockNumber
	TotalBytes  uint64
}

// DeleteRef additionally records how many documents a delete file marks
// as removed.
type DeleteRef struct {
	FileRef
	NumDeletedDocs uint32
}

// SegmentMeta is one live (or tombstoned) segment's metadata entry.
type SegmentMeta struct {
	SegmentID  uuid.UUID
	MaxDoc     uint32
	Xmin       host.Xid
	Xmax       host.Xid
	Components [numComponents]FileRef
	Delete     DeleteRef
}

// Component returns the file reference for a named component, or
// ok=false if name is not one of ComponentNames.
func (m SegmentMeta) Component(name string) (FileRef, bool) {
	for i, n := range ComponentNames {
		if n == name {
			return m.Components[i], true
		}
	}
	return FileRef{}, false
}

// IsTombstone reports whether a merge or delete has already superseded
// this segment (xmax set).
func (m SegmentMeta) IsTombstone() bool { return m.Xmax != host.InvalidXid }

// OpStamp synthesizes a monotonic ordering value from xmax/xmin so the
// engine's internal optimizers see a timeline consistent with
// visibility, truncating each xid to its low 32 bits the way the
// engine's own opstamps are sized.
func (m SegmentMeta) OpStamp() uint64 {
	return (uint64(uint32(m.Xmax)) << 32) | uint64(uint32(m.Xmin))
}

func encodeFileRef(b []byte, r FileRef) {
	if r.Present {
		b[0] = 1
	}
	binary.LittleEndian.PutUint32(b[1:5], uint32(r.HeaderBlock))
	binary.LittleEndian.PutUint64(b[5:13], r.TotalBytes)
}

func decodeFileRef(b []byte) FileRef {
	return FileRef{
		Present:     b[0] == 1,
		HeaderBlock: host.BlockNumber(binary.LittleEndian.Uint32(b[1:5])),
		TotalBytes:  binary.LittleEndian.Uint64(b[5:13]),
	}
}

func encodeSegmentMeta(m SegmentMeta) []byte {
	b := make([]byte, segmentMetaSize)
	copy(b[0:16], m.SegmentID[:])
	binary.LittleEndian.PutUint32(b[16:20], m.MaxDoc)
	binary.LittleEndian.PutUint64(b[20:28], uint64(m.Xmin))
	binary.LittleEndian.PutUint64(b[28:36], uint64(m.Xmax))
	off := 36
	for _, c := range m.Components {
		encodeFileRef(b[off:off+componentRefSize], c)
		off += componentRefSize
	}
	encodeFileRef(b[off:off+componentRefSize], m.Delete.FileRef)
	binary.LittleEndian.PutUint32(b[off+componentRefSize:off+componentRefSize+4], m.Delete.NumDeletedDocs)
	return b
}

func decodeSegmentMeta(b []byte) SegmentMeta {
	var m SegmentMeta
	copy(m.SegmentID[:], b[0:16])
	m.MaxDoc = binary.LittleEndian.Uint32(b[16:20])
	m.Xmin = host.Xid(binary.LittleEndian.Uint64(b[20:28]))
	m.Xmax = host.Xid(binary.LittleEndian.Uint64(b[28:36]))
	off := 36
	for i := range m.Components {
		m.Components[i] = decodeFileRef(b[off : off+componentRefSize])
		off += componentRefSize
	}
	m.Delete.FileRef = decodeFileRef(b[off : off+componentRefSize])
	m.Delete.NumDeletedDocs = binary.LittleEndian.Uint32(b[off+componentRefSize : off+componentRefSize+4])
	return m
}

// SegmentMetaList is the item list of segment meta entries anchored at
// the well-known segment-metas block.
type SegmentMetaList struct {
	list *pagelist.ItemList
}

// OpenSegmentMetaList opens the list rooted at block.
func OpenSegmentMetaList(ctx context.Context, mgr host.BufferManager, wal host.WALSink, block host.BlockNumber) (*SegmentMetaList, error) {
	list, err := pagelist.OpenItemList(ctx, mgr, wal, block)
	if err != nil {
		return nil, err
	}
	return &SegmentMetaList{list: list}, nil
}

// Insert appends a new segment meta entry, used on commit with
// xmin=committing xid and on merge for the output segment.
func (l *SegmentMetaList) Insert(ctx context.Context, m SegmentMeta) (pagelist.ItemPointer, error) {
	return l.list.Append(ctx, encodeSegmentMeta(m))
}

// Find returns the first segment meta entry whose SegmentID matches id.
func (l *SegmentMetaList) Find(ctx context.Context, id uuid.UUID) (pagelist.ItemPointer, SegmentMeta, bool, error) {
	ptr, payload, found, err := l.list.Lookup(ctx, func(b []byte) bool {
		return uuid.UUID(b[0:16]) == id
	})
	if err != nil || !found {
		return pagelist.ItemPointer{}, SegmentMeta{}, found, err
	}
	return ptr, decodeSegmentMeta(payload), true, nil
}

// StampXmax marks a live segment as superseded by a merge or delete.
// This only changes a fixed-width field, so it is always a safe
// same-size overwrite.
func (l *SegmentMetaList) StampXmax(ctx context.Context, ptr pagelist.ItemPointer, xid host.Xid) error {
	payload, ok, err := l.list.ReadAt(ctx, ptr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchSegment
	}
	m := decodeSegmentMeta(payload)
	m.Xmax = xid
	return l.list.Overwrite(ctx, ptr, encodeSegmentMeta(m))
}

// ForEach visits every segment meta entry, live or tombstoned.
func (l *SegmentMetaList) ForEach(ctx context.Context, fn func(pagelist.ItemPointer, SegmentMeta) bool) error {
	return l.list.Scan(ctx, func(ptr pagelist.ItemPointer, payload []byte) bool {
		return fn(ptr, decodeSegmentMeta(payload))
	})
}
