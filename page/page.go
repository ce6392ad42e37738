// Package page provides typed accessors over the fixed-size pages the host
// buffer manager hands out. A Page never reads raw bytes from disk
// itself — every Page wraps a host.PageGuard obtained by a caller, and
// every mutating method emits one generic WAL record through a
// host.WALSink before the guard can be released, so writes to a page
// are always durable-ordered ahead of whatever structure links to it.
package page

import (
	"context"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/internal/buf"
	"github.com/segmentix/pgsearchidx/internal/pageformat"
)

// Page is a typed view over one pinned/locked page: header region, item
// area (slot table growing forward + payloads growing backward from the
// special area), and the special area itself.
type Page struct {
	guard host.PageGuard
	wal   host.WALSink
}

// Wrap attaches typed accessors to an already-acquired guard.
func Wrap(guard host.PageGuard, wal host.WALSink) *Page {
	return &Page{guard: guard, wal: wal}
}

func (p *Page) Block() host.BlockNumber { return p.guard.Block() }

// NextBlockno reads the special area's forward link.
func (p *Page) NextBlockno() host.BlockNumber {
	b := p.guard.Bytes()
	off := len(b) - pageformat.SpecialAreaSize + pageformat.SpecialNextBlocknoOffset
	return host.BlockNumber(pageformat.GetU32LE(b[off : off+4]))
}

// Xmax reads the special area's recycle stamp.
func (p *Page) Xmax() host.Xid {
	b := p.guard.Bytes()
	off := len(b) - pageformat.SpecialAreaSize + pageformat.SpecialXmaxOffset
	return host.Xid(pageformat.GetU64LE(b[off : off+8]))
}

// lower/upper are the header's free-space pointers: item pointers occupy
// [ItemAreaStart, ItemAreaStart+lower), payloads occupy
// [ItemAreaStart+upper, special area start).
func (p *Page) lower() int {
	b := p.guard.Bytes()
	return int(pageformat.GetU32LE(b[pageformat.HeaderLowerOffset : pageformat.HeaderLowerOffset+4]))
}

func (p *Page) upper() int {
	b := p.guard.Bytes()
	return int(pageformat.GetU32LE(b[pageformat.HeaderUpperOffset : pageformat.HeaderUpperOffset+4]))
}

func (p *Page) itemAreaLen() int {
	return len(p.guard.Bytes()) - pageformat.SpecialAreaSize - pageformat.HeaderSize
}

// FreeSpace is the number of bytes available for a new item (pointer +
// payload) before the page is full.
func (p *Page) FreeSpace() int {
	itemAreaLen := p.itemAreaLen()
	used := p.lower() + (itemAreaLen - p.upper())
	free := itemAreaLen - used
	if free < 0 {
		return 0
	}
	return free
}

// SetNextBlockno links this page to next in a byte-stream or item list.
func (p *Page) SetNextBlockno(ctx context.Context, next host.BlockNumber) error {
	b := p.guard.Bytes()
	off := len(b) - pageformat.SpecialAreaSize + pageformat.SpecialNextBlocknoOffset
	return p.mutate(ctx, func() { pageformat.PutU32LE(b[off:off+4], uint32(next)) })
}

// SetXmax stamps the page as recyclable by xid: the reclaimer walks a
// list marking each page's xmax with the deleter's xid once no snapshot
// can still see it.
func (p *Page) SetXmax(ctx context.Context, xid host.Xid) error {
	b := p.guard.Bytes()
	off := len(b) - pageformat.SpecialAreaSize + pageformat.SpecialXmaxOffset
	return p.mutate(ctx, func() { pageformat.PutU64LE(b[off:off+8], uint64(xid)) })
}

func (p *Page) setLowerUpper(ctx context.Context, lower, upper int) error {
	b := p.guard.Bytes()
	return p.mutate(ctx, func() {
		pageformat.PutU32LE(b[pageformat.HeaderLowerOffset:pageformat.HeaderLowerOffset+4], uint32(lower))
		pageformat.PutU32LE(b[pageformat.HeaderUpperOffset:pageformat.HeaderUpperOffset+4], uint32(upper))
	})
}

// AppendItem places payload on this page's tail if FreeSpace() can hold
// it (payload + one slot-table entry), returning the new item's offset
// number. Callers (pagelist.ItemList) decide when a new page is needed
// instead; Page itself never allocates.
func (p *Page) AppendItem(ctx context.Context, payload []byte) (offsetNo int, ok bool, err error) {
	need := len(payload) + pageformat.ItemPointerSize
	if need > p.FreeSpace() {
		return 0, false, nil
	}
	b := p.guard.Bytes()
	lower := p.lower()
	upper := p.upper()
	newUpper := upper - len(payload)
	payloadStart := pageformat.HeaderSize + newUpper
	slotStart := pageformat.HeaderSize + lower

	slot := make([]byte, pageformat.ItemPointerSize)
	slot[0] = byte(newUpper)
	slot[1] = byte(newUpper >> 8)
	slot[2] = byte(len(payload))
	slot[3] = byte(len(payload) >> 8)

	if err := p.mutate(ctx, func() {
		copy(b[payloadStart:payloadStart+len(payload)], payload)
		copy(b[slotStart:slotStart+pageformat.ItemPointerSize], slot)
		pageformat.PutU32LE(b[pageformat.HeaderLowerOffset:pageformat.HeaderLowerOffset+4], uint32(lower+pageformat.ItemPointerSize))
		pageformat.PutU32LE(b[pageformat.HeaderUpperOffset:pageformat.HeaderUpperOffset+4], uint32(newUpper))
	}); err != nil {
		return 0, false, err
	}
	offsetNo = lower / pageformat.ItemPointerSize
	return offsetNo, true, nil
}

func (p *Page) itemBounds(offsetNo int) (start, length int, ok bool) {
	b := p.guard.Bytes()
	if offsetNo < 0 {
		return 0, 0, false
	}
	slotStart := pageformat.HeaderSize + offsetNo*pageformat.ItemPointerSize
	if slotStart+pageformat.ItemPointerSize > pageformat.HeaderSize+p.lower() {
		return 0, 0, false
	}
	slot, ok := buf.Slice(b, slotStart, pageformat.ItemPointerSize)
	if !ok {
		return 0, 0, false
	}
	relOff := int(buf.U16LE(slot[0:2]))
	length = int(buf.U16LE(slot[2:4]))
	start = pageformat.HeaderSize + relOff
	if !buf.Has(b, start, length) {
		return 0, 0, false
	}
	return start, length, true
}

// Item returns the payload at offsetNo, or ok=false if there is no such
// slot.
func (p *Page) Item(offsetNo int) (payload []byte, ok bool) {
	start, length, ok := p.itemBounds(offsetNo)
	if !ok {
		return nil, false
	}
	return p.guard.Bytes()[start : start+length], true
}

// ItemCount returns the number of occupied slots.
func (p *Page) ItemCount() int {
	return p.lower() / pageformat.ItemPointerSize
}

// OverwriteItem replaces the payload at offsetNo in place; it is only
// valid when newPayload is exactly the size of the existing payload,
// matching the item list's overwrite(blockno, offsetno, new_bytes)
// contract.
func (p *Page) OverwriteItem(ctx context.Context, offsetNo int, newPayload []byte) error {
	start, length, ok := p.itemBounds(offsetNo)
	if !ok {
		return ErrNoSuchItem
	}
	if length != len(newPayload) {
		return ErrSizeMismatch
	}
	b := p.guard.Bytes()
	return p.mutate(ctx, func() { copy(b[start:start+length], newPayload) })
}

func (p *Page) mutate(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	p.guard.MarkDirty()
	if p.wal == nil {
		return nil
	}
	return p.wal.Emit(ctx, host.WALRecord{Block: p.guard.Block(), Payload: p.snapshotSpecial()})
}

// snapshotSpecial captures the special area for the WAL record payload.
// A real host WAL record would carry a full-page image or a delta; the
// special area is sufficient for this module's own recovery reasoning
// (next_blockno/xmax), and the host is responsible for the rest of the
// page's durability once Emit returns.
func (p *Page) snapshotSpecial() []byte {
	b := p.guard.Bytes()
	special := make([]byte, pageformat.SpecialAreaSize)
	copy(special, b[len(b)-pageformat.SpecialAreaSize:])
	return special
}

func (p *Page) Release() { p.guard.Release() }
