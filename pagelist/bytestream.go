package pagelist

import (
	"context"
	"sort"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/internal/pageformat"
	"github.com/segmentix/pgsearchidx/page"
)

// indexEntry maps a cumulative byte offset to the data page holding it,
// maintained during append so a seek-reader can binary-search rather
// than walk the list from the start.
type indexEntry struct {
	startOffset int64
	blockno     host.BlockNumber
	length      int
}

// ByteStream is an append-only, randomly-seekable byte list anchored at
// a well-known header block: one continuous logical file spread across
// data pages, each holding one raw chunk as its sole item.
type ByteStream struct {
	mgr    host.BufferManager
	wal    host.WALSink
	header *headerHandle
	hdr    listHeader
	index  []indexEntry // in-memory page-index sidecar
}

// OpenByteStream opens (or initializes, if empty) the byte-stream list
// rooted at block. The in-memory page-index sidecar is rebuilt by
// walking the list once; a persistent sidecar is an optimization this
// reference implementation does not need to prove correctness.
func OpenByteStream(ctx context.Context, mgr host.BufferManager, wal host.WALSink, block host.BlockNumber) (*ByteStream, error) {
	hh, hdr, err := openHeader(ctx, mgr, wal, block)
	if err != nil {
		return nil, err
	}
	bs := &ByteStream{mgr: mgr, wal: wal, header: hh, hdr: hdr}
	if err := bs.rebuildIndex(ctx); err != nil {
		return nil, err
	}
	return bs, nil
}

func (bs *ByteStream) rebuildIndex(ctx context.Context) error {
	bs.index = bs.index[:0]
	blockno := bs.hdr.StartBlockno
	var offset int64
	for blockno != host.InvalidBlockNumber {
		guard, err := bs.mgr.GetBuffer(ctx, blockno, host.LockShared)
		if err != nil {
			return err
		}
		p := page.Wrap(guard, bs.wal)
		payload, ok := p.Item(0)
		next := p.NextBlockno()
		p.Release()
		if !ok {
			return ErrNoSuchItem
		}
		bs.index = append(bs.index, indexEntry{startOffset: offset, blockno: blockno, length: len(payload)})
		offset += int64(len(payload))
		blockno = next
	}
	return nil
}

// TotalBytes is the logical length of the stream.
func (bs *ByteStream) TotalBytes() int64 { return int64(bs.hdr.TotalBytes) }

// Append writes data to the tail of the stream, allocating new pages as
// needed, and returns the logical byte offset at which it was written.
func (bs *ByteStream) Append(ctx context.Context, data []byte) (int64, error) {
	startOffset := int64(bs.hdr.TotalBytes)
	remaining := data

	for len(remaining) > 0 {
		guard, err := bs.tailGuard(ctx)
		if err != nil {
			return 0, err
		}
		p := page.Wrap(guard, bs.wal)
		if p.ItemCount() > 0 {
			// The byte-stream tail page holds exactly one item; once it
			// has one, further bytes go to a fresh tail page.
			p.Release()
			if err := bs.growTail(ctx); err != nil {
				return 0, err
			}
			continue
		}
		free := p.FreeSpace() - pageformat.ItemPointerSize
		if free <= 0 {
			p.Release()
			if err := bs.growTail(ctx); err != nil {
				return 0, err
			}
			continue
		}
		chunk := remaining
		if len(chunk) > free {
			chunk = chunk[:free]
		}
		_, ok, err := p.AppendItem(ctx, chunk)
		if err != nil {
			p.Release()
			return 0, err
		}
		if !ok {
			p.Release()
			if err := bs.growTail(ctx); err != nil {
				return 0, err
			}
			continue
		}
		bs.index = append(bs.index, indexEntry{
			startOffset: int64(bs.hdr.TotalBytes),
			blockno:     p.Block(),
			length:      len(chunk),
		})
		bs.hdr.TotalBytes += uint64(len(chunk))
		p.Release()
		remaining = remaining[len(chunk):]
	}
	if err := bs.header.save(ctx, bs.hdr); err != nil {
		return 0, err
	}
	return startOffset, nil
}

// tailGuard returns a guard on the current tail page, allocating the
// very first data page if the stream is still empty.
func (bs *ByteStream) tailGuard(ctx context.Context) (host.PageGuard, error) {
	if bs.hdr.LastBlockno == host.InvalidBlockNumber {
		if err := bs.allocateFirstPage(ctx); err != nil {
			return nil, err
		}
	}
	return bs.mgr.GetBuffer(ctx, bs.hdr.LastBlockno, host.LockExclusive)
}

func (bs *ByteStream) allocateFirstPage(ctx context.Context) error {
	guard, err := bs.mgr.NewBuffer(ctx)
	if err != nil {
		return err
	}
	block := guard.Block()
	guard.Release()
	bs.hdr.StartBlockno = block
	bs.hdr.LastBlockno = block
	bs.hdr.NPages = 1
	return nil
}

func (bs *ByteStream) growTail(ctx context.Context) error {
	newGuard, err := bs.mgr.NewBuffer(ctx)
	if err != nil {
		return err
	}
	newBlock := newGuard.Block()
	newGuard.Release()

	oldGuard, err := bs.mgr.GetBuffer(ctx, bs.hdr.LastBlockno, host.LockExclusive)
	if err != nil {
		return err
	}
	oldPage := page.Wrap(oldGuard, bs.wal)
	err = oldPage.SetNextBlockno(ctx, newBlock)
	oldPage.Release()
	if err != nil {
		return err
	}

	bs.hdr.LastBlockno = newBlock
	bs.hdr.NPages++
	return nil
}

// ReadAt returns length bytes starting at the logical offset off,
// walking from the index entry located by binary search (O(log N) in
// the number of data pages, per the append-maintained sidecar).
func (bs *ByteStream) ReadAt(ctx context.Context, off int64, length int) ([]byte, error) {
	if off < 0 || off+int64(length) > int64(bs.hdr.TotalBytes) {
		return nil, ErrOffsetOutOfRange
	}
	out := make([]byte, 0, length)
	i := sort.Search(len(bs.index), func(i int) bool {
		return bs.index[i].startOffset+int64(bs.index[i].length) > off
	})
	for len(out) < length && i < len(bs.index) {
		entry := bs.index[i]
		guard, err := bs.mgr.GetBuffer(ctx, entry.blockno, host.LockShared)
		if err != nil {
			return nil, err
		}
		p := page.Wrap(guard, bs.wal)
		payload, ok := p.Item(0)
		p.Release()
		if !ok {
			return nil, ErrNoSuchItem
		}
		start := 0
		if off > entry.startOffset {
			start = int(off - entry.startOffset)
		}
		end := len(payload)
		if remaining := length - len(out); start+remaining < end {
			end = start + remaining
		}
		out = append(out, payload[start:end]...)
		off = entry.startOffset + int64(end)
		i++
	}
	return out, nil
}

// Truncate walks the list marking every data page's xmax with deleter
// and unlinks the header entry, recycling the whole list.
func (bs *ByteStream) Truncate(ctx context.Context, deleter host.Xid) error {
	blockno := bs.hdr.StartBlockno
	for blockno != host.InvalidBlockNumber {
		guard, err := bs.mgr.GetBuffer(ctx, blockno, host.LockExclusive)
		if err != nil {
			return err
		}
		p := page.Wrap(guard, bs.wal)
		next := p.NextBlockno()
		err = p.SetXmax(ctx, deleter)
		p.Release()
		if err != nil {
			return err
		}
		blockno = next
	}
	bs.hdr = emptyHeader()
	bs.index = bs.index[:0]
	return bs.header.save(ctx, bs.hdr)
}
