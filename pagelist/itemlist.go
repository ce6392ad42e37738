package pagelist

import (
	"context"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/internal/pageformat"
	"github.com/segmentix/pgsearchidx/page"
)

// ItemPointer names one record's location: the page it lives on and its
// slot number within that page.
type ItemPointer struct {
	Blockno  host.BlockNumber
	OffsetNo int
}

// ItemList is a linked list of pages each holding zero or more
// fixed-shape records via the page's item-pointer slot table. Records
// are appended to the tail page if they fit, else a new tail page is
// allocated; lookup is a linear scan from the head.
type ItemList struct {
	mgr    host.BufferManager
	wal    host.WALSink
	header *headerHandle
	hdr    listHeader
}

// OpenItemList opens (or initializes) the item list rooted at block.
func OpenItemList(ctx context.Context, mgr host.BufferManager, wal host.WALSink, block host.BlockNumber) (*ItemList, error) {
	hh, hdr, err := openHeader(ctx, mgr, wal, block)
	if err != nil {
		return nil, err
	}
	return &ItemList{mgr: mgr, wal: wal, header: hh, hdr: hdr}, nil
}

// Append places item on the tail page if it fits, else allocates a new
// tail. Items larger than the max a page could ever hold are a caller
// error and are never retried.
func (l *ItemList) Append(ctx context.Context, item []byte) (ItemPointer, error) {
	if len(item)+pageformat.ItemPointerSize > pageformat.MaxItemSize {
		return ItemPointer{}, ErrItemTooLarge
	}
	guard, err := l.tailGuard(ctx)
	if err != nil {
		return ItemPointer{}, err
	}
	p := page.Wrap(guard, l.wal)
	off, ok, err := p.AppendItem(ctx, item)
	if err != nil {
		p.Release()
		return ItemPointer{}, err
	}
	if !ok {
		p.Release()
		if err := l.growTail(ctx); err != nil {
			return ItemPointer{}, err
		}
		return l.Append(ctx, item)
	}
	block := p.Block()
	p.Release()
	l.hdr.TotalBytes += uint64(len(item))
	if err := l.header.save(ctx, l.hdr); err != nil {
		return ItemPointer{}, err
	}
	return ItemPointer{Blockno: block, OffsetNo: off}, nil
}

func (l *ItemList) tailGuard(ctx context.Context) (host.PageGuard, error) {
	if l.hdr.LastBlockno == host.InvalidBlockNumber {
		guard, err := l.mgr.NewBuffer(ctx)
		if err != nil {
			return nil, err
		}
		block := guard.Block()
		guard.Release()
		l.hdr.StartBlockno = block
		l.hdr.LastBlockno = block
		l.hdr.NPages = 1
	}
	return l.mgr.GetBuffer(ctx, l.hdr.LastBlockno, host.LockExclusive)
}

func (l *ItemList) growTail(ctx context.Context) error {
	newGuard, err := l.mgr.NewBuffer(ctx)
	if err != nil {
		return err
	}
	newBlock := newGuard.Block()
	newGuard.Release()

	oldGuard, err := l.mgr.GetBuffer(ctx, l.hdr.LastBlockno, host.LockExclusive)
	if err != nil {
		return err
	}
	oldPage := page.Wrap(oldGuard, l.wal)
	err = oldPage.SetNextBlockno(ctx, newBlock)
	oldPage.Release()
	if err != nil {
		return err
	}

	l.hdr.LastBlockno = newBlock
	l.hdr.NPages++
	return nil
}

// Predicate inspects a raw item payload and reports whether it matches.
type Predicate func(payload []byte) bool

// Lookup performs a linear scan from the head, returning the first
// matching record's pointer and payload.
func (l *ItemList) Lookup(ctx context.Context, match Predicate) (ItemPointer, []byte, bool, error) {
	blockno := l.hdr.StartBlockno
	for blockno != host.InvalidBlockNumber {
		guard, err := l.mgr.GetBuffer(ctx, blockno, host.LockShared)
		if err != nil {
			return ItemPointer{}, nil, false, err
		}
		p := page.Wrap(guard, l.wal)
		n := p.ItemCount()
		for i := 0; i < n; i++ {
			payload, ok := p.Item(i)
			if !ok {
				continue
			}
			if match(payload) {
				out := make([]byte, len(payload))
				copy(out, payload)
				here := p.Block()
				p.Release()
				return ItemPointer{Blockno: here, OffsetNo: i}, out, true, nil
			}
		}
		next := p.NextBlockno()
		p.Release()
		blockno = next
	}
	return ItemPointer{}, nil, false, nil
}

// Scan visits every record in order, head to tail, stopping early if fn
// returns false.
func (l *ItemList) Scan(ctx context.Context, fn func(ItemPointer, []byte) bool) error {
	blockno := l.hdr.StartBlockno
	for blockno != host.InvalidBlockNumber {
		guard, err := l.mgr.GetBuffer(ctx, blockno, host.LockShared)
		if err != nil {
			return err
		}
		p := page.Wrap(guard, l.wal)
		n := p.ItemCount()
		cont := true
		for i := 0; i < n && cont; i++ {
			payload, ok := p.Item(i)
			if !ok {
				continue
			}
			cp := make([]byte, len(payload))
			copy(cp, payload)
			cont = fn(ItemPointer{Blockno: blockno, OffsetNo: i}, cp)
		}
		next := p.NextBlockno()
		p.Release()
		if !cont {
			return nil
		}
		blockno = next
	}
	return nil
}

// ReadAt returns the payload at ptr directly, without scanning from the
// head, for callers that already hold a pointer from a prior Append,
// Lookup, or Scan.
func (l *ItemList) ReadAt(ctx context.Context, ptr ItemPointer) ([]byte, bool, error) {
	guard, err := l.mgr.GetBuffer(ctx, ptr.Blockno, host.LockShared)
	if err != nil {
		return nil, false, err
	}
	p := page.Wrap(guard, l.wal)
	payload, ok := p.Item(ptr.OffsetNo)
	var out []byte
	if ok {
		out = make([]byte, len(payload))
		copy(out, payload)
	}
	p.Release()
	return out, ok, nil
}

// Overwrite replaces the record at ptr in place; newBytes must be
// exactly the size of the record it replaces.
func (l *ItemList) Overwrite(ctx context.Context, ptr ItemPointer, newBytes []byte) error {
	guard, err := l.mgr.GetBuffer(ctx, ptr.Blockno, host.LockExclusive)
	if err != nil {
		return err
	}
	p := page.Wrap(guard, l.wal)
	defer p.Release()
	if err := p.OverwriteItem(ctx, ptr.OffsetNo, newBytes); err != nil {
		if err == page.ErrNoSuchItem {
			return ErrNoSuchItem
		}
		return err
	}
	return nil
}
