// Package pagelist implements the two linked-list shapes built over
// pages: a byte-stream list (one continuous logical file) and an item
// list (zero or more fixed-shape records per page, looked up by linear
// scan and optionally overwritten in place).
package pagelist

import (
	"context"
	"encoding/binary"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/page"
)

const headerRecordSize = 24 // TotalBytes(8) + StartBlockno(4) + LastBlockno(4) + NPages(4) + Flags(4)

// listHeader is the fixed-shape record stored as item 0 on a list's
// well-known header block. start_blockno is valid for every non-empty
// list, last_blockno is the tail where appends occur, npages counts
// data pages only.
type listHeader struct {
	TotalBytes   uint64
	StartBlockno host.BlockNumber
	LastBlockno  host.BlockNumber
	NPages       uint32
	Flags        uint32
}

func (h listHeader) encode() []byte {
	b := make([]byte, headerRecordSize)
	binary.LittleEndian.PutUint64(b[0:8], h.TotalBytes)
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.StartBlockno))
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.LastBlockno))
	binary.LittleEndian.PutUint32(b[16:20], h.NPages)
	binary.LittleEndian.PutUint32(b[20:24], h.Flags)
	return b
}

func decodeListHeader(b []byte) listHeader {
	return listHeader{
		TotalBytes:   binary.LittleEndian.Uint64(b[0:8]),
		StartBlockno: host.BlockNumber(binary.LittleEndian.Uint32(b[8:12])),
		LastBlockno:  host.BlockNumber(binary.LittleEndian.Uint32(b[12:16])),
		NPages:       binary.LittleEndian.Uint32(b[16:20]),
		Flags:        binary.LittleEndian.Uint32(b[20:24]),
	}
}

func emptyHeader() listHeader {
	return listHeader{
		StartBlockno: host.InvalidBlockNumber,
		LastBlockno:  host.InvalidBlockNumber,
	}
}

// headerHandle wraps the management of a list's header record, which
// always lives as the sole item (offset 0) on its well-known block.
type headerHandle struct {
	mgr   host.BufferManager
	wal   host.WALSink
	block host.BlockNumber
}

func openHeader(ctx context.Context, mgr host.BufferManager, wal host.WALSink, block host.BlockNumber) (*headerHandle, listHeader, error) {
	guard, err := mgr.GetBuffer(ctx, block, host.LockExclusive)
	if err != nil {
		return nil, listHeader{}, err
	}
	p := page.Wrap(guard, wal)
	defer p.Release()

	if p.ItemCount() == 0 {
		h := emptyHeader()
		if _, ok, err := p.AppendItem(ctx, h.encode()); err != nil {
			return nil, listHeader{}, err
		} else if !ok {
			return nil, listHeader{}, ErrHeaderPageFull
		}
		return &headerHandle{mgr: mgr, wal: wal, block: block}, h, nil
	}
	raw, ok := p.Item(0)
	if !ok {
		return nil, listHeader{}, ErrHeaderPageFull
	}
	return &headerHandle{mgr: mgr, wal: wal, block: block}, decodeListHeader(raw), nil
}

func (hh *headerHandle) save(ctx context.Context, h listHeader) error {
	guard, err := hh.mgr.GetBuffer(ctx, hh.block, host.LockExclusive)
	if err != nil {
		return err
	}
	p := page.Wrap(guard, hh.wal)
	defer p.Release()
	return p.OverwriteItem(ctx, 0, h.encode())
}
