package metapages

import (
	"context"
	"encoding/binary"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/page"
)

// mergeLockRecordSize is LastMergeXid(8) + ActiveVacuumListBlock(4) +
// AmbulkdeleteSentinelBlock(4).
const mergeLockRecordSize = 16

type mergeLockRecord struct {
	LastMergeXid              host.Xid
	ActiveVacuumListBlock     host.BlockNumber
	AmbulkdeleteSentinelBlock host.BlockNumber
}

func encodeMergeLockRecord(r mergeLockRecord) []byte {
	b := make([]byte, mergeLockRecordSize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(r.LastMergeXid))
	binary.LittleEndian.PutUint32(b[8:12], uint32(r.ActiveVacuumListBlock))
	binary.LittleEndian.PutUint32(b[12:16], uint32(r.AmbulkdeleteSentinelBlock))
	return b
}

func decodeMergeLockRecord(b []byte) mergeLockRecord {
	return mergeLockRecord{
		LastMergeXid:              host.Xid(binary.LittleEndian.Uint64(b[0:8])),
		ActiveVacuumListBlock:     host.BlockNumber(binary.LittleEndian.Uint32(b[8:12])),
		AmbulkdeleteSentinelBlock: host.BlockNumber(binary.LittleEndian.Uint32(b[12:16])),
	}
}

// MergeLock serializes merges via a conditional exclusive buffer lock
// on the well-known merge lock block, and an unconditional lock used by
// vacuum for ambulkdelete.
type MergeLock struct {
	mgr   host.BufferManager
	wal   host.WALSink
	block host.BlockNumber
}

// OpenMergeLock initializes (if empty) the merge lock record on block.
func OpenMergeLock(ctx context.Context, mgr host.BufferManager, wal host.WALSink, block host.BlockNumber, vacuumListBlock, ambulkdeleteSentinel host.BlockNumber) (*MergeLock, error) {
	guard, err := mgr.GetBuffer(ctx, block, host.LockExclusive)
	if err != nil {
		return nil, err
	}
	p := page.Wrap(guard, wal)
	if p.ItemCount() == 0 {
		rec := mergeLockRecord{
			LastMergeXid:              host.InvalidXid,
			ActiveVacuumListBlock:     vacuumListBlock,
			AmbulkdeleteSentinelBlock: ambulkdeleteSentinel,
		}
		if _, ok, err := p.AppendItem(ctx, encodeMergeLockRecord(rec)); err != nil || !ok {
			p.Release()
			if err != nil {
				return nil, err
			}
			return nil, ErrLockPageFull
		}
	}
	p.Release()
	return &MergeLock{mgr: mgr, wal: wal, block: block}, nil
}

func (l *MergeLock) read(ctx context.Context) (mergeLockRecord, error) {
	guard, err := l.mgr.GetBuffer(ctx, l.block, host.LockShared)
	if err != nil {
		return mergeLockRecord{}, err
	}
	p := page.Wrap(guard, l.wal)
	raw, ok := p.Item(0)
	p.Release()
	if !ok {
		return mergeLockRecord{}, ErrLockPageFull
	}
	return decodeMergeLockRecord(raw), nil
}

// MergeLockHandle is held until Release is called, then stamps
// LastMergeXid with the xid the caller passes (the committing or
// current transaction) so future AcquireForMerge calls can reason
// about visibility.
type MergeLockHandle struct {
	lock        *MergeLock
	release     func()
	ambulkdelete bool
}

// Release drops the buffer lock, optionally stamping LastMergeXid
// first. Pass host.InvalidXid to leave the stamp untouched (used by
// AcquireForAmbulkdelete, which does not participate in merge
// visibility reasoning).
func (h *MergeLockHandle) Release(ctx context.Context, stampXid host.Xid) error {
	if stampXid != host.InvalidXid {
		guard, err := h.lock.mgr.GetBuffer(ctx, h.lock.block, host.LockExclusive)
		if err != nil {
			h.release()
			return err
		}
		p := page.Wrap(guard, h.lock.wal)
		raw, ok := p.Item(0)
		if ok {
			rec := decodeMergeLockRecord(raw)
			rec.LastMergeXid = stampXid
			err = p.OverwriteItem(ctx, 0, encodeMergeLockRecord(rec))
		}
		p.Release()
		h.release()
		return err
	}
	h.release()
	return nil
}

// AcquireForMerge takes a conditional exclusive lock, succeeding only
// when no other backend holds it and the last merge's xid is invalid,
// the current transaction, or visible to every current/future
// transaction.
func (l *MergeLock) AcquireForMerge(ctx context.Context, currentXid host.Xid, snap host.Snapshot) (*MergeLockHandle, bool, error) {
	guard, ok, err := l.mgr.GetBufferConditional(l.block)
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := l.recordFromGuard(guard)
	if err != nil {
		guard.Release()
		return nil, false, err
	}
	if !l.visibleToAll(rec.LastMergeXid, currentXid, snap) {
		guard.Release()
		return nil, false, nil
	}
	return &MergeLockHandle{lock: l, release: guard.Release}, true, nil
}

func (l *MergeLock) visibleToAll(lastMergeXid, currentXid host.Xid, snap host.Snapshot) bool {
	if lastMergeXid == host.InvalidXid || lastMergeXid == currentXid {
		return true
	}
	return !snap.InProgressAt(lastMergeXid) && lastMergeXid < snap.RecentGlobalXmin
}

func (l *MergeLock) recordFromGuard(guard host.PageGuard) (mergeLockRecord, error) {
	p := page.Wrap(guard, l.wal)
	raw, ok := p.Item(0)
	if !ok {
		return mergeLockRecord{}, ErrLockPageFull
	}
	return decodeMergeLockRecord(raw), nil
}

// AcquireForAmbulkdelete takes an unconditional exclusive lock, used by
// vacuum.
func (l *MergeLock) AcquireForAmbulkdelete(ctx context.Context) (*MergeLockHandle, error) {
	guard, err := l.mgr.GetBuffer(ctx, l.block, host.LockExclusive)
	if err != nil {
		return nil, err
	}
	return &MergeLockHandle{lock: l, release: guard.Release, ambulkdelete: true}, nil
}

// ActiveVacuumListBlock returns the fixed block the active-vacuum list
// is rooted at.
func (l *MergeLock) ActiveVacuumListBlock(ctx context.Context) (host.BlockNumber, error) {
	rec, err := l.read(ctx)
	if err != nil {
		return host.InvalidBlockNumber, err
	}
	return rec.ActiveVacuumListBlock, nil
}

// AmbulkdeleteSentinelBlock returns the block vacuum pins to signal a
// running pass to other backends.
func (l *MergeLock) AmbulkdeleteSentinelBlock(ctx context.Context) (host.BlockNumber, error) {
	rec, err := l.read(ctx)
	if err != nil {
		return host.InvalidBlockNumber, err
	}
	return rec.AmbulkdeleteSentinelBlock, nil
}
