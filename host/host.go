// Package host defines the contracts this module consumes from its
// embedding database: a buffer manager that hands out locked pages, a WAL
// sink that durably records mutations, and a transaction/snapshot facility
// that numbers and orders commits. These are external
// collaborators — the database host owns buffer pools, crash recovery, and
// MVCC snapshots. This package only states the interfaces every other
// package in the module is built against, plus (in reference.go) one
// concrete implementation of them so the rest of the module can be tested
// without a real database host attached.
package host

import "context"

// LockMode is the pin/lock mode requested from GetBuffer.
type LockMode int

const (
	LockNone LockMode = iota
	LockShared
	LockExclusive
)

// BlockNumber identifies a page within the index relation. It is the unit
// the host's buffer manager addresses pages by.
type BlockNumber uint32

// InvalidBlockNumber is the sentinel meaning "no such page" / "end of list".
const InvalidBlockNumber BlockNumber = 0xFFFFFFFF

// Xid is a host transaction identifier. Segment MVCC stamps (xmin/xmax)
// are expressed in this type.
type Xid uint64

// InvalidXid means "not applicable" (an xmax that hasn't fired, or an
// xmin that was never assigned).
const InvalidXid Xid = 0

// FrozenXid is the sentinel written by freeze: visible to every snapshot.
const FrozenXid Xid = 1

// PageGuard is a scoped handle on one pinned/locked page. Exactly one of
// MarkDirty/Release-without-MarkDirty happens per guard; Release is always
// called exactly once by the holder, on every exit path.
type PageGuard interface {
	// Bytes returns the full page contents, writable when the guard holds
	// an exclusive lock.
	Bytes() []byte
	// Block is the page's block number.
	Block() BlockNumber
	// MarkDirty records that Bytes() was mutated; the host's buffer
	// manager will write it back and the WAL record already emitted by
	// the caller (see WALSink) will be replayed on recovery.
	MarkDirty()
	// Release drops the pin/lock. Safe to call multiple times; only the
	// first call has effect.
	Release()
}

// BufferManager is the narrow slice of the host's buffer pool this module
// needs.
type BufferManager interface {
	// GetBuffer pins and locks the given block in the requested mode,
	// blocking if necessary.
	GetBuffer(ctx context.Context, block BlockNumber, mode LockMode) (PageGuard, error)
	// GetBufferConditional acquires an exclusive pin on block without
	// blocking; returns ok=false if the buffer is already pinned
	// elsewhere.
	GetBufferConditional(block BlockNumber) (guard PageGuard, ok bool, err error)
	// NewBuffer allocates or recycles a page from the host's free-space
	// map, returning it exclusively locked with an empty item area and a
	// special area whose NextBlockno is InvalidBlockNumber.
	NewBuffer(ctx context.Context) (PageGuard, error)
	// PageSize is the host's fixed page size.
	PageSize() int
}

// WALRecord is the generic WAL record every mutating page operation emits
// before its guard is released. The core never defines its own WAL
// format; this is the host's generic record with a module-owned payload.
type WALRecord struct {
	Block   BlockNumber
	Payload []byte
}

// WALSink accepts generic WAL records from page mutations. Durability and
// crash recovery are the host's responsibility once a record has been
// accepted here.
type WALSink interface {
	Emit(ctx context.Context, rec WALRecord) error
}

// Snapshot is the host's view of "which transactions are in progress" at
// a point in time, used by mvcc.Visible.
type Snapshot struct {
	// CurrentXid is the transaction evaluating visibility.
	CurrentXid Xid
	// InProgress holds every xid considered concurrently in-progress
	// relative to this snapshot (not yet committed, from this snapshot's
	// point of view).
	InProgress map[Xid]struct{}
	// RecentGlobalXmin is the oldest xid any current or future snapshot
	// could still consider in-progress; xmax values older than this are
	// recyclable once not in any active snapshot.
	RecentGlobalXmin Xid
}

// InProgressAt reports whether xid was in-progress relative to s.
func (s Snapshot) InProgressAt(xid Xid) bool {
	_, ok := s.InProgress[xid]
	return ok
}

// TxManager hands out and tracks host transaction ids, used by the
// reference implementation and by tests that simulate concurrent
// transactions. A real host already does this; we only need a stand-in
// that assigns monotonically increasing xids and can produce a Snapshot.
type TxManager interface {
	Begin() Xid
	Commit(xid Xid)
	Snapshot() Snapshot
}

// Interrupted reports whether ctx carries a cancellation the caller should
// observe at the next well-defined checkpoint.
func Interrupted(ctx context.Context) error {
	return ctx.Err()
}
