package host

import (
	"context"
	"fmt"
	"sync"
)

// RefBufferManager is a reference BufferManager sufficient to exercise
// every other package in this module without a real database host
// attached. It backs pages with an in-memory byte arena; callers that want
// the bytes to actually survive a process restart can pair it with a
// FileBackend (mmapfile_*.go) via NewRefBufferManagerOnFile.
//
// Locking here is coarser than a real buffer pool (one mutex for the whole
// relation) since the reference implementation only needs to prove the
// rest of the module correct, not to scale.
type RefBufferManager struct {
	mu       sync.Mutex
	pageSize int
	pages    [][]byte
	pinned   map[BlockNumber]bool
	backend  *FileBackend // nil for a pure in-memory arena
}

// NewRefBufferManager creates an in-memory-only reference buffer manager.
func NewRefBufferManager(pageSize int) *RefBufferManager {
	return &RefBufferManager{
		pageSize: pageSize,
		pinned:   make(map[BlockNumber]bool),
	}
}

// NewRefBufferManagerOnFile backs the arena with a memory-mapped file so
// writes can be flushed for crash-recovery tests.
func NewRefBufferManagerOnFile(pageSize int, backend *FileBackend) *RefBufferManager {
	m := NewRefBufferManager(pageSize)
	m.backend = backend
	return m
}

func (m *RefBufferManager) PageSize() int { return m.pageSize }

func (m *RefBufferManager) growLocked(block BlockNumber) {
	for BlockNumber(len(m.pages)) <= block {
		m.pages = append(m.pages, make([]byte, m.pageSize))
	}
}

func (m *RefBufferManager) GetBuffer(ctx context.Context, block BlockNumber, mode LockMode) (PageGuard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.growLocked(block)
	g := &refGuard{mgr: m, block: block, excl: mode == LockExclusive}
	m.mu.Unlock()
	return g, nil
}

func (m *RefBufferManager) GetBufferConditional(block BlockNumber) (PageGuard, bool, error) {
	m.mu.Lock()
	if m.pinned[block] {
		m.mu.Unlock()
		return nil, false, nil
	}
	m.growLocked(block)
	m.pinned[block] = true
	m.mu.Unlock()
	return &refGuard{mgr: m, block: block, excl: true, conditional: true}, true, nil
}

func (m *RefBufferManager) NewBuffer(ctx context.Context) (PageGuard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	block := BlockNumber(len(m.pages))
	m.pages = append(m.pages, make([]byte, m.pageSize))
	PutSpecialNext(m.pages[block], m.pageSize, InvalidBlockNumber)
	m.mu.Unlock()
	return &refGuard{mgr: m, block: block, excl: true}, nil
}

// Flush writes every page back to the file backend, if one is attached.
func (m *RefBufferManager) Flush() error {
	if m.backend == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.pages {
		if err := m.backend.WriteAt(p, int64(i)*int64(m.pageSize)); err != nil {
			return fmt.Errorf("flush page %d: %w", i, err)
		}
	}
	return m.backend.Sync()
}

type refGuard struct {
	mgr         *RefBufferManager
	block       BlockNumber
	excl        bool
	conditional bool
	released    bool
}

func (g *refGuard) Bytes() []byte {
	g.mgr.mu.Lock()
	defer g.mgr.mu.Unlock()
	return g.mgr.pages[g.block]
}

func (g *refGuard) Block() BlockNumber { return g.block }

func (g *refGuard) MarkDirty() {}

func (g *refGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	if g.conditional {
		g.mgr.mu.Lock()
		delete(g.mgr.pinned, g.block)
		g.mgr.mu.Unlock()
	}
}

// PutSpecialNext writes next-block-number sentinel into the special area
// at the tail of a page. Exposed so host's reference buffer manager and
// the page package agree on the special-area layout without an import
// cycle; page.Page re-derives the same offsets from pageformat.
func PutSpecialNext(buf []byte, pageSize int, next BlockNumber) {
	off := pageSize - 16
	buf[off] = byte(next)
	buf[off+1] = byte(next >> 8)
	buf[off+2] = byte(next >> 16)
	buf[off+3] = byte(next >> 24)
}

// RefWALSink is an in-memory WAL sink: it just appends records, used by
// tests that want to assert "one WAL record per mutation" ordering
// guarantees without standing up real WAL infrastructure.
type RefWALSink struct {
	mu      sync.Mutex
	records []WALRecord
}

func NewRefWALSink() *RefWALSink { return &RefWALSink{} }

func (s *RefWALSink) Emit(ctx context.Context, rec WALRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *RefWALSink) Records() []WALRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WALRecord, len(s.records))
	copy(out, s.records)
	return out
}

// RefTxManager assigns monotonically increasing xids and tracks which are
// in-progress, standing in for the host's transaction manager in tests.
type RefTxManager struct {
	mu         sync.Mutex
	next       Xid
	inProgress map[Xid]struct{}
}

func NewRefTxManager() *RefTxManager {
	return &RefTxManager{next: 2, inProgress: make(map[Xid]struct{})} // 0=invalid, 1=frozen
}

func (t *RefTxManager) Begin() Xid {
	t.mu.Lock()
	defer t.mu.Unlock()
	xid := t.next
	t.next++
	t.inProgress[xid] = struct{}{}
	return xid
}

func (t *RefTxManager) Commit(xid Xid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inProgress, xid)
}

func (t *RefTxManager) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	inProgress := make(map[Xid]struct{}, len(t.inProgress))
	min := t.next
	for xid := range t.inProgress {
		inProgress[xid] = struct{}{}
		if xid < min {
			min = xid
		}
	}
	return Snapshot{
		CurrentXid:       t.next - 1,
		InProgress:       inProgress,
		RecentGlobalXmin: min,
	}
}

// RefHeapVisibility is an in-memory stand-in for the host's heap: a row
// either sits at its original ctid, has been moved by an UPDATE, or has
// been deleted. Tests arrange rows directly rather than running actual
// DML against a heap.
type RefHeapVisibility struct {
	mu      sync.Mutex
	movedTo map[Ctid]Ctid
	dead    map[Ctid]struct{}
}

func NewRefHeapVisibility() *RefHeapVisibility {
	return &RefHeapVisibility{movedTo: make(map[Ctid]Ctid), dead: make(map[Ctid]struct{})}
}

// MoveRow records that an UPDATE relocated the row at from to to; a
// stale index entry pointing at from now resolves to to.
func (h *RefHeapVisibility) MoveRow(from, to Ctid) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.movedTo[from] = to
}

// KillRow marks ctid as no longer visible to any snapshot (deleted and
// vacuumed, or never committed).
func (h *RefHeapVisibility) KillRow(ctid Ctid) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dead[ctid] = struct{}{}
}

func (h *RefHeapVisibility) Resolve(stale Ctid, _ Snapshot) (Ctid, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	current := stale
	for {
		next, moved := h.movedTo[current]
		if !moved {
			break
		}
		current = next
	}
	if _, dead := h.dead[current]; dead {
		return Ctid{}, false
	}
	return current, true
}
