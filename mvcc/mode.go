package mvcc

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/metapages"
)

// Mode selects which segments a reader considers, on top of the base
// MVCC visibility predicate. A plain Snapshot reader considers every
// segment visible to its snapshot; a parallel-worker reader is further
// restricted to the subset of segments assigned to it, so that two
// workers scanning the same index in parallel never double-count a
// document.
type Mode interface {
	// Select filters all to the segments this reader should scan.
	Select(ctx context.Context, all []metapages.SegmentMeta) []metapages.SegmentMeta
}

// SnapshotMode selects every segment visible to Snap as evaluated from
// CurrentXid.
type SnapshotMode struct {
	CurrentXid host.Xid
	Snap       host.Snapshot
}

func (m SnapshotMode) Select(_ context.Context, all []metapages.SegmentMeta) []metapages.SegmentMeta {
	out := make([]metapages.SegmentMeta, 0, len(all))
	for _, meta := range all {
		if Visible(meta, m.CurrentXid, m.Snap) {
			out = append(out, meta)
		}
	}
	return out
}

// ParallelWorkerMode restricts a Snapshot-visible scan to a caller-assigned
// subset of segment ids, used when the host's parallel query executor
// has split one index scan across several worker processes and handed
// each one a disjoint slice of the segment set.
//
// Membership is backed by a roaring64 bitmap over xxhash(segmentID),
// which gives workers with large assignments a cheap reject path before
// falling back to the authoritative map on a hash hit.
type ParallelWorkerMode struct {
	Inner     SnapshotMode
	assigned  map[uuid.UUID]struct{}
	hashIndex *roaring64.Bitmap
}

// NewParallelWorkerMode builds a worker-restricted mode from the set of
// segment ids assigned to this worker.
func NewParallelWorkerMode(inner SnapshotMode, ids []uuid.UUID) ParallelWorkerMode {
	assigned := make(map[uuid.UUID]struct{}, len(ids))
	bm := roaring64.New()
	for _, id := range ids {
		assigned[id] = struct{}{}
		bm.Add(xxhash.Sum64(id[:]))
	}
	return ParallelWorkerMode{Inner: inner, assigned: assigned, hashIndex: bm}
}

func (m ParallelWorkerMode) member(id uuid.UUID) bool {
	if !m.hashIndex.Contains(xxhash.Sum64(id[:])) {
		return false
	}
	_, ok := m.assigned[id]
	return ok
}

func (m ParallelWorkerMode) Select(ctx context.Context, all []metapages.SegmentMeta) []metapages.SegmentMeta {
	visible := m.Inner.Select(ctx, all)
	out := make([]metapages.SegmentMeta, 0, len(visible))
	for _, meta := range visible {
		if m.member(meta.SegmentID) {
			out = append(out, meta)
		}
	}
	return out
}
