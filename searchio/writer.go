package searchio

import (
	"context"

	"go.uber.org/zap"

	"github.com/segmentix/pgsearchidx/config"
	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/metapages"
	"github.com/segmentix/pgsearchidx/mvcc"
	"github.com/segmentix/pgsearchidx/pagelist"
)

// storeComponent is the component slot the reference engine's single
// combined segment blob is recorded under.
const storeComponent = "store"

// Writer buffers document changes against an engine.Writer and, on
// commit, stamps the resulting segment into the segment-meta list and
// considers triggering a merge.
type Writer struct {
	eng      engine.Writer
	metaList *metapages.SegmentMetaList
	lock     *metapages.MergeLock
	cache    *mvcc.SegmentMetaCache
	opts     config.Options
}

// NewWriter builds a Writer over an already-open engine writer, meta
// list, merge lock, and cache.
func NewWriter(eng engine.Writer, metaList *metapages.SegmentMetaList, lock *metapages.MergeLock, cache *mvcc.SegmentMetaCache, opts config.Options) *Writer {
	return &Writer{eng: eng, metaList: metaList, lock: lock, cache: cache, opts: opts}
}

// Insert buffers one document, delete-by-key if a previous doc shares
// doc.Key.
func (w *Writer) Insert(ctx context.Context, doc engine.Document) error {
	return w.eng.AddDocument(ctx, doc)
}

// Delete term-deletes every document whose field matches one of keys.
func (w *Writer) Delete(ctx context.Context, field string, keys []string) error {
	return w.eng.DeleteTerm(ctx, field, keys)
}

// Commit flushes buffered changes into a new segment, records its meta
// entry with xmin = currentXid, refreshes the cache, and considers
// triggering a merge.
func (w *Writer) Commit(ctx context.Context, currentXid host.Xid, snap host.Snapshot) error {
	committed, err := w.eng.Commit(ctx)
	if err != nil {
		return err
	}
	meta := metapages.SegmentMeta{
		SegmentID: committed.ID,
		MaxDoc:    committed.MaxDoc,
		Xmin:      currentXid,
		Xmax:      host.InvalidXid,
	}
	meta.Components[componentIndex(storeComponent)] = metapages.FileRef{
		Present:    true,
		TotalBytes: committed.ByteSize,
	}
	if _, err := w.metaList.Insert(ctx, meta); err != nil {
		return err
	}
	if err := w.refreshCache(ctx); err != nil {
		return err
	}
	return w.maybeMerge(ctx, currentXid, snap)
}

// Vacuum runs engine-side garbage collection: segments that are
// recyclable under snap and not named in the active-vacuum list are
// dropped from the engine's managed file set, and the cache is
// refreshed.
func (w *Writer) Vacuum(ctx context.Context, snap host.Snapshot, activeVacuum *metapages.ActiveVacuumList) error {
	all := w.cache.All()
	live := make([]engine.SegmentRef, 0, len(all))
	for _, m := range all {
		recyclable := mvcc.Recyclable(m, snap)
		if recyclable {
			inVacuum, err := activeVacuum.Contains(ctx, m.SegmentID)
			if err != nil {
				return err
			}
			if inVacuum {
				recyclable = false
			}
		}
		if !recyclable {
			live = append(live, engine.SegmentRef{ID: m.SegmentID, MaxDoc: m.MaxDoc})
		}
	}
	if err := w.eng.GarbageCollectFiles(ctx, live); err != nil {
		return err
	}
	zap.S().Infow("vacuum completed", "liveSegments", len(live), "totalSegments", len(all))
	return w.refreshCache(ctx)
}

// DropIndex removes every managed segment file, used at index drop.
func (w *Writer) DropIndex(ctx context.Context) error {
	return w.eng.DropIndex(ctx)
}

func (w *Writer) refreshCache(ctx context.Context) error {
	var all []metapages.SegmentMeta
	err := w.metaList.ForEach(ctx, func(_ pagelist.ItemPointer, m metapages.SegmentMeta) bool {
		all = append(all, m)
		return true
	})
	if err != nil {
		return err
	}
	w.cache.Refresh(ctx, all)
	return nil
}

func (w *Writer) maybeMerge(ctx context.Context, currentXid host.Xid, snap host.Snapshot) error {
	all := w.cache.All()
	live := make([]metapages.SegmentMeta, 0, len(all))
	for _, m := range all {
		if !m.IsTombstone() {
			live = append(live, m)
		}
	}
	threshold := w.opts.StatementParallelism * w.opts.SegmentMergeScaleFactor
	if threshold <= 0 || len(live) <= threshold {
		return nil
	}

	handle, ok, err := w.lock.AcquireForMerge(ctx, currentXid, snap)
	if err != nil {
		return err
	}
	if !ok {
		zap.S().Debugw("merge skipped, lock unavailable", "liveSegments", len(live))
		return nil
	}
	defer func() {
		if rerr := handle.Release(ctx, currentXid); rerr != nil {
			zap.S().Warnw("merge lock release failed", "error", rerr)
		}
	}()

	picked := w.opts.MergeStrategy.Pick(live, estimateSize, w.opts.MaxMergeableSegmentSize)
	if len(picked) < 2 {
		return nil
	}

	inputs := make([]engine.SegmentRef, len(picked))
	for i, m := range picked {
		inputs[i] = engine.SegmentRef{ID: m.SegmentID, MaxDoc: m.MaxDoc}
	}
	merged, err := w.eng.Merge(ctx, inputs)
	if err != nil {
		return err
	}
	zap.S().Infow("merge completed", "inputs", len(picked), "outputDocs", merged.NumDocs)

	newMeta := metapages.SegmentMeta{SegmentID: merged.ID, MaxDoc: merged.MaxDoc, Xmin: currentXid, Xmax: host.InvalidXid}
	newMeta.Components[componentIndex(storeComponent)] = metapages.FileRef{Present: true, TotalBytes: merged.ByteSize}
	if _, err := w.metaList.Insert(ctx, newMeta); err != nil {
		return err
	}
	for _, m := range picked {
		ptr, _, found, err := w.metaList.Find(ctx, m.SegmentID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := w.metaList.StampXmax(ctx, ptr, currentXid); err != nil {
			return err
		}
	}
	return w.refreshCache(ctx)
}

func estimateSize(m metapages.SegmentMeta) int64 {
	var total int64
	for _, c := range m.Components {
		if c.Present {
			total += c.TotalBytes
		}
	}
	return total
}

func componentIndex(name string) int {
	for i, n := range metapages.ComponentNames {
		if n == name {
			return i
		}
	}
	return 0
}
