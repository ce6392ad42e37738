// Package searchio implements the Search Reader/Writer contract: a
// reader opens a snapshot- or parallel-worker-restricted view over the
// visible segment set, and a writer buffers document changes, commits
// new segments with MVCC-stamped meta entries, and triggers merges.
package searchio

import (
	"context"

	"github.com/google/uuid"

	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/mvcc"
)

// Reader wraps an engine.Reader opened over exactly the segment set
// mvcc.Mode selects from the current SegmentMetaCache.
type Reader struct {
	inner engine.Reader
}

// OpenReader selects the visible segment set from cache via mode, then
// opens an engine reader restricted to it. orderByFastField, when
// non-empty, asks the engine to order by that fast field instead of by
// score (orderDescending controls direction either way).
func OpenReader(ctx context.Context, idx engine.Index, cache *mvcc.SegmentMetaCache, mode mvcc.Mode, query engine.Query, needScores bool, limit, offset int, orderByFastField string, orderDescending bool) (*Reader, error) {
	visible := cache.Visible(ctx, mode)
	segIDs := make([]uuid.UUID, 0, len(visible))
	for _, m := range visible {
		segIDs = append(segIDs, m.SegmentID)
	}
	opts := engine.ReaderOptions{
		Query:            query,
		NeedScores:       needScores,
		SegmentIDs:       segIDs,
		Limit:            limit,
		Offset:           offset,
		OrderByFastField: orderByFastField,
		OrderDescending:  orderDescending,
	}
	inner, err := idx.Reader(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Reader{inner: inner}, nil
}

// Search streams (score?, doc_address) results in the reader's order.
func (r *Reader) Search(ctx context.Context) (engine.ResultIterator, error) {
	return r.inner.Search(ctx)
}

// StoredField resolves a stored field for materialization.
func (r *Reader) StoredField(ctx context.Context, addr engine.DocAddress, field string) ([]byte, bool, error) {
	return r.inner.StoredField(ctx, addr, field)
}

// FastField resolves a fast field for materialization or ordering.
func (r *Reader) FastField(ctx context.Context, addr engine.DocAddress, field string) (float64, bool, error) {
	return r.inner.FastField(ctx, addr, field)
}

// Close releases the underlying engine reader.
func (r *Reader) Close(ctx context.Context) error {
	return r.inner.Close(ctx)
}
