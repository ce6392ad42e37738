package mvcc

import (
	"context"
	"sync/atomic"

	"github.com/benbjohnson/immutable"

	"github.com/segmentix/pgsearchidx/metapages"
)

// state is the immutable snapshot of the segment-meta set at a point in
// time. Readers load it lock-free; writers build a new one and swap it
// in, following the copy-on-write pattern used by a write-ahead log's
// own in-memory segment index.
type state struct {
	segments *immutable.SortedMap[string, metapages.SegmentMeta]
}

// SegmentMetaCache holds the engine's in-memory view of the segment-meta
// list, refreshed after every commit so concurrent Search Reader opens
// never block behind a writer and never observe a half-updated set.
type SegmentMetaCache struct {
	s atomic.Value // *state
}

// NewSegmentMetaCache returns an empty cache; callers populate it with
// Refresh before first use.
func NewSegmentMetaCache() *SegmentMetaCache {
	c := &SegmentMetaCache{}
	c.s.Store(&state{segments: &immutable.SortedMap[string, metapages.SegmentMeta]{}})
	return c
}

// Refresh replaces the cached segment set wholesale. Callers pass the
// full current contents of the segment-meta list, typically read via
// metapages.SegmentMetaList.ForEach after an insert, xmax stamp, or
// vacuum sweep.
func (c *SegmentMetaCache) Refresh(_ context.Context, all []metapages.SegmentMeta) {
	segs := &immutable.SortedMap[string, metapages.SegmentMeta]{}
	for _, m := range all {
		segs = segs.Set(m.SegmentID.String(), m)
	}
	c.s.Store(&state{segments: segs})
}

func (c *SegmentMetaCache) load() *state {
	return c.s.Load().(*state)
}

// All returns every cached segment-meta entry, in id order.
func (c *SegmentMetaCache) All() []metapages.SegmentMeta {
	s := c.load()
	out := make([]metapages.SegmentMeta, 0, s.segments.Len())
	it := s.segments.Iterator()
	for !it.Done() {
		_, v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// Visible returns the segments mode selects out of the cached set. This
// is the entry point a Search Reader open uses to pick the segment set
// it will scan for the lifetime of that reader.
func (c *SegmentMetaCache) Visible(ctx context.Context, mode Mode) []metapages.SegmentMeta {
	return mode.Select(ctx, c.All())
}
