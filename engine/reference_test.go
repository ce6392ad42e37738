package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/segmentix/pgsearchidx/directory"
	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/internal/pageformat"
	"github.com/segmentix/pgsearchidx/segstore"
)

type containsQuery struct {
	field, substr string
}

func (q containsQuery) Matches(doc Document) bool {
	v, ok := doc.Stored[q.field]
	if !ok {
		return false
	}
	return len(v) >= len(q.substr) && indexOf(string(v), q.substr) >= 0
}

func (q containsQuery) Score(Document) (float32, bool) { return 1, true }

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func newTestIndex(t *testing.T) *RefIndex {
	t.Helper()
	ctx := context.Background()
	mgr := host.NewRefBufferManager(1024)
	wal := host.NewRefWALSink()
	for i := 0; i < int(pageformat.FirstFreeBlock); i++ {
		guard, err := mgr.NewBuffer(ctx)
		require.NoError(t, err)
		guard.Release()
	}
	store, err := segstore.Open(ctx, mgr, wal, host.BlockNumber(pageformat.BlockSegmentMetas))
	require.NoError(t, err)
	adapter := directory.NewBlockingAdapter(mgr, wal, store)

	schema := NewSchema([]Field{
		{Name: "description", Type: FieldText, Tokenized: true},
		{Name: "price", Type: FieldNumeric, Fast: true},
	})
	return NewRefIndex(schema, AdaptDirectory(adapter))
}

func TestWriterCommitThenReaderSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	w, err := idx.Writer(ctx)
	require.NoError(t, err)
	require.NoError(t, w.AddDocument(ctx, Document{
		Key:    "1",
		Stored: map[string][]byte{"description": []byte("alpha widget")},
		Fast:   map[string]float64{"price": 10},
	}))
	require.NoError(t, w.AddDocument(ctx, Document{
		Key:    "2",
		Stored: map[string][]byte{"description": []byte("beta gadget")},
		Fast:   map[string]float64{"price": 20},
	}))
	seg, err := w.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, seg.NumDocs)

	reader, err := idx.Reader(ctx, ReaderOptions{Query: containsQuery{"description", "alpha"}, NeedScores: true})
	require.NoError(t, err)
	defer reader.Close(ctx)

	it, err := reader.Search(ctx)
	require.NoError(t, err)
	got, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.Score)

	field, found, err := reader.StoredField(ctx, got.Addr, "description")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "alpha widget", string(field))

	_, ok, err = it.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteByKeySuppressesDocOnNextOpen(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	w, err := idx.Writer(ctx)
	require.NoError(t, err)
	require.NoError(t, w.AddDocument(ctx, Document{Key: "1", Stored: map[string][]byte{"description": []byte("alpha")}}))
	_, err = w.Commit(ctx)
	require.NoError(t, err)

	w2, err := idx.Writer(ctx)
	require.NoError(t, err)
	require.NoError(t, w2.DeleteTerm(ctx, "_key", []string{"1"}))
	_, err = w2.Commit(ctx)
	require.NoError(t, err)

	reader, err := idx.Reader(ctx, ReaderOptions{})
	require.NoError(t, err)
	defer reader.Close(ctx)
	it, err := reader.Search(ctx)
	require.NoError(t, err)
	_, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMergeCombinesSegments(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	w, err := idx.Writer(ctx)
	require.NoError(t, err)
	require.NoError(t, w.AddDocument(ctx, Document{Key: "1", Stored: map[string][]byte{"description": []byte("a")}}))
	seg1, err := w.Commit(ctx)
	require.NoError(t, err)

	w2, err := idx.Writer(ctx)
	require.NoError(t, err)
	require.NoError(t, w2.AddDocument(ctx, Document{Key: "2", Stored: map[string][]byte{"description": []byte("b")}}))
	seg2, err := w2.Commit(ctx)
	require.NoError(t, err)

	w3, err := idx.Writer(ctx)
	require.NoError(t, err)
	merged, err := w3.Merge(ctx, []SegmentRef{seg1.SegmentRef, seg2.SegmentRef})
	require.NoError(t, err)
	require.Equal(t, 2, merged.NumDocs)
}

func TestAggregatorCountGroupedByFastField(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	w, err := idx.Writer(ctx)
	require.NoError(t, err)
	for i, cat := range []string{"a", "a", "b"} {
		require.NoError(t, w.AddDocument(ctx, Document{
			Key:    string(rune('0' + i)),
			Stored: map[string][]byte{"category": []byte(cat)},
			Fast:   map[string]float64{"price": float64(10 * (i + 1))},
		}))
	}
	_, err = w.Commit(ctx)
	require.NoError(t, err)

	agg, err := idx.Aggregator(ctx)
	require.NoError(t, err)
	result, err := agg.Run(ctx, nil, AggRequest{
		Groups:  []string{"category"},
		Metrics: []AggMetric{{Name: "count", Kind: AggCount}, {Name: "sum_price", Kind: AggSum, Field: "price"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Buckets, 2)

	var aBucket AggBucket
	for _, b := range result.Buckets {
		if b.Key == "a" {
			aBucket = b
		}
	}
	require.Equal(t, 2, aBucket.DocCount)
	require.NotNil(t, aBucket.Metrics["sum_price"])
	require.Equal(t, 30.0, *aBucket.Metrics["sum_price"])
}
