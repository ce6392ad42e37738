package aggscan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/segmentix/pgsearchidx/config"
	"github.com/segmentix/pgsearchidx/directory"
	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/internal/pageformat"
	"github.com/segmentix/pgsearchidx/queryast"
	"github.com/segmentix/pgsearchidx/segstore"
)

func newTestIndex(t *testing.T) *engine.RefIndex {
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

	schema := engine.NewSchema([]engine.Field{
		{Name: "category", Type: engine.FieldKeyword, Fast: true},
		{Name: "price", Type: engine.FieldNumeric, Fast: true},
	})
	return engine.NewRefIndex(schema, engine.AdaptDirectory(adapter))
}

func insertPriced(t *testing.T, idx *engine.RefIndex, category string, price float64) {
	t.Helper()
	ctx := context.Background()
	w, err := idx.Writer(ctx)
	require.NoError(t, err)
	require.NoError(t, w.AddDocument(ctx, engine.Document{
		Fast: map[string]float64{"price": price},
		Stored: map[string][]byte{
			"category": []byte(category),
		},
	}))
	_, err = w.Commit(ctx)
	require.NoError(t, err)
}

func TestBuildRejectsNonFastGroupField(t *testing.T) {
	idx := newTestIndex(t)
	_, err := Builder{}.Build(Request{Groups: []string{"nonexistent"}}, idx.Schema(), engine.RefQueryBuilder{}, config.DefaultOptions())
	require.Error(t, err)
}

func TestBuildCompilesMetricFilter(t *testing.T) {
	idx := newTestIndex(t)
	filter := queryast.Term("category", "widgets", false)
	req := Request{
		Metrics: []MetricSpec{{Name: "widget_count", Kind: engine.AggCount, Filter: &filter}},
	}
	out, err := Builder{}.Build(req, idx.Schema(), engine.RefQueryBuilder{}, config.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, out.Metrics, 1)
	require.NotNil(t, out.Metrics[0].Filter)
}

func TestDecodeGroupedSumAndCount(t *testing.T) {
	idx := newTestIndex(t)
	insertPriced(t, idx, "widgets", 10)
	insertPriced(t, idx, "widgets", 20)
	insertPriced(t, idx, "gadgets", 5)

	req := Request{
		Groups: []string{"category"},
		Metrics: []MetricSpec{
			{Name: "n", Kind: engine.AggCount},
			{Name: "total", Kind: engine.AggSum, Column: "price", IntegerField: true},
		},
	}
	opts := config.DefaultOptions()
	opts.MaxTermAggBuckets = 100
	built, err := Builder{}.Build(req, idx.Schema(), engine.RefQueryBuilder{}, opts)
	require.NoError(t, err)

	agg, err := idx.Aggregator(context.Background())
	require.NoError(t, err)
	result, err := agg.Run(context.Background(), engine.RefQueryBuilder{}.All(), built)
	require.NoError(t, err)

	rows, _, err := Decode(result, req.Metrics, req.Limit, req.Offset)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byKey := map[string]Row{}
	for _, r := range rows {
		byKey[r.GroupKeys[0]] = r
	}
	require.Equal(t, ValueInt64, byKey["widgets"].Metrics["n"].Kind)
	require.Equal(t, int64(2), byKey["widgets"].Metrics["n"].Int64)
	require.Equal(t, ValueInt64, byKey["widgets"].Metrics["total"].Kind)
	require.Equal(t, int64(30), byKey["widgets"].Metrics["total"].Int64)
}

func TestDecodeUngroupedEmptyInputIsNullExceptCount(t *testing.T) {
	idx := newTestIndex(t)
	req := Request{
		Metrics: []MetricSpec{
			{Name: "n", Kind: engine.AggCount},
			{Name: "avg_price", Kind: engine.AggAvg, Column: "price"},
		},
	}
	built, err := Builder{}.Build(req, idx.Schema(), engine.RefQueryBuilder{}, config.DefaultOptions())
	require.NoError(t, err)

	agg, err := idx.Aggregator(context.Background())
	require.NoError(t, err)
	result, err := agg.Run(context.Background(), engine.RefQueryBuilder{}.All(), built)
	require.NoError(t, err)

	rows, valueCount, err := Decode(result, req.Metrics, req.Limit, req.Offset)
	require.NoError(t, err)
	require.Equal(t, 0, valueCount)
	require.Len(t, rows, 1)
	require.Equal(t, int64(0), rows[0].Metrics["n"].Int64)
	require.Equal(t, ValueNull, rows[0].Metrics["avg_price"].Kind)
}

func TestDecodeReturnsErrTruncatedWhenBucketsOverflow(t *testing.T) {
	idx := newTestIndex(t)
	insertPriced(t, idx, "a", 1)
	insertPriced(t, idx, "b", 2)
	insertPriced(t, idx, "c", 3)

	opts := config.DefaultOptions()
	opts.MaxTermAggBuckets = 1
	req := Request{Groups: []string{"category"}, Metrics: []MetricSpec{{Name: "n", Kind: engine.AggCount}}}
	built, err := Builder{}.Build(req, idx.Schema(), engine.RefQueryBuilder{}, opts)
	require.NoError(t, err)

	agg, err := idx.Aggregator(context.Background())
	require.NoError(t, err)
	result, err := agg.Run(context.Background(), engine.RefQueryBuilder{}.All(), built)
	require.NoError(t, err)

	_, _, err = Decode(result, req.Metrics, req.Limit, req.Offset)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestBuildSizesBucketBudgetFromLimitAndOffset(t *testing.T) {
	idx := newTestIndex(t)
	opts := config.DefaultOptions()
	opts.MaxTermAggBuckets = 100
	req := Request{
		Groups:  []string{"category"},
		Metrics: []MetricSpec{{Name: "n", Kind: engine.AggCount}},
		Limit:   5,
		Offset:  2,
	}
	out, err := Builder{}.Build(req, idx.Schema(), engine.RefQueryBuilder{}, opts)
	require.NoError(t, err)
	require.Equal(t, 7, out.MaxBucketsPerLevel, "bucket budget is min(limit+offset, max_buckets)")
}

func TestBuildBucketBudgetNeverExceedsConfiguredMax(t *testing.T) {
	idx := newTestIndex(t)
	opts := config.DefaultOptions()
	opts.MaxTermAggBuckets = 3
	req := Request{
		Groups:  []string{"category"},
		Metrics: []MetricSpec{{Name: "n", Kind: engine.AggCount}},
		Limit:   50,
	}
	out, err := Builder{}.Build(req, idx.Schema(), engine.RefQueryBuilder{}, opts)
	require.NoError(t, err)
	require.Equal(t, 3, out.MaxBucketsPerLevel)
}

func TestDecodePagesFlattenedRowsByLimitAndOffset(t *testing.T) {
	idx := newTestIndex(t)
	insertPriced(t, idx, "a", 1)
	insertPriced(t, idx, "b", 2)
	insertPriced(t, idx, "c", 3)
	insertPriced(t, idx, "d", 4)

	opts := config.DefaultOptions()
	opts.MaxTermAggBuckets = 100
	req := Request{Groups: []string{"category"}, Metrics: []MetricSpec{{Name: "n", Kind: engine.AggCount}}, Limit: 2}
	built, err := Builder{}.Build(req, idx.Schema(), engine.RefQueryBuilder{}, opts)
	require.NoError(t, err)

	agg, err := idx.Aggregator(context.Background())
	require.NoError(t, err)
	result, err := agg.Run(context.Background(), engine.RefQueryBuilder{}.All(), built)
	require.NoError(t, err)

	rows, _, err := Decode(result, req.Metrics, req.Limit, req.Offset)
	require.NoError(t, err)
	require.Len(t, rows, 2, "LIMIT 2 with no OFFSET returns at most 2 grouped rows")
}
