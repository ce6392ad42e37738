package topn

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/segmentix/pgsearchidx/config"
	"github.com/segmentix/pgsearchidx/customscan"
	"github.com/segmentix/pgsearchidx/directory"
	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/internal/pageformat"
	"github.com/segmentix/pgsearchidx/metapages"
	"github.com/segmentix/pgsearchidx/mvcc"
	"github.com/segmentix/pgsearchidx/queryast"
	"github.com/segmentix/pgsearchidx/searchio"
	"github.com/segmentix/pgsearchidx/segstore"
)

const ctidField = "ctid"

type env struct {
	idx    *engine.RefIndex
	cache  *mvcc.SegmentMetaCache
	writer *searchio.Writer
	heap   *host.RefHeapVisibility
	schema engine.Schema
}

func newEnv(t *testing.T) *env {
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
		{Name: "status", Type: engine.FieldKeyword},
	})
	idx := engine.NewRefIndex(schema, engine.AdaptDirectory(adapter))

	metaBlock, err := mgr.NewBuffer(ctx)
	require.NoError(t, err)
	metaList, err := metapages.OpenSegmentMetaList(ctx, mgr, wal, metaBlock.Block())
	require.NoError(t, err)
	metaBlock.Release()

	lockBlock, err := mgr.NewBuffer(ctx)
	require.NoError(t, err)
	vacuumBlock, err := mgr.NewBuffer(ctx)
	require.NoError(t, err)
	sentinelBlock, err := mgr.NewBuffer(ctx)
	require.NoError(t, err)
	lockBlock.Release()
	vacuumBlock.Release()
	sentinelBlock.Release()
	lock, err := metapages.OpenMergeLock(ctx, mgr, wal, lockBlock.Block(), vacuumBlock.Block(), sentinelBlock.Block())
	require.NoError(t, err)

	eng, err := idx.Writer(ctx)
	require.NoError(t, err)
	cache := mvcc.NewSegmentMetaCache()
	writer := searchio.NewWriter(eng, metaList, lock, cache, config.DefaultOptions())

	return &env{idx: idx, cache: cache, writer: writer, heap: host.NewRefHeapVisibility(), schema: schema}
}

func noInProgress(xid host.Xid) host.Snapshot {
	return host.Snapshot{CurrentXid: xid, InProgress: map[host.Xid]struct{}{}, RecentGlobalXmin: xid}
}

func TestExecutorReturnsKWithoutGrowthWhenEnoughVisible(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("%d", i)
		require.NoError(t, e.writer.Insert(ctx, engine.Document{
			Key: key,
			Stored: map[string][]byte{
				"status":  []byte("active"),
				ctidField: host.EncodeCtid(host.Ctid{Block: host.BlockNumber(i), Offset: 1}),
			},
		}))
	}
	require.NoError(t, e.writer.Commit(ctx, host.Xid(5), noInProgress(5)))

	plan, ok, err := customscan.PlanScan(
		[]queryast.Qual{{Op: queryast.QualEq, Column: "status", Value: "active"}},
		e.schema, config.DefaultOptions(), customscan.Projection{Ctid: true}, nil, 5,
	)
	require.NoError(t, err)
	require.True(t, ok)

	exec := NewExecutor(e.idx, e.cache, engine.RefQueryBuilder{}, e.heap, plan, Config{GrowthFactor: 2, HardCap: 100})
	rows, err := exec.Top(ctx, host.Xid(10), noInProgress(10), 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestExecutorGrowsChunkWhenDeadRowsThinOutTheFirstRound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		key := fmt.Sprintf("%d", i)
		require.NoError(t, e.writer.Insert(ctx, engine.Document{
			Key: key,
			Stored: map[string][]byte{
				"status":  []byte("active"),
				ctidField: host.EncodeCtid(host.Ctid{Block: host.BlockNumber(i), Offset: 1}),
			},
		}))
	}
	require.NoError(t, e.writer.Commit(ctx, host.Xid(5), noInProgress(5)))

	// kill all but the last two rows so a first round asking for 3
	// cannot confirm 3 visible rows, forcing a growth round.
	for i := 0; i < 4; i++ {
		e.heap.KillRow(host.Ctid{Block: host.BlockNumber(i), Offset: 1})
	}

	plan, ok, err := customscan.PlanScan(
		[]queryast.Qual{{Op: queryast.QualEq, Column: "status", Value: "active"}},
		e.schema, config.DefaultOptions(), customscan.Projection{Ctid: true}, nil, 6,
	)
	require.NoError(t, err)
	require.True(t, ok)

	exec := NewExecutor(e.idx, e.cache, engine.RefQueryBuilder{}, e.heap, plan, Config{GrowthFactor: 2, HardCap: 100})
	rows, err := exec.Top(ctx, host.Xid(10), noInProgress(10), 3)
	require.NoError(t, err)
	require.Len(t, rows, 2, "only 2 of the 6 indexed rows are still visible")
}

func TestExecutorStopsAtHardCap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("%d", i)
		ctid := host.Ctid{Block: host.BlockNumber(i), Offset: 1}
		require.NoError(t, e.writer.Insert(ctx, engine.Document{
			Key: key,
			Stored: map[string][]byte{
				"status":  []byte("active"),
				ctidField: host.EncodeCtid(ctid),
			},
		}))
		e.heap.KillRow(ctid)
	}
	require.NoError(t, e.writer.Commit(ctx, host.Xid(5), noInProgress(5)))

	plan, ok, err := customscan.PlanScan(
		[]queryast.Qual{{Op: queryast.QualEq, Column: "status", Value: "active"}},
		e.schema, config.DefaultOptions(), customscan.Projection{Ctid: true}, nil, 10,
	)
	require.NoError(t, err)
	require.True(t, ok)

	exec := NewExecutor(e.idx, e.cache, engine.RefQueryBuilder{}, e.heap, plan, Config{GrowthFactor: 2, HardCap: 4})
	rows, err := exec.Top(ctx, host.Xid(10), noInProgress(10), 2)
	require.NoError(t, err)
	require.Empty(t, rows, "every candidate row is dead; growth stops once chunk size reaches the hard cap")
}

func TestExecutorRejectsGrowthFactorOfOne(t *testing.T) {
	e := newEnv(t)
	plan := customscan.Plan{Query: queryast.All()}
	exec := NewExecutor(e.idx, e.cache, engine.RefQueryBuilder{}, e.heap, plan, Config{GrowthFactor: 1, HardCap: 10})
	_, err := exec.Top(context.Background(), host.Xid(1), noInProgress(1), 5)
	require.Error(t, err)
}
