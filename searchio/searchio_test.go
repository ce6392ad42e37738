package searchio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/segmentix/pgsearchidx/config"
	"github.com/segmentix/pgsearchidx/directory"
	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/internal/pageformat"
	"github.com/segmentix/pgsearchidx/metapages"
	"github.com/segmentix/pgsearchidx/mvcc"
	"github.com/segmentix/pgsearchidx/segstore"
)

type env struct {
	mgr      host.BufferManager
	wal      host.WALSink
	idx      *engine.RefIndex
	metaList *metapages.SegmentMetaList
	lock     *metapages.MergeLock
	vacuum   *metapages.ActiveVacuumList
	cache    *mvcc.SegmentMetaCache
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

	schema := engine.NewSchema([]engine.Field{{Name: "description", Type: engine.FieldText, Tokenized: true}})
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
	vacuum, err := metapages.OpenActiveVacuumList(ctx, mgr, wal, vacuumBlock.Block())
	require.NoError(t, err)

	return &env{mgr: mgr, wal: wal, idx: idx, metaList: metaList, lock: lock, vacuum: vacuum, cache: mvcc.NewSegmentMetaCache()}
}

func noInProgress(xid host.Xid) host.Snapshot {
	return host.Snapshot{CurrentXid: xid, InProgress: map[host.Xid]struct{}{}, RecentGlobalXmin: xid}
}

func TestWriterCommitStampsXminAndRefreshesCache(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	eng, err := e.idx.Writer(ctx)
	require.NoError(t, err)
	w := NewWriter(eng, e.metaList, e.lock, e.cache, config.DefaultOptions())

	require.NoError(t, w.Insert(ctx, engine.Document{Key: "1", Stored: map[string][]byte{"description": []byte("alpha")}}))
	require.NoError(t, w.Commit(ctx, host.Xid(5), noInProgress(5)))

	all := e.cache.All()
	require.Len(t, all, 1)
	require.Equal(t, host.Xid(5), all[0].Xmin)
	require.False(t, all[0].IsTombstone())
}

func TestReaderSeesOnlyVisibleSegments(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	eng, err := e.idx.Writer(ctx)
	require.NoError(t, err)
	w := NewWriter(eng, e.metaList, e.lock, e.cache, config.DefaultOptions())
	require.NoError(t, w.Insert(ctx, engine.Document{Key: "1", Stored: map[string][]byte{"description": []byte("alpha")}}))
	require.NoError(t, w.Commit(ctx, host.Xid(5), noInProgress(5)))

	snapBefore := host.Snapshot{CurrentXid: 4, InProgress: map[host.Xid]struct{}{5: {}}, RecentGlobalXmin: 1}
	mode := mvcc.SnapshotMode{CurrentXid: 4, Snap: snapBefore}
	reader, err := OpenReader(ctx, e.idx, e.cache, mode, nil, false, 0, 0, "", false)
	require.NoError(t, err)
	it, err := reader.Search(ctx)
	require.NoError(t, err)
	_, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok, "transaction 5's insert must not be visible to a snapshot taken before it committed")

	snapAfter := noInProgress(10)
	mode2 := mvcc.SnapshotMode{CurrentXid: 10, Snap: snapAfter}
	reader2, err := OpenReader(ctx, e.idx, e.cache, mode2, nil, false, 0, 0, "", false)
	require.NoError(t, err)
	it2, err := reader2.Search(ctx)
	require.NoError(t, err)
	_, ok2, err := it2.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok2)
}

func TestMergeTriggersAboveThresholdAndStampsXmax(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	opts := config.DefaultOptions()
	opts.StatementParallelism = 1
	opts.SegmentMergeScaleFactor = 2 // trigger once live count > 2

	eng, err := e.idx.Writer(ctx)
	require.NoError(t, err)
	w := NewWriter(eng, e.metaList, e.lock, e.cache, opts)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Insert(ctx, engine.Document{
			Key:    string(rune('a' + i)),
			Stored: map[string][]byte{"description": []byte("doc")},
		}))
		require.NoError(t, w.Commit(ctx, host.Xid(10+i), noInProgress(host.Xid(10+i))))
	}

	all := e.cache.All()
	var tombstoned, live int
	for _, m := range all {
		if m.IsTombstone() {
			tombstoned++
		} else {
			live++
		}
	}
	require.Greater(t, tombstoned, 0, "merge should have stamped xmax on its input segments")
	require.Equal(t, 1, live, "merge should have produced exactly one live output segment")
}
