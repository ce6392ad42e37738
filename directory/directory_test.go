package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/internal/pageformat"
	"github.com/segmentix/pgsearchidx/segstore"
)

func newTestAdapter(t *testing.T) (*BlockingAdapter, context.Context, host.BlockNumber) {
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
	return NewBlockingAdapter(mgr, wal, store), ctx, host.BlockNumber(pageformat.BlockEngineMeta)
}

func TestBlockingAtomicWriteThenRead(t *testing.T) {
	a, ctx, metaBlock := newTestAdapter(t)

	require.NoError(t, a.AtomicWrite(ctx, metaBlock, []byte("schema-v1")))
	got, err := a.AtomicRead(ctx, metaBlock)
	require.NoError(t, err)
	require.Equal(t, "schema-v1", string(got))

	require.NoError(t, a.AtomicWrite(ctx, metaBlock, []byte("schema-v2, a longer payload than before")))
	got, err = a.AtomicRead(ctx, metaBlock)
	require.NoError(t, err)
	require.Equal(t, "schema-v2, a longer payload than before", string(got))
}

func TestAtomicReadBeforeWriteFails(t *testing.T) {
	a, ctx, metaBlock := newTestAdapter(t)
	_, err := a.AtomicRead(ctx, metaBlock)
	require.ErrorIs(t, err, ErrNoMetaWritten)
}

func TestAcquireLockRoundTrips(t *testing.T) {
	a, ctx, _ := newTestAdapter(t)
	release, err := a.AcquireLock(ctx, LockMerge)
	require.NoError(t, err)
	release()
}

func TestDeleteIsNoOp(t *testing.T) {
	a, ctx, _ := newTestAdapter(t)
	require.NoError(t, a.Delete(ctx, "whatever"))
}

func TestChannelAdapterProxiesAtomicWrite(t *testing.T) {
	a, ctx, metaBlock := newTestAdapter(t)
	ch := NewChannelAdapter(a, 8)
	defer ch.Close()

	require.NoError(t, ch.AtomicWrite(ctx, metaBlock, []byte("via channel")))
	got, err := ch.AtomicRead(ctx, metaBlock)
	require.NoError(t, err)
	require.Equal(t, "via channel", string(got))
}

func TestChannelAdapterWriteThenReadFile(t *testing.T) {
	a, ctx, _ := newTestAdapter(t)
	ch := NewChannelAdapter(a, 8)
	defer ch.Close()

	w, err := ch.OpenWrite(ctx, "seg.terms", false)
	require.NoError(t, err)
	_, err = w.Write(ctx, []byte("term bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	h, err := ch.GetFileHandle(ctx, "seg.terms")
	require.NoError(t, err)
	got, err := h.ReadAt(ctx, 0, int(h.Size()))
	require.NoError(t, err)
	require.Equal(t, "term bytes", string(got))

	paths, err := ch.ListManagedFiles(ctx)
	require.NoError(t, err)
	require.Contains(t, paths, "seg.terms")
}
