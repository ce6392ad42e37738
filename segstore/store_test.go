package segstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/segmentix/pgsearchidx/host"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	store, ctx, _, _, _ := newTestStoreFull(t)
	return store, ctx
}

func newTestStoreFull(t *testing.T) (*Store, context.Context, host.BufferManager, host.WALSink, host.BlockNumber) {
	t.Helper()
	ctx := context.Background()
	mgr := host.NewRefBufferManager(1024)
	wal := host.NewRefWALSink()
	guard, err := mgr.NewBuffer(ctx)
	require.NoError(t, err)
	dirBlock := guard.Block()
	guard.Release()
	store, err := Open(ctx, mgr, wal, dirBlock)
	require.NoError(t, err)
	return store, ctx, mgr, wal, dirBlock
}

func TestWriteThenRead(t *testing.T) {
	store, ctx := newTestStore(t)

	w, err := store.OpenWrite(ctx, "seg-1.terms", false)
	require.NoError(t, err)
	_, err = w.Write(ctx, []byte("hello terms file"))
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	h, err := store.OpenRead(ctx, "seg-1.terms")
	require.NoError(t, err)
	require.Equal(t, int64(len("hello terms file")), h.Size())

	got, err := h.ReadAt(ctx, 0, int(h.Size()))
	require.NoError(t, err)
	require.Equal(t, "hello terms file", string(got))
}

func TestOpenWriteRejectsExistingPathWithoutOverwrite(t *testing.T) {
	store, ctx := newTestStore(t)

	w, err := store.OpenWrite(ctx, "seg-1.postings", false)
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	_, err = store.OpenWrite(ctx, "seg-1.postings", false)
	require.ErrorIs(t, err, ErrPathExists)
}

func TestOverwriteSupersedesPriorEntry(t *testing.T) {
	store, ctx := newTestStore(t)

	w1, err := store.OpenWrite(ctx, "seg-1.store", false)
	require.NoError(t, err)
	_, err = w1.Write(ctx, []byte("version one"))
	require.NoError(t, err)
	require.NoError(t, w1.Close(ctx))

	w2, err := store.OpenWrite(ctx, "seg-1.store", true)
	require.NoError(t, err)
	_, err = w2.Write(ctx, []byte("version two, longer than before"))
	require.NoError(t, err)
	require.NoError(t, w2.Close(ctx))

	h, err := store.OpenRead(ctx, "seg-1.store")
	require.NoError(t, err)
	got, err := h.ReadAt(ctx, 0, int(h.Size()))
	require.NoError(t, err)
	require.Equal(t, "version two, longer than before", string(got))
}

func TestListManagedFiles(t *testing.T) {
	store, ctx := newTestStore(t)

	for _, p := range []string{"a.terms", "a.postings", "a.store"} {
		w, err := store.OpenWrite(ctx, p, false)
		require.NoError(t, err)
		require.NoError(t, w.Close(ctx))
	}

	paths, err := store.ListManagedFiles(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.terms", "a.postings", "a.store"}, paths)
}

func TestReopenStoreRebuildsIndex(t *testing.T) {
	store, ctx, mgr, wal, dirBlock := newTestStoreFull(t)
	w, err := store.OpenWrite(ctx, "seg-2.fast-fields", false)
	require.NoError(t, err)
	_, err = w.Write(ctx, []byte("fast field bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	reopened, err := Open(ctx, mgr, wal, dirBlock)
	require.NoError(t, err)
	h, err := reopened.OpenRead(ctx, "seg-2.fast-fields")
	require.NoError(t, err)
	require.Equal(t, int64(len("fast field bytes")), h.Size())
}
