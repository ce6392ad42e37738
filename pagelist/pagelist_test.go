package pagelist

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/page"
)

func newTestEnv(t *testing.T) (host.BufferManager, host.WALSink) {
	t.Helper()
	return host.NewRefBufferManager(512), host.NewRefWALSink()
}

// allocHeaderBlock reserves block 0 as a fresh header block, matching
// how a well-known block would be pre-allocated by the caller.
func allocHeaderBlock(t *testing.T, mgr host.BufferManager) host.BlockNumber {
	t.Helper()
	guard, err := mgr.NewBuffer(context.Background())
	require.NoError(t, err)
	block := guard.Block()
	guard.Release()
	return block
}

func TestByteStreamAppendAndReadAt(t *testing.T) {
	mgr, wal := newTestEnv(t)
	ctx := context.Background()
	block := allocHeaderBlock(t, mgr)

	bs, err := OpenByteStream(ctx, mgr, wal, block)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 50)
	off, err := bs.Append(ctx, payload)
	require.NoError(t, err)
	require.Equal(t, int64(0), off)
	require.Equal(t, int64(len(payload)), bs.TotalBytes())

	got, err := bs.ReadAt(ctx, 10, 20)
	require.NoError(t, err)
	require.Equal(t, payload[10:30], got)

	// Reopening rebuilds the sidecar from scratch and must agree.
	bs2, err := OpenByteStream(ctx, mgr, wal, block)
	require.NoError(t, err)
	require.Equal(t, bs.TotalBytes(), bs2.TotalBytes())
	got2, err := bs2.ReadAt(ctx, 0, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got2)
}

func TestByteStreamTruncate(t *testing.T) {
	mgr, wal := newTestEnv(t)
	ctx := context.Background()
	block := allocHeaderBlock(t, mgr)

	bs, err := OpenByteStream(ctx, mgr, wal, block)
	require.NoError(t, err)
	_, err = bs.Append(ctx, bytes.Repeat([]byte("x"), 2000))
	require.NoError(t, err)

	require.NoError(t, bs.Truncate(ctx, host.Xid(9)))
	require.Equal(t, int64(0), bs.TotalBytes())
}

func TestItemListAppendLookupOverwrite(t *testing.T) {
	mgr, wal := newTestEnv(t)
	ctx := context.Background()
	block := allocHeaderBlock(t, mgr)

	list, err := OpenItemList(ctx, mgr, wal, block)
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		_, err := list.Append(ctx, []byte{byte(i), byte(i), byte(i)})
		require.NoError(t, err)
	}

	ptr, payload, found, err := list.Lookup(ctx, func(p []byte) bool { return len(p) == 3 && p[0] == 17 })
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{17, 17, 17}, payload)

	require.NoError(t, list.Overwrite(ctx, ptr, []byte{99, 99, 99}))
	_, payload2, found2, err := list.Lookup(ctx, func(p []byte) bool { return len(p) == 3 && p[0] == 99 })
	require.NoError(t, err)
	require.True(t, found2)
	require.Equal(t, []byte{99, 99, 99}, payload2)

	overwriteErr := list.Overwrite(ctx, ptr, []byte{1, 2})
	require.ErrorIs(t, overwriteErr, page.ErrSizeMismatch)
}

func TestItemListScanVisitsAllInOrder(t *testing.T) {
	mgr, wal := newTestEnv(t)
	ctx := context.Background()
	block := allocHeaderBlock(t, mgr)

	list, err := OpenItemList(ctx, mgr, wal, block)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := list.Append(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}

	var seen []byte
	require.NoError(t, list.Scan(ctx, func(_ ItemPointer, payload []byte) bool {
		seen = append(seen, payload[0])
		return true
	}))
	require.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestItemListTooLargeItemRejected(t *testing.T) {
	mgr, wal := newTestEnv(t)
	ctx := context.Background()
	block := allocHeaderBlock(t, mgr)

	list, err := OpenItemList(ctx, mgr, wal, block)
	require.NoError(t, err)

	_, err = list.Append(ctx, make([]byte, 1<<20))
	require.ErrorIs(t, err, ErrItemTooLarge)
}
