package directory

import (
	"context"
	"encoding/binary"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/page"
	"github.com/segmentix/pgsearchidx/pagelist"
	"github.com/segmentix/pgsearchidx/segstore"
)

// metaPointerSize is HeadBlock(4) + TotalBytes(8).
const metaPointerSize = 12

type metaPointer struct {
	HeadBlock  host.BlockNumber
	TotalBytes uint64
}

func encodeMetaPointer(p metaPointer) []byte {
	b := make([]byte, metaPointerSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(p.HeadBlock))
	binary.LittleEndian.PutUint64(b[4:12], p.TotalBytes)
	return b
}

func decodeMetaPointer(b []byte) metaPointer {
	return metaPointer{
		HeadBlock:  host.BlockNumber(binary.LittleEndian.Uint32(b[0:4])),
		TotalBytes: binary.LittleEndian.Uint64(b[4:12]),
	}
}

// BlockingAdapter issues every operation inline on the caller's
// goroutine, taking host buffer locks directly. This is the adapter
// flavor used when the embedding engine already serializes access to
// one backend thread.
type BlockingAdapter struct {
	mgr   host.BufferManager
	wal   host.WALSink
	store *segstore.Store
}

// NewBlockingAdapter builds an adapter over an already-open segment
// file store.
func NewBlockingAdapter(mgr host.BufferManager, wal host.WALSink, store *segstore.Store) *BlockingAdapter {
	return &BlockingAdapter{mgr: mgr, wal: wal, store: store}
}

func (a *BlockingAdapter) GetFileHandle(ctx context.Context, path string) (*segstore.FileHandle, error) {
	return a.store.OpenRead(ctx, path)
}

func (a *BlockingAdapter) OpenWrite(ctx context.Context, path string, overwrite bool) (*segstore.Writer, error) {
	return a.store.OpenWrite(ctx, path, overwrite)
}

func (a *BlockingAdapter) ListManagedFiles(ctx context.Context) ([]string, error) {
	return a.store.ListManagedFiles(ctx)
}

// Delete is a no-op: segment lifecycle is driven by MVCC, not by the
// engine's own garbage collection.
func (a *BlockingAdapter) Delete(ctx context.Context, path string) error {
	return nil
}

func (a *BlockingAdapter) AtomicWrite(ctx context.Context, metaBlock host.BlockNumber, payload []byte) error {
	guard, err := a.mgr.GetBuffer(ctx, metaBlock, host.LockExclusive)
	if err != nil {
		return err
	}
	p := page.Wrap(guard, a.wal)
	hasPrior := p.ItemCount() > 0
	var prior metaPointer
	if hasPrior {
		raw, ok := p.Item(0)
		if ok {
			prior = decodeMetaPointer(raw)
		}
	}
	p.Release()

	newHeadGuard, err := a.mgr.NewBuffer(ctx)
	if err != nil {
		return err
	}
	headBlock := newHeadGuard.Block()
	newHeadGuard.Release()

	bs, err := pagelist.OpenByteStream(ctx, a.mgr, a.wal, headBlock)
	if err != nil {
		return err
	}
	if _, err := bs.Append(ctx, payload); err != nil {
		return err
	}

	newPointer := encodeMetaPointer(metaPointer{HeadBlock: headBlock, TotalBytes: uint64(len(payload))})

	guard, err = a.mgr.GetBuffer(ctx, metaBlock, host.LockExclusive)
	if err != nil {
		return err
	}
	p = page.Wrap(guard, a.wal)
	if hasPrior {
		err = p.OverwriteItem(ctx, 0, newPointer)
	} else {
		_, _, err = p.AppendItem(ctx, newPointer)
	}
	p.Release()
	if err != nil {
		return err
	}

	if hasPrior && prior.HeadBlock != host.InvalidBlockNumber {
		oldStream, err := pagelist.OpenByteStream(ctx, a.mgr, a.wal, prior.HeadBlock)
		if err == nil {
			_ = oldStream.Truncate(ctx, host.InvalidXid)
		}
	}
	return nil
}

func (a *BlockingAdapter) AtomicRead(ctx context.Context, metaBlock host.BlockNumber) ([]byte, error) {
	guard, err := a.mgr.GetBuffer(ctx, metaBlock, host.LockShared)
	if err != nil {
		return nil, err
	}
	p := page.Wrap(guard, a.wal)
	raw, ok := p.Item(0)
	p.Release()
	if !ok {
		return nil, ErrNoMetaWritten
	}
	pointer := decodeMetaPointer(raw)

	bs, err := pagelist.OpenByteStream(ctx, a.mgr, a.wal, pointer.HeadBlock)
	if err != nil {
		return nil, err
	}
	return bs.ReadAt(ctx, 0, int(pointer.TotalBytes))
}

// AcquireLock takes an exclusive buffer-level lock on the fixed block a
// named lock maps to, held until release() is called.
func (a *BlockingAdapter) AcquireLock(ctx context.Context, lock Lock) (func(), error) {
	guard, err := a.mgr.GetBuffer(ctx, lock.block(), host.LockExclusive)
	if err != nil {
		return nil, err
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		guard.Release()
	}, nil
}
