package segstore

import (
	"context"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/pagelist"
)

// Writer accumulates bytes for one logical file in page-sized chunks;
// Close commits a FileEntry into the directory, unlinking any prior
// entry for the same path if overwrite was requested.
type Writer struct {
	store       *Store
	path        string
	overwrite   bool
	stream      *pagelist.ByteStream
	headerBlock host.BlockNumber
	closed      bool
}

// Write appends data to the file, returning the logical offset it was
// written at.
func (w *Writer) Write(ctx context.Context, data []byte) (int64, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	return w.stream.Append(ctx, data)
}

// Close commits the file entry. It is safe to call once; subsequent
// calls are no-ops.
func (w *Writer) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.store.commit(ctx, w.path, w.headerBlock, uint64(w.stream.TotalBytes()))
}
