package metapages

import (
	"context"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/pagelist"
)

// Blob is a simple byte-stream-backed page, used for the schema and
// settings pages: both are serialized once at build time and read many
// times afterward, so no in-place-overwrite atomicity is needed the way
// the engine's own meta file needs it (see directory.AtomicWrite).
type Blob struct {
	stream *pagelist.ByteStream
}

// OpenBlob opens (or initializes) the blob rooted at block.
func OpenBlob(ctx context.Context, mgr host.BufferManager, wal host.WALSink, block host.BlockNumber) (*Blob, error) {
	stream, err := pagelist.OpenByteStream(ctx, mgr, wal, block)
	if err != nil {
		return nil, err
	}
	return &Blob{stream: stream}, nil
}

// Write appends bytes to the blob. Callers write a schema or settings
// blob exactly once, at build time.
func (b *Blob) Write(ctx context.Context, data []byte) error {
	_, err := b.stream.Append(ctx, data)
	return err
}

// Read returns the full contents of the blob.
func (b *Blob) Read(ctx context.Context) ([]byte, error) {
	return b.stream.ReadAt(ctx, 0, int(b.stream.TotalBytes()))
}
