package segstore

import (
	"context"

	"github.com/segmentix/pgsearchidx/pagelist"
)

// FileHandle supports positioned reads over a logical file's
// byte-stream list, returned by Store.OpenRead.
type FileHandle struct {
	path   string
	stream *pagelist.ByteStream
}

// Path is the logical path this handle was opened for.
func (h *FileHandle) Path() string { return h.path }

// Size is the file's total byte length.
func (h *FileHandle) Size() int64 { return h.stream.TotalBytes() }

// ReadAt returns length bytes starting at offset off.
func (h *FileHandle) ReadAt(ctx context.Context, off int64, length int) ([]byte, error) {
	return h.stream.ReadAt(ctx, off, length)
}
