//go:build !unix

package host

import (
	"fmt"
	"os"
)

// FileBackend is the non-mmap fallback: whole-file read/write via normal
// syscalls. Used on platforms without a POSIX mmap.
type FileBackend struct {
	f    *os.File
	size int64
}

func OpenFileBackend(path string, minSize int64) (*FileBackend, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < minSize {
		if err := f.Truncate(minSize); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileBackend{f: f, size: minSize}, nil
}

func (b *FileBackend) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > b.size {
		return fmt.Errorf("host: write at %d len %d out of range (size %d)", off, len(p), b.size)
	}
	_, err := b.f.WriteAt(p, off)
	return err
}

func (b *FileBackend) Sync() error {
	return b.f.Sync()
}

func (b *FileBackend) Close() error {
	return b.f.Close()
}
