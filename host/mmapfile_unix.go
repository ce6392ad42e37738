//go:build unix

package host

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileBackend memory-maps a regular file to give the reference buffer
// manager real, flushable storage for crash-recovery tests: a shared
// read-write mapping that Sync flushes with msync and fdatasync when
// RefBufferManager.Flush runs.
type FileBackend struct {
	f    *os.File
	data []byte
}

// OpenFileBackend opens (creating if necessary) path and maps at least
// minSize bytes of it read-write.
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
	data, err := unix.Mmap(int(f.Fd()), 0, int(minSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &FileBackend{f: f, data: data}, nil
}

func (b *FileBackend) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(b.data)) {
		return fmt.Errorf("host: write at %d len %d out of range (mapped %d)", off, len(p), len(b.data))
	}
	copy(b.data[off:off+int64(len(p))], p)
	return nil
}

func (b *FileBackend) Sync() error {
	if err := unix.Msync(b.data, unix.MS_SYNC); err != nil {
		return err
	}
	return unix.Fdatasync(int(b.f.Fd()))
}

func (b *FileBackend) Close() error {
	if err := unix.Munmap(b.data); err != nil {
		return err
	}
	return b.f.Close()
}
