// Package directory implements the search engine's file-system
// interface against a segstore.Store: file handles for reading and
// writing, an atomic-write path for the engine's single meta file, and
// named locks mapped onto fixed blocks.
package directory

import (
	"context"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/internal/pageformat"
	"github.com/segmentix/pgsearchidx/segstore"
)

// Lock names one of the engine's coordination locks.
type Lock int

const (
	LockMerge Lock = iota
	LockManaged
	LockWriter
)

func (l Lock) block() host.BlockNumber {
	switch l {
	case LockMerge:
		return host.BlockNumber(pageformat.BlockMergeLock)
	case LockManaged:
		return host.BlockNumber(pageformat.BlockCleanupLock)
	case LockWriter:
		return host.BlockNumber(pageformat.BlockWriterLock)
	default:
		return host.InvalidBlockNumber
	}
}

// Adapter is the directory interface the search engine is given: file
// handles through the segment file store, an atomic read/write path for
// the engine's single meta file, named locks, and file enumeration.
// Delete is intentionally a no-op everywhere: segment lifecycle is
// driven by MVCC on segment-meta entries, not by the engine's own GC.
type Adapter interface {
	GetFileHandle(ctx context.Context, path string) (*segstore.FileHandle, error)
	OpenWrite(ctx context.Context, path string, overwrite bool) (*segstore.Writer, error)
	AtomicWrite(ctx context.Context, metaBlock host.BlockNumber, payload []byte) error
	AtomicRead(ctx context.Context, metaBlock host.BlockNumber) ([]byte, error)
	AcquireLock(ctx context.Context, lock Lock) (release func(), err error)
	ListManagedFiles(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, path string) error
}
