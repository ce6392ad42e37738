// Package segstore maps logical file paths (segment component files,
// e.g. "<segment-id>.terms") to byte-stream lists, giving reader and
// writer handles keyed by path. It is the layer the directory adapter
// sits on top of.
package segstore

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/pagelist"
)

// maxPathLen bounds a logical file path so directory records have a
// fixed on-disk size; that fixed size is what lets commit() tombstone
// (overwrite in place) a superseded entry rather than needing to delete
// and reinsert.
const maxPathLen = 120

const fileEntrySize = 1 + 4 + 8 + 2 + maxPathLen // live + headerBlock + totalBytes + pathLen + path

// FileEntry is the directory record for one logical file: where its
// byte-stream list is rooted and how long it is.
type FileEntry struct {
	Path        string
	HeaderBlock host.BlockNumber
	TotalBytes  uint64
	Live        bool
}

func encodeFileEntry(e FileEntry) []byte {
	pathBytes := []byte(e.Path)
	if len(pathBytes) > maxPathLen {
		pathBytes = pathBytes[:maxPathLen]
	}
	buf := make([]byte, fileEntrySize)
	if e.Live {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:5], uint32(e.HeaderBlock))
	binary.LittleEndian.PutUint64(buf[5:13], e.TotalBytes)
	binary.LittleEndian.PutUint16(buf[13:15], uint16(len(pathBytes)))
	copy(buf[15:15+len(pathBytes)], pathBytes)
	return buf
}

func decodeFileEntry(b []byte) FileEntry {
	live := b[0] == 1
	headerBlock := host.BlockNumber(binary.LittleEndian.Uint32(b[1:5]))
	total := binary.LittleEndian.Uint64(b[5:13])
	n := int(binary.LittleEndian.Uint16(b[13:15]))
	path := string(b[15 : 15+n])
	return FileEntry{Path: path, HeaderBlock: headerBlock, TotalBytes: total, Live: live}
}

func pathHash(path string) uint64 { return xxhash.Sum64String(path) }

// Store is the segment file store: a directory item list of FileEntry
// records, keyed by path, plus an in-memory hash sidecar for O(1)
// average-case lookup instead of a full linear scan per open.
type Store struct {
	mgr host.BufferManager
	wal host.WALSink
	dir *pagelist.ItemList

	mu        sync.Mutex
	hashIndex map[uint64][]pagelist.ItemPointer // pathHash -> candidate directory entries
}

// Open opens the segment file store rooted at dirBlock, rebuilding the
// hash sidecar with one scan of the directory list.
func Open(ctx context.Context, mgr host.BufferManager, wal host.WALSink, dirBlock host.BlockNumber) (*Store, error) {
	dir, err := pagelist.OpenItemList(ctx, mgr, wal, dirBlock)
	if err != nil {
		return nil, err
	}
	s := &Store{mgr: mgr, wal: wal, dir: dir, hashIndex: make(map[uint64][]pagelist.ItemPointer)}
	err = dir.Scan(ctx, func(ptr pagelist.ItemPointer, payload []byte) bool {
		e := decodeFileEntry(payload)
		h := pathHash(e.Path)
		s.hashIndex[h] = append(s.hashIndex[h], ptr)
		return true
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// lookup finds the live FileEntry for path, or ok=false.
func (s *Store) lookup(ctx context.Context, path string) (FileEntry, pagelist.ItemPointer, bool, error) {
	h := pathHash(path)
	s.mu.Lock()
	candidates := append([]pagelist.ItemPointer(nil), s.hashIndex[h]...)
	s.mu.Unlock()

	for _, c := range candidates {
		payload, ok, err := s.dir.ReadAt(ctx, c)
		if err != nil {
			return FileEntry{}, pagelist.ItemPointer{}, false, err
		}
		if !ok {
			continue
		}
		e := decodeFileEntry(payload)
		if e.Live && e.Path == path {
			return e, c, true, nil
		}
	}
	return FileEntry{}, pagelist.ItemPointer{}, false, nil
}

// OpenRead looks up path in the directory and returns a FileHandle
// supporting positioned reads.
func (s *Store) OpenRead(ctx context.Context, path string) (*FileHandle, error) {
	entry, _, ok, err := s.lookup(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchFile
	}
	bs, err := pagelist.OpenByteStream(ctx, s.mgr, s.wal, entry.HeaderBlock)
	if err != nil {
		return nil, err
	}
	return &FileHandle{path: path, stream: bs}, nil
}

// OpenWrite returns a Writer that accumulates bytes for path. The
// directory is only updated when the writer is closed; re-registering
// an existing path with overwrite=true unlinks the prior entry's
// byte-stream list (segment deletion is the usual cause).
func (s *Store) OpenWrite(ctx context.Context, path string, overwrite bool) (*Writer, error) {
	if !overwrite {
		if _, _, ok, err := s.lookup(ctx, path); err != nil {
			return nil, err
		} else if ok {
			return nil, ErrPathExists
		}
	}
	guard, err := s.mgr.NewBuffer(ctx)
	if err != nil {
		return nil, err
	}
	headerBlock := guard.Block()
	guard.Release()
	bs, err := pagelist.OpenByteStream(ctx, s.mgr, s.wal, headerBlock)
	if err != nil {
		return nil, err
	}
	return &Writer{store: s, path: path, overwrite: overwrite, stream: bs, headerBlock: headerBlock}, nil
}

// commit is called by Writer.Close to record the new file entry,
// unlinking any prior entry for the same path first.
func (s *Store) commit(ctx context.Context, path string, headerBlock host.BlockNumber, totalBytes uint64) error {
	if prior, ptr, ok, err := s.lookup(ctx, path); err != nil {
		return err
	} else if ok {
		oldStream, err := pagelist.OpenByteStream(ctx, s.mgr, s.wal, prior.HeaderBlock)
		if err != nil {
			return err
		}
		if err := oldStream.Truncate(ctx, host.InvalidXid); err != nil {
			return err
		}
		tombstone := encodeFileEntry(FileEntry{Path: prior.Path, HeaderBlock: host.InvalidBlockNumber, Live: false})
		if err := s.dir.Overwrite(ctx, ptr, tombstone); err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.hashIndex, pathHash(path))
		s.mu.Unlock()
	}
	newPtr, err := s.dir.Append(ctx, encodeFileEntry(FileEntry{Path: path, HeaderBlock: headerBlock, TotalBytes: totalBytes, Live: true}))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.hashIndex[pathHash(path)] = append(s.hashIndex[pathHash(path)], newPtr)
	s.mu.Unlock()
	return nil
}

// ListManagedFiles enumerates every live path currently registered.
func (s *Store) ListManagedFiles(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.dir.Scan(ctx, func(_ pagelist.ItemPointer, payload []byte) bool {
		e := decodeFileEntry(payload)
		if e.Live {
			paths = append(paths, e.Path)
		}
		return true
	})
	return paths, err
}
