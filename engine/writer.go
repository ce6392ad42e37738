package engine

import "context"

// Writer buffers document changes and produces new committed segments.
// Merge policy and meta-list bookkeeping live in searchio.Writer; this
// interface only produces and removes segment bytes.
type Writer interface {
	// AddDocument buffers doc for the next commit. If a prior buffered or
	// already-committed document shares doc.Key, it is implicitly
	// deleted (delete-by-key semantics).
	AddDocument(ctx context.Context, doc Document) error
	// DeleteTerm marks every document whose field equals one of keys for
	// deletion; visible after the next commit.
	DeleteTerm(ctx context.Context, field string, keys []string) error
	// Commit flushes buffered adds/deletes into one new segment.
	Commit(ctx context.Context) (CommittedSegment, error)
	// Merge combines inputs into one new segment; the caller stamps
	// xmax on the inputs and xmin on the output in the meta list.
	Merge(ctx context.Context, inputs []SegmentRef) (CommittedSegment, error)
	// GarbageCollectFiles removes segment files not named in live.
	GarbageCollectFiles(ctx context.Context, live []SegmentRef) error
	// DropIndex removes every managed file; used at index drop.
	DropIndex(ctx context.Context) error
}
