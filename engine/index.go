package engine

import (
	"context"

	"github.com/google/uuid"
)

// DocAddress identifies a document within an index: which segment, and
// which in-segment docid. Document addresses are the deterministic
// tie-break for equal sort keys (segment id, then in-segment docid).
type DocAddress struct {
	SegmentID uuid.UUID
	DocID     uint32
}

// Less orders addresses by segment id (compared as its string form) then
// docid; the reference reader's result sort uses it as the deterministic
// tie-break that topn inherits.
func (a DocAddress) Less(b DocAddress) bool {
	if a.SegmentID != b.SegmentID {
		return a.SegmentID.String() < b.SegmentID.String()
	}
	return a.DocID < b.DocID
}

// Document is one indexed row: stored field values plus fast-field
// values, keyed by field name.
type Document struct {
	Stored map[string][]byte
	Fast   map[string]float64
	Key    string // configured key field's value, for delete-by-key on re-insert
}

// SegmentRef names one committed segment, as the unit merges and
// garbage collection operate over.
type SegmentRef struct {
	ID      uuid.UUID
	MaxDoc  uint32
	Path    string
	NumDocs int
}

// CommittedSegment is what Writer.Commit and Writer.Merge produce: a
// freshly written segment plus its byte footprint, for the caller (our
// searchio.Writer) to stamp into the segment-meta list.
type CommittedSegment struct {
	SegmentRef
	ByteSize int64
}

// Index opens readers and a writer against a schema and a directory.
type Index interface {
	Schema() Schema
	Reader(ctx context.Context, opts ReaderOptions) (Reader, error)
	Writer(ctx context.Context) (Writer, error)
	Aggregator(ctx context.Context) (Aggregator, error)
}

// ReaderOptions parameterizes Index.Reader, mirroring the
// open(index, query, need_scores, mode, limit, offset) reader contract.
type ReaderOptions struct {
	Query            Query
	NeedScores       bool
	SegmentIDs       []uuid.UUID // nil means "all segments"; non-nil restricts to this set
	Limit            int         // 0 means unbounded
	Offset           int
	OrderByFastField string // empty means score order
	OrderDescending  bool
}
