package engine

import "context"

// ScoredDoc pairs an optional score with a document address. Score is
// nil when the reader was opened with NeedScores false.
type ScoredDoc struct {
	Score *float32
	Addr  DocAddress
}

// ResultIterator streams search results in the reader's chosen order.
type ResultIterator interface {
	// Next advances and returns the next result, or ok=false once
	// exhausted.
	Next(ctx context.Context) (ScoredDoc, bool, error)
}

// Reader searches one snapshot of segments and resolves stored/fast
// field values for materialization.
type Reader interface {
	Search(ctx context.Context) (ResultIterator, error)
	StoredField(ctx context.Context, addr DocAddress, field string) ([]byte, bool, error)
	FastField(ctx context.Context, addr DocAddress, field string) (float64, bool, error)
	Close(ctx context.Context) error
}
