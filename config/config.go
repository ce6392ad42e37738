// Package config holds the index's tunable knobs as a plain struct of
// defaults, a heavily-commented value holder rather than functional
// options.
package config

import "github.com/segmentix/pgsearchidx/mergepolicy"

// Options configures planning, indexing, merge, and aggregation
// behavior for one index.
type Options struct {
	// EnableCustomScan is the master on/off switch for the custom scan
	// and join scan paths (C9/C12). When false, the planner never
	// offers them and every query falls back to the host's default
	// plan.
	// Default: true
	EnableCustomScan bool

	// PerTupleCost biases the planner toward the custom scan by
	// multiplying its estimated per-tuple cost; values below 1 make the
	// scan look cheaper than a sequential scan of the same cardinality.
	// Default: 0.1
	PerTupleCost float64

	// CreateIndexParallelism is the indexing-thread count used while
	// building an index from scratch.
	// Default: 4
	CreateIndexParallelism int

	// CreateIndexMemoryBudget is the per-thread byte budget during
	// index build.
	// Default: 256MB (268435456)
	CreateIndexMemoryBudget int64

	// StatementParallelism is the indexing-thread count used during
	// ordinary DML against an existing index.
	// Default: 1
	StatementParallelism int

	// StatementMemoryBudget is the per-thread byte budget during DML.
	// Default: 64MB (67108864)
	StatementMemoryBudget int64

	// MaxMergeableSegmentSize is the upper bound, in bytes, on a
	// segment's estimated size for it to be considered as a merge
	// input.
	// Default: 128MB (134217728)
	MaxMergeableSegmentSize int64

	// SegmentMergeScaleFactor, multiplied by the active parallelism,
	// is the live segment count threshold that triggers a merge after
	// a commit.
	// Default: 10
	SegmentMergeScaleFactor int

	// MaxTermAggBuckets caps aggregation bucket size per nesting level;
	// exceeding it is a hard error (see aggscan), not a silent cap.
	// Default: 65536
	MaxTermAggBuckets int

	// LogCreateIndexProgress, when true, logs indexing progress every
	// 100k rows processed during a build.
	// Default: true
	LogCreateIndexProgress bool

	// MergeStrategy selects which mergepolicy.Strategy searchio.Writer
	// uses to pick merge inputs after a commit.
	// Default: mergepolicy.Hybrid{FragmentationThreshold: 32}
	MergeStrategy mergepolicy.Strategy

	// ChannelAdapterQueueDepth sizes the buffered request channel the
	// channel-based directory adapter uses to serialize buffer access
	// from multiple goroutines onto one owning goroutine.
	// Implementation-only knob, not in the original configuration
	// surface.
	// Default: 64
	ChannelAdapterQueueDepth int

	// TopNHardChunkCap bounds how large a single re-request chunk in
	// topn's growth-factor loop is allowed to grow to, regardless of
	// the configured growth factor, so a pathological visibility-skip
	// rate can't make one request ask the engine for an unbounded
	// number of candidates.
	// Implementation-only knob, not in the original configuration
	// surface.
	// Default: 100000
	TopNHardChunkCap int
}

// DefaultOptions returns production-ready defaults.
func DefaultOptions() Options {
	return Options{
		EnableCustomScan:         true,
		PerTupleCost:             0.1,
		CreateIndexParallelism:   4,
		CreateIndexMemoryBudget:  256 << 20,
		StatementParallelism:     1,
		StatementMemoryBudget:    64 << 20,
		MaxMergeableSegmentSize:  128 << 20,
		SegmentMergeScaleFactor:  10,
		MaxTermAggBuckets:        65536,
		LogCreateIndexProgress:   true,
		MergeStrategy:            mergepolicy.Hybrid{FragmentationThreshold: 32},
		ChannelAdapterQueueDepth: 64,
		TopNHardChunkCap:         100000,
	}
}
