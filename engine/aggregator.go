package engine

import "context"

// AggMetricKind names a supported metric aggregation.
type AggMetricKind int

const (
	AggCount AggMetricKind = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

// AggMetric is one metric aggregation, optionally scoped by its own
// FILTER predicate (aggscan.Builder's per-aggregate filter bucket).
type AggMetric struct {
	Name   string // result key, e.g. "sum_price"
	Kind   AggMetricKind
	Field  string // ignored for AggCount
	Filter Query  // nil means unfiltered
}

// AggRequest describes a nested terms-bucket aggregation: Groups names
// the fast fields to bucket by, outermost first; Metrics are evaluated
// at every leaf bucket (and, when Groups is empty, at the single
// top-level bucket).
type AggRequest struct {
	Groups             []string
	Metrics            []AggMetric
	MaxBucketsPerLevel int
}

// AggBucket is one bucket of a nested terms aggregation result.
type AggBucket struct {
	Key        string
	DocCount   int
	Metrics    map[string]*float64 // nil value means SQL NULL for that metric
	SubBuckets []AggBucket
}

// AggResult is the full decoded aggregation response. SumOtherDocCount
// is nonzero when MaxBucketsPerLevel truncated a level; aggscan treats
// that as a hard error rather than a silent cap.
type AggResult struct {
	Buckets          []AggBucket
	ValueCount       int // hidden value_count(ctid) for ungrouped queries
	SumOtherDocCount int
}

// Aggregator runs a nested terms/metrics aggregation over query's match
// set. The request/result shapes are native Go values rather than raw
// JSON bytes because this engine is in-process; an out-of-process
// binding would marshal AggRequest/AggResult with goccy/go-json at its
// boundary instead.
type Aggregator interface {
	Run(ctx context.Context, query Query, req AggRequest) (AggResult, error)
}
