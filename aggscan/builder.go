// Package aggscan builds engine.AggRequest values from a GROUP BY /
// aggregate query shape and decodes engine.AggResult back into typed
// rows, erroring out when bucket truncation is detected rather than
// silently returning a partial answer.
package aggscan

import (
	"errors"
	"fmt"

	"github.com/segmentix/pgsearchidx/config"
	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/queryast"
)

// ErrTruncated is returned by Decode when engine.AggResult reports a
// nonzero SumOtherDocCount: some level of the grouping was cut off at
// max_term_agg_buckets. This is a hard error, never a silently partial
// result.
var ErrTruncated = errors.New("aggscan: result truncated at max_term_agg_buckets, refine the query")

// MetricSpec describes one requested aggregate: COUNT(*)/COUNT(col)/
// SUM(col)/AVG(col)/MIN(col)/MAX(col), optionally scoped by a pushdown-
// compatible FILTER(WHERE ...) clause. IntegerField tells Decode
// whether to surface the result as an integer (the column's declared
// SQL type is an integer one) or a float; it has no effect on how the
// aggregation itself is computed, only on the decoded value's
// presentation.
type MetricSpec struct {
	Name         string
	Kind         engine.AggMetricKind
	Column       string
	Filter       *queryast.SearchQueryInput
	IntegerField bool
}

// Request is a GROUP BY / aggregate query shape: Groups names fast
// indexed fields to bucket by (outermost first), Metrics is evaluated
// at every leaf bucket. Limit/Offset page the flattened leaf rows the
// same way a SQL LIMIT/OFFSET on the grouped result would; Limit <= 0
// means unlimited.
type Request struct {
	Groups  []string
	Metrics []MetricSpec
	Limit   int
	Offset  int
}

// Builder compiles a Request into an engine.AggRequest, validating that
// every referenced column is a fast indexed field and that every
// metric's FILTER predicate (if present) compiles against the schema.
// There is no separate "builder output with FILTER" structural variant
// to construct here: the per-metric Filter field on engine.AggMetric
// already carries that scoping natively, since this engine is
// in-process and never serializes a bucket-aggregation DSL.
type Builder struct{}

// Build validates req against schema and compiles it into the request
// the engine.Aggregator consumes.
func (Builder) Build(req Request, schema engine.Schema, qb engine.QueryBuilder, opts config.Options) (engine.AggRequest, error) {
	for _, g := range req.Groups {
		if err := requireFastField(schema, g); err != nil {
			return engine.AggRequest{}, err
		}
	}

	metrics := make([]engine.AggMetric, len(req.Metrics))
	for i, m := range req.Metrics {
		if m.Kind != engine.AggCount {
			if err := requireFastField(schema, m.Column); err != nil {
				return engine.AggRequest{}, err
			}
		}
		var filter engine.Query
		if m.Filter != nil {
			compiled, err := queryast.Compile(*m.Filter, schema, qb)
			if err != nil {
				return engine.AggRequest{}, fmt.Errorf("aggscan: metric %q FILTER: %w", m.Name, err)
			}
			filter = compiled
		}
		metrics[i] = engine.AggMetric{Name: m.Name, Kind: m.Kind, Field: m.Column, Filter: filter}
	}

	return engine.AggRequest{
		Groups:             req.Groups,
		Metrics:            metrics,
		MaxBucketsPerLevel: bucketBudget(req, opts),
	}, nil
}

// bucketBudget sizes the per-level bucket request the engine is asked
// for: min(limit+offset, max_buckets) when the query carries a LIMIT,
// so a `GROUP BY ... LIMIT 5` never requests (and never pays to
// compute) more buckets per level than could ever be returned. A
// query with no LIMIT keeps the configured ceiling.
func bucketBudget(req Request, opts config.Options) int {
	ceiling := opts.MaxTermAggBuckets
	if req.Limit <= 0 {
		return ceiling
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	budget := req.Limit + offset
	if budget > ceiling {
		return ceiling
	}
	return budget
}

func requireFastField(schema engine.Schema, name string) error {
	f, ok := schema.Field(name)
	if !ok {
		return fmt.Errorf("%w: %q", queryast.ErrUnknownField, name)
	}
	if !f.Fast {
		return fmt.Errorf("aggscan: field %q is not a fast field, cannot group or aggregate on it", name)
	}
	return nil
}
