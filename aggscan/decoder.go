package aggscan

import (
	"math"

	"github.com/segmentix/pgsearchidx/engine"
)

// ValueKind tags a decoded metric value.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueInt64
	ValueFloat64
)

// Value is one decoded, type-directed metric result.
type Value struct {
	Kind    ValueKind
	Int64   int64
	Float64 float64
}

func nullValue() Value { return Value{Kind: ValueNull} }

func int64Value(v int64) Value { return Value{Kind: ValueInt64, Int64: v} }

func float64Value(v float64) Value { return Value{Kind: ValueFloat64, Float64: v} }

// Row is one fully-decoded leaf of the (possibly nested) terms
// aggregation: GroupKeys holds the bucket key at each GROUP BY level,
// outermost first.
type Row struct {
	GroupKeys []string
	DocCount  int
	Metrics   map[string]Value
}

// Decode flattens engine.AggResult's nested bucket tree into leaf rows
// and decodes every metric value per its declared kind: COUNT is
// always an integer, SUM/MIN/MAX preserve the declared integer-ness of
// their input column, AVG is always a float, and an empty bucket's
// value is NULL for every metric except COUNT (which is 0, not NULL,
// per SQL's COUNT semantics). valueCount is result.ValueCount, only
// meaningful for an ungrouped request. Decode refuses to return a
// partial answer: a nonzero SumOtherDocCount is ErrTruncated, not a
// silently capped row set, unless the cut level holds limit+offset
// buckets, the LIMIT-sized budget Build requests, in which case every
// dropped group lies past the requested page. limit/offset page the
// flattened rows the same way SQL LIMIT/OFFSET would over the grouped
// result; limit <= 0 means unlimited.
func Decode(result engine.AggResult, metrics []MetricSpec, limit, offset int) (rows []Row, valueCount int, err error) {
	byName := make(map[string]MetricSpec, len(metrics))
	for _, m := range metrics {
		byName[m.Name] = m
	}

	longest := 0
	var walk func(buckets []engine.AggBucket, prefix []string)
	walk = func(buckets []engine.AggBucket, prefix []string) {
		if len(buckets) > longest {
			longest = len(buckets)
		}
		for _, b := range buckets {
			path := append(append([]string{}, prefix...), b.Key)
			if len(b.SubBuckets) > 0 {
				walk(b.SubBuckets, path)
				continue
			}
			decoded := make(map[string]Value, len(b.Metrics))
			for name, v := range b.Metrics {
				decoded[name] = decodeMetric(byName[name], v)
			}
			rows = append(rows, Row{GroupKeys: path, DocCount: b.DocCount, Metrics: decoded})
		}
	}
	walk(result.Buckets, nil)

	if result.SumOtherDocCount > 0 {
		want := limit
		if offset > 0 {
			want += offset
		}
		// Only a level cut below limit+offset (max_term_agg_buckets won)
		// can drop a group the requested page would have shown.
		if limit <= 0 || longest < want {
			return nil, 0, ErrTruncated
		}
	}

	return page(rows, limit, offset), result.ValueCount, nil
}

// page applies offset then limit to the flattened rows, mirroring SQL's
// LIMIT/OFFSET over a GROUP BY result.
func page(rows []Row, limit, offset int) []Row {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func decodeMetric(spec MetricSpec, v *float64) Value {
	if spec.Kind == engine.AggCount {
		if v == nil {
			return int64Value(0)
		}
		return int64Value(int64(*v))
	}
	if v == nil {
		return nullValue()
	}
	if spec.Kind == engine.AggAvg {
		return float64Value(*v)
	}
	if spec.IntegerField {
		return int64Value(int64(math.Round(*v)))
	}
	return float64Value(*v)
}
