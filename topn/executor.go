// Package topn implements growth-factor chunked re-request execution
// for LIMIT k queries: ask the engine for the top k, and if fewer than
// k survive the heap-visibility check, ask again for a larger chunk
// rather than falling back to an unbounded scan.
package topn

import (
	"context"
	"fmt"

	"github.com/segmentix/pgsearchidx/config"
	"github.com/segmentix/pgsearchidx/customscan"
	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/mvcc"
)

// Config controls the growth schedule.
type Config struct {
	// GrowthFactor multiplies the chunk size each time a round doesn't
	// confirm k visible rows and the engine hasn't been exhausted.
	GrowthFactor int
	// HardCap bounds how large a single chunk request can grow to,
	// regardless of k and GrowthFactor.
	HardCap int
}

// ConfigFromOptions derives a Config from the index's runtime options,
// defaulting GrowthFactor to 2.
func ConfigFromOptions(opts config.Options) Config {
	cap := opts.TopNHardChunkCap
	if cap <= 0 {
		cap = 1 << 20
	}
	return Config{GrowthFactor: 2, HardCap: cap}
}

// Executor runs Plan's query through growth-factor chunked rounds of
// customscan.ScanState, each asking for a larger chunk until k rows
// survive the heap-visibility check or the engine is exhausted.
type Executor struct {
	idx   engine.Index
	cache *mvcc.SegmentMetaCache
	qb    engine.QueryBuilder
	heap  host.HeapVisibility
	plan  customscan.Plan
	cfg   Config
}

// NewExecutor builds an Executor over plan; plan.Limit is overwritten
// per round and need not be set by the caller.
func NewExecutor(idx engine.Index, cache *mvcc.SegmentMetaCache, qb engine.QueryBuilder, heap host.HeapVisibility, plan customscan.Plan, cfg Config) *Executor {
	return &Executor{idx: idx, cache: cache, qb: qb, heap: heap, plan: plan, cfg: cfg}
}

// Top returns up to k rows, ordered per plan.PathKeys (or by whatever
// order the engine itself chooses when no path key is declared) with
// document address as the deterministic tie-break the engine's own
// sort already applies.
func (e *Executor) Top(ctx context.Context, currentXid host.Xid, snap host.Snapshot, k int) ([]customscan.Row, error) {
	if k <= 0 {
		return nil, nil
	}
	if e.cfg.GrowthFactor <= 1 {
		return nil, fmt.Errorf("topn: growth factor must be greater than 1, got %d", e.cfg.GrowthFactor)
	}

	chunk := k
	for {
		roundPlan := e.plan
		roundPlan.Limit = chunk

		ss := customscan.NewScanState(e.idx, e.cache, e.qb, e.heap, roundPlan)
		if err := ss.Begin(ctx, currentXid, snap); err != nil {
			return nil, err
		}

		rows := make([]customscan.Row, 0, k)
		for {
			row, ok, err := ss.Fetch(ctx)
			if err != nil {
				_ = ss.End(ctx)
				return nil, err
			}
			if !ok {
				break
			}
			rows = append(rows, row)
			if len(rows) == k {
				break
			}
		}
		scanned := ss.Scanned()
		if err := ss.End(ctx); err != nil {
			return nil, err
		}

		exhausted := scanned < chunk
		if len(rows) >= k || exhausted {
			if len(rows) > k {
				rows = rows[:k]
			}
			return rows, nil
		}
		if chunk >= e.cfg.HardCap {
			return rows, nil
		}
		chunk *= e.cfg.GrowthFactor
		if chunk > e.cfg.HardCap {
			chunk = e.cfg.HardCap
		}
	}
}
