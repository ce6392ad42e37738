package joinscan

import (
	"context"
	"strings"

	"github.com/segmentix/pgsearchidx/config"
	"github.com/segmentix/pgsearchidx/customscan"
	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/mvcc"
	"github.com/segmentix/pgsearchidx/topn"
)

// keySep joins multi-column join key values into one map key; NUL is
// never a legal column value in the reference engine's stored fields.
const keySep = "\x00"

// Tuple is one materialized row of the non-search (probed) side of the
// join: plain column values keyed by name. The host owns the real tuple
// representation and heap scan; this is the minimal shape joinscan
// needs to hash and probe, mirroring how host.HeapVisibility stands in
// for the host's own ctid resolution.
type Tuple map[string]string

// RowSource materializes the probe side of a candidate join, one row at
// a time, until exhausted.
type RowSource interface {
	Next(ctx context.Context) (Tuple, bool, error)
}

// JoinedRow pairs one driving-side customscan.Row with a probe-side
// tuple whose join key matched.
type JoinedRow struct {
	Driver customscan.Row
	Probe  Tuple
}

// ResidualFilter evaluates any join clauses beyond the hashed equi-join
// columns — "other join clauses become a post-hash filter". The host's
// expression evaluator is out of scope here, so the caller supplies
// this as a plain predicate over the already-materialized pair.
type ResidualFilter func(driver customscan.Row, probe Tuple) bool

// Exec runs one Candidate: stream the driving side through
// customscan/topn, hash the probe side, and emit every pair whose join
// key matches and that passes residual.
type Exec struct {
	idx   engine.Index
	cache *mvcc.SegmentMetaCache
	qb    engine.QueryBuilder
	heap  host.HeapVisibility
	opts  config.Options
	cand  Candidate
}

// NewExec builds an Exec for cand.
func NewExec(idx engine.Index, cache *mvcc.SegmentMetaCache, qb engine.QueryBuilder, heap host.HeapVisibility, opts config.Options, cand Candidate) *Exec {
	return &Exec{idx: idx, cache: cache, qb: qb, heap: heap, opts: opts, cand: cand}
}

// Run materializes probe into a hash table, streams the driving side,
// and returns every joined pair whose key matches and (if residual is
// non-nil) passes the residual filter.
func (e *Exec) Run(ctx context.Context, currentXid host.Xid, snap host.Snapshot, probe RowSource, residual ResidualFilter) ([]JoinedRow, error) {
	table, err := e.buildHash(ctx, probe)
	if err != nil {
		return nil, err
	}

	rows, err := e.drive(ctx, currentXid, snap)
	if err != nil {
		return nil, err
	}

	var joined []JoinedRow
	for _, row := range rows {
		key, ok := driverKey(row, e.cand.DriverKeys)
		if !ok {
			continue
		}
		for _, probeRow := range table[key] {
			if residual != nil && !residual(row, probeRow) {
				continue
			}
			joined = append(joined, JoinedRow{Driver: row, Probe: probeRow})
		}
	}
	return joined, nil
}

func (e *Exec) buildHash(ctx context.Context, probe RowSource) (map[string][]Tuple, error) {
	table := make(map[string][]Tuple)
	for {
		t, ok, err := probe.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		key, ok := tupleKey(t, e.cand.ProbeKeys)
		if !ok {
			continue
		}
		table[key] = append(table[key], t)
	}
	return table, nil
}

// drive streams the driving side to completion: through topn.Executor
// when the candidate declared an ORDER BY score() + LIMIT pathkey, or a
// plain customscan.ScanState fetch loop otherwise.
func (e *Exec) drive(ctx context.Context, currentXid host.Xid, snap host.Snapshot) ([]customscan.Row, error) {
	if e.cand.UseTopN {
		exec := topn.NewExecutor(e.idx, e.cache, e.qb, e.heap, e.cand.DriverPlan, topn.ConfigFromOptions(e.opts))
		return exec.Top(ctx, currentXid, snap, e.cand.Limit)
	}

	state := customscan.NewScanState(e.idx, e.cache, e.qb, e.heap, e.cand.DriverPlan)
	if err := state.Begin(ctx, currentXid, snap); err != nil {
		return nil, err
	}
	defer state.End(ctx)

	var rows []customscan.Row
	for {
		row, ok, err := state.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

func driverKey(row customscan.Row, columns []string) (string, bool) {
	values := make([]string, len(columns))
	for i, col := range columns {
		v, ok := row.Stored[col]
		if !ok {
			return "", false
		}
		values[i] = string(v)
	}
	return strings.Join(values, keySep), true
}

func tupleKey(t Tuple, columns []string) (string, bool) {
	values := make([]string, len(columns))
	for i, col := range columns {
		v, ok := t[col]
		if !ok {
			return "", false
		}
		values[i] = v
	}
	return strings.Join(values, keySep), true
}
