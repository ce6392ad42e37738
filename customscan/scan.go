package customscan

import (
	"context"
	"fmt"

	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/mvcc"
	"github.com/segmentix/pgsearchidx/queryast"
	"github.com/segmentix/pgsearchidx/searchio"
)

// ctidField is the reserved stored-field name an indexed document's
// origin heap row is recorded under.
const ctidField = "ctid"

// Row is one materialized result: the heap ctid a caller should
// re-fetch (or that already carries enough of the row via Stored/Fast
// projection), plus whatever Plan.Projection asked for.
type Row struct {
	Ctid     host.Ctid
	Score    *float32
	Stored   map[string][]byte
	Fast     map[string]float64
	Snippets map[string]string
}

// needsScores reports whether scoring must be requested from the
// reader, either because it's projected directly or because ordering
// depends on it.
func (p Plan) needsScores() bool {
	if p.Projection.Score {
		return true
	}
	for _, pk := range p.PathKeys {
		if pk.ByScore {
			return true
		}
	}
	return false
}

func (p Plan) fastFieldOrder() (field string, desc bool, ok bool) {
	for _, pk := range p.PathKeys {
		if pk.FastField != "" {
			return pk.FastField, pk.Descending, true
		}
	}
	return "", false, false
}

// ScanState drives one scan of Plan against idx, following the
// Begin/Fetch/End/Rescan lifecycle a custom scan's executor callbacks
// map onto directly.
type ScanState struct {
	idx   engine.Index
	cache *mvcc.SegmentMetaCache
	qb    engine.QueryBuilder
	heap  host.HeapVisibility
	plan  Plan

	currentXid host.Xid
	snap       host.Snapshot

	reader   *searchio.Reader
	it       engine.ResultIterator
	snippets map[string]*snippetGenerator

	found, scanned int
}

// NewScanState builds a ScanState; Begin must be called before Fetch.
func NewScanState(idx engine.Index, cache *mvcc.SegmentMetaCache, qb engine.QueryBuilder, heap host.HeapVisibility, plan Plan) *ScanState {
	return &ScanState{idx: idx, cache: cache, qb: qb, heap: heap, plan: plan}
}

// Begin compiles the plan's query, opens a reader in snapshot mode
// restricted to currentXid/snap, and prepares any requested snippet
// generators. It does not reparse quals — Rescan calls this again with
// the same plan.
func (s *ScanState) Begin(ctx context.Context, currentXid host.Xid, snap host.Snapshot) error {
	s.currentXid = currentXid
	s.snap = snap
	s.found, s.scanned = 0, 0

	compiled, err := compileQuery(s.plan, s.idx.Schema(), s.qb)
	if err != nil {
		return err
	}

	order, orderDesc, _ := s.plan.fastFieldOrder()
	mode := mvcc.SnapshotMode{CurrentXid: currentXid, Snap: snap}
	reader, err := searchio.OpenReader(ctx, s.idx, s.cache, mode, compiled, s.plan.needsScores(), s.plan.Limit, 0, order, orderDesc)
	if err != nil {
		return err
	}
	s.reader = reader

	it, err := reader.Search(ctx)
	if err != nil {
		_ = reader.Close(ctx)
		return err
	}
	s.it = it

	s.snippets = make(map[string]*snippetGenerator, len(s.plan.Projection.Snippet))
	for _, spec := range s.plan.Projection.Snippet {
		s.snippets[spec.Field] = newSnippetGenerator(s.plan.Query, spec)
	}
	return nil
}

// Fetch pulls the next visible row, skipping over matches whose ctid
// resolves to no-longer-visible heap tuples (stale index entries left
// by an UPDATE or DELETE the index hasn't been vacuumed for yet).
func (s *ScanState) Fetch(ctx context.Context) (Row, bool, error) {
	if s.it == nil {
		return Row{}, false, fmt.Errorf("customscan: Fetch called before Begin")
	}
	for {
		scored, ok, err := s.it.Next(ctx)
		if err != nil {
			return Row{}, false, err
		}
		if !ok {
			return Row{}, false, nil
		}
		s.scanned++

		rawCtid, present, err := s.reader.StoredField(ctx, scored.Addr, ctidField)
		if err != nil {
			return Row{}, false, err
		}
		if !present {
			continue
		}
		stale, ok := host.DecodeCtid(rawCtid)
		if !ok {
			continue
		}
		current, visible := s.heap.Resolve(stale, s.snap)
		if !visible {
			continue
		}

		row := Row{Ctid: current, Score: scored.Score}
		if len(s.plan.Projection.Stored) > 0 {
			row.Stored = make(map[string][]byte, len(s.plan.Projection.Stored))
			for _, field := range s.plan.Projection.Stored {
				v, ok, err := s.reader.StoredField(ctx, scored.Addr, field)
				if err != nil {
					return Row{}, false, err
				}
				if ok {
					row.Stored[field] = v
				}
			}
		}
		if len(s.plan.Projection.Fast) > 0 {
			row.Fast = make(map[string]float64, len(s.plan.Projection.Fast))
			for _, field := range s.plan.Projection.Fast {
				v, ok, err := s.reader.FastField(ctx, scored.Addr, field)
				if err != nil {
					return Row{}, false, err
				}
				if ok {
					row.Fast[field] = v
				}
			}
		}
		if len(s.snippets) > 0 {
			row.Snippets = make(map[string]string, len(s.snippets))
			for field, gen := range s.snippets {
				text, ok, err := s.reader.StoredField(ctx, scored.Addr, field)
				if err != nil {
					return Row{}, false, err
				}
				if ok {
					row.Snippets[field] = gen.generate(string(text))
				}
			}
		}

		s.found++
		return row, true, nil
	}
}

// Found is the number of rows Fetch has returned since the last Begin.
func (s *ScanState) Found() int { return s.found }

// Scanned is the number of raw (score, doc_address) pairs the engine
// iterator has produced since the last Begin, including rows dropped
// by the heap-visibility check. topn.Executor compares this against
// the requested limit to tell "engine exhausted" from "engine has
// more".
func (s *ScanState) Scanned() int { return s.scanned }

// End releases the reader and iterator. ScanState is not reusable after
// End except through Rescan.
func (s *ScanState) End(ctx context.Context) error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close(ctx)
	s.reader, s.it = nil, nil
	return err
}

// Rescan drops the current iterator and repeats Begin with the same
// plan, without reparsing quals.
func (s *ScanState) Rescan(ctx context.Context, currentXid host.Xid, snap host.Snapshot) error {
	if err := s.End(ctx); err != nil {
		return err
	}
	return s.Begin(ctx, currentXid, snap)
}

func compileQuery(plan Plan, schema engine.Schema, qb engine.QueryBuilder) (engine.Query, error) {
	return queryast.Compile(plan.Query, schema, qb)
}
