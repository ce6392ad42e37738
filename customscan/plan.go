// Package customscan builds a search plan from pushdown-extracted quals
// and drives its execution as a Begin/Fetch/End/Rescan state machine,
// resolving each matched document's stored ctid back to a live heap row
// before it's returned.
package customscan

import (
	"github.com/segmentix/pgsearchidx/config"
	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/queryast"
)

// PathKey is a sort order the plan can satisfy without an extra sort
// node: either document score (optionally descending) or a fast field
// the index was created with a sort_by option for.
type PathKey struct {
	ByScore    bool
	FastField  string
	Descending bool
}

// Projection is the set of columns/derived values the plan must
// materialize per row.
type Projection struct {
	Ctid    bool
	Stored  []string
	Fast    []string
	Score   bool
	Snippet []SnippetSpec
}

// SnippetSpec requests a highlighted excerpt of Field around the terms
// the compiled query matched on it.
type SnippetSpec struct {
	Field        string
	MaxFragments int
}

// Plan is the output of planning: a compiled query shape plus enough
// cost/ordering information for the host planner to choose this scan
// over a sequential one.
type Plan struct {
	Query      queryast.SearchQueryInput
	Projection Projection
	PathKeys   []PathKey

	EstimatedMatches int64
	Cost             float64

	// Limit restricts how many candidates are requested from the
	// reader per Begin; 0 means unbounded. topn.Executor mutates a
	// copy of this field between growth rounds; PlanScan always
	// produces 0 (unbounded) since LIMIT is a topn-layer concern.
	Limit int
}

// PlanScan extracts a pushdown query from quals (ANDed together — quals
// is the conjunctive list the host's planner already split apart), and
// estimates a cost favoring this scan whenever any part of the WHERE
// clause pushed down. ok is false when nothing in quals is pushable, in
// which case no custom scan path should be offered for this qual set.
func PlanScan(quals []queryast.Qual, schema engine.Schema, opts config.Options, proj Projection, pathKeys []PathKey, estimatedMatches int64) (Plan, bool, error) {
	var root queryast.Qual
	if len(quals) == 1 {
		root = quals[0]
	} else {
		root = queryast.Qual{Op: queryast.QualAnd, Children: quals}
	}
	pushed, err := queryast.ExtractPushdown(root, schema)
	if err != nil {
		return Plan{}, false, err
	}
	if pushed == nil {
		return Plan{}, false, nil
	}

	cost := opts.PerTupleCost * float64(max64(estimatedMatches, 1))
	if proj.Score {
		cost *= 1.1
	}
	if len(proj.Snippet) > 0 {
		cost *= 1.25
	}

	return Plan{
		Query:            *pushed,
		Projection:       proj,
		PathKeys:         pathKeys,
		EstimatedMatches: estimatedMatches,
		Cost:             cost,
	}, true, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
