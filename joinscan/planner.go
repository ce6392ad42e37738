// Package joinscan plans and executes a two-relation join where one or
// both sides carry a pushdown-compatible @@@ predicate: the matching
// side(s) run as a customscan.ScanState driver, the other side is
// materialized into an in-memory hash table and probed per driving row.
package joinscan

import (
	"github.com/segmentix/pgsearchidx/config"
	"github.com/segmentix/pgsearchidx/customscan"
	"github.com/segmentix/pgsearchidx/engine"
	"github.com/segmentix/pgsearchidx/queryast"
)

// JoinSide names which relation of the pair a Candidate drives with a
// search scan.
type JoinSide int

const (
	SideOuter JoinSide = iota
	SideInner
)

// JoinKey is one equi-join column pair with a hash-joinable equality
// operator; multiple entries model a multi-column join key.
type JoinKey struct {
	OuterColumn string
	InnerColumn string
}

// RelSide describes one side of a candidate join as the planner needs
// it: whether it's itself a join result (disqualifying — we don't
// recurse into multi-relation sides), its restriction quals, its
// schema, and its estimated row count (used to pick which side to hash
// in the bilateral case).
type RelSide struct {
	IsJoinResult  bool
	Quals         []queryast.Qual
	Schema        engine.Schema
	EstimatedRows int64
}

// PlanRequest is everything Planner.Plan needs to decide whether a
// custom join path applies.
type PlanRequest struct {
	Outer, Inner         RelSide
	Keys                 []JoinKey
	Options              config.Options
	OrderByScoreOnDriver bool
	Limit                int
}

// Candidate is a proposed custom join path: which side drives the scan,
// the compiled plan for that scan, and the join columns (in Keys order)
// that the probe side must be keyed by.
type Candidate struct {
	DrivingSide  JoinSide
	DriverPlan   customscan.Plan
	DriverKeys   []string
	ProbeKeys    []string
	Keys         []JoinKey
	UseTopN      bool
	Limit        int
}

// Planner decides whether a pair of relation sides and an equi-join
// qualify for a custom join path, same restrictions as an ordinary
// Postgres custom join path: exactly one search-compatible side (or
// both, connected by AND, in which case the optimizer hashes the
// smaller-estimated side), a real equi-join with hash-joinable
// operators, and neither side itself being a join result.
type Planner struct{}

// Plan returns (candidate, true, nil) when req qualifies for a custom
// join path, or (Candidate{}, false, nil) when it doesn't — the host's
// regular join planner takes over in that case, exactly as it would for
// any other rejected custom path.
func (Planner) Plan(req PlanRequest) (Candidate, bool, error) {
	if req.Outer.IsJoinResult || req.Inner.IsJoinResult {
		return Candidate{}, false, nil
	}
	if len(req.Keys) == 0 || !req.Options.EnableCustomScan {
		return Candidate{}, false, nil
	}

	outerKeys, innerKeys := splitKeys(req.Keys)

	outerPlan, outerOK, err := customscan.PlanScan(
		req.Outer.Quals, req.Outer.Schema, req.Options,
		customscan.Projection{Ctid: true, Stored: outerKeys}, nil, req.Outer.EstimatedRows,
	)
	if err != nil {
		return Candidate{}, false, err
	}
	innerPlan, innerOK, err := customscan.PlanScan(
		req.Inner.Quals, req.Inner.Schema, req.Options,
		customscan.Projection{Ctid: true, Stored: innerKeys}, nil, req.Inner.EstimatedRows,
	)
	if err != nil {
		return Candidate{}, false, err
	}

	if !outerOK && !innerOK {
		return Candidate{}, false, nil
	}

	driveOuter := outerOK
	if outerOK && innerOK && req.Inner.EstimatedRows < req.Outer.EstimatedRows {
		driveOuter = false
	}

	cand := Candidate{Keys: req.Keys}
	if driveOuter {
		cand.DrivingSide = SideOuter
		cand.DriverPlan = outerPlan
		cand.DriverKeys = outerKeys
		cand.ProbeKeys = innerKeys
	} else {
		cand.DrivingSide = SideInner
		cand.DriverPlan = innerPlan
		cand.DriverKeys = innerKeys
		cand.ProbeKeys = outerKeys
	}

	if req.OrderByScoreOnDriver && req.Limit > 0 {
		cand.DriverPlan.Projection.Score = true
		cand.DriverPlan.PathKeys = append(cand.DriverPlan.PathKeys, customscan.PathKey{ByScore: true})
		cand.DriverPlan.Limit = req.Limit
		cand.UseTopN = true
		cand.Limit = req.Limit
	}

	return cand, true, nil
}

func splitKeys(keys []JoinKey) (outer, inner []string) {
	outer = make([]string, len(keys))
	inner = make([]string, len(keys))
	for i, k := range keys {
		outer[i] = k.OuterColumn
		inner[i] = k.InnerColumn
	}
	return outer, inner
}
