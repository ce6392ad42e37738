package queryast

import (
	"github.com/segmentix/pgsearchidx/engine"
)

// QualOp tags one node of a Qual, the Go-side stand-in for the host's
// extracted qualification tree. A planner that already knows how to
// walk its own WHERE clause hands ExtractPushdown an already-built Qual
// rather than this package parsing SQL text itself.
type QualOp int

const (
	// QualMatch is the @@@(anyelement, query_input) match operator:
	// Query already holds the caller-supplied SearchQueryInput.
	QualMatch QualOp = iota
	QualEq
	QualLt
	QualLe
	QualGt
	QualGe
	QualBetween
	QualAnyEq     // col = ANY(array)
	QualIsNotNull // col IS NOT NULL
	QualJSONBHasKey
	QualAnd
	QualOr
	QualNot
	// QualExpr is any predicate the extractor gives up on: a volatile
	// function, an outer-relation parameter, or an operator this
	// package doesn't recognize. Never pushed down.
	QualExpr
)

// Qual is one node of the host qualification tree.
type Qual struct {
	Op       QualOp
	Column   string
	Value    string
	Values   []string // Between: [lo, hi]; AnyEq: the array elements
	Query    *SearchQueryInput
	Children []Qual // And, Or, Not (Not uses Children[0])

	// Volatile marks a predicate with a volatile function call or a
	// reference to an outer-relation parameter; such predicates require
	// per-row runtime evaluation and are never pushed down regardless
	// of Op.
	Volatile bool
}

// ExtractPushdown walks q, synthesizing an equivalent SearchQueryInput
// for every pushable predicate. It returns nil if no part of q could be
// pushed. A non-nil result pushed down alongside the host's own
// re-check of the original qual (standard recheck-qual semantics) is
// always sound, so partial extraction of an And is safe even though it
// drops information; Or only pushes when every child pushes, since an
// incomplete Or would under-select rows the host never re-examines on
// the pushed branch.
func ExtractPushdown(q Qual, schema engine.Schema) (*SearchQueryInput, error) {
	if q.Volatile {
		return nil, nil
	}

	switch q.Op {
	case QualMatch:
		if q.Query == nil {
			return nil, ErrMalformedInput
		}
		return q.Query, nil

	case QualEq:
		field, ok := pushableField(schema, q.Column)
		if !ok {
			return nil, nil
		}
		out := Term(q.Column, q.Value, field.Type == engine.FieldDatetime)
		return &out, nil

	case QualLt, QualLe, QualGt, QualGe:
		field, ok := pushableField(schema, q.Column)
		if !ok || !rangeCompatible(field) {
			return nil, nil
		}
		out := rangeFromComparison(q.Op, q.Column, q.Value, field.Type == engine.FieldDatetime)
		return &out, nil

	case QualBetween:
		field, ok := pushableField(schema, q.Column)
		if !ok || !rangeCompatible(field) || len(q.Values) != 2 {
			return nil, nil
		}
		out := Range(q.Column, Bound{Value: q.Values[0], Inclusive: true}, Bound{Value: q.Values[1], Inclusive: true}, field.Type == engine.FieldDatetime)
		return &out, nil

	case QualAnyEq:
		if _, ok := pushableField(schema, q.Column); !ok {
			return nil, nil
		}
		out := TermSet(q.Column, q.Values)
		return &out, nil

	case QualIsNotNull:
		if _, ok := pushableField(schema, q.Column); !ok {
			return nil, nil
		}
		out := Exists(q.Column)
		return &out, nil

	case QualJSONBHasKey:
		field, ok := pushableField(schema, q.Column)
		if !ok || field.Type != engine.FieldJSON {
			return nil, nil
		}
		out := Exists(q.Column + "." + q.Value)
		return &out, nil

	case QualAnd:
		var must []SearchQueryInput
		for _, c := range q.Children {
			pushed, err := ExtractPushdown(c, schema)
			if err != nil {
				return nil, err
			}
			if pushed != nil {
				must = append(must, *pushed)
			}
		}
		if len(must) == 0 {
			return nil, nil
		}
		out := BooleanOf(must, nil, nil)
		return &out, nil

	case QualOr:
		should := make([]SearchQueryInput, 0, len(q.Children))
		for _, c := range q.Children {
			pushed, err := ExtractPushdown(c, schema)
			if err != nil {
				return nil, err
			}
			if pushed == nil {
				// one unpushable branch means the Or as a whole can't
				// be soundly narrowed: fall through to host evaluation.
				return nil, nil
			}
			should = append(should, *pushed)
		}
		out := BooleanOf(nil, should, nil)
		return &out, nil

	case QualNot:
		if len(q.Children) != 1 {
			return nil, ErrMalformedInput
		}
		pushed, err := ExtractPushdown(q.Children[0], schema)
		if err != nil {
			return nil, err
		}
		if pushed == nil {
			return nil, nil
		}
		out := BooleanOf(nil, nil, []SearchQueryInput{*pushed})
		return &out, nil

	case QualExpr:
		return nil, nil

	default:
		return nil, nil
	}
}

func pushableField(schema engine.Schema, column string) (engine.Field, bool) {
	return schema.Field(column)
}

// rangeCompatible rejects a tokenized text field (its token order
// doesn't correspond to the original value's lexical order) while
// allowing keyword, numeric, and datetime fields.
func rangeCompatible(f engine.Field) bool {
	return !(f.Type == engine.FieldText && f.Tokenized)
}

// rangeFromComparison distinguishes strict from non-strict comparisons
// via Bound.Inclusive: QualLt/QualGt exclude value itself, QualLe/QualGe
// include it, matching SQL's </<=/>/>= semantics exactly rather than
// collapsing both to the same inclusive bound.
func rangeFromComparison(op QualOp, column, value string, isDatetime bool) SearchQueryInput {
	switch op {
	case QualLt:
		return Range(column, Unbounded, Bound{Value: value, Inclusive: false}, isDatetime)
	case QualLe:
		return Range(column, Unbounded, Bound{Value: value, Inclusive: true}, isDatetime)
	case QualGt:
		return Range(column, Bound{Value: value, Inclusive: false}, Unbounded, isDatetime)
	default: // QualGe
		return Range(column, Bound{Value: value, Inclusive: true}, Unbounded, isDatetime)
	}
}
