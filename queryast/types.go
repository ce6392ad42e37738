// Package queryast defines the tagged-sum query tree a planner hands to
// Compile, and the extraction logic that walks a host qualification tree
// synthesizing SearchQueryInput values for pushable predicates.
//
// Nodes carry a Kind tag plus the fields relevant to that kind, in the
// same spirit as hive/walker's CellType/CellPurpose tagging: one
// concrete struct type per kind rather than a polymorphic class
// hierarchy, dispatched on Kind in Compile and in ExtractPushdown.
package queryast

// Kind tags which variant of SearchQueryInput a node is.
type Kind uint8

const (
	KindAll Kind = iota
	KindTerm
	KindTermSet
	KindRange
	KindPhrase
	KindPhrasePrefix
	KindFuzzyTerm
	KindRegex
	KindExists
	KindMatch
	KindBoolean
	KindScoreAdjusted
	KindFielded
)

func (k Kind) String() string {
	switch k {
	case KindAll:
		return "All"
	case KindTerm:
		return "Term"
	case KindTermSet:
		return "TermSet"
	case KindRange:
		return "Range"
	case KindPhrase:
		return "Phrase"
	case KindPhrasePrefix:
		return "PhrasePrefix"
	case KindFuzzyTerm:
		return "FuzzyTerm"
	case KindRegex:
		return "Regex"
	case KindExists:
		return "Exists"
	case KindMatch:
		return "Match"
	case KindBoolean:
		return "Boolean"
	case KindScoreAdjusted:
		return "ScoreAdjusted"
	case KindFielded:
		return "Fielded"
	default:
		return "Unknown"
	}
}

// ScoreAdjustMode selects which of ScoreAdjusted's two payload shapes
// applies: Boost multiplies the inner query's score, Const replaces it.
type ScoreAdjustMode uint8

const (
	AdjustBoost ScoreAdjustMode = iota
	AdjustConst
)

// Bound is one side of a Range query: open, or closed at Value with
// Inclusive marking whether Value itself satisfies the bound (<=/>=)
// or is excluded by it (</>). Value is carried as text and parsed
// against the target field's type at Compile time, since the AST
// itself is field-type agnostic. Inclusive is meaningless when
// Unbounded is set.
type Bound struct {
	Unbounded bool
	Value     string
	Inclusive bool
}

// Unbounded is the open Bound, usable on either side of a Range.
var Unbounded = Bound{Unbounded: true}

// SearchQueryInput is one node of the tagged-sum query tree described in
// the query-ast component: All, Term, TermSet, Range, Phrase,
// PhrasePrefix, FuzzyTerm, Regex, Exists, Match, Boolean, ScoreAdjusted,
// FieldedQuery. Every field is populated according to Kind; fields not
// meaningful for a given Kind are left zero.
type SearchQueryInput struct {
	Kind Kind

	// Term, TermSet, Phrase, PhrasePrefix, FuzzyTerm, Regex, Exists, Match
	Field      string
	Value      string
	Terms      []string
	IsDatetime bool

	// Range
	Lower Bound
	Upper Bound

	// Phrase
	Slop int

	// FuzzyTerm
	Distance int

	// Boolean
	Must    []SearchQueryInput
	Should  []SearchQueryInput
	MustNot []SearchQueryInput

	// ScoreAdjusted
	Inner  *SearchQueryInput
	Adjust ScoreAdjustMode
	Factor float32

	// FieldedQuery reuses Field above; Inner holds the wrapped query.
}

// All matches every document.
func All() SearchQueryInput { return SearchQueryInput{Kind: KindAll} }

// Term matches an exact field/value pair.
func Term(field, value string, isDatetime bool) SearchQueryInput {
	return SearchQueryInput{Kind: KindTerm, Field: field, Value: value, IsDatetime: isDatetime}
}

// TermSet matches any of terms on field, equivalent to SQL col = ANY(array).
func TermSet(field string, terms []string) SearchQueryInput {
	return SearchQueryInput{Kind: KindTermSet, Field: field, Terms: terms}
}

// Range matches field between lower and upper (either side may be Unbounded).
func Range(field string, lower, upper Bound, isDatetime bool) SearchQueryInput {
	return SearchQueryInput{Kind: KindRange, Field: field, Lower: lower, Upper: upper, IsDatetime: isDatetime}
}

// Phrase matches terms in sequence on field, allowing up to slop
// transpositions/gaps.
func Phrase(field string, terms []string, slop int) SearchQueryInput {
	return SearchQueryInput{Kind: KindPhrase, Field: field, Terms: terms, Slop: slop}
}

// PhrasePrefix matches terms in sequence with the final term treated as a prefix.
func PhrasePrefix(field string, terms []string) SearchQueryInput {
	return SearchQueryInput{Kind: KindPhrasePrefix, Field: field, Terms: terms}
}

// FuzzyTerm matches value on field within an edit distance of distance.
func FuzzyTerm(field, value string, distance int) SearchQueryInput {
	return SearchQueryInput{Kind: KindFuzzyTerm, Field: field, Value: value, Distance: distance}
}

// Regex matches field against an unanchored regular expression.
func Regex(field, pattern string) SearchQueryInput {
	return SearchQueryInput{Kind: KindRegex, Field: field, Value: pattern}
}

// Exists matches documents that have any value for field, the
// SearchQueryInput counterpart of col IS NOT NULL.
func Exists(field string) SearchQueryInput {
	return SearchQueryInput{Kind: KindExists, Field: field}
}

// Match is a tokenized, scored full-text match of value against field
// (any token present, OR semantics), distinct from Term's exact match.
func Match(field, value string) SearchQueryInput {
	return SearchQueryInput{Kind: KindMatch, Field: field, Value: value}
}

// Boolean combines sub-queries: must (AND), should (OR, at least one if
// must is empty), must_not (AND NOT).
func BooleanOf(must, should, mustNot []SearchQueryInput) SearchQueryInput {
	return SearchQueryInput{Kind: KindBoolean, Must: must, Should: should, MustNot: mustNot}
}

// WithBoost multiplies q's score by factor.
func WithBoost(q SearchQueryInput, factor float32) SearchQueryInput {
	return SearchQueryInput{Kind: KindScoreAdjusted, Inner: &q, Adjust: AdjustBoost, Factor: factor}
}

// WithConstScore replaces q's score with a constant, factor, discarding
// whatever scoring q would otherwise contribute.
func WithConstScore(q SearchQueryInput, factor float32) SearchQueryInput {
	return SearchQueryInput{Kind: KindScoreAdjusted, Inner: &q, Adjust: AdjustConst, Factor: factor}
}

// Fielded scopes q to matching only within field, for query kinds (like
// Boolean) that don't otherwise carry a field of their own.
func Fielded(field string, q SearchQueryInput) SearchQueryInput {
	return SearchQueryInput{Kind: KindFielded, Field: field, Inner: &q}
}
