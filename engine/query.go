package engine

// Query is an opaque, engine-compiled predicate plus optional scorer.
// queryast.Compile walks a SearchQueryInput tree and calls QueryBuilder
// methods to produce one; callers never construct a Query directly.
type Query interface {
	// Matches reports whether doc satisfies the query.
	Matches(doc Document) bool
	// Score returns the relevance score for doc, or (0, false) if this
	// query contributes no scoring (e.g. a bare filter).
	Score(doc Document) (float32, bool)
}

// Bound is one side of a Range query: open, or closed at Value with
// Inclusive marking whether Value itself satisfies the bound.
// Inclusive is meaningless when Unbounded is set.
type Bound struct {
	Unbounded bool
	Value     float64
	Inclusive bool
}

// QueryBuilder constructs engine.Query values from the primitives
// queryast.SearchQueryInput variants need. Implementations are free to
// compile eagerly or lazily; the reference engine compiles eagerly into
// closures over Document.
type QueryBuilder interface {
	All() Query
	Term(field string, value string) Query
	TermSet(field string, values []string) Query
	Range(field string, lower, upper Bound) Query
	Phrase(field string, terms []string, slop int) Query
	FuzzyTerm(field, value string, distance int) Query
	Regex(field, pattern string) Query
	Exists(field string) Query
	Boolean(must, should, mustNot []Query) Query
	Boost(q Query, factor float32) Query
	Const(score float32) Query
	Fielded(field string, q Query) Query
}
