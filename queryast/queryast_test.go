package queryast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/segmentix/pgsearchidx/engine"
)

func testSchema() engine.Schema {
	return engine.NewSchema([]engine.Field{
		{Name: "title", Type: engine.FieldText, Tokenized: true},
		{Name: "status", Type: engine.FieldKeyword},
		{Name: "price", Type: engine.FieldNumeric, Fast: true},
		{Name: "tags", Type: engine.FieldJSON},
	})
}

func TestCompileTermMatchesCaseFoldedKeyword(t *testing.T) {
	schema := testSchema()
	q, err := Compile(Term("status", "Active", false), schema, engine.RefQueryBuilder{})
	require.NoError(t, err)

	doc := engine.Document{Stored: map[string][]byte{"status": []byte("active")}}
	require.True(t, q.Matches(doc))
}

func TestCompileRangeRejectsTokenizedTextField(t *testing.T) {
	schema := testSchema()
	_, err := Compile(Range("title", Unbounded, Bound{Value: "5", Inclusive: true}, false), schema, engine.RefQueryBuilder{})
	require.ErrorIs(t, err, ErrUnsupportedPredicate)
}

func TestCompileRangeAllowsNumericField(t *testing.T) {
	schema := testSchema()
	q, err := Compile(Range("price", Bound{Value: "10", Inclusive: true}, Bound{Value: "20", Inclusive: true}, false), schema, engine.RefQueryBuilder{})
	require.NoError(t, err)

	require.True(t, q.Matches(engine.Document{Fast: map[string]float64{"price": 15}}))
	require.True(t, q.Matches(engine.Document{Fast: map[string]float64{"price": 20}}), "inclusive upper bound admits the boundary value")
	require.False(t, q.Matches(engine.Document{Fast: map[string]float64{"price": 25}}))
}

func TestCompileRangeExclusiveBoundRejectsBoundaryValue(t *testing.T) {
	schema := testSchema()
	q, err := Compile(Range("price", Bound{Value: "10", Inclusive: false}, Unbounded, false), schema, engine.RefQueryBuilder{})
	require.NoError(t, err)

	require.False(t, q.Matches(engine.Document{Fast: map[string]float64{"price": 10}}), "exclusive lower bound rejects the boundary value")
	require.True(t, q.Matches(engine.Document{Fast: map[string]float64{"price": 10.01}}))
}

func TestExtractPushdownStrictComparisonExcludesBoundary(t *testing.T) {
	schema := testSchema()
	out, err := ExtractPushdown(Qual{Op: QualLt, Column: "price", Value: "10"}, schema)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.False(t, out.Upper.Inclusive, "QualLt must push down as a strict, non-inclusive upper bound")

	out, err = ExtractPushdown(Qual{Op: QualLe, Column: "price", Value: "10"}, schema)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.True(t, out.Upper.Inclusive, "QualLe must push down as an inclusive upper bound")

	out, err = ExtractPushdown(Qual{Op: QualGt, Column: "price", Value: "10"}, schema)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.False(t, out.Lower.Inclusive, "QualGt must push down as a strict, non-inclusive lower bound")

	out, err = ExtractPushdown(Qual{Op: QualGe, Column: "price", Value: "10"}, schema)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.True(t, out.Lower.Inclusive, "QualGe must push down as an inclusive lower bound")
}

func TestCompileUnknownFieldFails(t *testing.T) {
	schema := testSchema()
	_, err := Compile(Term("nope", "x", false), schema, engine.RefQueryBuilder{})
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestCompileBooleanAndBoost(t *testing.T) {
	schema := testSchema()
	input := BooleanOf(
		[]SearchQueryInput{Term("status", "active", false)},
		nil,
		[]SearchQueryInput{Term("status", "banned", false)},
	)
	boosted := WithBoost(input, 2.0)
	q, err := Compile(boosted, schema, engine.RefQueryBuilder{})
	require.NoError(t, err)

	doc := engine.Document{Stored: map[string][]byte{"status": []byte("active")}}
	require.True(t, q.Matches(doc))
	score, ok := q.Score(doc)
	require.True(t, ok)
	require.Greater(t, score, float32(0))
}

func TestCompileScoreAdjustedConst(t *testing.T) {
	schema := testSchema()
	q, err := Compile(WithConstScore(All(), 3.5), schema, engine.RefQueryBuilder{})
	require.NoError(t, err)

	score, ok := q.Score(engine.Document{})
	require.True(t, ok)
	require.Equal(t, float32(3.5), score)
}

func TestExtractPushdownMatchOperator(t *testing.T) {
	schema := testSchema()
	input := Term("status", "active", false)
	out, err := ExtractPushdown(Qual{Op: QualMatch, Query: &input}, schema)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, KindTerm, out.Kind)
}

func TestExtractPushdownAndCombinesPushableConjuncts(t *testing.T) {
	schema := testSchema()
	out, err := ExtractPushdown(Qual{
		Op: QualAnd,
		Children: []Qual{
			{Op: QualEq, Column: "status", Value: "active"},
			{Op: QualExpr, Column: "whatever"},
			{Op: QualGt, Column: "price", Value: "10"},
		},
	}, schema)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, KindBoolean, out.Kind)
	require.Len(t, out.Must, 2, "the unpushable QualExpr conjunct is dropped, leaving only the two pushable ones")
}

func TestExtractPushdownOrRequiresEveryBranchPushable(t *testing.T) {
	schema := testSchema()
	out, err := ExtractPushdown(Qual{
		Op: QualOr,
		Children: []Qual{
			{Op: QualEq, Column: "status", Value: "active"},
			{Op: QualExpr, Column: "whatever"},
		},
	}, schema)
	require.NoError(t, err)
	require.Nil(t, out, "a partially pushable Or can't be soundly narrowed and must fall back to host evaluation")
}

func TestExtractPushdownRejectsVolatilePredicate(t *testing.T) {
	schema := testSchema()
	out, err := ExtractPushdown(Qual{Op: QualEq, Column: "status", Value: "active", Volatile: true}, schema)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestExtractPushdownJSONBHasKey(t *testing.T) {
	schema := testSchema()
	out, err := ExtractPushdown(Qual{Op: QualJSONBHasKey, Column: "tags", Value: "urgent"}, schema)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, KindExists, out.Kind)
	require.Equal(t, "tags.urgent", out.Field)
}

func TestExtractPushdownNotWrapsMustNot(t *testing.T) {
	schema := testSchema()
	out, err := ExtractPushdown(Qual{
		Op:       QualNot,
		Children: []Qual{{Op: QualEq, Column: "status", Value: "banned"}},
	}, schema)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, KindBoolean, out.Kind)
	require.Len(t, out.MustNot, 1)
}

func TestExtractPushdownBetweenOnNumeric(t *testing.T) {
	schema := testSchema()
	out, err := ExtractPushdown(Qual{Op: QualBetween, Column: "price", Values: []string{"1", "9"}}, schema)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, KindRange, out.Kind)
}
