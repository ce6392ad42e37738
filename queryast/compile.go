package queryast

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/segmentix/pgsearchidx/engine"
)

var foldCase = cases.Fold()

// Compile walks a SearchQueryInput tree, type-checking field references
// against schema, and calls qb's methods to produce a single
// engine.Query. Keyword-field term values are case-folded so lookups
// are insensitive to casing the same way a tokenized text field would
// be after analysis.
func Compile(input SearchQueryInput, schema engine.Schema, qb engine.QueryBuilder) (engine.Query, error) {
	switch input.Kind {
	case KindAll:
		return qb.All(), nil

	case KindTerm:
		field, err := checkField(schema, input.Field)
		if err != nil {
			return nil, err
		}
		return qb.Term(input.Field, normalizeValue(field, input.Value)), nil

	case KindTermSet:
		field, err := checkField(schema, input.Field)
		if err != nil {
			return nil, err
		}
		values := make([]string, len(input.Terms))
		for i, v := range input.Terms {
			values[i] = normalizeValue(field, v)
		}
		return qb.TermSet(input.Field, values), nil

	case KindRange:
		field, err := checkField(schema, input.Field)
		if err != nil {
			return nil, err
		}
		if field.Type == engine.FieldText && field.Tokenized {
			return nil, fmt.Errorf("%w: range comparison on tokenized text field %q", ErrUnsupportedPredicate, input.Field)
		}
		lower, err := compileBound(input.Lower)
		if err != nil {
			return nil, err
		}
		upper, err := compileBound(input.Upper)
		if err != nil {
			return nil, err
		}
		return qb.Range(input.Field, lower, upper), nil

	case KindPhrase:
		if _, err := checkField(schema, input.Field); err != nil {
			return nil, err
		}
		return qb.Phrase(input.Field, input.Terms, input.Slop), nil

	case KindPhrasePrefix:
		if _, err := checkField(schema, input.Field); err != nil {
			return nil, err
		}
		return qb.Phrase(input.Field, input.Terms, 0), nil

	case KindFuzzyTerm:
		if _, err := checkField(schema, input.Field); err != nil {
			return nil, err
		}
		return qb.FuzzyTerm(input.Field, input.Value, input.Distance), nil

	case KindRegex:
		if _, err := checkField(schema, input.Field); err != nil {
			return nil, err
		}
		return qb.Regex(input.Field, input.Value), nil

	case KindExists:
		if _, err := checkField(schema, input.Field); err != nil {
			return nil, err
		}
		return qb.Exists(input.Field), nil

	case KindMatch:
		field, err := checkField(schema, input.Field)
		if err != nil {
			return nil, err
		}
		tokens := strings.Fields(normalizeValue(field, input.Value))
		if len(tokens) == 0 {
			return qb.Term(input.Field, normalizeValue(field, input.Value)), nil
		}
		for i, tok := range tokens {
			tokens[i] = regexp.QuoteMeta(tok)
		}
		// any whitespace-delimited token of value present in the field
		return qb.Regex(input.Field, `(?:^|\s)(?:`+strings.Join(tokens, "|")+`)(?:\s|$)`), nil

	case KindBoolean:
		must, err := compileAll(input.Must, schema, qb)
		if err != nil {
			return nil, err
		}
		should, err := compileAll(input.Should, schema, qb)
		if err != nil {
			return nil, err
		}
		mustNot, err := compileAll(input.MustNot, schema, qb)
		if err != nil {
			return nil, err
		}
		return qb.Boolean(must, should, mustNot), nil

	case KindScoreAdjusted:
		if input.Inner == nil {
			return nil, fmt.Errorf("%w: ScoreAdjusted with no inner query", ErrMalformedInput)
		}
		inner, err := Compile(*input.Inner, schema, qb)
		if err != nil {
			return nil, err
		}
		switch input.Adjust {
		case AdjustBoost:
			return qb.Boost(inner, input.Factor), nil
		case AdjustConst:
			return qb.Const(input.Factor), nil
		default:
			return nil, fmt.Errorf("%w: unknown score-adjust mode %d", ErrMalformedInput, input.Adjust)
		}

	case KindFielded:
		if input.Inner == nil {
			return nil, fmt.Errorf("%w: FieldedQuery with no inner query", ErrMalformedInput)
		}
		if _, err := checkField(schema, input.Field); err != nil {
			return nil, err
		}
		inner, err := Compile(*input.Inner, schema, qb)
		if err != nil {
			return nil, err
		}
		return qb.Fielded(input.Field, inner), nil

	default:
		return nil, fmt.Errorf("%w: kind %s", ErrMalformedInput, input.Kind)
	}
}

func compileAll(inputs []SearchQueryInput, schema engine.Schema, qb engine.QueryBuilder) ([]engine.Query, error) {
	out := make([]engine.Query, len(inputs))
	for i, in := range inputs {
		q, err := Compile(in, schema, qb)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func compileBound(b Bound) (engine.Bound, error) {
	if b.Unbounded {
		return engine.Bound{Unbounded: true}, nil
	}
	v, err := strconv.ParseFloat(b.Value, 64)
	if err != nil {
		return engine.Bound{}, fmt.Errorf("%w: range bound %q is not numeric: %v", ErrUnsupportedPredicate, b.Value, err)
	}
	return engine.Bound{Value: v, Inclusive: b.Inclusive}, nil
}

func checkField(schema engine.Schema, name string) (engine.Field, error) {
	f, ok := schema.Field(name)
	if !ok {
		return engine.Field{}, fmt.Errorf("%w: %q is not an indexed field", ErrUnknownField, name)
	}
	return f, nil
}

// normalizeValue case-folds values compared against keyword fields, so
// "Active" and "active" hit the same term. Tokenized text and numeric,
// datetime, and JSON fields are passed through unchanged.
func normalizeValue(field engine.Field, value string) string {
	if field.Type == engine.FieldKeyword {
		return foldCase.String(value)
	}
	return value
}
