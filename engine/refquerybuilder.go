package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// RefQueryBuilder compiles query primitives into closures over Document,
// the same representation the reference engine's refReader already
// scores and filters against. It has no relation to any real tokenizer
// or scorer; it exists so queryast.Compile and the rest of the stack
// have something concrete to exercise without a Tantivy binding.
type RefQueryBuilder struct{}

type refQuery struct {
	match func(Document) bool
	score func(Document) (float32, bool)
}

func (q refQuery) Matches(doc Document) bool          { return q.match(doc) }
func (q refQuery) Score(doc Document) (float32, bool) { return q.score(doc) }
func noScore(Document) (float32, bool)                { return 0, false }

func constScore(v float32) func(Document) (float32, bool) {
	return func(Document) (float32, bool) { return v, true }
}

func fieldText(doc Document, field string) (string, bool) {
	if v, ok := doc.Stored[field]; ok {
		return string(v), true
	}
	if v, ok := doc.Fast[field]; ok {
		return strconv.FormatFloat(v, 'g', -1, 64), true
	}
	return "", false
}

func (RefQueryBuilder) All() Query {
	return refQuery{match: func(Document) bool { return true }, score: constScore(1)}
}

func (RefQueryBuilder) Term(field, value string) Query {
	return refQuery{
		match: func(doc Document) bool {
			v, ok := fieldText(doc, field)
			return ok && v == value
		},
		score: constScore(1),
	}
}

func (RefQueryBuilder) TermSet(field string, values []string) Query {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return refQuery{
		match: func(doc Document) bool {
			v, ok := fieldText(doc, field)
			if !ok {
				return false
			}
			_, in := set[v]
			return in
		},
		score: constScore(1),
	}
}

func (RefQueryBuilder) Range(field string, lower, upper Bound) Query {
	return refQuery{
		match: func(doc Document) bool {
			var n float64
			if v, ok := doc.Fast[field]; ok {
				n = v
			} else if s, ok := doc.Stored[field]; ok {
				parsed, err := strconv.ParseFloat(string(s), 64)
				if err != nil {
					return false
				}
				n = parsed
			} else {
				return false
			}
			if !lower.Unbounded {
				if lower.Inclusive && n < lower.Value {
					return false
				}
				if !lower.Inclusive && n <= lower.Value {
					return false
				}
			}
			if !upper.Unbounded {
				if upper.Inclusive && n > upper.Value {
					return false
				}
				if !upper.Inclusive && n >= upper.Value {
					return false
				}
			}
			return true
		},
		score: noScore,
	}
}

// Phrase checks that terms appear, in order, within field's stored
// text, ignoring slop: the reference engine does no real tokenization,
// so an exact-substring-of-joined-terms check stands in for proximity
// matching.
func (RefQueryBuilder) Phrase(field string, terms []string, slop int) Query {
	needle := strings.Join(terms, " ")
	return refQuery{
		match: func(doc Document) bool {
			v, ok := fieldText(doc, field)
			return ok && strings.Contains(v, needle)
		},
		score: constScore(1),
	}
}

func (RefQueryBuilder) FuzzyTerm(field, value string, distance int) Query {
	return refQuery{
		match: func(doc Document) bool {
			v, ok := fieldText(doc, field)
			return ok && levenshtein(v, value) <= distance
		},
		score: constScore(1),
	}
}

func (RefQueryBuilder) Regex(field, pattern string) Query {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return refQuery{match: func(Document) bool { return false }, score: noScore}
	}
	return refQuery{
		match: func(doc Document) bool {
			v, ok := fieldText(doc, field)
			return ok && re.MatchString(v)
		},
		score: constScore(1),
	}
}

func (RefQueryBuilder) Exists(field string) Query {
	return refQuery{
		match: func(doc Document) bool {
			if v, ok := doc.Stored[field]; ok {
				return len(v) > 0
			}
			_, ok := doc.Fast[field]
			return ok
		},
		score: noScore,
	}
}

func (RefQueryBuilder) Boolean(must, should, mustNot []Query) Query {
	return refQuery{
		match: func(doc Document) bool {
			for _, q := range must {
				if !q.Matches(doc) {
					return false
				}
			}
			for _, q := range mustNot {
				if q.Matches(doc) {
					return false
				}
			}
			if len(should) > 0 {
				anyMatch := false
				for _, q := range should {
					if q.Matches(doc) {
						anyMatch = true
						break
					}
				}
				if !anyMatch {
					return false
				}
			}
			return true
		},
		score: func(doc Document) (float32, bool) {
			var total float32
			var any bool
			for _, q := range append(append([]Query{}, must...), should...) {
				if s, ok := q.Score(doc); ok {
					total += s
					any = true
				}
			}
			return total, any
		},
	}
}

func (RefQueryBuilder) Boost(q Query, factor float32) Query {
	return refQuery{
		match: q.Matches,
		score: func(doc Document) (float32, bool) {
			s, ok := q.Score(doc)
			if !ok {
				return 0, false
			}
			return s * factor, true
		},
	}
}

func (RefQueryBuilder) Const(score float32) Query {
	return refQuery{match: func(Document) bool { return true }, score: constScore(score)}
}

// Fielded scopes q to a named field. The reference engine's Document is
// flat (no nested sub-documents), so this is a pass-through; a real
// engine with per-field postings would restrict matching to that
// field's own term dictionary.
func (RefQueryBuilder) Fielded(field string, q Query) Query {
	return q
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
