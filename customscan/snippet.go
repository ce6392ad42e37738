package customscan

import (
	"strings"

	"github.com/segmentix/pgsearchidx/queryast"
)

// snippetGenerator produces a highlighted excerpt of a stored field's
// text around the terms a query matched. There's no tokenizer or
// term-position index behind the reference engine to build a real
// snippet generator from, so this does a literal substring search for
// the query tree's own term values scoped to spec.Field (collected
// once, at construction) and wraps the first MaxFragments hits in
// <b>...</b>; good enough to exercise the projection surface without
// claiming real relevance highlighting.
type snippetGenerator struct {
	terms        []string
	maxFragments int
}

func newSnippetGenerator(q queryast.SearchQueryInput, spec SnippetSpec) *snippetGenerator {
	max := spec.MaxFragments
	if max <= 0 {
		max = 1
	}
	return &snippetGenerator{terms: collectTerms(q, spec.Field), maxFragments: max}
}

func (g *snippetGenerator) generate(text string) string {
	if len(g.terms) == 0 {
		return text
	}
	out := text
	fragments := 0
	for _, term := range g.terms {
		if term == "" || fragments >= g.maxFragments {
			break
		}
		idx := strings.Index(strings.ToLower(out), strings.ToLower(term))
		if idx < 0 {
			continue
		}
		out = out[:idx] + "<b>" + out[idx:idx+len(term)] + "</b>" + out[idx+len(term):]
		fragments++
	}
	return out
}

// collectTerms walks the uncompiled query tree for literal values that
// target field, recursing into Boolean/ScoreAdjusted/Fielded nodes.
func collectTerms(q queryast.SearchQueryInput, field string) []string {
	var out []string
	var walk func(queryast.SearchQueryInput)
	walk = func(n queryast.SearchQueryInput) {
		switch n.Kind {
		case queryast.KindTerm, queryast.KindMatch, queryast.KindFuzzyTerm:
			if n.Field == field {
				out = append(out, n.Value)
			}
		case queryast.KindTermSet:
			if n.Field == field {
				out = append(out, n.Terms...)
			}
		case queryast.KindPhrase, queryast.KindPhrasePrefix:
			if n.Field == field {
				out = append(out, n.Terms...)
			}
		case queryast.KindBoolean:
			for _, c := range n.Must {
				walk(c)
			}
			for _, c := range n.Should {
				walk(c)
			}
		case queryast.KindScoreAdjusted, queryast.KindFielded:
			if n.Inner != nil {
				walk(*n.Inner)
			}
		}
	}
	walk(q)
	return out
}
