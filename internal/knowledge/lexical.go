package knowledge

import (
	"context"
	"unicode"

	"github.com/osiDTDr/ai-contract-review/internal/review"
)

// LexicalRetriever ranks entries by the share of their character bigrams that
// also occur in the contract. Bigrams work for Chinese without a tokenizer.
type LexicalRetriever struct {
	base         *Base
	grams        []map[string]struct{}
	topK         int
	minRelevance float64
}

func NewLexicalRetriever(base *Base, topK int, minRelevance float64) *LexicalRetriever {
	grams := make([]map[string]struct{}, base.Len())
	for i, e := range base.entries {
		grams[i] = bigrams(e.Content)
	}
	return &LexicalRetriever{base: base, grams: grams, topK: topK, minRelevance: minRelevance}
}

func (r *LexicalRetriever) Retrieve(ctx context.Context, text string) ([]review.KnowledgeSnippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := bigrams(text)

	hits := make([]hit, 0, len(r.grams))
	for i, g := range r.grams {
		if len(g) == 0 {
			continue
		}
		shared := 0
		for gram := range g {
			if _, ok := query[gram]; ok {
				shared++
			}
		}
		hits = append(hits, hit{entry: i, relevance: float64(shared) / float64(len(g))})
	}
	return rank(r.base, hits, r.topK, r.minRelevance), nil
}

// bigrams collects adjacent rune pairs, ignoring punctuation and whitespace.
func bigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	var prev rune
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			prev = 0
			continue
		}
		if prev != 0 {
			out[string([]rune{prev, r})] = struct{}{}
		}
		prev = r
	}
	return out
}
