package knowledge

import (
	"cmp"
	"slices"

	"github.com/osiDTDr/ai-contract-review/internal/review"
)

type hit struct {
	entry     int
	relevance float64
}

// rank orders hits by relevance, breaking ties by corpus order, drops those
// below minRelevance and keeps at most topK.
func rank(b *Base, hits []hit, topK int, minRelevance float64) []review.KnowledgeSnippet {
	slices.SortStableFunc(hits, func(a, c hit) int {
		if r := cmp.Compare(c.relevance, a.relevance); r != 0 {
			return r
		}
		return cmp.Compare(a.entry, c.entry)
	})

	out := []review.KnowledgeSnippet{}
	for _, h := range hits {
		if h.relevance < minRelevance || h.relevance <= 0 {
			continue
		}
		if topK > 0 && len(out) >= topK {
			break
		}
		e := b.entries[h.entry]
		out = append(out, review.KnowledgeSnippet{
			Content:   e.Content,
			Source:    e.Type,
			Category:  e.Category,
			Relevance: h.relevance,
		})
	}
	return out
}
