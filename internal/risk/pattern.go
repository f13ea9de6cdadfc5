package risk

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/osiDTDr/ai-contract-review/internal/review"
	"github.com/osiDTDr/ai-contract-review/internal/rules"
)

const defaultSummaryRunes = 200

// PatternAnalyzer flags risks by keyword patterns and summarizes extractively.
// It needs no external service and is the default analyzer.
type PatternAnalyzer struct {
	patterns     []rules.RiskPattern
	summaryRunes int
}

func NewPatternAnalyzer(patterns []rules.RiskPattern) *PatternAnalyzer {
	return &PatternAnalyzer{patterns: patterns, summaryRunes: defaultSummaryRunes}
}

// Analyze emits one risk per matching pattern, in pattern order. The clause is
// the sentence around the earliest keyword hit.
func (a *PatternAnalyzer) Analyze(ctx context.Context, text string, _ []review.KnowledgeSnippet) (review.Analysis, error) {
	risks := []review.RiskItem{}
	for _, p := range a.patterns {
		pos, kw := firstHit(text, p.Keywords)
		if pos < 0 {
			continue
		}
		risks = append(risks, review.RiskItem{
			Clause:   sentenceAt(text, pos, len(kw)),
			Issue:    p.Issue,
			Severity: p.Severity,
		})
	}

	slog.DebugContext(ctx, "pattern analysis completed",
		"patterns", len(a.patterns),
		"risks", len(risks))

	return review.Analysis{Summary: Summarize(text, a.summaryRunes), Risks: risks}, nil
}

func firstHit(text string, keywords []string) (int, string) {
	best, hit := -1, ""
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if i := strings.Index(text, kw); i >= 0 && (best < 0 || i < best) {
			best, hit = i, kw
		}
	}
	return best, hit
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '!', '?', ';', '\n':
		return true
	}
	return false
}

// sentenceAt returns the sentence containing text[pos:pos+n], without its
// terminator.
func sentenceAt(text string, pos, n int) string {
	start := 0
	for i := pos; i > 0; {
		r, size := utf8.DecodeLastRuneInString(text[:i])
		if isSentenceEnd(r) {
			start = i
			break
		}
		i -= size
	}

	end := len(text)
	for i := pos + n; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if isSentenceEnd(r) {
			end = i
			break
		}
		i += size
	}
	return strings.TrimSpace(text[start:end])
}

// Summarize takes leading sentences up to maxRunes. A first sentence longer
// than the budget is cut.
func Summarize(text string, maxRunes int) string {
	var b strings.Builder
	runes := 0
	sentence := strings.Builder{}
	flush := func() bool {
		s := strings.TrimSpace(sentence.String())
		sentence.Reset()
		if s == "" {
			return true
		}
		n := utf8.RuneCountInString(s)
		if runes+n > maxRunes {
			if runes == 0 {
				b.WriteString(string([]rune(s)[:maxRunes]))
			}
			return false
		}
		b.WriteString(s)
		runes += n
		return true
	}

	for _, r := range text {
		if r == '\n' {
			if !flush() {
				return b.String()
			}
			continue
		}
		sentence.WriteRune(r)
		if isSentenceEnd(r) && !flush() {
			return b.String()
		}
	}
	flush()
	return b.String()
}
