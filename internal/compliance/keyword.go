package compliance

import (
	"context"
	"strings"

	"github.com/osiDTDr/ai-contract-review/internal/review"
)

// KeywordChecker marks a rule satisfied when any of its keywords occurs in the
// text. A rule without keywords cannot be decided and is reported unverified.
type KeywordChecker struct{}

func NewKeywordChecker() *KeywordChecker {
	return &KeywordChecker{}
}

func (KeywordChecker) Check(_ context.Context, text string, rules []review.Rule) ([]string, error) {
	findings := make([]string, 0, len(rules))
	for _, r := range rules {
		findings = append(findings, review.FindingFor(r.Name, keywordVerdict(text, r.Keywords)))
	}
	return findings, nil
}

func keywordVerdict(text string, keywords []string) review.FindingStatus {
	if len(keywords) == 0 {
		return review.FindingUnverified
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return review.FindingSatisfied
		}
	}
	return review.FindingGap
}
