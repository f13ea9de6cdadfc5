package review

import (
	"strings"
)

// Rule is one compliance check: a named element the contract should contain.
type Rule struct {
	Name        string   `json:"name" yaml:"name"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords"`
	Required    bool     `json:"required" yaml:"required"`
	Description string   `json:"description,omitempty" yaml:"description"`
}

// ValidateRules rejects rule sets the checkers cannot answer one-to-one.
func ValidateRules(rules []Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return configErrorf("rule %d has an empty name", i)
		}
		if _, dup := seen[name]; dup {
			return configErrorf("duplicate rule name %q", name)
		}
		seen[name] = struct{}{}
		// Findings are classified by phrasing, so a name must not look like one.
		if strings.HasPrefix(name, gapPrefix) || strings.HasPrefix(name, strings.TrimSpace(unverifiedPrefix)) {
			return configErrorf("rule name %q must not start with %q or %q", name, gapPrefix, strings.TrimSpace(unverifiedPrefix))
		}
		for _, kw := range r.Keywords {
			if strings.TrimSpace(kw) == "" {
				return configErrorf("rule %q has an empty keyword", name)
			}
		}
	}
	return nil
}

const (
	satisfiedSuffix  = "完整"
	gapPrefix        = "缺少"
	unverifiedPrefix = "unable to verify: "
)

// Satisfied, Gap and Unverified are the only phrasings a checker may emit,
// one per rule.
func Satisfied(rule string) string  { return rule + satisfiedSuffix }
func Gap(rule string) string        { return gapPrefix + rule }
func Unverified(rule string) string { return unverifiedPrefix + rule }

type FindingStatus string

const (
	FindingSatisfied  FindingStatus = "satisfied"
	FindingGap        FindingStatus = "gap"
	FindingUnverified FindingStatus = "unverified"
	FindingUnknown    FindingStatus = "unknown"
)

func ClassifyFinding(finding string) FindingStatus {
	switch {
	case strings.HasPrefix(finding, unverifiedPrefix):
		return FindingUnverified
	case strings.HasPrefix(finding, gapPrefix):
		return FindingGap
	case strings.HasSuffix(finding, satisfiedSuffix):
		return FindingSatisfied
	default:
		return FindingUnknown
	}
}

// FindingFor returns the finding text for rule given a verdict.
func FindingFor(rule string, status FindingStatus) string {
	switch status {
	case FindingSatisfied:
		return Satisfied(rule)
	case FindingGap:
		return Gap(rule)
	default:
		return Unverified(rule)
	}
}
