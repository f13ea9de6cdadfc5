package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osiDTDr/ai-contract-review/internal/review"
)

//go:embed review_rules.yaml
var defaultRules []byte

// RiskPattern flags a clause when any keyword occurs in the contract.
type RiskPattern struct {
	Name     string
	Keywords []string
	Severity review.Severity
	Issue    string
}

// Set is a parsed, validated rules file.
type Set struct {
	Compliance []review.Rule
	Risks      []RiskPattern
	Scoring    review.WeightedScorer
}

type fileRule struct {
	Name        string   `yaml:"name" validate:"required"`
	Keywords    []string `yaml:"keywords" validate:"dive,required"`
	Required    *bool    `yaml:"required"`
	Description string   `yaml:"description"`
}

type filePattern struct {
	Name     string   `yaml:"name" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"min=1,dive,required"`
	Severity string   `yaml:"severity" validate:"required,oneof=low medium high LOW MEDIUM HIGH Low Medium High"`
	Issue    string   `yaml:"issue"`
}

type fileScoring struct {
	High       *int `yaml:"high" validate:"omitempty,min=0"`
	Medium     *int `yaml:"medium" validate:"omitempty,min=0"`
	Low        *int `yaml:"low" validate:"omitempty,min=0"`
	Gap        *int `yaml:"gap" validate:"omitempty,min=0"`
	Unverified *int `yaml:"unverified" validate:"omitempty,min=0"`
	MaxPenalty *int `yaml:"max_penalty" validate:"omitempty,min=0"`
}

type file struct {
	ComplianceChecks []fileRule    `yaml:"compliance_checks" validate:"dive"`
	RiskPatterns     []filePattern `yaml:"risk_patterns" validate:"dive"`
	Scoring          *fileScoring  `yaml:"scoring"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the embedded rule set.
func Default() (*Set, error) {
	return Parse(defaultRules)
}

// Load reads a rules file; an empty path yields the embedded defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &review.ConfigurationError{Reason: fmt.Sprintf("reading rules file %s: %v", path, err)}
	}
	return Parse(data)
}

// Parse decodes and validates a rules document. Unknown keys are rejected so
// that typos do not silently drop a check. Every failure is a
// *review.ConfigurationError.
func Parse(data []byte) (*Set, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &review.ConfigurationError{Reason: fmt.Sprintf("parsing rules: %v", err)}
	}

	if err := validate.Struct(f); err != nil {
		return nil, &review.ConfigurationError{Reason: describe(err)}
	}

	set := &Set{Scoring: review.DefaultScorer()}
	for _, r := range f.ComplianceChecks {
		required := true
		if r.Required != nil {
			required = *r.Required
		}
		set.Compliance = append(set.Compliance, review.Rule{
			Name:        strings.TrimSpace(r.Name),
			Keywords:    r.Keywords,
			Required:    required,
			Description: r.Description,
		})
	}
	if err := review.ValidateRules(set.Compliance); err != nil {
		return nil, err
	}

	for _, p := range f.RiskPatterns {
		sev, err := review.ParseSeverity(p.Severity)
		if err != nil {
			return nil, &review.ConfigurationError{Reason: fmt.Sprintf("risk pattern %q: %v", p.Name, err)}
		}
		issue := p.Issue
		if issue == "" {
			issue = p.Name
		}
		set.Risks = append(set.Risks, RiskPattern{
			Name:     strings.TrimSpace(p.Name),
			Keywords: p.Keywords,
			Severity: sev,
			Issue:    issue,
		})
	}

	if s := f.Scoring; s != nil {
		override(&set.Scoring.High, s.High)
		override(&set.Scoring.Medium, s.Medium)
		override(&set.Scoring.Low, s.Low)
		override(&set.Scoring.Gap, s.Gap)
		override(&set.Scoring.Unverified, s.Unverified)
		override(&set.Scoring.MaxPenalty, s.MaxPenalty)
	}
	if err := set.Scoring.Validate(); err != nil {
		return nil, err
	}

	return set, nil
}

func override(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return "invalid rules: " + strings.Join(msgs, "; ")
}
