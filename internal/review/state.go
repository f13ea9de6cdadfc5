package review

import (
	"fmt"
	"slices"
	"strings"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// ParseSeverity accepts any casing and surrounding whitespace.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

type RiskItem struct {
	Clause   string   `json:"clause"`
	Issue    string   `json:"issue"`
	Severity Severity `json:"severity"`
}

type KnowledgeSnippet struct {
	Content   string  `json:"content"`
	Source    string  `json:"source,omitempty"`
	Category  string  `json:"category,omitempty"`
	Relevance float64 `json:"relevance,omitempty"`
}

// Field names one slot of State. The string value is the JSON key used in
// trace snapshots.
type Field string

const (
	FieldText       Field = "text"
	FieldSummary    Field = "summary"
	FieldRisks      Field = "risks"
	FieldCompliance Field = "compliance"
	FieldKnowledge  Field = "knowledge_context"
	FieldScore      Field = "score"
)

// State is the per-request record threaded through the pipeline. Stages see a
// clone and describe their changes as a Delta; only the orchestrator writes it.
type State struct {
	Text       string             `json:"text"`
	Summary    string             `json:"summary"`
	Risks      []RiskItem         `json:"risks"`
	Compliance []string           `json:"compliance"`
	Knowledge  []KnowledgeSnippet `json:"knowledge_context"`
	Score      *int               `json:"score"`

	textSet      bool
	knowledgeSet bool
}

func (s State) Clone() State {
	out := s
	out.Risks = slices.Clone(s.Risks)
	out.Compliance = slices.Clone(s.Compliance)
	out.Knowledge = slices.Clone(s.Knowledge)
	if s.Score != nil {
		v := *s.Score
		out.Score = &v
	}
	return out
}

// value returns a detached copy of one field, suitable for a trace snapshot.
func (s State) value(f Field) any {
	switch f {
	case FieldText:
		return s.Text
	case FieldSummary:
		return s.Summary
	case FieldRisks:
		return nonNil(slices.Clone(s.Risks))
	case FieldCompliance:
		return nonNil(slices.Clone(s.Compliance))
	case FieldKnowledge:
		return nonNil(slices.Clone(s.Knowledge))
	case FieldScore:
		if s.Score == nil {
			return nil
		}
		return *s.Score
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Delta is the change a stage asks for. A nil field is untouched; Risks and
// Compliance are appended, the others are assigned.
type Delta struct {
	Text       *string
	Summary    *string
	Risks      []RiskItem
	Compliance []string
	Knowledge  []KnowledgeSnippet
	Score      *int
}

func (d Delta) touched() []Field {
	var fields []Field
	if d.Text != nil {
		fields = append(fields, FieldText)
	}
	if d.Summary != nil {
		fields = append(fields, FieldSummary)
	}
	if d.Risks != nil {
		fields = append(fields, FieldRisks)
	}
	if d.Compliance != nil {
		fields = append(fields, FieldCompliance)
	}
	if d.Knowledge != nil {
		fields = append(fields, FieldKnowledge)
	}
	if d.Score != nil {
		fields = append(fields, FieldScore)
	}
	return fields
}

// apply validates d against the stage's write set and the field disciplines,
// then mutates s. On error s is left unchanged.
func (s *State) apply(stage string, allowed []Field, d Delta) error {
	for _, f := range d.touched() {
		if !slices.Contains(allowed, f) {
			return &InvariantViolation{Stage: stage, Field: f, Reason: "stage is not allowed to write this field"}
		}
	}
	if d.Text != nil && s.textSet {
		return &InvariantViolation{Stage: stage, Field: FieldText, Reason: "text is set once"}
	}
	if d.Knowledge != nil && s.knowledgeSet {
		return &InvariantViolation{Stage: stage, Field: FieldKnowledge, Reason: "knowledge context is set once"}
	}
	if d.Score != nil {
		if s.Score != nil {
			return &InvariantViolation{Stage: stage, Field: FieldScore, Reason: "score is set once"}
		}
		if *d.Score < MinScore || *d.Score > MaxScore {
			return &InvariantViolation{Stage: stage, Field: FieldScore, Reason: fmt.Sprintf("score %d outside [%d,%d]", *d.Score, MinScore, MaxScore)}
		}
	}

	if d.Text != nil {
		s.Text = *d.Text
		s.textSet = true
	}
	if d.Summary != nil {
		s.Summary = *d.Summary
	}
	if d.Risks != nil {
		s.Risks = append(s.Risks, d.Risks...)
	}
	if d.Compliance != nil {
		s.Compliance = append(s.Compliance, d.Compliance...)
	}
	if d.Knowledge != nil {
		s.Knowledge = slices.Clone(d.Knowledge)
		s.knowledgeSet = true
	}
	if d.Score != nil {
		v := *d.Score
		s.Score = &v
	}
	return nil
}
