package review

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	StageParse      = "parse"
	StageRetrieve   = "retrieve_knowledge"
	StageAnalyze    = "analyze_risks"
	StageCompliance = "check_compliance"
	StageScore      = "score"
	StageFinalize   = "finalize"
)

// Stages that may be listed in Options.DisabledStages.
var optionalStages = []string{StageRetrieve, StageCompliance}

type Retriever interface {
	Retrieve(ctx context.Context, text string) ([]KnowledgeSnippet, error)
}

type Analysis struct {
	Summary string
	Risks   []RiskItem
}

type Analyzer interface {
	Analyze(ctx context.Context, text string, knowledge []KnowledgeSnippet) (Analysis, error)
}

// Checker returns exactly one finding per rule, in rule order.
type Checker interface {
	Check(ctx context.Context, text string, rules []Rule) ([]string, error)
}

type Scorer interface {
	Score(risks []RiskItem, compliance []string) int
}

// Stage describes one pipeline step: the fields it may write, the fields its
// trace entry records, and a Run that never mutates the state it is given.
type Stage struct {
	Name     string
	Writes   []Field
	Snapshot []Field
	Run      func(ctx context.Context, st State) (Delta, error)
}

func parseStage() Stage {
	return Stage{
		Name:     StageParse,
		Writes:   []Field{FieldText},
		Snapshot: []Field{FieldText},
		Run: func(_ context.Context, st State) (Delta, error) {
			text := normalizeText(st.Text)
			return Delta{Text: &text}, nil
		},
	}
}

// normalizeText composes to NFC so the same clause extracted from different
// formats compares equal. NFKC is avoided because it rewrites full-width
// punctuation that Chinese contracts rely on.
func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func retrieveStage(r Retriever) Stage {
	return Stage{
		Name:     StageRetrieve,
		Writes:   []Field{FieldKnowledge},
		Snapshot: []Field{FieldKnowledge},
		Run: func(ctx context.Context, st State) (Delta, error) {
			snippets, err := r.Retrieve(ctx, st.Text)
			if err != nil {
				return Delta{}, err
			}
			return Delta{Knowledge: nonNil(snippets)}, nil
		},
	}
}

func analyzeStage(a Analyzer) Stage {
	return Stage{
		Name:     StageAnalyze,
		Writes:   []Field{FieldSummary, FieldRisks},
		Snapshot: []Field{FieldSummary, FieldRisks},
		Run: func(ctx context.Context, st State) (Delta, error) {
			out, err := a.Analyze(ctx, st.Text, st.Knowledge)
			if err != nil {
				return Delta{}, err
			}
			for i, r := range out.Risks {
				if !r.Severity.Valid() {
					return Delta{}, fmt.Errorf("risk %d: invalid severity %q", i, r.Severity)
				}
				if strings.TrimSpace(r.Issue) == "" {
					return Delta{}, fmt.Errorf("risk %d: empty issue", i)
				}
			}
			summary := out.Summary
			return Delta{Summary: &summary, Risks: nonNil(out.Risks)}, nil
		},
	}
}

func complianceStage(c Checker, rules []Rule) Stage {
	return Stage{
		Name:     StageCompliance,
		Writes:   []Field{FieldCompliance},
		Snapshot: []Field{FieldCompliance},
		Run: func(ctx context.Context, st State) (Delta, error) {
			findings, err := c.Check(ctx, st.Text, rules)
			if err != nil {
				return Delta{}, err
			}
			if len(findings) != len(rules) {
				return Delta{}, fmt.Errorf("checker returned %d findings for %d rules", len(findings), len(rules))
			}
			return Delta{Compliance: nonNil(findings)}, nil
		},
	}
}

func scoreStage(s Scorer) Stage {
	return Stage{
		Name:     StageScore,
		Writes:   []Field{FieldScore},
		Snapshot: []Field{FieldScore},
		Run: func(_ context.Context, st State) (Delta, error) {
			score := s.Score(st.Risks, st.Compliance)
			return Delta{Score: &score}, nil
		},
	}
}

func finalizeStage() Stage {
	return Stage{
		Name:     StageFinalize,
		Snapshot: []Field{FieldSummary, FieldRisks, FieldCompliance, FieldScore},
		Run: func(context.Context, State) (Delta, error) {
			return Delta{}, nil
		},
	}
}
