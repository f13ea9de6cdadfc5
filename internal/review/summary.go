package review

import (
	"fmt"
	"io"
	"strings"

	"github.com/osiDTDr/ai-contract-review/common/logger"
)

type TraceSummary struct {
	TotalSteps    int      `json:"total_steps"`
	NodesExecuted []string `json:"nodes_executed"`
	Skipped       []string `json:"skipped,omitempty"`
	FailedStage   string   `json:"failed_stage,omitempty"`
	DurationMs    int64    `json:"duration_ms"`
}

func Summarize(trace []TraceEntry) TraceSummary {
	s := TraceSummary{TotalSteps: len(trace), NodesExecuted: []string{}}
	for _, e := range trace {
		s.DurationMs += e.DurationMs
		switch e.Status {
		case StatusSkipped:
			s.Skipped = append(s.Skipped, e.StageName)
		case StatusFailed:
			s.FailedStage = e.StageName
			s.NodesExecuted = append(s.NodesExecuted, e.StageName)
		default:
			s.NodesExecuted = append(s.NodesExecuted, e.StageName)
		}
	}
	return s
}

const renderTextRunes = 120

// RenderText writes a step-by-step, human-readable view of a trace.
func RenderText(w io.Writer, trace []TraceEntry) error {
	var b strings.Builder
	for i, e := range trace {
		fmt.Fprintf(&b, "Step %d: %s [%s, %dms]\n", i+1, e.StageName, e.Status, e.DurationMs)
		if e.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", e.Error)
		}
		for _, f := range []Field{FieldText, FieldKnowledge, FieldSummary, FieldRisks, FieldCompliance, FieldScore} {
			v, ok := e.Snapshot[f]
			if !ok {
				continue
			}
			renderField(&b, f, v)
		}
	}

	sum := Summarize(trace)
	fmt.Fprintf(&b, "Total steps: %d, executed: %s", sum.TotalSteps, strings.Join(sum.NodesExecuted, " -> "))
	if sum.FailedStage != "" {
		fmt.Fprintf(&b, ", failed at: %s", sum.FailedStage)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func renderField(b *strings.Builder, f Field, v any) {
	switch t := v.(type) {
	case string:
		fmt.Fprintf(b, "  %s: %s\n", f, logger.Truncate(oneLine(t), renderTextRunes))
	case []RiskItem:
		fmt.Fprintf(b, "  %s: %d\n", f, len(t))
		for _, r := range t {
			fmt.Fprintf(b, "    - [%s] %s: %s\n", r.Severity, logger.Truncate(oneLine(r.Clause), 60), r.Issue)
		}
	case []string:
		fmt.Fprintf(b, "  %s:\n", f)
		for _, s := range t {
			fmt.Fprintf(b, "    - %s\n", s)
		}
	case []KnowledgeSnippet:
		fmt.Fprintf(b, "  %s: %d snippets\n", f, len(t))
		for _, k := range t {
			fmt.Fprintf(b, "    - (%.2f) %s\n", k.Relevance, logger.Truncate(oneLine(k.Content), 60))
		}
	case nil:
		fmt.Fprintf(b, "  %s: -\n", f)
	default:
		fmt.Fprintf(b, "  %s: %v\n", f, t)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
