package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/osiDTDr/ai-contract-review/common/llm"
	"github.com/osiDTDr/ai-contract-review/common/logger"
	"github.com/osiDTDr/ai-contract-review/internal/review"
)

const systemPrompt = `你是合同合规审查助手。针对给定的每一条审查要点，判断合同是否包含相应内容：
- present：合同明确包含；
- missing：合同未包含；
- unknown：无法从文本判断。
每条要点都必须返回一个结论，rule 字段原样返回要点名称。`

type llmVerdict struct {
	Rule     string `json:"rule"`
	Status   string `json:"status" jsonschema:"enum=present,enum=missing,enum=unknown"`
	Evidence string `json:"evidence" jsonschema:"description=支持结论的原文摘录，可为空"`
}

type llmVerdicts struct {
	Verdicts []llmVerdict `json:"verdicts"`
}

// LLMChecker asks a model for one verdict per rule in a single structured call.
type LLMChecker struct {
	client    llm.Client
	textLimit int
	maxTokens int
	schema    any
}

func NewLLMChecker(client llm.Client, textLimit, maxTokens int) *LLMChecker {
	return &LLMChecker{
		client:    client,
		textLimit: textLimit,
		maxTokens: maxTokens,
		schema:    llm.GenerateSchema[llmVerdicts](),
	}
}

func (c *LLMChecker) Check(ctx context.Context, text string, rules []review.Rule) ([]string, error) {
	if len(rules) == 0 {
		return []string{}, nil
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "review.compliance.llm"})

	var out llmVerdicts
	_, err := c.client.Chat(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildPrompt(text, rules, c.textLimit),
		SchemaName:   "compliance_verdicts",
		Schema:       c.schema,
		MaxTokens:    c.maxTokens,
		Temperature:  llm.Temp(0),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("compliance check: %w", err)
	}

	byRule := make(map[string]string, len(out.Verdicts))
	for _, v := range out.Verdicts {
		name := strings.TrimSpace(v.Rule)
		if _, seen := byRule[name]; !seen {
			byRule[name] = strings.ToLower(strings.TrimSpace(v.Status))
		}
	}

	findings := make([]string, 0, len(rules))
	for _, r := range rules {
		status, ok := byRule[r.Name]
		if !ok {
			slog.WarnContext(ctx, "model returned no verdict for rule", "rule", r.Name)
		}
		findings = append(findings, review.FindingFor(r.Name, verdictStatus(status)))
	}
	return findings, nil
}

func verdictStatus(s string) review.FindingStatus {
	switch s {
	case "present":
		return review.FindingSatisfied
	case "missing":
		return review.FindingGap
	default:
		return review.FindingUnverified
	}
}

func buildPrompt(text string, rules []review.Rule, limit int) string {
	var b strings.Builder
	b.WriteString("审查要点：\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "- %s", r.Name)
		if r.Description != "" {
			fmt.Fprintf(&b, "：%s", r.Description)
		}
		if len(r.Keywords) > 0 {
			fmt.Fprintf(&b, "（参考关键词：%s）", strings.Join(r.Keywords, "、"))
		}
		if !r.Required {
			b.WriteString("［可选］")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n合同内容：\n")
	if limit > 0 {
		text = logger.Truncate(text, limit)
	}
	b.WriteString(text)
	return b.String()
}
