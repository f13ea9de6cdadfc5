package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/osiDTDr/ai-contract-review/common/llm"
	"github.com/osiDTDr/ai-contract-review/common/logger"
	"github.com/osiDTDr/ai-contract-review/internal/review"
)

const systemPrompt = `你是一名资深合同审查律师。阅读合同全文并：
1. 用不超过200字概括合同的主体、标的和主要权利义务；
2. 找出存在法律风险的条款。clause 为原文摘录，issue 说明风险所在。

严重程度：
- high：权利义务明显不对等、条款可能无效或无法执行；
- medium：条款含糊、缺漏，履行中容易产生争议；
- low：措辞、格式等不影响效力的问题。
没有风险时 risks 返回空数组。`

type llmRisk struct {
	Clause   string `json:"clause" jsonschema:"description=合同原文摘录"`
	Issue    string `json:"issue" jsonschema:"description=风险说明"`
	Severity string `json:"severity" jsonschema:"enum=low,enum=medium,enum=high"`
}

type llmAnalysis struct {
	Summary string    `json:"summary" jsonschema:"description=合同摘要"`
	Risks   []llmRisk `json:"risks"`
}

// LLMAnalyzer asks a model for a summary and risks in one structured call.
type LLMAnalyzer struct {
	client    llm.Client
	textLimit int
	maxTokens int
	schema    any
}

func NewLLMAnalyzer(client llm.Client, textLimit, maxTokens int) *LLMAnalyzer {
	return &LLMAnalyzer{
		client:    client,
		textLimit: textLimit,
		maxTokens: maxTokens,
		schema:    llm.GenerateSchema[llmAnalysis](),
	}
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, text string, knowledge []review.KnowledgeSnippet) (review.Analysis, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "review.risk.llm"})

	var out llmAnalysis
	_, err := a.client.Chat(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildPrompt(text, knowledge, a.textLimit),
		SchemaName:   "contract_risk_analysis",
		Schema:       a.schema,
		MaxTokens:    a.maxTokens,
		Temperature:  llm.Temp(0.1),
	}, &out)
	if err != nil {
		return review.Analysis{}, fmt.Errorf("risk analysis: %w", err)
	}

	return coerce(out)
}

// coerce validates model output at the boundary; anything malformed fails
// the stage instead of leaking into the state.
func coerce(out llmAnalysis) (review.Analysis, error) {
	res := review.Analysis{
		Summary: strings.TrimSpace(out.Summary),
		Risks:   make([]review.RiskItem, 0, len(out.Risks)),
	}
	for i, r := range out.Risks {
		sev, err := review.ParseSeverity(r.Severity)
		if err != nil {
			return review.Analysis{}, fmt.Errorf("risk %d: %w", i, err)
		}
		clause, issue := strings.TrimSpace(r.Clause), strings.TrimSpace(r.Issue)
		if clause == "" || issue == "" {
			return review.Analysis{}, fmt.Errorf("risk %d: clause and issue are required", i)
		}
		res.Risks = append(res.Risks, review.RiskItem{Clause: clause, Issue: issue, Severity: sev})
	}
	return res, nil
}

func buildPrompt(text string, knowledge []review.KnowledgeSnippet, limit int) string {
	var b strings.Builder
	if len(knowledge) > 0 {
		b.WriteString("相关法律知识：\n")
		for _, k := range knowledge {
			b.WriteString("- ")
			b.WriteString(k.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("合同内容：\n")
	if limit > 0 {
		text = logger.Truncate(text, limit)
	}
	b.WriteString(text)
	return b.String()
}
