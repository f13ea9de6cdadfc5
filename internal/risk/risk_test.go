package risk_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/osiDTDr/ai-contract-review/common/llm"
	"github.com/osiDTDr/ai-contract-review/internal/review"
	"github.com/osiDTDr/ai-contract-review/internal/risk"
	"github.com/osiDTDr/ai-contract-review/internal/rules"
)

type mockLLM struct {
	lastReq llm.Request
	reply   string
	err     error
}

func (m *mockLLM) Chat(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{}, json.Unmarshal([]byte(m.reply), result)
}

func (m *mockLLM) Model() string { return "mock" }

var termination = rules.RiskPattern{
	Name:     "单方解除权不对等",
	Keywords: []string{"随意解除", "单方解除", "无权解除"},
	Severity: review.SeverityHigh,
	Issue:    "单方解除权不对等",
}

var renewal = rules.RiskPattern{
	Name:     "自动续约",
	Keywords: []string{"自动续约"},
	Severity: review.SeverityMedium,
	Issue:    "自动续约",
}

var _ = Describe("PatternAnalyzer", func() {
	ctx := context.Background()

	It("flags the termination clause with high severity", func() {
		a := risk.NewPatternAnalyzer([]rules.RiskPattern{termination, renewal})
		out, err := a.Analyze(ctx, "甲方有权随意解除合同，乙方无权解除", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Risks).To(Equal([]review.RiskItem{{
			Clause:   "甲方有权随意解除合同，乙方无权解除",
			Issue:    "单方解除权不对等",
			Severity: review.SeverityHigh,
		}}))
	})

	It("locates the sentence around the keyword", func() {
		a := risk.NewPatternAnalyzer([]rules.RiskPattern{termination, renewal})
		text := "第一条 合作期限一年。第二条 期满自动续约，乙方不得拒绝。第三条 乙方无权解除本合同！"
		out, err := a.Analyze(ctx, text, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Risks).To(HaveLen(2))
		Expect(out.Risks[0].Clause).To(Equal("第三条 乙方无权解除本合同"))
		Expect(out.Risks[1].Clause).To(Equal("第二条 期满自动续约，乙方不得拒绝"))
	})

	It("returns no risks for a clean contract", func() {
		out, err := risk.NewPatternAnalyzer([]rules.RiskPattern{termination}).Analyze(ctx, "双方平等协商。", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Risks).To(BeEmpty())
		Expect(out.Summary).To(Equal("双方平等协商。"))
	})
})

var _ = Describe("Summarize", func() {
	It("keeps whole leading sentences within the budget", func() {
		Expect(risk.Summarize("第一句。第二句。第三句。", 8)).To(Equal("第一句。第二句。"))
	})

	It("cuts an overlong first sentence", func() {
		Expect(risk.Summarize(strings.Repeat("长", 20), 5)).To(Equal("长长长长长"))
	})

	It("treats line breaks as sentence boundaries", func() {
		Expect(risk.Summarize("标题\n正文。", 10)).To(Equal("标题正文。"))
	})
})

var _ = Describe("LLMAnalyzer", func() {
	ctx := context.Background()

	It("coerces structured output into risk items", func() {
		m := &mockLLM{reply: `{"summary":" 租赁合同 ","risks":[{"clause":"甲方有权随意解除合同","issue":"解除权不对等","severity":"HIGH"}]}`}
		a := risk.NewLLMAnalyzer(m, 10, 500)

		out, err := a.Analyze(ctx, "甲方有权随意解除合同，乙方无权解除", []review.KnowledgeSnippet{{Content: "格式条款免除己方责任的无效"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Summary).To(Equal("租赁合同"))
		Expect(out.Risks).To(Equal([]review.RiskItem{{Clause: "甲方有权随意解除合同", Issue: "解除权不对等", Severity: review.SeverityHigh}}))

		Expect(m.lastReq.Schema).NotTo(BeNil())
		Expect(m.lastReq.MaxTokens).To(Equal(500))
		Expect(m.lastReq.UserPrompt).To(ContainSubstring("格式条款免除己方责任的无效"))
		Expect(m.lastReq.UserPrompt).To(ContainSubstring("合同内容：\n甲方有权随意解除合同..."))
	})

	DescribeTable("rejects malformed output",
		func(reply string) {
			_, err := risk.NewLLMAnalyzer(&mockLLM{reply: reply}, 0, 0).Analyze(ctx, "合同", nil)
			Expect(err).To(HaveOccurred())
		},
		Entry("unknown severity", `{"summary":"s","risks":[{"clause":"c","issue":"i","severity":"critical"}]}`),
		Entry("empty issue", `{"summary":"s","risks":[{"clause":"c","issue":" ","severity":"low"}]}`),
		Entry("empty clause", `{"summary":"s","risks":[{"clause":"","issue":"i","severity":"low"}]}`),
	)

	It("wraps client failures", func() {
		_, err := risk.NewLLMAnalyzer(&mockLLM{err: errors.New("rate limited")}, 0, 0).Analyze(ctx, "合同", nil)
		Expect(err).To(MatchError(ContainSubstring("rate limited")))
	})
})
