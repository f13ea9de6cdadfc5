package compliance_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/osiDTDr/ai-contract-review/common/llm"
	"github.com/osiDTDr/ai-contract-review/internal/compliance"
	"github.com/osiDTDr/ai-contract-review/internal/review"
)

type mockLLM struct {
	calls   int
	lastReq llm.Request
	reply   string
	err     error
}

func (m *mockLLM) Chat(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{}, json.Unmarshal([]byte(m.reply), result)
}

func (m *mockLLM) Model() string { return "mock" }

var scenarioRules = []review.Rule{
	{Name: "签署方", Keywords: []string{"甲方", "乙方"}, Required: true},
	{Name: "争议解决条款", Keywords: []string{"争议", "仲裁", "诉讼"}, Required: true},
}

var _ = Describe("KeywordChecker", func() {
	ctx := context.Background()

	It("reports satisfied and missing rules in rule order", func() {
		findings, err := compliance.NewKeywordChecker().Check(ctx, "甲方有权随意解除合同，乙方无权解除", scenarioRules)
		Expect(err).NotTo(HaveOccurred())
		Expect(findings).To(Equal([]string{"签署方完整", "缺少争议解决条款"}))
	})

	It("reports rules without keywords as unverified", func() {
		findings, err := compliance.NewKeywordChecker().Check(ctx, "合同", []review.Rule{{Name: "标的"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(findings).To(Equal([]string{"unable to verify: 标的"}))
	})

	It("returns one finding per rule", func() {
		rules := append(append([]review.Rule{}, scenarioRules...), review.Rule{Name: "违约责任", Keywords: []string{"违约"}})
		findings, err := compliance.NewKeywordChecker().Check(ctx, "", rules)
		Expect(err).NotTo(HaveOccurred())
		Expect(findings).To(HaveLen(len(rules)))
	})
})

var _ = Describe("LLMChecker", func() {
	ctx := context.Background()

	It("maps verdicts onto rules in rule order", func() {
		m := &mockLLM{reply: `{"verdicts":[
			{"rule":"争议解决条款","status":"missing","evidence":""},
			{"rule":"签署方","status":"Present","evidence":"甲方"}
		]}`}
		findings, err := compliance.NewLLMChecker(m, 0, 400).Check(ctx, "甲方有权随意解除合同", scenarioRules)
		Expect(err).NotTo(HaveOccurred())
		Expect(findings).To(Equal([]string{"签署方完整", "缺少争议解决条款"}))
		Expect(m.lastReq.UserPrompt).To(ContainSubstring("争议解决条款"))
		Expect(m.lastReq.Temperature).NotTo(BeNil())
	})

	It("reports unknown or missing verdicts as unverified", func() {
		m := &mockLLM{reply: `{"verdicts":[{"rule":"签署方","status":"unknown","evidence":""}]}`}
		findings, err := compliance.NewLLMChecker(m, 0, 0).Check(ctx, "合同", scenarioRules)
		Expect(err).NotTo(HaveOccurred())
		Expect(findings).To(Equal([]string{"unable to verify: 签署方", "unable to verify: 争议解决条款"}))
	})

	It("skips the model call for an empty rule set", func() {
		m := &mockLLM{}
		findings, err := compliance.NewLLMChecker(m, 0, 0).Check(ctx, "合同", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(findings).To(BeEmpty())
		Expect(m.calls).To(BeZero())
	})

	It("wraps client failures", func() {
		_, err := compliance.NewLLMChecker(&mockLLM{err: errors.New("timeout")}, 0, 0).Check(ctx, "合同", scenarioRules)
		Expect(err).To(MatchError(ContainSubstring("compliance check: timeout")))
	})
})
