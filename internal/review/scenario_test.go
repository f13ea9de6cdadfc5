package review_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/osiDTDr/ai-contract-review/internal/compliance"
	"github.com/osiDTDr/ai-contract-review/internal/review"
	"github.com/osiDTDr/ai-contract-review/internal/risk"
	"github.com/osiDTDr/ai-contract-review/internal/rules"
)

var _ = Describe("Unilateral termination contract", func() {
	It("flags the termination risk, the missing dispute clause and lowers the score", func() {
		set, err := rules.Default()
		Expect(err).NotTo(HaveOccurred())

		o, err := review.New(review.Options{
			Analyzer: risk.NewPatternAnalyzer(set.Risks),
			Checker:  compliance.NewKeywordChecker(),
			Scorer:   set.Scoring,
			Rules: []review.Rule{
				{Name: "签署方", Keywords: []string{"甲方", "乙方"}, Required: true},
				{Name: "争议解决条款", Keywords: []string{"争议", "仲裁", "诉讼"}, Required: true},
			},
		})
		Expect(err).NotTo(HaveOccurred())

		res, err := o.Review(context.Background(), "甲方有权随意解除合同，乙方无权解除")
		Expect(err).NotTo(HaveOccurred())

		Expect(res.State.Risks).To(ContainElement(HaveField("Severity", review.SeverityHigh)))
		Expect(res.State.Compliance).To(Equal([]string{"签署方完整", "缺少争议解决条款"}))
		Expect(res.State.Score).NotTo(BeNil())
		Expect(*res.State.Score).To(BeNumerically("<", 10))
		Expect(*res.State.Score).To(Equal(5))

		last := res.Trace[len(res.Trace)-1]
		Expect(last.StageName).To(Equal(review.StageFinalize))
		Expect(last.Snapshot).To(HaveKeyWithValue(review.FieldScore, 5))

		data, err := json.Marshal(res.State)
		Expect(err).NotTo(HaveOccurred())
		var decoded review.State
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.Risks).To(Equal(res.State.Risks))
		Expect(decoded.Compliance).To(Equal(res.State.Compliance))
		Expect(*decoded.Score).To(Equal(5))
	})
})
