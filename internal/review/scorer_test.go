package review_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/osiDTDr/ai-contract-review/internal/review"
)

func riskOf(sev review.Severity) review.RiskItem {
	return review.RiskItem{Clause: "c", Issue: "i", Severity: sev}
}

var _ = Describe("WeightedScorer", func() {
	scorer := review.DefaultScorer()

	DescribeTable("scores risks and findings",
		func(risks []review.RiskItem, findings []string, expected int) {
			Expect(scorer.Score(risks, findings)).To(Equal(expected))
		},
		Entry("clean contract", nil, []string{review.Satisfied("签署方")}, 10),
		Entry("one high risk", []review.RiskItem{riskOf(review.SeverityHigh)}, nil, 7),
		Entry("one medium risk", []review.RiskItem{riskOf(review.SeverityMedium)}, nil, 8),
		Entry("low risks cost nothing", []review.RiskItem{riskOf(review.SeverityLow), riskOf(review.SeverityLow)}, nil, 10),
		Entry("gap", nil, []string{review.Gap("争议解决条款")}, 8),
		Entry("unverified", nil, []string{review.Unverified("签署方")}, 9),
		Entry("floors at zero",
			[]review.RiskItem{riskOf(review.SeverityHigh), riskOf(review.SeverityHigh), riskOf(review.SeverityHigh), riskOf(review.SeverityHigh)},
			[]string{review.Gap("a")}, 0),
	)

	It("caps the penalty when MaxPenalty is set", func() {
		capped := review.WeightedScorer{High: 3, Medium: 2, Gap: 2, MaxPenalty: 8}
		risks := []review.RiskItem{riskOf(review.SeverityHigh), riskOf(review.SeverityHigh), riskOf(review.SeverityHigh)}
		Expect(capped.Score(risks, nil)).To(Equal(2))
	})

	It("is monotonic in severity", func() {
		findings := []string{review.Gap("a")}
		for _, base := range [][]review.RiskItem{nil, {riskOf(review.SeverityMedium)}, {riskOf(review.SeverityHigh), riskOf(review.SeverityLow)}} {
			low := scorer.Score(append(append([]review.RiskItem{}, base...), riskOf(review.SeverityLow)), findings)
			medium := scorer.Score(append(append([]review.RiskItem{}, base...), riskOf(review.SeverityMedium)), findings)
			high := scorer.Score(append(append([]review.RiskItem{}, base...), riskOf(review.SeverityHigh)), findings)
			Expect(high).To(BeNumerically("<=", medium))
			Expect(medium).To(BeNumerically("<=", low))
		}
	})

	It("is deterministic", func() {
		risks := []review.RiskItem{riskOf(review.SeverityHigh), riskOf(review.SeverityMedium)}
		findings := []string{review.Gap("a"), review.Satisfied("b")}
		Expect(scorer.Score(risks, findings)).To(Equal(scorer.Score(risks, findings)))
	})

	Describe("Validate", func() {
		It("accepts the defaults", func() {
			Expect(review.DefaultScorer().Validate()).To(Succeed())
		})

		It("rejects weights that break severity ordering", func() {
			err := review.WeightedScorer{High: 1, Medium: 2}.Validate()
			Expect(review.Kind(err)).To(Equal(review.KindConfiguration))
		})

		It("rejects negative weights", func() {
			err := review.WeightedScorer{High: 3, Medium: 2, Gap: -1}.Validate()
			Expect(review.Kind(err)).To(Equal(review.KindConfiguration))
		})
	})
})

var _ = Describe("Findings", func() {
	DescribeTable("classify by phrasing",
		func(finding string, expected review.FindingStatus) {
			Expect(review.ClassifyFinding(finding)).To(Equal(expected))
		},
		Entry("satisfied", review.Satisfied("签署方"), review.FindingSatisfied),
		Entry("gap", review.Gap("争议解决条款"), review.FindingGap),
		Entry("unverified", review.Unverified("违约责任"), review.FindingUnverified),
		Entry("free text", "looks fine", review.FindingUnknown),
	)

	DescribeTable("rejects rule names that read as a verdict",
		func(name string) {
			err := review.ValidateRules([]review.Rule{{Name: name}})
			Expect(review.Kind(err)).To(Equal(review.KindConfiguration))
		},
		Entry("gap prefix", "缺少附件"),
		Entry("unverified prefix", "unable to verify: 附件"),
	)

	It("keeps a satisfied finding satisfied for accepted names", func() {
		Expect(review.ValidateRules([]review.Rule{{Name: "附件缺少说明"}})).To(Succeed())
		Expect(review.ClassifyFinding(review.Satisfied("附件缺少说明"))).To(Equal(review.FindingSatisfied))
	})

	It("renders the literal phrasing", func() {
		Expect(review.Satisfied("签署方")).To(Equal("签署方完整"))
		Expect(review.Gap("争议解决条款")).To(Equal("缺少争议解决条款"))
		Expect(review.Unverified("签署方")).To(Equal("unable to verify: 签署方"))
	})
})

var _ = Describe("ParseSeverity", func() {
	It("normalizes case and whitespace", func() {
		sev, err := review.ParseSeverity(" High ")
		Expect(err).NotTo(HaveOccurred())
		Expect(sev).To(Equal(review.SeverityHigh))
	})

	It("rejects unknown severities", func() {
		_, err := review.ParseSeverity("critical")
		Expect(err).To(HaveOccurred())
	})
})
