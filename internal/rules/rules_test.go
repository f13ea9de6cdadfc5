package rules_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/osiDTDr/ai-contract-review/internal/review"
	"github.com/osiDTDr/ai-contract-review/internal/rules"
)

var _ = Describe("Default", func() {
	It("loads the embedded rules", func() {
		set, err := rules.Default()
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Compliance).NotTo(BeEmpty())
		Expect(set.Compliance[0].Name).To(Equal("签署方"))
		Expect(set.Compliance[0].Required).To(BeTrue())
		Expect(set.Risks).NotTo(BeEmpty())
		Expect(set.Risks[0].Severity).To(Equal(review.SeverityHigh))
		Expect(set.Scoring).To(Equal(review.DefaultScorer()))
	})
})

var _ = Describe("Parse", func() {
	It("fills defaults for omitted fields", func() {
		set, err := rules.Parse([]byte(`
compliance_checks:
  - name: 违约责任
    keywords: [违约]
risk_patterns:
  - name: 自动续约
    keywords: [自动续约]
    severity: Medium
scoring:
  gap: 3
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Compliance).To(Equal([]review.Rule{{Name: "违约责任", Keywords: []string{"违约"}, Required: true}}))
		Expect(set.Risks[0].Severity).To(Equal(review.SeverityMedium))
		Expect(set.Risks[0].Issue).To(Equal("自动续约"))
		Expect(set.Scoring.Gap).To(Equal(3))
		Expect(set.Scoring.High).To(Equal(3))
	})

	It("accepts an empty document", func() {
		set, err := rules.Parse(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Compliance).To(BeEmpty())
	})

	DescribeTable("rejects invalid documents as configuration errors",
		func(doc string) {
			_, err := rules.Parse([]byte(doc))
			Expect(review.Kind(err)).To(Equal(review.KindConfiguration))
		},
		Entry("malformed yaml", "compliance_checks: [name: "),
		Entry("unknown key", "compliance_check:\n  - name: a\n"),
		Entry("missing rule name", "compliance_checks:\n  - keywords: [a]\n"),
		Entry("empty keyword", "compliance_checks:\n  - name: a\n    keywords: ['']\n"),
		Entry("duplicate rule", "compliance_checks:\n  - name: a\n  - name: a\n"),
		Entry("rule named like a gap finding", "compliance_checks:\n  - name: 缺少附件\n"),
		Entry("unknown severity", "risk_patterns:\n  - name: r\n    keywords: [x]\n    severity: critical\n"),
		Entry("pattern without keywords", "risk_patterns:\n  - name: r\n    keywords: []\n    severity: low\n"),
		Entry("inverted weights", "scoring:\n  high: 1\n  medium: 2\n"),
		Entry("negative weight", "scoring:\n  gap: -1\n"),
	)
})

var _ = Describe("Load", func() {
	It("reads a rules file from disk", func() {
		path := filepath.Join(GinkgoT().TempDir(), "rules.yaml")
		Expect(os.WriteFile(path, []byte("compliance_checks:\n  - name: 签署方\n    keywords: [甲方]\n"), 0o600)).To(Succeed())

		set, err := rules.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Compliance).To(HaveLen(1))
	})

	It("falls back to the embedded rules for an empty path", func() {
		set, err := rules.Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Compliance).NotTo(BeEmpty())
	})

	It("reports a missing file as a configuration error", func() {
		_, err := rules.Load("/nonexistent/rules.yaml")
		Expect(review.Kind(err)).To(Equal(review.KindConfiguration))
	})
})
