package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/osiDTDr/ai-contract-review/internal/cli"
)

const twoRules = `
compliance_checks:
  - name: 签署方
    keywords: [甲方, 乙方]
  - name: 争议解决条款
    keywords: [争议, 仲裁, 诉讼]
risk_patterns:
  - name: 单方解除权不对等
    keywords: [随意解除, 无权解除]
    severity: high
`

func run(args ...string) (string, string, error) {
	cmd := cli.NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
	return path
}

var _ = Describe("contract-review", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	Describe("analyze", func() {
		It("prints the review as JSON", func() {
			contract := writeFile(dir, "contract.txt", "甲方有权随意解除合同，乙方无权解除")
			rulesPath := writeFile(dir, "rules.yaml", twoRules)

			out, _, err := run("analyze", contract,
				"--rules", rulesPath,
				"--analyzer", "pattern",
				"--compliance", "keyword",
				"--retriever", "none")
			Expect(err).NotTo(HaveOccurred())

			var resp map[string]any
			Expect(json.Unmarshal([]byte(out), &resp)).To(Succeed())
			Expect(resp["score"]).To(Equal(5.0))
			Expect(resp["compliance"]).To(Equal([]any{"签署方完整", "缺少争议解决条款"}))
			Expect(resp["reasoning_trace"]).To(HaveLen(5))
		})

		It("renders the trace as text", func() {
			contract := writeFile(dir, "contract.txt", "甲方有权随意解除合同，乙方无权解除")

			out, _, err := run("analyze", contract, "--format", "text", "--retriever", "lexical",
				"--analyzer", "pattern", "--compliance", "keyword")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Step 1: parse"))
			Expect(out).To(ContainSubstring("retrieve_knowledge"))
		})

		It("fails on empty documents", func() {
			contract := writeFile(dir, "empty.txt", "   ")
			_, _, err := run("analyze", contract, "--retriever", "none", "--analyzer", "pattern", "--compliance", "keyword")
			Expect(err).To(MatchError(ContainSubstring("empty")))
		})

		It("rejects unknown modes", func() {
			contract := writeFile(dir, "contract.txt", "甲方")
			_, _, err := run("analyze", contract, "--analyzer", "magic")
			Expect(err).To(MatchError(ContainSubstring("REVIEW_ANALYZER")))
		})

		It("rejects unknown output formats", func() {
			_, _, err := run("analyze", "x.txt", "--format", "xml")
			Expect(err).To(MatchError(ContainSubstring("invalid format")))
		})
	})

	Describe("rules validate", func() {
		It("reports a valid rules file", func() {
			path := writeFile(dir, "rules.yaml", twoRules)

			out, _, err := run("rules", "validate", path)
			Expect(err).NotTo(HaveOccurred())

			var report map[string]any
			Expect(json.Unmarshal([]byte(out), &report)).To(Succeed())
			Expect(report["valid"]).To(BeTrue())
			Expect(report["compliance_checks"]).To(Equal(2.0))
			Expect(report["risk_patterns"]).To(Equal(1.0))
		})

		It("fails on an invalid rules file", func() {
			path := writeFile(dir, "rules.yaml", "compliance_checks:\n  - keywords: [x]\n")

			out, _, err := run("rules", "validate", path)
			Expect(err).To(HaveOccurred())
			Expect(out).To(ContainSubstring(`"valid": false`))
		})
	})

	Describe("trace", func() {
		It("summarizes a saved result", func() {
			path := writeFile(dir, "result.json", `{"reasoning_trace":[
				{"parse":{"status":"completed","started_at":"2026-01-01T00:00:00Z","duration_ms":2,"state":{"text":"甲方"}}},
				{"analyze_risks":{"status":"failed","started_at":"2026-01-01T00:00:00Z","duration_ms":5,"error":"boom"}}
			]}`)

			out, _, err := run("trace", path)
			Expect(err).NotTo(HaveOccurred())

			var sum map[string]any
			Expect(json.Unmarshal([]byte(out), &sum)).To(Succeed())
			Expect(sum["total_steps"]).To(Equal(2.0))
			Expect(sum["failed_stage"]).To(Equal("analyze_risks"))
			Expect(sum["duration_ms"]).To(Equal(7.0))
		})
	})
})
