package review_test

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/osiDTDr/ai-contract-review/internal/review"
)

var _ = Describe("Recorder", func() {
	It("keeps entries in append order", func() {
		rec := review.NewRecorder()
		rec.Append(review.TraceEntry{StageName: "parse", Status: review.StatusCompleted})
		rec.Append(review.TraceEntry{StageName: "analyze_risks", Status: review.StatusFailed})

		Expect(rec.Len()).To(Equal(2))
		Expect(stageNames(rec.Entries())).To(Equal([]string{"parse", "analyze_risks"}))
	})

	It("copies entries on append and on read", func() {
		risks := []review.RiskItem{riskOf(review.SeverityHigh)}
		entry := review.TraceEntry{
			StageName: "analyze_risks",
			Status:    review.StatusCompleted,
			Snapshot:  map[review.Field]any{review.FieldRisks: risks},
		}

		rec := review.NewRecorder()
		rec.Append(entry)

		risks[0].Issue = "mutated by caller"
		entry.Snapshot[review.FieldSummary] = "added later"

		read := rec.Entries()
		read[0].Snapshot[review.FieldRisks].([]review.RiskItem)[0].Severity = review.SeverityLow
		read[0].Status = review.StatusFailed

		again := rec.Entries()[0]
		Expect(again.Status).To(Equal(review.StatusCompleted))
		Expect(again.Snapshot).NotTo(HaveKey(review.FieldSummary))
		stored := again.Snapshot[review.FieldRisks].([]review.RiskItem)
		Expect(stored[0].Issue).To(Equal("i"))
		Expect(stored[0].Severity).To(Equal(review.SeverityHigh))
	})
})

var _ = Describe("TraceEntry JSON", func() {
	It("is keyed by stage name", func() {
		entry := review.TraceEntry{
			StageName:  "score",
			Status:     review.StatusCompleted,
			Snapshot:   map[review.Field]any{review.FieldScore: 7},
			StartedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			DurationMs: 3,
		}
		data, err := json.Marshal(entry)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(MatchJSON(`{"score":{"status":"completed","started_at":"2025-01-02T03:04:05Z","duration_ms":3,"state":{"score":7}}}`))
	})

	It("round-trips a full trace with typed snapshot values", func() {
		o, err := review.New(review.Options{
			Analyzer: &mockAnalyzer{analyzeFn: fixedAnalysis(riskOf(review.SeverityHigh), riskOf(review.SeverityLow))},
			Checker: &mockChecker{checkFn: func(_ context.Context, _ string, rules []review.Rule) ([]string, error) {
				return []string{review.Gap(rules[0].Name)}, nil
			}},
			Rules: []review.Rule{{Name: "争议解决条款", Keywords: []string{"仲裁"}}},
		})
		Expect(err).NotTo(HaveOccurred())
		res, err := o.Review(context.Background(), "甲方有权随意解除合同")
		Expect(err).NotTo(HaveOccurred())

		data, err := json.Marshal(res.Trace)
		Expect(err).NotTo(HaveOccurred())

		var decoded []review.TraceEntry
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded).To(HaveLen(len(res.Trace)))
		for i := range decoded {
			Expect(decoded[i].StageName).To(Equal(res.Trace[i].StageName))
			Expect(decoded[i].Status).To(Equal(res.Trace[i].Status))
			Expect(decoded[i].StartedAt.Equal(res.Trace[i].StartedAt)).To(BeTrue())
			Expect(decoded[i].Snapshot).To(Equal(res.Trace[i].Snapshot))
		}
	})

	It("rejects entries with more than one stage key", func() {
		var e review.TraceEntry
		Expect(json.Unmarshal([]byte(`{"parse":{},"score":{}}`), &e)).NotTo(Succeed())
	})
})

var _ = Describe("State JSON", func() {
	It("round-trips risks, compliance and score", func() {
		score := 4
		st := review.State{
			Text:       "合同正文",
			Summary:    "摘要",
			Risks:      []review.RiskItem{{Clause: "甲方有权随意解除合同", Issue: "单方解除权不对等", Severity: review.SeverityHigh}},
			Compliance: []string{"签署方完整", "缺少争议解决条款"},
			Knowledge:  []review.KnowledgeSnippet{{Content: "k", Category: "termination", Relevance: 0.5}},
			Score:      &score,
		}
		data, err := json.Marshal(st)
		Expect(err).NotTo(HaveOccurred())

		var decoded review.State
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.Risks).To(Equal(st.Risks))
		Expect(decoded.Compliance).To(Equal(st.Compliance))
		Expect(decoded.Knowledge).To(Equal(st.Knowledge))
		Expect(*decoded.Score).To(Equal(4))
	})
})

var _ = Describe("Summarize and RenderText", func() {
	trace := []review.TraceEntry{
		{StageName: "parse", Status: review.StatusCompleted, DurationMs: 1, Snapshot: map[review.Field]any{review.FieldText: "甲方有权随意解除合同"}},
		{StageName: "retrieve_knowledge", Status: review.StatusSkipped},
		{StageName: "analyze_risks", Status: review.StatusFailed, DurationMs: 5, Error: "stage analyze_risks: dependency failure: timeout"},
	}

	It("summarizes executed, skipped and failed stages", func() {
		sum := review.Summarize(trace)
		Expect(sum.TotalSteps).To(Equal(3))
		Expect(sum.NodesExecuted).To(Equal([]string{"parse", "analyze_risks"}))
		Expect(sum.Skipped).To(Equal([]string{"retrieve_knowledge"}))
		Expect(sum.FailedStage).To(Equal("analyze_risks"))
		Expect(sum.DurationMs).To(Equal(int64(6)))
	})

	It("renders one step per entry", func() {
		var buf bytes.Buffer
		Expect(review.RenderText(&buf, trace)).To(Succeed())
		out := buf.String()
		Expect(out).To(ContainSubstring("Step 1: parse [completed, 1ms]"))
		Expect(out).To(ContainSubstring("text: 甲方有权随意解除合同"))
		Expect(out).To(ContainSubstring("Step 2: retrieve_knowledge [skipped, 0ms]"))
		Expect(out).To(ContainSubstring("error: stage analyze_risks"))
		Expect(out).To(ContainSubstring("failed at: analyze_risks"))
	})
})
