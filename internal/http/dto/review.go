package dto

import (
	"time"

	"github.com/osiDTDr/ai-contract-review/internal/model"
	"github.com/osiDTDr/ai-contract-review/internal/review"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

type AnalyzeQuery struct {
	Format string `form:"format" binding:"omitempty,oneof=json text"`
}

type ListReviewsQuery struct {
	Limit int32 `form:"limit" binding:"omitempty,min=1,max=100"`
}

type AnalyzeResponse struct {
	ReviewID       int64               `json:"review_id,string"`
	Summary        string              `json:"summary"`
	Risks          []review.RiskItem   `json:"risks"`
	Compliance     []string            `json:"compliance"`
	Score          *int                `json:"score"`
	ReasoningTrace []review.TraceEntry `json:"reasoning_trace"`
	TraceSummary   review.TraceSummary `json:"trace_summary"`
}

func ToAnalyzeResponse(reviewID int64, res *review.Result) *AnalyzeResponse {
	st := res.State
	return &AnalyzeResponse{
		ReviewID:       reviewID,
		Summary:        st.Summary,
		Risks:          nonNil(st.Risks),
		Compliance:     nonNil(st.Compliance),
		Score:          st.Score,
		ReasoningTrace: nonNil(res.Trace),
		TraceSummary:   review.Summarize(res.Trace),
	}
}

// ErrorResponse always carries the trace recorded before the failure.
type ErrorResponse struct {
	Error          string              `json:"error"`
	ErrorKind      string              `json:"error_kind"`
	ReviewID       int64               `json:"review_id,string,omitempty"`
	SupportedTypes []string            `json:"supported_types,omitempty"`
	ReasoningTrace []review.TraceEntry `json:"reasoning_trace"`
}

type ReviewResponse struct {
	ID             int64               `json:"id,string"`
	FileName       string              `json:"file_name"`
	Format         string              `json:"format"`
	Status         string              `json:"status"`
	ErrorKind      *string             `json:"error_kind,omitempty"`
	Error          *string             `json:"error,omitempty"`
	Summary        string              `json:"summary"`
	Risks          []review.RiskItem   `json:"risks"`
	Compliance     []string            `json:"compliance"`
	Score          *int                `json:"score"`
	ReasoningTrace []review.TraceEntry `json:"reasoning_trace"`
	Stages         []StageResponse     `json:"stages"`
	CreatedAt      time.Time           `json:"created_at"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
	DurationMs     int64               `json:"duration_ms"`
}

type StageResponse struct {
	Seq        int       `json:"seq"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Error      *string   `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

func ToReviewResponse(r *model.Review) *ReviewResponse {
	stages := make([]StageResponse, 0, len(r.Stages))
	for _, st := range r.Stages {
		stages = append(stages, StageResponse{
			Seq:        st.Seq,
			Stage:      st.Stage,
			Status:     st.Status,
			Error:      st.Error,
			StartedAt:  st.StartedAt,
			DurationMs: st.DurationMs,
		})
	}
	return &ReviewResponse{
		ID:             r.ID,
		FileName:       r.FileName,
		Format:         r.Format,
		Status:         r.Status,
		ErrorKind:      r.ErrorKind,
		Error:          r.Error,
		Summary:        r.Summary,
		Risks:          nonNil(r.Risks),
		Compliance:     nonNil(r.Compliance),
		Score:          r.Score,
		ReasoningTrace: nonNil(r.Trace),
		Stages:         stages,
		CreatedAt:      r.CreatedAt,
		FinishedAt:     r.FinishedAt,
		DurationMs:     r.DurationMs,
	}
}

// ReviewSummaryResponse is the list view; it leaves out the trace.
type ReviewSummaryResponse struct {
	ID        int64     `json:"id,string"`
	FileName  string    `json:"file_name"`
	Status    string    `json:"status"`
	Score     *int      `json:"score"`
	Risks     int       `json:"risk_count"`
	CreatedAt time.Time `json:"created_at"`
}

func ToReviewSummaries(reviews []model.Review) []ReviewSummaryResponse {
	out := make([]ReviewSummaryResponse, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, ReviewSummaryResponse{
			ID:        r.ID,
			FileName:  r.FileName,
			Status:    r.Status,
			Score:     r.Score,
			Risks:     len(r.Risks),
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
