package model

import (
	"time"

	"github.com/osiDTDr/ai-contract-review/internal/review"
)

const (
	ReviewStatusCompleted = "completed"
	ReviewStatusFailed    = "failed"
)

// Review is one persisted review run. Failed runs keep their partial
// state and trace.
type Review struct {
	ID         int64               `json:"id"`
	FileName   string              `json:"file_name"`
	Format     string              `json:"format"`
	Status     string              `json:"status"`
	ErrorKind  *string             `json:"error_kind,omitempty"`
	Error      *string             `json:"error,omitempty"`
	Score      *int                `json:"score,omitempty"`
	Summary    string              `json:"summary"`
	Risks      []review.RiskItem   `json:"risks"`
	Compliance []string            `json:"compliance"`
	Trace      []review.TraceEntry `json:"reasoning_trace"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	DurationMs int64               `json:"duration_ms"`
	// Stages is filled on lookup from review_stages, not stored with the row.
	Stages     []ReviewStage       `json:"stages,omitempty"`
}

// ReviewStage is the per-stage row kept next to the review for querying
// stage latency without decoding traces.
type ReviewStage struct {
	ReviewID   int64     `json:"review_id"`
	Seq        int       `json:"seq"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Error      *string   `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}
