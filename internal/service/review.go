package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/osiDTDr/ai-contract-review/common/id"
	"github.com/osiDTDr/ai-contract-review/common/logger"
	"github.com/osiDTDr/ai-contract-review/internal/extract"
	"github.com/osiDTDr/ai-contract-review/internal/model"
	"github.com/osiDTDr/ai-contract-review/internal/review"
	"github.com/osiDTDr/ai-contract-review/internal/rules"
	"github.com/osiDTDr/ai-contract-review/internal/store"
)

// ErrUnreadableDocument means the upload had a supported extension but its
// content could not be decoded.
var ErrUnreadableDocument = errors.New("unreadable document")

// ErrPersistenceDisabled is returned by lookups when no database is configured.
var ErrPersistenceDisabled = errors.New("review persistence is not configured")

type Upload struct {
	FileName string
	Data     []byte
	// Rules optionally replaces the configured rules file for this review.
	Rules []byte
}

// Outcome is returned with and without an error; on failure Result holds the
// partial state and trace.
type Outcome struct {
	ID     int64
	Format extract.Format
	Result *review.Result
}

// EventPublisher streams review progress. *events.Stream implements it.
type EventPublisher interface {
	Publish(ctx context.Context, reviewID int64, entry review.TraceEntry) error
	Done(ctx context.Context, reviewID int64, status string, kind review.ErrorKind) error
}

// MetricsRecorder is implemented by *metrics.Metrics.
type MetricsRecorder interface {
	Begin() (end func())
	ObserveStage(entry review.TraceEntry)
	ObserveReview(res *review.Result, err error)
}

// OrchestratorBuilder is implemented by *PipelineBuilder.
type OrchestratorBuilder interface {
	Build(set *rules.Set) (*review.Orchestrator, error)
}

type ReviewService interface {
	Analyze(ctx context.Context, up Upload) (*Outcome, error)
	AnalyzeText(ctx context.Context, fileName, text string, rulesYAML []byte) (*Outcome, error)
	Get(ctx context.Context, id int64) (*model.Review, error)
	List(ctx context.Context, limit int32) ([]model.Review, error)
}

type ReviewDeps struct {
	Reviewer Reviewer
	// Builder is needed only for per-request rules.
	Builder OrchestratorBuilder
	Store   store.ReviewStore
	Events  EventPublisher
	Metrics MetricsRecorder
	NewID   func() int64
}

type reviewService struct {
	reviewer Reviewer
	builder  OrchestratorBuilder
	store    store.ReviewStore
	events   EventPublisher
	metrics  MetricsRecorder
	newID    func() int64
}

func NewReviewService(deps ReviewDeps) ReviewService {
	newID := deps.NewID
	if newID == nil {
		newID = id.New
	}
	return &reviewService{
		reviewer: deps.Reviewer,
		builder:  deps.Builder,
		store:    deps.Store,
		events:   deps.Events,
		metrics:  deps.Metrics,
		newID:    newID,
	}
}

func (s *reviewService) Analyze(ctx context.Context, up Upload) (*Outcome, error) {
	format, err := extract.FormatFromName(up.FileName)
	if err != nil {
		return nil, err
	}

	reviewID := s.newID()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ReviewID:  &reviewID,
		FileName:  &up.FileName,
		Component: "review.service",
	})

	text, err := extract.Extract(ctx, up.Data, format)
	if err != nil {
		slog.WarnContext(ctx, "document extraction failed", "format", format, "bytes", len(up.Data), "error", err)
		return &Outcome{ID: reviewID, Format: format, Result: &review.Result{}}, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	slog.InfoContext(ctx, "document extracted", "format", format, "bytes", len(up.Data), "text_runes", len([]rune(text)))

	return s.run(ctx, reviewID, up.FileName, format, text, up.Rules)
}

func (s *reviewService) AnalyzeText(ctx context.Context, fileName, text string, rulesYAML []byte) (*Outcome, error) {
	reviewID := s.newID()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ReviewID:  &reviewID,
		FileName:  &fileName,
		Component: "review.service",
	})
	return s.run(ctx, reviewID, fileName, extract.FormatTXT, text, rulesYAML)
}

func (s *reviewService) run(ctx context.Context, reviewID int64, fileName string, format extract.Format, text string, rulesYAML []byte) (*Outcome, error) {
	out := &Outcome{ID: reviewID, Format: format, Result: &review.Result{}}

	reviewer, err := s.reviewerFor(rulesYAML)
	if err != nil {
		slog.WarnContext(ctx, "invalid per-request rules", "error", err)
		return out, err
	}

	if s.metrics != nil {
		defer s.metrics.Begin()()
	}

	createdAt := time.Now().UTC()
	res, err := reviewer.Review(ctx, text, review.WithObserver(s.observe(reviewID)))
	finishedAt := time.Now().UTC()
	if res != nil {
		out.Result = res
	}

	if s.metrics != nil {
		s.metrics.ObserveReview(out.Result, err)
	}
	status := model.ReviewStatusCompleted
	if err != nil {
		status = model.ReviewStatusFailed
	}
	if s.events != nil {
		if perr := s.events.Done(ctx, reviewID, status, review.Kind(err)); perr != nil {
			slog.WarnContext(ctx, "failed to publish review completion", "error", perr)
		}
	}

	s.persist(ctx, toModel(reviewID, fileName, format, status, out.Result, err, createdAt, finishedAt))
	return out, err
}

func (s *reviewService) reviewerFor(rulesYAML []byte) (Reviewer, error) {
	if len(rulesYAML) == 0 {
		return s.reviewer, nil
	}
	if s.builder == nil {
		return nil, &review.ConfigurationError{Reason: "per-request rules are not supported by this service"}
	}
	set, err := rules.Parse(rulesYAML)
	if err != nil {
		return nil, err
	}
	orch, err := s.builder.Build(set)
	if err != nil {
		return nil, err
	}
	return orch, nil
}

func (s *reviewService) observe(reviewID int64) review.Observer {
	return func(ctx context.Context, entry review.TraceEntry) {
		if s.metrics != nil {
			s.metrics.ObserveStage(entry)
		}
		if s.events != nil {
			if err := s.events.Publish(ctx, reviewID, entry); err != nil {
				slog.WarnContext(ctx, "failed to publish stage event", "stage", entry.StageName, "error", err)
			}
		}
	}
}

// persist is best effort: the caller already has the result, so a database
// failure is logged rather than returned.
func (s *reviewService) persist(ctx context.Context, r *model.Review) {
	if s.store == nil {
		return
	}
	if err := s.store.Create(context.WithoutCancel(ctx), r); err != nil {
		slog.ErrorContext(ctx, "failed to persist review", "error", err)
		return
	}
	slog.DebugContext(ctx, "review persisted", "status", r.Status)
}

func (s *reviewService) Get(ctx context.Context, id int64) (*model.Review, error) {
	if s.store == nil {
		return nil, ErrPersistenceDisabled
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stages, err := s.store.ListStages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list stages of review %d: %w", id, err)
	}
	r.Stages = stages
	return r, nil
}

func (s *reviewService) List(ctx context.Context, limit int32) ([]model.Review, error) {
	if s.store == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.store.ListRecent(ctx, limit)
}

func toModel(reviewID int64, fileName string, format extract.Format, status string, res *review.Result, err error, createdAt, finishedAt time.Time) *model.Review {
	st := res.State
	r := &model.Review{
		ID:         reviewID,
		FileName:   fileName,
		Format:     string(format),
		Status:     status,
		Score:      st.Score,
		Summary:    st.Summary,
		Risks:      st.Risks,
		Compliance: st.Compliance,
		Trace:      res.Trace,
		CreatedAt:  createdAt,
		FinishedAt: &finishedAt,
		DurationMs: finishedAt.Sub(createdAt).Milliseconds(),
	}
	if err != nil {
		kind := string(review.Kind(err))
		msg := err.Error()
		r.ErrorKind = &kind
		r.Error = &msg
	}
	return r
}
