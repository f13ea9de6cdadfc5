package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/osiDTDr/ai-contract-review/core/db"
	"github.com/osiDTDr/ai-contract-review/internal/model"
	"github.com/osiDTDr/ai-contract-review/internal/review"
)

// Database is the part of *db.DB the review store needs.
type Database interface {
	Conn() db.DBTX
	WithTx(ctx context.Context, fn func(tx db.DBTX) error) error
}

type reviewStore struct {
	db Database
}

func NewReviewStore(database Database) ReviewStore {
	return &reviewStore{db: database}
}

const insertReview = `
INSERT INTO reviews (id, file_name, format, status, error_kind, error, score, summary,
                     risks, compliance, trace, created_at, finished_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const insertStage = `
INSERT INTO review_stages (review_id, seq, stage, status, error, started_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const selectReview = `
SELECT id, file_name, format, status, error_kind, error, score, summary,
       risks, compliance, trace, created_at, finished_at, duration_ms
FROM reviews`

// Create writes the review row and one row per trace entry in a single
// transaction.
func (s *reviewStore) Create(ctx context.Context, r *model.Review) error {
	risks, err := json.Marshal(nonNil(r.Risks))
	if err != nil {
		return fmt.Errorf("marshal risks: %w", err)
	}
	compliance, err := json.Marshal(nonNil(r.Compliance))
	if err != nil {
		return fmt.Errorf("marshal compliance: %w", err)
	}
	trace, err := json.Marshal(nonNil(r.Trace))
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	return s.db.WithTx(ctx, func(tx db.DBTX) error {
		if _, err := tx.Exec(ctx, insertReview,
			r.ID, r.FileName, r.Format, r.Status, r.ErrorKind, r.Error, r.Score, r.Summary,
			risks, compliance, trace, r.CreatedAt, r.FinishedAt, r.DurationMs,
		); err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		for _, st := range StageRows(r.ID, r.Trace) {
			if _, err := tx.Exec(ctx, insertStage,
				st.ReviewID, st.Seq, st.Stage, st.Status, st.Error, st.StartedAt, st.DurationMs,
			); err != nil {
				return fmt.Errorf("insert review stage %s: %w", st.Stage, err)
			}
		}
		return nil
	})
}

func (s *reviewStore) Get(ctx context.Context, id int64) (*model.Review, error) {
	row := s.db.Conn().QueryRow(ctx, selectReview+` WHERE id = $1`, id)
	r, err := scanReview(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *reviewStore) ListRecent(ctx context.Context, limit int32) ([]model.Review, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Conn().Query(ctx, selectReview+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := []model.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

func (s *reviewStore) ListStages(ctx context.Context, reviewID int64) ([]model.ReviewStage, error) {
	rows, err := s.db.Conn().Query(ctx, `
SELECT review_id, seq, stage, status, error, started_at, duration_ms
FROM review_stages WHERE review_id = $1 ORDER BY seq`, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stages := []model.ReviewStage{}
	for rows.Next() {
		var st model.ReviewStage
		if err := rows.Scan(&st.ReviewID, &st.Seq, &st.Stage, &st.Status, &st.Error, &st.StartedAt, &st.DurationMs); err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// StageRows flattens a trace into review_stages rows, numbered from 1.
func StageRows(reviewID int64, trace []review.TraceEntry) []model.ReviewStage {
	rows := make([]model.ReviewStage, 0, len(trace))
	for i, e := range trace {
		st := model.ReviewStage{
			ReviewID:   reviewID,
			Seq:        i + 1,
			Stage:      e.StageName,
			Status:     string(e.Status),
			StartedAt:  e.StartedAt,
			DurationMs: e.DurationMs,
		}
		if e.Error != "" {
			msg := e.Error
			st.Error = &msg
		}
		rows = append(rows, st)
	}
	return rows
}

func scanReview(row pgx.Row) (*model.Review, error) {
	var (
		r                        model.Review
		risks, compliance, trace []byte
		score                    *int32
		finished                 *time.Time
	)
	if err := row.Scan(
		&r.ID, &r.FileName, &r.Format, &r.Status, &r.ErrorKind, &r.Error, &score, &r.Summary,
		&risks, &compliance, &trace, &r.CreatedAt, &finished, &r.DurationMs,
	); err != nil {
		return nil, err
	}
	if score != nil {
		v := int(*score)
		r.Score = &v
	}
	r.FinishedAt = finished

	if err := json.Unmarshal(risks, &r.Risks); err != nil {
		return nil, fmt.Errorf("decode risks of review %d: %w", r.ID, err)
	}
	if err := json.Unmarshal(compliance, &r.Compliance); err != nil {
		return nil, fmt.Errorf("decode compliance of review %d: %w", r.ID, err)
	}
	if err := json.Unmarshal(trace, &r.Trace); err != nil {
		return nil, fmt.Errorf("decode trace of review %d: %w", r.ID, err)
	}
	return &r, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
