package store

import (
	"context"
	"errors"

	"github.com/osiDTDr/ai-contract-review/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ReviewStore persists review runs and their stage rows.
type ReviewStore interface {
	Create(ctx context.Context, r *model.Review) error
	Get(ctx context.Context, id int64) (*model.Review, error)
	ListRecent(ctx context.Context, limit int32) ([]model.Review, error)
	ListStages(ctx context.Context, reviewID int64) ([]model.ReviewStage, error)
}
