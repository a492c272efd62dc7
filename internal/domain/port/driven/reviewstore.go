package driven

import (
	"context"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
)

// ReviewStore defines the driven port for reading review request, diff,
// and change description data mirrored from the review tool.
type ReviewStore interface {
	// GetReviewRequest returns the review request with the given ID, or
	// nil if it does not exist.
	GetReviewRequest(ctx context.Context, id int64) (*model.ReviewRequest, error)
	// GetChangeDescription returns the change description with the given
	// ID, or nil if it does not exist.
	GetChangeDescription(ctx context.Context, id int64) (*model.ChangeDescription, error)
	// LatestDiff returns the newest diff on the review request, or nil if
	// no diff has been published yet.
	LatestDiff(ctx context.Context, reviewRequestID int64) (*model.DiffSet, error)
	// EarliestDiff returns the oldest diff on the review request, or nil
	// if no diff has been published yet.
	EarliestDiff(ctx context.Context, reviewRequestID int64) (*model.DiffSet, error)
	// GetDiff returns the diff with the given ID, or nil if it does not
	// exist.
	GetDiff(ctx context.Context, id int64) (*model.DiffSet, error)
}
