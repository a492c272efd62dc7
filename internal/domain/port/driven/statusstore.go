package driven

import (
	"context"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
)

// StatusUpdate field names accepted by StatusStore.Update.
const (
	StatusFieldState       = "state"
	StatusFieldDescription = "description"
	StatusFieldURL         = "url"
	StatusFieldURLText     = "url_text"
	StatusFieldTimestamp   = "timestamp"
)

// StatusStore defines the driven port for status update persistence.
type StatusStore interface {
	// Create inserts a new status update and sets its ID.
	Create(ctx context.Context, update *model.StatusUpdate) error
	// GetByID returns the status update with the given ID, or nil if it
	// does not exist.
	GetByID(ctx context.Context, id int64) (*model.StatusUpdate, error)
	// ListByReviewRequest returns all status updates for a review request,
	// newest first.
	ListByReviewRequest(ctx context.Context, reviewRequestID int64) ([]model.StatusUpdate, error)
	// Update writes only the named fields of the status update. Callers
	// are responsible for only naming fields that actually changed; an
	// empty field list is a no-op and must not touch storage.
	Update(ctx context.Context, update *model.StatusUpdate, fields []string) error
}
