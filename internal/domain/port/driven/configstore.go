package driven

import (
	"context"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
)

// ConfigStore defines the driven port for integration config persistence.
// Configs are administered outside the orchestration core, which only reads
// them.
type ConfigStore interface {
	// ListEnabled returns the enabled configs for the given provider and
	// scope, in creation order.
	ListEnabled(ctx context.Context, provider, scope string) ([]model.IntegrationConfig, error)
	// GetByID returns the config with the given ID, or nil if it does not
	// exist.
	GetByID(ctx context.Context, id int64) (*model.IntegrationConfig, error)
}
