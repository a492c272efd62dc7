package driven

import (
	"context"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
)

// Provider defines the driven port for one CI vendor. The orchestration
// core is fixed; all vendor-specific payload construction lives behind
// StartBuild, and vendor status vocabularies are translated through
// MapWebhookStatus.
type Provider interface {
	// ID is the stable identifier recorded on configs and status updates
	// (e.g., "circleci").
	ID() string
	// Name is the human-readable name used as the status update summary.
	Name() string
	// BotProfile describes the bot identity this provider's status
	// updates should be owned by.
	BotProfile() model.BotProfile

	// Prepare lets the provider narrow prep.Configs or populate
	// prep.Extra before builds run. Returning false vetoes the whole
	// batch: no status updates are created and no builds start.
	Prepare(ctx context.Context, prep *model.BuildPrep) (bool, error)

	// StartBuild triggers one build. It must be fast and must not wait
	// for build completion; results come back through the webhook. The
	// status update is already in the correct running state. The provider
	// may set a tracking URL but must leave the state alone. A
	// *BuildError reports a known, user-relevant failure; any other
	// error is treated as an internal one.
	StartBuild(ctx context.Context, prep *model.BuildPrep, config model.IntegrationConfig, update *model.StatusUpdate) error

	// MapWebhookStatus translates a vendor status string into an internal
	// state and description. ok is false for vendor statuses the
	// integration does not care about.
	MapWebhookStatus(vendorStatus string) (state model.BuildState, description string, ok bool)
}

// BuildError is raised intentionally by a provider to report a known
// failure invoking a build (e.g., a missing API token). It carries an
// optional diagnostic URL and is always converted to an error-state status
// update, never propagated.
type BuildError struct {
	Message string // Lowercase, period-terminated; shown on the status update.
	URL     string
	URLText string
}

// NewBuildError returns a BuildError with the given message and no URL.
func NewBuildError(message string) *BuildError {
	return &BuildError{Message: message}
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Message == "" {
		return "error starting the build."
	}
	return e.Message
}
