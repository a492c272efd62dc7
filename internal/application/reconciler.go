package application

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// Reconciler applies asynchronous build results reported by provider
// webhooks (or an equivalent polling check) to the matching status update.
// It is deliberately best effort: unknown vendor statuses and unresolvable
// status updates are acknowledged without effect, so a later correct
// callback still applies.
type Reconciler struct {
	orchestrator *Orchestrator
	statuses     driven.StatusStore
	writer       *statusWriter
	logger       *slog.Logger
}

// NewReconciler creates a Reconciler sharing the orchestrator's provider
// registry and status store.
func NewReconciler(orchestrator *Orchestrator, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		orchestrator: orchestrator,
		statuses:     orchestrator.statuses,
		writer:       orchestrator.writer,
		logger:       logger,
	}
}

// Apply maps a vendor status string onto the internal state machine and
// updates the status update. buildURL and urlText are attached when the
// vendor reported a result page. The returned error covers storage
// failures only; payload-level problems are logged and swallowed.
func (r *Reconciler) Apply(ctx context.Context, providerID string, statusUpdateID int64, vendorStatus, buildURL, urlText string) error {
	provider := r.orchestrator.Provider(providerID)
	if provider == nil {
		r.logger.Error("webhook for unknown provider",
			"provider", providerID,
			"status_update_id", statusUpdateID,
		)
		return nil
	}

	update, err := r.statuses.GetByID(ctx, statusUpdateID)
	if err != nil {
		return err
	}
	if update == nil {
		r.logger.Error("webhook for unknown status update",
			"provider", providerID,
			"status_update_id", statusUpdateID,
		)
		return nil
	}

	state, description, ok := provider.MapWebhookStatus(vendorStatus)
	if !ok {
		// Vendor statuses the integration does not care about.
		r.logger.Debug("ignoring vendor status",
			"provider", providerID,
			"status_update_id", statusUpdateID,
			"vendor_status", vendorStatus,
		)
		return nil
	}

	change := statusChange{
		state:       statePtr(state),
		description: strPtr(description),
	}
	if buildURL != "" {
		change.url = strPtr(buildURL)
		change.urlText = strPtr(urlText)
	}

	return r.writer.apply(ctx, update, change)
}
