// Package application contains the build-orchestration core: config
// matching, build preparation, dispatch, bot identity management, and
// webhook reconciliation.
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// Default descriptions for the states the orchestration core sets itself.
const (
	descWaiting  = "waiting to run."
	descStarting = "starting build..."
	descError    = "internal error."
)

// statusChange holds the fields of a pending status update mutation. Nil
// fields are left untouched.
type statusChange struct {
	state       *model.BuildState
	description *string
	url         *string
	urlText     *string
}

// statusWriter applies status changes with the anti-thrashing discipline:
// only fields that actually differ are written, and the timestamp is
// refreshed only when at least one other field changes. A no-op change
// performs zero writes.
type statusWriter struct {
	store driven.StatusStore
	now   func() time.Time
}

func newStatusWriter(store driven.StatusStore) *statusWriter {
	return &statusWriter{store: store, now: time.Now}
}

// apply mutates update in place and persists exactly the changed fields.
func (w *statusWriter) apply(ctx context.Context, update *model.StatusUpdate, change statusChange) error {
	var fields []string

	if change.state != nil && *change.state != update.State {
		update.State = *change.state
		fields = append(fields, driven.StatusFieldState)
	}

	if change.description != nil && *change.description != update.Description {
		update.Description = *change.description
		fields = append(fields, driven.StatusFieldDescription)
	}

	if change.url != nil && *change.url != update.URL {
		update.URL = *change.url
		fields = append(fields, driven.StatusFieldURL)
	}

	if change.urlText != nil && *change.urlText != update.URLText {
		update.URLText = *change.urlText
		fields = append(fields, driven.StatusFieldURLText)
	}

	if len(fields) == 0 {
		return nil
	}

	update.Timestamp = w.now().UTC()
	fields = append(fields, driven.StatusFieldTimestamp)

	if err := w.store.Update(ctx, update, fields); err != nil {
		return fmt.Errorf("update status %d: %w", update.ID, err)
	}
	return nil
}

// setWaiting moves the status update into the deferred manual-run state.
func (w *statusWriter) setWaiting(ctx context.Context, update *model.StatusUpdate) error {
	return w.apply(ctx, update, statusChange{
		state:       statePtr(model.BuildStateNotYetRun),
		description: strPtr(descWaiting),
	})
}

// setStarting moves the status update into the in-flight state.
func (w *statusWriter) setStarting(ctx context.Context, update *model.StatusUpdate) error {
	return w.apply(ctx, update, statusChange{
		state:       statePtr(model.BuildStatePending),
		description: strPtr(descStarting),
	})
}

// setError moves the status update into the internal-error state. A URL and
// label are attached when the failure has a diagnostic page.
func (w *statusWriter) setError(ctx context.Context, update *model.StatusUpdate, description, url, urlText string) error {
	if description == "" {
		description = descError
	}

	change := statusChange{
		state:       statePtr(model.BuildStateError),
		description: strPtr(description),
	}
	if url != "" {
		change.url = strPtr(url)
		change.urlText = strPtr(urlText)
	}

	return w.apply(ctx, update, change)
}

func strPtr(s string) *string {
	return &s
}

func statePtr(s model.BuildState) *model.BuildState {
	return &s
}
