package model

import "time"

// StatusUpdate is the externally visible record of one build attempt. One
// is created per matching configuration per publish event, and mutated as
// the dispatch and the provider's asynchronous callback progress.
type StatusUpdate struct {
	ID                  int64
	ReviewRequestID     int64
	ChangeDescriptionID *int64 // Publish event this build belongs to; nil for a first publish.
	ConfigID            int64
	Provider            string // Provider ID, matching IntegrationConfig.Provider.
	Summary             string // Short human-readable summary, typically the provider name.
	Description         string
	State               BuildState
	URL                 string // Optional link to build results.
	URLText             string // Label for URL.
	CanRetry            bool   // Whether a manual rerun is permitted.
	UserID              int64  // Bot user owning the record.
	Timestamp           time.Time
}
