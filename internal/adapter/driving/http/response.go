package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
)

// PublishEventRequest is the body of a publish notification from the
// event source.
type PublishEventRequest struct {
	ReviewRequestID     int64  `json:"review_request_id"`
	ChangeDescriptionID *int64 `json:"change_description_id,omitempty"`
	User                string `json:"user,omitempty"`
	Scope               string `json:"scope,omitempty"`
}

// RerunRequest is the optional body of a rerun request. ConfigID lets the
// caller name the configuration when the status update predates config
// references.
type RerunRequest struct {
	ConfigID *int64 `json:"config_id,omitempty"`
}

// JenkinsWebhookRequest is the status callback contract spoken by the
// notifier step in the Jenkins job.
type JenkinsWebhookRequest struct {
	StatusUpdateID int64  `json:"status_update_id"`
	Status         string `json:"status"`
	BuildURL       string `json:"build_url,omitempty"`
}

// StatusUpdateResponse is the JSON representation of a status update.
type StatusUpdateResponse struct {
	ID                  int64     `json:"id"`
	ReviewRequestID     int64     `json:"review_request_id"`
	ChangeDescriptionID *int64    `json:"change_description_id,omitempty"`
	ConfigID            int64     `json:"config_id"`
	Provider            string    `json:"provider"`
	Summary             string    `json:"summary"`
	Description         string    `json:"description"`
	State               string    `json:"state"`
	URL                 string    `json:"url,omitempty"`
	URLText             string    `json:"url_text,omitempty"`
	CanRetry            bool      `json:"can_retry"`
	Timestamp           time.Time `json:"timestamp"`
}

// AckResponse acknowledges an accepted or processed request.
type AckResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toStatusUpdateResponse(update model.StatusUpdate) StatusUpdateResponse {
	return StatusUpdateResponse{
		ID:                  update.ID,
		ReviewRequestID:     update.ReviewRequestID,
		ChangeDescriptionID: update.ChangeDescriptionID,
		ConfigID:            update.ConfigID,
		Provider:            update.Provider,
		Summary:             update.Summary,
		Description:         update.Description,
		State:               string(update.State),
		URL:                 update.URL,
		URLText:             update.URLText,
		CanRetry:            update.CanRetry,
		Timestamp:           update.Timestamp,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
