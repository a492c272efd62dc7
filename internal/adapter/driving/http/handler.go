// Package httphandler is the HTTP driving adapter: it receives publish and
// rerun notifications from the review tool and build-result webhooks from
// the CI vendors, and hands them to the orchestration core.
package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ericfisherdev/buildhub/internal/application"
	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	orchestrator *application.Orchestrator
	reconciler   *application.Reconciler
	statuses     driven.StatusStore
	logger       *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	orchestrator *application.Orchestrator,
	reconciler *application.Reconciler,
	statuses driven.StatusStore,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		reconciler:   reconciler,
		statuses:     statuses,
		logger:       logger,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /api/v1/events/published", h.PublishEvent)
	mux.HandleFunc("POST /api/v1/status-updates/{id}/rerun", h.RerunStatusUpdate)
	mux.HandleFunc("GET /api/v1/status-updates", h.ListStatusUpdates)
	mux.HandleFunc("POST /api/v1/webhooks/circleci", h.CircleCIWebhook)
	mux.HandleFunc("POST /api/v1/webhooks/travisci", h.TravisCIWebhook)
	mux.HandleFunc("POST /api/v1/webhooks/jenkins", h.JenkinsWebhook)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// ApplyMiddleware wraps a handler with request-id, logging, and recovery
// middleware. Recovery is innermost so panics are caught before logging.
func ApplyMiddleware(handler http.Handler, logger *slog.Logger) http.Handler {
	wrapped := recoveryMiddleware(logger, handler)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)
	return wrapped
}

// PublishEvent handles a review-request publish notification from the
// event source.
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var req PublishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReviewRequestID == 0 {
		writeError(w, http.StatusBadRequest, "review_request_id is required")
		return
	}

	event := model.ChangeEvent{
		ReviewRequestID:     req.ReviewRequestID,
		ChangeDescriptionID: req.ChangeDescriptionID,
		ActingUser:          req.User,
		Scope:               req.Scope,
	}

	if err := h.orchestrator.HandlePublish(r.Context(), event); err != nil {
		h.logger.Error("failed to handle publish event",
			"review_request_id", req.ReviewRequestID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, AckResponse{Status: "accepted"})
}

// RerunStatusUpdate handles a manual run or rerun request for an existing
// status update.
func (h *Handler) RerunStatusUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid status update ID")
		return
	}

	var req RerunRequest
	if r.Body != nil {
		// The config reference is optional; older event sources omit the
		// body entirely.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.orchestrator.HandleRerun(r.Context(), id, req.ConfigID); err != nil {
		h.logger.Error("failed to handle rerun",
			"status_update_id", id,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, AckResponse{Status: "accepted"})
}

// ListStatusUpdates returns the status updates for a review request.
func (h *Handler) ListStatusUpdates(w http.ResponseWriter, r *http.Request) {
	reviewRequestID, err := strconv.ParseInt(r.URL.Query().Get("review_request"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "review_request query parameter is required")
		return
	}

	updates, err := h.statuses.ListByReviewRequest(r.Context(), reviewRequestID)
	if err != nil {
		h.logger.Error("failed to list status updates",
			"review_request_id", reviewRequestID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]StatusUpdateResponse, 0, len(updates))
	for _, update := range updates {
		resp = append(resp, toStatusUpdateResponse(update))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CircleCIWebhook handles build-result notifications from CircleCI. The
// status update ID is echoed back in the build parameters buildhub set when
// triggering the build.
func (h *Handler) CircleCIWebhook(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Payload struct {
			Status          string         `json:"status"`
			BuildURL        string         `json:"build_url"`
			BuildParameters map[string]any `json:"build_parameters"`
		} `json:"payload"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.Payload.BuildParameters == nil {
		h.logger.Error("CircleCI webhook: unable to find build_parameters in payload")
		writeError(w, http.StatusBadRequest, "unable to find build_parameters in payload")
		return
	}

	statusUpdateID, ok := numericParam(payload.Payload.BuildParameters, "BUILDHUB_STATUS_UPDATE_ID")
	if !ok {
		// A normal CircleCI build, not one of ours.
		writeJSON(w, http.StatusOK, AckResponse{Status: "ignored"})
		return
	}

	h.logger.Debug("got CircleCI webhook event", "status_update_id", statusUpdateID)

	err := h.reconciler.Apply(r.Context(), "circleci", statusUpdateID,
		payload.Payload.Status, payload.Payload.BuildURL, "View Build")
	if err != nil {
		h.logger.Error("CircleCI webhook: failed to apply status",
			"status_update_id", statusUpdateID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, AckResponse{Status: "ok"})
}

// TravisCIWebhook handles build-result notifications from Travis CI. The
// payload arrives form-encoded, with the status update ID embedded in the
// build's global environment.
func (h *Handler) TravisCIWebhook(w http.ResponseWriter, r *http.Request) {
	raw := r.FormValue("payload")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing payload")
		return
	}

	var payload struct {
		State    string `json:"state"`
		BuildURL string `json:"build_url"`
		Matrix   []struct {
			Config struct {
				Env any `json:"env"`
			} `json:"config"`
		} `json:"matrix"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(payload.Matrix) == 0 {
		h.logger.Error("Travis CI webhook: got event without an env in config")
		writeError(w, http.StatusBadRequest, "got event without an env in config")
		return
	}

	statusUpdateID, ok := travisEnvStatusUpdateID(payload.Matrix[0].Config.Env)
	if !ok {
		h.logger.Error("Travis CI webhook: unable to find BUILDHUB_STATUS_UPDATE_ID in payload")
		writeError(w, http.StatusBadRequest, "unable to find BUILDHUB_STATUS_UPDATE_ID in payload")
		return
	}

	h.logger.Debug("got Travis CI webhook event", "status_update_id", statusUpdateID)

	err := h.reconciler.Apply(r.Context(), "travisci", statusUpdateID,
		payload.State, payload.BuildURL, "View Build")
	if err != nil {
		h.logger.Error("Travis CI webhook: failed to apply status",
			"status_update_id", statusUpdateID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, AckResponse{Status: "ok"})
}

// JenkinsWebhook handles the status callback posted by the Jenkins job.
// Unlike the vendor-shaped CircleCI and Travis payloads, this is buildhub's
// own JSON contract, spoken by the notifier step installed in the job.
func (h *Handler) JenkinsWebhook(w http.ResponseWriter, r *http.Request) {
	var req JenkinsWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.StatusUpdateID == 0 {
		writeError(w, http.StatusBadRequest, "status_update_id is required")
		return
	}

	h.logger.Debug("got Jenkins webhook event", "status_update_id", req.StatusUpdateID)

	err := h.reconciler.Apply(r.Context(), "jenkins", req.StatusUpdateID,
		req.Status, req.BuildURL, "View Build")
	if err != nil {
		h.logger.Error("Jenkins webhook: failed to apply status",
			"status_update_id", req.StatusUpdateID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, AckResponse{Status: "ok"})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

// numericParam extracts an int64 from a decoded JSON object, accepting
// both numeric and string encodings.
func numericParam(params map[string]any, key string) (int64, bool) {
	switch value := params[key].(type) {
	case float64:
		return int64(value), true
	case string:
		id, err := strconv.ParseInt(value, 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}

// travisEnvStatusUpdateID digs the status update ID out of a Travis env
// section, which may be a single string or a list of "KEY=value" lines.
func travisEnvStatusUpdateID(env any) (int64, bool) {
	var lines []string
	switch value := env.(type) {
	case string:
		lines = strings.Fields(value)
	case []any:
		for _, item := range value {
			if s, ok := item.(string); ok {
				lines = append(lines, strings.Fields(s)...)
			}
		}
	default:
		return 0, false
	}

	for _, line := range lines {
		key, value, found := strings.Cut(line, "=")
		if found && key == "BUILDHUB_STATUS_UPDATE_ID" {
			id, err := strconv.ParseInt(value, 10, 64)
			if err == nil {
				return id, true
			}
		}
	}

	return 0, false
}
