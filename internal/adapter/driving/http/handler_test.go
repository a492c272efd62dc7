package httphandler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/buildhub/internal/application"
	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// --- Stub stores and providers ---

type stubConfigStore struct {
	configs []model.IntegrationConfig
}

func (s *stubConfigStore) ListEnabled(_ context.Context, provider, scope string) ([]model.IntegrationConfig, error) {
	var out []model.IntegrationConfig
	for _, c := range s.configs {
		if c.Enabled && c.Provider == provider && c.Scope == scope {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubConfigStore) GetByID(_ context.Context, id int64) (*model.IntegrationConfig, error) {
	for _, c := range s.configs {
		if c.ID == id {
			config := c
			return &config, nil
		}
	}
	return nil, nil
}

type stubStatusStore struct {
	nextID int64
	byID   map[int64]*model.StatusUpdate
}

func newStubStatusStore() *stubStatusStore {
	return &stubStatusStore{byID: make(map[int64]*model.StatusUpdate)}
}

func (s *stubStatusStore) Create(_ context.Context, update *model.StatusUpdate) error {
	s.nextID++
	update.ID = s.nextID
	stored := *update
	s.byID[update.ID] = &stored
	return nil
}

func (s *stubStatusStore) GetByID(_ context.Context, id int64) (*model.StatusUpdate, error) {
	stored, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	update := *stored
	return &update, nil
}

func (s *stubStatusStore) ListByReviewRequest(_ context.Context, reviewRequestID int64) ([]model.StatusUpdate, error) {
	var out []model.StatusUpdate
	for id := s.nextID; id >= 1; id-- {
		if stored, ok := s.byID[id]; ok && stored.ReviewRequestID == reviewRequestID {
			out = append(out, *stored)
		}
	}
	return out, nil
}

func (s *stubStatusStore) Update(_ context.Context, update *model.StatusUpdate, _ []string) error {
	stored := *update
	s.byID[update.ID] = &stored
	return nil
}

type stubReviewStore struct {
	rr   *model.ReviewRequest
	diff *model.DiffSet
}

func (s *stubReviewStore) GetReviewRequest(_ context.Context, id int64) (*model.ReviewRequest, error) {
	if s.rr != nil && s.rr.ID == id {
		rr := *s.rr
		return &rr, nil
	}
	return nil, nil
}

func (s *stubReviewStore) GetChangeDescription(_ context.Context, _ int64) (*model.ChangeDescription, error) {
	return nil, nil
}

func (s *stubReviewStore) LatestDiff(_ context.Context, _ int64) (*model.DiffSet, error) {
	return s.diff, nil
}

func (s *stubReviewStore) EarliestDiff(_ context.Context, _ int64) (*model.DiffSet, error) {
	return s.diff, nil
}

func (s *stubReviewStore) GetDiff(_ context.Context, _ int64) (*model.DiffSet, error) {
	return s.diff, nil
}

type stubIdentityStore struct {
	nextID int64
	users  map[string]*model.BotUser
	tokens []*model.APIToken
}

func newStubIdentityStore() *stubIdentityStore {
	return &stubIdentityStore{users: make(map[string]*model.BotUser)}
}

func (s *stubIdentityStore) GetUserByUsername(_ context.Context, username string) (*model.BotUser, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	out := *user
	return &out, nil
}

func (s *stubIdentityStore) CreateUser(_ context.Context, user *model.BotUser) error {
	if _, exists := s.users[user.Username]; exists {
		return driven.ErrUserExists
	}
	s.nextID++
	user.ID = s.nextID
	stored := *user
	s.users[user.Username] = &stored
	return nil
}

func (s *stubIdentityStore) UpdateUser(_ context.Context, user *model.BotUser) error {
	stored := *user
	s.users[user.Username] = &stored
	return nil
}

func (s *stubIdentityStore) GetAPIToken(_ context.Context, userID int64, scope string) (*model.APIToken, error) {
	for _, token := range s.tokens {
		if token.UserID == userID && token.Scope == scope {
			out := *token
			return &out, nil
		}
	}
	return nil, nil
}

func (s *stubIdentityStore) CreateAPIToken(_ context.Context, token *model.APIToken) error {
	s.nextID++
	token.ID = s.nextID
	stored := *token
	s.tokens = append(s.tokens, &stored)
	return nil
}

type stubProvider struct {
	id string
}

func (p *stubProvider) ID() string   { return p.id }
func (p *stubProvider) Name() string { return p.id + " CI" }

func (p *stubProvider) BotProfile() model.BotProfile {
	return model.BotProfile{Username: p.id + "-bot"}
}

func (p *stubProvider) Prepare(_ context.Context, _ *model.BuildPrep) (bool, error) {
	return true, nil
}

func (p *stubProvider) StartBuild(_ context.Context, _ *model.BuildPrep, _ model.IntegrationConfig, _ *model.StatusUpdate) error {
	return nil
}

func (p *stubProvider) MapWebhookStatus(vendorStatus string) (model.BuildState, string, bool) {
	switch vendorStatus {
	case "success", "passed", "SUCCESS":
		return model.BuildStateDoneSuccess, "build succeeded.", true
	case "failed", "FAILURE":
		return model.BuildStateDoneFailure, "build failed.", true
	default:
		return "", "", false
	}
}

// --- Fixture ---

type handlerFixture struct {
	server   http.Handler
	statuses *stubStatusStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	configStore := &stubConfigStore{
		configs: []model.IntegrationConfig{
			{
				ID:         5,
				Provider:   "circleci",
				Name:       "backend builds",
				Enabled:    true,
				Conditions: model.ConditionSet{Mode: model.ConditionModeAlways},
			},
		},
	}
	statusStore := newStubStatusStore()
	reviewStore := &stubReviewStore{
		rr:   &model.ReviewRequest{ID: 1, Repository: "backend", Branch: "main"},
		diff: &model.DiffSet{ID: 10, ReviewRequestID: 1, Revision: 1},
	}
	identitySvc := application.NewIdentityService(newStubIdentityStore(), "noreply@localhost", slog.Default())

	orchestrator, err := application.NewOrchestrator(
		[]driven.Provider{
			&stubProvider{id: "circleci"},
			&stubProvider{id: "travisci"},
			&stubProvider{id: "jenkins"},
		},
		configStore,
		statusStore,
		reviewStore,
		identitySvc,
		"https://reviews.example.com",
		slog.Default(),
	)
	require.NoError(t, err)

	reconciler := application.NewReconciler(orchestrator, slog.Default())
	h := NewHandler(orchestrator, reconciler, statusStore, slog.Default())

	mux := http.NewServeMux()
	RegisterRoutes(mux, h)

	return &handlerFixture{
		server:   ApplyMiddleware(mux, slog.Default()),
		statuses: statusStore,
	}
}

func (f *handlerFixture) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) seedStatusUpdate(t *testing.T) int64 {
	t.Helper()

	rec := f.do(http.MethodPost, "/api/v1/events/published", "application/json",
		`{"review_request_id": 1}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var updates []model.StatusUpdate
	for _, u := range f.statuses.byID {
		updates = append(updates, *u)
	}
	require.Len(t, updates, 1)
	return updates[0].ID
}

// --- Publish endpoint ---

func TestPublishEvent_CreatesStatusUpdates(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/events/published", "application/json",
		`{"review_request_id": 1}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.statuses.byID, 1)
	for _, update := range f.statuses.byID {
		assert.Equal(t, model.BuildStatePending, update.State)
		assert.Equal(t, int64(5), update.ConfigID)
	}
}

func TestPublishEvent_InvalidBody(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/events/published", "application/json", "{")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublishEvent_MissingReviewRequestID(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/events/published", "application/json", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.statuses.byID)
}

// --- Rerun endpoint ---

func TestRerunStatusUpdate_Accepted(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.seedStatusUpdate(t)

	rec := f.do(http.MethodPost, fmt.Sprintf("/api/v1/status-updates/%d/rerun", id), "application/json", `{}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRerunStatusUpdate_InvalidID(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/status-updates/notanumber/rerun", "application/json", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRerunStatusUpdate_UnknownIDStillAccepted(t *testing.T) {
	// Rerun of a vanished status update is acknowledged and dropped, not
	// surfaced as a client error.
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/status-updates/999/rerun", "application/json", "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

// --- Listing endpoint ---

func TestListStatusUpdates(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedStatusUpdate(t)

	rec := f.do(http.MethodGet, "/api/v1/status-updates?review_request=1", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []StatusUpdateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "circleci", got[0].Provider)
	assert.Equal(t, "pending", got[0].State)
}

func TestListStatusUpdates_MissingParameter(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/status-updates", "", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListStatusUpdates_EmptyResultIsEmptyArray(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/status-updates?review_request=1", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

// --- Webhook endpoints ---

func TestCircleCIWebhook_AppliesStatus(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.seedStatusUpdate(t)

	payload := fmt.Sprintf(`{
		"payload": {
			"status": "success",
			"build_url": "https://circleci.com/gh/example/42",
			"build_parameters": {"BUILDHUB_STATUS_UPDATE_ID": "%d"}
		}
	}`, id)

	rec := f.do(http.MethodPost, "/api/v1/webhooks/circleci", "application/json", payload)

	require.Equal(t, http.StatusOK, rec.Code)
	update := f.statuses.byID[id]
	assert.Equal(t, model.BuildStateDoneSuccess, update.State)
	assert.Equal(t, "https://circleci.com/gh/example/42", update.URL)
}

func TestCircleCIWebhook_ForeignBuildIgnored(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.seedStatusUpdate(t)

	payload := `{"payload": {"status": "success", "build_parameters": {"CIRCLE_JOB": "deploy"}}}`

	rec := f.do(http.MethodPost, "/api/v1/webhooks/circleci", "application/json", payload)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.BuildStatePending, f.statuses.byID[id].State)
}

func TestCircleCIWebhook_MissingBuildParameters(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/webhooks/circleci", "application/json",
		`{"payload": {"status": "success"}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTravisCIWebhook_AppliesStatus(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.seedStatusUpdate(t)

	payload := fmt.Sprintf(`{
		"state": "passed",
		"build_url": "https://travis-ci.com/example/builds/7",
		"matrix": [{"config": {"env": ["BUILDHUB_STATUS_UPDATE_ID=%d BUILDHUB_CONFIG_ID=5"]}}]
	}`, id)

	form := url.Values{"payload": {payload}}
	rec := f.do(http.MethodPost, "/api/v1/webhooks/travisci",
		"application/x-www-form-urlencoded", form.Encode())

	require.Equal(t, http.StatusOK, rec.Code)
	update := f.statuses.byID[id]
	assert.Equal(t, model.BuildStateDoneSuccess, update.State)
	assert.Equal(t, "https://travis-ci.com/example/builds/7", update.URL)
}

func TestTravisCIWebhook_MissingPayload(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/webhooks/travisci",
		"application/x-www-form-urlencoded", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTravisCIWebhook_MissingStatusUpdateID(t *testing.T) {
	f := newHandlerFixture(t)

	form := url.Values{"payload": {`{"state": "passed", "matrix": [{"config": {"env": ["FOO=1"]}}]}`}}
	rec := f.do(http.MethodPost, "/api/v1/webhooks/travisci",
		"application/x-www-form-urlencoded", form.Encode())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJenkinsWebhook_AppliesStatus(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.seedStatusUpdate(t)

	payload := fmt.Sprintf(`{
		"status_update_id": %d,
		"status": "FAILURE",
		"build_url": "https://jenkins.example.com/job/backend/15/"
	}`, id)

	rec := f.do(http.MethodPost, "/api/v1/webhooks/jenkins", "application/json", payload)

	require.Equal(t, http.StatusOK, rec.Code)
	update := f.statuses.byID[id]
	assert.Equal(t, model.BuildStateDoneFailure, update.State)
	assert.Equal(t, "https://jenkins.example.com/job/backend/15/", update.URL)
}

func TestJenkinsWebhook_MissingStatusUpdateID(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/webhooks/jenkins", "application/json",
		`{"status": "SUCCESS"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Health and middleware ---

func TestHealth(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/health", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestRequestIDMiddleware_AssignsAndEchoes(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/health", "", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-Id", "caller-chosen")
	echoed := httptest.NewRecorder()
	f.server.ServeHTTP(echoed, req)
	assert.Equal(t, "caller-chosen", echoed.Header().Get("X-Request-Id"))
}

func TestTravisEnvStatusUpdateID(t *testing.T) {
	tests := []struct {
		name   string
		env    any
		wantID int64
		wantOK bool
	}{
		{"single string", "BUILDHUB_STATUS_UPDATE_ID=42", 42, true},
		{"string with other vars", "FOO=1 BUILDHUB_STATUS_UPDATE_ID=42 BAR=2", 42, true},
		{"list of strings", []any{"FOO=1", "BUILDHUB_STATUS_UPDATE_ID=7"}, 7, true},
		{"absent", "FOO=1", 0, false},
		{"not parseable", "BUILDHUB_STATUS_UPDATE_ID=abc", 0, false},
		{"wrong type", map[string]any{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := travisEnvStatusUpdateID(tt.env)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
