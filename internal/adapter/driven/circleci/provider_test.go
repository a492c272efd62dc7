package circleci

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

func githubConfig(settings map[string]string) model.IntegrationConfig {
	merged := map[string]string{
		SettingAPIToken: "circle-secret",
		SettingVCSType:  "github",
		SettingOrgName:  "example-org",
		SettingRepoName: "backend",
	}
	for k, v := range settings {
		merged[k] = v
	}
	return model.IntegrationConfig{ID: 5, Provider: "circleci", Settings: merged}
}

func preparedBundle(t *testing.T, p *Provider, config model.IntegrationConfig) *model.BuildPrep {
	t.Helper()

	prep := &model.BuildPrep{
		Configs:       []model.IntegrationConfig{config},
		DiffSet:       model.DiffSet{ID: 10, Revision: 2, BaseCommitID: "abc123"},
		ReviewRequest: model.ReviewRequest{ID: 1},
		ServerURL:     "https://reviews.example.com/",
		APIToken:      "bhp_token",
	}
	proceed, err := p.Prepare(context.Background(), prep)
	require.NoError(t, err)
	require.True(t, proceed)
	return prep
}

func TestPrepare_VetoesUnsupportedHosting(t *testing.T) {
	p := New(http.DefaultClient, slog.Default())

	tests := []struct {
		name    string
		vcsType string
		want    bool
	}{
		{"github allowed", "github", true},
		{"bitbucket allowed", "bitbucket", true},
		{"gitlab vetoed", "gitlab", false},
		{"unset vetoed", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prep := &model.BuildPrep{
				Configs: []model.IntegrationConfig{githubConfig(map[string]string{SettingVCSType: tt.vcsType})},
			}

			proceed, err := p.Prepare(context.Background(), prep)

			require.NoError(t, err)
			assert.Equal(t, tt.want, proceed)
		})
	}
}

func TestStartBuild_TriggersProjectTree(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("circle-token")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"build_url": "https://circleci.com/gh/example-org/backend/42"}`))
	}))
	defer srv.Close()

	p := NewWithAPIBase(srv.Client(), srv.URL, slog.Default())
	config := githubConfig(map[string]string{SettingBranchName: "main"})
	prep := preparedBundle(t, p, config)
	update := &model.StatusUpdate{ID: 33, State: model.BuildStatePending}

	err := p.StartBuild(context.Background(), prep, config, update)

	require.NoError(t, err)
	assert.Equal(t, "/project/github/example-org/backend/tree/main", gotPath)
	assert.Equal(t, "circle-secret", gotToken)
	assert.Equal(t, "abc123", gotBody["revision"])

	params, ok := gotBody["build_parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "buildhub", params["CIRCLE_JOB"])
	assert.Equal(t, "https://reviews.example.com/", params["BUILDHUB_SERVER"])
	assert.Equal(t, float64(1), params["BUILDHUB_REVIEW_REQUEST"])
	assert.Equal(t, float64(2), params["BUILDHUB_DIFF_REVISION"])
	assert.Equal(t, "bhp_token", params["BUILDHUB_API_TOKEN"])
	assert.Equal(t, float64(33), params["BUILDHUB_STATUS_UPDATE_ID"])
	assert.NotContains(t, params, "BUILDHUB_SCOPE")

	assert.Equal(t, "https://circleci.com/gh/example-org/backend/42", update.URL)
	assert.Equal(t, "View Build", update.URLText)
}

func TestStartBuild_ScopedSiteAddsScopeParameter(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		_, _ = w.Write([]byte(`{"build_url": ""}`))
	}))
	defer srv.Close()

	p := NewWithAPIBase(srv.Client(), srv.URL, slog.Default())
	config := githubConfig(nil)
	prep := preparedBundle(t, p, config)
	prep.ReviewRequest.Scope = "team-x"

	err := p.StartBuild(context.Background(), prep, config, &model.StatusUpdate{ID: 33})

	require.NoError(t, err)
	params := gotBody["build_parameters"].(map[string]any)
	assert.Equal(t, "team-x", params["BUILDHUB_SCOPE"])
}

func TestStartBuild_DefaultBranchIsMaster(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"build_url": ""}`))
	}))
	defer srv.Close()

	p := NewWithAPIBase(srv.Client(), srv.URL, slog.Default())
	config := githubConfig(nil)
	prep := preparedBundle(t, p, config)

	require.NoError(t, p.StartBuild(context.Background(), prep, config, &model.StatusUpdate{ID: 33}))

	assert.Equal(t, "/project/github/example-org/backend/tree/master", gotPath)
}

func TestStartBuild_MissingAPIToken(t *testing.T) {
	p := New(http.DefaultClient, slog.Default())
	config := githubConfig(map[string]string{SettingAPIToken: ""})
	prep := preparedBundle(t, p, config)

	err := p.StartBuild(context.Background(), prep, config, &model.StatusUpdate{ID: 33})

	var buildErr *driven.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "missing API token.", buildErr.Message)
}

func TestStartBuild_NonSuccessStatusIsInternalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewWithAPIBase(srv.Client(), srv.URL, slog.Default())
	config := githubConfig(nil)
	prep := preparedBundle(t, p, config)

	err := p.StartBuild(context.Background(), prep, config, &model.StatusUpdate{ID: 33})

	require.Error(t, err)
	var buildErr *driven.BuildError
	assert.False(t, errors.As(err, &buildErr), "an HTTP failure is not a user-facing build error")
}

func TestMapWebhookStatus(t *testing.T) {
	p := New(http.DefaultClient, slog.Default())

	tests := []struct {
		vendorStatus string
		wantState    model.BuildState
		wantDesc     string
		wantOK       bool
	}{
		{"success", model.BuildStateDoneSuccess, "build succeeded.", true},
		{"fixed", model.BuildStateDoneSuccess, "build succeeded.", true},
		{"failed", model.BuildStateDoneFailure, "build failed.", true},
		{"canceled", model.BuildStateDoneFailure, "build canceled.", true},
		{"infrastructure_fail", model.BuildStateError, "build infrastructure failure.", true},
		{"timedout", model.BuildStateTimeout, "build timed out.", true},
		{"queued", model.BuildStatePending, "build queued.", true},
		{"running", model.BuildStatePending, "build running.", true},
		{"scheduled", model.BuildStatePending, "build scheduled.", true},
		{"retried", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.vendorStatus, func(t *testing.T) {
			state, desc, ok := p.MapWebhookStatus(tt.vendorStatus)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantState, state)
				assert.Equal(t, tt.wantDesc, desc)
			}
		})
	}
}
