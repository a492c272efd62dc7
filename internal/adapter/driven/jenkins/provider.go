// Package jenkins triggers builds on a Jenkins server via the remote build
// API. Build results come back through a status callback posted by the
// Jenkins job.
package jenkins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// Settings keys understood by this provider.
const (
	SettingEndpoint = "jenkins_endpoint"
	SettingJobName  = "jenkins_job_name"
	SettingUsername = "jenkins_username"
	SettingAPIToken = "jenkins_api_token"
)

// Compile-time interface satisfaction check.
var _ driven.Provider = (*Provider)(nil)

// Provider integrates buildhub with Jenkins.
type Provider struct {
	client *http.Client
	logger *slog.Logger
}

// New creates a Jenkins provider using the given HTTP client.
func New(client *http.Client, logger *slog.Logger) *Provider {
	return &Provider{client: client, logger: logger}
}

// ID implements driven.Provider.
func (p *Provider) ID() string { return "jenkins" }

// Name implements driven.Provider.
func (p *Provider) Name() string { return "Jenkins CI" }

// BotProfile implements driven.Provider.
func (p *Provider) BotProfile() model.BotProfile {
	return model.BotProfile{
		Username:  "jenkins-ci",
		FirstName: "Jenkins",
		LastName:  "CI",
		AvatarURL: "https://static.buildhub.io/images/jenkins/icon.png",
	}
}

// prepState is the provider extension state stashed on the prep bundle.
type prepState struct {
	reviewBranch string
	diffRevision int
}

// Prepare stashes the patch information common to every Jenkins build in
// the batch. Jenkins builds anything, so the batch is never vetoed.
func (p *Provider) Prepare(ctx context.Context, prep *model.BuildPrep) (bool, error) {
	prep.Extra = prepState{
		reviewBranch: prep.ReviewRequest.Branch,
		diffRevision: prep.DiffSet.Revision,
	}
	return true, nil
}

// StartBuild triggers a Jenkins build for the given review request and
// config.
func (p *Provider) StartBuild(ctx context.Context, prep *model.BuildPrep, config model.IntegrationConfig, update *model.StatusUpdate) error {
	state, ok := prep.Extra.(prepState)
	if !ok {
		return fmt.Errorf("missing Jenkins prep state")
	}

	endpoint := strings.TrimSuffix(config.Setting(SettingEndpoint), "/")
	if endpoint == "" {
		return driven.NewBuildError("missing Jenkins endpoint.")
	}

	jobName := expandJobName(config.Setting(SettingJobName), prep.ReviewRequest)

	payload := map[string]any{
		"parameter": []map[string]any{
			{"name": "BUILDHUB_SERVER", "value": prep.ServerURL},
			{"name": "BUILDHUB_REVIEW_REQUEST", "value": prep.ReviewRequest.ID},
			{"name": "BUILDHUB_REVIEW_BRANCH", "value": state.reviewBranch},
			{"name": "BUILDHUB_DIFF_REVISION", "value": state.diffRevision},
			{"name": "BUILDHUB_API_TOKEN", "value": prep.APIToken},
			{"name": "BUILDHUB_STATUS_UPDATE_ID", "value": update.ID},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal Jenkins request: %w", err)
	}

	p.logger.Info("triggering Jenkins build",
		"review_request_id", prep.ReviewRequest.ID,
		"diff_revision", state.diffRevision,
		"job", jobName,
	)

	// The json form field is not part of the official REST API, but is
	// the documented way to initiate a remote parameterized build.
	form := url.Values{"json": {string(body)}}
	reqURL := fmt.Sprintf("%s/job/%s/build", endpoint, url.PathEscape(jobName))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build Jenkins request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if username := config.Setting(SettingUsername); username != "" {
		req.SetBasicAuth(username, config.Setting(SettingAPIToken))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return driven.NewBuildError("failed to communicate with Jenkins.")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return driven.NewBuildError("failed, job does not exist.")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return driven.NewBuildError("failed to communicate with Jenkins.")
	}

	return nil
}

// MapWebhookStatus translates the result strings reported by the Jenkins
// job's status callback.
func (p *Provider) MapWebhookStatus(vendorStatus string) (model.BuildState, string, bool) {
	switch vendorStatus {
	case "SUCCESS":
		return model.BuildStateDoneSuccess, "build succeeded.", true
	case "FAILURE":
		return model.BuildStateDoneFailure, "build failed.", true
	case "UNSTABLE":
		return model.BuildStateDoneFailure, "build unstable.", true
	case "ABORTED":
		return model.BuildStateDoneFailure, "build canceled.", true
	case "BUILDING":
		return model.BuildStatePending, "build running.", true
	case "TIMEOUT":
		return model.BuildStateTimeout, "build timed out.", true
	default:
		return "", "", false
	}
}

// expandJobName replaces {repository} and {branch} in the configured job
// name template, then flattens path separators the way Jenkins job names
// require.
func expandJobName(template string, rr model.ReviewRequest) string {
	name := strings.ReplaceAll(template, "{repository}", rr.Repository)
	name = strings.ReplaceAll(name, "{branch}", rr.Branch)
	return strings.ReplaceAll(name, "/", "_")
}
