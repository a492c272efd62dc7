// Package circleci triggers builds through the CircleCI v1.1 API. Build
// results come back through CircleCI's webhook notifications.
package circleci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// Settings keys understood by this provider.
const (
	SettingAPIToken   = "circle_api_token"
	SettingBranchName = "branch_name"
	SettingVCSType    = "vcs_type"  // "github" or "bitbucket".
	SettingOrgName    = "org_name"  // Organization or user owning the repo.
	SettingRepoName   = "repo_name" // Repository name on the hosting service.
)

const apiBase = "https://circleci.com/api/v1.1"

// Compile-time interface satisfaction check.
var _ driven.Provider = (*Provider)(nil)

// Provider integrates buildhub with CircleCI.
type Provider struct {
	client  *http.Client
	apiBase string
	logger  *slog.Logger
}

// New creates a CircleCI provider using the given HTTP client.
func New(client *http.Client, logger *slog.Logger) *Provider {
	return &Provider{client: client, apiBase: apiBase, logger: logger}
}

// NewWithAPIBase creates a provider pointed at a non-default API base URL.
// Used by tests and CircleCI Enterprise installs.
func NewWithAPIBase(client *http.Client, base string, logger *slog.Logger) *Provider {
	return &Provider{client: client, apiBase: base, logger: logger}
}

// ID implements driven.Provider.
func (p *Provider) ID() string { return "circleci" }

// Name implements driven.Provider.
func (p *Provider) Name() string { return "CircleCI" }

// BotProfile implements driven.Provider.
func (p *Provider) BotProfile() model.BotProfile {
	return model.BotProfile{
		Username:  "circle-ci",
		FirstName: "Circle",
		LastName:  "CI",
		AvatarURL: "https://static.buildhub.io/images/circleci/icon.png",
	}
}

// prepState is the provider extension state stashed on the prep bundle.
type prepState struct {
	vcsType string
}

// Prepare narrows the batch to configs with a supported hosting service.
// CircleCI only builds changes hosted on GitHub or Bitbucket; anything else
// vetoes the batch.
func (p *Provider) Prepare(ctx context.Context, prep *model.BuildPrep) (bool, error) {
	if len(prep.Configs) == 0 {
		return false, nil
	}

	// The vcs_type values accepted by CircleCI's API currently line up
	// with these names, but map them explicitly in case that changes.
	vcsType := prep.Configs[0].Setting(SettingVCSType)
	switch vcsType {
	case "github", "bitbucket":
	default:
		return false, nil
	}

	prep.Extra = prepState{vcsType: vcsType}

	return true, nil
}

// StartBuild triggers a CircleCI build for the given review request and
// config.
func (p *Provider) StartBuild(ctx context.Context, prep *model.BuildPrep, config model.IntegrationConfig, update *model.StatusUpdate) error {
	state, ok := prep.Extra.(prepState)
	if !ok {
		return fmt.Errorf("missing CircleCI prep state")
	}

	apiToken := config.Setting(SettingAPIToken)
	if apiToken == "" {
		p.logger.Error("unable to make CircleCI API request: api_token is missing",
			"config_id", config.ID,
		)
		return driven.NewBuildError("missing API token.")
	}

	branch := config.Setting(SettingBranchName)
	if branch == "" {
		branch = "master"
	}

	reqURL := fmt.Sprintf("%s/project/%s/%s/%s/tree/%s?circle-token=%s",
		p.apiBase, state.vcsType,
		url.PathEscape(config.Setting(SettingOrgName)),
		url.PathEscape(config.Setting(SettingRepoName)),
		url.PathEscape(branch),
		url.QueryEscape(apiToken),
	)

	buildParams := map[string]any{
		"CIRCLE_JOB":                "buildhub",
		"BUILDHUB_SERVER":           prep.ServerURL,
		"BUILDHUB_REVIEW_REQUEST":   prep.ReviewRequest.ID,
		"BUILDHUB_DIFF_REVISION":    prep.DiffSet.Revision,
		"BUILDHUB_API_TOKEN":        prep.APIToken,
		"BUILDHUB_STATUS_UPDATE_ID": update.ID,
	}
	if scope := prep.ReviewRequest.Scope; scope != "" {
		buildParams["BUILDHUB_SCOPE"] = scope
	}

	body, err := json.Marshal(map[string]any{
		"revision":         prep.DiffSet.BaseCommitID,
		"build_parameters": buildParams,
	})
	if err != nil {
		return fmt.Errorf("marshal CircleCI request: %w", err)
	}

	p.logger.Info("making CircleCI API request",
		"review_request_id", prep.ReviewRequest.ID,
		"config_id", config.ID,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build CircleCI request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("CircleCI API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("CircleCI API request failed with status %d", resp.StatusCode)
	}

	var result struct {
		BuildURL string `json:"build_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode CircleCI response: %w", err)
	}

	update.URL = result.BuildURL
	update.URLText = "View Build"

	return nil
}

// MapWebhookStatus translates CircleCI's status vocabulary. The statuses
// not listed here exist in CircleCI's API but are not interesting to
// reviewers.
func (p *Provider) MapWebhookStatus(vendorStatus string) (model.BuildState, string, bool) {
	switch vendorStatus {
	case "canceled":
		return model.BuildStateDoneFailure, "build canceled.", true
	case "infrastructure_fail":
		return model.BuildStateError, "build infrastructure failure.", true
	case "failed":
		return model.BuildStateDoneFailure, "build failed.", true
	case "fixed", "success":
		return model.BuildStateDoneSuccess, "build succeeded.", true
	case "queued":
		return model.BuildStatePending, "build queued.", true
	case "running":
		return model.BuildStatePending, "build running.", true
	case "scheduled":
		return model.BuildStatePending, "build scheduled.", true
	case "timedout":
		return model.BuildStateTimeout, "build timed out.", true
	default:
		return "", "", false
	}
}
