// Package travisci triggers builds through the Travis CI v3 request API.
// The configured .travis.yml is rewritten to check out the change under
// review and to report results back through Travis's webhook notifications.
package travisci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// Settings keys understood by this provider.
const (
	SettingEndpoint   = "travis_endpoint" // API base URL, e.g. https://api.travis-ci.com.
	SettingAPIToken   = "travis_ci_token"
	SettingTravisYML  = "travis_yml"
	SettingBranchName = "branch_name"
	SettingRepoSlug   = "repo_slug" // GitHub "owner/name" slug.
	SettingVCSType    = "vcs_type"  // Travis only builds GitHub-hosted changes.
)

// Compile-time interface satisfaction check.
var _ driven.Provider = (*Provider)(nil)

// Provider integrates buildhub with Travis CI.
type Provider struct {
	client *http.Client
	logger *slog.Logger
}

// New creates a Travis CI provider using the given HTTP client.
func New(client *http.Client, logger *slog.Logger) *Provider {
	return &Provider{client: client, logger: logger}
}

// ID implements driven.Provider.
func (p *Provider) ID() string { return "travisci" }

// Name implements driven.Provider.
func (p *Provider) Name() string { return "Travis CI" }

// BotProfile implements driven.Provider.
func (p *Provider) BotProfile() model.BotProfile {
	return model.BotProfile{
		Username:  "travis-ci",
		FirstName: "Travis",
		LastName:  "CI",
		AvatarURL: "https://static.buildhub.io/images/travisci/icon.png",
	}
}

// prepState is the provider extension state stashed on the prep bundle.
type prepState struct {
	commitMessage string
	webhookURL    string
}

// Prepare vetoes batches whose repository is not hosted on GitHub, and
// stashes the commit message and callback URL shared by every build in the
// batch.
func (p *Provider) Prepare(ctx context.Context, prep *model.BuildPrep) (bool, error) {
	if len(prep.Configs) == 0 {
		return false, nil
	}

	if prep.Configs[0].Setting(SettingVCSType) != "github" {
		return false, nil
	}

	rr := prep.ReviewRequest
	prep.Extra = prepState{
		commitMessage: fmt.Sprintf("%s\n\n%s", rr.Summary, rr.Description),
		webhookURL:    prep.ServerURL + "api/v1/webhooks/travisci",
	}

	return true, nil
}

// StartBuild triggers a Travis CI build for the given review request and
// config.
func (p *Provider) StartBuild(ctx context.Context, prep *model.BuildPrep, config model.IntegrationConfig, update *model.StatusUpdate) error {
	state, ok := prep.Extra.(prepState)
	if !ok {
		return fmt.Errorf("missing Travis CI prep state")
	}

	apiToken := config.Setting(SettingAPIToken)
	if apiToken == "" {
		return driven.NewBuildError("missing API token.")
	}

	endpoint := strings.TrimSuffix(config.Setting(SettingEndpoint), "/")
	if endpoint == "" {
		endpoint = "https://api.travis-ci.com"
	}

	travisConfig, err := rewriteTravisConfig(config.Setting(SettingTravisYML), prep, state, update, config.ID)
	if err != nil {
		return err
	}

	p.logger.Info("triggering Travis CI build",
		"review_request_id", prep.ReviewRequest.ID,
		"diff_revision", prep.DiffSet.Revision,
		"config_id", config.ID,
	)

	branch := config.Setting(SettingBranchName)
	if branch == "" {
		branch = "master"
	}

	request := map[string]any{
		"message": state.commitMessage,
		"config":  travisConfig,
		"branch":  branch,
	}

	body, err := json.Marshal(map[string]any{"request": request})
	if err != nil {
		return fmt.Errorf("marshal Travis CI request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/repo/%s/requests",
		endpoint, url.QueryEscape(config.Setting(SettingRepoSlug)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build Travis CI request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "token "+apiToken)
	req.Header.Set("Travis-API-Version", "3")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("Travis CI API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Travis CI API request failed with status %d", resp.StatusCode)
	}

	return nil
}

// MapWebhookStatus translates Travis CI's build state vocabulary.
func (p *Provider) MapWebhookStatus(vendorStatus string) (model.BuildState, string, bool) {
	switch vendorStatus {
	case "passed":
		return model.BuildStateDoneSuccess, "build succeeded.", true
	case "started":
		return model.BuildStatePending, "building...", true
	case "errored", "failed":
		return model.BuildStateDoneFailure, "build failed.", true
	default:
		return "", "", false
	}
}

// rewriteTravisConfig parses the admin-provided .travis.yml and injects the
// steps that fetch and apply the change under review, plus the webhook
// notification and environment needed to route results back to the right
// status update.
func rewriteTravisConfig(travisYML string, prep *model.BuildPrep, state prepState, update *model.StatusUpdate, configID int64) (map[string]any, error) {
	travisConfig := map[string]any{}
	if err := yaml.Unmarshal([]byte(travisYML), &travisConfig); err != nil {
		return nil, driven.NewBuildError("unable to parse travis.yml configuration.")
	}

	// Check out the tested commit and apply the diff before the user's
	// own before_install steps. The patch is fetched from the server that
	// dispatched the build, authenticated with the bot's API token.
	var beforeInstall []any

	if gitDepth(travisConfig) {
		beforeInstall = append(beforeInstall, "git fetch --unshallow origin || true")
	}
	beforeInstall = append(beforeInstall,
		fmt.Sprintf("git checkout %s", prep.DiffSet.BaseCommitID),
		fmt.Sprintf(
			"curl -sf -H \"Authorization: token $BUILDHUB_API_TOKEN\" %sapi/v1/review-requests/%d/diffs/%d/raw | patch -p1",
			prep.ServerURL, prep.ReviewRequest.ID, prep.DiffSet.Revision),
	)

	oldInstall := asList(travisConfig["before_install"])
	travisConfig["before_install"] = append(beforeInstall, oldInstall...)

	// Route build results back through the webhook, and silence Travis's
	// own notification email.
	notifications := asMap(travisConfig["notifications"])
	webhooks := asMap(notifications["webhooks"])
	urls := asList(webhooks["urls"])
	webhooks["urls"] = append(urls, state.webhookURL)
	webhooks["on_start"] = "always"
	notifications["webhooks"] = webhooks
	notifications["email"] = false
	travisConfig["notifications"] = notifications

	// The webhook payload echoes the build environment; these variables
	// let the webhook handler find the right status update.
	env := asMap(travisConfig["env"])
	if _, ok := travisConfig["env"].(map[string]any); !ok && travisConfig["env"] != nil {
		// A bare list or string env is matrix shorthand.
		env = map[string]any{"matrix": travisConfig["env"]}
	}

	global := asList(env["global"])
	global = append(global,
		fmt.Sprintf("BUILDHUB_STATUS_UPDATE_ID=%d", update.ID),
		fmt.Sprintf("BUILDHUB_CONFIG_ID=%d", configID),
	)
	env["global"] = global
	travisConfig["env"] = env

	// Replace, rather than merge with, the repository's own .travis.yml.
	travisConfig["merge_mode"] = "replace"

	return travisConfig, nil
}

// gitDepth reports whether the config leaves shallow cloning enabled, in
// which case the history must be unshallowed before an older commit can be
// checked out.
func gitDepth(travisConfig map[string]any) bool {
	git := asMap(travisConfig["git"])
	depth, ok := git["depth"]
	if !ok {
		return true
	}
	disabled, isBool := depth.(bool)
	return !(isBool && !disabled)
}

func asList(v any) []any {
	switch value := v.(type) {
	case nil:
		return nil
	case []any:
		return value
	default:
		return []any{value}
	}
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
