package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// Orchestrator is the fixed build-orchestration core. It reacts to publish
// and rerun events, creates status updates for every matching config, and
// drives provider dispatch. All vendor specifics live behind the Provider
// port; the orchestrator itself is identical for every CI vendor.
//
// The orchestrator runs synchronously on the calling goroutine. The actual
// build executes on the provider's infrastructure and reports back later
// through the Reconciler.
type Orchestrator struct {
	providers []driven.Provider
	byID      map[string]driven.Provider
	configs   driven.ConfigStore
	statuses  driven.StatusStore
	reviews   driven.ReviewStore
	identity  *IdentityService
	matcher   *ConfigMatcher
	writer    *statusWriter
	baseURL   string
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator. Providers are dispatched in
// registration order. baseURL is the externally reachable root of the
// review tool, echoed to providers so their callbacks can find their way
// back.
func NewOrchestrator(
	providers []driven.Provider,
	configs driven.ConfigStore,
	statuses driven.StatusStore,
	reviews driven.ReviewStore,
	identity *IdentityService,
	baseURL string,
	logger *slog.Logger,
) (*Orchestrator, error) {
	byID := make(map[string]driven.Provider, len(providers))
	for _, p := range providers {
		if p.ID() == "" || p.Name() == "" || p.BotProfile().Username == "" {
			return nil, fmt.Errorf("provider %T must set an ID, name, and bot username", p)
		}
		if _, dup := byID[p.ID()]; dup {
			return nil, fmt.Errorf("duplicate provider ID %q", p.ID())
		}
		byID[p.ID()] = p
	}

	return &Orchestrator{
		providers: providers,
		byID:      byID,
		configs:   configs,
		statuses:  statuses,
		reviews:   reviews,
		identity:  identity,
		matcher:   NewConfigMatcher(configs, logger),
		writer:    newStatusWriter(statuses),
		baseURL:   baseURL,
		logger:    logger,
	}, nil
}

// Provider returns the registered provider with the given ID, or nil.
func (o *Orchestrator) Provider(id string) driven.Provider {
	return o.byID[id]
}

// HandlePublish processes a review-request publish event. Every registered
// provider is given the event in registration order; a failure preparing or
// dispatching for one provider never affects the others.
func (o *Orchestrator) HandlePublish(ctx context.Context, event model.ChangeEvent) error {
	rr, err := o.reviews.GetReviewRequest(ctx, event.ReviewRequestID)
	if err != nil {
		return fmt.Errorf("load review request %d: %w", event.ReviewRequestID, err)
	}
	if rr == nil {
		return fmt.Errorf("review request %d not found", event.ReviewRequestID)
	}

	for _, provider := range o.providers {
		if err := o.publishForProvider(ctx, provider, event, *rr); err != nil {
			o.logger.Error("publish handling failed",
				"provider", provider.ID(),
				"review_request_id", rr.ID,
				"error", err,
			)
		}
	}

	return nil
}

// publishForProvider runs the publish flow for one provider: match configs,
// assemble the prep bundle, create one status update per config, and
// dispatch the automatic ones.
func (o *Orchestrator) publishForProvider(ctx context.Context, provider driven.Provider, event model.ChangeEvent, rr model.ReviewRequest) error {
	prep, outcome, err := o.preparePublish(ctx, provider, event, rr)
	if err != nil {
		return err
	}
	if outcome != PrepReady {
		o.logger.Debug("skipping builds",
			"provider", provider.ID(),
			"review_request_id", rr.ID,
			"reason", outcome.String(),
		)
		return nil
	}

	for i := range prep.Configs {
		config := prep.Configs[i]

		update := &model.StatusUpdate{
			ReviewRequestID:     rr.ID,
			ChangeDescriptionID: changeDescID(prep.ChangeDesc),
			ConfigID:            config.ID,
			Provider:            provider.ID(),
			Summary:             provider.Name(),
			CanRetry:            true,
			UserID:              prep.User.ID,
		}

		if config.RunManually {
			update.State = model.BuildStateNotYetRun
			update.Description = descWaiting
		} else {
			update.State = model.BuildStatePending
			update.Description = descStarting
		}

		if err := o.statuses.Create(ctx, update); err != nil {
			o.logger.Error("failed to create status update",
				"provider", provider.ID(),
				"review_request_id", rr.ID,
				"config_id", config.ID,
				"error", err,
			)
			continue
		}

		if !config.RunManually {
			o.dispatch(ctx, provider, prep, config, update)
		}
	}

	return nil
}

// preparePublish assembles the BuildPrep for a publish event, or reports
// why no build should happen.
func (o *Orchestrator) preparePublish(ctx context.Context, provider driven.Provider, event model.ChangeEvent, rr model.ReviewRequest) (*model.BuildPrep, PrepOutcome, error) {
	configs, err := o.matcher.Match(ctx, provider.ID(), rr)
	if err != nil {
		return nil, 0, fmt.Errorf("match configs: %w", err)
	}
	if len(configs) == 0 {
		return nil, PrepNoConfigs, nil
	}

	diff, err := o.reviews.LatestDiff(ctx, rr.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("load latest diff: %w", err)
	}
	if diff == nil {
		return nil, PrepNoDiff, nil
	}

	// An update to an existing review request only triggers builds when
	// the publish added a new diff revision.
	var changeDesc *model.ChangeDescription
	if event.ChangeDescriptionID != nil {
		changeDesc, err = o.reviews.GetChangeDescription(ctx, *event.ChangeDescriptionID)
		if err != nil {
			return nil, 0, fmt.Errorf("load change description %d: %w", *event.ChangeDescriptionID, err)
		}
		if changeDesc == nil || changeDesc.AddedDiffID == nil {
			return nil, PrepNoNewDiff, nil
		}
	}

	user, err := o.identity.EnsureUser(ctx, provider.BotProfile())
	if err != nil {
		return nil, 0, err
	}

	prep := &model.BuildPrep{
		Configs:       configs,
		DiffSet:       *diff,
		ReviewRequest: rr,
		User:          *user,
		ChangeDesc:    changeDesc,
		ServerURL:     o.serverURL(rr.Scope),
	}

	proceed, err := provider.Prepare(ctx, prep)
	if err != nil {
		return nil, 0, fmt.Errorf("provider prepare: %w", err)
	}
	if !proceed {
		return nil, PrepVetoed, nil
	}

	if err := o.attachAPIToken(ctx, prep); err != nil {
		return nil, 0, err
	}

	return prep, PrepReady, nil
}

// HandleRerun processes a manual run or rerun of an existing status update.
// configID may be nil; older event sources fall back to the config
// reference stored on the status update itself.
func (o *Orchestrator) HandleRerun(ctx context.Context, statusUpdateID int64, configID *int64) error {
	update, err := o.statuses.GetByID(ctx, statusUpdateID)
	if err != nil {
		return fmt.Errorf("load status update %d: %w", statusUpdateID, err)
	}
	if update == nil {
		o.logger.Error("rerun requested for unknown status update",
			"status_update_id", statusUpdateID,
		)
		return nil
	}

	provider := o.byID[update.Provider]
	if provider == nil {
		// A status update from an integration that is no longer installed.
		o.logger.Error("rerun requested for unknown provider",
			"status_update_id", update.ID,
			"provider", update.Provider,
		)
		return nil
	}

	prep, outcome, err := o.prepareRerun(ctx, provider, update, configID)
	if err != nil {
		return err
	}

	switch outcome {
	case PrepReady:
	case PrepConfigGone, PrepAmbiguousConfig:
		// Data-integrity signal, not a build failure. Logged, never
		// surfaced through the status update.
		o.logger.Error("unable to determine configuration for rerun",
			"status_update_id", update.ID,
			"provider", provider.ID(),
			"reason", outcome.String(),
		)
		return nil
	case PrepDiffGone:
		o.logger.Error("unable to determine diff for rerun",
			"status_update_id", update.ID,
			"provider", provider.ID(),
		)
		return nil
	default:
		o.logger.Debug("skipping rerun",
			"status_update_id", update.ID,
			"provider", provider.ID(),
			"reason", outcome.String(),
		)
		return nil
	}

	config := prep.Configs[0]

	if err := o.writer.setStarting(ctx, update); err != nil {
		return err
	}
	o.dispatch(ctx, provider, prep, config, update)

	return nil
}

// prepareRerun assembles the BuildPrep for a rerun. It must resolve to
// exactly one config, and the original diff must still be resolvable.
func (o *Orchestrator) prepareRerun(ctx context.Context, provider driven.Provider, update *model.StatusUpdate, configID *int64) (*model.BuildPrep, PrepOutcome, error) {
	resolvedID := update.ConfigID
	if configID != nil {
		resolvedID = *configID
	}

	config, err := o.configs.GetByID(ctx, resolvedID)
	if err != nil {
		return nil, 0, fmt.Errorf("load config %d: %w", resolvedID, err)
	}
	if config == nil {
		return nil, PrepConfigGone, nil
	}

	rr, err := o.reviews.GetReviewRequest(ctx, update.ReviewRequestID)
	if err != nil {
		return nil, 0, fmt.Errorf("load review request %d: %w", update.ReviewRequestID, err)
	}
	if rr == nil {
		return nil, PrepDiffGone, nil
	}

	diff, changeDesc, outcome, err := o.resolveRerunDiff(ctx, update, rr.ID)
	if err != nil || outcome != PrepReady {
		return nil, outcome, err
	}

	user, err := o.identity.EnsureUser(ctx, provider.BotProfile())
	if err != nil {
		return nil, 0, err
	}

	prep := &model.BuildPrep{
		Configs:       []model.IntegrationConfig{*config},
		DiffSet:       *diff,
		ReviewRequest: *rr,
		User:          *user,
		ChangeDesc:    changeDesc,
		ServerURL:     o.serverURL(rr.Scope),
	}

	proceed, err := provider.Prepare(ctx, prep)
	if err != nil {
		return nil, 0, fmt.Errorf("provider prepare: %w", err)
	}
	if !proceed {
		return nil, PrepVetoed, nil
	}

	// The provider may have narrowed the list further. A rerun needs
	// exactly one remaining config to know what to dispatch.
	if len(prep.Configs) != 1 {
		return nil, PrepAmbiguousConfig, nil
	}

	if err := o.attachAPIToken(ctx, prep); err != nil {
		return nil, 0, err
	}

	return prep, PrepReady, nil
}

// resolveRerunDiff finds the diff a rerun should test: the diff added by
// the status update's change description when there is one, otherwise the
// earliest diff in the review request's history.
func (o *Orchestrator) resolveRerunDiff(ctx context.Context, update *model.StatusUpdate, reviewRequestID int64) (*model.DiffSet, *model.ChangeDescription, PrepOutcome, error) {
	if update.ChangeDescriptionID == nil {
		diff, err := o.reviews.EarliestDiff(ctx, reviewRequestID)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("load earliest diff: %w", err)
		}
		if diff == nil {
			return nil, nil, PrepDiffGone, nil
		}
		return diff, nil, PrepReady, nil
	}

	changeDesc, err := o.reviews.GetChangeDescription(ctx, *update.ChangeDescriptionID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load change description %d: %w", *update.ChangeDescriptionID, err)
	}
	if changeDesc == nil || changeDesc.AddedDiffID == nil {
		return nil, nil, PrepDiffGone, nil
	}

	diff, err := o.reviews.GetDiff(ctx, *changeDesc.AddedDiffID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load diff %d: %w", *changeDesc.AddedDiffID, err)
	}
	if diff == nil {
		return nil, nil, PrepDiffGone, nil
	}

	return diff, changeDesc, PrepReady, nil
}

// dispatch invokes the provider's StartBuild, translating its outcome into
// status update transitions. Dispatch failures never propagate: each config
// is handled independently, and a status update is never left silently
// stuck in pending after a dispatch attempt.
func (o *Orchestrator) dispatch(ctx context.Context, provider driven.Provider, prep *model.BuildPrep, config model.IntegrationConfig, update *model.StatusUpdate) {
	prevURL, prevURLText := update.URL, update.URLText

	err := provider.StartBuild(ctx, prep, config, update)
	if err == nil {
		// The provider may have set a tracking URL. Persist it, but the
		// state stays pending: the webhook is the state driver.
		if update.URL != prevURL || update.URLText != prevURLText {
			url, urlText := update.URL, update.URLText
			update.URL, update.URLText = prevURL, prevURLText
			if werr := o.writer.apply(ctx, update, statusChange{url: &url, urlText: &urlText}); werr != nil {
				o.logger.Error("failed to record build URL",
					"status_update_id", update.ID,
					"error", werr,
				)
			}
		}
		return
	}

	var buildErr *driven.BuildError
	if errors.As(err, &buildErr) {
		if werr := o.writer.setError(ctx, update, buildErr.Message, buildErr.URL, buildErr.URLText); werr != nil {
			o.logger.Error("failed to record build error",
				"status_update_id", update.ID,
				"error", werr,
			)
		}
		return
	}

	o.logger.Error("unexpected error starting build",
		"provider", provider.ID(),
		"review_request_id", prep.ReviewRequest.ID,
		"config_id", config.ID,
		"error", err,
	)
	if werr := o.writer.setError(ctx, update, fmt.Sprintf("internal error: %s", err), "", ""); werr != nil {
		o.logger.Error("failed to record build error",
			"status_update_id", update.ID,
			"error", werr,
		)
	}
}

// attachAPIToken resolves the bot's API token for the event's scope and
// stashes it on the prep bundle for providers to pass along.
func (o *Orchestrator) attachAPIToken(ctx context.Context, prep *model.BuildPrep) error {
	token, err := o.identity.EnsureAPIToken(ctx, &prep.User, prep.ReviewRequest.Scope)
	if err != nil {
		return err
	}
	prep.APIToken = token.Token
	return nil
}

// serverURL returns the externally reachable base URL for a scope. Scoped
// sites live under /s/<scope>/ on the same host.
func (o *Orchestrator) serverURL(scope string) string {
	base := o.baseURL
	if base != "" && base[len(base)-1] != '/' {
		base += "/"
	}
	if scope == "" {
		return base
	}
	return base + "s/" + scope + "/"
}

func changeDescID(cd *model.ChangeDescription) *int64 {
	if cd == nil {
		return nil
	}
	id := cd.ID
	return &id
}
