package application

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// ConfigMatcher filters integration configs against a review request to
// find which configurations apply to a change.
type ConfigMatcher struct {
	configs driven.ConfigStore
	logger  *slog.Logger
}

// NewConfigMatcher creates a ConfigMatcher backed by the given store.
func NewConfigMatcher(configs driven.ConfigStore, logger *slog.Logger) *ConfigMatcher {
	return &ConfigMatcher{configs: configs, logger: logger}
}

// Match returns the enabled configs for the provider whose conditions match
// the review request, preserving config creation order. A config whose
// condition expression fails to evaluate is treated as not matching; a
// single bad condition never aborts matching of the remaining configs.
func (m *ConfigMatcher) Match(ctx context.Context, providerID string, rr model.ReviewRequest) ([]model.IntegrationConfig, error) {
	candidates, err := m.configs.ListEnabled(ctx, providerID, rr.Scope)
	if err != nil {
		return nil, err
	}

	target := rr.ConditionTarget()

	var matched []model.IntegrationConfig
	for _, config := range candidates {
		ok, err := config.Conditions.Matches(target)
		if err != nil {
			m.logger.Warn("skipping config with bad condition expression",
				"config_id", config.ID,
				"provider", providerID,
				"error", err,
			)
			continue
		}
		if ok {
			matched = append(matched, config)
		}
	}

	return matched, nil
}
