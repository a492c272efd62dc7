package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ConfigStore = (*ConfigRepo)(nil)

// ConfigRepo is the SQLite implementation of the ConfigStore port
// interface. Settings and conditions are stored as JSON blobs.
type ConfigRepo struct {
	db *DB
}

// NewConfigRepo creates a new ConfigRepo backed by the given DB.
func NewConfigRepo(db *DB) *ConfigRepo {
	return &ConfigRepo{db: db}
}

const configColumns = `id, provider, name, scope, enabled, run_manually, timeout_secs, settings, conditions, created_at`

// ListEnabled returns the enabled configs for the given provider and scope
// in creation order.
func (r *ConfigRepo) ListEnabled(ctx context.Context, provider, scope string) ([]model.IntegrationConfig, error) {
	query := `
		SELECT ` + configColumns + `
		FROM integration_configs
		WHERE provider = ? AND scope = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, provider, scope)
	if err != nil {
		return nil, fmt.Errorf("query configs for provider %q: %w", provider, err)
	}
	defer rows.Close()

	var configs []model.IntegrationConfig
	for rows.Next() {
		config, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		configs = append(configs, *config)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate configs: %w", err)
	}

	return configs, nil
}

// GetByID returns the config with the given ID, or nil if it does not exist.
func (r *ConfigRepo) GetByID(ctx context.Context, id int64) (*model.IntegrationConfig, error) {
	query := `
		SELECT ` + configColumns + `
		FROM integration_configs
		WHERE id = ?
	`

	config, err := scanConfig(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config %d: %w", id, err)
	}

	return config, nil
}

// Insert stores a new config and sets its ID. Used by the admin surface
// and by tests; the orchestration core itself only reads configs.
func (r *ConfigRepo) Insert(ctx context.Context, config *model.IntegrationConfig) error {
	settings, err := json.Marshal(config.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	conditions, err := json.Marshal(config.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}

	const query = `
		INSERT INTO integration_configs
			(provider, name, scope, enabled, run_manually, timeout_secs, settings, conditions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.Writer.ExecContext(ctx, query,
		config.Provider, config.Name, config.Scope,
		boolToInt(config.Enabled), boolToInt(config.RunManually),
		int64(config.Timeout/time.Second), string(settings), string(conditions),
	)
	if err != nil {
		return fmt.Errorf("insert config %q: %w", config.Name, err)
	}

	config.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("config insert id: %w", err)
	}

	return nil
}

func scanConfig(s scanner) (*model.IntegrationConfig, error) {
	var config model.IntegrationConfig
	var enabled, runManually int
	var timeoutSecs int64
	var settings, conditions, createdAt string

	err := s.Scan(
		&config.ID, &config.Provider, &config.Name, &config.Scope,
		&enabled, &runManually, &timeoutSecs, &settings, &conditions, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	config.Enabled = enabled != 0
	config.RunManually = runManually != 0
	config.Timeout = time.Duration(timeoutSecs) * time.Second

	if err := json.Unmarshal([]byte(settings), &config.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	// A corrupt condition blob leaves the zero ConditionSet, which matches
	// nothing rather than failing the whole listing.
	if err := json.Unmarshal([]byte(conditions), &config.Conditions); err != nil {
		config.Conditions = model.ConditionSet{}
	}

	config.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &config, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
