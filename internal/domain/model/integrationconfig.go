package model

import "time"

// IntegrationConfig is one admin-configured binding of a CI provider to a
// set of matching rules. Configs are created and edited by administrators
// and are read-only to the orchestration core.
type IntegrationConfig struct {
	ID          int64
	Provider    string // Provider ID (e.g., "circleci", "jenkins", "travisci").
	Name        string // Display name chosen by the administrator.
	Scope       string // Owning scope; empty string means the global site.
	Enabled     bool
	RunManually bool          // Defer builds until a user explicitly triggers them.
	Timeout     time.Duration // Build timeout opted into by the admin; zero means none.
	Settings    map[string]string
	Conditions  ConditionSet
	CreatedAt   time.Time
}

// Setting returns the provider-specific setting for key, or the empty
// string if it was never configured.
func (c IntegrationConfig) Setting(key string) string {
	return c.Settings[key]
}
