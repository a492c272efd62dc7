// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr   string
	DBPath       string
	BaseURL      string
	NoReplyEmail string
	HTTPTimeout  time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. BUILDHUB_BASE_URL is required; it is the externally reachable URL
// CI services use for webhooks and patch downloads. Optional variables with
// defaults: BUILDHUB_LISTEN_ADDR (127.0.0.1:8585), BUILDHUB_DB_PATH
// (buildhub.db), BUILDHUB_NOREPLY_EMAIL (noreply@localhost),
// BUILDHUB_HTTP_TIMEOUT (30s).
func Load() (*Config, error) {
	baseURL := os.Getenv("BUILDHUB_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("BUILDHUB_BASE_URL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	listenAddr := "127.0.0.1:8585"
	if v, ok := os.LookupEnv("BUILDHUB_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "buildhub.db"
	if v, ok := os.LookupEnv("BUILDHUB_DB_PATH"); ok {
		dbPath = v
	}

	noReplyEmail := "noreply@localhost"
	if v, ok := os.LookupEnv("BUILDHUB_NOREPLY_EMAIL"); ok {
		noReplyEmail = v
	}

	httpTimeout := 30 * time.Second
	if v, ok := os.LookupEnv("BUILDHUB_HTTP_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("BUILDHUB_HTTP_TIMEOUT has invalid duration %q: %w", v, err)
		}
		httpTimeout = parsed
	}

	return &Config{
		ListenAddr:   listenAddr,
		DBPath:       dbPath,
		BaseURL:      baseURL,
		NoReplyEmail: noReplyEmail,
		HTTPTimeout:  httpTimeout,
	}, nil
}
