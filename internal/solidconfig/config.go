// Package solidconfig loads and validates a mount's configuration
// from its process environment.
package solidconfig

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Config is everything a mount needs to start, gathered from the
// environment once at startup.
type Config struct {
	BaseURL string

	ClientID     string
	ClientSecret string
	TokenURL     string

	HTTPLibrary                  string
	ContentCaching               bool
	EnableWebsocketNotifications bool

	MountRoot string
}

// FromEnv reads and validates SOLIDFS_* environment variables.
// SOLIDFS_BASE_URL is the only required variable; everything else has
// a documented default or is only required when enabling a feature
// that needs it.
func FromEnv() (*Config, error) {
	baseURL := os.Getenv("SOLIDFS_BASE_URL")
	if baseURL == "" {
		return nil, errors.New("SOLIDFS_BASE_URL is required")
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	cfg := &Config{
		BaseURL:                      baseURL,
		ClientID:                     os.Getenv("SOLIDFS_CLIENT_ID"),
		ClientSecret:                 os.Getenv("SOLIDFS_CLIENT_SECRET"),
		TokenURL:                     os.Getenv("SOLIDFS_TOKEN_URL"),
		HTTPLibrary:                  os.Getenv("SOLIDFS_HTTP_LIBRARY"),
		ContentCaching:               os.Getenv("SOLIDFS_CONTENT_CACHING") == "1",
		EnableWebsocketNotifications: os.Getenv("SOLIDFS_ENABLE_WEBSOCKET_NOTIFICATIONS") == "1",
		MountRoot:                    "/data/",
	}

	if cfg.ClientID != "" && (cfg.ClientSecret == "" || cfg.TokenURL == "") {
		return nil, errors.New("SOLIDFS_CLIENT_SECRET and SOLIDFS_TOKEN_URL are required when SOLIDFS_CLIENT_ID is set")
	}

	return cfg, nil
}
