package solidconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"SOLIDFS_BASE_URL", "SOLIDFS_CLIENT_ID", "SOLIDFS_CLIENT_SECRET", "SOLIDFS_TOKEN_URL",
		"SOLIDFS_HTTP_LIBRARY", "SOLIDFS_CONTENT_CACHING", "SOLIDFS_ENABLE_WEBSOCKET_NOTIFICATIONS",
	} {
		os.Unsetenv(name)
	}
}

func TestFromEnvRequiresBaseURL(t *testing.T) {
	clearEnv(t)
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvAppendsTrailingSlash(t *testing.T) {
	clearEnv(t)
	os.Setenv("SOLIDFS_BASE_URL", "https://pod.example")
	defer clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://pod.example/", cfg.BaseURL)
}

func TestFromEnvRequiresSecretAndTokenURLWithClientID(t *testing.T) {
	clearEnv(t)
	os.Setenv("SOLIDFS_BASE_URL", "https://pod.example/")
	os.Setenv("SOLIDFS_CLIENT_ID", "id")
	defer clearEnv(t)

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvDefaultsMountRoot(t *testing.T) {
	clearEnv(t)
	os.Setenv("SOLIDFS_BASE_URL", "https://pod.example/")
	defer clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/data/", cfg.MountRoot)
}
