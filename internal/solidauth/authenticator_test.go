package solidauth

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnvUnauthenticatedWhenClientIDUnset(t *testing.T) {
	os.Unsetenv("SOLIDFS_CLIENT_ID")
	a, err := NewFromEnv()
	require.NoError(t, err)

	token, ok, err := a.Token(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestNewFromEnvRequiresSecretAndTokenURL(t *testing.T) {
	os.Setenv("SOLIDFS_CLIENT_ID", "id")
	defer os.Unsetenv("SOLIDFS_CLIENT_ID")
	os.Unsetenv("SOLIDFS_CLIENT_SECRET")
	os.Unsetenv("SOLIDFS_TOKEN_URL")

	_, err := NewFromEnv()
	assert.Error(t, err)
}

type fakeSource struct {
	token string
	err   error
}

func (f fakeSource) Token() (*tokenLike, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &tokenLike{AccessToken: f.token}, nil
}

func TestTokenReturnsValueFromSource(t *testing.T) {
	a := &Authenticator{source: fakeSource{token: "abc"}}
	token, ok, err := a.Token(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}
