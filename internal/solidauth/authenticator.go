// Package solidauth implements SolidFS's client-credentials
// authenticator: token() returns a bearer string, or nothing if the
// mount is configured to run unauthenticated.
package solidauth

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/clientcredentials"
)

// Authenticator is the SolidRequestor's source of bearer tokens. It
// wraps an oauth2.TokenSource, which caches the token and refetches it
// once it is expired or within the oauth2 package's short early-expiry
// margin (ten seconds); it adds no jitter and no retry.
type Authenticator struct {
	source oauth2TokenSource
}

// oauth2TokenSource narrows clientcredentials' produced TokenSource to
// what this package needs, so tests can substitute a fake.
type oauth2TokenSource interface {
	Token() (*tokenLike, error)
}

// tokenLike is a minimal projection of *oauth2.Token so this package
// doesn't leak the oauth2 type into its public surface.
type tokenLike struct {
	AccessToken string
}

// NewFromEnv builds an Authenticator from SOLIDFS_CLIENT_ID,
// SOLIDFS_CLIENT_SECRET and SOLIDFS_TOKEN_URL. If
// SOLIDFS_CLIENT_ID is unset, the returned Authenticator's Token
// always reports (ok=false) and the mount operates unauthenticated.
func NewFromEnv() (*Authenticator, error) {
	clientID := os.Getenv("SOLIDFS_CLIENT_ID")
	if clientID == "" {
		return &Authenticator{}, nil
	}

	clientSecret := os.Getenv("SOLIDFS_CLIENT_SECRET")
	tokenURL := os.Getenv("SOLIDFS_TOKEN_URL")
	if clientSecret == "" || tokenURL == "" {
		return nil, errors.New("SOLIDFS_CLIENT_SECRET and SOLIDFS_TOKEN_URL are required when SOLIDFS_CLIENT_ID is set")
	}

	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return &Authenticator{source: &realSource{source: cfg.TokenSource(context.Background())}}, nil
}

// Token returns a bearer token, or (_, false, nil) if the mount is
// unauthenticated.
func (a *Authenticator) Token(ctx context.Context) (string, bool, error) {
	if a == nil || a.source == nil {
		return "", false, nil
	}
	tok, err := a.source.Token()
	if err != nil {
		return "", false, classifyTokenError(err)
	}
	return tok.AccessToken, true, nil
}
