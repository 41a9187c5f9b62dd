package solidauth

import (
	"errors"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/myforest/solidfs/internal/solidhttp"
)

// realSource adapts oauth2.TokenSource to oauth2TokenSource.
type realSource struct {
	source oauth2.TokenSource
}

func (s *realSource) Token() (*tokenLike, error) {
	tok, err := s.source.Token()
	if err != nil {
		return nil, err
	}
	return &tokenLike{AccessToken: tok.AccessToken}, nil
}

// classifyTokenError turns an oauth2 token-fetch failure into a
// solidhttp error kind: 401 -> Unauthorized, any other non-2xx -> a
// generic HTTP error.
func classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		if status == http.StatusUnauthorized {
			return &solidhttp.HTTPError{Kind: solidhttp.KindUnauthorized, StatusCode: status, Body: string(retrieveErr.Body)}
		}
		return &solidhttp.HTTPError{Kind: solidhttp.KindUnknown, StatusCode: status, Body: string(retrieveErr.Body)}
	}
	return err
}
