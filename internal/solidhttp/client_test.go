package solidhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSendsSessionAndUserAgentHeaders(t *testing.T) {
	var gotSession, gotUA, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotSession = req.Header.Get("Session-Identifier")
		gotUA = req.Header.Get("User-Agent")
		gotRequestID = req.Header.Get("x-request-id")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRequestor("abc123", nil)
	resp, err := r.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc123", gotSession)
	assert.Equal(t, UserAgent, gotUA)
	assert.Equal(t, "abc123", gotRequestID)
}

func TestDoMapsStatusToHTTPError(t *testing.T) {
	for _, tc := range []struct {
		status int
		kind   Kind
	}{
		{http.StatusNotFound, KindNotFound},
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindForbidden},
		{http.StatusNotAcceptable, KindNotAcceptable},
		{http.StatusTeapot, KindBadRequest},
		{http.StatusMovedPermanently, KindRedirection},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(tc.status)
		}))

		r := NewRequestor("s", nil)
		_, err := r.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
		require.Error(t, err)
		httpErr, ok := err.(*HTTPError)
		require.True(t, ok)
		assert.Equal(t, tc.kind, httpErr.Kind)
		assert.Equal(t, tc.status, httpErr.StatusCode)
		srv.Close()
	}
}

func TestDoOverridesDefaultHeadersWithCaller(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotUA = req.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRequestor("s", nil)
	_, err := r.Do(context.Background(), http.MethodGet, srv.URL, map[string]string{"User-Agent": "custom"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", gotUA)
}

type fakeTokenSource struct {
	token string
}

func (f fakeTokenSource) Token(ctx context.Context) (string, bool, error) {
	return f.token, true, nil
}

func TestDoAddsBearerAuthorization(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRequestor("s", fakeTokenSource{token: "tok"})
	_, err := r.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestParseLinkHeader(t *testing.T) {
	links := parseLinkHeader(`<http://www.w3.org/ns/ldp#BasicContainer>; rel="type", <https://pod.example/.acl>; rel="acl"`)
	require.Contains(t, links, "type")
	assert.Equal(t, "http://www.w3.org/ns/ldp#BasicContainer", links["type"]["url"])
	require.Contains(t, links, "acl")
	assert.Equal(t, "https://pod.example/.acl", links["acl"]["url"])
}
