package solidhierarchy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myforest/solidfs/internal/solidhttp"
	"github.com/myforest/solidfs/internal/solidresource"
)

type recordingSubscriber struct {
	subscribed []string
}

func (s *recordingSubscriber) Subscribe(_ context.Context, resourceURI string) {
	s.subscribed = append(s.subscribed, resourceURI)
}

func newTestRequestor(t *testing.T, handler http.HandlerFunc) (*solidhttp.Requestor, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	return solidhttp.NewRequestor("test-session", nil), server
}

func TestChildrenParsesContainsAndCachesResult(t *testing.T) {
	var requests int
	requestor, server := newTestRequestor(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "text/turtle")
		base := "http://" + r.Host + "/"
		_, _ = w.Write([]byte(
			"<" + base + "> <http://www.w3.org/ns/ldp#contains> <" + base + "note.ttl> .\n" +
				"<" + base + "> <http://www.w3.org/ns/ldp#contains> <" + base + "sub/> .\n" +
				"<" + base + "note.ttl> <http://www.w3.org/ns/posix/stat#size> \"42\" .\n",
		))
	})
	defer server.Close()

	subscriber := &recordingSubscriber{}
	h := New(server.URL, requestor, subscriber)

	children, err := h.Children(context.Background(), h.Root())
	require.NoError(t, err)
	require.Len(t, children, 2)

	var file, container *solidresource.Resource
	for _, c := range children {
		if c.IsContainer {
			container = c
		} else {
			file = c
		}
	}
	require.NotNil(t, file)
	require.NotNil(t, container)
	assert.Equal(t, int64(42), file.Stat.Size)
	assert.True(t, container.IsContainer)
	assert.Len(t, subscriber.subscribed, 2)

	_, err = h.Children(context.Background(), h.Root())
	require.NoError(t, err)
	assert.Equal(t, 1, requests, "second call should use the cached membership, not hit the server again")
}

func TestChildrenDegradesToEmptyOnForbidden(t *testing.T) {
	requestor, server := newTestRequestor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	defer server.Close()

	h := New(server.URL, requestor, nil)
	children, err := h.Children(context.Background(), h.Root())
	require.NoError(t, err)
	assert.Empty(t, children)
	assert.True(t, h.Root().Populated())
}

func TestResolveWalksNestedPath(t *testing.T) {
	requestor, server := newTestRequestor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/turtle")
		base := "http://" + r.Host + "/"
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte("<" + base + "> <http://www.w3.org/ns/ldp#contains> <" + base + "dir/> .\n"))
		case "/dir/":
			_, _ = w.Write([]byte("<" + base + "dir/> <http://www.w3.org/ns/ldp#contains> <" + base + "dir/note.txt> .\n"))
		}
	})
	defer server.Close()

	h := New(server.URL, requestor, nil)
	resource, err := h.Resolve(context.Background(), "/dir/note.txt")
	require.NoError(t, err)
	assert.False(t, resource.IsContainer)
}

func TestResolveMissingSegmentIsNotFound(t *testing.T) {
	requestor, server := newTestRequestor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/turtle")
		_, _ = w.Write([]byte(""))
	})
	defer server.Close()

	h := New(server.URL, requestor, nil)
	_, err := h.Resolve(context.Background(), "/missing")
	require.Error(t, err)
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestParseWACAllowModeUserReadWrite(t *testing.T) {
	mode := parseWACAllowMode(`user="read write append",public="read"`, false)
	assert.NotZero(t, mode&0o400)
	assert.NotZero(t, mode&0o200)
}

func TestGraphContentTypeDispatch(t *testing.T) {
	assert.Equal(t, "application/ld+json", graphContentType("application/ld+json; charset=utf-8"))
	assert.Equal(t, "text/turtle", graphContentType("text/turtle"))
	assert.Equal(t, "application/rdf+xml", graphContentType("application/rdf+xml"))
}
