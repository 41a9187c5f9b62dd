package solidfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myforest/solidfs/internal/solidhierarchy"
	"github.com/myforest/solidfs/internal/solidhttp"
)

type podServer struct {
	mu        sync.Mutex
	resources map[string][]byte
	types     map[string]string
}

func newPodServer() *podServer {
	return &podServer{resources: map[string][]byte{}, types: map[string]string{}}
}

func (p *podServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()

		switch r.Method {
		case "GET":
			body, ok := p.resources[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if ct := p.types[r.URL.Path]; ct != "" {
				w.Header().Set("Content-Type", ct)
			}
			_, _ = w.Write(body)
		case "PUT":
			buf := make([]byte, r.ContentLength)
			_, _ = r.Body.Read(buf)
			_, existed := p.resources[r.URL.Path]
			p.resources[r.URL.Path] = buf
			if ct := r.Header.Get("Content-Type"); ct != "" {
				p.types[r.URL.Path] = ct
			}
			if existed {
				w.WriteHeader(http.StatusNoContent)
			} else {
				w.WriteHeader(http.StatusCreated)
			}
		case "DELETE":
			if _, ok := p.resources[r.URL.Path]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(p.resources, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		case "HEAD":
			if _, ok := p.resources[r.URL.Path]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func newTestAdapter(t *testing.T) (*Adapter, *podServer, *httptest.Server) {
	t.Helper()
	pod := newPodServer()
	server := httptest.NewServer(pod.handler())
	requestor := solidhttp.NewRequestor("test-session", nil)
	hierarchy := solidhierarchy.New(server.URL, requestor, nil)
	return New(hierarchy, requestor), pod, server
}

func TestCreateWriteFlushRead(t *testing.T) {
	a, _, server := newTestAdapter(t)
	defer server.Close()
	ctx := context.Background()

	require.Equal(t, syscall.Errno(0), a.Create(ctx, "/a.ttl"))

	n, errno := a.Write(ctx, "/a.ttl", []byte("hello"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, 5, n)

	require.Equal(t, syscall.Errno(0), a.Flush(ctx, "/a.ttl"))

	content, _, errno := a.Read(ctx, "/a.ttl", 5, 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, "hello", string(content))
}

func TestOpenRejectsAppend(t *testing.T) {
	a, _, server := newTestAdapter(t)
	defer server.Close()
	assert.Equal(t, syscall.EPERM, a.Open("/a.ttl", syscall.O_APPEND))
	assert.Equal(t, syscall.Errno(0), a.Open("/a.ttl", 0))
}

func TestMkdirThenReaddir(t *testing.T) {
	a, _, server := newTestAdapter(t)
	defer server.Close()
	ctx := context.Background()

	require.Equal(t, syscall.Errno(0), a.Mkdir(ctx, "/dir"))
	require.Equal(t, syscall.Errno(0), a.Create(ctx, "/dir/note.ttl"))

	entries, errno := a.Readdir(ctx, "/dir")
	require.Equal(t, syscall.Errno(0), errno)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, ".")
	assert.Contains(t, names, "..")
	assert.Contains(t, names, "note.ttl")
}

func TestMkdirRejectsTrailingSlash(t *testing.T) {
	a, _, server := newTestAdapter(t)
	defer server.Close()
	assert.Equal(t, syscall.EINVAL, a.Mkdir(context.Background(), "/dir/"))
}

func TestUnlinkRemovesFromParent(t *testing.T) {
	a, _, server := newTestAdapter(t)
	defer server.Close()
	ctx := context.Background()

	require.Equal(t, syscall.Errno(0), a.Create(ctx, "/a.ttl"))
	require.Equal(t, syscall.Errno(0), a.Unlink(ctx, "/a.ttl"))

	_, errno := a.Getattr(ctx, "/a.ttl")
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestTruncateToZero(t *testing.T) {
	a, _, server := newTestAdapter(t)
	defer server.Close()
	ctx := context.Background()

	require.Equal(t, syscall.Errno(0), a.Create(ctx, "/a.ttl"))
	_, errno := a.Write(ctx, "/a.ttl", []byte("hello"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	require.Equal(t, syscall.Errno(0), a.Flush(ctx, "/a.ttl"))

	require.Equal(t, syscall.Errno(0), a.Truncate(ctx, "/a.ttl", 0))

	content, _, errno := a.Read(ctx, "/a.ttl", 10, 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Empty(t, content)
}

func TestGetattrOnMissingPathIsENOENT(t *testing.T) {
	a, _, server := newTestAdapter(t)
	defer server.Close()
	_, errno := a.Getattr(context.Background(), "/missing.ttl")
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestStatfsInfoIsSynthetic(t *testing.T) {
	a, _, server := newTestAdapter(t)
	defer server.Close()
	stat := a.StatfsInfo()
	assert.Equal(t, uint32(blockSize), stat.BlockSize)
	assert.True(t, stat.NoATime)
}
