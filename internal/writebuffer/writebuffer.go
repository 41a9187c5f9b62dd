// Package writebuffer assembles small POSIX writes into a single
// whole-resource PUT body, re-detecting content type on flush and
// issuing a DELETE+PUT sequence when that detection changes the
// advertised content type.
package writebuffer

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/myforest/solidfs/internal/solidhttp"
	"github.com/myforest/solidfs/internal/solidmime"
	"github.com/myforest/solidfs/internal/solidresource"
)

// MaxBufferSize bounds a single resource's write buffer. Writes that
// would grow the buffer past this are rejected with ErrTooLarge; the
// caller maps this to EFBIG.
const MaxBufferSize = 64 * 1024 * 1024

// ErrTooLarge is returned by Write when the buffer would exceed
// MaxBufferSize.
type ErrTooLarge struct{ Requested int }

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("write buffer would exceed %d bytes (requested extent %d)", MaxBufferSize, e.Requested)
}

// Requestor is the narrow HTTP surface Buffers consumes.
type Requestor interface {
	Do(ctx context.Context, method, url string, extraHeaders map[string]string, body []byte) (*solidhttp.Response, error)
}

// Buffers owns every resource's in-flight write buffer, keyed by URI.
// A buffer is created on first Write and destroyed unconditionally
// after Flush, whether or not the PUT succeeded.
type Buffers struct {
	requestor Requestor

	mu      sync.Mutex
	pending map[string][]byte
}

// New builds an empty set of write buffers backed by requestor.
func New(requestor Requestor) *Buffers {
	return &Buffers{requestor: requestor, pending: map[string][]byte{}}
}

// Write splices buf into resource's buffer at offset, creating the
// buffer (zero-filled up to offset) if this is the first write to
// resource since the last flush. Returns the number of bytes spliced.
func (b *Buffers) Write(resource *solidresource.Resource, buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, &ErrTooLarge{Requested: int(offset)}
	}
	end := offset + int64(len(buf))
	if end > MaxBufferSize {
		return 0, &ErrTooLarge{Requested: int(end)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.pending[resource.URI]
	if int64(len(current)) < end {
		grown := make([]byte, end)
		copy(grown, current)
		current = grown
	}
	copy(current[offset:end], buf)
	b.pending[resource.URI] = current

	return len(buf), nil
}

// HasPending reports whether resource has an open write buffer.
func (b *Buffers) HasPending(resource *solidresource.Resource) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[resource.URI]
	return ok
}

// Peek returns a copy of resource's current buffer contents, or
// (nil, false) if none is open. Used by truncate and by read-after-
// write-before-flush.
func (b *Buffers) Peek(resource *solidresource.Resource) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current, ok := b.pending[resource.URI]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(current))
	copy(out, current)
	return out, true
}

// Truncate resizes resource's open buffer in place, zero-extending or
// cutting as needed, and reports stat.size to the caller. It does not
// create a buffer: callers that need a truncate on an unbuffered
// resource must first seed one with Seed.
func (b *Buffers) Truncate(resource *solidresource.Resource, size int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current, ok := b.pending[resource.URI]
	if !ok {
		return false, nil
	}
	if size > MaxBufferSize {
		return false, &ErrTooLarge{Requested: int(size)}
	}
	resized := make([]byte, size)
	copy(resized, current)
	b.pending[resource.URI] = resized
	resource.Stat.Size = size
	return true, nil
}

// Seed opens resource's write buffer with an explicit initial
// content, used by truncate's emptying and read-modify-write paths.
func (b *Buffers) Seed(resource *solidresource.Resource, content []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := make([]byte, len(content))
	copy(buf, content)
	b.pending[resource.URI] = buf
}

// Discard drops resource's buffer without flushing it, used by
// unlink/rename when the pending content is moot.
func (b *Buffers) Discard(resource *solidresource.Resource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, resource.URI)
}

// Flush PUTs the accumulated buffer to the server, re-detecting
// content type from the bytes and issuing a DELETE first when that
// detection disagrees with the resource's current content type. The
// buffer is discarded unconditionally once the attempt completes,
// matching the original's "never re-flush a failed write" behavior.
func (b *Buffers) Flush(ctx context.Context, resource *solidresource.Resource) error {
	b.mu.Lock()
	content, ok := b.pending[resource.URI]
	if ok {
		delete(b.pending, resource.URI)
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}

	previousContentType := resource.ContentType
	contentType := previousContentType
	if detected, ok := solidmime.FromContent(0, content); ok {
		contentType = detected
	}

	contentTypeChanged := contentType != previousContentType
	if contentTypeChanged {
		if _, err := b.requestor.Do(ctx, "DELETE", resource.URI, nil, nil); err != nil {
			log.WithFields(log.Fields{"resource_url": resource.URI}).
				WithError(err).Debug("delete-before-put failed, continuing with put anyway")
		}
	}

	headers := map[string]string{
		"Content-Type":   contentType,
		"Content-Length": strconv.Itoa(len(content)),
	}
	if _, err := b.requestor.Do(ctx, "PUT", resource.URI, headers, content); err != nil {
		return err
	}

	resource.ContentType = contentType
	resource.Stat.Size = int64(len(content))
	return nil
}
