// Package solidfs is the POSIX-operation adapter: every FUSE callback
// the mount surfaces boils down to one of the path-based methods on
// Adapter, which validates the path, resolves it through the
// hierarchy cache, does whatever HTTP work is needed, and returns a
// syscall.Errno the caller's FUSE binding can hand straight back to
// the kernel.
package solidfs

import (
	"context"
	"strings"
	"sync"
	"syscall"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/myforest/solidfs/internal/solidhierarchy"
	"github.com/myforest/solidfs/internal/solidhttp"
	"github.com/myforest/solidfs/internal/solidmime"
	"github.com/myforest/solidfs/internal/solidpath"
	"github.com/myforest/solidfs/internal/solidresource"
	"github.com/myforest/solidfs/internal/writebuffer"
)

// readCacheSize bounds the number of whole-resource bodies kept
// around for offset!=0 reads that land inside a prior offset==0 GET.
const readCacheSize = 256

// blockSize, totalBlocks and maxNameLength are the synthetic figures
// Statfs reports; the backend has no notion of free space.
const (
	blockSize     = 128 * 1024
	totalBlocks   = 1 << 32
	maxNameLength = solidpath.MaxPathLength
)

// Requestor is the narrow HTTP surface Adapter consumes.
type Requestor interface {
	Do(ctx context.Context, method, url string, extraHeaders map[string]string, body []byte) (*solidhttp.Response, error)
}

// DirEntry is a single readdir result: a name relative to its
// container and the POSIX type bit (ModeDir or ModeFile).
type DirEntry struct {
	Name string
	Mode uint32
}

// Statfs is the synthetic filesystem-capacity record Adapter reports.
type Statfs struct {
	BlockSize     uint32
	TotalBlocks   uint64
	FreeBlocks    uint64
	TotalFiles    uint64
	FreeFiles     uint64
	MaxNameLength uint32
	NoATime       bool
}

// Adapter is the process-wide, per-mount POSIX operation set. Its
// hierarchy cache, write buffers and read cache are shared-mutable
// across every FUSE worker goroutine that calls into it.
type Adapter struct {
	hierarchy *solidhierarchy.Hierarchy
	requestor Requestor
	buffers   *writebuffer.Buffers

	readCacheMu sync.Mutex
	readCache   *lru.Cache[string, []byte]
}

// New builds an Adapter over an already-constructed hierarchy and
// HTTP requestor.
func New(hierarchy *solidhierarchy.Hierarchy, requestor Requestor) *Adapter {
	cache, _ := lru.New[string, []byte](readCacheSize)
	return &Adapter{
		hierarchy: hierarchy,
		requestor: requestor,
		buffers:   writebuffer.New(requestor),
		readCache: cache,
	}
}

// Chmod, Chown and Utime are accepted and ignored: SolidFS has no
// notion of POSIX ownership or permission bits to persist, but
// rejecting these calls outright breaks too many tools (editors,
// cp -p, tar) that call them reflexively.
func (a *Adapter) Chmod(path string, mode uint32) syscall.Errno {
	if errno := validate(path); errno != 0 {
		return errno
	}
	log.WithField("path", path).Debug("chmod: unsupported, ignored")
	return 0
}

func (a *Adapter) Chown(path string, uid, gid uint32) syscall.Errno {
	if errno := validate(path); errno != 0 {
		return errno
	}
	log.WithField("path", path).Debug("chown: unsupported, ignored")
	return 0
}

func (a *Adapter) Utime(path string) syscall.Errno {
	if errno := validate(path); errno != 0 {
		return errno
	}
	log.WithField("path", path).Debug("utime: unsupported, ignored")
	return 0
}

// Open validates path and rejects O_APPEND: writes are buffered into
// a single whole-resource PUT, which append semantics can't honor
// without a prior full read this adapter never performs implicitly.
func (a *Adapter) Open(path string, flags uint32) syscall.Errno {
	if errno := validate(path); errno != 0 {
		return errno
	}
	if flags&syscall.O_APPEND != 0 {
		return syscall.EPERM
	}
	return 0
}

// Create makes a new File resource under path's parent Container.
func (a *Adapter) Create(ctx context.Context, path string) syscall.Errno {
	if errno := validate(path); errno != 0 {
		return errno
	}

	parent, name, errno := a.resolveParent(ctx, path)
	if errno != 0 {
		return errno
	}

	childURI := parent.URI + name
	contentType := solidresource.DefaultContentType
	if detected, ok := solidmime.FromURI(childURI); ok {
		contentType = detected
	}

	resp, err := a.requestor.Do(ctx, "PUT", childURI, map[string]string{
		"Link":         `<http://www.w3.org/ns/ldp#Resource>; rel="type"`,
		"Content-Type": contentType,
	}, nil)
	if err != nil {
		return errnoFromError(err)
	}
	if resp.StatusCode != 201 && resp.StatusCode != 204 {
		return syscall.EBADMSG
	}

	child := solidresource.NewFile(childURI, solidresource.Stat{
		Mode:  solidresource.ModeFile | 0o777,
		Nlink: 1,
	})
	child.ContentType = contentType
	parent.Add(child)
	return 0
}

// Mkdir makes a new Container resource under path's parent Container.
func (a *Adapter) Mkdir(ctx context.Context, path string) syscall.Errno {
	if strings.HasSuffix(path, "/") {
		return syscall.EINVAL
	}
	if errno := validate(path); errno != 0 {
		return errno
	}

	parent, name, errno := a.resolveParent(ctx, path)
	if errno != 0 {
		return errno
	}

	childURI := parent.URI + name + "/"
	resp, err := a.requestor.Do(ctx, "PUT", childURI, map[string]string{
		"Link":         `<http://www.w3.org/ns/ldp#BasicContainer>; rel="type"`,
		"Content-Type": "text/turtle",
	}, nil)
	if err != nil {
		return errnoFromError(err)
	}
	if resp.StatusCode != 201 && resp.StatusCode != 204 {
		return syscall.EBADMSG
	}

	child := solidresource.NewContainer(childURI, solidresource.Stat{
		Mode:  solidresource.ModeDir | 0o777,
		Nlink: 2,
	})
	parent.Add(child)
	return 0
}

// Unlink deletes a resource and drops it from its parent's contains.
// Status 202 (accepted-but-deferred) is deliberately not treated as
// success: SolidFS has no way to confirm the deferred delete landed.
func (a *Adapter) Unlink(ctx context.Context, path string) syscall.Errno {
	if errno := validate(path); errno != 0 {
		return errno
	}

	resource, err := a.hierarchy.Resolve(ctx, path)
	if err != nil {
		return errnoFromError(err)
	}

	resp, err := a.requestor.Do(ctx, "DELETE", resource.URI, nil, nil)
	if err != nil {
		return errnoFromError(err)
	}
	if resp.StatusCode != 200 && resp.StatusCode != 204 {
		return syscall.EBADMSG
	}

	a.buffers.Discard(resource)
	if parent, err := a.hierarchy.Parent(ctx, path); err == nil {
		parent.Remove(resource.URI)
	}
	return 0
}

// Rmdir is a synonym for Unlink: both issue a single DELETE.
func (a *Adapter) Rmdir(ctx context.Context, path string) syscall.Errno {
	return a.Unlink(ctx, path)
}

// Rename has no native server-side move, so it is implemented as
// read-then-create-then-write-then-unlink. Any step's failure
// short-circuits, leaving source and target in whatever partial state
// that step left them.
func (a *Adapter) Rename(ctx context.Context, source, target string) syscall.Errno {
	if errno := validate(source); errno != 0 {
		return errno
	}
	if errno := validate(target); errno != 0 {
		return errno
	}

	content, _, errno := a.Read(ctx, source, maxRenameRead, 0)
	if errno != 0 {
		return errno
	}

	if errno := a.Create(ctx, target); errno != 0 {
		return errno
	}

	resource, err := a.hierarchy.Resolve(ctx, target)
	if err != nil {
		return errnoFromError(err)
	}
	if _, err := a.buffers.Write(resource, content, 0); err != nil {
		return syscall.EFBIG
	}
	if err := a.buffers.Flush(ctx, resource); err != nil {
		return errnoFromError(err)
	}

	return a.Unlink(ctx, source)
}

// maxRenameRead bounds the whole-resource read Rename performs before
// recreating the resource at its new path.
const maxRenameRead = writebuffer.MaxBufferSize

// Read serves path's bytes, preferring a cached whole-resource body
// for any offset!=0 read that follows a prior offset==0 GET.
func (a *Adapter) Read(ctx context.Context, path string, size, offset int) ([]byte, int, syscall.Errno) {
	if errno := validate(path); errno != 0 {
		return nil, 0, errno
	}

	resource, err := a.hierarchy.Resolve(ctx, path)
	if err != nil {
		return nil, 0, errnoFromError(err)
	}

	if offset > 0 {
		if cached, ok := a.getReadCache(resource.URI); ok {
			return sliceWithin(cached, offset, size), len(cached), 0
		}
	}

	if buffered, ok := a.buffers.Peek(resource); ok {
		return sliceWithin(buffered, offset, size), len(buffered), 0
	}

	resp, err := a.requestor.Do(ctx, "GET", resource.URI, map[string]string{"Accept": "*"}, nil)
	if err != nil {
		return nil, 0, errnoFromError(err)
	}

	content := resp.Content()
	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		resource.ContentType = contentType
	}
	resource.Stat.Size = int64(len(content))

	if offset == 0 {
		a.setReadCache(resource.URI, content)
	}

	return sliceWithin(content, offset, size), len(content), 0
}

// Write splices buf into path's write buffer; no network call is
// made until Flush.
func (a *Adapter) Write(ctx context.Context, path string, buf []byte, offset int64) (int, syscall.Errno) {
	if errno := validate(path); errno != 0 {
		return 0, errno
	}
	resource, err := a.hierarchy.Resolve(ctx, path)
	if err != nil {
		return 0, errnoFromError(err)
	}
	n, err := a.buffers.Write(resource, buf, offset)
	if err != nil {
		return 0, syscall.EFBIG
	}
	a.invalidateReadCache(resource.URI)
	return n, 0
}

// Flush PUTs path's accumulated write buffer, if any.
func (a *Adapter) Flush(ctx context.Context, path string) syscall.Errno {
	if errno := validate(path); errno != 0 {
		return errno
	}
	resource, err := a.hierarchy.Resolve(ctx, path)
	if err != nil {
		return errnoFromError(err)
	}
	if err := a.buffers.Flush(ctx, resource); err != nil {
		return errnoFromError(err)
	}
	return 0
}

// Truncate resizes path to size, either in its open write buffer or,
// lacking one, by reading the current content and writing a sliced
// or emptied copy back.
func (a *Adapter) Truncate(ctx context.Context, path string, size int64) syscall.Errno {
	if strings.HasSuffix(path, "/") || size < 0 {
		return syscall.EINVAL
	}
	if errno := validate(path); errno != 0 {
		return errno
	}

	resource, err := a.hierarchy.Resolve(ctx, path)
	if err != nil {
		return errnoFromError(err)
	}

	if ok, err := a.buffers.Truncate(resource, size); err != nil {
		return syscall.EFBIG
	} else if ok {
		return 0
	}

	if size == 0 {
		a.buffers.Seed(resource, nil)
		if err := a.buffers.Flush(ctx, resource); err != nil {
			return errnoFromError(err)
		}
		return 0
	}

	content, available, errno := a.Read(ctx, path, int(size)+1, 0)
	if errno != 0 {
		return errno
	}
	if available < int(size)+1 {
		return syscall.EINVAL
	}

	a.buffers.Seed(resource, content[:size])
	if err := a.buffers.Flush(ctx, resource); err != nil {
		return errnoFromError(err)
	}
	return 0
}

// Getattr resolves path, best-effort refreshing its stat record if it
// looks never-populated (mtime or mode zero).
func (a *Adapter) Getattr(ctx context.Context, path string) (solidresource.Stat, syscall.Errno) {
	if errno := validate(path); errno != 0 {
		return solidresource.Stat{}, errno
	}
	resource, err := a.hierarchy.Resolve(ctx, path)
	if err != nil {
		return solidresource.Stat{}, errnoFromError(err)
	}
	if resource.Stat.Mtime == 0 || resource.Stat.Mode == 0 {
		_ = a.hierarchy.RefreshStat(ctx, resource, path == "/")
	}
	return resource.Stat, 0
}

// Readdir lists path's entries: "." and ".." followed by each child,
// named relative to the container with any trailing "/" stripped.
func (a *Adapter) Readdir(ctx context.Context, path string) ([]DirEntry, syscall.Errno) {
	if errno := validate(path); errno != 0 {
		return nil, errno
	}
	container, err := a.hierarchy.Resolve(ctx, path)
	if err != nil {
		return nil, errnoFromError(err)
	}
	if !container.IsContainer {
		return nil, syscall.ENOTDIR
	}

	children, err := a.hierarchy.Children(ctx, container)
	if err != nil {
		return nil, errnoFromError(err)
	}

	entries := make([]DirEntry, 0, len(children)+2)
	entries = append(entries, DirEntry{Name: ".", Mode: solidresource.ModeDir})
	entries = append(entries, DirEntry{Name: "..", Mode: solidresource.ModeDir})
	for _, child := range children {
		name := strings.TrimSuffix(solidpath.Relative(container.URI, child.URI), "/")
		mode := solidresource.ModeFile
		if child.IsContainer {
			mode = solidresource.ModeDir
		}
		entries = append(entries, DirEntry{Name: name, Mode: mode})
	}
	return entries, 0
}

// StatfsInfo reports the synthetic, effectively-unlimited capacity
// figures the backend has no real equivalent of.
func (a *Adapter) StatfsInfo() Statfs {
	return Statfs{
		BlockSize:     blockSize,
		TotalBlocks:   totalBlocks,
		FreeBlocks:    totalBlocks,
		TotalFiles:    totalBlocks,
		FreeFiles:     totalBlocks,
		MaxNameLength: maxNameLength,
		NoATime:       true,
	}
}

// Listxattr returns path's extended attribute names.
func (a *Adapter) Listxattr(ctx context.Context, path string) ([]string, syscall.Errno) {
	if errno := validate(path); errno != 0 {
		return nil, errno
	}
	resource, err := a.hierarchy.Resolve(ctx, path)
	if err != nil {
		return nil, errnoFromError(err)
	}
	return resource.ListExtendedAttributeNames(), 0
}

// Getxattr returns path's named extended attribute value, or ("",
// false) if it is not set.
func (a *Adapter) Getxattr(ctx context.Context, path, name string) (string, bool, syscall.Errno) {
	if errno := validate(path); errno != 0 {
		return "", false, errno
	}
	resource, err := a.hierarchy.Resolve(ctx, path)
	if err != nil {
		return "", false, errnoFromError(err)
	}
	value, ok := resource.GetExtendedAttribute(name)
	return value, ok, 0
}

// InvalidateUpdated marks a resource stale so the next Getattr
// refreshes its stat from the server. It is solidwebsocket.Client's
// Invalidator.InvalidateUpdated.
func (a *Adapter) InvalidateUpdated(resourceURI string) {
	if resource, _, found := a.hierarchy.Find(resourceURI); found {
		resource.Stat.Mtime = 0
		resource.Stat.Mode = 0
	}
	a.invalidateReadCache(resourceURI)
}

// InvalidateDeleted drops a resource from its parent's contains and
// from the read cache. Unlike the original, which only logged delete
// notifications, this mount acts on them: a websocket-observed delete
// of a resource this process never issued the DELETE for would
// otherwise leave a ghost entry in readdir until the next full
// re-list.
func (a *Adapter) InvalidateDeleted(resourceURI string) {
	if resource, parent, found := a.hierarchy.Find(resourceURI); found {
		if parent != nil {
			parent.Remove(resource.URI)
		}
		a.buffers.Discard(resource)
	}
	a.invalidateReadCache(resourceURI)
}

func (a *Adapter) resolveParent(ctx context.Context, path string) (*solidresource.Resource, string, syscall.Errno) {
	idx := strings.LastIndex(path, "/")
	parentPath := path[:idx]
	name := path[idx+1:]

	parent, err := a.hierarchy.Resolve(ctx, parentPath)
	if err != nil {
		return nil, "", errnoFromError(err)
	}
	if !parent.IsContainer {
		return nil, "", syscall.ENOTDIR
	}
	return parent, name, 0
}

func (a *Adapter) getReadCache(uri string) ([]byte, bool) {
	a.readCacheMu.Lock()
	defer a.readCacheMu.Unlock()
	return a.readCache.Get(uri)
}

func (a *Adapter) setReadCache(uri string, content []byte) {
	a.readCacheMu.Lock()
	defer a.readCacheMu.Unlock()
	a.readCache.Add(uri, content)
}

func (a *Adapter) invalidateReadCache(uri string) {
	a.readCacheMu.Lock()
	defer a.readCacheMu.Unlock()
	a.readCache.Remove(uri)
}

func sliceWithin(content []byte, offset, size int) []byte {
	if offset >= len(content) {
		return nil
	}
	end := offset + size
	if end > len(content) {
		end = len(content)
	}
	return content[offset:end]
}

func validate(path string) syscall.Errno {
	err := solidpath.Validate(path)
	if err == nil {
		return 0
	}
	return errnoFromError(err)
}

// errnoFromError maps a domain error to the errno the FUSE layer
// returns to the kernel. HTTP errors go through their Kind; hierarchy
// resolution errors map to the POSIX error they represent; anything
// else becomes EBADMSG, matching an adapter that refuses to guess.
func errnoFromError(err error) syscall.Errno {
	switch e := err.(type) {
	case *solidhttp.HTTPError:
		return errnoFromHTTPKind(e.Kind)
	case *solidhierarchy.ErrNotFound:
		return syscall.ENOENT
	case *solidhierarchy.ErrNotContainer:
		return syscall.ENOTDIR
	case *solidpath.ValidationError:
		return errnoFromValidation(e)
	default:
		return syscall.EBADMSG
	}
}

func errnoFromHTTPKind(kind solidhttp.Kind) syscall.Errno {
	switch kind {
	case solidhttp.KindRedirection:
		return syscall.EREMCHG
	case solidhttp.KindUnauthorized, solidhttp.KindForbidden:
		return syscall.EACCES
	case solidhttp.KindNotFound:
		return syscall.ENOENT
	case solidhttp.KindNotAcceptable:
		return syscall.ENOTSUP
	case solidhttp.KindBadRequest:
		return syscall.EINVAL
	case solidhttp.KindServer:
		return syscall.EAGAIN
	default:
		return syscall.EBADMSG
	}
}

func errnoFromValidation(e *solidpath.ValidationError) syscall.Errno {
	switch e.Errno {
	case solidpath.ErrnoENOTDIR:
		return syscall.ENOTDIR
	case solidpath.ErrnoENAMETOOLONG:
		return syscall.ENAMETOOLONG
	case solidpath.ErrnoEFAULT:
		return syscall.EFAULT
	default:
		return syscall.EINVAL
	}
}
