// Package solidhierarchy is the lazily populated tree of Containers
// and Resources discovered by parsing RDF graphs, keyed by URI, with
// containment invariants and extended attributes derived from graph
// triples and HTTP response headers.
package solidhierarchy

import (
	"bytes"
	"context"
	"mime"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/deiu/rdf2go"
	log "github.com/sirupsen/logrus"

	"github.com/myforest/solidfs/internal/solidhttp"
	"github.com/myforest/solidfs/internal/solidpath"
	"github.com/myforest/solidfs/internal/solidresource"
)

// ldpContains is the predicate a Container uses to list its members.
const ldpContains = "http://www.w3.org/ns/ldp#contains"
const posixMtime = "http://www.w3.org/ns/posix/stat#mtime"
const posixSize = "http://www.w3.org/ns/posix/stat#size"

// ErrNotFound is returned by Resolve when a path segment has no
// matching child in the hierarchy.
type ErrNotFound struct{ Path string }

func (e *ErrNotFound) Error() string { return "not found: " + e.Path }

// ErrNotContainer is returned by Resolve when a mid-path segment
// resolves to a File, which cannot have children.
type ErrNotContainer struct{ URI string }

func (e *ErrNotContainer) Error() string { return e.URI + " is not a Container" }

// Requestor is the narrow surface solidhierarchy consumes from
// internal/solidhttp.Requestor.
type Requestor interface {
	Do(ctx context.Context, method, url string, extraHeaders map[string]string, body []byte) (*solidhttp.Response, error)
}

// Subscriber is notified of newly discovered children so the
// background loop (4.I) can opportunistically subscribe to
// change notifications. Failures are the subscriber's problem to
// swallow; solidhierarchy never inspects the outcome.
type Subscriber interface {
	Subscribe(ctx context.Context, resourceURI string)
}

type noopSubscriber struct{}

func (noopSubscriber) Subscribe(context.Context, string) {}

// Hierarchy is the process-wide resource tree for one mount.
type Hierarchy struct {
	root       *solidresource.Resource
	requestor  Requestor
	subscriber Subscriber
}

// New builds a Hierarchy rooted at baseURL (a trailing "/" is
// appended if missing).
func New(baseURL string, requestor Requestor, subscriber Subscriber) *Hierarchy {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if subscriber == nil {
		subscriber = noopSubscriber{}
	}
	root := solidresource.NewContainer(baseURL, solidresource.Stat{
		Mode:  solidresource.ModeDir | 0o755,
		Nlink: 2,
	})
	return &Hierarchy{root: root, requestor: requestor, subscriber: subscriber}
}

// Root returns the hierarchy's sole root Container.
func (h *Hierarchy) Root() *solidresource.Resource { return h.root }

// Resolve walks a "/"-delimited POSIX path from the root, consulting
// Children at each step. Encountering a non-container mid-path is an
// error; an unmatched segment is ErrNotFound.
func (h *Hierarchy) Resolve(ctx context.Context, relativePath string) (*solidresource.Resource, error) {
	return h.resolveFrom(ctx, h.root, relativePath)
}

func (h *Hierarchy) resolveFrom(ctx context.Context, start *solidresource.Resource, relativePath string) (*solidresource.Resource, error) {
	if relativePath == "/" || relativePath == "" || relativePath == "." {
		return start, nil
	}

	current := start
	for _, part := range strings.Split(strings.TrimPrefix(relativePath, "/"), "/") {
		if part == "" {
			continue
		}
		if !current.IsContainer {
			return nil, &ErrNotContainer{URI: current.URI}
		}

		children, err := h.Children(ctx, current)
		if err != nil {
			return nil, err
		}

		fileURI := current.URI + part
		containerURI := current.URI + part + "/"
		var found *solidresource.Resource
		for _, child := range children {
			if child.URI == fileURI || child.URI == containerURI {
				found = child
				break
			}
		}
		if found == nil {
			return nil, &ErrNotFound{Path: relativePath}
		}
		current = found
	}
	return current, nil
}

// Find locates a Resource already present in the in-memory tree by
// URI, without making any network request: it only descends into
// containers whose membership is already populated. It is used by
// best-effort cache invalidation (websocket notifications), where a
// miss simply means nothing needs to change.
func (h *Hierarchy) Find(uri string) (resource *solidresource.Resource, parent *solidresource.Resource, found bool) {
	return findRecursive(h.root, uri)
}

func findRecursive(container *solidresource.Resource, uri string) (*solidresource.Resource, *solidresource.Resource, bool) {
	if !container.Populated() {
		return nil, nil, false
	}
	for _, child := range container.Contains() {
		if child.URI == uri {
			return child, container, true
		}
		if child.IsContainer {
			if resource, parent, found := findRecursive(child, uri); found {
				return resource, parent, true
			}
		}
	}
	return nil, nil, false
}

// Parent resolves the Container that would hold path (i.e. path's
// directory component).
func (h *Hierarchy) Parent(ctx context.Context, path string) (*solidresource.Resource, error) {
	idx := strings.LastIndex(path, "/")
	parentPath := path[:idx]
	parent, err := h.Resolve(ctx, parentPath)
	if err != nil {
		return nil, err
	}
	if !parent.IsContainer {
		return nil, &ErrNotContainer{URI: parent.URI}
	}
	return parent, nil
}

// Children returns container's child Resources, lazily populating
// them from the server on first access.
func (h *Hierarchy) Children(ctx context.Context, container *solidresource.Resource) ([]*solidresource.Resource, error) {
	if container.Populated() {
		return container.Contains(), nil
	}

	resp, err := h.requestor.Do(ctx, "GET", container.URI, map[string]string{
		"Accept": "text/turtle,application/rdf+xml,application/ld+json",
	}, nil)
	if err != nil {
		if httpErr, ok := err.(*solidhttp.HTTPError); ok &&
			(httpErr.Kind == solidhttp.KindForbidden || httpErr.Kind == solidhttp.KindUnauthorized) {
			log.WithFields(log.Fields{"resource_url": container.URI, "status_code": httpErr.StatusCode}).
				Warn("unable to get container contents, recording empty membership")
			container.SetContains(nil)
			return nil, nil
		}
		return nil, err
	}

	// The graph names resources in wire form; in memory they are decoded.
	wireURI, err := solidpath.ToWire(container.URI)
	if err != nil {
		return nil, err
	}
	graph := rdf2go.NewGraph(wireURI)
	if parseErr := graph.Parse(bytes.NewReader(resp.Content()), graphContentType(resp.Header.Get("Content-Type"))); parseErr != nil {
		return nil, parseErr
	}

	extendResource(container, wireURI, graph)

	subject := rdf2go.NewResource(wireURI)
	containsTriples := graph.All(subject, rdf2go.NewResource(ldpContains), nil)

	children := make([]*solidresource.Resource, 0, len(containsTriples))
	for _, triple := range containsTriples {
		childWireURI := triple.Object.RawValue()
		childURI, err := solidpath.FromWire(childWireURI)
		if err != nil {
			childURI = childWireURI
		}

		var child *solidresource.Resource
		if strings.HasSuffix(childURI, "/") {
			child = solidresource.NewContainer(childURI, solidresource.Stat{
				Mode:  solidresource.ModeDir | 0o755,
				Nlink: 2,
			})
		} else {
			child = solidresource.NewFile(childURI, solidresource.Stat{
				Mode: solidresource.ModeFile | 0o444,
				Size: unknownSize,
			})
		}

		extendResource(child, childWireURI, graph)
		h.subscriber.Subscribe(ctx, child.URI)
		children = append(children, child)
	}

	container.SetContains(children)
	return children, nil
}

// unknownSize is the placeholder size recorded for a newly discovered
// File that has no posix:size triple, until a read or a flush records
// the real size; RefreshStat does not change it.
const unknownSize = 100 * 1024 * 1024

// graphContentType maps a response Content-Type to the rdf2go parser
// format identifier it expects.
func graphContentType(responseContentType string) string {
	baseType, _, err := mime.ParseMediaType(responseContentType)
	if err != nil {
		baseType = responseContentType
	}
	switch {
	case strings.Contains(baseType, "json"):
		return "application/ld+json"
	case strings.Contains(baseType, "rdf+xml"):
		return "application/rdf+xml"
	default:
		return "text/turtle"
	}
}

// extendResource looks for interesting triples in graph that give
// more insight into resource's state: posix:mtime, posix:size, and
// every other predicate folded into extended_attributes (ldp:contains
// itself excluded), matching _extend_resource in the original.
// wireURI is resource's URI in the wire form the graph uses.
func extendResource(resource *solidresource.Resource, wireURI string, graph *rdf2go.Graph) {
	subject := rdf2go.NewResource(wireURI)
	triples := graph.All(subject, nil, nil)

	byPredicate := map[string][]string{}
	var predicateOrder []string
	for _, triple := range triples {
		predicateURI := triple.Predicate.RawValue()
		if predicateURI == ldpContains {
			continue
		}
		if _, seen := byPredicate[predicateURI]; !seen {
			predicateOrder = append(predicateOrder, predicateURI)
		}
		byPredicate[predicateURI] = append(byPredicate[predicateURI], triple.Object.RawValue())
	}

	for _, predicateURI := range predicateOrder {
		values := byPredicate[predicateURI]
		resource.SetExtendedAttribute(predicateURI, "graph", strings.Join(values, ","))
	}

	if mtimes, ok := byPredicate[posixMtime]; ok && len(mtimes) > 0 {
		if newest, ok := maxInt64(mtimes); ok {
			resource.Stat.Mtime = newest
		}
	}
	if sizes, ok := byPredicate[posixSize]; ok && len(sizes) > 0 {
		if largest, ok := maxInt64(sizes); ok {
			resource.Stat.Size = largest
		}
	}
}

func maxInt64(values []string) (int64, bool) {
	var largest int64
	found := false
	for _, value := range values {
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		if !found || v > largest {
			largest, found = v, true
		}
	}
	return largest, found
}

// RefreshStat issues a HEAD request and populates content type, mtime,
// mode (from WAC-Allow) and selected headers as xattrs. Any HTTP error
// is swallowed by the caller (stat refresh is advisory), matching
// _refresh_resource_stat.
func (h *Hierarchy) RefreshStat(ctx context.Context, resource *solidresource.Resource, isRoot bool) error {
	resp, err := h.requestor.Do(ctx, "HEAD", resource.URI, map[string]string{"Accept": "*"}, nil)
	if err != nil {
		return err
	}

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		resource.ContentType = contentType
		resource.SetExtendedAttribute("user.mime_type", "mime", contentType)
	}

	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		if t, err := mail.ParseDate(lastModified); err == nil {
			resource.Stat.Mtime = t.Unix()
		} else if t, err := time.Parse(time.RFC1123, lastModified); err == nil {
			resource.Stat.Mtime = t.Unix()
		}
	}

	if wacAllow := resp.Header.Get("WAC-Allow"); wacAllow != "" {
		resource.Stat.Mode = parseWACAllowMode(wacAllow, resource.IsContainer)
	}

	for _, headerName := range selectedHeaders(isRoot) {
		if value := resp.Header.Get(headerName); value != "" {
			resource.SetExtendedAttribute("user.header."+strings.ToLower(headerName), "header", value)
		}
	}

	for rel, params := range resp.Links {
		resource.SetExtendedAttribute("user.link."+rel, "link", params["url"])
	}

	return nil
}

func selectedHeaders(isRoot bool) []string {
	headers := []string{"Allow"}
	if isRoot {
		headers = append(headers, "X-Powered-By")
	}
	return headers
}

// parseWACAllowMode parses a WAC-Allow header's user-permission token
// list, e.g. `user="read write", public="read"`, following the RFC
// 8288-style scope="token list" form rather than a naive last-"="
// split, which breaks on multi-scope headers.
func parseWACAllowMode(wacAllow string, isContainer bool) uint32 {
	const readWriteMask = 0o700 // S_IRWXU

	mode := uint32(readWriteMask)
	if isContainer {
		mode = 0 | solidresource.ModeDir
	} else {
		mode = 0 | solidresource.ModeFile
	}

	userModes := extractScope(wacAllow, "user")
	if strings.Contains(userModes, "read") {
		mode |= 0o400 // S_IRUSR
	}
	if strings.Contains(userModes, "write") {
		mode |= 0o200 // S_IWUSR
	}
	return mode
}

// extractScope pulls the quoted token list for a named scope
// (user="read write") out of a WAC-Allow header value.
func extractScope(wacAllow, scope string) string {
	for _, part := range strings.Split(wacAllow, ",") {
		part = strings.TrimSpace(part)
		prefix := scope + "="
		if !strings.HasPrefix(part, prefix) {
			continue
		}
		return strings.Trim(strings.TrimPrefix(part, prefix), `"`)
	}
	return ""
}
