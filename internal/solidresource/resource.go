// Package solidresource holds the Container/Resource entity model: the
// in-memory representation of nodes in a Solid Pod's LDP hierarchy.
package solidresource

import (
	"sync"
)

// DefaultContentType is used until a resource's real content type is
// known, matching the original's "application/octet-stream" default.
const DefaultContentType = "application/octet-stream"

// Mode bits, duplicated from syscall so this package has no platform
// dependency; internal/fuseadapter copies them into fuse.Attr.
const (
	ModeDir  uint32 = 0040000 // S_IFDIR
	ModeFile uint32 = 0100000 // S_IFREG
	ModeFmt  uint32 = 0170000 // S_IFMT
)

// Stat is a POSIX stat-shaped record. Fields default to zero until
// populated by hierarchy discovery or a stat refresh.
type Stat struct {
	Mode  uint32
	Nlink uint32
	Size  int64
	Mtime int64
}

// ExtendedAttribute is a single xattr value tagged with where it came
// from ("graph", "header", "link", "mime").
type ExtendedAttribute struct {
	Source string
	Value  string
}

// Resource is any Pod-addressable entity: a File (leaf) or a Container
// (branch). Identity, equality and hashing are on URI alone. Container
// membership (contains) is only meaningful when IsContainer is true;
// it is nil until populated by a successful GET+parse of that
// container ("unpopulated: ask the server").
type Resource struct {
	mu sync.RWMutex

	URI                string
	Stat               Stat
	ContentType        string
	ExtendedAttributes map[string]ExtendedAttribute

	IsContainer bool
	contains    map[string]*Resource
}

// NewFile creates a non-container Resource.
func NewFile(uri string, stat Stat) *Resource {
	return &Resource{
		URI:                uri,
		Stat:               stat,
		ContentType:        DefaultContentType,
		ExtendedAttributes: map[string]ExtendedAttribute{},
	}
}

// NewContainer creates a Container-shaped Resource with unpopulated
// membership.
func NewContainer(uri string, stat Stat) *Resource {
	r := NewFile(uri, stat)
	r.IsContainer = true
	return r
}

// SetExtendedAttribute records or overwrites a single xattr.
func (r *Resource) SetExtendedAttribute(name, source, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ExtendedAttributes == nil {
		r.ExtendedAttributes = map[string]ExtendedAttribute{}
	}
	r.ExtendedAttributes[name] = ExtendedAttribute{Source: source, Value: value}
}

// GetExtendedAttribute returns a single xattr value, or ("", false) if
// absent.
func (r *Resource) GetExtendedAttribute(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attr, ok := r.ExtendedAttributes[name]
	if !ok {
		return "", false
	}
	return attr.Value, true
}

// ListExtendedAttributeNames returns the xattr key set.
func (r *Resource) ListExtendedAttributeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ExtendedAttributes))
	for name := range r.ExtendedAttributes {
		names = append(names, name)
	}
	return names
}

// Populated reports whether this container's membership has been
// fetched at least once (always false for a File, whose contains is
// never set).
func (r *Resource) Populated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contains != nil
}

// Contains returns the child resources, or nil if unpopulated.
func (r *Resource) Contains() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.contains == nil {
		return nil
	}
	out := make([]*Resource, 0, len(r.contains))
	for _, child := range r.contains {
		out = append(out, child)
	}
	return out
}

// SetContains replaces the membership set wholesale (used after a
// successful GET+parse, or to record an empty membership on 401/403).
func (r *Resource) SetContains(children []*Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := make(map[string]*Resource, len(children))
	for _, child := range children {
		m[child.URI] = child
	}
	r.contains = m
}

// Add inserts a single child, initializing an unpopulated container to
// an empty-then-one-member set first.
func (r *Resource) Add(child *Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.contains == nil {
		r.contains = map[string]*Resource{}
	}
	r.contains[child.URI] = child
}

// Remove deletes a child by URI. A no-op if contains is unpopulated or
// the child is absent.
func (r *Resource) Remove(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.contains == nil {
		return
	}
	delete(r.contains, uri)
}

// Get returns a child by exact URI match, or (nil, false).
func (r *Resource) Get(uri string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	child, ok := r.contains[uri]
	return child, ok
}
