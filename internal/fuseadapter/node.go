// Package fuseadapter wraps internal/solidfs.Adapter in go-fuse's
// Inode tree, translating every kernel callback into a path string
// and a call into the path-based Adapter.
package fuseadapter

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/myforest/solidfs/internal/solidfs"
	"github.com/myforest/solidfs/internal/solidresource"
)

// Node is the sole InodeEmbedder type for the whole mount: every
// directory and file is the same Go type, distinguished only by its
// Inode's StableAttr.Mode. The adapter is path-based, so a Node's
// identity in the kernel's Inode tree is reconstructed into a path via
// Inode.Path before every call.
type Node struct {
	fs.Inode
	adapter *solidfs.Adapter
}

var (
	_ fs.InodeEmbedder   = (*Node)(nil)
	_ fs.NodeGetattrer   = (*Node)(nil)
	_ fs.NodeSetattrer   = (*Node)(nil)
	_ fs.NodeLookuper    = (*Node)(nil)
	_ fs.NodeReaddirer   = (*Node)(nil)
	_ fs.NodeCreater     = (*Node)(nil)
	_ fs.NodeMkdirer     = (*Node)(nil)
	_ fs.NodeUnlinker    = (*Node)(nil)
	_ fs.NodeRmdirer     = (*Node)(nil)
	_ fs.NodeRenamer     = (*Node)(nil)
	_ fs.NodeOpener      = (*Node)(nil)
	_ fs.NodeReader      = (*Node)(nil)
	_ fs.NodeWriter      = (*Node)(nil)
	_ fs.NodeFlusher     = (*Node)(nil)
	_ fs.NodeStatfser    = (*Node)(nil)
	_ fs.NodeGetxattrer  = (*Node)(nil)
	_ fs.NodeListxattrer = (*Node)(nil)
)

// Root builds the mount's root Node.
func Root(adapter *solidfs.Adapter) fs.InodeEmbedder {
	return &Node{adapter: adapter}
}

func (n *Node) path() string {
	full := n.Path(n.Root())
	if full == "" {
		return "/"
	}
	return "/" + full
}

func (n *Node) child(adapter *solidfs.Adapter) *Node {
	return &Node{adapter: adapter}
}

func toStableAttr(mode uint32) fs.StableAttr {
	kind := fuse.S_IFREG
	if mode&solidresource.ModeFmt == solidresource.ModeDir {
		kind = fuse.S_IFDIR
	}
	return fs.StableAttr{Mode: uint32(kind)}
}

func statToAttr(out *fuse.Attr, stat solidresource.Stat) {
	out.Mode = stat.Mode
	out.Nlink = stat.Nlink
	if out.Nlink == 0 {
		out.Nlink = 1
	}
	out.Size = uint64(stat.Size)
	out.Mtime = uint64(stat.Mtime)
	out.Atime = uint64(stat.Mtime)
	out.Ctime = uint64(stat.Mtime)
}

// Getattr implements fs.NodeGetattrer.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	stat, errno := n.adapter.Getattr(ctx, n.path())
	if errno != 0 {
		return errno
	}
	statToAttr(&out.Attr, stat)
	return 0
}

// Setattr implements fs.NodeSetattrer: chmod/chown/utime are accepted
// and ignored, and a size change dispatches to Truncate.
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	path := n.path()

	if mode, ok := in.GetMode(); ok {
		if errno := n.adapter.Chmod(path, mode); errno != 0 {
			return errno
		}
	}
	uid, hasUID := in.GetUID()
	gid, hasGID := in.GetGID()
	if hasUID || hasGID {
		if errno := n.adapter.Chown(path, uid, gid); errno != 0 {
			return errno
		}
	}
	if size, ok := in.GetSize(); ok {
		if errno := n.adapter.Truncate(ctx, path, int64(size)); errno != 0 {
			return errno
		}
	}
	if _, ok := in.GetMTime(); ok {
		if errno := n.adapter.Utime(path); errno != 0 {
			return errno
		}
	}

	stat, errno := n.adapter.Getattr(ctx, path)
	if errno != 0 {
		return errno
	}
	statToAttr(&out.Attr, stat)
	return 0
}

// Lookup implements fs.NodeLookuper by readdir-ing the parent and
// matching name; the adapter has no single-entry stat-by-name call.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	entries, errno := n.adapter.Readdir(ctx, n.path())
	if errno != 0 {
		return nil, errno
	}

	for _, entry := range entries {
		if entry.Name != name {
			continue
		}
		childPath := joinPath(n.path(), name)
		stat, errno := n.adapter.Getattr(ctx, childPath)
		if errno != 0 {
			return nil, errno
		}
		statToAttr(&out.Attr, stat)
		child := n.NewInode(ctx, n.child(n.adapter), toStableAttr(entry.Mode))
		return child, 0
	}
	return nil, syscall.ENOENT
}

// Readdir implements fs.NodeReaddirer.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, errno := n.adapter.Readdir(ctx, n.path())
	if errno != 0 {
		return nil, errno
	}

	list := make([]fuse.DirEntry, 0, len(entries))
	for _, entry := range entries {
		list = append(list, fuse.DirEntry{Name: entry.Name, Mode: entry.Mode})
	}
	return fs.NewListDirStream(list), 0
}

// Create implements fs.NodeCreater.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := joinPath(n.path(), name)
	if errno := n.adapter.Create(ctx, childPath); errno != 0 {
		return nil, nil, 0, errno
	}

	stat, errno := n.adapter.Getattr(ctx, childPath)
	if errno != 0 {
		return nil, nil, 0, errno
	}
	statToAttr(&out.Attr, stat)

	child := n.NewInode(ctx, n.child(n.adapter), toStableAttr(stat.Mode))
	return child, nil, 0, 0
}

// Mkdir implements fs.NodeMkdirer.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := joinPath(n.path(), name)
	if errno := n.adapter.Mkdir(ctx, childPath); errno != 0 {
		return nil, errno
	}

	stat, errno := n.adapter.Getattr(ctx, childPath)
	if errno != 0 {
		return nil, errno
	}
	statToAttr(&out.Attr, stat)

	child := n.NewInode(ctx, n.child(n.adapter), toStableAttr(stat.Mode))
	return child, 0
}

// Unlink implements fs.NodeUnlinker.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.adapter.Unlink(ctx, joinPath(n.path(), name))
}

// Rmdir implements fs.NodeRmdirer.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.adapter.Rmdir(ctx, joinPath(n.path(), name))
}

// Rename implements fs.NodeRenamer.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	newParentNode, ok := newParent.(*Node)
	if !ok {
		return syscall.EINVAL
	}
	source := joinPath(n.path(), name)
	target := joinPath(newParentNode.path(), newName)
	return n.adapter.Rename(ctx, source, target)
}

// Open implements fs.NodeOpener.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if errno := n.adapter.Open(n.path(), flags); errno != 0 {
		return nil, 0, errno
	}
	return nil, 0, 0
}

// Read implements fs.NodeReader.
func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	content, _, errno := n.adapter.Read(ctx, n.path(), len(dest), int(off))
	if errno != 0 {
		return nil, errno
	}
	return fuse.ReadResultData(content), 0
}

// Write implements fs.NodeWriter.
func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, errno := n.adapter.Write(ctx, n.path(), data, off)
	if errno != 0 {
		return 0, errno
	}
	return uint32(written), 0
}

// Flush implements fs.NodeFlusher.
func (n *Node) Flush(ctx context.Context, f fs.FileHandle) syscall.Errno {
	return n.adapter.Flush(ctx, n.path())
}

// Statfs implements fs.NodeStatfser.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	info := n.adapter.StatfsInfo()
	out.Bsize = info.BlockSize
	out.Blocks = info.TotalBlocks
	out.Bfree = info.FreeBlocks
	out.Bavail = info.FreeBlocks
	out.Files = info.TotalFiles
	out.Ffree = info.FreeFiles
	out.NameLen = info.MaxNameLength
	return 0
}

// Listxattr implements fs.NodeListxattrer.
func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	names, errno := n.adapter.Listxattr(ctx, n.path())
	if errno != 0 {
		return 0, errno
	}
	return fillxattrNames(dest, names), 0
}

// Getxattr implements fs.NodeGetxattrer.
func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	value, ok, errno := n.adapter.Getxattr(ctx, n.path(), attr)
	if errno != 0 {
		return 0, errno
	}
	if !ok {
		return 0, syscall.ENODATA
	}
	if len(dest) == 0 {
		return uint32(len(value)), 0
	}
	if len(dest) < len(value) {
		return 0, syscall.ERANGE
	}
	copy(dest, value)
	return uint32(len(value)), 0
}

func fillxattrNames(dest []byte, names []string) uint32 {
	var total int
	for _, name := range names {
		total += len(name) + 1
	}
	if len(dest) == 0 {
		return uint32(total)
	}
	offset := 0
	for _, name := range names {
		offset += copy(dest[offset:], name)
		if offset < len(dest) {
			dest[offset] = 0
		}
		offset++
	}
	return uint32(total)
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
