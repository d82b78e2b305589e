//go:build linux
// +build linux

// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package fuse bridges a mounted cryptfat container onto the host
// filesystem (C12) through bazil.org/fuse, replacing the teacher's
// read-only RecoverFS (a flat directory of carved files over a raw
// io.ReaderAt) with a real Dir/File pair over internal/volume's
// directory tree, supporting read, write, mkdir, create and remove.
package fuse

import (
	"context"
	"os"
	"path"
	"sort"
	"sync"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/cryptfat/cryptfat/internal/verr"
	"github.com/cryptfat/cryptfat/internal/volume"
)

// FS is the root of the FUSE tree for one mounted container.
type FS struct {
	vol *volume.MountedVolume
}

// New wraps an already-mounted volume for serving over FUSE.
func New(vol *volume.MountedVolume) *FS {
	return &FS{vol: vol}
}

func (f *FS) Root() (fusefs.Node, error) {
	return &Dir{fs: f, path: "/"}, nil
}

func childPath(dir, name string) string {
	return path.Join(dir, name)
}

func toErrno(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case verr.Is(err, verr.NotFound):
		return fuse.ENOENT
	case verr.Is(err, verr.AlreadyExists):
		return fuse.EEXIST
	case verr.Is(err, verr.NotADirectory), verr.Is(err, verr.NotAFile):
		return fuse.Errno(syscall.ENOTDIR)
	case verr.Is(err, verr.DiskFull):
		return fuse.Errno(syscall.ENOSPC)
	case verr.Is(err, verr.InvalidArgument):
		return fuse.Errno(syscall.EINVAL)
	default:
		return fuse.Errno(syscall.EIO)
	}
}

// Dir is a directory node addressed by its normalized container path.
type Dir struct {
	fs   *FS
	path string
}

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0755
	a.Mtime = time.Now()
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	p := childPath(d.path, name)
	entry, err := d.fs.vol.Stat(p)
	if err != nil {
		return nil, toErrno(err)
	}
	if entry.IsDirectory {
		return &Dir{fs: d.fs, path: p}, nil
	}
	return &File{fs: d.fs, path: p}, nil
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := d.fs.vol.List(d.path)
	if err != nil {
		return nil, toErrno(err)
	}
	dirEntries := make([]fuse.Dirent, len(entries))
	for i, e := range entries {
		typ := fuse.DT_File
		if e.IsDirectory {
			typ = fuse.DT_Dir
		}
		dirEntries[i] = fuse.Dirent{Name: e.Name, Type: typ}
	}
	sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name < dirEntries[j].Name })
	return dirEntries, nil
}

func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	p := childPath(d.path, req.Name)
	if err := d.fs.vol.Mkdir(p); err != nil {
		return nil, toErrno(err)
	}
	return &Dir{fs: d.fs, path: p}, nil
}

func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	p := childPath(d.path, req.Name)
	if err := d.fs.vol.Write(p, nil); err != nil {
		return nil, nil, toErrno(err)
	}
	f := &File{fs: d.fs, path: p}
	h := &fileHandle{file: f}
	return f, h, nil
}

func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	p := childPath(d.path, req.Name)
	if err := d.fs.vol.Remove(p); err != nil {
		return toErrno(err)
	}
	return nil
}

// File is a regular-file node addressed by its normalized container path.
type File struct {
	fs   *FS
	path string
}

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	entry, err := f.fs.vol.Stat(f.path)
	if err != nil {
		return toErrno(err)
	}
	a.Mode = 0644
	a.Size = uint64(entry.Size)
	a.Mtime = entry.LastModified
	return nil
}

func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	data, err := f.fs.vol.Read(f.path)
	if err != nil {
		return nil, toErrno(err)
	}
	return &fileHandle{file: f, buf: data}, nil
}

// fileHandle buffers one open file's content in memory between Open and
// Flush/Release, writing the whole file back to the container on flush —
// a deliberate simplification of the streaming write path internal/fat32
// otherwise supports, chosen because bazil.org/fuse hands writes to this
// layer one fuse.WriteRequest at a time with no page-cache coalescing of
// its own.
type fileHandle struct {
	mu    sync.Mutex
	file  *File
	buf   []byte
	dirty bool
}

func (h *fileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	off := int(req.Offset)
	if off >= len(h.buf) {
		resp.Data = []byte{}
		return nil
	}
	end := off + req.Size
	if end > len(h.buf) {
		end = len(h.buf)
	}
	resp.Data = h.buf[off:end]
	return nil
}

func (h *fileHandle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	end := int(req.Offset) + len(req.Data)
	if end > len(h.buf) {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}
	copy(h.buf[req.Offset:end], req.Data)
	h.dirty = true
	resp.Size = len(req.Data)
	return nil
}

func (h *fileHandle) flush() error {
	if !h.dirty {
		return nil
	}
	if err := h.file.fs.vol.Write(h.file.path, h.buf); err != nil {
		return toErrno(err)
	}
	h.dirty = false
	return nil
}

func (h *fileHandle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flush()
}

func (h *fileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flush()
}
