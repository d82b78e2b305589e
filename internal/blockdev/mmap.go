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
package blockdev

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/cryptfat/cryptfat/internal/verr"
)

// MmapDevice is a read-only BlockDevice backed by a memory-mapped file —
// useful for read-only mounts and for `cryptfat open`/`ls`/`cat` style
// inspection commands that never need to write. Adapted from the teacher's
// internal/mmap.MmapFile: same open-stat-mmap-unmap lifecycle, rebuilt
// against golang.org/x/sys/unix (MAP_SHARED, PROT_READ) instead of raw
// syscall.Mmap, and restricted to whole-file mappings since the container
// format always addresses the full file by absolute offset.
type MmapDevice struct {
	data []byte
	f    *os.File
}

// OpenMmap memory-maps path read-only in its entirety.
func OpenMmap(path string) (*MmapDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, verr.Wrap(verr.IoError, err, "opening %s", path)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, verr.Wrap(verr.IoError, err, "stat %s", path)
	}
	size := fi.Size()
	if size == 0 {
		f.Close()
		return nil, verr.New(verr.InvalidArgument, "%s is empty, cannot mmap", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, verr.Wrap(verr.IoError, err, "mmap %s", path)
	}

	return &MmapDevice{data: data, f: f}, nil
}

func (m *MmapDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, verr.New(verr.OutOfBounds, "read at %d len %d exceeds mapped size %d", off, len(p), len(m.data))
	}
	return copy(p, m.data[off:]), nil
}

func (m *MmapDevice) WriteAt(p []byte, off int64) (int, error) {
	return 0, verr.New(verr.InvalidArgument, "mmap block device is read-only")
}

func (m *MmapDevice) Size() int64 { return int64(len(m.data)) }

func (m *MmapDevice) Close() error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return verr.Wrap(verr.IoError, err, "munmap")
		}
		m.data = nil
	}
	return m.f.Close()
}
