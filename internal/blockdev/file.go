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

	"github.com/cryptfat/cryptfat/internal/verr"
)

// FileDevice backs a BlockDevice with a regular file or, on Linux, a raw
// block special file (/dev/sdX): ReadAt/WriteAt on *os.File already give
// positioned I/O, which is all this layer needs.
type FileDevice struct {
	f    *os.File
	size int64
}

// OpenFile opens path for positioned read-write I/O. If path names a block
// device, size is probed via the platform ioctl (see raw_linux.go);
// otherwise the regular-file size from Stat is used.
func OpenFile(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, verr.Wrap(verr.IoError, err, "opening %s", path)
	}

	size, err := deviceSize(f)
	if err != nil {
		f.Close()
		return nil, verr.Wrap(verr.IoError, err, "determining size of %s", path)
	}

	return &FileDevice{f: f, size: size}, nil
}

// CreateFile creates (or truncates) a plain file of the given size,
// suitable as a brand-new container image.
func CreateFile(path string, size int64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, verr.Wrap(verr.IoError, err, "creating %s", path)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, verr.Wrap(verr.IoError, err, "truncating %s to %d bytes", path, size)
	}
	return &FileDevice{f: f, size: size}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > d.size {
		return 0, verr.New(verr.OutOfBounds, "read at %d len %d exceeds device size %d", off, len(p), d.size)
	}
	return d.f.ReadAt(p, off)
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > d.size {
		return 0, verr.New(verr.OutOfBounds, "write at %d len %d exceeds device size %d", off, len(p), d.size)
	}
	return d.f.WriteAt(p, off)
}

func (d *FileDevice) Size() int64 { return d.size }

func (d *FileDevice) Close() error { return d.f.Close() }
