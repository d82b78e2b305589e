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

// Package blockdev provides the positioned byte-range read/write primitive
// (C1) the rest of the engine builds on: not encryption-aware, thread-safe,
// and backed interchangeably by a plain file, a raw block device, a
// read-only mmap, or an in-memory buffer for tests.
package blockdev

import "io"

// BlockDevice is positioned read/write of byte ranges against a
// fixed-size backing store. Implementations must be safe for concurrent
// ReadAt/WriteAt calls on disjoint ranges; the sector device above this
// layer still serialises overlapping access with its own lock per spec
// §4.5, so BlockDevice itself need not provide cross-call ordering.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
	// Size returns the device's logical size in bytes.
	Size() int64
	// Close releases any OS resources the device holds.
	Close() error
}
