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
package fat32

import (
	"io"
	"path"
	"time"

	"github.com/cryptfat/cryptfat/internal/verr"
)

const (
	readRunCap       = 256 // clusters per I/O for full file reads (spec §4.7)
	rangeReadRunCap  = 64  // clusters per I/O for ranged reads
	streamWriteBatch = 64  // clusters per batch for streaming writes (spec §4.9)
)

// ReadFile reads the whole file at path, coalescing contiguous cluster runs
// into as few I/Os as possible (spec §4.7 "File read").
func (fs *FS) ReadFile(targetPath string) ([]byte, error) {
	entry, err := fs.resolvePath(targetPath)
	if err != nil {
		return nil, err
	}
	if entry.IsDirectory {
		return nil, verr.New(verr.NotAFile, "%s is a directory", targetPath)
	}
	if entry.Size == 0 {
		return []byte{}, nil
	}

	clusters, err := fs.fat.chain(entry.FirstCluster, 0)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(clusters)*int(fs.boot.ClusterSize))
	for _, run := range coalesceRuns(clusters, readRunCap) {
		data, err := fs.readClusters(run[0], len(run))
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}

	if uint32(len(buf)) > entry.Size {
		buf = buf[:entry.Size]
	}
	return buf, nil
}

// ReadRange reads length bytes starting at offset, touching only the
// clusters that overlap the requested range (spec §4.7 "Ranged read").
func (fs *FS) ReadRange(targetPath string, offset, length int64) ([]byte, error) {
	entry, err := fs.resolvePath(targetPath)
	if err != nil {
		return nil, err
	}
	if entry.IsDirectory {
		return nil, verr.New(verr.NotAFile, "%s is a directory", targetPath)
	}
	if offset < 0 || length < 0 {
		return nil, verr.New(verr.InvalidArgument, "negative offset or length")
	}
	if offset >= int64(entry.Size) || length == 0 {
		return []byte{}, nil
	}
	if offset+length > int64(entry.Size) {
		length = int64(entry.Size) - offset
	}

	clusterSize := int64(fs.boot.ClusterSize)
	startIdx := offset / clusterSize
	endIdx := (offset + length - 1) / clusterSize

	clusters, err := fs.fat.chain(entry.FirstCluster, int(endIdx)+1)
	if err != nil {
		return nil, err
	}
	if int64(len(clusters)) <= endIdx {
		return nil, verr.New(verr.Corrupt, "%s: chain shorter than declared size", targetPath)
	}
	selected := clusters[startIdx : endIdx+1]

	buf := make([]byte, 0, len(selected)*int(clusterSize))
	for _, run := range coalesceRuns(selected, rangeReadRunCap) {
		data, err := fs.readClusters(run[0], len(run))
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}

	within := offset - startIdx*clusterSize
	if within+length > int64(len(buf)) {
		length = int64(len(buf)) - within
	}
	return buf[within : within+length], nil
}

// StreamRead pipes the file's contents through sink in coalesced runs
// without materialising the whole file. A sink that stops accepting
// writes ends the stream without an error (spec §4.7 "Streaming read",
// §5 "a broken sink during streaming read is to be treated as normal
// completion").
func (fs *FS) StreamRead(targetPath string, sink io.Writer) error {
	entry, err := fs.resolvePath(targetPath)
	if err != nil {
		return err
	}
	if entry.IsDirectory {
		return verr.New(verr.NotAFile, "%s is a directory", targetPath)
	}
	if entry.Size == 0 {
		return nil
	}

	clusters, err := fs.fat.chain(entry.FirstCluster, 0)
	if err != nil {
		return err
	}

	var written int64
	for _, run := range coalesceRuns(clusters, readRunCap) {
		remain := int64(entry.Size) - written
		if remain <= 0 {
			break
		}
		data, err := fs.readClusters(run[0], len(run))
		if err != nil {
			return err
		}
		if int64(len(data)) > remain {
			data = data[:remain]
		}
		n, werr := sink.Write(data)
		written += int64(n)
		if werr != nil {
			return nil
		}
	}
	return nil
}

// WriteFile writes data as the full contents of targetPath, creating the
// entry if it doesn't exist or replacing an existing file's chain (spec
// §4.9 "File write (non-streaming)").
func (fs *FS) WriteFile(targetPath string, data []byte) error {
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()

	parentPath := path.Dir(targetPath)
	name := path.Base(targetPath)

	parent, err := fs.resolvePath(parentPath)
	if err != nil {
		return err
	}
	if !parent.IsDirectory {
		return verr.New(verr.NotADirectory, "%s is not a directory", parentPath)
	}

	existing, existErr := fs.resolvePath(targetPath)
	exists := existErr == nil
	if exists && existing.IsDirectory {
		return verr.New(verr.NotAFile, "%s is a directory", targetPath)
	}
	if exists && existing.FirstCluster != 0 {
		if err := fs.freeChain(existing.FirstCluster); err != nil {
			return err
		}
	}

	clusterSize := fs.boot.ClusterSize
	k := clusterCountForSize(uint32(len(data)), clusterSize)
	clusters, err := fs.allocate(fs.allocCursor, k)
	if err != nil {
		return err
	}
	if err := fs.chainWrite(clusters); err != nil {
		return err
	}

	padded := make([]byte, int64(k)*int64(clusterSize))
	copy(padded, data)
	offset := int64(0)
	for _, run := range coalesceRuns(clusters, readRunCap) {
		segLen := int64(len(run)) * int64(clusterSize)
		if err := fs.writeClusters(run[0], padded[offset:offset+segLen]); err != nil {
			return err
		}
		offset += segLen
	}

	now := time.Now()
	if exists {
		if err := fs.updateEntry(parent.FirstCluster, name, clusters[0], uint32(len(data)), now); err != nil {
			return err
		}
	} else {
		if err := fs.createEntry(parent.FirstCluster, name, false, clusters[0], uint32(len(data)), now); err != nil {
			return err
		}
	}

	fs.invalidate(parentPath, targetPath, existing.FirstCluster)
	return nil
}

// StreamWriteFile writes size bytes read from src as the contents of
// targetPath, in batches of up to streamWriteBatch clusters, writing each
// batch in one multi-sector call when its clusters are contiguous (spec
// §4.9 "File write (streaming)").
func (fs *FS) StreamWriteFile(targetPath string, src io.Reader, size int64) error {
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()

	parentPath := path.Dir(targetPath)
	name := path.Base(targetPath)

	parent, err := fs.resolvePath(parentPath)
	if err != nil {
		return err
	}
	if !parent.IsDirectory {
		return verr.New(verr.NotADirectory, "%s is not a directory", parentPath)
	}

	existing, existErr := fs.resolvePath(targetPath)
	exists := existErr == nil
	if exists && existing.FirstCluster != 0 {
		if err := fs.freeChain(existing.FirstCluster); err != nil {
			return err
		}
	}

	clusterSize := int64(fs.boot.ClusterSize)
	k := clusterCountForSize(uint32(size), fs.boot.ClusterSize)
	clusters, err := fs.allocate(fs.allocCursor, k)
	if err != nil {
		return err
	}
	if err := fs.chainWrite(clusters); err != nil {
		return err
	}

	for idx := 0; idx < len(clusters); idx += streamWriteBatch {
		end := idx + streamWriteBatch
		if end > len(clusters) {
			end = len(clusters)
		}
		batch := clusters[idx:end]

		buf := make([]byte, int64(len(batch))*clusterSize)
		if _, err := io.ReadFull(src, buf); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return verr.Wrap(verr.IoError, err, "reading stream for %s", targetPath)
		}

		if contiguousRun(batch) {
			if err := fs.writeClusters(batch[0], buf); err != nil {
				return err
			}
		} else {
			for i, c := range batch {
				if err := fs.writeCluster(c, buf[int64(i)*clusterSize:int64(i+1)*clusterSize]); err != nil {
					return err
				}
			}
		}
	}

	now := time.Now()
	if exists {
		if err := fs.updateEntry(parent.FirstCluster, name, clusters[0], uint32(size), now); err != nil {
			return err
		}
	} else {
		if err := fs.createEntry(parent.FirstCluster, name, false, clusters[0], uint32(size), now); err != nil {
			return err
		}
	}

	fs.invalidate(parentPath, targetPath, existing.FirstCluster)
	return nil
}

func contiguousRun(clusters []uint32) bool {
	for i := 1; i < len(clusters); i++ {
		if clusters[i] != clusters[i-1]+1 {
			return false
		}
	}
	return true
}
