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
	"strings"
	"sync"

	"github.com/cryptfat/cryptfat/internal/logger"
	"github.com/cryptfat/cryptfat/internal/sectordev"
)

// FS is the mounted FAT32 driver: cluster-chain traversal, directory
// listing, path resolution, and file/directory mutation, layered on a
// decrypted sectordev.SectorDevice (spec §4.7-§4.9).
type FS struct {
	sd   *sectordev.SectorDevice
	boot *BootSector
	fat  *fatTable

	writeMu     sync.Mutex // volume-wide write exclusion (spec §5)
	allocCursor *allocCursor

	dirMu      sync.Mutex
	dirLocks   map[string]*sync.Mutex // per-path exclusion for directory reads
	dirCache   map[string]dirCacheEntry
	infoCache  map[string]FileEntry
	freeCount  int64
	freeKnown  bool

	log *logger.Logger
}

// SetLogger attaches a logger for FAT-cache prefetch and allocator
// wrap-around diagnostics (spec §4.13). A nil logger (the default)
// silences these call sites entirely.
func (fs *FS) SetLogger(l *logger.Logger) {
	fs.log = l
	fs.fat.log = l
}

type dirCacheEntry struct {
	firstCluster uint32
	entries      []FileEntry
}

// New builds an FS over a decrypted sector device whose boot sector has
// already been parsed.
func New(sd *sectordev.SectorDevice, boot *BootSector) *FS {
	return &FS{
		sd:          sd,
		boot:        boot,
		fat:         newFATTable(sd, boot),
		allocCursor: newAllocCursor(),
		dirLocks:    make(map[string]*sync.Mutex),
		dirCache:    make(map[string]dirCacheEntry),
		infoCache:   make(map[string]FileEntry),
	}
}

// firstSectorOfCluster converts a cluster number to a data-area-relative
// sector index.
func (fs *FS) firstSectorOfCluster(c uint32) uint64 {
	return uint64(fs.boot.FirstDataSector) + uint64(c-2)*uint64(fs.boot.SectorsPerCluster)
}

// totalDataClusters returns the number of addressable data clusters
// (cluster numbers 2..totalDataClusters+1).
func (fs *FS) totalDataClusters() uint32 {
	return (fs.boot.TotalSectors - fs.boot.FirstDataSector) / uint32(fs.boot.SectorsPerCluster)
}

// readClusters reads and concatenates a run of contiguous clusters in a
// single multi-sector I/O.
func (fs *FS) readClusters(first uint32, count int) ([]byte, error) {
	return fs.sd.ReadSectors(fs.firstSectorOfCluster(first), count*int(fs.boot.SectorsPerCluster))
}

func (fs *FS) writeClusters(first uint32, data []byte) error {
	return fs.sd.WriteSectors(fs.firstSectorOfCluster(first), data)
}

func (fs *FS) readCluster(c uint32) ([]byte, error) {
	return fs.readClusters(c, 1)
}

func (fs *FS) writeCluster(c uint32, data []byte) error {
	return fs.writeClusters(c, data)
}

// coalesceRuns groups a cluster chain into maximal runs of physically
// contiguous clusters, each capped at maxRun clusters (spec §4.7 "File
// read"/"Ranged read").
func coalesceRuns(clusters []uint32, maxRun int) [][]uint32 {
	if len(clusters) == 0 {
		return nil
	}
	var runs [][]uint32
	start := 0
	for i := 1; i <= len(clusters); i++ {
		broken := i == len(clusters) || clusters[i] != clusters[i-1]+1 || i-start >= maxRun
		if broken {
			runs = append(runs, clusters[start:i])
			start = i
		}
	}
	return runs
}

// normalizePath implements the cache-key normalisation of spec §4.8: lower
// case, no trailing slash, root is "".
func normalizePath(path string) string {
	path = strings.ToLower(path)
	path = strings.TrimSuffix(path, "/")
	if path == "" || path == "/" {
		return ""
	}
	return strings.TrimPrefix(path, "/")
}

func splitPath(path string) []string {
	norm := normalizePath(path)
	if norm == "" {
		return nil
	}
	return strings.Split(norm, "/")
}

// invalidate clears the directory listing, file-info, and cluster-chain
// caches for an affected path, plus the cached free-space estimate (spec
// §4.9 "Cache invalidation on any write").
func (fs *FS) invalidate(parentPath, filePath string, firstCluster uint32) {
	fs.dirMu.Lock()
	delete(fs.dirCache, normalizePath(parentPath))
	delete(fs.infoCache, normalizePath(filePath))
	fs.freeKnown = false
	fs.dirMu.Unlock()

	if firstCluster != 0 {
		fs.fat.mu.Lock()
		delete(fs.fat.chainCache, firstCluster)
		fs.fat.mu.Unlock()
	}
}

func (fs *FS) dirLock(path string) *sync.Mutex {
	fs.dirMu.Lock()
	defer fs.dirMu.Unlock()
	m, ok := fs.dirLocks[path]
	if !ok {
		m = &sync.Mutex{}
		fs.dirLocks[path] = m
	}
	return m
}
