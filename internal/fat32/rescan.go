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

// This file is the narrow surface the rescan/fsck tool (C14) needs beyond
// the normal mount API: walking every FAT entry regardless of
// reachability from root, and freeing a chain the directory tree no
// longer points to.

// TotalDataClusters returns the number of addressable data cluster
// numbers (valid clusters run 2..TotalDataClusters()+1).
func (fs *FS) TotalDataClusters() uint32 {
	return fs.totalDataClusters()
}

// ClusterEntry returns the raw FAT entry value for cluster c (masked to
// the 28 low bits), without interpreting it as free/EOC/bad.
func (fs *FS) ClusterEntry(c uint32) (uint32, error) {
	return fs.fat.entry(c)
}

// ChainOf returns every cluster in the chain starting at firstCluster, in
// traversal order. A zero firstCluster (an empty file, or the root-level
// ".." convention) yields an empty slice.
func (fs *FS) ChainOf(firstCluster uint32) ([]uint32, error) {
	if firstCluster == 0 {
		return nil, nil
	}
	return fs.fat.chain(firstCluster, 0)
}

// ReclaimChain frees every cluster in the chain starting at firstCluster
// without touching any directory entry — used by the rescan tool to
// release clusters that allocation left dangling after a write failed
// between the FAT chain commit and the directory entry update (spec §7).
func (fs *FS) ReclaimChain(firstCluster uint32) error {
	return fs.freeChain(firstCluster)
}

// RootFirstCluster returns the first cluster of the root directory.
func (fs *FS) RootFirstCluster() uint32 {
	return fs.boot.RootDirFirstCluster
}

// AllocateOrphanChain allocates and chain-writes k clusters without
// creating any directory entry for them, reproducing the exact gap spec
// §7 describes: a FAT chain committed before its directory entry write
// failed. It exists for the rescan tool's tests, which otherwise have no
// way to manufacture a leaked chain through the normal mount API.
func (fs *FS) AllocateOrphanChain(k int) (uint32, error) {
	clusters, err := fs.allocate(fs.allocCursor, k)
	if err != nil {
		return 0, err
	}
	if err := fs.chainWrite(clusters); err != nil {
		return 0, err
	}
	return clusters[0], nil
}

// InvalidateAll drops every cached directory listing, file info, and
// free-space estimate — called after a rescan reclaims clusters so stale
// cache entries can't resurface freed chains as still-allocated.
func (fs *FS) InvalidateAll() {
	fs.dirMu.Lock()
	defer fs.dirMu.Unlock()
	fs.dirCache = make(map[string]dirCacheEntry)
	fs.infoCache = make(map[string]FileEntry)
	fs.freeKnown = false
}
