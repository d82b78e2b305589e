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

import "github.com/cryptfat/cryptfat/internal/verr"

// allocCursor is the rolling allocation hint, starting at cluster 2 (spec
// §4.9 "Allocator").
type allocCursor struct {
	h uint32
}

func newAllocCursor() *allocCursor { return &allocCursor{h: 2} }

// allocate scans the FAT for k free clusters starting at the cursor,
// wrapping once to cluster 2, and advances the cursor past the last
// cluster it hands out.
func (fs *FS) allocate(cur *allocCursor, k int) ([]uint32, error) {
	totalClusters := fs.totalDataClusters()
	maxCluster := totalClusters + 1 // valid data clusters are numbered 2..maxCluster

	start := cur.h
	if start < 2 || start > maxCluster {
		start = 2
	}

	var found []uint32
	c := start
	for scanned := uint32(0); scanned < totalClusters; scanned++ {
		val, err := fs.fat.entry(c)
		if err != nil {
			return nil, err
		}
		if isFree(val) {
			found = append(found, c)
			if len(found) == k {
				next := c + 1
				if next > maxCluster {
					next = 2
					if fs.log != nil {
						fs.log.Debugf("fat32: allocator cursor wrapped to cluster 2")
					}
				}
				cur.h = next
				fs.dirMu.Lock()
				fs.freeKnown = false
				fs.dirMu.Unlock()
				return found, nil
			}
		}
		c++
		if c > maxCluster {
			c = 2
			if fs.log != nil {
				fs.log.Debugf("fat32: allocator scan wrapped to cluster 2")
			}
		}
	}
	return nil, verr.New(verr.DiskFull, "need %d free clusters, found %d", k, len(found))
}

// chainWrite sets FAT[c_i] = c_(i+1) for the given run and FAT[c_k] = EOC,
// writing every modified sector to both FAT copies (spec §4.9 "Chain
// write").
func (fs *FS) chainWrite(clusters []uint32) error {
	for i, c := range clusters {
		var next uint32
		if i == len(clusters)-1 {
			next = ClusterEOC
		} else {
			next = clusters[i+1]
		}
		if err := fs.fat.setEntry(c, next); err != nil {
			return err
		}
	}
	return nil
}

// freeChain walks the chain starting at firstCluster, reading each
// cluster's next-pointer before zeroing that cluster's entry, then zeroes
// every visited entry (spec §4.9 "Free a chain"; spec §9 warns against
// naively parallelising this, since overwriting an entry before reading it
// would corrupt the walk).
func (fs *FS) freeChain(firstCluster uint32) error {
	if firstCluster == 0 {
		return nil
	}
	clusters, err := fs.fat.chain(firstCluster, 0)
	if err != nil {
		return err
	}
	for _, c := range clusters {
		if err := fs.fat.setEntry(c, ClusterFree); err != nil {
			return err
		}
	}
	fs.dirMu.Lock()
	fs.freeKnown = false
	fs.dirMu.Unlock()
	return nil
}

func clusterCountForSize(size uint32, clusterSize uint32) int {
	if size == 0 {
		return 1
	}
	return int((uint64(size) + uint64(clusterSize) - 1) / uint64(clusterSize))
}
