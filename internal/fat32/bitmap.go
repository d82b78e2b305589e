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
	"github.com/boljen/go-bitmap"
)

// FreeSpaceEstimate returns the number of free bytes on the volume. The
// figure is cached after the first scan and only recomputed once
// invalidated by a write (spec §4.9 "Cache invalidation on any write";
// spec §9 "Eviction is approximate" — this is a point-in-time snapshot,
// not synchronised bit-by-bit with every allocation).
func (fs *FS) FreeSpaceEstimate() (uint64, error) {
	fs.dirMu.Lock()
	if fs.freeKnown {
		count := fs.freeCount
		fs.dirMu.Unlock()
		return uint64(count) * uint64(fs.boot.ClusterSize), nil
	}
	fs.dirMu.Unlock()

	free, err := fs.rebuildFreeBitmap()
	if err != nil {
		return 0, err
	}

	fs.dirMu.Lock()
	fs.freeCount = int64(free)
	fs.freeKnown = true
	fs.dirMu.Unlock()
	return uint64(free) * uint64(fs.boot.ClusterSize), nil
}

// rebuildFreeBitmap scans every FAT entry once, recording occupancy in a
// bitmap.Bitmap before counting free clusters; grounded on
// dargueta-disko's Allocator, which keeps the same occupancy-bitmap shape
// for its block allocator.
func (fs *FS) rebuildFreeBitmap() (uint32, error) {
	totalClusters := fs.totalDataClusters()
	bm := bitmap.New(int(totalClusters))

	var free uint32
	for i := uint32(0); i < totalClusters; i++ {
		val, err := fs.fat.entry(i + 2)
		if err != nil {
			return 0, err
		}
		occupied := !isFree(val)
		bm.Set(int(i), occupied)
		if !occupied {
			free++
		}
	}
	return free, nil
}
