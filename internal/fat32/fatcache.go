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
	"container/list"
	"encoding/binary"
	"sync"

	"github.com/cryptfat/cryptfat/internal/logger"
	"github.com/cryptfat/cryptfat/internal/sectordev"
	"github.com/cryptfat/cryptfat/internal/verr"
)

// Cluster markers, per spec §4.7 "FAT-entry lookup".
const (
	ClusterFree   uint32 = 0x00000000
	ClusterBad    uint32 = 0x0FFFFFF7
	ClusterEOCMin uint32 = 0x0FFFFFF8
	ClusterEOC    uint32 = 0x0FFFFFFF

	clusterEntryMask = 0x0FFFFFFF

	fatCacheCapacity  = 256 // sectors
	fatPrefetchCount  = 32  // sectors (16KiB at 512B/sector)
	fatBytesPerEntry  = 4
)

func isEOC(c uint32) bool  { return c >= ClusterEOCMin }
func isFree(c uint32) bool { return c == ClusterFree }
func isBad(c uint32) bool  { return c == ClusterBad }

// fatTable provides cached cluster-entry lookup and mutation across all
// FAT copies of a mounted volume (spec §4.7/§4.9).
type fatTable struct {
	sd              *sectordev.SectorDevice
	reservedSectors uint32
	sectorsPerFAT   uint32
	numFATs         uint8
	bytesPerSector  uint16
	entriesPerSect  uint32

	mu         sync.Mutex
	sectors    map[uint32]*list.Element // FAT#0-relative sector index -> cache entry
	order      *list.List               // front = most recently used
	chainCache map[uint32][]uint32

	log *logger.Logger
}

type fatCacheEntry struct {
	sectorIdx uint32
	data      []byte
}

func newFATTable(sd *sectordev.SectorDevice, bs *BootSector) *fatTable {
	return &fatTable{
		sd:              sd,
		reservedSectors: uint32(bs.ReservedSectors),
		sectorsPerFAT:   bs.SectorsPerFAT,
		numFATs:         bs.NumberOfFATs,
		bytesPerSector:  bs.BytesPerSector,
		entriesPerSect:  uint32(bs.BytesPerSector) / fatBytesPerEntry,
		sectors:         make(map[uint32]*list.Element),
		order:           list.New(),
		chainCache:      make(map[uint32][]uint32),
	}
}

// locate returns the FAT#0-relative sector index and the byte offset within
// that sector holding cluster c's entry.
func (f *fatTable) locate(c uint32) (sectorIdx uint32, off uint32) {
	entryOffset := c * fatBytesPerEntry
	sectorIdx = entryOffset / uint32(f.bytesPerSector)
	off = entryOffset % uint32(f.bytesPerSector)
	return
}

// sector returns the (FAT#0-relative) sector's bytes, populating the cache
// on miss and opportunistically prefetching the following sectors.
func (f *fatTable) sector(idx uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sectorLocked(idx)
}

func (f *fatTable) sectorLocked(idx uint32) ([]byte, error) {
	if el, ok := f.sectors[idx]; ok {
		f.order.MoveToFront(el)
		return el.Value.(*fatCacheEntry).data, nil
	}

	count := fatPrefetchCount
	if remaining := f.sectorsPerFAT - idx; uint32(count) > remaining {
		count = int(remaining)
	}
	if count < 1 {
		count = 1
	}

	raw, err := f.sd.ReadSectors(uint64(f.reservedSectors+idx), count)
	if err != nil {
		return nil, verr.Wrap(verr.IoError, err, "fat32: reading FAT sector %d", idx)
	}
	if f.log != nil && count > 1 {
		f.log.Debugf("fat32: prefetched %d FAT sectors starting at %d", count, idx)
	}

	sectorSize := int(f.bytesPerSector)
	for i := 0; i < count; i++ {
		sIdx := idx + uint32(i)
		if _, exists := f.sectors[sIdx]; exists {
			continue
		}
		data := make([]byte, sectorSize)
		copy(data, raw[i*sectorSize:(i+1)*sectorSize])
		f.insertLocked(sIdx, data)
	}

	el := f.sectors[idx]
	return el.Value.(*fatCacheEntry).data, nil
}

func (f *fatTable) insertLocked(idx uint32, data []byte) {
	el := f.order.PushFront(&fatCacheEntry{sectorIdx: idx, data: data})
	f.sectors[idx] = el
	for f.order.Len() > fatCacheCapacity {
		back := f.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*fatCacheEntry)
		delete(f.sectors, evicted.sectorIdx)
		f.order.Remove(back)
	}
}

// entry reads the raw (masked) value of cluster c's FAT entry.
func (f *fatTable) entry(c uint32) (uint32, error) {
	sectorIdx, off := f.locate(c)
	data, err := f.sector(sectorIdx)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data[off:off+4]) & clusterEntryMask, nil
}

// setEntry writes cluster c's entry to every FAT copy and invalidates the
// chain cache, since any single write can affect an arbitrary number of
// previously cached chains.
func (f *fatTable) setEntry(c uint32, value uint32) error {
	sectorIdx, off := f.locate(c)

	f.mu.Lock()
	data, err := f.sectorLocked(sectorIdx)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	updated := make([]byte, len(data))
	copy(updated, data)
	binary.LittleEndian.PutUint32(updated[off:off+4], value&clusterEntryMask)
	f.insertLocked(sectorIdx, updated)
	f.chainCache = make(map[uint32][]uint32)
	f.mu.Unlock()

	for i := uint32(0); i < uint32(f.numFATs); i++ {
		abs := uint64(f.reservedSectors + i*f.sectorsPerFAT + sectorIdx)
		if err := f.sd.WriteSectors(abs, updated); err != nil {
			return verr.Wrap(verr.IoError, err, "fat32: writing FAT copy %d sector %d", i, sectorIdx)
		}
	}
	return nil
}

// chain walks the cluster chain starting at start, stopping at an EOC/bad
// marker or after max clusters (0 means unbounded). Results are cached by
// starting cluster until the next setEntry call.
func (f *fatTable) chain(start uint32, max int) ([]uint32, error) {
	f.mu.Lock()
	if cached, ok := f.chainCache[start]; ok && (max == 0 || len(cached) <= max) {
		out := make([]uint32, len(cached))
		copy(out, cached)
		f.mu.Unlock()
		return out, nil
	}
	f.mu.Unlock()

	var clusters []uint32
	c := start
	for !isFree(c) && !isBad(c) && !isEOC(c) {
		clusters = append(clusters, c)
		if max > 0 && len(clusters) >= max {
			return clusters, nil
		}
		next, err := f.entry(c)
		if err != nil {
			return nil, err
		}
		if next == c {
			return nil, verr.New(verr.Corrupt, "fat32: self-referential cluster chain at %d", c)
		}
		c = next
	}

	if max == 0 {
		f.mu.Lock()
		f.chainCache[start] = clusters
		f.mu.Unlock()
	}
	return clusters, nil
}
