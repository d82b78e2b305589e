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
	"encoding/binary"

	"github.com/cryptfat/cryptfat/internal/sectordev"
)

const (
	formatBytesPerSector    = 512
	formatSectorsPerCluster = 8 // 4KiB clusters
	formatReservedSectors   = 32
	formatNumFATs           = 2
)

// sectorsPerFATFor estimates the FAT size needed to cover totalSectors
// worth of clusters. It slightly over-provisions rather than iterating to
// a fixed point, since both Format and ParseBootSector derive
// FirstDataSector from whatever value ends up on disk, not from this
// estimate independently.
func sectorsPerFATFor(totalSectors uint32, sectorsPerCluster uint8, bytesPerSector uint16) uint32 {
	clusterEstimate := totalSectors / uint32(sectorsPerCluster)
	entryBytes := (clusterEstimate + 2) * 4
	return (entryBytes + uint32(bytesPerSector) - 1) / uint32(bytesPerSector)
}

// encodeFSInfo builds the 512-byte FSInfo sector spec §6 requires at
// sector 1 (and its backup at sector 7): lead/struct/trail signatures plus
// the free-cluster-count and next-free-cluster hints a real FAT32 driver
// reads on mount. Neither hint is authoritative — a driver must treat
// 0xFFFFFFFF as "unknown" and recompute by scanning the FAT — but writing
// them avoids handing every reader a cold count on first mount.
func encodeFSInfo(freeClusters, nextFree uint32) []byte {
	buf := make([]byte, formatBytesPerSector)
	binary.LittleEndian.PutUint32(buf[0:4], 0x41615252)
	binary.LittleEndian.PutUint32(buf[484:488], 0x61417272)
	binary.LittleEndian.PutUint32(buf[488:492], freeClusters)
	binary.LittleEndian.PutUint32(buf[492:496], nextFree)
	binary.LittleEndian.PutUint32(buf[508:512], 0x000055AA)
	return buf
}

// Format writes a fresh FAT32 file system into sd's data area and returns
// the mounted FS over it (spec §6 "Initial content of the data area for a
// freshly created volume").
func Format(sd *sectordev.SectorDevice, totalSectors uint32, volumeLabel string) (*FS, error) {
	sectorsPerFAT := sectorsPerFATFor(totalSectors, formatSectorsPerCluster, formatBytesPerSector)

	bs := &BootSector{
		BytesPerSector:      formatBytesPerSector,
		SectorsPerCluster:   formatSectorsPerCluster,
		ReservedSectors:     formatReservedSectors,
		NumberOfFATs:        formatNumFATs,
		TotalSectors:        totalSectors,
		SectorsPerFAT:       sectorsPerFAT,
		RootDirFirstCluster: 2,
		VolumeLabel:         volumeLabel,
		FSType:              "FAT32",
	}
	bs.FirstDataSector = uint32(formatReservedSectors) + uint32(formatNumFATs)*sectorsPerFAT
	bs.ClusterSize = uint32(formatBytesPerSector) * uint32(formatSectorsPerCluster)

	zeroReserved := make([]byte, int64(formatReservedSectors)*formatBytesPerSector)
	if err := sd.WriteSectors(0, zeroReserved); err != nil {
		return nil, err
	}

	bootSectorBytes := EncodeBootSector(bs)
	if err := sd.WriteSectors(0, bootSectorBytes); err != nil {
		return nil, err
	}
	if err := sd.WriteSectors(6, bootSectorBytes); err != nil {
		return nil, err
	}

	totalDataClusters := (totalSectors - bs.FirstDataSector) / uint32(formatSectorsPerCluster)
	freeClusters := totalDataClusters - 1 // cluster 2 (root dir) is allocated up front
	fsInfoBytes := encodeFSInfo(freeClusters, 3)
	if err := sd.WriteSectors(1, fsInfoBytes); err != nil {
		return nil, err
	}
	if err := sd.WriteSectors(7, fsInfoBytes); err != nil {
		return nil, err
	}

	sig := make([]byte, formatBytesPerSector)
	sig[510], sig[511] = 0x55, 0xAA
	for _, s := range []uint64{2, 3, 4, 5} {
		if err := sd.WriteSectors(s, sig); err != nil {
			return nil, err
		}
	}

	fatBytes := make([]byte, int64(sectorsPerFAT)*formatBytesPerSector)
	binary.LittleEndian.PutUint32(fatBytes[0:4], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatBytes[4:8], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(fatBytes[8:12], ClusterEOC)
	if err := sd.WriteSectors(uint64(formatReservedSectors), fatBytes); err != nil {
		return nil, err
	}
	if err := sd.WriteSectors(uint64(formatReservedSectors)+uint64(sectorsPerFAT), fatBytes); err != nil {
		return nil, err
	}

	zeroRoot := make([]byte, bs.ClusterSize)
	rootSector := uint64(bs.FirstDataSector)
	if err := sd.WriteSectors(rootSector, zeroRoot); err != nil {
		return nil, err
	}

	return New(sd, bs), nil
}
