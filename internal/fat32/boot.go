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

// Package fat32 implements the FAT32 read/write driver (C8/C9) layered on
// top of a decrypted sectordev.SectorDevice: boot sector parsing, FAT entry
// traversal with caching, directory listing with long-filename
// reconstruction, cluster-chain allocation, and directory mutation.
package fat32

import (
	"encoding/binary"

	"github.com/cryptfat/cryptfat/internal/verr"
)

// BootSector holds the fields of the FAT32 boot sector this driver needs,
// decoded from the raw 512-byte sector per spec §4.7.
type BootSector struct {
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectors     uint16
	NumberOfFATs        uint8
	TotalSectors        uint32
	SectorsPerFAT       uint32
	RootDirFirstCluster uint32
	VolumeLabel         string
	FSType              string

	// Derived fields (spec §3 BootSector invariants).
	FirstDataSector uint32
	ClusterSize     uint32
}

const (
	bootOffBytesPerSector      = 11
	bootOffSectorsPerCluster   = 13
	bootOffReservedSectors     = 14
	bootOffNumberOfFATs        = 16
	bootOffTotalSectors32      = 32
	bootOffSectorsPerFAT32     = 36
	bootOffRootDirFirstCluster = 44
	bootOffVolumeLabel         = 71
	bootOffFSType              = 82
	bootSignatureOffset        = 510
)

// ParseBootSector validates and decodes sector 0 of the data area.
func ParseBootSector(sector []byte) (*BootSector, error) {
	if len(sector) < 512 {
		return nil, verr.New(verr.Corrupt, "boot sector must be at least 512 bytes, got %d", len(sector))
	}
	if sector[bootSignatureOffset] != 0x55 || sector[bootSignatureOffset+1] != 0xAA {
		return nil, verr.New(verr.Corrupt, "boot sector missing 0x55AA signature")
	}

	bs := &BootSector{
		BytesPerSector:      binary.LittleEndian.Uint16(sector[bootOffBytesPerSector:]),
		SectorsPerCluster:   sector[bootOffSectorsPerCluster],
		ReservedSectors:     binary.LittleEndian.Uint16(sector[bootOffReservedSectors:]),
		NumberOfFATs:        sector[bootOffNumberOfFATs],
		TotalSectors:        binary.LittleEndian.Uint32(sector[bootOffTotalSectors32:]),
		SectorsPerFAT:       binary.LittleEndian.Uint32(sector[bootOffSectorsPerFAT32:]),
		RootDirFirstCluster: binary.LittleEndian.Uint32(sector[bootOffRootDirFirstCluster:]),
		VolumeLabel:         trimASCII(sector[bootOffVolumeLabel : bootOffVolumeLabel+11]),
		FSType:              trimASCII(sector[bootOffFSType : bootOffFSType+8]),
	}
	bs.FirstDataSector = uint32(bs.ReservedSectors) + uint32(bs.NumberOfFATs)*bs.SectorsPerFAT
	bs.ClusterSize = uint32(bs.BytesPerSector) * uint32(bs.SectorsPerCluster)
	return bs, nil
}

// EncodeBootSector builds a fresh 512-byte FAT32 boot sector for a newly
// created volume (spec §6 "Initial content of the data area").
func EncodeBootSector(bs *BootSector) []byte {
	sector := make([]byte, 512)
	sector[0] = 0xEB // short jump, conventional FAT32 bootstrap stub
	sector[1] = 0x58
	sector[2] = 0x90
	copy(sector[3:11], []byte("CRYPTFAT"))
	binary.LittleEndian.PutUint16(sector[bootOffBytesPerSector:], bs.BytesPerSector)
	sector[bootOffSectorsPerCluster] = bs.SectorsPerCluster
	binary.LittleEndian.PutUint16(sector[bootOffReservedSectors:], bs.ReservedSectors)
	sector[bootOffNumberOfFATs] = bs.NumberOfFATs
	binary.LittleEndian.PutUint32(sector[bootOffTotalSectors32:], bs.TotalSectors)
	binary.LittleEndian.PutUint32(sector[bootOffSectorsPerFAT32:], bs.SectorsPerFAT)
	binary.LittleEndian.PutUint32(sector[bootOffRootDirFirstCluster:], bs.RootDirFirstCluster)
	copy(sector[bootOffVolumeLabel:bootOffVolumeLabel+11], padASCII(bs.VolumeLabel, 11))
	copy(sector[bootOffFSType:bootOffFSType+8], padASCII("FAT32", 8))
	sector[bootSignatureOffset] = 0x55
	sector[bootSignatureOffset+1] = 0xAA
	return sector
}

func trimASCII(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}

func padASCII(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out
}
