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
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

const dirEntrySize = 32

// Attribute bits (spec §4.7/§4.9).
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLFN       = 0x0F
)

// lfnNameOffsets is the fixed byte offsets of the 13 UCS-2 code units
// within one 32-byte LFN entry (spec §4.9 step 4).
var lfnNameOffsets = [13]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}

// utf16LE is the codec used to go between Go strings and the UCS-2LE code
// units LFN entries store, per the decision recorded in DESIGN.md (the
// ecosystem codec is used here rather than a hand-rolled surrogate-pair
// loop, unlike soypat-fat's internal/utf16x).
var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// FileEntry is the directory-listing result shape (spec §3).
type FileEntry struct {
	Name         string
	Path         string
	IsDirectory  bool
	Size         uint32
	LastModified time.Time
	FirstCluster uint32
}

// rawShortEntry decodes the 8.3 fields of one 32-byte directory entry
// (attribute other than AttrLFN).
type rawShortEntry struct {
	name11       [11]byte
	attr         byte
	writeTime    uint16
	writeDate    uint16
	firstCluster uint32
	size         uint32
}

func decodeShortEntry(raw []byte) rawShortEntry {
	var e rawShortEntry
	copy(e.name11[:], raw[0:11])
	e.attr = raw[11]
	e.writeTime = binary.LittleEndian.Uint16(raw[22:24])
	e.writeDate = binary.LittleEndian.Uint16(raw[24:26])
	hi := binary.LittleEndian.Uint16(raw[20:22])
	lo := binary.LittleEndian.Uint16(raw[26:28])
	e.firstCluster = uint32(hi)<<16 | uint32(lo)
	e.size = binary.LittleEndian.Uint32(raw[28:32])
	return e
}

func encodeShortEntry(e rawShortEntry) []byte {
	raw := make([]byte, dirEntrySize)
	copy(raw[0:11], e.name11[:])
	raw[11] = e.attr
	binary.LittleEndian.PutUint16(raw[22:24], e.writeTime)
	binary.LittleEndian.PutUint16(raw[24:26], e.writeDate)
	binary.LittleEndian.PutUint16(raw[20:22], uint16(e.firstCluster>>16))
	binary.LittleEndian.PutUint16(raw[26:28], uint16(e.firstCluster))
	binary.LittleEndian.PutUint32(raw[28:32], e.size)
	return raw
}

// shortNameDisplay renders an 11-byte 8.3 name as "STEM.EXT" (or "STEM" if
// the extension is blank), trimmed of trailing padding spaces.
func shortNameDisplay(name11 [11]byte) string {
	stem := strings.TrimRight(string(name11[0:8]), " ")
	ext := strings.TrimRight(string(name11[8:11]), " ")
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}

// shortNameChecksum implements spec §4.9 step 1's checksum recurrence over
// the 11 raw name bytes.
func shortNameChecksum(name11 [11]byte) byte {
	var c byte
	for _, b := range name11 {
		c = ((c & 1) << 7) + (c >> 1) + b
	}
	return c
}

// needsLongName reports whether name requires LFN entries (spec §4.9 step 2).
func needsLongName(name string) bool {
	if len(name) > 12 {
		return true
	}
	stem, ext := splitStemExt(name)
	if len(stem) > 8 || len(ext) > 3 {
		return true
	}
	return !isValidShortNameSource(name)
}

func splitStemExt(name string) (stem, ext string) {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return name, ""
}

func isValidShortNameSource(name string) bool {
	for _, r := range name {
		if r > 127 {
			return false
		}
		switch r {
		case ' ', '+', ',', ';', '=', '[', ']', '*', '?', '"', '<', '>', '|', '\\', '/', ':':
			return false
		}
	}
	return true
}

// deriveShortName builds the 11-byte 8.3 alias for name (spec §4.9 step 1).
// Names that need a long name still get a truncated, uppercased alias here
// purely so a short entry can exist on disk; the long name is what callers
// see in FileEntry.Name.
func deriveShortName(name string) [11]byte {
	stem, ext := splitStemExt(name)
	stem = sanitizeShortComponent(stem, 8)
	ext = sanitizeShortComponent(ext, 3)

	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], []byte(stem))
	copy(out[8:11], []byte(ext))
	return out
}

// dotEntryName11 returns the literal on-disk name11 for "." and ".." dot
// entries. These never go through deriveShortName: sanitizeShortComponent
// strips '.' as an invalid 8.3 character, which is correct for ordinary
// names but would turn both dot entries into 11 spaces.
func dotEntryName11(dots int) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	for i := 0; i < dots; i++ {
		out[i] = '.'
	}
	return out
}

func sanitizeShortComponent(s string, maxLen int) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		if r <= 127 && r != ' ' && r != '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// encodeLFNEntries splits name into the LFN entries needed to store it,
// returned in on-disk order (reverse: highest ordinal first), per spec
// §4.9 steps 2 and 4.
func encodeLFNEntries(name string, checksum byte) ([][]byte, error) {
	utf16Bytes, err := utf16LE.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, err
	}

	numUnits := len(utf16Bytes) / 2
	numEntries := (numUnits + 12) / 13 // ceil(units/13)

	entries := make([][]byte, numEntries)
	for i := 0; i < numEntries; i++ {
		raw := make([]byte, dirEntrySize)
		ordinal := byte(i + 1)
		if i == numEntries-1 {
			ordinal |= 0x40
		}
		raw[0] = ordinal
		raw[11] = AttrLFN
		raw[12] = 0
		raw[13] = checksum
		binary.LittleEndian.PutUint16(raw[26:28], 0)

		for slot := 0; slot < 13; slot++ {
			unitIdx := i*13 + slot
			off := lfnNameOffsets[slot]
			if unitIdx < numUnits {
				raw[off] = utf16Bytes[unitIdx*2]
				raw[off+1] = utf16Bytes[unitIdx*2+1]
			} else if unitIdx == numUnits {
				raw[off] = 0
				raw[off+1] = 0
			} else {
				raw[off] = 0xFF
				raw[off+1] = 0xFF
			}
		}
		entries[numEntries-1-i] = raw // highest ordinal first on disk
	}
	return entries, nil
}

// lfnAccumulator reconstructs a long name from LFN fragments encountered
// in on-disk (reverse) order while walking a directory (spec §4.7
// "Directory listing").
type lfnAccumulator struct {
	units []uint16
}

func (a *lfnAccumulator) reset() { a.units = nil }

// prepend folds one LFN entry's 13 code units onto the front of the
// accumulator; entries arrive highest-ordinal-first on disk, so each new
// fragment's units land before what's already been accumulated.
func (a *lfnAccumulator) prepend(raw []byte) {
	var units []uint16
	for _, off := range lfnNameOffsets {
		u := binary.LittleEndian.Uint16(raw[off : off+2])
		if u == 0x0000 || u == 0xFFFF {
			break
		}
		units = append(units, u)
	}
	a.units = append(append([]uint16{}, units...), a.units...)
}

func (a *lfnAccumulator) name() (string, error) {
	if len(a.units) == 0 {
		return "", nil
	}
	b := make([]byte, len(a.units)*2)
	for i, u := range a.units {
		binary.LittleEndian.PutUint16(b[i*2:], u)
	}
	out, err := utf16LE.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
