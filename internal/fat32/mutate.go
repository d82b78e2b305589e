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
	"path"
	"strings"
	"time"

	"github.com/cryptfat/cryptfat/internal/verr"
)

// findFreeRun finds a run of need consecutive free/deleted 32-byte slots
// within a single cluster of the directory's chain, appending a new zeroed
// cluster if none is found (spec §4.9 steps 3 and "Append cluster to
// directory"). A run never spans a cluster boundary.
func (fs *FS) findFreeRun(dirFirstCluster uint32, need int) (cluster uint32, slot int, err error) {
	clusters, err := fs.fat.chain(dirFirstCluster, 0)
	if err != nil {
		return 0, 0, err
	}

	for _, c := range clusters {
		data, err := fs.readCluster(c)
		if err != nil {
			return 0, 0, err
		}
		run := 0
		runStart := 0
		for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
			if data[off] == 0x00 || data[off] == 0xE5 {
				if run == 0 {
					runStart = off
				}
				run++
				if run == need {
					return c, runStart, nil
				}
			} else {
				run = 0
			}
		}
	}

	last := clusters[len(clusters)-1]
	newClusters, err := fs.allocate(fs.allocCursor, 1)
	if err != nil {
		return 0, 0, err
	}
	newCluster := newClusters[0]

	zero := make([]byte, fs.boot.ClusterSize)
	if err := fs.writeCluster(newCluster, zero); err != nil {
		return 0, 0, err
	}
	if err := fs.fat.setEntry(last, newCluster); err != nil {
		return 0, 0, err
	}
	if err := fs.fat.setEntry(newCluster, ClusterEOC); err != nil {
		return 0, 0, err
	}
	return newCluster, 0, nil
}

func (fs *FS) writeEntriesAt(cluster uint32, slot int, entries [][]byte) error {
	data, err := fs.readCluster(cluster)
	if err != nil {
		return err
	}
	for i, e := range entries {
		copy(data[slot+i*dirEntrySize:], e)
	}
	return fs.writeCluster(cluster, data)
}

// createEntry emits the LFN run (if needed) and 8.3 entry for a new object
// inside the directory at parentCluster (spec §4.9 "Directory entry
// creation").
func (fs *FS) createEntry(parentCluster uint32, name string, isDir bool, firstCluster, size uint32, now time.Time) error {
	short := deriveShortName(name)
	checksum := shortNameChecksum(short)

	var lfnEntries [][]byte
	if needsLongName(name) {
		var err error
		lfnEntries, err = encodeLFNEntries(name, checksum)
		if err != nil {
			return verr.Wrap(verr.InvalidArgument, err, "encoding long filename %q", name)
		}
	}

	attr := byte(AttrArchive)
	if isDir {
		attr = AttrDirectory
	}
	wd, wt := encodeFATDateTime(now)
	shortRaw := encodeShortEntry(rawShortEntry{
		name11:       short,
		attr:         attr,
		writeTime:    wt,
		writeDate:    wd,
		firstCluster: firstCluster,
		size:         size,
	})

	entries := append(append([][]byte{}, lfnEntries...), shortRaw)
	cluster, slot, err := fs.findFreeRun(parentCluster, len(entries))
	if err != nil {
		return err
	}
	return fs.writeEntriesAt(cluster, slot, entries)
}

// deleteEntry marks the 8.3 entry matching name (case-insensitive) and its
// LFN run deleted (spec §4.9 "Deletion").
func (fs *FS) deleteEntry(parentCluster uint32, name string) error {
	clusters, err := fs.fat.chain(parentCluster, 0)
	if err != nil {
		return err
	}

	for _, c := range clusters {
		data, err := fs.readCluster(c)
		if err != nil {
			return err
		}

		var acc lfnAccumulator
		lfnStart := -1
		found := false

		for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
			raw := data[off : off+dirEntrySize]
			switch {
			case raw[0] == 0x00, raw[0] == 0xE5:
				acc.reset()
				lfnStart = -1
				continue
			case raw[11] == AttrLFN:
				if raw[0]&0x40 != 0 {
					lfnStart = off
				}
				acc.prepend(raw)
				continue
			case raw[11]&AttrVolumeID != 0:
				acc.reset()
				lfnStart = -1
				continue
			}

			short := decodeShortEntry(raw)
			longName, _ := acc.name()
			display := longName
			if display == "" {
				display = shortNameDisplay(short.name11)
			}
			acc.reset()

			if strings.EqualFold(display, name) {
				data[off] = 0xE5
				if lfnStart >= 0 {
					for o := lfnStart; o < off; o += dirEntrySize {
						data[o] = 0xE5
					}
				}
				found = true
				break
			}
			lfnStart = -1
		}

		if found {
			return fs.writeCluster(c, data)
		}
	}
	return verr.New(verr.NotFound, "%s: no such file or directory", name)
}

// updateEntry rewrites the first-cluster and size fields of name's 8.3
// entry in place, leaving any LFN run untouched (spec §4.9 "File write
// (non-streaming)": "update the directory entry in place").
func (fs *FS) updateEntry(parentCluster uint32, name string, newFirstCluster, newSize uint32, now time.Time) error {
	clusters, err := fs.fat.chain(parentCluster, 0)
	if err != nil {
		return err
	}

	for _, c := range clusters {
		data, err := fs.readCluster(c)
		if err != nil {
			return err
		}

		var acc lfnAccumulator
		changed := false

		for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
			raw := data[off : off+dirEntrySize]
			switch {
			case raw[0] == 0x00, raw[0] == 0xE5:
				acc.reset()
				continue
			case raw[11] == AttrLFN:
				acc.prepend(raw)
				continue
			case raw[11]&AttrVolumeID != 0:
				acc.reset()
				continue
			}

			short := decodeShortEntry(raw)
			longName, _ := acc.name()
			display := longName
			if display == "" {
				display = shortNameDisplay(short.name11)
			}
			acc.reset()

			if strings.EqualFold(display, name) {
				wd, wt := encodeFATDateTime(now)
				short.firstCluster = newFirstCluster
				short.size = newSize
				short.writeDate = wd
				short.writeTime = wt
				copy(raw, encodeShortEntry(short))
				changed = true
				break
			}
		}

		if changed {
			return fs.writeCluster(c, data)
		}
	}
	return verr.New(verr.NotFound, "%s: no such file or directory", name)
}

// Mkdir creates a new directory at path, initialising its cluster with
// "." and ".." entries (spec §4.9 step 6).
func (fs *FS) Mkdir(targetPath string) error {
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

	newClusters, err := fs.allocate(fs.allocCursor, 1)
	if err != nil {
		return err
	}
	newCluster := newClusters[0]
	if err := fs.fat.setEntry(newCluster, ClusterEOC); err != nil {
		return err
	}

	now := time.Now()
	dotTarget := newCluster
	dotdotTarget := parent.FirstCluster
	if parentPath == "/" || parentPath == "." {
		dotdotTarget = 0 // spec §9: ".." points at cluster 0 when the parent is root
	}

	data := make([]byte, fs.boot.ClusterSize)
	wd, wt := encodeFATDateTime(now)
	dotRaw := encodeShortEntry(rawShortEntry{name11: dotEntryName11(1), attr: AttrDirectory, writeDate: wd, writeTime: wt, firstCluster: dotTarget})
	dotdotRaw := encodeShortEntry(rawShortEntry{name11: dotEntryName11(2), attr: AttrDirectory, writeDate: wd, writeTime: wt, firstCluster: dotdotTarget})
	copy(data[0:dirEntrySize], dotRaw)
	copy(data[dirEntrySize:2*dirEntrySize], dotdotRaw)
	if err := fs.writeCluster(newCluster, data); err != nil {
		return err
	}

	if err := fs.createEntry(parent.FirstCluster, name, true, newCluster, 0, now); err != nil {
		return err
	}

	fs.invalidate(parentPath, targetPath, 0)
	return nil
}

// Remove deletes the object at targetPath, recursing into subdirectories
// first (spec §4.9 "Deletion").
func (fs *FS) Remove(targetPath string) error {
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	return fs.removeLocked(targetPath)
}

func (fs *FS) removeLocked(targetPath string) error {
	entry, err := fs.resolvePath(targetPath)
	if err != nil {
		return err
	}

	if entry.IsDirectory {
		children, err := fs.ListDir(targetPath)
		if err != nil {
			return err
		}
		for _, child := range children {
			childPath := strings.TrimSuffix(targetPath, "/") + "/" + child.Name
			if err := fs.removeLocked(childPath); err != nil {
				return err
			}
		}
	}

	if entry.FirstCluster != 0 {
		if err := fs.freeChain(entry.FirstCluster); err != nil {
			return err
		}
	}

	parentPath := path.Dir(targetPath)
	name := path.Base(targetPath)
	parent, err := fs.resolvePath(parentPath)
	if err != nil {
		return err
	}
	if err := fs.deleteEntry(parent.FirstCluster, name); err != nil {
		return err
	}

	fs.invalidate(parentPath, targetPath, entry.FirstCluster)
	return nil
}
