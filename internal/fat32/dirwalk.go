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

	"github.com/cryptfat/cryptfat/internal/verr"
)

// rootEntry synthesises the root directory's FileEntry (spec §4.8).
func (fs *FS) rootEntry() FileEntry {
	return FileEntry{
		Name:         "",
		Path:         "/",
		IsDirectory:  true,
		FirstCluster: fs.boot.RootDirFirstCluster,
	}
}

// ListDir lists the contents of the directory at path (spec §4.7 "Directory
// listing", §5 "per-path exclusion so concurrent listers collapse").
func (fs *FS) ListDir(path string) ([]FileEntry, error) {
	dir, err := fs.resolvePath(path)
	if err != nil {
		return nil, err
	}
	if !dir.IsDirectory {
		return nil, verr.New(verr.NotADirectory, "%s is not a directory", path)
	}
	return fs.listDirByCluster(normalizePath(path), dir.FirstCluster)
}

func (fs *FS) listDirByCluster(cacheKey string, firstCluster uint32) ([]FileEntry, error) {
	lock := fs.dirLock(cacheKey)
	lock.Lock()
	defer lock.Unlock()

	fs.dirMu.Lock()
	if cached, ok := fs.dirCache[cacheKey]; ok && cached.firstCluster == firstCluster {
		entries := cached.entries
		fs.dirMu.Unlock()
		return entries, nil
	}
	fs.dirMu.Unlock()

	clusters, err := fs.fat.chain(firstCluster, 0)
	if err != nil {
		return nil, err
	}

	var entries []FileEntry
	var acc lfnAccumulator

	for _, cluster := range clusters {
		data, err := fs.readCluster(cluster)
		if err != nil {
			return nil, err
		}
		for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
			raw := data[off : off+dirEntrySize]
			switch {
			case raw[0] == 0x00:
				// spec §9: permissive "end within this cluster" convention,
				// not an absolute end-of-directory marker.
				acc.reset()
				continue
			case raw[0] == 0xE5:
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
			name, err := acc.name()
			if err != nil {
				return nil, verr.Wrap(verr.Corrupt, err, "decoding long filename")
			}
			if name == "" {
				name = shortNameDisplay(short.name11)
			}
			acc.reset()

			if name == "." || name == ".." {
				continue
			}

			entries = append(entries, FileEntry{
				Name:         name,
				IsDirectory:  short.attr&AttrDirectory != 0,
				Size:         short.size,
				LastModified: decodeFATDateTime(short.writeDate, short.writeTime),
				FirstCluster: short.firstCluster,
			})
		}
	}

	fs.dirMu.Lock()
	fs.dirCache[cacheKey] = dirCacheEntry{firstCluster: firstCluster, entries: entries}
	fs.dirMu.Unlock()

	return entries, nil
}

// resolvePath walks path component by component from the root, per spec
// §4.8.
func (fs *FS) resolvePath(path string) (FileEntry, error) {
	components := splitPath(path)
	if len(components) == 0 {
		return fs.rootEntry(), nil
	}

	cacheKey := normalizePath(path)
	fs.dirMu.Lock()
	if cached, ok := fs.infoCache[cacheKey]; ok {
		fs.dirMu.Unlock()
		return cached, nil
	}
	fs.dirMu.Unlock()

	current := fs.rootEntry()
	currentPath := ""
	for _, comp := range components {
		entries, err := fs.listDirByCluster(currentPath, current.FirstCluster)
		if err != nil {
			return FileEntry{}, err
		}
		found := false
		for _, e := range entries {
			if strings.EqualFold(e.Name, comp) {
				current = e
				found = true
				break
			}
		}
		if !found {
			return FileEntry{}, verr.New(verr.NotFound, "%s: no such file or directory", path)
		}
		if currentPath == "" {
			currentPath = strings.ToLower(comp)
		} else {
			currentPath = currentPath + "/" + strings.ToLower(comp)
		}
	}

	current.Path = "/" + cacheKey
	fs.dirMu.Lock()
	fs.infoCache[cacheKey] = current
	fs.dirMu.Unlock()
	return current, nil
}

// Stat resolves path and returns its FileEntry.
func (fs *FS) Stat(path string) (FileEntry, error) {
	return fs.resolvePath(path)
}
