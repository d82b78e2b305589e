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

// Package volume is the mount manager (C10): it wires a block device, the
// header codec, the sector device, and the FAT32 driver into a single
// MountedVolume, and is the only place in the engine allowed to hold a
// plaintext master key (spec §4.10).
package volume

import (
	"io"
	"sync"
	"time"

	"github.com/cryptfat/cryptfat/internal/blockdev"
	"github.com/cryptfat/cryptfat/internal/crypto"
	"github.com/cryptfat/cryptfat/internal/fat32"
	"github.com/cryptfat/cryptfat/internal/header"
	"github.com/cryptfat/cryptfat/internal/logger"
	"github.com/cryptfat/cryptfat/internal/sectordev"
	"github.com/cryptfat/cryptfat/internal/verr"
)

// state is the lifecycle of a MountedVolume (spec §4.10): Unmounted ->
// Mounting -> Mounted -> Unmounting -> Unmounted. Mounting is atomic from
// the caller's perspective — Open either returns a Mounted volume or an
// error, never a partially-mounted one.
type state int

const (
	stateUnmounted state = iota
	stateMounting
	stateMounted
	stateUnmounting
)

// Device is the backing store a volume mounts over: a plain file, a raw
// block device, a read-only mmap, or an in-memory buffer for tests.
type Device interface {
	blockdev.BlockDevice
}

// MountedVolume owns every piece of cryptographic and filesystem state
// for one open container: the backing device, the decoded header, the
// data-area XTS context (itself holding the master key halves), the
// sector device, and the FAT32 driver over it. Each MountedVolume is
// independent — mounting two different devices never shares mutable
// state between them (spec §4.10).
type MountedVolume struct {
	mu    sync.Mutex
	state state

	dev    Device
	header *header.VolumeHeader
	xts    *crypto.XTSContext
	sd     *sectordev.SectorDevice
	fs     *fat32.FS

	log *logger.Logger
}

// Credentials identifies everything needed to derive a header key: the
// password, an optional set of keyfiles, a PIM (0 selects the kind's
// default iteration count), and which PBKDF2 schedule the volume uses.
type Credentials = header.Credentials

// Open mounts an existing container at path: it opens the backing file,
// runs the header open flow (trying the primary record, then the backup
// record per spec §4.6/§6), builds the sector device over the resulting
// data area, and parses the boot sector to mount the FAT32 driver. A
// wrong password or corrupted header surfaces as verr.AuthFailure or
// verr.Corrupt and leaves no open file descriptor behind.
func Open(path string, creds Credentials) (*MountedVolume, error) {
	return OpenWithLogger(path, creds, nil)
}

// OpenWithLogger is Open with a logger attached for mount/unmount and
// authentication-failure diagnostics (spec §4.13). A nil logger behaves
// exactly like Open.
func OpenWithLogger(path string, creds Credentials, log *logger.Logger) (*MountedVolume, error) {
	dev, err := blockdev.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return mount(dev, creds, false, 0, "", log)
}

// OpenDevice mounts an already-open Device, taking ownership of it: Close
// will close dev. This is the entry point tests and the mmap/in-memory
// backends use instead of Open, which always goes through the filesystem.
func OpenDevice(dev Device, creds Credentials) (*MountedVolume, error) {
	return mount(dev, creds, false, 0, "", nil)
}

func mount(dev Device, creds Credentials, create bool, totalSize int64, volumeLabel string, log *logger.Logger) (*MountedVolume, error) {
	v := &MountedVolume{state: stateMounting, dev: dev, log: log}

	h, xts, err := openOrCreateHeader(dev, creds, create, totalSize)
	if err != nil {
		if log != nil {
			log.Warnf("volume: authentication failed, not mounting: %v", err)
		}
		dev.Close()
		v.state = stateUnmounted
		return nil, err
	}

	sd := sectordev.New(dev, xts, int64(h.DataAreaOffset), int64(h.DataAreaSize))

	var fs *fat32.FS
	if create {
		totalSectors := uint32(h.DataAreaSize / crypto.SectorSize)
		fs, err = fat32.Format(sd, totalSectors, volumeLabel)
	} else {
		var bootRaw []byte
		bootRaw, err = sd.ReadSectors(0, 1)
		if err == nil {
			var bs *fat32.BootSector
			bs, err = fat32.ParseBootSector(bootRaw)
			if err == nil {
				fs = fat32.New(sd, bs)
			}
		}
	}
	if err != nil {
		zeroHeader(h)
		dev.Close()
		v.state = stateUnmounted
		return nil, err
	}

	if log != nil {
		fs.SetLogger(log)
		log.Infof("volume: mounted")
	}

	v.header, v.xts, v.sd, v.fs = h, xts, sd, fs
	v.state = stateMounted
	return v, nil
}

func openOrCreateHeader(dev Device, creds Credentials, create bool, totalSize int64) (*header.VolumeHeader, *crypto.XTSContext, error) {
	if create {
		return header.Create(dev, totalSize, creds, time.Now())
	}
	return header.Open(dev, dev.Size(), creds)
}

// Create initializes a brand-new container at path: it allocates a file
// of totalSize bytes, writes a fresh header (primary and backup copies),
// and formats the data area with an empty FAT32 filesystem.
func Create(path string, totalSize int64, creds Credentials, volumeLabel string) (*MountedVolume, error) {
	return CreateWithLogger(path, totalSize, creds, volumeLabel, nil)
}

// CreateWithLogger is Create with a logger attached; see OpenWithLogger.
func CreateWithLogger(path string, totalSize int64, creds Credentials, volumeLabel string, log *logger.Logger) (*MountedVolume, error) {
	dev, err := blockdev.CreateFile(path, totalSize)
	if err != nil {
		return nil, err
	}
	return mount(dev, creds, true, totalSize, volumeLabel, log)
}

// CreateDevice is Create's Device-taking counterpart, used by tests
// against an in-memory backing store.
func CreateDevice(dev Device, totalSize int64, creds Credentials, volumeLabel string) (*MountedVolume, error) {
	return mount(dev, creds, true, totalSize, volumeLabel, nil)
}

func (v *MountedVolume) ready() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != stateMounted {
		return verr.New(verr.InvalidArgument, "volume is not mounted")
	}
	return nil
}

// Close unmounts the volume: the master key and the header's key-derived
// bytes are overwritten with zero before the backing device is closed
// (spec §4.10). Close is idempotent; calling it twice is a no-op.
func (v *MountedVolume) Close() error {
	v.mu.Lock()
	if v.state != stateMounted {
		v.mu.Unlock()
		return nil
	}
	v.state = stateUnmounting
	h := v.header
	v.mu.Unlock()

	zeroHeader(h)

	err := v.dev.Close()

	v.mu.Lock()
	v.state = stateUnmounted
	v.mu.Unlock()

	if v.log != nil {
		v.log.Infof("volume: unmounted")
	}
	return err
}

// zeroHeader overwrites the in-memory master key with zeroes. It is safe
// to call on a header that has already been zeroed or is nil.
func zeroHeader(h *header.VolumeHeader) {
	if h == nil {
		return
	}
	for i := range h.MasterKeyData {
		h.MasterKeyData[i] = 0
	}
}

// List returns the directory entries at path.
func (v *MountedVolume) List(path string) ([]fat32.FileEntry, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	return v.fs.ListDir(path)
}

// Stat returns the entry for path.
func (v *MountedVolume) Stat(path string) (fat32.FileEntry, error) {
	if err := v.ready(); err != nil {
		return fat32.FileEntry{}, err
	}
	return v.fs.Stat(path)
}

// Exists reports whether path resolves to an entry.
func (v *MountedVolume) Exists(path string) (bool, error) {
	if err := v.ready(); err != nil {
		return false, err
	}
	_, err := v.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if verr.Is(err, verr.NotFound) {
		return false, nil
	}
	return false, err
}

// Read returns the full content of the file at path.
func (v *MountedVolume) Read(path string) ([]byte, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	return v.fs.ReadFile(path)
}

// ReadRange returns length bytes of the file at path starting at offset.
func (v *MountedVolume) ReadRange(path string, offset, length int64) ([]byte, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	return v.fs.ReadRange(path, offset, length)
}

// Stream copies the file at path into sink without buffering it whole in
// memory; a sink that stops accepting writes ends the stream cleanly
// rather than surfacing an error (spec §9).
func (v *MountedVolume) Stream(path string, sink io.Writer) error {
	if err := v.ready(); err != nil {
		return err
	}
	return v.fs.StreamRead(path, sink)
}

// Write creates or overwrites the file at path with content.
func (v *MountedVolume) Write(path string, content []byte) error {
	if err := v.ready(); err != nil {
		return err
	}
	return v.fs.WriteFile(path, content)
}

// WriteStreaming creates or overwrites the file at path by copying size
// bytes from source, without buffering the whole file in memory.
func (v *MountedVolume) WriteStreaming(path string, source io.Reader, size int64) error {
	if err := v.ready(); err != nil {
		return err
	}
	return v.fs.StreamWriteFile(path, source, size)
}

// Mkdir creates a directory at path.
func (v *MountedVolume) Mkdir(path string) error {
	if err := v.ready(); err != nil {
		return err
	}
	return v.fs.Mkdir(path)
}

// Remove deletes the file or directory (recursively) at path.
func (v *MountedVolume) Remove(path string) error {
	if err := v.ready(); err != nil {
		return err
	}
	return v.fs.Remove(path)
}

// FS returns the underlying FAT32 driver for callers, such as the fsck
// command, that need lower-level access than the path-oriented methods
// above provide.
func (v *MountedVolume) FS() (*fat32.FS, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	return v.fs, nil
}

// FreeSpace returns an estimate of unused bytes in the data area.
func (v *MountedVolume) FreeSpace() (uint64, error) {
	if err := v.ready(); err != nil {
		return 0, err
	}
	return v.fs.FreeSpaceEstimate()
}

// TotalSpace returns the data area's total byte size.
func (v *MountedVolume) TotalSpace() (uint64, error) {
	if err := v.ready(); err != nil {
		return 0, err
	}
	return v.header.DataAreaSize, nil
}
