package fat32

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cryptfat/cryptfat/internal/blockdev"
	"github.com/cryptfat/cryptfat/internal/crypto"
	"github.com/cryptfat/cryptfat/internal/sectordev"
	"github.com/cryptfat/cryptfat/internal/verr"
)

func newTestFS(t *testing.T, totalSectors uint32) *FS {
	t.Helper()
	key := make([]byte, 64)
	_, err := rand.Read(key)
	require.NoError(t, err)
	xts, err := crypto.NewXTSContext(key)
	require.NoError(t, err)

	dev := blockdev.NewMemoryDevice(int64(totalSectors) * crypto.SectorSize)
	sd := sectordev.New(dev, xts, 0, int64(totalSectors)*crypto.SectorSize)

	fs, err := Format(sd, totalSectors, "TESTVOL")
	require.NoError(t, err)
	return fs
}

func TestFormatThenMountRootIsEmpty(t *testing.T) {
	fs := newTestFS(t, 2048)
	entries, err := fs.ListDir("/")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMkdirAndListDir(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Mkdir("/sub"))

	root, err := fs.ListDir("/")
	require.NoError(t, err)
	require.Len(t, root, 1)
	require.Equal(t, "sub", root[0].Name)
	require.True(t, root[0].IsDirectory)

	children, err := fs.ListDir("/sub")
	require.NoError(t, err)
	require.Empty(t, children) // "." and ".." are filtered
}

func TestWriteFileThenReadFileRoundTrip(t *testing.T) {
	fs := newTestFS(t, 2048)
	content := bytes.Repeat([]byte("cryptfat"), 1000) // spans multiple clusters

	require.NoError(t, fs.WriteFile("/hello.txt", content))

	out, err := fs.ReadFile("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, content, out)

	info, err := fs.Stat("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, uint32(len(content)), info.Size)
	require.False(t, info.IsDirectory)
}

func TestOverwriteFileReplacesContent(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.WriteFile("/a.txt", bytes.Repeat([]byte{0xAA}, 10000)))
	require.NoError(t, fs.WriteFile("/a.txt", []byte("short")))

	out, err := fs.ReadFile("/a.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("short"), out)
}

func TestDirectoryGrowthWithManyLongNames(t *testing.T) {
	fs := newTestFS(t, 4096)
	names := make([]string, 32)
	for i := range names {
		name := fmt.Sprintf("file-%06d.txt", i)
		names[i] = name
		require.NoError(t, fs.WriteFile("/"+name, []byte(name)))
	}

	entries, err := fs.ListDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 32)

	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.Name] = true
	}
	for _, name := range names {
		require.True(t, seen[name], "missing %s in listing", name)
		out, err := fs.ReadFile("/" + name)
		require.NoError(t, err)
		require.Equal(t, name, string(out))
	}
}

func TestDotDotPointsAtZeroForRootChild(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Mkdir("/sub"))

	sub, err := fs.resolvePath("/sub")
	require.NoError(t, err)

	data, err := fs.readCluster(sub.FirstCluster)
	require.NoError(t, err)

	dotdot := decodeShortEntry(data[dirEntrySize : 2*dirEntrySize])
	require.Equal(t, "..", shortNameDisplay(dotdot.name11))
	require.Equal(t, uint32(0), dotdot.firstCluster)
}

func TestPermissiveZeroContinuesToNextCluster(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Mkdir("/sub"))
	sub, err := fs.resolvePath("/sub")
	require.NoError(t, err)

	// Append a second cluster to the directory chain and place a live
	// short entry in it, with a 0x00 byte left mid-way through the first
	// cluster (spec §9's permissive "continue to next cluster" behavior).
	newClusters, err := fs.allocate(fs.allocCursor, 1)
	require.NoError(t, err)
	require.NoError(t, fs.fat.setEntry(sub.FirstCluster, newClusters[0]))
	require.NoError(t, fs.fat.setEntry(newClusters[0], ClusterEOC))

	secondClusterData := make([]byte, fs.boot.ClusterSize)
	short := encodeShortEntry(rawShortEntry{name11: deriveShortName("LATE.TXT"), attr: AttrArchive, firstCluster: 0, size: 0})
	copy(secondClusterData[0:dirEntrySize], short)
	require.NoError(t, fs.writeCluster(newClusters[0], secondClusterData))

	fs.invalidate("/sub", "", 0)
	entries, err := fs.ListDir("/sub")
	require.NoError(t, err)

	found := false
	for _, e := range entries {
		if e.Name == "LATE.TXT" {
			found = true
		}
	}
	require.True(t, found, "entry in second cluster should be reachable past a 0x00 slot in the first")
}

func TestRemoveRecursive(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Mkdir("/dir"))
	require.NoError(t, fs.WriteFile("/dir/a.txt", []byte("a")))
	require.NoError(t, fs.WriteFile("/dir/b.txt", []byte("b")))

	require.NoError(t, fs.Remove("/dir"))

	_, err := fs.Stat("/dir")
	require.Error(t, err)
	require.True(t, verr.Is(err, verr.NotFound))

	root, err := fs.ListDir("/")
	require.NoError(t, err)
	require.Empty(t, root)
}

func TestReadRangePartial(t *testing.T) {
	fs := newTestFS(t, 2048)
	content := bytes.Repeat([]byte("0123456789"), 1000)
	require.NoError(t, fs.WriteFile("/range.bin", content))

	out, err := fs.ReadRange("/range.bin", 250, 100)
	require.NoError(t, err)
	require.Equal(t, content[250:350], out)
}

type breakingSink struct {
	wrote bool
}

func (b *breakingSink) Write(p []byte) (int, error) {
	if b.wrote {
		return 0, errors.New("pipe broken")
	}
	b.wrote = true
	return len(p), nil
}

func TestStreamReadBrokenSinkIsNotAnError(t *testing.T) {
	fs := newTestFS(t, 2048)
	content := bytes.Repeat([]byte("x"), 50000)
	require.NoError(t, fs.WriteFile("/big.bin", content))

	sink := &breakingSink{}
	err := fs.StreamRead("/big.bin", sink)
	require.NoError(t, err)
}

func TestStreamWriteFileRoundTrip(t *testing.T) {
	fs := newTestFS(t, 2048)
	content := bytes.Repeat([]byte("stream"), 2000)

	require.NoError(t, fs.StreamWriteFile("/stream.bin", bytes.NewReader(content), int64(len(content))))

	out, err := fs.ReadFile("/stream.bin")
	require.NoError(t, err)
	require.Equal(t, content, out)
}
