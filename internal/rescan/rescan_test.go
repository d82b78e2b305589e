package rescan

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cryptfat/cryptfat/internal/blockdev"
	"github.com/cryptfat/cryptfat/internal/crypto"
	"github.com/cryptfat/cryptfat/internal/fat32"
	"github.com/cryptfat/cryptfat/internal/sectordev"
)

func newTestFS(t *testing.T, totalSectors uint32) *fat32.FS {
	t.Helper()
	key := make([]byte, 64)
	_, err := rand.Read(key)
	require.NoError(t, err)
	xts, err := crypto.NewXTSContext(key)
	require.NoError(t, err)

	dev := blockdev.NewMemoryDevice(int64(totalSectors) * crypto.SectorSize)
	sd := sectordev.New(dev, xts, 0, int64(totalSectors)*crypto.SectorSize)

	fs, err := fat32.Format(sd, totalSectors, "TESTVOL")
	require.NoError(t, err)
	return fs
}

func TestRunOnCleanVolumeFindsNothing(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.Mkdir("/dir"))
	require.NoError(t, fs.WriteFile("/dir/a.txt", bytes.Repeat([]byte("x"), 10000)))
	require.NoError(t, fs.WriteFile("/b.txt", []byte("short")))

	report, err := Run(fs, Options{})
	require.NoError(t, err)
	require.Empty(t, report.LeakedChains)
	require.Empty(t, report.CrossLinkedClusters)
}

func TestRunFindsOrphanedChain(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.WriteFile("/kept.txt", []byte("kept")))

	orphan, err := fs.AllocateOrphanChain(3)
	require.NoError(t, err)

	report, err := Run(fs, Options{})
	require.NoError(t, err)
	require.NotEmpty(t, report.LeakedChains)

	chain, err := fs.ChainOf(orphan)
	require.NoError(t, err)
	require.Len(t, chain, 3)

	leakedSet := make(map[uint32]bool)
	for _, c := range report.LeakedChains {
		leakedSet[c] = true
	}
	for _, c := range chain {
		require.True(t, leakedSet[c], "cluster %d from orphan chain should be reported leaked", c)
	}
}

func TestRunWithReclaimFreesOrphanedChain(t *testing.T) {
	fs := newTestFS(t, 2048)
	require.NoError(t, fs.WriteFile("/kept.txt", []byte("kept")))

	orphan, err := fs.AllocateOrphanChain(2)
	require.NoError(t, err)

	before, err := fs.ClusterEntry(orphan)
	require.NoError(t, err)
	require.NotEqual(t, fat32.ClusterFree, before)

	report, err := Run(fs, Options{Reclaim: true})
	require.NoError(t, err)
	require.NotZero(t, report.ReclaimedClusters)

	after, err := fs.ClusterEntry(orphan)
	require.NoError(t, err)
	require.Equal(t, uint32(fat32.ClusterFree), after)

	out, err := fs.ReadFile("/kept.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), out)

	report2, err := Run(fs, Options{})
	require.NoError(t, err)
	require.Empty(t, report2.LeakedChains)
}
