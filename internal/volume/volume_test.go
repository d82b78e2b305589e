package volume

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cryptfat/cryptfat/internal/blockdev"
	"github.com/cryptfat/cryptfat/internal/verr"
)

const testVolumeSize = 4 * 1024 * 1024 // 4MiB, large enough for header + backup + a handful of clusters

func creds(password string) Credentials {
	return Credentials{Password: []byte(password)}
}

func TestCreateThenOpenRoundTrip(t *testing.T) {
	dev := blockdev.NewMemoryDevice(testVolumeSize)
	v, err := CreateDevice(dev, testVolumeSize, creds("hunter2"), "CRYPTFAT")
	require.NoError(t, err)

	require.NoError(t, v.Write("/hello.txt", []byte("hello, container")))
	total, err := v.TotalSpace()
	require.NoError(t, err)
	require.Greater(t, total, uint64(0))
	require.NoError(t, v.Close())

	v2, err := OpenDevice(dev, creds("hunter2"))
	require.NoError(t, err)
	defer v2.Close()

	out, err := v2.Read("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hello, container"), out)
}

func TestOpenWithWrongPasswordFails(t *testing.T) {
	dev := blockdev.NewMemoryDevice(testVolumeSize)
	v, err := CreateDevice(dev, testVolumeSize, creds("correct-horse"), "CRYPTFAT")
	require.NoError(t, err)
	require.NoError(t, v.Close())

	_, err = OpenDevice(dev, creds("wrong-password"))
	require.Error(t, err)
}

func TestOperationsFailAfterClose(t *testing.T) {
	dev := blockdev.NewMemoryDevice(testVolumeSize)
	v, err := CreateDevice(dev, testVolumeSize, creds("pw"), "CRYPTFAT")
	require.NoError(t, err)
	require.NoError(t, v.Close())

	_, err = v.List("/")
	require.Error(t, err)
	require.True(t, verr.Is(err, verr.InvalidArgument))
}

func TestCloseZeroesMasterKey(t *testing.T) {
	dev := blockdev.NewMemoryDevice(testVolumeSize)
	v, err := CreateDevice(dev, testVolumeSize, creds("pw"), "CRYPTFAT")
	require.NoError(t, err)

	h := v.header
	require.False(t, bytes.Equal(h.MasterKeyData[:], make([]byte, len(h.MasterKeyData))))

	require.NoError(t, v.Close())
	require.True(t, bytes.Equal(h.MasterKeyData[:], make([]byte, len(h.MasterKeyData))))
}

func TestCloseIsIdempotent(t *testing.T) {
	dev := blockdev.NewMemoryDevice(testVolumeSize)
	v, err := CreateDevice(dev, testVolumeSize, creds("pw"), "CRYPTFAT")
	require.NoError(t, err)
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
}

func TestMkdirAndListThroughVolume(t *testing.T) {
	dev := blockdev.NewMemoryDevice(testVolumeSize)
	v, err := CreateDevice(dev, testVolumeSize, creds("pw"), "CRYPTFAT")
	require.NoError(t, err)
	defer v.Close()

	require.NoError(t, v.Mkdir("/docs"))
	exists, err := v.Exists("/docs")
	require.NoError(t, err)
	require.True(t, exists)

	entries, err := v.List("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "docs", entries[0].Name)

	require.NoError(t, v.Remove("/docs"))
	exists, err = v.Exists("/docs")
	require.NoError(t, err)
	require.False(t, exists)
}
