package blockdev

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryDeviceReadWriteRoundTrip(t *testing.T) {
	dev := NewMemoryDevice(4096)

	payload := []byte("hello, encrypted world")
	n, err := dev.WriteAt(payload, 100)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	out := make([]byte, len(payload))
	n, err = dev.ReadAt(out, 100)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

func TestMemoryDeviceRejectsOutOfBounds(t *testing.T) {
	dev := NewMemoryDevice(512)

	_, err := dev.ReadAt(make([]byte, 16), 500)
	require.Error(t, err)

	_, err = dev.WriteAt(make([]byte, 16), -1)
	require.Error(t, err)
}

func TestFileDeviceCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "container.img")

	dev, err := CreateFile(path, 8192)
	require.NoError(t, err)
	require.Equal(t, int64(8192), dev.Size())

	payload := []byte("container bytes")
	_, err = dev.WriteAt(payload, 10)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, int64(8192), reopened.Size())

	out := make([]byte, len(payload))
	_, err = reopened.ReadAt(out, 10)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestMmapDeviceIsReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "container.img")
	dev, err := CreateFile(path, 4096)
	require.NoError(t, err)
	_, err = dev.WriteAt([]byte("data"), 0)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	mapped, err := OpenMmap(path)
	require.NoError(t, err)
	defer mapped.Close()

	out := make([]byte, 4)
	_, err = mapped.ReadAt(out, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("data"), out)

	_, err = mapped.WriteAt([]byte("xxxx"), 0)
	require.Error(t, err)
}
