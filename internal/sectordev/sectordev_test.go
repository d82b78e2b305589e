package sectordev

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cryptfat/cryptfat/internal/blockdev"
	"github.com/cryptfat/cryptfat/internal/crypto"
)

func newTestDevice(t *testing.T, dataAreaSectors int) (*SectorDevice, blockdev.BlockDevice) {
	t.Helper()
	key := make([]byte, 64)
	_, err := rand.Read(key)
	require.NoError(t, err)
	xts, err := crypto.NewXTSContext(key)
	require.NoError(t, err)

	const dataAreaOffset = 128 * 1024
	dev := blockdev.NewMemoryDevice(dataAreaOffset + int64(dataAreaSectors)*crypto.SectorSize)
	return New(dev, xts, dataAreaOffset, int64(dataAreaSectors)*crypto.SectorSize), dev
}

func TestWriteThenReadSingleSectorRoundTrip(t *testing.T) {
	sd, _ := newTestDevice(t, 8)

	plaintext := make([]byte, crypto.SectorSize)
	_, err := rand.Read(plaintext)
	require.NoError(t, err)

	require.NoError(t, sd.WriteSectors(3, plaintext))

	out, err := sd.ReadSector(3)
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestWriteThenReadLargeBatchRoundTrip(t *testing.T) {
	const count = 64 // above parallelThreshold, exercises the worker-pool path
	sd, _ := newTestDevice(t, count)

	plaintext := make([]byte, count*crypto.SectorSize)
	_, err := rand.Read(plaintext)
	require.NoError(t, err)

	require.NoError(t, sd.WriteSectors(0, plaintext))

	out, err := sd.ReadSectors(0, count)
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestPlaintextIsNotStoredOnDevice(t *testing.T) {
	sd, dev := newTestDevice(t, 4)

	plaintext := bytes.Repeat([]byte{0x42}, crypto.SectorSize)
	require.NoError(t, sd.WriteSectors(0, plaintext))

	raw := make([]byte, crypto.SectorSize)
	_, err := dev.ReadAt(raw, 128*1024)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, raw)
}

func TestReadSectorsRejectsOutOfBounds(t *testing.T) {
	sd, _ := newTestDevice(t, 4)
	_, err := sd.ReadSectors(3, 4) // would read sector 6, past the 4-sector area
	require.Error(t, err)
}

func TestWriteSectorsRejectsMisalignedLength(t *testing.T) {
	sd, _ := newTestDevice(t, 4)
	err := sd.WriteSectors(0, make([]byte, 511))
	require.Error(t, err)
}
