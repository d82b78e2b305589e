package header

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryptfat/cryptfat/internal/crypto"
	"github.com/cryptfat/cryptfat/internal/verr"
)

// memDevice is a growable in-memory Device backing test containers.
type memDevice struct {
	buf []byte
}

func newMemDevice(size int64) *memDevice {
	return &memDevice{buf: make([]byte, size)}
}

func (m *memDevice) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.buf[off:])
	return n, nil
}

func (m *memDevice) WriteAt(p []byte, off int64) (int, error) {
	n := copy(m.buf[off:], p)
	return n, nil
}

func testCreds(password string) Credentials {
	return Credentials{Password: []byte(password), PIM: 0, Kind: crypto.NonSystemVolume}
}

func TestCreateThenOpenRoundTrip(t *testing.T) {
	const totalSize = 10 * 1024 * 1024
	dev := newMemDevice(totalSize)

	created, _, err := Create(dev, totalSize, testCreds("testpassword"), time.Unix(1700000000, 0))
	require.NoError(t, err)

	opened, xts, err := Open(dev, totalSize, testCreds("testpassword"))
	require.NoError(t, err)
	require.NotNil(t, xts)

	require.Equal(t, uint64(DefaultDataAreaOffset), opened.DataAreaOffset)
	require.Equal(t, uint64(totalSize-DefaultDataAreaOffset-BackupHeaderGroupSize), opened.DataAreaSize)
	require.Equal(t, uint32(crypto.SectorSize), opened.SectorSize)
	require.Equal(t, created.MasterKey(), opened.MasterKey())
}

func TestOpenWrongPasswordFails(t *testing.T) {
	const totalSize = 2 * 1024 * 1024
	dev := newMemDevice(totalSize)

	_, _, err := Create(dev, totalSize, testCreds("correct-password"), time.Unix(1700000000, 0))
	require.NoError(t, err)

	_, _, err = Open(dev, totalSize, testCreds("wrong-password"))
	require.Error(t, err)
	require.True(t, verr.Is(err, verr.AuthFailure))
}

func TestOpenFallsBackToBackupHeaderWhenPrimaryCorrupt(t *testing.T) {
	const totalSize = 2 * 1024 * 1024
	dev := newMemDevice(totalSize)

	_, _, err := Create(dev, totalSize, testCreds("hunter2"), time.Unix(1700000000, 0))
	require.NoError(t, err)

	// Corrupt the primary record (but leave the backup intact).
	for i := 0; i < RecordSize; i++ {
		dev.buf[i] ^= 0xFF
	}

	_, _, err = Open(dev, totalSize, testCreds("hunter2"))
	require.NoError(t, err)
}

func TestKeyfileChangesEffectiveKey(t *testing.T) {
	const totalSize = 2 * 1024 * 1024
	dev := newMemDevice(totalSize)

	creds := testCreds("hunter2")
	creds.Keyfiles = []io.Reader{bytes.NewReader([]byte("my-keyfile-bytes"))}

	_, _, err := Create(dev, totalSize, creds, time.Unix(1700000000, 0))
	require.NoError(t, err)

	// Opening with the password but without the keyfile must fail: the
	// keyfile-mixed password used at creation never gets reproduced.
	_, _, err = Open(dev, totalSize, testCreds("hunter2"))
	require.Error(t, err)
	require.True(t, verr.Is(err, verr.AuthFailure))

	// Opening with the same password AND keyfile succeeds.
	reopenCreds := testCreds("hunter2")
	reopenCreds.Keyfiles = []io.Reader{bytes.NewReader([]byte("my-keyfile-bytes"))}
	_, _, err = Open(dev, totalSize, reopenCreds)
	require.NoError(t, err)
}

func TestParsePayloadRejectsBadMagic(t *testing.T) {
	payload := make([]byte, PayloadSize)
	_, err := ParsePayload(payload)
	require.Error(t, err)
	require.True(t, verr.Is(err, verr.AuthFailure))
}

func TestEncodeParsePayloadRoundTrip(t *testing.T) {
	h := &VolumeHeader{
		Version:             FormatVersion,
		MinVersion:          MinRequiredVersion,
		CreationTime:        1700000000,
		ModificationTime:    1700000001,
		DataAreaSize:        123456,
		DataAreaOffset:      DefaultDataAreaOffset,
		EncryptedAreaLength: 123456,
		Flags:               FlagNonSystemInPlace,
		SectorSize:          crypto.SectorSize,
	}
	copy(h.MasterKeyData[:], bytes.Repeat([]byte{0xAB}, masterKeyDataSize))

	payload := EncodePayload(h)
	require.Len(t, payload, PayloadSize)

	parsed, err := ParsePayload(payload)
	require.NoError(t, err)
	require.Equal(t, h.Version, parsed.Version)
	require.Equal(t, h.DataAreaSize, parsed.DataAreaSize)
	require.Equal(t, h.DataAreaOffset, parsed.DataAreaOffset)
	require.Equal(t, h.Flags, parsed.Flags)
	require.Equal(t, h.MasterKeyData, parsed.MasterKeyData)
}

func TestParsePayloadRejectsTamperedKeydata(t *testing.T) {
	h := &VolumeHeader{Version: FormatVersion, MinVersion: MinRequiredVersion, SectorSize: crypto.SectorSize}
	payload := EncodePayload(h)
	payload[offMasterKeyData] ^= 0xFF // tamper with master keydata after CRC was computed

	_, err := ParsePayload(payload)
	require.Error(t, err)
	require.True(t, verr.Is(err, verr.AuthFailure))
}
