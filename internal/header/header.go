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

// Package header parses, validates, and creates the container's 512-byte
// header record (64-byte salt + 448-byte encrypted payload) and drives the
// PBKDF2, keyfile-mixing, and AES-XTS primitives needed to authenticate it.
package header

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"time"

	"github.com/cryptfat/cryptfat/internal/crypto"
	"github.com/cryptfat/cryptfat/internal/verr"
)

const (
	// SaltSize is the random salt prefix stored ahead of the encrypted payload.
	SaltSize = 64
	// PayloadSize is the decrypted header payload length (28 AES blocks).
	PayloadSize = 448
	// RecordSize is the full on-disk header record: salt || ciphertext.
	RecordSize = SaltSize + PayloadSize

	// HeaderGroupSize is the size of one reserved 64 KiB header group; two
	// of these precede the data area.
	HeaderGroupSize = 64 * 1024
	// DefaultDataAreaOffset is where the data area starts for a normal
	// (non-hidden) volume: two header groups in.
	DefaultDataAreaOffset = 2 * HeaderGroupSize
	// BackupHeaderGroupSize mirrors the primary layout at the tail of the
	// container: a 512-byte record followed by 128KiB-512 of reserved padding.
	BackupHeaderGroupSize = DefaultDataAreaOffset

	masterKeyDataSize = 256
	masterKeySize     = 64 // AES-256 XTS: 32+32 byte halves

	offMagic               = 0
	offVersion             = 4
	offMinVersion          = 6
	offKeydataCRC32        = 8
	offCreationTime        = 12
	offModificationTime    = 20
	offHiddenVolumeSize    = 28
	offDataAreaSize        = 36
	offDataAreaOffset      = 44
	offEncryptedAreaLength = 52
	offFlags               = 60
	offSectorSize          = 64
	offHeaderCRC32         = 188
	offMasterKeyData       = 192

	headerCRCCoverage  = 188 // bytes [0..188)
	keydataCRCCoverage = 256 // bytes [192..448)
)

var magic = [4]byte{'V', 'E', 'R', 'A'}

// Flag bits within the header payload's Flags field.
const (
	FlagSystemEncrypted  uint32 = 1 << 0
	FlagNonSystemInPlace uint32 = 1 << 1
)

const (
	// FormatVersion is the version this codec writes on create.
	FormatVersion = 5
	// MinRequiredVersion is the minimum reader version this codec writes on create.
	MinRequiredVersion = 5
)

// VolumeHeader is the decoded form of the 448-byte decrypted header payload.
type VolumeHeader struct {
	Version             uint16
	MinVersion          uint16
	CreationTime        uint64
	ModificationTime    uint64
	HiddenVolumeSize    uint64
	DataAreaSize        uint64
	DataAreaOffset      uint64
	EncryptedAreaLength uint64
	Flags               uint32
	SectorSize          uint32
	MasterKeyData       [masterKeyDataSize]byte
}

// MasterKey returns the 64 bytes covering both AES-256 XTS key halves.
func (h *VolumeHeader) MasterKey() []byte {
	return h.MasterKeyData[:masterKeySize]
}

// ParsePayload decodes and validates a decrypted 448-byte header payload,
// per spec §4.6 step 6. Any magic or CRC mismatch is reported as
// verr.AuthFailure without distinguishing wrong password from corruption.
func ParsePayload(payload []byte) (*VolumeHeader, error) {
	if len(payload) != PayloadSize {
		return nil, verr.New(verr.InvalidArgument, "header payload must be %d bytes, got %d", PayloadSize, len(payload))
	}

	if !bytesEqual(payload[offMagic:offMagic+4], magic[:]) {
		return nil, verr.Sentinel(verr.AuthFailure)
	}

	wantHeaderCRC := binary.BigEndian.Uint32(payload[offHeaderCRC32 : offHeaderCRC32+4])
	headerCheck := make([]byte, headerCRCCoverage)
	copy(headerCheck, payload[:headerCRCCoverage])
	binary.BigEndian.PutUint32(headerCheck[offHeaderCRC32:offHeaderCRC32+4], 0)
	if crypto.HeaderCRC32(headerCheck) != wantHeaderCRC {
		return nil, verr.Sentinel(verr.AuthFailure)
	}

	wantKeydataCRC := binary.BigEndian.Uint32(payload[offKeydataCRC32 : offKeydataCRC32+4])
	if crypto.HeaderCRC32(payload[offMasterKeyData:offMasterKeyData+keydataCRCCoverage]) != wantKeydataCRC {
		return nil, verr.Sentinel(verr.AuthFailure)
	}

	h := &VolumeHeader{
		Version:             binary.BigEndian.Uint16(payload[offVersion : offVersion+2]),
		MinVersion:          binary.BigEndian.Uint16(payload[offMinVersion : offMinVersion+2]),
		CreationTime:        binary.BigEndian.Uint64(payload[offCreationTime : offCreationTime+8]),
		ModificationTime:    binary.BigEndian.Uint64(payload[offModificationTime : offModificationTime+8]),
		HiddenVolumeSize:    binary.BigEndian.Uint64(payload[offHiddenVolumeSize : offHiddenVolumeSize+8]),
		DataAreaSize:        binary.BigEndian.Uint64(payload[offDataAreaSize : offDataAreaSize+8]),
		DataAreaOffset:      binary.BigEndian.Uint64(payload[offDataAreaOffset : offDataAreaOffset+8]),
		EncryptedAreaLength: binary.BigEndian.Uint64(payload[offEncryptedAreaLength : offEncryptedAreaLength+8]),
		Flags:               binary.BigEndian.Uint32(payload[offFlags : offFlags+4]),
		SectorSize:          binary.BigEndian.Uint32(payload[offSectorSize : offSectorSize+4]),
	}
	copy(h.MasterKeyData[:], payload[offMasterKeyData:offMasterKeyData+masterKeyDataSize])
	return h, nil
}

// EncodePayload serialises h into a fresh 448-byte payload, computing and
// writing both CRC32s (spec §6 table).
func EncodePayload(h *VolumeHeader) []byte {
	payload := make([]byte, PayloadSize)
	copy(payload[offMagic:offMagic+4], magic[:])
	binary.BigEndian.PutUint16(payload[offVersion:offVersion+2], h.Version)
	binary.BigEndian.PutUint16(payload[offMinVersion:offMinVersion+2], h.MinVersion)
	binary.BigEndian.PutUint64(payload[offCreationTime:offCreationTime+8], h.CreationTime)
	binary.BigEndian.PutUint64(payload[offModificationTime:offModificationTime+8], h.ModificationTime)
	binary.BigEndian.PutUint64(payload[offHiddenVolumeSize:offHiddenVolumeSize+8], h.HiddenVolumeSize)
	binary.BigEndian.PutUint64(payload[offDataAreaSize:offDataAreaSize+8], h.DataAreaSize)
	binary.BigEndian.PutUint64(payload[offDataAreaOffset:offDataAreaOffset+8], h.DataAreaOffset)
	binary.BigEndian.PutUint64(payload[offEncryptedAreaLength:offEncryptedAreaLength+8], h.EncryptedAreaLength)
	binary.BigEndian.PutUint32(payload[offFlags:offFlags+4], h.Flags)
	binary.BigEndian.PutUint32(payload[offSectorSize:offSectorSize+4], h.SectorSize)
	copy(payload[offMasterKeyData:offMasterKeyData+masterKeyDataSize], h.MasterKeyData[:])

	keydataCRC := crypto.HeaderCRC32(payload[offMasterKeyData : offMasterKeyData+keydataCRCCoverage])
	binary.BigEndian.PutUint32(payload[offKeydataCRC32:offKeydataCRC32+4], keydataCRC)

	binary.BigEndian.PutUint32(payload[offHeaderCRC32:offHeaderCRC32+4], 0)
	headerCRC := crypto.HeaderCRC32(payload[:headerCRCCoverage])
	binary.BigEndian.PutUint32(payload[offHeaderCRC32:offHeaderCRC32+4], headerCRC)

	return payload
}

// Device is the minimal positioned I/O surface the header codec needs —
// satisfied by *os.File and by internal/blockdev implementations alike.
type Device interface {
	io.ReaderAt
	io.WriterAt
}

// Credentials bundles the inputs needed to derive a header key (spec §4.6
// steps 3-4).
type Credentials struct {
	Password []byte
	Keyfiles []io.Reader
	PIM      int
	Kind     crypto.VolumeKind
}

func deriveHeaderKey(salt []byte, creds Credentials) ([]byte, error) {
	mixed, err := crypto.MixKeyfiles(creds.Password, creds.Keyfiles)
	if err != nil {
		return nil, verr.Wrap(verr.IoError, err, "keyfile mixing")
	}
	iterations := crypto.Iterations(creds.PIM, creds.Kind)
	return crypto.DeriveKey(mixed, salt, iterations, crypto.HeaderKeyLength), nil
}

// OpenAt runs the open flow (spec §4.6 steps 1-6) against the 512-byte
// record at byteOffset, returning the validated header and a fresh
// XTSContext keyed by the extracted master key — ready to decrypt/encrypt
// data-area sectors, distinct from the headerKey-derived context used only
// to decrypt this payload.
func OpenAt(dev io.ReaderAt, byteOffset int64, creds Credentials) (*VolumeHeader, *crypto.XTSContext, error) {
	record := make([]byte, RecordSize)
	if _, err := dev.ReadAt(record, byteOffset); err != nil {
		return nil, nil, verr.Wrap(verr.IoError, err, "reading header record at offset %d", byteOffset)
	}

	salt := record[:SaltSize]
	encryptedPayload := record[SaltSize:RecordSize]

	headerKey, err := deriveHeaderKey(salt, creds)
	if err != nil {
		return nil, nil, err
	}

	headerXTS, err := crypto.NewXTSContext(headerKey)
	if err != nil {
		return nil, nil, verr.Wrap(verr.Corrupt, err, "building header XTS context")
	}

	payload := make([]byte, PayloadSize)
	if err := headerXTS.DecryptHeaderPayload(payload, encryptedPayload); err != nil {
		return nil, nil, verr.Wrap(verr.Corrupt, err, "decrypting header payload")
	}

	h, err := ParsePayload(payload)
	if err != nil {
		return nil, nil, err
	}

	dataXTS, err := crypto.NewXTSContext(h.MasterKey())
	if err != nil {
		return nil, nil, verr.Wrap(verr.Corrupt, err, "building data-area XTS context")
	}
	return h, dataXTS, nil
}

// Open tries the primary header record at offset 0, then falls back to the
// backup record near the end of the container on any primary failure, per
// spec §6's backup header layout. This includes a wrong password: since a
// wrong key decrypts the payload to indistinguishable garbage (ParsePayload
// reports it the same way it reports genuine corruption, as AuthFailure),
// there is no reliable signal to skip the backup attempt on — and the
// backup record shares the primary's password, so retrying costs one extra
// PBKDF2 pass but never changes the outcome for a wrong password.
func Open(dev io.ReaderAt, deviceSize int64, creds Credentials) (*VolumeHeader, *crypto.XTSContext, error) {
	h, xts, err := OpenAt(dev, 0, creds)
	if err == nil {
		return h, xts, nil
	}
	if deviceSize < BackupHeaderGroupSize {
		return nil, nil, err
	}
	backupOffset := deviceSize - BackupHeaderGroupSize
	return OpenAt(dev, backupOffset, creds)
}

// buildRecord generates a fresh random salt and master key, encodes and
// encrypts the payload, and returns the resulting 512-byte on-disk record
// alongside the decoded header and a data-area XTS context.
func buildRecord(creds Credentials, dataAreaOffset, dataAreaSize uint64, now time.Time) ([]byte, *VolumeHeader, *crypto.XTSContext, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, nil, verr.Wrap(verr.IoError, err, "generating salt")
	}

	var masterKeyData [masterKeyDataSize]byte
	if _, err := rand.Read(masterKeyData[:]); err != nil {
		return nil, nil, nil, verr.Wrap(verr.IoError, err, "generating master key")
	}

	h := &VolumeHeader{
		Version:             FormatVersion,
		MinVersion:          MinRequiredVersion,
		CreationTime:        uint64(now.Unix()),
		ModificationTime:    uint64(now.Unix()),
		DataAreaSize:        dataAreaSize,
		DataAreaOffset:      dataAreaOffset,
		EncryptedAreaLength: dataAreaSize,
		Flags:               0,
		SectorSize:          crypto.SectorSize,
		MasterKeyData:       masterKeyData,
	}
	payload := EncodePayload(h)

	headerKey, err := deriveHeaderKey(salt, creds)
	if err != nil {
		return nil, nil, nil, err
	}
	headerXTS, err := crypto.NewXTSContext(headerKey)
	if err != nil {
		return nil, nil, nil, verr.Wrap(verr.InvalidArgument, err, "building header XTS context")
	}

	ciphertext := make([]byte, PayloadSize)
	if err := headerXTS.EncryptHeaderPayload(ciphertext, payload); err != nil {
		return nil, nil, nil, verr.Wrap(verr.InvalidArgument, err, "encrypting header payload")
	}

	record := make([]byte, RecordSize)
	copy(record[:SaltSize], salt)
	copy(record[SaltSize:], ciphertext)

	dataXTS, err := crypto.NewXTSContext(h.MasterKey())
	if err != nil {
		return nil, nil, nil, verr.Wrap(verr.InvalidArgument, err, "building data-area XTS context")
	}
	return record, h, dataXTS, nil
}

// CreateAt writes a freshly generated header record at byteOffset (spec
// §4.6 "Create flow"), independent of any other header record on the
// device — used directly only when a caller needs a single standalone
// record; Create below is the normal entry point.
func CreateAt(dev io.WriterAt, byteOffset int64, creds Credentials, dataAreaOffset, dataAreaSize uint64, now time.Time) (*VolumeHeader, *crypto.XTSContext, error) {
	record, h, dataXTS, err := buildRecord(creds, dataAreaOffset, dataAreaSize, now)
	if err != nil {
		return nil, nil, err
	}
	if _, err := dev.WriteAt(record, byteOffset); err != nil {
		return nil, nil, verr.Wrap(verr.IoError, err, "writing header record at offset %d", byteOffset)
	}
	return h, dataXTS, nil
}

// Create writes the primary header record (offset 0) and an identical copy
// as the backup header (totalSize - 128KiB), per spec §6. The reserved
// padding in each 64KiB header group is left untouched: the spec explicitly
// forbids assuming it reads back as zero.
func Create(dev Device, totalSize int64, creds Credentials, now time.Time) (*VolumeHeader, *crypto.XTSContext, error) {
	dataAreaOffset := uint64(DefaultDataAreaOffset)
	if totalSize < DefaultDataAreaOffset+BackupHeaderGroupSize {
		return nil, nil, verr.New(verr.InvalidArgument, "container size %d too small for header groups", totalSize)
	}
	dataAreaSize := uint64(totalSize) - dataAreaOffset - BackupHeaderGroupSize

	record, h, dataXTS, err := buildRecord(creds, dataAreaOffset, dataAreaSize, now)
	if err != nil {
		return nil, nil, err
	}
	if _, err := dev.WriteAt(record, 0); err != nil {
		return nil, nil, verr.Wrap(verr.IoError, err, "writing primary header record")
	}
	backupOffset := totalSize - BackupHeaderGroupSize
	if _, err := dev.WriteAt(record, backupOffset); err != nil {
		return nil, nil, verr.Wrap(verr.IoError, err, "writing backup header record")
	}
	return h, dataXTS, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
