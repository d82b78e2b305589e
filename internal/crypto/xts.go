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

// Package crypto implements the cryptographic primitives the container
// format depends on: CRC32 integrity, PBKDF2-HMAC-SHA512 key derivation,
// the VeraCrypt keyfile pool mixer, and the AES-XTS sector codec.
//
// The XTS codec is hand-written against crypto/aes rather than
// golang.org/x/crypto/xts: the container format requires the exact
// per-sector tweak schedule, precomputed and reused across a whole batch of
// sectors, which an opaque xts.Cipher does not expose hooks for.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// SectorSize is the fixed plaintext/ciphertext unit the codec operates on.
const SectorSize = 512

const blocksPerSector = SectorSize / aes.BlockSize // 32

// XTSContext holds the two AES keys used by AES-XTS (K1 for the data
// cipher, K2 for tweak generation) and is immutable once constructed, so a
// single instance may be shared and used concurrently from any number of
// goroutines: every call below only touches per-call local scratch.
type XTSContext struct {
	k1Enc cipher.Block
	k1Dec cipher.Block
	k2Enc cipher.Block
}

// NewXTSContext splits a 32- or 64-byte master key into K1/K2 halves and
// builds the three AES primitives XTS needs (encrypt/decrypt with K1,
// encrypt-only with K2 for tweak generation). A 64-byte key yields
// AES-256-XTS (32-byte halves); a 32-byte key yields AES-128-XTS.
func NewXTSContext(masterKey []byte) (*XTSContext, error) {
	var half int
	switch len(masterKey) {
	case 64:
		half = 32
	case 32:
		half = 16
	default:
		return nil, fmt.Errorf("xts: key length must be 32 or 64 bytes, got %d", len(masterKey))
	}

	k1, k2 := masterKey[:half], masterKey[half:2*half]

	k1Enc, err := aes.NewCipher(k1)
	if err != nil {
		return nil, fmt.Errorf("xts: K1 cipher: %w", err)
	}
	k1Dec, err := aes.NewCipher(k1)
	if err != nil {
		return nil, fmt.Errorf("xts: K1 cipher: %w", err)
	}
	k2Enc, err := aes.NewCipher(k2)
	if err != nil {
		return nil, fmt.Errorf("xts: K2 cipher: %w", err)
	}
	return &XTSContext{k1Enc: k1Enc, k1Dec: k1Dec, k2Enc: k2Enc}, nil
}

// initialTweak encrypts the little-endian sector-number block with K2 to
// produce T0 for that sector (spec §4.4 "Tweak initialisation").
func (x *XTSContext) initialTweak(sectorNum uint64, out *[aes.BlockSize]byte) {
	var block [aes.BlockSize]byte
	binary.LittleEndian.PutUint64(block[:8], sectorNum)
	x.k2Enc.Encrypt(out[:], block[:])
}

// gfDouble multiplies a 16-byte tweak by alpha in GF(2^128) with reduction
// polynomial x^128 + x^7 + x^2 + x + 1, per spec §4.4.
func gfDouble(t *[aes.BlockSize]byte) {
	lo := binary.LittleEndian.Uint64(t[0:8])
	hi := binary.LittleEndian.Uint64(t[8:16])

	var carry uint64
	if hi&(1<<63) != 0 {
		carry = 0x87
	}
	hi = (hi << 1) | (lo >> 63)
	lo = (lo << 1) ^ carry

	binary.LittleEndian.PutUint64(t[0:8], lo)
	binary.LittleEndian.PutUint64(t[8:16], hi)
}

// tweakSchedule fills sched with the 32 per-block tweaks for one sector,
// starting from T0 and repeatedly doubling in GF(2^128).
func (x *XTSContext) tweakSchedule(sectorNum uint64, sched *[blocksPerSector][aes.BlockSize]byte) {
	x.initialTweak(sectorNum, &sched[0])
	for i := 1; i < blocksPerSector; i++ {
		sched[i] = sched[i-1]
		gfDouble(&sched[i])
	}
}

func xorBlock(dst, a, b []byte) {
	_ = dst[15]
	_ = a[15]
	_ = b[15]
	for i := 0; i < aes.BlockSize; i++ {
		dst[i] = a[i] ^ b[i]
	}
}

// EncryptSector XTS-encrypts exactly one 512-byte sector in place from src
// into dst (which may alias src) using sectorNum as the tweak number.
func (x *XTSContext) EncryptSector(dst, src []byte, sectorNum uint64) error {
	return x.cryptSector(dst, src, sectorNum, true)
}

// DecryptSector is the inverse of EncryptSector.
func (x *XTSContext) DecryptSector(dst, src []byte, sectorNum uint64) error {
	return x.cryptSector(dst, src, sectorNum, false)
}

func (x *XTSContext) cryptSector(dst, src []byte, sectorNum uint64, encrypt bool) error {
	if len(src) != SectorSize || len(dst) != SectorSize {
		return fmt.Errorf("xts: sector buffers must be exactly %d bytes", SectorSize)
	}

	var sched [blocksPerSector][aes.BlockSize]byte
	x.tweakSchedule(sectorNum, &sched)

	var scratch [aes.BlockSize]byte
	for i := 0; i < blocksPerSector; i++ {
		off := i * aes.BlockSize
		block := src[off : off+aes.BlockSize]
		tweak := sched[i][:]

		xorBlock(scratch[:], block, tweak)
		if encrypt {
			x.k1Enc.Encrypt(scratch[:], scratch[:])
		} else {
			x.k1Dec.Decrypt(scratch[:], scratch[:])
		}
		xorBlock(dst[off:off+aes.BlockSize], scratch[:], tweak)
	}
	return nil
}

// EncryptSectors/DecryptSectors are the batched hot path (spec §4.4): for
// each of count consecutive sectors starting at startSector, the full
// 32-entry tweak schedule is precomputed once, the whole 512-byte sector is
// XORed against it in one sweep, AES is applied block by block, and the
// result is XORed against the schedule again. Concurrency across sectors
// within a batch is the sector device's job (it partitions ranges across a
// worker pool and calls these per-range); this method itself is safe to
// call concurrently on disjoint dst/src ranges because it allocates all its
// scratch state on the stack per call.
func (x *XTSContext) EncryptSectors(dst, src []byte, startSector uint64, count int) error {
	return x.cryptSectors(dst, src, startSector, count, true)
}

func (x *XTSContext) DecryptSectors(dst, src []byte, startSector uint64, count int) error {
	return x.cryptSectors(dst, src, startSector, count, false)
}

func (x *XTSContext) cryptSectors(dst, src []byte, startSector uint64, count int, encrypt bool) error {
	want := count * SectorSize
	if len(src) != want || len(dst) != want {
		return fmt.Errorf("xts: batch buffers must be exactly %d bytes for %d sectors", want, count)
	}

	var sched [blocksPerSector][aes.BlockSize]byte
	for s := 0; s < count; s++ {
		x.tweakSchedule(startSector+uint64(s), &sched)

		sectorOff := s * SectorSize
		sectorSrc := src[sectorOff : sectorOff+SectorSize]
		sectorDst := dst[sectorOff : sectorOff+SectorSize]

		// First XOR sweep: whiten input with the tweak schedule.
		for i := 0; i < blocksPerSector; i++ {
			off := i * aes.BlockSize
			xorBlock(sectorDst[off:off+aes.BlockSize], sectorSrc[off:off+aes.BlockSize], sched[i][:])
		}
		// Bulk block-cipher pass over the whitened sector.
		for i := 0; i < blocksPerSector; i++ {
			off := i * aes.BlockSize
			if encrypt {
				x.k1Enc.Encrypt(sectorDst[off:off+aes.BlockSize], sectorDst[off:off+aes.BlockSize])
			} else {
				x.k1Dec.Decrypt(sectorDst[off:off+aes.BlockSize], sectorDst[off:off+aes.BlockSize])
			}
		}
		// Second XOR sweep: un-whiten the output.
		for i := 0; i < blocksPerSector; i++ {
			off := i * aes.BlockSize
			xorBlock(sectorDst[off:off+aes.BlockSize], sectorDst[off:off+aes.BlockSize], sched[i][:])
		}
	}
	return nil
}

// EncryptHeaderPayload/DecryptHeaderPayload implement the header's XTS
// usage (spec §4.6 step 5): the 448-byte decrypted payload is treated as
// one contiguous run of 16-byte blocks at sector number 0, with the tweak
// advanced between consecutive blocks exactly as within a data sector —
// there is no per-512-byte-chunk tweak reset partway through the payload.
func (x *XTSContext) DecryptHeaderPayload(dst, src []byte) error {
	return x.cryptHeaderPayload(dst, src, false)
}

func (x *XTSContext) EncryptHeaderPayload(dst, src []byte) error {
	return x.cryptHeaderPayload(dst, src, true)
}

func (x *XTSContext) cryptHeaderPayload(dst, src []byte, encrypt bool) error {
	if len(src)%aes.BlockSize != 0 || len(dst) != len(src) {
		return fmt.Errorf("xts: header payload length must be a multiple of %d bytes", aes.BlockSize)
	}
	numBlocks := len(src) / aes.BlockSize

	var tweak [aes.BlockSize]byte
	x.initialTweak(0, &tweak)

	var scratch [aes.BlockSize]byte
	for i := 0; i < numBlocks; i++ {
		off := i * aes.BlockSize
		block := src[off : off+aes.BlockSize]

		xorBlock(scratch[:], block, tweak[:])
		if encrypt {
			x.k1Enc.Encrypt(scratch[:], scratch[:])
		} else {
			x.k1Dec.Decrypt(scratch[:], scratch[:])
		}
		xorBlock(dst[off:off+aes.BlockSize], scratch[:], tweak[:])

		if i < numBlocks-1 {
			gfDouble(&tweak)
		}
	}
	return nil
}
