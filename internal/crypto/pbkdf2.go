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
package crypto

import (
	"crypto/sha512"

	"golang.org/x/crypto/pbkdf2"
)

// HeaderKeyLength is the number of key bytes derived for the header key
// (covers both XTS halves for AES-256 XTS: 32+32 bytes).
const HeaderKeyLength = 64

// VolumeKind selects which PIM iteration schedule applies (spec §4.6).
type VolumeKind int

const (
	NonSystemVolume VolumeKind = iota
	SystemVolume
)

// Iterations returns the PBKDF2 iteration count for the given PIM and
// volume kind, per spec §4.2/§4.6.
func Iterations(pim int, kind VolumeKind) int {
	switch kind {
	case SystemVolume:
		if pim <= 0 {
			return 200000
		}
		return 2048 * pim
	default:
		if pim <= 0 {
			return 500000
		}
		return 15000 + 1000*pim
	}
}

// DeriveKey runs PBKDF2-HMAC-SHA512 over password/salt for the given
// iteration count, returning keyLen raw bytes (the concatenation of PRF
// blocks, truncated). password may be the keyfile-mixed buffer produced by
// MixKeyfiles and can legitimately be 64 or 128 bytes rather than a
// "normal" password string.
func DeriveKey(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha512.New)
}
