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

import "io"

// maxKeyfileReadBytes bounds how much of a single keyfile is folded into
// the pool; VeraCrypt reads at most 1 MiB per keyfile.
const maxKeyfileReadBytes = 1 << 20

// smallPoolSize/largePoolSize are the two possible keyfile pool sizes,
// selected by the length of the password buffer (spec §4.3).
const (
	smallPoolSize = 64
	largePoolSize = 128
)

// MixKeyfiles folds the contents of keyfiles into password, producing the
// derived buffer PBKDF2 is actually run against. With no keyfiles it
// returns password unchanged. The algorithm must be bit-identical to
// VeraCrypt's: a rolling CRC32 state per keyfile is consumed 4 bytes at a
// time (one byte of the CRC register per pool slot, MSB first), summed
// modulo 256 into a fixed-size pool, which is then added modulo 256 onto
// the password bytes.
func MixKeyfiles(password []byte, keyfiles []io.Reader) ([]byte, error) {
	if len(keyfiles) == 0 {
		return password, nil
	}

	poolSize := largePoolSize
	if len(password) <= smallPoolSize {
		poolSize = smallPoolSize
	}
	pool := make([]byte, poolSize)

	writePos := 0
	for _, kf := range keyfiles {
		crc := NewKeyfilePoolCRC()

		r := io.LimitReader(kf, maxKeyfileReadBytes)
		buf := make([]byte, 64*1024)
		for {
			n, err := r.Read(buf)
			for i := 0; i < n; i++ {
				state := crc.UpdateByte(buf[i])
				// Fold in the 4 bytes of the current CRC32 register,
				// MSB first, one pool slot at a time.
				for shift := 24; shift >= 0; shift -= 8 {
					b := byte(state >> uint(shift))
					pool[writePos] = pool[writePos] + b
					writePos = (writePos + 1) % poolSize
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			if n == 0 {
				break
			}
		}
	}

	resultLen := len(password)
	if poolSize > resultLen {
		resultLen = poolSize
	}
	result := make([]byte, resultLen)
	for i := 0; i < resultLen; i++ {
		var p, q byte
		if i < len(password) {
			p = password[i]
		}
		if i < poolSize {
			q = pool[i]
		}
		result[i] = p + q
	}
	return result, nil
}
