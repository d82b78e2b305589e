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

import "hash/crc32"

// table is the standard IEEE/ITU CRC32 table (polynomial 0xEDB88320), used
// both for header integrity and for keyfile pool mixing. crc32.IEEETable is
// built with the same reflected polynomial; we keep a local name so the
// two very different consumers below (header CRC vs. raw running state for
// keyfile mixing) read as deliberate choices rather than stdlib trivia.
var table = crc32.IEEETable

// HeaderCRC32 computes the CRC32 used for header and key-area integrity:
// initial value 0xFFFFFFFF, final XOR 0xFFFFFFFF (i.e. the conventional
// CRC-32 checksum stdlib's crc32.ChecksumIEEE already produces).
func HeaderCRC32(data []byte) uint32 {
	return crc32.Checksum(data, table)
}

// KeyfilePoolCRC is the rolling CRC32 state used while mixing keyfile bytes
// into the password pool (spec §4.3). VeraCrypt consumes the *raw* LFSR
// register after every byte, with no final XOR applied — stdlib's
// crc32.Update always inverts its input and output to present a
// conventional checksum, so it cannot be chained to expose the bare
// register. We index the same IEEE table directly instead, matching the
// textbook byte-at-a-time CRC32 update with no pre/post inversion.
type KeyfilePoolCRC struct {
	state uint32
}

// NewKeyfilePoolCRC returns a rolling CRC32 initialised to 0xFFFFFFFF, the
// seed VeraCrypt uses per keyfile.
func NewKeyfilePoolCRC() *KeyfilePoolCRC {
	return &KeyfilePoolCRC{state: 0xFFFFFFFF}
}

// UpdateByte folds one byte into the running CRC32 state and returns the
// updated raw (non-finalised) register value.
func (c *KeyfilePoolCRC) UpdateByte(b byte) uint32 {
	c.state = table[byte(c.state)^b] ^ (c.state >> 8)
	return c.state
}

// State returns the current raw register value.
func (c *KeyfilePoolCRC) State() uint32 { return c.state }
