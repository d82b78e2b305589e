package crypto

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderCRC32MatchesStdlib(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	require.Equal(t, crc32.ChecksumIEEE(data), HeaderCRC32(data))
}

func TestKeyfilePoolCRCDeterministic(t *testing.T) {
	data := []byte("keyfile_content_123")

	run := func() uint32 {
		c := NewKeyfilePoolCRC()
		var state uint32
		for _, b := range data {
			state = c.UpdateByte(b)
		}
		return state
	}

	require.Equal(t, run(), run())
}
