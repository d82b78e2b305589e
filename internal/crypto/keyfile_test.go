package crypto

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMixKeyfilesNoKeyfilesReturnsPasswordUnchanged(t *testing.T) {
	pw := []byte("hunter2")
	out, err := MixKeyfiles(pw, nil)
	require.NoError(t, err)
	require.Equal(t, pw, out)
}

func TestMixKeyfilesDeterministic(t *testing.T) {
	pw := []byte("")
	kfContent := []byte("keyfile_content_123")

	mix := func() []byte {
		out, err := MixKeyfiles(pw, []io.Reader{bytes.NewReader(kfContent)})
		require.NoError(t, err)
		return out
	}

	a := mix()
	b := mix()
	require.Equal(t, a, b)
	require.Len(t, a, smallPoolSize) // |P| == 0 <= 64 -> pool size 64
}

func TestMixKeyfilesUsesLargePoolForLongPassword(t *testing.T) {
	pw := bytes.Repeat([]byte{'x'}, 65)
	kfContent := []byte("abc")

	out, err := MixKeyfiles(pw, []io.Reader{bytes.NewReader(kfContent)})
	require.NoError(t, err)
	require.Len(t, out, largePoolSize) // max(len(password)=65, 128) == 128
}

func TestMixKeyfilesMultipleFilesOrderSensitive(t *testing.T) {
	pw := []byte("pw")

	mixAB, err := MixKeyfiles(pw, []io.Reader{bytes.NewReader([]byte("A")), bytes.NewReader([]byte("B"))})
	require.NoError(t, err)

	mixBA, err := MixKeyfiles(pw, []io.Reader{bytes.NewReader([]byte("B")), bytes.NewReader([]byte("A"))})
	require.NoError(t, err)

	require.NotEqual(t, mixAB, mixBA)
}
