package ebx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGuid_EndiannessSymmetry(t *testing.T) {
	little := []byte{
		0x01, 0x02, 0x03, 0x04, // A, little-endian
		0x05, 0x06, // B, little-endian
		0x07, 0x08, // C, little-endian
		0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, // D, always big-endian
	}
	big := []byte{
		0x04, 0x03, 0x02, 0x01, // A, big-endian
		0x06, 0x05, // B, big-endian
		0x08, 0x07, // C, big-endian
		0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, // D, always big-endian
	}

	gotLittle, err := ParseGuid(little, false)
	require.NoError(t, err)
	gotBig, err := ParseGuid(big, true)
	require.NoError(t, err)

	require.Equal(t, gotLittle, gotBig)
	require.Equal(t, uint32(0x04030201), gotLittle.A)
	require.Equal(t, uint16(0x0605), gotLittle.B)
	require.Equal(t, uint16(0x0807), gotLittle.C)
	require.Equal(t, uint64(0x1112131415161718), gotLittle.D)
}

func TestParseGuid_TooShort(t *testing.T) {
	_, err := ParseGuid(make([]byte, 15), false)
	require.Error(t, err)
}

func TestIsChunkCompressed(t *testing.T) {
	compressed := Guid{D: 0x0000000000000001}
	require.True(t, compressed.IsChunkCompressed())

	verbatim := Guid{D: 0x0000000000000000}
	require.False(t, verbatim.IsChunkCompressed())

	// High bit set but LSB clear: must NOT read as compressed, since the
	// flag lives in the whole GUID's least-significant bit, not D's MSB.
	highBitOnly := Guid{D: 0x8000000000000000}
	require.False(t, highBitOnly.IsChunkCompressed())

	// LSB set alongside other bits.
	lsbAmongOthers := Guid{D: 0x8000000000000003}
	require.True(t, lsbAmongOthers.IsChunkCompressed())
}

func TestIsNull(t *testing.T) {
	require.True(t, Guid{}.IsNull())
	require.False(t, Guid{A: 1}.IsNull())
	require.False(t, Guid{D: 1}.IsNull())
}

func TestFormat(t *testing.T) {
	g := Guid{A: 0xAABBCCDD, B: 0x1122, C: 0x3344, D: 0x5566778899AABBCC}
	require.Equal(t, "aabbccdd-1122-3344-5566-778899aabbcc", g.Format())
}
