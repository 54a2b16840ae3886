package assets

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/frostbite-dump/internal/ebx"
)

func TestChunkLocator_PrimaryBeforeOverlay(t *testing.T) {
	primary := t.TempDir()
	overlay := t.TempDir()

	g, err := ebx.ParseGuid(bytes.Repeat([]byte{0x01}, 16), false)
	require.NoError(t, err)

	name := g.Format() + ".chunk"
	require.NoError(t, os.WriteFile(filepath.Join(overlay, name), []byte("overlay"), 0o644))

	locator := ChunkLocator{ChunkDir: primary, OverlayDir: overlay}
	path, ok := locator.Locate(g)
	require.True(t, ok)
	require.Equal(t, filepath.Join(overlay, name), path)

	require.NoError(t, os.WriteFile(filepath.Join(primary, name), []byte("primary"), 0o644))
	path, ok = locator.Locate(g)
	require.True(t, ok)
	require.Equal(t, filepath.Join(primary, name), path)
}

func TestChunkLocator_NullGuidNotFound(t *testing.T) {
	locator := ChunkLocator{ChunkDir: t.TempDir()}
	_, ok := locator.Locate(ebx.Guid{})
	require.False(t, ok)
}

func TestFindRes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "movie.res"), []byte("x"), 0o644))

	path, ok := FindRes(dir, "sub/movie")
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "sub", "movie.res"), path)

	_, ok = FindRes(dir, "sub/missing")
	require.False(t, ok)
}

func writeBlock(buf *bytes.Buffer, kind byte, payload []byte) {
	size := uint32(4 + len(payload))
	buf.WriteByte(kind)
	buf.WriteByte(byte(size >> 16))
	buf.WriteByte(byte(size >> 8))
	buf.WriteByte(byte(size))
	buf.Write(payload)
}

func TestExtractSPS_HeaderThenTerminator(t *testing.T) {
	var src bytes.Buffer
	writeBlock(&src, spsBlockHeader, []byte("sps-payload"))
	writeBlock(&src, spsBlockLast, nil)

	target := filepath.Join(t.TempDir(), "out.sps")
	require.NoError(t, ExtractSPS(bytes.NewReader(src.Bytes()), 0, target))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, src.Bytes(), got)
}

func TestExtractSPS_HeaderNormalThenTerminator(t *testing.T) {
	var src bytes.Buffer
	writeBlock(&src, spsBlockHeader, []byte("first"))
	writeBlock(&src, spsBlockNormal, []byte("second-chunk"))
	writeBlock(&src, spsBlockLast, nil)

	target := filepath.Join(t.TempDir(), "out.sps")
	require.NoError(t, ExtractSPS(bytes.NewReader(src.Bytes()), 0, target))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, src.Bytes(), got)
}

func TestExtractSPS_OffsetIntoLargerStream(t *testing.T) {
	var src bytes.Buffer
	src.Write([]byte("garbage-prefix"))
	offset := int64(src.Len())
	writeBlock(&src, spsBlockHeader, []byte("payload"))
	writeBlock(&src, spsBlockLast, nil)

	target := filepath.Join(t.TempDir(), "out.sps")
	require.NoError(t, ExtractSPS(bytes.NewReader(src.Bytes()), offset, target))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, src.Bytes()[offset:], got)
}

func TestExtractSPS_WrongHeaderByte(t *testing.T) {
	src := bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x04})
	err := ExtractSPS(src, 0, filepath.Join(t.TempDir(), "out.sps"))
	require.Error(t, err)
}
