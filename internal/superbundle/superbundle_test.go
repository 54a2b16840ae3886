package superbundle

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_PlainBundlePassesThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.sb")
	payload := []byte("not x360, just bytes")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	tmp := NewTempFiles()
	r, err := Open(path, filepath.Join(dir, "tmp"), tmp, nil)
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.Empty(t, tmp.paths)
}

func TestOpen_X360WithoutDecompressorErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.sb")
	require.NoError(t, os.WriteFile(path, x360Magic[:], 0o644))

	tmp := NewTempFiles()
	_, err := Open(path, filepath.Join(dir, "tmp"), tmp, nil)
	require.Error(t, err)
}

func TestOpen_X360DecompressesAndTracksTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.sb")
	require.NoError(t, os.WriteFile(path, x360Magic[:], 0o644))

	decompressedPayload := []byte("decompressed superbundle contents")
	decompress := func(input, output string) error {
		return os.WriteFile(output, decompressedPayload, 0o644)
	}

	tmp := NewTempFiles()
	tmpDir := filepath.Join(dir, "tmp")
	r, err := Open(path, tmpDir, tmp, decompress)
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, decompressedPayload, got)

	require.Len(t, tmp.paths, 1)
	decPath := tmp.paths[0]
	_, statErr := os.Stat(decPath)
	require.NoError(t, statErr)

	require.NoError(t, tmp.Clear())
	_, statErr = os.Stat(decPath)
	require.True(t, os.IsNotExist(statErr))
	require.Empty(t, tmp.paths)
}

func TestOpen_X360DecompressorErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.sb")
	require.NoError(t, os.WriteFile(path, x360Magic[:], 0o644))

	decompress := func(input, output string) error {
		return os.ErrPermission
	}

	tmp := NewTempFiles()
	_, err := Open(path, filepath.Join(dir, "tmp"), tmp, decompress)
	require.Error(t, err)
	require.Empty(t, tmp.paths)
}

func TestTempFiles_ClearIsIdempotent(t *testing.T) {
	tmp := NewTempFiles()
	require.NoError(t, tmp.Clear())
	require.Empty(t, tmp.paths)
}

func TestReadSeekCloser_SeekRereadsFromNewOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.sb")
	payload := []byte("0123456789")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	tmp := NewTempFiles()
	r, err := Open(path, filepath.Join(dir, "tmp"), tmp, nil)
	require.NoError(t, err)

	seeker, ok := r.(io.Seeker)
	require.True(t, ok)
	_, err = seeker.Seek(5, io.SeekStart)
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, payload[5:], got)
}
