package cas

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/frostbite-dump/internal/dbo"
)

func catalogRecord(sha1 [20]byte, offset, size, casNum uint32) []byte {
	rec := make([]byte, entryRecordSize)
	copy(rec[:20], sha1[:])
	binary.LittleEndian.PutUint32(rec[20:24], offset)
	binary.LittleEndian.PutUint32(rec[24:28], size)
	binary.LittleEndian.PutUint32(rec[28:32], casNum)
	return rec
}

func writeCatalog(t *testing.T, path string, records ...[]byte) {
	t.Helper()
	plain := make([]byte, catalogHeaderSize)
	for _, r := range records {
		plain = append(plain, r...)
	}
	require.NoError(t, os.WriteFile(path, dbo.XorBytes(plain), 0o644))
}

func TestLoadCatalog_LookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	catPath := filepath.Join(dir, "cas.cat")

	var sha1 [20]byte
	sha1[0] = 0xAB
	writeCatalog(t, catPath, catalogRecord(sha1, 100, 200, 3))

	c, err := LoadCatalog(catPath)
	require.NoError(t, err)

	entry, ok := c.Lookup(sha1)
	require.True(t, ok)
	require.Equal(t, uint32(100), entry.Offset)
	require.Equal(t, uint32(200), entry.Size)
	require.Equal(t, filepath.Join(dir, "cas_03.cas"), entry.CasPath)
}

func TestLookup_Missing(t *testing.T) {
	c := &Catalog{entries: make(map[[20]byte]Entry)}
	_, ok := c.Lookup([20]byte{})
	require.False(t, ok)
}

func TestMerge_PatchedEntryOverridesBase(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "cas.cat")
	patchDir := filepath.Join(dir, "patch")
	require.NoError(t, os.MkdirAll(patchDir, 0o755))
	patchPath := filepath.Join(patchDir, "cas.cat")

	var sha1 [20]byte
	sha1[0] = 0xCD
	writeCatalog(t, basePath, catalogRecord(sha1, 1, 2, 0))
	writeCatalog(t, patchPath, catalogRecord(sha1, 999, 888, 7))

	c, err := LoadCatalog(basePath)
	require.NoError(t, err)
	require.NoError(t, c.Merge(patchPath))

	entry, ok := c.Lookup(sha1)
	require.True(t, ok)
	require.Equal(t, uint32(999), entry.Offset)
	require.Equal(t, uint32(888), entry.Size)
	require.Equal(t, filepath.Join(patchDir, "cas_07.cas"), entry.CasPath)
}

func TestLoadCatalog_TruncatedHeaderErrors(t *testing.T) {
	dir := t.TempDir()
	catPath := filepath.Join(dir, "cas.cat")
	require.NoError(t, os.WriteFile(catPath, dbo.XorBytes(make([]byte, 4)), 0o644))

	_, err := LoadCatalog(catPath)
	require.Error(t, err)
}

func TestLoadCatalog_TrailingPartialRecordErrors(t *testing.T) {
	dir := t.TempDir()
	catPath := filepath.Join(dir, "cas.cat")
	plain := make([]byte, catalogHeaderSize+entryRecordSize+5)
	require.NoError(t, os.WriteFile(catPath, dbo.XorBytes(plain), 0o644))

	_, err := LoadCatalog(catPath)
	require.Error(t, err)
}
