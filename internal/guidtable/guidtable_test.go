package guidtable

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/frostbite-dump/internal/ebx"
)

func writeFakeEbx(t *testing.T, path string, g ebx.Guid) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	var buf bytes.Buffer
	buf.Write(magicLittleEndian[:])
	buf.Write(make([]byte, guidOffset-4))
	buf.Write(guidBytes(g))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func guidBytes(g ebx.Guid) []byte {
	buf := make([]byte, 16)
	buf[0], buf[1], buf[2], buf[3] = byte(g.A), byte(g.A>>8), byte(g.A>>16), byte(g.A>>24)
	buf[4], buf[5] = byte(g.B), byte(g.B>>8)
	buf[6], buf[7] = byte(g.C), byte(g.C>>8)
	for i := 0; i < 8; i++ {
		buf[8+i] = byte(g.D >> (56 - 8*i))
	}
	return buf
}

func TestFastAdd_ResolveRoundTrip(t *testing.T) {
	table, err := New(0)
	require.NoError(t, err)

	root := t.TempDir()
	path := filepath.Join(root, "weapons", "rifle.ebx")
	g := ebx.Guid{A: 1, B: 2, C: 3, D: 4}
	writeFakeEbx(t, path, g)

	require.NoError(t, table.FastAdd(path, root))

	got, ok := table.Resolve(g)
	require.True(t, ok)
	require.Equal(t, "weapons/rifle", got)
	require.Equal(t, 1, table.Len())
}

func TestFastAdd_SkipsBadMagic(t *testing.T) {
	table, err := New(0)
	require.NoError(t, err)

	root := t.TempDir()
	path := filepath.Join(root, "not-ebx.ebx")
	require.NoError(t, os.WriteFile(path, []byte("not an ebx file at all"), 0o644))

	require.NoError(t, table.FastAdd(path, root))
	require.Equal(t, 0, table.Len())
}

func TestPersist_EmptyTableIsNoop(t *testing.T) {
	table, err := New(0)
	require.NoError(t, err)

	out := t.TempDir()
	require.NoError(t, table.Persist(out))

	_, err = os.Stat(filepath.Join(out, "guidtable.index"))
	require.True(t, os.IsNotExist(err))
}

func TestResolve_MissingGuid(t *testing.T) {
	table, err := New(0)
	require.NoError(t, err)

	_, ok := table.Resolve(ebx.Guid{A: 99})
	require.False(t, ok)
}
