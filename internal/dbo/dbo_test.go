package dbo

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fieldBuilder accumulates (name, tagged-value) pairs for a single object
// and wraps them in the leading field count on finish.
type fieldBuilder struct {
	buf    bytes.Buffer
	fields int
}

func newObjectBuilder() *fieldBuilder { return &fieldBuilder{} }

func (b *fieldBuilder) writeName(name string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(name)))
	b.buf.Write(lenBuf[:])
	b.buf.WriteString(name)
}

func (b *fieldBuilder) bool(name string, v bool) *fieldBuilder {
	b.writeName(name)
	b.buf.WriteByte(tagBool)
	if v {
		b.buf.WriteByte(1)
	} else {
		b.buf.WriteByte(0)
	}
	b.fields++
	return b
}

func (b *fieldBuilder) uint32(name string, v uint32) *fieldBuilder {
	b.writeName(name)
	b.buf.WriteByte(tagUInt32)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	b.buf.Write(buf[:])
	b.fields++
	return b
}

func (b *fieldBuilder) str(name, v string) *fieldBuilder {
	b.writeName(name)
	b.buf.WriteByte(tagString)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	b.buf.Write(lenBuf[:])
	b.buf.WriteString(v)
	b.fields++
	return b
}

func (b *fieldBuilder) bytesField(name string, v []byte) *fieldBuilder {
	b.writeName(name)
	b.buf.WriteByte(tagBytes)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	b.buf.Write(lenBuf[:])
	b.buf.Write(v)
	b.fields++
	return b
}

func (b *fieldBuilder) emptyList(name string) *fieldBuilder {
	b.writeName(name)
	b.buf.WriteByte(tagList)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], 0)
	b.buf.Write(countBuf[:])
	b.fields++
	return b
}

func (b *fieldBuilder) object(name string, child *fieldBuilder) *fieldBuilder {
	b.writeName(name)
	b.buf.WriteByte(tagObject)
	b.buf.Write(child.bytes())
	b.fields++
	return b
}

func (b *fieldBuilder) listOfObjects(name string, objects ...*fieldBuilder) *fieldBuilder {
	b.writeName(name)
	b.buf.WriteByte(tagList)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(objects)))
	b.buf.Write(countBuf[:])
	for _, obj := range objects {
		b.buf.WriteByte(tagObject)
		b.buf.Write(obj.bytes())
	}
	b.fields++
	return b
}

// bytes wraps the accumulated fields in the leading field count, yielding
// the full encoding of this object (as found standalone, or nested under
// a tagObject/tagList entry in a parent).
func (b *fieldBuilder) bytes() []byte {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(b.fields))
	return append(countBuf[:], b.buf.Bytes()...)
}

func TestDecodeObject_ScalarsAndNesting(t *testing.T) {
	nested := newObjectBuilder()
	nested.bool("base", true)

	top := newObjectBuilder()
	top.
		bool("cas", true).
		uint32("offset", 1234).
		str("name", "weapons/rifle").
		bytesField("idata", []byte{0xDE, 0xAD, 0xBE, 0xEF}).
		emptyList("missing").
		object("child", nested)

	obj, err := DecodeObject(bufio.NewReader(bytes.NewReader(top.bytes())))
	require.NoError(t, err)

	require.True(t, obj.GetBool("cas"))
	v, ok := obj.Get("offset")
	require.True(t, ok)
	require.Equal(t, KindUint, v.Kind)
	require.Equal(t, uint64(1234), v.Uint)

	v, ok = obj.Get("name")
	require.True(t, ok)
	require.Equal(t, "weapons/rifle", v.Str)

	v, ok = obj.Get("idata")
	require.True(t, ok)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, v.Bytes)

	require.Empty(t, obj.GetList("missing"))
	require.Empty(t, obj.GetList("never-set"))

	v, ok = obj.Get("child")
	require.True(t, ok)
	require.Equal(t, KindObject, v.Kind)
	require.True(t, v.Object.GetBool("base"))
}

func TestDecodeObject_ListOfObjects(t *testing.T) {
	entry1 := newObjectBuilder()
	entry1.uint32("offset", 10)

	entry2 := newObjectBuilder()
	entry2.uint32("offset", 20)

	top := newObjectBuilder()
	top.listOfObjects("bundles", entry1, entry2)

	obj, err := DecodeObject(bufio.NewReader(bytes.NewReader(top.bytes())))
	require.NoError(t, err)

	list := obj.GetList("bundles")
	require.Len(t, list, 2)
	require.Equal(t, KindObject, list[0].Kind)
	v, ok := list[0].Object.Get("offset")
	require.True(t, ok)
	require.Equal(t, uint64(10), v.Uint)
	v, ok = list[1].Object.Get("offset")
	require.True(t, ok)
	require.Equal(t, uint64(20), v.Uint)
}

func TestDecodeObject_KeyOrderPreserved(t *testing.T) {
	top := newObjectBuilder()
	top.uint32("ebx", 1).uint32("dbx", 2).uint32("res", 3)

	obj, err := DecodeObject(bufio.NewReader(bytes.NewReader(top.bytes())))
	require.NoError(t, err)
	require.Equal(t, []string{"ebx", "dbx", "res"}, obj.Keys())
}

func TestUnXor_Involution(t *testing.T) {
	plain := []byte("the quick brown fox jumps over the lazy dog 0123456789")
	xored := XorBytes(plain)
	require.NotEqual(t, plain, xored)
	require.Equal(t, plain, XorBytes(xored))
}

func TestReadToc_RoundTrip(t *testing.T) {
	top := newObjectBuilder()
	top.bool("cas", true)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.toc")
	require.NoError(t, os.WriteFile(path, XorBytes(top.bytes()), 0o644))

	obj, err := ReadToc(path)
	require.NoError(t, err)
	require.True(t, obj.GetBool("cas"))
}
