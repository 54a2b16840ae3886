// Package bundle walks a superbundle's TOC-described entries (CAS and
// non-CAS modes) and writes their payloads to an output tree,
// dispatching content-addressed lookups through internal/cas and
// chunked-zlib decompression through internal/zlibframe.
package bundle

import (
	"encoding/binary"
	"fmt"
	"io"

	"os"

	"github.com/rpcpool/frostbite-dump/internal/cas"
	"github.com/rpcpool/frostbite-dump/internal/dbo"
	"github.com/rpcpool/frostbite-dump/internal/ebx"
	"github.com/rpcpool/frostbite-dump/internal/readahead"
	"github.com/rpcpool/frostbite-dump/internal/zlibframe"
)

// Writer abstracts "does the target path already exist, and if not,
// open it for writing with directories created on demand" — the
// de-duplication and lazy directory creation every payload write needs.
type Writer interface {
	Exists(relPath string) bool
	Create(relPath string) (io.WriteCloser, error)
}

// resTypeExtensions maps a RES entry's resType to a conventional output
// extension, lifted from dumper.py's resTypes table.
var resTypeExtensions = map[uint32]string{
	0x5C4954A6: ".itexture",
	0x2D47A5FF: ".gfx",
	0x22FE8AC8: "",
	0x6BB6D7D2: ".streamingstub",
	0x1CA38E06: "",
	0x15E1F32E: "",
	0x4864737B: ".hkdestruction",
	0x91043F65: ".hknondestruction",
	0x51A3C853: ".ant",
	0xD070EED1: ".animtrackdata",
	0x319D8CD0: ".ragdoll",
	0x49B156D4: ".mesh",
	0x30B4A553: ".occludermesh",
	0x5BDFDEFE: ".lightingsystem",
	0x70C5CB3E: ".enlighten",
	0xE156AF73: ".probeset",
	0x7AEFC446: ".staticenlighten",
	0x59CEEB57: ".shaderdatabase",
	0x36F3F2C0: ".shaderdb",
	0x10F0E5A1: ".shaderprogramdb",
	0xC6DBEE07: ".mohwspecific",
}

// ResTypeExtension returns the cosmetic output suffix conventionally
// used for a RES entry's resType, defaulting to ".res" for unrecognized
// types. It never changes extraction semantics, only the file name.
func ResTypeExtension(resType uint32) string {
	if ext, ok := resTypeExtensions[resType]; ok {
		return ext
	}
	return ".res"
}

func writeIfAbsent(out Writer, relPath string, write func(io.Writer) error) (bool, error) {
	if out.Exists(relPath) {
		return false, nil
	}
	w, err := out.Create(relPath)
	if err != nil {
		return false, fmt.Errorf("bundle: create %s: %w", relPath, err)
	}
	defer w.Close()
	if err := write(w); err != nil {
		return false, fmt.Errorf("bundle: write %s: %w", relPath, err)
	}
	return true, nil
}

func casEntrySha1(entry *dbo.Object) ([20]byte, error) {
	var sha1 [20]byte
	v, ok := entry.Get("sha1")
	if !ok || v.Kind != dbo.KindBytes || len(v.Bytes) != 20 {
		return sha1, fmt.Errorf("entry missing 20-byte sha1")
	}
	copy(sha1[:], v.Bytes)
	return sha1, nil
}

func intField(entry *dbo.Object, key string) (int64, bool) {
	v, ok := entry.Get(key)
	if !ok {
		return 0, false
	}
	switch v.Kind {
	case dbo.KindInt:
		return v.Int, true
	case dbo.KindUint:
		return int64(v.Uint), true
	default:
		return 0, false
	}
}

// casEntryPayload resolves a CAS-mode ebx/dbx/res entry's payload: an
// inline idata blob if present, otherwise a catalog lookup into a
// cas_NN.cas file. size != originalSize is the compression heuristic
// dumper.py uses ("I cannot tell for certain if this is correct").
func casEntryPayload(entry *dbo.Object, cat *cas.Catalog) ([]byte, error) {
	size, _ := intField(entry, "size")
	originalSize, _ := intField(entry, "originalSize")
	compressed := size != originalSize

	if idata, ok := entry.Get("idata"); ok && idata.Kind == dbo.KindBytes {
		if compressed {
			return zlibframe.DecodeBytes(idata.Bytes)
		}
		return idata.Bytes, nil
	}

	sha1, err := casEntrySha1(entry)
	if err != nil {
		return nil, err
	}
	catEntry, ok := cat.Lookup(sha1)
	if !ok {
		return nil, fmt.Errorf("sha1 %x not found in catalog", sha1)
	}
	return readFromCas(catEntry, compressed)
}

// casChunkPayload resolves a CAS-mode chunk entry's payload; chunk
// compression is signaled by the least-significant bit of the chunk GUID rather than
// a size mismatch.
func casChunkPayload(entry *dbo.Object, cat *cas.Catalog) ([]byte, error) {
	idVal, ok := entry.Get("id")
	if !ok || idVal.Kind != dbo.KindGUID {
		return nil, fmt.Errorf("chunk entry missing id guid")
	}
	sha1, err := casEntrySha1(entry)
	if err != nil {
		return nil, err
	}
	catEntry, ok := cat.Lookup(sha1)
	if !ok {
		return nil, fmt.Errorf("sha1 %x not found in catalog", sha1)
	}
	return readFromCas(catEntry, idVal.GUID.IsChunkCompressed())
}

func readFromCas(entry cas.Entry, compressed bool) ([]byte, error) {
	f, err := os.Open(entry.CasPath)
	if err != nil {
		return nil, fmt.Errorf("open cas file %s: %w", entry.CasPath, err)
	}
	defer f.Close()
	if _, err := f.Seek(int64(entry.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek cas file %s: %w", entry.CasPath, err)
	}

	cached, err := readahead.NewCachingReaderFromReader(f, readahead.DefaultChunkSize)
	if err != nil {
		return nil, fmt.Errorf("wrap cas file %s: %w", entry.CasPath, err)
	}
	defer cached.Close()

	if compressed {
		return zlibframe.Decode(cached, int64(entry.Size))
	}
	buf := make([]byte, entry.Size)
	if _, err := io.ReadFull(cached, buf); err != nil {
		return nil, fmt.Errorf("read cas file %s: %w", entry.CasPath, err)
	}
	return buf, nil
}

// nonCasPayload reads an ebx/res entry's payload directly out of the
// bundle stream at (offset, size), decompressing when size != original.
func nonCasPayload(sb io.ReadSeeker, offset, size, originalSize int64) ([]byte, error) {
	if _, err := sb.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek bundle stream: %w", err)
	}
	if size != originalSize {
		return zlibframe.Decode(sb, size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(sb, buf); err != nil {
		return nil, fmt.Errorf("read bundle stream: %w", err)
	}
	return buf, nil
}

// entryName returns an entry's "name" string field, used for ebx/dbx/res
// output file names.
func entryName(entry *dbo.Object) (string, error) {
	v, ok := entry.Get("name")
	if !ok || v.Kind != dbo.KindString {
		return "", fmt.Errorf("entry missing name")
	}
	return v.Str, nil
}

func guidField(entry *dbo.Object, key string) (ebx.Guid, error) {
	v, ok := entry.Get(key)
	if !ok || v.Kind != dbo.KindGUID {
		return ebx.Guid{}, fmt.Errorf("entry missing %s guid", key)
	}
	return v.GUID, nil
}

// readUint32BE is a small helper for the delta header / record fields,
// which are fixed-width big-endian regardless of the surrounding DBO
// tag encoding (they are read directly off the raw bundle stream, not
// through the tagged object decoder).
func readUint32BE(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readInt32BE(r io.Reader) (int32, error) {
	u, err := readUint32BE(r)
	return int32(u), err
}

func readUint64BE(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
