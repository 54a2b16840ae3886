package bundle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/rpcpool/frostbite-dump/internal/cas"
	"github.com/rpcpool/frostbite-dump/internal/dbo"
	"github.com/rpcpool/frostbite-dump/internal/zlibframe"
)

// delta describes one record of a patched non-CAS bundle's splice list:
// copy size bytes from either the patched stream (typ 0), the unpatched
// base stream (typ 1), or common.dat (typ -1) at the given offset.
type delta struct {
	size   uint32
	typ    int32
	offset uint64
}

// WalkCasBundle iterates a CAS-mode TOC's bundle entries, reading each
// bundle at its declared offset inside sb and dispatching its ebx, dbx,
// res, and chunks lists in that fixed order. onEbxWritten, if non-nil, is
// called with the output path of every ebx file actually written (not
// ones skipped because they already existed), letting a caller register
// the file's GUID without this package depending on the GUID table type.
func WalkCasBundle(sb io.ReadSeeker, toc *dbo.Object, cat *cas.Catalog, out Writer, onEbxWritten func(relPath string)) error {
	for _, tocEntry := range toc.GetList("bundles") {
		if tocEntry.Kind != dbo.KindObject {
			continue
		}
		offset, ok := intField(tocEntry.Object, "offset")
		if !ok {
			return fmt.Errorf("bundle: toc bundle entry missing offset")
		}
		if _, err := sb.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("bundle: seek to bundle offset %d: %w", offset, err)
		}
		bundle, err := dbo.DecodeObject(bufio.NewReader(sb))
		if err != nil {
			return fmt.Errorf("bundle: decode bundle at offset %d: %w", offset, err)
		}
		if err := walkCasBundleEntries(bundle, cat, out, onEbxWritten); err != nil {
			return err
		}
	}
	return nil
}

func walkCasBundleEntries(bundle *dbo.Object, cat *cas.Catalog, out Writer, onEbxWritten func(relPath string)) error {
	for _, entry := range bundle.GetList("ebx") {
		relPath, wrote, err := writeCasNamedTracked(entry.Object, cat, out, "bundles/ebx", ".ebx")
		if err != nil {
			return fmt.Errorf("bundle: ebx entry: %w", err)
		}
		if wrote && onEbxWritten != nil {
			onEbxWritten(relPath)
		}
	}
	for _, entry := range bundle.GetList("dbx") {
		if err := writeDbxEntry(entry.Object, out); err != nil {
			return fmt.Errorf("bundle: dbx entry: %w", err)
		}
	}
	for _, entry := range bundle.GetList("res") {
		resType, _ := intField(entry.Object, "resType")
		ext := ResTypeExtension(uint32(resType))
		if err := writeCasNamed(entry.Object, cat, out, "bundles/res", ext); err != nil {
			return fmt.Errorf("bundle: res entry: %w", err)
		}
	}
	for _, entry := range bundle.GetList("chunks") {
		if err := writeCasChunk(entry.Object, cat, out, "bundles/chunks"); err != nil {
			return fmt.Errorf("bundle: chunk entry: %w", err)
		}
	}
	return nil
}

func writeCasNamed(entry *dbo.Object, cat *cas.Catalog, out Writer, dir, ext string) error {
	_, _, err := writeCasNamedTracked(entry, cat, out, dir, ext)
	return err
}

func writeCasNamedTracked(entry *dbo.Object, cat *cas.Catalog, out Writer, dir, ext string) (string, bool, error) {
	name, err := entryName(entry)
	if err != nil {
		return "", false, err
	}
	relPath := path.Join(dir, name+ext)
	wrote, err := writeIfAbsent(out, relPath, func(w io.Writer) error {
		payload, err := casEntryPayload(entry, cat)
		if err != nil {
			return err
		}
		_, err = w.Write(payload)
		return err
	})
	return relPath, wrote, err
}

// writeDbxEntry mirrors dumper.py's observation that DBX entries only
// ever appear with inline idata (they're deprecated, never shipped via
// the catalog) — no catalog fallback is attempted.
func writeDbxEntry(entry *dbo.Object, out Writer) error {
	idata, ok := entry.Get("idata")
	if !ok || idata.Kind != dbo.KindBytes {
		return nil
	}
	name, err := entryName(entry)
	if err != nil {
		return err
	}
	relPath := path.Join("bundles/dbx", name+".dbx")
	_, err = writeIfAbsent(out, relPath, func(w io.Writer) error {
		size, _ := intField(entry, "size")
		originalSize, _ := intField(entry, "originalSize")
		payload := idata.Bytes
		if size != originalSize {
			decoded, err := zlibframe.DecodeBytes(payload)
			if err != nil {
				return err
			}
			payload = decoded
		}
		_, err := w.Write(payload)
		return err
	})
	return err
}

func writeCasChunk(entry *dbo.Object, cat *cas.Catalog, out Writer, dir string) error {
	id, err := guidField(entry, "id")
	if err != nil {
		return err
	}
	relPath := path.Join(dir, id.Format()+".chunk")
	_, err = writeIfAbsent(out, relPath, func(w io.Writer) error {
		payload, err := casChunkPayload(entry, cat)
		if err != nil {
			return err
		}
		_, err = w.Write(payload)
		return err
	})
	return err
}

// WalkCasTocChunks writes the TOC-level chunks list (as opposed to the
// chunks nested inside each bundle), CAS mode.
func WalkCasTocChunks(toc *dbo.Object, cat *cas.Catalog, out Writer) error {
	for _, entry := range toc.GetList("chunks") {
		if entry.Kind != dbo.KindObject {
			continue
		}
		if err := writeCasChunk(entry.Object, cat, out, "chunks"); err != nil {
			return fmt.Errorf("bundle: toc chunk entry: %w", err)
		}
	}
	return nil
}

// WalkNonCasBundle iterates a non-CAS TOC's bundle entries. base-only
// entries (a patched bundle reduced to nothing new) are skipped; delta
// entries are reconstructed by splicing patched, base, and common.dat
// bytes before being parsed as a plain bundle stream.
func WalkNonCasBundle(sb io.ReadSeeker, toc *dbo.Object, baseSb io.ReadSeeker, commonDat io.ReaderAt, out Writer, onEbxWritten func(relPath string)) error {
	for _, tocEntry := range toc.GetList("bundles") {
		if tocEntry.Kind != dbo.KindObject {
			continue
		}
		if tocEntry.Object.GetBool("base") {
			continue // patched bundle with nothing new; the unpatched TOC, walked after this one, supplies it
		}

		offset, ok := intField(tocEntry.Object, "offset")
		if !ok {
			return fmt.Errorf("bundle: non-cas toc bundle entry missing offset")
		}
		if _, err := sb.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("bundle: seek to bundle offset %d: %w", offset, err)
		}

		var bundleStream io.ReadSeeker = sb
		if tocEntry.Object.GetBool("delta") {
			reconstructed, err := reconstructDelta(sb, baseSb, commonDat)
			if err != nil {
				return fmt.Errorf("bundle: reconstruct delta at offset %d: %w", offset, err)
			}
			bundleStream = bytes.NewReader(reconstructed)
		}

		bundle, err := decodeNonCasBundle(bundleStream)
		if err != nil {
			return fmt.Errorf("bundle: decode non-cas bundle: %w", err)
		}
		if err := walkNonCasBundleEntries(bundleStream, bundle, out, onEbxWritten); err != nil {
			return err
		}
	}
	return nil
}

// decodeNonCasBundle reads a non-CAS bundle header: the same tagged
// object tree as a CAS bundle, naming ebx/res/chunks entries by
// (offset, size) pairs into the bundle stream rather than by sha1.
func decodeNonCasBundle(r io.ReadSeeker) (*dbo.Object, error) {
	return dbo.DecodeObject(bufio.NewReader(r))
}

func walkNonCasBundleEntries(sb io.ReadSeeker, bundle *dbo.Object, out Writer, onEbxWritten func(relPath string)) error {
	for _, entry := range bundle.GetList("ebx") {
		relPath, wrote, err := writeNonCasNamedTracked(sb, entry.Object, out, "bundles/ebx", ".ebx")
		if err != nil {
			return fmt.Errorf("bundle: ebx entry: %w", err)
		}
		if wrote && onEbxWritten != nil {
			onEbxWritten(relPath)
		}
	}
	for _, entry := range bundle.GetList("res") {
		resType, _ := intField(entry.Object, "resType")
		ext := ResTypeExtension(uint32(resType))
		if err := writeNonCasNamed(sb, entry.Object, out, "bundles/res", ext); err != nil {
			return fmt.Errorf("bundle: res entry: %w", err)
		}
	}
	for _, entry := range bundle.GetList("chunks") {
		if err := writeNonCasChunk(sb, entry.Object, out, "bundles/chunks"); err != nil {
			return fmt.Errorf("bundle: chunk entry: %w", err)
		}
	}
	return nil
}

func writeNonCasNamed(sb io.ReadSeeker, entry *dbo.Object, out Writer, dir, ext string) error {
	_, _, err := writeNonCasNamedTracked(sb, entry, out, dir, ext)
	return err
}

func writeNonCasNamedTracked(sb io.ReadSeeker, entry *dbo.Object, out Writer, dir, ext string) (string, bool, error) {
	name, err := entryName(entry)
	if err != nil {
		return "", false, err
	}
	offset, _ := intField(entry, "offset")
	size, _ := intField(entry, "size")
	originalSize, _ := intField(entry, "originalSize")
	relPath := path.Join(dir, name+ext)
	wrote, err := writeIfAbsent(out, relPath, func(w io.Writer) error {
		payload, err := nonCasPayload(sb, offset, size, originalSize)
		if err != nil {
			return err
		}
		_, err = w.Write(payload)
		return err
	})
	return relPath, wrote, err
}

func writeNonCasChunk(sb io.ReadSeeker, entry *dbo.Object, out Writer, dir string) error {
	id, err := guidField(entry, "id")
	if err != nil {
		return err
	}
	offset, _ := intField(entry, "offset")
	size, _ := intField(entry, "size")
	relPath := path.Join(dir, id.Format()+".chunk")
	_, err = writeIfAbsent(out, relPath, func(w io.Writer) error {
		if _, err := sb.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		if id.IsChunkCompressed() {
			payload, err := zlibframe.Decode(sb, size)
			if err != nil {
				return err
			}
			_, err = w.Write(payload)
			return err
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(sb, buf); err != nil {
			return err
		}
		_, err = w.Write(buf)
		return err
	})
	return err
}

// WalkNonCasTocChunks writes the TOC-level chunks list, non-CAS mode:
// entries are named by (offset, size) directly into sb.
func WalkNonCasTocChunks(toc *dbo.Object, sb io.ReadSeeker, out Writer) error {
	for _, entry := range toc.GetList("chunks") {
		if entry.Kind != dbo.KindObject {
			continue
		}
		if err := writeNonCasChunk(sb, entry.Object, out, "chunks"); err != nil {
			return fmt.Errorf("bundle: toc chunk entry: %w", err)
		}
	}
	return nil
}

// reconstructDelta applies a patched non-CAS bundle's delta record list
// against the unpatched base stream and common.dat, synthesizing a new
// in-memory bundle byte stream that reads exactly like an unpatched one.
func reconstructDelta(patched, base io.ReadSeeker, commonDat io.ReaderAt) ([]byte, error) {
	deltaSize, err := readUint32BE(patched)
	if err != nil {
		return nil, fmt.Errorf("read delta header size: %w", err)
	}
	if _, err := readUint32BE(patched); err != nil { // magic, unused
		return nil, fmt.Errorf("read delta header magic: %w", err)
	}
	if _, err := readUint64BE(patched); err != nil { // padding
		return nil, fmt.Errorf("read delta header padding: %w", err)
	}

	numDeltas := deltaSize / 16
	deltas := make([]delta, 0, numDeltas)
	for i := uint32(0); i < numDeltas; i++ {
		size, err := readUint32BE(patched)
		if err != nil {
			return nil, fmt.Errorf("read delta record %d size: %w", i, err)
		}
		typ, err := readInt32BE(patched)
		if err != nil {
			return nil, fmt.Errorf("read delta record %d type: %w", i, err)
		}
		offset, err := readUint64BE(patched)
		if err != nil {
			return nil, fmt.Errorf("read delta record %d offset: %w", i, err)
		}
		deltas = append(deltas, delta{size: size, typ: typ, offset: offset})
	}

	var out bytes.Buffer
	for i, d := range deltas {
		switch d.typ {
		case 1:
			if _, err := base.Seek(int64(d.offset), io.SeekStart); err != nil {
				return nil, fmt.Errorf("delta record %d: seek base: %w", i, err)
			}
			if _, err := io.CopyN(&out, base, int64(d.size)); err != nil {
				return nil, fmt.Errorf("delta record %d: read base: %w", i, err)
			}
		case 0:
			if _, err := io.CopyN(&out, patched, int64(d.size)); err != nil {
				return nil, fmt.Errorf("delta record %d: read patched: %w", i, err)
			}
		case -1:
			if commonDat == nil {
				return nil, fmt.Errorf("delta record %d: type -1 requires common.dat, none present", i)
			}
			buf := make([]byte, d.size)
			if _, err := commonDat.ReadAt(buf, int64(d.offset)); err != nil {
				return nil, fmt.Errorf("delta record %d: read common.dat: %w", i, err)
			}
			out.Write(buf)
		default:
			return nil, fmt.Errorf("delta record %d: unknown type %d", i, d.typ)
		}
	}
	return out.Bytes(), nil
}
