// Package guidtable builds and persists the EBX file-GUID-to-path table
// used to resolve external links, in both of the modes the original
// toolchain offers: a fast on-disk magic/offset-48 scrape, and a full
// EBX parse.
package guidtable

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rpcpool/frostbite-dump/internal/compactindexsized"
	"github.com/rpcpool/frostbite-dump/internal/ebx"
)

// guidOffset is the absolute byte offset of an EBX file's own file GUID,
// used by fast-mode scraping to avoid a full parse.
const guidOffset = 48

var (
	magicLittleEndian = [4]byte{0xCE, 0xD1, 0xB2, 0x0F}
	magicBigEndian    = [4]byte{0x0F, 0xB2, 0xD1, 0xCE}
)

// Table is the live, in-memory GUID→path map built during a dump run; it
// is persisted to a compactindexsized file plus a companion path blob
// once extraction finishes.
type Table struct {
	mu    sync.RWMutex
	byGUID map[ebx.Guid]string
}

// New returns an empty Table.
func New(estimatedCount int) (*Table, error) {
	if estimatedCount < 0 {
		estimatedCount = 0
	}
	return &Table{byGUID: make(map[ebx.Guid]string, estimatedCount)}, nil
}

// FastAdd scrapes the file GUID directly out of an already-written EBX
// file at absolute offset 48, without a full parse, mirroring ebx.py's
// createGuidTableFast. path is the file on disk; ebxRoot is the bundle
// output's ebx/ directory, used to compute the table's relative path
// value. Files that aren't valid EBX (bad magic) are silently skipped.
func (t *Table) FastAdd(path, ebxRoot string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("guidtable: open %s: %w", path, err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil
		}
		return fmt.Errorf("guidtable: read magic %s: %w", path, err)
	}
	var bigEndian bool
	switch magic {
	case magicLittleEndian:
		bigEndian = false
	case magicBigEndian:
		bigEndian = true
	default:
		return nil
	}

	if _, err := f.Seek(guidOffset, io.SeekStart); err != nil {
		return fmt.Errorf("guidtable: seek %s: %w", path, err)
	}
	var buf [16]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return fmt.Errorf("guidtable: read file guid %s: %w", path, err)
	}
	g, err := ebx.ParseGuid(buf[:], bigEndian)
	if err != nil {
		return fmt.Errorf("guidtable: %s: %w", path, err)
	}

	t.set(g, relativeEbxName(path, ebxRoot))
	return nil
}

// AddFull registers an already-parsed Dbx's file GUID and inferred
// filename, mirroring ebx.py's createGuidTable (the full-parse mode).
func (t *Table) AddFull(d *ebx.Dbx) {
	t.set(d.FileGUID(), d.TrueFilename())
}

func (t *Table) set(g ebx.Guid, relPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byGUID[g] = relPath
}

// Resolve implements ebx.PathResolver, letting the EBX decoder follow
// external links through this table.
func (t *Table) Resolve(g ebx.Guid) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byGUID[g]
	return p, ok
}

// Len returns the number of registered GUIDs.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byGUID)
}

// Persist writes the table to disk: one compactindexsized file
// (guidtable.index) keyed by the raw 16-byte GUID with an 8-byte value
// holding an offset into a companion flat path blob (guidtable.paths),
// closing the loop on "a GUID table is emitted after extraction".
func (t *Table) Persist(outDir string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.byGUID) == 0 {
		return nil
	}

	pathsFile, err := os.Create(filepath.Join(outDir, "guidtable.paths"))
	if err != nil {
		return fmt.Errorf("guidtable: create paths blob: %w", err)
	}
	defer pathsFile.Close()
	pathsWriter := bufio.NewWriter(pathsFile)

	builder, err := compactindexsized.NewBuilderSized(outDir, uint(len(t.byGUID)), 8)
	if err != nil {
		return fmt.Errorf("guidtable: new builder: %w", err)
	}
	if err := builder.SetKind([]byte("frostbite-guidtable")); err != nil {
		return fmt.Errorf("guidtable: set kind: %w", err)
	}

	var offset uint64
	for g, relPath := range t.byGUID {
		line := relPath + "\n"
		if err := builder.Insert(guidKey(g), offsetValue(offset)); err != nil {
			return fmt.Errorf("guidtable: insert %s: %w", g.Format(), err)
		}
		if _, err := pathsWriter.WriteString(line); err != nil {
			return fmt.Errorf("guidtable: write path blob: %w", err)
		}
		offset += uint64(len(line))
	}
	if err := pathsWriter.Flush(); err != nil {
		return fmt.Errorf("guidtable: flush paths blob: %w", err)
	}

	indexFile, err := os.Create(filepath.Join(outDir, "guidtable.index"))
	if err != nil {
		return fmt.Errorf("guidtable: create index: %w", err)
	}
	defer indexFile.Close()

	if err := builder.SealAndClose(context.Background(), indexFile); err != nil {
		return fmt.Errorf("guidtable: seal index: %w", err)
	}
	return nil
}

func guidKey(g ebx.Guid) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], g.A)
	binary.BigEndian.PutUint16(buf[4:6], g.B)
	binary.BigEndian.PutUint16(buf[6:8], g.C)
	binary.BigEndian.PutUint64(buf[8:16], g.D)
	return buf
}

func offsetValue(offset uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, offset)
	return buf
}

func relativeEbxName(path, ebxRoot string) string {
	rel, err := filepath.Rel(ebxRoot, path)
	if err != nil {
		rel = path
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.ToSlash(rel)
}

