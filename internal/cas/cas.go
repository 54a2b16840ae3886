// Package cas implements the CAS catalog: a SHA-1 keyed index into the
// game's content-addressed cas_NN.cas archives.
package cas

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/rpcpool/frostbite-dump/internal/dbo"
)

// catalogHeaderSize is the size of the opaque header every catalog file
// carries before its entry records begin.
const catalogHeaderSize = 16

// entryRecordSize is the fixed on-disk size of one catalog record:
// sha1[20] + offset(u32 LE) + size(u32 LE) + casNum(u32 LE).
const entryRecordSize = 20 + 4 + 4 + 4

// Entry describes where an asset's payload lives inside a cas_NN.cas file.
type Entry struct {
	CasPath string
	Offset  uint32
	Size    uint32
}

// Catalog maps a SHA-1 digest to the CAS entry holding its payload.
type Catalog struct {
	mu      sync.RWMutex
	entries map[[20]byte]Entry
}

// LoadCatalog reads a cas.cat file at path and returns a new Catalog.
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{entries: make(map[[20]byte]Entry)}
	if err := c.merge(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Merge loads a patched cas.cat and layers its entries over the existing
// ones; entries sharing a SHA-1 with an already-loaded catalog are
// overridden, implementing "late entries from patched catalogs override
// earlier entries".
func (c *Catalog) Merge(path string) error {
	return c.merge(path)
}

func (c *Catalog) merge(path string) error {
	stream, err := dbo.UnXor(path)
	if err != nil {
		return fmt.Errorf("unxor catalog %s: %w", path, err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", path, err)
	}
	if len(data) < catalogHeaderSize {
		return fmt.Errorf("catalog %s: truncated header", path)
	}
	data = data[catalogHeaderSize:]
	if len(data)%entryRecordSize != 0 {
		return fmt.Errorf("catalog %s: trailing %d bytes do not form whole records", path, len(data)%entryRecordSize)
	}

	casDir := filepath.Dir(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	for off := 0; off < len(data); off += entryRecordSize {
		rec := data[off : off+entryRecordSize]
		var sha1 [20]byte
		copy(sha1[:], rec[:20])
		offset := binary.LittleEndian.Uint32(rec[20:24])
		size := binary.LittleEndian.Uint32(rec[24:28])
		casNum := binary.LittleEndian.Uint32(rec[28:32])
		c.entries[sha1] = Entry{
			CasPath: filepath.Join(casDir, fmt.Sprintf("cas_%02d.cas", casNum)),
			Offset:  offset,
			Size:    size,
		}
	}
	return nil
}

// Lookup returns the CAS entry for the given SHA-1 digest, if any.
func (c *Catalog) Lookup(sha1 [20]byte) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sha1]
	return e, ok
}
