// Package superbundle opens a TOC's paired .sb file, transparently
// decompressing X360-LZX-framed superbundles through an external tool
// and tracking the temporary files that produces for later cleanup.
package superbundle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rpcpool/frostbite-dump/internal/readahead"
)

// x360Magic marks a superbundle that is X360-LZX compressed and needs
// external decompression before it can be read as a plain bundle stream.
var x360Magic = [4]byte{0x0F, 0xF5, 0x12, 0xED}

// X360Decompressor invokes an external tool to decompress an X360-LZX
// superbundle from input into output, the "external collaborator" spec
// names rather than an algorithm this package implements itself.
type X360Decompressor func(input, output string) error

// TempFiles tracks the decompressed copies created for X360 superbundles
// during one dump run, so they can be removed once extraction finishes.
type TempFiles struct {
	mu    sync.Mutex
	paths []string
}

// NewTempFiles returns an empty tracker.
func NewTempFiles() *TempFiles {
	return &TempFiles{}
}

func (t *TempFiles) add(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paths = append(t.paths, path)
}

// Clear removes every tracked temporary file and forgets them.
func (t *TempFiles) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, p := range t.paths {
		if err := os.Remove(p); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("superbundle: remove temp file %s: %w", p, err)
		}
	}
	t.paths = t.paths[:0]
	return firstErr
}

// Open opens the superbundle at path, transparently decompressing it
// through decompress into tmpDir if its magic marks it X360-LZX
// compressed, and wrapping the resulting stream in a prefetching reader.
func Open(path, tmpDir string, tmp *TempFiles, decompress X360Decompressor) (io.ReadSeeker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("superbundle: open %s: %w", path, err)
	}

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("superbundle: read magic %s: %w", path, err)
	}

	if magic != x360Magic {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("superbundle: rewind %s: %w", path, err)
		}
		return wrapCaching(f)
	}
	f.Close()

	if decompress == nil {
		return nil, fmt.Errorf("superbundle: %s is X360-LZX compressed but no decompressor is configured", path)
	}

	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("superbundle: create temp dir %s: %w", tmpDir, err)
	}
	decPath := filepath.Join(tmpDir, uuid.NewString()+".sb")
	if err := decompress(path, decPath); err != nil {
		return nil, fmt.Errorf("superbundle: decompress %s: %w", path, err)
	}
	tmp.add(decPath)

	dec, err := os.Open(decPath)
	if err != nil {
		return nil, fmt.Errorf("superbundle: open decompressed %s: %w", decPath, err)
	}
	return wrapCaching(dec)
}

// readSeekCloser adapts readahead.CachingReader (io.Reader) back onto the
// io.ReadSeeker contract the bundle walker needs, by seeking the
// underlying file and resetting the prefetch buffer.
type readSeekCloser struct {
	file   *os.File
	cached *readahead.CachingReader
}

func wrapCaching(f *os.File) (io.ReadSeeker, error) {
	cached, err := readahead.NewCachingReaderFromReader(f, readahead.DefaultChunkSize)
	if err != nil {
		return nil, fmt.Errorf("superbundle: wrap caching reader: %w", err)
	}
	return &readSeekCloser{file: f, cached: cached}, nil
}

func (r *readSeekCloser) Read(p []byte) (int, error) {
	return r.cached.Read(p)
}

func (r *readSeekCloser) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.file.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	fresh, err := readahead.NewCachingReaderFromReader(r.file, readahead.DefaultChunkSize)
	if err != nil {
		return 0, err
	}
	r.cached = fresh
	return pos, nil
}

func (r *readSeekCloser) Close() error {
	return r.cached.Close()
}
