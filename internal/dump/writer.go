package dump

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rpcpool/frostbite-dump/internal/longpath"
)

// treeWriter implements bundle.Writer (and is reused by the asset
// drivers) against a plain output directory tree: existence checks
// avoid re-extracting an asset ten superbundles all point at, and
// directories are created lazily on first write, escaping long paths
// the way dumper.py's open2/lp does.
type treeWriter struct {
	root string

	mu       sync.Mutex
	madeDirs map[string]bool
}

func newTreeWriter(root string) *treeWriter {
	return &treeWriter{root: root, madeDirs: make(map[string]bool)}
}

func (w *treeWriter) abs(relPath string) string {
	return filepath.Join(w.root, filepath.FromSlash(relPath))
}

// Exists reports whether relPath already exists under the output root.
func (w *treeWriter) Exists(relPath string) bool {
	_, err := os.Stat(longpath.Escape(w.abs(relPath)))
	return err == nil
}

// Create opens relPath for writing, creating its parent directory on
// first use.
func (w *treeWriter) Create(relPath string) (io.WriteCloser, error) {
	abs := w.abs(relPath)
	dir := filepath.Dir(abs)

	w.mu.Lock()
	if !w.madeDirs[dir] {
		if err := os.MkdirAll(longpath.Escape(dir), 0o755); err != nil {
			w.mu.Unlock()
			return nil, err
		}
		w.madeDirs[dir] = true
	}
	w.mu.Unlock()

	return os.Create(longpath.Escape(abs))
}
