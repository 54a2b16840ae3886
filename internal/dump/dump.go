// Package dump is the top-level extraction driver: it reifies the
// shared mutable state a dump run needs (the CAS catalog, the GUID
// table, temp-file tracking) into one Context, walks a game
// installation's TOC files in the order patched content must be read
// (DLC before base game, patched TOC before unpatched TOC), and drives
// internal/bundle, internal/ebx, and internal/assets against each.
package dump

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/rpcpool/frostbite-dump/internal/assets"
	"github.com/rpcpool/frostbite-dump/internal/bundle"
	"github.com/rpcpool/frostbite-dump/internal/cas"
	"github.com/rpcpool/frostbite-dump/internal/dbo"
	"github.com/rpcpool/frostbite-dump/internal/ebx"
	"github.com/rpcpool/frostbite-dump/internal/guidtable"
	"github.com/rpcpool/frostbite-dump/internal/superbundle"
)

// Options configures one dump run.
type Options struct {
	// X360Tool, if set, decompresses an X360-LZX superbundle; required
	// only for games that actually ship compressed superbundles.
	X360Tool superbundle.X360Decompressor
	// OnProgress, if set, is called after every TOC file is processed
	// with the just-finished TOC's relative path, for a caller to drive
	// a progress bar (spec's --progress flag).
	OnProgress func(relTocPath string)
}

// Context holds the state shared across an entire dump run: the merged
// CAS catalog, the live GUID table, and the X360 temp-file tracker,
// reified as an explicit struct rather than package-level globals.
type Context struct {
	opts Options

	outDir string
	tmpDir string

	catalog   *cas.Catalog
	guidTable *guidtable.Table
	tempFiles *superbundle.TempFiles
	ebxCache  *ebx.Cache

	tocCount int
}

// NewContext prepares a dump run targeting outDir, with no catalog
// loaded yet (LoadCatalog populates it).
func NewContext(outDir string, opts Options) (*Context, error) {
	gt, err := guidtable.New(0)
	if err != nil {
		return nil, fmt.Errorf("dump: new guid table: %w", err)
	}
	c := &Context{
		opts:      opts,
		outDir:    outDir,
		tmpDir:    filepath.Join(outDir, ".frostbite-dump-tmp"),
		catalog:   &cas.Catalog{},
		guidTable: gt,
		tempFiles: superbundle.NewTempFiles(),
	}
	c.ebxCache = ebx.NewCache(gt)
	return c, nil
}

// LoadCatalog loads the base game's cas.cat (if present) and layers any
// patched cas.cat over it, mirroring dumper.py's root-level cat reading.
func (c *Context) LoadCatalog(dataDir, patchDir string) error {
	catPath := filepath.Join(dataDir, "cas.cat")
	if !fileExists(catPath) {
		return nil
	}
	klog.Info("reading cat entries")
	catalog, err := cas.LoadCatalog(catPath)
	if err != nil {
		return fmt.Errorf("dump: load catalog %s: %w", catPath, err)
	}
	c.catalog = catalog

	patchedCat := filepath.Join(patchDir, "cas.cat")
	if fileExists(patchedCat) {
		klog.Info("reading patched cat entries")
		if err := c.catalog.Merge(patchedCat); err != nil {
			return fmt.Errorf("dump: merge patched catalog %s: %w", patchedCat, err)
		}
	}
	return nil
}

// DumpRoot walks every .toc file under dataDir, extracting the patched
// version first (against patchDir/common.dat) when one exists, then the
// unpatched version, mirroring dumper.py's dumpRoot.
func (c *Context) DumpRoot(dataDir, patchDir string) error {
	return filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".toc") {
			return nil
		}

		localPath, err := filepath.Rel(dataDir, path)
		if err != nil {
			return fmt.Errorf("dump: relativize %s: %w", path, err)
		}
		klog.V(1).Infof("toc %s", localPath)

		patchedName := filepath.Join(patchDir, localPath)
		if fileExists(patchedName) {
			commonDat := filepath.Join(patchDir, "common.dat")
			if err := c.dumpToc(patchedName, path, commonDat); err != nil {
				return fmt.Errorf("dump: patched toc %s: %w", patchedName, err)
			}
		}

		if err := c.dumpToc(path, "", ""); err != nil {
			return fmt.Errorf("dump: toc %s: %w", path, err)
		}

		c.tocCount++
		if c.opts.OnProgress != nil {
			c.opts.OnProgress(localPath)
		}
		return nil
	})
}

// dumpToc extracts one TOC file. baseTocPath and commonDatPath are only
// set when tocPath is itself a patched TOC with delta bundles to splice.
func (c *Context) dumpToc(tocPath, baseTocPath, commonDatPath string) error {
	toc, err := dbo.ReadToc(tocPath)
	if err != nil {
		return fmt.Errorf("read toc: %w", err)
	}
	if len(toc.GetList("bundles")) == 0 && len(toc.GetList("chunks")) == 0 {
		return nil
	}

	sbPath := strings.TrimSuffix(tocPath, filepath.Ext(tocPath)) + ".sb"
	sb, err := superbundle.Open(sbPath, c.tmpDir, c.tempFiles, c.opts.X360Tool)
	if err != nil {
		return fmt.Errorf("open superbundle: %w", err)
	}
	// Clear X360 decompression temp files at the end of this superbundle's
	// processing rather than waiting for the whole run to finish, so a
	// multi-superbundle dump never accumulates every decompressed copy on
	// disk at once. Runs after the close defers below, once sb (and
	// unpatchedSb, if any) are done reading from their temp copies.
	defer func() {
		if err := c.tempFiles.Clear(); err != nil {
			klog.Warningf("clear temp files: %v", err)
		}
	}()
	defer closeIfCloser(sb)

	out := newTreeWriter(c.outDir)
	ebxRoot := filepath.Join(c.outDir, "bundles", "ebx")
	onEbxWritten := func(relPath string) {
		full := filepath.Join(c.outDir, filepath.FromSlash(relPath))
		if err := c.guidTable.FastAdd(full, ebxRoot); err != nil {
			klog.Warningf("guid table: %s: %v", full, err)
		}
	}

	if toc.GetBool("cas") {
		if err := bundle.WalkCasBundle(sb, toc, c.catalog, out, onEbxWritten); err != nil {
			return fmt.Errorf("walk cas bundles: %w", err)
		}
		if err := bundle.WalkCasTocChunks(toc, c.catalog, out); err != nil {
			return fmt.Errorf("walk cas toc chunks: %w", err)
		}
		return nil
	}

	if baseTocPath == "" {
		if err := bundle.WalkNonCasBundle(sb, toc, nil, nil, out, onEbxWritten); err != nil {
			return fmt.Errorf("walk noncas bundles: %w", err)
		}
		if err := bundle.WalkNonCasTocChunks(toc, sb, out); err != nil {
			return fmt.Errorf("walk noncas toc chunks: %w", err)
		}
		return nil
	}

	unpatchedSbPath := strings.TrimSuffix(baseTocPath, filepath.Ext(baseTocPath)) + ".sb"
	unpatchedSb, err := superbundle.Open(unpatchedSbPath, c.tmpDir, c.tempFiles, c.opts.X360Tool)
	if err != nil {
		return fmt.Errorf("open unpatched superbundle: %w", err)
	}
	defer closeIfCloser(unpatchedSb)

	var commonDat io.ReaderAt
	if fileExists(commonDatPath) {
		f, err := os.Open(commonDatPath)
		if err != nil {
			return fmt.Errorf("open common.dat: %w", err)
		}
		defer f.Close()
		commonDat = f
	}

	if err := bundle.WalkNonCasBundle(sb, toc, unpatchedSb, commonDat, out, onEbxWritten); err != nil {
		return fmt.Errorf("walk patched noncas bundles: %w", err)
	}
	if err := bundle.WalkNonCasTocChunks(toc, sb, out); err != nil {
		return fmt.Errorf("walk patched noncas toc chunks: %w", err)
	}
	return nil
}

// ExtractAssets walks every written .ebx file and runs the asset driver
// matching its primary instance type (SoundWaveAsset, MovieTextureAsset),
// mirroring the wider toolchain's post-dump asset extraction pass.
// chunkDir2 is searched as an overlay when a chunk is not found under
// the primary bundles/chunks tree.
func (c *Context) ExtractAssets(chunkDir2 string) error {
	ebxRoot := filepath.Join(c.outDir, "bundles", "ebx")
	if !dirExists(ebxRoot) {
		return nil
	}
	locator := assets.ChunkLocator{
		ChunkDir:   filepath.Join(c.outDir, "bundles", "chunks"),
		OverlayDir: chunkDir2,
	}
	resDir := filepath.Join(c.outDir, "bundles", "res")
	outDir := filepath.Join(c.outDir, "assets")

	return filepath.WalkDir(ebxRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".ebx") {
			return nil
		}
		relPath, err := filepath.Rel(ebxRoot, path)
		if err != nil {
			return err
		}
		relPath = strings.TrimSuffix(relPath, filepath.Ext(relPath))

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("dump: open ebx %s: %w", path, err)
		}
		defer f.Close()

		d2, err := ebx.Open(f, filepath.ToSlash(relPath), ebxRoot, c.ebxCache)
		if err != nil {
			klog.Warningf("ebx: %s: %v", path, err)
			return nil
		}
		// Asset extraction already paid for a full parse, so use it to
		// refine the table fast-mode scraping left behind, rather than
		// leaving full-mode registration unused.
		c.guidTable.AddFull(d2)
		if err := assets.Extract(d2, locator, resDir, outDir); err != nil {
			klog.Warningf("assets: %s: %v", path, err)
		}
		return nil
	})
}

// Finish persists the GUID table and removes any X360 decompression
// temp files, mirroring dumper.py's "Write GUID table"/clearTempFiles
// closing steps.
func (c *Context) Finish() error {
	klog.Infof("writing guid table (%s entries)", humanize.Comma(int64(c.guidTable.Len())))
	if err := c.guidTable.Persist(c.outDir); err != nil {
		return fmt.Errorf("dump: persist guid table: %w", err)
	}
	return c.tempFiles.Clear()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func closeIfCloser(r any) {
	if c, ok := r.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			klog.Warningf("close: %v", err)
		}
	}
}
