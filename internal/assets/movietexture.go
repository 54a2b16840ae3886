package assets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rpcpool/frostbite-dump/internal/ebx"
	"k8s.io/klog/v2"
)

// ExtractMovieTextureAsset copies a parsed MovieTextureAsset's video
// stream to a single .vp6 file, resolving its source from the chunk
// named by ChunkGuid, or the asset's own RES file when ChunkGuid is
// null, mirroring ebx.py's extractMovieAsset.
func ExtractMovieTextureAsset(prim *ebx.Complex, chunks ChunkLocator, resDir, outDir, trueFilename string) error {
	chunkField, err := prim.Get("ChunkGuid")
	if err != nil {
		return fmt.Errorf("assets: movietexture chunk guid: %w", err)
	}
	chunkGUID, ok := chunkField.Value().(ebx.Guid)
	if !ok {
		return fmt.Errorf("assets: movietexture ChunkGuid field is not a guid")
	}

	var sourcePath string
	if chunkGUID.IsNull() {
		p, found := FindRes(resDir, trueFilename)
		if !found {
			klog.Warningf("assets: movietexture %s: no res file found", trueFilename)
			return nil
		}
		sourcePath = p
	} else {
		p, found := chunks.Locate(chunkGUID)
		if !found {
			klog.Warningf("assets: movietexture %s: chunk %s not found", trueFilename, chunkGUID.Format())
			return nil
		}
		sourcePath = p
	}

	target := filepath.Join(outDir, trueFilename+".vp6")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("assets: create movietexture target dir: %w", err)
	}
	return copyFile(sourcePath, target)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("assets: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("assets: create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("assets: copy %s to %s: %w", src, dst, err)
	}
	return nil
}
