// Package assets implements the per-primary-type extraction drivers that
// turn a parsed EBX instance graph into playable media files: SoundWave
// assets into per-variation .sps segments, MovieTexture assets into a
// single .vp6 copy.
package assets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rpcpool/frostbite-dump/internal/ebx"
)

// ChunkLocator resolves a chunk GUID to an already-extracted chunk file
// on disk, searching the primary chunk directory and then the overlay
// directory, mirroring ebx.py's findChunk (chunkFolder, chunkFolder2).
type ChunkLocator struct {
	ChunkDir   string
	OverlayDir string
}

// Locate returns the path to chnk's extracted .chunk file, or "", false
// if it could not be found in either directory (a null guid is also
// reported as not found).
func (l ChunkLocator) Locate(chnk ebx.Guid) (string, bool) {
	if chnk.IsNull() {
		return "", false
	}
	name := chnk.Format() + ".chunk"
	if p := filepath.Join(l.ChunkDir, name); fileExists(p) {
		return p, true
	}
	if l.OverlayDir != "" {
		if p := filepath.Join(l.OverlayDir, name); fileExists(p) {
			return p, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FindRes resolves trueFilename to an already-extracted RES file inside
// resDir, mirroring ebx.py's findRes.
func FindRes(resDir, trueFilename string) (string, bool) {
	p := filepath.Join(resDir, filepath.FromSlash(trueFilename)+".res")
	if fileExists(p) {
		return p, true
	}
	return "", false
}

// Extract dispatches a parsed primary instance to the driver matching
// its schema type, doing nothing for types with no known driver.
func Extract(d *ebx.Dbx, chunks ChunkLocator, resDir, outDir string) error {
	prim := d.Primary()
	if prim == nil {
		return nil
	}
	switch prim.Name() {
	case "SoundWaveAsset":
		return ExtractSoundWaveAsset(prim, chunks, outDir, d.TrueFilename())
	case "MovieTextureAsset":
		return ExtractMovieTextureAsset(prim, chunks, resDir, outDir, d.TrueFilename())
	default:
		return nil
	}
}

// spsBlockHeader, spsBlockNormal and spsBlockLast are the three block
// kinds an SPS stream is built from: 0x48 opens the stream, 0x44 is an
// ordinary data block, 0x45 is the empty terminating block.
const (
	spsBlockHeader = 0x48
	spsBlockNormal = 0x44
	spsBlockLast   = 0x45
)

// ExtractSPS copies one SPS segment out of a chunk file starting at
// offset, following the chunk's self-describing block chain until the
// terminating 0x45 block, mirroring ebx.py's extractSPS. Each block's
// high byte is its kind, the low 24 bits its length in bytes including
// the 4-byte block header itself.
func ExtractSPS(f io.ReadSeeker, offset int64, target string) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("assets: seek sps: %w", err)
	}
	var first [1]byte
	if _, err := io.ReadFull(f, first[:]); err != nil {
		return fmt.Errorf("assets: read sps header byte: %w", err)
	}
	if first[0] != spsBlockHeader {
		return fmt.Errorf("assets: wrong sps header at offset %d", offset)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("assets: create sps target dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("assets: create sps target: %w", err)
	}
	defer out.Close()

	cur := offset
	for {
		if _, err := f.Seek(cur, io.SeekStart); err != nil {
			return fmt.Errorf("assets: seek sps block: %w", err)
		}
		var buf [4]byte
		if _, err := io.ReadFull(f, buf[:]); err != nil {
			return fmt.Errorf("assets: read sps block header: %w", err)
		}
		blockStart := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
		blockID := blockStart >> 24
		blockSize := blockStart & 0x00FFFFFF

		if _, err := f.Seek(cur, io.SeekStart); err != nil {
			return fmt.Errorf("assets: seek sps block: %w", err)
		}
		if _, err := io.CopyN(out, f, int64(blockSize)); err != nil {
			return fmt.Errorf("assets: copy sps block: %w", err)
		}
		cur += int64(blockSize)

		if blockID == spsBlockLast {
			break
		}
	}
	return nil
}
