package assets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rpcpool/frostbite-dump/internal/ebx"
)

type soundChunk struct {
	id ebx.Guid
}

type soundSegment struct {
	samplesOffset int64
}

type soundVariation struct {
	chunkIndex int64
	index      int
	chunkID    ebx.Guid
	segments   []soundSegment
}

// ExtractSoundWaveAsset extracts every variation/segment of a parsed
// SoundWaveAsset primary instance into individual .sps files, mirroring
// ebx.py's extractSoundWaveAsset. The synthetic per-variation index
// (distinct from the schema's own ChunkIndex) restarts at zero for every
// chunk, matching the original's per-chunk histogram.
func ExtractSoundWaveAsset(prim *ebx.Complex, chunks ChunkLocator, outDir, trueFilename string) error {
	chunksArray, err := prim.GetComplex("$::SoundDataAsset/Chunks::array")
	if err != nil {
		return fmt.Errorf("assets: soundwave chunks: %w", err)
	}
	var soundChunks []soundChunk
	for _, elem := range chunksArray.Fields() {
		nested, ok := elem.Value().(*ebx.Complex)
		if !ok {
			continue
		}
		idField, err := nested.Get("ChunkId")
		if err != nil {
			return fmt.Errorf("assets: soundwave chunk id: %w", err)
		}
		id, ok := idField.Value().(ebx.Guid)
		if !ok {
			return fmt.Errorf("assets: soundwave chunk id field is not a guid")
		}
		soundChunks = append(soundChunks, soundChunk{id: id})
	}

	variationsArray, err := prim.GetComplex("Variations::array")
	if err != nil {
		return fmt.Errorf("assets: soundwave variations: %w", err)
	}

	histogram := make(map[int64]int)
	var variations []soundVariation
	for _, varField := range variationsArray.Fields() {
		varComplex, err := varField.Link()
		if err != nil {
			return fmt.Errorf("assets: soundwave variation link: %w", err)
		}

		chunkIndexField, err := varComplex.Get("ChunkIndex")
		if err != nil {
			return fmt.Errorf("assets: soundwave chunk index: %w", err)
		}
		chunkIndex := toInt64(chunkIndexField.Value())
		if chunkIndex < 0 || int(chunkIndex) >= len(soundChunks) {
			return fmt.Errorf("assets: soundwave chunk index %d out of range", chunkIndex)
		}

		segmentsArray, err := varComplex.GetComplex("Segments::array")
		if err != nil {
			return fmt.Errorf("assets: soundwave segments: %w", err)
		}
		var segments []soundSegment
		for _, segField := range segmentsArray.Fields() {
			nested, ok := segField.Value().(*ebx.Complex)
			if !ok {
				continue
			}
			offsetField, err := nested.Get("SamplesOffset")
			if err != nil {
				return fmt.Errorf("assets: soundwave segment offset: %w", err)
			}
			segments = append(segments, soundSegment{samplesOffset: toInt64(offsetField.Value())})
		}

		index := histogram[chunkIndex]
		histogram[chunkIndex] = index + 1

		variations = append(variations, soundVariation{
			chunkIndex: chunkIndex,
			index:      index,
			chunkID:    soundChunks[chunkIndex].id,
			segments:   segments,
		})
	}

	handles := make(map[ebx.Guid]*os.File)
	defer func() {
		for _, f := range handles {
			f.Close()
		}
	}()

	for _, v := range variations {
		multi := len(soundChunks) > 1 || len(variations) > 1 || len(v.segments) > 1
		f, ok := handles[v.chunkID]
		if !ok {
			path, found := chunks.Locate(v.chunkID)
			if !found {
				continue
			}
			opened, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("assets: open chunk %s: %w", path, err)
			}
			handles[v.chunkID] = opened
			f = opened
		}

		for segIdx, seg := range v.segments {
			name := trueFilename
			if multi {
				name = fmt.Sprintf("%s %d %d %d", trueFilename, v.chunkIndex, v.index, segIdx)
			}
			target := filepath.Join(outDir, name+".sps")
			if err := ExtractSPS(f, seg.samplesOffset, target); err != nil {
				return fmt.Errorf("assets: extract sps segment %d: %w", segIdx, err)
			}
		}
	}
	return nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
