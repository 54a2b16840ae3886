package assets

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/frostbite-dump/internal/ebx"
)

func guidFrom(b byte) ebx.Guid {
	g, err := ebx.ParseGuid(bytes.Repeat([]byte{b}, 16), false)
	if err != nil {
		panic(err)
	}
	return g
}

func soundChunkComplex(owner *ebx.Dbx, id ebx.Guid) *ebx.Field {
	chunk := ebx.NewTestComplex("SoundDataChunk", owner,
		ebx.NewTestField("ChunkId", ebx.FieldGUID, id, owner))
	return ebx.NewTestField("Chunks", ebx.FieldValue, chunk, owner)
}

func soundSegmentField(owner *ebx.Dbx, samplesOffset int64) *ebx.Field {
	seg := ebx.NewTestComplex("SoundDataSegment", owner,
		ebx.NewTestField("SamplesOffset", ebx.FieldInt64, samplesOffset, owner))
	return ebx.NewTestField("Segments", ebx.FieldValue, seg, owner)
}

func soundVariationComplex(owner *ebx.Dbx, chunkIndex int64, segmentOffsets ...int64) *ebx.Complex {
	var segFields []*ebx.Field
	for _, off := range segmentOffsets {
		segFields = append(segFields, soundSegmentField(owner, off))
	}
	return ebx.NewTestComplex("SoundDataVariation", owner,
		ebx.NewTestField("ChunkIndex", ebx.FieldInt64, chunkIndex, owner),
		ebx.NewTestField("Segments", ebx.FieldArray, ebx.NewTestArrayComplex(owner, segFields...), owner),
	)
}

// writeChunkFile writes a minimal single-block .sps stream into dir named
// after g, so ChunkLocator.Locate can find it and ExtractSPS can read it
// starting at offset 0.
func writeChunkFile(t *testing.T, dir string, g ebx.Guid, payload []byte) {
	t.Helper()
	var buf bytes.Buffer
	writeBlock(&buf, spsBlockHeader, payload)
	writeBlock(&buf, spsBlockLast, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, g.Format()+".chunk"), buf.Bytes(), 0o644))
}

// TestExtractSoundWaveAsset_HistogramRestartsPerChunk covers scenario 6:
// two variations pointing at chunk 0 get synthetic indices 0 and 1, while
// a variation pointing at chunk 1 restarts at index 0, even though it is
// the third variation overall.
func TestExtractSoundWaveAsset_HistogramRestartsPerChunk(t *testing.T) {
	chunkDir := t.TempDir()
	outDir := t.TempDir()

	chunk0 := guidFrom(0x01)
	chunk1 := guidFrom(0x02)
	writeChunkFile(t, chunkDir, chunk0, []byte("chunk-zero-payload"))
	writeChunkFile(t, chunkDir, chunk1, []byte("chunk-one-payload"))

	owner := &ebx.Dbx{}

	chunksArrayField := ebx.NewTestField("Chunks", ebx.FieldArray,
		ebx.NewTestArrayComplex(owner,
			soundChunkComplex(owner, chunk0),
			soundChunkComplex(owner, chunk1),
		), owner)
	soundDataAsset := ebx.NewTestComplex("SoundDataAsset", owner, chunksArrayField)
	rootField := ebx.NewTestField("$", ebx.FieldValue, soundDataAsset, owner)

	varA := soundVariationComplex(owner, 0, 0)
	varB := soundVariationComplex(owner, 0, 0)
	varC := soundVariationComplex(owner, 1, 0)

	gA, gB, gC := guidFrom(0x10), guidFrom(0x11), guidFrom(0x12)
	linkOwner := ebx.NewTestDbx("test.dbx",
		[]ebx.Guid{gA, gB, gC},
		ebx.TestInstance{Guid: gA, Complex: varA},
		ebx.TestInstance{Guid: gB, Complex: varB},
		ebx.TestInstance{Guid: gC, Complex: varC},
	)

	variationsArrayField := ebx.NewTestField("Variations", ebx.FieldArray,
		ebx.NewTestArrayComplex(linkOwner,
			ebx.NewTestField("Variations", ebx.FieldClass, uint32(1), linkOwner), // -> varA
			ebx.NewTestField("Variations", ebx.FieldClass, uint32(2), linkOwner), // -> varB
			ebx.NewTestField("Variations", ebx.FieldClass, uint32(3), linkOwner), // -> varC
		), linkOwner)

	prim := ebx.NewTestComplex("SoundWaveAsset", owner, rootField, variationsArrayField)

	chunks := ChunkLocator{ChunkDir: chunkDir}
	require.NoError(t, ExtractSoundWaveAsset(prim, chunks, outDir, "weapon_fire"))

	// Three variations across two chunks force the "multi" naming
	// convention: "<name> <chunkIndex> <variationIndex> <segmentIndex>".
	for _, name := range []string{
		"weapon_fire 0 0 0.sps",
		"weapon_fire 0 1 0.sps",
		"weapon_fire 1 0 0.sps",
	} {
		_, err := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, err, "expected %s to exist", name)
	}
}
