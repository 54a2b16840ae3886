// Package zlibframe implements the Frostbite chunked zlib framing: a
// stream of (uncompressedSize, compressedSize) headers each followed by
// a zlib-deflated or raw block, concatenated back into the plain payload.
package zlibframe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// zlibMagic is the two-byte zlib stream signature (CMF=0x78, FLG=0xDA)
// checked when compressedSize == uncompressedSize, since equal sizes
// alone don't rule out an incidentally-uncompressible zlib block.
var zlibMagic = [2]byte{0x78, 0xDA}

// OnFallbackWarning, if set, is invoked whenever a frame looked
// compressed by the size/magic heuristic but failed to inflate and was
// copied through raw instead. This lets a caller log the best-effort
// fallback (spec's "Best-effort zlib fallback" design note) without the
// codec depending on a logger.
var OnFallbackWarning func(reason string)

// Decode reads size bytes of framed data from r and returns the
// concatenated plaintext.
func Decode(r io.Reader, size int64) ([]byte, error) {
	var out bytes.Buffer
	var consumed int64

	for consumed < size-8 {
		var header [8]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, fmt.Errorf("zlibframe: read frame header: %w", err)
		}
		consumed += 8
		uncompressedSize := binary.BigEndian.Uint32(header[0:4])
		compressedSize := binary.BigEndian.Uint32(header[4:8])

		block := make([]byte, compressedSize)
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("zlibframe: read frame body: %w", err)
		}
		consumed += int64(compressedSize)

		looksCompressed := compressedSize != uncompressedSize
		if !looksCompressed && len(block) >= 2 && block[0] == zlibMagic[0] && block[1] == zlibMagic[1] {
			looksCompressed = true
		}

		if looksCompressed {
			if plain, ok := tryInflate(block); ok {
				out.Write(plain)
				continue
			}
			if OnFallbackWarning != nil {
				OnFallbackWarning(fmt.Sprintf("frame at offset %d: inflate failed, copying %d raw bytes", consumed-int64(compressedSize), compressedSize))
			}
		}
		out.Write(block)
	}

	return out.Bytes(), nil
}

// DecodeBytes is a convenience wrapper over Decode for in-memory idata
// payloads, matching dumper.py's zlibIdata(bytestring).
func DecodeBytes(data []byte) ([]byte, error) {
	return Decode(bytes.NewReader(data), int64(len(data)))
}

func tryInflate(block []byte) (plain []byte, ok bool) {
	zr, err := zlib.NewReader(bytes.NewReader(block))
	if err != nil {
		return nil, false
	}
	defer zr.Close()
	plain, err = io.ReadAll(zr)
	if err != nil {
		return nil, false
	}
	return plain, true
}
