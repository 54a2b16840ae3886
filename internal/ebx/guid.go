package ebx

import (
	"encoding/binary"
	"fmt"
)

// Guid is a Frostbite 16-byte object identifier. The first three
// components share the file's endianness; the fourth is always
// big-endian, mirroring ebx.py's Guid class.
type Guid struct {
	A uint32
	B uint16
	C uint16
	D uint64
}

// ParseGuid decodes a 16-byte GUID, using bigEndian for the first three
// components. The trailing 8 bytes are always read big-endian.
func ParseGuid(b []byte, bigEndian bool) (Guid, error) {
	if len(b) < 16 {
		return Guid{}, fmt.Errorf("guid: need 16 bytes, got %d", len(b))
	}
	bo := binary.ByteOrder(binary.LittleEndian)
	if bigEndian {
		bo = binary.BigEndian
	}
	return Guid{
		A: bo.Uint32(b[0:4]),
		B: bo.Uint16(b[4:6]),
		C: bo.Uint16(b[6:8]),
		D: binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// Format renders the GUID in the conventional
// AAAAAAAA-BBBB-CCCC-XXXX-XXXXXXXXXXXX layout, splitting D into its
// high 16 bits and low 48 bits the way ebx.py's format() does.
func (g Guid) Format() string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		g.A, g.B, g.C, (g.D>>48)&0xFFFF, g.D&0x0000FFFFFFFFFFFF)
}

// IsNull reports whether every component of the GUID is zero.
func (g Guid) IsNull() bool {
	return g.A == 0 && g.B == 0 && g.C == 0 && g.D == 0
}

// IsChunkCompressed reports whether the chunk this GUID names stores a
// zlib-framed payload; Frostbite encodes this as the least-significant
// bit of the whole GUID, which since D is always big-endian is simply
// D's own low bit.
func (g Guid) IsChunkCompressed() bool {
	return g.D&1 == 1
}
