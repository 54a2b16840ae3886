package ebx

// FieldType is the 5-bit tag a field descriptor's type word carries,
// selecting which decode routine readField dispatches to.
type FieldType byte

const (
	FieldVoid     FieldType = 0x0
	FieldDbObject FieldType = 0x1
	FieldValue    FieldType = 0x2
	FieldClass    FieldType = 0x3
	FieldArray    FieldType = 0x4
	FieldFixedArr FieldType = 0x5
	FieldString   FieldType = 0x6
	FieldCString  FieldType = 0x7
	FieldEnum     FieldType = 0x8
	FieldFileRef  FieldType = 0x9
	FieldBoolean  FieldType = 0xA
	FieldInt8     FieldType = 0xB
	FieldUInt8    FieldType = 0xC
	FieldInt16    FieldType = 0xD
	FieldUInt16   FieldType = 0xE
	FieldInt32    FieldType = 0xF
	FieldUInt32   FieldType = 0x10
	FieldInt64    FieldType = 0x11
	FieldUInt64   FieldType = 0x12
	FieldFloat32  FieldType = 0x13
	FieldFloat64  FieldType = 0x14
	FieldGUID     FieldType = 0x15
	FieldSHA1     FieldType = 0x16
)

// header holds the 11 fixed header fields every EBX file begins with
// (after the magic and before the two root GUIDs).
type header struct {
	absStringOffset     uint32
	lenStringToEOF      uint32
	numGUID             uint32
	null                uint32
	numInstanceRepeater uint32
	numComplex          uint32
	numField            uint32
	lenName             uint32
	lenString           uint32
	numArrayRepeater    uint32
	lenPayload          uint32
}

// fieldDescriptor describes one field belonging to a complexDescriptor.
type fieldDescriptor struct {
	name            string
	typ             uint16
	ref             uint16
	offset          uint32
	secondaryOffset uint32
}

func (d fieldDescriptor) fieldType() FieldType {
	return FieldType((d.typ >> 4) & 0x1F)
}

// complexDescriptor describes one struct-like type in the file's schema.
type complexDescriptor struct {
	name            string
	fieldStartIndex uint32
	numField        byte
	alignment       byte
	typ             uint16
	size            uint16
	secondarySize   uint16
}

// instanceRepeater names a run of consecutive instances sharing a complex.
type instanceRepeater struct {
	null         uint32
	repetitions  uint32
	complexIndex uint32
}

// arrayRepeater names a run of consecutive array elements sharing a
// complex, stored in the array payload section.
type arrayRepeater struct {
	offset       uint32
	repetitions  uint32
	complexIndex uint32
}

// enumeration maps a compare value to its symbolic name for one enum
// complex, built lazily the first time that enum is encountered.
type enumeration struct {
	values map[int32]string
}

type externalGUIDPair struct {
	fileGUID     Guid
	instanceGUID Guid
}
