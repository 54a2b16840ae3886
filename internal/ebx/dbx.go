package ebx

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

var (
	magicLittleEndian = [4]byte{0xCE, 0xD1, 0xB2, 0x0F}
	magicBigEndian    = [4]byte{0x0F, 0xB2, 0xD1, 0xCE}
)

type instance struct {
	guid    Guid
	complex *Complex
}

// Dbx is one parsed EBX file: its schema tables, its flattened GUID
// tables, and the decoded instance graph.
type Dbx struct {
	bigEndian bool
	hdr       header

	fileGUID            Guid
	primaryInstanceGUID Guid
	externalGUIDs       []externalGUIDPair

	keywordByHash map[uint32]string

	fieldDescriptors   []fieldDescriptor
	complexDescriptors []complexDescriptor
	instanceRepeaters  []instanceRepeater
	arrayRepeaters     []arrayRepeater
	enumerations       map[uint16]*enumeration

	arraySectionStart uint32

	internalGUIDs []Guid
	instances     []instance
	primary       *Complex

	trueFilename string
	ebxRoot      string
	cache        *Cache
}

// Primary returns the instance matching the file's primary instance
// GUID, the root object callers normally navigate from.
func (d *Dbx) Primary() *Complex {
	return d.primary
}

// FileGUID returns the file's own identity GUID.
func (d *Dbx) FileGUID() Guid {
	return d.fileGUID
}

// TrueFilename returns the asset's logical name, inferred from its
// primary instance's "Name" field when present, falling back to the
// relative path it was opened with.
func (d *Dbx) TrueFilename() string {
	return d.trueFilename
}

// Instances returns every (guid, complex) pair decoded from the file.
func (d *Dbx) Instances() []struct {
	Guid    Guid
	Complex *Complex
} {
	out := make([]struct {
		Guid    Guid
		Complex *Complex
	}, len(d.instances))
	for i, inst := range d.instances {
		out[i].Guid = inst.guid
		out[i].Complex = inst.complex
	}
	return out
}

// Open parses an EBX file from r. relPath is the file's path relative to
// ebxRoot (without extension), used as the fallback trueFilename and to
// resolve sibling files for external links; ebxRoot may be empty if the
// caller knows this file will never need to resolve an external link.
func Open(r io.ReadSeeker, relPath, ebxRoot string, cache *Cache) (*Dbx, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("ebx: read magic: %w", err)
	}

	d := &Dbx{
		ebxRoot:       ebxRoot,
		cache:         cache,
		enumerations:  make(map[uint16]*enumeration),
		keywordByHash: make(map[uint32]string),
	}
	switch magic {
	case magicLittleEndian:
		d.bigEndian = false
	case magicBigEndian:
		d.bigEndian = true
	default:
		return nil, fmt.Errorf("ebx: not an ebx file (bad magic): %s", relPath)
	}
	bo := d.byteOrder()

	var hdrBuf [44]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return nil, fmt.Errorf("ebx: read header: %w", err)
	}
	fields := make([]uint32, 11)
	for i := range fields {
		fields[i] = bo.Uint32(hdrBuf[i*4:])
	}
	d.hdr = header{
		absStringOffset:     fields[0],
		lenStringToEOF:      fields[1],
		numGUID:             fields[2],
		null:                fields[3],
		numInstanceRepeater: fields[4],
		numComplex:          fields[5],
		numField:            fields[6],
		lenName:             fields[7],
		lenString:           fields[8],
		numArrayRepeater:    fields[9],
		lenPayload:          fields[10],
	}
	d.arraySectionStart = d.hdr.absStringOffset + d.hdr.lenString + d.hdr.lenPayload

	fileGUIDBuf := make([]byte, 32)
	if _, err := io.ReadFull(r, fileGUIDBuf); err != nil {
		return nil, fmt.Errorf("ebx: read root guids: %w", err)
	}
	fileGUID, err := ParseGuid(fileGUIDBuf[0:16], d.bigEndian)
	if err != nil {
		return nil, err
	}
	primaryGUID, err := ParseGuid(fileGUIDBuf[16:32], d.bigEndian)
	if err != nil {
		return nil, err
	}
	d.fileGUID, d.primaryInstanceGUID = fileGUID, primaryGUID

	for i := uint32(0); i < d.hdr.numGUID; i++ {
		var buf [32]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("ebx: read external guid %d: %w", i, err)
		}
		fg, err := ParseGuid(buf[0:16], d.bigEndian)
		if err != nil {
			return nil, err
		}
		ig, err := ParseGuid(buf[16:32], d.bigEndian)
		if err != nil {
			return nil, err
		}
		d.externalGUIDs = append(d.externalGUIDs, externalGUIDPair{fileGUID: fg, instanceGUID: ig})
	}

	nameBuf := make([]byte, d.hdr.lenName)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return nil, fmt.Errorf("ebx: read keyword section: %w", err)
	}
	for _, kw := range strings.Split(string(nameBuf), "\x00") {
		d.keywordByHash[hashKeyword(kw)] = kw
	}

	for i := uint32(0); i < d.hdr.numField; i++ {
		var buf [16]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("ebx: read field descriptor %d: %w", i, err)
		}
		nameHash := bo.Uint32(buf[0:4])
		fd := fieldDescriptor{
			name:            d.keywordByHash[nameHash],
			typ:             bo.Uint16(buf[4:6]),
			ref:             bo.Uint16(buf[6:8]),
			offset:          bo.Uint32(buf[8:12]),
			secondaryOffset: bo.Uint32(buf[12:16]),
		}
		d.fieldDescriptors = append(d.fieldDescriptors, fd)
	}

	for i := uint32(0); i < d.hdr.numComplex; i++ {
		var buf [16]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("ebx: read complex descriptor %d: %w", i, err)
		}
		nameHash := bo.Uint32(buf[0:4])
		cd := complexDescriptor{
			name:            d.keywordByHash[nameHash],
			fieldStartIndex: bo.Uint32(buf[4:8]),
			numField:        buf[8],
			alignment:       buf[9],
			typ:             bo.Uint16(buf[10:12]),
			size:            bo.Uint16(buf[12:14]),
			secondarySize:   bo.Uint16(buf[14:16]),
		}
		d.complexDescriptors = append(d.complexDescriptors, cd)
	}

	for i := uint32(0); i < d.hdr.numInstanceRepeater; i++ {
		var buf [12]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("ebx: read instance repeater %d: %w", i, err)
		}
		d.instanceRepeaters = append(d.instanceRepeaters, instanceRepeater{
			null:         bo.Uint32(buf[0:4]),
			repetitions:  bo.Uint32(buf[4:8]),
			complexIndex: bo.Uint32(buf[8:12]),
		})
	}

	if err := padToAlignment(r, 16); err != nil {
		return nil, fmt.Errorf("ebx: pad to array repeater section: %w", err)
	}

	for i := uint32(0); i < d.hdr.numArrayRepeater; i++ {
		var buf [12]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("ebx: read array repeater %d: %w", i, err)
		}
		d.arrayRepeaters = append(d.arrayRepeaters, arrayRepeater{
			offset:       bo.Uint32(buf[0:4]),
			repetitions:  bo.Uint32(buf[4:8]),
			complexIndex: bo.Uint32(buf[8:12]),
		})
	}

	if _, err := r.Seek(int64(d.hdr.absStringOffset+d.hdr.lenString), io.SeekStart); err != nil {
		return nil, fmt.Errorf("ebx: seek to payload: %w", err)
	}

	for _, rep := range d.instanceRepeaters {
		for i := uint32(0); i < rep.repetitions; i++ {
			var buf [16]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return nil, fmt.Errorf("ebx: read instance guid: %w", err)
			}
			instGUID, err := ParseGuid(buf[:], d.bigEndian)
			if err != nil {
				return nil, err
			}
			d.internalGUIDs = append(d.internalGUIDs, instGUID)

			isPrimary := instGUID == d.primaryInstanceGUID
			cmplx, err := d.readComplex(r, rep.complexIndex, isPrimary)
			if err != nil {
				return nil, fmt.Errorf("ebx: read instance: %w", err)
			}
			cmplx.guid = instGUID
			if isPrimary {
				d.primary = cmplx
			}
			d.instances = append(d.instances, instance{guid: instGUID, complex: cmplx})
		}
	}

	if d.trueFilename == "" {
		d.trueFilename = relPath
	}
	return d, nil
}

func (d *Dbx) byteOrder() binary.ByteOrder {
	if d.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func padToAlignment(r io.ReadSeeker, align int64) error {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if rem := pos % align; rem != 0 {
		if _, err := r.Seek(align-rem, io.SeekCurrent); err != nil {
			return err
		}
	}
	return nil
}

// readComplex decodes one instance of complexDescriptors[complexIndex]
// at the reader's current position, mirroring ebx.py's readComplex:
// every field descriptor for that complex is read at a fixed offset
// from the complex's start, then the cursor is forced to the complex's
// declared total size regardless of how much the fields actually
// consumed (trailing padding, deprecated fields).
func (d *Dbx) readComplex(r io.ReadSeeker, complexIndex uint32, isPrimary bool) (*Complex, error) {
	desc := d.complexDescriptors[complexIndex]
	cmplx := &Complex{desc: desc, owner: d}

	startPos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	for fi := desc.fieldStartIndex; fi < desc.fieldStartIndex+uint32(desc.numField); fi++ {
		fd := d.fieldDescriptors[fi]
		if _, err := r.Seek(startPos+int64(fd.offset), io.SeekStart); err != nil {
			return nil, err
		}
		field, err := d.readField(r, fi, isPrimary)
		if err != nil {
			return nil, err
		}
		field.owner = d
		cmplx.fields = append(cmplx.fields, field)
	}

	if _, err := r.Seek(startPos+int64(desc.size), io.SeekStart); err != nil {
		return nil, err
	}
	return cmplx, nil
}

func (d *Dbx) readField(r io.ReadSeeker, fieldIndex uint32, isPrimary bool) (*Field, error) {
	fd := d.fieldDescriptors[fieldIndex]
	field := &Field{desc: fd}
	bo := d.byteOrder()

	switch fd.fieldType() {
	case FieldVoid, FieldValue:
		nested, err := d.readComplex(r, uint32(fd.ref), isPrimary)
		if err != nil {
			return nil, err
		}
		field.value = nested

	case FieldClass:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		field.value = bo.Uint32(buf[:])

	case FieldArray:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		repIndex := bo.Uint32(buf[:])
		rep := d.arrayRepeaters[repIndex]
		arrayDesc := d.complexDescriptors[fd.ref]

		savedPos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		if _, err := r.Seek(int64(d.arraySectionStart+rep.offset), io.SeekStart); err != nil {
			return nil, err
		}
		arrayComplex := &Complex{desc: arrayDesc, owner: d}
		for i := uint32(0); i < rep.repetitions; i++ {
			elem, err := d.readField(r, arrayDesc.fieldStartIndex, isPrimary)
			if err != nil {
				return nil, err
			}
			elem.owner = d
			arrayComplex.fields = append(arrayComplex.fields, elem)
		}
		field.value = arrayComplex
		if _, err := r.Seek(savedPos+4, io.SeekStart); err != nil {
			return nil, err
		}

	case FieldCString, FieldFileRef:
		startPos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		stringOffset := int32(bo.Uint32(buf[:]))
		if stringOffset == -1 {
			if fd.fieldType() == FieldCString {
				field.value = "*nullString*"
			} else {
				field.value = "*nullRef*"
			}
		} else {
			s, err := d.readCString(r, int64(d.hdr.absStringOffset)+int64(stringOffset))
			if err != nil {
				return nil, err
			}
			field.value = s
			if isPrimary && fd.name == "Name" && d.trueFilename == "" {
				d.trueFilename = s
			}
		}
		if _, err := r.Seek(startPos+4, io.SeekStart); err != nil {
			return nil, err
		}

	case FieldEnum:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		compareValue := int32(bo.Uint32(buf[:]))
		enumComplex := d.complexDescriptors[fd.ref]

		en, ok := d.enumerations[fd.ref]
		if !ok {
			en = &enumeration{values: make(map[int32]string)}
			for i := enumComplex.fieldStartIndex; i < enumComplex.fieldStartIndex+uint32(enumComplex.numField); i++ {
				member := d.fieldDescriptors[i]
				en.values[int32(member.offset)] = member.name
			}
			d.enumerations[fd.ref] = en
		}
		if name, ok := en.values[compareValue]; ok {
			field.value = name
		} else {
			field.value = "*nullEnum*"
		}

	case FieldBoolean:
		b, err := readByte(r)
		if err != nil {
			return nil, err
		}
		field.value = b != 0

	case FieldInt8:
		b, err := readByte(r)
		if err != nil {
			return nil, err
		}
		field.value = int64(int8(b))

	case FieldUInt8:
		b, err := readByte(r)
		if err != nil {
			return nil, err
		}
		field.value = uint64(b)

	case FieldInt16:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		field.value = int64(int16(bo.Uint16(buf[:])))

	case FieldUInt16:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		field.value = uint64(bo.Uint16(buf[:]))

	case FieldInt32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		field.value = int64(int32(bo.Uint32(buf[:])))

	case FieldUInt32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		field.value = uint64(bo.Uint32(buf[:]))

	case FieldInt64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		field.value = int64(bo.Uint64(buf[:]))

	case FieldUInt64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		field.value = bo.Uint64(buf[:])

	case FieldFloat32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		field.value = float64(math.Float32frombits(bo.Uint32(buf[:])))

	case FieldFloat64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		field.value = math.Float64frombits(bo.Uint64(buf[:]))

	case FieldGUID:
		var buf [16]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		g, err := ParseGuid(buf[:], d.bigEndian)
		if err != nil {
			return nil, err
		}
		field.value = g

	case FieldSHA1:
		buf := make([]byte, 20)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		field.value = buf

	default:
		return nil, fmt.Errorf("ebx: unknown field type 0x%02x for field %q", fd.fieldType(), fd.name)
	}

	return field, nil
}

func (d *Dbx) readCString(r io.ReadSeeker, absOffset int64) (string, error) {
	if _, err := r.Seek(absOffset, io.SeekStart); err != nil {
		return "", err
	}
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("ebx: read cstring: %w", err)
		}
		if buf[0] == 0 {
			break
		}
		sb.WriteByte(buf[0])
	}
	return sb.String(), nil
}

func readByte(r io.ReadSeeker) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}
