package ebx

import (
	"fmt"
	"strings"
)

// Complex is one parsed instance of a schema type: a struct-like node
// carrying an ordered list of Fields, the ebx.py analogue of the
// decoded object graph.
type Complex struct {
	desc   complexDescriptor
	owner  *Dbx
	fields []*Field
	guid   Guid // set only for top-level instances
}

// Name returns the schema type name this complex was decoded as.
func (c *Complex) Name() string {
	return c.desc.name
}

// Field looks up a direct child field by name.
func (c *Complex) Field(name string) (*Field, bool) {
	for _, f := range c.fields {
		if f.desc.name == name {
			return f, true
		}
	}
	return nil, false
}

// Fields returns every direct child field, in file order.
func (c *Complex) Fields() []*Field {
	return c.fields
}

// Get navigates a slash-separated path of "Field::ComplexName" steps
// ending in a leaf field name, mirroring ebx.py's Complex.get, and
// returns that leaf Field. A path whose last element contains "::"
// names a complex rather than a field and is rejected; GetComplex
// resolves such paths.
func (c *Complex) Get(path string) (*Field, error) {
	elems := strings.Split(path, "/")
	if strings.Contains(elems[len(elems)-1], "::") {
		return nil, fmt.Errorf("ebx: path %q names a complex, not a field; use GetComplex", path)
	}

	cur := c
	for _, elem := range elems[:len(elems)-1] {
		next, err := cur.step(elem)
		if err != nil {
			return nil, fmt.Errorf("ebx: navigating %q in %s: %w", path, c.owner.trueFilename, err)
		}
		cur = next
	}

	leaf := elems[len(elems)-1]
	if f, ok := cur.Field(leaf); ok {
		return f, nil
	}
	return nil, fmt.Errorf("ebx: could not find field %q (full path %q, file %s)", leaf, path, c.owner.trueFilename)
}

// GetComplex navigates a full "A/B::C" path and returns the nested
// complex it resolves to, the companion of Get for the "grab a complex"
// branch of ebx.py's Complex.get.
func (c *Complex) GetComplex(path string) (*Complex, error) {
	cur := c
	for _, elem := range strings.Split(path, "/") {
		next, err := cur.step(elem)
		if err != nil {
			return nil, fmt.Errorf("ebx: navigating %q in %s: %w", path, c.owner.trueFilename, err)
		}
		cur = next
	}
	return cur, nil
}

// step resolves one "Field::ComplexName" path element, the Go analogue
// of ebx.py's Complex.go1.
func (c *Complex) step(elem string) (*Complex, error) {
	for _, f := range c.fields {
		ft := f.desc.fieldType()
		if ft != FieldValue && ft != FieldVoid && ft != FieldArray {
			continue
		}
		nested, ok := f.value.(*Complex)
		if !ok {
			continue
		}
		if f.desc.name+"::"+nested.desc.name == elem {
			return nested, nil
		}
	}
	return nil, fmt.Errorf("could not find complex step %q", elem)
}

// Field is one decoded member of a Complex; its concrete payload lives
// in value, typed per FieldType (see readField for the full mapping).
type Field struct {
	desc  fieldDescriptor
	owner *Dbx
	value any
}

// Name returns the field's schema name.
func (f *Field) Name() string {
	return f.desc.name
}

// Type returns the field's kind.
func (f *Field) Type() FieldType {
	return f.desc.fieldType()
}

// Value returns the raw decoded payload; callers that know the field's
// FieldType should type-assert directly (Bool, Int64, Uint64, Float64,
// string, Guid, []byte, *Complex).
func (f *Field) Value() any {
	return f.value
}

// Link resolves a FieldClass reference field to the Complex instance it
// points at, following internal references within this Dbx and external
// references via the owning Dbx's guid table and parse cache, mirroring
// ebx.py's Field.link.
func (f *Field) Link() (*Complex, error) {
	if f.desc.fieldType() != FieldClass {
		return nil, fmt.Errorf("ebx: link called on non-class field %q (type 0x%x)", f.desc.name, f.desc.fieldType())
	}
	ref := f.value.(uint32)

	if ref>>31 != 0 {
		return f.owner.resolveExternalLink(ref & 0x7fffffff)
	}
	if ref == 0 {
		return nil, fmt.Errorf("ebx: null guid link on field %q in %s", f.desc.name, f.owner.trueFilename)
	}
	idx := ref - 1
	if int(idx) >= len(f.owner.internalGUIDs) {
		return nil, fmt.Errorf("ebx: internal link index %d out of range in %s", idx, f.owner.trueFilename)
	}
	target := f.owner.internalGUIDs[idx]
	for _, inst := range f.owner.instances {
		if inst.guid == target {
			return inst.complex, nil
		}
	}
	return nil, fmt.Errorf("ebx: internal link target %s not found in %s", target.Format(), f.owner.trueFilename)
}
