package ebx

// Test fixture constructors, exported for the same reason dbo.XorBytes
// is: other packages' tests need to build small decoded-graph shapes
// (Complex/Field/Dbx trees) without running a full binary parse.

// NewTestField builds a Field named name, typed typ, carrying value as
// its decoded payload and owner as the Dbx consulted by Link and by
// error paths that report the owning file's name. owner may be nil for
// fields a test never calls Link on and that never hit an error path.
func NewTestField(name string, typ FieldType, value any, owner *Dbx) *Field {
	return &Field{desc: fieldDescriptor{name: name, typ: uint16(typ) << 4}, value: value, owner: owner}
}

// NewTestComplex builds a Complex named name, owned by owner, wrapping
// fields as its direct children.
func NewTestComplex(name string, owner *Dbx, fields ...*Field) *Complex {
	return &Complex{desc: complexDescriptor{name: name}, owner: owner, fields: fields}
}

// NewTestArrayComplex builds the "array"-named Complex the
// "Field::ComplexName::array" step convention expects for array-typed
// fields, wrapping elems as its per-element field list.
func NewTestArrayComplex(owner *Dbx, elems ...*Field) *Complex {
	return &Complex{desc: complexDescriptor{name: "array"}, owner: owner, fields: elems}
}

// TestInstance names one top-level instance for NewTestDbx: the guid it
// is addressed by in internalGUIDs, paired with its decoded Complex.
type TestInstance struct {
	Guid    Guid
	Complex *Complex
}

// NewTestDbx builds a Dbx exposing just the state Field.Link's
// internal-reference path consults.
func NewTestDbx(trueFilename string, internalGUIDs []Guid, instances ...TestInstance) *Dbx {
	d := &Dbx{trueFilename: trueFilename, internalGUIDs: internalGUIDs}
	for _, inst := range instances {
		d.instances = append(d.instances, instance{guid: inst.Guid, complex: inst.Complex})
	}
	return d
}
