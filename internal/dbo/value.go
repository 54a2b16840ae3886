package dbo

import "github.com/rpcpool/frostbite-dump/internal/ebx"

// Kind tags the dynamic type carried by a Value.
type Kind byte

const (
	KindBool Kind = iota
	KindInt
	KindUint
	KindString
	KindBytes
	KindGUID
	KindObject
	KindList
)

// Value is a tagged union over the scalar, GUID, byte-string,
// nested-object, and list shapes the TOC/DBO format can hold.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Uint   uint64
	Str    string
	Bytes  []byte
	GUID   ebx.Guid
	Object *Object
	List   []Value
}

// Object is an ordered, named field tree, the DBO analogue of a
// dict-of-dicts; field order is preserved because some TOC consumers
// (the bundle walker's "ebx, dbx, res, chunks" ordering guarantee)
// depend on encounter order rather than sorted order.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns an empty Object ready for Set.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set assigns a field, appending to the key order on first assignment.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the named field, if present.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the field names in encounter order.
func (o *Object) Keys() []string {
	return o.keys
}

// GetList returns the named field's list, or an empty list if the key is
// absent, matching the "make empty lists for every type to get rid of
// key errors" convenience from dumper.py.
func (o *Object) GetList(key string) []Value {
	v, ok := o.Get(key)
	if !ok || v.Kind != KindList {
		return nil
	}
	return v.List
}

// GetBool returns the named field's boolean value, defaulting to false.
func (o *Object) GetBool(key string) bool {
	v, ok := o.Get(key)
	return ok && v.Kind == KindBool && v.Bool
}
