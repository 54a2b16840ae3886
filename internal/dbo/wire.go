package dbo

// Tag bytes for the self-describing TOC/DBO object tree.
//
// spec.md treats the TOC/DBO format as "defined externally" and only
// specifies the reader's contract (Get by key, scalar/GUID/byte-string/
// nested-object/list values); the exact tag-byte encoding of the real
// Frostbite toolchain's TOC files is not published anywhere in the
// retrieved reference material. This file defines one consistent
// tag set, used by both ReadToc and this repository's test fixtures,
// sufficient to express every value shape spec.md §3 names.
const (
	tagEnd byte = iota
	tagBool
	tagInt8
	tagUInt8
	tagInt16
	tagUInt16
	tagInt32
	tagUInt32
	tagInt64
	tagUInt64
	tagString
	tagBytes
	tagGUID
	tagObject
	tagList
)
