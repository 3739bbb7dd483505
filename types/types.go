// Package types implements the global type interner and struct/union layout
// rules shared by the analyser, IR lowering, and bytecode generator.
package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Primitive is the closed set of built-in scalar kinds.
type Primitive int

const (
	I8 Primitive = iota
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	Bool
	Void
)

func (p Primitive) String() string {
	switch p {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case F32:
		return "f32"
	case Bool:
		return "bool"
	case Void:
		return "void"
	default:
		return "?"
	}
}

func (p Primitive) sizeAndAlign() (size, align int) {
	switch p {
	case I8, U8, Bool:
		return 1, 1
	case I16, U16:
		return 2, 2
	case I32, U32, F32:
		return 4, 4
	case I64, U64:
		return 8, 8
	case Void:
		return 0, 1
	default:
		return 0, 1
	}
}

// Tag is the closed set of type constructors.
type Tag int

const (
	TagPrimitive Tag = iota
	TagPointer
	TagArray
	TagSlice
	TagStruct
	TagCUnion
	TagUnion
	TagEnum
	TagFunction
	TagError // sentinel for "type could not be determined"; see Interner.ErrorType
)

// Field is one struct/c_union member, in declaration order.
type Field struct {
	Name   string
	Type   ID
	Offset int
}

// EnumMember is one enum variant; Value is its underlying ordinal.
type EnumMember struct {
	Name  string
	Value int64
}

// Type is one interned type descriptor. Exactly the fields relevant to Tag
// are meaningful: a closed tagged union mirrored in Go as a single struct
// switched on Tag rather than an interface hierarchy, for the same reason
// ast.Node avoids one -- see ast package doc comment.
type Type struct {
	Tag  Tag
	Prim Primitive // TagPrimitive
	Elem ID        // TagPointer/TagArray/TagSlice
	Size int       // TagArray: element count

	Fields   []Field      // TagStruct/TagCUnion
	Variants []Field      // TagUnion: payload fields, tag is a synthesised i32
	Members  []EnumMember // TagEnum
	Params   []ID         // TagFunction
	Return   ID           // TagFunction

	SizeInBytes      int
	AlignmentInBytes int
}

// ID is an interned handle; two types are equal iff their IDs are equal.
type ID int

// Interner is the global type table. Primitive types are pre-registered;
// pointer/array/slice are derived lazily and cached by structural key;
// struct/union/enum/function types are created explicitly by the analyser
// and are never deduplicated (each has distinct identity tied to its
// defining AST node).
type Interner struct {
	types []Type

	primitiveIDs map[Primitive]ID
	pointerIDs   map[ID]ID
	arrayIDs     map[[2]int]ID // [elem ID, size]
	sliceIDs     map[ID]ID
	errorID      ID
}

func NewInterner() *Interner {
	in := &Interner{
		primitiveIDs: make(map[Primitive]ID),
		pointerIDs:   make(map[ID]ID),
		arrayIDs:     make(map[[2]int]ID),
		sliceIDs:     make(map[ID]ID),
	}
	for _, p := range []Primitive{I8, I16, I32, I64, U8, U16, U32, U64, F32, Bool, Void} {
		size, align := p.sizeAndAlign()
		id := in.intern(Type{Tag: TagPrimitive, Prim: p, SizeInBytes: size, AlignmentInBytes: align})
		in.primitiveIDs[p] = id
	}
	in.errorID = in.intern(Type{Tag: TagError})
	return in
}

// ErrorType is the sentinel type assigned to a subtree whose analysis
// failed; it suppresses further cascading errors on that path. IsError
// reports membership.
func (in *Interner) ErrorType() ID { return in.errorID }

func (in *Interner) IsError(id ID) bool { return id == in.errorID }

func (in *Interner) intern(t Type) ID {
	id := ID(len(in.types))
	in.types = append(in.types, t)
	return id
}

// Type dereferences id.
func (in *Interner) Type(id ID) Type {
	return in.types[id]
}

// Primitive returns the interned id for a primitive kind.
func (in *Interner) Primitive(p Primitive) ID {
	return in.primitiveIDs[p]
}

// Pointer returns (interning if necessary) *elem.
func (in *Interner) Pointer(elem ID) ID {
	if id, ok := in.pointerIDs[elem]; ok {
		return id
	}
	id := in.intern(Type{Tag: TagPointer, Elem: elem, SizeInBytes: 8, AlignmentInBytes: 8})
	in.pointerIDs[elem] = id
	return id
}

// Array returns (interning if necessary) [size]elem.
func (in *Interner) Array(elem ID, size int) ID {
	key := [2]int{int(elem), size}
	if id, ok := in.arrayIDs[key]; ok {
		return id
	}
	et := in.Type(elem)
	id := in.intern(Type{
		Tag: TagArray, Elem: elem, Size: size,
		SizeInBytes:      et.SizeInBytes * size,
		AlignmentInBytes: et.AlignmentInBytes,
	})
	in.arrayIDs[key] = id
	return id
}

// Slice returns (interning if necessary) []elem -- represented as a
// (pointer, length) pair, 16 bytes, 8-byte aligned.
func (in *Interner) Slice(elem ID) ID {
	if id, ok := in.sliceIDs[elem]; ok {
		return id
	}
	id := in.intern(Type{Tag: TagSlice, Elem: elem, SizeInBytes: 16, AlignmentInBytes: 8})
	in.sliceIDs[elem] = id
	return id
}

// AlignNextMultiple is the single arithmetic primitive used for all layout
// decisions: it rounds offset up to the next multiple of alignment. Generic
// over constraints.Integer so the bytecode generator and VM can reuse it
// directly for stack-offset arithmetic in whatever integer width they
// carry, without a cast back through int.
func AlignNextMultiple[T constraints.Integer](offset, alignment T) T {
	if alignment <= 0 {
		return offset
	}
	return offset + (alignment-offset%alignment)%alignment
}

// NewStruct computes natural-alignment layout (fields in declaration order,
// each at align_next_multiple(current, field.alignment), trailing padding
// to the struct's own alignment) and interns the result.
func (in *Interner) NewStruct(fields []Field) ID {
	offset := 0
	maxAlign := 1
	laidOut := make([]Field, len(fields))
	for i, f := range fields {
		ft := in.Type(f.Type)
		offset = AlignNextMultiple(offset, ft.AlignmentInBytes)
		laidOut[i] = Field{Name: f.Name, Type: f.Type, Offset: offset}
		offset += ft.SizeInBytes
		if ft.AlignmentInBytes > maxAlign {
			maxAlign = ft.AlignmentInBytes
		}
	}
	size := AlignNextMultiple(offset, maxAlign)
	return in.intern(Type{Tag: TagStruct, Fields: laidOut, SizeInBytes: size, AlignmentInBytes: maxAlign})
}

// NewCUnion lays every field at offset 0 (C-style overlapping union); size
// is the largest member's size, alignment the largest member's alignment.
func (in *Interner) NewCUnion(fields []Field) ID {
	size, align := 0, 1
	laidOut := make([]Field, len(fields))
	for i, f := range fields {
		ft := in.Type(f.Type)
		laidOut[i] = Field{Name: f.Name, Type: f.Type, Offset: 0}
		if ft.SizeInBytes > size {
			size = ft.SizeInBytes
		}
		if ft.AlignmentInBytes > align {
			align = ft.AlignmentInBytes
		}
	}
	return in.intern(Type{Tag: TagCUnion, Fields: laidOut, SizeInBytes: size, AlignmentInBytes: align})
}

// NewUnion lays out a tagged union: a leading i32 tag, then the largest
// variant's payload at align_next_multiple(4, payload alignment).
func (in *Interner) NewUnion(variants []Field) ID {
	payloadAlign, payloadSize := 1, 0
	for _, f := range variants {
		ft := in.Type(f.Type)
		if ft.AlignmentInBytes > payloadAlign {
			payloadAlign = ft.AlignmentInBytes
		}
		if ft.SizeInBytes > payloadSize {
			payloadSize = ft.SizeInBytes
		}
	}
	payloadOffset := AlignNextMultiple(4, payloadAlign)
	laidOut := make([]Field, len(variants))
	for i, f := range variants {
		laidOut[i] = Field{Name: f.Name, Type: f.Type, Offset: payloadOffset}
	}
	align := payloadAlign
	if align < 4 {
		align = 4
	}
	size := AlignNextMultiple(payloadOffset+payloadSize, align)
	return in.intern(Type{Tag: TagUnion, Variants: laidOut, SizeInBytes: size, AlignmentInBytes: align})
}

// NewEnum interns an enum backed by an i32 ordinal.
func (in *Interner) NewEnum(members []EnumMember) ID {
	return in.intern(Type{Tag: TagEnum, Members: members, SizeInBytes: 4, AlignmentInBytes: 4})
}

// NewFunction interns a function signature type; functions are values of
// pointer size/alignment (a code-entry-point handle) when stored.
func (in *Interner) NewFunction(params []ID, ret ID) ID {
	return in.intern(Type{Tag: TagFunction, Params: params, Return: ret, SizeInBytes: 8, AlignmentInBytes: 8})
}

// Equal reports whether a and b are the same interned type. Because struct/
// union/enum/function types are never deduplicated, this is exactly ID
// equality, except that ErrorType compares equal to anything: an
// already-reported mismatch must not cascade into a second diagnostic on
// the same path.
func (in *Interner) Equal(a, b ID) bool {
	if a == in.errorID || b == in.errorID {
		return true
	}
	return a == b
}

// String renders a type for diagnostics.
func (in *Interner) String(id ID) string {
	t := in.Type(id)
	switch t.Tag {
	case TagPrimitive:
		return t.Prim.String()
	case TagPointer:
		return "*" + in.String(t.Elem)
	case TagArray:
		return fmt.Sprintf("[%d]%s", t.Size, in.String(t.Elem))
	case TagSlice:
		return "[]" + in.String(t.Elem)
	case TagStruct:
		return structLikeString("struct", t.Fields, in)
	case TagCUnion:
		return structLikeString("c_union", t.Fields, in)
	case TagUnion:
		return structLikeString("union", t.Variants, in)
	case TagEnum:
		names := make([]string, len(t.Members))
		for i, m := range t.Members {
			names[i] = m.Name
		}
		return "enum{" + strings.Join(names, ",") + "}"
	case TagFunction:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = in.String(p)
		}
		return fmt.Sprintf("(%s) -> %s", strings.Join(params, ","), in.String(t.Return))
	case TagError:
		return "<error>"
	default:
		return "?"
	}
}

func structLikeString(keyword string, fields []Field, in *Interner) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Name + ":" + in.String(f.Type)
	}
	return keyword + "{" + strings.Join(parts, ",") + "}"
}

// IsNumeric reports whether id is a primitive suitable for arithmetic.
func (in *Interner) IsNumeric(id ID) bool {
	if id == in.errorID {
		return true
	}
	t := in.Type(id)
	if t.Tag != TagPrimitive {
		return false
	}
	return t.Prim != Bool && t.Prim != Void
}

// ExpectEqual is a convenience check used throughout the analyser for the
// frequent "operand types must be equal" rule.
func (in *Interner) ExpectEqual(a, b ID, context string) error {
	if !in.Equal(a, b) {
		return errors.Errorf("types: %s: expected %s, got %s", context, in.String(a), in.String(b))
	}
	return nil
}
