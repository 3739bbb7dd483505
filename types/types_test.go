package types_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/upplang/upp/types"
)

func TestAlignNextMultiple(t *testing.T) {
	assert.Equal(t, 0, types.AlignNextMultiple(0, 4))
	assert.Equal(t, 4, types.AlignNextMultiple(1, 4))
	assert.Equal(t, 4, types.AlignNextMultiple(4, 4))
	assert.Equal(t, 8, types.AlignNextMultiple(5, 4))
}

func TestPrimitivesArePreregisteredAndInterned(t *testing.T) {
	in := types.NewInterner()
	i32 := in.Primitive(types.I32)
	assert.Equal(t, 4, in.Type(i32).SizeInBytes)
	assert.Equal(t, 4, in.Type(i32).AlignmentInBytes)
	assert.True(t, in.Equal(i32, in.Primitive(types.I32)))
}

func TestPointerArraySliceAreInterned(t *testing.T) {
	in := types.NewInterner()
	i32 := in.Primitive(types.I32)

	p1 := in.Pointer(i32)
	p2 := in.Pointer(i32)
	assert.Equal(t, p1, p2)

	a1 := in.Array(i32, 4)
	a2 := in.Array(i32, 4)
	assert.Equal(t, a1, a2)
	assert.Equal(t, 16, in.Type(a1).SizeInBytes)

	s1 := in.Slice(i32)
	assert.Equal(t, 16, in.Type(s1).SizeInBytes)
	assert.Equal(t, 8, in.Type(s1).AlignmentInBytes)
}

func TestStructLayoutAddsPaddingForAlignment(t *testing.T) {
	in := types.NewInterner()
	u8 := in.Primitive(types.U8)
	i32 := in.Primitive(types.I32)

	st := in.NewStruct([]types.Field{{Name: "a", Type: u8}, {Name: "b", Type: i32}})
	ty := in.Type(st)
	fields := ty.Fields
	assert.Equal(t, 0, fields[0].Offset)
	assert.Equal(t, 4, fields[1].Offset) // padded up to i32's alignment
	assert.Equal(t, 8, ty.SizeInBytes)    // trailing padding to 4-byte alignment
	assert.Equal(t, 4, ty.AlignmentInBytes)
}

func TestCUnionOverlapsAllMembersAtOffsetZero(t *testing.T) {
	in := types.NewInterner()
	u8 := in.Primitive(types.U8)
	i64 := in.Primitive(types.I64)

	u := in.NewCUnion([]types.Field{{Name: "small", Type: u8}, {Name: "big", Type: i64}})
	ty := in.Type(u)
	assert.Equal(t, 0, ty.Fields[0].Offset)
	assert.Equal(t, 0, ty.Fields[1].Offset)
	assert.Equal(t, 8, ty.SizeInBytes)
}

func TestEnumIsI32Backed(t *testing.T) {
	in := types.NewInterner()
	e := in.NewEnum([]types.EnumMember{{Name: "Red", Value: 0}, {Name: "Green", Value: 1}})
	assert.Equal(t, 4, in.Type(e).SizeInBytes)
}

func TestIsNumericExcludesBoolAndVoid(t *testing.T) {
	in := types.NewInterner()
	assert.True(t, in.IsNumeric(in.Primitive(types.I32)))
	assert.False(t, in.IsNumeric(in.Primitive(types.Bool)))
	assert.False(t, in.IsNumeric(in.Primitive(types.Void)))
}

func TestErrorTypeSuppressesCascades(t *testing.T) {
	in := types.NewInterner()
	errTy := in.ErrorType()
	i32 := in.Primitive(types.I32)
	f32 := in.Primitive(types.F32)
	assert.True(t, in.IsError(errTy))
	assert.True(t, in.Equal(errTy, i32))
	assert.NoError(t, in.ExpectEqual(errTy, f32, "binop"))
	assert.True(t, in.IsNumeric(errTy))
}

func TestExpectEqualErrorsOnMismatch(t *testing.T) {
	in := types.NewInterner()
	err := in.ExpectEqual(in.Primitive(types.I32), in.Primitive(types.F32), "binop")
	assert.Error(t, err)
	assert.NoError(t, in.ExpectEqual(in.Primitive(types.I32), in.Primitive(types.I32), "binop"))
}

// TestStructLayoutIsStableAcrossInterners rebuilds the same struct in two
// independent Interners and diffs their full layouts field by field, so a
// change to the padding/alignment algorithm that only shifts one field's
// Offset shows up as a precise diff instead of a single bool mismatch.
func TestStructLayoutIsStableAcrossInterners(t *testing.T) {
	build := func() types.Type {
		in := types.NewInterner()
		u8 := in.Primitive(types.U8)
		i32 := in.Primitive(types.I32)
		f32 := in.Primitive(types.F32)
		st := in.NewStruct([]types.Field{
			{Name: "flag", Type: u8},
			{Name: "count", Type: i32},
			{Name: "ratio", Type: f32},
		})
		return in.Type(st)
	}

	a, b := build(), build()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("struct layout differs between independently-built interners (-want +got):\n%s", diff)
	}
}
