package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upplang/upp/analyzer"
	"github.com/upplang/upp/bytecode"
	"github.com/upplang/upp/ir"
	"github.com/upplang/upp/parser"
	"github.com/upplang/upp/sourcecode"
	"github.com/upplang/upp/token"
	"github.com/upplang/upp/types"
)

func newCode(t *testing.T, lines ...string) *sourcecode.Code {
	t.Helper()
	c := sourcecode.New(token.NewPool())
	for i, line := range lines {
		if i > 0 {
			c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: i})
		}
		c.InsertText(sourcecode.TextIndex{Line: sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: i}, Char: 0}, line)
	}
	return c
}

func withFollowBlock(t *testing.T, c *sourcecode.Code, idx sourcecode.LineIndex, bodyLines ...string) sourcecode.BlockIndex {
	t.Helper()
	child, err := c.InsertEmptyBlock(idx)
	require.NoError(t, err)
	for i, line := range bodyLines {
		if i > 0 {
			c.InsertEmptyLine(sourcecode.LineIndex{Block: child, Line: i})
		}
		c.InsertText(sourcecode.TextIndex{Line: sourcecode.LineIndex{Block: child, Line: i}, Char: 0}, line)
	}
	return child
}

func lower(t *testing.T, c *sourcecode.Code, hardcoded []string) (*ir.Program, *types.Interner) {
	t.Helper()
	arena, mod, diags := parser.Parse(c, nil)
	require.Empty(t, diags)
	in := types.NewInterner()
	res := analyzer.Analyze(arena, mod, in, hardcoded, nil)
	require.Empty(t, res.Diagnostics)
	prog, errs := ir.Lower(arena, res, in)
	require.Empty(t, errs)
	return prog, in
}

func TestGenerateSimpleArithmeticFunction(t *testing.T) {
	c := newCode(t, "add :: (a: i32, b: i32) -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "return a + b")
	prog, in := lower(t, c, nil)

	out, errs := bytecode.Generate(prog, in)
	require.Empty(t, errs)
	require.Len(t, out.Functions, 1)

	fn := out.Functions[0]
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, 0, fn.EntryPoint)
	assert.Equal(t, 2, fn.ParamCount)
	assert.GreaterOrEqual(t, fn.FrameSize, 8, "two i32 parameters need at least 8 bytes of frame")

	var sawAdd, sawReturn bool
	for _, instr := range out.Instructions {
		if instr.Op == bytecode.OpBinary && instr.BinOp == ir.Add {
			sawAdd = true
		}
		if instr.Op == bytecode.OpReturn {
			sawReturn = true
			assert.GreaterOrEqual(t, instr.Src1, 0, "non-void return must carry a resolved stack offset")
		}
	}
	assert.True(t, sawAdd)
	assert.True(t, sawReturn)
}

func TestGenerateVoidReturnCarriesNoOffset(t *testing.T) {
	c := newCode(t, "touch :: () -> void", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "return")
	prog, in := lower(t, c, nil)

	out, errs := bytecode.Generate(prog, in)
	require.Empty(t, errs)

	var found bool
	for _, instr := range out.Instructions {
		if instr.Op == bytecode.OpReturn {
			found = true
			assert.Equal(t, -1, instr.Src1)
		}
	}
	assert.True(t, found)
}

func TestGenerateTwoFunctionsPackIntoOneStream(t *testing.T) {
	c := newCode(t, "helper :: () -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "return 7")
	c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 2})
	c.InsertText(sourcecode.TextIndex{Line: sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 2}, Char: 0}, "main :: () -> i32")
	c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 3})
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 3}, "return helper()")
	prog, in := lower(t, c, nil)

	out, errs := bytecode.Generate(prog, in)
	require.Empty(t, errs)
	require.Len(t, out.Functions, 2)

	helper := functionByName(t, out, "helper")
	main := functionByName(t, out, "main")
	assert.Equal(t, 0, helper.EntryPoint)
	assert.Equal(t, len(mustFunctionInstructions(prog, "helper")), main.EntryPoint)
	assert.Equal(t, main.EntryPoint, out.EntryPoint, "the unit's declared main should set Program.EntryPoint")

	var call *bytecode.Instruction
	for i := range out.Instructions[main.EntryPoint:] {
		instr := &out.Instructions[main.EntryPoint+i]
		if instr.Op == bytecode.OpCall {
			call = instr
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, "helper", call.Callee)
	assert.Equal(t, helper.EntryPoint, call.Target)
}

func TestGenerateHardcodedCallLeavesTargetUnresolved(t *testing.T) {
	c := newCode(t, "main :: () -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "print_i32(1)", "return 0")
	prog, in := lower(t, c, []string{"print_i32"})

	out, errs := bytecode.Generate(prog, in)
	require.Empty(t, errs)

	var call *bytecode.Instruction
	for i := range out.Instructions {
		if out.Instructions[i].Op == bytecode.OpCall {
			call = &out.Instructions[i]
		}
	}
	require.NotNil(t, call)
	assert.True(t, call.IsHardcoded)
	assert.Equal(t, "print_i32", call.Callee)
}

func TestGenerateStructFieldWriteBecomesExplicitMemoryOp(t *testing.T) {
	c := newCode(t, "Point :: struct", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "x: i32", "y: i32")
	c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 2})
	c.InsertText(sourcecode.TextIndex{Line: sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 2}, Char: 0}, "make_point :: () -> i32")
	c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 3})
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 3}, "p := Point.{x: 1, y: 2}", "return p.x")
	prog, in := lower(t, c, nil)

	out, errs := bytecode.Generate(prog, in)
	require.Empty(t, errs)

	var sawWrite, sawRead bool
	for _, instr := range out.Instructions {
		switch instr.Op {
		case bytecode.OpWriteMemory:
			sawWrite = true
		case bytecode.OpReadMemory:
			sawRead = true
		}
	}
	assert.True(t, sawWrite, "a struct literal's field assignments should lower to explicit memory writes")
	assert.True(t, sawRead, "reading p.x back should lower to an explicit memory read")
}

func TestGenerateCallToUndefinedFunctionIsAnError(t *testing.T) {
	// A function reachable only via symbol.Unfinished/error recovery could in
	// principle slip an unresolved callee name past the analyser; Generate
	// must report it rather than emit a bogus Target.
	prog := &ir.Program{Functions: []*ir.Function{{
		Name:       "main",
		ReturnType: types.ID(0),
		Instructions: []ir.Instruction{
			{Op: ir.OpCall, Callee: "does_not_exist"},
			{Op: ir.OpReturn},
		},
	}}}
	in := types.NewInterner()
	prog.Functions[0].ReturnType = in.Primitive(types.Void)

	_, errs := bytecode.Generate(prog, in)
	require.Len(t, errs, 1)
}

func mustFunctionInstructions(prog *ir.Program, name string) []ir.Instruction {
	fn := prog.FunctionByName(name)
	if fn == nil {
		return nil
	}
	return fn.Instructions
}

func functionByName(t *testing.T, prog *bytecode.Program, name string) bytecode.Function {
	t.Helper()
	for _, fn := range prog.Functions {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("no function named %q", name)
	return bytecode.Function{}
}
