package vm_test

import (
	"bytes"
	"math/rand"
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
	"github.com/upplang/upp/vm"
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

// compile parses, analyses, lowers, and generates bytecode for a complete
// Upp source, requiring a clean run through every prior stage (vm tests
// exercise the whole pipeline, not ir/bytecode in isolation).
func compile(t *testing.T, c *sourcecode.Code, hardcoded []string) (*bytecode.Program, *types.Interner) {
	t.Helper()
	arena, mod, diags := parser.Parse(c, nil)
	require.Empty(t, diags)
	in := types.NewInterner()
	res := analyzer.Analyze(arena, mod, in, hardcoded, nil)
	require.Empty(t, res.Diagnostics)
	irProg, errs := ir.Lower(arena, res, in)
	require.Empty(t, errs)
	prog, bcErrs := bytecode.Generate(irProg, in)
	require.Empty(t, bcErrs)
	return prog, in
}

func TestRunReturnsSimpleArithmeticResult(t *testing.T) {
	c := newCode(t, "main :: () -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "a := 3", "b := 4", "return a * b + 1")
	prog, in := compile(t, c, nil)

	interp := vm.New(prog, in, vm.Config{})
	code, err := interp.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Success, code)
	assert.EqualValues(t, 13, int32FromExit(interp))
}

func TestRunDivisionByZeroTraps(t *testing.T) {
	c := newCode(t, "main :: () -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "z := 0", "return 10 / z")
	prog, in := compile(t, c, nil)

	interp := vm.New(prog, in, vm.Config{})
	code, err := interp.Run()
	require.Error(t, err)
	assert.Equal(t, vm.DivByZero, code)
}

func TestRunModuloByZeroTraps(t *testing.T) {
	c := newCode(t, "main :: () -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "z := 0", "return 10 % z")
	prog, in := compile(t, c, nil)

	interp := vm.New(prog, in, vm.Config{})
	code, err := interp.Run()
	require.Error(t, err)
	assert.Equal(t, vm.DivByZero, code)
}

func TestRunFunctionCallAndReturnValue(t *testing.T) {
	c := newCode(t, "square :: (x: i32) -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "return x * x")
	c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 2})
	c.InsertText(sourcecode.TextIndex{Line: sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 2}, Char: 0}, "main :: () -> i32")
	c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 3})
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 3}, "return square(6)")
	prog, in := compile(t, c, nil)

	interp := vm.New(prog, in, vm.Config{})
	code, err := interp.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Success, code)
	assert.EqualValues(t, 36, int32FromExit(interp))
}

func TestRunRecursiveFunctionCall(t *testing.T) {
	c := newCode(t, "fact :: (n: i32) -> i32", "")
	body := withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1},
		"if n <= 1", "", "return n * fact(n - 1)")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: body, Line: 1}, "return 1")

	c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 2})
	c.InsertText(sourcecode.TextIndex{Line: sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 2}, Char: 0}, "main :: () -> i32")
	c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 3})
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 3}, "return fact(5)")

	prog, in := compile(t, c, nil)
	interp := vm.New(prog, in, vm.Config{})
	code, err := interp.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Success, code)
	assert.EqualValues(t, 120, int32FromExit(interp))
}

func TestRunHardcodedPrintI32WritesStdout(t *testing.T) {
	c := newCode(t, "main :: () -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "print_i32(42)", "return 0")
	prog, in := compile(t, c, []string{"print_i32"})

	var out bytes.Buffer
	interp := vm.New(prog, in, vm.Config{Stdout: &out})
	code, err := interp.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Success, code)
	assert.Equal(t, "42", out.String())
}

func TestRunHardcodedRandomI32IsDeterministicForAFixedSeed(t *testing.T) {
	c := newCode(t, "main :: () -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "return random_i32()")
	prog, in := compile(t, c, []string{"random_i32"})

	interp1 := vm.New(prog, in, vm.Config{Rand: rand.New(rand.NewSource(7))})
	code1, err := interp1.Run()
	require.NoError(t, err)
	require.Equal(t, vm.Success, code1)

	interp2 := vm.New(prog, in, vm.Config{Rand: rand.New(rand.NewSource(7))})
	code2, err := interp2.Run()
	require.NoError(t, err)
	require.Equal(t, vm.Success, code2)

	assert.Equal(t, int32FromExit(interp1), int32FromExit(interp2))
}

func int32FromExit(interp *vm.Interpreter) int32 {
	b := interp.ExitValue()
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}
