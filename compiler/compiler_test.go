package compiler_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upplang/upp/ast"
	"github.com/upplang/upp/compiler"
	"github.com/upplang/upp/sourcecode"
	"github.com/upplang/upp/token"
	"github.com/upplang/upp/vm"
)

func int32FromExit(b [8]byte) int32 {
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func TestCompileTrivialFunctionExecutesToSuccess(t *testing.T) {
	src := "main :: () -> i32\n\treturn 0\n"
	u := compiler.Compile("main.upp", src, true, compiler.Config{})
	require.Empty(t, u.Diagnostics)
	require.NotNil(t, u.Program)

	interp := vm.New(u.Program, u.Interner, vm.Config{})
	code, err := interp.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Success, code)
	assert.EqualValues(t, 0, int32FromExit(interp.ExitValue()))

	code2, err := compiler.Execute(u, vm.Config{})
	require.NoError(t, err)
	assert.Equal(t, vm.Success, code2)
}

func TestCompileDivisionByZeroTraps(t *testing.T) {
	src := "main :: () -> i32\n\tx := 10\n\ty := 0\n\treturn x / y\n"
	u := compiler.Compile("main.upp", src, true, compiler.Config{})
	require.Empty(t, u.Diagnostics)
	require.NotNil(t, u.Program)

	code, err := compiler.Execute(u, vm.Config{})
	require.Error(t, err)
	assert.Equal(t, vm.DivByZero, code)
}

func TestCompileUnresolvedSymbolProducesDiagnosticAndNoProgram(t *testing.T) {
	src := "main :: () -> i32\n\treturn foo\n"
	u := compiler.Compile("main.upp", src, true, compiler.Config{})
	require.Len(t, u.Diagnostics, 1)
	assert.Equal(t, compiler.SymbolError, u.Diagnostics[0].Severity)
	assert.Nil(t, u.Program)

	_, err := compiler.Execute(u, vm.Config{})
	require.Error(t, err)
}

func TestFindNodeAtAndResolveSymbol(t *testing.T) {
	src := "square :: (x: i32) -> i32\n\treturn x * x\n"
	u := compiler.Compile("main.upp", src, false, compiler.Config{})
	require.Empty(t, u.Diagnostics)

	// The second "x" in "x * x" sits a few characters into the return line.
	pos := sourcecode.TextIndex{
		Line: sourcecode.LineIndex{Block: u.Code.Block(sourcecode.RootBlock).Lines[1].ChildBlock, Line: 0},
		Char: 11,
	}
	node := compiler.FindNodeAt(u, pos)
	require.NotEqual(t, ast.NoNode, node)

	table := compiler.FindSymbolTableAt(u, pos)
	require.NotNil(t, table)

	data, ok := u.Arena.Node(node).Data.(ast.ExprSymbolReadData)
	if ok {
		sym := compiler.ResolveSymbol(table, data)
		assert.NotNil(t, sym)
	}
}

func TestLoadAndSaveSourceRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	original := "main :: () -> i32\n\treturn 0"
	require.NoError(t, afero.WriteFile(fs, "editor_text.upp", []byte(original), 0o644))

	code, err := compiler.LoadSource(fs, "editor_text.upp", token.NewPool())
	require.NoError(t, err)

	require.NoError(t, compiler.SaveSource(fs, "roundtrip.upp", code))
	saved, err := afero.ReadFile(fs, "roundtrip.upp")
	require.NoError(t, err)
	// Indentation is tracked per-line, not as embedded whitespace, so the
	// reassembled text carries the same lines dedented.
	assert.Equal(t, "main :: () -> i32\nreturn 0", string(saved))
}
