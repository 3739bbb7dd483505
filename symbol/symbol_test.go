package symbol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upplang/upp/ast"
	"github.com/upplang/upp/symbol"
)

func TestDeclareAndLookupLocal(t *testing.T) {
	tbl := symbol.NewTable(nil)
	sym, err := tbl.Declare("x", symbol.Variable, ast.NodeID(1))
	require.NoError(t, err)
	assert.Equal(t, "x", sym.Name)

	found, ok := tbl.LookupLocal("x")
	require.True(t, ok)
	assert.Same(t, sym, found)
}

func TestDeclareRedefinitionErrors(t *testing.T) {
	tbl := symbol.NewTable(nil)
	_, err := tbl.Declare("x", symbol.Variable, ast.NoNode)
	require.NoError(t, err)
	_, err = tbl.Declare("x", symbol.Variable, ast.NoNode)
	assert.Error(t, err)
}

func TestLookupFallsBackToParent(t *testing.T) {
	root := symbol.NewTable(nil)
	_, err := root.Declare("outer", symbol.Global, ast.NoNode)
	require.NoError(t, err)

	child := symbol.NewTable(root)
	_, ok := child.LookupLocal("outer")
	assert.False(t, ok)

	found, ok := child.Lookup("outer")
	require.True(t, ok)
	assert.Equal(t, "outer", found.Name)
}

func TestResolvePathThroughModule(t *testing.T) {
	root := symbol.NewTable(nil)
	childTable := symbol.NewTable(nil)
	_, err := childTable.Declare("c", symbol.Variable, ast.NoNode)
	require.NoError(t, err)
	_, err = root.DeclareModule("B", ast.NoNode, childTable)
	require.NoError(t, err)

	sym, err := symbol.ResolvePath(root, []string{"B", "c"})
	require.NoError(t, err)
	assert.Equal(t, "c", sym.Name)
}

func TestResolvePathOnNonModuleFails(t *testing.T) {
	root := symbol.NewTable(nil)
	_, err := root.Declare("x", symbol.Variable, ast.NoNode)
	require.NoError(t, err)

	_, err = symbol.ResolvePath(root, []string{"x", "y"})
	assert.Error(t, err)
}

func TestResolvePathUnresolvedIdentifier(t *testing.T) {
	root := symbol.NewTable(nil)
	_, err := symbol.ResolvePath(root, []string{"missing"})
	assert.Error(t, err)
}
