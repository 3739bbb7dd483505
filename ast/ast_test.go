package ast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upplang/upp/ast"
	"github.com/upplang/upp/sourcecode"
	"github.com/upplang/upp/token"
)

func tok(line, t int) sourcecode.TokenIndex {
	return sourcecode.TokenIndex{Line: sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: line}, Token: t}
}

func rng(line, start, end int) ast.TokenRange {
	return ast.TokenRange{Start: tok(line, start), End: tok(line, end)}
}

// main :: () -> i32 \n return 0, modelled as a two-statement module.
func buildMiniModule(a *ast.Arena) ast.NodeID {
	lit := a.New(ast.KindExprLiteral, ast.NoNode, rng(1, 1, 2), ast.ExprLiteralData{
		Literal: token.Literal{Kind: token.LIT_INTEGER, Integer: 0},
	})
	ret := a.New(ast.KindStmtReturn, ast.NoNode, rng(1, 0, 2), ast.StmtReturnData{Value: lit})
	body := a.New(ast.KindCodeBlock, ast.NoNode, rng(1, 0, 0), ast.CodeBlockData{Statements: []ast.NodeID{ret}})
	sig := a.New(ast.KindExprFunctionSignature, ast.NoNode, rng(0, 2, 5), ast.ExprFunctionSignatureData{})
	fn := a.New(ast.KindExprFunction, ast.NoNode, rng(0, 2, 5), ast.ExprFunctionData{Signature: sig, Body: body})
	def := a.New(ast.KindDefinition, ast.NoNode, rng(0, 0, 5), ast.DefinitionData{
		Name: "main", IsComptime: true, ValueExpr: fn, TypeExpr: ast.NoNode,
	})
	mod := a.New(ast.KindModule, ast.NoNode, rng(0, 0, 1),ast.ModuleData{Definitions: []ast.NodeID{def}})
	return mod
}

func TestChildrenDispatchesAcrossKinds(t *testing.T) {
	a := ast.NewArena()
	mod := buildMiniModule(a)

	kids := ast.Children(a, mod)
	require.Len(t, kids, 1)
	def := kids[0]
	assert.Equal(t, ast.KindDefinition, a.Node(def).Kind)

	defKids := ast.Children(a, def)
	require.Len(t, defKids, 1) // TypeExpr is NoNode and filtered out
	assert.Equal(t, ast.KindExprFunction, a.Node(defKids[0]).Kind)
}

func TestCorrectTokenRangesComputesBoundingUnion(t *testing.T) {
	a := ast.NewArena()
	mod := buildMiniModule(a)

	require.NoError(t, ast.CorrectTokenRanges(a, mod))

	modBounding := a.Node(mod).Bounding
	assert.Equal(t, tok(0, 0), modBounding.Start)
	assert.Equal(t, tok(1, 2), modBounding.End)
}

func TestCorrectTokenRangesRejectsUnexpectedZeroLength(t *testing.T) {
	a := ast.NewArena()
	// A Definition (not in the zero-length whitelist) with an empty range.
	bad := a.New(ast.KindDefinition, ast.NoNode, rng(0, 0, 0), ast.DefinitionData{
		Name: "x", TypeExpr: ast.NoNode, ValueExpr: ast.NoNode,
	})
	assert.Error(t, ast.CorrectTokenRanges(a, bad))
}

func TestCorrectTokenRangesAllowsWhitelistedZeroLength(t *testing.T) {
	a := ast.NewArena()
	errNode := a.New(ast.KindExprError, ast.NoNode, rng(0, 0, 0), ast.ExprErrorData{})
	assert.NoError(t, ast.CorrectTokenRanges(a, errNode))
}

func TestFindNodeAtLocatesInnermostNode(t *testing.T) {
	a := ast.NewArena()
	mod := buildMiniModule(a)
	require.NoError(t, ast.CorrectTokenRanges(a, mod))

	found := ast.FindNodeAt(a, mod, tok(1, 1))
	require.NotEqual(t, ast.NoNode, found)
	assert.Equal(t, ast.KindExprLiteral, a.Node(found).Kind)

	outside := ast.FindNodeAt(a, mod, tok(5, 0))
	assert.Equal(t, ast.NoNode, outside)
}

func TestTruncateDropsNodesAllocatedAfterCheckpoint(t *testing.T) {
	a := ast.NewArena()
	a.New(ast.KindExprError, ast.NoNode, rng(0, 0, 0), ast.ExprErrorData{})
	mark := a.Len()
	a.New(ast.KindExprError, ast.NoNode, rng(0, 0, 0), ast.ExprErrorData{})
	a.New(ast.KindExprError, ast.NoNode, rng(0, 0, 0), ast.ExprErrorData{})
	assert.Equal(t, 3, a.Len())

	a.Truncate(mark)
	assert.Equal(t, mark, a.Len())
}
