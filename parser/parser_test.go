package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upplang/upp/ast"
	"github.com/upplang/upp/parser"
	"github.com/upplang/upp/sourcecode"
	"github.com/upplang/upp/token"
)

// newCode builds a sourcecode.Code from plain lines at the root block, the
// way an editor would feed in freshly typed text one InsertText call at a
// time (mirrors sourcecode_test.go's construction style).
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

// withFollowBlock replaces the line at idx with a block reference whose
// child block holds bodyLines, returning the new child block index.
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

// TestParseTrivialFunction lexes and parses a trivial function
// `main :: () -> i32` with a `return 0` body.
func TestParseTrivialFunction(t *testing.T) {
	c := newCode(t, "main :: () -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, "return 0")
	// Drop the now-superseded blank line the InsertEmptyBlock call consumed
	// in place (InsertEmptyBlock only works on an existing line index, so
	// "" at line 1 became the block reference in place).

	arena, mod, diags := parser.Parse(c, nil)
	require.Empty(t, diags)

	modNode := arena.Node(mod)
	require.Equal(t, ast.KindModule, modNode.Kind)
	modData := modNode.Data.(ast.ModuleData)
	require.Len(t, modData.Definitions, 1)

	def := arena.Node(modData.Definitions[0])
	defData := def.Data.(ast.DefinitionData)
	assert.Equal(t, "main", defData.Name)
	assert.True(t, defData.IsComptime)
	require.NotEqual(t, ast.NoNode, defData.ValueExpr)

	fn := arena.Node(defData.ValueExpr)
	require.Equal(t, ast.KindExprFunction, fn.Kind)
	fnData := fn.Data.(ast.ExprFunctionData)

	sig := arena.Node(fnData.Signature)
	require.Equal(t, ast.KindExprFunctionSignature, sig.Kind)
	sigData := sig.Data.(ast.ExprFunctionSignatureData)
	assert.Empty(t, sigData.Parameters)
	require.NotEqual(t, ast.NoNode, sigData.Return)
	retType := arena.Node(sigData.Return).Data.(ast.ExprSymbolReadData)
	assert.Equal(t, []string{"i32"}, retType.Path)

	body := arena.Node(fnData.Body)
	require.Equal(t, ast.KindCodeBlock, body.Kind)
	bodyData := body.Data.(ast.CodeBlockData)
	require.Len(t, bodyData.Statements, 1)

	ret := arena.Node(bodyData.Statements[0])
	require.Equal(t, ast.KindStmtReturn, ret.Kind)
	retData := ret.Data.(ast.StmtReturnData)
	require.NotEqual(t, ast.NoNode, retData.Value)
	lit := arena.Node(retData.Value).Data.(ast.ExprLiteralData)
	assert.Equal(t, token.LIT_INTEGER, lit.Literal.Kind)
	assert.EqualValues(t, 0, lit.Literal.Integer)
}

// TestParseBinopPrecedenceMatchesGrammar checks the language's precedence
// ordering: `a || b && c` binds '||' tighter than '&&' -- the reverse of
// the common convention, reproduced exactly as the grammar defines it.
func TestParseBinopPrecedenceMatchesGrammar(t *testing.T) {
	c := newCode(t, "x := a || b && c")
	arena, mod, diags := parser.Parse(c, nil)
	require.Empty(t, diags)

	modData := arena.Node(mod).Data.(ast.ModuleData)
	def := arena.Node(modData.Definitions[0]).Data.(ast.DefinitionData)

	top := arena.Node(def.ValueExpr)
	require.Equal(t, ast.KindExprBinop, top.Kind)
	topData := top.Data.(ast.ExprBinopData)
	assert.Equal(t, token.AND_AND, topData.Operator)

	left := arena.Node(topData.Left)
	require.Equal(t, ast.KindExprBinop, left.Kind)
	assert.Equal(t, token.OR_OR, left.Data.(ast.ExprBinopData).Operator)
}

func TestParseIfElse(t *testing.T) {
	c := newCode(t, "main :: () -> i32", "")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1},
		"if x > 0",
		"",
		"else",
		"",
	)
	// Attach follow blocks to the if/else lines within the function body.
	bodyBlock := sourcecode.BlockIndex(1)
	withFollowBlock(t, c, sourcecode.LineIndex{Block: bodyBlock, Line: 1}, "return 1")
	withFollowBlock(t, c, sourcecode.LineIndex{Block: bodyBlock, Line: 3}, "return 0")

	arena, mod, diags := parser.Parse(c, nil)
	require.Empty(t, diags)

	modData := arena.Node(mod).Data.(ast.ModuleData)
	def := arena.Node(modData.Definitions[0]).Data.(ast.DefinitionData)
	fn := arena.Node(def.ValueExpr).Data.(ast.ExprFunctionData)
	body := arena.Node(fn.Body).Data.(ast.CodeBlockData)
	require.Len(t, body.Statements, 1)

	ifNode := arena.Node(body.Statements[0])
	require.Equal(t, ast.KindStmtIf, ifNode.Kind)
	ifData := ifNode.Data.(ast.StmtIfData)
	require.NotEqual(t, ast.NoNode, ifData.Then)
	require.NotEqual(t, ast.NoNode, ifData.Else)

	cond := arena.Node(ifData.Condition)
	require.Equal(t, ast.KindExprBinop, cond.Kind)
	assert.Equal(t, token.GT, cond.Data.(ast.ExprBinopData).Operator)
}

func TestParseUnterminatedCallRecovers(t *testing.T) {
	c := newCode(t, "x := f(1, 2")
	arena, mod, diags := parser.Parse(c, nil)
	require.NotEmpty(t, diags)

	modData := arena.Node(mod).Data.(ast.ModuleData)
	require.Len(t, modData.Definitions, 1)
	def := arena.Node(modData.Definitions[0]).Data.(ast.DefinitionData)
	call := arena.Node(def.ValueExpr).Data.(ast.ExprCallData)
	assert.Len(t, call.Arguments, 2)
}

func TestCorrectTokenRangesRunsAfterParse(t *testing.T) {
	c := newCode(t, "x := 1")
	arena, mod, diags := parser.Parse(c, nil)
	require.Empty(t, diags)
	bounding := arena.Node(mod).Bounding
	assert.Equal(t, sourcecode.TokenIndex{Line: sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 0}, Token: 0}, bounding.Start)
}
