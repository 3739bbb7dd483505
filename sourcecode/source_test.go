package sourcecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upplang/upp/sourcecode"
	"github.com/upplang/upp/token"
)

func TestNewHasSingleRootLine(t *testing.T) {
	c := sourcecode.New(token.NewPool())
	require.NoError(t, c.CheckInvariants())
	assert.Equal(t, 1, c.LineCount(sourcecode.RootBlock))
}

func TestInsertAndRemoveLineRoundTrips(t *testing.T) {
	c := sourcecode.New(token.NewPool())
	idx := sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 0}
	c.InsertText(sourcecode.TextIndex{Line: idx, Char: 0}, "x := 1")
	assert.Equal(t, "x := 1", c.Text())

	c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1})
	assert.Equal(t, 2, c.LineCount(sourcecode.RootBlock))

	c.RemoveLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1})
	assert.Equal(t, "x := 1", c.Text())
	require.NoError(t, c.CheckInvariants())
}

func TestInsertEmptyBlockAndMergeRoundTrips(t *testing.T) {
	c := sourcecode.New(token.NewPool())
	root := sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 0}
	c.InsertText(sourcecode.TextIndex{Line: root, Char: 0}, "if true")
	c.InsertEmptyLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1})

	child, err := c.InsertEmptyBlock(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1})
	require.NoError(t, err)
	c.InsertText(sourcecode.TextIndex{Line: sourcecode.LineIndex{Block: child, Line: 0}, Char: 0}, "return 1")

	require.NoError(t, c.CheckInvariants())
	assert.Equal(t, "if true\nreturn 1", c.Text())

	before, err := c.MergeBlocks(child, sourcecode.RootBlock)
	require.NoError(t, err)
	assert.Equal(t, 2, before) // "if true" plus the block-reference line
	require.NoError(t, c.CheckInvariants())
	assert.Equal(t, "if true\nreturn 1", c.Text())
}

func TestRemoveLinePrunesEmptyAncestorBlocks(t *testing.T) {
	c := sourcecode.New(token.NewPool())
	child, err := c.InsertEmptyBlock(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 0})
	require.NoError(t, err)
	c.InsertText(sourcecode.TextIndex{Line: sourcecode.LineIndex{Block: child, Line: 0}, Char: 0}, "x")

	c.RemoveLine(sourcecode.LineIndex{Block: child, Line: 0})
	require.NoError(t, c.CheckInvariants())
	// root's only line was the block-reference; pruning empties the child,
	// which is spliced out of root, which in turn gets its mandatory blank
	// placeholder line.
	assert.Equal(t, "", c.Text())
	assert.Equal(t, 1, c.LineCount(sourcecode.RootBlock))
}

func TestTokeniseLineRefreshesCache(t *testing.T) {
	c := sourcecode.New(token.NewPool())
	idx := sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 0}
	c.InsertText(sourcecode.TextIndex{Line: idx, Char: 0}, "x := 1")
	toks := c.LineAt(idx).Tokens
	require.Len(t, toks, 3)
	assert.Equal(t, token.IDENTIFIER, toks[0].Kind)
}
