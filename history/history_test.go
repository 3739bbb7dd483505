package history_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upplang/upp/history"
	"github.com/upplang/upp/sourcecode"
	"github.com/upplang/upp/token"
)

func newCode(t *testing.T) *sourcecode.Code {
	t.Helper()
	return sourcecode.New(token.NewPool())
}

// undo after an indent change that creates a block.
func TestUndoAfterBlockInsert(t *testing.T) {
	code := newCode(t)
	h := history.New(code, nil)

	root := sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 0}
	h.InsertTextAt(sourcecode.TextIndex{Line: root, Char: 0}, "x := 1")
	require.Equal(t, "x := 1", code.Text())

	require.NoError(t, code.CheckInvariants())

	// InsertBlock replaces an empty line, so the indent adds one below the
	// text first; the new line and the block form one complex command, which
	// a single Undo reverts as a whole.
	h.StartComplexCommand()
	h.InsertLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1})
	_, _, err := h.InsertBlock(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1})
	require.NoError(t, err)
	require.NoError(t, h.StopComplexCommand())
	require.NoError(t, code.CheckInvariants())
	assert.NotEqual(t, "x := 1", code.Text())

	require.NoError(t, h.Undo())
	assert.Equal(t, "x := 1", code.Text())
	require.NoError(t, code.CheckInvariants())
}

// a complex command groups multiple inserts; a single undo/redo affects
// the whole group.
func TestComplexCommandUndoRedo(t *testing.T) {
	code := newCode(t)
	h := history.New(code, nil)

	root := sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 0}
	h.InsertTextAt(sourcecode.TextIndex{Line: root, Char: 0}, "A")

	h.StartComplexCommand()
	h.InsertLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1})
	h.InsertTextAt(sourcecode.TextIndex{Line: sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 1}, Char: 0}, "B")
	h.InsertLine(sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 2})
	h.InsertTextAt(sourcecode.TextIndex{Line: sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 2}, Char: 0}, "C")
	require.NoError(t, h.StopComplexCommand())

	assert.Equal(t, "A\nB\nC", code.Text())

	require.NoError(t, h.Undo())
	assert.Equal(t, "A", code.Text())

	require.NoError(t, h.Redo())
	assert.Equal(t, "A\nB\nC", code.Text())
}

// changes-between across a branch created by editing after undo.
func TestChangesBetweenAcrossBranch(t *testing.T) {
	code := newCode(t)
	h := history.New(code, nil)
	t0 := h.Now()

	root := sourcecode.LineIndex{Block: sourcecode.RootBlock, Line: 0}
	h.InsertTextAt(sourcecode.TextIndex{Line: root, Char: 0}, "A") // e1
	h.InsertTextAt(sourcecode.TextIndex{Line: root, Char: 1}, "B") // e2
	require.NoError(t, h.Undo())                                  // undo e2
	h.InsertTextAt(sourcecode.TextIndex{Line: root, Char: 1}, "C") // e3, new branch

	assert.Equal(t, "AC", code.Text())

	tNow := h.Now()
	changes := h.ChangesBetween(t0, tNow)
	require.NotEmpty(t, changes)

	// Applying the change list to a fresh snapshot at t0 reproduces the
	// current text.
	replay := newCode(t)
	rh := history.New(replay, nil)
	for _, ch := range changes {
		rh.Apply(ch)
	}
	assert.Equal(t, code.Text(), replay.Text())
}

func TestUndoWithNothingToUndoErrors(t *testing.T) {
	code := newCode(t)
	h := history.New(code, nil)
	assert.Error(t, h.Undo())
}

func TestStopComplexWithoutStartErrors(t *testing.T) {
	code := newCode(t)
	h := history.New(code, nil)
	assert.Error(t, h.StopComplexCommand())
}
