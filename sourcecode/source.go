// Package sourcecode implements the block-structured, incrementally
// tokenised text model the rest of the compiler builds on.
package sourcecode

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/upplang/upp/lexer"
	"github.com/upplang/upp/token"
)

// BlockIndex identifies a block in the Code's block arena. Index 0 is
// always the root.
type BlockIndex int

// LineIndex pairs a block with an ordinal position inside it.
type LineIndex struct {
	Block BlockIndex
	Line  int
}

// TokenIndex pairs a line with a token ordinal.
type TokenIndex struct {
	Line  LineIndex
	Token int
}

// TextIndex pairs a line with a character offset.
type TextIndex struct {
	Line LineIndex
	Char int
}

// Line is either a text line or a block-reference line.
//
// IsBlockRef selects which payload is meaningful: Text/Tokens for a text
// line, ChildBlock for a block-reference line.
type Line struct {
	IsBlockRef bool

	Text   string
	Tokens []token.Token

	ChildBlock BlockIndex

	// Indentation is carried per-line per original_source/source_code.hpp's
	// Source_Line.indentation, independent of block nesting depth.
	Indentation int

	// IsComment and CommentBlockIndentation model a line that lies inside a
	// /* ... */ block comment. Nothing in this module sets them: block
	// comments are not detected, by this package or by the lexer.
	IsComment               bool
	CommentBlockIndentation int
}

// Block owns an ordered sequence of lines.
//
// DebugID is a session-scoped debug identifier, distinct from the stable
// integer BlockIndex: it exists only for correlating a particular block
// across its lifetime when debugging, never as an addressable index (`upp
// ast --dump` prints integer block indices, not this id).
type Block struct {
	Parent     BlockIndex
	ParentLine int // line ordinal within Parent that references this block; -1 for root
	Lines      []Line
	removed    bool

	DebugID uuid.UUID
}

// Code is the block-structured source-code model.
type Code struct {
	blocks []Block
	pool   *token.Pool
}

const RootBlock BlockIndex = 0

// New creates a Code with a single, empty root block.
func New(pool *token.Pool) *Code {
	c := &Code{pool: pool}
	c.blocks = append(c.blocks, Block{Parent: -1, ParentLine: -1, Lines: []Line{{Text: ""}}, DebugID: uuid.New()})
	return c
}

func (c *Code) Pool() *token.Pool { return c.pool }

func (c *Code) block(idx BlockIndex) *Block {
	return &c.blocks[idx]
}

// Block returns a read-only view of the block at idx.
func (c *Code) Block(idx BlockIndex) Block {
	return c.blocks[idx]
}

// LineAt returns the line at idx.
func (c *Code) LineAt(idx LineIndex) Line {
	return c.blocks[idx.Block].Lines[idx.Line]
}

// LineCount returns the number of lines in block.
func (c *Code) LineCount(block BlockIndex) int {
	return len(c.blocks[block].Lines)
}

// InsertEmptyLine inserts an empty text line at idx, shifting subsequent
// lines down.
func (c *Code) InsertEmptyLine(idx LineIndex) {
	b := c.block(idx.Block)
	b.Lines = append(b.Lines, Line{})
	copy(b.Lines[idx.Line+1:], b.Lines[idx.Line:])
	b.Lines[idx.Line] = Line{Text: ""}
}

// RemoveLine removes the line at idx and recursively prunes any ancestor
// block that becomes empty, except the root, which is kept non-empty by
// inserting a fresh empty line.
func (c *Code) RemoveLine(idx LineIndex) {
	b := c.block(idx.Block)
	b.Lines = append(b.Lines[:idx.Line], b.Lines[idx.Line+1:]...)
	c.pruneIfEmpty(idx.Block)
}

func (c *Code) pruneIfEmpty(block BlockIndex) {
	if block == RootBlock {
		b := c.block(RootBlock)
		if len(b.Lines) == 0 {
			b.Lines = append(b.Lines, Line{})
		}
		return
	}
	b := c.block(block)
	if len(b.Lines) > 0 || b.removed {
		return
	}
	parent := b.Parent
	parentLine := b.ParentLine
	b.removed = true

	pb := c.block(parent)
	pb.Lines = append(pb.Lines[:parentLine], pb.Lines[parentLine+1:]...)
	c.renumberParentLines(parent, parentLine)
	c.pruneIfEmpty(parent)
}

// renumberParentLines fixes up ParentLine/ChildBlock bookkeeping for blocks
// referenced by lines at or after removedAt in parent, after a line was
// spliced out.
func (c *Code) renumberParentLines(parent BlockIndex, removedAt int) {
	pb := c.block(parent)
	for i := removedAt; i < len(pb.Lines); i++ {
		if pb.Lines[i].IsBlockRef {
			c.block(pb.Lines[i].ChildBlock).ParentLine = i
		}
	}
}

// InsertEmptyBlock replaces the (must be empty text) line at idx with a
// block-reference line pointing at a freshly allocated child block.
func (c *Code) InsertEmptyBlock(idx LineIndex) (BlockIndex, error) {
	b := c.block(idx.Block)
	if idx.Line < 0 || idx.Line >= len(b.Lines) {
		return 0, errors.Errorf("sourcecode: line index %d out of range (block has %d lines)", idx.Line, len(b.Lines))
	}
	newIdx := BlockIndex(len(c.blocks))
	c.blocks = append(c.blocks, Block{Parent: idx.Block, ParentLine: idx.Line, Lines: []Line{{}}, DebugID: uuid.New()})

	b = c.block(idx.Block) // re-fetch: append above may have grown the slice header's backing array
	b.Lines[idx.Line] = Line{IsBlockRef: true, ChildBlock: newIdx}
	return newIdx, nil
}

// RemoveBlockRef replaces the block-reference line at idx with an empty
// text line and discards child, which must hold no lines of its own
// content beyond its own mandatory placeholder. This is the undo-side
// inverse of InsertEmptyBlock.
func (c *Code) RemoveBlockRef(idx LineIndex, child BlockIndex) {
	b := c.block(idx.Block)
	b.Lines[idx.Line] = Line{}
	cb := c.block(child)
	cb.removed = true
	cb.Lines = nil
}

// ReviveBlock restores a previously removed block at its original index as
// the child referenced by the block-reference line at idx, with a single
// empty placeholder line -- the state a BLOCK_INSERT change always leaves
// a block in at the moment it is created. This is the redo-side inverse of
// RemoveBlockRef.
func (c *Code) ReviveBlock(idx LineIndex, target BlockIndex) {
	tb := c.block(target)
	tb.removed = false
	tb.Parent = idx.Block
	tb.ParentLine = idx.Line
	tb.Lines = []Line{{}}

	b := c.block(idx.Block)
	b.Lines[idx.Line] = Line{IsBlockRef: true, ChildBlock: target}
}

// OriginalParent returns the (parent, parentLine) a block is currently
// attached at, so callers can record it before merging the block away
// (needed to invert a BLOCK_MERGE precisely, reviving the same block id at
// the same position it held beforehand).
func (c *Code) OriginalParent(block BlockIndex) (BlockIndex, int) {
	b := c.block(block)
	return b.Parent, b.ParentLine
}

// MergeBlocks appends all lines of from onto into and removes from.
// Returns the line count into had before the merge, needed to invert the
// change.
func (c *Code) MergeBlocks(from, into BlockIndex) (intoLineCountBefore int, err error) {
	fb := c.block(from)
	ib := c.block(into)
	intoLineCountBefore = len(ib.Lines)

	for _, line := range fb.Lines {
		if line.IsBlockRef {
			c.block(line.ChildBlock).Parent = into
			c.block(line.ChildBlock).ParentLine = len(ib.Lines)
		}
		ib.Lines = append(ib.Lines, line)
	}

	parent := fb.Parent
	parentLine := fb.ParentLine
	fb.removed = true
	fb.Lines = nil

	if parent >= 0 {
		pb := c.block(parent)
		pb.Lines = append(pb.Lines[:parentLine], pb.Lines[parentLine+1:]...)
		c.renumberParentLines(parent, parentLine)
	}
	c.renumberChildrenParentLine(into, intoLineCountBefore)
	return intoLineCountBefore, nil
}

func (c *Code) renumberChildrenParentLine(block BlockIndex, from int) {
	b := c.block(block)
	for i := from; i < len(b.Lines); i++ {
		if b.Lines[i].IsBlockRef {
			c.block(b.Lines[i].ChildBlock).ParentLine = i
		}
	}
}

// SplitBlock is the inverse of MergeBlocks: it moves all lines of block at
// or after at into a newly created block, leaving a block reference to the
// new block at index at in block.
func (c *Code) SplitBlock(block BlockIndex, at int) BlockIndex {
	b := c.block(block)
	tail := append([]Line(nil), b.Lines[at:]...)
	b.Lines = b.Lines[:at]

	newIdx := BlockIndex(len(c.blocks))
	c.blocks = append(c.blocks, Block{Parent: block, ParentLine: at, Lines: tail, DebugID: uuid.New()})
	for _, line := range tail {
		if line.IsBlockRef {
			c.block(line.ChildBlock).Parent = newIdx
		}
	}
	c.renumberChildrenParentLine(newIdx, 0)

	b = c.block(block)
	b.Lines = append(b.Lines, Line{IsBlockRef: true, ChildBlock: newIdx})
	return newIdx
}

// ReviveMergedBlock is the precise inverse of a single MergeBlocks call: it
// takes the tail of into's lines starting at intoLineCountBefore (exactly
// what that MergeBlocks call appended) and moves it back into the
// previously-removed block target, restoring target's original parent link
// (parent, parentLine) and reinstating its block-reference line there.
// Using the original block id (rather than allocating a fresh one, as the
// general-purpose SplitBlock does) keeps later history changes that
// reference target by id valid after undo.
func (c *Code) ReviveMergedBlock(into BlockIndex, intoLineCountBefore int, target, parent BlockIndex, parentLine int) {
	ib := c.block(into)
	tail := append([]Line(nil), ib.Lines[intoLineCountBefore:]...)
	ib.Lines = ib.Lines[:intoLineCountBefore]

	tb := c.block(target)
	tb.removed = false
	tb.Parent = parent
	tb.ParentLine = parentLine
	tb.Lines = tail
	for _, line := range tail {
		if line.IsBlockRef {
			c.block(line.ChildBlock).Parent = target
		}
	}
	c.renumberChildrenParentLine(target, 0)

	pb := c.block(parent)
	pb.Lines = append(pb.Lines, Line{})
	copy(pb.Lines[parentLine+1:], pb.Lines[parentLine:])
	pb.Lines[parentLine] = Line{IsBlockRef: true, ChildBlock: target}
	c.renumberParentLines(parent, parentLine+1)
}

// InsertText inserts text into the line at index.Line, at character offset
// index.Char. The line is re-tokenised.
func (c *Code) InsertText(index TextIndex, text string) {
	b := c.block(index.Line.Block)
	line := &b.Lines[index.Line.Line]
	line.Text = line.Text[:index.Char] + text + line.Text[index.Char:]
	c.TokeniseLine(index.Line)
}

// DeleteText removes the text in [index.Char, endChar) from the named line
// (the inverse of InsertText).
func (c *Code) DeleteText(index TextIndex, endChar int) string {
	b := c.block(index.Line.Block)
	line := &b.Lines[index.Line.Line]
	removed := line.Text[index.Char:endChar]
	line.Text = line.Text[:index.Char] + line.Text[endChar:]
	c.TokeniseLine(index.Line)
	return removed
}

// SetIndentation records the indentation depth of the text line at idx,
// independent of block nesting (see Line.Indentation).
func (c *Code) SetIndentation(idx LineIndex, indentation int) {
	c.block(idx.Block).Lines[idx.Line].Indentation = indentation
}

// TokeniseLine refreshes the token cache of the line at idx after a text
// change.
func (c *Code) TokeniseLine(idx LineIndex) {
	b := c.block(idx.Block)
	line := &b.Lines[idx.Line]
	if line.IsBlockRef {
		return
	}
	line.Tokens = lexer.Tokenise(line.Text, c.pool)
}

// CheckInvariants validates the block tree's structural invariants in
// debug builds; callers typically gate this behind a build flag or test
// helper.
func (c *Code) CheckInvariants() error {
	rootSeen := false
	for i := range c.blocks {
		b := &c.blocks[i]
		if b.removed {
			continue
		}
		if BlockIndex(i) == RootBlock {
			rootSeen = true
			if len(b.Lines) == 0 {
				return errors.New("sourcecode: root block is empty")
			}
		}
		for j := 0; j < len(b.Lines)-1; j++ {
			if b.Lines[j].IsBlockRef && b.Lines[j+1].IsBlockRef {
				return errors.Errorf("sourcecode: adjacent unmerged block-reference lines in block %d at %d,%d", i, j, j+1)
			}
		}
		for _, line := range b.Lines {
			if line.IsBlockRef {
				child := c.block(line.ChildBlock)
				if child.Parent != BlockIndex(i) {
					return errors.Errorf("sourcecode: block %d's child %d has wrong parent back-link", i, line.ChildBlock)
				}
			}
		}
	}
	if !rootSeen {
		return errors.New("sourcecode: root block missing")
	}
	return nil
}

// Text reassembles the full source text of the block tree, rooted at
// RootBlock, joining lines with '\n' and recursing into block-reference
// lines depth-first immediately after the referencing line (used for
// round-trip / serialisation tests).
func (c *Code) Text() string {
	var out []byte
	c.appendBlockText(RootBlock, &out)
	return string(out)
}

func (c *Code) appendBlockText(block BlockIndex, out *[]byte) {
	b := c.block(block)
	for _, line := range b.Lines {
		if len(*out) > 0 {
			*out = append(*out, '\n')
		}
		if line.IsBlockRef {
			c.appendBlockText(line.ChildBlock, out)
			continue
		}
		*out = append(*out, line.Text...)
	}
}
