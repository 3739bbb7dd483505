// Package history implements the append-only DAG of atomic source changes,
// with undo/redo and complex-command grouping.
package history

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/upplang/upp/sourcecode"
)

// ChangeKind is the closed set of atomic change primitives.
type ChangeKind int

const (
	LineInsert ChangeKind = iota
	BlockInsert
	BlockMerge
	TextInsert
)

// Change is one atomic mutation of a sourcecode.Code. Exactly the fields
// relevant to Kind are meaningful; ApplyForwards selects direction, and
// reversing it performs the inverse operation.
type Change struct {
	Kind          ChangeKind
	ApplyForwards bool

	// LineInsert / BlockInsert
	Line sourcecode.LineIndex

	// BlockInsert: the block created on first apply, recorded for inversion.
	CreatedBlock sourcecode.BlockIndex

	// BlockMerge
	FromBlock      sourcecode.BlockIndex
	IntoBlock      sourcecode.BlockIndex
	IntoLineCount  int                  // into's line count before the merge
	FromParentLine sourcecode.LineIndex // where `from` lived before the merge

	// TextInsert
	TextIndex sourcecode.TextIndex
	Text      string
}

// NodeKind distinguishes plain change nodes from complex-command brackets.
type NodeKind int

const (
	Normal NodeKind = iota
	ComplexStart
	ComplexEnd
)

// Node is one entry in the history DAG.
type Node struct {
	Kind   NodeKind
	Change Change

	PrevChange int // parent node index, -1 for the root
	NextChange int // child chosen by the most recent redo, -1 if none
	AltChange  []int // sibling branches created by editing after undo

	ComplexPartner int // for ComplexStart/ComplexEnd, the matching bracket's index; -1 otherwise

	HasCursor bool
	Cursor    sourcecode.TextIndex

	// DebugID is a session-scoped identifier for correlating log lines to a
	// specific node, distinct from its stable slice index; never used as an
	// addressable index.
	DebugID uuid.UUID
}

// History is the undo/redo DAG rooted at node 0.
type History struct {
	code    *sourcecode.Code
	nodes   []Node
	current int

	complexLevel int
	complexStart int

	log *zap.Logger
}

// New creates a History over code, rooted at an empty sentinel node.
func New(code *sourcecode.Code, log *zap.Logger) *History {
	if log == nil {
		log = zap.NewNop()
	}
	h := &History{code: code, log: log}
	h.nodes = append(h.nodes, Node{PrevChange: -1, NextChange: -1, ComplexPartner: -1, DebugID: uuid.New()})
	h.current = 0
	return h
}

// Timestamp is an opaque history position.
type Timestamp struct {
	node int
}

// Now returns the current timestamp.
func (h *History) Now() Timestamp { return Timestamp{h.current} }

// InsertAndApply appends a new node after the current node, applies change
// forwards, and moves current to the new node. The previous current node's
// NextChange (if any) becomes an AltChange of the new node.
func (h *History) InsertAndApply(change Change) Timestamp {
	change.ApplyForwards = true
	ts := h.linkNewNode(change)
	h.apply(change)
	h.log.Debug("history: applied change", zap.Int("node", ts.node), zap.Int("kind", int(change.Kind)), zap.String("debug_id", h.nodes[ts.node].DebugID.String()))
	return ts
}

// linkNewNode appends a new Normal node for change after the current node
// and advances current to it, WITHOUT calling apply -- used by callers that
// must perform the underlying sourcecode mutation themselves first (to
// learn fields like CreatedBlock) before the Change value is final.
func (h *History) linkNewNode(change Change) Timestamp {
	newIdx := len(h.nodes)
	node := Node{Kind: Normal, Change: change, PrevChange: h.current, NextChange: -1, ComplexPartner: -1, DebugID: uuid.New()}

	cur := &h.nodes[h.current]
	if cur.NextChange >= 0 {
		node.AltChange = append(node.AltChange, cur.NextChange)
	}
	cur.NextChange = newIdx

	h.nodes = append(h.nodes, node)
	h.current = newIdx
	return Timestamp{newIdx}
}

// Undo applies the inverse of the current node's change and moves to its
// parent. If current is a ComplexEnd, it repeats until the matching
// ComplexStart, then performs one more step.
func (h *History) Undo() error {
	if h.current == 0 {
		return errors.New("history: nothing to undo")
	}
	if h.nodes[h.current].Kind == ComplexEnd {
		for h.nodes[h.current].Kind != ComplexStart {
			if err := h.undoOne(); err != nil {
				return err
			}
		}
		return h.undoOne()
	}
	return h.undoOne()
}

func (h *History) undoOne() error {
	node := h.nodes[h.current]
	// Kind only distinguishes where a complex-command bracket falls in the
	// chain; ComplexStart/ComplexEnd nodes are ordinary
	// change nodes that also happen to open/close a group, so their Change
	// is always real and must still be inverted here.
	inv := node.Change
	inv.ApplyForwards = !inv.ApplyForwards
	h.apply(inv)
	h.current = node.PrevChange
	return nil
}

// Redo moves to NextChange (if any) and applies it; a ComplexStart repeats
// until the matching end.
func (h *History) Redo() error {
	cur := h.nodes[h.current]
	if cur.NextChange < 0 {
		return errors.New("history: nothing to redo")
	}
	if err := h.redoOne(); err != nil {
		return err
	}
	if h.nodes[h.current].Kind == ComplexStart {
		for h.nodes[h.current].Kind != ComplexEnd {
			if err := h.redoOne(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *History) redoOne() error {
	cur := h.nodes[h.current]
	target := cur.NextChange
	node := h.nodes[target]
	fwd := node.Change
	fwd.ApplyForwards = true
	h.apply(fwd)
	h.current = target
	return nil
}

// StartComplexCommand begins (or nests into) a complex-command bracket.
// Reference counted; only the outermost Stop pairs the bracket nodes.
func (h *History) StartComplexCommand() {
	if h.complexLevel == 0 {
		h.complexStart = h.current
	}
	h.complexLevel++
}

// StopComplexCommand ends the outermost complex-command bracket. Zero- and
// one-length complex commands are elided: if no changes (or exactly one)
// were recorded since StartComplexCommand, no bracket nodes are inserted.
func (h *History) StopComplexCommand() error {
	if h.complexLevel == 0 {
		return errors.New("history: StopComplexCommand without matching Start")
	}
	h.complexLevel--
	if h.complexLevel > 0 {
		return nil
	}

	// Count the nodes recorded after complexStart, up to and including
	// current, walking PrevChange links (the path just recorded).
	count := 0
	for n := h.current; n != h.complexStart; n = h.nodes[n].PrevChange {
		count++
	}
	if count <= 1 {
		return nil
	}

	startNode := h.nodes[h.complexStart].NextChange
	endNode := h.current
	h.nodes[startNode].Kind = ComplexStart
	h.nodes[startNode].ComplexPartner = endNode
	h.nodes[endNode].Kind = ComplexEnd
	h.nodes[endNode].ComplexPartner = startNode

	// Alternative children are not allowed inside a complex command --
	// validated defensively.
	for n := startNode; n != endNode; n = h.nodes[n].NextChange {
		if len(h.nodes[n].AltChange) > 0 && n != startNode {
			return errors.Errorf("history: alt_change present inside complex command at node %d", n)
		}
	}
	return nil
}

// SetCursor records the user-visible cursor position at the current node.
func (h *History) SetCursor(idx sourcecode.TextIndex) {
	h.nodes[h.current].HasCursor = true
	h.nodes[h.current].Cursor = idx
}

// Cursor returns the cursor recorded at the current node, if any.
func (h *History) Cursor() (sourcecode.TextIndex, bool) {
	n := h.nodes[h.current]
	return n.Cursor, n.HasCursor
}

// ChangesBetween performs a breadth-first search over the DAG (edges
// treated as bidirectional: a forward traversal applies a child's change,
// a backward traversal inverts the node being left) and returns the
// minimal list of atomic changes that, applied in order to the snapshot at
// start, yields the source at end.
func (h *History) ChangesBetween(start, end Timestamp) []Change {
	if start.node == end.node {
		return nil
	}

	type step struct {
		node   int
		change Change // the change to apply when moving FROM the previous BFS node TO this one
	}

	parent := make(map[int]step)
	visited := map[int]bool{start.node: true}
	queue := []int{start.node}

	// Kind only marks where a complex-command bracket falls; every node but
	// the root sentinel carries a real Change, so every edge
	// below is a real step -- there are no pure no-op bracket nodes to skip.
	neighbors := func(n int) []step {
		var out []step
		node := h.nodes[n]
		if node.PrevChange >= 0 {
			inv := node.Change
			inv.ApplyForwards = !inv.ApplyForwards
			out = append(out, step{node: node.PrevChange, change: inv})
		}
		if node.NextChange >= 0 {
			child := h.nodes[node.NextChange]
			fwd := child.Change
			fwd.ApplyForwards = true
			out = append(out, step{node: node.NextChange, change: fwd})
		}
		// linkNewNode stores a displaced NextChange as an AltChange of the
		// newer sibling, so n's other children hang off its NextChange (and,
		// transitively, off each of those siblings), not off n itself.
		var alts []int
		if node.NextChange >= 0 {
			alts = append(alts, h.nodes[node.NextChange].AltChange...)
		}
		for i := 0; i < len(alts); i++ {
			alt := alts[i]
			alts = append(alts, h.nodes[alt].AltChange...)
			child := h.nodes[alt]
			fwd := child.Change
			fwd.ApplyForwards = true
			out = append(out, step{node: alt, change: fwd})
		}
		return out
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == end.node {
			break
		}
		for _, s := range neighbors(n) {
			if visited[s.node] {
				continue
			}
			visited[s.node] = true
			parent[s.node] = step{node: n, change: s.change}
			queue = append(queue, s.node)
		}
	}

	if !visited[end.node] {
		return nil
	}

	var rev []Change
	for n := end.node; n != start.node; {
		s, ok := parent[n]
		if !ok {
			break
		}
		rev = append(rev, s.change)
		n = s.node
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// apply performs change against the underlying source code, in the
// direction given by change.ApplyForwards.
func (h *History) apply(change Change) {
	switch change.Kind {
	case LineInsert:
		if change.ApplyForwards {
			h.code.InsertEmptyLine(change.Line)
		} else {
			h.code.RemoveLine(change.Line)
		}
	case BlockInsert:
		// The initial forward application happens inline in InsertBlock, which
		// allocates CreatedBlock and bypasses apply entirely; apply only ever
		// sees this change again on redo (forwards, revive the same block id)
		// or undo (backwards).
		if change.ApplyForwards {
			h.code.ReviveBlock(change.Line, change.CreatedBlock)
		} else {
			h.code.RemoveBlockRef(change.Line, change.CreatedBlock)
		}
	case BlockMerge:
		if change.ApplyForwards {
			_, _ = h.code.MergeBlocks(change.FromBlock, change.IntoBlock)
		} else {
			h.code.ReviveMergedBlock(change.IntoBlock, change.IntoLineCount,
				change.FromBlock, change.FromParentLine.Block, change.FromParentLine.Line)
		}
	case TextInsert:
		if change.ApplyForwards {
			h.code.InsertText(change.TextIndex, change.Text)
		} else {
			end := change.TextIndex.Char + len(change.Text)
			h.code.DeleteText(change.TextIndex, end)
		}
	}
}

// Apply performs change against the underlying source, in the direction
// given by change.ApplyForwards. Exposed so callers can replay a change
// list returned by ChangesBetween against another snapshot.
func (h *History) Apply(change Change) {
	h.apply(change)
}

// Insert{Line,Block,Text} are convenience constructors that build the
// Change value and immediately apply+record it, mirroring the editor's
// call pattern.

// InsertLine inserts an empty line at idx.
func (h *History) InsertLine(idx sourcecode.LineIndex) Timestamp {
	return h.InsertAndApply(Change{Kind: LineInsert, Line: idx})
}

// InsertBlock replaces the (empty) line at idx with a new child block.
func (h *History) InsertBlock(idx sourcecode.LineIndex) (sourcecode.BlockIndex, Timestamp, error) {
	created, err := h.code.InsertEmptyBlock(idx)
	if err != nil {
		return 0, Timestamp{}, err
	}
	ch := Change{Kind: BlockInsert, Line: idx, ApplyForwards: true, CreatedBlock: created}
	ts := h.linkNewNode(ch)
	return created, ts, nil
}

// MergeBlocksAndRecord merges from into into, recording enough of from's
// prior position (OriginalParent) to invert the change precisely later.
func (h *History) MergeBlocksAndRecord(from, into sourcecode.BlockIndex) (Timestamp, error) {
	parent, parentLine := h.code.OriginalParent(from)
	intoLineCount, err := h.code.MergeBlocks(from, into)
	if err != nil {
		return Timestamp{}, err
	}
	ch := Change{
		Kind:           BlockMerge,
		ApplyForwards:  true,
		FromBlock:      from,
		IntoBlock:      into,
		IntoLineCount:  intoLineCount,
		FromParentLine: sourcecode.LineIndex{Block: parent, Line: parentLine},
	}
	return h.linkNewNode(ch), nil
}

// InsertTextAt inserts text at index.
func (h *History) InsertTextAt(index sourcecode.TextIndex, text string) Timestamp {
	return h.InsertAndApply(Change{Kind: TextInsert, TextIndex: index, Text: text})
}

// Code returns the underlying source code model.
func (h *History) Code() *sourcecode.Code { return h.code }
