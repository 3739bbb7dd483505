// Package ast defines the Abstract Syntax Tree produced by the parser.
// Nodes live in a single per-compilation Arena; a node refers to its
// parent and children by NodeID, an index into that arena, never by
// pointer -- so a rollback that discards nodes never leaves a dangling
// parent pointer behind. Every node kind is a value of the closed Kind
// enumeration and is dispatched on with a switch; there are no per-kind
// methods or interfaces to satisfy.
package ast

import (
	"github.com/pkg/errors"

	"github.com/upplang/upp/sourcecode"
	"github.com/upplang/upp/token"
)

// NodeID indexes into an Arena. NoNode marks an absent optional child.
type NodeID int

const NoNode NodeID = -1

// Kind is the closed set of AST node variants.
type Kind int

const (
	KindModule Kind = iota
	KindDefinition
	KindCodeBlock

	KindStmtExpression
	KindStmtAssignment
	KindStmtIf
	KindStmtWhile
	KindStmtSwitch
	KindStmtDefer
	KindStmtBreak
	KindStmtContinue
	KindStmtReturn
	KindStmtDelete
	KindStmtDefinition

	KindExprBinop
	KindExprUnop
	KindExprCall
	KindExprMember
	KindExprIndex
	KindExprSymbolRead
	KindExprLiteral
	KindExprNew
	KindExprCast
	KindExprFunctionSignature
	KindExprFunction
	KindExprStruct
	KindExprUnion
	KindExprCUnion
	KindExprEnum
	KindExprArrayType
	KindExprSliceType
	KindExprModule
	KindExprStructInit
	KindExprArrayInit
	KindExprAutoEnum
	KindExprBakeExpr
	KindExprBakeBlock
	KindExprError

	KindParameter
	KindArgument
	KindEnumMember
	KindSwitchCase
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "Module"
	case KindDefinition:
		return "Definition"
	case KindCodeBlock:
		return "CodeBlock"
	case KindStmtExpression:
		return "StmtExpression"
	case KindStmtAssignment:
		return "StmtAssignment"
	case KindStmtIf:
		return "StmtIf"
	case KindStmtWhile:
		return "StmtWhile"
	case KindStmtSwitch:
		return "StmtSwitch"
	case KindStmtDefer:
		return "StmtDefer"
	case KindStmtBreak:
		return "StmtBreak"
	case KindStmtContinue:
		return "StmtContinue"
	case KindStmtReturn:
		return "StmtReturn"
	case KindStmtDelete:
		return "StmtDelete"
	case KindStmtDefinition:
		return "StmtDefinition"
	case KindExprBinop:
		return "ExprBinop"
	case KindExprUnop:
		return "ExprUnop"
	case KindExprCall:
		return "ExprCall"
	case KindExprMember:
		return "ExprMember"
	case KindExprIndex:
		return "ExprIndex"
	case KindExprSymbolRead:
		return "ExprSymbolRead"
	case KindExprLiteral:
		return "ExprLiteral"
	case KindExprNew:
		return "ExprNew"
	case KindExprCast:
		return "ExprCast"
	case KindExprFunctionSignature:
		return "ExprFunctionSignature"
	case KindExprFunction:
		return "ExprFunction"
	case KindExprStruct:
		return "ExprStruct"
	case KindExprUnion:
		return "ExprUnion"
	case KindExprCUnion:
		return "ExprCUnion"
	case KindExprEnum:
		return "ExprEnum"
	case KindExprArrayType:
		return "ExprArrayType"
	case KindExprSliceType:
		return "ExprSliceType"
	case KindExprModule:
		return "ExprModule"
	case KindExprStructInit:
		return "ExprStructInit"
	case KindExprArrayInit:
		return "ExprArrayInit"
	case KindExprAutoEnum:
		return "ExprAutoEnum"
	case KindExprBakeExpr:
		return "ExprBakeExpr"
	case KindExprBakeBlock:
		return "ExprBakeBlock"
	case KindExprError:
		return "ExprError"
	case KindParameter:
		return "Parameter"
	case KindArgument:
		return "Argument"
	case KindEnumMember:
		return "EnumMember"
	case KindSwitchCase:
		return "SwitchCase"
	default:
		return "Unknown"
	}
}

// TokenRange is an exclusive [Start, End) range over token_index values.
// End is exclusive: it names the token immediately past the range, which
// may be the zero token of the next line.
type TokenRange struct {
	Start sourcecode.TokenIndex
	End   sourcecode.TokenIndex
}

func before(a, b sourcecode.TokenIndex) bool {
	if a.Line.Block != b.Line.Block {
		return a.Line.Block < b.Line.Block
	}
	if a.Line.Line != b.Line.Line {
		return a.Line.Line < b.Line.Line
	}
	return a.Token < b.Token
}

// Union returns the smallest range containing both r and o.
func (r TokenRange) Union(o TokenRange) TokenRange {
	out := r
	if before(o.Start, out.Start) {
		out.Start = o.Start
	}
	if before(out.End, o.End) {
		out.End = o.End
	}
	return out
}

// IsZeroLength reports whether Start and End name the same token. Only the
// kinds allowsZeroLength whitelists may have a zero-length token range.
func (r TokenRange) IsZeroLength() bool {
	return r.Start == r.End
}

// Symbol is an opaque handle into a symbol table, attached to Definition
// and SymbolRead nodes once the analyser resolves them. The ast package
// never interprets it, which keeps ast free of a dependency on package
// symbol and avoids an ownership cycle between the two packages.
type Symbol int

const NoSymbol Symbol = -1

// ---- per-kind payloads -----------------------------------------------
//
// Node.Data holds exactly one of the structs below, selected by Node.Kind.
// Callers switch on Kind and type-assert Data; this keeps a closed set of
// node variants dispatched through a single tagged struct, without
// per-kind methods or an interface hierarchy.

type ModuleData struct {
	Definitions []NodeID
	Imports     []string
}

type DefinitionData struct {
	Name       string
	IsComptime bool
	TypeExpr   NodeID // NoNode if absent
	ValueExpr  NodeID // NoNode if absent
	Resolved   Symbol
}

type CodeBlockData struct {
	Statements []NodeID
	Label      string // "" if unlabelled
}

type StmtExpressionData struct{ Expr NodeID }

type StmtAssignmentData struct {
	Target   NodeID
	Operator token.Operator
	Value    NodeID
}

type StmtIfData struct {
	Condition NodeID
	Then      NodeID // CodeBlock
	Else      NodeID // CodeBlock, StmtIf (else-if), or NoNode
}

type StmtWhileData struct {
	Condition NodeID
	Body      NodeID // CodeBlock
}

type StmtSwitchData struct {
	Subject NodeID
	Cases   []NodeID // SwitchCase
}

type StmtDeferData struct{ Body NodeID } // CodeBlock or Expr statement

type StmtBreakData struct{ Label string } // "" if none

type StmtContinueData struct{ Label string }

type StmtReturnData struct{ Value NodeID } // NoNode if bare return

type StmtDeleteData struct{ Operand NodeID }

type StmtDefinitionData struct{ Definition NodeID }

type ExprBinopData struct {
	Left     NodeID
	Operator token.Operator
	Right    NodeID
}

type ExprUnopData struct {
	Operator token.Operator
	Operand  NodeID
}

type ExprCallData struct {
	Callee    NodeID
	Arguments []NodeID // Argument
}

type ExprMemberData struct {
	Receiver NodeID
	Name     string
}

type ExprIndexData struct {
	Receiver NodeID
	Index    NodeID
}

// ExprSymbolReadData is the flattened `A~B~c` path -- deviates from the
// source's linked list on purpose.
type ExprSymbolReadData struct {
	Path     []string
	Resolved Symbol
}

type ExprLiteralData struct{ Literal token.Literal }

type ExprNewData struct {
	Type  NodeID
	Count NodeID // NoNode for `new T`, set for `new[n] T`
}

// CastVariant distinguishes the three cast keywords.
type CastVariant int

const (
	CastNumeric CastVariant = iota
	CastPtr
	CastRaw
)

type ExprCastData struct {
	Variant CastVariant
	ToType  NodeID // NoNode when the target type is inferred
	Operand NodeID
}

type ExprFunctionSignatureData struct {
	Parameters []NodeID // Parameter
	Return     NodeID   // NoNode for void
}

type ExprFunctionData struct {
	Signature NodeID
	Body      NodeID // CodeBlock
}

// ExprStructData backs KindExprStruct, KindExprUnion and KindExprCUnion;
// Members holds Definition nodes for fields/variants.
type ExprStructData struct{ Members []NodeID }

type ExprEnumData struct{ Members []NodeID } // EnumMember

type ExprArrayTypeData struct {
	Size NodeID // expression, comptime-evaluated by the analyser
	Elem NodeID
}

type ExprSliceTypeData struct{ Elem NodeID }

type ExprModuleData struct{ Body NodeID } // CodeBlock of module-items

type ExprStructInitData struct {
	Type      NodeID   // NoNode for inferred-from-context
	Arguments []NodeID // Argument
}

type ExprArrayInitData struct {
	Type   NodeID
	Values []NodeID
}

type ExprAutoEnumData struct{ Name string }

type ExprBakeExprData struct{ Expr NodeID }

type ExprBakeBlockData struct{ Body NodeID } // CodeBlock

type ExprErrorData struct{}

type ParameterData struct {
	Name         string
	TypeExpr     NodeID
	IsComptime   bool // `$name` polymorphic/comptime parameter
	DefaultValue NodeID
}

type ArgumentData struct {
	Name  string // "" for positional
	Value NodeID
}

type EnumMemberData struct {
	Name  string
	Value NodeID // NoNode if auto-assigned
}

type SwitchCaseData struct {
	Values  []NodeID // empty for `default`
	Body    NodeID   // CodeBlock
	Default bool
}

// Node is one arena entry: the fields common to every kind, plus Data
// holding the kind-specific payload.
type Node struct {
	Kind     Kind
	Parent   NodeID
	Range    TokenRange
	Bounding TokenRange
	Data     any
}

// Arena owns every Node of one compilation; destroying the Arena destroys
// all of them.
type Arena struct {
	nodes []Node
}

func NewArena() *Arena {
	return &Arena{}
}

// New appends a node and returns its id.
func (a *Arena) New(kind Kind, parent NodeID, rng TokenRange, data any) NodeID {
	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, Node{Kind: kind, Parent: parent, Range: rng, Bounding: rng, Data: data})
	return id
}

// Node returns a pointer to the node at id, letting callers mutate Data or
// Bounding in place (e.g. during the correct_token_ranges pass).
func (a *Arena) Node(id NodeID) *Node {
	return &a.nodes[id]
}

// Len is the number of allocated nodes; used as a checkpoint mark.
func (a *Arena) Len() int {
	return len(a.nodes)
}

// Truncate discards every node allocated at or after mark, implementing
// the parser's rollback semantics: rollback destroys all AST nodes
// allocated after the checkpoint.
func (a *Arena) Truncate(mark int) {
	a.nodes = a.nodes[:mark]
}

// Children returns id's direct children, in source order, regardless of
// Kind -- the one place that switches on every variant so that generic
// walks (bounding-range correction, find_node_at, printers) don't have to.
func Children(a *Arena, id NodeID) []NodeID {
	n := a.Node(id)
	switch n.Kind {
	case KindModule:
		d := n.Data.(ModuleData)
		return d.Definitions
	case KindDefinition:
		d := n.Data.(DefinitionData)
		return compact(d.TypeExpr, d.ValueExpr)
	case KindCodeBlock:
		d := n.Data.(CodeBlockData)
		return d.Statements
	case KindStmtExpression:
		return compact(n.Data.(StmtExpressionData).Expr)
	case KindStmtAssignment:
		d := n.Data.(StmtAssignmentData)
		return compact(d.Target, d.Value)
	case KindStmtIf:
		d := n.Data.(StmtIfData)
		return compact(d.Condition, d.Then, d.Else)
	case KindStmtWhile:
		d := n.Data.(StmtWhileData)
		return compact(d.Condition, d.Body)
	case KindStmtSwitch:
		d := n.Data.(StmtSwitchData)
		return append(compact(d.Subject), d.Cases...)
	case KindStmtDefer:
		return compact(n.Data.(StmtDeferData).Body)
	case KindStmtReturn:
		return compact(n.Data.(StmtReturnData).Value)
	case KindStmtDelete:
		return compact(n.Data.(StmtDeleteData).Operand)
	case KindStmtDefinition:
		return compact(n.Data.(StmtDefinitionData).Definition)
	case KindExprBinop:
		d := n.Data.(ExprBinopData)
		return compact(d.Left, d.Right)
	case KindExprUnop:
		return compact(n.Data.(ExprUnopData).Operand)
	case KindExprCall:
		d := n.Data.(ExprCallData)
		return append(compact(d.Callee), d.Arguments...)
	case KindExprMember:
		return compact(n.Data.(ExprMemberData).Receiver)
	case KindExprIndex:
		d := n.Data.(ExprIndexData)
		return compact(d.Receiver, d.Index)
	case KindExprNew:
		d := n.Data.(ExprNewData)
		return compact(d.Type, d.Count)
	case KindExprCast:
		d := n.Data.(ExprCastData)
		return compact(d.ToType, d.Operand)
	case KindExprFunctionSignature:
		d := n.Data.(ExprFunctionSignatureData)
		return append(append([]NodeID{}, d.Parameters...), compact(d.Return)...)
	case KindExprFunction:
		d := n.Data.(ExprFunctionData)
		return compact(d.Signature, d.Body)
	case KindExprStruct, KindExprUnion, KindExprCUnion:
		return append([]NodeID{}, n.Data.(ExprStructData).Members...)
	case KindExprEnum:
		return append([]NodeID{}, n.Data.(ExprEnumData).Members...)
	case KindExprArrayType:
		d := n.Data.(ExprArrayTypeData)
		return compact(d.Size, d.Elem)
	case KindExprSliceType:
		return compact(n.Data.(ExprSliceTypeData).Elem)
	case KindExprModule:
		return compact(n.Data.(ExprModuleData).Body)
	case KindExprStructInit:
		d := n.Data.(ExprStructInitData)
		return append(compact(d.Type), d.Arguments...)
	case KindExprArrayInit:
		d := n.Data.(ExprArrayInitData)
		return append(compact(d.Type), d.Values...)
	case KindExprBakeExpr:
		return compact(n.Data.(ExprBakeExprData).Expr)
	case KindExprBakeBlock:
		return compact(n.Data.(ExprBakeBlockData).Body)
	case KindParameter:
		d := n.Data.(ParameterData)
		return compact(d.TypeExpr, d.DefaultValue)
	case KindArgument:
		return compact(n.Data.(ArgumentData).Value)
	case KindEnumMember:
		return compact(n.Data.(EnumMemberData).Value)
	case KindSwitchCase:
		d := n.Data.(SwitchCaseData)
		return append(append([]NodeID{}, d.Values...), d.Body)
	default:
		return nil
	}
}

func compact(ids ...NodeID) []NodeID {
	out := make([]NodeID, 0, len(ids))
	for _, id := range ids {
		if id != NoNode {
			out = append(out, id)
		}
	}
	return out
}

// allowsZeroLength reports the whitelisted zero-length node kinds.
func allowsZeroLength(k Kind) bool {
	switch k {
	case KindExprError, KindCodeBlock, KindExprSymbolRead:
		return true
	default:
		return false
	}
}

// CorrectTokenRanges is the parser's post-pass: it recomputes
// every node's Bounding range as the union of its own Range and every
// child's Bounding range (a post-order walk), sets each child's Parent to
// the node that lists it, then validates that only the whitelisted kinds
// carry a zero-length Range. Clamping a range that steps
// across a block boundary back to that block's markers is the parser's
// responsibility when it builds Range in the first place, since it only
// ever advances position within the block it is currently parsing.
func CorrectTokenRanges(a *Arena, root NodeID) error {
	var walk func(id NodeID) error
	walk = func(id NodeID) error {
		n := a.Node(id)
		bounding := n.Range
		for _, c := range Children(a, id) {
			a.Node(c).Parent = id
			if err := walk(c); err != nil {
				return err
			}
			bounding = bounding.Union(a.Node(c).Bounding)
		}
		n.Bounding = bounding
		if n.Range.IsZeroLength() && !allowsZeroLength(n.Kind) {
			return errors.Errorf("ast: node %d (%s) has a zero-length token range", id, n.Kind)
		}
		return nil
	}
	return walk(root)
}

// FindNodeAt returns the innermost descendant of root (inclusive) whose
// Range contains pos, or NoNode if pos falls outside root's Bounding range
// entirely.
func FindNodeAt(a *Arena, root NodeID, pos sourcecode.TokenIndex) NodeID {
	n := a.Node(root)
	if before(pos, n.Bounding.Start) || !before(pos, n.Bounding.End) {
		return NoNode
	}
	best := NoNode
	if !before(pos, n.Range.Start) && before(pos, n.Range.End) {
		best = root
	}
	for _, c := range Children(a, root) {
		if found := FindNodeAt(a, c, pos); found != NoNode {
			best = found
		}
	}
	return best
}
