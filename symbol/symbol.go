// Package symbol implements the scoped symbol tables produced by the
// analyser.
package symbol

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/upplang/upp/ast"
)

// Kind is the closed set of symbol kinds.
type Kind int

const (
	HardcodedFunction Kind = iota
	Function
	Module
	Type
	Variable
	ComptimeValue
	Parameter
	Global
	PolymorphicValue
	PolymorphicFunction
	Alias
	Error
	Unfinished
)

func (k Kind) String() string {
	switch k {
	case HardcodedFunction:
		return "HardcodedFunction"
	case Function:
		return "Function"
	case Module:
		return "Module"
	case Type:
		return "Type"
	case Variable:
		return "Variable"
	case ComptimeValue:
		return "ComptimeValue"
	case Parameter:
		return "Parameter"
	case Global:
		return "Global"
	case PolymorphicValue:
		return "PolymorphicValue"
	case PolymorphicFunction:
		return "PolymorphicFunction"
	case Alias:
		return "Alias"
	case Error:
		return "Error"
	case Unfinished:
		return "Unfinished"
	default:
		return "Unknown"
	}
}

// ID identifies a Symbol within a Table's owning arena-like store. It is
// what ast.Symbol / ast.DefinitionData.Resolved actually holds once an
// analyser attaches it.
type ID int

const NoID ID = -1

// Symbol is one entry: a name bound in some Table, with a kind, the AST
// node that defines it (NoNode for built-ins), and -- for MODULE symbols
// -- the child Table it opens.
type Symbol struct {
	Name       string
	Kind       Kind
	Definition ast.NodeID
	ChildTable *Table // non-nil only when Kind == Module
}

// Table is one lexical scope: module, code block, or nested block. Tables
// form a tree mirroring scope nesting via Parent.
type Table struct {
	Parent  *Table
	symbols map[string]*Symbol
	order   []string // insertion order, for deterministic iteration/errors
}

func NewTable(parent *Table) *Table {
	return &Table{Parent: parent, symbols: make(map[string]*Symbol)}
}

// Declare binds name to a new Symbol in this table. It is a symbol error
// to declare a name already present in this exact table; shadowing an
// outer table's symbol is fine.
func (t *Table) Declare(name string, kind Kind, def ast.NodeID) (*Symbol, error) {
	if _, exists := t.symbols[name]; exists {
		return nil, errors.Errorf("symbol: %q redefined in the same scope", name)
	}
	sym := &Symbol{Name: name, Kind: kind, Definition: def}
	t.symbols[name] = sym
	t.order = append(t.order, name)
	return sym, nil
}

// DeclareModule is Declare specialised for MODULE symbols, which additionally
// carry the child table that a path lookup continues into.
func (t *Table) DeclareModule(name string, def ast.NodeID, child *Table) (*Symbol, error) {
	sym, err := t.Declare(name, Module, def)
	if err != nil {
		return nil, err
	}
	sym.ChildTable = child
	return sym, nil
}

// LookupLocal returns the symbol bound to name in this table only (no
// parent fallback).
func (t *Table) LookupLocal(name string) (*Symbol, bool) {
	s, ok := t.symbols[name]
	return s, ok
}

// Lookup resolves name in this table, falling back to Parent until the
// root: a terminal read returns the symbol in the current scope's visible
// set, with parent-scope fallback until root.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	for tbl := t; tbl != nil; tbl = tbl.Parent {
		if s, ok := tbl.symbols[name]; ok {
			return s, true
		}
	}
	return nil, false
}

// Symbols returns this table's own symbols in declaration order.
func (t *Table) Symbols() []*Symbol {
	out := make([]*Symbol, len(t.order))
	for i, name := range t.order {
		out[i] = t.symbols[name]
	}
	return out
}

// ResolvePath resolves a flattened `A~B~c` path (ast.ExprSymbolReadData.Path)
// starting from scope: the first segment is looked up with parent fallback,
// every subsequent segment requires the previous symbol to be a MODULE and
// continues in its ChildTable.
func ResolvePath(scope *Table, path []string) (*Symbol, error) {
	if len(path) == 0 {
		return nil, errors.New("symbol: empty path")
	}
	sym, ok := scope.Lookup(path[0])
	if !ok {
		return nil, errors.Errorf("symbol: unresolved identifier %q", path[0])
	}
	for _, segment := range path[1:] {
		if sym.Kind != Module {
			return nil, errors.Errorf("symbol: %q is not a module, cannot look up %q on it", sym.Name, segment)
		}
		next, ok := sym.ChildTable.LookupLocal(segment)
		if !ok {
			return nil, errors.Errorf("symbol: module %q has no member %q", sym.Name, segment)
		}
		sym = next
	}
	return sym, nil
}

// PathString renders a flattened path the way the language spells it.
func PathString(path []string) string {
	return strings.Join(path, "~")
}
