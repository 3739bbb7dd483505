// Package compiler is the editor-facing façade: it wires sourcecode,
// history, parser, analyzer, ir, bytecode and vm together behind the
// handful of verbs an interactive editor actually needs (compile, execute,
// find-node-at, find-symbol-table-at, resolve-symbol, load/save), the way
// tsqlparser's root package wraps lexer+parser behind Parse/Tokenize.
package compiler

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/upplang/upp/analyzer"
	"github.com/upplang/upp/ast"
	"github.com/upplang/upp/bytecode"
	"github.com/upplang/upp/history"
	"github.com/upplang/upp/ir"
	"github.com/upplang/upp/parser"
	"github.com/upplang/upp/sourcecode"
	"github.com/upplang/upp/symbol"
	"github.com/upplang/upp/token"
	"github.com/upplang/upp/types"
	"github.com/upplang/upp/vm"
)

// Config configures a Compile call. Every field is optional; the zero
// value is a silent, single-threaded default, mirroring vm.Config.
type Config struct {
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// PredefinedNames is the fixed extern table's names, in a deterministic
// order, supplied to both Parse and Analyze so a symbol_read resolving to
// one of them never reports unresolved. Sorted so two compiles of the same
// source produce the same symbol declaration order.
func PredefinedNames() []string {
	names := make([]string, 0, len(vm.HardcodedFunctions))
	for name := range vm.HardcodedFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Severity classifies where in the pipeline a Diagnostic originated.
type Severity int

const (
	LexError Severity = iota
	ParseError
	SymbolError
	TypeError
	CycleError
)

func (s Severity) String() string {
	switch s {
	case LexError:
		return "LexError"
	case ParseError:
		return "ParseError"
	case SymbolError:
		return "SymbolError"
	case TypeError:
		return "TypeError"
	case CycleError:
		return "CycleError"
	default:
		return "Unknown"
	}
}

// Diagnostic is a uniform view over the three independent diagnostic
// sources (lexer, parser, analyser) a compile accumulates, so an editor
// can render them from one list instead of three differently-shaped ones.
type Diagnostic struct {
	Unit      string
	Severity  Severity
	Message   string
	Primary   ast.TokenRange
	Secondary []ast.TokenRange
}

// Unit is one compiled compilation unit: its editable source, its undo
// history, the parse/analysis results, and -- once a successful build --
// its bytecode. FindNodeAt/FindSymbolTableAt/ResolveSymbol all operate on
// a Unit returned by Compile.
type Unit struct {
	Name string

	Pool    *token.Pool
	Code    *sourcecode.Code
	History *history.History

	Interner *types.Interner
	Arena    *ast.Arena
	Root     ast.NodeID
	Analysis *analyzer.Result

	Diagnostics []Diagnostic

	// Program is non-nil only when shouldBuild was true and Diagnostics is
	// empty -- spec requires bytecode generation be skipped whenever any
	// error was accumulated upstream.
	Program *bytecode.Program
}

// Compile lexes, parses and analyses sourceText, then -- if shouldBuild and
// no error was accumulated -- lowers to IR and generates bytecode. It is
// the Go shape of the editor-facing compile(source_text, should_build) ->
// (errors, program) verb.
func Compile(unitName, sourceText string, shouldBuild bool, cfg Config) *Unit {
	cfg = cfg.withDefaults()

	pool := token.NewPool()
	code := BuildSource(sourceText, pool)
	hist := history.New(code, cfg.Logger)
	interner := types.NewInterner()
	predefined := PredefinedNames()

	arena, root, parseDiags := parser.Parse(code, predefined)
	result := analyzer.Analyze(arena, root, interner, predefined, nil)

	u := &Unit{
		Name:     unitName,
		Pool:     pool,
		Code:     code,
		History:  hist,
		Interner: interner,
		Arena:    arena,
		Root:     root,
		Analysis: result,
	}

	u.Diagnostics = append(u.Diagnostics, collectLexErrors(unitName, code)...)
	for _, d := range parseDiags {
		u.Diagnostics = append(u.Diagnostics, Diagnostic{Unit: unitName, Severity: ParseError, Message: d.Message, Primary: d.Range})
	}
	for _, d := range result.Diagnostics {
		u.Diagnostics = append(u.Diagnostics, Diagnostic{
			Unit:      unitName,
			Severity:  severityOf(d.Kind),
			Message:   d.Message,
			Primary:   d.Primary,
			Secondary: d.Secondary,
		})
	}

	if shouldBuild && len(u.Diagnostics) == 0 {
		u.Program = build(arena, result, interner, &u.Diagnostics, unitName)
	}
	return u
}

func severityOf(k analyzer.DiagnosticKind) Severity {
	switch k {
	case analyzer.SymbolError:
		return SymbolError
	case analyzer.TypeError:
		return TypeError
	case analyzer.CycleError:
		return CycleError
	default:
		return TypeError
	}
}

// build lowers to IR then generates bytecode, appending any errors from
// either stage to diags rather than returning them, since lowering/codegen
// errors join the same uniform Diagnostic list a caller already expects to
// check after Compile returns.
func build(arena *ast.Arena, result *analyzer.Result, interner *types.Interner, diags *[]Diagnostic, unitName string) *bytecode.Program {
	prog, irErrs := ir.Lower(arena, result, interner)
	for _, err := range irErrs {
		*diags = append(*diags, Diagnostic{Unit: unitName, Severity: TypeError, Message: err.Error()})
	}
	if len(irErrs) > 0 {
		return nil
	}

	bcProg, bcErrs := bytecode.Generate(prog, interner)
	for _, err := range bcErrs {
		*diags = append(*diags, Diagnostic{Unit: unitName, Severity: TypeError, Message: err.Error()})
	}
	if len(bcErrs) > 0 {
		return nil
	}
	return bcProg
}

// collectLexErrors walks every line reachable from the root block and
// surfaces each INVALID token as a Diagnostic. The lexer itself keeps
// these out of band as token payloads rather than a parallel error list,
// but an editor wants them in the same uniform list as everything else.
func collectLexErrors(unitName string, code *sourcecode.Code) []Diagnostic {
	var out []Diagnostic
	var walk func(block sourcecode.BlockIndex)
	walk = func(block sourcecode.BlockIndex) {
		for i := 0; i < code.LineCount(block); i++ {
			idx := sourcecode.LineIndex{Block: block, Line: i}
			line := code.LineAt(idx)
			if line.IsBlockRef {
				walk(line.ChildBlock)
				continue
			}
			for ti, tok := range line.Tokens {
				if tok.Kind != token.INVALID {
					continue
				}
				rng := ast.TokenRange{
					Start: sourcecode.TokenIndex{Line: idx, Token: ti},
					End:   sourcecode.TokenIndex{Line: idx, Token: ti + 1},
				}
				out = append(out, Diagnostic{
					Unit:     unitName,
					Severity: LexError,
					Message:  "upp: invalid token " + tok.Text,
					Primary:  rng,
				})
			}
		}
	}
	walk(sourcecode.RootBlock)
	return out
}

// Execute runs u.Program to completion. It is an error to call Execute on
// a Unit whose Program is nil (either Compile was called with
// shouldBuild=false, or the compile accumulated errors) -- a clean compile
// with errors present must never reach execution, and Execute enforces
// that at the boundary rather than trusting every caller to check first.
func Execute(u *Unit, cfg vm.Config) (vm.ExitCode, error) {
	if u.Program == nil {
		return vm.InternalError, errors.New("compiler: unit has no bytecode to execute (compile failed or was not asked to build)")
	}
	in := vm.New(u.Program, u.Interner, cfg)
	return in.Run()
}

// FindNodeAt returns the innermost AST node covering pos, or ast.NoNode if
// pos falls outside the compiled tree entirely.
func FindNodeAt(u *Unit, pos sourcecode.TextIndex) ast.NodeID {
	return ast.FindNodeAt(u.Arena, u.Root, tokenIndexAt(u.Code, pos))
}

// tokenIndexAt converts a character-offset TextIndex into the token-ordinal
// TokenIndex the AST's ranges are expressed in, mapping a position past
// the last token on the line to one-past-the-end (matching TokenRange.End
// semantics).
func tokenIndexAt(code *sourcecode.Code, pos sourcecode.TextIndex) sourcecode.TokenIndex {
	line := code.LineAt(pos.Line)
	for i, tok := range line.Tokens {
		if pos.Char >= tok.StartChar && pos.Char < tok.EndChar {
			return sourcecode.TokenIndex{Line: pos.Line, Token: i}
		}
	}
	return sourcecode.TokenIndex{Line: pos.Line, Token: len(line.Tokens)}
}

// FindSymbolTableAt returns the innermost scope (module or code block)
// enclosing pos, walking the AST's parent chain from the node at pos up to
// the nearest ancestor analyzer.Result.Scopes has an entry for.
func FindSymbolTableAt(u *Unit, pos sourcecode.TextIndex) *symbol.Table {
	node := FindNodeAt(u, pos)
	for node != ast.NoNode {
		if t, ok := u.Analysis.Scopes[node]; ok {
			return t
		}
		node = u.Arena.Node(node).Parent
	}
	return u.Analysis.RootTable
}

// ResolveSymbol resolves a symbol_read's flattened path against scope,
// returning nil if any segment is unresolved -- the editor-facing verb
// behind jump-to-definition and hover.
func ResolveSymbol(scope *symbol.Table, read ast.ExprSymbolReadData) *symbol.Symbol {
	sym, err := symbol.ResolvePath(scope, read.Path)
	if err != nil {
		return nil
	}
	return sym
}
