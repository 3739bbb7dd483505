// Package analyzer implements the semantic analyser: name resolution, type
// checking, struct/union/enum layout, and comptime evaluation scheduling
// over the AST the parser produces.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/upplang/upp/ast"
	"github.com/upplang/upp/symbol"
	"github.com/upplang/upp/token"
	"github.com/upplang/upp/types"
)

// DiagnosticKind classifies an analyser diagnostic; lexer and parser
// errors are produced by their own packages.
type DiagnosticKind int

const (
	SymbolError DiagnosticKind = iota
	TypeError
	CycleError
)

func (k DiagnosticKind) String() string {
	switch k {
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

// Diagnostic is one accumulated analysis error: a kind, primary range,
// optional secondary ranges, and a formatted message. Unit is a field for
// the compilation unit (module/file) name; Analyze leaves it empty
// (compiler.Diagnostic carries the unit name).
type Diagnostic struct {
	Unit      string
	Kind      DiagnosticKind
	Primary   ast.TokenRange
	Secondary []ast.TokenRange
	Message   string
}

// Evaluator executes a comptime expression and folds it to a literal value.
// The analyser calls it for `::` definitions and `#bake` expressions/blocks.
// ConstFolder below, a literal-arithmetic evaluator, is the default when
// Analyze is called with a nil Evaluator. The compiler package passes nil,
// so comptime evaluation in a compile is done by ConstFolder and does not
// run the bytecode generator or VM.
type Evaluator interface {
	EvalComptime(a *ast.Arena, expr ast.NodeID, exprType types.ID, interner *types.Interner) (token.Literal, error)
}

// Result is everything the analyser produces for one compilation unit. The
// compiler and bytecode generator consume it; the ast package itself never
// interprets ast.Symbol, so Result.Symbols is where that index resolves --
// the same reasoning that keeps ast free of a symbol-package dependency in
// the first place (see ast.Symbol's doc comment).
type Result struct {
	Types           map[ast.NodeID]types.ID
	Scopes          map[ast.NodeID]*symbol.Table // Module/CodeBlock -> its table
	Symbols         []*symbol.Symbol             // indexed by ast.Symbol
	FoldedLiterals  map[ast.NodeID]token.Literal  // ExprBakeExpr/ExprBakeBlock -> folded value
	RootTable       *symbol.Table
	Diagnostics     []Diagnostic
}

// Symbol dereferences an ast.Symbol handle, or nil for ast.NoSymbol.
func (r *Result) Symbol(id ast.Symbol) *symbol.Symbol {
	if id == ast.NoSymbol {
		return nil
	}
	return r.Symbols[id]
}

// Analyze runs the three-phase pipeline (collect, schedule, analyse) over
// the module at root and returns the accumulated Result. predefined names
// the hardcoded extern functions; eval may be nil, in which case
// ConstFolder is used.
func Analyze(arena *ast.Arena, root ast.NodeID, interner *types.Interner, predefined []string, eval Evaluator) *Result {
	if eval == nil {
		eval = ConstFolder{}
	}
	az := &Analyzer{
		arena:        arena,
		interner:     interner,
		eval:         eval,
		builtinTypes: make(map[*symbol.Symbol]types.ID),
		res: &Result{
			Types:          make(map[ast.NodeID]types.ID),
			Scopes:         make(map[ast.NodeID]*symbol.Table),
			FoldedLiterals: make(map[ast.NodeID]token.Literal),
		},
	}
	rootTable := symbol.NewTable(nil)
	az.res.RootTable = rootTable
	az.res.Scopes[root] = rootTable
	for _, name := range predefined {
		az.declareHardcoded(rootTable, name)
	}
	az.analyzeModule(root, rootTable)
	return az.res
}

// Analyzer is the (unexported) engine; Result is its public output.
type Analyzer struct {
	arena    *ast.Arena
	interner *types.Interner
	eval     Evaluator
	res      *Result

	// builtinTypes carries function types for HardcodedFunction symbols,
	// which have no Definition AST node to key Result.Types by.
	builtinTypes map[*symbol.Symbol]types.ID
}

func (az *Analyzer) internSymbol(s *symbol.Symbol) ast.Symbol {
	az.res.Symbols = append(az.res.Symbols, s)
	return ast.Symbol(len(az.res.Symbols) - 1)
}

func (az *Analyzer) errorSymbol(node ast.NodeID, msg string) {
	az.res.Diagnostics = append(az.res.Diagnostics, Diagnostic{
		Kind:    SymbolError,
		Primary: az.arena.Node(node).Range,
		Message: msg,
	})
}

func (az *Analyzer) errorType(node ast.NodeID, msg string) {
	az.res.Diagnostics = append(az.res.Diagnostics, Diagnostic{
		Kind:    TypeError,
		Primary: az.arena.Node(node).Range,
		Message: msg,
	})
}

func (az *Analyzer) errorTypeWithSecondary(node ast.NodeID, secondary ast.TokenRange, msg string) {
	az.res.Diagnostics = append(az.res.Diagnostics, Diagnostic{
		Kind:      TypeError,
		Primary:   az.arena.Node(node).Range,
		Secondary: []ast.TokenRange{secondary},
		Message:   msg,
	})
}

// declareHardcoded binds one of the fixed extern names. Unrecognised
// names still get a symbol (so ordinary parsing/analysis that
// references them doesn't spuriously fail) but with a no-argument, void
// signature.
func (az *Analyzer) declareHardcoded(table *symbol.Table, name string) {
	i32 := az.interner.Primitive(types.I32)
	f32 := az.interner.Primitive(types.F32)
	b := az.interner.Primitive(types.Bool)
	v := az.interner.Primitive(types.Void)
	str := az.interner.Slice(az.interner.Primitive(types.U8))
	ptr := az.interner.Pointer(v)

	var params []types.ID
	ret := v
	switch name {
	case "print_i32":
		params = []types.ID{i32}
	case "print_f32":
		params = []types.ID{f32}
	case "print_bool":
		params = []types.ID{b}
	case "print_string":
		params = []types.ID{str}
	case "print_line":
	case "read_i32":
		ret = i32
	case "read_f32":
		ret = f32
	case "read_bool":
		ret = b
	case "random_i32":
		ret = i32
	case "malloc_size_i32":
		params = []types.ID{i32}
		ret = ptr
	case "free_pointer":
		params = []types.ID{ptr}
	}
	sym, err := table.Declare(name, symbol.HardcodedFunction, ast.NoNode)
	if err != nil {
		return
	}
	az.builtinTypes[sym] = az.interner.NewFunction(params, ret)
}

// ---- collect / schedule / analyse --------------------------------------

// item is one dependency-graph node: a top-level (or module-member)
// definition plus the set of sibling names its declaration references.
type item struct {
	name string
	def  ast.NodeID
	deps map[string]bool
}

func (az *Analyzer) analyzeModule(moduleNode ast.NodeID, table *symbol.Table) {
	modData := az.arena.Node(moduleNode).Data.(ast.ModuleData)
	az.analyzeDefinitionSet(modData.Definitions, table)
	az.res.Types[moduleNode] = az.interner.Primitive(types.Void)
}

// analyzeDefinitionSet runs the collect/schedule/analyse pipeline over one
// set of sibling definitions (the root module's, or a nested module's).
func (az *Analyzer) analyzeDefinitionSet(defs []ast.NodeID, table *symbol.Table) {
	items := make([]*item, 0, len(defs))
	byName := make(map[string]*item, len(defs))

	for _, defID := range defs {
		d := az.arena.Node(defID).Data.(ast.DefinitionData)
		if _, err := table.Declare(d.Name, symbol.Unfinished, defID); err != nil {
			az.errorSymbol(defID, err.Error())
			continue
		}
		it := &item{name: d.Name, def: defID, deps: make(map[string]bool)}
		az.collectFreeNames(d.TypeExpr, it.deps)
		az.collectFreeNames(d.ValueExpr, it.deps)
		delete(it.deps, d.Name)
		items = append(items, it)
		byName[d.Name] = it
	}

	for _, it := range az.schedule(items, byName) {
		az.analyzeDefinition(it.def, table)
	}
}

// collectFreeNames walks node's subtree collecting the first path segment
// of every symbol read, conservatively over-approximating the free-name
// set a top-level definition depends on. Names bound
// by local variables or parameters inside a nested function body are
// collected too; this only matters if such a name coincides with another
// sibling definition's name, which would over-serialise two genuinely
// independent definitions -- a conservative, not incorrect, approximation.
func (az *Analyzer) collectFreeNames(node ast.NodeID, out map[string]bool) {
	if node == ast.NoNode {
		return
	}
	n := az.arena.Node(node)
	if n.Kind == ast.KindExprSymbolRead {
		if d, ok := n.Data.(ast.ExprSymbolReadData); ok && len(d.Path) > 0 {
			out[d.Path[0]] = true
		}
	}
	for _, c := range ast.Children(az.arena, node) {
		az.collectFreeNames(c, out)
	}
}

// schedule performs Kahn's algorithm in stages (in-degree counters
// decremented as each stage's items are marked visited), grounded on
// connerohnesorge-spectr's task scheduler (internal/ralph/graph.go
// kahnTopologicalSort) rather than a recursive DFS visit: nodes with zero
// unresolved dependencies are visited first, and visiting one decrements
// each dependent's counter. Items left over after the loop stalls form a
// cycle, reported via reportCycle and still analysed best-effort (in
// their declared order) so that unrelated errors elsewhere in the cycle
// aren't silently dropped.
func (az *Analyzer) schedule(items []*item, byName map[string]*item) []*item {
	inDegree := make(map[string]int, len(items))
	dependents := make(map[string][]string)
	for _, it := range items {
		for dep := range it.deps {
			if _, ok := byName[dep]; !ok {
				continue // not a sibling definition: builtin, primitive, or forward-unresolved
			}
			inDegree[it.name]++
			dependents[dep] = append(dependents[dep], it.name)
		}
	}

	var order []*item
	visited := make(map[string]bool, len(items))
	for len(visited) < len(items) {
		var stage []*item
		for _, it := range items {
			if !visited[it.name] && inDegree[it.name] == 0 {
				stage = append(stage, it)
			}
		}
		if len(stage) == 0 {
			break
		}
		for _, it := range stage {
			visited[it.name] = true
			order = append(order, it)
			for _, dependent := range dependents[it.name] {
				inDegree[dependent]--
			}
		}
	}
	if len(visited) < len(items) {
		var cyclic []*item
		for _, it := range items {
			if !visited[it.name] {
				cyclic = append(cyclic, it)
			}
		}
		az.reportCycle(cyclic)
		order = append(order, cyclic...)
	}
	return order
}

func (az *Analyzer) reportCycle(items []*item) {
	if len(items) == 0 {
		return
	}
	names := make([]string, len(items))
	secondary := make([]ast.TokenRange, len(items))
	for i, it := range items {
		names[i] = it.name
		secondary[i] = az.arena.Node(it.def).Range
	}
	az.res.Diagnostics = append(az.res.Diagnostics, Diagnostic{
		Kind:      CycleError,
		Primary:   secondary[0],
		Secondary: secondary,
		Message:   fmt.Sprintf("cyclic dependency among: %s", strings.Join(names, ", ")),
	})
}

// ---- definitions --------------------------------------------------------

// analyzeDefinition types one Definition (top-level, module-member, or
// local) and binds its symbol. For top-level/module-member definitions the
// symbol already exists (Unfinished, from the collect phase); for a local
// `StmtDefinition` it does not, and is declared fresh here -- the two cases
// share this one function because the only difference is which branch of
// the LookupLocal/Declare choice below fires.
func (az *Analyzer) analyzeDefinition(defID ast.NodeID, table *symbol.Table) {
	n := az.arena.Node(defID)
	d := n.Data.(ast.DefinitionData)

	if d.ValueExpr != ast.NoNode && az.arena.Node(d.ValueExpr).Kind == ast.KindExprModule {
		az.analyzeModuleDefinition(defID, table)
		return
	}

	valueType := az.typeDefinitionValue(defID, table)
	az.res.Types[defID] = valueType

	kind := az.definitionKind(d, valueType)
	sym, ok := table.LookupLocal(d.Name)
	if !ok {
		var err error
		sym, err = table.Declare(d.Name, kind, defID)
		if err != nil {
			az.errorSymbol(defID, err.Error())
			return
		}
	} else {
		sym.Kind = kind
	}
	d.Resolved = az.internSymbol(sym)
	n.Data = d

	az.maybeFoldComptime(defID, valueType)
}

func (az *Analyzer) typeDefinitionValue(defID ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(defID).Data.(ast.DefinitionData)
	var declaredType types.ID
	hasDeclaredType := d.TypeExpr != ast.NoNode
	if hasDeclaredType {
		declaredType = az.evalTypeExpr(d.TypeExpr, table)
	}
	valueType := az.interner.Primitive(types.Void)
	if d.ValueExpr != ast.NoNode {
		valueType = az.analyzeExpr(d.ValueExpr, table)
	}
	if !hasDeclaredType {
		return valueType
	}
	if err := az.interner.ExpectEqual(declaredType, valueType, "definition "+d.Name); err != nil {
		az.errorType(defID, err.Error())
		return az.interner.ErrorType()
	}
	return declaredType
}

func (az *Analyzer) definitionKind(d ast.DefinitionData, valueType types.ID) symbol.Kind {
	if !d.IsComptime {
		return symbol.Variable
	}
	if az.interner.IsError(valueType) {
		return symbol.Error
	}
	switch az.interner.Type(valueType).Tag {
	case types.TagFunction:
		return symbol.Function
	case types.TagStruct, types.TagCUnion, types.TagUnion, types.TagEnum:
		return symbol.Type
	default:
		return symbol.ComptimeValue
	}
}

// maybeFoldComptime executes a `::` definition's value on the comptime
// evaluator and splices the literal result in place of ValueExpr: its
// result is folded into the AST as a literal. Type/function/module
// declarations are not runtime values and are left untouched.
func (az *Analyzer) maybeFoldComptime(defID ast.NodeID, valueType types.ID) {
	n := az.arena.Node(defID)
	d := n.Data.(ast.DefinitionData)
	if !d.IsComptime || d.ValueExpr == ast.NoNode || az.interner.IsError(valueType) {
		return
	}
	switch az.arena.Node(d.ValueExpr).Kind {
	case ast.KindExprFunction, ast.KindExprStruct, ast.KindExprUnion, ast.KindExprCUnion,
		ast.KindExprEnum, ast.KindExprModule, ast.KindExprFunctionSignature:
		return
	}
	lit, err := az.eval.EvalComptime(az.arena, d.ValueExpr, valueType, az.interner)
	if err != nil {
		az.errorType(d.ValueExpr, "comptime evaluation failed: "+err.Error())
		return
	}
	rng := az.arena.Node(d.ValueExpr).Range
	foldedID := az.arena.New(ast.KindExprLiteral, defID, rng, ast.ExprLiteralData{Literal: lit})
	az.res.Types[foldedID] = valueType
	d.ValueExpr = foldedID
	n.Data = d
}

// analyzeModuleDefinition handles `Name :: module { ... }`. A module's
// table does not fall back to the enclosing scope -- a non-terminal
// `A~B~c` read continues strictly inside the module's own table -- so its
// Table is created with a nil Parent.
func (az *Analyzer) analyzeModuleDefinition(defID ast.NodeID, table *symbol.Table) {
	n := az.arena.Node(defID)
	d := n.Data.(ast.DefinitionData)
	moduleData := az.arena.Node(d.ValueExpr).Data.(ast.ExprModuleData)

	childTable := symbol.NewTable(nil)
	az.res.Scopes[d.ValueExpr] = childTable

	var sym *symbol.Symbol
	if existing, ok := table.LookupLocal(d.Name); ok {
		existing.Kind = symbol.Module
		existing.ChildTable = childTable
		sym = existing
	} else {
		var err error
		sym, err = table.DeclareModule(d.Name, defID, childTable)
		if err != nil {
			az.errorSymbol(defID, err.Error())
			return
		}
	}
	d.Resolved = az.internSymbol(sym)
	n.Data = d

	body := az.arena.Node(moduleData.Body).Data.(ast.CodeBlockData)
	var memberDefs []ast.NodeID
	for _, stmtID := range body.Statements {
		sn := az.arena.Node(stmtID)
		if sn.Kind != ast.KindStmtDefinition {
			az.errorSymbol(stmtID, "module bodies may only contain definitions")
			continue
		}
		memberDefs = append(memberDefs, sn.Data.(ast.StmtDefinitionData).Definition)
	}
	az.analyzeDefinitionSet(memberDefs, childTable)
	az.res.Types[d.ValueExpr] = az.interner.Primitive(types.Void)
}

// ---- type expressions ---------------------------------------------------

var primitiveNames = map[string]types.Primitive{
	"i8": types.I8, "i16": types.I16, "i32": types.I32, "i64": types.I64,
	"u8": types.U8, "u16": types.U16, "u32": types.U32, "u64": types.U64,
	"f32": types.F32, "bool": types.Bool, "void": types.Void,
}

func (az *Analyzer) evalTypeExpr(node ast.NodeID, table *symbol.Table) types.ID {
	n := az.arena.Node(node)
	switch n.Kind {
	case ast.KindExprSymbolRead:
		d := n.Data.(ast.ExprSymbolReadData)
		return az.resolveTypeName(node, d, table)
	case ast.KindExprArrayType:
		d := n.Data.(ast.ExprArrayTypeData)
		elem := az.evalTypeExpr(d.Elem, table)
		size := az.evalComptimeInt(d.Size, table)
		return az.interner.Array(elem, size)
	case ast.KindExprSliceType:
		d := n.Data.(ast.ExprSliceTypeData)
		return az.interner.Slice(az.evalTypeExpr(d.Elem, table))
	case ast.KindExprFunctionSignature:
		return az.evalFunctionSignatureType(node, table)
	case ast.KindExprStruct:
		return az.analyzeStructLike(node, table, az.interner.NewStruct)
	case ast.KindExprUnion:
		return az.analyzeStructLike(node, table, az.interner.NewUnion)
	case ast.KindExprCUnion:
		return az.analyzeStructLike(node, table, az.interner.NewCUnion)
	case ast.KindExprEnum:
		return az.analyzeEnum(node, table)
	default:
		az.errorType(node, fmt.Sprintf("%s is not a type expression", n.Kind))
		return az.interner.ErrorType()
	}
}

func (az *Analyzer) resolveTypeName(node ast.NodeID, d ast.ExprSymbolReadData, table *symbol.Table) types.ID {
	if len(d.Path) == 1 {
		if p, ok := primitiveNames[d.Path[0]]; ok {
			return az.interner.Primitive(p)
		}
	}
	sym, err := symbol.ResolvePath(table, d.Path)
	if err != nil {
		az.errorSymbol(node, err.Error())
		return az.interner.ErrorType()
	}
	if sym.Kind != symbol.Type {
		az.errorType(node, fmt.Sprintf("%q is not a type", symbol.PathString(d.Path)))
		return az.interner.ErrorType()
	}
	ty, ok := az.res.Types[sym.Definition]
	if !ok {
		az.errorType(node, fmt.Sprintf("type %q is not yet resolved here (forward reference through an unbroken cycle)", symbol.PathString(d.Path)))
		return az.interner.ErrorType()
	}
	return ty
}

func (az *Analyzer) evalComptimeInt(node ast.NodeID, table *symbol.Table) int {
	if node == ast.NoNode {
		return 0
	}
	n := az.arena.Node(node)
	if n.Kind == ast.KindExprLiteral {
		return int(n.Data.(ast.ExprLiteralData).Literal.Integer)
	}
	ty := az.analyzeExpr(node, table)
	lit, err := az.eval.EvalComptime(az.arena, node, ty, az.interner)
	if err != nil {
		az.errorType(node, "expected a comptime integer: "+err.Error())
		return 0
	}
	return int(lit.Integer)
}

func (az *Analyzer) evalFunctionSignatureType(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprFunctionSignatureData)
	params := make([]types.ID, len(d.Parameters))
	for i, paramID := range d.Parameters {
		pd := az.arena.Node(paramID).Data.(ast.ParameterData)
		pt := az.interner.ErrorType()
		if pd.TypeExpr != ast.NoNode {
			pt = az.evalTypeExpr(pd.TypeExpr, table)
		}
		params[i] = pt
	}
	ret := az.interner.Primitive(types.Void)
	if d.Return != ast.NoNode {
		ret = az.evalTypeExpr(d.Return, table)
	}
	return az.interner.NewFunction(params, ret)
}

// analyzeStructLike lays out a struct/union/c_union declaration: each
// member is itself a Definition node (Members holds Definition nodes),
// typed by its declared TypeExpr. build is one of
// types.Interner's NewStruct/NewUnion/NewCUnion, all sharing this shape.
func (az *Analyzer) analyzeStructLike(node ast.NodeID, table *symbol.Table, build func([]types.Field) types.ID) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprStructData)
	fields := make([]types.Field, 0, len(d.Members))
	for _, memberID := range d.Members {
		md := az.arena.Node(memberID).Data.(ast.DefinitionData)
		fieldType := az.interner.ErrorType()
		if md.TypeExpr != ast.NoNode {
			fieldType = az.evalTypeExpr(md.TypeExpr, table)
		} else {
			az.errorType(memberID, "struct/union member must declare a type")
		}
		az.res.Types[memberID] = fieldType
		fields = append(fields, types.Field{Name: md.Name, Type: fieldType})
	}
	return build(fields)
}

func (az *Analyzer) analyzeEnum(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprEnumData)
	members := make([]types.EnumMember, 0, len(d.Members))
	next := int64(0)
	for _, memberID := range d.Members {
		md := az.arena.Node(memberID).Data.(ast.EnumMemberData)
		val := next
		if md.Value != ast.NoNode {
			if lit := az.arena.Node(md.Value); lit.Kind == ast.KindExprLiteral {
				val = lit.Data.(ast.ExprLiteralData).Literal.Integer
			} else {
				val = int64(az.evalComptimeInt(md.Value, table))
			}
		}
		members = append(members, types.EnumMember{Name: md.Name, Value: val})
		next = val + 1
	}
	return az.interner.NewEnum(members)
}

// ---- statements ----------------------------------------------------------

func (az *Analyzer) analyzeCodeBlock(node ast.NodeID, table *symbol.Table, returnType types.ID) {
	d := az.arena.Node(node).Data.(ast.CodeBlockData)
	az.res.Scopes[node] = table
	for _, stmtID := range d.Statements {
		az.analyzeStatement(stmtID, table, returnType)
	}
}

func (az *Analyzer) analyzeStatement(node ast.NodeID, table *symbol.Table, returnType types.ID) {
	n := az.arena.Node(node)
	switch n.Kind {
	case ast.KindStmtExpression:
		az.analyzeExpr(n.Data.(ast.StmtExpressionData).Expr, table)
	case ast.KindStmtAssignment:
		az.analyzeAssignment(node, table)
	case ast.KindStmtIf:
		az.analyzeIf(node, table, returnType)
	case ast.KindStmtWhile:
		d := n.Data.(ast.StmtWhileData)
		ct := az.analyzeExpr(d.Condition, table)
		if err := az.interner.ExpectEqual(ct, az.interner.Primitive(types.Bool), "while condition"); err != nil {
			az.errorType(d.Condition, err.Error())
		}
		az.analyzeCodeBlock(d.Body, symbol.NewTable(table), returnType)
	case ast.KindStmtSwitch:
		az.analyzeSwitch(node, table, returnType)
	case ast.KindStmtDefer:
		d := n.Data.(ast.StmtDeferData)
		if body := az.arena.Node(d.Body); body.Kind == ast.KindCodeBlock {
			az.analyzeCodeBlock(d.Body, symbol.NewTable(table), returnType)
		} else {
			az.analyzeStatement(d.Body, table, returnType)
		}
	case ast.KindStmtBreak, ast.KindStmtContinue:
		// Label resolution against enclosing loops is a bytecode-generation
		// concern -- the language has no label-declaration grammar of its
		// own (see DESIGN.md); nothing to type-check here.
	case ast.KindStmtReturn:
		az.analyzeReturn(node, table, returnType)
	case ast.KindStmtDelete:
		az.analyzeDelete(node, table)
	case ast.KindStmtDefinition:
		az.analyzeDefinition(n.Data.(ast.StmtDefinitionData).Definition, table)
	default:
		az.errorType(node, fmt.Sprintf("unsupported statement kind %s", n.Kind))
	}
}

func (az *Analyzer) analyzeReturn(node ast.NodeID, table *symbol.Table, returnType types.ID) {
	d := az.arena.Node(node).Data.(ast.StmtReturnData)
	if d.Value == ast.NoNode {
		if err := az.interner.ExpectEqual(returnType, az.interner.Primitive(types.Void), "bare return"); err != nil {
			az.errorType(node, err.Error())
		}
		return
	}
	vt := az.analyzeExpr(d.Value, table)
	if err := az.interner.ExpectEqual(returnType, vt, "return value"); err != nil {
		az.errorType(d.Value, err.Error())
	}
}

func (az *Analyzer) analyzeDelete(node ast.NodeID, table *symbol.Table) {
	d := az.arena.Node(node).Data.(ast.StmtDeleteData)
	ot := az.analyzeExpr(d.Operand, table)
	if az.interner.IsError(ot) {
		return
	}
	tag := az.interner.Type(ot).Tag
	if tag != types.TagPointer && tag != types.TagSlice {
		az.errorType(node, "delete requires a pointer or slice operand")
	}
}

func (az *Analyzer) analyzeAssignment(node ast.NodeID, table *symbol.Table) {
	d := az.arena.Node(node).Data.(ast.StmtAssignmentData)
	tt := az.analyzeExpr(d.Target, table)
	vt := az.analyzeExpr(d.Value, table)
	switch d.Operator {
	case token.ASSIGN, token.ASSIGN_STAR, token.ASSIGN_TILDE:
		if err := az.interner.ExpectEqual(tt, vt, "assignment"); err != nil {
			az.errorType(node, err.Error())
		}
	case token.PLUS_ASSIGN, token.MINUS_ASSIGN, token.STAR_ASSIGN, token.SLASH_ASSIGN, token.PERCENT_ASSIGN:
		if err := az.interner.ExpectEqual(tt, vt, "compound assignment"); err != nil {
			az.errorType(node, err.Error())
		} else if !az.interner.IsNumeric(tt) {
			az.errorType(node, "compound assignment requires numeric operands")
		}
	default:
		az.errorType(node, fmt.Sprintf("unsupported assignment operator %s", d.Operator))
	}
}

func (az *Analyzer) analyzeIf(node ast.NodeID, table *symbol.Table, returnType types.ID) {
	d := az.arena.Node(node).Data.(ast.StmtIfData)
	ct := az.analyzeExpr(d.Condition, table)
	if err := az.interner.ExpectEqual(ct, az.interner.Primitive(types.Bool), "if condition"); err != nil {
		az.errorType(d.Condition, err.Error())
	}
	az.analyzeCodeBlock(d.Then, symbol.NewTable(table), returnType)
	if d.Else == ast.NoNode {
		return
	}
	if az.arena.Node(d.Else).Kind == ast.KindStmtIf {
		az.analyzeIf(d.Else, table, returnType)
		return
	}
	az.analyzeCodeBlock(d.Else, symbol.NewTable(table), returnType)
}

func (az *Analyzer) analyzeSwitch(node ast.NodeID, table *symbol.Table, returnType types.ID) {
	d := az.arena.Node(node).Data.(ast.StmtSwitchData)
	subjectType := az.analyzeExpr(d.Subject, table)
	isEnum := !az.interner.IsError(subjectType) && az.interner.Type(subjectType).Tag == types.TagEnum

	covered := make(map[string]bool)
	hasDefault := false
	for _, caseID := range d.Cases {
		cd := az.arena.Node(caseID).Data.(ast.SwitchCaseData)
		if cd.Default {
			hasDefault = true
		}
		for _, valueID := range cd.Values {
			vt := az.analyzeAutoEnumAware(valueID, table, subjectType)
			if isEnum {
				if az.arena.Node(valueID).Kind == ast.KindExprAutoEnum {
					covered[az.arena.Node(valueID).Data.(ast.ExprAutoEnumData).Name] = true
				}
			}
			if err := az.interner.ExpectEqual(subjectType, vt, "switch case"); err != nil {
				az.errorType(valueID, err.Error())
			}
		}
		az.analyzeCodeBlock(cd.Body, symbol.NewTable(table), returnType)
	}
	if isEnum && !hasDefault && len(covered) < len(az.interner.Type(subjectType).Members) {
		az.errorType(node, "switch on enum does not cover all variants and has no default case")
	}
}

// analyzeAutoEnumAware types an expression that may be a bare `.Member`
// auto-enum literal (ast.ExprAutoEnum), valid only where `expected` names
// an enum type -- switch-case values and struct-initialiser arguments.
func (az *Analyzer) analyzeAutoEnumAware(node ast.NodeID, table *symbol.Table, expected types.ID) types.ID {
	n := az.arena.Node(node)
	if n.Kind == ast.KindExprAutoEnum && !az.interner.IsError(expected) && az.interner.Type(expected).Tag == types.TagEnum {
		name := n.Data.(ast.ExprAutoEnumData).Name
		if az.findEnumMember(az.interner.Type(expected), name) == nil {
			az.errorType(node, fmt.Sprintf("enum has no member %q", name))
		}
		az.res.Types[node] = expected
		return expected
	}
	return az.analyzeExpr(node, table)
}

func (az *Analyzer) findEnumMember(t types.Type, name string) *types.EnumMember {
	for i := range t.Members {
		if t.Members[i].Name == name {
			return &t.Members[i]
		}
	}
	return nil
}

// ---- expressions ----------------------------------------------------------

func (az *Analyzer) analyzeExpr(node ast.NodeID, table *symbol.Table) types.ID {
	if node == ast.NoNode {
		return az.interner.Primitive(types.Void)
	}
	n := az.arena.Node(node)
	var ty types.ID
	switch n.Kind {
	case ast.KindExprLiteral:
		ty = az.literalType(n.Data.(ast.ExprLiteralData).Literal)
	case ast.KindExprSymbolRead:
		ty = az.analyzeSymbolRead(node, table)
	case ast.KindExprBinop:
		ty = az.analyzeBinop(node, table)
	case ast.KindExprUnop:
		ty = az.analyzeUnop(node, table)
	case ast.KindExprCall:
		ty = az.analyzeCall(node, table)
	case ast.KindExprMember:
		ty = az.analyzeMember(node, table)
	case ast.KindExprIndex:
		ty = az.analyzeIndex(node, table)
	case ast.KindExprNew:
		ty = az.analyzeNew(node, table)
	case ast.KindExprCast:
		ty = az.analyzeCast(node, table)
	case ast.KindExprFunction:
		ty = az.analyzeFunction(node, table)
	case ast.KindExprFunctionSignature:
		ty = az.evalFunctionSignatureType(node, table)
	case ast.KindExprStruct:
		ty = az.analyzeStructLike(node, table, az.interner.NewStruct)
	case ast.KindExprUnion:
		ty = az.analyzeStructLike(node, table, az.interner.NewUnion)
	case ast.KindExprCUnion:
		ty = az.analyzeStructLike(node, table, az.interner.NewCUnion)
	case ast.KindExprEnum:
		ty = az.analyzeEnum(node, table)
	case ast.KindExprArrayType:
		ty = az.evalTypeExpr(node, table)
	case ast.KindExprSliceType:
		ty = az.evalTypeExpr(node, table)
	case ast.KindExprModule:
		ty = az.interner.Primitive(types.Void) // only valid as a Definition's ValueExpr; see analyzeModuleDefinition
	case ast.KindExprStructInit:
		ty = az.analyzeStructInit(node, table)
	case ast.KindExprArrayInit:
		ty = az.analyzeArrayInit(node, table)
	case ast.KindExprAutoEnum:
		az.errorType(node, "a bare enum member is only valid as a switch-case value or struct-initialiser argument")
		ty = az.interner.ErrorType()
	case ast.KindExprBakeExpr:
		ty = az.analyzeBakeExpr(node, table)
	case ast.KindExprBakeBlock:
		ty = az.analyzeBakeBlock(node, table)
	case ast.KindExprError:
		ty = az.interner.ErrorType()
	default:
		az.errorType(node, fmt.Sprintf("unsupported expression kind %s", n.Kind))
		ty = az.interner.ErrorType()
	}
	az.res.Types[node] = ty
	return ty
}

func (az *Analyzer) literalType(lit token.Literal) types.ID {
	switch lit.Kind {
	case token.LIT_INTEGER:
		return az.interner.Primitive(types.I32)
	case token.LIT_FLOAT:
		return az.interner.Primitive(types.F32)
	case token.LIT_BOOLEAN:
		return az.interner.Primitive(types.Bool)
	case token.LIT_STRING:
		return az.interner.Slice(az.interner.Primitive(types.U8))
	case token.LIT_NULL:
		return az.interner.Pointer(az.interner.Primitive(types.Void))
	default:
		return az.interner.ErrorType()
	}
}

func (az *Analyzer) analyzeSymbolRead(node ast.NodeID, table *symbol.Table) types.ID {
	n := az.arena.Node(node)
	d := n.Data.(ast.ExprSymbolReadData)
	sym, err := symbol.ResolvePath(table, d.Path)
	if err != nil {
		az.errorSymbol(node, err.Error())
		return az.interner.ErrorType()
	}
	d.Resolved = az.internSymbol(sym)
	n.Data = d
	if ty, ok := az.builtinTypes[sym]; ok {
		return ty
	}
	if ty, ok := az.res.Types[sym.Definition]; ok {
		return ty
	}
	az.errorType(node, fmt.Sprintf("%q has no resolved type here", symbol.PathString(d.Path)))
	return az.interner.ErrorType()
}

func (az *Analyzer) analyzeBinop(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprBinopData)
	lt := az.analyzeExpr(d.Left, table)
	rt := az.analyzeExpr(d.Right, table)
	switch d.Operator {
	case token.AND_AND, token.OR_OR:
		bt := az.interner.Primitive(types.Bool)
		if err := az.interner.ExpectEqual(lt, bt, "logical operand"); err != nil {
			az.errorType(d.Left, err.Error())
		}
		if err := az.interner.ExpectEqual(rt, bt, "logical operand"); err != nil {
			az.errorType(d.Right, err.Error())
		}
		return bt
	case token.EQ, token.NEQ, token.LT, token.GT, token.LTE, token.GTE:
		if err := az.interner.ExpectEqual(lt, rt, "comparison"); err != nil {
			az.errorType(node, err.Error())
			return az.interner.ErrorType()
		}
		return az.interner.Primitive(types.Bool)
	case token.PTR_EQ, token.PTR_NEQ:
		if err := az.interner.ExpectEqual(lt, rt, "pointer comparison"); err != nil {
			az.errorType(node, err.Error())
		}
		return az.interner.Primitive(types.Bool)
	case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT:
		if err := az.interner.ExpectEqual(lt, rt, "arithmetic operand"); err != nil {
			az.errorType(node, err.Error())
			return az.interner.ErrorType()
		}
		if !az.interner.IsNumeric(lt) {
			az.errorType(node, "arithmetic requires numeric operands")
			return az.interner.ErrorType()
		}
		return lt
	default:
		az.errorType(node, fmt.Sprintf("unsupported binary operator %s", d.Operator))
		return az.interner.ErrorType()
	}
}

func (az *Analyzer) analyzeUnop(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprUnopData)
	operandType := az.analyzeExpr(d.Operand, table)
	if az.interner.IsError(operandType) {
		return az.interner.ErrorType()
	}
	switch d.Operator {
	case token.MINUS:
		if !az.interner.IsNumeric(operandType) {
			az.errorType(node, "unary - requires a numeric operand")
			return az.interner.ErrorType()
		}
		return operandType
	case token.BANG:
		bt := az.interner.Primitive(types.Bool)
		if err := az.interner.ExpectEqual(operandType, bt, "logical not"); err != nil {
			az.errorType(node, err.Error())
		}
		return bt
	case token.TILDE_PTR:
		t := az.interner.Type(operandType)
		if t.Tag != types.TagPointer {
			az.errorType(node, "~* requires a pointer operand")
			return az.interner.ErrorType()
		}
		return t.Elem
	case token.TILDE_PTR_PTR:
		t := az.interner.Type(operandType)
		if t.Tag != types.TagPointer {
			az.errorType(node, "~** requires a pointer operand")
			return az.interner.ErrorType()
		}
		inner := az.interner.Type(t.Elem)
		if inner.Tag != types.TagPointer {
			az.errorType(node, "~** requires a pointer-to-pointer operand")
			return az.interner.ErrorType()
		}
		return inner.Elem
	default:
		az.errorType(node, fmt.Sprintf("unsupported unary operator %s", d.Operator))
		return az.interner.ErrorType()
	}
}

func (az *Analyzer) analyzeCall(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprCallData)
	calleeType := az.analyzeExpr(d.Callee, table)
	argTypes := make([]types.ID, len(d.Arguments))
	for i, argID := range d.Arguments {
		ad := az.arena.Node(argID).Data.(ast.ArgumentData)
		argTypes[i] = az.analyzeExpr(ad.Value, table)
		az.res.Types[argID] = argTypes[i]
	}
	if az.interner.IsError(calleeType) {
		return az.interner.ErrorType()
	}
	ft := az.interner.Type(calleeType)
	if ft.Tag != types.TagFunction {
		az.errorType(node, "callee is not a function")
		return az.interner.ErrorType()
	}
	if len(ft.Params) != len(argTypes) {
		az.errorTypeWithSecondary(node, az.arena.Node(d.Callee).Range,
			fmt.Sprintf("expected %d arguments, got %d", len(ft.Params), len(argTypes)))
		return az.interner.ErrorType()
	}
	for i, pt := range ft.Params {
		if err := az.interner.ExpectEqual(pt, argTypes[i], fmt.Sprintf("argument %d", i+1)); err != nil {
			az.errorType(d.Arguments[i], err.Error())
		}
	}
	return ft.Return
}

func (az *Analyzer) analyzeMember(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprMemberData)
	rt := az.analyzeExpr(d.Receiver, table)
	if az.interner.IsError(rt) {
		return az.interner.ErrorType()
	}
	t := az.interner.Type(rt)
	var fields []types.Field
	switch t.Tag {
	case types.TagStruct, types.TagCUnion:
		fields = t.Fields
	case types.TagUnion:
		fields = t.Variants
	default:
		az.errorType(node, "member access requires a struct, union, or c_union")
		return az.interner.ErrorType()
	}
	for _, f := range fields {
		if f.Name == d.Name {
			return f.Type
		}
	}
	az.errorType(node, fmt.Sprintf("no member %q", d.Name))
	return az.interner.ErrorType()
}

func (az *Analyzer) analyzeIndex(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprIndexData)
	rt := az.analyzeExpr(d.Receiver, table)
	it := az.analyzeExpr(d.Index, table)
	if az.interner.IsError(rt) {
		return az.interner.ErrorType()
	}
	if !az.interner.IsNumeric(it) {
		az.errorType(d.Index, "index must be numeric")
	}
	t := az.interner.Type(rt)
	switch t.Tag {
	case types.TagArray, types.TagSlice, types.TagPointer:
		return t.Elem
	default:
		az.errorType(node, "index requires an array, slice, or pointer")
		return az.interner.ErrorType()
	}
}

func (az *Analyzer) analyzeNew(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprNewData)
	elem := az.evalTypeExpr(d.Type, table)
	if d.Count == ast.NoNode {
		return az.interner.Pointer(elem)
	}
	ct := az.analyzeExpr(d.Count, table)
	if !az.interner.IsNumeric(ct) {
		az.errorType(d.Count, "new[n] count must be numeric")
	}
	return az.interner.Slice(elem)
}

func (az *Analyzer) analyzeCast(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprCastData)
	operandType := az.analyzeExpr(d.Operand, table)
	switch d.Variant {
	case ast.CastNumeric:
		if d.ToType == ast.NoNode {
			az.errorType(node, "cast requires a target type")
			return az.interner.ErrorType()
		}
		target := az.evalTypeExpr(d.ToType, table)
		if !az.interner.IsNumeric(target) || !az.interner.IsNumeric(operandType) {
			az.errorType(node, "cast requires numeric operand and target types")
			return az.interner.ErrorType()
		}
		return target
	case ast.CastPtr:
		if d.ToType == ast.NoNode {
			return az.interner.Pointer(az.interner.Primitive(types.Void))
		}
		return az.interner.Pointer(az.evalTypeExpr(d.ToType, table))
	case ast.CastRaw:
		return az.interner.Primitive(types.U64)
	default:
		return az.interner.ErrorType()
	}
}

func (az *Analyzer) analyzeFunction(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprFunctionData)
	sigType := az.evalFunctionSignatureType(d.Signature, table)
	az.res.Types[d.Signature] = sigType

	bodyTable := symbol.NewTable(table)
	sigData := az.arena.Node(d.Signature).Data.(ast.ExprFunctionSignatureData)
	ft := az.interner.Type(sigType)
	for i, paramID := range sigData.Parameters {
		pd := az.arena.Node(paramID).Data.(ast.ParameterData)
		kind := symbol.Parameter
		if pd.IsComptime {
			kind = symbol.PolymorphicValue
		}
		if _, err := bodyTable.Declare(pd.Name, kind, paramID); err != nil {
			az.errorSymbol(paramID, err.Error())
			continue
		}
		az.res.Types[paramID] = ft.Params[i]
		if pd.DefaultValue != ast.NoNode {
			dt := az.analyzeExpr(pd.DefaultValue, table)
			if err := az.interner.ExpectEqual(ft.Params[i], dt, "parameter default value"); err != nil {
				az.errorType(pd.DefaultValue, err.Error())
			}
		}
	}
	az.res.Scopes[d.Body] = bodyTable
	az.analyzeCodeBlock(d.Body, bodyTable, ft.Return)
	return sigType
}

func (az *Analyzer) analyzeStructInit(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprStructInitData)
	if d.Type == ast.NoNode {
		az.errorType(node, "struct initialiser requires a known target type")
		for _, argID := range d.Arguments {
			az.analyzeExpr(az.arena.Node(argID).Data.(ast.ArgumentData).Value, table)
		}
		return az.interner.ErrorType()
	}
	targetType := az.evalTypeExpr(d.Type, table)

	var fields []types.Field
	if !az.interner.IsError(targetType) {
		t := az.interner.Type(targetType)
		switch t.Tag {
		case types.TagStruct, types.TagCUnion:
			fields = t.Fields
		case types.TagUnion:
			fields = t.Variants
		default:
			az.errorType(node, "struct initialiser target is not a struct, union, or c_union")
		}
	}
	if fields != nil && len(d.Arguments) != len(fields) {
		az.errorType(node, fmt.Sprintf("expected %d initialiser arguments, got %d", len(fields), len(d.Arguments)))
	}

	seenNamed := false
	for i, argID := range d.Arguments {
		ad := az.arena.Node(argID).Data.(ast.ArgumentData)
		if ad.Name != "" {
			seenNamed = true
		} else if seenNamed {
			az.errorType(argID, "positional initialiser argument follows a named one")
		}
		fieldType := az.interner.ErrorType()
		switch {
		case ad.Name != "":
			fieldType = az.lookupFieldType(fields, ad.Name, argID)
		case i < len(fields):
			fieldType = fields[i].Type
		}
		vt := az.analyzeAutoEnumAware(ad.Value, table, fieldType)
		if !az.interner.IsError(fieldType) {
			if err := az.interner.ExpectEqual(fieldType, vt, "struct initialiser"); err != nil {
				az.errorType(argID, err.Error())
			}
		}
		az.res.Types[argID] = vt
	}
	return targetType
}

func (az *Analyzer) lookupFieldType(fields []types.Field, name string, node ast.NodeID) types.ID {
	for _, f := range fields {
		if f.Name == name {
			return f.Type
		}
	}
	az.errorType(node, fmt.Sprintf("no member %q", name))
	return az.interner.ErrorType()
}

func (az *Analyzer) analyzeArrayInit(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprArrayInitData)
	var elemType types.ID
	haveElem := d.Type != ast.NoNode
	if haveElem {
		elemType = az.evalTypeExpr(d.Type, table)
	}
	for i, valueID := range d.Values {
		vt := az.analyzeExpr(valueID, table)
		if !haveElem {
			elemType = vt
			haveElem = true
			continue
		}
		if i == 0 && d.Type == ast.NoNode {
			continue
		}
		if err := az.interner.ExpectEqual(elemType, vt, "array initialiser element"); err != nil {
			az.errorType(valueID, err.Error())
		}
	}
	if !haveElem {
		elemType = az.interner.ErrorType()
	}
	return az.interner.Array(elemType, len(d.Values))
}

// analyzeBakeExpr evaluates `#bake(expr)` at analysis time. The result is
// kept in Result.FoldedLiterals rather than spliced into the tree the way
// a comptime Definition's ValueExpr is: an ExprBakeExprData has no mutable
// field the analyser is allowed to rewrite, since it may sit anywhere
// inside an arbitrary expression owned by some other node's Data.
func (az *Analyzer) analyzeBakeExpr(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprBakeExprData)
	ty := az.analyzeExpr(d.Expr, table)
	if az.interner.IsError(ty) {
		return ty
	}
	lit, err := az.eval.EvalComptime(az.arena, d.Expr, ty, az.interner)
	if err != nil {
		az.errorType(node, "#bake evaluation failed: "+err.Error())
		return az.interner.ErrorType()
	}
	az.res.FoldedLiterals[node] = lit
	return ty
}

// analyzeBakeBlock evaluates `#bake { ... }`. A bake block has no explicit
// return keyword; its value is the last statement, if it is a bare
// expression statement (mirroring how the last line of a REPL cell or Lisp
// `do` block supplies its result).
func (az *Analyzer) analyzeBakeBlock(node ast.NodeID, table *symbol.Table) types.ID {
	d := az.arena.Node(node).Data.(ast.ExprBakeBlockData)
	bakeTable := symbol.NewTable(table)
	body := az.arena.Node(d.Body).Data.(ast.CodeBlockData)
	az.res.Scopes[d.Body] = bakeTable

	resultType := az.interner.Primitive(types.Void)
	resultExpr := ast.NoNode
	for i, stmtID := range body.Statements {
		az.analyzeStatement(stmtID, bakeTable, resultType)
		if i == len(body.Statements)-1 {
			if sn := az.arena.Node(stmtID); sn.Kind == ast.KindStmtExpression {
				resultExpr = sn.Data.(ast.StmtExpressionData).Expr
				resultType = az.res.Types[resultExpr]
			}
		}
	}
	if resultExpr == ast.NoNode || az.interner.IsError(resultType) {
		return resultType
	}
	lit, err := az.eval.EvalComptime(az.arena, resultExpr, resultType, az.interner)
	if err != nil {
		az.errorType(node, "#bake evaluation failed: "+err.Error())
		return az.interner.ErrorType()
	}
	az.res.FoldedLiterals[node] = lit
	return resultType
}

// ---- ConstFolder: literal-arithmetic comptime evaluator ------------------

// ConstFolder is the default Evaluator: it can fold expressions built
// entirely out of literals, unary -/! and binary arithmetic/comparison/
// logical operators. Anything else (a function call, a loop, a struct
// field read, a unary +) is returned as an evaluation error; the compiler
// package uses ConstFolder for every comptime expression.
type ConstFolder struct{}

func (ConstFolder) EvalComptime(a *ast.Arena, expr ast.NodeID, _ types.ID, _ *types.Interner) (token.Literal, error) {
	return foldLiteral(a, expr)
}

func foldLiteral(a *ast.Arena, expr ast.NodeID) (token.Literal, error) {
	n := a.Node(expr)
	switch n.Kind {
	case ast.KindExprLiteral:
		return n.Data.(ast.ExprLiteralData).Literal, nil
	case ast.KindExprUnop:
		d := n.Data.(ast.ExprUnopData)
		v, err := foldLiteral(a, d.Operand)
		if err != nil {
			return token.Literal{}, err
		}
		switch d.Operator {
		case token.MINUS:
			if v.Kind == token.LIT_FLOAT {
				v.Float = -v.Float
			} else {
				v.Integer = -v.Integer
			}
			return v, nil
		case token.BANG:
			v.Boolean = !v.Boolean
			return v, nil
		default:
			return token.Literal{}, errors.Errorf("analyzer: constant folder cannot evaluate unary operator %s", d.Operator)
		}
	case ast.KindExprBinop:
		d := n.Data.(ast.ExprBinopData)
		l, err := foldLiteral(a, d.Left)
		if err != nil {
			return token.Literal{}, err
		}
		r, err := foldLiteral(a, d.Right)
		if err != nil {
			return token.Literal{}, err
		}
		return foldBinop(d.Operator, l, r)
	default:
		return token.Literal{}, errors.Errorf(
			"analyzer: constant folder cannot evaluate %s; a full comptime evaluator (bytecode generator + VM) is required", n.Kind)
	}
}

func foldBinop(op token.Operator, l, r token.Literal) (token.Literal, error) {
	if l.Kind == token.LIT_FLOAT || r.Kind == token.LIT_FLOAT {
		lf, rf := l.Float, r.Float
		if l.Kind != token.LIT_FLOAT {
			lf = float64(l.Integer)
		}
		if r.Kind != token.LIT_FLOAT {
			rf = float64(r.Integer)
		}
		switch op {
		case token.PLUS:
			return token.Literal{Kind: token.LIT_FLOAT, Float: lf + rf}, nil
		case token.MINUS:
			return token.Literal{Kind: token.LIT_FLOAT, Float: lf - rf}, nil
		case token.STAR:
			return token.Literal{Kind: token.LIT_FLOAT, Float: lf * rf}, nil
		case token.SLASH:
			return token.Literal{Kind: token.LIT_FLOAT, Float: lf / rf}, nil
		default:
			return token.Literal{}, errors.Errorf("analyzer: constant folder cannot evaluate float operator %s", op)
		}
	}
	switch op {
	case token.PLUS:
		return token.Literal{Kind: token.LIT_INTEGER, Integer: l.Integer + r.Integer}, nil
	case token.MINUS:
		return token.Literal{Kind: token.LIT_INTEGER, Integer: l.Integer - r.Integer}, nil
	case token.STAR:
		return token.Literal{Kind: token.LIT_INTEGER, Integer: l.Integer * r.Integer}, nil
	case token.SLASH:
		if r.Integer == 0 {
			return token.Literal{}, errors.New("analyzer: comptime division by zero")
		}
		return token.Literal{Kind: token.LIT_INTEGER, Integer: l.Integer / r.Integer}, nil
	case token.PERCENT:
		if r.Integer == 0 {
			return token.Literal{}, errors.New("analyzer: comptime modulo by zero")
		}
		return token.Literal{Kind: token.LIT_INTEGER, Integer: l.Integer % r.Integer}, nil
	case token.AND_AND:
		return token.Literal{Kind: token.LIT_BOOLEAN, Boolean: l.Boolean && r.Boolean}, nil
	case token.OR_OR:
		return token.Literal{Kind: token.LIT_BOOLEAN, Boolean: l.Boolean || r.Boolean}, nil
	case token.EQ:
		return token.Literal{Kind: token.LIT_BOOLEAN, Boolean: l.Integer == r.Integer}, nil
	case token.NEQ:
		return token.Literal{Kind: token.LIT_BOOLEAN, Boolean: l.Integer != r.Integer}, nil
	case token.LT:
		return token.Literal{Kind: token.LIT_BOOLEAN, Boolean: l.Integer < r.Integer}, nil
	case token.GT:
		return token.Literal{Kind: token.LIT_BOOLEAN, Boolean: l.Integer > r.Integer}, nil
	case token.LTE:
		return token.Literal{Kind: token.LIT_BOOLEAN, Boolean: l.Integer <= r.Integer}, nil
	case token.GTE:
		return token.Literal{Kind: token.LIT_BOOLEAN, Boolean: l.Integer >= r.Integer}, nil
	default:
		return token.Literal{}, errors.Errorf("analyzer: constant folder cannot evaluate operator %s", op)
	}
}
