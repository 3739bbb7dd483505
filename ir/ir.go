// Package ir implements the intermediate program representation: per-
// function typed registers plus a flat, already-linear instruction list
// (register-operand access mode is REGISTER or MEMORY, matching the
// original implementation's Data_Access_Type), and the lowering pass from
// an analysed AST into that representation.
//
// Where the source this was distilled from duplicates every arithmetic and
// comparison opcode per primitive type (INT_ADDITION / FLOAT_ADDITION, and
// so on, because its host language has no generics), this package instead
// carries one opcode per operation plus a types.Primitive tag on the
// instruction, and leaves the per-primitive dispatch to the bytecode
// generator and VM's generic helpers.
package ir

import (
	"github.com/pkg/errors"

	"github.com/upplang/upp/analyzer"
	"github.com/upplang/upp/ast"
	"github.com/upplang/upp/symbol"
	"github.com/upplang/upp/token"
	"github.com/upplang/upp/types"
)

// AccessMode is the per-operand REGISTER/MEMORY distinction: MEMORY means
// "the register holds a pointer; read/write through it".
type AccessMode int

const (
	Register AccessMode = iota
	Memory
)

func (m AccessMode) String() string {
	if m == Memory {
		return "MEMORY"
	}
	return "REGISTER"
}

// RegisterRole is a register's logical purpose within its owning function.
type RegisterRole int

const (
	Parameter RegisterRole = iota
	Local
	Temporary
)

// RegisterID indexes Function.Registers.
type RegisterID int

// Register is one typed, logical slot.
type Register struct {
	Role RegisterRole
	Type types.ID
}

// Operand is a register reference plus the access mode it must be read or
// written through.
type Operand struct {
	Mode AccessMode
	Reg  RegisterID
}

// BinOp is the closed set of binary operations an instruction may perform;
// Instruction.Prim selects which primitive width/signedness it operates on.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	Eq
	Neq
	Lt
	Gt
	Lte
	Gte
	LogicalAnd
	LogicalOr
	PtrEq
	PtrNeq
)

// UnOp is the closed set of unary operations.
type UnOp int

const (
	Neg UnOp = iota
	Not
)

// Opcode is the intermediate instruction kind.
type Opcode int

const (
	OpLoadConstant Opcode = iota
	OpMove                // Dst = Src1
	OpBinary              // Dst = Src1 BinOp Src2, typed by Prim
	OpUnary               // Dst = UnOp Src1, typed by Prim
	OpAddressOf           // Dst = &Src1 (Src1 must be Register-mode)
	OpMemberAccessPointer // Dst = Src1 + Offset (pointer arithmetic)
	OpArrayAccessPointer  // Dst = Src1 + Src2 * Size (element address)
	OpCall                // call Callee with Args, result (if any) via LoadReturnValue
	OpReturn              // return Src1 (Src1 may be the zero Operand for void)
	OpLoadReturnValue     // Dst = value returned by the most recent OpCall
	OpJump                // unconditional; Target is an instruction index
	OpJumpOnTrue          // if Src1 != 0, jump to Target
	OpJumpOnFalse         // if Src1 == 0, jump to Target
	OpAlloc               // Dst = malloc_size(Size) as *T; heap allocation for `new`
	OpAllocArray          // Dst = malloc_size(Size*Src1) as []T; `new[n]`
	OpFree                // free_pointer(Src1)
	OpExit                // halt with exit code in Src1 (SUCCESS unless a trap set it)
	OpErrorExit           // halt with TYPE_ERROR_AT_RUNTIME / INTERNAL_ERROR; Message is static
)

// Instruction is one intermediate operation. Only the fields relevant to Op
// are meaningful, mirroring ast.Node/types.Type's tagged-struct idiom
// rather than an interface hierarchy (see ast package doc comment).
type Instruction struct {
	Op   Opcode
	Dst  Operand
	Src1 Operand
	Src2 Operand
	Args []Operand // OpCall argument registers, in order

	BinOp BinOp
	UnOp  UnOp
	Prim  types.Primitive // arithmetic width for OpBinary/OpUnary; storage width (the value's own type, not the address's) for OpLoadConstant/OpMove/OpLoadReturnValue

	Literal token.Literal // OpLoadConstant

	Target int // OpJump*; patched to a concrete instruction index before emission

	Callee     string   // OpCall: target function name
	IsHardcoded bool    // OpCall: Callee names one of the fixed extern builtins

	Size   int // OpAlloc/OpAllocArray: element size in bytes; OpArrayAccessPointer: element size
	Offset int // OpMemberAccessPointer: byte offset of the member

	Message string // OpErrorExit: static diagnostic text
}

// Function owns a list of typed registers, an ordered instruction list, and
// the AST node it was generated from.
type Function struct {
	Name       string
	AST        ast.NodeID // the Definition node
	Registers  []Register
	Instructions []Instruction
	ParamCount int
	ReturnType types.ID
}

// Program is every lowered function in a compilation unit.
type Program struct {
	Functions []*Function
	Main      string // "main"'s Function.Name, "" if the module declares none
}

// FunctionByName is a convenience lookup used by the bytecode generator's
// call-site patching pass.
func (p *Program) FunctionByName(name string) *Function {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Lower walks every top-level (and module-nested) Function-kind symbol in
// res and produces one ir.Function per definition from the analysed AST
// plus its per-function intermediate register list. Global, non-comptime
// top-level definitions (symbol.Variable at module scope) have no
// described storage in the stack-and-heap VM and are not lowered; see
// DESIGN.md.
func Lower(arena *ast.Arena, res *analyzer.Result, interner *types.Interner) (*Program, []error) {
	g := &generator{arena: arena, res: res, interner: interner}
	prog := &Program{}
	var errs []error
	g.lowerTableFunctions(res.RootTable, prog, &errs)
	if main := prog.FunctionByName("main"); main != nil {
		prog.Main = main.Name
	}
	return prog, errs
}

func (g *generator) lowerTableFunctions(table *symbol.Table, prog *Program, errs *[]error) {
	if table == nil {
		return
	}
	for _, sym := range table.Symbols() {
		switch sym.Kind {
		case symbol.Function:
			fn, err := g.lowerFunction(sym.Name, sym.Definition)
			if err != nil {
				*errs = append(*errs, err)
				continue
			}
			prog.Functions = append(prog.Functions, fn)
		case symbol.Module:
			g.lowerTableFunctions(sym.ChildTable, prog, errs)
		}
	}
}

type generator struct {
	arena    *ast.Arena
	res      *analyzer.Result
	interner *types.Interner
}

type funcState struct {
	fn         *Function
	regByNode  map[ast.NodeID]RegisterID
	breakTargets    [][]int // stack of patch-index lists, one per enclosing loop
	continueTargets [][]int
	deferred   []ast.NodeID // bodies to run at function exit, in reverse order
}

func (g *generator) lowerFunction(name string, defID ast.NodeID) (*Function, error) {
	def := g.arena.Node(defID).Data.(ast.DefinitionData)
	fexpr := g.arena.Node(def.ValueExpr).Data.(ast.ExprFunctionData)
	sig := g.arena.Node(fexpr.Signature).Data.(ast.ExprFunctionSignatureData)

	fnType := g.res.Types[defID]
	if g.interner.Type(fnType).Tag != types.TagFunction {
		return nil, errors.Errorf("ir: definition %q resolved to a non-function type; analyser result is inconsistent", name)
	}
	retType := g.interner.Type(fnType).Return

	fn := &Function{Name: name, AST: defID, ReturnType: retType, ParamCount: len(sig.Parameters)}
	st := &funcState{fn: fn, regByNode: make(map[ast.NodeID]RegisterID)}

	for _, paramID := range sig.Parameters {
		pt := g.res.Types[paramID]
		st.regByNode[paramID] = g.newRegister(st, Parameter, pt)
	}

	g.lowerCodeBlock(st, fexpr.Body)
	g.emitDeferredAll(st)
	if g.interner.Type(retType).Tag == types.TagPrimitive && g.interner.Type(retType).Prim == types.Void {
		g.emit(st, Instruction{Op: OpReturn})
	}
	return fn, nil
}

func (g *generator) newRegister(st *funcState, role RegisterRole, ty types.ID) RegisterID {
	id := RegisterID(len(st.fn.Registers))
	st.fn.Registers = append(st.fn.Registers, Register{Role: role, Type: ty})
	return id
}

func (g *generator) emit(st *funcState, instr Instruction) int {
	idx := len(st.fn.Instructions)
	st.fn.Instructions = append(st.fn.Instructions, instr)
	return idx
}

func (g *generator) lowerCodeBlock(st *funcState, blockID ast.NodeID) {
	block := g.arena.Node(blockID).Data.(ast.CodeBlockData)
	for _, stmtID := range block.Statements {
		g.lowerStatement(st, stmtID)
	}
}

func (g *generator) lowerStatement(st *funcState, stmtID ast.NodeID) {
	node := g.arena.Node(stmtID)
	switch node.Kind {
	case ast.KindStmtExpression:
		data := node.Data.(ast.StmtExpressionData)
		g.lowerExpr(st, data.Expr)

	case ast.KindStmtDefinition:
		data := node.Data.(ast.StmtDefinitionData)
		g.lowerLocalDefinition(st, data.Definition)

	case ast.KindStmtAssignment:
		g.lowerAssignment(st, node.Data.(ast.StmtAssignmentData))

	case ast.KindStmtIf:
		g.lowerIf(st, node.Data.(ast.StmtIfData))

	case ast.KindStmtWhile:
		g.lowerWhile(st, node.Data.(ast.StmtWhileData))

	case ast.KindStmtSwitch:
		g.lowerSwitch(st, node.Data.(ast.StmtSwitchData))

	case ast.KindStmtReturn:
		data := node.Data.(ast.StmtReturnData)
		if data.Value == ast.NoNode {
			g.emitDeferredAll(st)
			g.emit(st, Instruction{Op: OpReturn})
			return
		}
		val := g.lowerExpr(st, data.Value)
		g.emitDeferredAll(st)
		g.emit(st, Instruction{Op: OpReturn, Src1: val, Prim: primOf(g.interner, st.fn.ReturnType)})

	case ast.KindStmtBreak:
		if len(st.breakTargets) == 0 {
			return
		}
		idx := g.emit(st, Instruction{Op: OpJump})
		top := len(st.breakTargets) - 1
		st.breakTargets[top] = append(st.breakTargets[top], idx)

	case ast.KindStmtContinue:
		if len(st.continueTargets) == 0 {
			return
		}
		idx := g.emit(st, Instruction{Op: OpJump})
		top := len(st.continueTargets) - 1
		st.continueTargets[top] = append(st.continueTargets[top], idx)

	case ast.KindStmtDefer:
		data := node.Data.(ast.StmtDeferData)
		// defer runs at enclosing FUNCTION exit (DESIGN.md Open Question
		// decision), so it is recorded rather than lowered immediately.
		st.deferred = append(st.deferred, data.Body)

	case ast.KindStmtDelete:
		data := node.Data.(ast.StmtDeleteData)
		ptr := g.lowerExpr(st, data.Operand)
		g.emit(st, Instruction{Op: OpFree, Src1: ptr})
	}
}

func (g *generator) emitDeferredAll(st *funcState) {
	for i := len(st.deferred) - 1; i >= 0; i-- {
		body := st.deferred[i]
		if g.arena.Node(body).Kind == ast.KindCodeBlock {
			g.lowerCodeBlock(st, body)
		} else {
			g.lowerStatement(st, body)
		}
	}
}

func (g *generator) lowerLocalDefinition(st *funcState, defID ast.NodeID) {
	def := g.arena.Node(defID).Data.(ast.DefinitionData)
	ty := g.res.Types[defID]
	reg := g.newRegister(st, Local, ty)
	st.regByNode[defID] = reg
	if def.ValueExpr != ast.NoNode {
		val := g.lowerExpr(st, def.ValueExpr)
		g.emit(st, Instruction{Op: OpMove, Dst: Operand{Mode: Register, Reg: reg}, Src1: val, Prim: primOf(g.interner, ty)})
	}
}

func (g *generator) lowerAssignment(st *funcState, data ast.StmtAssignmentData) {
	target := g.lowerLValue(st, data.Target)
	val := g.lowerExpr(st, data.Value)
	targetTy := g.res.Types[data.Target]
	if data.Operator != token.ASSIGN {
		cur := g.loadOperand(st, target, targetTy)
		bop, prim := compoundOp(data.Operator, g.interner, targetTy)
		tmp := g.newRegister(st, Temporary, targetTy)
		g.emit(st, Instruction{Op: OpBinary, Dst: Operand{Mode: Register, Reg: tmp}, Src1: cur, Src2: val, BinOp: bop, Prim: prim})
		val = Operand{Mode: Register, Reg: tmp}
	}
	g.store(st, target, val, targetTy)
}

func compoundOp(op token.Operator, interner *types.Interner, ty types.ID) (BinOp, types.Primitive) {
	prim := types.I32
	if t := interner.Type(ty); t.Tag == types.TagPrimitive {
		prim = t.Prim
	}
	switch op {
	case token.PLUS_ASSIGN:
		return Add, prim
	case token.MINUS_ASSIGN:
		return Sub, prim
	case token.STAR_ASSIGN:
		return Mul, prim
	case token.SLASH_ASSIGN:
		return Div, prim
	case token.PERCENT_ASSIGN:
		return Mod, prim
	default:
		return Add, prim
	}
}

// lowerLValue produces the operand an assignment writes through: a
// Register-mode operand for a plain local/parameter, a Memory-mode operand
// (an address register) for a member/index target.
func (g *generator) lowerLValue(st *funcState, exprID ast.NodeID) Operand {
	node := g.arena.Node(exprID)
	switch node.Kind {
	case ast.KindExprSymbolRead:
		data := node.Data.(ast.ExprSymbolReadData)
		sym := g.res.Symbol(data.Resolved)
		if sym == nil {
			return Operand{}
		}
		if reg, ok := st.regByNode[sym.Definition]; ok {
			return Operand{Mode: Register, Reg: reg}
		}
		return Operand{}
	case ast.KindExprMember, ast.KindExprIndex:
		return g.lowerAddressOf(st, exprID)
	default:
		return g.lowerExpr(st, exprID)
	}
}

func (g *generator) store(st *funcState, target Operand, val Operand, ty types.ID) {
	prim := primOf(g.interner, ty)
	if target.Mode == Memory {
		g.emit(st, Instruction{Op: opWriteMemory, Dst: target, Src1: val, Prim: prim})
		return
	}
	g.emit(st, Instruction{Op: OpMove, Dst: target, Src1: val, Prim: prim})
}

func (g *generator) loadOperand(st *funcState, op Operand, ty types.ID) Operand {
	if op.Mode == Register {
		return op
	}
	tmp := g.newRegister(st, Temporary, ty)
	g.emit(st, Instruction{Op: opReadMemory, Dst: Operand{Mode: Register, Reg: tmp}, Src1: op, Prim: primOf(g.interner, ty)})
	return Operand{Mode: Register, Reg: tmp}
}

func (g *generator) lowerIf(st *funcState, data ast.StmtIfData) {
	cond := g.lowerExpr(st, data.Condition)
	jumpElse := g.emit(st, Instruction{Op: OpJumpOnFalse, Src1: cond})
	g.lowerCodeBlock(st, data.Then)
	if data.Else == ast.NoNode {
		g.patchTarget(st, jumpElse, len(st.fn.Instructions))
		return
	}
	jumpEnd := g.emit(st, Instruction{Op: OpJump})
	g.patchTarget(st, jumpElse, len(st.fn.Instructions))
	if g.arena.Node(data.Else).Kind == ast.KindStmtIf {
		g.lowerIf(st, g.arena.Node(data.Else).Data.(ast.StmtIfData))
	} else {
		g.lowerCodeBlock(st, data.Else)
	}
	g.patchTarget(st, jumpEnd, len(st.fn.Instructions))
}

func (g *generator) lowerWhile(st *funcState, data ast.StmtWhileData) {
	condIdx := len(st.fn.Instructions)
	cond := g.lowerExpr(st, data.Condition)
	jumpExit := g.emit(st, Instruction{Op: OpJumpOnFalse, Src1: cond})

	st.breakTargets = append(st.breakTargets, nil)
	st.continueTargets = append(st.continueTargets, nil)
	g.lowerCodeBlock(st, data.Body)
	g.emit(st, Instruction{Op: OpJump, Target: condIdx})

	top := len(st.breakTargets) - 1
	breaks := st.breakTargets[top]
	continues := st.continueTargets[top]
	st.breakTargets = st.breakTargets[:top]
	st.continueTargets = st.continueTargets[:top]

	// the JUMP just emitted loops back to the condition re-check.
	st.fn.Instructions[len(st.fn.Instructions)-1].Target = condIdx
	endIdx := len(st.fn.Instructions)
	g.patchTarget(st, jumpExit, endIdx)
	for _, idx := range breaks {
		g.patchTarget(st, idx, endIdx)
	}
	for _, idx := range continues {
		g.patchTarget(st, idx, condIdx)
	}
}

func (g *generator) patchTarget(st *funcState, instrIdx, target int) {
	st.fn.Instructions[instrIdx].Target = target
}

// lowerSwitch desugars into a chain of equality comparisons against the
// subject: there is no dedicated bytecode switch instruction, so the
// generator reuses JUMP/JUMP_ON_FALSE the same way it does for `if`.
func (g *generator) lowerSwitch(st *funcState, data ast.StmtSwitchData) {
	subject := g.lowerExpr(st, data.Subject)
	subjType := g.res.Types[data.Subject]
	var endJumps []int
	var fallthroughJump = -1

	for _, caseID := range data.Cases {
		c := g.arena.Node(caseID).Data.(ast.SwitchCaseData)
		if fallthroughJump >= 0 {
			g.patchTarget(st, fallthroughJump, len(st.fn.Instructions))
			fallthroughJump = -1
		}
		if c.Default {
			g.lowerCodeBlock(st, c.Body)
			continue
		}
		// OR together every case value's equality test against the subject.
		var matched Operand
		for i, valID := range c.Values {
			val := g.lowerExpr(st, valID)
			eq := g.newRegister(st, Temporary, g.interner.Primitive(types.Bool))
			g.emit(st, Instruction{Op: OpBinary, Dst: Operand{Mode: Register, Reg: eq}, Src1: subject, Src2: val, BinOp: Eq, Prim: primOf(g.interner, subjType)})
			if i == 0 {
				matched = Operand{Mode: Register, Reg: eq}
				continue
			}
			combined := g.newRegister(st, Temporary, g.interner.Primitive(types.Bool))
			g.emit(st, Instruction{Op: OpBinary, Dst: Operand{Mode: Register, Reg: combined}, Src1: matched, Src2: Operand{Mode: Register, Reg: eq}, BinOp: LogicalOr, Prim: types.Bool})
			matched = Operand{Mode: Register, Reg: combined}
		}
		fallthroughJump = g.emit(st, Instruction{Op: OpJumpOnFalse, Src1: matched})
		g.lowerCodeBlock(st, c.Body)
		endJumps = append(endJumps, g.emit(st, Instruction{Op: OpJump}))
	}
	if fallthroughJump >= 0 {
		g.patchTarget(st, fallthroughJump, len(st.fn.Instructions))
	}
	endIdx := len(st.fn.Instructions)
	for _, idx := range endJumps {
		g.patchTarget(st, idx, endIdx)
	}
}

// primOf picks the arithmetic width/signedness an operand's instruction
// should carry. Pointers are 8-byte unsigned addresses (types.Interner's
// Pointer sizing): U64 is the width that actually matches their storage,
// unlike the I32 fallback used for every other non-primitive type (which
// never reaches a binary/unary instruction as an operand in its own
// right -- a struct or array is always accessed through a pointer or
// member/index address first).
func primOf(interner *types.Interner, ty types.ID) types.Primitive {
	t := interner.Type(ty)
	switch t.Tag {
	case types.TagPrimitive:
		return t.Prim
	case types.TagPointer:
		return types.U64
	default:
		return types.I32
	}
}

// lowerExpr lowers an expression to the operand holding its result, always
// a Register-mode operand for direct consumption by a subsequent
// instruction's Src operand (a Memory-mode intermediate is immediately
// loaded via opReadMemory, matching the bytecode generator's documented
// per-operand translation).
func (g *generator) lowerExpr(st *funcState, exprID ast.NodeID) Operand {
	node := g.arena.Node(exprID)
	ty := g.res.Types[exprID]

	switch node.Kind {
	case ast.KindExprLiteral:
		data := node.Data.(ast.ExprLiteralData)
		dst := g.newRegister(st, Temporary, ty)
		g.emit(st, Instruction{Op: OpLoadConstant, Dst: Operand{Mode: Register, Reg: dst}, Literal: data.Literal, Prim: primOf(g.interner, ty)})
		return Operand{Mode: Register, Reg: dst}

	case ast.KindExprSymbolRead:
		return g.lowerSymbolRead(st, node.Data.(ast.ExprSymbolReadData), ty)

	case ast.KindExprBinop:
		return g.lowerBinop(st, node.Data.(ast.ExprBinopData), ty)

	case ast.KindExprUnop:
		return g.lowerUnop(st, node.Data.(ast.ExprUnopData), ty)

	case ast.KindExprCall:
		return g.lowerCall(st, node.Data.(ast.ExprCallData), ty)

	case ast.KindExprMember, ast.KindExprIndex:
		addr := g.lowerAddressOf(st, exprID)
		return g.loadOperand(st, addr, ty)

	case ast.KindExprNew:
		return g.lowerNew(st, node.Data.(ast.ExprNewData), ty)

	case ast.KindExprCast:
		data := node.Data.(ast.ExprCastData)
		// cast_ptr/cast_raw reinterpret bits; cast does a typed numeric
		// conversion. Both are a single MOVE at this level of abstraction:
		// the VM's typed load/store width is what actually performs any
		// narrowing or widening (see vm package).
		operand := g.lowerExpr(st, data.Operand)
		dst := g.newRegister(st, Temporary, ty)
		g.emit(st, Instruction{Op: OpMove, Dst: Operand{Mode: Register, Reg: dst}, Src1: operand, Prim: primOf(g.interner, ty)})
		return Operand{Mode: Register, Reg: dst}

	case ast.KindExprStructInit:
		return g.lowerStructInit(st, node.Data.(ast.ExprStructInitData), ty)

	case ast.KindExprArrayInit:
		return g.lowerArrayInit(st, node.Data.(ast.ExprArrayInitData), ty)

	case ast.KindExprAutoEnum:
		return g.lowerAutoEnum(st, node.Data.(ast.ExprAutoEnumData), ty)

	default:
		// Types, module/struct/enum declarations, bake expressions already
		// folded by the analyser, and error nodes never reach codegen as a
		// runtime value.
		dst := g.newRegister(st, Temporary, ty)
		g.emit(st, Instruction{Op: OpLoadConstant, Dst: Operand{Mode: Register, Reg: dst}, Literal: token.Literal{Kind: token.LIT_INTEGER}, Prim: primOf(g.interner, ty)})
		return Operand{Mode: Register, Reg: dst}
	}
}

func (g *generator) lowerSymbolRead(st *funcState, data ast.ExprSymbolReadData, ty types.ID) Operand {
	sym := g.res.Symbol(data.Resolved)
	if sym == nil {
		dst := g.newRegister(st, Temporary, ty)
		g.emit(st, Instruction{Op: OpLoadConstant, Dst: Operand{Mode: Register, Reg: dst}, Prim: primOf(g.interner, ty)})
		return Operand{Mode: Register, Reg: dst}
	}
	if reg, ok := st.regByNode[sym.Definition]; ok {
		return Operand{Mode: Register, Reg: reg}
	}
	// ComptimeValue symbols were folded into a literal ValueExpr in place
	// by the analyser (maybeFoldComptime); re-emit that literal at each use.
	if sym.Kind == symbol.ComptimeValue && sym.Definition != ast.NoNode {
		def := g.arena.Node(sym.Definition).Data.(ast.DefinitionData)
		if def.ValueExpr != ast.NoNode && g.arena.Node(def.ValueExpr).Kind == ast.KindExprLiteral {
			return g.lowerExpr(st, def.ValueExpr)
		}
	}
	dst := g.newRegister(st, Temporary, ty)
	g.emit(st, Instruction{Op: OpLoadConstant, Dst: Operand{Mode: Register, Reg: dst}, Prim: primOf(g.interner, ty)})
	return Operand{Mode: Register, Reg: dst}
}

func (g *generator) lowerBinop(st *funcState, data ast.ExprBinopData, ty types.ID) Operand {
	left := g.lowerExpr(st, data.Left)
	right := g.lowerExpr(st, data.Right)
	operandTy := g.res.Types[data.Left]
	bop := binOpFor(data.Operator)
	dst := g.newRegister(st, Temporary, ty)
	g.emit(st, Instruction{Op: OpBinary, Dst: Operand{Mode: Register, Reg: dst}, Src1: left, Src2: right, BinOp: bop, Prim: primOf(g.interner, operandTy)})
	return Operand{Mode: Register, Reg: dst}
}

func binOpFor(op token.Operator) BinOp {
	switch op {
	case token.PLUS:
		return Add
	case token.MINUS:
		return Sub
	case token.STAR:
		return Mul
	case token.SLASH:
		return Div
	case token.PERCENT:
		return Mod
	case token.EQ:
		return Eq
	case token.NEQ:
		return Neq
	case token.LT:
		return Lt
	case token.GT:
		return Gt
	case token.LTE:
		return Lte
	case token.GTE:
		return Gte
	case token.AND_AND:
		return LogicalAnd
	case token.OR_OR:
		return LogicalOr
	case token.PTR_EQ:
		return PtrEq
	case token.PTR_NEQ:
		return PtrNeq
	default:
		return Add
	}
}

func (g *generator) lowerUnop(st *funcState, data ast.ExprUnopData, ty types.ID) Operand {
	operand := g.lowerExpr(st, data.Operand)
	dst := g.newRegister(st, Temporary, ty)
	var uop UnOp
	switch data.Operator {
	case token.BANG:
		uop = Not
	default:
		uop = Neg
	}
	g.emit(st, Instruction{Op: OpUnary, Dst: Operand{Mode: Register, Reg: dst}, Src1: operand, UnOp: uop, Prim: primOf(g.interner, ty)})
	return Operand{Mode: Register, Reg: dst}
}

func (g *generator) lowerCall(st *funcState, data ast.ExprCallData, ty types.ID) Operand {
	name, hardcoded := g.calleeName(data.Callee)
	args := make([]Operand, 0, len(data.Arguments))
	for _, argID := range data.Arguments {
		arg := g.arena.Node(argID).Data.(ast.ArgumentData)
		args = append(args, g.lowerExpr(st, arg.Value))
	}
	g.emit(st, Instruction{Op: OpCall, Callee: name, IsHardcoded: hardcoded, Args: args})
	if g.interner.Type(ty).Tag == types.TagPrimitive && g.interner.Type(ty).Prim == types.Void {
		return Operand{}
	}
	dst := g.newRegister(st, Temporary, ty)
	g.emit(st, Instruction{Op: OpLoadReturnValue, Dst: Operand{Mode: Register, Reg: dst}, Prim: primOf(g.interner, ty)})
	return Operand{Mode: Register, Reg: dst}
}

func (g *generator) calleeName(calleeID ast.NodeID) (string, bool) {
	node := g.arena.Node(calleeID)
	if node.Kind != ast.KindExprSymbolRead {
		return "", false
	}
	data := node.Data.(ast.ExprSymbolReadData)
	sym := g.res.Symbol(data.Resolved)
	if sym == nil {
		return symbol.PathString(data.Path), false
	}
	return sym.Name, sym.Kind == symbol.HardcodedFunction
}

func (g *generator) lowerNew(st *funcState, data ast.ExprNewData, ty types.ID) Operand {
	elemTy := g.interner.Type(ty).Elem
	size := g.interner.Type(elemTy).SizeInBytes
	dst := g.newRegister(st, Temporary, ty)
	if data.Count == ast.NoNode {
		g.emit(st, Instruction{Op: OpAlloc, Dst: Operand{Mode: Register, Reg: dst}, Size: size})
		return Operand{Mode: Register, Reg: dst}
	}
	count := g.lowerExpr(st, data.Count)
	g.emit(st, Instruction{Op: OpAllocArray, Dst: Operand{Mode: Register, Reg: dst}, Src1: count, Size: size})
	return Operand{Mode: Register, Reg: dst}
}

// lowerAddressOf computes a Memory-mode operand (a register holding an
// address) for a member or index expression, following the
// CALCULATE_MEMBER_ACCESS_POINTER / CALCULATE_ARRAY_ACCESS_POINTER shape.
func (g *generator) lowerAddressOf(st *funcState, exprID ast.NodeID) Operand {
	node := g.arena.Node(exprID)
	switch node.Kind {
	case ast.KindExprMember:
		data := node.Data.(ast.ExprMemberData)
		recvTy := g.res.Types[data.Receiver]
		base := g.addressOfReceiver(st, data.Receiver, recvTy)
		offset := g.memberOffset(recvTy, data.Name)
		dst := g.newRegister(st, Temporary, g.interner.Pointer(g.res.Types[exprID]))
		g.emit(st, Instruction{Op: OpMemberAccessPointer, Dst: Operand{Mode: Register, Reg: dst}, Src1: base, Offset: offset})
		return Operand{Mode: Memory, Reg: dst}

	case ast.KindExprIndex:
		data := node.Data.(ast.ExprIndexData)
		recvTy := g.res.Types[data.Receiver]
		base := g.lowerExpr(st, data.Receiver) // slice/array/pointer value itself is the base address
		idx := g.lowerExpr(st, data.Index)
		elemTy := g.interner.Type(recvTy).Elem
		size := g.interner.Type(elemTy).SizeInBytes
		dst := g.newRegister(st, Temporary, g.interner.Pointer(elemTy))
		g.emit(st, Instruction{Op: OpArrayAccessPointer, Dst: Operand{Mode: Register, Reg: dst}, Src1: base, Src2: idx, Size: size})
		return Operand{Mode: Memory, Reg: dst}

	default:
		return g.lowerExpr(st, exprID)
	}
}

// addressOfReceiver returns the address of recvID's storage: if recvTy is
// already a pointer (`.member` through a pointer), the pointer's value is
// the base; otherwise recvID must itself be an lvalue, and ADDRESS_OF
// materialises its register's address.
func (g *generator) addressOfReceiver(st *funcState, recvID ast.NodeID, recvTy types.ID) Operand {
	if g.interner.Type(recvTy).Tag == types.TagPointer {
		return g.lowerExpr(st, recvID)
	}
	lv := g.lowerLValue(st, recvID)
	if lv.Mode == Memory {
		return lv
	}
	dst := g.newRegister(st, Temporary, g.interner.Pointer(recvTy))
	g.emit(st, Instruction{Op: OpAddressOf, Dst: Operand{Mode: Register, Reg: dst}, Src1: lv})
	return Operand{Mode: Register, Reg: dst}
}

func (g *generator) memberOffset(structTy types.ID, name string) int {
	t := g.interner.Type(structTy)
	fields := t.Fields
	if t.Tag == types.TagUnion {
		fields = t.Variants
	}
	for _, f := range fields {
		if f.Name == name {
			return f.Offset
		}
	}
	return 0
}

func (g *generator) lowerStructInit(st *funcState, data ast.ExprStructInitData, ty types.ID) Operand {
	size := g.interner.Type(ty).SizeInBytes
	dst := g.newRegister(st, Temporary, ty)
	g.emit(st, Instruction{Op: OpAlloc, Dst: Operand{Mode: Register, Reg: dst}, Size: size})
	fields := g.interner.Type(ty).Fields
	for i, argID := range data.Arguments {
		arg := g.arena.Node(argID).Data.(ast.ArgumentData)
		name := arg.Name
		if name == "" && i < len(fields) {
			name = fields[i].Name
		}
		offset := g.memberOffset(ty, name)
		val := g.lowerExpr(st, arg.Value)
		valTy := g.res.Types[arg.Value]
		addr := g.newRegister(st, Temporary, g.interner.Pointer(valTy))
		g.emit(st, Instruction{Op: OpMemberAccessPointer, Dst: Operand{Mode: Register, Reg: addr}, Src1: Operand{Mode: Register, Reg: dst}, Offset: offset})
		g.emit(st, Instruction{Op: opWriteMemory, Dst: Operand{Mode: Memory, Reg: addr}, Src1: val, Prim: primOf(g.interner, valTy)})
	}
	return Operand{Mode: Register, Reg: dst}
}

func (g *generator) lowerArrayInit(st *funcState, data ast.ExprArrayInitData, ty types.ID) Operand {
	elemTy := g.interner.Type(ty).Elem
	elemSize := g.interner.Type(elemTy).SizeInBytes
	dst := g.newRegister(st, Temporary, ty)
	g.emit(st, Instruction{Op: OpAlloc, Dst: Operand{Mode: Register, Reg: dst}, Size: elemSize * len(data.Values)})
	for i, valID := range data.Values {
		val := g.lowerExpr(st, valID)
		idxLit := g.newRegister(st, Temporary, g.interner.Primitive(types.I32))
		g.emit(st, Instruction{Op: OpLoadConstant, Dst: Operand{Mode: Register, Reg: idxLit}, Literal: token.Literal{Kind: token.LIT_INTEGER, Integer: int64(i)}, Prim: types.I32})
		addr := g.newRegister(st, Temporary, g.interner.Pointer(elemTy))
		g.emit(st, Instruction{Op: OpArrayAccessPointer, Dst: Operand{Mode: Register, Reg: addr}, Src1: Operand{Mode: Register, Reg: dst}, Src2: Operand{Mode: Register, Reg: idxLit}, Size: elemSize})
		g.emit(st, Instruction{Op: opWriteMemory, Dst: Operand{Mode: Memory, Reg: addr}, Src1: val, Prim: primOf(g.interner, elemTy)})
	}
	return Operand{Mode: Register, Reg: dst}
}

func (g *generator) lowerAutoEnum(st *funcState, data ast.ExprAutoEnumData, ty types.ID) Operand {
	t := g.interner.Type(ty)
	var val int64
	for _, m := range t.Members {
		if m.Name == data.Name {
			val = m.Value
			break
		}
	}
	dst := g.newRegister(st, Temporary, ty)
	g.emit(st, Instruction{Op: OpLoadConstant, Dst: Operand{Mode: Register, Reg: dst}, Literal: token.Literal{Kind: token.LIT_INTEGER, Integer: val}, Prim: types.I32})
	return Operand{Mode: Register, Reg: dst}
}

// opReadMemory / opWriteMemory are not exposed as distinct Opcode
// constants the way the bytecode generator's own instructions are: at the
// IR level a memory read/write is represented directly as a Memory-mode
// operand on OpMove, and it is the bytecode generator (not the IR) that
// must materialise the actual READ_MEMORY/WRITE_MEMORY bytecode
// instruction. See bytecode.Generate.
const (
	opReadMemory  = OpMove
	opWriteMemory = OpMove
)
