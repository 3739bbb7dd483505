// Package bytecode lowers ir.Program into a flat, single-stack-frame
// instruction stream: every ir.Register becomes a byte offset from the
// callee's base pointer (computed the same way
// types.Interner lays out a struct's fields), every function's
// instructions are concatenated into one global list, and every jump and
// call target becomes a concrete global instruction index.
//
// The source this was distilled from treats its interpreter's "registers"
// as slots in a single growable stack (stack[base_pointer + offset]), not
// hardware registers (bytecode.hpp, bytecode_interpreter.cpp); this
// package reproduces that model rather than the "register machine" a
// reader might expect from ir.Register's name. It is also the point where
// ir's Memory-mode operands, which the IR left folded into a plain
// OpMove, are split back out into explicit read/write-through-address
// instructions (see ir.opReadMemory/opWriteMemory's doc comment).
package bytecode

import (
	"github.com/pkg/errors"

	"github.com/upplang/upp/ir"
	"github.com/upplang/upp/token"
	"github.com/upplang/upp/types"
)

// Opcode is the flat instruction kind the VM dispatches on. As in ir, one
// opcode covers every primitive width/signedness; Instruction.Prim selects
// the concrete arithmetic the VM's generic helpers perform.
type Opcode int

const (
	OpLoadConstant Opcode = iota
	OpMove             // stack[Dst] = stack[Src1]
	OpLoadStackAddress // stack[Dst] = base_pointer + Src1 (address-of a local/parameter)
	OpReadMemory       // stack[Dst] = stack[ stack[Src1] ]  (Src1 holds an address)
	OpWriteMemory      // stack[ stack[Dst] ] = stack[Src1]  (Dst holds an address)
	OpBinary
	OpUnary
	OpMemberAccessPointer
	OpArrayAccessPointer
	OpCall
	OpReturn
	OpLoadReturnValue
	OpJump
	OpJumpOnTrue
	OpJumpOnFalse
	OpAlloc
	OpAllocArray
	OpFree
	OpExit
	OpErrorExit
)

// Instruction is one global bytecode instruction. Dst/Src1/Src2 are byte
// offsets from the current call frame's base pointer, except where noted.
type Instruction struct {
	Op   Opcode
	Dst  int
	Src1 int
	Src2 int
	Args []int // OpCall: byte offsets of argument values, in order

	BinOp ir.BinOp
	UnOp  ir.UnOp
	Prim  types.Primitive

	Literal token.Literal // OpLoadConstant

	Target int // OpJump*: global instruction index; OpCall: callee's EntryPoint (0 if hardcoded)

	Callee      string
	IsHardcoded bool

	Size   int
	Offset int

	Message string
}

// RegisterInfo is one register's resolved frame position, carried on
// Function so the VM can both execute (argument marshalling at a call
// site needs the callee's parameter offsets/types) and render a debug
// dump (see vm.Interpreter.DumpStack) without re-deriving layout.
type RegisterInfo struct {
	Offset int
	Type   types.ID
	Role   ir.RegisterRole
}

// Function is one callee's frame layout plus its position in the global
// instruction stream (mirrors the original's Function_Location: a name and
// an entry instruction index).
type Function struct {
	Name       string
	EntryPoint int
	FrameSize  int
	ParamCount int
	ReturnType types.ID
	Registers  []RegisterInfo // parameters first, then locals/temporaries
}

// Program is the whole translation unit: one instruction stream, shared by
// every function, plus each function's metadata.
type Program struct {
	Instructions []Instruction
	Functions    []Function
	EntryPoint   int // "main"'s EntryPoint; -1 if the unit declares none
}

// FunctionAt returns the function whose frame contains the given global
// instruction index, or nil if idx falls outside every known function
// (used by the VM to render a stack trace from an instruction pointer).
func (p *Program) FunctionAt(idx int) *Function {
	var best *Function
	for i := range p.Functions {
		fn := &p.Functions[i]
		if fn.EntryPoint <= idx && (best == nil || fn.EntryPoint > best.EntryPoint) {
			best = fn
		}
	}
	return best
}

// FunctionByName is used by the VM to resolve a call site's callee, both
// for its EntryPoint and for its parameter layout when marshalling
// arguments into the new frame.
func (p *Program) FunctionByName(name string) *Function {
	for i := range p.Functions {
		if p.Functions[i].Name == name {
			return &p.Functions[i]
		}
	}
	return nil
}

// frameLayout is the per-function register-to-offset table computed before
// any instruction is translated, so forward jumps and (after the entry
// point pass below) calls to not-yet-emitted functions can already be
// resolved to concrete offsets/targets.
type frameLayout struct {
	offsets   []int // by ir.RegisterID
	frameSize int
}

func layoutFrame(fn *ir.Function, interner *types.Interner) frameLayout {
	offsets := make([]int, len(fn.Registers))
	offset := 0
	maxAlign := 1
	for i, reg := range fn.Registers {
		t := interner.Type(reg.Type)
		offset = types.AlignNextMultiple(offset, t.AlignmentInBytes)
		offsets[i] = offset
		offset += t.SizeInBytes
		if t.AlignmentInBytes > maxAlign {
			maxAlign = t.AlignmentInBytes
		}
	}
	return frameLayout{offsets: offsets, frameSize: types.AlignNextMultiple(offset, maxAlign)}
}

// Generate translates prog into a flat Program: a flat instruction list
// plus a function table mapping name to entry point. Every ir.Function's
// instructions are emitted 1:1 -- no ir
// instruction expands into more than one bytecode instruction, so a
// function's instruction count, and therefore every other function's entry
// point, is known before any instruction is actually translated.
func Generate(prog *ir.Program, interner *types.Interner) (*Program, []error) {
	entryPoints := make(map[string]int, len(prog.Functions))
	cursor := 0
	for _, fn := range prog.Functions {
		entryPoints[fn.Name] = cursor
		cursor += len(fn.Instructions)
	}

	out := &Program{Instructions: make([]Instruction, 0, cursor), EntryPoint: -1}
	var errs []error

	for _, fn := range prog.Functions {
		layout := layoutFrame(fn, interner)
		entry := entryPoints[fn.Name]
		registers := make([]RegisterInfo, len(fn.Registers))
		for i, reg := range fn.Registers {
			registers[i] = RegisterInfo{Offset: layout.offsets[i], Type: reg.Type, Role: reg.Role}
		}
		out.Functions = append(out.Functions, Function{
			Name:       fn.Name,
			EntryPoint: entry,
			FrameSize:  layout.frameSize,
			ParamCount: fn.ParamCount,
			ReturnType: fn.ReturnType,
			Registers:  registers,
		})
		if fn.Name == prog.Main {
			out.EntryPoint = entry
		}
		retIsVoid := interner.Type(fn.ReturnType).Tag == types.TagPrimitive && interner.Type(fn.ReturnType).Prim == types.Void
		for _, instr := range fn.Instructions {
			bc, err := translateInstruction(instr, layout, entry, entryPoints, retIsVoid)
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "bytecode: function %q", fn.Name))
				continue
			}
			out.Instructions = append(out.Instructions, bc)
		}
	}
	return out, errs
}

func translateInstruction(instr ir.Instruction, layout frameLayout, entry int, entryPoints map[string]int, retIsVoid bool) (Instruction, error) {
	off := func(op ir.Operand) int { return layout.offsets[op.Reg] }

	bc := Instruction{
		BinOp: instr.BinOp, UnOp: instr.UnOp, Prim: instr.Prim,
		Literal: instr.Literal, Callee: instr.Callee, IsHardcoded: instr.IsHardcoded,
		Size: instr.Size, Offset: instr.Offset, Message: instr.Message,
	}

	switch instr.Op {
	case ir.OpLoadConstant:
		bc.Op = OpLoadConstant
		bc.Dst = off(instr.Dst)

	case ir.OpMove:
		bc.Dst, bc.Src1 = off(instr.Dst), off(instr.Src1)
		switch {
		case instr.Dst.Mode == ir.Memory:
			bc.Op = OpWriteMemory
		case instr.Src1.Mode == ir.Memory:
			bc.Op = OpReadMemory
		default:
			bc.Op = OpMove
		}

	case ir.OpBinary:
		bc.Op, bc.Dst, bc.Src1, bc.Src2 = OpBinary, off(instr.Dst), off(instr.Src1), off(instr.Src2)

	case ir.OpUnary:
		bc.Op, bc.Dst, bc.Src1 = OpUnary, off(instr.Dst), off(instr.Src1)

	case ir.OpAddressOf:
		bc.Op, bc.Dst, bc.Src1 = OpLoadStackAddress, off(instr.Dst), off(instr.Src1)

	case ir.OpMemberAccessPointer:
		bc.Op, bc.Dst, bc.Src1 = OpMemberAccessPointer, off(instr.Dst), off(instr.Src1)

	case ir.OpArrayAccessPointer:
		bc.Op, bc.Dst, bc.Src1, bc.Src2 = OpArrayAccessPointer, off(instr.Dst), off(instr.Src1), off(instr.Src2)

	case ir.OpCall:
		bc.Op = OpCall
		bc.Args = make([]int, len(instr.Args))
		for i, a := range instr.Args {
			bc.Args[i] = off(a)
		}
		if instr.IsHardcoded {
			break
		}
		target, ok := entryPoints[instr.Callee]
		if !ok {
			return Instruction{}, errors.Errorf("call to undefined function %q", instr.Callee)
		}
		bc.Target = target

	case ir.OpReturn:
		bc.Op = OpReturn
		bc.Src1 = -1
		if !retIsVoid {
			bc.Src1 = off(instr.Src1)
		}

	case ir.OpLoadReturnValue:
		bc.Op, bc.Dst = OpLoadReturnValue, off(instr.Dst)

	case ir.OpJump:
		bc.Op, bc.Target = OpJump, entry+instr.Target

	case ir.OpJumpOnTrue:
		bc.Op, bc.Src1, bc.Target = OpJumpOnTrue, off(instr.Src1), entry+instr.Target

	case ir.OpJumpOnFalse:
		bc.Op, bc.Src1, bc.Target = OpJumpOnFalse, off(instr.Src1), entry+instr.Target

	case ir.OpAlloc:
		bc.Op, bc.Dst = OpAlloc, off(instr.Dst)

	case ir.OpAllocArray:
		bc.Op, bc.Dst, bc.Src1 = OpAllocArray, off(instr.Dst), off(instr.Src1)

	case ir.OpFree:
		bc.Op, bc.Src1 = OpFree, off(instr.Src1)

	case ir.OpExit:
		bc.Op, bc.Src1 = OpExit, off(instr.Src1)

	case ir.OpErrorExit:
		bc.Op = OpErrorExit

	default:
		return Instruction{}, errors.Errorf("unhandled ir opcode %d", instr.Op)
	}
	return bc, nil
}
