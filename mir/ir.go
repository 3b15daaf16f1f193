// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package mir is the assumed mid-level, SSA-form IR surface the backend
// lowers from: a Program holding one Module of Functions and global
// variables, each Function a list of BasicBlocks in SSA form.
//
// Generating this IR (parsing, mem2reg, mid-level optimization) is out of
// scope; this package only defines the shape LoweringBuilder, MemorySSA and
// LoadElim consume.
package mir

import "fmt"

// Type is the small set of scalar/pointer types the backend cares about.
type Type int

const (
	Void Type = iota
	Int
	Bool
	Float
	Ptr
)

func (t Type) String() string {
	switch t {
	case Void:
		return "void"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Float:
		return "float"
	case Ptr:
		return "ptr"
	default:
		return "?"
	}
}

// IsFloatClass reports whether values of this type live in float registers.
func (t Type) IsFloatClass() bool { return t == Float }

// Dims is a nested-array dimension descriptor, outer-to-inner, e.g. for
// `int a[3][4]` Counts = []int{3, 4}. A bare scalar has Counts == nil.
type Dims struct {
	Counts []int
	Leaf   Type
}

// ScalarDims describes a bare scalar of the given leaf type.
func ScalarDims(leaf Type) Dims { return Dims{Leaf: leaf} }

// Size is the total number of leaf elements (product of Counts; 1 if scalar).
func (d Dims) Size() int {
	n := 1
	for _, c := range d.Counts {
		n *= c
	}
	return n
}

// IsArray reports whether there is at least one more dimension to descend
// into (at least one count remaining).
func (d Dims) IsArray() bool { return len(d.Counts) > 0 }

// Sub descends one level, stripping the outermost dimension count.
func (d Dims) Sub() Dims {
	if len(d.Counts) == 0 {
		return d
	}
	return Dims{Counts: d.Counts[1:], Leaf: d.Leaf}
}

// SizeOfSub is the element count of k whole sub-dimensions (the correct,
// multiplicative resolution of the original's suspect partial-sum formula;
// see DESIGN.md open-question 3).
func (d Dims) SizeOfSub(k int) int {
	return k * d.Sub().Size()
}

// InnerSize is the element count of one step into the current dimension (1
// for a scalar leaf).
func (d Dims) InnerSize() int {
	if !d.IsArray() {
		return 1
	}
	return d.Sub().Size()
}

// LeafScale is the power-of-two byte-shift amount for the leaf scalar type
// (see DESIGN.md open-question 2); both Int and Float leaves in this corpus
// are 4 bytes wide, giving a shift of 2.
func (d Dims) LeafScale() uint {
	switch d.Leaf {
	case Int, Bool, Float:
		return 2
	default:
		return 2
	}
}

// Reversed returns the dimension counts in inner-to-outer order.
func (d Dims) Reversed() Dims {
	rev := make([]int, len(d.Counts))
	for i, c := range d.Counts {
		rev[len(d.Counts)-1-i] = c
	}
	return Dims{Counts: rev, Leaf: d.Leaf}
}

// InstID is an opaque, per-function, monotonically increasing instruction
// identity, used as a map key by MemorySSA instead of pointer identity.
type InstID int

// ArithOp is the sub-opcode for Op Arith instructions.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
	Rem
	Lt
	Le
	Gt
	Ge
	Eq
	Ne
	And
	Or
	Xor
	Shl
	Shr
)

func (a ArithOp) String() string {
	names := [...]string{"add", "sub", "mul", "div", "rem", "lt", "le", "gt", "ge", "eq", "ne", "and", "or", "xor", "shl", "shr"}
	if int(a) < len(names) {
		return names[a]
	}
	return "?"
}

// Op is the mid-level opcode. A single tagged struct (Instruction) carries
// one of these, mirroring a classic Value/Op shape rather than one Go type
// per opcode.
type Op int

const (
	OpParam Op = iota
	OpConstInt
	OpConstFloat
	OpConstBool
	OpGlobalAddr
	OpAlloca
	OpLoad
	OpStore
	OpGEP
	OpArith
	OpCall
	OpPhi
	OpBr
	OpCondBr
	OpRet
)

func (o Op) String() string {
	names := [...]string{"param", "const.i", "const.f", "const.b", "global.addr", "alloca",
		"load", "store", "gep", "arith", "call", "phi", "br", "condbr", "ret"}
	if int(o) < len(names) {
		return names[o]
	}
	return "?"
}

// Operand is a use of another value: a constant, a reference to another
// instruction's result, or a direct global reference.
type Operand interface {
	isOperand()
	String() string
}

// ConstIntOperand is an integer or bool literal.
type ConstIntOperand struct{ Val int64 }

func (ConstIntOperand) isOperand()        {}
func (o ConstIntOperand) String() string  { return fmt.Sprintf("%d", o.Val) }

// ConstFloatOperand is a floating-point literal.
type ConstFloatOperand struct{ Val float64 }

func (ConstFloatOperand) isOperand()       {}
func (o ConstFloatOperand) String() string { return fmt.Sprintf("%g", o.Val) }

// GlobalOperand names a global variable directly (used as a GEP base).
type GlobalOperand struct{ Name string }

func (GlobalOperand) isOperand()        {}
func (o GlobalOperand) String() string  { return "@" + o.Name }

// InstOperand refers to the result of another instruction (or a parameter,
// which is itself represented as an OpParam instruction at function entry).
type InstOperand struct{ Inst *Instruction }

func (InstOperand) isOperand()       {}
func (o InstOperand) String() string { return fmt.Sprintf("%%%d", o.Inst.id) }

// Instruction is the single tagged-union MIR node. Only the fields relevant
// to Op are meaningful; this mirrors compile/ssa/hir.go's Value shape.
type Instruction struct {
	id    InstID
	block *BasicBlock

	Op   Op
	Type Type
	Name string // optional debug name, e.g. source variable name

	Arith ArithOp // meaningful when Op == OpArith

	ConstInt   int64
	ConstFloat float64
	ConstBool  bool

	Global string // global name for OpGlobalAddr/OpCall(callee)/OpAlloca debug
	Dims   Dims   // element-type shape for OpAlloca/OpGEP's base

	ParamIndex int // meaningful when Op == OpParam

	Args []Operand // operand list, meaning depends on Op

	// Terminator-only fields.
	BrTarget        *BasicBlock
	CondTrueTarget  *BasicBlock
	CondFalseTarget *BasicBlock

	// OpPhi incoming values, one per Preds entry of the owning block, same order.
	PhiIncoming []Operand
}

// ID returns this instruction's stable per-function identity.
func (i *Instruction) ID() InstID { return i.id }

// Block returns the owning basic block.
func (i *Instruction) Block() *BasicBlock { return i.block }

// IsMemory reports whether this opcode can read or write memory at all
// (a cheap filter before consulting EffectAnalysis).
func (i *Instruction) IsMemory() bool {
	switch i.Op {
	case OpLoad, OpStore, OpCall:
		return true
	default:
		return false
	}
}

// BasicBlock is a straight-line sequence of non-terminator instructions
// followed by exactly one terminator (Br/CondBr/Ret), stored separately in
// Term.
type BasicBlock struct {
	Label  string
	Func   *Function
	Instrs []*Instruction
	Term   *Instruction
	Preds  []*BasicBlock
	Succs  []*BasicBlock
}

// AddSucc wires a CFG edge to succ, appending to both Succs and succ.Preds.
func (b *BasicBlock) AddSucc(succ *BasicBlock) {
	b.Succs = append(b.Succs, succ)
	succ.Preds = append(succ.Preds, b)
}

// Function is one MIR function: parameters (as OpParam instructions at
// entry), a return type, and blocks in source order (first is the entry).
type Function struct {
	Name       string
	Params     []*Instruction
	ReturnType Type
	Blocks     []*BasicBlock
	// IsDeclaration marks a library declaration with no body; LoadElim and
	// MemorySSA skip these.
	IsDeclaration bool

	nextID InstID
}

// Entry returns the function's entry block, or nil if it has none.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NewFunction allocates an empty function.
func NewFunction(name string, ret Type) *Function {
	return &Function{Name: name, ReturnType: ret}
}

// NewParam appends a fresh parameter of the given type and index.
func (f *Function) NewParam(name string, t Type, index int) *Instruction {
	inst := &Instruction{id: f.nextID, Op: OpParam, Type: t, Name: name, ParamIndex: index}
	f.nextID++
	f.Params = append(f.Params, inst)
	return inst
}

// NewBlock appends a fresh, empty block.
func (f *Function) NewBlock(label string) *BasicBlock {
	b := &BasicBlock{Label: label, Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewInst mints a fresh instruction in block b, assigning the next InstID.
func (f *Function) NewInst(b *BasicBlock, op Op) *Instruction {
	inst := &Instruction{id: f.nextID, block: b, Op: op}
	f.nextID++
	if op == OpBr || op == OpCondBr || op == OpRet {
		b.Term = inst
	} else {
		b.Instrs = append(b.Instrs, inst)
	}
	return inst
}

// GlobalVar is a module-level variable, scalar or array.
type GlobalVar struct {
	Name string
	Dims Dims
	// Init is the optional constant initializer list, in flattened element
	// order; nil means zero-initialized.
	Init []Operand
}

// Module is the input-side module: one function list and one global list.
type Module struct {
	Name       string
	Functions  []*Function
	GlobalVars []*GlobalVar
}

// Program is the top-level input surface: a single Module.
type Program struct {
	Module *Module
}

// NewProgram allocates an empty program with an empty module.
func NewProgram(moduleName string) *Program {
	return &Program{Module: &Module{Name: moduleName}}
}

func (f *Function) String() string {
	s := fmt.Sprintf("func %s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%%%d:%s", p.id, p.Type)
	}
	s += fmt.Sprintf(") -> %s\n", f.ReturnType)
	for _, b := range f.Blocks {
		s += fmt.Sprintf("%s:\n", b.Label)
		for _, inst := range b.Instrs {
			s += fmt.Sprintf("  %%%d = %s\n", inst.id, inst.Op)
		}
		if b.Term != nil {
			s += fmt.Sprintf("  %s\n", b.Term.Op)
		}
	}
	return s
}
