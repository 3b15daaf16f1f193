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

// Package llvmfront converts a parsed github.com/llir/llvm module into this
// module's own mir.Program, giving the backend its "from_llvm" input path
// alongside a directly-constructed mir.Program. It translates in a single
// pre-pass rather than an on-the-fly builder, since mir.Function/BasicBlock
// are already a convenient SSA target to translate into directly.
package llvmfront

import (
	"os"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"riscvlower/errs"
	"riscvlower/mir"
)

// ParseFile parses a textual LLVM IR file and converts it to a mir.Program.
func ParseFile(path string) (*mir.Program, *errs.Error) {
	m, err := asm.ParseFile(path)
	if err != nil {
		return nil, errs.Parse(err, "parsing LLVM IR file %q", path)
	}
	return Convert(m)
}

// ParseString parses textual LLVM IR from src and converts it.
func ParseString(src string) (*mir.Program, *errs.Error) {
	m, err := asm.ParseString("<string>", src)
	if err != nil {
		return nil, errs.Parse(err, "parsing LLVM IR string")
	}
	return Convert(m)
}

// MustReadFile is a convenience wrapper surfacing a file-not-found
// condition as a ParseError rather than an os.Stat panic.
func MustReadFile(path string) ([]byte, *errs.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Parse(err, "reading %q", path)
	}
	return data, nil
}

// Convert walks an *ir.Module and builds the equivalent *mir.Program.
func Convert(m *ir.Module) (*mir.Program, *errs.Error) {
	c := &converter{
		prog:    mir.NewProgram("llvm_module"),
		globals: make(map[string]*mir.GlobalVar),
	}
	for _, g := range m.Globals {
		gv := c.convertGlobal(g)
		c.prog.Module.GlobalVars = append(c.prog.Module.GlobalVars, gv)
		c.globals[g.Name()] = gv
	}
	for _, f := range m.Funcs {
		fn, err := c.convertFunc(f)
		if err != nil {
			return nil, err
		}
		c.prog.Module.Functions = append(c.prog.Module.Functions, fn)
	}
	return c.prog, nil
}

type converter struct {
	prog    *mir.Program
	globals map[string]*mir.GlobalVar
}

func convertType(t types.Type) mir.Type {
	switch tt := t.(type) {
	case *types.IntType:
		if tt.BitSize == 1 {
			return mir.Bool
		}
		return mir.Int
	case *types.FloatType:
		return mir.Float
	case *types.PointerType:
		return mir.Ptr
	case *types.VoidType:
		return mir.Void
	default:
		return mir.Ptr
	}
}

// dimsOf reads a (possibly multi-dimensional) array type into mir.Dims; a
// non-array type is a scalar Dims of its own leaf type.
func dimsOf(t types.Type) mir.Dims {
	var counts []int
	cur := t
	for {
		at, ok := cur.(*types.ArrayType)
		if !ok {
			break
		}
		counts = append(counts, int(at.Len))
		cur = at.ElemType
	}
	return mir.Dims{Counts: counts, Leaf: convertType(cur)}
}

func (c *converter) convertGlobal(g *ir.Global) *mir.GlobalVar {
	elemType := g.ContentType
	gv := &mir.GlobalVar{Name: g.Name(), Dims: dimsOf(elemType)}
	if g.Init != nil {
		gv.Init = flattenConstant(g.Init)
	}
	return gv
}

// flattenConstant lowers a (possibly nested array) constant initializer
// into a flat, element-order operand list. Arrays of int/float constants
// yield one operand per element; any other constant (e.g. zeroinitializer)
// yields a single 0, whatever the size of its type.
func flattenConstant(v constant.Constant) []mir.Operand {
	switch cv := v.(type) {
	case *constant.Array:
		var out []mir.Operand
		for _, elem := range cv.Elems {
			out = append(out, flattenConstant(elem)...)
		}
		return out
	case *constant.Int:
		return []mir.Operand{mir.ConstIntOperand{Val: cv.X.Int64()}}
	case *constant.Float:
		f, _ := cv.X.Float64()
		return []mir.Operand{mir.ConstFloatOperand{Val: f}}
	default:
		return []mir.Operand{mir.ConstIntOperand{Val: 0}}
	}
}

// convertFunc translates one *ir.Func's parameters and basic blocks into a
// mir.Function, resolving LLVM's %name SSA values to mir Operands as it
// walks each block in order (an LLVM module's blocks are already in valid
// dominance order for straight-line translation, same assumption the rest
// of this package makes of mir.Function.Blocks).
func (c *converter) convertFunc(f *ir.Function) (*mir.Function, *errs.Error) {
	ret := convertType(f.Sig.RetType)
	fn := mir.NewFunction(f.Name(), ret)
	if len(f.Blocks) == 0 {
		fn.IsDeclaration = true
	}

	values := make(map[value.Value]mir.Operand)

	for i, p := range f.Params {
		inst := fn.NewParam(p.Name(), convertType(p.Type()), i)
		values[p] = mir.InstOperand{Inst: inst}
	}

	blockByIdent := make(map[string]*mir.BasicBlock)
	for _, b := range f.Blocks {
		blockByIdent[b.Name()] = fn.NewBlock(b.Name())
	}

	for _, b := range f.Blocks {
		tb := blockByIdent[b.Name()]
		for _, inst := range b.Insts {
			if err := c.convertInst(fn, tb, inst, values, blockByIdent); err != nil {
				return nil, err
			}
		}
		if err := c.convertTerm(fn, tb, b.Term, values, blockByIdent); err != nil {
			return nil, err
		}
	}
	// Wire predecessor/successor edges now that every block exists.
	for _, b := range f.Blocks {
		tb := blockByIdent[b.Name()]
		for _, succName := range termSuccessors(b.Term) {
			tb.AddSucc(blockByIdent[succName])
		}
	}
	return fn, nil
}

func (c *converter) operand(values map[value.Value]mir.Operand, v value.Value) mir.Operand {
	if op, ok := values[v]; ok {
		return op
	}
	switch cv := v.(type) {
	case *constant.Int:
		return mir.ConstIntOperand{Val: cv.X.Int64()}
	case *constant.Float:
		f, _ := cv.X.Float64()
		return mir.ConstFloatOperand{Val: f}
	case *ir.Global:
		return mir.GlobalOperand{Name: cv.Name()}
	default:
		return mir.ConstIntOperand{Val: 0}
	}
}

// convertInst handles the non-terminator instruction shapes this adapter
// supports: alloca, load, store, getelementptr, the integer/float binary
// ops, icmp/fcmp, and call. Anything else surfaces as UnsupportedIR, since
// this module's scope is lowering, not general LLVM-IR coverage.
func (c *converter) convertInst(fn *mir.Function, tb *mir.BasicBlock, inst ir.Instruction, values map[value.Value]mir.Operand, blocks map[string]*mir.BasicBlock) *errs.Error {
	named, hasName := inst.(value.Named)
	switch ii := inst.(type) {
	case *ir.InstAlloca:
		out := fn.NewInst(tb, mir.OpAlloca)
		out.Type = mir.Ptr
		out.Dims = dimsOf(ii.ElemType)
		values[ii] = mir.InstOperand{Inst: out}
	case *ir.InstLoad:
		out := fn.NewInst(tb, mir.OpLoad)
		out.Type = convertType(ii.Typ)
		out.Args = []mir.Operand{c.operand(values, ii.Src)}
		values[ii] = mir.InstOperand{Inst: out}
	case *ir.InstStore:
		out := fn.NewInst(tb, mir.OpStore)
		out.Args = []mir.Operand{c.operand(values, ii.Dst), c.operand(values, ii.Src)}
	case *ir.InstGetElementPtr:
		out := fn.NewInst(tb, mir.OpGEP)
		out.Type = mir.Ptr
		args := []mir.Operand{c.operand(values, ii.Src)}
		for _, idx := range ii.Indices {
			args = append(args, c.operand(values, idx))
		}
		out.Args = args
		values[ii] = mir.InstOperand{Inst: out}
	case *ir.InstCall:
		out := fn.NewInst(tb, mir.OpCall)
		out.Type = convertType(ii.Typ)
		if callee, ok := ii.Callee.(*ir.Function); ok {
			out.Global = callee.Name()
		}
		var args []mir.Operand
		for _, a := range ii.Args {
			args = append(args, c.operand(values, a))
		}
		out.Args = args
		values[ii] = mir.InstOperand{Inst: out}
	default:
		if op, arith, ok := binaryArith(ii); ok {
			out := fn.NewInst(tb, mir.OpArith)
			out.Type = convertType(valueType(ii))
			out.Arith = arith
			out.Args = []mir.Operand{c.operand(values, op[0]), c.operand(values, op[1])}
			values[ii] = mir.InstOperand{Inst: out}
		} else {
			return errs.Unsupported("llvm instruction %T", inst)
		}
	}
	_ = hasName
	_ = named
	return nil
}

// binaryArith recognizes the llir/llvm binary-instruction and compare-
// instruction variants this adapter maps onto mir.OpArith, returning their
// two operands and the matching mir.ArithOp.
func binaryArith(inst ir.Instruction) ([2]value.Value, mir.ArithOp, bool) {
	switch ii := inst.(type) {
	case *ir.InstAdd:
		return [2]value.Value{ii.X, ii.Y}, mir.Add, true
	case *ir.InstSub:
		return [2]value.Value{ii.X, ii.Y}, mir.Sub, true
	case *ir.InstMul:
		return [2]value.Value{ii.X, ii.Y}, mir.Mul, true
	case *ir.InstSDiv:
		return [2]value.Value{ii.X, ii.Y}, mir.Div, true
	case *ir.InstSRem:
		return [2]value.Value{ii.X, ii.Y}, mir.Rem, true
	case *ir.InstAnd:
		return [2]value.Value{ii.X, ii.Y}, mir.And, true
	case *ir.InstOr:
		return [2]value.Value{ii.X, ii.Y}, mir.Or, true
	case *ir.InstXor:
		return [2]value.Value{ii.X, ii.Y}, mir.Xor, true
	case *ir.InstShl:
		return [2]value.Value{ii.X, ii.Y}, mir.Shl, true
	case *ir.InstLShr:
		return [2]value.Value{ii.X, ii.Y}, mir.Shr, true
	case *ir.InstFAdd:
		return [2]value.Value{ii.X, ii.Y}, mir.Add, true
	case *ir.InstFSub:
		return [2]value.Value{ii.X, ii.Y}, mir.Sub, true
	case *ir.InstFMul:
		return [2]value.Value{ii.X, ii.Y}, mir.Mul, true
	case *ir.InstFDiv:
		return [2]value.Value{ii.X, ii.Y}, mir.Div, true
	case *ir.InstICmp:
		return [2]value.Value{ii.X, ii.Y}, icmpOp(ii.Pred), true
	case *ir.InstFCmp:
		return [2]value.Value{ii.X, ii.Y}, fcmpOp(ii.Pred), true
	default:
		return [2]value.Value{}, 0, false
	}
}

func valueType(inst ir.Instruction) types.Type {
	if t, ok := inst.(value.Value); ok {
		return t.Type()
	}
	return types.I64
}

func icmpOp(pred ir.IPred) mir.ArithOp {
	switch pred {
	case ir.IPredEQ:
		return mir.Eq
	case ir.IPredNE:
		return mir.Ne
	case ir.IPredSLT, ir.IPredULT:
		return mir.Lt
	case ir.IPredSLE, ir.IPredULE:
		return mir.Le
	case ir.IPredSGT, ir.IPredUGT:
		return mir.Gt
	case ir.IPredSGE, ir.IPredUGE:
		return mir.Ge
	default:
		return mir.Eq
	}
}

func fcmpOp(pred ir.FPred) mir.ArithOp {
	switch pred {
	case ir.FPredOEQ, ir.FPredUEQ:
		return mir.Eq
	case ir.FPredONE, ir.FPredUNE:
		return mir.Ne
	case ir.FPredOLT, ir.FPredULT:
		return mir.Lt
	case ir.FPredOLE, ir.FPredULE:
		return mir.Le
	case ir.FPredOGT, ir.FPredUGT:
		return mir.Gt
	case ir.FPredOGE, ir.FPredUGE:
		return mir.Ge
	default:
		return mir.Eq
	}
}

// convertTerm handles ret/br/condbr; any other terminator surfaces as
// UnsupportedIR.
func (c *converter) convertTerm(fn *mir.Function, tb *mir.BasicBlock, term ir.Terminator, values map[value.Value]mir.Operand, blocks map[string]*mir.BasicBlock) *errs.Error {
	switch t := term.(type) {
	case *ir.TermRet:
		out := fn.NewInst(tb, mir.OpRet)
		if t.X != nil {
			out.Args = []mir.Operand{c.operand(values, t.X)}
		}
	case *ir.TermBr:
		out := fn.NewInst(tb, mir.OpBr)
		out.BrTarget = blocks[t.Target.Name()]
	case *ir.TermCondBr:
		out := fn.NewInst(tb, mir.OpCondBr)
		out.Args = []mir.Operand{c.operand(values, t.Cond)}
		out.CondTrueTarget = blocks[t.TargetTrue.Name()]
		out.CondFalseTarget = blocks[t.TargetFalse.Name()]
	default:
		return errs.Unsupported("llvm terminator %T", term)
	}
	return nil
}

func termSuccessors(term ir.Terminator) []string {
	switch t := term.(type) {
	case *ir.TermBr:
		return []string{t.Target.Name()}
	case *ir.TermCondBr:
		return []string{t.TargetTrue.Name(), t.TargetFalse.Name()}
	default:
		return nil
	}
}
