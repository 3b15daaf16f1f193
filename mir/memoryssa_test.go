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

package mir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trivialStoreLoad builds `int a=9; int main(){ a=6; return a; }` after
// mem2reg+DCE — a single global store immediately followed by a load of
// the same global.
func trivialStoreLoad() (*Function, *Instruction, *Instruction, *DefaultEffect) {
	fn := NewFunction("main", Int)
	entry := fn.NewBlock(".LBB0")

	addr := fn.NewInst(entry, OpGlobalAddr)
	addr.Global, addr.Type = "a", Ptr

	store := fn.NewInst(entry, OpStore)
	store.Args = []Operand{InstOperand{Inst: addr}, ConstIntOperand{Val: 6}}

	load := fn.NewInst(entry, OpLoad)
	load.Args = []Operand{InstOperand{Inst: addr}}
	load.Type = Int

	ret := fn.NewInst(entry, OpRet)
	ret.Args = []Operand{InstOperand{Inst: load}}

	eff := NewDefaultEffect()
	eff.RegisterGlobal("a")
	return fn, store, load, eff
}

func TestMemorySSA_TrivialStoreLoad(t *testing.T) {
	fn, store, load, eff := trivialStoreLoad()
	ssa := BuildMemorySSA(fn, eff)

	storeNode, ok := ssa.GetInstNode(store)
	require.True(t, ok)
	assert.Equal(t, NodeNormal, storeNode.Kind)
	assert.True(t, storeNode.IsStore)
	assert.Equal(t, 0, storeNode.Use.Num, "store's reaching def is liveOnEntry")

	loadNode, ok := ssa.GetInstNode(load)
	require.True(t, ok)
	assert.False(t, loadNode.IsStore)
	assert.Equal(t, storeNode.Num, loadNode.Use.Num, "load reaches the store directly")
}

// conditionalMerge builds `if (a<6) a=8; return a;` — a store on the
// "then" path, nothing on "alt", merging at a join block.
func conditionalMerge() (*Function, *Instruction, *Instruction, *DefaultEffect) {
	fn := NewFunction("main", Int)
	entry := fn.NewBlock(".LBB0")
	then := fn.NewBlock(".LBB1")
	join := fn.NewBlock(".LBB2")

	addr := fn.NewInst(entry, OpGlobalAddr)
	addr.Global, addr.Type = "a", Ptr
	cond := fn.NewInst(entry, OpArith)
	cond.Arith, cond.Type = Lt, Bool
	br := fn.NewInst(entry, OpCondBr)
	br.CondTrueTarget, br.CondFalseTarget = then, join
	entry.AddSucc(then)
	entry.AddSucc(join)

	store := fn.NewInst(then, OpStore)
	store.Args = []Operand{InstOperand{Inst: addr}, ConstIntOperand{Val: 8}}
	jmp := fn.NewInst(then, OpBr)
	jmp.BrTarget = join
	then.AddSucc(join)

	load := fn.NewInst(join, OpLoad)
	load.Args = []Operand{InstOperand{Inst: addr}}
	load.Type = Int
	ret := fn.NewInst(join, OpRet)
	ret.Args = []Operand{InstOperand{Inst: load}}

	eff := NewDefaultEffect()
	eff.RegisterGlobal("a")
	return fn, store, load, eff
}

func TestMemorySSA_ConditionalMerge(t *testing.T) {
	fn, store, load, eff := conditionalMerge()
	ssa := BuildMemorySSA(fn, eff)

	storeNode, ok := ssa.GetInstNode(store)
	require.True(t, ok)

	join := fn.Blocks[2]
	phiSet := ssa.phis[join]
	require.Len(t, phiSet, 1)
	var phi *Node
	for _, p := range phiSet {
		phi = p
	}
	require.Len(t, phi.Incomings, 2)

	byPred := map[string]*Node{}
	for _, in := range phi.Incomings {
		byPred[in.Pred.Label] = in.Node
	}
	assert.Equal(t, storeNode.Num, byPred[".LBB1"].Num, "then-path reaches the store")
	assert.Equal(t, 0, byPred[".LBB0"].Num, "alt path (straight from entry) reaches liveOnEntry")

	loadNode, _ := ssa.GetInstNode(load)
	assert.Equal(t, phi.Num, loadNode.Use.Num, "load reads the join phi")
}

// arrayOverlap builds two GEPs of the same array base with either distinct
// or identical constant trailing indices.
func arrayOverlap(sameIndex bool) (*Function, *Instruction, *Instruction, *DefaultEffect) {
	fn := NewFunction("main", Int)
	entry := fn.NewBlock(".LBB0")

	alloca := fn.NewInst(entry, OpAlloca)
	alloca.Dims = Dims{Counts: []int{4}, Leaf: Int}
	alloca.Type = Ptr

	gep1 := fn.NewInst(entry, OpGEP)
	gep1.Args = []Operand{InstOperand{Inst: alloca}, ConstIntOperand{Val: 1}}
	gep1.Type = Ptr

	secondIdx := int64(2)
	if sameIndex {
		secondIdx = 1
	}
	gep2 := fn.NewInst(entry, OpGEP)
	gep2.Args = []Operand{InstOperand{Inst: alloca}, ConstIntOperand{Val: secondIdx}}
	gep2.Type = Ptr

	store1 := fn.NewInst(entry, OpStore)
	store1.Args = []Operand{InstOperand{Inst: gep1}, ConstIntOperand{Val: 1}}

	storeMid := fn.NewInst(entry, OpStore)
	storeMid.Args = []Operand{InstOperand{Inst: gep2}, ConstIntOperand{Val: 2}}

	load := fn.NewInst(entry, OpLoad)
	load.Args = []Operand{InstOperand{Inst: gep1}}
	load.Type = Int

	ret := fn.NewInst(entry, OpRet)
	ret.Args = []Operand{InstOperand{Inst: load}}

	eff := NewDefaultEffect()
	return fn, store1, load, eff
}

func TestMemorySSA_ArrayNonOverlap(t *testing.T) {
	fn, store1, load, eff := arrayOverlap(false)
	ssa := BuildMemorySSA(fn, eff)

	store1Node, _ := ssa.GetInstNode(store1)
	loadNode, _ := ssa.GetInstNode(load)
	assert.Equal(t, store1Node.Num, loadNode.Use.Num, "non-overlapping intervening store is skipped")

	le := NewLoadElim(ssa)
	forwarded := le.Run(fn)
	got, ok := forwarded[load.ID()]
	require.True(t, ok)
	assert.Equal(t, ConstIntOperand{Val: 1}, got)
}

func TestMemorySSA_ArrayOverlap(t *testing.T) {
	fn, _, load, eff := arrayOverlap(true)
	ssa := BuildMemorySSA(fn, eff)

	// storeMid is the second memory instruction created (alloca isn't
	// memory-affecting at the Normal-node level); its node reaches the load.
	var midStoreNode *Node
	for _, inst := range fn.Blocks[0].Instrs {
		if inst.Op == OpStore {
			if n, ok := ssa.GetInstNode(inst); ok && n.Inst.Args[1] == (Operand)(ConstIntOperand{Val: 2}) {
				midStoreNode = n
			}
		}
	}
	require.NotNil(t, midStoreNode)

	loadNode, _ := ssa.GetInstNode(load)
	assert.Equal(t, midStoreNode.Num, loadNode.Use.Num, "identical-index store is the reaching def")

	le := NewLoadElim(ssa)
	forwarded := le.Run(fn)
	_, eliminated := forwarded[load.ID()]
	assert.False(t, eliminated, "reaching def is not the store of gep1's own value, so no elimination")
}
