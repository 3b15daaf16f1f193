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

// LoadElim finds loads whose reaching MemorySSA definition is a dominating
// store to the same address and records the stored value as their
// replacement. The load instructions stay in their blocks; callers rewrite
// uses of a load's result from the map Run returns.
type LoadElim struct {
	ssa *MemorySSA
	// Replaced counts loads eliminated.
	Replaced int
}

// NewLoadElim wraps an already-built MemorySSA for one function.
func NewLoadElim(ssa *MemorySSA) *LoadElim {
	return &LoadElim{ssa: ssa}
}

// Run eliminates loads in fn (a function already indexed by le's MemorySSA)
// and returns the set of eliminated loads mapped to their forwarded operand,
// so the caller can rewrite uses of the load's result.
func (le *LoadElim) Run(fn *Function) map[InstID]Operand {
	forwarded := make(map[InstID]Operand)
	for _, b := range fn.Blocks {
		for _, inst := range b.Instrs {
			if inst.Op != OpLoad {
				continue
			}
			if op, ok := le.processInst(inst); ok {
				forwarded[inst.ID()] = op
				le.Replaced++
			}
		}
	}
	return forwarded
}

// processInst implements the matching-store check: the load's Normal node's
// Use must be another Normal node whose owner is a store, and that store's
// address must be the load's own address (a "matching store", not merely a
// MayAlias-reaching one — a store to a *different* GEP instance of the same
// array element must be left alone). When both hold, the stored value
// replaces the load.
func (le *LoadElim) processInst(load *Instruction) (Operand, bool) {
	node, ok := le.ssa.GetInstNode(load)
	if !ok {
		return nil, false
	}
	use := node.Use
	if use == nil || use.Kind != NodeNormal || !use.IsStore {
		return nil, false
	}
	store := use.Inst
	if store.Op != OpStore {
		return nil, false
	}
	if !sameAddress(load.Args[0], store.Args[0]) {
		return nil, false
	}
	storedValue := store.Args[1]
	le.ssa.ReplaceNode(node, use)
	return storedValue, true
}

// sameAddress reports whether two address operands refer to the identical
// address-producing instruction or global, not merely an aliasing location.
func sameAddress(a, b Operand) bool {
	switch va := a.(type) {
	case InstOperand:
		vb, ok := b.(InstOperand)
		return ok && va.Inst == vb.Inst
	case GlobalOperand:
		vb, ok := b.(GlobalOperand)
		return ok && va.Name == vb.Name
	default:
		return false
	}
}

// OptimizeProgram runs LoadElim over every non-declaration function in the
// program, building a fresh EffectAnalysis-parameterized MemorySSA per
// function first.
func OptimizeProgram(p *Program, effect EffectAnalysis) map[string]map[InstID]Operand {
	out := make(map[string]map[InstID]Operand)
	for _, fn := range p.Module.Functions {
		if fn.IsDeclaration {
			continue
		}
		ssa := BuildMemorySSA(fn, effect)
		le := NewLoadElim(ssa)
		out[fn.Name] = le.Run(fn)
	}
	return out
}
