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
	"fmt"
	"sort"
	"strings"
)

// NodeKind tags a MemorySSA node's variant.
type NodeKind int

const (
	NodeEntry NodeKind = iota
	NodeNormal
	NodePhi
)

// PhiIncoming is one (reaching-node, predecessor-block) pair of a Phi node.
type PhiIncoming struct {
	Node *Node
	Pred *BasicBlock
}

// Node is a MemorySSA node: the liveOnEntry sentinel, a memory-def/use
// wrapping a real instruction, or a phi merging divergent reaching defs.
type Node struct {
	Num  int
	Kind NodeKind

	// Normal-only fields.
	Inst    *Instruction
	Use     *Node
	IsStore bool

	// Phi-only fields.
	Block     *BasicBlock
	Incomings []PhiIncoming

	dead bool
}

func (n *Node) String() string {
	switch n.Kind {
	case NodeEntry:
		return fmt.Sprintf("%d (liveOnEntry)", n.Num)
	case NodePhi:
		parts := make([]string, len(n.Incomings))
		for i, in := range n.Incomings {
			parts[i] = fmt.Sprintf("%d, %s", in.Node.Num, in.Pred.Label)
		}
		return fmt.Sprintf("%d = MemoryPhi(%s)", n.Num, joinParen(parts))
	default: // NodeNormal
		if n.IsStore {
			return fmt.Sprintf("%d = MemoryDef(%d)", n.Num, n.Use.Num)
		}
		return fmt.Sprintf("MemoryUse(%d)", n.Use.Num)
	}
}

func joinParen(parts []string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = "[" + p + "]"
	}
	return strings.Join(out, ", ")
}

// MemorySSA is the per-function memory-def/use/phi graph built from an
// EffectAnalysis over one Function's CFG.
type MemorySSA struct {
	Func   *Function
	Effect EffectAnalysis

	entry    *Node
	nextNum  int
	instNode map[InstID]*Node
	// phis maps (block, base) to its Phi node. Phis are placed per base, so
	// a block where defs of several bases merge carries one Phi per base,
	// not a single Phi for the whole block.
	phis map[*BasicBlock]map[baseKey]*Node
}

// BuildMemorySSA runs the full MemorySSA construction algorithm.
func BuildMemorySSA(fn *Function, effect EffectAnalysis) *MemorySSA {
	m := &MemorySSA{
		Func:     fn,
		Effect:   effect,
		instNode: make(map[InstID]*Node),
		phis:     make(map[*BasicBlock]map[baseKey]*Node),
	}
	m.entry = &Node{Num: 0, Kind: NodeEntry}
	m.nextNum = 1

	if fn.Entry() == nil {
		return m
	}

	dt := BuildDomTree(fn)
	df := dt.Frontier()

	// Step 1+2: per base, find def blocks and place phis at their IDF.
	defBlocks := make(map[baseKey][]*BasicBlock)
	seenBase := make(map[baseKey]bool)
	for _, b := range fn.Blocks {
		for _, inst := range allMemoryInsts(b) {
			for _, loc := range effect.MayWrite(inst) {
				k := loc.key()
				seenBase[k] = true
				defBlocks[k] = appendBlockUnique(defBlocks[k], b)
			}
			for _, loc := range effect.MayRead(inst) {
				seenBase[loc.key()] = true
			}
		}
	}
	for base := range seenBase {
		for _, b := range IteratedFrontier(df, defBlocks[base]) {
			if m.phis[b] == nil {
				m.phis[b] = make(map[baseKey]*Node)
			}
			if _, ok := m.phis[b][base]; !ok {
				m.phis[b][base] = &Node{Num: m.nextNum, Kind: NodePhi, Block: b}
				m.nextNum++
			}
		}
	}

	// Step 3: dominator-tree pre-order rename with per-base stacks.
	stacks := make(map[baseKey][]*Node)
	topOf := func(base baseKey) *Node {
		s := stacks[base]
		if len(s) == 0 {
			return m.entry
		}
		return s[len(s)-1]
	}

	var rename func(b *BasicBlock)
	rename = func(b *BasicBlock) {
		pushed := make(map[baseKey]int)
		push := func(base baseKey, n *Node) {
			stacks[base] = append(stacks[base], n)
			pushed[base]++
		}

		if phiSet, ok := m.phis[b]; ok {
			for base, phi := range phiSet {
				push(base, phi)
			}
		}

		for _, inst := range allMemoryInsts(b) {
			reads := effect.MayRead(inst)
			writes := effect.MayWrite(inst)
			if len(reads) == 0 && len(writes) == 0 {
				continue
			}
			n := &Node{Num: m.nextNum, Kind: NodeNormal, Inst: inst, IsStore: len(writes) > 0}
			m.nextNum++
			if len(reads) > 0 {
				n.Use = reachingDef(stacks, m.entry, reads[0], effect)
			} else if len(writes) > 0 {
				// A pure write still chains from the prior state of its
				// base so replace/dump have a sensible predecessor.
				n.Use = topOf(writes[0].key())
			}
			for _, w := range writes {
				push(w.key(), n)
			}
			m.instNode[inst.ID()] = n
		}

		for _, succ := range b.Succs {
			if phiSet, ok := m.phis[succ]; ok {
				for base, phi := range phiSet {
					phi.Incomings = append(phi.Incomings, PhiIncoming{Node: topOf(base), Pred: b})
				}
			}
		}

		for _, child := range dt.children(b) {
			rename(child)
		}

		for base, n := range pushed {
			stacks[base] = stacks[base][:len(stacks[base])-n]
		}
	}
	rename(fn.Entry())

	return m
}

// reachingDef walks down a base's stack from the top, via the supplied
// effect analysis, skipping Normal store nodes that provably don't alias
// readLoc, stopping at the first aliasing store or at any Phi/Entry node
// (both are conservative, always-valid stopping points).
func reachingDef(stacks map[baseKey][]*Node, entry *Node, readLoc Location, effect EffectAnalysis) *Node {
	s := stacks[readLoc.key()]
	for i := len(s) - 1; i >= 0; i-- {
		n := s[i]
		if n.Kind != NodeNormal {
			return n
		}
		if !n.IsStore {
			continue
		}
		for _, writeLoc := range effect.MayWrite(n.Inst) {
			if effect.MayAlias(readLoc, writeLoc) {
				return n
			}
		}
	}
	return entry
}

func allMemoryInsts(b *BasicBlock) []*Instruction {
	var out []*Instruction
	for _, inst := range b.Instrs {
		if inst.IsMemory() {
			out = append(out, inst)
		}
	}
	if b.Term != nil && b.Term.IsMemory() {
		out = append(out, b.Term)
	}
	return out
}

func appendBlockUnique(s []*BasicBlock, b *BasicBlock) []*BasicBlock {
	for _, x := range s {
		if x == b {
			return s
		}
	}
	return append(s, b)
}

// GetInstNode looks up the MemorySSA node for a memory-affecting instruction.
func (m *MemorySSA) GetInstNode(inst *Instruction) (*Node, bool) {
	n, ok := m.instNode[inst.ID()]
	return n, ok
}

// ReplaceNode redirects every node (and phi incoming) that points at old to
// point at replacement instead, then retires old. LoadElim calls it with a
// load's node and the node of the dominating store whose value it forwards.
func (m *MemorySSA) ReplaceNode(old *Node, replacement *Node) {
	for _, n := range m.instNode {
		if n.Use == old {
			n.Use = replacement
		}
	}
	for _, phiSet := range m.phis {
		for _, phi := range phiSet {
			for i, in := range phi.Incomings {
				if in.Node == old {
					phi.Incomings[i].Node = replacement
				}
			}
		}
	}
	old.dead = true
}

// Dump renders a textual form of the function's MemorySSA, one annotation
// line per block/instruction, prefixed by its node kind. Phi numbers are
// assigned in map iteration order, so the text is the same from run to run
// only for a function with at most one Phi.
func (m *MemorySSA) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s\n", m.entry)
	for _, b := range m.Func.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b.Label)
		if phiSet, ok := m.phis[b]; ok {
			keys := make([]baseKey, 0, len(phiSet))
			for k := range phiSet {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return phiSet[keys[i]].Num < phiSet[keys[j]].Num })
			for _, k := range keys {
				fmt.Fprintf(&sb, "  ; %s\n", phiSet[k])
			}
		}
		for _, inst := range allMemoryInsts(b) {
			if n, ok := m.instNode[inst.ID()]; ok {
				fmt.Fprintf(&sb, "  ; %s\n", n)
			}
		}
	}
	return sb.String()
}
