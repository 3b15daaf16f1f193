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

// DomTree is the dominator tree of a function's CFG, computed with a classic
// iterative fixed-point algorithm over SSA form (intersect/union over
// slices, O(n^2)). Extended here with immediate-dominator lookup and
// dominance-frontier computation, which MemorySSA phi placement needs.
type DomTree struct {
	Func *Function
	Dom  map[*BasicBlock][]*BasicBlock
}

func intersect(a, b []*BasicBlock) []*BasicBlock {
	if len(a) > len(b) {
		a, b = b, a
	}
	res := make([]*BasicBlock, 0, len(a))
	for _, x := range a {
		for _, y := range b {
			if x == y {
				res = append(res, x)
				break
			}
		}
	}
	return res
}

func union(a, b []*BasicBlock) []*BasicBlock {
	m := make(map[*BasicBlock]bool)
	for _, x := range a {
		m[x] = true
	}
	for _, x := range b {
		m[x] = true
	}
	res := make([]*BasicBlock, 0, len(m))
	for x := range m {
		res = append(res, x)
	}
	return res
}

// BuildDomTree computes the dominator tree of fn's CFG.
func BuildDomTree(fn *Function) *DomTree {
	entry := fn.Entry()
	dom := make(map[*BasicBlock][]*BasicBlock, len(fn.Blocks))
	dom[entry] = []*BasicBlock{entry}
	for _, b := range fn.Blocks {
		if b == entry {
			continue
		}
		dom[b] = fn.Blocks
	}

	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			if b == entry {
				continue
			}
			var newDom []*BasicBlock
			if len(b.Preds) > 0 {
				newDom = dom[b.Preds[0]]
				for _, p := range b.Preds[1:] {
					newDom = intersect(newDom, dom[p])
				}
			}
			newDom = union(newDom, []*BasicBlock{b})
			if len(newDom) != len(dom[b]) {
				changed = true
				dom[b] = newDom
			}
		}
	}
	return &DomTree{Func: fn, Dom: dom}
}

// IsDominate reports whether a dominates b (a dom b).
func (dt *DomTree) IsDominate(a, b *BasicBlock) bool {
	for _, d := range dt.Dom[b] {
		if d == a {
			return true
		}
	}
	return false
}

// IsSDominate reports strict dominance (a sdom b).
func (dt *DomTree) IsSDominate(a, b *BasicBlock) bool {
	return dt.IsDominate(a, b) && a != b
}

// IDom returns b's immediate dominator, or nil for the entry block. Among
// b's strict dominators, the immediate dominator is the one with the
// largest dominator set (closest to b along the unique chain from entry).
func (dt *DomTree) IDom(b *BasicBlock) *BasicBlock {
	var idom *BasicBlock
	best := -1
	for _, d := range dt.Dom[b] {
		if d == b {
			continue
		}
		if n := len(dt.Dom[d]); n > best {
			best = n
			idom = d
		}
	}
	return idom
}

// children returns the dominator-tree children of b (blocks whose immediate
// dominator is b).
func (dt *DomTree) children(b *BasicBlock) []*BasicBlock {
	var cs []*BasicBlock
	for _, blk := range dt.Func.Blocks {
		if dt.IDom(blk) == b {
			cs = append(cs, blk)
		}
	}
	return cs
}

// Frontier computes the dominance frontier of every block using the
// classic Cytron-et-al. algorithm: for a join block b with multiple
// predecessors, walk each predecessor up its dominator chain (exclusive of
// b's own idom) adding b to each visited block's frontier.
func (dt *DomTree) Frontier() map[*BasicBlock][]*BasicBlock {
	df := make(map[*BasicBlock][]*BasicBlock)
	for _, b := range dt.Func.Blocks {
		if len(b.Preds) < 2 {
			continue
		}
		idom := dt.IDom(b)
		for _, p := range b.Preds {
			runner := p
			for runner != idom && runner != nil {
				df[runner] = appendUnique(df[runner], b)
				runner = dt.IDom(runner)
			}
		}
	}
	return df
}

func appendUnique(s []*BasicBlock, b *BasicBlock) []*BasicBlock {
	for _, x := range s {
		if x == b {
			return s
		}
	}
	return append(s, b)
}

// IteratedFrontier computes the iterated dominance frontier of a set of
// definition blocks: the fixed point of repeatedly unioning in DF(b) for
// every block b already in the set.
func IteratedFrontier(df map[*BasicBlock][]*BasicBlock, defBlocks []*BasicBlock) []*BasicBlock {
	inSet := make(map[*BasicBlock]bool)
	var worklist []*BasicBlock
	for _, b := range defBlocks {
		if !inSet[b] {
			inSet[b] = true
			worklist = append(worklist, b)
		}
	}
	result := make(map[*BasicBlock]bool)
	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]
		for _, f := range df[b] {
			if !result[f] {
				result[f] = true
			}
			if !inSet[f] {
				inSet[f] = true
				worklist = append(worklist, f)
			}
		}
	}
	var out []*BasicBlock
	for b := range result {
		out = append(out, b)
	}
	return out
}
