// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

// runMem2Reg promotes allocas that are never address-taken and whose only
// uses are direct load/store to SSA values, inserting phi nodes at
// dominance frontiers, per spec.md §4.5. Trivial phis (every incoming
// value identical, or self-referential save for one other value) are
// folded away afterward.
func runMem2Reg(f *Func) bool {
	changed := false
	doms := computeDominators(f)
	frontiers := computeDominanceFrontiers(f, doms)

	for {
		candidates := promotableAllocas(f)
		if len(candidates) == 0 {
			break
		}
		for _, alloca := range candidates {
			promoteOne(f, alloca, doms, frontiers)
			changed = true
		}
		removeDeadAllocas(f)
		if !changed {
			break
		}
		// One round only: promoting an alloca makes no other alloca
		// promotable, and Optimize runs this pass again on each pipeline
		// iteration.
		break
	}
	return changed
}

// promotableAllocas finds allocas whose every use is a plain Load/Store of
// the whole object (no address escapes via GEP, call argument, store of
// the pointer itself, or pointer-to-int cast).
func promotableAllocas(f *Func) []*Instr {
	addressTaken := map[Value]bool{}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			switch ins.Op {
			case OpLoad:
				// fine: reading through the pointer
			case OpStore:
				if ins.Store != noValue {
					addressTaken[ins.Store] = true
				}
			default:
				for _, v := range operandsOf(ins) {
					addressTaken[v] = true
				}
			}
		}
	}
	var out []*Instr
	for _, a := range f.Allocas {
		if a.AllocCount != 1 || a.AllocAggregate {
			continue // array/struct/union allocas keep their alloca; only scalars promote
		}
		if !addressTaken[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

func promoteOne(f *Func, alloca *Instr, doms map[*Block]*Block, dfs map[*Block][]*Block) {
	defBlocks := map[*Block]bool{}
	var storeType MachType
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			if ins.Op == OpStore && ins.Ptr == alloca.ID {
				defBlocks[b] = true
				storeType = ins.Type
			}
		}
	}
	// Phi placement: iterate to a fixed point over the dominance-frontier
	// closure of the defining blocks (Cytron et al.).
	hasPhi := map[*Block]*Instr{}
	worklist := make([]*Block, 0, len(defBlocks))
	for b := range defBlocks {
		worklist = append(worklist, b)
	}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, df := range dfs[b] {
			if hasPhi[df] != nil {
				continue
			}
			phi := &Instr{Op: OpPhi, Type: storeType}
			df.Instrs = append([]*Instr{phi}, df.Instrs...)
			phi.ID = f.NewValue()
			hasPhi[df] = phi
			if !defBlocks[df] {
				defBlocks[df] = true
				worklist = append(worklist, df)
			}
		}
	}

	// Dominator-tree renaming walk.
	children := domTreeChildren(f, doms)
	var stack []Value
	var rename func(b *Block)
	rename = func(b *Block) {
		pushed := 0
		if phi := hasPhi[b]; phi != nil {
			stack = append(stack, phi.ID)
			pushed++
		}
		var kept []*Instr
		for _, ins := range b.Instrs {
			if ins == hasPhi[b] {
				kept = append(kept, ins)
				continue
			}
			if ins.Op == OpLoad && ins.Ptr == alloca.ID {
				var cur Value
				if len(stack) > 0 {
					cur = stack[len(stack)-1]
				}
				replaceAllUses(f, ins.ID, cur)
				continue // drop the load
			}
			if ins.Op == OpStore && ins.Ptr == alloca.ID {
				stack = append(stack, ins.Store)
				pushed++
				continue // drop the store
			}
			kept = append(kept, ins)
		}
		b.Instrs = kept
		for _, succ := range b.Succs {
			if phi := hasPhi[succ]; phi != nil {
				var cur Value
				if len(stack) > 0 {
					cur = stack[len(stack)-1]
				}
				phi.Phis = append(phi.Phis, PhiEdge{Block: b, Val: cur})
			}
		}
		for _, c := range children[b] {
			rename(c)
		}
		stack = stack[:len(stack)-pushed]
	}
	rename(f.Entry)
}

// replaceAllUses substitutes old for repl across every instruction in f.
func replaceAllUses(f *Func, old, repl Value) {
	if old == repl {
		return
	}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			replaceOperands(ins, old, repl)
		}
	}
}

func removeDeadAllocas(f *Func) {
	used := map[Value]bool{}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			for _, v := range operandsOf(ins) {
				used[v] = true
			}
		}
	}
	var kept []*Instr
	for _, a := range f.Allocas {
		if used[a.ID] {
			kept = append(kept, a)
		} else {
			removeInstr(f, a)
		}
	}
	f.Allocas = kept
}

func removeInstr(f *Func, target *Instr) {
	for _, b := range f.Blocks {
		for i, ins := range b.Instrs {
			if ins == target {
				b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
				return
			}
		}
	}
}

// ---- dominator tree ----

func computeDominators(f *Func) map[*Block]*Block {
	order := reversePostorder(f)
	idx := map[*Block]int{}
	for i, b := range order {
		idx[b] = i
	}
	idom := map[*Block]*Block{f.Entry: f.Entry}
	changed := true
	for changed {
		changed = false
		for _, b := range order {
			if b == f.Entry {
				continue
			}
			var newIdom *Block
			for _, p := range b.Preds {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, idx)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	delete(idom, f.Entry)
	return idom
}

func intersect(a, b *Block, idom map[*Block]*Block, idx map[*Block]int) *Block {
	for a != b {
		for idx[a] > idx[b] {
			a = idom[a]
		}
		for idx[b] > idx[a] {
			b = idom[b]
		}
	}
	return a
}

func reversePostorder(f *Func) []*Block {
	visited := map[*Block]bool{}
	var post []*Block
	var visit func(b *Block)
	visit = func(b *Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(f.Entry)
	out := make([]*Block, len(post))
	for i, b := range post {
		out[len(post)-1-i] = b
	}
	return out
}

// computeDominanceFrontiers implements the standard Cytron et al. walk:
// for each join block b, walk each predecessor's idom chain up to (but not
// including) idom(b), recording b in every block visited along the way.
func computeDominanceFrontiers(f *Func, idom map[*Block]*Block) map[*Block][]*Block {
	idom[f.Entry] = f.Entry
	defer delete(idom, f.Entry)
	df := map[*Block][]*Block{}
	for _, b := range f.Blocks {
		if len(b.Preds) < 2 {
			continue
		}
		ib := idom[b]
		for _, p := range b.Preds {
			runner := p
			for runner != ib {
				if !containsBlock(df[runner], b) {
					df[runner] = append(df[runner], b)
				}
				runner = idom[runner]
			}
		}
	}
	return df
}

func containsBlock(bs []*Block, b *Block) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}

func domTreeChildren(f *Func, idom map[*Block]*Block) map[*Block][]*Block {
	ch := map[*Block][]*Block{}
	for _, b := range f.Blocks {
		if p, ok := idom[b]; ok && p != b {
			ch[p] = append(ch[p], b)
		}
	}
	return ch
}
