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

// runDCE removes instructions with no side effects and no live uses,
// removes a store immediately shadowed by a later store to the same
// pointer with no intervening load, and drops unreachable blocks, per
// spec.md §4.5.
func runDCE(f *Func) bool {
	changed := false
	if removeUnreachableBlocks(f) {
		changed = true
	}
	if removeDeadStores(f) {
		changed = true
	}
	if removeDeadValues(f) {
		changed = true
	}
	return changed
}

func removeUnreachableBlocks(f *Func) bool {
	reachable := map[*Block]bool{f.Entry: true}
	work := []*Block{f.Entry}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range b.Succs {
			if !reachable[s] {
				reachable[s] = true
				work = append(work, s)
			}
		}
	}
	changed := false
	var kept []*Block
	for _, b := range f.Blocks {
		if reachable[b] {
			kept = append(kept, b)
			continue
		}
		changed = true
		for _, s := range b.Succs {
			s.Preds = removeBlock(s.Preds, b)
			for _, ins := range s.Instrs {
				if ins.Op == OpPhi {
					ins.Phis = removePhiEdge(ins.Phis, b)
				}
			}
		}
	}
	f.Blocks = kept
	return changed
}

func removeBlock(bs []*Block, target *Block) []*Block {
	var out []*Block
	for _, b := range bs {
		if b != target {
			out = append(out, b)
		}
	}
	return out
}

func removePhiEdge(edges []PhiEdge, target *Block) []PhiEdge {
	var out []PhiEdge
	for _, e := range edges {
		if e.Block != target {
			out = append(out, e)
		}
	}
	return out
}

// removeDeadStores drops a store to an alloca whose address never escapes
// when a later store to the same pointer in the same block supersedes it
// with no load in between.
func removeDeadStores(f *Func) bool {
	changed := false
	candidates := map[Value]bool{}
	for _, a := range f.Allocas {
		candidates[a.ID] = true
	}
	// Any use other than as a load/store address lets the address escape.
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			for _, v := range operandsOf(ins) {
				if (ins.Op == OpLoad || ins.Op == OpStore) && v == ins.Ptr && v != ins.Store {
					continue
				}
				delete(candidates, v)
			}
		}
	}
	for _, b := range f.Blocks {
		lastStore := map[Value]int{}
		var toDrop []int
		for i, ins := range b.Instrs {
			if ins.Op == OpLoad {
				delete(lastStore, ins.Ptr)
			}
			if ins.Op == OpStore && candidates[ins.Ptr] {
				if prev, ok := lastStore[ins.Ptr]; ok {
					toDrop = append(toDrop, prev)
				}
				lastStore[ins.Ptr] = i
			}
			if ins.Op == OpCall {
				lastStore = map[Value]int{}
			}
		}
		if len(toDrop) == 0 {
			continue
		}
		drop := map[int]bool{}
		for _, i := range toDrop {
			drop[i] = true
		}
		var kept []*Instr
		for i, ins := range b.Instrs {
			if drop[i] {
				changed = true
				continue
			}
			kept = append(kept, ins)
		}
		b.Instrs = kept
	}
	return changed
}

func removeDeadValues(f *Func) bool {
	changed := false
	for {
		used := map[Value]bool{}
		for _, b := range f.Blocks {
			for _, ins := range b.Instrs {
				for _, v := range operandsOf(ins) {
					used[v] = true
				}
			}
		}
		removedAny := false
		for _, b := range f.Blocks {
			var kept []*Instr
			for _, ins := range b.Instrs {
				isDeadAlloca := ins.Op == OpAlloca && !used[ins.ID]
				isDeadPure := !hasSideEffects(ins) && !isTerminator(ins.Op) && ins.Op != OpAlloca && ins.ID != noValue && !used[ins.ID]
				if isDeadAlloca || isDeadPure {
					removedAny = true
					changed = true
					continue
				}
				kept = append(kept, ins)
			}
			b.Instrs = kept
		}
		var keptAllocas []*Instr
		for _, a := range f.Allocas {
			if used[a.ID] {
				keptAllocas = append(keptAllocas, a)
			}
		}
		f.Allocas = keptAllocas
		if !removedAny {
			break
		}
	}
	return changed
}
