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

// isCopy reports whether ins is a trivial copy of one other value: an
// `add x, <nothing>` left behind by pass_algebraic.go's identity
// rewrites, or a single-operand phi.
func isCopy(ins *Instr) (Value, bool) {
	if ins.Op == OpAdd && !ins.IsConst && ins.B == noValue && ins.A != noValue {
		return ins.A, true
	}
	if ins.Op == OpPhi && len(ins.Phis) > 0 {
		first := ins.Phis[0].Val
		same := true
		for _, e := range ins.Phis[1:] {
			if e.Val != first && e.Val != ins.ID {
				same = false
				break
			}
		}
		if same && first != ins.ID {
			return first, true
		}
	}
	return 0, false
}

// runCopyProp replaces every use of a copy's result with its source and
// deletes the now-dead copy instruction, per spec.md §4.5.
func runCopyProp(f *Func) bool {
	changed := false
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			if src, ok := isCopy(ins); ok {
				replaceAllUses(f, ins.ID, src)
				changed = true
			}
		}
	}
	if changed {
		pruneDeadCopies(f)
	}
	return changed
}

// pruneDeadCopies removes copy instructions (and trivial phis) that no
// longer have any uses after propagation.
func pruneDeadCopies(f *Func) {
	used := map[Value]bool{}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			for _, v := range operandsOf(ins) {
				used[v] = true
			}
		}
	}
	for _, b := range f.Blocks {
		var kept []*Instr
		for _, ins := range b.Instrs {
			if _, isC := isCopy(ins); isC && !used[ins.ID] {
				continue
			}
			kept = append(kept, ins)
		}
		b.Instrs = kept
	}
}
