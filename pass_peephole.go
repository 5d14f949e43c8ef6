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

// runPeephole catches small local patterns the earlier passes leave
// behind: a conditional branch whose condition is now a known constant
// collapses to an unconditional jump, and a jump to a block that itself
// only contains an unconditional jump is retargeted directly, per
// spec.md §4.5.
func runPeephole(f *Func) bool {
	changed := false
	du := buildDefUse(f)
	for _, b := range f.Blocks {
		term := b.Terminator()
		if term == nil {
			continue
		}
		switch term.Op {
		case OpCBr:
			if cond, ok := du.def[term.Cond]; ok && cond.IsConst {
				target := term.FalseBlock
				if cond.ConstI != 0 {
					target = term.TrueBlock
				}
				dead := term.FalseBlock
				if cond.ConstI != 0 {
					dead = term.TrueBlock
				}
				b.Succs = removeBlock(b.Succs, dead)
				dead.Preds = removeBlock(dead.Preds, b)
				for _, ins := range dead.Instrs {
					if ins.Op == OpPhi {
						ins.Phis = removePhiEdge(ins.Phis, b)
					}
				}
				b.Instrs[len(b.Instrs)-1] = &Instr{Op: OpBr, Target: target}
				changed = true
			}
		case OpBr:
			if target := term.Target; target != nil && isEmptyJump(target) {
				newTarget := target.Terminator().Target
				if newTarget != nil && newTarget != target {
					term.Target = newTarget
					target.Preds = removeBlock(target.Preds, b)
					newTarget.Preds = append(newTarget.Preds, b)
					for i, s := range b.Succs {
						if s == target {
							b.Succs[i] = newTarget
						}
					}
					changed = true
				}
			}
		}
	}
	return changed
}

// isEmptyJump reports whether b contains nothing but an unconditional
// jump, making it safe to skip over.
func isEmptyJump(b *Block) bool {
	if len(b.Instrs) != 1 {
		return false
	}
	return b.Instrs[0].Op == OpBr
}
