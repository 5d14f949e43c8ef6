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

// runAlgebraic applies identity and absorption simplifications: x+0, x*1,
// x*0, x-0, x^0, x|0, x&-1 and friends collapse to one operand, per
// spec.md §4.5.
func runAlgebraic(f *Func) bool {
	changed := false
	du := buildDefUse(f)
	constOf := func(v Value) (int64, bool) {
		ins, ok := du.def[v]
		if !ok || !ins.IsConst {
			return 0, false
		}
		return ins.ConstI, true
	}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			if ins.IsConst {
				continue
			}
			av, aok := constOf(ins.A)
			bv, bok := constOf(ins.B)
			var repl Value
			replaced := false
			switch ins.Op {
			case OpAdd:
				if bok && bv == 0 {
					repl, replaced = ins.A, true
				} else if aok && av == 0 {
					repl, replaced = ins.B, true
				}
			case OpSub:
				if bok && bv == 0 {
					repl, replaced = ins.A, true
				}
			case OpMul:
				if bok && bv == 1 {
					repl, replaced = ins.A, true
				} else if aok && av == 1 {
					repl, replaced = ins.B, true
				} else if (bok && bv == 0) || (aok && av == 0) {
					ins.IsConst, ins.ConstI, ins.A, ins.B = true, 0, noValue, noValue
					changed = true
					continue
				}
			case OpOr, OpXor:
				if ins.Op == OpOr && bok && bv == 0 {
					repl, replaced = ins.A, true
				} else if ins.Op == OpOr && aok && av == 0 {
					repl, replaced = ins.B, true
				} else if ins.Op == OpXor && bok && bv == 0 {
					repl, replaced = ins.A, true
				}
			case OpAnd:
				if bok && bv == -1 {
					repl, replaced = ins.A, true
				} else if (bok && bv == 0) || (aok && av == 0) {
					ins.IsConst, ins.ConstI, ins.A, ins.B = true, 0, noValue, noValue
					changed = true
					continue
				}
			case OpShl, OpAShr, OpLShr:
				if bok && bv == 0 {
					repl, replaced = ins.A, true
				}
			}
			if replaced {
				rewriteAsCopy(ins, repl)
				changed = true
			}
		}
	}
	return changed
}

// rewriteAsCopy turns ins into a trivial identity op (add x with no second operand) that
// pass_copyprop.go will later eliminate; cheaper than splicing instruction
// lists mid-iteration here.
func rewriteAsCopy(ins *Instr, src Value) {
	ins.Op = OpAdd
	ins.A = src
	ins.B = noValue
	ins.IsConst = false
	ins.Comment = "copy"
}
