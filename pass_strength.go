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

import "math/bits"

// runStrengthReduction rewrites multiply/divide/remainder by a power-of-two
// constant into shifts and masks, per spec.md §4.5. Signed division is left
// alone: the sign-correction sequence it needs is not worth the complexity
// here, and the general-purpose sdiv the back end emits is already correct.
func runStrengthReduction(f *Func) bool {
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
			bv, bok := constOf(ins.B)
			if !bok || bv <= 0 || bits.OnesCount64(uint64(bv)) != 1 {
				continue
			}
			shift := bits.TrailingZeros64(uint64(bv))
			switch ins.Op {
			case OpMul:
				ins.Op = OpShl
				ins.B = materializeConst(f, b, ins, int64(shift))
				changed = true
			case OpUDiv:
				ins.Op = OpLShr
				ins.B = materializeConst(f, b, ins, int64(shift))
				changed = true
			case OpURem:
				ins.Op = OpAnd
				ins.B = materializeConst(f, b, ins, bv-1)
				changed = true
			}
		}
	}
	return changed
}

// materializeConst emits a fresh constant instruction immediately before
// ins in b and returns its value id, used when rewriting an op needs a
// different immediate than the one it started with.
func materializeConst(f *Func, b *Block, before *Instr, v int64) Value {
	c := &Instr{Op: OpAdd, Type: before.Type, IsConst: true, ConstI: v}
	c.ID = f.NewValue()
	for i, ins := range b.Instrs {
		if ins == before {
			b.Instrs = append(b.Instrs[:i], append([]*Instr{c}, b.Instrs[i:]...)...)
			break
		}
	}
	return c.ID
}
