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

// runConstFold evaluates arithmetic/compare/conversion instructions whose
// operands are both constants, per spec.md §4.5. Integer overflow wraps
// two's-complement to the result width, matching const_eval.go's
// truncateInt policy so folding before and after other passes agrees.
func runConstFold(f *Func) bool {
	changed := false
	du := buildDefUse(f)
	constOf := func(v Value) (*Instr, bool) {
		ins, ok := du.def[v]
		return ins, ok && ins.IsConst
	}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			if ins.IsConst {
				continue
			}
			a, aok := constOf(ins.A)
			bb, bok := constOf(ins.B)
			switch ins.Op {
			case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv, OpSRem, OpURem,
				OpAnd, OpOr, OpXor, OpShl, OpAShr, OpLShr:
				if !aok || !bok {
					continue
				}
				if v, ok := foldIntBinOp(ins.Op, a.ConstI, bb.ConstI, ins.Type); ok {
					ins.IsConst, ins.ConstI, ins.A, ins.B = true, v, noValue, noValue
					changed = true
				}
			case OpFAdd, OpFSub, OpFMul, OpFDiv:
				if !aok || !bok {
					continue
				}
				ins.ConstF = foldFloatBinOp(ins.Op, a.ConstF, bb.ConstF)
				ins.IsConst, ins.A, ins.B = true, noValue, noValue
				changed = true
			case OpNeg:
				if aok {
					ins.IsConst, ins.ConstI, ins.A = true, truncateInt(-a.ConstI, ins.Type.Size(), false), noValue
					changed = true
				}
			case OpFNeg:
				if aok {
					ins.IsConst, ins.ConstF, ins.A = true, -a.ConstF, noValue
					changed = true
				}
			case OpNot:
				if aok {
					ins.IsConst, ins.ConstI, ins.A = true, truncateInt(^a.ConstI, ins.Type.Size(), false), noValue
					changed = true
				}
			case OpICmp:
				if !aok {
					continue
				}
				bv := int64(0)
				if ins.B != noValue {
					if !bok {
						continue
					}
					bv = bb.ConstI
				}
				if res, ok := foldICmp(ins.Pred, a.ConstI, bv, ins.Unsigned); ok {
					ins.IsConst, ins.ConstI, ins.A, ins.B = true, res, noValue, noValue
					changed = true
				}
			case OpSExt, OpZExt, OpTrunc:
				if aok {
					ins.IsConst, ins.ConstI, ins.A = true, truncateInt(a.ConstI, ins.Type.Size(), ins.Op == OpZExt), noValue
					changed = true
				}
			}
		}
	}
	return changed
}

func foldIntBinOp(op Op, x, y int64, mt MachType) (int64, bool) {
	var r int64
	switch op {
	case OpAdd:
		r = x + y
	case OpSub:
		r = x - y
	case OpMul:
		r = x * y
	case OpSDiv:
		if y == 0 {
			return 0, false
		}
		r = x / y
	case OpUDiv:
		if y == 0 {
			return 0, false
		}
		r = int64(uint64(x) / uint64(y))
	case OpSRem:
		if y == 0 {
			return 0, false
		}
		r = x % y
	case OpURem:
		if y == 0 {
			return 0, false
		}
		r = int64(uint64(x) % uint64(y))
	case OpAnd:
		r = x & y
	case OpOr:
		r = x | y
	case OpXor:
		r = x ^ y
	case OpShl:
		r = x << uint64(y)
	case OpAShr:
		r = x >> uint64(y)
	case OpLShr:
		r = int64(uint64(x) >> uint64(y))
	default:
		return 0, false
	}
	return truncateInt(r, mt.Size(), false), true
}

func foldFloatBinOp(op Op, x, y float64) float64 {
	switch op {
	case OpFAdd:
		return x + y
	case OpFSub:
		return x - y
	case OpFMul:
		return x * y
	case OpFDiv:
		return x / y
	}
	return 0
}

func foldICmp(pred ICmpPred, x, y int64, unsigned bool) (int64, bool) {
	b := func(v bool) (int64, bool) {
		if v {
			return 1, true
		}
		return 0, true
	}
	if unsigned {
		ux, uy := uint64(x), uint64(y)
		switch pred {
		case ICmpEQ:
			return b(ux == uy)
		case ICmpNE:
			return b(ux != uy)
		case ICmpULT:
			return b(ux < uy)
		case ICmpULE:
			return b(ux <= uy)
		case ICmpUGT:
			return b(ux > uy)
		case ICmpUGE:
			return b(ux >= uy)
		}
	}
	switch pred {
	case ICmpEQ:
		return b(x == y)
	case ICmpNE:
		return b(x != y)
	case ICmpSLT:
		return b(x < y)
	case ICmpSLE:
		return b(x <= y)
	case ICmpSGT:
		return b(x > y)
	case ICmpSGE:
		return b(x >= y)
	}
	return 0, false
}
