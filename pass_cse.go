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

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// runCSE replaces a pure instruction with an earlier one computing the same
// operation over the same operands, per spec.md §4.5. Mostly scoped per
// block; the one cross-block case handled is a block with a single
// predecessor, which trivially dominates it, so that predecessor's surviving
// candidates seed the successor's table. Anything wider (merge points,
// loop back edges) needs real dominance analysis and is left for a future
// pass rather than risked incorrectly here.
func runCSE(f *Func) bool {
	changed := false
	seenAtExit := map[*Block]map[string]Value{}
	for _, b := range f.Blocks {
		seen := map[string]Value{}
		if len(b.Preds) == 1 {
			if predSeen, ok := seenAtExit[b.Preds[0]]; ok {
				for k, v := range predSeen {
					seen[k] = v
				}
			}
		}
		var kept []*Instr
		for _, ins := range b.Instrs {
			if ins.Op == OpStore || ins.Op == OpCall {
				// No alias analysis: conservatively forget every cached
				// load, since either could have written through any
				// pointer still live in this block.
				seen = lo.PickBy(seen, func(k string, _ Value) bool {
					return !strings.HasPrefix(k, "load:")
				})
			}
			if hasSideEffects(ins) || isTerminator(ins.Op) || ins.Op == OpPhi || ins.Op == OpAlloca {
				kept = append(kept, ins)
				continue
			}
			key := cseKey(ins)
			if key == "" {
				kept = append(kept, ins)
				continue
			}
			if prior, ok := seen[key]; ok {
				replaceAllUses(f, ins.ID, prior)
				changed = true
				continue
			}
			seen[key] = ins.ID
			kept = append(kept, ins)
		}
		b.Instrs = kept
		seenAtExit[b] = seen
	}
	return changed
}

func cseKey(ins *Instr) string {
	if ins.IsConst {
		return fmt.Sprintf("const:%v:%d:%g", ins.Type, ins.ConstI, ins.ConstF)
	}
	switch ins.Op {
	case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv, OpSRem, OpURem,
		OpAnd, OpOr, OpXor, OpShl, OpAShr, OpLShr,
		OpFAdd, OpFSub, OpFMul, OpFDiv:
		return fmt.Sprintf("%d:%v:%d:%d", ins.Op, ins.Type, ins.A, ins.B)
	case OpICmp, OpFCmp:
		return fmt.Sprintf("cmp:%d:%d:%v:%d:%d", ins.Op, ins.Pred, ins.Unsigned, ins.A, ins.B)
	case OpNeg, OpFNeg, OpNot, OpSExt, OpZExt, OpTrunc,
		OpFPToSI, OpFPToUI, OpSIToFP, OpUIToFP, OpFPTrunc, OpFPExt, OpPtrToInt, OpIntToPtr, OpBitcast:
		return fmt.Sprintf("%d:%v:%d", ins.Op, ins.Type, ins.A)
	case OpGEP:
		key := fmt.Sprintf("gep:%d", ins.GEPBase)
		for _, idx := range ins.GEPIndices {
			key += fmt.Sprintf(":%d*%d", idx.Index, idx.ElemSize)
		}
		return key
	case OpLoad:
		// runCSE drops cached loads at every OpStore and OpCall, so a
		// repeated load of the same pointer that is still cached is
		// redundant.
		return fmt.Sprintf("load:%v:%d", ins.Type, ins.Ptr)
	}
	return ""
}
