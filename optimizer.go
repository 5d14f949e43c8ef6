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

// OptLevel selects how much of the fixed pass pipeline runs, per §4.5/§6
// (-O0 disables optimization, -O1 runs the full pipeline).
type OptLevel int

const (
	OptO0 OptLevel = iota
	OptO1
)

// Pass is one optimizer pass over a Func's SSA IR.
type Pass struct {
	Name string
	Run  func(*Func) bool // returns true if it changed anything
}

// pipeline is the fixed pass order of spec.md §4.5.
func pipeline() []Pass {
	return []Pass{
		{"mem2reg", runMem2Reg},
		{"constfold", runConstFold},
		{"algebraic", runAlgebraic},
		{"strength", runStrengthReduction},
		{"copyprop", runCopyProp},
		{"cse", runCSE},
		{"dce", runDCE},
		{"peephole", runPeephole},
	}
}

// Optimize runs the fixed pipeline to a fixed point for O1, or does
// nothing for O0, per spec.md §4.5/§8 ("running the optimizer pipeline
// twice produces the same IR as running it once").
func Optimize(f *Func, level OptLevel) {
	if level == OptO0 {
		return
	}
	for {
		changed := false
		for _, p := range pipeline() {
			if p.Run(f) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// defUse indexes each value's single defining instruction and every
// instruction that uses it, rebuilt fresh by each pass that needs it
// (cheaper and simpler than maintaining it incrementally across passes
// that restructure blocks).
type defUse struct {
	def  map[Value]*Instr
	uses map[Value][]*Instr
}

func buildDefUse(f *Func) *defUse {
	du := &defUse{def: map[Value]*Instr{}, uses: map[Value][]*Instr{}}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			if ins.ID != noValue {
				du.def[ins.ID] = ins
			}
			for _, v := range operandsOf(ins) {
				du.uses[v] = append(du.uses[v], ins)
			}
		}
	}
	return du
}

// operandsOf returns every Value an instruction reads, for def-use and
// liveness analysis.
func operandsOf(ins *Instr) []Value {
	var vs []Value
	add := func(v Value) {
		if v != noValue {
			vs = append(vs, v)
		}
	}
	add(ins.A)
	add(ins.B)
	add(ins.Ptr)
	add(ins.Store)
	add(ins.GEPBase)
	for _, idx := range ins.GEPIndices {
		add(idx.Index)
	}
	add(ins.Cond)
	add(ins.SwitchVal)
	add(ins.RetVal)
	add(ins.CalleeVal)
	for _, a := range ins.Args {
		add(a)
	}
	for _, p := range ins.Phis {
		add(p.Val)
	}
	return vs
}

// replaceOperands rewrites every occurrence of old with repl in ins's
// operand fields, used by copy propagation and CSE.
func replaceOperands(ins *Instr, old, repl Value) {
	sub := func(v *Value) {
		if *v == old {
			*v = repl
		}
	}
	sub(&ins.A)
	sub(&ins.B)
	sub(&ins.Ptr)
	sub(&ins.Store)
	sub(&ins.GEPBase)
	for i := range ins.GEPIndices {
		sub(&ins.GEPIndices[i].Index)
	}
	sub(&ins.Cond)
	sub(&ins.SwitchVal)
	sub(&ins.RetVal)
	sub(&ins.CalleeVal)
	for i := range ins.Args {
		sub(&ins.Args[i])
	}
	for i := range ins.Phis {
		sub(&ins.Phis[i].Val)
	}
}

func hasSideEffects(ins *Instr) bool {
	switch ins.Op {
	case OpStore, OpCall, OpBr, OpCBr, OpSwitch, OpRet, OpUnreachable,
		OpVaStart, OpVaEnd:
		return true
	}
	return false
}

func isTerminator(op Op) bool {
	switch op {
	case OpBr, OpCBr, OpSwitch, OpRet, OpUnreachable:
		return true
	}
	return false
}
