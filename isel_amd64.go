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

import "strconv"

// MOp is a machine-IR opcode: a small, target-specific instruction set
// that regalloc_amd64.go assigns locations for and emit_amd64.go prints,
// per spec.md §4.6.
type MOp int

const (
	MMov MOp = iota
	MMovZX
	MMovSX
	MLea
	MAdd
	MSub
	MIMul
	MIDiv // signed/unsigned selected by Unsigned flag
	MAnd
	MOr
	MXor
	MShl
	MSar
	MShr
	MNeg
	MNot
	MCmp
	MSetCC  // materialise a 0/1 from a previous MCmp
	MJcc    // conditional jump fused with the preceding MCmp
	MJmp
	MCall
	MRet
	MPush
	MPop
	MLabel
	MAddSD
	MSubSD
	MMulSD
	MDivSD
	MAddSS
	MSubSS
	MMulSS
	MDivSS
	MMovSD
	MMovSS
	MCvt // generic conversion; Cvt kind distinguishes the exact variant
	MUD2 // unreachable trap
)

// CondCode mirrors ICmpPred in the target's jcc/setcc vocabulary.
type CondCode int

const (
	CCEq CondCode = iota
	CCNe
	CCLt
	CCLe
	CCGt
	CCGe
	CCB // unsigned below
	CCBe
	CCA // unsigned above
	CCAe
)

func condFromICmp(pred ICmpPred, unsigned bool) CondCode {
	if unsigned {
		switch pred {
		case ICmpEQ:
			return CCEq
		case ICmpNE:
			return CCNe
		case ICmpULT:
			return CCB
		case ICmpULE:
			return CCBe
		case ICmpUGT:
			return CCA
		case ICmpUGE:
			return CCAe
		}
	}
	switch pred {
	case ICmpEQ:
		return CCEq
	case ICmpNE:
		return CCNe
	case ICmpSLT:
		return CCLt
	case ICmpSLE:
		return CCLe
	case ICmpSGT:
		return CCGt
	case ICmpSGE:
		return CCGe
	}
	return CCEq
}

// MOperandKind tags whether an MOperand still names an SSA virtual
// register (pre-regalloc) or has been resolved to a physical register,
// stack slot, immediate, or label.
type MOperandKind int

const (
	MOVirtual MOperandKind = iota
	MOImm
	MOImmF
	MOLabel
	MOReg   // resolved physical register number (RAX..R15, see regalloc_amd64.go)
	MOStack // resolved frame-relative stack slot, byte offset from RBP
	MOAddr  // base(+index*scale)+disp, operands pre-regalloc
	MOArg   // incoming parameter slot, Stack holds the parameter index; resolved by regalloc_amd64.go
)

type MOperand struct {
	Kind MOperandKind
	Virt Value
	Imm  int64
	ImmF float64
	Sym  string

	Reg   int
	Stack int

	// MOAddr
	Base, Index Value
	Scale       int
	Disp        int
}

// MachInstr is one target instruction. Defs/Uses list the SSA values it
// writes/reads before allocation is run.
type MachInstr struct {
	Op    MOp
	Type  MachType
	Dst   MOperand
	Src1  MOperand
	Src2  MOperand
	Cond  CondCode
	Label string
	// Call
	Callee    string
	CalleeReg MOperand
	ArgRegs   []MOperand
	HasResult bool
}

type MachBlock struct {
	Label  string
	Instrs []*MachInstr
}

type MachFunc struct {
	Name     string
	Params   []Param
	Variadic bool
	RetType  MachType
	Blocks   []*MachBlock
	// FrameSlots maps each alloca/spill-eligible virtual a fixed stack
	// offset; filled in by regalloc_amd64.go.
	FrameSlots map[Value]int
	FrameSize  int
}

func vreg(v Value) MOperand    { return MOperand{Kind: MOVirtual, Virt: v} }
func imm(v int64) MOperand     { return MOperand{Kind: MOImm, Imm: v} }
func immF(v float64) MOperand  { return MOperand{Kind: MOImmF, ImmF: v} }

// SelectFunc lowers f's SSA IR to machine IR, per spec.md §4.6. Each
// OpGEP becomes one MLea from its base and index; loads and stores address
// memory through their pointer operand. A comparison whose only use is the
// condition of a block's terminating OpCBr fuses into MCmp+MJcc instead of
// materialising a 0/1 with MSetCC.
func SelectFunc(f *Func) *MachFunc {
	mf := &MachFunc{Name: f.Name, Params: f.Params, Variadic: f.Variadic, RetType: f.RetType}
	blockLabel := map[*Block]string{}
	for _, b := range f.Blocks {
		blockLabel[b] = blockLabelName(f.Name, b)
	}
	cmpFusable := findFusableCompares(f)

	for _, b := range f.Blocks {
		mb := &MachBlock{Label: blockLabel[b]}
		for _, ins := range b.Instrs {
			if cmpFusable[ins] {
				continue // emitted alongside its consuming branch below
			}
			selectOne(mb, ins, f, blockLabel, cmpFusable)
		}
		mf.Blocks = append(mf.Blocks, mb)
	}
	return mf
}

func blockLabelName(fn string, b *Block) string {
	if b.Label == "entry" {
		return fn
	}
	return fn + "." + b.Label + strconv.Itoa(b.ID)
}

// findFusableCompares identifies OpICmp/OpFCmp instructions whose sole use
// is the Cond of the block's own terminating OpCBr, so isel can skip
// materialising the 0/1 and emit compare+jcc directly.
func findFusableCompares(f *Func) map[*Instr]bool {
	du := buildDefUse(f)
	out := map[*Instr]bool{}
	for _, b := range f.Blocks {
		term := b.Terminator()
		if term == nil || term.Op != OpCBr {
			continue
		}
		cmp, ok := du.def[term.Cond]
		if !ok || (cmp.Op != OpICmp && cmp.Op != OpFCmp) {
			continue
		}
		if len(du.uses[term.Cond]) == 1 {
			out[cmp] = true
		}
	}
	return out
}

func selectOne(mb *MachBlock, ins *Instr, f *Func, labels map[*Block]string, fusable map[*Instr]bool) {
	emit := func(m *MachInstr) { mb.Instrs = append(mb.Instrs, m) }

	if ins.IsConst {
		// Constants are materialised lazily at each use site by operandOf,
		// which turns a constant operand into an immediate; no
		// machine instruction is needed for a pure constant definition.
		return
	}

	switch ins.Op {
	case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv, OpSRem, OpURem, OpAnd, OpOr, OpXor, OpShl, OpAShr, OpLShr:
		emit(&MachInstr{Op: intBinOp(ins.Op), Type: ins.Type, Dst: vreg(ins.ID), Src1: operandOf(ins.A, f), Src2: operandOf(ins.B, f)})
	case OpFAdd, OpFSub, OpFMul, OpFDiv:
		emit(&MachInstr{Op: floatBinOp(ins.Op, ins.Type), Type: ins.Type, Dst: vreg(ins.ID), Src1: operandOf(ins.A, f), Src2: operandOf(ins.B, f)})
	case OpNeg:
		emit(&MachInstr{Op: MNeg, Type: ins.Type, Dst: vreg(ins.ID), Src1: operandOf(ins.A, f)})
	case OpFNeg:
		emit(&MachInstr{Op: MXor, Type: ins.Type, Dst: vreg(ins.ID), Src1: operandOf(ins.A, f), Src2: immF(-0.0)})
	case OpNot:
		emit(&MachInstr{Op: MNot, Type: ins.Type, Dst: vreg(ins.ID), Src1: operandOf(ins.A, f)})
	case OpICmp, OpFCmp:
		if fusable[ins] {
			// Fused into the terminator visit below; nothing to do now.
			return
		}
		cmpOp := MCmp
		emit(&MachInstr{Op: cmpOp, Type: ins.Type, Src1: operandOf(ins.A, f), Src2: operandOf(ins.B, f)})
		emit(&MachInstr{Op: MSetCC, Type: MTi1, Dst: vreg(ins.ID), Cond: condFromICmp(ins.Pred, ins.Unsigned)})
	case OpSExt, OpZExt:
		op := MMovZX
		if ins.Op == OpSExt {
			op = MMovSX
		}
		emit(&MachInstr{Op: op, Type: ins.Type, Dst: vreg(ins.ID), Src1: operandOf(ins.A, f)})
	case OpTrunc, OpBitcast, OpPtrToInt, OpIntToPtr:
		emit(&MachInstr{Op: MMov, Type: ins.Type, Dst: vreg(ins.ID), Src1: operandOf(ins.A, f)})
	case OpFPToSI, OpFPToUI, OpSIToFP, OpUIToFP, OpFPTrunc, OpFPExt:
		emit(&MachInstr{Op: MCvt, Type: ins.Type, Dst: vreg(ins.ID), Src1: operandOf(ins.A, f)})
	case OpAlloca:
		// No code: the frame slot is assigned directly by regalloc_amd64.go.
	case OpParam:
		emit(&MachInstr{Op: MMov, Type: ins.Type, Dst: vreg(ins.ID), Src1: MOperand{Kind: MOArg, Stack: ins.ParamIndex}})
	case OpLoad:
		emit(&MachInstr{Op: MMov, Type: ins.Type, Dst: vreg(ins.ID), Src1: memOperand(ins.Ptr, 0)})
	case OpStore:
		emit(&MachInstr{Op: MMov, Type: ins.Type, Dst: memOperand(ins.Ptr, 0), Src1: operandOf(ins.Store, f)})
	case OpGEP:
		addr := MOperand{Kind: MOAddr, Base: ins.GEPBase, Scale: 1}
		if len(ins.GEPIndices) > 0 {
			addr.Index = ins.GEPIndices[0].Index
			addr.Scale = ins.GEPIndices[0].ElemSize
		}
		emit(&MachInstr{Op: MLea, Type: MTptr, Dst: vreg(ins.ID), Src1: addr})
	case OpBr:
		emit(&MachInstr{Op: MJmp, Label: labels[ins.Target]})
	case OpCBr:
		if cmp, ok := func() (*Instr, bool) {
			du := buildDefUseOne(f)
			c, ok := du[ins.Cond]
			return c, ok && (c.Op == OpICmp || c.Op == OpFCmp)
		}(); ok && fusable[cmp] {
			emit(&MachInstr{Op: MCmp, Type: cmp.Type, Src1: operandOf(cmp.A, f), Src2: operandOf(cmp.B, f)})
			emit(&MachInstr{Op: MJcc, Cond: condFromICmp(cmp.Pred, cmp.Unsigned), Label: labels[ins.TrueBlock]})
			emit(&MachInstr{Op: MJmp, Label: labels[ins.FalseBlock]})
			return
		}
		emit(&MachInstr{Op: MCmp, Src1: operandOf(ins.Cond, f), Src2: imm(0)})
		emit(&MachInstr{Op: MJcc, Cond: CCNe, Label: labels[ins.TrueBlock]})
		emit(&MachInstr{Op: MJmp, Label: labels[ins.FalseBlock]})
	case OpSwitch:
		for _, c := range ins.SwitchCases {
			emit(&MachInstr{Op: MCmp, Src1: operandOf(ins.SwitchVal, f), Src2: imm(c.Value)})
			emit(&MachInstr{Op: MJcc, Cond: CCEq, Label: labels[c.Block]})
		}
		if ins.SwitchDefault != nil {
			emit(&MachInstr{Op: MJmp, Label: labels[ins.SwitchDefault]})
		}
	case OpRet:
		m := &MachInstr{Op: MRet}
		if ins.HasRet {
			m.Src1 = operandOf(ins.RetVal, f)
			m.HasResult = true
		}
		emit(m)
	case OpUnreachable:
		emit(&MachInstr{Op: MUD2})
	case OpCall:
		m := &MachInstr{Op: MCall, Type: ins.Type, Dst: vreg(ins.ID), Callee: ins.Callee, HasResult: ins.Type != 0 || ins.ID != noValue}
		if ins.Callee == "" {
			m.CalleeReg = operandOf(ins.CalleeVal, f)
		}
		for _, a := range ins.Args {
			m.ArgRegs = append(m.ArgRegs, operandOf(a, f))
		}
		emit(m)
	case OpPhi:
		// Phis are resolved by regalloc_amd64.go inserting parallel copies
		// at the end of each predecessor block; no machine instruction is
		// selected for the phi itself.
	case OpVaStart, OpVaEnd:
		emit(&MachInstr{Op: MCall, Callee: "__cgocc_" + opName(ins.Op), ArgRegs: []MOperand{operandOf(ins.Ptr, f)}})
	case OpVaArg:
		emit(&MachInstr{Op: MCall, Type: ins.Type, Dst: vreg(ins.ID), Callee: "__cgocc_va_arg", ArgRegs: []MOperand{operandOf(ins.Ptr, f)}, HasResult: true})
	}
}

// buildDefUseOne maps each value id of f to its defining instruction, for
// the def lookup in the OpCBr case above.
func buildDefUseOne(f *Func) map[Value]*Instr {
	m := map[Value]*Instr{}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			if ins.ID != noValue {
				m[ins.ID] = ins
			}
		}
	}
	return m
}

func opName(op Op) string {
	if op == OpVaStart {
		return "va_start"
	}
	return "va_end"
}

func operandOf(v Value, f *Func) MOperand {
	if v == noValue {
		return imm(0)
	}
	if ins := f.FindValue(v); ins != nil && ins.IsConst {
		if ins.Type.IsFloat() {
			return immF(ins.ConstF)
		}
		return imm(ins.ConstI)
	}
	return vreg(v)
}

func memOperand(ptr Value, disp int) MOperand {
	return MOperand{Kind: MOAddr, Base: ptr, Scale: 1, Disp: disp}
}

func intBinOp(op Op) MOp {
	switch op {
	case OpAdd:
		return MAdd
	case OpSub:
		return MSub
	case OpMul:
		return MIMul
	case OpSDiv, OpUDiv, OpSRem, OpURem:
		return MIDiv
	case OpAnd:
		return MAnd
	case OpOr:
		return MOr
	case OpXor:
		return MXor
	case OpShl:
		return MShl
	case OpAShr:
		return MSar
	case OpLShr:
		return MShr
	}
	return MAdd
}

func floatBinOp(op Op, mt MachType) MOp {
	single := mt == MTf32
	switch op {
	case OpFAdd:
		if single {
			return MAddSS
		}
		return MAddSD
	case OpFSub:
		if single {
			return MSubSS
		}
		return MSubSD
	case OpFMul:
		if single {
			return MMulSS
		}
		return MMulSD
	case OpFDiv:
		if single {
			return MDivSS
		}
		return MDivSD
	}
	return MAddSD
}
