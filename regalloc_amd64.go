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

import "github.com/samber/lo"

// Windows x64 general-purpose register numbering used throughout the back
// end; indices double as operand encodings in emit_amd64.go.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var gpRegNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// intAllocPool is the order linear scan hands out integer/pointer
// registers in: caller-saved scratch first so short-lived values avoid
// burning a callee-saved slot that would need saving/restoring.
var intAllocPool = []int{RAX, R10, R11, RCX, RDX, R8, R9, RSI, RDI, RBX, R12, R13, R14, R15}

// calleeSaved per the Windows x64 ABI: RBX, RBP, RDI, RSI, RSP, R12-R15.
var calleeSaved = map[int]bool{RBX: true, RBP: true, RDI: true, RSI: true, R12: true, R13: true, R14: true, R15: true}

var argIntRegs = []int{RCX, RDX, R8, R9}
var argFloatRegs = []int{0, 1, 2, 3} // xmm0-xmm3

const floatRegCount = 16 // xmm0-xmm15
const shadowSpace = 32

// interval is a virtual register's [start, end] live range over the
// function's flattened instruction order, per spec.md §4.6's linear-scan
// requirement.
type interval struct {
	v          Value
	start, end int
	isFloat    bool
	spansCall  bool // live across an MCall: prefer a callee-saved register
	reg        int  // assigned physical register, or -1 if spilled
	spillSlot  int  // valid when reg == -1
	spilled    bool
}

// AllocateFunc assigns a physical register or a stack slot to every
// virtual register in mf, lowers SSA phis into copies at the end of each
// predecessor block, and lays out the stack frame (incoming parameters,
// local allocas, spill slots, outgoing argument/shadow space), per
// spec.md §4.6.
func AllocateFunc(mf *MachFunc, f *Func) {
	insertPhiCopies(mf, f)
	assignParamLocations(mf, f)

	order, posOf := flattenOrder(mf)
	ivs := computeIntervals(mf, order, posOf)
	frame := newFrameLayout()
	assignAllocaSlots(frame, f)

	linearScan(ivs, frame)

	loc := map[Value]MOperand{}
	for _, iv := range ivs {
		if iv.spilled {
			loc[iv.v] = MOperand{Kind: MOStack, Stack: iv.spillSlot}
		} else {
			loc[iv.v] = MOperand{Kind: MOReg, Reg: iv.reg}
		}
	}
	for a, off := range frame.slots {
		loc[a] = MOperand{Kind: MOStack, Stack: off}
	}

	resolveOperands(mf, loc)
	mf.FrameSlots = frame.slots
	mf.FrameSize = frame.size()
}

// insertPhiCopies lowers each OpPhi into a parallel copy appended to the
// tail of every predecessor's machine block, just before its terminator.
func insertPhiCopies(mf *MachFunc, f *Func) {
	mbByLabel := map[string]*MachBlock{}
	for _, mb := range mf.Blocks {
		mbByLabel[mb.Label] = mb
	}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			if ins.Op != OpPhi {
				continue
			}
			for _, e := range ins.Phis {
				predLabel := blockLabelName(f.Name, e.Block)
				mb, ok := mbByLabel[predLabel]
				if !ok {
					continue
				}
				cp := &MachInstr{Op: MMov, Type: ins.Type, Dst: vreg(ins.ID), Src1: operandOf(e.Val, f)}
				insertBeforeTerm(mb, cp)
			}
		}
	}
}

func insertBeforeTerm(mb *MachBlock, ins *MachInstr) {
	n := len(mb.Instrs)
	if n == 0 || !isMachTerminator(mb.Instrs[n-1].Op) {
		mb.Instrs = append(mb.Instrs, ins)
		return
	}
	mb.Instrs = append(mb.Instrs[:n-1], append([]*MachInstr{ins}, mb.Instrs[n-1:]...)...)
}

func isMachTerminator(op MOp) bool {
	switch op {
	case MJmp, MJcc, MRet, MUD2:
		return true
	}
	return false
}

// assignParamLocations rewrites every OpParam-derived MOArg placeholder to
// its fixed Windows x64 ABI location: one of the first four argument
// registers (RCX/RDX/R8/R9 for integers and pointers, XMM0-XMM3 for
// floats, selected by argument position, not type, per the ABI), or an
// incoming stack slot above the return address for the fifth argument
// onward.
func assignParamLocations(mf *MachFunc, f *Func) {
	resolve := func(op *MOperand, isFloat bool) {
		if op.Kind != MOArg {
			return
		}
		i := op.Stack
		if i < 4 {
			if isFloat {
				*op = MOperand{Kind: MOReg, Reg: argFloatRegs[i]}
			} else {
				*op = MOperand{Kind: MOReg, Reg: argIntRegs[i]}
			}
			return
		}
		*op = MOperand{Kind: MOStack, Stack: 16 + 8*(i-4)}
	}
	for _, mb := range mf.Blocks {
		for _, ins := range mb.Instrs {
			resolve(&ins.Src1, ins.Type.IsFloat())
			resolve(&ins.Src2, ins.Type.IsFloat())
		}
	}
}

// flattenOrder lays every machine block out in mf.Blocks order (matching
// the SSA builder's creation order) and numbers each instruction, giving a
// position space linear scan can walk without full dataflow liveness.
func flattenOrder(mf *MachFunc) ([]*MachInstr, map[*MachInstr]int) {
	var order []*MachInstr
	pos := map[*MachInstr]int{}
	for _, mb := range mf.Blocks {
		for _, ins := range mb.Instrs {
			pos[ins] = len(order)
			order = append(order, ins)
		}
	}
	return order, pos
}

func computeIntervals(mf *MachFunc, order []*MachInstr, pos map[*MachInstr]int) []*interval {
	ivs := map[Value]*interval{}
	touch := func(op MOperand, at int, isFloat bool) {
		if op.Kind != MOVirtual {
			return
		}
		iv, ok := ivs[op.Virt]
		if !ok {
			iv = &interval{v: op.Virt, start: at, end: at, isFloat: isFloat, reg: -1}
			ivs[op.Virt] = iv
		}
		if at < iv.start {
			iv.start = at
		}
		if at > iv.end {
			iv.end = at
		}
	}
	for _, ins := range order {
		at := pos[ins]
		isFloat := ins.Type.IsFloat()
		if ins.Dst.Kind == MOVirtual {
			touch(ins.Dst, at, isFloat)
		}
		touch(ins.Src1, at, isFloat)
		touch(ins.Src2, at, isFloat)
		if ins.Src1.Kind == MOAddr {
			touchAddr(ins.Src1, at, touch)
		}
		if ins.Dst.Kind == MOAddr {
			touchAddr(ins.Dst, at, touch)
		}
		for _, a := range ins.ArgRegs {
			touch(a, at, false)
		}
		if ins.CalleeReg.Kind == MOVirtual {
			touch(ins.CalleeReg, at, false)
		}
	}
	var out []*interval
	for _, iv := range ivs {
		out = append(out, iv)
	}
	markCallSpans(order, pos, out)
	return out
}

// markCallSpans flags every interval whose live range straddles an MCall,
// so scanOne can prefer a callee-saved register for it per
// spec.md §4.6's "callee-saved registers are preferred for values live
// across calls" and test_param_preservation.c's requirement that such
// values remain readable after the call returns.
func markCallSpans(order []*MachInstr, pos map[*MachInstr]int, ivs []*interval) {
	var callPos []int
	for i, ins := range order {
		if ins.Op == MCall {
			callPos = append(callPos, i)
		}
	}
	if len(callPos) == 0 {
		return
	}
	for _, iv := range ivs {
		for _, cp := range callPos {
			if cp > iv.start && cp < iv.end {
				iv.spansCall = true
				break
			}
		}
	}
}

func touchAddr(op MOperand, at int, touch func(MOperand, int, bool)) {
	if op.Base != noValue {
		touch(MOperand{Kind: MOVirtual, Virt: op.Base}, at, false)
	}
	if op.Index != noValue {
		touch(MOperand{Kind: MOVirtual, Virt: op.Index}, at, false)
	}
}

// frameLayout accumulates stack slots for allocas and spills, growing
// downward from RBP the way the teacher's emitted prologues lay frames
// out: incoming args above RBP, locals below.
type frameLayout struct {
	slots  map[Value]int
	cursor int // next free offset, negative and decreasing
}

func newFrameLayout() *frameLayout { return &frameLayout{slots: map[Value]int{}} }

func (fl *frameLayout) alloc(size, align int) int {
	fl.cursor -= size
	if rem := fl.cursor % align; rem != 0 {
		fl.cursor -= align + rem
	}
	return fl.cursor
}

func (fl *frameLayout) size() int {
	n := -fl.cursor
	if rem := n % 16; rem != 0 {
		n += 16 - rem
	}
	return n + shadowSpace
}

func assignAllocaSlots(fl *frameLayout, f *Func) {
	for _, a := range f.Allocas {
		size := a.AllocSize * int(lo.Max(a.AllocCount, int64(1)))
		align := a.AllocAlign
		if align == 0 {
			align = 8
		}
		fl.slots[a.ID] = fl.alloc(size, align)
	}
}

// linearScan is Poletto & Sondhi's algorithm: intervals sorted by start,
// an active set sorted by end, registers freed as intervals expire, and
// the active interval with the furthest end evicted to a spill slot when
// the pool is exhausted, per spec.md §4.6.
func linearScan(ivs []*interval, fl *frameLayout) {
	var ints, floats []*interval
	for _, iv := range ivs {
		if iv.isFloat {
			floats = append(floats, iv)
		} else {
			ints = append(ints, iv)
		}
	}
	scanOne(ints, intAllocPool, fl)
	floatPool := make([]int, floatRegCount)
	for i := range floatPool {
		floatPool[i] = i
	}
	scanOne(floats, floatPool, fl)
}

func scanOne(ivs []*interval, pool []int, fl *frameLayout) {
	sortByStart(ivs)
	var active []*interval
	free := append([]int{}, pool...)
	for _, iv := range ivs {
		var stillActive []*interval
		for _, a := range active {
			if a.end < iv.start {
				free = append(free, a.reg)
			} else {
				stillActive = append(stillActive, a)
			}
		}
		active = stillActive

		if len(free) == 0 {
			sortByEnd(active)
			spill := active[len(active)-1]
			if spill.end > iv.end {
				iv.reg = spill.reg
				spill.spilled = true
				spill.spillSlot = fl.alloc(8, 8)
				active = active[:len(active)-1]
				active = append(active, iv)
			} else {
				iv.spilled = true
				iv.spillSlot = fl.alloc(8, 8)
			}
			continue
		}
		iv.reg = takeReg(&free, iv.spansCall)
		active = append(active, iv)
	}
}

// takeReg removes and returns a register from free, preferring a
// callee-saved one when preferCallee is set (the value must survive a
// call without being spilled around it) and otherwise preferring a
// caller-saved one to leave callee-saved registers available for
// longer-lived values.
func takeReg(free *[]int, preferCallee bool) int {
	regs := *free
	for i := len(regs) - 1; i >= 0; i-- {
		if calleeSaved[regs[i]] == preferCallee {
			r := regs[i]
			*free = append(regs[:i], regs[i+1:]...)
			return r
		}
	}
	r := regs[len(regs)-1]
	*free = regs[:len(regs)-1]
	return r
}

func sortByStart(ivs []*interval) {
	for i := 1; i < len(ivs); i++ {
		for j := i; j > 0 && ivs[j].start < ivs[j-1].start; j-- {
			ivs[j], ivs[j-1] = ivs[j-1], ivs[j]
		}
	}
}

func sortByEnd(ivs []*interval) {
	for i := 1; i < len(ivs); i++ {
		for j := i; j > 0 && ivs[j].end < ivs[j-1].end; j-- {
			ivs[j], ivs[j-1] = ivs[j-1], ivs[j]
		}
	}
}

func resolveOperands(mf *MachFunc, loc map[Value]MOperand) {
	resolve := func(op *MOperand) {
		switch op.Kind {
		case MOVirtual:
			if l, ok := loc[op.Virt]; ok {
				*op = l
			}
		case MOAddr:
			if op.Base != noValue {
				if l, ok := loc[op.Base]; ok && l.Kind == MOReg {
					op.Base = Value(l.Reg) | addrRegTag
				}
			}
			if op.Index != noValue {
				if l, ok := loc[op.Index]; ok && l.Kind == MOReg {
					op.Index = Value(l.Reg) | addrRegTag
				}
			}
		}
	}
	for _, mb := range mf.Blocks {
		for _, ins := range mb.Instrs {
			resolve(&ins.Dst)
			resolve(&ins.Src1)
			resolve(&ins.Src2)
			resolve(&ins.CalleeReg)
			for i := range ins.ArgRegs {
				resolve(&ins.ArgRegs[i])
			}
		}
	}
}

// addrRegTag marks a resolved MOAddr.Base/Index field as already holding a
// physical register index rather than an SSA value, since both share the
// Value type. emit_amd64.go strips the tag back off before printing.
const addrRegTag Value = 1 << 30
