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

import "testing"

// selectAndAllocate runs a function through instruction selection and
// register allocation, the two stages regalloc_amd64.go's tests exercise.
func selectAndAllocate(t *testing.T, src, name string) *MachFunc {
	t.Helper()
	f := buildNamed(t, src, name)
	Optimize(f, OptO1)
	mf := SelectFunc(f)
	AllocateFunc(mf, f)
	return mf
}

func allInstrs(mf *MachFunc) []*MachInstr {
	var out []*MachInstr
	for _, b := range mf.Blocks {
		out = append(out, b.Instrs...)
	}
	return out
}

func TestAllocateFuncResolvesAllVirtualOperands(t *testing.T) {
	mf := selectAndAllocate(t, `int add(int a,int b){return a+b;}`, "add")
	for _, ins := range allInstrs(mf) {
		for _, op := range []MOperand{ins.Dst, ins.Src1, ins.Src2} {
			if op.Kind == MOVirtual {
				t.Fatalf("unresolved virtual operand survived allocation: %+v in %+v", op, ins)
			}
		}
	}
}

func TestAllocateFuncParamsInABIRegisters(t *testing.T) {
	mf := selectAndAllocate(t, `int add(int a,int b){return a+b;}`, "add")
	// the first two integer parameters must end up in rcx/rdx (directly, or
	// via a mov chain) per the Windows x64 calling convention.
	sawArgSource := false
	for _, ins := range allInstrs(mf) {
		if ins.Op == MMov && ins.Src1.Kind == MOReg && (ins.Src1.Reg == RCX || ins.Src1.Reg == RDX) {
			sawArgSource = true
		}
	}
	if !sawArgSource {
		t.Error("no instruction reads an incoming argument out of rcx/rdx")
	}
}

func TestAllocateFuncFrameSizeIsStackAligned(t *testing.T) {
	mf := selectAndAllocate(t, `int main(){ int a[4]; a[0]=1; return a[0]; }`, "main")
	if mf.FrameSize%16 != 0 {
		t.Errorf("frame size %d is not 16-byte aligned", mf.FrameSize)
	}
}

func TestAllocateFuncCallSpanningValueGetsCalleeSaved(t *testing.T) {
	mf := selectAndAllocate(t, `int f(int x){return x;} int g(int keep){ int r=f(keep); return r+keep; }`, "g")
	spansCall := false
	for _, ins := range allInstrs(mf) {
		if ins.Op == MCall {
			continue
		}
		for _, op := range []MOperand{ins.Dst, ins.Src1, ins.Src2} {
			if op.Kind == MOReg && calleeSaved[op.Reg] {
				spansCall = true
			}
		}
	}
	if !spansCall {
		t.Error("expected at least one callee-saved register to be used for a value live across the call")
	}
}

func TestInsertPhiCopiesForIfElseMerge(t *testing.T) {
	mf := selectAndAllocate(t, `int g(int c){ int x; if(c) x=2; else x=3; return x; }`, "g")
	found := false
	for _, b := range mf.Blocks {
		for _, ins := range b.Instrs {
			if ins.Op == MMov && ins.Src1.Kind == MOImm && (ins.Src1.Imm == 2 || ins.Src1.Imm == 3) {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected a phi copy (mov of 2 or 3) in a predecessor of the merge block")
	}
}
