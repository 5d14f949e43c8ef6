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
	"strings"
	"testing"
)

func TestEmitAssemblyContainsLabelAndEpilogue(t *testing.T) {
	mf := selectAndAllocate(t, `int add(int a,int b){return a+b;}`, "add")
	asm := EmitAssembly(mf)
	if !strings.Contains(asm, "add:") {
		t.Error("assembly missing function label")
	}
	if !strings.Contains(asm, "ret") {
		t.Error("assembly missing ret")
	}
	if !strings.Contains(asm, "push\trbp") || !strings.Contains(asm, "pop\trbp") {
		t.Error("assembly missing prologue/epilogue frame-pointer save/restore")
	}
}

func TestEmitAssemblyUsesIntelOperandOrder(t *testing.T) {
	mf := selectAndAllocate(t, `int add(int a,int b){return a+b;}`, "add")
	asm := EmitAssembly(mf)
	for _, line := range strings.Split(asm, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "add\t") && !strings.Contains(line, ",") {
			t.Errorf("add instruction missing a two-operand comma form: %q", line)
		}
	}
}

func TestEmitCOFFHeaderFields(t *testing.T) {
	mf := selectAndAllocate(t, `int add(int a,int b){return a+b;}`, "add")
	obj := EmitCOFF([]*MachFunc{mf}, func(f *MachFunc) int { return estimateCodeSize(f) })
	if len(obj) < 20 {
		t.Fatalf("object too small: %d bytes", len(obj))
	}
	machine := uint16(obj[0]) | uint16(obj[1])<<8
	if machine != imageFileMachineAMD64 {
		t.Errorf("machine field = %#x, want %#x", machine, imageFileMachineAMD64)
	}
	numSections := uint16(obj[2]) | uint16(obj[3])<<8
	if numSections != 1 {
		t.Errorf("NumberOfSections = %d, want 1", numSections)
	}
}

func TestEmitCOFFEmbedsSymbolName(t *testing.T) {
	mf := selectAndAllocate(t, `int add(int a,int b){return a+b;}`, "add")
	obj := EmitCOFF([]*MachFunc{mf}, func(f *MachFunc) int { return estimateCodeSize(f) })
	if !strings.Contains(string(obj), "add") {
		t.Error("object file does not embed the function's symbol name")
	}
}
