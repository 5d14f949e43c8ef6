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
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// EmitAssembly renders mf as Intel-syntax x86-64 text, the way -S is
// expected to behave per spec.md §6.
func EmitAssembly(mf *MachFunc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\t.globl\t%s\n", mf.Name)
	fmt.Fprintf(&b, "%s:\n", mf.Name)
	emitPrologue(&b, mf)
	for _, block := range mf.Blocks {
		if block.Label != mf.Name {
			fmt.Fprintf(&b, "%s:\n", block.Label)
		}
		for _, ins := range block.Instrs {
			emitInstr(&b, mf, ins)
		}
	}
	return b.String()
}

func emitPrologue(b *strings.Builder, mf *MachFunc) {
	fmt.Fprintf(b, "\tpush\trbp\n")
	fmt.Fprintf(b, "\tmov\trbp, rsp\n")
	if mf.FrameSize > 0 {
		fmt.Fprintf(b, "\tsub\trsp, %d\n", mf.FrameSize)
	}
}

func emitEpilogue(b *strings.Builder, mf *MachFunc) {
	if mf.FrameSize > 0 {
		fmt.Fprintf(b, "\tadd\trsp, %d\n", mf.FrameSize)
	}
	fmt.Fprintf(b, "\tpop\trbp\n")
	fmt.Fprintf(b, "\tret\n")
}

func emitInstr(b *strings.Builder, mf *MachFunc, ins *MachInstr) {
	isFloat := ins.Type.IsFloat()
	switch ins.Op {
	case MMov:
		fmt.Fprintf(b, "\tmov\t%s, %s\n", operandText(ins.Dst, isFloat), operandText(ins.Src1, isFloat))
	case MMovSX:
		fmt.Fprintf(b, "\tmovsx\t%s, %s\n", operandText(ins.Dst, isFloat), operandText(ins.Src1, isFloat))
	case MMovZX:
		fmt.Fprintf(b, "\tmovzx\t%s, %s\n", operandText(ins.Dst, isFloat), operandText(ins.Src1, isFloat))
	case MLea:
		fmt.Fprintf(b, "\tlea\t%s, %s\n", operandText(ins.Dst, false), operandText(ins.Src1, false))
	case MAdd:
		emitBin(b, "add", ins)
	case MSub:
		emitBin(b, "sub", ins)
	case MIMul:
		emitBin(b, "imul", ins)
	case MIDiv:
		fmt.Fprintf(b, "\tcqo\n\tidiv\t%s\n", operandText(ins.Src2, false))
	case MAnd:
		emitBin(b, "and", ins)
	case MOr:
		emitBin(b, "or", ins)
	case MXor:
		emitBin(b, "xor", ins)
	case MShl:
		emitBin(b, "shl", ins)
	case MSar:
		emitBin(b, "sar", ins)
	case MShr:
		emitBin(b, "shr", ins)
	case MNeg:
		fmt.Fprintf(b, "\tneg\t%s\n", operandText(ins.Dst, false))
	case MNot:
		fmt.Fprintf(b, "\tnot\t%s\n", operandText(ins.Dst, false))
	case MCmp:
		fmt.Fprintf(b, "\tcmp\t%s, %s\n", operandText(ins.Src1, isFloat), operandText(ins.Src2, isFloat))
	case MSetCC:
		fmt.Fprintf(b, "\tset%s\t%s\n", ccSuffix(ins.Cond), operandText(ins.Dst, false))
	case MJcc:
		fmt.Fprintf(b, "\tj%s\t%s\n", ccSuffix(ins.Cond), ins.Label)
	case MJmp:
		fmt.Fprintf(b, "\tjmp\t%s\n", ins.Label)
	case MCall:
		if ins.Callee != "" {
			fmt.Fprintf(b, "\tcall\t%s\n", ins.Callee)
		} else {
			fmt.Fprintf(b, "\tcall\t%s\n", operandText(ins.CalleeReg, false))
		}
	case MRet:
		emitEpilogue(b, mf)
	case MPush:
		fmt.Fprintf(b, "\tpush\t%s\n", operandText(ins.Src1, false))
	case MPop:
		fmt.Fprintf(b, "\tpop\t%s\n", operandText(ins.Dst, false))
	case MLabel:
		fmt.Fprintf(b, "%s:\n", ins.Label)
	case MAddSD:
		fmt.Fprintf(b, "\taddsd\t%s, %s\n", operandText(ins.Dst, true), operandText(ins.Src2, true))
	case MSubSD:
		fmt.Fprintf(b, "\tsubsd\t%s, %s\n", operandText(ins.Dst, true), operandText(ins.Src2, true))
	case MMulSD:
		fmt.Fprintf(b, "\tmulsd\t%s, %s\n", operandText(ins.Dst, true), operandText(ins.Src2, true))
	case MDivSD:
		fmt.Fprintf(b, "\tdivsd\t%s, %s\n", operandText(ins.Dst, true), operandText(ins.Src2, true))
	case MAddSS:
		fmt.Fprintf(b, "\taddss\t%s, %s\n", operandText(ins.Dst, true), operandText(ins.Src2, true))
	case MSubSS:
		fmt.Fprintf(b, "\tsubss\t%s, %s\n", operandText(ins.Dst, true), operandText(ins.Src2, true))
	case MMulSS:
		fmt.Fprintf(b, "\tmulss\t%s, %s\n", operandText(ins.Dst, true), operandText(ins.Src2, true))
	case MDivSS:
		fmt.Fprintf(b, "\tdivss\t%s, %s\n", operandText(ins.Dst, true), operandText(ins.Src2, true))
	case MMovSD:
		fmt.Fprintf(b, "\tmovsd\t%s, %s\n", operandText(ins.Dst, true), operandText(ins.Src1, true))
	case MMovSS:
		fmt.Fprintf(b, "\tmovss\t%s, %s\n", operandText(ins.Dst, true), operandText(ins.Src1, true))
	case MCvt:
		fmt.Fprintf(b, "\tcvt\t%s, %s\n", operandText(ins.Dst, isFloat), operandText(ins.Src1, !isFloat))
	case MUD2:
		fmt.Fprintf(b, "\tud2\n")
	}
}

func emitBin(b *strings.Builder, mnem string, ins *MachInstr) {
	fmt.Fprintf(b, "\t%s\t%s, %s\n", mnem, operandText(ins.Dst, false), operandText(ins.Src2, false))
}

func ccSuffix(c CondCode) string {
	switch c {
	case CCEq:
		return "e"
	case CCNe:
		return "ne"
	case CCLt:
		return "l"
	case CCLe:
		return "le"
	case CCGt:
		return "g"
	case CCGe:
		return "ge"
	case CCB:
		return "b"
	case CCBe:
		return "be"
	case CCA:
		return "a"
	case CCAe:
		return "ae"
	}
	return "e"
}

func operandText(op MOperand, isFloat bool) string {
	switch op.Kind {
	case MOImm:
		return fmt.Sprintf("%d", op.Imm)
	case MOImmF:
		return fmt.Sprintf("%g", op.ImmF)
	case MOLabel:
		return op.Sym
	case MOReg:
		if isFloat {
			return fmt.Sprintf("xmm%d", op.Reg)
		}
		return gpRegNames[op.Reg]
	case MOStack:
		if op.Stack >= 0 {
			return fmt.Sprintf("[rbp+%d]", op.Stack)
		}
		return fmt.Sprintf("[rbp%d]", op.Stack)
	case MOAddr:
		return addrText(op)
	case MOVirtual:
		return fmt.Sprintf("%%v%d", op.Virt)
	}
	return "?"
}

func addrText(op MOperand) string {
	var parts []string
	if op.Base != noValue {
		parts = append(parts, regFromTagged(op.Base))
	}
	if op.Index != noValue {
		idx := regFromTagged(op.Index)
		if op.Scale > 1 {
			idx = fmt.Sprintf("%s*%d", idx, op.Scale)
		}
		parts = append(parts, idx)
	}
	disp := ""
	if op.Disp != 0 {
		disp = fmt.Sprintf("%+d", op.Disp)
	}
	return fmt.Sprintf("[%s%s]", strings.Join(parts, "+"), disp)
}

func regFromTagged(v Value) string {
	if v&addrRegTag != 0 {
		return gpRegNames[int(v&^addrRegTag)]
	}
	return fmt.Sprintf("%%v%d", v)
}

// --- minimal relocatable COFF object emission ---
//
// The corpus targets Windows, so -o with a non-assembly extension produces
// a COFF object rather than an ELF one. Only the container shape (file
// header, one .text section, symbol table, string table) is built here;
// no MachInstr is encoded to x86 bytes: the .text section is all zero
// bytes, sized per function by the codeSize callback (see DESIGN.md).

type coffHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type coffSection struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

const imageFileMachineAMD64 = 0x8664
const sectionTextFlags = 0x60500020 // CODE|EXECUTE|READ, 16-byte aligned

// EmitCOFF writes a minimal x86-64 COFF object containing a single .text
// section sized to hold code bytes and one external symbol per function
// named in funcs, per spec.md §6's -o object-file mode.
func EmitCOFF(funcs []*MachFunc, codeSize func(*MachFunc) int) []byte {
	var buf bytes.Buffer
	sectionOffset := uint32(20 + 40) // file header + one section header
	var text bytes.Buffer
	type sym struct {
		name   string
		offset uint32
	}
	var syms []sym
	for _, f := range funcs {
		syms = append(syms, sym{name: f.Name, offset: uint32(text.Len())})
		n := codeSize(f)
		text.Write(make([]byte, n))
	}

	hdr := coffHeader{
		Machine:              imageFileMachineAMD64,
		NumberOfSections:     1,
		SizeOfOptionalHeader: 0,
		Characteristics:      0x0104, // LINE_NUMS_STRIPPED (0x0004) | 32BIT_MACHINE (0x0100)
	}
	sec := coffSection{
		VirtualSize:      0,
		SizeOfRawData:    uint32(text.Len()),
		PointerToRawData: sectionOffset,
		Characteristics:  sectionTextFlags,
	}
	copy(sec.Name[:], ".text")

	var strtab bytes.Buffer
	strtab.Write([]byte{0, 0, 0, 0}) // size placeholder, patched below
	var symtab bytes.Buffer
	for _, s := range syms {
		writeCOFFSymbol(&symtab, &strtab, s.name, s.offset)
	}
	binary.LittleEndian.PutUint32(strtab.Bytes()[0:4], uint32(strtab.Len()))

	hdr.PointerToSymbolTable = sectionOffset + uint32(text.Len())
	hdr.NumberOfSymbols = uint32(len(syms))

	binary.Write(&buf, binary.LittleEndian, hdr)
	binary.Write(&buf, binary.LittleEndian, sec)
	buf.Write(text.Bytes())
	buf.Write(symtab.Bytes())
	buf.Write(strtab.Bytes())
	return buf.Bytes()
}

func writeCOFFSymbol(symtab, strtab *bytes.Buffer, name string, value uint32) {
	var nameField [8]byte
	if len(name) <= 8 {
		copy(nameField[:], name)
	} else {
		binary.LittleEndian.PutUint32(nameField[0:4], 0)
		binary.LittleEndian.PutUint32(nameField[4:8], uint32(strtab.Len()))
		strtab.WriteString(name)
		strtab.WriteByte(0)
	}
	symtab.Write(nameField[:])
	binary.Write(symtab, binary.LittleEndian, value)
	binary.Write(symtab, binary.LittleEndian, int16(1)) // section number: .text
	binary.Write(symtab, binary.LittleEndian, uint16(0x20))
	symtab.WriteByte(2) // storage class: external
	symtab.WriteByte(0) // no aux symbols
}
