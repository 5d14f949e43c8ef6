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

// Builder lowers an annotated AST to SSA IR, per spec.md §4.4: locals and
// address-taken objects are materialised as allocas with load/store
// accesses up front, a deliberately naive lowering that pass_mem2reg.go
// later cleans up.
type Builder struct {
	ctx *Context
	fn  *Func
	cur *Block

	localAddr map[*Symbol]Value // alloca pointer for each local/param

	breakTargets    []*Block
	continueTargets []*Block
	switchInfo      []*switchLowering

	labelBlocks map[string]*Block
	gotoFixups  []*Instr
}

type switchLowering struct {
	tagVal   Value
	tagType  MachType
	signed   bool
	defBlock *Block
	cases    []SwitchCase
	end      *Block
}

// BuildFunc lowers one function body to SSA, returning its Func IR. fn.Body
// must be non-nil and semantically clean (Sema.IsBad(fn) == false).
func BuildFunc(ctx *Context, fd *FuncDecl) *Func {
	f := &Func{Name: fd.Name, Sym: fd.Sym, RetType: machTypeOf(fd.Type.Ret), Variadic: fd.Type.Variadic}
	b := &Builder{ctx: ctx, fn: f, localAddr: map[*Symbol]Value{}, labelBlocks: map[string]*Block{}}
	f.Entry = f.NewBlock("entry")
	b.cur = f.Entry

	for i, sym := range fd.ParamSyms {
		mt := machTypeOf(sym.Type)
		f.Params = append(f.Params, Param{Sym: sym, Type: mt})
		pv := f.Emit(b.cur, &Instr{Op: OpParam, Type: mt, ParamIndex: i})
		addr := b.emitAlloca(sym.Type)
		b.localAddr[sym] = addr
		f.Emit(b.cur, &Instr{Op: OpStore, Type: mt, Ptr: addr, Store: pv})
	}

	b.buildStmt(fd.Body)
	if b.cur.Terminator() == nil {
		if f.RetType == MTi32 || f.RetType == MTi64 {
			zero := f.Emit(b.cur, &Instr{Op: OpAdd, Type: f.RetType, IsConst: true, ConstI: 0})
			f.Emit(b.cur, &Instr{Op: OpRet, RetVal: zero, HasRet: true})
		} else {
			f.Emit(b.cur, &Instr{Op: OpRet})
		}
	}
	b.resolveGotos()
	return f
}

func (b *Builder) emitAlloca(t *Type) Value {
	ins := &Instr{
		Op: OpAlloca, Type: MTptr, AllocSize: SizeOf(t), AllocAlign: AlignOf(t), AllocCount: 1,
		AllocAggregate: t.Unqualified().IsAggregate(),
	}
	return b.fn.Emit(b.fn.Entry, ins)
}

func (b *Builder) setCur(blk *Block) { b.cur = blk }

// terminated reports whether the current block already ends in a
// terminator, so callers can skip emitting dead instructions into it.
func (b *Builder) terminated() bool { return b.cur.Terminator() != nil }

func (b *Builder) jump(to *Block) {
	if b.terminated() {
		return
	}
	b.fn.Emit(b.cur, &Instr{Op: OpBr, Target: to})
	b.cur.addSucc(to)
}

func (b *Builder) branch(cond Value, then, els *Block) {
	if b.terminated() {
		return
	}
	b.fn.Emit(b.cur, &Instr{Op: OpCBr, Cond: cond, TrueBlock: then, FalseBlock: els})
	b.cur.addSucc(then)
	b.cur.addSucc(els)
}

// ---- statements ----

func (b *Builder) buildStmt(st Stmt) {
	switch n := st.(type) {
	case *CompoundStmt:
		for _, item := range n.Items {
			switch x := item.(type) {
			case *VarDecl:
				b.buildLocalVarDecl(x)
			case Decl:
				// nested typedef/enum/static-assert: no code to emit
				_ = x
			case Stmt:
				b.buildStmt(x)
			}
		}
	case *ExprStmt:
		if n.X != nil {
			b.buildExprVal(n.X)
		}
	case *IfStmt:
		b.buildIf(n)
	case *WhileStmt:
		b.buildWhile(n)
	case *DoWhileStmt:
		b.buildDoWhile(n)
	case *ForStmt:
		b.buildFor(n)
	case *SwitchStmt:
		b.buildSwitch(n)
	case *BreakStmt:
		if len(b.breakTargets) > 0 {
			b.jump(b.breakTargets[len(b.breakTargets)-1])
		}
	case *ContinueStmt:
		if len(b.continueTargets) > 0 {
			b.jump(b.continueTargets[len(b.continueTargets)-1])
		}
	case *ReturnStmt:
		if n.Value != nil {
			v, mt := b.buildExprVal(n.Value)
			b.fn.Emit(b.cur, &Instr{Op: OpRet, RetVal: v, HasRet: true, Type: mt})
		} else {
			b.fn.Emit(b.cur, &Instr{Op: OpRet})
		}
	case *GotoStmt:
		ins := &Instr{Op: OpBr, Comment: n.Label}
		b.fn.Emit(b.cur, ins)
		b.gotoFixups = append(b.gotoFixups, ins)
		b.cur = b.fn.NewBlock("after_goto")
	case *LabeledStmt:
		lbl := b.labelBlocks[n.Label]
		if lbl == nil {
			lbl = b.fn.NewBlock(n.Label)
			b.labelBlocks[n.Label] = lbl
		}
		b.jump(lbl)
		b.cur = lbl
		b.buildStmt(n.Stmt)
	case *CaseStmt:
		b.buildCaseBody(n)
	case *NullStmt:
	case *AsmStmt:
		b.buildAsm(n)
	}
}

// resolveGotos patches the Target of goto-emitted branches once every
// label in the function has been visited.
func (b *Builder) resolveGotos() {
	for _, ins := range b.gotoFixups {
		if blk, ok := b.labelBlocks[ins.Comment]; ok {
			ins.Target = blk
		}
	}
}

func (b *Builder) buildLocalVarDecl(n *VarDecl) {
	if n.Sym == nil {
		return
	}
	if n.Sym.Storage == StorageStatic {
		// static locals behave like file-scope globals; their address is
		// the symbol's label, materialised directly at use sites.
		return
	}
	addr := b.emitAlloca(n.Sym.Type)
	b.localAddr[n.Sym] = addr
	if n.Init != nil {
		b.buildInit(addr, n.Sym.Type, n.Init)
	}
}

func (b *Builder) buildIf(n *IfStmt) {
	cond := b.buildCond(n.Cond)
	thenB := b.fn.NewBlock("if.then")
	endB := b.fn.NewBlock("if.end")
	if n.Else != nil {
		elseB := b.fn.NewBlock("if.else")
		b.branch(cond, thenB, elseB)
		b.setCur(thenB)
		b.buildStmt(n.Then)
		b.jump(endB)
		b.setCur(elseB)
		b.buildStmt(n.Else)
		b.jump(endB)
	} else {
		b.branch(cond, thenB, endB)
		b.setCur(thenB)
		b.buildStmt(n.Then)
		b.jump(endB)
	}
	b.setCur(endB)
}

func (b *Builder) buildWhile(n *WhileStmt) {
	head := b.fn.NewBlock("while.cond")
	body := b.fn.NewBlock("while.body")
	end := b.fn.NewBlock("while.end")
	b.jump(head)
	b.setCur(head)
	cond := b.buildCond(n.Cond)
	b.branch(cond, body, end)
	b.setCur(body)
	b.breakTargets = append(b.breakTargets, end)
	b.continueTargets = append(b.continueTargets, head)
	b.buildStmt(n.Body)
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]
	b.jump(head)
	b.setCur(end)
}

func (b *Builder) buildDoWhile(n *DoWhileStmt) {
	body := b.fn.NewBlock("do.body")
	cond := b.fn.NewBlock("do.cond")
	end := b.fn.NewBlock("do.end")
	b.jump(body)
	b.setCur(body)
	b.breakTargets = append(b.breakTargets, end)
	b.continueTargets = append(b.continueTargets, cond)
	b.buildStmt(n.Body)
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]
	b.jump(cond)
	b.setCur(cond)
	c := b.buildCond(n.Cond)
	b.branch(c, body, end)
	b.setCur(end)
}

func (b *Builder) buildFor(n *ForStmt) {
	switch init := n.Init.(type) {
	case *VarDecl:
		b.buildLocalVarDecl(init)
	case *ExprStmt:
		if init.X != nil {
			b.buildExprVal(init.X)
		}
	}
	head := b.fn.NewBlock("for.cond")
	body := b.fn.NewBlock("for.body")
	step := b.fn.NewBlock("for.step")
	end := b.fn.NewBlock("for.end")
	b.jump(head)
	b.setCur(head)
	if n.Cond != nil {
		c := b.buildCond(n.Cond)
		b.branch(c, body, end)
	} else {
		b.jump(body)
	}
	b.setCur(body)
	b.breakTargets = append(b.breakTargets, end)
	b.continueTargets = append(b.continueTargets, step)
	b.buildStmt(n.Body)
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]
	b.jump(step)
	b.setCur(step)
	if n.Step != nil {
		b.buildExprVal(n.Step)
	}
	b.jump(head)
	b.setCur(end)
}

// buildSwitch lowers to an OpSwitch dispatch instruction (a compare chain
// in the back end, §4.6) followed by the case bodies emitted in source
// order so labelled fallthrough between cases still works; the dispatch
// block's terminator is filled in only after the body walk discovers
// every case/default label.
func (b *Builder) buildSwitch(n *SwitchStmt) {
	tag, mt := b.buildExprVal(n.Tag)
	dispatch := b.cur
	end := b.fn.NewBlock("switch.end")
	sw := &switchLowering{tagVal: tag, tagType: mt, end: end}
	b.switchInfo = append(b.switchInfo, sw)
	b.breakTargets = append(b.breakTargets, end)

	// Walk the body once: this both emits the case/default blocks' code
	// and populates sw.cases/sw.defBlock via buildCaseBody as each label
	// is encountered, so the dispatch terminator can only be built below.
	bodyStart := b.fn.NewBlock("switch.body")
	b.setCur(bodyStart)
	b.buildStmt(n.Body)
	b.jump(end)

	defaultTarget := sw.defBlock
	if defaultTarget == nil {
		defaultTarget = end
	}
	b.fn.Emit(dispatch, &Instr{Op: OpSwitch, SwitchVal: tag, SwitchCases: sw.cases, SwitchDefault: defaultTarget})
	// bodyStart itself is never a dispatch target: any statements preceding
	// the first case/default label are unreachable from switch entry, per
	// C's "jump directly to the matching label" semantics. It is left as
	// dead code for a later pass to drop if nothing jumps into it.
	for _, c := range sw.cases {
		dispatch.addSucc(c.Block)
	}
	dispatch.addSucc(defaultTarget)

	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.switchInfo = b.switchInfo[:len(b.switchInfo)-1]
	b.setCur(end)
}

// buildCaseBody opens a new block for one case/default label encountered
// while walking the switch body linearly, records it as a target of the
// enclosing switch's OpSwitch (a case or the default), and falls through
// into it from the preceding code as C source order requires. The value
// compares themselves are emitted by isel_amd64.go's OpSwitch lowering.
func (b *Builder) buildCaseBody(n *CaseStmt) {
	if len(b.switchInfo) == 0 {
		b.buildStmt(n.Stmt)
		return
	}
	sw := b.switchInfo[len(b.switchInfo)-1]
	here := b.fn.NewBlock("case")
	if n.Label.IsDef {
		sw.defBlock = here
	} else {
		sw.cases = append(sw.cases, SwitchCase{Value: n.Label.Value, Block: here})
	}
	b.jump(here)
	b.setCur(here)
	b.buildStmt(n.Stmt)
}

func (b *Builder) buildAsm(n *AsmStmt) {
	for _, o := range n.Outputs {
		b.buildLValueAddr(o.Expr)
	}
	for _, o := range n.Inputs {
		b.buildExprVal(o.Expr)
	}
	// Only the operand expressions are evaluated here (outputs for their
	// address, inputs for their value); no IR instruction is emitted for
	// the asm body itself, and the back end never sees the AsmStmt.
}

// buildCond lowers a condition expression to an i1 value, short-circuiting
// && and || rather than materialising both operands unconditionally.
func (b *Builder) buildCond(e Expr) Value {
	if be, ok := e.(*BinaryExpr); ok && (be.Op == BinLAnd || be.Op == BinLOr) {
		return b.buildShortCircuit(be)
	}
	v, mt := b.buildExprVal(e)
	return b.toBool(v, mt)
}

func (b *Builder) toBool(v Value, mt MachType) Value {
	if mt == MTi1 {
		return v
	}
	return b.fn.Emit(b.cur, &Instr{Op: OpICmp, Type: MTi1, Pred: ICmpNE, A: v, B: noValue})
}

func (b *Builder) buildShortCircuit(n *BinaryExpr) Value {
	rhsB := b.fn.NewBlock("sc.rhs")
	endB := b.fn.NewBlock("sc.end")
	lhs := b.buildCond(n.X)
	startBlock := b.cur
	if n.Op == BinLAnd {
		b.branch(lhs, rhsB, endB)
	} else {
		b.branch(lhs, endB, rhsB)
	}
	b.setCur(rhsB)
	rhs := b.buildCond(n.Y)
	rhsEndBlock := b.cur
	b.jump(endB)
	b.setCur(endB)
	phi := &Instr{Op: OpPhi, Type: MTi1}
	phi.Phis = append(phi.Phis, PhiEdge{Block: startBlock, Val: lhs})
	phi.Phis = append(phi.Phis, PhiEdge{Block: rhsEndBlock, Val: rhs})
	return b.fn.Emit(endB, phi)
}

// ---- expressions: value form ----

// buildExprVal lowers e and returns its rvalue plus machine type.
func (b *Builder) buildExprVal(e Expr) (Value, MachType) {
	mt := machTypeOf(e.ExprType())
	switch n := e.(type) {
	case *IntLit:
		return b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: mt, IsConst: true, ConstI: int64(n.Value)}), mt
	case *CharLit:
		return b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: mt, IsConst: true, ConstI: n.Value}), mt
	case *FloatLit:
		return b.fn.Emit(b.cur, &Instr{Op: OpFAdd, Type: mt, IsConst: true, ConstF: n.Value}), mt
	case *StringLit:
		return b.fn.Emit(b.cur, &Instr{Op: OpAlloca, Type: MTptr, Comment: "str:" + n.Value}), MTptr
	case *Ident:
		return b.buildIdentVal(n)
	case *UnaryExpr:
		return b.buildUnary(n)
	case *BinaryExpr:
		return b.buildBinary(n)
	case *TernaryExpr:
		return b.buildTernary(n)
	case *AssignExpr:
		return b.buildAssign(n)
	case *CallExpr:
		return b.buildCall(n)
	case *MemberExpr:
		if n.Member != nil && n.Member.IsBitField {
			addr, _ := b.buildLValueAddr(e)
			return b.buildBitfieldLoad(addr, n.Member)
		}
		addr, elemT := b.buildLValueAddr(e)
		if e.ExprType().IsAggregate() {
			return addr, MTptr
		}
		return b.fn.Emit(b.cur, &Instr{Op: OpLoad, Type: elemT, Ptr: addr}), elemT
	case *IndexExpr:
		addr, elemT := b.buildLValueAddr(e)
		if e.ExprType().IsAggregate() {
			return addr, MTptr
		}
		return b.fn.Emit(b.cur, &Instr{Op: OpLoad, Type: elemT, Ptr: addr}), elemT
	case *CastExpr:
		return b.buildCast(n)
	case *SizeofExpr, *AlignofExpr:
		v, ok := b.ctx.constEvaluator().Eval(e)
		if ok {
			return b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: mt, IsConst: true, ConstI: v.I}), mt
		}
		return b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: mt, IsConst: true}), mt
	case *CompoundLiteralExpr:
		addr := b.emitAlloca(n.Ty)
		b.buildInit(addr, n.Ty, n.List)
		return addr, MTptr
	case *StmtExpr:
		return b.buildStmtExpr(n)
	case *GenericExpr:
		if n.Chosen != nil {
			return b.buildExprVal(n.Chosen)
		}
	case *BuiltinCallExpr:
		return b.buildBuiltin(n)
	}
	return b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: mt, IsConst: true}), mt
}

func (ctx *Context) constEvaluator() *ConstEvaluator { return NewConstEvaluator(ctx.Diags) }

func (b *Builder) buildIdentVal(n *Ident) (Value, MachType) {
	mt := machTypeOf(n.Ty)
	if n.Sym != nil && n.Sym.Kind == SymFunction {
		return b.fn.Emit(b.cur, &Instr{Op: OpAlloca, Type: MTptr, Sym: n.Sym}), MTptr
	}
	if n.Sym != nil && n.Sym.Kind == SymEnumConst {
		return b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: mt, IsConst: true, ConstI: n.Sym.EnumValue}), mt
	}
	addr, elemT := b.buildLValueAddr(n)
	if n.Ty.IsAggregate() {
		return addr, MTptr
	}
	return b.fn.Emit(b.cur, &Instr{Op: OpLoad, Type: elemT, Ptr: addr}), elemT
}

// buildLValueAddr computes e's address, returning (pointer, elementMachType).
func (b *Builder) buildLValueAddr(e Expr) (Value, MachType) {
	switch n := e.(type) {
	case *Ident:
		if n.Sym != nil {
			if addr, ok := b.localAddr[n.Sym]; ok {
				return addr, machTypeOf(n.Ty)
			}
			return b.fn.Emit(b.cur, &Instr{Op: OpAlloca, Type: MTptr, Sym: n.Sym}), machTypeOf(n.Ty)
		}
	case *UnaryExpr:
		if n.Op == UnDeref {
			v, _ := b.buildExprVal(n.X)
			return v, machTypeOf(n.Ty)
		}
	case *IndexExpr:
		base, baseMT := b.buildArrayBase(n.X)
		idx, _ := b.buildExprVal(n.Index)
		elemSize := SizeOf(n.Ty)
		gep := &Instr{Op: OpGEP, Type: MTptr, GEPBase: base, GEPIndices: []GEPIndex{{Index: idx, ElemSize: elemSize}}}
		addr := b.fn.Emit(b.cur, gep)
		_ = baseMT
		return addr, machTypeOf(n.Ty)
	case *MemberExpr:
		var base Value
		if n.Arrow {
			base, _ = b.buildExprVal(n.X)
		} else {
			base, _ = b.buildLValueAddr(n.X)
		}
		if n.Member == nil {
			return base, machTypeOf(n.Ty)
		}
		if n.Member.IsBitField {
			// Address of the shared storage unit; callers read/write the
			// field itself through buildBitfieldLoad/buildBitfieldStore.
			off := n.Member.Offset
			addr := b.gepConst(base, off)
			return addr, machTypeOf(n.Ty)
		}
		addr := b.gepConst(base, n.Member.Offset)
		return addr, machTypeOf(n.Ty)
	case *CompoundLiteralExpr:
		addr := b.emitAlloca(n.Ty)
		b.buildInit(addr, n.Ty, n.List)
		return addr, MTptr
	}
	// Fallback: evaluate as a value (e.g. a parenthesised lvalue chain) and
	// treat the result as already being an address (pointer-typed exprs).
	v, mt := b.buildExprVal(e)
	return v, mt
}

// buildArrayBase decays an array-typed expression to its base pointer
// without loading through an extra level of indirection.
func (b *Builder) buildArrayBase(e Expr) (Value, MachType) {
	if e.ExprType() != nil && e.ExprType().IsArray() {
		addr, _ := b.buildLValueAddr(e)
		return addr, MTptr
	}
	return b.buildExprVal(e)
}

func (b *Builder) gepConst(base Value, byteOff int) Value {
	if byteOff == 0 {
		return base
	}
	off := b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: MTi64, IsConst: true, ConstI: int64(byteOff)})
	return b.fn.Emit(b.cur, &Instr{Op: OpGEP, Type: MTptr, GEPBase: base, GEPIndices: []GEPIndex{{Index: off, ElemSize: 1}}})
}

func (b *Builder) buildUnary(n *UnaryExpr) (Value, MachType) {
	mt := machTypeOf(n.Ty)
	switch n.Op {
	case UnAddr:
		addr, _ := b.buildLValueAddr(n.X)
		return addr, MTptr
	case UnDeref:
		ptr, _ := b.buildExprVal(n.X)
		if n.Ty.IsAggregate() {
			return ptr, MTptr
		}
		return b.fn.Emit(b.cur, &Instr{Op: OpLoad, Type: mt, Ptr: ptr}), mt
	case UnNot:
		v, vmt := b.buildExprVal(n.X)
		bit := b.toBool(v, vmt)
		return b.fn.Emit(b.cur, &Instr{Op: OpICmp, Type: MTi1, Pred: ICmpEQ, A: bit, IsConst: false}), MTi1
	case UnNeg:
		v, vmt := b.buildExprVal(n.X)
		op := OpNeg
		if vmt.IsFloat() {
			op = OpFNeg
		}
		return b.fn.Emit(b.cur, &Instr{Op: op, Type: vmt, A: v}), vmt
	case UnPlus:
		return b.buildExprVal(n.X)
	case UnBitNot:
		v, vmt := b.buildExprVal(n.X)
		return b.fn.Emit(b.cur, &Instr{Op: OpNot, Type: vmt, A: v}), vmt
	case UnPreInc, UnPreDec, UnPostInc, UnPostDec:
		return b.buildIncDec(n)
	}
	return b.buildExprVal(n.X)
}

func (b *Builder) buildIncDec(n *UnaryExpr) (Value, MachType) {
	if mem, ok := n.X.(*MemberExpr); ok && mem.Member != nil && mem.Member.IsBitField {
		return b.buildBitfieldIncDec(n, mem)
	}
	addr, mt := b.buildLValueAddr(n.X)
	old := b.fn.Emit(b.cur, &Instr{Op: OpLoad, Type: mt, Ptr: addr})
	step := int64(1)
	if n.X.ExprType() != nil && n.X.ExprType().Unqualified().IsPointer() {
		step = int64(SizeOf(n.X.ExprType().Unqualified().Elem))
	}
	one := b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: mt, IsConst: true, ConstI: step})
	op := OpAdd
	if n.Op == UnPreDec || n.Op == UnPostDec {
		op = OpSub
	}
	var newV Value
	if mt.IsFloat() {
		fop := OpFAdd
		if op == OpSub {
			fop = OpFSub
		}
		newV = b.fn.Emit(b.cur, &Instr{Op: fop, Type: mt, A: old, B: one})
	} else {
		newV = b.fn.Emit(b.cur, &Instr{Op: op, Type: mt, A: old, B: one})
	}
	b.fn.Emit(b.cur, &Instr{Op: OpStore, Type: mt, Ptr: addr, Store: newV})
	if n.Op == UnPreInc || n.Op == UnPreDec {
		return newV, mt
	}
	return old, mt
}

func (b *Builder) buildBinary(n *BinaryExpr) (Value, MachType) {
	if n.Op == BinLAnd || n.Op == BinLOr {
		return b.buildShortCircuit(n), MTi1
	}
	if n.Op == BinComma {
		b.buildExprVal(n.X)
		return b.buildExprVal(n.Y)
	}
	mt := machTypeOf(n.Ty)
	if isPointerArith(n) {
		return b.buildPointerArith(n)
	}
	x, xmt := b.buildExprVal(n.X)
	y, _ := b.buildExprVal(n.Y)
	if op, isCmp := cmpOp(n.Op); isCmp {
		if xmt.IsFloat() {
			return b.fn.Emit(b.cur, &Instr{Op: OpFCmp, Type: MTi1, Pred: op, A: x, B: y}), MTi1
		}
		return b.fn.Emit(b.cur, &Instr{Op: OpICmp, Type: MTi1, Pred: op, A: x, B: y, Unsigned: isUnsignedCmp(n)}), MTi1
	}
	op := arithOp(n.Op, mt, isUnsignedType(n.X.ExprType()))
	return b.fn.Emit(b.cur, &Instr{Op: op, Type: mt, A: x, B: y}), mt
}

func isPointerArith(n *BinaryExpr) bool {
	if n.Op != BinAdd && n.Op != BinSub {
		return false
	}
	xp := n.X.ExprType() != nil && n.X.ExprType().Unqualified().IsPointer()
	yp := n.Y.ExprType() != nil && n.Y.ExprType().Unqualified().IsPointer()
	return xp || yp
}

func (b *Builder) buildPointerArith(n *BinaryExpr) (Value, MachType) {
	xp := n.X.ExprType().Unqualified().IsPointer()
	if n.Op == BinSub && xp && n.Y.ExprType().Unqualified().IsPointer() {
		xv, _ := b.buildExprVal(n.X)
		yv, _ := b.buildExprVal(n.Y)
		diff := b.fn.Emit(b.cur, &Instr{Op: OpPtrToInt, Type: MTi64, A: xv})
		yi := b.fn.Emit(b.cur, &Instr{Op: OpPtrToInt, Type: MTi64, A: yv})
		byteDiff := b.fn.Emit(b.cur, &Instr{Op: OpSub, Type: MTi64, A: diff, B: yi})
		elem := SizeOf(n.X.ExprType().Unqualified().Elem)
		sz := b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: MTi64, IsConst: true, ConstI: int64(elem)})
		return b.fn.Emit(b.cur, &Instr{Op: OpSDiv, Type: MTi64, A: byteDiff, B: sz}), MTi64
	}
	var ptrExpr, idxExpr Expr
	if xp {
		ptrExpr, idxExpr = n.X, n.Y
	} else {
		ptrExpr, idxExpr = n.Y, n.X
	}
	base, _ := b.buildExprVal(ptrExpr)
	idx, _ := b.buildExprVal(idxExpr)
	if n.Op == BinSub {
		zero := b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: MTi64, IsConst: true, ConstI: 0})
		idx = b.fn.Emit(b.cur, &Instr{Op: OpSub, Type: MTi64, A: zero, B: idx})
	}
	elem := SizeOf(ptrExpr.ExprType().Unqualified().Elem)
	gep := &Instr{Op: OpGEP, Type: MTptr, GEPBase: base, GEPIndices: []GEPIndex{{Index: idx, ElemSize: elem}}}
	return b.fn.Emit(b.cur, gep), MTptr
}

func cmpOp(op BinaryOp) (ICmpPred, bool) {
	switch op {
	case BinEq:
		return ICmpEQ, true
	case BinNe:
		return ICmpNE, true
	case BinLt:
		return ICmpSLT, true
	case BinLe:
		return ICmpSLE, true
	case BinGt:
		return ICmpSGT, true
	case BinGe:
		return ICmpSGE, true
	}
	return 0, false
}

func isUnsignedCmp(n *BinaryExpr) bool { return isUnsignedType(n.X.ExprType()) }

func isUnsignedType(t *Type) bool {
	u := t.Unqualified()
	return u.IsInteger() && u.IntUnsign
}

func arithOp(op BinaryOp, mt MachType, unsigned bool) Op {
	if mt.IsFloat() {
		switch op {
		case BinAdd:
			return OpFAdd
		case BinSub:
			return OpFSub
		case BinMul:
			return OpFMul
		case BinDiv:
			return OpFDiv
		}
	}
	switch op {
	case BinAdd:
		return OpAdd
	case BinSub:
		return OpSub
	case BinMul:
		return OpMul
	case BinDiv:
		if unsigned {
			return OpUDiv
		}
		return OpSDiv
	case BinMod:
		if unsigned {
			return OpURem
		}
		return OpSRem
	case BinAnd:
		return OpAnd
	case BinOr:
		return OpOr
	case BinXor:
		return OpXor
	case BinShl:
		return OpShl
	case BinShr:
		if unsigned {
			return OpLShr
		}
		return OpAShr
	}
	return OpAdd
}

func (b *Builder) buildTernary(n *TernaryExpr) (Value, MachType) {
	mt := machTypeOf(n.Ty)
	thenB := b.fn.NewBlock("cond.then")
	elseB := b.fn.NewBlock("cond.else")
	endB := b.fn.NewBlock("cond.end")

	var condVal Value
	if n.Then == nil {
		condVal, _ = b.buildExprVal(n.Cond)
		b.branch(b.toBool(condVal, machTypeOf(n.Cond.ExprType())), endB, elseB)
	} else {
		c := b.buildCond(n.Cond)
		b.branch(c, thenB, elseB)
	}

	var thenV Value
	thenSrc := b.cur
	if n.Then != nil {
		b.setCur(thenB)
		thenV, _ = b.buildExprVal(n.Then)
		thenSrc = b.cur
		b.jump(endB)
	}

	b.setCur(elseB)
	elseV, _ := b.buildExprVal(n.Else)
	elseSrc := b.cur
	b.jump(endB)

	b.setCur(endB)
	phi := &Instr{Op: OpPhi, Type: mt}
	if n.Then != nil {
		phi.Phis = append(phi.Phis, PhiEdge{Block: thenSrc, Val: thenV})
	} else {
		phi.Phis = append(phi.Phis, PhiEdge{Block: thenSrc, Val: condVal})
	}
	phi.Phis = append(phi.Phis, PhiEdge{Block: elseSrc, Val: elseV})
	return b.fn.Emit(endB, phi), mt
}

func (b *Builder) buildAssign(n *AssignExpr) (Value, MachType) {
	addr, mt := b.buildLValueAddr(n.Lhs)
	if mem, ok := n.Lhs.(*MemberExpr); ok && mem.Member != nil && mem.Member.IsBitField {
		return b.buildBitfieldAssign(n, mem, addr)
	}
	if n.Op == AsgPlain {
		v, _ := b.buildExprVal(n.Rhs)
		b.fn.Emit(b.cur, &Instr{Op: OpStore, Type: mt, Ptr: addr, Store: v})
		return v, mt
	}
	old := b.fn.Emit(b.cur, &Instr{Op: OpLoad, Type: mt, Ptr: addr})
	rhs, _ := b.buildExprVal(n.Rhs)
	op := compoundOp(n.Op, mt, isUnsignedType(n.Lhs.ExprType()))
	newV := b.fn.Emit(b.cur, &Instr{Op: op, Type: mt, A: old, B: rhs})
	b.fn.Emit(b.cur, &Instr{Op: OpStore, Type: mt, Ptr: addr, Store: newV})
	return newV, mt
}

func compoundOp(op AssignOp, mt MachType, unsigned bool) Op {
	switch op {
	case AsgAdd:
		return arithOp(BinAdd, mt, unsigned)
	case AsgSub:
		return arithOp(BinSub, mt, unsigned)
	case AsgMul:
		return arithOp(BinMul, mt, unsigned)
	case AsgDiv:
		return arithOp(BinDiv, mt, unsigned)
	case AsgMod:
		return arithOp(BinMod, mt, unsigned)
	case AsgAnd:
		return OpAnd
	case AsgOr:
		return OpOr
	case AsgXor:
		return OpXor
	case AsgShl:
		return OpShl
	case AsgShr:
		return arithOp(BinShr, mt, unsigned)
	}
	return OpAdd
}

// buildBitfieldAssign lowers `s.bits = v` / `s.bits op= v` with a
// load-mask-or-store sequence against the bit-field's storage unit; a
// closed-form shift-and-mask on the host-sized integer rather than a
// dedicated IR op, matching the naive-lowering style of spec.md §4.4.
func (b *Builder) buildBitfieldAssign(n *AssignExpr, mem *MemberExpr, unitAddr Value) (Value, MachType) {
	m := mem.Member
	unitMT := storageUnitType(m)
	rhs, _ := b.buildExprVal(n.Rhs)
	if n.Op != AsgPlain {
		old, _ := b.buildBitfieldLoad(unitAddr, m)
		op := compoundOp(n.Op, unitMT, true)
		rhs = b.fn.Emit(b.cur, &Instr{Op: op, Type: unitMT, A: old, B: rhs})
	}
	return b.buildBitfieldStore(unitAddr, m, rhs)
}

// buildBitfieldIncDec lowers `s.bits++`/`--s.bits` as a load-add-store
// against the shared storage unit, reusing the same masked read/write as
// plain bit-field reads and assignments so neighboring fields in the unit
// are left untouched.
func (b *Builder) buildBitfieldIncDec(n *UnaryExpr, mem *MemberExpr) (Value, MachType) {
	addr, _ := b.buildLValueAddr(n.X)
	m := mem.Member
	old, unitMT := b.buildBitfieldLoad(addr, m)
	one := b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: unitMT, IsConst: true, ConstI: 1})
	op := OpAdd
	if n.Op == UnPreDec || n.Op == UnPostDec {
		op = OpSub
	}
	newV := b.fn.Emit(b.cur, &Instr{Op: op, Type: unitMT, A: old, B: one})
	stored, _ := b.buildBitfieldStore(addr, m, newV)
	if n.Op == UnPreInc || n.Op == UnPreDec {
		return stored, unitMT
	}
	return old, unitMT
}

// buildBitfieldLoad reads m's field out of its shared storage unit at addr:
// load the unit, shift its bits down to position 0, mask to its width.
func (b *Builder) buildBitfieldLoad(addr Value, m *Member) (Value, MachType) {
	unitMT := storageUnitType(m)
	width := uint64(m.BitWidth)
	mask := (uint64(1) << width) - 1
	unit := b.fn.Emit(b.cur, &Instr{Op: OpLoad, Type: unitMT, Ptr: addr})
	shifted := b.fn.Emit(b.cur, &Instr{Op: OpLShr, Type: unitMT, A: unit, B: b.constU(unitMT, uint64(m.BitOffset))})
	masked := b.fn.Emit(b.cur, &Instr{Op: OpAnd, Type: unitMT, A: shifted, B: b.constU(unitMT, mask)})
	return masked, unitMT
}

// buildBitfieldStore writes val into m's bits of the storage unit at addr,
// clearing only m's bit range and leaving the unit's other fields intact.
func (b *Builder) buildBitfieldStore(addr Value, m *Member, val Value) (Value, MachType) {
	unitMT := storageUnitType(m)
	width := uint64(m.BitWidth)
	mask := (uint64(1) << width) - 1
	shifted := mask << uint(m.BitOffset)

	cur := b.fn.Emit(b.cur, &Instr{Op: OpLoad, Type: unitMT, Ptr: addr})
	valMasked := b.fn.Emit(b.cur, &Instr{Op: OpAnd, Type: unitMT, A: val, B: b.constU(unitMT, mask)})
	valShifted := b.fn.Emit(b.cur, &Instr{Op: OpShl, Type: unitMT, A: valMasked, B: b.constU(unitMT, uint64(m.BitOffset))})
	cleared := b.fn.Emit(b.cur, &Instr{Op: OpAnd, Type: unitMT, A: cur, B: b.constU(unitMT, ^shifted)})
	result := b.fn.Emit(b.cur, &Instr{Op: OpOr, Type: unitMT, A: cleared, B: valShifted})
	b.fn.Emit(b.cur, &Instr{Op: OpStore, Type: unitMT, Ptr: addr, Store: result})
	return valMasked, unitMT
}

func (b *Builder) constU(mt MachType, v uint64) Value {
	return b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: mt, IsConst: true, ConstI: int64(v)})
}

func storageUnitType(m *Member) MachType {
	switch SizeOf(m.Type) {
	case 1:
		return MTi8
	case 2:
		return MTi16
	case 8:
		return MTi64
	default:
		return MTi32
	}
}

func (b *Builder) buildCall(n *CallExpr) (Value, MachType) {
	var args []Value
	for _, a := range n.Args {
		v, _ := b.buildExprVal(a)
		args = append(args, v)
	}
	ins := &Instr{Op: OpCall, Args: args}
	ft := n.Fn.ExprType()
	if ft != nil {
		u := ft.Unqualified()
		if u.IsPointer() {
			u = u.Elem.Unqualified()
		}
		ins.Type = machTypeOf(u.Ret)
		ins.Variadic = u.Variadic
		ins.FixedArgs = len(u.Params)
	}
	if id, ok := n.Fn.(*Ident); ok {
		ins.Callee = id.Name
	} else {
		v, _ := b.buildExprVal(n.Fn)
		ins.CalleeVal = v
	}
	return b.fn.Emit(b.cur, ins), ins.Type
}

func (b *Builder) buildCast(n *CastExpr) (Value, MachType) {
	from := n.X.ExprType()
	to := n.Ty
	v, fromMT := b.buildExprVal(n.X)
	toMT := machTypeOf(to)
	if fromMT == toMT {
		return v, toMT
	}
	fromFloat, toFloat := fromMT.IsFloat(), toMT.IsFloat()
	switch {
	case fromMT == MTptr && toMT != MTptr && !toFloat:
		return b.fn.Emit(b.cur, &Instr{Op: OpPtrToInt, Type: toMT, A: v}), toMT
	case toMT == MTptr && fromMT != MTptr && !fromFloat:
		return b.fn.Emit(b.cur, &Instr{Op: OpIntToPtr, Type: toMT, A: v}), toMT
	case toMT == MTptr && fromMT == MTptr:
		return b.fn.Emit(b.cur, &Instr{Op: OpBitcast, Type: toMT, A: v}), toMT
	case fromFloat && toFloat:
		op := OpFPTrunc
		if toMT.Size() > fromMT.Size() {
			op = OpFPExt
		}
		return b.fn.Emit(b.cur, &Instr{Op: op, Type: toMT, A: v}), toMT
	case fromFloat && !toFloat:
		op := OpFPToSI
		if isUnsignedType(to) {
			op = OpFPToUI
		}
		return b.fn.Emit(b.cur, &Instr{Op: op, Type: toMT, A: v}), toMT
	case !fromFloat && toFloat:
		op := OpSIToFP
		if from != nil && isUnsignedType(from) {
			op = OpUIToFP
		}
		return b.fn.Emit(b.cur, &Instr{Op: op, Type: toMT, A: v}), toMT
	case toMT.Size() > fromMT.Size():
		op := OpZExt
		if from != nil && !isUnsignedType(from) {
			op = OpSExt
		}
		return b.fn.Emit(b.cur, &Instr{Op: op, Type: toMT, A: v}), toMT
	case toMT.Size() < fromMT.Size():
		return b.fn.Emit(b.cur, &Instr{Op: OpTrunc, Type: toMT, A: v}), toMT
	}
	return v, toMT
}

func (b *Builder) buildStmtExpr(n *StmtExpr) (Value, MachType) {
	items := n.Body.Items
	for i, item := range items {
		if i == len(items)-1 {
			if es, ok := item.(*ExprStmt); ok {
				return b.buildExprVal(es.X)
			}
		}
		switch x := item.(type) {
		case *VarDecl:
			b.buildLocalVarDecl(x)
		case Stmt:
			b.buildStmt(x)
		}
	}
	return b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: MTi32, IsConst: true}), MTi32
}

// ---- initializers ----

// buildInit lowers an initializer (scalar or aggregate) for the object at
// addr of type t: scalar stores, and aggregate recursion over InitListExpr
// honouring designators. Only the members and elements the list names are
// stored; the others, including a short list's tail, are neither written
// nor zero-filled.
func (b *Builder) buildInit(addr Value, t *Type, init Expr) {
	if init == nil {
		return
	}
	lst, isList := init.(*InitListExpr)
	if !isList {
		v, mt := b.buildExprVal(init)
		b.fn.Emit(b.cur, &Instr{Op: OpStore, Type: mt, Ptr: addr, Store: v})
		return
	}
	u := t.Unqualified()
	switch u.Kind {
	case TyArray:
		elemSize := SizeOf(u.Elem)
		idx := int64(0)
		for _, it := range lst.Items {
			if it.IndexDesignator != nil {
				if v, ok := NewConstEvaluator(b.ctx.Diags).EvalInt(it.IndexDesignator); ok {
					idx = v
				}
			}
			eaddr := b.gepConst(addr, int(idx)*elemSize)
			if it.List != nil {
				b.buildInit(eaddr, u.Elem, it.List)
			} else {
				b.buildInit(eaddr, u.Elem, it.Value)
			}
			idx++
		}
	case TyStruct, TyUnion:
		mi := 0
		for _, it := range lst.Items {
			if it.FieldDesignator != "" {
				for i, m := range u.Members {
					if m.Name == it.FieldDesignator {
						mi = i
						break
					}
				}
			}
			if mi >= len(u.Members) {
				break
			}
			m := u.Members[mi]
			maddr := b.gepConst(addr, m.Offset)
			if it.List != nil {
				b.buildInit(maddr, m.Type, it.List)
			} else {
				b.buildInit(maddr, m.Type, it.Value)
			}
			if u.Kind == TyStruct {
				mi++
			}
		}
	default:
		if len(lst.Items) > 0 {
			b.buildInit(addr, t, lst.Items[0].Value)
		}
	}
}

// ---- builtins ----

func (b *Builder) buildBuiltin(n *BuiltinCallExpr) (Value, MachType) {
	mt := machTypeOf(n.Ty)
	switch n.Name {
	case "__builtin_expect":
		if len(n.Args) > 0 {
			return b.buildExprVal(n.Args[0])
		}
	case "__builtin_constant_p", "__builtin_types_compatible_p", "__builtin_offsetof":
		v, ok := NewConstEvaluator(b.ctx.Diags).Eval(n)
		if ok {
			return b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: mt, IsConst: true, ConstI: v.I}), mt
		}
	case "__builtin_choose_expr":
		if v, ok := NewConstEvaluator(b.ctx.Diags).EvalInt(n.ChooseCond); ok {
			if v != 0 {
				return b.buildExprVal(n.ChooseA)
			}
			return b.buildExprVal(n.ChooseB)
		}
	case "__builtin_clz", "__builtin_ctz", "__builtin_popcount", "__builtin_abs":
		var a Value
		if len(n.Args) > 0 {
			a, _ = b.buildExprVal(n.Args[0])
		}
		// Lowered as an ordinary OpCall whose callee is the builtin's own
		// name; isel_amd64.go selects it as a plain MCall to that symbol.
		return b.fn.Emit(b.cur, &Instr{Op: OpCall, Type: mt, Callee: n.Name, Args: []Value{a}}), mt
	case "__builtin_va_start":
		if len(n.Args) > 0 {
			addr, _ := b.buildLValueAddr(n.Args[0])
			b.fn.Emit(b.cur, &Instr{Op: OpVaStart, Ptr: addr})
		}
		return noValue, MTi32
	case "__builtin_va_end":
		if len(n.Args) > 0 {
			addr, _ := b.buildLValueAddr(n.Args[0])
			b.fn.Emit(b.cur, &Instr{Op: OpVaEnd, Ptr: addr})
		}
		return noValue, MTi32
	case "__builtin_va_arg":
		var listAddr Value
		if len(n.Args) > 0 {
			listAddr, _ = b.buildLValueAddr(n.Args[0])
		}
		return b.fn.Emit(b.cur, &Instr{Op: OpVaArg, Ptr: listAddr, Type: mt}), mt
	}
	return b.fn.Emit(b.cur, &Instr{Op: OpAdd, Type: mt, IsConst: true}), mt
}
