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

// analyzeExpr computes and stores e's type, reporting spec.md §4.3's
// failure kinds (type mismatch, invalid operand, undeclared identifier)
// along the way. It returns e's resolved type for convenience.
func (s *Sema) analyzeExpr(e Expr) *Type {
	if e == nil {
		return nil
	}
	var t *Type
	switch n := e.(type) {
	case *IntLit:
		t = s.intLitType(n)
	case *FloatLit:
		t = s.types.FloatT(FloatDouble)
	case *CharLit:
		t = s.types.Int(RankInt, false)
	case *StringLit:
		t = s.types.Pointer(s.types.Int(RankChar, false))
	case *Ident:
		t = s.analyzeIdent(n)
	case *UnaryExpr:
		t = s.analyzeUnary(n)
	case *BinaryExpr:
		t = s.analyzeBinary(n)
	case *TernaryExpr:
		t = s.analyzeTernary(n)
	case *AssignExpr:
		t = s.analyzeAssign(n)
	case *CallExpr:
		t = s.analyzeCall(n)
	case *IndexExpr:
		t = s.analyzeIndex(n)
	case *MemberExpr:
		t = s.analyzeMember(n)
	case *CastExpr:
		s.analyzeExpr(n.X)
		t = n.Ty
	case *SizeofExpr:
		if n.OfExpr != nil {
			s.analyzeExpr(n.OfExpr)
		}
		t = s.types.Int(RankLong, true)
	case *AlignofExpr:
		t = s.types.Int(RankLong, true)
	case *InitListExpr:
		t = s.analyzeInitList(n)
	case *CompoundLiteralExpr:
		s.analyzeInitList(n.List)
		t = n.Ty
	case *StmtExpr:
		t = s.analyzeStmtExpr(n)
	case *GenericExpr:
		t = s.analyzeGeneric(n)
	case *BuiltinCallExpr:
		t = s.analyzeBuiltin(n)
	}
	e.SetExprType(t)
	return t
}

func (s *Sema) intLitType(n *IntLit) *Type {
	if n.Suffix.LongLong || n.Suffix.Long {
		return s.types.Int(RankLong, n.Suffix.Unsigned)
	}
	if n.Value > 0x7fffffff {
		return s.types.Int(RankLong, n.Suffix.Unsigned)
	}
	return s.types.Int(RankInt, n.Suffix.Unsigned)
}

func (s *Sema) analyzeIdent(n *Ident) *Type {
	// The parser resolves every identifier at its point of use
	// (resolveIdent), so Sema only reports one left unresolved and
	// otherwise propagates its symbol's type.
	if n.Sym != nil {
		return n.Sym.Type
	}
	s.diags.Errorf(n.Pos, "use of undeclared identifier %q", n.Name)
	return s.types.Int(RankInt, false)
}

func (s *Sema) analyzeUnary(n *UnaryExpr) *Type {
	xt := s.analyzeExpr(n.X)
	switch n.Op {
	case UnAddr:
		return s.types.Pointer(xt)
	case UnDeref:
		u := decay(s.types, xt).Unqualified()
		if !u.IsPointer() {
			s.diags.Errorf(n.Pos, "indirection requires pointer operand ('%s' invalid)", xt)
			return s.types.Int(RankInt, false)
		}
		return u.Elem
	case UnNot:
		return s.types.Int(RankInt, false)
	case UnPreInc, UnPreDec, UnPostInc, UnPostDec:
		return xt
	default:
		return usualArithConvert(s.types, xt, xt)
	}
}

func (s *Sema) analyzeBinary(n *BinaryExpr) *Type {
	xt := s.analyzeExpr(n.X)
	yt := s.analyzeExpr(n.Y)
	switch n.Op {
	case BinComma:
		return yt
	case BinLAnd, BinLOr:
		return s.types.Int(RankInt, false)
	case BinEq, BinNe, BinLt, BinGt, BinLe, BinGe:
		return s.types.Int(RankInt, false)
	case BinAdd, BinSub:
		xd, yd := decay(s.types, xt), decay(s.types, yt)
		if xd.Unqualified().IsPointer() && yd.IsArithmetic() {
			return xd
		}
		if n.Op == BinAdd && yd.Unqualified().IsPointer() && xd.IsArithmetic() {
			return yd
		}
		if n.Op == BinSub && xd.Unqualified().IsPointer() && yd.Unqualified().IsPointer() {
			return s.types.Int(RankLong, false)
		}
		return usualArithConvert(s.types, xd, yd)
	default:
		return usualArithConvert(s.types, decay(s.types, xt), decay(s.types, yt))
	}
}

func (s *Sema) analyzeTernary(n *TernaryExpr) *Type {
	s.analyzeExpr(n.Cond)
	if n.Then != nil {
		tt := s.analyzeExpr(n.Then)
		et := s.analyzeExpr(n.Else)
		return usualArithConvert(s.types, tt, et)
	}
	tt := n.Cond.ExprType()
	et := s.analyzeExpr(n.Else)
	return usualArithConvert(s.types, tt, et)
}

func (s *Sema) analyzeAssign(n *AssignExpr) *Type {
	lt := s.analyzeExpr(n.Lhs)
	s.analyzeExpr(n.Rhs)
	if lt != nil && lt.Kind == TyQualified && lt.Const {
		s.diags.Errorf(n.Pos, "cannot assign to variable with const-qualified type '%s'", lt)
	}
	return lt
}

func (s *Sema) analyzeCall(n *CallExpr) *Type {
	ft := s.analyzeExpr(n.Fn)
	for _, a := range n.Args {
		s.analyzeExpr(a)
	}
	u := decay(s.types, ft).Unqualified()
	if u.IsPointer() {
		u = u.Elem.Unqualified()
	}
	if !u.IsFunction() {
		s.diags.Errorf(n.Pos, "called object is not a function or function pointer")
		return s.types.Int(RankInt, false)
	}
	if !u.Variadic && len(n.Args) != len(u.Params) {
		s.diags.Errorf(n.Pos, "function call has %d argument(s), expected %d", len(n.Args), len(u.Params))
	}
	return u.Ret
}

func (s *Sema) analyzeIndex(n *IndexExpr) *Type {
	xt := decay(s.types, s.analyzeExpr(n.X))
	s.analyzeExpr(n.Index)
	u := xt.Unqualified()
	if !u.IsPointer() {
		s.diags.Errorf(n.Pos, "subscripted value is not an array or pointer")
		return s.types.Int(RankInt, false)
	}
	return u.Elem
}

func (s *Sema) analyzeMember(n *MemberExpr) *Type {
	xt := s.analyzeExpr(n.X)
	rec := xt
	if n.Arrow {
		rec = decay(s.types, xt).Unqualified()
		if rec.IsPointer() {
			rec = rec.Elem
		}
	}
	u := rec.Unqualified()
	if !u.IsRecord() {
		s.diags.Errorf(n.Pos, "member reference base type '%s' is not a structure or union", xt)
		return s.types.Int(RankInt, false)
	}
	for i := range u.Members {
		if u.Members[i].Name == n.Field {
			n.Member = &u.Members[i]
			return u.Members[i].Type
		}
	}
	s.diags.Errorf(n.Pos, "no member named %q in '%s'", n.Field, xt)
	return s.types.Int(RankInt, false)
}

func (s *Sema) analyzeInitList(n *InitListExpr) *Type {
	for i := range n.Items {
		it := &n.Items[i]
		if it.List != nil {
			s.analyzeInitList(it.List)
		} else if it.Value != nil {
			s.analyzeExpr(it.Value)
		}
		if it.IndexDesignator != nil {
			s.analyzeExpr(it.IndexDesignator)
		}
	}
	return n.Ty
}

func (s *Sema) analyzeStmtExpr(n *StmtExpr) *Type {
	s.analyzeStmt(n.Body)
	// The statement expression's value and type come from the last
	// expression statement in its body, per spec.md §4.4.
	if len(n.Body.Items) == 0 {
		return s.types.Void()
	}
	if es, ok := n.Body.Items[len(n.Body.Items)-1].(*ExprStmt); ok {
		return es.X.ExprType()
	}
	return s.types.Void()
}

func (s *Sema) analyzeGeneric(n *GenericExpr) *Type {
	ct := s.analyzeExpr(n.Control)
	var def Expr
	for i := range n.Assocs {
		a := &n.Assocs[i]
		s.analyzeExpr(a.Value)
		if a.IsDef {
			def = a.Value
			continue
		}
		if TypesCompatible(ct, a.Type) {
			n.Chosen = a.Value
		}
	}
	if n.Chosen == nil {
		n.Chosen = def
	}
	if n.Chosen == nil {
		s.diags.Errorf(n.Pos, "_Generic selector of type '%s' not compatible with any association", ct)
		return s.types.Int(RankInt, false)
	}
	return n.Chosen.ExprType()
}

func (s *Sema) analyzeBuiltin(n *BuiltinCallExpr) *Type {
	for _, a := range n.Args {
		s.analyzeExpr(a)
	}
	switch n.Name {
	case "__builtin_expect":
		if len(n.Args) > 0 {
			return n.Args[0].ExprType()
		}
		return s.types.Int(RankLong, false)
	case "__builtin_constant_p", "__builtin_types_compatible_p":
		return s.types.Int(RankInt, false)
	case "__builtin_choose_expr":
		s.analyzeExpr(n.ChooseCond)
		s.analyzeExpr(n.ChooseA)
		s.analyzeExpr(n.ChooseB)
		if v, ok := s.ce.EvalInt(n.ChooseCond); ok && v == 0 {
			return n.ChooseB.ExprType()
		}
		return n.ChooseA.ExprType()
	case "__builtin_offsetof":
		return s.types.Int(RankLong, true)
	case "__builtin_clz", "__builtin_ctz", "__builtin_popcount", "__builtin_abs":
		return s.types.Int(RankInt, false)
	case "__builtin_va_start", "__builtin_va_end":
		return s.types.Void()
	case "__builtin_va_arg":
		return n.OffsetOf
	}
	return s.types.Int(RankInt, false)
}

// decay implements array-to-pointer and function-to-pointer decay, per
// spec.md §4.3.
func decay(tt *TypeTable, t *Type) *Type {
	u := t.Unqualified()
	if u.Kind == TyArray {
		return tt.Pointer(u.Elem)
	}
	if u.Kind == TyFunction {
		return tt.Pointer(u)
	}
	return t
}

// usualArithConvert implements the usual arithmetic conversions of
// spec.md §4.3: float beats int, wider/unsigned beats narrower/signed.
func usualArithConvert(tt *TypeTable, a, b *Type) *Type {
	au, bu := a.Unqualified(), b.Unqualified()
	if au.IsPointer() {
		return a
	}
	if bu.IsPointer() {
		return b
	}
	if au.IsFloating() || bu.IsFloating() {
		af, bf := floatKindOf(au), floatKindOf(bu)
		if af > bf {
			return tt.FloatT(FloatKind(af))
		}
		return tt.FloatT(FloatKind(bf))
	}
	ar, br := intRankOf(au), intRankOf(bu)
	if ar < RankInt {
		ar = RankInt
	}
	if br < RankInt {
		br = RankInt
	}
	rank := ar
	unsigned := au.IntUnsign
	if br > ar {
		rank = br
		unsigned = bu.IntUnsign
	} else if br == ar {
		unsigned = au.IntUnsign || bu.IntUnsign
	}
	return tt.Int(rank, unsigned)
}

func floatKindOf(t *Type) int {
	if t.IsFloating() {
		return int(t.Float)
	}
	return -1
}

func intRankOf(t *Type) IntRank {
	if t.IsInteger() {
		return t.IntRank
	}
	return RankInt
}
