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

// Constant is the result of folding a constant expression, per spec.md
// §4.3. Kind selects which field is meaningful.
type Constant struct {
	Kind ConstKind
	I    int64   // ConstInt
	F    float64 // ConstFloat
	// ConstAddr: "&label + Offset", used for static initializers that
	// reference another global's address (e.g. `&arr[2]`, a function
	// pointer).
	Label  string
	Offset int64
	Type   *Type
}

type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstAddr
)

// ConstEvaluator folds constant expressions for static initializers,
// _Static_assert, array extents, bit-field widths, case labels, _Generic
// selection, and __builtin_choose_expr, per spec.md §4.3.
type ConstEvaluator struct {
	diags *Diagnostics
}

func NewConstEvaluator(diags *Diagnostics) *ConstEvaluator {
	return &ConstEvaluator{diags: diags}
}

// EvalInt evaluates e as an integer constant expression, returning
// (0, false) if it is not one; it reports no diagnostic itself.
func (ce *ConstEvaluator) EvalInt(e Expr) (int64, bool) {
	c, ok := ce.Eval(e)
	if !ok {
		return 0, false
	}
	switch c.Kind {
	case ConstInt:
		return c.I, true
	case ConstFloat:
		return int64(c.F), true
	default:
		return 0, false
	}
}

// Eval folds e to a Constant, or reports false if e is not a compile-time
// constant expression.
func (ce *ConstEvaluator) Eval(e Expr) (Constant, bool) {
	switch n := e.(type) {
	case *IntLit:
		return Constant{Kind: ConstInt, I: int64(n.Value), Type: n.Ty}, true
	case *CharLit:
		return Constant{Kind: ConstInt, I: n.Value, Type: n.Ty}, true
	case *FloatLit:
		return Constant{Kind: ConstFloat, F: n.Value, Type: n.Ty}, true
	case *Ident:
		if n.Sym != nil && n.Sym.Kind == SymEnumConst {
			return Constant{Kind: ConstInt, I: n.Sym.EnumValue, Type: n.Ty}, true
		}
		if n.Sym != nil && n.Sym.Kind == SymVariable && n.Sym.Storage != StorageAuto && n.Sym.HasInit {
			return n.Sym.ConstInit, true
		}
		if n.Sym != nil && (n.Sym.Linkage == LinkExternal || n.Sym.Kind == SymFunction) {
			return Constant{Kind: ConstAddr, Label: n.Sym.Name, Type: n.Ty}, true
		}
		return Constant{}, false
	case *UnaryExpr:
		return ce.evalUnary(n)
	case *BinaryExpr:
		return ce.evalBinary(n)
	case *TernaryExpr:
		cv, ok := ce.Eval(n.Cond)
		if !ok {
			return Constant{}, false
		}
		truth := constTruthy(cv)
		if n.Then == nil {
			if truth {
				return cv, true
			}
			return ce.Eval(n.Else)
		}
		if truth {
			return ce.Eval(n.Then)
		}
		return ce.Eval(n.Else)
	case *CastExpr:
		v, ok := ce.Eval(n.X)
		if !ok {
			return Constant{}, false
		}
		return ce.castConstant(v, n.Ty), true
	case *SizeofExpr:
		if n.OfType != nil {
			return Constant{Kind: ConstInt, I: int64(SizeOf(n.OfType)), Type: n.Ty}, true
		}
		return Constant{Kind: ConstInt, I: int64(SizeOf(n.OfExpr.ExprType())), Type: n.Ty}, true
	case *AlignofExpr:
		return Constant{Kind: ConstInt, I: int64(AlignOf(n.OfType)), Type: n.Ty}, true
	case *BuiltinCallExpr:
		return ce.evalBuiltin(n)
	case *MemberExpr:
		if n.Member != nil {
			if base, ok := ce.addrOf(n.X); ok {
				return Constant{Kind: ConstAddr, Label: base.Label, Offset: base.Offset + int64(n.Member.Offset), Type: n.Ty}, true
			}
		}
		return Constant{}, false
	}
	return Constant{}, false
}

func (ce *ConstEvaluator) addrOf(e Expr) (Constant, bool) {
	if u, ok := e.(*UnaryExpr); ok && u.Op == UnDeref {
		return ce.Eval(u.X)
	}
	return ce.Eval(e)
}

func constTruthy(c Constant) bool {
	switch c.Kind {
	case ConstInt:
		return c.I != 0
	case ConstFloat:
		return c.F != 0
	default:
		return true
	}
}

func (ce *ConstEvaluator) evalUnary(n *UnaryExpr) (Constant, bool) {
	if n.Op == UnAddr {
		if v, ok := ce.addrOf(n.X); ok {
			return v, true
		}
		return Constant{}, false
	}
	v, ok := ce.Eval(n.X)
	if !ok {
		return Constant{}, false
	}
	switch n.Op {
	case UnNeg:
		if v.Kind == ConstFloat {
			return Constant{Kind: ConstFloat, F: -v.F, Type: n.Ty}, true
		}
		return Constant{Kind: ConstInt, I: -v.I, Type: n.Ty}, true
	case UnPlus:
		return v, true
	case UnNot:
		b := int64(0)
		if !constTruthy(v) {
			b = 1
		}
		return Constant{Kind: ConstInt, I: b, Type: n.Ty}, true
	case UnBitNot:
		return Constant{Kind: ConstInt, I: ^v.I, Type: n.Ty}, true
	}
	return Constant{}, false
}

func (ce *ConstEvaluator) evalBinary(n *BinaryExpr) (Constant, bool) {
	if n.Op == BinComma {
		return ce.Eval(n.Y)
	}
	x, ok1 := ce.Eval(n.X)
	y, ok2 := ce.Eval(n.Y)
	if !ok1 || !ok2 {
		return Constant{}, false
	}
	if x.Kind == ConstFloat || y.Kind == ConstFloat {
		xf, yf := constAsFloat(x), constAsFloat(y)
		switch n.Op {
		case BinAdd:
			return Constant{Kind: ConstFloat, F: xf + yf, Type: n.Ty}, true
		case BinSub:
			return Constant{Kind: ConstFloat, F: xf - yf, Type: n.Ty}, true
		case BinMul:
			return Constant{Kind: ConstFloat, F: xf * yf, Type: n.Ty}, true
		case BinDiv:
			return Constant{Kind: ConstFloat, F: xf / yf, Type: n.Ty}, true
		case BinLt:
			return boolConst(xf < yf, n.Ty), true
		case BinGt:
			return boolConst(xf > yf, n.Ty), true
		case BinLe:
			return boolConst(xf <= yf, n.Ty), true
		case BinGe:
			return boolConst(xf >= yf, n.Ty), true
		case BinEq:
			return boolConst(xf == yf, n.Ty), true
		case BinNe:
			return boolConst(xf != yf, n.Ty), true
		}
		return Constant{}, false
	}
	xi, yi := x.I, y.I
	unsigned := n.X.ExprType() != nil && n.X.ExprType().IsInteger() && n.X.ExprType().Unqualified().IntUnsign
	switch n.Op {
	case BinAdd:
		return Constant{Kind: ConstInt, I: xi + yi, Type: n.Ty}, true
	case BinSub:
		return Constant{Kind: ConstInt, I: xi - yi, Type: n.Ty}, true
	case BinMul:
		return Constant{Kind: ConstInt, I: xi * yi, Type: n.Ty}, true
	case BinDiv:
		if yi == 0 {
			return Constant{}, false
		}
		if unsigned {
			return Constant{Kind: ConstInt, I: int64(uint64(xi) / uint64(yi)), Type: n.Ty}, true
		}
		return Constant{Kind: ConstInt, I: xi / yi, Type: n.Ty}, true
	case BinMod:
		if yi == 0 {
			return Constant{}, false
		}
		if unsigned {
			return Constant{Kind: ConstInt, I: int64(uint64(xi) % uint64(yi)), Type: n.Ty}, true
		}
		return Constant{Kind: ConstInt, I: xi % yi, Type: n.Ty}, true
	case BinAnd:
		return Constant{Kind: ConstInt, I: xi & yi, Type: n.Ty}, true
	case BinOr:
		return Constant{Kind: ConstInt, I: xi | yi, Type: n.Ty}, true
	case BinXor:
		return Constant{Kind: ConstInt, I: xi ^ yi, Type: n.Ty}, true
	case BinShl:
		return Constant{Kind: ConstInt, I: xi << uint64(yi), Type: n.Ty}, true
	case BinShr:
		if unsigned {
			return Constant{Kind: ConstInt, I: int64(uint64(xi) >> uint64(yi)), Type: n.Ty}, true
		}
		return Constant{Kind: ConstInt, I: xi >> uint64(yi), Type: n.Ty}, true
	case BinLt:
		return boolConst(xi < yi, n.Ty), true
	case BinGt:
		return boolConst(xi > yi, n.Ty), true
	case BinLe:
		return boolConst(xi <= yi, n.Ty), true
	case BinGe:
		return boolConst(xi >= yi, n.Ty), true
	case BinEq:
		return boolConst(xi == yi, n.Ty), true
	case BinNe:
		return boolConst(xi != yi, n.Ty), true
	case BinLAnd:
		return boolConst(xi != 0 && yi != 0, n.Ty), true
	case BinLOr:
		return boolConst(xi != 0 || yi != 0, n.Ty), true
	}
	return Constant{}, false
}

func boolConst(b bool, ty *Type) Constant {
	if b {
		return Constant{Kind: ConstInt, I: 1, Type: ty}
	}
	return Constant{Kind: ConstInt, I: 0, Type: ty}
}

func constAsFloat(c Constant) float64 {
	if c.Kind == ConstFloat {
		return c.F
	}
	return float64(c.I)
}

func (ce *ConstEvaluator) castConstant(v Constant, to *Type) Constant {
	if to == nil {
		return v
	}
	u := to.Unqualified()
	if u.IsFloating() {
		return Constant{Kind: ConstFloat, F: constAsFloat(v), Type: to}
	}
	if u.IsInteger() {
		i := v.I
		if v.Kind == ConstFloat {
			i = int64(v.F)
		}
		i = truncateInt(i, SizeOf(u), u.IntUnsign)
		return Constant{Kind: ConstInt, I: i, Type: to}
	}
	return Constant{Kind: v.Kind, I: v.I, F: v.F, Label: v.Label, Offset: v.Offset, Type: to}
}

// truncateInt implements two's-complement wrap to width bytes, matching
// the optimizer's constant-folding overflow policy in spec.md §4.5.
func truncateInt(v int64, width int, unsigned bool) int64 {
	if width >= 8 {
		return v
	}
	bits := uint(width * 8)
	mask := (uint64(1) << bits) - 1
	u := uint64(v) & mask
	if !unsigned && u&(1<<(bits-1)) != 0 {
		u |= ^mask
	}
	return int64(u)
}

func (ce *ConstEvaluator) evalBuiltin(n *BuiltinCallExpr) (Constant, bool) {
	switch n.Name {
	case "__builtin_constant_p":
		if len(n.Args) == 1 {
			if _, ok := ce.Eval(n.Args[0]); ok {
				return Constant{Kind: ConstInt, I: 1, Type: n.Ty}, true
			}
		}
		return Constant{Kind: ConstInt, I: 0, Type: n.Ty}, true
	case "__builtin_types_compatible_p":
		if len(n.TypeArgs) == 2 {
			b := int64(0)
			if TypesCompatible(n.TypeArgs[0], n.TypeArgs[1]) {
				b = 1
			}
			return Constant{Kind: ConstInt, I: b, Type: n.Ty}, true
		}
	case "__builtin_offsetof":
		return Constant{Kind: ConstInt, I: int64(offsetOfField(n.OffsetOf, n.FieldName)), Type: n.Ty}, true
	case "__builtin_choose_expr":
		cond, ok := ce.EvalInt(n.ChooseCond)
		if !ok {
			return Constant{}, false
		}
		if cond != 0 {
			return ce.Eval(n.ChooseA)
		}
		return ce.Eval(n.ChooseB)
	}
	return Constant{}, false
}

// offsetOfField returns the byte offset of the member named field directly
// in struct type t, used by __builtin_offsetof. Nested (dotted) member
// paths are not resolved, and an unknown name yields 0.
func offsetOfField(t *Type, field string) int {
	u := t.Unqualified()
	for _, m := range u.Members {
		if m.Name == field {
			return m.Offset
		}
	}
	return 0
}
