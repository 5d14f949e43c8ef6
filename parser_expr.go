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

// builtinNames is the set of intrinsics spec.md §4.3 recognizes by name.
var builtinNames = map[string]bool{
	"__builtin_expect": true, "__builtin_constant_p": true,
	"__builtin_types_compatible_p": true, "__builtin_choose_expr": true,
	"__builtin_offsetof": true, "__builtin_clz": true, "__builtin_ctz": true,
	"__builtin_popcount": true, "__builtin_abs": true,
	"__builtin_va_start": true, "__builtin_va_arg": true, "__builtin_va_end": true,
}

// parseExpr parses the comma operator: left subexpressions are evaluated
// for side effects only; the result is the rightmost subexpression's
// type and value, per spec.md §4.4.
func (p *Parser) parseExpr() Expr {
	x := p.parseAssignExpr()
	for p.acceptPunct(",") {
		y := p.parseAssignExpr()
		x = &BinaryExpr{base: base{x.Position()}, Op: BinComma, X: x, Y: y}
	}
	return x
}

var assignPuncts = map[string]AssignOp{
	"=": AsgPlain, "+=": AsgAdd, "-=": AsgSub, "*=": AsgMul, "/=": AsgDiv,
	"%=": AsgMod, "&=": AsgAnd, "|=": AsgOr, "^=": AsgXor, "<<=": AsgShl, ">>=": AsgShr,
}

func (p *Parser) parseAssignExpr() Expr {
	x := p.parseConditional()
	if p.cur().Kind == TokPunct {
		if op, ok := assignPuncts[p.cur().Lexeme]; ok {
			pos := p.cur().Pos
			p.advance()
			rhs := p.parseAssignExpr()
			return &AssignExpr{base: base{pos}, Op: op, Lhs: x, Rhs: rhs}
		}
	}
	return x
}

// parseConditional implements `cond ? then : else` and the GNU extension
// with an omitted middle operand (`a ?: b`, evaluated once), per
// spec.md §3/§4.4.
func (p *Parser) parseConditional() Expr {
	cond := p.parseBinary(0)
	if p.acceptPunct("?") {
		pos := cond.Position()
		var then Expr
		if !p.isPunct(":") {
			then = p.parseExpr()
		}
		p.expectPunct(":")
		els := p.parseConditional()
		return &TernaryExpr{base: base{pos}, Cond: cond, Then: then, Else: els}
	}
	return cond
}

type binOpInfo struct {
	op   BinaryOp
	prec int
}

var binOps = map[string]binOpInfo{
	"||": {BinLOr, 1},
	"&&": {BinLAnd, 2},
	"|":  {BinOr, 3},
	"^":  {BinXor, 4},
	"&":  {BinAnd, 5},
	"==": {BinEq, 6}, "!=": {BinNe, 6},
	"<": {BinLt, 7}, ">": {BinGt, 7}, "<=": {BinLe, 7}, ">=": {BinGe, 7},
	"<<": {BinShl, 8}, ">>": {BinShr, 8},
	"+": {BinAdd, 9}, "-": {BinSub, 9},
	"*": {BinMul, 10}, "/": {BinDiv, 10}, "%": {BinMod, 10},
}

// parseBinary implements precedence climbing over the binary operator
// ladder, per spec.md §4.2.
func (p *Parser) parseBinary(minPrec int) Expr {
	lhs := p.parseCast()
	for {
		if p.cur().Kind != TokPunct {
			break
		}
		info, ok := binOps[p.cur().Lexeme]
		if !ok || info.prec < minPrec {
			break
		}
		pos := p.cur().Pos
		p.advance()
		rhs := p.parseBinary(info.prec + 1)
		lhs = &BinaryExpr{base: base{pos}, Op: info.op, X: lhs, Y: rhs}
	}
	return lhs
}

// parseCast handles `(type)expr` casts and compound literals `(type){...}`,
// falling back to unary if what follows `(` isn't a type name.
func (p *Parser) parseCast() Expr {
	if p.isPunct("(") {
		save := p.pos
		pos := p.cur().Pos
		p.advance()
		if ty, ok := p.tryParseAbstractTypeName(); ok && p.isPunct(")") {
			p.advance()
			if p.isPunct("{") {
				lst := p.parseInitList(ty)
				return &CompoundLiteralExpr{base: base{pos}, typed: typed{ty}, List: lst}
			}
			x := p.parseCast()
			return &CastExpr{base: base{pos}, typed: typed{ty}, X: x}
		}
		p.pos = save
	}
	return p.parseUnary()
}

func (p *Parser) parseUnary() Expr {
	pos := p.cur().Pos
	switch {
	case p.acceptPunct("++"):
		return &UnaryExpr{base: base{pos}, Op: UnPreInc, X: p.parseUnary()}
	case p.acceptPunct("--"):
		return &UnaryExpr{base: base{pos}, Op: UnPreDec, X: p.parseUnary()}
	case p.acceptPunct("&"):
		return &UnaryExpr{base: base{pos}, Op: UnAddr, X: p.parseCast()}
	case p.acceptPunct("*"):
		return &UnaryExpr{base: base{pos}, Op: UnDeref, X: p.parseCast()}
	case p.acceptPunct("+"):
		return &UnaryExpr{base: base{pos}, Op: UnPlus, X: p.parseCast()}
	case p.acceptPunct("-"):
		return &UnaryExpr{base: base{pos}, Op: UnNeg, X: p.parseCast()}
	case p.acceptPunct("~"):
		return &UnaryExpr{base: base{pos}, Op: UnBitNot, X: p.parseCast()}
	case p.acceptPunct("!"):
		return &UnaryExpr{base: base{pos}, Op: UnNot, X: p.parseCast()}
	case p.acceptKeyword("sizeof"):
		return p.finishSizeof(pos)
	case p.acceptKeyword("_Alignof"):
		p.expectPunct("(")
		ty, _ := p.tryParseAbstractTypeName()
		p.expectPunct(")")
		return &AlignofExpr{base: base{pos}, OfType: ty}
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) finishSizeof(pos Position) Expr {
	if p.isPunct("(") {
		save := p.pos
		p.advance()
		if ty, ok := p.tryParseAbstractTypeName(); ok && p.isPunct(")") {
			p.advance()
			return &SizeofExpr{base: base{pos}, OfType: ty}
		}
		p.pos = save
	}
	x := p.parseUnary()
	return &SizeofExpr{base: base{pos}, OfExpr: x}
}

func (p *Parser) parsePostfix() Expr {
	x := p.parsePrimary()
	for {
		pos := p.cur().Pos
		switch {
		case p.acceptPunct("["):
			idx := p.parseExpr()
			p.expectPunct("]")
			x = &IndexExpr{base: base{pos}, X: x, Index: idx}
		case p.acceptPunct("("):
			var args []Expr
			for !p.isPunct(")") && !p.atEOF() {
				args = append(args, p.parseAssignExpr())
				if !p.acceptPunct(",") {
					break
				}
			}
			p.expectPunct(")")
			x = &CallExpr{base: base{pos}, Fn: x, Args: args}
		case p.acceptPunct("."):
			name := p.expectIdent().Lexeme
			x = &MemberExpr{base: base{pos}, X: x, Field: name}
		case p.acceptPunct("->"):
			name := p.expectIdent().Lexeme
			x = &MemberExpr{base: base{pos}, X: x, Field: name, Arrow: true}
		case p.acceptPunct("++"):
			x = &UnaryExpr{base: base{pos}, Op: UnPostInc, X: x}
		case p.acceptPunct("--"):
			x = &UnaryExpr{base: base{pos}, Op: UnPostDec, X: x}
		default:
			return x
		}
	}
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur()
	switch tok.Kind {
	case TokIntLit:
		p.advance()
		return &IntLit{base: base{tok.Pos}, Value: tok.IntValue, Suffix: tok.IntSuffix}
	case TokFloatLit:
		p.advance()
		return &FloatLit{base: base{tok.Pos}, Value: tok.FloatValue}
	case TokCharLit:
		p.advance()
		return &CharLit{base: base{tok.Pos}, Value: tok.CharValue}
	case TokStringLit:
		p.advance()
		s := &StringLit{base: base{tok.Pos}, Value: tok.StringValue}
		for p.cur().Kind == TokStringLit { // adjacent string-literal concatenation
			s.Value += p.advance().StringValue
		}
		return s
	case TokIdent:
		p.advance()
		return p.resolveIdent(tok)
	case TokKeyword:
		switch tok.Lexeme {
		case "_Generic":
			return p.parseGeneric(tok.Pos)
		case "__builtin_offsetof":
			return p.parseOffsetof(tok.Pos)
		case "__builtin_choose_expr":
			return p.parseChooseExpr(tok.Pos)
		case "__builtin_va_arg":
			return p.parseVaArg(tok.Pos)
		default:
			if builtinNames[tok.Lexeme] {
				return p.parseBuiltinCall(tok.Pos, tok.Lexeme)
			}
		}
	case TokPunct:
		if tok.Lexeme == "(" {
			p.advance()
			if p.isPunct("{") { // GNU statement expression
				body := p.parseCompoundStmt()
				p.expectPunct(")")
				return &StmtExpr{base: base{tok.Pos}, Body: body}
			}
			x := p.parseExpr()
			p.expectPunct(")")
			return x
		}
	}
	if tok.Kind == TokIdent || (tok.Kind == TokKeyword) {
		// identifier-like token matched a builtin name not in builtinNames
		// (e.g. spelled with leading "__builtin_" but unrecognized); treat
		// as an ordinary identifier reference so later stages can report
		// "undeclared identifier" uniformly.
		p.advance()
		return p.resolveIdent(tok)
	}
	p.errorf("expected expression, found %v", tok)
	p.advance()
	return &IntLit{base: base{tok.Pos}, Value: 0}
}

// resolveIdent looks tok's spelling up against the current scope chain,
// attaching the symbol (and its type) at the point of use; an unresolved
// name is left with a nil Sym for Sema to report.
func (p *Parser) resolveIdent(tok Token) *Ident {
	id := &Ident{base: base{tok.Pos}, Name: tok.Lexeme}
	if sym, ok := p.syms.Lookup(tok.Lexeme); ok {
		id.Sym = sym
		id.Ty = sym.Type
	}
	return id
}

func (p *Parser) parseBuiltinCall(pos Position, name string) Expr {
	p.advance()
	p.expectPunct("(")
	var args []Expr
	for !p.isPunct(")") && !p.atEOF() {
		args = append(args, p.parseAssignExpr())
		if !p.acceptPunct(",") {
			break
		}
	}
	p.expectPunct(")")
	return &BuiltinCallExpr{base: base{pos}, Name: name, Args: args}
}

func (p *Parser) parseOffsetof(pos Position) Expr {
	p.advance()
	p.expectPunct("(")
	ty, _ := p.tryParseAbstractTypeName()
	p.expectPunct(",")
	field := p.expectIdent().Lexeme
	p.expectPunct(")")
	return &BuiltinCallExpr{base: base{pos}, Name: "__builtin_offsetof", OffsetOf: ty, FieldName: field}
}

// parseVaArg parses `__builtin_va_arg(list, type)`, which takes a type
// operand rather than a plain expression, per spec.md §4.3/§9.
func (p *Parser) parseVaArg(pos Position) Expr {
	p.advance()
	p.expectPunct("(")
	list := p.parseAssignExpr()
	p.expectPunct(",")
	ty, _ := p.tryParseAbstractTypeName()
	p.expectPunct(")")
	return &BuiltinCallExpr{base: base{pos}, Name: "__builtin_va_arg", Args: []Expr{list}, OffsetOf: ty}
}

func (p *Parser) parseChooseExpr(pos Position) Expr {
	p.advance()
	p.expectPunct("(")
	cond := p.parseAssignExpr()
	p.expectPunct(",")
	a := p.parseAssignExpr()
	p.expectPunct(",")
	b := p.parseAssignExpr()
	p.expectPunct(")")
	return &BuiltinCallExpr{base: base{pos}, Name: "__builtin_choose_expr", ChooseCond: cond, ChooseA: a, ChooseB: b}
}

// parseGeneric parses `_Generic(expr, type: expr, ..., default: expr)`,
// per spec.md §3/§4.3. Selection happens in the semantic analyzer once
// the controlling expression's type is known; it analyzes every
// association's expression, selected or not.
func (p *Parser) parseGeneric(pos Position) Expr {
	p.advance()
	p.expectPunct("(")
	control := p.parseAssignExpr()
	g := &GenericExpr{base: base{pos}, Control: control}
	for p.acceptPunct(",") {
		var assoc GenericAssoc
		if p.acceptKeyword("default") {
			assoc.IsDef = true
		} else {
			ty, _ := p.tryParseAbstractTypeName()
			assoc.Type = ty
		}
		p.expectPunct(":")
		assoc.Value = p.parseAssignExpr()
		g.Assocs = append(g.Assocs, assoc)
	}
	p.expectPunct(")")
	return g
}
