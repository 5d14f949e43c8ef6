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

// parseCompoundStmt parses `{ ... }`, pushing/popping a scope per
// spec.md §4.3.
func (p *Parser) parseCompoundStmt() *CompoundStmt {
	pos := p.cur().Pos
	p.expectPunct("{")
	p.syms.Push()
	defer p.syms.Pop()
	cs := &CompoundStmt{base: base{pos}}
	for !p.isPunct("}") && !p.atEOF() {
		before := p.pos
		if p.startsDeclaration() {
			cs.Items = append(cs.Items, declsToNodes(p.parseExternalDeclaration())...)
		} else {
			cs.Items = append(cs.Items, p.parseStatement())
		}
		if p.pos == before {
			p.errorf("unexpected token %v in compound statement", p.cur())
			p.advance()
		}
	}
	p.expectPunct("}")
	return cs
}

func declsToNodes(ds []Decl) []Node {
	out := make([]Node, len(ds))
	for i, d := range ds {
		out[i] = d
	}
	return out
}

// startsDeclaration looks ahead for a storage-class keyword, a type
// keyword, or a known typedef name, per the typedef-name disambiguation
// rule of spec.md §4.2.
func (p *Parser) startsDeclaration() bool {
	switch p.cur().Kind {
	case TokKeyword:
		switch p.cur().Lexeme {
		case "typedef", "static", "extern", "register", "auto", "inline",
			"void", "char", "short", "int", "long", "float", "double",
			"signed", "unsigned", "_Bool", "struct", "union", "enum",
			"const", "volatile", "restrict", "typeof", "__typeof__",
			"_Static_assert", "_Noreturn", "__attribute__", "__inline", "__inline__",
			"__const", "__volatile__", "__restrict", "__restrict__", "__signed__":
			return true
		}
		return false
	case TokIdent:
		return p.syms.IsTypeName(p.cur().Lexeme)
	default:
		return false
	}
}

func (p *Parser) parseStatement() Stmt {
	pos := p.cur().Pos
	switch {
	case p.isPunct("{"):
		return p.parseCompoundStmt()
	case p.isPunct(";"):
		p.advance()
		return &NullStmt{base{pos}}
	case p.acceptKeyword("if"):
		return p.finishIf(pos)
	case p.acceptKeyword("switch"):
		return p.finishSwitch(pos)
	case p.acceptKeyword("while"):
		return p.finishWhile(pos)
	case p.acceptKeyword("do"):
		return p.finishDoWhile(pos)
	case p.acceptKeyword("for"):
		return p.finishFor(pos)
	case p.acceptKeyword("break"):
		p.expectPunct(";")
		return &BreakStmt{base{pos}}
	case p.acceptKeyword("continue"):
		p.expectPunct(";")
		return &ContinueStmt{base{pos}}
	case p.acceptKeyword("return"):
		var v Expr
		if !p.isPunct(";") {
			v = p.parseExpr()
		}
		p.expectPunct(";")
		return &ReturnStmt{base: base{pos}, Value: v}
	case p.acceptKeyword("goto"):
		name := p.expectIdent().Lexeme
		p.expectPunct(";")
		return &GotoStmt{base: base{pos}, Label: name}
	case p.isKeyword("case"):
		return p.finishCase(pos)
	case p.isKeyword("default"):
		return p.finishDefault(pos)
	case p.isKeyword("asm") || p.isKeyword("__asm") || p.isKeyword("__asm__"):
		return p.parseAsmStmt(pos)
	case p.cur().Kind == TokIdent && p.peekN(1).Kind == TokPunct && p.peekN(1).Lexeme == ":":
		name := p.advance().Lexeme
		p.advance() // ':'
		inner := p.parseStatement()
		return &LabeledStmt{base: base{pos}, Label: name, Stmt: inner}
	default:
		x := p.parseExpr()
		p.expectPunct(";")
		return &ExprStmt{base: base{pos}, X: x}
	}
}

func (p *Parser) finishIf(pos Position) Stmt {
	p.expectPunct("(")
	cond := p.parseExpr()
	p.expectPunct(")")
	then := p.parseStatement()
	var els Stmt
	if p.acceptKeyword("else") {
		els = p.parseStatement()
	}
	return &IfStmt{base: base{pos}, Cond: cond, Then: then, Else: els}
}

func (p *Parser) finishSwitch(pos Position) Stmt {
	p.expectPunct("(")
	tag := p.parseExpr()
	p.expectPunct(")")
	sw := &SwitchStmt{base: base{pos}, Tag: tag}
	p.switchStack = append(p.switchStack, sw)
	sw.Body = p.parseStatement()
	p.switchStack = p.switchStack[:len(p.switchStack)-1]
	return sw
}

func (p *Parser) finishWhile(pos Position) Stmt {
	p.expectPunct("(")
	cond := p.parseExpr()
	p.expectPunct(")")
	body := p.parseStatement()
	return &WhileStmt{base: base{pos}, Cond: cond, Body: body}
}

func (p *Parser) finishDoWhile(pos Position) Stmt {
	body := p.parseStatement()
	p.expectKeyword("while")
	p.expectPunct("(")
	cond := p.parseExpr()
	p.expectPunct(")")
	p.expectPunct(";")
	return &DoWhileStmt{base: base{pos}, Body: body, Cond: cond}
}

func (p *Parser) finishFor(pos Position) Stmt {
	p.expectPunct("(")
	var init Node
	if p.isPunct(";") {
		p.advance()
	} else if p.startsDeclaration() {
		ds := p.parseExternalDeclaration()
		if len(ds) > 0 {
			init = ds[0]
		}
	} else {
		x := p.parseExpr()
		p.expectPunct(";")
		init = &ExprStmt{base: base{pos}, X: x}
	}
	var cond Expr
	if !p.isPunct(";") {
		cond = p.parseExpr()
	}
	p.expectPunct(";")
	var step Expr
	if !p.isPunct(")") {
		step = p.parseExpr()
	}
	p.expectPunct(")")
	body := p.parseStatement()
	return &ForStmt{base: base{pos}, Init: init, Cond: cond, Step: step, Body: body}
}

func (p *Parser) finishCase(pos Position) Stmt {
	p.advance()
	e := p.parseConditional()
	p.expectPunct(":")
	v, ok := p.ce.EvalInt(e)
	if !ok {
		p.diags.Errorf(pos, "case label does not reduce to an integer constant")
	}
	label := &CaseLabel{base: base{pos}, Value: v}
	p.registerCaseLabel(label)
	inner := p.parseStatement()
	return &CaseStmt{base: base{pos}, Label: label, Stmt: inner}
}

func (p *Parser) finishDefault(pos Position) Stmt {
	p.advance()
	p.expectPunct(":")
	label := &CaseLabel{base: base{pos}, IsDef: true}
	p.registerCaseLabel(label)
	inner := p.parseStatement()
	return &CaseStmt{base: base{pos}, Label: label, Stmt: inner}
}

func (p *Parser) registerCaseLabel(label *CaseLabel) {
	if len(p.switchStack) == 0 {
		p.diags.Errorf(label.Pos, "case/default label not within a switch statement")
		return
	}
	sw := p.switchStack[len(p.switchStack)-1]
	for _, c := range sw.Cases {
		if !c.IsDef && !label.IsDef && c.Value == label.Value {
			p.diags.Errorf(label.Pos, "duplicate case value %d", label.Value)
		}
		if c.IsDef && label.IsDef {
			p.diags.Errorf(label.Pos, "multiple default labels in one switch")
		}
	}
	label.LabelID = len(sw.Cases)
	sw.Cases = append(sw.Cases, label)
}

// parseAsmStmt parses a GNU inline-assembly statement: the body and
// operand constraint lists are captured, per spec.md §4.2. No constraint
// is interpreted later: the IR builder evaluates only the operand
// expressions, and the asm body itself is not lowered.
func (p *Parser) parseAsmStmt(pos Position) Stmt {
	p.advance()
	p.acceptKeyword("volatile")
	p.acceptKeyword("__volatile__")
	p.expectPunct("(")
	var body string
	if p.cur().Kind == TokStringLit {
		body = p.advance().StringValue
	}
	stmt := &AsmStmt{base: base{pos}, Body: body}
	for i := 0; i < 2 && p.isPunct(":"); i++ {
		p.advance()
		for !p.isPunct(":") && !p.isPunct(")") && !p.atEOF() {
			constraint := ""
			if p.cur().Kind == TokStringLit {
				constraint = p.advance().StringValue
			}
			p.expectPunct("(")
			e := p.parseExpr()
			p.expectPunct(")")
			op := AsmOperand{Constraint: constraint, Expr: e}
			if i == 0 {
				stmt.Outputs = append(stmt.Outputs, op)
			} else {
				stmt.Inputs = append(stmt.Inputs, op)
			}
			if !p.acceptPunct(",") {
				break
			}
		}
	}
	if p.isPunct(":") {
		p.advance()
		for !p.isPunct(")") && !p.atEOF() {
			if p.cur().Kind == TokStringLit {
				stmt.Clobber = append(stmt.Clobber, p.advance().StringValue)
			}
			if !p.acceptPunct(",") {
				break
			}
		}
	}
	p.expectPunct(")")
	p.expectPunct(";")
	return stmt
}
