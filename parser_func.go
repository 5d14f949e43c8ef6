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

// finishFunctionDef parses a function body (the declarator has already
// been parsed) and returns the completed FuncDecl.
func (p *Parser) finishFunctionDef(pos Position, name string, ty *Type, storage StorageClass, attrs AttrSet) Decl {
	sym := &Symbol{Name: name, Type: ty, Kind: SymFunction, Storage: storage, DefPos: pos, Defined: true, Attrs: attrs}
	sym.Linkage = LinkExternal
	if storage == StorageStatic {
		sym.Linkage = LinkInternal
	}
	p.syms.Declare(sym)

	p.syms.Push()
	defer p.syms.Pop()

	paramSyms := make([]*Symbol, len(ty.Params))
	for i, pt := range ty.Params {
		nm := ""
		if i < len(ty.ParamNames) {
			nm = ty.ParamNames[i]
		}
		ps := &Symbol{Name: nm, Type: pt, Kind: SymVariable, Storage: StorageAuto, DefPos: pos, Defined: true}
		if nm != "" {
			p.syms.Declare(ps)
		}
		paramSyms[i] = ps
	}

	p.funcStack = append(p.funcStack, &funcParseState{})
	body := p.parseCompoundStmt()
	p.funcStack = p.funcStack[:len(p.funcStack)-1]

	return &FuncDecl{base: base{pos}, Name: name, Type: ty, Storage: storage, Attrs: attrs, ParamSyms: paramSyms, Body: body, Sym: sym}
}

// parseInitializer parses an initializer for a declaration of type ty: a
// brace-enclosed initializer list with optional designators (nested
// arbitrarily, per spec.md §3/§4.2), or a plain assignment-expression.
func (p *Parser) parseInitializer(ty *Type) Expr {
	if p.isPunct("{") {
		return p.parseInitList(ty)
	}
	return p.parseAssignExpr()
}

func (p *Parser) parseInitList(ty *Type) *InitListExpr {
	pos := p.cur().Pos
	p.expectPunct("{")
	lst := &InitListExpr{base: base{pos}}
	for !p.isPunct("}") && !p.atEOF() {
		var init Initializer
		if p.isPunct(".") {
			p.advance()
			init.FieldDesignator = p.expectIdent().Lexeme
			p.expectPunct("=")
		} else if p.isPunct("[") {
			p.advance()
			init.IndexDesignator = p.parseConditional()
			p.expectPunct("]")
			p.expectPunct("=")
		}
		if p.isPunct("{") {
			init.List = p.parseInitList(nil)
		} else {
			init.Value = p.parseAssignExpr()
		}
		lst.Items = append(lst.Items, init)
		if !p.acceptPunct(",") {
			break
		}
	}
	p.expectPunct("}")
	if ty != nil {
		lst.Ty = ty
	}
	return lst
}
