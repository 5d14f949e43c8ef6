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

// Parser is a recursive-descent parser with operator-precedence climbing
// for expressions, per spec.md §4.2. It consumes a pre-lexed token slice
// rather than pulling from the Lexer directly so that typedef-name
// lookahead (fed back from the symbol table as declarations are seen)
// never needs to re-lex.
type Parser struct {
	toks  []Token
	pos   int
	diags *Diagnostics
	types *TypeTable
	syms  *SymbolTable
	ce    *ConstEvaluator

	funcStack         []*funcParseState
	switchStack       []*SwitchStmt
	wasTypedefKeyword bool
}

type funcParseState struct {
	labelNextID int
}

func NewParser(toks []Token, diags *Diagnostics, types *TypeTable, syms *SymbolTable) *Parser {
	return &Parser{toks: toks, diags: diags, types: types, syms: syms, ce: NewConstEvaluator(diags)}
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) atEOF() bool { return p.cur().Kind == TokEOF }

func (p *Parser) peekN(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) isPunct(s string) bool {
	return p.cur().Kind == TokPunct && p.cur().Lexeme == s
}

func (p *Parser) isKeyword(s string) bool {
	return p.cur().Kind == TokKeyword && p.cur().Lexeme == s
}

func (p *Parser) acceptPunct(s string) bool {
	if p.isPunct(s) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) acceptKeyword(s string) bool {
	if p.isKeyword(s) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expectPunct(s string) Token {
	if p.isPunct(s) {
		return p.advance()
	}
	p.errorf("expected %q, found %v", s, p.cur())
	return p.cur()
}

func (p *Parser) expectKeyword(s string) Token {
	if p.isKeyword(s) {
		return p.advance()
	}
	p.errorf("expected %q, found %v", s, p.cur())
	return p.cur()
}

func (p *Parser) expectIdent() Token {
	if p.cur().Kind == TokIdent {
		return p.advance()
	}
	p.errorf("expected identifier, found %v", p.cur())
	return p.cur()
}

func (p *Parser) errorf(format string, args ...any) {
	p.diags.Errorf(p.cur().Pos, format, args...)
}

// recover implements the panic-mode error recovery of spec.md §4.2: skip
// to the next `;` or matching brace, then resume.
func (p *Parser) recover() {
	depth := 0
	for !p.atEOF() {
		if p.isPunct("{") {
			depth++
		}
		if p.isPunct("}") {
			if depth == 0 {
				return
			}
			depth--
			if depth == 0 {
				p.advance()
				return
			}
		}
		if p.isPunct(";") && depth == 0 {
			p.advance()
			return
		}
		p.advance()
	}
}

// Parse consumes the whole token stream and returns the TranslationUnit.
func (p *Parser) Parse() *TranslationUnit {
	tu := &TranslationUnit{}
	for !p.atEOF() {
		before := p.pos
		decls := p.parseExternalDeclaration()
		tu.Decls = append(tu.Decls, decls...)
		if p.pos == before {
			p.errorf("unexpected token %v", p.cur())
			p.advance()
		}
	}
	return tu
}

// ---- Declarations ----

// typeSpec accumulates the type-specifier keywords of a
// declaration-specifiers list before they're resolved to a *Type.
type typeSpec struct {
	void, char, short, int_, long, longlong, float_, double_, bool_, signed_, unsigned_ bool
	constQ, volatileQ, restrictQ                                                        bool
	record                                                                              *Type // struct/union
	enum                                                                                *Type
	typedefT                                                                            *Type
	typeofE                                                                             Expr
	typeofT                                                                             *Type
}

func (p *Parser) parseExternalDeclaration() []Decl {
	pos := p.cur().Pos
	if p.acceptKeyword("_Static_assert") {
		return []Decl{p.finishStaticAssert(pos)}
	}
	if p.isKeyword("asm") || p.isKeyword("__asm") || p.isKeyword("__asm__") {
		p.parseTopLevelAsm()
		return nil
	}
	p.parseAttributeList() // leading attributes before a declaration

	storage, attrs := p.parseStorageAndAttrs()
	ts, ok := p.tryParseTypeSpecifiers()
	if !ok {
		p.errorf("expected declaration, found %v", p.cur())
		p.recover()
		return nil
	}
	baseType := p.resolveTypeSpec(ts, pos)
	p.parseAttributeList()

	if p.acceptPunct(";") {
		return nil // struct/union/enum declared with no declarator
	}

	var decls []Decl
	for {
		name, ty, declAttrs := p.parseDeclarator(baseType)
		allAttrs := mergeAttrs(attrs, declAttrs)

		if ty.Unqualified().Kind == TyFunction && (p.isPunct("{") || storage == StorageExtern && p.isFuncDefAhead()) {
			decls = append(decls, p.finishFunctionDef(pos, name, ty, storage, allAttrs))
			return decls
		}
		if p.wasTypedefKeyword {
			td := &TypedefDecl{base: base{pos}, Name: name, Type: ty}
			p.syms.Declare(&Symbol{Name: name, Type: ty, Kind: SymTypedef, DefPos: pos, Defined: true})
			decls = append(decls, td)
		} else {
			vd := &VarDecl{base: base{pos}, Name: name, Type: ty, Storage: storage, Attrs: allAttrs}
			if p.acceptPunct("=") {
				vd.Init = p.parseInitializer(ty)
			}
			sym := &Symbol{Name: name, Type: ty, Kind: SymVariable, Storage: storage, DefPos: pos, Defined: vd.Init != nil || storage != StorageExtern, Attrs: allAttrs}
			if p.syms.AtFileScope() {
				sym.Linkage = LinkExternal
				if storage == StorageStatic {
					sym.Linkage = LinkInternal
				}
			}
			vd.Sym = sym
			p.syms.Declare(sym)
			decls = append(decls, vd)
		}
		if !p.acceptPunct(",") {
			break
		}
	}
	p.expectPunct(";")
	return decls
}

func (p *Parser) parseStorageAndAttrs() (StorageClass, AttrSet) {
	storage := StorageAuto
	var attrs AttrSet
	p.wasTypedefKeyword = false
	for {
		switch {
		case p.acceptKeyword("typedef"):
			p.wasTypedefKeyword = true
		case p.acceptKeyword("static"):
			storage = StorageStatic
		case p.acceptKeyword("extern"):
			storage = StorageExtern
		case p.acceptKeyword("register"):
			storage = StorageRegister
		case p.acceptKeyword("auto"):
			storage = StorageAuto
		case p.acceptKeyword("inline"), p.acceptKeyword("__inline"), p.acceptKeyword("__inline__"):
			attrs.Add(Attribute{Kind: AttrAlwaysInline})
		case p.acceptKeyword("_Noreturn"):
			attrs.Add(Attribute{Kind: AttrNoreturn})
		default:
			a := p.parseAttributeList()
			for _, x := range a.All() {
				attrs.Add(x)
			}
			return storage, attrs
		}
	}
}

func mergeAttrs(a, b AttrSet) AttrSet {
	var out AttrSet
	for _, x := range a.All() {
		out.Add(x)
	}
	for _, x := range b.All() {
		out.Add(x)
	}
	return out
}

// isFuncDefAhead looks past an already-parsed function declarator for a
// `{` (vs. `;`), used to disambiguate `extern` prototypes from defs.
func (p *Parser) isFuncDefAhead() bool { return p.isPunct("{") }

func (p *Parser) finishStaticAssert(pos Position) Decl {
	p.expectPunct("(")
	cond := p.parseConditional()
	msg := ""
	if p.acceptPunct(",") {
		if p.cur().Kind == TokStringLit {
			msg = p.cur().StringValue
			p.advance()
		}
	}
	p.expectPunct(")")
	p.expectPunct(";")
	v, ok := p.ce.EvalInt(cond)
	if !ok {
		p.diags.Errorf(pos, "_Static_assert expression is not an integer constant expression")
	} else if v == 0 {
		if msg != "" {
			p.diags.Errorf(pos, "static assertion failed: %s", msg)
		} else {
			p.diags.Errorf(pos, "static assertion failed")
		}
	}
	return &StaticAssertDecl{base: base{pos}, Cond: cond, Message: msg}
}

func (p *Parser) parseTopLevelAsm() {
	p.advance()
	p.expectPunct("(")
	depth := 1
	for depth > 0 && !p.atEOF() {
		if p.isPunct("(") {
			depth++
		} else if p.isPunct(")") {
			depth--
			if depth == 0 {
				p.advance()
				break
			}
		}
		p.advance()
	}
	p.acceptPunct(";")
}

// parseAttributeList parses zero or more `__attribute__((...))` groups,
// returning the recognized ones; unknown attribute names are discarded
// with a warning, per spec.md §3/§4.2.
func (p *Parser) parseAttributeList() AttrSet {
	var out AttrSet
	for p.isKeyword("__attribute__") {
		p.advance()
		p.expectPunct("(")
		p.expectPunct("(")
		for {
			if p.isPunct(")") {
				break
			}
			name := ""
			if p.cur().Kind == TokIdent || p.cur().Kind == TokKeyword {
				name = p.advance().Lexeme
			}
			var args []Expr
			if p.acceptPunct("(") {
				for !p.isPunct(")") && !p.atEOF() {
					args = append(args, p.parseAssignExpr())
					if !p.acceptPunct(",") {
						break
					}
				}
				p.expectPunct(")")
			}
			switch name {
			case "always_inline":
				out.Add(Attribute{Kind: AttrAlwaysInline})
			case "noreturn":
				out.Add(Attribute{Kind: AttrNoreturn})
			case "weak":
				out.Add(Attribute{Kind: AttrWeak})
			case "constructor":
				out.Add(Attribute{Kind: AttrConstructor})
			case "destructor":
				out.Add(Attribute{Kind: AttrDestructor})
			case "packed":
				out.Add(Attribute{Kind: AttrPacked})
			case "section":
				sec := ""
				if len(args) == 1 {
					if s, ok := args[0].(*StringLit); ok {
						sec = s.Value
					}
				}
				out.Add(Attribute{Kind: AttrSection, Section: sec})
			case "aligned":
				n := 0
				if len(args) == 1 {
					if v, ok := p.ce.EvalInt(args[0]); ok {
						n = int(v)
					}
				}
				out.Add(Attribute{Kind: AttrAligned, Aligned: n})
			default:
				if name != "" {
					p.diags.Warnf(p.cur().Pos, "unknown attribute %q ignored", name)
				}
			}
			if !p.acceptPunct(",") {
				break
			}
		}
		p.expectPunct(")")
		p.expectPunct(")")
	}
	return out
}

// tryParseTypeSpecifiers accumulates type-specifier keywords/typedef
// names/struct-union-enum specifiers. Returns ok=false if the current
// token cannot start a type.
func (p *Parser) tryParseTypeSpecifiers() (typeSpec, bool) {
	var ts typeSpec
	found := false
	for {
		p.parseAttributeList()
		switch {
		case p.acceptKeyword("const"), p.acceptKeyword("__const"):
			ts.constQ = true
			found = true
		case p.acceptKeyword("volatile"), p.acceptKeyword("__volatile__"):
			ts.volatileQ = true
			found = true
		case p.acceptKeyword("restrict"), p.acceptKeyword("__restrict"), p.acceptKeyword("__restrict__"):
			ts.restrictQ = true
			found = true
		case p.acceptKeyword("void"):
			ts.void = true
			found = true
		case p.acceptKeyword("char"):
			ts.char = true
			found = true
		case p.acceptKeyword("short"):
			ts.short = true
			found = true
		case p.acceptKeyword("int"):
			ts.int_ = true
			found = true
		case p.acceptKeyword("long"):
			if ts.long {
				ts.longlong = true
			}
			ts.long = true
			found = true
		case p.acceptKeyword("float"):
			ts.float_ = true
			found = true
		case p.acceptKeyword("double"):
			ts.double_ = true
			found = true
		case p.acceptKeyword("signed"), p.acceptKeyword("__signed__"):
			ts.signed_ = true
			found = true
		case p.acceptKeyword("unsigned"):
			ts.unsigned_ = true
			found = true
		case p.acceptKeyword("_Bool"):
			ts.bool_ = true
			found = true
		case p.isKeyword("struct") || p.isKeyword("union"):
			ts.record = p.parseStructOrUnionSpecifier()
			found = true
		case p.isKeyword("enum"):
			ts.enum = p.parseEnumSpecifier()
			found = true
		case p.isKeyword("typeof") || p.isKeyword("__typeof__"):
			p.advance()
			p.expectPunct("(")
			if t, ok := p.tryParseAbstractTypeName(); ok {
				ts.typeofT = t
			} else {
				ts.typeofE = p.parseExpr()
			}
			p.expectPunct(")")
			found = true
		case !found && p.cur().Kind == TokIdent && p.syms.IsTypeName(p.cur().Lexeme):
			sym, _ := p.syms.Lookup(p.cur().Lexeme)
			ts.typedefT = sym.Type
			p.advance()
			found = true
			return ts, true // typedef name ends the specifier list immediately
		default:
			return ts, found
		}
	}
}

func (p *Parser) resolveTypeSpec(ts typeSpec, pos Position) *Type {
	var base *Type
	switch {
	case ts.typedefT != nil:
		base = ts.typedefT
	case ts.typeofT != nil:
		base = ts.typeofT
	case ts.typeofE != nil:
		base = ts.typeofE.ExprType()
	case ts.record != nil:
		base = ts.record
	case ts.enum != nil:
		base = ts.enum
	case ts.bool_:
		base = p.types.Bool()
	case ts.void:
		base = p.types.Void()
	case ts.float_:
		base = p.types.FloatT(FloatFloat)
	case ts.double_:
		if ts.long {
			base = p.types.FloatT(FloatLongDouble)
		} else {
			base = p.types.FloatT(FloatDouble)
		}
	case ts.char:
		base = p.types.Int(RankChar, ts.unsigned_)
	case ts.short:
		base = p.types.Int(RankShort, ts.unsigned_)
	case ts.longlong:
		base = p.types.Int(RankLongLong, ts.unsigned_)
	case ts.long:
		base = p.types.Int(RankLong, ts.unsigned_)
	case ts.unsigned_ || ts.signed_ || ts.int_:
		base = p.types.Int(RankInt, ts.unsigned_)
	default:
		p.diags.Errorf(pos, "no type specifier, defaulting to int")
		base = p.types.Int(RankInt, false)
	}
	if ts.constQ || ts.volatileQ || ts.restrictQ {
		base = p.types.Qualify(base, ts.constQ, ts.volatileQ, ts.restrictQ)
	}
	return base
}

func (p *Parser) parseStructOrUnionSpecifier() *Type {
	isUnion := p.isKeyword("union")
	p.advance()
	p.parseAttributeList()
	tag := ""
	if p.cur().Kind == TokIdent {
		tag = p.advance().Lexeme
	}
	if !p.isPunct("{") {
		// reference to a possibly-forward-declared tag
		if tag == "" {
			p.errorf("expected struct/union tag or body")
			return p.types.NewStruct("", isUnion)
		}
		if sym, ok := p.syms.LookupTag(tag); ok {
			return sym.Type
		}
		t := p.types.NewStruct(tag, isUnion)
		sym := &Symbol{Name: tag, Type: t, Kind: SymStructTag, Defined: false}
		if isUnion {
			sym.Kind = SymUnionTag
		}
		p.syms.DeclareTag(sym)
		return t
	}
	var t *Type
	if tag != "" {
		if sym, ok := p.syms.LookupTagCurrent(tag); ok && !sym.Defined {
			t = sym.Type
		}
	}
	if t == nil {
		t = p.types.NewStruct(tag, isUnion)
	}
	p.advance() // {
	for !p.isPunct("}") && !p.atEOF() {
		p.parseStructMember(t)
	}
	p.expectPunct("}")
	attrs := p.parseAttributeList()
	if a, ok := attrs.Find(AttrPacked); ok {
		_ = a
		t.Packed = true
	}
	if a, ok := attrs.Find(AttrAligned); ok {
		structAlignOverride[t] = a.Aligned
	}
	if msg := LayoutStruct(t); msg != "" {
		p.diags.Errorf(p.cur().Pos, "%s", msg)
	}
	if tag != "" {
		sym := &Symbol{Name: tag, Type: t, Kind: SymStructTag, Defined: true}
		if isUnion {
			sym.Kind = SymUnionTag
		}
		p.syms.DeclareTag(sym)
	}
	return t
}

func (p *Parser) parseStructMember(t *Type) {
	if p.acceptKeyword("_Static_assert") {
		p.finishStaticAssert(p.cur().Pos)
		return
	}
	p.parseAttributeList()
	ts, ok := p.tryParseTypeSpecifiers()
	if !ok {
		p.errorf("expected member declaration")
		p.recover()
		return
	}
	base := p.resolveTypeSpec(ts, p.cur().Pos)
	p.parseAttributeList()
	if p.acceptPunct(";") {
		return // anonymous member (e.g. anonymous struct/union) - not materialized
	}
	for {
		name, ty, _ := p.parseDeclaratorOptName(base, true)
		m := Member{Name: name, Type: ty}
		if p.acceptPunct(":") {
			w := p.parseConditional()
			v, ok := p.ce.EvalInt(w)
			if !ok {
				p.errorf("bit-field width is not an integer constant expression")
			} else {
				m.IsBitField = true
				m.BitWidth = int(v)
				if m.BitWidth > SizeOf(ty)*8 {
					p.diags.Errorf(p.cur().Pos, "bit-field %q width exceeds its type", name)
				}
			}
		}
		t.Members = append(t.Members, m)
		if !p.acceptPunct(",") {
			break
		}
	}
	p.expectPunct(";")
}

func (p *Parser) parseEnumSpecifier() *Type {
	p.advance()
	p.parseAttributeList()
	tag := ""
	if p.cur().Kind == TokIdent {
		tag = p.advance().Lexeme
	}
	if !p.isPunct("{") {
		if sym, ok := p.syms.LookupTag(tag); ok {
			return sym.Type
		}
		t := p.types.NewEnum(tag)
		p.syms.DeclareTag(&Symbol{Name: tag, Type: t, Kind: SymEnumTag})
		return t
	}
	t := p.types.NewEnum(tag)
	t.Underlying = p.types.Int(RankInt, false)
	p.advance()
	var names []string
	var exprs []Expr
	for !p.isPunct("}") && !p.atEOF() {
		name := p.expectIdent().Lexeme
		var val Expr
		if p.acceptPunct("=") {
			val = p.parseConditional()
		}
		names = append(names, name)
		exprs = append(exprs, val)
		if !p.acceptPunct(",") {
			break
		}
	}
	p.expectPunct("}")
	consts := make([]EnumConst, len(names))
	for i, n := range names {
		consts[i].Name = n
	}
	AssignEnumValues(consts, exprs, p.ce, p.diags)
	t.EnumConsts = consts
	t.Complete = true
	for _, c := range consts {
		p.syms.Declare(&Symbol{Name: c.Name, Type: t, Kind: SymEnumConst, EnumValue: c.Value, Defined: true})
	}
	if tag != "" {
		p.syms.DeclareTag(&Symbol{Name: tag, Type: t, Kind: SymEnumTag, Defined: true})
	}
	return t
}

// parseDeclarator parses a full init-declarator's declarator part
// (pointers, direct-declarator recursion for arrays/functions, including
// function-pointer syntax `int (*op)(int,int)`), returning the declared
// name and its full type built outward from base.
func (p *Parser) parseDeclarator(base *Type) (string, *Type, AttrSet) {
	return p.parseDeclaratorOptName(base, false)
}

func (p *Parser) parseDeclaratorOptName(base *Type, optional bool) (string, *Type, AttrSet) {
	ty := base
	for p.acceptPunct("*") {
		ty = p.types.Pointer(ty)
		for {
			if p.acceptKeyword("const") {
				ty = p.types.Qualify(ty, true, false, false)
			} else if p.acceptKeyword("volatile") {
				ty = p.types.Qualify(ty, false, true, false)
			} else if p.acceptKeyword("restrict") || p.acceptKeyword("__restrict") {
				ty = p.types.Qualify(ty, false, false, true)
			} else {
				break
			}
		}
	}
	name, buildOuter := p.parseDirectDeclarator(optional)
	attrs := p.parseAttributeList()
	ty = buildOuter(ty)
	return name, ty, attrs
}

// parseDirectDeclarator handles the direct-declarator grammar, returning
// the declared identifier (if any) and a function that, given the
// innermost base type, builds the full declared type outward. This
// mirrors how C's declarator syntax reads "inside out".
func (p *Parser) parseDirectDeclarator(optional bool) (string, func(*Type) *Type) {
	var name string
	var inner func(*Type) *Type = func(t *Type) *Type { return t }

	if p.acceptPunct("(") {
		// either a parenthesized declarator or a parameter list for an
		// abstract function declarator; disambiguate by whether what
		// follows looks like a declarator.
		savedPos := p.pos
		if p.looksLikeDeclaratorStart() {
			n, innerFn, attrs := p.parseDeclaratorRec()
			_ = attrs
			p.expectPunct(")")
			name = n
			inner = innerFn
		} else {
			p.pos = savedPos
		}
	} else if p.cur().Kind == TokIdent {
		name = p.advance().Lexeme
	} else if !optional {
		p.errorf("expected identifier or '(' in declarator, found %v", p.cur())
	}

	return name, p.parseDeclaratorSuffixes(inner)
}

// parseDeclaratorRec supports the `(*name)` grouping form by recursing
// through parseDeclaratorOptName at the pointer level.
func (p *Parser) parseDeclaratorRec() (string, func(*Type) *Type, AttrSet) {
	var ptrWraps []func(*Type) *Type
	for p.acceptPunct("*") {
		for p.acceptKeyword("const") || p.acceptKeyword("volatile") || p.acceptKeyword("restrict") {
		}
		ptrWraps = append(ptrWraps, func(t *Type) *Type { return p.types.Pointer(t) })
	}
	name, suffixFn := p.parseDirectDeclarator(true)
	fn := func(t *Type) *Type {
		t = suffixFn(t)
		for i := len(ptrWraps) - 1; i >= 0; i-- {
			t = ptrWraps[i](t)
		}
		return t
	}
	return name, fn, AttrSet{}
}

func (p *Parser) looksLikeDeclaratorStart() bool {
	return p.isPunct("*") || p.cur().Kind == TokIdent || p.isPunct("(")
}

// parseDeclaratorSuffixes parses zero or more trailing `[...]` / `(...)`
// suffixes and composes them with inner (applied first, i.e. closest to
// the identifier) around the eventual base type.
func (p *Parser) parseDeclaratorSuffixes(inner func(*Type) *Type) func(*Type) *Type {
	for {
		if p.acceptPunct("[") {
			kind := ArrayInferredExtent
			var n int64
			if !p.isPunct("]") {
				e := p.parseAssignExpr()
				if v, ok := p.ce.EvalInt(e); ok {
					n = v
					kind = ArrayConstExtent
					if n < 0 {
						p.errorf("array size must be non-negative")
					}
				}
			}
			p.expectPunct("]")
			prevInner := inner
			inner = func(t *Type) *Type {
				elem := prevInner(t)
				return p.types.ArrayOf(elem, n, kind)
			}
			continue
		}
		if p.acceptPunct("(") {
			params, names, variadic := p.parseParamList()
			p.expectPunct(")")
			prevInner := inner
			inner = func(t *Type) *Type {
				ret := prevInner(t)
				ft := p.types.Function(ret, params, variadic)
				ft.ParamNames = names
				return ft
			}
			continue
		}
		break
	}
	return inner
}

// parseParamList parses a parenthesized parameter-type-list (the opening
// paren has already been consumed by the caller): zero or more
// `type declarator` entries, comma-separated, optionally ending in `...`.
func (p *Parser) parseParamList() ([]*Type, []string, bool) {
	var types []*Type
	var names []string
	if p.isKeyword("void") && p.peekN(1).Kind == TokPunct && p.peekN(1).Lexeme == ")" {
		p.advance()
		return nil, nil, false
	}
	if p.isPunct(")") {
		return nil, nil, false
	}
	for {
		if p.acceptPunct("...") {
			return types, names, true
		}
		p.parseAttributeList()
		ts, ok := p.tryParseTypeSpecifiers()
		if !ok {
			p.errorf("expected parameter type, found %v", p.cur())
			break
		}
		base := p.resolveTypeSpec(ts, p.cur().Pos)
		name, ty, _ := p.parseDeclaratorOptName(base, true)
		// array/function parameters decay to pointer per the usual rules.
		if u := ty.Unqualified(); u.Kind == TyArray {
			ty = p.types.Pointer(u.Elem)
		} else if u.Kind == TyFunction {
			ty = p.types.Pointer(u)
		}
		types = append(types, ty)
		names = append(names, name)
		if !p.acceptPunct(",") {
			break
		}
	}
	return types, names, false
}

// tryParseAbstractTypeName parses a type-name (used by sizeof, casts,
// compound literals, _Generic associations) with no declared identifier.
func (p *Parser) tryParseAbstractTypeName() (*Type, bool) {
	save := p.pos
	p.parseAttributeList()
	ts, ok := p.tryParseTypeSpecifiers()
	if !ok {
		p.pos = save
		return nil, false
	}
	base := p.resolveTypeSpec(ts, p.cur().Pos)
	_, ty, _ := p.parseDeclaratorOptName(base, true)
	return ty, true
}
