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

func parseSource(t *testing.T, src string) (*TranslationUnit, *Diagnostics) {
	t.Helper()
	diags := &Diagnostics{}
	toks := Lex("test.c", []byte(src), diags)
	if diags.HasErrors() {
		t.Fatalf("unexpected lex errors: %v", diags.Items())
	}
	p := NewParser(toks, diags, NewTypeTable(), NewSymbolTable())
	tu := p.Parse()
	return tu, diags
}

func TestParseSimpleFunctionDef(t *testing.T) {
	tu, diags := parseSource(t, `int add(int a, int b){ return a+b; }`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if len(tu.Decls) != 1 {
		t.Fatalf("got %d top-level decls, want 1", len(tu.Decls))
	}
	fd, ok := tu.Decls[0].(*FuncDecl)
	if !ok {
		t.Fatalf("decl is %T, want *FuncDecl", tu.Decls[0])
	}
	if fd.Name != "add" || len(fd.ParamSyms) != 2 {
		t.Fatalf("add() parsed as %+v", fd)
	}
}

func TestParseResolvesParameterReferences(t *testing.T) {
	tu, diags := parseSource(t, `int add(int a, int b){ return a+b; }`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	fd := tu.Decls[0].(*FuncDecl)
	ret := fd.Body.Items[0].(*ReturnStmt)
	bin := ret.Value.(*BinaryExpr)
	lhs, ok := bin.X.(*Ident)
	if !ok || lhs.Sym == nil {
		t.Fatalf("left operand %+v did not resolve to a symbol", bin.X)
	}
	if lhs.Sym != fd.ParamSyms[0] {
		t.Errorf("left operand resolved to the wrong symbol")
	}
	rhs, ok := bin.Y.(*Ident)
	if !ok || rhs.Sym != fd.ParamSyms[1] {
		t.Fatalf("right operand did not resolve to the second parameter")
	}
}

func TestParseRecursiveCallResolvesSelf(t *testing.T) {
	tu, diags := parseSource(t, `int fib(int n){ return n<=1?n:fib(n-1)+fib(n-2); }`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	fd := tu.Decls[0].(*FuncDecl)
	ret := fd.Body.Items[0].(*ReturnStmt)
	tern := ret.Value.(*TernaryExpr)
	sum := tern.Else.(*BinaryExpr)
	call := sum.X.(*CallExpr)
	callee, ok := call.Fn.(*Ident)
	if !ok || callee.Sym == nil || callee.Sym.Name != "fib" {
		t.Fatalf("recursive call's callee did not resolve: %+v", call.Fn)
	}
}

func TestParseStructDeclaration(t *testing.T) {
	tu, diags := parseSource(t, `struct Point { int x; int y; };`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if len(tu.Decls) == 0 {
		t.Fatal("expected at least one decl")
	}
}

func TestParseReportsSyntaxError(t *testing.T) {
	_, diags := parseSource(t, `int main() { return ; }`)
	// A bare `return;` with a declared int return type is syntactically
	// fine (C allows it even if semantically questionable), so assert the
	// parser instead rejects a genuinely malformed declarator.
	_ = diags
	_, diags2 := parseSource(t, `int main( { return 0; }`)
	if !diags2.HasErrors() {
		t.Fatal("expected a syntax error for an unbalanced parameter list")
	}
}
