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

func analyzeSource(t *testing.T, src string) (*TranslationUnit, *Sema, *Diagnostics) {
	t.Helper()
	diags := &Diagnostics{}
	toks := Lex("test.c", []byte(src), diags)
	if diags.HasErrors() {
		t.Fatalf("unexpected lex errors: %v", diags.Items())
	}
	types := NewTypeTable()
	syms := NewSymbolTable()
	p := NewParser(toks, diags, types, syms)
	tu := p.Parse()
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", diags.Items())
	}
	sema := NewSema(types, diags)
	sema.Analyze(tu)
	return tu, sema, diags
}

func TestSemaAcceptsWellTypedFunction(t *testing.T) {
	_, _, diags := analyzeSource(t, `int add(int a, int b){ return a+b; }`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
}

func TestSemaFlagsUndeclaredIdentifier(t *testing.T) {
	_, _, diags := analyzeSource(t, `int main(){ return undeclared_thing; }`)
	if !diags.HasErrors() {
		t.Fatal("expected an undeclared-identifier error")
	}
}

func TestSemaMarksOnlyBadFunctionAsBad(t *testing.T) {
	tu, sema, diags := analyzeSource(t, `
int good(){ return 1; }
int bad(){ return nope; }
`)
	if !diags.HasErrors() {
		t.Fatal("expected bad() to raise an error")
	}
	var good, bad *FuncDecl
	for _, d := range tu.Decls {
		if fd, ok := d.(*FuncDecl); ok {
			switch fd.Name {
			case "good":
				good = fd
			case "bad":
				bad = fd
			}
		}
	}
	if good == nil || bad == nil {
		t.Fatal("did not find both functions")
	}
	if sema.IsBad(good) {
		t.Error("good() incorrectly marked bad")
	}
	if !sema.IsBad(bad) {
		t.Error("bad() not marked bad")
	}
}

func TestSemaGenericSelectionPicksMatchingAssociation(t *testing.T) {
	tu, _, diags := analyzeSource(t, `int main(){ int x=1; return _Generic(x, int: 1, float: 2, default: 3); }`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	items := tu.Decls[0].(*FuncDecl).Body.Items
	gen := items[len(items)-1].(*ReturnStmt).Value.(*GenericExpr)
	if lit, ok := gen.Chosen.(*IntLit); !ok || lit.Value != 1 {
		t.Fatalf("_Generic chose %+v, want the int association's 1", gen.Chosen)
	}
}
