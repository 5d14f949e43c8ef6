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

// buildOne lexes, parses, analyzes and lowers a single-function source to
// unoptimized IR, per spec.md §5's "IR build runs on semantically clean
// input only" rule.
func buildOne(t *testing.T, src string) *Func {
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
	if diags.HasErrors() {
		t.Fatalf("unexpected sema errors: %v", diags.Items())
	}
	ctx := &Context{Types: types, Syms: syms, Diags: diags}
	for _, d := range tu.Decls {
		if fd, ok := d.(*FuncDecl); ok && fd.Body != nil {
			return BuildFunc(ctx, fd)
		}
	}
	t.Fatal("no function body found")
	return nil
}

func countOps(f *Func, op Op) int {
	n := 0
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			if ins.Op == op {
				n++
			}
		}
	}
	return n
}

func TestBuildFuncEntryBlockExists(t *testing.T) {
	f := buildOne(t, `int main(){ return 0; }`)
	if f.Entry == nil || len(f.Blocks) == 0 {
		t.Fatal("function has no entry block")
	}
	if f.Blocks[0] != f.Entry {
		t.Error("entry block is not Blocks[0]")
	}
}

func TestBuildFuncParamsStoredToAllocas(t *testing.T) {
	f := buildOne(t, `int add(int a, int b){ return a+b; }`)
	if len(f.Params) != 2 {
		t.Fatalf("got %d params, want 2", len(f.Params))
	}
	if countOps(f, OpParam) != 2 {
		t.Errorf("expected 2 OpParam instrs, got %d", countOps(f, OpParam))
	}
	if countOps(f, OpAlloca) < 2 {
		t.Errorf("expected at least 2 allocas for parameter storage, got %d", countOps(f, OpAlloca))
	}
}

func TestBuildFuncIfGeneratesBranch(t *testing.T) {
	f := buildOne(t, `int main(){ int x=1; if(x) x=2; else x=3; return x; }`)
	if len(f.Blocks) < 3 {
		t.Fatalf("expected at least 3 blocks for an if/else, got %d", len(f.Blocks))
	}
	if countOps(f, OpCBr) == 0 {
		t.Error("expected a conditional branch for the if statement")
	}
}

func TestBuildFuncLoopGeneratesBackEdge(t *testing.T) {
	f := buildOne(t, `int main(){ int i; int s=0; for(i=0;i<10;i++) s+=i; return s; }`)
	if countOps(f, OpCBr) == 0 {
		t.Error("expected a conditional branch for the loop condition")
	}
	if countOps(f, OpBr) == 0 {
		t.Error("expected an unconditional back-edge branch")
	}
}

func TestBuildFuncReturnCarriesValue(t *testing.T) {
	f := buildOne(t, `int main(){ return 7; }`)
	found := false
	for _, b := range f.Blocks {
		term := b.Terminator()
		if term != nil && term.Op == OpRet && term.HasRet {
			found = true
		}
	}
	if !found {
		t.Error("no block terminates with a value-carrying return")
	}
}

func buildNamed(t *testing.T, src, name string) *Func {
	t.Helper()
	diags := &Diagnostics{}
	toks := Lex("test.c", []byte(src), diags)
	types := NewTypeTable()
	syms := NewSymbolTable()
	p := NewParser(toks, diags, types, syms)
	tu := p.Parse()
	sema := NewSema(types, diags)
	sema.Analyze(tu)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	ctx := &Context{Types: types, Syms: syms, Diags: diags}
	for _, d := range tu.Decls {
		if fd, ok := d.(*FuncDecl); ok && fd.Body != nil && fd.Name == name {
			return BuildFunc(ctx, fd)
		}
	}
	t.Fatalf("function %q not found", name)
	return nil
}

func TestBuildFuncCallLowersToOpCall(t *testing.T) {
	f := buildNamed(t, `int id(int x){return x;} int main(){ return id(5); }`, "main")
	if countOps(f, OpCall) != 1 {
		t.Errorf("expected 1 OpCall, got %d", countOps(f, OpCall))
	}
}
