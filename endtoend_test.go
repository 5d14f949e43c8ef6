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

// compileSource runs every stage except preprocessing directly over src,
// bypassing the external cc/clang collaborator driver.go normally shells
// out to, so these tests don't depend on a preprocessor being installed.
func compileSource(t *testing.T, src string, level OptLevel) (*CompileResult, *Diagnostics) {
	t.Helper()
	diags := &Diagnostics{}
	toks := Lex("test.c", []byte(src), diags)
	if diags.HasErrors() {
		t.Fatalf("lex errors: %v", diags.Items())
	}
	types := NewTypeTable()
	syms := NewSymbolTable()
	p := NewParser(toks, diags, types, syms)
	tu := p.Parse()
	if diags.HasErrors() {
		t.Fatalf("parse errors: %v", diags.Items())
	}
	sema := NewSema(types, diags)
	sema.Analyze(tu)
	if diags.HasErrors() {
		t.Fatalf("sema errors: %v", diags.Items())
	}
	ctx := &Context{Types: types, Syms: syms, Diags: diags}
	res := &CompileResult{}
	for _, d := range tu.Decls {
		fd, ok := d.(*FuncDecl)
		if !ok || fd.Body == nil || sema.IsBad(fd) {
			continue
		}
		fn := BuildFunc(ctx, fd)
		Optimize(fn, level)
		res.Funcs = append(res.Funcs, fn)
	}
	return res, diags
}

func findFunc(res *CompileResult, name string) *Func {
	for _, f := range res.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// onlyReturnConst expects main's single reachable return to fold to a
// constant, per spec.md §8 scenario 1's "a=x*1; b=a+0; ..." algebraic
// chain — after the O1 pipeline nothing should remain but the literal.
func onlyReturnConst(t *testing.T, f *Func) int64 {
	t.Helper()
	for _, b := range f.Blocks {
		term := b.Terminator()
		if term == nil || term.Op != OpRet || !term.HasRet {
			continue
		}
		def := f.FindValue(term.RetVal)
		if def == nil || !def.IsConst {
			t.Fatalf("main's return value did not fold to a constant: %+v", def)
		}
		return def.ConstI
	}
	t.Fatal("main has no returning block")
	return 0
}

func TestScenario1AlgebraicChain(t *testing.T) {
	src := `int main(){ int x=42; int a=x*1; int b=a+0; int c=b|0; int d=c&-1; return d; }`
	res, _ := compileSource(t, src, OptO1)
	main := findFunc(res, "main")
	if main == nil {
		t.Fatal("main not compiled")
	}
	if got := onlyReturnConst(t, main); got != 42 {
		t.Errorf("return value = %d, want 42", got)
	}
}

func TestScenario2RecursiveFib(t *testing.T) {
	src := `int fib(int n){return n<=1?n:fib(n-1)+fib(n-2);} int main(){return fib(20);}`
	res, diags := compileSource(t, src, OptO1)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if findFunc(res, "fib") == nil || findFunc(res, "main") == nil {
		t.Fatal("fib/main not both compiled")
	}
}

func TestScenario3ArraySum(t *testing.T) {
	src := `int main(){ int arr[1000]; int i; for(i=0;i<1000;i++) arr[i]=i; int sum=0; for(i=0;i<1000;i++) sum+=arr[i]; return sum%256; }`
	res, diags := compileSource(t, src, OptO1)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if findFunc(res, "main") == nil {
		t.Fatal("main not compiled")
	}
}

func TestScenario4DesignatedInitStruct(t *testing.T) {
	src := `struct R { int width, height, x, y; };
int main(){ struct R r = {.width=100,.height=50,.x=10,.y=20}; return r.width-100 + r.height-50 + r.x-10 + r.y-20; }`
	res, diags := compileSource(t, src, OptO1)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if findFunc(res, "main") == nil {
		t.Fatal("main not compiled")
	}
}

func TestScenario5FunctionPointer(t *testing.T) {
	src := `int add(int a,int b){return a+b;} int mul(int a,int b){return a*b;}
int main(){ int (*op)(int,int); op=add; int r1=op(10,5); op=mul; int r2=op(3,9); return r1+r2; }`
	res, diags := compileSource(t, src, OptO1)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if findFunc(res, "main") == nil {
		t.Fatal("main not compiled")
	}
}

func TestScenario6BitFields(t *testing.T) {
	src := `struct F { unsigned flag1:1; unsigned flag2:3; unsigned flag3:4; };
int main(){ struct F f; f.flag1=1; f.flag2=2; f.flag3=4; return f.flag1+f.flag2+f.flag3; }`
	res, diags := compileSource(t, src, OptO1)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if findFunc(res, "main") == nil {
		t.Fatal("main not compiled")
	}
}

func TestScenario7StatementExpression(t *testing.T) {
	src := `int main(){ int a = ({ int x=20; int y=22; x+y; }); return a; }`
	res, _ := compileSource(t, src, OptO1)
	main := findFunc(res, "main")
	if main == nil {
		t.Fatal("main not compiled")
	}
	if got := onlyReturnConst(t, main); got != 42 {
		t.Errorf("return value = %d, want 42", got)
	}
}

func TestScenario8GenericSelection(t *testing.T) {
	src := `int main(){ int x = 1; return _Generic(x, int: 20, float: 30, default: 40); }`
	res, _ := compileSource(t, src, OptO1)
	main := findFunc(res, "main")
	if main == nil {
		t.Fatal("main not compiled")
	}
	if got := onlyReturnConst(t, main); got != 20 {
		t.Errorf("return value = %d, want 20", got)
	}
}

func TestOptimizerIdempotent(t *testing.T) {
	src := `int main(){ int x=42; int a=x*1; int b=a+0; return b; }`
	res, _ := compileSource(t, src, OptO0)
	main := findFunc(res, "main")
	if main == nil {
		t.Fatal("main not compiled")
	}
	Optimize(main, OptO1)
	var before []string
	for _, b := range main.Blocks {
		for _, ins := range b.Instrs {
			before = append(before, ins.String())
		}
	}
	Optimize(main, OptO1)
	var after []string
	for _, b := range main.Blocks {
		for _, ins := range b.Instrs {
			after = append(after, ins.String())
		}
	}
	if len(before) != len(after) {
		t.Fatalf("second optimizer pass changed instruction count: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("second optimizer pass changed instruction %d: %q vs %q", i, before[i], after[i])
		}
	}
}
