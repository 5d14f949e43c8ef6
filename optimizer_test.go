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

func countInstrs(f *Func) int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}
	return n
}

func TestOptimizerO0IsNoop(t *testing.T) {
	f := buildOne(t, `int main(){ int a=1*1; int b=a+0; return b; }`)
	before := countInstrs(f)
	Optimize(f, OptO0)
	if countInstrs(f) != before {
		t.Errorf("OptO0 changed instruction count: %d -> %d", before, countInstrs(f))
	}
}

func TestOptimizerConstantFoldsArithmeticChain(t *testing.T) {
	f := buildOne(t, `int main(){ int x=42; int a=x*1; int b=a+0; int c=b|0; int d=c&-1; return d; }`)
	Optimize(f, OptO1)
	got := onlyReturnConst(t, f)
	if got != 42 {
		t.Errorf("folded return value = %d, want 42", got)
	}
}

func TestOptimizerDeadCodeEliminatesUnusedAlloca(t *testing.T) {
	f := buildOne(t, `int main(){ int unused=5; return 1; }`)
	Optimize(f, OptO1)
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			if ins.Op == OpAlloca {
				t.Errorf("unused alloca survived DCE: %+v", ins)
			}
		}
	}
}

func TestOptimizerCommonSubexpressionElimination(t *testing.T) {
	f := buildNamed(t, `int add(int a,int b){return a+b;} int main(){ int p=1,q=2; int r1=add(p,q); int r2=add(p,q); return r1+r2; }`, "main")
	before := countOps(f, OpCall)
	Optimize(f, OptO1)
	// calls are never CSE'd (they may have side effects), so both survive;
	// this pins that the optimizer doesn't incorrectly collapse them.
	if countOps(f, OpCall) != before {
		t.Errorf("optimizer changed call count from %d to %d", before, countOps(f, OpCall))
	}
}
