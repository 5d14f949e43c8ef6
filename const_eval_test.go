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

// parseOnly lexes and parses src, returning whatever diagnostics the
// parser itself raised (const-folding for array extents, _Static_assert,
// and enum values all happen during parsing per spec.md §4.3).
func parseOnly(t *testing.T, src string) *Diagnostics {
	t.Helper()
	diags := &Diagnostics{}
	toks := Lex("test.c", []byte(src), diags)
	if diags.HasErrors() {
		t.Fatalf("unexpected lex errors: %v", diags.Items())
	}
	p := NewParser(toks, diags, NewTypeTable(), NewSymbolTable())
	p.Parse()
	return diags
}

func TestConstEvalStaticAssertPasses(t *testing.T) {
	diags := parseOnly(t, `_Static_assert(1+1 == 2, "math works");`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
}

func TestConstEvalStaticAssertFails(t *testing.T) {
	diags := parseOnly(t, `_Static_assert(1 == 2, "never");`)
	if !diags.HasErrors() {
		t.Fatal("expected a static assertion failure diagnostic")
	}
}

func TestConstEvalArrayExtent(t *testing.T) {
	diags := parseOnly(t, `int arr[2*3+1];`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
}

func TestConstEvalEnumAutoIncrement(t *testing.T) {
	diags := parseOnly(t, `enum Color { RED, GREEN = 5, BLUE };`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
}

func TestConstEvalBitwiseFolding(t *testing.T) {
	diags := parseOnly(t, `_Static_assert((1<<4 | 1) == 17, "bit math");`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
}
