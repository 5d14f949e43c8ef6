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

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	diags := &Diagnostics{}
	toks := Lex("test.c", []byte(src), diags)
	if diags.HasErrors() {
		t.Fatalf("unexpected lex errors for %q: %v", src, diags.Items())
	}
	return toks
}

func TestLexKeywordVsIdent(t *testing.T) {
	toks := lexAll(t, "int x_ray")
	if toks[0].Kind != TokKeyword || toks[0].Lexeme != "int" {
		t.Fatalf("token 0 = %+v, want keyword int", toks[0])
	}
	if toks[1].Kind != TokIdent || toks[1].Lexeme != "x_ray" {
		t.Fatalf("token 1 = %+v, want identifier x_ray", toks[1])
	}
}

func TestLexIntegerSuffixes(t *testing.T) {
	toks := lexAll(t, "42UL 0x2A 017")
	if toks[0].Kind != TokIntLit || toks[0].IntValue != 42 || !toks[0].IntSuffix.Unsigned || !toks[0].IntSuffix.Long {
		t.Fatalf("42UL parsed as %+v", toks[0])
	}
	if toks[1].IntValue != 0x2A || toks[1].IntRadix != RadixHex {
		t.Fatalf("0x2A parsed as %+v", toks[1])
	}
	if toks[2].IntValue != 017 || toks[2].IntRadix != RadixOctal {
		t.Fatalf("017 parsed as %+v", toks[2])
	}
}

func TestLexLongestPunctuatorMatch(t *testing.T) {
	toks := lexAll(t, "a<<=b")
	if toks[1].Kind != TokPunct || toks[1].Spelling != "<<=" {
		t.Fatalf("expected <<= punctuator, got %+v", toks[1])
	}
}

func TestLexStringAndCharLiterals(t *testing.T) {
	toks := lexAll(t, `"hi\n" 'a'`)
	if toks[0].Kind != TokStringLit || toks[0].StringValue != "hi\n" {
		t.Fatalf("string literal = %+v", toks[0])
	}
	if toks[1].Kind != TokCharLit || toks[1].CharValue != 'a' {
		t.Fatalf("char literal = %+v", toks[1])
	}
}

func TestLexTerminatesWithEOF(t *testing.T) {
	toks := lexAll(t, "x")
	last := toks[len(toks)-1]
	if last.Kind != TokEOF {
		t.Fatalf("last token = %+v, want eof", last)
	}
}
