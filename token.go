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

import "fmt"

// TokenKind tags the lexical class of a Token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokKeyword
	TokIntLit
	TokFloatLit
	TokCharLit
	TokStringLit
	TokPunct
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "eof"
	case TokIdent:
		return "identifier"
	case TokKeyword:
		return "keyword"
	case TokIntLit:
		return "integer-literal"
	case TokFloatLit:
		return "floating-literal"
	case TokCharLit:
		return "character-literal"
	case TokStringLit:
		return "string-literal"
	case TokPunct:
		return "punctuator"
	default:
		return "unknown"
	}
}

// IntSuffix carries the U/L/LL flags parsed off an integer literal.
type IntSuffix struct {
	Unsigned bool
	Long     bool
	LongLong bool
}

// Radix is the base an integer literal was written in.
type Radix int

const (
	RadixDecimal Radix = iota
	RadixOctal
	RadixHex
)

// Position is a single point in a translation unit's source text.
type Position struct {
	File   string
	Line   int
	Col    int
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Token is the lexer's unit of output: a tagged record carrying the raw
// lexeme plus whichever of the kind-specific fields apply.
type Token struct {
	Kind   TokenKind
	Lexeme string
	Pos    Position

	// TokIntLit
	IntValue  uint64
	IntSuffix IntSuffix
	IntRadix  Radix

	// TokFloatLit
	FloatValue  float64
	FloatIsLong bool
	FloatIsF32  bool

	// TokCharLit
	CharValue int64

	// TokStringLit
	StringValue string

	// Keyword/punctuator canonical spelling, e.g. "int", "->", "<<=".
	Spelling string
}

func (t Token) String() string {
	if t.Kind == TokEOF {
		return "<eof>"
	}
	return fmt.Sprintf("%s(%q)", t.Kind, t.Lexeme)
}

// keywords is the reserved-word table, including the GNU/C11 extensions
// named in spec.md §4.1.
var keywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true,
	"else": true, "enum": true, "extern": true, "float": true, "for": true,
	"goto": true, "if": true, "inline": true, "int": true, "long": true,
	"register": true, "restrict": true, "return": true, "short": true,
	"signed": true, "sizeof": true, "static": true, "struct": true,
	"switch": true, "typedef": true, "union": true, "unsigned": true,
	"void": true, "volatile": true, "while": true,
	"_Bool": true, "_Alignof": true, "_Alignas": true, "_Static_assert": true,
	"_Generic": true, "_Noreturn": true, "_Complex": true,
	"typeof": true, "__typeof__": true, "__attribute__": true,
	"__asm": true, "asm": true, "__asm__": true,
	"__inline": true, "__inline__": true, "__const": true, "__volatile__": true,
	"__restrict": true, "__restrict__": true, "__signed__": true,
}

// punctuators is ordered longest-first so the lexer's greedy match picks
// the longest valid punctuator at each position.
var punctuators = []string{
	"...", "<<=", ">>=",
	"->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"*=", "/=", "%=", "+=", "-=", "&=", "^=", "|=", "::",
	"(", ")", "{", "}", "[", "]", ";", ":", "?", ".", ",",
	"&", "*", "+", "-", "~", "!", "/", "%", "<", ">", "=", "^", "|",
}
