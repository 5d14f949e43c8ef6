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

import "github.com/samber/lo"

// StorageClass is a declaration's parsed storage-class specifier.
type StorageClass int

const (
	StorageAuto StorageClass = iota
	StorageStatic
	StorageExtern
	StorageRegister // parsed and ignored semantically, per spec.md §3
)

// Linkage is a symbol's linkage class.
type Linkage int

const (
	LinkNone Linkage = iota
	LinkInternal
	LinkExternal
)

// AttrKind enumerates the small bag of attributes spec.md §3 names.
type AttrKind int

const (
	AttrAlwaysInline AttrKind = iota
	AttrNoreturn
	AttrWeak
	AttrConstructor
	AttrDestructor
	AttrSection
	AttrPacked
	AttrAligned
)

// Attribute is one parsed `__attribute__` entry; Section carries the
// section name, Aligned carries the alignment value.
type Attribute struct {
	Kind    AttrKind
	Section string
	Aligned int
}

// AttrSet is the bag described in spec.md §3: unknown attributes parse and
// are discarded with a warning, so AttrSet only ever holds recognized ones.
type AttrSet struct {
	attrs []Attribute
}

func (s *AttrSet) Add(a Attribute) { s.attrs = append(s.attrs, a) }

func (s *AttrSet) Has(k AttrKind) bool {
	return lo.ContainsBy(s.attrs, func(a Attribute) bool { return a.Kind == k })
}

func (s *AttrSet) Find(k AttrKind) (Attribute, bool) {
	return lo.Find(s.attrs, func(a Attribute) bool { return a.Kind == k })
}

func (s *AttrSet) All() []Attribute { return s.attrs }

// SymKind distinguishes the declaration flavors a Symbol can name.
type SymKind int

const (
	SymVariable SymKind = iota
	SymFunction
	SymTypedef
	SymEnumConst
	SymStructTag
	SymUnionTag
	SymEnumTag
)

// AddrKind tags how a Symbol's address has been assigned.
type AddrKind int

const (
	AddrUnassigned AddrKind = iota
	AddrStack                // local: StackOffset from frame base
	AddrGlobal                // global: Section + Label
	AddrRegister              // after allocation: Reg
)

// Symbol is one named entity, per spec.md §3.
type Symbol struct {
	Name     string
	Type     *Type
	Kind     SymKind
	Storage  StorageClass
	Linkage  Linkage
	DefPos   Position
	Defined  bool
	Attrs    AttrSet

	AddrKind    AddrKind
	StackOffset int
	Section     string
	Label       string
	Reg         int

	// EnumValue is populated when Kind == SymEnumConst.
	EnumValue int64

	// ConstInit is the folded initializer of a non-automatic object, set
	// by Sema and read by const_eval.go; the back end does not use it.
	ConstInit Constant
	HasInit   bool
}

// Scope is one lexical level of name resolution: pushed/popped around
// compound statements, function bodies, and struct/union/enum
// declarations, per spec.md §4.3.
type Scope struct {
	parent  *Scope
	symbols map[string]*Symbol
	tags    map[string]*Symbol // struct/union/enum tags live in their own namespace
}

func newScope(parent *Scope) *Scope {
	return &Scope{parent: parent, symbols: map[string]*Symbol{}, tags: map[string]*Symbol{}}
}

// SymbolTable is the per-translation-unit stack of scopes.
type SymbolTable struct {
	top *Scope
}

func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{}
	st.top = newScope(nil)
	return st
}

func (st *SymbolTable) Push() { st.top = newScope(st.top) }
func (st *SymbolTable) Pop() {
	if st.top.parent != nil {
		st.top = st.top.parent
	}
}

// Declare inserts sym into the current scope's ordinary namespace. It does
// not check for redeclaration; callers decide that policy.
func (st *SymbolTable) Declare(sym *Symbol) { st.top.symbols[sym.Name] = sym }

// DeclareTag inserts sym into the current scope's tag namespace.
func (st *SymbolTable) DeclareTag(sym *Symbol) { st.top.tags[sym.Name] = sym }

// Lookup searches the ordinary namespace outward from the current scope.
func (st *SymbolTable) Lookup(name string) (*Symbol, bool) {
	for s := st.top; s != nil; s = s.parent {
		if sym, ok := s.symbols[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// LookupCurrent searches only the innermost scope (for redeclaration checks).
func (st *SymbolTable) LookupCurrent(name string) (*Symbol, bool) {
	sym, ok := st.top.symbols[name]
	return sym, ok
}

func (st *SymbolTable) LookupTag(name string) (*Symbol, bool) {
	for s := st.top; s != nil; s = s.parent {
		if sym, ok := s.tags[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

func (st *SymbolTable) LookupTagCurrent(name string) (*Symbol, bool) {
	sym, ok := st.top.tags[name]
	return sym, ok
}

// IsTypeName reports whether name currently resolves to a typedef in
// scope; consulted by the parser (startsDeclaration,
// tryParseTypeSpecifiers), not by the Lexer.
func (st *SymbolTable) IsTypeName(name string) bool {
	sym, ok := st.Lookup(name)
	return ok && sym.Kind == SymTypedef
}

func (st *SymbolTable) AtFileScope() bool { return st.top.parent == nil }
