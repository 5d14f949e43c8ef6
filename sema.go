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

// Sema is the semantic analyzer of spec.md §4.3: it walks the AST the
// parser already produced (declarations, scopes, and struct layouts were
// built incrementally during parsing) and annotates every expression with
// its type, performing the usual arithmetic conversions, lvalue/array/
// function decay, pointer and assignment compatibility checks, and
// built-in intrinsic semantics. A FuncDecl whose body contains a semantic
// error is recorded in badFuncs (see IsBad) so the IR builder never sees
// it, per spec.md §7.
type Sema struct {
	types *TypeTable
	diags *Diagnostics
	ce    *ConstEvaluator

	badFuncs map[*FuncDecl]bool
	curFunc  *FuncDecl
}

func NewSema(types *TypeTable, diags *Diagnostics) *Sema {
	return &Sema{types: types, diags: diags, ce: NewConstEvaluator(diags), badFuncs: map[*FuncDecl]bool{}}
}

// Analyze type-checks the whole translation unit in place.
func (s *Sema) Analyze(tu *TranslationUnit) {
	for _, d := range tu.Decls {
		s.analyzeDecl(d)
	}
}

func (s *Sema) analyzeDecl(d Decl) {
	switch n := d.(type) {
	case *VarDecl:
		if n.Init != nil {
			s.analyzeExpr(n.Init)
			if n.Sym != nil && n.Sym.Storage != StorageAuto {
				if c, ok := s.ce.Eval(n.Init); ok {
					n.Sym.ConstInit = c
					n.Sym.HasInit = true
				}
			}
		}
	case *FuncDecl:
		if n.Body != nil {
			before := s.diags.ErrorCount()
			s.curFunc = n
			s.analyzeStmt(n.Body)
			s.curFunc = nil
			if s.diags.ErrorCount() != before {
				s.badFuncs[n] = true
			}
		}
	case *StaticAssertDecl, *TypedefDecl, *EnumConstDecl:
		// fully handled during parsing
	}
}

// IsBad reports whether fn's body contained a semantic error and must
// therefore be withheld from the IR builder.
func (s *Sema) IsBad(fn *FuncDecl) bool { return s.badFuncs[fn] }

func (s *Sema) analyzeStmt(st Stmt) {
	switch n := st.(type) {
	case *CompoundStmt:
		for _, item := range n.Items {
			switch x := item.(type) {
			case Decl:
				s.analyzeDecl(x)
			case Stmt:
				s.analyzeStmt(x)
			}
		}
	case *ExprStmt:
		s.analyzeExpr(n.X)
	case *IfStmt:
		s.analyzeExpr(n.Cond)
		s.analyzeStmt(n.Then)
		if n.Else != nil {
			s.analyzeStmt(n.Else)
		}
	case *SwitchStmt:
		s.analyzeExpr(n.Tag)
		s.analyzeStmt(n.Body)
	case *WhileStmt:
		s.analyzeExpr(n.Cond)
		s.analyzeStmt(n.Body)
	case *DoWhileStmt:
		s.analyzeStmt(n.Body)
		s.analyzeExpr(n.Cond)
	case *ForStmt:
		if d, ok := n.Init.(Decl); ok {
			s.analyzeDecl(d)
		} else if es, ok := n.Init.(*ExprStmt); ok {
			s.analyzeExpr(es.X)
		}
		if n.Cond != nil {
			s.analyzeExpr(n.Cond)
		}
		if n.Step != nil {
			s.analyzeExpr(n.Step)
		}
		s.analyzeStmt(n.Body)
	case *ReturnStmt:
		if n.Value != nil {
			s.analyzeExpr(n.Value)
		}
	case *LabeledStmt:
		s.analyzeStmt(n.Stmt)
	case *CaseStmt:
		s.analyzeStmt(n.Stmt)
	case *AsmStmt:
		for _, o := range n.Outputs {
			s.analyzeExpr(o.Expr)
		}
		for _, o := range n.Inputs {
			s.analyzeExpr(o.Expr)
		}
	case *BreakStmt, *ContinueStmt, *GotoStmt, *NullStmt:
		// nothing to type-check
	}
}
