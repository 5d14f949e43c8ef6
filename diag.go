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

import (
	"fmt"
	"io"
)

// Severity classifies a Diagnostic per spec.md §7.
type Severity int

const (
	SevWarning Severity = iota
	SevError
)

func (s Severity) String() string {
	if s == SevError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one reported problem: file:line:col, severity, message.
type Diagnostic struct {
	Pos      Position
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// Diagnostics accumulates the bag of problems found across a translation
// unit's lex/parse/semantic stages, per spec.md §7: a stage keeps going to
// surface more diagnostics, but later stages refuse to run on bad input.
type Diagnostics struct {
	items []Diagnostic
}

func (d *Diagnostics) Errorf(pos Position, format string, args ...any) {
	d.items = append(d.items, Diagnostic{Pos: pos, Severity: SevError, Message: fmt.Sprintf(format, args...)})
}

func (d *Diagnostics) Warnf(pos Position, format string, args ...any) {
	d.items = append(d.items, Diagnostic{Pos: pos, Severity: SevWarning, Message: fmt.Sprintf(format, args...)})
}

func (d *Diagnostics) HasErrors() bool {
	for _, it := range d.items {
		if it.Severity == SevError {
			return true
		}
	}
	return false
}

func (d *Diagnostics) ErrorCount() int {
	n := 0
	for _, it := range d.items {
		if it.Severity == SevError {
			n++
		}
	}
	return n
}

func (d *Diagnostics) Items() []Diagnostic { return d.items }

// Print writes one diagnostic per line to w, in the format of spec.md §7:
// "file:line:col: severity: message".
func (d *Diagnostics) Print(w io.Writer) {
	for _, it := range d.items {
		fmt.Fprintln(w, it.String())
	}
}

// ICE reports an internal compiler error: a fatal invariant breach that
// never reaches a user. The caller is expected to exit(2) after this.
type ICE struct {
	Pass     string
	Function string
	Message  string
}

func (e *ICE) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("internal compiler error in %s (function %s): %s", e.Pass, e.Function, e.Message)
	}
	return fmt.Sprintf("internal compiler error in %s: %s", e.Pass, e.Message)
}
