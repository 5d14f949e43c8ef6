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
	"bytes"
	"fmt"
	"os"
	"os/exec"
)

// CompileOptions gathers the command-line surface of §6 into the knobs
// Compile acts on.
type CompileOptions struct {
	InputPath    string
	OutputPath   string
	EmitAsm      bool // -S
	PreprocOnly  bool // -E
	OptLevel     OptLevel
	IncludeDirs  []string
	Defines      map[string]string
	Undefines    []string
	Verbose      bool
}

// CompileResult carries what a successful Compile produced, for main.go to
// write out or for tests to inspect directly.
type CompileResult struct {
	Assembly string
	Object   []byte
	Funcs    []*Func
	Mach     []*MachFunc
}

// Compile drives one translation unit through every stage in strict order,
// per spec.md §2/§5: lex fully before parse, parse fully before sema, sema
// fully before IR build, IR build fully before optimize, optimize fully
// before the back end. A stage that reports any error stops the pipeline
// there — later stages never run on bad input, and no partial output file
// is left behind on disk.
func Compile(src []byte, opts CompileOptions) (*CompileResult, *Diagnostics, error) {
	diags := &Diagnostics{}
	verbose := func(stage string) {
		if opts.Verbose {
			fmt.Fprintln(os.Stderr, "stage:", stage)
		}
	}

	verbose("preprocess")
	pp, err := preprocess(src, opts)
	if err != nil {
		return nil, diags, err
	}
	if opts.PreprocOnly {
		return &CompileResult{Assembly: string(pp)}, diags, nil
	}

	verbose("lex")
	toks := Lex(opts.InputPath, pp, diags)
	if diags.HasErrors() {
		return nil, diags, nil
	}

	verbose("parse")
	types := NewTypeTable()
	syms := NewSymbolTable()
	p := NewParser(toks, diags, types, syms)
	tu := func() (tu *TranslationUnit) {
		defer func() {
			if r := recover(); r != nil {
				if ice, ok := r.(*ICE); ok {
					panic(ice)
				}
				panic(&ICE{Pass: "parse", Message: fmt.Sprint(r)})
			}
		}()
		return p.Parse()
	}()
	if diags.HasErrors() {
		return nil, diags, nil
	}

	verbose("sema")
	sema := NewSema(types, diags)
	sema.Analyze(tu)
	if diags.HasErrors() {
		return nil, diags, nil
	}

	verbose("irbuild")
	ctx := &Context{Types: types, Syms: syms, Diags: diags}

	for _, d := range tu.Decls {
		fd, ok := d.(*FuncDecl)
		if !ok || fd.Body == nil || sema.IsBad(fd) {
			continue
		}
		fn := buildWithRecover(ctx, fd)
		if fn == nil {
			continue
		}
		Optimize(fn, opts.OptLevel)
		ctx.Funcs = append(ctx.Funcs, fn)
	}
	if diags.HasErrors() {
		return nil, diags, nil
	}

	verbose("backend")
	res := &CompileResult{Funcs: ctx.Funcs}
	var asm []byte
	for _, fn := range ctx.Funcs {
		mf := SelectFunc(fn)
		AllocateFunc(mf, fn)
		res.Mach = append(res.Mach, mf)
		asm = append(asm, []byte(EmitAssembly(mf))...)
	}
	res.Assembly = string(asm)
	if !opts.EmitAsm {
		res.Object = EmitCOFF(res.Mach, func(mf *MachFunc) int { return estimateCodeSize(mf) })
	}
	return res, diags, nil
}

// buildWithRecover turns any panic out of BuildFunc into an *ICE panic: an
// *ICE passes through unchanged, anything else is wrapped in one naming the
// "irbuild" pass and the function. RunCompiler recovers it and the process
// exits with status 2.
func buildWithRecover(ctx *Context, fd *FuncDecl) (fn *Func) {
	defer func() {
		if r := recover(); r != nil {
			if ice, ok := r.(*ICE); ok {
				panic(ice)
			}
			panic(&ICE{Pass: "irbuild", Function: fd.Name, Message: fmt.Sprint(r)})
		}
	}()
	return BuildFunc(ctx, fd)
}

// estimateCodeSize is a placeholder byte-count for the COFF section's raw
// data until emit_amd64.go grows a real encoder; every machine instruction
// reserves a conservative 15 bytes, x86-64's maximum instruction length.
func estimateCodeSize(mf *MachFunc) int {
	n := 0
	for _, b := range mf.Blocks {
		n += len(b.Instrs) * 15
	}
	return n
}

// RunCompiler is main.go's entry point once flags are parsed: it reads the
// input file, runs Compile, prints diagnostics, writes the requested
// output, and returns the process exit code of spec.md §6 (0 ok, 1 user
// error, 2 internal compiler error).
func RunCompiler(opts CompileOptions) int {
	src, err := os.ReadFile(opts.InputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	exitCode := 1
	res, diags, err := func() (res *CompileResult, diags *Diagnostics, err error) {
		defer func() {
			if r := recover(); r != nil {
				if ice, ok := r.(*ICE); ok {
					fmt.Fprintln(os.Stderr, ice.Error())
					exitCode = 2
					return
				}
				fmt.Fprintln(os.Stderr, &ICE{Pass: "driver", Message: fmt.Sprint(r)})
				exitCode = 2
			}
		}()
		return Compile(src, opts)
	}()
	if exitCode == 2 {
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	diags.Print(os.Stderr)
	if diags.HasErrors() {
		return 1
	}

	out := opts.OutputPath
	if out == "" {
		out = defaultOutputPath(opts)
	}
	if opts.PreprocOnly {
		return writeResult(out, []byte(res.Assembly), opts.OutputPath == "" && !opts.EmitAsm)
	}
	if opts.EmitAsm {
		return writeResult(out, []byte(res.Assembly), opts.OutputPath == "")
	}
	return writeResult(out, res.Object, opts.OutputPath == "")
}

func defaultOutputPath(opts CompileOptions) string {
	if opts.EmitAsm {
		return trimExt(opts.InputPath) + ".s"
	}
	if opts.PreprocOnly {
		return "" // printed to stdout
	}
	return trimExt(opts.InputPath) + ".o"
}

// preprocess delegates to the system's C preprocessor exactly as `gcc -E`
// would, per spec.md §6: the preprocessor is an external collaborator,
// never reimplemented here. -I/-D/-U are forwarded verbatim; the already-
// preprocessed text comes back over stdout.
func preprocess(src []byte, opts CompileOptions) ([]byte, error) {
	args := []string{"-E", "-x", "c", "-"}
	for _, dir := range opts.IncludeDirs {
		args = append(args, "-I", dir)
	}
	for name, val := range opts.Defines {
		if val == "" {
			args = append(args, "-D"+name)
		} else {
			args = append(args, "-D"+name+"="+val)
		}
	}
	for _, name := range opts.Undefines {
		args = append(args, "-U"+name)
	}
	cmd := exec.Command(preprocessorCommand(), args...)
	cmd.Stdin = bytes.NewReader(src)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("preprocessor: %w: %s", err, errBuf.String())
	}
	return out.Bytes(), nil
}

func preprocessorCommand() string {
	if cc := os.Getenv("CC"); cc != "" {
		return cc
	}
	return "cc"
}

func trimExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}

func writeResult(path string, data []byte, toStdout bool) int {
	if path == "" || toStdout {
		os.Stdout.Write(data)
		return 0
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
