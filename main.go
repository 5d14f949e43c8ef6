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
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/cpu"
)

var command = &cobra.Command{
	Use:   "cgocc source [-o output]",
	Short: "a small optimizing C compiler targeting amd64",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		emitAsm, _ := cmd.Flags().GetBool("S")
		preprocOnly, _ := cmd.Flags().GetBool("E")
		o0, _ := cmd.Flags().GetBool("O0")
		o1, _ := cmd.Flags().GetBool("O1")
		includeDirs, _ := cmd.Flags().GetStringSlice("I")
		defines, _ := cmd.Flags().GetStringSlice("D")
		undefines, _ := cmd.Flags().GetStringSlice("U")
		verboseFlag, _ := cmd.Flags().GetBool("v")

		level := OptO0
		if o1 || !o0 {
			level = OptO1
		}
		if o0 {
			level = OptO0
		}

		defs := map[string]string{}
		for _, d := range defines {
			if i := strings.IndexByte(d, '='); i >= 0 {
				defs[d[:i]] = d[i+1:]
			} else {
				defs[d] = ""
			}
		}

		if verboseFlag {
			fmt.Fprintf(os.Stderr, "host: avx2=%v avx512=%v\n", cpu.X86.HasAVX2, cpu.X86.HasAVX512F)
		}

		opts := CompileOptions{
			InputPath:   args[0],
			OutputPath:  output,
			EmitAsm:     emitAsm,
			PreprocOnly: preprocOnly,
			OptLevel:    level,
			IncludeDirs: includeDirs,
			Defines:     defs,
			Undefines:   undefines,
			Verbose:     verboseFlag,
		}
		code := RunCompiler(opts)
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	command.Flags().StringP("output", "o", "", "output file path")
	command.Flags().Bool("S", false, "emit textual assembly instead of an object file")
	command.Flags().Bool("E", false, "stop after preprocessing")
	command.Flags().Bool("O0", false, "disable the optimizer")
	command.Flags().Bool("O1", false, "enable the optimizer pipeline (default)")
	command.Flags().StringSliceP("I", "I", nil, "add a preprocessor include directory")
	command.Flags().StringSliceP("D", "D", nil, "define a preprocessor macro (NAME or NAME=VALUE)")
	command.Flags().StringSliceP("U", "U", nil, "undefine a preprocessor macro")
	command.Flags().BoolP("v", "v", false, "print pipeline stage names to stderr")
}

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
