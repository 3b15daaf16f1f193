// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Command lowerc drives the lowering pipeline end to end: parse LLVM IR,
// run MemorySSA-based load elimination, lower to the RISC-V-like target,
// finalize per-function layout, and emit. Uses a cobra CLI rather than bare
// os.Args parsing, since this module's pipeline has several independent
// knobs (parallelism, load elimination, output path).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"riscvlower/config"
	"riscvlower/mir"
	"riscvlower/mir/llvmfront"
	"riscvlower/target"
)

var (
	outPath        string
	skipLoadElim   bool
	parallelFuncs  int
	parallelBlocks int
	verbose        bool
)

func main() {
	root := &cobra.Command{
		Use:   "lowerc <input.ll>",
		Short: "Lower LLVM-textual IR to a RISC-V-like target representation",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().StringVarP(&outPath, "out", "o", "", "output path (default: stdout)")
	root.Flags().BoolVar(&skipLoadElim, "no-load-elim", false, "skip MemorySSA-based load elimination")
	root.Flags().IntVar(&parallelFuncs, "parallel-funcs", 1, "number of functions emitted concurrently")
	root.Flags().IntVar(&parallelBlocks, "parallel-blocks", 1, "reserved: number of blocks emitted concurrently per function")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	log := logrus.WithField("component", "lowerc")

	prog, err := llvmfront.ParseFile(args[0])
	if err != nil {
		log.WithError(err).Error("parse failed")
		return err
	}

	effect := buildEffect(prog)
	var forwarded map[string]map[mir.InstID]mir.Operand
	if !skipLoadElim {
		forwarded = mir.OptimizeProgram(prog, effect)
		total := 0
		for _, f := range forwarded {
			total += len(f)
		}
		log.Infof("load elimination forwarded %d loads", total)
	}

	lb := target.NewLoweringBuilder(prog)
	lb.Effect = effect
	lb.Forwarded = forwarded
	lowered, lerr := lb.Build()
	if lerr != nil {
		log.WithError(lerr).Error("lowering failed")
		return lerr
	}

	fin := target.NewFinalizationPasses()
	if ferr := fin.Run(lowered); ferr != nil {
		log.WithError(ferr).Error("finalization failed")
		return ferr
	}

	cfg := config.Default(
		config.WithParallelFuncGenASM(parallelFuncs),
		config.WithParallelBlockGenASM(parallelBlocks),
	)
	emitter := target.NewEmitter(target.DefaultGenFunc, cfg)
	results, eerr := emitter.Emit(lowered)
	if eerr != nil {
		log.WithError(eerr).Error("emission failed")
		return eerr
	}

	out := os.Stdout
	if outPath != "" {
		f, ferr := os.Create(outPath)
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		out = f
	}
	fmt.Fprint(out, target.RenderFloatPool(lowered))
	for _, r := range results {
		fmt.Fprint(out, r.Text)
	}
	return nil
}

// buildEffect registers every global variable, giving MemorySSA a usable
// EffectAnalysis without requiring a separate whole-program alias pass. No
// callee effects are registered, so every call takes the unknown-callee
// default (reads and writes every registered global).
func buildEffect(prog *mir.Program) *mir.DefaultEffect {
	eff := mir.NewDefaultEffect()
	for _, gv := range prog.Module.GlobalVars {
		eff.RegisterGlobal(gv.Name)
	}
	return eff
}
