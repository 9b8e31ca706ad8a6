package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/sbl8/ndkernel/compiler"
	ndk_runtime "github.com/sbl8/ndkernel/runtime"
)

func main() {
	var (
		workers = flag.Int("workers", runtime.NumCPU(), "Number of worker goroutines")
		chunk   = flag.Int("chunk", 4096, "Elements per work item")
		check   = flag.Bool("check", false, "Compile the plan and list its steps without running it")
		stats   = flag.Bool("stats", false, "Print execution statistics")
		verbose = flag.Bool("verbose", false, "Trace kernel construction to stderr")
		version = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("ndkrun - ndkernel plan runner v1.0.0")
		fmt.Printf("Built with Go %s\n", runtime.Version())
		return
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <plan.yaml>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	prog, err := compiler.CompileFile(args[0])
	if err != nil {
		log.Fatalf("Failed to compile plan: %v", err)
	}
	if *verbose {
		prog.Context.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if *check {
		listProgram(prog)
		return
	}

	opts := ndk_runtime.EngineOptions{
		Workers:     *workers,
		ChunkSize:   *chunk,
		EnableStats: *stats,
		Context:     prog.Context,
	}
	engine, err := ndk_runtime.NewEngine(&opts)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	res, err := engine.Execute(context.Background(), prog)
	if err != nil {
		log.Fatalf("Plan execution failed: %v", err)
	}

	for _, name := range res.Names {
		arr := res.Arrays[name]
		fmt.Printf("%s: %s = [%s]\n", name, arr.Type, strings.Join(ndk_runtime.Format(arr), ", "))
	}

	if *stats {
		s := engine.Stats()
		fmt.Fprintf(os.Stderr, "runs=%d failures=%d elements=%d chunks=%d avg=%v kernel_bytes=%d\n",
			s.TotalExecutions, s.Failures, s.Elements, s.Chunks, s.AverageLatency, s.KernelBytes)
	}
}

// listProgram prints the resolved inputs and steps of a compiled plan
func listProgram(prog *compiler.Program) {
	if prog.Name != "" {
		fmt.Printf("plan %s\n", prog.Name)
	}
	fmt.Printf("context: errmode=%s date_order=%s century_window=%d chain_batch=%d\n",
		prog.Context.ErrorMode, prog.Context.DateParseOrder, prog.Context.CenturyWindow, prog.Context.Batch())
	for _, in := range prog.Inputs {
		fmt.Printf("  input %s: %s (%d values)\n", in.Name, in.Type, len(in.Values))
	}
	for i := range prog.Instrs {
		in := &prog.Instrs[i]
		fmt.Printf("  %-7s %s  [kernel %d bytes]\n", in.Op, in.String(), in.KernelBytes)
	}
}
