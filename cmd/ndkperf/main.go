package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/sbl8/ndkernel/compiler"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
	"github.com/sbl8/ndkernel/ndt"
	ndk_runtime "github.com/sbl8/ndkernel/runtime"
)

var (
	testType = flag.String("test", "all", "Test type: all, numeric, text, expression, compare")
	size     = flag.Int("size", 1<<16, "Elements per run")
	iter     = flag.Int("iter", 50, "Number of iterations")
	workers  = flag.Int("workers", runtime.NumCPU(), "Number of worker goroutines")
	chunk    = flag.Int("chunk", 4096, "Elements per work item")
	verbose  = flag.Bool("verbose", false, "Verbose output")
)

// benchCase is one timed operation over prepared arrays.
type benchCase struct {
	name string
	run  func(ctx context.Context, e *ndk_runtime.Engine) error
}

func main() {
	flag.Parse()

	fmt.Printf("ndkernel Performance Analysis Tool\n")
	fmt.Printf("==================================\n")
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("CPUs: %d (workers %d, chunk %d)\n", runtime.NumCPU(), *workers, *chunk)
	fmt.Printf("CPU Features: %s\n", cpuFeatures())
	fmt.Printf("Test Size: %d elements\n", *size)
	fmt.Printf("Iterations: %d\n", *iter)
	fmt.Printf("\n")

	engine, err := ndk_runtime.NewEngine(&ndk_runtime.EngineOptions{
		Workers:     *workers,
		ChunkSize:   *chunk,
		EnableStats: *verbose,
		Context:     eval.DefaultContext().WithErrorMode(eval.Overflow),
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	groups := map[string]func() []benchCase{
		"numeric":    numericCases,
		"text":       textCases,
		"expression": expressionCases,
		"compare":    compareCases,
	}
	order := []string{"numeric", "text", "expression", "compare"}

	switch *testType {
	case "all":
		for _, g := range order {
			runGroup(engine, g, groups[g]())
		}
	default:
		cases, ok := groups[*testType]
		if !ok {
			fmt.Printf("Unknown test type: %s\n", *testType)
			os.Exit(1)
		}
		runGroup(engine, *testType, cases())
	}

	if *verbose {
		s := engine.Stats()
		fmt.Printf("Runs: %d, chunks: %d, average latency: %v, largest kernel: %d bytes\n",
			s.TotalExecutions, s.Chunks, s.AverageLatency, s.KernelBytes)
	}
}

func cpuFeatures() string {
	order := "little-endian"
	if cpu.IsBigEndian {
		order = "big-endian"
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		return fmt.Sprintf("%s sse4.2=%t avx2=%t avx512f=%t", order, cpu.X86.HasSSE42, cpu.X86.HasAVX2, cpu.X86.HasAVX512F)
	case "arm64":
		return fmt.Sprintf("%s asimd=%t sve=%t", order, cpu.ARM64.HasASIMD, cpu.ARM64.HasSVE)
	}
	return order
}

func runGroup(e *ndk_runtime.Engine, name string, cases []benchCase) {
	fmt.Printf("%s\n", name)
	fmt.Printf("%s\n", dashes(len(name)))
	ctx := context.Background()
	for _, c := range cases {
		if err := c.run(ctx, e); err != nil {
			fmt.Printf("%-34s error: %v\n", c.name, err)
			continue
		}
		start := time.Now()
		for i := 0; i < *iter; i++ {
			if err := c.run(ctx, e); err != nil {
				log.Fatalf("%s: %v", c.name, err)
			}
		}
		elapsed := time.Since(start)
		mops := float64(*size) * float64(*iter) / elapsed.Seconds() / 1e6
		fmt.Printf("%-34s %12v (%.2f Melem/s)\n", c.name, elapsed, mops)
	}
	fmt.Printf("\n")
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}

func assignCase(name string, dst, src *ndt.Array) benchCase {
	return benchCase{name: name, run: func(ctx context.Context, e *ndk_runtime.Engine) error {
		return e.Assign(ctx, dst, src)
	}}
}

func view(arr *ndt.Array, t ndt.Type) *ndt.Array {
	v := *arr
	v.Type = t
	return &v
}

func int32Data(n int) *ndt.Array {
	arr := ndt.NewArray(ndt.Int32Type, n)
	for i := 0; i < n; i++ {
		*(*int32)(arr.Ptr(i)) = rand.Int31n(1 << 20)
	}
	return arr
}

func numericCases() []benchCase {
	src := int32Data(*size)
	f64 := ndt.NewArray(ndt.Float64Type, *size)
	i64 := ndt.NewArray(ndt.Int64Type, *size)
	same := ndt.NewArray(ndt.Int32Type, *size)
	swapped, err := ndt.NewByteSwap(ndt.Int32Type)
	if err != nil {
		log.Fatal(err)
	}
	return []benchCase{
		assignCase("int32 -> int32 (copy)", same, src),
		assignCase("int32 -> int64", i64, src),
		assignCase("int32 -> float64", f64, src),
		assignCase("float64 -> int32 (checked)", same, f64),
		assignCase("int32 -> byteswap[int32]", view(same, swapped), src),
		assignCase("byteswap[int32] -> float64", f64, view(same, swapped)),
	}
}

func textCases() []benchCase {
	values := make([]string, *size)
	for i := range values {
		values[i] = strconv.Itoa(rand.Intn(1 << 20))
	}
	text, err := compiler.TextArray(values)
	if err != nil {
		log.Fatal(err)
	}
	ints := ndt.NewArray(ndt.Int32Type, *size)
	out := ndt.NewArray(text.Type, *size)

	dates := ndt.NewArray(ndt.DateType, *size)
	for i := 0; i < *size; i++ {
		*(*int32)(dates.Ptr(i)) = rand.Int31n(40000) - 20000
	}
	st, err := ndt.NewFixedString(10, ndt.UTF8)
	if err != nil {
		log.Fatal(err)
	}
	dateText := ndt.NewArray(st, *size)
	return []benchCase{
		assignCase("string -> int32", ints, text),
		assignCase("int32 -> string", out, ints),
		assignCase("date -> string", dateText, dates),
		assignCase("string -> date", dates, dateText),
	}
}

func expressionCases() []benchCase {
	dates := ndt.NewArray(ndt.DateType, *size)
	for i := 0; i < *size; i++ {
		*(*int32)(dates.Ptr(i)) = rand.Int31n(40000) - 20000
	}
	year, err := ndt.NewProperty(ndt.DateType, "year")
	if err != nil {
		log.Fatal(err)
	}
	wideYear, err := ndt.NewConvert(ndt.Float64Type, year, eval.Default)
	if err != nil {
		log.Fatal(err)
	}
	ints := ndt.NewArray(ndt.Int32Type, *size)
	f64 := ndt.NewArray(ndt.Float64Type, *size)

	cat, err := ndt.NewCategoricalFromValues[int32](ndt.Int32Type, 5, 3, 9, 1, 7)
	if err != nil {
		log.Fatal(err)
	}
	codes := ndt.NewArray(cat, *size)
	keys := ndt.NewArray(ndt.Int32Type, *size)
	for i := 0; i < *size; i++ {
		*(*int32)(keys.Ptr(i)) = []int32{5, 3, 9, 1, 7}[i%5]
	}
	return []benchCase{
		assignCase("date.year -> int32", ints, view(dates, year)),
		assignCase("date.year -> float64 (chain)", f64, view(dates, wideYear)),
		assignCase("int32 -> categorical", codes, keys),
		assignCase("categorical -> int32", ints, codes),
	}
}

func compareCases() []benchCase {
	a := int32Data(*size)
	b := ndt.NewArray(ndt.Float64Type, 1)
	*(*float64)(b.Ptr(0)) = 1 << 19
	compare := func(name string, op kernels.Comparison, x, y *ndt.Array) benchCase {
		return benchCase{name: name, run: func(ctx context.Context, e *ndk_runtime.Engine) error {
			_, err := e.Compare(ctx, op, x, y)
			return err
		}}
	}
	return []benchCase{
		compare("int32 < int32", kernels.Less, a, a),
		compare("int32 < float64 (broadcast)", kernels.Less, a, b),
		compare("int32 sorting_less", kernels.SortingLess, a, a),
	}
}
