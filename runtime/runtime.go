// Package runtime applies ckernels over whole arrays.
//
// An Engine splits an array operation into chunks of contiguous elements and
// hands them to a pool of worker goroutines. Kernels are not safe for
// concurrent use, so every worker builds its own kernel from the operation's
// types in a private ckernel.Builder and then runs it over the chunks it
// pulls from the shared queue.
//
// Execution model:
//  1. Validate operand lengths and derive broadcast strides
//  2. Queue the element ranges
//  3. Each worker builds a strided kernel and drains the queue
//  4. The first failure cancels the remaining chunks
//  5. Record execution statistics
package runtime

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/compiler"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
	"github.com/sbl8/ndkernel/ndt"
)

// Engine runs assignments and comparisons over arrays with a worker pool.
type Engine struct {
	workers  int
	opts     EngineOptions
	builders *builderPool
	stats    ExecutionStats
	mu       sync.RWMutex
}

// EngineOptions configures engine behavior
type EngineOptions struct {
	Workers     int
	ChunkSize   int
	EnableStats bool
	// Context is handed to the kernel factories; nil means eval.DefaultContext.
	Context *eval.Context
}

// ExecutionStats tracks runtime performance metrics
type ExecutionStats struct {
	TotalExecutions int64
	Failures        int64
	Elements        int64
	Chunks          int64
	AverageLatency  time.Duration
	// KernelBytes is the largest kernel arena built so far.
	KernelBytes int
	Operations  map[string]int64
}

// DefaultEngineOptions provides sensible runtime defaults
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Workers:     runtime.NumCPU(),
		ChunkSize:   4096,
		EnableStats: false,
	}
}

// NewEngine creates an engine. A nil opts uses DefaultEngineOptions.
func NewEngine(opts *EngineOptions) (*Engine, error) {
	o := DefaultEngineOptions()
	if opts != nil {
		o = *opts
	}
	if o.ChunkSize <= 0 {
		return nil, errors.Errorf("chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return &Engine{
		workers:  o.Workers,
		opts:     o,
		builders: newBuilderPool(o.Workers),
	}, nil
}

// SetWorkers configures the number of worker goroutines for parallel execution
func (e *Engine) SetWorkers(n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	e.workers = n
	e.mu.Unlock()
}

// Workers returns the configured worker count.
func (e *Engine) Workers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.workers
}

// Context returns the evaluation context used for kernel construction.
func (e *Engine) Context() *eval.Context {
	return eval.OrDefault(e.opts.Context)
}

// Stats returns current execution statistics
func (e *Engine) Stats() ExecutionStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := e.stats
	stats.Operations = make(map[string]int64, len(e.stats.Operations))
	for k, v := range e.stats.Operations {
		stats.Operations[k] = v
	}
	return stats
}

// Assign converts every element of src into dst. A one-element src is
// broadcast over dst.
func (e *Engine) Assign(ctx context.Context, dst, src *ndt.Array) error {
	srcStride, err := broadcastStride(dst.Len, src)
	if err != nil {
		return err
	}
	ectx := e.Context()
	build := func(b *ckernel.Builder) error {
		_, err := ndt.MakeAssignmentKernel(b, 0, dst.Type, dst.Meta, src.Type, src.Meta, ckernel.RequestStrided, ectx)
		return err
	}
	exec := func(k ckernel.Kernel, lo, hi int) error {
		srcPtr := src.Ptr(lo * boolToInt(srcStride != 0))
		return k.CallStrided(dst.Ptr(lo), dst.Stride, []unsafe.Pointer{srcPtr}, []int{srcStride}, hi-lo)
	}
	return e.run(ctx, "assign", dst.Len, build, exec)
}

// Convert returns a new array of type t holding the elements of src.
func (e *Engine) Convert(ctx context.Context, t ndt.Type, src *ndt.Array) (*ndt.Array, error) {
	out := ndt.NewArray(t, src.Len)
	if err := e.Assign(ctx, out, src); err != nil {
		return nil, err
	}
	return out, nil
}

// Compare evaluates op between a and b element by element. Either operand
// may hold a single element, which is compared against every element of the
// other.
func (e *Engine) Compare(ctx context.Context, op kernels.Comparison, a, b *ndt.Array) ([]bool, error) {
	n := max(a.Len, b.Len)
	if a.Len != n && a.Len != 1 || b.Len != n && b.Len != 1 {
		return nil, errors.Errorf("cannot compare %d elements with %d", a.Len, b.Len)
	}
	if a.Len == 0 || b.Len == 0 {
		return nil, nil
	}
	out := make([]bool, n)
	ectx := e.Context()
	build := func(bld *ckernel.Builder) error {
		_, err := ndt.MakeComparisonKernel(bld, 0, a.Type, a.Meta, b.Type, b.Meta, op, ectx)
		return err
	}
	exec := func(k ckernel.Kernel, lo, hi int) error {
		for i := lo; i < hi; i++ {
			out[i] = k.CallPredicate(a.Ptr(i%a.Len), b.Ptr(i%b.Len))
		}
		return nil
	}
	if err := e.run(ctx, "compare_"+op.String(), n, build, exec); err != nil {
		return nil, err
	}
	return out, nil
}

// FromStrings parses values into a new array of type t by assigning them
// from UTF-8 strings.
func (e *Engine) FromStrings(ctx context.Context, t ndt.Type, values []string) (*ndt.Array, error) {
	src, err := compiler.TextArray(values)
	if err != nil {
		return nil, err
	}
	return e.Convert(ctx, t, src)
}

// Format prints every element of arr.
func Format(arr *ndt.Array) []string {
	out := make([]string, arr.Len)
	for i := range out {
		out[i] = ndt.PrintData(arr.Type, arr.Meta, arr.Ptr(i))
	}
	return out
}

// span is a half-open element range.
type span struct{ lo, hi int }

// run executes one operation over n elements. build places the kernel at the
// root of a worker's builder and exec applies it to one range.
func (e *Engine) run(ctx context.Context, op string, n int,
	build func(*ckernel.Builder) error, exec func(ckernel.Kernel, int, int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	start := time.Now()

	chunk := e.opts.ChunkSize
	chunks := (n + chunk - 1) / chunk
	workers := min(e.Workers(), chunks)

	tasks := make(chan span, chunks)
	for lo := 0; lo < n; lo += chunk {
		tasks <- span{lo, min(lo+chunk, n)}
	}
	close(tasks)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg          sync.WaitGroup
		once        sync.Once
		firstErr    error
		kernelBytes atomic.Int64
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := e.builders.get()
			defer e.builders.put(b)

			if err := build(b); err != nil {
				fail(errors.Wrapf(err, "%s", op))
				return
			}
			for size := int64(b.Size()); ; {
				cur := kernelBytes.Load()
				if size <= cur || kernelBytes.CompareAndSwap(cur, size) {
					break
				}
			}
			for s := range tasks {
				if err := ctx.Err(); err != nil {
					fail(err)
					return
				}
				if err := exec(b.Root(), s.lo, s.hi); err != nil {
					fail(errors.Wrapf(err, "%s elements [%d, %d)", op, s.lo, s.hi))
					return
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	e.Context().Log().Debug("engine run", "op", op, "elements", n, "chunks", chunks,
		"workers", workers, "elapsed", elapsed, "err", firstErr)
	e.updateExecutionStats(op, n, chunks, int(kernelBytes.Load()), elapsed, firstErr)
	return firstErr
}

// updateExecutionStats updates totals and the average latency
func (e *Engine) updateExecutionStats(op string, n, chunks, kernelBytes int, d time.Duration, err error) {
	if !e.opts.EnableStats {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TotalExecutions++
	if err != nil {
		e.stats.Failures++
	}
	e.stats.Elements += int64(n)
	e.stats.Chunks += int64(chunks)
	e.stats.KernelBytes = max(e.stats.KernelBytes, kernelBytes)
	if e.stats.Operations == nil {
		e.stats.Operations = make(map[string]int64)
	}
	e.stats.Operations[op]++

	old := e.stats.TotalExecutions - 1
	e.stats.AverageLatency = time.Duration((int64(e.stats.AverageLatency)*old + int64(d)) / e.stats.TotalExecutions)
}

// broadcastStride returns the source stride for filling n elements from src:
// its own stride when the lengths match, zero for a single element.
func broadcastStride(n int, src *ndt.Array) (int, error) {
	switch {
	case src.Len == n:
		return src.Stride, nil
	case src.Len == 1:
		return 0, nil
	}
	return 0, errors.Errorf("cannot broadcast %d elements into %d", src.Len, n)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
