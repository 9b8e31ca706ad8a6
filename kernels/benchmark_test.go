package kernels

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
)

// Helper function to generate random int32 slices
func generateRandomInt32(size int) []int32 {
	data := make([]int32, size)
	for i := range data {
		data[i] = rand.Int31n(1<<16) - 1<<15
	}
	return data
}

// stridedKernel builds one strided kernel for a benchmark and closes the
// builder when it ends.
func stridedKernel(b *testing.B, build func(*ckernel.Builder) (int, error)) ckernel.Kernel {
	b.Helper()
	bld := ckernel.NewBuilder()
	b.Cleanup(func() { bld.Close() })
	if _, err := build(bld); err != nil {
		b.Fatal(err)
	}
	return bld.Root()
}

func benchmarkAssign(b *testing.B, dst, src BuiltinID, mode eval.ErrorMode, size int) {
	k := stridedKernel(b, func(bld *ckernel.Builder) (int, error) {
		return MakeBuiltinAssignment(bld, 0, dst, src, ckernel.RequestStrided, mode)
	})
	fill, err := AssignFunc(src, Int32, eval.None)
	if err != nil {
		b.Fatal(err)
	}
	in := generateRandomInt32(size)
	srcBuf := make([]byte, size*src.Size())
	for i := range in {
		if err := fill(unsafe.Pointer(&srcBuf[i*src.Size()]), []unsafe.Pointer{unsafe.Pointer(&in[i])}, ckernel.Kernel{}); err != nil {
			b.Fatal(err)
		}
	}
	dstBuf := make([]byte, size*dst.Size())

	b.SetBytes(int64(size * src.Size()))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := k.CallStrided(unsafe.Pointer(&dstBuf[0]), dst.Size(),
			[]unsafe.Pointer{unsafe.Pointer(&srcBuf[0])}, []int{src.Size()}, size)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssign_Int32ToFloat64_1K(b *testing.B) {
	benchmarkAssign(b, Float64, Int32, eval.None, 1024)
}

func BenchmarkAssign_Int32ToFloat64_16K(b *testing.B) {
	benchmarkAssign(b, Float64, Int32, eval.None, 16384)
}

func BenchmarkAssign_Float64ToInt32_Checked_1K(b *testing.B) {
	benchmarkAssign(b, Int32, Float64, eval.Inexact, 1024)
}

func BenchmarkAssign_Int64ToInt16_Overflow_1K(b *testing.B) {
	benchmarkAssign(b, Int16, Int64, eval.Overflow, 1024)
}

func BenchmarkAssign_Float32ToFloat16_1K(b *testing.B) {
	benchmarkAssign(b, Float16, Float32, eval.None, 1024)
}

func BenchmarkPODCopy_16K(b *testing.B) {
	const size = 16384
	k := stridedKernel(b, func(bld *ckernel.Builder) (int, error) {
		return MakePODAssignment(bld, 0, 8, 8, ckernel.RequestStrided)
	})
	src := make([]int64, size)
	dst := make([]int64, size)

	b.SetBytes(size * 8)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = k.CallStrided(unsafe.Pointer(&dst[0]), 8, []unsafe.Pointer{unsafe.Pointer(&src[0])}, []int{8}, size)
	}
}

func BenchmarkByteSwap_16K(b *testing.B) {
	const size = 16384
	k := stridedKernel(b, func(bld *ckernel.Builder) (int, error) {
		return MakeByteSwap(bld, 0, 4, ckernel.RequestStrided)
	})
	src := generateRandomInt32(size)
	dst := make([]int32, size)

	b.SetBytes(size * 4)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = k.CallStrided(unsafe.Pointer(&dst[0]), 4, []unsafe.Pointer{unsafe.Pointer(&src[0])}, []int{4}, size)
	}
}

func benchmarkChain(b *testing.B, batch int) {
	const size = 16384
	k := stridedKernel(b, func(bld *ckernel.Builder) (int, error) {
		return MakeBufferedChain(bld, 0, ckernel.RequestStrided,
			[]Link{assignLink(Int64, Int32, eval.None), assignLink(Float64, Int64, eval.None)},
			[]Buffer{bufOf(Int64)}, batch)
	})
	src := generateRandomInt32(size)
	dst := make([]float64, size)

	b.SetBytes(size * 4)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = k.CallStrided(unsafe.Pointer(&dst[0]), 8, []unsafe.Pointer{unsafe.Pointer(&src[0])}, []int{4}, size)
	}
}

func BenchmarkChain_Batch16(b *testing.B)  { benchmarkChain(b, 16) }
func BenchmarkChain_Batch128(b *testing.B) { benchmarkChain(b, 128) }
func BenchmarkChain_Batch1K(b *testing.B)  { benchmarkChain(b, 1024) }

func BenchmarkCompare_Int32Less_1K(b *testing.B) {
	bld := ckernel.NewBuilder()
	defer bld.Close()
	if _, err := MakeBuiltinComparison(bld, 0, Int32, Float64, Less); err != nil {
		b.Fatal(err)
	}
	k := bld.Root()
	xs := generateRandomInt32(1024)
	y := 0.5

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := 0
		for j := range xs {
			if k.CallPredicate(unsafe.Pointer(&xs[j]), unsafe.Pointer(&y)) {
				n++
			}
		}
		_ = n
	}
}
