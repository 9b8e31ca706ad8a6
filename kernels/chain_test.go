package kernels

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
)

func assignLink(dst, src BuiltinID, mode eval.ErrorMode) Link {
	return func(b *ckernel.Builder, off int) (int, error) {
		return MakeBuiltinAssignment(b, off, dst, src, ckernel.RequestStrided, mode)
	}
}

func bufOf(id BuiltinID) Buffer { return Buffer{Size: id.Size(), Align: id.Align()} }

func TestChainMatchesComposition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		batch int
		count int
	}{
		{"one batch", 0, 10},
		{"batch boundary", 8, 16},
		{"partial last batch", 8, 300},
		{"empty", 4, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := ckernel.NewBuilder()
			defer b.Close()
			_, err := MakeBufferedChain(b, 0, ckernel.RequestStrided,
				[]Link{assignLink(Int32, Int8, eval.Inexact), assignLink(Float64, Int32, eval.Inexact)},
				[]Buffer{bufOf(Int32)}, tt.batch)
			require.NoError(t, err)

			src := make([]int8, tt.count+1)
			for i := range src {
				src[i] = int8(i - 100)
			}
			dst := make([]float64, tt.count+1)
			err = b.Root().CallStrided(unsafe.Pointer(&dst[0]), 8, []unsafe.Pointer{unsafe.Pointer(&src[0])}, []int{1}, tt.count)
			require.NoError(t, err)
			for i := 0; i < tt.count; i++ {
				require.Equal(t, float64(src[i]), dst[i])
			}
			require.Zero(t, dst[tt.count])
		})
	}
}

func TestChainMatchesCompositionGrid(t *testing.T) {
	t.Parallel()
	values := []int32{0, 1, 100, -3, 7}
	for src := BuiltinID(0); src < BuiltinCount; src++ {
		for mid := BuiltinID(0); mid < BuiltinCount; mid++ {
			src, mid := src, mid
			t.Run(src.String()+"->"+mid.String(), func(t *testing.T) {
				t.Parallel()
				in := make([]byte, 0, len(values)*src.Size())
				for _, v := range values {
					in = append(in, writeInt32(t, src, v)...)
				}
				for _, dst := range []BuiltinID{Bool, Int8, Uint32, Float32, Float64, Complex128} {
					first, err := AssignFunc(mid, src, eval.None)
					require.NoError(t, err)
					second, err := AssignFunc(dst, mid, eval.None)
					require.NoError(t, err)
					want := make([]byte, len(values)*dst.Size())
					for i := range values {
						tmp := make([]byte, 16)
						require.NoError(t, first(unsafe.Pointer(&tmp[0]), []unsafe.Pointer{unsafe.Pointer(&in[i*src.Size()])}, ckernel.Kernel{}))
						require.NoError(t, second(unsafe.Pointer(&want[i*dst.Size()]), []unsafe.Pointer{unsafe.Pointer(&tmp[0])}, ckernel.Kernel{}))
					}

					b := ckernel.NewBuilder()
					_, err = MakeBufferedChain(b, 0, ckernel.RequestStrided,
						[]Link{assignLink(mid, src, eval.None), assignLink(dst, mid, eval.None)},
						[]Buffer{bufOf(mid)}, 2)
					require.NoError(t, err)
					got := make([]byte, len(want))
					err = b.Root().CallStrided(unsafe.Pointer(&got[0]), dst.Size(),
						[]unsafe.Pointer{unsafe.Pointer(&in[0])}, []int{src.Size()}, len(values))
					b.Close()
					require.NoError(t, err)
					require.Equal(t, want, got, "via %s to %s", mid, dst)
				}
			})
		}
	}
}

func TestChainSingle(t *testing.T) {
	t.Parallel()
	b := ckernel.NewBuilder()
	defer b.Close()
	_, err := MakeBufferedChain(b, 0, ckernel.RequestSingle,
		[]Link{
			assignLink(Int64, Uint16, eval.Inexact),
			assignLink(Float32, Int64, eval.Inexact),
			assignLink(Complex128, Float32, eval.Inexact),
		},
		[]Buffer{bufOf(Int64), bufOf(Float32)}, 0)
	require.NoError(t, err)

	in := uint16(513)
	var out complex128
	require.NoError(t, b.Root().CallSingle(unsafe.Pointer(&out), unsafe.Pointer(&in)))
	require.Equal(t, complex(513, 0), out)
}

func TestPooledChainReleasesScratch(t *testing.T) {
	t.Parallel()
	b := ckernel.NewBuilder()
	_, err := MakeBufferedChain(b, 0, ckernel.RequestStrided,
		[]Link{
			assignLink(Int32, Int16, eval.Inexact),
			assignLink(Int64, Int32, eval.Inexact),
			assignLink(Float64, Int64, eval.Inexact),
			assignLink(Float32, Float64, eval.Inexact),
		},
		[]Buffer{bufOf(Int32), bufOf(Int64), bufOf(Float64)}, 16)
	require.NoError(t, err)
	require.Equal(t, 3, b.LiveRefs())

	src := make([]int16, 50)
	for i := range src {
		src[i] = int16(i * 3)
	}
	dst := make([]float32, 50)
	err = b.Root().CallStrided(unsafe.Pointer(&dst[0]), 4, []unsafe.Pointer{unsafe.Pointer(&src[0])}, []int{2}, len(src))
	require.NoError(t, err)
	for i := range src {
		require.Equal(t, float32(src[i]), dst[i])
	}

	require.NoError(t, b.Close())
	require.Equal(t, 0, b.LiveRefs())
}

func TestChainPropagatesValueErrors(t *testing.T) {
	t.Parallel()
	b := ckernel.NewBuilder()
	defer b.Close()
	_, err := MakeBufferedChain(b, 0, ckernel.RequestStrided,
		[]Link{assignLink(Int16, Int32, eval.Overflow), assignLink(Int64, Int16, eval.Overflow)},
		[]Buffer{bufOf(Int16)}, 0)
	require.NoError(t, err)

	src := []int32{1, 2, 70000}
	dst := make([]int64, 3)
	err = b.Root().CallStrided(unsafe.Pointer(&dst[0]), 8, []unsafe.Pointer{unsafe.Pointer(&src[0])}, []int{4}, 3)
	var ve *ValueError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, KindOverflow, ve.Kind)
}

func TestChainFailureLeaksNothing(t *testing.T) {
	t.Parallel()
	boom := errors.New("link failed")
	for _, n := range []int{2, 5} {
		b := ckernel.NewBuilder()
		links := make([]Link, n)
		bufs := make([]Buffer, n-1)
		for i := range links {
			links[i] = assignLink(Int32, Int32, eval.None)
		}
		for i := range bufs {
			bufs[i] = bufOf(Int32)
		}
		links[n-1] = func(b *ckernel.Builder, off int) (int, error) {
			return off, boom
		}

		_, err := MakeBufferedChain(b, 0, ckernel.RequestStrided, links, bufs, 0)
		require.ErrorIs(t, err, boom)
		b.Discard(0)
		require.Equal(t, 0, b.LiveRefs())
		require.Equal(t, 0, b.Size())
	}
}

func TestChainValidation(t *testing.T) {
	t.Parallel()
	b := ckernel.NewBuilder()
	defer b.Close()
	link := assignLink(Int32, Int32, eval.None)

	_, err := MakeBufferedChain(b, 0, ckernel.RequestStrided, nil, nil, 0)
	require.Error(t, err)
	_, err = MakeBufferedChain(b, 0, ckernel.RequestStrided, []Link{link, link}, nil, 0)
	require.Error(t, err)
	_, err = MakeBufferedChain(b, 0, ckernel.RequestPredicate, []Link{link}, nil, 0)
	require.Error(t, err)
}
