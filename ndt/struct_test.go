package ndt

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/kernels"
)

type pointXY struct {
	X int32
	Y float64
}

var pointType = MustStruct(Field{"x", Int32Type}, Field{"y", Float64Type})

func TestStructLayout(t *testing.T) {
	t.Parallel()
	st := MustStruct(Field{"a", Int8Type}, Field{"b", Int64Type}, Field{"c", Int16Type})
	require.Equal(t, []int{0, 8, 16}, []int{st.FieldOffset(0), st.FieldOffset(1), st.FieldOffset(2)})
	require.Equal(t, 24, st.DataSize())
	require.Equal(t, 8, st.DataAlignment())
	require.Equal(t, "{a: int8, b: int64, c: int16}", st.String())
	require.Equal(t, 1, st.FieldIndex("b"))
	require.Equal(t, -1, st.FieldIndex("z"))
	require.Equal(t, int(unsafe.Sizeof(pointXY{})), pointType.DataSize())

	_, err := NewStruct(Field{"a", Int8Type}, Field{"a", Int8Type})
	require.ErrorContains(t, err, "duplicate field name")
	_, err = NewStruct(Field{"", Int8Type})
	require.Error(t, err)
}

func TestStructAssignment(t *testing.T) {
	t.Parallel()
	src := pointXY{X: 7, Y: 2.5}

	t.Run("by name", func(t *testing.T) {
		t.Parallel()
		swapped := MustStruct(Field{"y", Float32Type}, Field{"x", Int64Type})
		var dst struct {
			Y float32
			X int64
		}
		require.NoError(t, assignOne(t, swapped, unsafe.Pointer(&dst), pointType, unsafe.Pointer(&src), nil))
		require.Equal(t, float32(2.5), dst.Y)
		require.Equal(t, int64(7), dst.X)
	})

	t.Run("by position", func(t *testing.T) {
		t.Parallel()
		renamed := MustStruct(Field{"u", Int64Type}, Field{"v", Float64Type})
		var dst struct {
			U int64
			V float64
		}
		require.NoError(t, assignOne(t, renamed, unsafe.Pointer(&dst), pointType, unsafe.Pointer(&src), nil))
		require.Equal(t, int64(7), dst.U)
		require.Equal(t, 2.5, dst.V)
	})

	t.Run("identical", func(t *testing.T) {
		t.Parallel()
		var dst pointXY
		require.NoError(t, assignOne(t, pointType, unsafe.Pointer(&dst), pointType, unsafe.Pointer(&src), nil))
		require.Equal(t, src, dst)
	})

	t.Run("field count mismatch", func(t *testing.T) {
		t.Parallel()
		one := MustStruct(Field{"x", Int32Type})
		b := newBuilder(t)
		_, err := MakeAssignmentKernel(b, 0, one, nil, pointType, nil, ckernel.RequestSingle, nil)
		var ae *AssignError
		require.ErrorAs(t, err, &ae)
		require.Zero(t, b.Size())
	})

	t.Run("field error", func(t *testing.T) {
		t.Parallel()
		narrow := MustStruct(Field{"x", Int8Type}, Field{"y", Float64Type})
		big := pointXY{X: 1000, Y: 1}
		var dst struct {
			X int8
			Y float64
		}
		err := assignOne(t, narrow, unsafe.Pointer(&dst), pointType, unsafe.Pointer(&big), nil)
		var ve *kernels.ValueError
		require.ErrorAs(t, err, &ve)
		require.Equal(t, kernels.KindOverflow, ve.Kind)
	})
}

func TestStructComparison(t *testing.T) {
	t.Parallel()
	p := func(x int32, y float64) unsafe.Pointer { return unsafe.Pointer(&pointXY{X: x, Y: y}) }
	tests := []struct {
		name string
		a, b unsafe.Pointer
		op   kernels.Comparison
		want bool
	}{
		{"equal", p(1, 2), p(1, 2), kernels.Equal, true},
		{"not equal second field", p(1, 2), p(1, 3), kernels.NotEqual, true},
		{"less first field", p(1, 9), p(2, 0), kernels.Less, true},
		{"less second field", p(1, 1), p(1, 2), kernels.Less, true},
		{"less equal ties", p(1, 2), p(1, 2), kernels.LessEqual, true},
		{"less ties", p(1, 2), p(1, 2), kernels.Less, false},
		{"greater", p(2, 0), p(1, 9), kernels.Greater, true},
		{"greater second field", p(1, 1), p(1, 2), kernels.Greater, false},
		{"greater equal ties", p(1, 2), p(1, 2), kernels.GreaterEqual, true},
		{"sorting less", p(0, 5), p(0, 6), kernels.SortingLess, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, compareOne(t, pointType, tt.a, pointType, tt.b, tt.op))
		})
	}
}

func TestFixedDimAssignment(t *testing.T) {
	t.Parallel()
	d4, err := NewFixedDim(4, Int32Type)
	require.NoError(t, err)
	f4, err := NewFixedDim(4, Float64Type)
	require.NoError(t, err)
	d1, err := NewFixedDim(1, Int32Type)
	require.NoError(t, err)
	d3, err := NewFixedDim(3, Int32Type)
	require.NoError(t, err)
	require.Equal(t, "4 * int32", d4.String())
	require.Equal(t, 16, d4.DataSize())
	require.Zero(t, d4.Flags()&FlagScalar)

	src := [4]int32{1, -2, 3, -4}
	var dst [4]float64
	require.NoError(t, assignOne(t, f4, unsafe.Pointer(&dst), d4, unsafe.Pointer(&src), nil))
	require.Equal(t, [4]float64{1, -2, 3, -4}, dst)

	one := [1]int32{9}
	var spread [4]int32
	require.NoError(t, assignOne(t, d4, unsafe.Pointer(&spread), d1, unsafe.Pointer(&one), nil))
	require.Equal(t, [4]int32{9, 9, 9, 9}, spread)

	scalar := int32(5)
	require.NoError(t, assignOne(t, d4, unsafe.Pointer(&spread), Int32Type, unsafe.Pointer(&scalar), nil))
	require.Equal(t, [4]int32{5, 5, 5, 5}, spread)

	b := newBuilder(t)
	_, err = MakeAssignmentKernel(b, 0, d4, nil, d3, nil, ckernel.RequestSingle, nil)
	require.ErrorContains(t, err, "cannot broadcast")
}

func TestFixedDimStridedArrmeta(t *testing.T) {
	t.Parallel()
	d3, err := NewFixedDim(3, Int64Type)
	require.NoError(t, err)
	// Every other element of a 6-element buffer.
	srcMeta := NewArrmeta(d3)
	require.Equal(t, 8, d3.Stride(srcMeta))
	srcMeta.putInt64At(0, 16)
	src := [6]int64{1, 0, 2, 0, 3, 0}
	var dst [3]int64

	b := newBuilder(t)
	_, err = MakeAssignmentKernel(b, 0, d3, nil, d3, srcMeta, ckernel.RequestSingle, nil)
	require.NoError(t, err)
	require.NoError(t, b.Root().CallSingle(unsafe.Pointer(&dst), unsafe.Pointer(&src)))
	require.Equal(t, [3]int64{1, 2, 3}, dst)
	require.Equal(t, "[1, 2, 3]", PrintData(d3, srcMeta, unsafe.Pointer(&src)))
}

func TestFixedDimEquality(t *testing.T) {
	t.Parallel()
	d3, err := NewFixedDim(3, Int32Type)
	require.NoError(t, err)
	a, c := [3]int32{1, 2, 3}, [3]int32{1, 2, 4}
	require.True(t, compareOne(t, d3, unsafe.Pointer(&a), d3, unsafe.Pointer(&a), kernels.Equal))
	require.False(t, compareOne(t, d3, unsafe.Pointer(&a), d3, unsafe.Pointer(&c), kernels.Equal))
	require.True(t, compareOne(t, d3, unsafe.Pointer(&a), d3, unsafe.Pointer(&c), kernels.NotEqual))

	b := newBuilder(t)
	_, err = MakeComparisonKernel(b, 0, d3, nil, d3, nil, kernels.Less, nil)
	var ne *NotComparableError
	require.ErrorAs(t, err, &ne)
}
