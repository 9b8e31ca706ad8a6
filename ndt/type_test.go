package ndt

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/cpu"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

func sampleTypes(t *testing.T) []Type {
	t.Helper()
	must := func(typ Type, err error) Type {
		require.NoError(t, err)
		return typ
	}
	bytes7 := must(NewFixedBytes(7, 1))
	str := must(NewFixedString(10, UTF8))
	return []Type{
		Int32Type, Float64Type, VoidType,
		bytes7, must(NewFixedBytes(8, 4)),
		str, must(NewFixedString(10, UTF16)),
		DateType, TimeType, TimeUTCType, DateTimeType,
		pointType, MustStruct(Field{"y", Float64Type}, Field{"x", Int32Type}),
		must(NewFixedDim(3, Int32Type)), must(NewFixedDim(3, Float64Type)),
		must(NewConvert(Int64Type, Int32Type, eval.Default)),
		must(NewConvert(Int64Type, Int32Type, eval.None)),
		must(NewByteSwap(Int32Type)),
		must(NewProperty(DateType, "year")),
		must(NewTypeVar("T")),
		must(NewCategoricalFromValues[int32](Int32Type, 1, 2)),
	}
}

func TestEqualIsEquivalence(t *testing.T) {
	t.Parallel()
	a, b := sampleTypes(t), sampleTypes(t)
	for i := range a {
		require.True(t, Equal(a[i], a[i]), "reflexive %s", a[i])
		require.True(t, Equal(a[i], b[i]), "rebuilt %s", a[i])
		for j := range a {
			require.Equal(t, Equal(a[i], a[j]), Equal(a[j], a[i]), "symmetric %s %s", a[i], a[j])
			if i != j {
				require.False(t, Equal(a[i], b[j]), "%s vs %s", a[i], b[j])
			}
		}
	}
}

func TestTypeVarNames(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"T", "Dims", "A1", "T_x"} {
		require.True(t, ValidTypeVarName(name), name)
	}
	for _, name := range []string{"", "t", "1T", "T-x", "Tä"} {
		require.False(t, ValidTypeVarName(name), name)
		_, err := NewTypeVar(name)
		require.ErrorContains(t, err, "must be alphanumeric and begin with a capital")
	}
}

func TestTypeVarsCollected(t *testing.T) {
	t.Parallel()
	tv, err := NewTypeVar("T")
	require.NoError(t, err)
	dim, err := NewTypeVarDim("M", tv)
	require.NoError(t, err)
	pow, err := NewPowDimSym(dim, "N", MustStruct(Field{"a", tv}, Field{"b", Int32Type}))
	require.NoError(t, err)
	require.Equal(t, "M**N * {a: T, b: int32}", pow.String())

	names := TypeVars(pow)
	require.ElementsMatch(t, []string{"M", "N", "T"}, names.Slice())
	require.Zero(t, TypeVars(pointType).Size())

	_, err = NewPowDimSym(Int32Type, "N", tv)
	require.Error(t, err)
}

func TestSymbolicTypesHoldNoData(t *testing.T) {
	t.Parallel()
	tv, err := NewTypeVar("T")
	require.NoError(t, err)
	st := MustStruct(Field{"a", tv})
	require.NotZero(t, st.Flags()&FlagSymbolic)
	require.Zero(t, st.DataSize())

	b := newBuilder(t)
	_, err = MakeAssignmentKernel(b, 0, Int32Type, nil, tv, nil, ckernel.RequestSingle, nil)
	require.ErrorContains(t, err, "Cannot store data of symbolic type T")
	_, err = NewConvert(Int32Type, tv, eval.Default)
	require.Error(t, err)
}

func TestPromoteArithmetic(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b, want Type
	}{
		{Int8Type, Int8Type, Int32Type},
		{BoolType, BoolType, Int32Type},
		{Uint16Type, Int8Type, Int32Type},
		{Int64Type, Int32Type, Int64Type},
		{Int32Type, Uint32Type, Uint32Type},
		{Int64Type, Uint32Type, Int64Type},
		{Uint64Type, Int64Type, Uint64Type},
		{Int32Type, Float32Type, Float32Type},
		{Float32Type, Float64Type, Float64Type},
		{Float64Type, Complex64Type, Complex128Type},
		{Complex64Type, Float64Type, Complex128Type},
		{Complex64Type, Float32Type, Complex64Type},
		{VoidType, Int16Type, Int16Type},
	}
	for _, tt := range tests {
		got, err := PromoteArithmetic(tt.a, tt.b)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "%s + %s", tt.a, tt.b)
	}

	a, b := mustString(t, 4, ASCII), mustString(t, 8, UTF16)
	got, err := PromoteArithmetic(a, b)
	require.NoError(t, err)
	require.True(t, Equal(mustString(t, 8, UTF16), got))

	_, err = PromoteArithmetic(DateType, Int32Type)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestByteSwapRoundTrip(t *testing.T) {
	t.Parallel()
	bs, err := NewByteSwap(Int32Type)
	require.NoError(t, err)
	require.Equal(t, "byteswap[int32]", bs.String())
	require.Equal(t, "fixed_bytes[4, align=4]", bs.OperandType().String())

	v := int32(0x01020304)
	var stored int32
	require.NoError(t, assignOne(t, bs, unsafe.Pointer(&stored), Int32Type, unsafe.Pointer(&v), nil))
	require.Equal(t, int32(0x04030201), stored)

	var back int32
	require.NoError(t, assignOne(t, Int32Type, unsafe.Pointer(&back), bs, unsafe.Pointer(&stored), nil))
	require.Equal(t, v, back)

	// Reading swapped storage through a conversion chains both steps.
	var wide float64
	require.NoError(t, assignOne(t, Float64Type, unsafe.Pointer(&wide), bs, unsafe.Pointer(&stored), nil))
	require.Equal(t, float64(v), wide)

	_, err = NewByteSwap(Int8Type)
	require.Error(t, err)
	_, err = NewByteSwap(pointType)
	require.Error(t, err)

	c, err := NewByteSwap(Complex64Type)
	require.NoError(t, err)
	z := complex64(complex(1, 2))
	var zs, zb complex64
	require.NoError(t, assignOne(t, c, unsafe.Pointer(&zs), Complex64Type, unsafe.Pointer(&z), nil))
	require.NoError(t, assignOne(t, Complex64Type, unsafe.Pointer(&zb), c, unsafe.Pointer(&zs), nil))
	require.Equal(t, z, zb)
}

func TestEndianTypes(t *testing.T) {
	t.Parallel()
	native, swapped := LittleEndian, BigEndian
	if cpu.IsBigEndian {
		native, swapped = BigEndian, LittleEndian
	}
	got, err := native(Int64Type)
	require.NoError(t, err)
	require.Equal(t, Int64Type, got)
	got, err = swapped(Int64Type)
	require.NoError(t, err)
	require.Equal(t, ByteSwapID, got.ID())
	got, err = swapped(Uint8Type)
	require.NoError(t, err)
	require.Equal(t, Uint8Type, got)
}

func TestConvertErrorMode(t *testing.T) {
	t.Parallel()
	strict, err := NewConvert(Int8Type, Int32Type, eval.Overflow)
	require.NoError(t, err)
	lax, err := NewConvert(Int8Type, Int32Type, eval.None)
	require.NoError(t, err)
	require.Equal(t, "convert[to=int8, from=int32, errmode=overflow]", strict.String())

	v := int32(300)
	var out int8
	err = assignOne(t, Int8Type, unsafe.Pointer(&out), strict, unsafe.Pointer(&v), nil)
	var ve *kernels.ValueError
	require.ErrorAs(t, err, &ve)
	require.NoError(t, assignOne(t, Int8Type, unsafe.Pointer(&out), lax, unsafe.Pointer(&v), nil))
	require.Equal(t, int8(44), out)
}

func TestExpressionComparison(t *testing.T) {
	t.Parallel()
	st := mustString(t, 8, UTF8)
	asInt, err := NewConvert(Int32Type, st, eval.Default)
	require.NoError(t, err)
	x := int32(12)
	require.True(t, compareOne(t, asInt, stringValue(t, st, "12"), Int32Type, unsafe.Pointer(&x), kernels.Equal))
	require.True(t, compareOne(t, asInt, stringValue(t, st, "9"), Int32Type, unsafe.Pointer(&x), kernels.Less))
	// Values that fail to convert are unordered but never equal.
	bad := stringValue(t, st, "x")
	for _, op := range []kernels.Comparison{kernels.SortingLess, kernels.Less, kernels.LessEqual, kernels.Equal, kernels.GreaterEqual, kernels.Greater} {
		require.False(t, compareOne(t, asInt, bad, Int32Type, unsafe.Pointer(&x), op), op.String())
	}
	require.True(t, compareOne(t, asInt, bad, Int32Type, unsafe.Pointer(&x), kernels.NotEqual))
	require.True(t, compareOne(t, Int32Type, unsafe.Pointer(&x), asInt, bad, kernels.NotEqual))
}

func TestFailedBuildsReleaseEverything(t *testing.T) {
	t.Parallel()
	cat, err := NewCategoricalFromValues[int32](Int32Type, 1, 2, 3)
	require.NoError(t, err)
	one := MustStruct(Field{"c", cat}, Field{"x", Int32Type})
	bad := MustStruct(Field{"c", Int32Type}, Field{"x", DateType})

	b := newBuilder(t)
	// The first field's lookup kernel retains the categorical before the
	// second field fails.
	_, err = MakeAssignmentKernel(b, 0, one, nil, bad, nil, ckernel.RequestSingle, nil)
	require.Error(t, err)
	require.Zero(t, b.Size())
	require.Zero(t, b.LiveRefs())

	_, err = MakeAssignmentKernel(b, 0, one, nil, one, nil, ckernel.RequestStrided, nil)
	require.NoError(t, err)
}
