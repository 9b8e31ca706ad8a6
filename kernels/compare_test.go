package kernels

import (
	"math"
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/ndkernel/ckernel"
)

func compareOne[A, B any](t *testing.T, a, b BuiltinID, c Comparison, x A, y B) bool {
	t.Helper()
	bld := ckernel.NewBuilder()
	defer bld.Close()
	_, err := MakeBuiltinComparison(bld, 0, a, b, c)
	require.NoError(t, err)
	return bld.Root().CallPredicate(unsafe.Pointer(&x), unsafe.Pointer(&y))
}

func TestCompareMixedExact(t *testing.T) {
	t.Parallel()

	require.True(t, compareOne(t, Int64, Float64, Less, int64(math.MaxInt64), float64(0x1p63)))
	require.True(t, compareOne(t, Int64, Float64, Greater, int64(1<<53+1), float64(1<<53)))
	require.False(t, compareOne(t, Int64, Float64, Equal, int64(1<<53+1), float64(1<<53)))
	require.True(t, compareOne(t, Uint64, Int8, Greater, uint64(math.MaxUint64), int8(-1)))
	require.True(t, compareOne(t, Int8, Uint64, Less, int8(-1), uint64(0)))
	require.True(t, compareOne(t, Int32, Float32, Less, int32(2), float32(2.5)))
	require.True(t, compareOne(t, Int32, Float32, Greater, int32(-2), float32(-2.5)))
	require.True(t, compareOne(t, Uint32, Float64, Greater, uint32(0), -0.5))
	require.True(t, compareOne(t, Bool, Int8, Equal, uint8(1), int8(1)))
	require.True(t, compareOne(t, Float64, Float32, Equal, 0.5, float32(0.5)))
}

func TestCompareNaN(t *testing.T) {
	t.Parallel()
	nan := math.NaN()

	for _, c := range []Comparison{Less, LessEqual, Equal, GreaterEqual, Greater} {
		require.False(t, compareOne(t, Float64, Float64, c, nan, 1.0), c.String())
	}
	require.True(t, compareOne(t, Float64, Float64, NotEqual, nan, nan))
	require.True(t, compareOne(t, Float64, Float64, SortingLess, 1.0, nan))
	require.False(t, compareOne(t, Float64, Float64, SortingLess, nan, 1.0))
	require.False(t, compareOne(t, Float64, Float64, SortingLess, nan, nan))
	require.True(t, compareOne(t, Int64, Float32, SortingLess, int64(math.MaxInt64), float32(nan)))
}

func TestCompareComplexLexicographic(t *testing.T) {
	t.Parallel()
	require.True(t, compareOne(t, Complex128, Complex128, Less, complex(1, 2), complex(1, 3)))
	require.True(t, compareOne(t, Complex128, Complex64, Greater, complex(2, -5), complex64(complex(1, 9))))
	require.True(t, compareOne(t, Complex64, Int16, Equal, complex64(complex(4, 0)), int16(4)))
	require.True(t, compareOne(t, Complex64, Int16, NotEqual, complex64(complex(4, 1)), int16(4)))
}

// sample writes a random value of type id into buf and returns a pointer to it.
func sample(r *rand.Rand, id BuiltinID, buf *[16]byte) unsafe.Pointer {
	p := unsafe.Pointer(buf)
	v := scalar{cls: clsInt, i: int64(r.Intn(7) - 3)}
	switch r.Intn(4) {
	case 0:
		v = scalar{cls: clsFloat, f: float64(r.Intn(9)-4) / 2}
	case 1:
		v = scalar{cls: clsFloat, f: math.NaN()}
	}
	// Out-of-range values wrap or saturate; any bit pattern is a valid sample.
	_ = writers[id](p, v, 0)
	return p
}

func TestComparisonTableConsistency(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(1))
	var x, y [16]byte
	for a := BuiltinID(0); a < BuiltinCount; a++ {
		for b := BuiltinID(0); b < BuiltinCount; b++ {
			for n := 0; n < 40; n++ {
				pa, pb := sample(r, a, &x), sample(r, b, &y)
				ab := []unsafe.Pointer{pa, pb}
				ba := []unsafe.Pointer{pb, pa}
				call := func(a, b BuiltinID, c Comparison, src []unsafe.Pointer) bool {
					fn, err := CompareFunc(a, b, c)
					require.NoError(t, err)
					return fn(src, ckernel.Kernel{}) != 0
				}
				less, equal := call(a, b, Less, ab), call(a, b, Equal, ab)
				require.Equal(t, less, call(b, a, Greater, ba), "%s<%s", a, b)
				require.Equal(t, !equal, call(a, b, NotEqual, ab), "%s!=%s", a, b)
				require.Equal(t, call(a, b, LessEqual, ab), call(b, a, GreaterEqual, ba), "%s<=%s", a, b)
				if !readers[a](pa).isNaN() && !readers[b](pb).isNaN() {
					require.Equal(t, less || equal, call(a, b, LessEqual, ab), "%s<=%s", a, b)
				}
			}
		}
	}
}

func TestComparisonNames(t *testing.T) {
	t.Parallel()
	for c := Comparison(0); c < ComparisonCount; c++ {
		got, err := ParseComparison(c.String())
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
	_, err := ParseComparison("spaceship")
	require.Error(t, err)

	sw, ok := Less.Swapped()
	require.True(t, ok)
	require.Equal(t, Greater, sw)
	_, ok = SortingLess.Swapped()
	require.False(t, ok)
}

func TestCompareFuncOutOfRange(t *testing.T) {
	t.Parallel()
	_, err := CompareFunc(Int8, BuiltinCount, Less)
	var nc *NotComparableError
	require.ErrorAs(t, err, &nc)
	_, err = CompareFunc(Int8, Int8, ComparisonCount)
	require.Error(t, err)
}
