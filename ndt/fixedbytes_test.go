package ndt

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

func TestNewFixedBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		size, align int
		want        string
		err         string
	}{
		{7, 1, "fixed_bytes[7]", ""},
		{16, 8, "fixed_bytes[16, align=8]", ""},
		{0, 1, "", "must be positive"},
		{4, 8, "", "alignment is greater than its size"},
		{6, 3, "", "not a small power of two"},
		{6, 4, "", "does not divide into its element size"},
	}
	for _, tt := range tests {
		tt := tt
		got, err := NewFixedBytes(tt.size, tt.align)
		if tt.err != "" {
			require.ErrorContains(t, err, tt.err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got.String())
		require.Equal(t, tt.size, got.DataSize())
		require.Equal(t, tt.align, got.DataAlignment())
	}
}

func TestFixedBytesAssignment(t *testing.T) {
	t.Parallel()
	b7, err := NewFixedBytes(7, 1)
	require.NoError(t, err)
	b5, err := NewFixedBytes(5, 1)
	require.NoError(t, err)

	src := []byte("abcdefg")
	dst := make([]byte, 7)
	require.NoError(t, assignOne(t, b7, unsafe.Pointer(&dst[0]), b7, unsafe.Pointer(&src[0]), nil))
	require.Equal(t, src, dst)

	b := newBuilder(t)
	_, err = MakeAssignmentKernel(b, 0, b5, nil, b7, nil, ckernel.RequestSingle, nil)
	var ae *AssignError
	require.ErrorAs(t, err, &ae)
	require.Contains(t, err.Error(), "different size")
	require.Zero(t, b.Size())
}

func TestFixedBytesComparison(t *testing.T) {
	t.Parallel()
	bt, err := NewFixedBytes(4, 1)
	require.NoError(t, err)
	x, y := []byte{1, 2, 3, 4}, []byte{1, 2, 4, 0}
	px, py := unsafe.Pointer(&x[0]), unsafe.Pointer(&y[0])
	require.True(t, compareOne(t, bt, px, bt, py, kernels.Less))
	require.False(t, compareOne(t, bt, px, bt, py, kernels.Equal))
	require.True(t, compareOne(t, bt, px, bt, px, kernels.Equal))
	require.True(t, compareOne(t, bt, py, bt, px, kernels.Greater))
}

func TestFixedStringLayout(t *testing.T) {
	t.Parallel()
	tests := []struct {
		enc   Encoding
		size  int
		align int
		name  string
	}{
		{ASCII, 10, 1, "string[10, 'ascii']"},
		{UTF8, 10, 1, "string[10, 'utf8']"},
		{UTF16, 20, 2, "string[10, 'utf16']"},
		{UCS2, 20, 2, "string[10, 'ucs2']"},
		{UTF32, 40, 4, "string[10, 'utf32']"},
	}
	for _, tt := range tests {
		tt := tt
		st := mustString(t, 10, tt.enc)
		require.Equal(t, tt.size, st.DataSize())
		require.Equal(t, tt.align, st.DataAlignment())
		require.Equal(t, tt.name, st.String())
		enc, err := ParseEncoding(tt.enc.String())
		require.NoError(t, err)
		require.Equal(t, tt.enc, enc)
	}
	_, err := NewFixedString(0, UTF8)
	require.Error(t, err)
	_, err = ParseEncoding("ebcdic")
	require.Error(t, err)
}

func TestFixedStringTranscode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		from Encoding
		to   Encoding
		s    string
	}{
		{"ascii to utf32", ASCII, UTF32, "hello"},
		{"utf8 to utf16", UTF8, UTF16, "naïve café"},
		{"utf16 to utf8", UTF16, UTF8, "日本語"},
		{"utf32 to ucs2", UTF32, UCS2, "Ωmega"},
		{"surrogates", UTF8, UTF16, "a😀b"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := mustString(t, 16, tt.from)
			dst := mustString(t, 16, tt.to)
			out := NewArray(dst, 1)
			require.NoError(t, assignOne(t, dst, out.Ptr(0), src, stringValue(t, src, tt.s), nil))
			got, err := dst.Get(out.Ptr(0))
			require.NoError(t, err)
			require.Equal(t, tt.s, got)
		})
	}
}

func TestFixedStringOverflow(t *testing.T) {
	t.Parallel()
	long := mustString(t, 16, UTF8)
	short := mustString(t, 4, UTF8)
	src := stringValue(t, long, "héllo")
	out := NewArray(short, 1)

	b := newBuilder(t)
	_, err := MakeAssignmentKernelMode(b, 0, short, nil, long, nil, ckernel.RequestSingle, eval.Inexact, nil)
	require.NoError(t, err)
	err = b.Root().CallSingle(out.Ptr(0), src)
	var ve *kernels.ValueError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, kernels.KindOverflow, ve.Kind)

	// With no checking the string is cut on a character boundary.
	b2 := newBuilder(t)
	_, err = MakeAssignmentKernelMode(b2, 0, short, nil, long, nil, ckernel.RequestSingle, eval.None, nil)
	require.NoError(t, err)
	require.NoError(t, b2.Root().CallSingle(out.Ptr(0), src))
	got, err := short.Get(out.Ptr(0))
	require.NoError(t, err)
	require.Equal(t, "hél", got)
}

func TestFixedStringUCS2RejectsAstral(t *testing.T) {
	t.Parallel()
	st := mustString(t, 8, UCS2)
	arr := NewArray(st, 1)
	err := st.Set(arr.Ptr(0), "😀")
	var ve *kernels.ValueError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, kernels.KindInvalid, ve.Kind)
}

func TestStringBuiltinConversion(t *testing.T) {
	t.Parallel()
	st := mustString(t, 24, UTF8)

	var i32 int32
	require.NoError(t, assignOne(t, Int32Type, unsafe.Pointer(&i32), st, stringValue(t, st, " -1234 "), nil))
	require.Equal(t, int32(-1234), i32)

	var f64 float64
	require.NoError(t, assignOne(t, Float64Type, unsafe.Pointer(&f64), st, stringValue(t, st, "2.5e3"), nil))
	require.Equal(t, 2500.0, f64)

	var flag bool
	require.NoError(t, assignOne(t, BoolType, unsafe.Pointer(&flag), st, stringValue(t, st, "True"), nil))
	require.True(t, flag)

	err := assignOne(t, Int8Type, unsafe.Pointer(&i32), st, stringValue(t, st, "300"), nil)
	var ve *kernels.ValueError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, kernels.KindOverflow, ve.Kind)

	err = assignOne(t, Int32Type, unsafe.Pointer(&i32), st, stringValue(t, st, "twelve"), nil)
	require.ErrorAs(t, err, &ve)
	require.Equal(t, kernels.KindParse, ve.Kind)

	out := NewArray(st, 1)
	v := int64(-42)
	require.NoError(t, assignOne(t, st, out.Ptr(0), Int64Type, unsafe.Pointer(&v), nil))
	got, err := st.Get(out.Ptr(0))
	require.NoError(t, err)
	require.Equal(t, "-42", got)
}

func TestFixedStringComparison(t *testing.T) {
	t.Parallel()
	for _, enc := range []Encoding{UTF8, UTF16, UTF32} {
		st := mustString(t, 8, enc)
		a, b := stringValue(t, st, "apple"), stringValue(t, st, "banana")
		require.True(t, compareOne(t, st, a, st, b, kernels.Less), enc)
		require.True(t, compareOne(t, st, a, st, a, kernels.Equal), enc)
		require.True(t, compareOne(t, st, b, st, a, kernels.GreaterEqual), enc)
	}
	// Mixed encodings compare by decoded value.
	s8, s32 := mustString(t, 8, UTF8), mustString(t, 8, UTF32)
	require.True(t, compareOne(t, s8, stringValue(t, s8, "pear"), s32, stringValue(t, s32, "pear"), kernels.Equal))
}
