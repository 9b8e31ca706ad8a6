package ndt

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

// newBuilder returns a builder that is checked for leaked references and
// closed when the test ends.
func newBuilder(t *testing.T) *ckernel.Builder {
	t.Helper()
	b := ckernel.NewBuilder()
	t.Cleanup(func() {
		b.Root().Destroy()
		require.Zero(t, b.LiveRefs(), "retained values leaked")
		b.Close()
	})
	return b
}

// assignOne builds a single assignment kernel and runs it once.
func assignOne(t *testing.T, dst Type, dp unsafe.Pointer, src Type, sp unsafe.Pointer, ectx *eval.Context) error {
	t.Helper()
	b := newBuilder(t)
	_, err := MakeAssignmentKernel(b, 0, dst, nil, src, nil, ckernel.RequestSingle, ectx)
	require.NoError(t, err)
	return b.Root().CallSingle(dp, sp)
}

// compareOne builds a comparison kernel and evaluates it once.
func compareOne(t *testing.T, a Type, ap unsafe.Pointer, bt Type, bp unsafe.Pointer, op kernels.Comparison) bool {
	t.Helper()
	b := newBuilder(t)
	_, err := MakeComparisonKernel(b, 0, a, nil, bt, nil, op, nil)
	require.NoError(t, err)
	return b.Root().CallPredicate(ap, bp)
}

func mustString(t *testing.T, n int, enc Encoding) *FixedString {
	t.Helper()
	s, err := NewFixedString(n, enc)
	require.NoError(t, err)
	return s
}

// stringValue encodes s into a fresh value of st.
func stringValue(t *testing.T, st *FixedString, s string) unsafe.Pointer {
	t.Helper()
	arr := NewArray(st, 1)
	require.NoError(t, st.Set(arr.Ptr(0), s))
	return arr.Ptr(0)
}
