package eval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorModeRoundTrip(t *testing.T) {
	t.Parallel()
	for _, m := range []ErrorMode{None, Overflow, Fractional, Inexact, Default} {
		got, err := ParseErrorMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
	_, err := ParseErrorMode("strict")
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	t.Parallel()
	ctx := DefaultContext()
	require.Equal(t, Fractional, ctx.Resolve(Default))
	require.Equal(t, None, ctx.Resolve(None))

	strict := ctx.WithErrorMode(Inexact)
	require.Equal(t, Inexact, strict.Resolve(Default))
	require.Equal(t, Fractional, ctx.ErrorMode, "WithErrorMode must copy")

	var nilCtx *Context
	require.Equal(t, Fractional, nilCtx.Resolve(Default))
	require.NotNil(t, nilCtx.Log())
	require.Equal(t, 128, nilCtx.Batch())
}

func TestParseDateOrder(t *testing.T) {
	t.Parallel()
	for _, o := range []DateParseOrder{DateOrderNone, DateOrderYMD, DateOrderMDY, DateOrderDMY} {
		got, err := ParseDateOrder(o.String())
		require.NoError(t, err)
		require.Equal(t, o, got)
	}
	got, err := ParseDateOrder("")
	require.NoError(t, err)
	require.Equal(t, DateOrderNone, got)
	_, err = ParseDateOrder("julian")
	require.ErrorContains(t, err, `unknown date order "julian"`)
}
