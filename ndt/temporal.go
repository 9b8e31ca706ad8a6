package ndt

import (
	"strconv"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

// TZ is the time zone interpretation of a time or datetime.
type TZ uint8

const (
	// TZAbstract values carry no zone.
	TZAbstract TZ = iota
	// TZUTC values are in UTC.
	TZUTC
)

func (z TZ) String() string {
	if z == TZUTC {
		return "UTC"
	}
	return "abstract"
}

// textState converts between a fixed string and a date, time or datetime.
type textState struct {
	ckernel.Prefix
	Str    stringView
	Kind   int64
	UTC    int64
	Order  int64
	Window int64
	Mode   int64
}

// makeTextConversion handles string <-> temporal assignments for the
// temporal type t, which is one of the two operands.
func makeTextConversion(b *ckernel.Builder, off int, a *assignArgs, t Type, utc bool) (int, error) {
	var fn ckernel.SingleFunc
	var str *FixedString
	if s, ok := a.src.(*FixedString); ok && a.dst == t {
		str, fn = s, parseTemporal
	} else if s, ok := a.dst.(*FixedString); ok && a.src == t {
		str, fn = s, formatTemporal
	} else {
		return off, errNoPath
	}
	k, end := ckernel.Place[textState](b, off)
	st := ckernel.State[textState](k)
	st.Str, st.Kind, st.UTC = viewOf(str), int64(t.ID()), int64(boolInt(utc))
	st.Order, st.Window, st.Mode = int64(a.ectx.DateParseOrder), int64(a.ectx.CenturyWindow), int64(a.mode)
	return end, k.SetExprFunction(a.req, fn, nil)
}

func parseTemporal(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	st := ckernel.State[textState](self)
	s, err := st.Str.get(src[0])
	if err != nil {
		return &kernels.ValueError{Kind: kernels.KindInvalid, Detail: err.Error()}
	}
	ectx := eval.Context{DateParseOrder: eval.DateParseOrder(st.Order), CenturyWindow: int(st.Window)}
	switch TypeID(st.Kind) {
	case DateID:
		var v int32
		v, err = ParseDate(s, &ectx)
		if err == nil {
			*(*int32)(dst) = v
		}
	case TimeID:
		var v int64
		v, err = ParseTime(s)
		if err == nil {
			*(*int64)(dst) = v
		}
	default:
		var v int64
		v, err = ParseDateTime(s, st.UTC != 0, &ectx)
		if err == nil {
			*(*int64)(dst) = v
		}
	}
	if err != nil {
		return &kernels.ValueError{Kind: kernels.KindParse, Value: strconv.Quote(s), Detail: err.Error()}
	}
	return nil
}

func formatTemporal(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	st := ckernel.State[textState](self)
	var s string
	switch TypeID(st.Kind) {
	case DateID:
		s = FormatDate(*(*int32)(src[0]))
	case TimeID:
		s = FormatTime(*(*int64)(src[0]))
	default:
		s = FormatDateTime(*(*int64)(src[0]), st.UTC != 0)
	}
	return st.Str.set(dst, s, eval.ErrorMode(st.Mode))
}

// temporalState converts between the temporal types.
type temporalState struct {
	ckernel.Prefix
	Mode int64
}

func makeTemporalKernel(b *ckernel.Builder, off int, a *assignArgs, fn ckernel.SingleFunc) (int, error) {
	k, end := ckernel.Place[temporalState](b, off)
	ckernel.State[temporalState](k).Mode = int64(a.mode)
	return end, k.SetExprFunction(a.req, fn, nil)
}

func int32Field(p unsafe.Pointer, v int) { *(*int32)(p) = int32(v) }

func invalidValue(err error) error {
	return &kernels.ValueError{Kind: kernels.KindInvalid, Detail: err.Error()}
}
