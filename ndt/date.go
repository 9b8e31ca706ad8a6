package ndt

import (
	"math"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

// Date is a calendar date stored as int32 days since 1970-01-01.
type Date struct{ typ }

// DateType is the interned date type.
var DateType = &Date{}

func (*Date) ID() TypeID         { return DateID }
func (*Date) Kind() Kind         { return DatetimeKind }
func (*Date) DataSize() int      { return 4 }
func (*Date) DataAlignment() int { return 4 }
func (*Date) Flags() Flags       { return FlagScalar | FlagZeroInit }
func (*Date) String() string     { return "date" }

func (*Date) printData(_ Arrmeta, data unsafe.Pointer) string {
	return FormatDate(*(*int32)(data))
}

// dateYMD mirrors DateStructType.
type dateYMD struct {
	Year       int16
	Month, Day int8
}

// DateStructType is the value type of a date's "struct" property.
var DateStructType = MustStruct(
	Field{"year", Int16Type},
	Field{"month", Int8Type},
	Field{"day", Int8Type},
)

func init() {
	ymdGetter := func(pick func(y, m, d int) int) func(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
		return func(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
			days := *(*int32)(src)
			if days == DateNA {
				*(*int32)(dst) = DateNA
				return nil
			}
			int32Field(dst, pick(DaysToYMD(days)))
			return nil
		}
	}
	registerProperties(DateID,
		propDef{name: "year", typ: fixedType(Int32Type), get: ymdGetter(func(y, _, _ int) int { return y })},
		propDef{name: "month", typ: fixedType(Int32Type), get: ymdGetter(func(_, m, _ int) int { return m })},
		propDef{name: "day", typ: fixedType(Int32Type), get: ymdGetter(func(_, _, d int) int { return d })},
		propDef{name: "weekday", typ: fixedType(Int32Type), get: func(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
			days := *(*int32)(src)
			if days == DateNA {
				*(*int32)(dst) = DateNA
				return nil
			}
			*(*int32)(dst) = Weekday(days)
			return nil
		}},
		propDef{name: "struct", typ: fixedType(DateStructType), get: getDateStruct, set: setDateStruct},
	)
}

func getDateStruct(dst, src unsafe.Pointer, mode eval.ErrorMode) error {
	out := (*dateYMD)(dst)
	days := *(*int32)(src)
	if days == DateNA {
		*out = dateYMD{Year: math.MinInt16}
		return nil
	}
	y, m, d := DaysToYMD(days)
	if y <= math.MinInt16 || y > math.MaxInt16 {
		// The int16 year field cannot hold it; unchecked reads give NA.
		if mode != eval.None {
			return &kernels.ValueError{Kind: kernels.KindOverflow, Src: "date", Dst: DateStructType.String(),
				Value: FormatDate(days)}
		}
		*out = dateYMD{Year: math.MinInt16}
		return nil
	}
	*out = dateYMD{Year: int16(y), Month: int8(m), Day: int8(d)}
	return nil
}

func setDateStruct(dst, src unsafe.Pointer, mode eval.ErrorMode) error {
	in := *(*dateYMD)(src)
	if in.Year == math.MinInt16 {
		*(*int32)(dst) = DateNA
		return nil
	}
	days, err := YMDToDays(int(in.Year), int(in.Month), int(in.Day))
	if err != nil {
		if mode != eval.None {
			return invalidValue(err)
		}
		days = DateNA
	}
	*(*int32)(dst) = days
	return nil
}

func (t *Date) makeAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	switch {
	case a.dst == Type(t) && a.src.ID() == DateID:
		return podCopy(b, off, t, 4, a.req)
	case isFixedString(a.dst) || isFixedString(a.src):
		return makeTextConversion(b, off, a, t, false)
	case a.dst.ID() == StructID || a.src.ID() == StructID:
		return viaStructProperty(b, off, a, t)
	}
	return off, errNoPath
}

func (t *Date) makeComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error) {
	if c.a.ID() != DateID || c.b.ID() != DateID {
		return off, errNoPath
	}
	return kernels.MakeBuiltinComparison(b, off, kernels.Int32, kernels.Int32, c.op)
}

func isFixedString(t Type) bool { return t.ID() == FixedStringID }
