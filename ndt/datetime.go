package ndt

import (
	"math"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

// DateTime is an instant stored as int64 ticks since 1970-01-01T00:00.
type DateTime struct {
	typ
	tz TZ
}

var (
	// DateTimeType is the datetime without a zone.
	DateTimeType = &DateTime{tz: TZAbstract}
	// DateTimeUTCType is the datetime in UTC.
	DateTimeUTCType = &DateTime{tz: TZUTC}
)

// NewDateTime returns the datetime type for tz.
func NewDateTime(tz TZ) *DateTime {
	if tz == TZUTC {
		return DateTimeUTCType
	}
	return DateTimeType
}

func (t *DateTime) ID() TypeID         { return DateTimeID }
func (t *DateTime) Kind() Kind         { return DatetimeKind }
func (t *DateTime) DataSize() int      { return 8 }
func (t *DateTime) DataAlignment() int { return 8 }
func (t *DateTime) Flags() Flags       { return FlagScalar | FlagZeroInit }
func (t *DateTime) TZ() TZ             { return t.tz }

func (t *DateTime) String() string {
	if t.tz == TZUTC {
		return "datetime[tz='UTC']"
	}
	return "datetime"
}

func (t *DateTime) printData(_ Arrmeta, data unsafe.Pointer) string {
	return FormatDateTime(*(*int64)(data), t.tz == TZUTC)
}

// dateTimeStruct mirrors DateTimeStructType.
type dateTimeStruct struct {
	Year                             int16
	Month, Day, Hour, Minute, Second int8
	Tick                             int32
}

// DateTimeStructType is the value type of a datetime's "struct" property.
var DateTimeStructType = MustStruct(
	Field{"year", Int16Type},
	Field{"month", Int8Type},
	Field{"day", Int8Type},
	Field{"hour", Int8Type},
	Field{"minute", Int8Type},
	Field{"second", Int8Type},
	Field{"tick", Int32Type},
)

func dateTimeOfDay(src unsafe.Pointer) (int64, bool) {
	ticks := *(*int64)(src)
	if ticks == TicksNA {
		return 0, false
	}
	_, tod := splitTicks(ticks)
	return tod, true
}

func init() {
	ymd := func(pick func(y, m, d int) int) func(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
		return func(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
			ticks := *(*int64)(src)
			if ticks == TicksNA {
				*(*int32)(dst) = math.MinInt32
				return nil
			}
			days, _ := splitTicks(ticks)
			int32Field(dst, pick(DaysToYMD(days)))
			return nil
		}
	}
	registerProperties(DateTimeID,
		propDef{name: "year", typ: fixedType(Int32Type), get: ymd(func(y, _, _ int) int { return y })},
		propDef{name: "month", typ: fixedType(Int32Type), get: ymd(func(_, m, _ int) int { return m })},
		propDef{name: "day", typ: fixedType(Int32Type), get: ymd(func(_, _, d int) int { return d })},
	)
	for _, f := range timeFieldPickers {
		registerProperties(DateTimeID, propDef{name: f.name, typ: fixedType(Int32Type), get: timeFieldGetter(dateTimeOfDay, f.pick)})
	}
	registerProperties(DateTimeID,
		propDef{name: "date", typ: fixedType(DateType), get: func(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
			*(*int32)(dst), _ = dateOf(*(*int64)(src))
			return nil
		}},
		propDef{name: "time", typ: func(owner Type) Type { return NewTime(owner.(*DateTime).tz) }, get: func(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
			tod, ok := dateTimeOfDay(src)
			if !ok {
				tod = TicksNA
			}
			*(*int64)(dst) = tod
			return nil
		}},
		propDef{name: "struct", typ: fixedType(DateTimeStructType), get: getDateTimeStruct, set: setDateTimeStruct},
	)
}

// dateOf returns the date of ticks and whether the time of day is zero.
func dateOf(ticks int64) (int32, bool) {
	if ticks == TicksNA {
		return DateNA, true
	}
	days, tod := splitTicks(ticks)
	return days, tod == 0
}

func getDateTimeStruct(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
	ticks := *(*int64)(src)
	if ticks == TicksNA {
		*(*dateTimeStruct)(dst) = dateTimeStruct{Year: math.MinInt16}
		return nil
	}
	days, tod := splitTicks(ticks)
	y, mo, d := DaysToYMD(days)
	h, mi, s, tk := TimeOfDay(tod)
	*(*dateTimeStruct)(dst) = dateTimeStruct{
		Year: int16(y), Month: int8(mo), Day: int8(d),
		Hour: int8(h), Minute: int8(mi), Second: int8(s), Tick: int32(tk),
	}
	return nil
}

func setDateTimeStruct(dst, src unsafe.Pointer, mode eval.ErrorMode) error {
	in := *(*dateTimeStruct)(src)
	if in.Year == math.MinInt16 {
		*(*int64)(dst) = TicksNA
		return nil
	}
	days, err := YMDToDays(int(in.Year), int(in.Month), int(in.Day))
	var tod int64
	if err == nil {
		tod, err = TimeTicks(int(in.Hour), int(in.Minute), int(in.Second), int(in.Tick))
	}
	if err != nil {
		if mode != eval.None {
			return invalidValue(err)
		}
		*(*int64)(dst) = TicksNA
		return nil
	}
	*(*int64)(dst) = int64(days)*TicksPerDay + tod
	return nil
}

func (t *DateTime) makeAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	dst, src := a.dst.ID(), a.src.ID()
	switch {
	case dst == DateTimeID && src == DateTimeID:
		return podCopy(b, off, t, 8, a.req)
	case dst == DateTimeID && src == DateID:
		return makeTemporalKernel(b, off, a, dateToDateTime)
	case dst == DateID && src == DateTimeID:
		return makeTemporalKernel(b, off, a, dateTimeToDate)
	case dst == TimeID && src == DateTimeID:
		return makeTemporalKernel(b, off, a, dateTimeToTime)
	case isFixedString(a.dst) || isFixedString(a.src):
		return makeTextConversion(b, off, a, t, t.tz == TZUTC)
	case dst == StructID || src == StructID:
		return viaStructProperty(b, off, a, t)
	}
	return off, errNoPath
}

func dateToDateTime(dst unsafe.Pointer, src []unsafe.Pointer, _ ckernel.Kernel) error {
	days := *(*int32)(src[0])
	if days == DateNA {
		*(*int64)(dst) = TicksNA
		return nil
	}
	*(*int64)(dst) = int64(days) * TicksPerDay
	return nil
}

func dateTimeToDate(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	days, whole := dateOf(*(*int64)(src[0]))
	if !whole && eval.ErrorMode(ckernel.State[temporalState](self).Mode) >= eval.Fractional {
		return &kernels.ValueError{Kind: kernels.KindFractional, Src: "datetime", Dst: "date",
			Value: FormatDateTime(*(*int64)(src[0]), false)}
	}
	*(*int32)(dst) = days
	return nil
}

func dateTimeToTime(dst unsafe.Pointer, src []unsafe.Pointer, _ ckernel.Kernel) error {
	tod, ok := dateTimeOfDay(src[0])
	if !ok {
		tod = TicksNA
	}
	*(*int64)(dst) = tod
	return nil
}

func (t *DateTime) makeComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error) {
	if c.a.ID() != DateTimeID || c.b.ID() != DateTimeID {
		return off, errNoPath
	}
	return kernels.MakeBuiltinComparison(b, off, kernels.Int64, kernels.Int64, c.op)
}
