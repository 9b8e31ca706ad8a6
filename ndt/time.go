package ndt

import (
	"math"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

// Time is a time of day stored as int64 ticks since midnight.
type Time struct {
	typ
	tz TZ
}

var (
	// TimeType is the time of day without a zone.
	TimeType = &Time{tz: TZAbstract}
	// TimeUTCType is the time of day in UTC.
	TimeUTCType = &Time{tz: TZUTC}
)

// NewTime returns the time type for tz.
func NewTime(tz TZ) *Time {
	if tz == TZUTC {
		return TimeUTCType
	}
	return TimeType
}

func (t *Time) ID() TypeID         { return TimeID }
func (t *Time) Kind() Kind         { return DatetimeKind }
func (t *Time) DataSize() int      { return 8 }
func (t *Time) DataAlignment() int { return 8 }
func (t *Time) Flags() Flags       { return FlagScalar | FlagZeroInit }
func (t *Time) TZ() TZ             { return t.tz }

func (t *Time) String() string {
	if t.tz == TZUTC {
		return "time[tz='UTC']"
	}
	return "time"
}

func (t *Time) printData(_ Arrmeta, data unsafe.Pointer) string {
	s := FormatTime(*(*int64)(data))
	if t.tz == TZUTC && s != "NA" {
		s += "Z"
	}
	return s
}

// timeHMST mirrors TimeStructType.
type timeHMST struct {
	Hour, Minute, Second int8
	Tick                 int32
}

// TimeStructType is the value type of a time's "struct" property.
var TimeStructType = MustStruct(
	Field{"hour", Int8Type},
	Field{"minute", Int8Type},
	Field{"second", Int8Type},
	Field{"tick", Int32Type},
)

// timeFieldGetter reads one field of the time of day found by tod in src.
func timeFieldGetter(tod func(src unsafe.Pointer) (int64, bool), pick func(h, m, s, t int) int) func(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
	return func(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
		ticks, ok := tod(src)
		if !ok {
			*(*int32)(dst) = math.MinInt32
			return nil
		}
		int32Field(dst, pick(TimeOfDay(ticks)))
		return nil
	}
}

func timeOfDayAt(src unsafe.Pointer) (int64, bool) {
	ticks := *(*int64)(src)
	return ticks, ticks != TicksNA
}

var timeFieldPickers = []struct {
	name string
	pick func(h, m, s, t int) int
}{
	{"hour", func(h, _, _, _ int) int { return h }},
	{"minute", func(_, m, _, _ int) int { return m }},
	{"second", func(_, _, s, _ int) int { return s }},
	{"microsecond", func(_, _, _, t int) int { return t / 10 }},
	{"tick", func(_, _, _, t int) int { return t }},
}

func init() {
	for _, f := range timeFieldPickers {
		registerProperties(TimeID, propDef{name: f.name, typ: fixedType(Int32Type), get: timeFieldGetter(timeOfDayAt, f.pick)})
	}
	registerProperties(TimeID, propDef{name: "struct", typ: fixedType(TimeStructType), get: getTimeStruct, set: setTimeStruct})
}

func getTimeStruct(dst, src unsafe.Pointer, _ eval.ErrorMode) error {
	ticks := *(*int64)(src)
	if ticks == TicksNA {
		*(*timeHMST)(dst) = timeHMST{Hour: -1, Minute: -1, Second: -1, Tick: -1}
		return nil
	}
	h, m, s, t := TimeOfDay(ticks)
	*(*timeHMST)(dst) = timeHMST{Hour: int8(h), Minute: int8(m), Second: int8(s), Tick: int32(t)}
	return nil
}

func setTimeStruct(dst, src unsafe.Pointer, mode eval.ErrorMode) error {
	in := *(*timeHMST)(src)
	if in.Hour == -1 {
		*(*int64)(dst) = TicksNA
		return nil
	}
	ticks, err := TimeTicks(int(in.Hour), int(in.Minute), int(in.Second), int(in.Tick))
	if err != nil {
		if mode != eval.None {
			return invalidValue(err)
		}
		ticks = TicksNA
	}
	*(*int64)(dst) = ticks
	return nil
}

func (t *Time) makeAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	switch {
	case a.dst.ID() == TimeID && a.src.ID() == TimeID:
		return podCopy(b, off, t, 8, a.req)
	case isFixedString(a.dst) || isFixedString(a.src):
		return makeTextConversion(b, off, a, t, t.tz == TZUTC)
	case a.dst.ID() == StructID || a.src.ID() == StructID:
		return viaStructProperty(b, off, a, t)
	}
	return off, errNoPath
}

func (t *Time) makeComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error) {
	if c.a.ID() != TimeID || c.b.ID() != TimeID {
		return off, errNoPath
	}
	return kernels.MakeBuiltinComparison(b, off, kernels.Int64, kernels.Int64, c.op)
}
