package ndt

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

func TestCalendarRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		y, m, d int
		days    int32
		weekday int32
	}{
		{1970, 1, 1, 0, 3},
		{1969, 12, 31, -1, 2},
		{2000, 2, 29, 11016, 1},
		{2013, 12, 30, 16069, 0},
		{1600, 3, 1, -135080, 2},
	}
	for _, tt := range tests {
		days, err := YMDToDays(tt.y, tt.m, tt.d)
		require.NoError(t, err)
		require.Equal(t, tt.days, days)
		y, m, d := DaysToYMD(days)
		require.Equal(t, []int{tt.y, tt.m, tt.d}, []int{y, m, d})
		require.Equal(t, tt.weekday, Weekday(days))
	}
	_, err := YMDToDays(2013, 2, 29)
	require.ErrorContains(t, err, "invalid input year/month/day")
	_, err = YMDToDays(2013, 13, 1)
	require.Error(t, err)
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	mdy := &eval.Context{DateParseOrder: eval.DateOrderMDY, CenturyWindow: 70}
	dmy := &eval.Context{DateParseOrder: eval.DateOrderDMY, CenturyWindow: 70}
	tests := []struct {
		in   string
		ectx *eval.Context
		want string
		err  bool
	}{
		{"2013-12-30", nil, "2013-12-30", false},
		{"20131230", nil, "2013-12-30", false},
		{"2013/12/30", nil, "2013-12-30", false},
		{"Dec 30, 2013", nil, "2013-12-30", false},
		{"30 December 2013", nil, "2013-12-30", false},
		{"12/30/13", mdy, "2013-12-30", false},
		{"30/12/13", dmy, "2013-12-30", false},
		{"01/02/85", mdy, "1985-01-02", false},
		{"01/02/85", nil, "", true},
		{"NA", nil, "NA", false},
		{"2013-02-30", nil, "", true},
		{"yesterday", nil, "", true},
	}
	for _, tt := range tests {
		days, err := ParseDate(tt.in, tt.ectx)
		if tt.err {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, FormatDate(days), tt.in)
	}
}

func TestTimeText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"10:30", "10:30"},
		{"10:30:15", "10:30:15"},
		{"10:30:15.25", "10:30:15.25"},
		{"12:05 am", "00:05"},
		{"1:00 PM", "13:00"},
		{"23:59:59.9999999", "23:59:59.9999999"},
	}
	for _, tt := range tests {
		ticks, err := ParseTime(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, FormatTime(ticks), tt.in)
	}
	for _, bad := range []string{"24:00", "10:60", "13:00 pm", "noon"} {
		_, err := ParseTime(bad)
		require.Error(t, err, bad)
	}
}

func TestDateTimeText(t *testing.T) {
	t.Parallel()
	ticks, err := ParseDateTime("2013-12-30T10:30:00", false, nil)
	require.NoError(t, err)
	require.Equal(t, "2013-12-30T10:30", FormatDateTime(ticks, false))

	utc, err := ParseDateTime("2013-12-30 10:30-05:00", true, nil)
	require.NoError(t, err)
	require.Equal(t, "2013-12-30T15:30Z", FormatDateTime(utc, true))

	_, err = ParseDateTime("2013-12-30T10:30Z", false, nil)
	require.Error(t, err)

	before, err := ParseDateTime("1969-12-31T23:00", false, nil)
	require.NoError(t, err)
	require.Equal(t, int64(-TicksPerHour), before)
	require.Equal(t, "1969-12-31T23:00", FormatDateTime(before, false))

	na, err := ParseDateTime("NA", false, nil)
	require.NoError(t, err)
	require.Equal(t, TicksNA, na)

	na, err = ParseDateTime("NA 12:00", false, nil)
	require.ErrorContains(t, err, "has a time but no date")
	require.Equal(t, TicksNA, na)
}

func TestDateFromStringThenYear(t *testing.T) {
	t.Parallel()
	st := mustString(t, 16, UTF8)
	src := stringValue(t, st, "2013-12-30")

	var days int32
	require.NoError(t, assignOne(t, DateType, unsafe.Pointer(&days), st, src, nil))
	require.Equal(t, "2013-12-30", FormatDate(days))

	year, err := NewProperty(DateType, "year")
	require.NoError(t, err)
	require.Equal(t, Int32Type, year.ValueType())
	var y int32
	require.NoError(t, assignOne(t, Int32Type, unsafe.Pointer(&y), year, unsafe.Pointer(&days), nil))
	require.Equal(t, int32(2013), y)

	// The same through one expression chain: string -> date -> year.
	asDate, err := NewConvert(DateType, st, eval.Default)
	require.NoError(t, err)
	chained, err := NewProperty(asDate, "year")
	require.NoError(t, err)
	y = 0
	require.NoError(t, assignOne(t, Int32Type, unsafe.Pointer(&y), chained, src, nil))
	require.Equal(t, int32(2013), y)
}

func TestDateProperties(t *testing.T) {
	t.Parallel()
	days, err := YMDToDays(2013, 12, 30)
	require.NoError(t, err)
	require.Equal(t, []string{"year", "month", "day", "weekday", "struct"}, Properties(DateType))
	want := map[string]int32{"year": 2013, "month": 12, "day": 30, "weekday": 0}
	for name, v := range want {
		p, err := NewProperty(DateType, name)
		require.NoError(t, err)
		require.False(t, p.Writable())
		var got int32
		require.NoError(t, assignOne(t, Int32Type, unsafe.Pointer(&got), p, unsafe.Pointer(&days), nil))
		require.Equal(t, v, got, name)
	}

	_, err = NewProperty(DateType, "fortnight")
	var pe *PropertyError
	require.ErrorAs(t, err, &pe)

	p, err := NewProperty(DateType, "year")
	require.NoError(t, err)
	b := newBuilder(t)
	_, err = MakeAssignmentKernel(b, 0, p, nil, Int32Type, nil, ckernel.RequestSingle, nil)
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.ReadOnly)
}

func TestDateStructRoundTrip(t *testing.T) {
	t.Parallel()
	days, err := YMDToDays(2013, 12, 30)
	require.NoError(t, err)

	// Field order differs from the date struct; fields pair by name.
	st := MustStruct(Field{"day", Int32Type}, Field{"month", Int32Type}, Field{"year", Int32Type})
	var fields [3]int32
	require.NoError(t, assignOne(t, st, unsafe.Pointer(&fields), DateType, unsafe.Pointer(&days), nil))
	require.Equal(t, [3]int32{30, 12, 2013}, fields)

	fields = [3]int32{1, 3, 2000}
	var back int32
	require.NoError(t, assignOne(t, DateType, unsafe.Pointer(&back), st, unsafe.Pointer(&fields), nil))
	require.Equal(t, "2000-03-01", FormatDate(back))

	fields = [3]int32{31, 2, 2000}
	err = assignOne(t, DateType, unsafe.Pointer(&back), st, unsafe.Pointer(&fields), nil)
	var ve *kernels.ValueError
	require.ErrorAs(t, err, &ve)

	// Years past the int16 field overflow, or read as NA unchecked.
	prop, err := NewProperty(DateType, "struct")
	require.NoError(t, err)
	for _, far := range []int32{math.MaxInt32, math.MinInt32 + 1} {
		var ymd dateYMD
		err = assignOne(t, DateStructType, unsafe.Pointer(&ymd), prop, unsafe.Pointer(&far), nil)
		require.ErrorAs(t, err, &ve)
		require.Equal(t, kernels.KindOverflow, ve.Kind)

		ymd = dateYMD{Year: 1, Month: 1, Day: 1}
		err = assignOne(t, DateStructType, unsafe.Pointer(&ymd), prop, unsafe.Pointer(&far), eval.DefaultContext().WithErrorMode(eval.None))
		require.NoError(t, err)
		require.Equal(t, dateYMD{Year: math.MinInt16}, ymd)
	}
}

func TestDateTimeConversions(t *testing.T) {
	t.Parallel()
	ticks, err := ParseDateTime("2013-12-30T10:30:15", false, nil)
	require.NoError(t, err)

	var tod int64
	require.NoError(t, assignOne(t, TimeType, unsafe.Pointer(&tod), DateTimeType, unsafe.Pointer(&ticks), nil))
	require.Equal(t, "10:30:15", FormatTime(tod))

	var days int32
	err = assignOne(t, DateType, unsafe.Pointer(&days), DateTimeType, unsafe.Pointer(&ticks), nil)
	var ve *kernels.ValueError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, kernels.KindFractional, ve.Kind)

	lax := eval.DefaultContext().WithErrorMode(eval.Overflow)
	require.NoError(t, assignOne(t, DateType, unsafe.Pointer(&days), DateTimeType, unsafe.Pointer(&ticks), lax))
	require.Equal(t, "2013-12-30", FormatDate(days))

	var back int64
	require.NoError(t, assignOne(t, DateTimeType, unsafe.Pointer(&back), DateType, unsafe.Pointer(&days), nil))
	require.Equal(t, "2013-12-30T00:00", FormatDateTime(back, false))

	hour, err := NewProperty(DateTimeType, "hour")
	require.NoError(t, err)
	var h int32
	require.NoError(t, assignOne(t, Int32Type, unsafe.Pointer(&h), hour, unsafe.Pointer(&ticks), nil))
	require.Equal(t, int32(10), h)

	timeProp, err := NewProperty(DateTimeUTCType, "time")
	require.NoError(t, err)
	require.Equal(t, TimeUTCType, timeProp.ValueType())
}

func TestTemporalToString(t *testing.T) {
	t.Parallel()
	st := mustString(t, 32, UTF8)
	out := NewArray(st, 1)

	ticks, err := ParseDateTime("2013-12-30T10:30:00Z", true, nil)
	require.NoError(t, err)
	require.NoError(t, assignOne(t, st, out.Ptr(0), DateTimeUTCType, unsafe.Pointer(&ticks), nil))
	s, err := st.Get(out.Ptr(0))
	require.NoError(t, err)
	require.Equal(t, "2013-12-30T10:30Z", s)

	tod, err := ParseTime("07:05:09")
	require.NoError(t, err)
	require.NoError(t, assignOne(t, st, out.Ptr(0), TimeType, unsafe.Pointer(&tod), nil))
	s, err = st.Get(out.Ptr(0))
	require.NoError(t, err)
	require.Equal(t, "07:05:09", s)

	var days int32
	err = assignOne(t, DateType, unsafe.Pointer(&days), st, stringValue(t, st, "not a date"), nil)
	var ve *kernels.ValueError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, kernels.KindParse, ve.Kind)
}

func TestTemporalOrdering(t *testing.T) {
	t.Parallel()
	a, err := YMDToDays(2013, 12, 30)
	require.NoError(t, err)
	b := a + 1
	require.True(t, compareOne(t, DateType, unsafe.Pointer(&a), DateType, unsafe.Pointer(&b), kernels.Less))
	require.False(t, compareOne(t, DateType, unsafe.Pointer(&a), DateType, unsafe.Pointer(&b), kernels.Equal))

	x, y := int64(TicksPerHour), int64(2*TicksPerHour)
	require.True(t, compareOne(t, TimeType, unsafe.Pointer(&y), TimeType, unsafe.Pointer(&x), kernels.Greater))
	require.True(t, compareOne(t, DateTimeType, unsafe.Pointer(&x), DateTimeType, unsafe.Pointer(&x), kernels.Equal))
}
