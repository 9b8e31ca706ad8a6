package ndt

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sbl8/ndkernel/eval"
)

const (
	// TicksPerSecond is the resolution of time and datetime values (100 ns).
	TicksPerSecond = 10_000_000
	TicksPerMinute = 60 * TicksPerSecond
	TicksPerHour   = 60 * TicksPerMinute
	TicksPerDay    = 24 * TicksPerHour

	// DateNA is the missing value of a date.
	DateNA = math.MinInt32
	// TicksNA is the missing value of a time or datetime.
	TicksNA = math.MinInt64
)

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// DaysToYMD converts days since 1970-01-01 to a civil date.
func DaysToYMD(days int32) (year, month, day int) {
	y, m, d := epoch.AddDate(0, 0, int(days)).Date()
	return y, int(m), d
}

// YMDToDays converts a civil date to days since 1970-01-01, rejecting
// out-of-range months and days.
func YMDToDays(year, month, day int) (int32, error) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if y, m, d := t.Date(); y != year || int(m) != month || d != day {
		return DateNA, errors.Errorf("invalid input year/month/day %d/%d/%d", year, month, day)
	}
	days := t.Unix() / 86400
	if days <= math.MinInt32 || days > math.MaxInt32 {
		return DateNA, errors.Errorf("date %d/%d/%d is out of range", year, month, day)
	}
	return int32(days), nil
}

// Weekday returns the day of the week of days, Monday = 0.
func Weekday(days int32) int32 {
	// 1970-01-01 was a Thursday.
	w := (int64(days) + 3) % 7
	if w < 0 {
		w += 7
	}
	return int32(w)
}

// FormatDate prints days as YYYY-MM-DD, or NA.
func FormatDate(days int32) string {
	if days == DateNA {
		return "NA"
	}
	y, m, d := DaysToYMD(days)
	if y < 0 || y > 9999 {
		return fmt.Sprintf("%+d-%02d-%02d", y, m, d)
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

var (
	isoDate     = regexp.MustCompile(`^([+-]?\d{4,})-(\d{1,2})-(\d{1,2})$`)
	compactDate = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	slashDate   = regexp.MustCompile(`^(\d{1,4})[/.-](\d{1,2})[/.-](\d{1,4})$`)
)

var textLayouts = []string{
	"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006",
	"02-Jan-2006", "2006-Jan-02", "Mon, Jan 2, 2006", "Monday, January 2, 2006",
}

// ParseDate parses s as a date. Numeric dates whose field order is not
// obvious are resolved with ectx's DateParseOrder, and two-digit years with
// its CenturyWindow.
func ParseDate(s string, ectx *eval.Context) (int32, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") {
		return DateNA, nil
	}
	if m := isoDate.FindStringSubmatch(s); m != nil {
		return ymdFields(m[1], m[2], m[3])
	}
	if m := compactDate.FindStringSubmatch(s); m != nil {
		return ymdFields(m[1], m[2], m[3])
	}
	if m := slashDate.FindStringSubmatch(s); m != nil {
		return parseOrdered(s, m[1], m[2], m[3], eval.OrDefault(ectx))
	}
	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return YMDToDays(t.Year(), int(t.Month()), t.Day())
		}
	}
	return DateNA, errors.Errorf("unable to parse datetime string %q as a date", s)
}

func ymdFields(ys, ms, ds string) (int32, error) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	return YMDToDays(y, m, d)
}

func parseOrdered(s, a, b, c string, ectx *eval.Context) (int32, error) {
	if len(a) == 4 {
		return ymdFields(a, b, c)
	}
	var ys, ms, ds string
	switch ectx.DateParseOrder {
	case eval.DateOrderMDY:
		ms, ds, ys = a, b, c
	case eval.DateOrderDMY:
		ds, ms, ys = a, b, c
	case eval.DateOrderYMD:
		ys, ms, ds = a, b, c
	default:
		return DateNA, errors.Errorf("date %q is ambiguous, set a date parse order", s)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return DateNA, errors.Wrapf(err, "date %q", s)
	}
	if len(ys) <= 2 {
		y = windowYear(y, ectx.CenturyWindow)
	}
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	return YMDToDays(y, m, d)
}

// windowYear maps a two-digit year: values below window are 20xx, the
// rest 19xx. A window of 0 or less leaves the year as written.
func windowYear(y, window int) int {
	switch {
	case window <= 0 || window > 100:
		return y
	case y < window:
		return 2000 + y
	}
	return 1900 + y
}

// TimeOfDay splits ticks since midnight into its fields.
func TimeOfDay(ticks int64) (hour, minute, second, tick int) {
	hour = int(ticks / TicksPerHour)
	ticks %= TicksPerHour
	minute = int(ticks / TicksPerMinute)
	ticks %= TicksPerMinute
	second = int(ticks / TicksPerSecond)
	tick = int(ticks % TicksPerSecond)
	return hour, minute, second, tick
}

// TimeTicks joins time fields into ticks since midnight.
func TimeTicks(hour, minute, second, tick int) (int64, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 || tick < 0 || tick >= TicksPerSecond {
		return TicksNA, errors.Errorf("invalid input time %02d:%02d:%02d.%07d", hour, minute, second, tick)
	}
	return int64(hour)*TicksPerHour + int64(minute)*TicksPerMinute + int64(second)*TicksPerSecond + int64(tick), nil
}

// FormatTime prints ticks since midnight as HH:MM[:SS[.fffffff]].
func FormatTime(ticks int64) string {
	if ticks == TicksNA {
		return "NA"
	}
	h, m, s, t := TimeOfDay(ticks)
	switch {
	case t != 0:
		return strings.TrimRight(fmt.Sprintf("%02d:%02d:%02d.%07d", h, m, s, t), "0")
	case s != 0:
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

var isoTime = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2})(?:\.(\d{1,9}))?)?\s*([aApP][mM])?$`)

// ParseTime parses HH:MM[:SS[.fraction]] with an optional AM/PM suffix.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") {
		return TicksNA, nil
	}
	m := isoTime.FindStringSubmatch(s)
	if m == nil {
		return TicksNA, errors.Errorf("unable to parse time string %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	frac := m[4]
	if len(frac) > 7 {
		frac = frac[:7]
	}
	frac += strings.Repeat("0", 7-len(frac))
	tick, _ := strconv.Atoi(frac)
	if ampm := strings.ToLower(m[5]); ampm != "" {
		if h < 1 || h > 12 {
			return TicksNA, errors.Errorf("hour %d is invalid with %s in %q", h, m[5], s)
		}
		h %= 12
		if ampm == "pm" {
			h += 12
		}
	}
	return TimeTicks(h, mi, sec, tick)
}

// FormatDateTime prints ticks since the epoch as an ISO 8601 string.
func FormatDateTime(ticks int64, utc bool) string {
	if ticks == TicksNA {
		return "NA"
	}
	days, tod := splitTicks(ticks)
	s := FormatDate(days) + "T" + FormatTime(tod)
	if utc {
		s += "Z"
	}
	return s
}

// splitTicks divides ticks since the epoch into whole days and the
// non-negative remainder.
func splitTicks(ticks int64) (int32, int64) {
	days := ticks / TicksPerDay
	tod := ticks % TicksPerDay
	if tod < 0 {
		tod += TicksPerDay
		days--
	}
	return int32(days), tod
}

// ParseDateTime parses "date[T| ]time[zone]". A zone offset is only
// accepted when utc is set, and the result is then shifted to UTC.
func ParseDateTime(s string, utc bool, ectx *eval.Context) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") {
		return TicksNA, nil
	}
	ds, ts, found := strings.Cut(s, "T")
	if !found {
		ds, ts, _ = strings.Cut(s, " ")
	}
	var offset int64
	if ts != "" {
		zs := ""
		if i := strings.IndexAny(ts, "Z+-"); i >= 0 {
			ts, zs = ts[:i], ts[i:]
		}
		if zs != "" {
			if !utc {
				return TicksNA, errors.Errorf("cannot parse %q with a time zone into an abstract datetime", s)
			}
			z, err := parseZone(zs)
			if err != nil {
				return TicksNA, errors.Wrapf(err, "datetime %q", s)
			}
			offset = z
		}
	}
	days, err := ParseDate(ds, ectx)
	if err != nil {
		return TicksNA, err
	}
	if days == DateNA {
		return TicksNA, errors.Errorf("datetime %q has a time but no date", s)
	}
	var tod int64
	if ts != "" {
		if tod, err = ParseTime(ts); err != nil {
			return TicksNA, err
		}
	}
	return int64(days)*TicksPerDay + tod - offset, nil
}

func parseZone(z string) (int64, error) {
	if z == "Z" {
		return 0, nil
	}
	t, err := time.Parse("-07:00", z)
	if err != nil {
		if t, err = time.Parse("-0700", z); err != nil {
			return 0, errors.Errorf("invalid time zone offset %q", z)
		}
	}
	_, off := t.Zone()
	return int64(off) * TicksPerSecond, nil
}
