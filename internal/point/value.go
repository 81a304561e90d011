package point

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a point value. The set of implementations is closed: Integer,
// SingleFloat, DoubleFloat, Boolean, String, DateTime, DateOnly, TimeOnly and
// TimeSpan.
//
// String returns the canonical string form used for change detection.
type Value interface {
	Type() Type
	String() string
	isValue()
}

// Integer is the value of a TypeInteger point.
type Integer int

// SingleFloat is the value of a TypeSingleFloat point.
type SingleFloat float32

// DoubleFloat is the value of a TypeDoubleFloat point.
type DoubleFloat float64

// Boolean is the value of a TypeBoolean point.
type Boolean bool

// String is the value of a TypeString point.
type String string

// DateTime is the value of a TypeDateTime point. Canonical form is RFC 3339 in UTC.
type DateTime time.Time

// DateOnly is the value of a TypeDateOnly point, held as midnight UTC.
type DateOnly time.Time

// TimeOnly is the value of a TypeTimeOnly point: the offset from midnight, in [0, 24h).
type TimeOnly time.Duration

// TimeSpan is the value of a TypeTimeSpan point.
type TimeSpan time.Duration

func (Integer) Type() Type     { return TypeInteger }
func (SingleFloat) Type() Type { return TypeSingleFloat }
func (DoubleFloat) Type() Type { return TypeDoubleFloat }
func (Boolean) Type() Type     { return TypeBoolean }
func (String) Type() Type      { return TypeString }
func (DateTime) Type() Type    { return TypeDateTime }
func (DateOnly) Type() Type    { return TypeDateOnly }
func (TimeOnly) Type() Type    { return TypeTimeOnly }
func (TimeSpan) Type() Type    { return TypeTimeSpan }

func (Integer) isValue()     {}
func (SingleFloat) isValue() {}
func (DoubleFloat) isValue() {}
func (Boolean) isValue()     {}
func (String) isValue()      {}
func (DateTime) isValue()    {}
func (DateOnly) isValue()    {}
func (TimeOnly) isValue()    {}
func (TimeSpan) isValue()    {}

func (v Integer) String() string     { return strconv.Itoa(int(v)) }
func (v SingleFloat) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }
func (v DoubleFloat) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Boolean) String() string     { return strconv.FormatBool(bool(v)) }
func (v String) String() string      { return string(v) }
func (v DateTime) String() string    { return time.Time(v).UTC().Format(time.RFC3339Nano) }
func (v DateOnly) String() string    { return time.Time(v).Format(dateLayout) }
func (v TimeOnly) String() string    { return formatClock(time.Duration(v)) }
func (v TimeSpan) String() string    { return formatSpan(time.Duration(v)) }

// Time returns the value as a time.Time.
func (v DateTime) Time() time.Time { return time.Time(v) }

// Time returns the date as midnight UTC.
func (v DateOnly) Time() time.Time { return time.Time(v) }

// NewDateOnly returns the DateOnly for the given calendar date.
func NewDateOnly(year int, month time.Month, day int) DateOnly {
	return DateOnly(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

const (
	dateLayout = "2006-01-02"
	day        = 24 * time.Hour
)

// dateTimeLayouts are tried in order when parsing DateTime strings.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	dateLayout,
}

// Equal reports whether a and b have the same type and canonical string form.
// Two nil values are equal.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Type() == b.Type() && a.String() == b.String()
}

// ZeroValue returns the zero value of the given type, or nil for an invalid type.
func ZeroValue(t Type) Value {
	switch t {
	case TypeInteger:
		return Integer(0)
	case TypeSingleFloat:
		return SingleFloat(0)
	case TypeDoubleFloat:
		return DoubleFloat(0)
	case TypeBoolean:
		return Boolean(false)
	case TypeString:
		return String("")
	case TypeDateTime:
		return DateTime(time.Time{})
	case TypeDateOnly:
		return DateOnly(time.Time{})
	case TypeTimeOnly:
		return TimeOnly(0)
	case TypeTimeSpan:
		return TimeSpan(0)
	}
	return nil
}

// Parse casts a raw string to the native representation of t. It fails with
// ErrIncompatibleValueType when the string cannot be parsed.
func Parse(t Type, raw string) (Value, error) {
	v, ok := TryCastFromString(t, raw)
	if !ok {
		return nil, fmt.Errorf("%w: cannot parse %q as %s", ErrIncompatibleValueType, raw, t)
	}
	return v, nil
}

// TryCastFromString casts a raw string to the native representation of t.
// String points accept the raw string unchanged; all other types are parsed
// after trimming surrounding whitespace.
func TryCastFromString(t Type, raw string) (Value, bool) {
	if t == TypeString {
		return String(raw), true
	}
	s := strings.TrimSpace(raw)

	switch t {
	case TypeInteger:
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, false
		}
		return Integer(n), true
	case TypeSingleFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, false
		}
		return SingleFloat(f), true
	case TypeDoubleFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		return DoubleFloat(f), true
	case TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, false
		}
		return Boolean(b), true
	case TypeDateTime:
		for _, layout := range dateTimeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return DateTime(ts.UTC()), true
			}
		}
		return nil, false
	case TypeDateOnly:
		ts, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, false
		}
		return DateOnly(ts), true
	case TypeTimeOnly:
		d, err := parseClock(s, true)
		if err != nil {
			return nil, false
		}
		return TimeOnly(d), true
	case TypeTimeSpan:
		d, err := parseSpan(s)
		if err != nil {
			return nil, false
		}
		return TimeSpan(d), true
	}
	return nil, false
}

// FromNative converts a Go value to a point value of type t.
//
// Strings (and json.Number) are parsed with TryCastFromString. Numeric Go
// types are accepted for numeric point types; an Integer point only accepts a
// float when it has no fractional part and fits in an int. time.Time is
// accepted for DateTime and DateOnly, time.Duration for TimeOnly and
// TimeSpan. A nil input returns a nil value. Anything else fails with
// ErrIncompatibleValueType.
func FromNative(t Type, v any) (Value, error) {
	if v == nil {
		return nil, nil
	}

	switch native := v.(type) {
	case Value:
		if native.Type() != t {
			return nil, mismatch(t, v)
		}
		return native, nil
	case string:
		return Parse(t, native)
	case fmt.Stringer:
		// json.Number and similar textual numbers
		if _, isNumber := v.(interface{ Float64() (float64, error) }); isNumber && isNumeric(t) {
			return Parse(t, native.String())
		}
	}

	switch t {
	case TypeInteger:
		if n, ok := toInt(v); ok {
			return Integer(n), nil
		}
		if f, ok := toFloat(v); ok && f == math.Trunc(f) && fitsInt(f) {
			return Integer(int(f)), nil
		}
	case TypeSingleFloat:
		if f, ok := toFloat(v); ok {
			return SingleFloat(f), nil
		}
		if n, ok := toInt(v); ok {
			return SingleFloat(n), nil
		}
	case TypeDoubleFloat:
		if f, ok := toFloat(v); ok {
			return DoubleFloat(f), nil
		}
		if n, ok := toInt(v); ok {
			return DoubleFloat(n), nil
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return Boolean(b), nil
		}
	case TypeDateTime:
		if ts, ok := v.(time.Time); ok {
			return DateTime(ts.UTC()), nil
		}
	case TypeDateOnly:
		if ts, ok := v.(time.Time); ok {
			return NewDateOnly(ts.Year(), ts.Month(), ts.Day()), nil
		}
	case TypeTimeOnly:
		if d, ok := v.(time.Duration); ok && d >= 0 && d < day {
			return TimeOnly(d), nil
		}
		if ts, ok := v.(time.Time); ok {
			midnight := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
			return TimeOnly(ts.Sub(midnight)), nil
		}
	case TypeTimeSpan:
		if d, ok := v.(time.Duration); ok {
			return TimeSpan(d), nil
		}
	}

	return nil, mismatch(t, v)
}

func mismatch(t Type, v any) error {
	return fmt.Errorf("%w: cannot assign %T to %s point", ErrIncompatibleValueType, v, t)
}

func isNumeric(t Type) bool {
	return t == TypeInteger || t == TypeSingleFloat || t == TypeDoubleFloat
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	}
	return 0, false
}

// fitsInt reports whether f is within the range of int, the same range
// strconv.Atoi accepts.
func fitsInt(f float64) bool {
	return f >= float64(math.MinInt) && f < -float64(math.MinInt)
}

func toFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	return 0, false
}

// formatClock formats d as hh:mm:ss with an optional trimmed fraction.
func formatClock(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ns := d - s*time.Second

	out := fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	if ns > 0 {
		out += "." + strings.TrimRight(fmt.Sprintf("%09d", ns), "0")
	}
	return out
}

// formatSpan formats d as [-][d.]hh:mm:ss[.fffffffff].
func formatSpan(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / day
	rest := d - days*day
	if days > 0 {
		return fmt.Sprintf("%s%d.%s", sign, days, formatClock(rest))
	}
	return sign + formatClock(rest)
}

// parseClock parses hh:mm[:ss[.fffffffff]]. When bounded, hours must be below 24.
func parseClock(s string, bounded bool) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || (bounded && h > 23) {
		return 0, fmt.Errorf("invalid hours in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", s)
	}

	var sec, nanos int
	if len(parts) == 3 {
		secPart, fracPart, hasFrac := strings.Cut(parts[2], ".")
		sec, err = strconv.Atoi(secPart)
		if err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("invalid seconds in %q", s)
		}
		if hasFrac {
			if fracPart == "" || len(fracPart) > 9 {
				return 0, fmt.Errorf("invalid fraction in %q", s)
			}
			nanos, err = strconv.Atoi(fracPart + strings.Repeat("0", 9-len(fracPart)))
			if err != nil || nanos < 0 {
				return 0, fmt.Errorf("invalid fraction in %q", s)
			}
		}
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(nanos), nil
}

// parseSpan parses [-][d.]hh:mm:ss[.f] or a Go duration string ("1h30m").
func parseSpan(s string) (time.Duration, error) {
	if !strings.Contains(s, ":") {
		return time.ParseDuration(s)
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var days int
	dot := strings.Index(s, ".")
	colon := strings.Index(s, ":")
	if dot >= 0 && dot < colon {
		n, err := strconv.Atoi(s[:dot])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid days in %q", s)
		}
		days = n
		s = s[dot+1:]
	}

	clock, err := parseClock(s, days > 0)
	if err != nil {
		return 0, err
	}

	d := time.Duration(days)*day + clock
	if neg {
		d = -d
	}
	return d, nil
}
