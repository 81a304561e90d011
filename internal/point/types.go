package point

import (
	"fmt"
	"strings"
)

// Type is the declared type of a point.
type Type int

// Point types. The zero Type is invalid.
const (
	TypeInteger Type = iota + 1
	TypeSingleFloat
	TypeDoubleFloat
	TypeBoolean
	TypeString
	TypeDateTime
	TypeDateOnly
	TypeTimeOnly
	TypeTimeSpan
)

// typeNames are the wire enum names, indexed by Type.
var typeNames = [...]string{
	TypeInteger:     "Integer",
	TypeSingleFloat: "SingleFloat",
	TypeDoubleFloat: "DoubleFloat",
	TypeBoolean:     "Boolean",
	TypeString:      "String",
	TypeDateTime:    "DateTime",
	TypeDateOnly:    "DateOnly",
	TypeTimeOnly:    "TimeOnly",
	TypeTimeSpan:    "TimeSpan",
}

// nativeTypes maps the native type names used in device point definitions to
// point types. Lookups are case-insensitive.
var nativeTypes = map[string]Type{
	"int":       TypeInteger,
	"int32":     TypeInteger,
	"int64":     TypeInteger,
	"integer":   TypeInteger,
	"long":      TypeInteger,
	"float":     TypeSingleFloat,
	"float32":   TypeSingleFloat,
	"single":    TypeSingleFloat,
	"double":    TypeDoubleFloat,
	"float64":   TypeDoubleFloat,
	"decimal":   TypeDoubleFloat,
	"bool":      TypeBoolean,
	"boolean":   TypeBoolean,
	"string":    TypeString,
	"datetime":  TypeDateTime,
	"date":      TypeDateOnly,
	"dateonly":  TypeDateOnly,
	"time":      TypeTimeOnly,
	"timeonly":  TypeTimeOnly,
	"timespan":  TypeTimeSpan,
	"duration":  TypeTimeSpan,
	"time.time": TypeDateTime,
}

// Valid reports whether t is one of the nine point types.
func (t Type) Valid() bool {
	return t >= TypeInteger && t <= TypeTimeSpan
}

// String returns the wire enum name of the type.
func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidPointType
	}
	return []byte(typeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType parses a wire enum name (case-insensitive).
func ParseType(name string) (Type, error) {
	name = strings.TrimSpace(name)
	for t := TypeInteger; t <= TypeTimeSpan; t++ {
		if strings.EqualFold(typeNames[t], name) {
			return t, nil
		}
	}
	return 0, ErrInvalidPointType
}

// TypeForNative maps a native type name from a point definition to a point
// type. Wire enum names are accepted as well.
func TypeForNative(name string) (Type, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if t, ok := nativeTypes[key]; ok {
		return t, true
	}
	if t, err := ParseType(key); err == nil {
		return t, true
	}
	return 0, false
}
