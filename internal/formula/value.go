package formula

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the members of the Value sum type.
type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindBool   ValueKind = "boolean"
	KindNumber ValueKind = "number"
	KindText   ValueKind = "text"
	KindDate   ValueKind = "date"
	KindList   ValueKind = "list"
	KindRecord ValueKind = "record"
	KindError  ValueKind = "error"
)

// Value is the runtime representation of every formula result. There is
// a single numeric kind (IEEE-754 double; integers exact within ±2^53)
// and dates are UTC instants with millisecond resolution.
type Value interface {
	Kind() ValueKind
	GoValue() interface{}
	String() string
	Equals(Value) bool
}

type NullValue struct{}

func (v NullValue) Kind() ValueKind         { return KindNull }
func (v NullValue) GoValue() interface{}    { return nil }
func (v NullValue) String() string          { return "null" }
func (v NullValue) Equals(other Value) bool { return other.Kind() == KindNull }

type BoolValue struct {
	Val bool
}

func (v BoolValue) Kind() ValueKind      { return KindBool }
func (v BoolValue) GoValue() interface{} { return v.Val }
func (v BoolValue) String() string {
	if v.Val {
		return "true"
	}
	return "false"
}
func (v BoolValue) Equals(other Value) bool {
	o, ok := other.(BoolValue)
	return ok && v.Val == o.Val
}

type NumberValue struct {
	Val float64
}

func (v NumberValue) Kind() ValueKind      { return KindNumber }
func (v NumberValue) GoValue() interface{} { return v.Val }
func (v NumberValue) String() string       { return strconv.FormatFloat(v.Val, 'g', -1, 64) }
func (v NumberValue) Equals(other Value) bool {
	o, ok := other.(NumberValue)
	return ok && v.Val == o.Val
}

type TextValue struct {
	Val string
}

func (v TextValue) Kind() ValueKind      { return KindText }
func (v TextValue) GoValue() interface{} { return v.Val }
func (v TextValue) String() string       { return v.Val }
func (v TextValue) Equals(other Value) bool {
	o, ok := other.(TextValue)
	return ok && v.Val == o.Val
}

// DateValue is a UTC instant. Construction truncates to millisecond
// resolution so round-trips through the wire format are lossless.
type DateValue struct {
	Val time.Time
}

func NewDate(t time.Time) DateValue {
	return DateValue{Val: t.UTC().Truncate(time.Millisecond)}
}

func (v DateValue) Kind() ValueKind      { return KindDate }
func (v DateValue) GoValue() interface{} { return v.Val.Format(time.RFC3339Nano) }
func (v DateValue) String() string       { return v.Val.Format(time.RFC3339) }
func (v DateValue) Equals(other Value) bool {
	o, ok := other.(DateValue)
	return ok && v.Val.Equal(o.Val)
}

type ListValue struct {
	Vals []Value
}

func (v ListValue) Kind() ValueKind { return KindList }
func (v ListValue) GoValue() interface{} {
	result := make([]interface{}, len(v.Vals))
	for i, val := range v.Vals {
		result[i] = val.GoValue()
	}
	return result
}
func (v ListValue) String() string {
	parts := make([]string, len(v.Vals))
	for i, val := range v.Vals {
		parts[i] = val.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (v ListValue) Equals(other Value) bool {
	o, ok := other.(ListValue)
	if !ok || len(v.Vals) != len(o.Vals) {
		return false
	}
	for i, val := range v.Vals {
		if !val.Equals(o.Vals[i]) {
			return false
		}
	}
	return true
}

type RecordValue struct {
	Vals map[string]Value
}

func (v RecordValue) Kind() ValueKind { return KindRecord }
func (v RecordValue) GoValue() interface{} {
	result := make(map[string]interface{}, len(v.Vals))
	for k, val := range v.Vals {
		result[k] = val.GoValue()
	}
	return result
}
func (v RecordValue) String() string {
	keys := make([]string, 0, len(v.Vals))
	for k := range v.Vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, v.Vals[k].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (v RecordValue) Equals(other Value) bool {
	o, ok := other.(RecordValue)
	if !ok || len(v.Vals) != len(o.Vals) {
		return false
	}
	for k, val := range v.Vals {
		ov, ok := o.Vals[k]
		if !ok || !val.Equals(ov) {
			return false
		}
	}
	return true
}

// ErrorValue is a first-class error produced by IsError-aware paths,
// e.g. division by zero. It propagates through operators and ordinary
// functions until IsError observes it or it reaches the top level.
type ErrorValue struct {
	Code    ErrorCode
	Message string
}

func (v ErrorValue) Kind() ValueKind      { return KindError }
func (v ErrorValue) GoValue() interface{} { return map[string]interface{}{"error": string(v.Code), "message": v.Message} }
func (v ErrorValue) String() string       { return fmt.Sprintf("#ERROR(%s: %s)", v.Code, v.Message) }
func (v ErrorValue) Equals(other Value) bool {
	o, ok := other.(ErrorValue)
	return ok && v.Code == o.Code && v.Message == o.Message
}

// FromGo converts an arbitrary decoded-JSON style Go value into a
// formula Value.
func FromGo(v interface{}) Value {
	if v == nil {
		return NullValue{}
	}
	switch val := v.(type) {
	case Value:
		return val
	case bool:
		return BoolValue{Val: val}
	case int:
		return NumberValue{Val: float64(val)}
	case int32:
		return NumberValue{Val: float64(val)}
	case int64:
		return NumberValue{Val: float64(val)}
	case float32:
		return NumberValue{Val: float64(val)}
	case float64:
		return NumberValue{Val: val}
	case string:
		return TextValue{Val: val}
	case time.Time:
		return NewDate(val)
	case []interface{}:
		result := make([]Value, len(val))
		for i, item := range val {
			result[i] = FromGo(item)
		}
		return ListValue{Vals: result}
	case []string:
		result := make([]Value, len(val))
		for i, item := range val {
			result[i] = TextValue{Val: item}
		}
		return ListValue{Vals: result}
	case []map[string]interface{}:
		result := make([]Value, len(val))
		for i, item := range val {
			result[i] = FromGo(item)
		}
		return ListValue{Vals: result}
	case map[string]interface{}:
		result := make(map[string]Value, len(val))
		for k, item := range val {
			result[k] = FromGo(item)
		}
		return RecordValue{Vals: result}
	default:
		return TextValue{Val: fmt.Sprintf("%v", v)}
	}
}

// ToBool applies the engine's truthiness rules: non-zero numbers and
// non-empty text/lists/records are true, Null is false.
func ToBool(v Value) bool {
	switch val := v.(type) {
	case BoolValue:
		return val.Val
	case NumberValue:
		return val.Val != 0
	case TextValue:
		return val.Val != ""
	case NullValue:
		return false
	case ListValue:
		return len(val.Vals) > 0
	case RecordValue:
		return len(val.Vals) > 0
	case ErrorValue:
		return false
	default:
		return true
	}
}

// ToNumber coerces a value to a float64. Text must parse as a number;
// the second return reports whether the coercion succeeded.
func ToNumber(v Value) (float64, bool) {
	switch val := v.(type) {
	case NumberValue:
		return val.Val, true
	case BoolValue:
		if val.Val {
			return 1, true
		}
		return 0, true
	case TextValue:
		f, err := strconv.ParseFloat(strings.TrimSpace(val.Val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToText renders a value as display text.
func ToText(v Value) string {
	return v.String()
}
