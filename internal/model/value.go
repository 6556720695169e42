package model

import (
	"math"
	"strconv"
	"strings"
)

// ValueType identifies which variant a Value holds.
type ValueType uint8

const (
	ValueTypeEmpty ValueType = iota
	ValueTypeString
	ValueTypeBool
	ValueTypeInt64
	ValueTypeDouble
	ValueTypeArray
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeEmpty:
		return "Empty"
	case ValueTypeString:
		return "String"
	case ValueTypeBool:
		return "Bool"
	case ValueTypeInt64:
		return "Int64"
	case ValueTypeDouble:
		return "Double"
	case ValueTypeArray:
		return "Array"
	}
	return "ValueType(" + strconv.Itoa(int(t)) + ")"
}

// Value is an attribute value: a string, bool, int64, double, an array of
// values, or empty. The zero Value is empty.
type Value struct {
	typ ValueType
	num uint64
	str string
	arr []Value
}

// StringValue returns a string Value.
func StringValue(v string) Value {
	return Value{typ: ValueTypeString, str: v}
}

// BoolValue returns a bool Value.
func BoolValue(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{typ: ValueTypeBool, num: n}
}

// Int64Value returns an int64 Value.
func Int64Value(v int64) Value {
	return Value{typ: ValueTypeInt64, num: uint64(v)}
}

// DoubleValue returns a double Value.
func DoubleValue(v float64) Value {
	return Value{typ: ValueTypeDouble, num: math.Float64bits(v)}
}

// ArrayValue returns an array Value. The slice is not copied.
func ArrayValue(vs ...Value) Value {
	return Value{typ: ValueTypeArray, arr: vs}
}

// EmptyValue returns the empty Value.
func EmptyValue() Value {
	return Value{}
}

func (v Value) Type() ValueType { return v.typ }

// Str returns the string held by v, or "" if v is not a string.
func (v Value) Str() string { return v.str }

// Bool returns the bool held by v, or false.
func (v Value) Bool() bool { return v.typ == ValueTypeBool && v.num == 1 }

// Int64 returns the int64 held by v, or 0.
func (v Value) Int64() int64 {
	if v.typ != ValueTypeInt64 {
		return 0
	}
	return int64(v.num)
}

// Double returns the float64 held by v, or 0.
func (v Value) Double() float64 {
	if v.typ != ValueTypeDouble {
		return 0
	}
	return math.Float64frombits(v.num)
}

// Array returns the elements held by v, or nil.
func (v Value) Array() []Value { return v.arr }

// AsString renders v for display.
func (v Value) AsString() string {
	switch v.typ {
	case ValueTypeString:
		return v.str
	case ValueTypeBool:
		return strconv.FormatBool(v.Bool())
	case ValueTypeInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case ValueTypeDouble:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case ValueTypeArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.AsString()
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return ""
}

// KeyValue is one attribute.
type KeyValue struct {
	Key   string
	Value Value
}

func String(k, v string) KeyValue { return KeyValue{Key: k, Value: StringValue(v)} }
func Bool(k string, v bool) KeyValue { return KeyValue{Key: k, Value: BoolValue(v)} }
func Int64(k string, v int64) KeyValue { return KeyValue{Key: k, Value: Int64Value(v)} }
func Double(k string, v float64) KeyValue { return KeyValue{Key: k, Value: DoubleValue(v)} }

// Array returns a KeyValue holding an array of vs.
func Array(k string, vs ...Value) KeyValue {
	return KeyValue{Key: k, Value: ArrayValue(vs...)}
}
