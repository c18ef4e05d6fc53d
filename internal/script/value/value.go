// Package value converts between script values and host values.
//
// Host callbacks never see raw runtime values. Arguments arrive as Value, a
// tagged union over the script types the bridge understands, and the As*
// accessors fail with a TypeError instead of coercing.
package value

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"

	"github.com/dop251/goja"
)

// Kind tags the variant held by a Value
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindObject
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindError:
		return "error"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a script value crossing the host boundary.
// The zero Value is Undefined.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string

	// obj holds the exported host form of an Object (map[string]any, []any, ...)
	obj any
	// ref keeps the originating script object so it round-trips by identity
	ref *goja.Object
	// str keeps the originating script string; units holds its UTF-16 code
	// units when s cannot represent them (unpaired surrogates)
	str   goja.Value
	units []uint16
}

var (
	Undefined = Value{kind: KindUndefined}
	Null      = Value{kind: KindNull}
)

// String constructs a String value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number constructs a Number value
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Bool constructs a Bool value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Object constructs an Object value from a host map, slice or struct
func Object(v any) Value { return Value{kind: KindObject, obj: v} }

// Error constructs an Error value carrying a message
func Error(msg string) Value { return Value{kind: KindError, s: msg} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNullish reports whether v is null or undefined
func (v Value) IsNullish() bool { return v.kind == KindUndefined || v.kind == KindNull }

// AsString returns the string held by v. Unpaired surrogates read as
// U+FFFD; ToJS still restores the original string.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", mismatch(KindString, v.kind)
	}
	return v.s, nil
}

// AsNumber returns the number held by v
func (v Value) AsNumber() (float64, error) {
	if v.kind != KindNumber {
		return 0, mismatch(KindNumber, v.kind)
	}
	return v.n, nil
}

// AsBool returns the boolean held by v
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, mismatch(KindBool, v.kind)
	}
	return v.b, nil
}

// AsObject returns the exported host form of an Object value
func (v Value) AsObject() (any, error) {
	if v.kind != KindObject {
		return nil, mismatch(KindObject, v.kind)
	}
	return v.obj, nil
}

// AsError returns the message of an Error value
func (v Value) AsError() (string, error) {
	if v.kind != KindError {
		return "", mismatch(KindError, v.kind)
	}
	return v.s, nil
}

// AsNumbers returns the elements of an array of numbers
func (v Value) AsNumbers() ([]float64, error) {
	if v.kind != KindObject {
		return nil, mismatch(KindObject, v.kind)
	}

	switch items := v.obj.(type) {
	case []float64:
		return append([]float64(nil), items...), nil
	case []any:
		out := make([]float64, 0, len(items))
		for i, item := range items {
			n, ok := toFloat(item)
			if !ok {
				return nil, &TypeError{Want: KindNumber, Got: FromGo(item).kind, Index: i}
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return nil, &TypeError{Want: KindObject, Got: KindObject, Index: -1, Detail: fmt.Sprintf("%T is not an array", v.obj)}
	}
}

// String formats v for logs
func (v Value) String() string {
	switch v.kind {
	case KindUndefined, KindNull:
		return v.kind.String()
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindString:
		return v.s
	case KindError:
		return "Error: " + v.s
	default:
		if v.ref != nil {
			return v.ref.String()
		}
		return fmt.Sprint(v.obj)
	}
}

// Equal reports whether a and b hold the same variant and payload.
// Objects compare by script identity when both came from a script.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n || (math.IsNaN(a.n) && math.IsNaN(b.n))
	case KindString:
		if a.units != nil || b.units != nil {
			return slices.Equal(a.codeUnits(), b.codeUnits())
		}
		return a.s == b.s
	case KindError:
		return a.s == b.s
	case KindObject:
		if a.ref != nil || b.ref != nil {
			return a.ref == b.ref
		}
		return fmt.Sprint(a.obj) == fmt.Sprint(b.obj)
	default:
		return true
	}
}

// FromJS adapts a runtime value
func FromJS(v goja.Value) Value {
	if v == nil || goja.IsUndefined(v) {
		return Undefined
	}
	if goja.IsNull(v) {
		return Null
	}

	if obj, ok := v.(*goja.Object); ok {
		if obj.ClassName() == "Error" {
			msg := obj.Get("message")
			if msg == nil {
				return Value{kind: KindError, s: obj.String(), ref: obj}
			}
			return Value{kind: KindError, s: msg.String(), ref: obj}
		}
		return Value{kind: KindObject, obj: obj.Export(), ref: obj}
	}

	if str, ok := v.(goja.String); ok {
		return fromString(str)
	}

	switch x := v.Export().(type) {
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int64:
		return Number(float64(x))
	case float64:
		return Number(x)
	default:
		return Value{kind: KindObject, obj: x}
	}
}

func fromString(str goja.String) Value {
	v := Value{kind: KindString, s: str.String(), str: str}

	n := str.Length()
	units := make([]uint16, n)
	for i := 0; i < n; i++ {
		units[i] = str.CharAt(i)
	}
	if !wellFormed(units) {
		v.units = units
	}
	return v
}

// wellFormed reports whether every surrogate in units is paired
func wellFormed(units []uint16) bool {
	for i := 0; i < len(units); i++ {
		u := rune(units[i])
		if !utf16.IsSurrogate(u) {
			continue
		}
		if u >= 0xdc00 || i+1 == len(units) {
			return false
		}
		if next := rune(units[i+1]); next < 0xdc00 || next > 0xdfff {
			return false
		}
		i++
	}
	return true
}

func (v Value) codeUnits() []uint16 {
	if v.units != nil {
		return v.units
	}
	return utf16.Encode([]rune(v.s))
}

// FromArgs adapts a call's positional arguments
func FromArgs(args []goja.Value) []Value {
	out := make([]Value, len(args))
	for i, arg := range args {
		out[i] = FromJS(arg)
	}
	return out
}

// FromGo adapts a host value
func FromGo(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null
	case Value:
		return t
	case goja.Value:
		return FromJS(t)
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case error:
		return Error(t.Error())
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	default:
		return Object(t)
	}
}

// ToJS materialises v in vm
func (v Value) ToJS(vm *goja.Runtime) goja.Value {
	if v.ref != nil {
		return v.ref
	}
	if v.str != nil {
		return v.str
	}

	switch v.kind {
	case KindUndefined:
		return goja.Undefined()
	case KindNull:
		return goja.Null()
	case KindBool:
		return vm.ToValue(v.b)
	case KindNumber:
		return vm.ToValue(v.n)
	case KindString:
		if v.units != nil {
			return goja.StringFromUTF16(v.units)
		}
		return vm.ToValue(v.s)
	case KindError:
		return vm.NewGoError(errors.New(v.s))
	default:
		return vm.ToValue(v.obj)
	}
}

// Detached returns v without its references into the runtime, so it can
// leave the goroutine that owns the runtime. Strings keep their exact
// code units.
func (v Value) Detached() Value {
	v.ref = nil
	v.str = nil
	return v
}

// Arg returns args[i], or Undefined past the end
func Arg(args []Value, i int) Value {
	if i < 0 || i >= len(args) {
		return Undefined
	}
	return args[i]
}

func toFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
