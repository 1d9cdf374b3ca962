package gopref

import (
	"encoding"
	"reflect"
	"sort"

	"google.golang.org/protobuf/proto"
)

// Kind is the closed set of value categories a Preferences can hold.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindStringSet
	KindBinary
	KindStructured
)

var kindNames = [...]string{
	KindInvalid:    "invalid",
	KindBool:       "bool",
	KindInt32:      "int32",
	KindInt64:      "int64",
	KindFloat32:    "float32",
	KindFloat64:    "float64",
	KindString:     "string",
	KindStringSet:  "string_set",
	KindBinary:     "binary",
	KindStructured: "structured",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Native reports whether the backend stores the kind in a slot of its own.
func (k Kind) Native() bool {
	switch k {
	case KindBool, KindInt32, KindInt64, KindFloat32, KindString, KindStringSet:
		return true
	}
	return false
}

// StringSet is a set of strings stored in the backend's string set slot.
type StringSet map[string]struct{}

// NewStringSet builds a set from values.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports whether v is in the set.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in ascending order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

var (
	typeBool      = reflect.TypeOf(false)
	typeInt       = reflect.TypeOf(int(0))
	typeInt32     = reflect.TypeOf(int32(0))
	typeInt64     = reflect.TypeOf(int64(0))
	typeFloat32   = reflect.TypeOf(float32(0))
	typeFloat64   = reflect.TypeOf(float64(0))
	typeString    = reflect.TypeOf("")
	typeStringSet = reflect.TypeOf(StringSet(nil))
	typeStrings   = reflect.TypeOf([]string(nil))
	typeProto     = reflect.TypeOf((*proto.Message)(nil)).Elem()
	typeMarshaler = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()
	typeUnmarshal = reflect.TypeOf((*encoding.BinaryUnmarshaler)(nil)).Elem()
)

// kindOf classifies a type. Exact built-in types map to native kinds; named
// types built on them fall through to the structured kind.
func kindOf(t reflect.Type) (Kind, error) {
	if t == nil {
		return KindInvalid, &UnsupportedTypeError{}
	}
	switch t {
	case typeBool:
		return KindBool, nil
	case typeInt32:
		return KindInt32, nil
	case typeInt, typeInt64:
		return KindInt64, nil
	case typeFloat32:
		return KindFloat32, nil
	case typeFloat64:
		return KindFloat64, nil
	case typeString:
		return KindString, nil
	case typeStringSet, typeStrings:
		return KindStringSet, nil
	}

	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128,
		reflect.UnsafePointer, reflect.Interface, reflect.Invalid:
		return KindInvalid, &UnsupportedTypeError{Type: t}
	}

	if t.Implements(typeProto) {
		return KindBinary, nil
	}
	if t.Implements(typeMarshaler) {
		if !t.Implements(typeUnmarshal) && !reflect.PointerTo(t).Implements(typeUnmarshal) {
			return KindInvalid, &UnsupportedTypeError{Type: t}
		}
		return KindBinary, nil
	}
	return KindStructured, nil
}
