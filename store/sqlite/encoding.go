package sqlite

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"google.golang.org/protobuf/encoding/protowire"
)

// Native values are sealed in protowire form: bools and integers as
// (zigzag) varints, float32 as its fixed32 bit pattern, strings as raw bytes
// and string sets as a sequence of length-prefixed members. Every value,
// including NaN, -0 and invalid UTF-8, comes back bit for bit.

var errMalformed = errors.New("malformed value")

// nativeKinds maps the kind column back to the stored kind.
var nativeKinds = map[string]reflect.Kind{
	reflect.Bool.String():    reflect.Bool,
	reflect.Int32.String():   reflect.Int32,
	reflect.Int64.String():   reflect.Int64,
	reflect.Float32.String(): reflect.Float32,
	reflect.String.String():  reflect.String,
	reflect.Slice.String():   reflect.Slice,
}

func encodeNative(kind reflect.Kind, value any) ([]byte, error) {
	buf := make([]byte, 0, 16)
	switch kind {
	case reflect.Bool:
		var v uint64
		if value.(bool) {
			v = 1
		}
		return protowire.AppendVarint(buf, v), nil
	case reflect.Int32:
		return protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(value.(int32)))), nil
	case reflect.Int64:
		return protowire.AppendVarint(buf, protowire.EncodeZigZag(value.(int64))), nil
	case reflect.Float32:
		return protowire.AppendFixed32(buf, math.Float32bits(value.(float32))), nil
	case reflect.String:
		return append(buf, value.(string)...), nil
	case reflect.Slice:
		for _, member := range value.([]string) {
			buf = protowire.AppendString(buf, member)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("unknown kind %s", kind)
}

func decodeNative(kind reflect.Kind, data []byte) (any, error) {
	switch kind {
	case reflect.Bool:
		v, err := consumeVarint(data)
		if err != nil {
			return nil, err
		}
		return v != 0, nil
	case reflect.Int32:
		v, err := consumeVarint(data)
		if err != nil {
			return nil, err
		}
		i := protowire.DecodeZigZag(v)
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %d overflows int32", errMalformed, i)
		}
		return int32(i), nil
	case reflect.Int64:
		v, err := consumeVarint(data)
		if err != nil {
			return nil, err
		}
		return protowire.DecodeZigZag(v), nil
	case reflect.Float32:
		v, n := protowire.ConsumeFixed32(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		if n != len(data) {
			return nil, errMalformed
		}
		return math.Float32frombits(v), nil
	case reflect.String:
		return string(data), nil
	case reflect.Slice:
		members := make([]string, 0)
		for len(data) > 0 {
			member, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			members = append(members, member)
			data = data[n:]
		}
		return members, nil
	}
	return nil, fmt.Errorf("unknown kind %s", kind)
}

func consumeVarint(data []byte) (uint64, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if n != len(data) {
		return 0, errMalformed
	}
	return v, nil
}
