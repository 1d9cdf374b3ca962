package gopref

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"

	"github.com/davidroman0O/gopref/store"
)

var errBadFrame = errors.New("malformed binary frame")

// encode maps value to its kind and the raw representation handed to the
// backend: bool, int32, int64, float32, string or []string.
func encode(value any) (Kind, any, error) {
	kind, err := kindOf(reflect.TypeOf(value))
	if err != nil {
		return KindInvalid, nil, err
	}

	switch kind {
	case KindBool:
		return kind, value.(bool), nil
	case KindInt32:
		return kind, value.(int32), nil
	case KindInt64:
		if v, ok := value.(int); ok {
			return kind, int64(v), nil
		}
		return kind, value.(int64), nil
	case KindFloat32:
		return kind, value.(float32), nil
	case KindFloat64:
		return kind, strconv.FormatFloat(value.(float64), 'g', -1, 64), nil
	case KindString:
		return kind, value.(string), nil
	case KindStringSet:
		if set, ok := value.(StringSet); ok {
			return kind, set.Sorted(), nil
		}
		return kind, store.NormalizeSet(value.([]string)), nil
	case KindBinary:
		data, err := marshalBinary(value)
		if err != nil {
			return KindInvalid, nil, &UnsupportedTypeError{Type: reflect.TypeOf(value), Err: err}
		}
		return kind, base64.StdEncoding.EncodeToString(protowire.AppendBytes(nil, data)), nil
	case KindStructured:
		data, err := json.Marshal(value)
		if err != nil {
			return KindInvalid, nil, &UnsupportedTypeError{Type: reflect.TypeOf(value), Err: err}
		}
		return kind, string(data), nil
	case KindInvalid:
	}
	return KindInvalid, nil, &UnsupportedTypeError{Type: reflect.TypeOf(value)}
}

func marshalBinary(value any) ([]byte, error) {
	if m, ok := value.(proto.Message); ok {
		return proto.MarshalOptions{Deterministic: true}.Marshal(m)
	}
	return value.(encoding.BinaryMarshaler).MarshalBinary()
}

// write stores an encoded value in the slot matching its kind.
func write(b store.Backend, key string, kind Kind, raw any) error {
	switch kind {
	case KindBool:
		return b.PutBool(key, raw.(bool))
	case KindInt32:
		return b.PutInt32(key, raw.(int32))
	case KindInt64:
		return b.PutInt64(key, raw.(int64))
	case KindFloat32:
		return b.PutFloat32(key, raw.(float32))
	case KindFloat64, KindString, KindBinary, KindStructured:
		return b.PutString(key, raw.(string))
	case KindStringSet:
		return b.PutStringSet(key, raw.([]string))
	case KindInvalid:
	}
	return fmt.Errorf("%w: kind %s", ErrUnsupportedType, kind)
}

// decoder reads values for a single requested type.
type decoder struct {
	backend store.Backend
	logger  Logger
	tel     *telemetry
}

// decode reads key using the dynamic type of def, or T when def is a nil
// interface, to pick the decode path.
func decode[T any](d decoder, key string, def T) (T, error) {
	t := reflect.TypeOf(any(def))
	if t == nil {
		t = reflect.TypeOf((*T)(nil)).Elem()
	}
	kind, err := kindOf(t)
	if err != nil {
		return def, err
	}

	v, err := d.decodeKind(key, kind, t, any(def))
	if err != nil {
		return def, err
	}
	out, ok := v.(T)
	if !ok {
		// Only reachable for nil results of binary kinds behind interface T.
		var zero T
		return zero, nil
	}
	return out, nil
}

func (d decoder) decodeKind(key string, kind Kind, t reflect.Type, def any) (any, error) {
	b := d.backend
	switch kind {
	case KindBool:
		return b.GetBool(key, def.(bool))
	case KindInt32:
		return b.GetInt32(key, def.(int32))
	case KindInt64:
		if i, ok := def.(int); ok {
			v, err := b.GetInt64(key, int64(i))
			return int(v), err
		}
		return b.GetInt64(key, def.(int64))
	case KindFloat32:
		return b.GetFloat32(key, def.(float32))
	case KindString:
		return b.GetString(key, def.(string))
	case KindStringSet:
		if set, ok := def.(StringSet); ok {
			values, err := b.GetStringSet(key, set.Sorted())
			return NewStringSet(values...), err
		}
		return b.GetStringSet(key, def.([]string))
	case KindFloat64:
		text, err := b.GetString(key, "")
		if err != nil || text == "" {
			return def, err
		}
		f, perr := strconv.ParseFloat(text, 64)
		if perr != nil {
			d.tolerate(key, kind, perr)
			return def, nil
		}
		return f, nil
	case KindBinary:
		text, err := b.GetString(key, "")
		if err != nil {
			return def, err
		}
		if text == "" {
			return reflect.Zero(t).Interface(), nil
		}
		v, derr := unmarshalBinary(text, t)
		if derr != nil {
			d.tolerate(key, kind, derr)
			return reflect.Zero(t).Interface(), nil
		}
		return v, nil
	case KindStructured:
		text, err := b.GetString(key, "")
		if err != nil || text == "" {
			return def, err
		}
		v, derr := unmarshalStructured(text, t)
		if derr != nil {
			d.tel.codecFailure(kind)
			return def, &DecodeError{Key: key, Type: t, Err: derr}
		}
		return v, nil
	case KindInvalid:
	}
	return def, &UnsupportedTypeError{Type: t}
}

// tolerate records a decode failure that is reported as an absent value.
func (d decoder) tolerate(key string, kind Kind, err error) {
	d.tel.codecFailure(kind)
	d.logger.Warn("Treating unreadable %s value of %q as absent: %v", kind, key, err)
}

func unmarshalBinary(text string, t reflect.Type) (any, error) {
	framed, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, err
	}
	data, n := protowire.ConsumeBytes(framed)
	if n < 0 || n != len(framed) {
		return nil, errBadFrame
	}

	// Build a fresh value through the type's own factory.
	ptr, elem := newValue(t)
	switch target := ptr.Interface().(type) {
	case proto.Message:
		if err := proto.Unmarshal(data, target); err != nil {
			return nil, err
		}
	case encoding.BinaryUnmarshaler:
		if err := target.UnmarshalBinary(data); err != nil {
			return nil, err
		}
	default:
		return nil, &UnsupportedTypeError{Type: t, Err: errors.New("no binary unmarshaler")}
	}
	if elem {
		return ptr.Elem().Interface(), nil
	}
	return ptr.Interface(), nil
}

// newValue allocates storage for t. For pointer types it returns a new
// element pointer; for other types a pointer to t and elem=true.
func newValue(t reflect.Type) (ptr reflect.Value, elem bool) {
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()), false
	}
	return reflect.New(t), true
}

var (
	schemaMu    sync.RWMutex
	schemaCache = map[reflect.Type]*jsonschema.Schema{}
)

// schemaFor reflects the JSON schema of a struct type, cached per type.
func schemaFor(t reflect.Type) *jsonschema.Schema {
	schemaMu.RLock()
	s, ok := schemaCache[t]
	schemaMu.RUnlock()
	if ok {
		return s
	}

	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	s = reflector.ReflectFromType(t)

	schemaMu.Lock()
	schemaCache[t] = s
	schemaMu.Unlock()
	return s
}

// unmarshalStructured parses text into a new value of type t. Struct types
// are checked against their schema: every required property must be present
// and unknown properties are rejected.
func unmarshalStructured(text string, t reflect.Type) (any, error) {
	structType := t
	if structType.Kind() == reflect.Pointer {
		if strings.TrimSpace(text) == "null" {
			return reflect.Zero(t).Interface(), nil
		}
		structType = structType.Elem()
	}

	if structType.Kind() == reflect.Struct {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			return nil, err
		}
		for _, name := range schemaFor(structType).Required {
			if _, ok := fields[name]; !ok {
				return nil, fmt.Errorf("missing required property %q", name)
			}
		}
	}

	ptr, elem := newValue(t)
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ptr.Interface()); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after value")
	}
	if elem {
		return ptr.Elem().Interface(), nil
	}
	return ptr.Interface(), nil
}
