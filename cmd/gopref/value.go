package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/davidroman0O/gopref"
)

// Value kinds accepted by --kind.
const (
	kindBool    = "bool"
	kindInt32   = "int32"
	kindInt64   = "int64"
	kindFloat32 = "float32"
	kindFloat64 = "float64"
	kindString  = "string"
	kindStrings = "strings"
	kindJSON    = "json"
)

var kinds = []string{kindBool, kindInt32, kindInt64, kindFloat32, kindFloat64, kindString, kindStrings, kindJSON}

// parseValue converts command line text to a value of kind.
func parseValue(kind, text string) (any, error) {
	switch kind {
	case kindBool:
		return cast.ToBoolE(text)
	case kindInt32:
		return cast.ToInt32E(text)
	case kindInt64:
		return cast.ToInt64E(text)
	case kindFloat32:
		return cast.ToFloat32E(text)
	case kindFloat64:
		return cast.ToFloat64E(text)
	case kindString:
		return text, nil
	case kindStrings:
		if text == "" {
			return []string{}, nil
		}
		return cast.ToStringSliceE(strings.Split(text, ","))
	case kindJSON:
		var doc map[string]any
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON object: %w", err)
		}
		return doc, nil
	}
	return nil, unknownKind(kind)
}

func unknownKind(kind string) error {
	return fmt.Errorf("unknown kind %q (want one of %s)", kind, strings.Join(kinds, ", "))
}

// readValue reads key decoded as kind.
func readValue(p *gopref.Preferences, key, kind string) (any, error) {
	switch kind {
	case kindBool:
		return gopref.Get(p, key, false)
	case kindInt32:
		return gopref.Get(p, key, int32(0))
	case kindInt64:
		return gopref.Get(p, key, int64(0))
	case kindFloat32:
		return gopref.Get(p, key, float32(0))
	case kindFloat64:
		return gopref.Get(p, key, float64(0))
	case kindString:
		return gopref.Get(p, key, "")
	case kindStrings:
		return gopref.Get(p, key, []string(nil))
	case kindJSON:
		return gopref.Get(p, key, map[string]any(nil))
	}
	return nil, unknownKind(kind)
}

// watchValue follows key decoded as kind.
func watchValue(p *gopref.Preferences, key, kind string, fn func(any, error)) (*gopref.Subscription, error) {
	switch kind {
	case kindBool:
		return gopref.Watch(p, key, false, adapt[bool](fn)), nil
	case kindInt32:
		return gopref.Watch(p, key, int32(0), adapt[int32](fn)), nil
	case kindInt64:
		return gopref.Watch(p, key, int64(0), adapt[int64](fn)), nil
	case kindFloat32:
		return gopref.Watch(p, key, float32(0), adapt[float32](fn)), nil
	case kindFloat64:
		return gopref.Watch(p, key, float64(0), adapt[float64](fn)), nil
	case kindString:
		return gopref.Watch(p, key, "", adapt[string](fn)), nil
	case kindStrings:
		return gopref.Watch(p, key, []string(nil), adapt[[]string](fn)), nil
	case kindJSON:
		return gopref.Watch(p, key, map[string]any(nil), adapt[map[string]any](fn)), nil
	}
	return nil, unknownKind(kind)
}

func adapt[T any](fn func(any, error)) func(T, error) {
	return func(v T, err error) { fn(v, err) }
}

// format renders a value for output. Structured values print as JSON.
func format(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
	return cast.ToString(v)
}
