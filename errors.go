package gopref

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/davidroman0O/gopref/store"
)

var (
	// ErrUnsupportedType is matched by every *UnsupportedTypeError.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("decode failed")
	// ErrClosed is returned by operations on closed preferences.
	ErrClosed = errors.New("preferences are closed")
	// ErrEmptyKey is returned when a key is empty.
	ErrEmptyKey = store.ErrEmptyKey
)

// UnsupportedTypeError reports a value whose type matches no storage kind.
type UnsupportedTypeError struct {
	Type reflect.Type
	Err  error
}

func (e *UnsupportedTypeError) Error() string {
	name := "<nil>"
	if e.Type != nil {
		name = e.Type.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("type %s is not supported: %v", name, e.Err)
	}
	return fmt.Sprintf("type %s is not supported", name)
}

// Is makes errors.Is(err, ErrUnsupportedType) hold.
func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

func (e *UnsupportedTypeError) Unwrap() error { return e.Err }

// DecodeError reports stored text that does not match the schema of the
// requested structured type.
type DecodeError struct {
	Key  string
	Type reflect.Type
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q as %v: %v", e.Key, e.Type, e.Err)
}

// Is makes errors.Is(err, ErrDecode) hold.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func (e *DecodeError) Unwrap() error { return e.Err }
