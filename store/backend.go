package store

import "errors"

var (
	// ErrEmptyKey is returned when an operation receives an empty key.
	ErrEmptyKey = errors.New("key cannot be empty")
	// ErrListenerRegistered is returned when the same listener is registered twice.
	ErrListenerRegistered = errors.New("listener already registered")
	// ErrClosed is returned by backends that have been closed.
	ErrClosed = errors.New("backend is closed")
)

// ChangeEvent describes a mutation of the backend.
// Bulk events carry no key and are emitted when every entry is removed at once.
type ChangeEvent struct {
	Key  string
	Bulk bool
}

// Listener receives change events from a Backend.
// OnChange may be called from any goroutine and must not block for long.
// Implementations must be comparable, usually a pointer.
type Listener interface {
	OnChange(source Backend, event ChangeEvent)
}

// ListenerFunc adapts a function to the Listener interface.
// Use a pointer to a ListenerFunc when registering so it can be unregistered.
type ListenerFunc func(source Backend, event ChangeEvent)

// OnChange implements Listener.
func (f *ListenerFunc) OnChange(source Backend, event ChangeEvent) {
	(*f)(source, event)
}

// Backend is the contract of an opaque key/value engine holding
// primitive values, strings and string sets.
//
// Typed getters return the default when the key is absent or holds a value of
// another kind. Every successful mutation emits exactly one ChangeEvent to the
// registered listeners after the mutation is visible to readers.
type Backend interface {
	GetBool(key string, def bool) (bool, error)
	GetInt32(key string, def int32) (int32, error)
	GetInt64(key string, def int64) (int64, error)
	GetFloat32(key string, def float32) (float32, error)
	GetString(key string, def string) (string, error)
	GetStringSet(key string, def []string) ([]string, error)

	PutBool(key string, value bool) error
	PutInt32(key string, value int32) error
	PutInt64(key string, value int64) error
	PutFloat32(key string, value float32) error
	PutString(key string, value string) error
	PutStringSet(key string, value []string) error

	// Remove deletes a single key. Removing an absent key is not an error.
	Remove(key string) error
	// Clear deletes every key and emits a single bulk event.
	Clear() error

	// Keys returns every key ordered by last modification, oldest first.
	Keys() ([]string, error)
	// All returns every entry with its raw stored value.
	All() (map[string]any, error)

	// RegisterListener adds l. OnChange runs after the lock is released, so
	// concurrent mutations may notify out of their applied order.
	RegisterListener(l Listener) error
	UnregisterListener(l Listener)
}
