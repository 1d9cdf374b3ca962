package store

import (
	"reflect"
	"sort"

	"github.com/sasha-s/go-deadlock"
)

// MemoryStore is a threadsafe, kind‑aware in‑memory Backend.
type MemoryStore struct {
	mu        deadlock.RWMutex
	data      map[string]entry
	seq       uint64
	listeners Listeners
}

type entry struct {
	typeKind reflect.Kind
	value    any
	seq      uint64
}

var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]entry)}
}

func (s *MemoryStore) lookup(key string, want reflect.Kind) (any, bool) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()

	if !ok || e.typeKind != want {
		return nil, false
	}
	return e.value, true
}

// GetBool implements Backend.
func (s *MemoryStore) GetBool(key string, def bool) (bool, error) {
	if v, ok := s.lookup(key, reflect.Bool); ok {
		return v.(bool), nil
	}
	return def, nil
}

// GetInt32 implements Backend.
func (s *MemoryStore) GetInt32(key string, def int32) (int32, error) {
	if v, ok := s.lookup(key, reflect.Int32); ok {
		return v.(int32), nil
	}
	return def, nil
}

// GetInt64 implements Backend.
func (s *MemoryStore) GetInt64(key string, def int64) (int64, error) {
	if v, ok := s.lookup(key, reflect.Int64); ok {
		return v.(int64), nil
	}
	return def, nil
}

// GetFloat32 implements Backend.
func (s *MemoryStore) GetFloat32(key string, def float32) (float32, error) {
	if v, ok := s.lookup(key, reflect.Float32); ok {
		return v.(float32), nil
	}
	return def, nil
}

// GetString implements Backend.
func (s *MemoryStore) GetString(key string, def string) (string, error) {
	if v, ok := s.lookup(key, reflect.String); ok {
		return v.(string), nil
	}
	return def, nil
}

// GetStringSet implements Backend. The returned slice is a sorted copy.
func (s *MemoryStore) GetStringSet(key string, def []string) ([]string, error) {
	if v, ok := s.lookup(key, reflect.Slice); ok {
		set := v.([]string)
		return append(make([]string, 0, len(set)), set...), nil
	}
	return def, nil
}

// PutBool implements Backend.
func (s *MemoryStore) PutBool(key string, value bool) error {
	return s.put(key, reflect.Bool, value)
}

// PutInt32 implements Backend.
func (s *MemoryStore) PutInt32(key string, value int32) error {
	return s.put(key, reflect.Int32, value)
}

// PutInt64 implements Backend.
func (s *MemoryStore) PutInt64(key string, value int64) error {
	return s.put(key, reflect.Int64, value)
}

// PutFloat32 implements Backend.
func (s *MemoryStore) PutFloat32(key string, value float32) error {
	return s.put(key, reflect.Float32, value)
}

// PutString implements Backend.
func (s *MemoryStore) PutString(key string, value string) error {
	return s.put(key, reflect.String, value)
}

// PutStringSet implements Backend. Duplicates are dropped.
func (s *MemoryStore) PutStringSet(key string, value []string) error {
	return s.put(key, reflect.Slice, NormalizeSet(value))
}

func (s *MemoryStore) put(key string, kind reflect.Kind, value any) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	s.seq++
	s.data[key] = entry{typeKind: kind, value: value, seq: s.seq}
	s.mu.Unlock()

	s.listeners.Notify(s, ChangeEvent{Key: key})
	return nil
}

// Remove implements Backend.
func (s *MemoryStore) Remove(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	s.listeners.Notify(s, ChangeEvent{Key: key})
	return nil
}

// Clear implements Backend.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.data = make(map[string]entry)
	s.mu.Unlock()

	s.listeners.Notify(s, ChangeEvent{Bulk: true})
	return nil
}

// Keys implements Backend.
func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.data[out[i]].seq < s.data[out[j]].seq
	})
	return out, nil
}

// Count returns the number of stored entries.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// All implements Backend. String sets are returned as copies.
func (s *MemoryStore) All() (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.data))
	for k, e := range s.data {
		if set, ok := e.value.([]string); ok {
			out[k] = append([]string(nil), set...)
			continue
		}
		out[k] = e.value
	}
	return out, nil
}

// RegisterListener implements Backend.
func (s *MemoryStore) RegisterListener(l Listener) error {
	return s.listeners.Register(l)
}

// UnregisterListener implements Backend.
func (s *MemoryStore) UnregisterListener(l Listener) {
	s.listeners.Unregister(l)
}

// ListenerCount reports how many listeners are registered.
func (s *MemoryStore) ListenerCount() int {
	return s.listeners.Len()
}

// NormalizeSet returns a sorted copy of values without duplicates.
func NormalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
